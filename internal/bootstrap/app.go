package bootstrap

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/storage"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"datachat/internal/ai"
	appsvc "datachat/internal/app"
	"datachat/internal/cache"
	"datachat/internal/config"
	"datachat/internal/executor"
	"datachat/internal/model"
	"datachat/internal/platform/gcs"
	mysqlClient "datachat/internal/platform/mysql"
	rabbitmqClient "datachat/internal/platform/rabbitmq"
	redisClient "datachat/internal/platform/redis"
	"datachat/internal/repository"
	"datachat/internal/worker"
)

type App struct {
	Config *config.Config
	MySQL  *gorm.DB
	Redis  *redis.Client
	Cache  *cache.ChatCache

	LLM      *ai.Client
	Executor *executor.Client

	// Optional collaborators; nil when disabled in config.
	MQConn        *amqp.Connection
	ArchiveWorker *worker.ArchiveWorker
	Publisher     appsvc.ArchivePublisher
	GCS           *storage.Client
	Uploader      appsvc.Uploader

	StartedAt time.Time
}

func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}
	if err := setupLogging(cfg.App); err != nil {
		return nil, err
	}

	a := &App{Config: cfg, StartedAt: time.Now()}
	if err := a.init(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	cfg := a.Config

	mysqlDB, err := mysqlClient.New(ctx, cfg.MySQLDSN())
	if err != nil {
		return err
	}
	a.MySQL = mysqlDB
	if err := mysqlDB.AutoMigrate(&model.User{}, &model.ArchivedMessage{}); err != nil {
		return fmt.Errorf("auto migrate tables failed: %w", err)
	}

	redisCli, err := redisClient.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return err
	}
	a.Redis = redisCli
	a.Cache = cache.NewChatCache(redisCli, cfg.Redis.KeyPrefix, cfg.CacheTTL())

	a.LLM = ai.NewClient(time.Duration(cfg.LLM.TimeoutSeconds)*time.Second, cfg.LLM.MaxRetries)
	a.Executor = executor.NewClient(cfg.Executor.BaseURL, time.Duration(cfg.Executor.TimeoutSeconds)*time.Second)

	if cfg.RabbitMQ.Enabled {
		mqConn, err := rabbitmqClient.New(ctx, cfg.RabbitMQ.URL, cfg.RabbitMQ.ArchiveQueue)
		if err != nil {
			return err
		}
		a.MQConn = mqConn
		a.Publisher = rabbitmqClient.NewArchivePublisher(mqConn, cfg.RabbitMQ.ArchiveQueue)

		a.ArchiveWorker = worker.NewArchiveWorker(mqConn, repository.NewArchiveRepository(mysqlDB), cfg.RabbitMQ.ArchiveQueue)
		if err := a.ArchiveWorker.Start(ctx); err != nil {
			return fmt.Errorf("start archive worker failed: %w", err)
		}
	} else {
		log.Info("rabbitmq disabled, messages are not archived")
	}

	if cfg.Blob.Bucket != "" {
		gcsClient, err := gcs.NewClient(ctx, cfg.Blob.CredentialsFile)
		if err != nil {
			return err
		}
		a.GCS = gcsClient
		a.Uploader = gcs.NewUploader(gcsClient, cfg.Blob.Bucket, cfg.Blob.ObjectPrefix, cfg.Blob.PublicBaseURL)
	} else {
		log.Info("blob bucket not configured, artifacts are kept in the cache only")
	}

	log.WithFields(log.Fields{
		"redis_prefix": cfg.Redis.KeyPrefix,
		"cache_ttl":    cfg.CacheTTL(),
		"archive":      cfg.RabbitMQ.Enabled,
		"blob_bucket":  cfg.Blob.Bucket,
	}).Info("application initialized")
	return nil
}

func setupLogging(cfg config.AppConfig) error {
	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("parse log level failed: %w", err)
	}
	log.SetLevel(level)

	if cfg.LogFormat == "json" {
		log.SetFormatter(&log.JSONFormatter{})
		return nil
	}
	formatter := new(log.TextFormatter)
	formatter.TimestampFormat = "2006-01-02T15:04:05.999Z07:00"
	formatter.FullTimestamp = true
	log.SetFormatter(formatter)
	return nil
}

func (a *App) Close() error {
	var closeErr error
	if a.ArchiveWorker != nil {
		a.ArchiveWorker.Close()
	}
	if a.MQConn != nil {
		if err := a.MQConn.Close(); err != nil {
			closeErr = err
		}
	}
	if a.GCS != nil {
		if err := a.GCS.Close(); err != nil {
			closeErr = err
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			closeErr = err
		}
	}
	if a.MySQL != nil {
		sqlDB, err := a.MySQL.DB()
		if err == nil {
			if err := sqlDB.Close(); err != nil {
				closeErr = err
			}
		}
	}
	return closeErr
}
