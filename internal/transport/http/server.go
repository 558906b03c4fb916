package http

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"datachat/internal/ai"
	appsvc "datachat/internal/app"
	"datachat/internal/bootstrap"
	"datachat/internal/repository"
	"datachat/internal/transport/http/handler"
	"datachat/internal/transport/http/middleware"
)

type handlers struct {
	auth      *handler.AuthHandler
	sessions  *handler.SessionHandler
	chat      *handler.ChatHandler
	uploads   *handler.UploadHandler
	artifacts *handler.ArtifactHandler
}

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	healthHandler := handler.NewHealthHandler(app)
	router.GET("/healthz", healthHandler.Check)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	cfg := app.Config
	sessionService := appsvc.NewSessionService(app.Cache, app.Publisher)
	messageService := appsvc.NewMessageService(app.Cache, app.Publisher)
	artifactService := appsvc.NewArtifactService(app.Cache, app.Uploader)
	chatService := appsvc.NewChatService(
		sessionService,
		messageService,
		artifactService,
		app.LLM,
		app.Executor,
		ai.ChatConfig{
			BaseURL: cfg.LLM.BaseURL,
			APIKey:  cfg.LLM.APIKey,
			Model:   cfg.LLM.Model,
		},
		appsvc.ChatOptions{
			MaxContext:  cfg.LLM.MaxContextMessage,
			MaxAttempts: cfg.Executor.MaxAttempts,
		},
	)
	authService := appsvc.NewAuthService(
		repository.NewUserRepository(app.MySQL),
		cfg.Auth.JWTSecret,
		cfg.JWTExpiration(),
	)

	registerAPI(router.Group("/api/v1"), middleware.AuthJWT(cfg.Auth.JWTSecret), handlers{
		auth:      handler.NewAuthHandler(authService),
		sessions:  handler.NewSessionHandler(sessionService, messageService),
		chat:      handler.NewChatHandler(chatService),
		uploads:   handler.NewUploadHandler(messageService, artifactService),
		artifacts: handler.NewArtifactHandler(artifactService),
	})
	return router
}

func registerAPI(v1 *gin.RouterGroup, auth gin.HandlerFunc, h handlers) {
	if h.auth != nil {
		authGroup := v1.Group("/auth")
		authGroup.POST("/register", h.auth.Register)
		authGroup.POST("/login", h.auth.Login)
		authGroup.GET("/me", auth, h.auth.Me)
	}

	sessions := v1.Group("/sessions", auth)
	sessions.POST("", h.sessions.Create)
	sessions.GET("", h.sessions.List)
	sessions.GET("/:session_id", h.sessions.Get)
	sessions.DELETE("/:session_id", h.sessions.Delete)
	sessions.GET("/:session_id/summary", h.sessions.Summary)

	messages := sessions.Group("/:session_id/messages/:message_id")
	messages.GET("", h.sessions.GetMessage)
	messages.DELETE("", h.sessions.DeleteMessage)
	messages.GET("/artifacts", h.artifacts.List)
	messages.GET("/artifacts/:artifact_id", h.artifacts.Get)
	messages.GET("/artifacts/:artifact_id/raw", h.artifacts.Raw)
	messages.PATCH("/artifacts/:artifact_id", h.artifacts.UpdateDescription)
	messages.DELETE("/artifacts/:artifact_id", h.artifacts.Delete)

	chat := v1.Group("/chat", auth)
	chat.POST("/send", h.chat.SendMessage)
	chat.POST("/send-with-vision", h.chat.SendWithVision)
	chat.POST("/stream", h.chat.StreamMessage)
	chat.POST("/analyze", h.chat.Analyze)
	chat.GET("/history", h.chat.GetHistory)

	uploads := v1.Group("/uploads", auth)
	uploads.POST("/csv", h.uploads.CSV)
	uploads.POST("/image", h.uploads.Image)
	uploads.POST("/pdf", h.uploads.PDF)
}
