package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"datachat/internal/model"
)

const defaultArchiveLimit = 100

// ArchiveRepository keeps the durable copy of cached messages in MySQL.
type ArchiveRepository struct {
	db *gorm.DB
}

func NewArchiveRepository(db *gorm.DB) *ArchiveRepository {
	return &ArchiveRepository{db: db}
}

// Upsert inserts the message or overwrites the existing row with the same id.
func (r *ArchiveRepository) Upsert(ctx context.Context, message *model.ArchivedMessage) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "message_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"content", "artifact_ids", "updated_at"}),
	}).Create(message).Error
	if err != nil {
		return fmt.Errorf("upsert archived message failed: %w", err)
	}
	return nil
}

func (r *ArchiveRepository) DeleteMessage(ctx context.Context, messageID string) (int64, error) {
	res := r.db.WithContext(ctx).Where("message_id = ?", messageID).Delete(&model.ArchivedMessage{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete archived message failed: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (r *ArchiveRepository) DeleteSession(ctx context.Context, sessionID string) (int64, error) {
	res := r.db.WithContext(ctx).Where("session_id = ?", sessionID).Delete(&model.ArchivedMessage{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete archived session failed: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (r *ArchiveRepository) ListBySession(ctx context.Context, sessionID, userID string, limit int) ([]model.ArchivedMessage, error) {
	if limit <= 0 || limit > 200 {
		limit = defaultArchiveLimit
	}

	var messages []model.ArchivedMessage
	err := r.db.WithContext(ctx).
		Where("session_id = ? AND user_id = ?", sessionID, userID).
		Order("sent_at ASC").
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		return nil, fmt.Errorf("list archived messages failed: %w", err)
	}
	return messages, nil
}
