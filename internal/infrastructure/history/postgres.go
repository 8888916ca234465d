package history

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/malan-ai/malan-server/internal/domain/conversation"
	"github.com/malan-ai/malan-server/internal/infrastructure/database/entities"
	"github.com/malan-ai/malan-server/internal/infrastructure/metrics"
	"github.com/malan-ai/malan-server/internal/utils/platformerrors"
)

const backendPostgres = "postgres"

// PostgresRepository persists conversations with GORM.
type PostgresRepository struct {
	db *gorm.DB
}

var _ conversation.Repository = (*PostgresRepository)(nil)

func NewPostgresRepository(db *gorm.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) GetOrCreate(ctx context.Context, id string, system conversation.Message) (*conversation.Conversation, error) {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()
		header := entities.Conversation{ID: id, CreatedAt: now, UpdatedAt: now}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&header)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		msg := toEntity(id, system)
		return tx.Create(&msg).Error
	})
	metrics.RecordHistoryOperation(backendPostgres, "get_or_create", err)
	if err != nil {
		return nil, dbError(ctx, err, "failed to create conversation", "0b6e2f4a-8c1d-4e3f-a5b7-9d2c4e6f8a10")
	}
	return r.Get(ctx, id)
}

func (r *PostgresRepository) Append(ctx context.Context, id string, messages ...conversation.Message) error {
	if len(messages) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&entities.Conversation{}).Where("id = ?", id).Update("updated_at", time.Now().UTC())
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return conversation.ErrNotFound
		}
		rows := make([]entities.ConversationMessage, 0, len(messages))
		for _, m := range messages {
			rows = append(rows, toEntity(id, m))
		}
		return tx.Create(&rows).Error
	})
	metrics.RecordHistoryOperation(backendPostgres, "append", err)
	if errors.Is(err, conversation.ErrNotFound) {
		return err
	}
	if err != nil {
		return dbError(ctx, err, "failed to append messages", "3c7a9e1b-2d4f-4a6c-8e0b-5f1d3a7c9e24")
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*conversation.Conversation, error) {
	var header entities.Conversation
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&header).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, conversation.ErrNotFound
		}
		return nil, dbError(ctx, err, "failed to get conversation", "6d1b3f5a-7e9c-4b2d-8f4a-1c3e5a7b9d36")
	}

	var rows []entities.ConversationMessage
	if err := r.db.WithContext(ctx).Where("conversation_id = ?", id).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, dbError(ctx, err, "failed to list messages", "8f3d5b7c-9a1e-4d4f-b6c8-3e5a7c9d1f48")
	}

	conv := &conversation.Conversation{
		ID:        header.ID,
		Messages:  make([]conversation.Message, 0, len(rows)),
		CreatedAt: header.CreatedAt,
		UpdatedAt: header.UpdatedAt,
	}
	for _, row := range rows {
		conv.Messages = append(conv.Messages, fromEntity(row))
	}
	return conv, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("conversation_id = ?", id).Delete(&entities.ConversationMessage{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&entities.Conversation{}).Error
	})
	metrics.RecordHistoryOperation(backendPostgres, "delete", err)
	if err != nil {
		return dbError(ctx, err, "failed to delete conversation", "a5e7c9d1-3b5f-4e6a-8c0d-2f4b6d8e0a5a")
	}
	return nil
}

func (r *PostgresRepository) IdleIDs(ctx context.Context, cutoff time.Time) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&entities.Conversation{}).Where("updated_at < ?", cutoff).Pluck("id", &ids).Error
	metrics.RecordHistoryOperation(backendPostgres, "idle_ids", err)
	if err != nil {
		return nil, dbError(ctx, err, "failed to list idle conversations", "c7a9e1f3-5d7b-4a8c-9e2f-4b6d8f0a2c6c")
	}
	return ids, nil
}

func (r *PostgresRepository) Health(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func dbError(ctx context.Context, err error, message, uuid string) error {
	return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError, message, err, uuid)
}

func toEntity(id string, m conversation.Message) entities.ConversationMessage {
	row := entities.ConversationMessage{
		ConversationID: id,
		Role:           string(m.Role),
		Content:        m.Content,
		CreatedAt:      m.CreatedAt,
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	for _, b := range m.Blocks {
		row.Blocks = append(row.Blocks, entities.MessageBlock{
			Kind:     string(b.Kind),
			Text:     b.Text,
			MimeType: b.MimeType,
			Data:     b.Data,
		})
	}
	return row
}

func fromEntity(row entities.ConversationMessage) conversation.Message {
	m := conversation.Message{
		Role:      conversation.Role(row.Role),
		Content:   row.Content,
		CreatedAt: row.CreatedAt,
	}
	for _, b := range row.Blocks {
		m.Blocks = append(m.Blocks, conversation.ContentBlock{
			Kind:     conversation.BlockKind(b.Kind),
			Text:     b.Text,
			MimeType: b.MimeType,
			Data:     b.Data,
		})
	}
	return m
}
