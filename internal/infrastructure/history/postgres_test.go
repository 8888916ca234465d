package history

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/malan-ai/malan-server/internal/domain/conversation"
	"github.com/malan-ai/malan-server/internal/infrastructure/database"
)

func TestEntityMappingKeepsBlocks(t *testing.T) {
	msg := conversation.Message{
		Role: conversation.RoleUser,
		Blocks: []conversation.ContentBlock{
			{Kind: conversation.BlockText, Text: "Describe this image (a.png) in detail."},
			{Kind: conversation.BlockImage, MimeType: "image/png", Data: "AQI="},
		},
		CreatedAt: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}

	row := toEntity("c1", msg)
	assert.Equal(t, "c1", row.ConversationID)
	assert.Equal(t, "user", row.Role)
	require.Len(t, row.Blocks, 2)

	assert.Equal(t, msg, fromEntity(row))
}

func TestEntityMappingStampsMissingTime(t *testing.T) {
	row := toEntity("c1", conversation.Message{Role: conversation.RoleAssistant, Content: "hi"})
	assert.False(t, row.CreatedAt.IsZero())
}

// Runs against a real database when POSTGRES_TEST_DSN is set.
func TestPostgresRepository(t *testing.T) {
	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set")
	}
	db, err := database.Connect(database.Config{DSN: dsn})
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(context.Background(), db, zerolog.Nop()))

	repo := NewPostgresRepository(db)
	require.NoError(t, repo.Health(context.Background()))
	exerciseRepository(t, repo, "pg-"+uuid.NewString())
}
