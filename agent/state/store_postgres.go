package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"
)

const chatMemoryConversationKey = "conversation"

// ChatMemory is one row of the chat_memory table. Each user has one
// "conversation" row holding the serialized context.
type ChatMemory struct {
	bun.BaseModel `bun:"table:chat_memory,alias:cm"`

	ID           int64                `bun:"id,pk,autoincrement"`
	UserID       string               `bun:"user_id,notnull,unique:chat_memory_user_key"`
	Key          string               `bun:"key,notnull,unique:chat_memory_user_key"`
	Value        *ConversationContext `bun:"value,type:jsonb"`
	LastActivity time.Time            `bun:"last_activity,notnull"`
	CreatedAt    time.Time            `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt    time.Time            `bun:"updated_at,notnull,default:current_timestamp"`
}

// PostgresStore keeps conversations in Postgres through bun.
type PostgresStore struct {
	db bun.IDB
}

var _ MemoryStore = (*PostgresStore)(nil)

func NewPostgresStore(db bun.IDB) (*PostgresStore, error) {
	if db == nil {
		return nil, errors.New("bun db is required")
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Load(ctx context.Context, threadID string) (*ConversationContext, error) {
	if strings.TrimSpace(threadID) == "" {
		return nil, ErrInvalidThread
	}

	row := new(ChatMemory)
	err := s.db.NewSelect().
		Model(row).
		Where("user_id = ?", threadID).
		Where("key = ?", chatMemoryConversationKey).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select chat memory: %w", err)
	}
	if row.Value == nil {
		return nil, ErrConversationNotFound
	}

	row.Value.EnsureMaps()
	if row.Value.ThreadID == "" {
		row.Value.ThreadID = threadID
	}
	return row.Value, nil
}

func (s *PostgresStore) Save(ctx context.Context, conv *ConversationContext) error {
	if err := prepareForSave(conv); err != nil {
		return err
	}
	if _, err := s.upsertQuery(conv, time.Now().UTC()).Exec(ctx); err != nil {
		return fmt.Errorf("upsert chat memory: %w", err)
	}
	return nil
}

func (s *PostgresStore) upsertQuery(conv *ConversationContext, now time.Time) *bun.InsertQuery {
	row := &ChatMemory{
		UserID:       conv.ThreadID,
		Key:          chatMemoryConversationKey,
		Value:        conv,
		LastActivity: conv.LastActivity,
		CreatedAt:    conv.CreatedAt,
		UpdatedAt:    now,
	}
	return s.db.NewInsert().
		Model(row).
		On("CONFLICT (user_id, key) DO UPDATE").
		Set("value = EXCLUDED.value").
		Set("last_activity = EXCLUDED.last_activity").
		Set("updated_at = EXCLUDED.updated_at")
}

func (s *PostgresStore) Delete(ctx context.Context, threadID string) error {
	if strings.TrimSpace(threadID) == "" {
		return ErrInvalidThread
	}
	_, err := s.db.NewDelete().
		Model((*ChatMemory)(nil)).
		Where("user_id = ?", threadID).
		Where("key = ?", chatMemoryConversationKey).
		Exec(ctx)
	return err
}

func (s *PostgresStore) DeleteInactiveSince(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.inactiveQuery(cutoff).Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("delete inactive chat memory: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return int(n), nil
}

func (s *PostgresStore) inactiveQuery(cutoff time.Time) *bun.DeleteQuery {
	return s.db.NewDelete().
		Model((*ChatMemory)(nil)).
		Where("key = ?", chatMemoryConversationKey).
		Where("last_activity < ?", cutoff.UTC())
}
