package memory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	contractx "github.com/jarvisd/jarvis/agent/contract"
)

type recordRow struct {
	bun.BaseModel `bun:"table:memory_records,alias:mr"`

	ID        int64     `bun:"id,pk,autoincrement"`
	UserID    string    `bun:"user_id,notnull"`
	Kind      string    `bun:"kind,notnull"`
	RecordKey string    `bun:"record_key,notnull"`
	Value     string    `bun:"value,notnull"`
	CreatedAt time.Time `bun:"created_at,notnull"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
}

type turnRow struct {
	bun.BaseModel `bun:"table:history_turns,alias:ht"`

	ID             int64     `bun:"id,pk,autoincrement"`
	TurnID         string    `bun:"turn_id,notnull,unique"`
	UserID         string    `bun:"user_id,notnull"`
	UserMessage    string    `bun:"user_message,notnull"`
	AssistantReply string    `bun:"assistant_reply,notnull"`
	IntentLabel    string    `bun:"intent_label"`
	SkillsUsed     []string  `bun:"skills_used,array"`
	CreatedAt      time.Time `bun:"created_at,notnull"`
}

type PostgresConfig struct {
	DSN     string        `envconfig:"DSN" split_words:"true" required:"true"`
	Timeout time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"10s"`
}

// PostgresStore implements StructuredStore on bun over PostgreSQL.
type PostgresStore struct {
	db *bun.DB
}

var _ StructuredStore = (*PostgresStore)(nil)

func NewPostgresStore(cfg PostgresConfig) (*PostgresStore, error) {
	if cfg.DSN == "" {
		return nil, errors.New("postgres dsn is required")
	}

	sqldb := sql.OpenDB(pgdriver.NewConnector(
		pgdriver.WithDSN(cfg.DSN),
		pgdriver.WithTimeout(cfg.Timeout),
	))
	db := bun.NewDB(sqldb, pgdialect.New())

	return &PostgresStore{db: db}, nil
}

// InitSchema creates the tables and the uniqueness constraint behind the
// last-write-wins upsert. Idempotent.
func (s *PostgresStore) InitSchema(ctx context.Context) error {
	if _, err := s.db.NewCreateTable().
		Model((*recordRow)(nil)).
		IfNotExists().
		Exec(ctx); err != nil {
		return fmt.Errorf("create memory_records: %w", err)
	}
	if _, err := s.db.NewCreateIndex().
		Model((*recordRow)(nil)).
		Index("memory_records_user_kind_key_idx").
		Unique().
		IfNotExists().
		Column("user_id", "kind", "record_key").
		Exec(ctx); err != nil {
		return fmt.Errorf("create memory_records index: %w", err)
	}
	if _, err := s.db.NewCreateTable().
		Model((*turnRow)(nil)).
		IfNotExists().
		Exec(ctx); err != nil {
		return fmt.Errorf("create history_turns: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpsertRecord(ctx context.Context, rec contractx.MemoryRecord) error {
	now := time.Now().UTC()
	row := recordRow{
		UserID:    rec.UserID,
		Kind:      string(rec.Kind),
		RecordKey: rec.Key,
		Value:     rec.Value,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if !rec.CreatedAt.IsZero() {
		row.CreatedAt = rec.CreatedAt.UTC()
	}

	_, err := s.db.NewInsert().
		Model(&row).
		On("CONFLICT (user_id, kind, record_key) DO UPDATE").
		Set("value = EXCLUDED.value").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("upsert record: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetRecord(ctx context.Context, userID string, kind contractx.RecordKind, key string) (contractx.MemoryRecord, bool, error) {
	var row recordRow
	err := s.db.NewSelect().
		Model(&row).
		Where("user_id = ?", userID).
		Where("kind = ?", string(kind)).
		Where("record_key = ?", key).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return contractx.MemoryRecord{}, false, nil
	}
	if err != nil {
		return contractx.MemoryRecord{}, false, fmt.Errorf("get record: %w", err)
	}
	return toRecord(row), true, nil
}

func (s *PostgresStore) ListRecords(ctx context.Context, userID string, kind contractx.RecordKind) ([]contractx.MemoryRecord, error) {
	var rows []recordRow
	err := s.db.NewSelect().
		Model(&rows).
		Where("user_id = ?", userID).
		Where("kind = ?", string(kind)).
		Order("record_key ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}

	records := make([]contractx.MemoryRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, toRecord(row))
	}
	return records, nil
}

func (s *PostgresStore) InsertTurn(ctx context.Context, turn contractx.HistoryTurn) error {
	row := turnRow{
		TurnID:         turn.TurnID,
		UserID:         turn.UserID,
		UserMessage:    turn.UserMessage,
		AssistantReply: turn.AssistantReply,
		IntentLabel:    turn.IntentLabel,
		SkillsUsed:     turn.SkillsUsed,
		CreatedAt:      turn.CreatedAt.UTC(),
	}
	if _, err := s.db.NewInsert().Model(&row).Exec(ctx); err != nil {
		return fmt.Errorf("insert turn: %w", err)
	}
	return nil
}

func (s *PostgresStore) RecentTurns(ctx context.Context, userID string, limit int) ([]contractx.HistoryTurn, error) {
	var rows []turnRow
	err := s.db.NewSelect().
		Model(&rows).
		Where("user_id = ?", userID).
		Order("created_at DESC", "id DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("recent turns: %w", err)
	}

	turns := make([]contractx.HistoryTurn, 0, len(rows))
	for _, row := range rows {
		turns = append(turns, toTurn(row))
	}
	return turns, nil
}

func (s *PostgresStore) TurnsByIDs(ctx context.Context, userID string, turnIDs []string) ([]contractx.HistoryTurn, error) {
	if len(turnIDs) == 0 {
		return nil, nil
	}
	var rows []turnRow
	err := s.db.NewSelect().
		Model(&rows).
		Where("user_id = ?", userID).
		Where("turn_id IN (?)", bun.In(turnIDs)).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("turns by ids: %w", err)
	}

	turns := make([]contractx.HistoryTurn, 0, len(rows))
	for _, row := range rows {
		turns = append(turns, toTurn(row))
	}
	return turns, nil
}

func (s *PostgresStore) DeleteTurns(ctx context.Context, userID string) error {
	_, err := s.db.NewDelete().
		Model((*turnRow)(nil)).
		Where("user_id = ?", userID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete turns: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func toRecord(row recordRow) contractx.MemoryRecord {
	return contractx.MemoryRecord{
		Kind:      contractx.RecordKind(row.Kind),
		Key:       row.RecordKey,
		Value:     row.Value,
		UserID:    row.UserID,
		CreatedAt: row.CreatedAt,
	}
}

func toTurn(row turnRow) contractx.HistoryTurn {
	return contractx.HistoryTurn{
		TurnID:         row.TurnID,
		UserID:         row.UserID,
		UserMessage:    row.UserMessage,
		AssistantReply: row.AssistantReply,
		IntentLabel:    row.IntentLabel,
		SkillsUsed:     row.SkillsUsed,
		CreatedAt:      row.CreatedAt,
	}
}
