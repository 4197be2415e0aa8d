package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"farmstake/core/events"
)

// DefaultLimit bounds query results when the caller does not supply a limit.
const DefaultLimit = 100

// MaxLimit is the largest page a single query may return.
const MaxLimit = 1000

// Entry is the persisted form of an emitted event.
type Entry struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	Sequence   uint64    `gorm:"uniqueIndex;not null"`
	Type       string    `gorm:"index;not null"`
	Pool       string    `gorm:"index"`
	Account    string    `gorm:"index"`
	Attributes string    `gorm:"type:text"`
	EmittedAt  time.Time `gorm:"index"`
	CreatedAt  time.Time
}

// TableName pins the table name independent of the struct name.
func (Entry) TableName() string { return "staking_events" }

// Filter selects journal entries. Zero values disable a criterion.
type Filter struct {
	Type    string
	Pool    string
	Account string
	After   uint64
	Limit   int
}

// Journal persists feed records into a SQL database for audit queries.
type Journal struct {
	db *gorm.DB
}

// Open connects to dsn. postgres:// and postgresql:// URLs use the postgres
// driver, anything else is treated as a sqlite path or URI.
func Open(dsn string) (*Journal, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("journal: dsn required")
	}
	var dialector gorm.Dialector
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		dialector = postgres.Open(dsn)
	} else {
		dialector = sqlite.Open(dsn)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("journal: open: %w", err)
	}
	return New(db)
}

// New wraps an existing connection and migrates the schema.
func New(db *gorm.DB) (*Journal, error) {
	if db == nil {
		return nil, errors.New("journal: nil database")
	}
	if err := db.AutoMigrate(&Entry{}); err != nil {
		return nil, fmt.Errorf("journal: migrate: %w", err)
	}
	return &Journal{db: db}, nil
}

// Store implements events.Sink.
func (j *Journal) Store(rec events.Record) error {
	id, err := uuid.Parse(rec.ID)
	if err != nil {
		id = uuid.New()
	}
	attrs, err := json.Marshal(rec.Attributes)
	if err != nil {
		return fmt.Errorf("journal: encode attributes: %w", err)
	}
	entry := Entry{
		ID:         id,
		Sequence:   rec.Sequence,
		Type:       rec.Type,
		Pool:       rec.Attributes["pool"],
		Account:    rec.Attributes["account"],
		Attributes: string(attrs),
		EmittedAt:  rec.Time,
	}
	if err := j.db.Create(&entry).Error; err != nil {
		return fmt.Errorf("journal: insert sequence %d: %w", rec.Sequence, err)
	}
	return nil
}

// LastSequence returns the highest persisted sequence, or zero for an empty journal.
func (j *Journal) LastSequence(ctx context.Context) (uint64, error) {
	var last struct{ Max *uint64 }
	err := j.db.WithContext(ctx).Model(&Entry{}).Select("MAX(sequence) AS max").Scan(&last).Error
	if err != nil {
		return 0, fmt.Errorf("journal: last sequence: %w", err)
	}
	if last.Max == nil {
		return 0, nil
	}
	return *last.Max, nil
}

// Query returns entries matching filter ordered by sequence.
func (j *Journal) Query(ctx context.Context, filter Filter) ([]events.Record, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	tx := j.db.WithContext(ctx).Model(&Entry{}).Where("sequence > ?", filter.After)
	if t := strings.TrimSpace(filter.Type); t != "" {
		tx = tx.Where("type = ?", t)
	}
	if pool := strings.TrimSpace(filter.Pool); pool != "" {
		tx = tx.Where("pool = ?", pool)
	}
	if account := strings.ToLower(strings.TrimSpace(filter.Account)); account != "" {
		tx = tx.Where("account = ?", account)
	}
	var rows []Entry
	if err := tx.Order("sequence ASC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("journal: query: %w", err)
	}
	out := make([]events.Record, 0, len(rows))
	for _, row := range rows {
		attrs := map[string]string{}
		if row.Attributes != "" {
			if err := json.Unmarshal([]byte(row.Attributes), &attrs); err != nil {
				return nil, fmt.Errorf("journal: decode sequence %d: %w", row.Sequence, err)
			}
		}
		out = append(out, events.Record{
			ID:         row.ID.String(),
			Sequence:   row.Sequence,
			Time:       row.EmittedAt.UTC(),
			Type:       row.Type,
			Attributes: attrs,
		})
	}
	return out, nil
}

// Close releases the underlying connection pool.
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
