package state

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	slogGorm "github.com/orandin/slog-gorm"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/plugin/opentelemetry/tracing"
)

// AccountRecord is the database row for one account's state document.
type AccountRecord struct {
	Key       string `gorm:"column:storage_key;primaryKey"`
	Handle    string
	Document  string
	UpdatedAt time.Time
}

func (AccountRecord) TableName() string {
	return "account_states"
}

// SQLStore keeps account state documents in a relational table, one row per storage key.
type SQLStore struct {
	db *gorm.DB
}

// NewSQLStore wraps an already-open database, creating the table if needed.
func NewSQLStore(db *gorm.DB) (*SQLStore, error) {
	if err := db.AutoMigrate(&AccountRecord{}); err != nil {
		return nil, fmt.Errorf("migrating state table: %w", err)
	}
	return &SQLStore{db: db}, nil
}

func (s *SQLStore) Load(ctx context.Context, handle string) (*AccountState, error) {
	var rec AccountRecord
	err := s.db.WithContext(ctx).Where("storage_key = ?", StorageKey(handle)).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return NewAccountState(), nil
	}
	if err != nil {
		return nil, err
	}
	st, err := Decode([]byte(rec.Document))
	if err != nil {
		return nil, fmt.Errorf("parsing stored state for %s: %w", handle, err)
	}
	return st, nil
}

func (s *SQLStore) Save(ctx context.Context, handle string, st *AccountState) error {
	b, err := Encode(st)
	if err != nil {
		return err
	}
	rec := AccountRecord{
		Key:       StorageKey(handle),
		Handle:    handle,
		Document:  string(b),
		UpdatedAt: time.Now().UTC(),
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&rec).Error
}

// Close releases the underlying connection pool.
func (s *SQLStore) Close() error {
	sqldb, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqldb.Close()
}

// SetupDatabase opens a gorm connection from a URL: "sqlite://path", "sqlite=path", "postgres://...", or "postgres=DSN".
func SetupDatabase(dburl string) (*gorm.DB, error) {
	var dial gorm.Dialector
	isSqlite := false
	openConns := 10

	switch {
	case strings.HasPrefix(dburl, "sqlite://"), strings.HasPrefix(dburl, "sqlite="):
		sqliteSuffix := strings.TrimPrefix(strings.TrimPrefix(dburl, "sqlite://"), "sqlite=")
		// ensure the directory exists, unless this is an in-memory database
		if !strings.Contains(sqliteSuffix, ":memory:") {
			if err := os.MkdirAll(filepath.Dir(sqliteSuffix), os.ModePerm); err != nil {
				return nil, err
			}
		}
		dial = sqlite.Open(sqliteSuffix)
		openConns = 1
		isSqlite = true
	case strings.HasPrefix(dburl, "postgresql://"), strings.HasPrefix(dburl, "postgres://"):
		// can pass entire URL, with prefix, to gorm driver
		dial = postgres.Open(dburl)
	case strings.HasPrefix(dburl, "postgres="):
		dial = postgres.Open(dburl[len("postgres="):])
	default:
		return nil, fmt.Errorf("unsupported or unrecognized database URL scheme")
	}

	db, err := gorm.Open(dial, &gorm.Config{
		SkipDefaultTransaction: true,
		TranslateError:         true,
		Logger:                 slogGorm.New(),
	})
	if err != nil {
		return nil, err
	}
	if err := db.Use(tracing.NewPlugin()); err != nil {
		return nil, err
	}

	sqldb, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqldb.SetMaxOpenConns(openConns)
	sqldb.SetConnMaxIdleTime(time.Hour)

	if isSqlite {
		if err := db.Exec("PRAGMA journal_mode=WAL;").Error; err != nil {
			return nil, err
		}
		if err := db.Exec("PRAGMA synchronous=normal;").Error; err != nil {
			return nil, err
		}
	}
	return db, nil
}
