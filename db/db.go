package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jpillora/backoff"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Store is the postgres-backed credential and scheduled-message store.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

func New(gdb *gorm.DB) *Store {
	return &Store{db: gdb, now: time.Now}
}

// WithClock replaces the clock used for validation and timestamps.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// Connect opens the database, retrying with backoff while postgres comes up.
func Connect(ctx context.Context, dsn string, attempts int) (*gorm.DB, error) {
	b := &backoff.Backoff{Min: 500 * time.Millisecond, Max: 10 * time.Second, Factor: 2, Jitter: true}
	var err error
	for i := 0; i < attempts; i++ {
		var gdb *gorm.DB
		gdb, err = gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
		if err == nil {
			sqlDB, err2 := gdb.DB()
			if err2 == nil {
				sqlDB.SetMaxIdleConns(5)
				sqlDB.SetMaxOpenConns(20)
				sqlDB.SetConnMaxLifetime(time.Hour)
				if err2 = sqlDB.PingContext(ctx); err2 == nil {
					log.Info().Msg("connected to postgres")
					return gdb, nil
				}
			}
			err = err2
		}
		wait := b.Duration()
		log.Warn().Err(err).Int("attempt", i+1).Dur("retry_in", wait).Msg("postgres not ready")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil, fmt.Errorf("connect postgres: %w", err)
}

// Migrate creates or updates the credential and scheduled-message tables.
func Migrate(gdb *gorm.DB) error {
	return gdb.AutoMigrate(&Credential{}, &ScheduledMessage{})
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
