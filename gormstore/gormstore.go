// Package gormstore provides a gorm record store for tieredsession.
//
// GORMStore keeps the hot and cold collections in two tables with the same
// layout: the hashed session id, the payload and the time the record was
// last touched. Tables are created on New if they don't exist.
package gormstore

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/bluescreen10/tieredsession"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	// DefaultHotTable is the table holding the hot collection.
	DefaultHotTable = "sess_mem"

	// DefaultColdTable is the table holding the cold collection.
	DefaultColdTable = "sess_disk"
)

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,63}$`)

// Ensure GORMStore implements tieredsession.RecordStore and Prober.
var (
	_ tieredsession.RecordStore = &GORMStore{}
	_ tieredsession.Prober      = &GORMStore{}
)

// GORMStore is a gorm backed storage for session records.
type GORMStore struct {
	db     *gorm.DB
	tables [2]string
	now    func() time.Time
}

// record represents a single stored session row.
type record struct {
	ID        string    `gorm:"column:sess_id;primaryKey;size:128"`
	Data      []byte    `gorm:"column:data"`
	TouchedAt time.Time `gorm:"column:touched_at;not null"`
}

type option func(*GORMStore)

// WithTables sets the names of the hot and cold tables.
// (default "sess_mem" and "sess_disk")
func WithTables(hot, cold string) option {
	return option(func(s *GORMStore) {
		s.tables = [2]string{tieredsession.Hot: hot, tieredsession.Cold: cold}
	})
}

// WithClock sets the time source used to stamp records. (default time.Now)
func WithClock(now func() time.Time) option {
	return option(func(s *GORMStore) {
		s.now = now
	})
}

// New creates and returns a new GORMStore instance.
// If the session tables don't exist they are created.
func New(db *gorm.DB, opts ...option) (*GORMStore, error) {
	s := &GORMStore{
		db:     db,
		tables: [2]string{tieredsession.Hot: DefaultHotTable, tieredsession.Cold: DefaultColdTable},
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	if err := validateTables(s.tables); err != nil {
		return nil, err
	}

	for _, table := range s.tables {
		if err := db.Table(table).AutoMigrate(&record{}); err != nil {
			return nil, fmt.Errorf("failed to create table %s: %w", table, err)
		}
		stmt := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s_touched_at_idx ON %s (touched_at)", table, table)
		if err := db.Exec(stmt).Error; err != nil {
			return nil, fmt.Errorf("failed to create index on %s: %w", table, err)
		}
	}

	return s, nil
}

func validateTables(tables [2]string) error {
	for _, t := range tables {
		if !identifier.MatchString(t) {
			return fmt.Errorf("gormstore: %w: invalid table name %q", tieredsession.ErrConfiguration, t)
		}
	}
	if tables[tieredsession.Hot] == tables[tieredsession.Cold] {
		return fmt.Errorf("gormstore: %w: hot and cold tables must differ", tieredsession.ErrConfiguration)
	}
	return nil
}

func (s *GORMStore) table(ctx context.Context, c tieredsession.Collection) *gorm.DB {
	return s.db.WithContext(ctx).Table(s.tables[c])
}

// Exists reports whether id is stored in collection c.
func (s *GORMStore) Exists(ctx context.Context, c tieredsession.Collection, id string) (bool, error) {
	var n int64
	tx := s.table(ctx, c).Where("sess_id = ?", id).Count(&n)
	return n > 0, tx.Error
}

// Probe checks both tables for id with a single query.
func (s *GORMStore) Probe(ctx context.Context, id string) (bool, bool, error) {
	var row struct {
		InHot  int64
		InCold int64
	}
	stmt := fmt.Sprintf(
		"SELECT (SELECT COUNT(*) FROM %s WHERE sess_id = ?) AS in_hot, (SELECT COUNT(*) FROM %s WHERE sess_id = ?) AS in_cold",
		s.tables[tieredsession.Hot], s.tables[tieredsession.Cold],
	)
	tx := s.db.WithContext(ctx).Raw(stmt, id, id).Scan(&row)
	return row.InHot > 0, row.InCold > 0, tx.Error
}

// Get retrieves the record stored under id. Returns the record, a boolean
// indicating whether it was found, and an error.
func (s *GORMStore) Get(ctx context.Context, c tieredsession.Collection, id string) (tieredsession.Record, bool, error) {
	rec := &record{}
	tx := s.table(ctx, c).Where("sess_id = ?", id).Limit(1).Find(rec)
	if tx.Error != nil || tx.RowsAffected == 0 {
		return tieredsession.Record{}, false, tx.Error
	}

	return tieredsession.Record{Payload: rec.Data, LastTouched: rec.TouchedAt}, true, nil
}

// Put stores payload under id. If a record with the same id already exists,
// it is overwritten.
func (s *GORMStore) Put(ctx context.Context, c tieredsession.Collection, id string, payload []byte) error {
	if payload == nil {
		payload = []byte{}
	}
	rec := &record{ID: id, Data: payload, TouchedAt: s.now().UTC()}
	tx := s.table(ctx, c).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "sess_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"data", "touched_at"}),
	}).Create(rec)
	return tx.Error
}

// Delete removes id from collection c.
func (s *GORMStore) Delete(ctx context.Context, c tieredsession.Collection, id string) error {
	tx := s.table(ctx, c).Where("sess_id = ?", id).Delete(&record{})
	return tx.Error
}

// DeleteOlderThan removes every record in c touched before cutoff.
func (s *GORMStore) DeleteOlderThan(ctx context.Context, c tieredsession.Collection, cutoff time.Time) (int64, error) {
	tx := s.table(ctx, c).Where("touched_at < ?", cutoff.UTC()).Delete(&record{})
	return tx.RowsAffected, tx.Error
}

// Touch refreshes the last-touched time of id.
func (s *GORMStore) Touch(ctx context.Context, c tieredsession.Collection, id string) error {
	tx := s.table(ctx, c).Where("sess_id = ?", id).Update("touched_at", s.now().UTC())
	return tx.Error
}
