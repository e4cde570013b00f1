// Package mysqlstore provides a MySQL/MariaDB record store for tieredsession.
//
// The hot collection lives in a MEMORY engine table with a bounded
// VARBINARY payload column and the cold collection in an InnoDB table with a
// LONGBLOB column. The hot column capacity must be at least the store's size
// threshold. Timestamps are read back as time.Time, so the connection needs
// parseTime=true; Open takes care of that.
package mysqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"time"

	"github.com/bluescreen10/tieredsession"
	"github.com/go-sql-driver/mysql"
)

const (
	// DefaultHotTable is the table holding the hot collection.
	DefaultHotTable = "sess_mem"

	// DefaultColdTable is the table holding the cold collection.
	DefaultColdTable = "sess_disk"

	// DefaultHotCapacity is the size of the hot payload column in bytes.
	DefaultHotCapacity = tieredsession.DefaultSizeThreshold
)

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,63}$`)

var engines = map[string]bool{"MEMORY": true, "InnoDB": true, "Aria": true, "MyISAM": true}

// Ensure MySQLStore implements tieredsession.RecordStore, Prober and
// HotCapacitor.
var (
	_ tieredsession.RecordStore  = &MySQLStore{}
	_ tieredsession.Prober       = &MySQLStore{}
	_ tieredsession.HotCapacitor = &MySQLStore{}
)

// MySQLStore is a MySQL backed storage for session records.
type MySQLStore struct {
	db          *sql.DB
	tables      [2]string
	hotEngine   string
	hotCapacity int
	now         func() time.Time

	// statements are built once from the validated table names
	exists, get, put, del, expire, touch [2]string
	probe                                string
}

type option func(*MySQLStore)

// WithTables sets the names of the hot and cold tables.
// (default "sess_mem" and "sess_disk")
func WithTables(hot, cold string) option {
	return option(func(s *MySQLStore) {
		s.tables = [2]string{tieredsession.Hot: hot, tieredsession.Cold: cold}
	})
}

// WithHotEngine sets the storage engine of the hot table. (default MEMORY)
func WithHotEngine(engine string) option {
	return option(func(s *MySQLStore) {
		s.hotEngine = engine
	})
}

// WithHotCapacity sets the size in bytes of the hot payload column.
// (default 8192)
func WithHotCapacity(n int) option {
	return option(func(s *MySQLStore) {
		s.hotCapacity = n
	})
}

// WithClock sets the time source used to stamp records. (default time.Now)
func WithClock(now func() time.Time) option {
	return option(func(s *MySQLStore) {
		s.now = now
	})
}

// Open connects to the database described by dsn, forcing parseTime, and
// returns a store on top of it.
func Open(dsn string, opts ...option) (*MySQLStore, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("mysqlstore: %w: %v", tieredsession.ErrConfiguration, err)
	}
	cfg.ParseTime = true

	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("mysqlstore: %w: %v", tieredsession.ErrConfiguration, err)
	}

	return New(sql.OpenDB(connector), opts...)
}

// New creates and returns a new MySQLStore instance.
// If the session tables don't exist they are created.
func New(db *sql.DB, opts ...option) (*MySQLStore, error) {
	s := &MySQLStore{
		db:          db,
		tables:      [2]string{tieredsession.Hot: DefaultHotTable, tieredsession.Cold: DefaultColdTable},
		hotEngine:   "MEMORY",
		hotCapacity: DefaultHotCapacity,
		now:         time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	if err := s.validate(); err != nil {
		return nil, err
	}
	s.prepare()

	if err := createTables(db, s.tables, s.hotEngine, s.hotCapacity); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *MySQLStore) validate() error {
	for _, t := range s.tables {
		if !identifier.MatchString(t) {
			return fmt.Errorf("mysqlstore: %w: invalid table name %q", tieredsession.ErrConfiguration, t)
		}
	}
	if s.tables[tieredsession.Hot] == s.tables[tieredsession.Cold] {
		return fmt.Errorf("mysqlstore: %w: hot and cold tables must differ", tieredsession.ErrConfiguration)
	}
	if !engines[s.hotEngine] {
		return fmt.Errorf("mysqlstore: %w: unsupported engine %q", tieredsession.ErrConfiguration, s.hotEngine)
	}
	if s.hotCapacity <= 0 || s.hotCapacity > 65000 {
		return fmt.Errorf("mysqlstore: %w: hot capacity %d out of range", tieredsession.ErrConfiguration, s.hotCapacity)
	}
	return nil
}

func (s *MySQLStore) prepare() {
	for _, c := range tieredsession.Collections {
		t := s.tables[c]
		s.exists[c] = fmt.Sprintf("SELECT 1 FROM `%s` WHERE sess_id = ? LIMIT 1", t)
		s.get[c] = fmt.Sprintf("SELECT data, touched_at FROM `%s` WHERE sess_id = ?", t)
		s.put[c] = fmt.Sprintf("INSERT INTO `%s` (sess_id, data, touched_at) VALUES (?, ?, ?) ON DUPLICATE KEY UPDATE data = VALUES(data), touched_at = VALUES(touched_at)", t)
		s.del[c] = fmt.Sprintf("DELETE FROM `%s` WHERE sess_id = ?", t)
		s.expire[c] = fmt.Sprintf("DELETE FROM `%s` WHERE touched_at < ?", t)
		s.touch[c] = fmt.Sprintf("UPDATE `%s` SET touched_at = ? WHERE sess_id = ?", t)
	}
	s.probe = fmt.Sprintf(
		"SELECT (SELECT sess_id FROM `%s` WHERE sess_id = ?) AS hot_id, (SELECT sess_id FROM `%s` WHERE sess_id = ?) AS cold_id",
		s.tables[tieredsession.Hot], s.tables[tieredsession.Cold],
	)
}

// Exists reports whether id is stored in collection c.
func (s *MySQLStore) Exists(ctx context.Context, c tieredsession.Collection, id string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, s.exists[c], id).Scan(&one)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Probe checks both tables for id with a single query.
func (s *MySQLStore) Probe(ctx context.Context, id string) (bool, bool, error) {
	var hot, cold sql.NullString
	if err := s.db.QueryRowContext(ctx, s.probe, id, id).Scan(&hot, &cold); err != nil {
		return false, false, err
	}
	return hot.Valid, cold.Valid, nil
}

// Get retrieves the record stored under id. Returns the record, a boolean
// indicating whether it was found, and an error.
func (s *MySQLStore) Get(ctx context.Context, c tieredsession.Collection, id string) (tieredsession.Record, bool, error) {
	var rec tieredsession.Record
	err := s.db.QueryRowContext(ctx, s.get[c], id).Scan(&rec.Payload, &rec.LastTouched)
	if err != nil {
		if err == sql.ErrNoRows {
			return tieredsession.Record{}, false, nil
		}
		return tieredsession.Record{}, false, err
	}
	return rec, true, nil
}

// Put stores payload under id. If a record with the same id already exists,
// it is overwritten.
func (s *MySQLStore) Put(ctx context.Context, c tieredsession.Collection, id string, payload []byte) error {
	if payload == nil {
		payload = []byte{}
	}
	_, err := s.db.ExecContext(ctx, s.put[c], id, payload, s.now().UTC())
	return err
}

// Delete removes id from collection c.
func (s *MySQLStore) Delete(ctx context.Context, c tieredsession.Collection, id string) error {
	_, err := s.db.ExecContext(ctx, s.del[c], id)
	return err
}

// DeleteOlderThan removes every record in c touched before cutoff.
func (s *MySQLStore) DeleteOlderThan(ctx context.Context, c tieredsession.Collection, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.expire[c], cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Touch refreshes the last-touched time of id.
func (s *MySQLStore) Touch(ctx context.Context, c tieredsession.Collection, id string) error {
	_, err := s.db.ExecContext(ctx, s.touch[c], s.now().UTC(), id)
	return err
}

func createTables(db *sql.DB, tables [2]string, hotEngine string, hotCapacity int) error {
	_, err := db.Exec(fmt.Sprintf(`CREATE TABLE IF NOT EXISTS `+"`%s`"+` (
			sess_id VARCHAR(128) CHARACTER SET ascii COLLATE ascii_bin PRIMARY KEY,
			data VARBINARY(%d) NOT NULL,
			touched_at TIMESTAMP(6) NOT NULL,
			INDEX touched_at_idx USING BTREE (touched_at)
		) ENGINE=%s`, tables[tieredsession.Hot], hotCapacity, hotEngine))
	if err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	_, err = db.Exec(fmt.Sprintf(`CREATE TABLE IF NOT EXISTS `+"`%s`"+` (
			sess_id VARCHAR(128) CHARACTER SET ascii COLLATE ascii_bin PRIMARY KEY,
			data LONGBLOB NOT NULL,
			touched_at TIMESTAMP(6) NOT NULL,
			INDEX touched_at_idx (touched_at)
		) ENGINE=InnoDB`, tables[tieredsession.Cold]))
	if err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	return nil
}

// HotCapacity returns the size in bytes of the hot payload column.
func (s *MySQLStore) HotCapacity() int {
	return s.hotCapacity
}

// Close closes the underlying database.
func (s *MySQLStore) Close() error {
	return s.db.Close()
}
