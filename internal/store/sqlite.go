package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/earlfranciss/swiftshield/internal/model"
)

// SQLiteStore implements the Store interface using a local SQLite database.
type SQLiteStore struct {
	db *sqlx.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// A single connection keeps ":memory:" databases coherent and
	// serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

const upsertSetting = `
	INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`

// SetIntent writes both channel flags in one transaction.
func (s *SQLiteStore) SetIntent(ctx context.Context, sms, gmail bool) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx, upsertSetting, KeySMSMonitoring, boolString(sms), now); err != nil {
		return fmt.Errorf("saving %s: %w", KeySMSMonitoring, err)
	}
	if _, err := tx.ExecContext(ctx, upsertSetting, KeyGmailMonitoring, boolString(gmail), now); err != nil {
		return fmt.Errorf("saving %s: %w", KeyGmailMonitoring, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing monitoring intent: %w", err)
	}
	return nil
}

// SetChannelIntent writes the flag for a single channel.
func (s *SQLiteStore) SetChannelIntent(
	ctx context.Context,
	ch model.Channel,
	enabled bool,
) error {
	key, ok := channelKey(ch)
	if !ok {
		return fmt.Errorf("unknown channel %q", ch)
	}
	return s.setValue(ctx, key, boolString(enabled))
}

// GetIntent reads both flags. Missing keys read as false.
func (s *SQLiteStore) GetIntent(ctx context.Context) (model.MonitoringStatus, error) {
	sms, err := s.getValue(ctx, KeySMSMonitoring)
	if err != nil {
		return model.MonitoringStatus{}, err
	}
	gmail, err := s.getValue(ctx, KeyGmailMonitoring)
	if err != nil {
		return model.MonitoringStatus{}, err
	}

	intent := model.MonitoringIntent{
		SMSEnabled:   sms == "true",
		GmailEnabled: gmail == "true",
	}
	return intent.Status(), nil
}

// GetMailCursor returns the highest mail UID already scanned. The second
// return value is false when no cursor was ever stored.
func (s *SQLiteStore) GetMailCursor(ctx context.Context) (uint32, bool, error) {
	raw, err := s.getValue(ctx, KeyMailCursor)
	if err != nil {
		return 0, false, err
	}
	if raw == "" {
		return 0, false, nil
	}

	uid, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, false, fmt.Errorf("parsing %s %q: %w", KeyMailCursor, raw, err)
	}
	return uint32(uid), true, nil
}

// SetMailCursor stores the highest mail UID already scanned.
func (s *SQLiteStore) SetMailCursor(ctx context.Context, uid uint32) error {
	return s.setValue(ctx, KeyMailCursor, strconv.FormatUint(uint64(uid), 10))
}

// setValue upserts a single settings row.
func (s *SQLiteStore) setValue(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, upsertSetting, key, value, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("saving %s: %w", key, err)
	}
	return nil
}

// getValue reads a single settings row. A missing row yields "".
func (s *SQLiteStore) getValue(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.GetContext(ctx, &value, "SELECT value FROM settings WHERE key = ?", key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", key, err)
	}
	return value, nil
}

// boolString converts a boolean to the "true"/"false" form the flags are
// stored in.
func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
