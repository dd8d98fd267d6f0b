package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"media-broker/internal/broker"
	"media-broker/internal/database/migrations"
	"media-broker/internal/database/sqlc"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

const (
	memoryPath      = ":memory:"
	defaultPoolSize = 4
	busyTimeoutMS   = 5000
)

// SQLiteRegistry implements broker.Registry on SQLite. Writes serialize on
// SQLite's write lock: every transaction begins IMMEDIATE and waits up to
// the busy timeout for it. Reads run on any free pooled connection.
type SQLiteRegistry struct {
	queries
	db   *sql.DB
	path string
}

// queries carries the registry operations shared by the registry and its
// transaction scope.
type queries struct {
	q     *sqlc.Queries
	clock broker.Clock
}

// NewSQLiteRegistry opens the registry at path with at most poolSize open
// connections. path may be ":memory:", which always uses one connection so
// every caller sees the same database. A nil clock uses the wall clock.
func NewSQLiteRegistry(path string, poolSize int, clock broker.Clock) (*SQLiteRegistry, error) {
	db, err := OpenConnection(path, poolSize)
	if err != nil {
		return nil, err
	}
	return NewSQLiteRegistryFromDB(db, path, clock), nil
}

// NewSQLiteRegistryFromDB wraps an existing connection pool. The caller is
// responsible for ensuring the pool is configured with OpenConnection.
func NewSQLiteRegistryFromDB(db *sql.DB, path string, clock broker.Clock) *SQLiteRegistry {
	if clock == nil {
		clock = broker.RealClock{}
	}
	return &SQLiteRegistry{
		queries: queries{q: sqlc.New(db), clock: clock},
		db:      db,
		path:    path,
	}
}

// OpenConnection opens a SQLite pool with WAL journaling, a busy timeout,
// IMMEDIATE transactions and foreign keys enabled. The parent directory of
// a file database is created if missing.
func OpenConnection(path string, poolSize int) (*sql.DB, error) {
	if poolSize < 1 {
		poolSize = defaultPoolSize
	}

	memory := path == memoryPath
	if !memory {
		if dir := filepath.Dir(path); dir != "" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("creating database directory: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite3", dsn(path, memory))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if memory {
		// Each connection to ":memory:" is a separate database.
		poolSize = 1
	}
	db.SetMaxOpenConns(poolSize)
	db.SetMaxIdleConns(poolSize)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

func dsn(path string, memory bool) string {
	params := []string{
		fmt.Sprintf("_busy_timeout=%d", busyTimeoutMS),
		"_txlock=immediate",
		"_foreign_keys=on",
	}
	if !memory {
		params = append(params, "_journal_mode=WAL", "_synchronous=NORMAL")
	}
	return path + "?" + strings.Join(params, "&")
}

func (r queries) UpsertFile(ctx context.Context, rec *broker.MediaRecord) error {
	now := r.clock.Now().UTC()
	err := r.q.UpsertFile(ctx, sqlc.UpsertFileParams{
		WorkspaceID:     rec.WorkspaceID,
		Fingerprint:     rec.Fingerprint,
		TinyFingerprint: rec.TinyFingerprint,
		ObjectKey:       rec.ObjectKey,
		FileName:        rec.FileName,
		FilePath:        rec.FilePath,
		CreatedAt:       now,
		UpdatedAt:       now,
	})
	if err != nil {
		return fmt.Errorf("upserting file: %w", err)
	}
	return nil
}

func (r queries) UpsertFingerprintTiny(ctx context.Context, rec *broker.MediaRecord) error {
	now := r.clock.Now().UTC()
	err := r.q.UpsertFingerprintTiny(ctx, sqlc.UpsertFingerprintTinyParams{
		WorkspaceID:     rec.WorkspaceID,
		Fingerprint:     rec.Fingerprint,
		TinyFingerprint: rec.TinyFingerprint,
		FileName:        rec.FileName,
		FilePath:        rec.FilePath,
		CreatedAt:       now,
		UpdatedAt:       now,
	})
	if err != nil {
		return fmt.Errorf("upserting tiny fingerprint: %w", err)
	}
	return nil
}

func (r queries) GetObjectKeyByFingerprint(ctx context.Context, workspaceID, fingerprint string) (string, error) {
	key, err := r.q.GetObjectKeyByFingerprint(ctx, sqlc.GetObjectKeyByFingerprintParams{
		WorkspaceID: workspaceID,
		Fingerprint: fingerprint,
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("getting object key by fingerprint: %w", err)
	}
	return key, nil
}

func (r queries) GetObjectKeyByTiny(ctx context.Context, workspaceID, tinyFingerprint string) (string, error) {
	key, err := r.q.GetObjectKeyByTiny(ctx, sqlc.GetObjectKeyByTinyParams{
		WorkspaceID:     workspaceID,
		TinyFingerprint: tinyFingerprint,
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("getting object key by tiny fingerprint: %w", err)
	}
	return key, nil
}

func (r queries) GetTinyByFingerprint(ctx context.Context, workspaceID, fingerprint string) (string, error) {
	tiny, err := r.q.GetTinyByFingerprint(ctx, sqlc.GetTinyByFingerprintParams{
		WorkspaceID: workspaceID,
		Fingerprint: fingerprint,
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("getting tiny fingerprint: %w", err)
	}
	return tiny, nil
}

func (r queries) DeleteByFingerprint(ctx context.Context, workspaceID, fingerprint string) error {
	err := r.q.DeleteByFingerprint(ctx, sqlc.DeleteByFingerprintParams{
		WorkspaceID: workspaceID,
		Fingerprint: fingerprint,
	})
	if err != nil {
		return fmt.Errorf("deleting by fingerprint: %w", err)
	}
	return nil
}

// DeleteByTiny removes rows sharing tinyFingerprint that carry an object
// key. Pending placeholders are left alone.
func (r queries) DeleteByTiny(ctx context.Context, workspaceID, tinyFingerprint string) error {
	err := r.q.DeleteByTiny(ctx, sqlc.DeleteByTinyParams{
		WorkspaceID:     workspaceID,
		TinyFingerprint: tinyFingerprint,
	})
	if err != nil {
		return fmt.Errorf("deleting by tiny fingerprint: %w", err)
	}
	return nil
}

func (r queries) FindRecord(ctx context.Context, workspaceID, fingerprint string) (*broker.MediaRecord, error) {
	row, err := r.q.GetMediaFile(ctx, sqlc.GetMediaFileParams{
		WorkspaceID: workspaceID,
		Fingerprint: fingerprint,
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding record: %w", err)
	}
	return toRecord(row), nil
}

// ListRecords returns up to limit rows of a workspace, most recently
// updated first. A non-positive limit returns every row.
func (s *SQLiteRegistry) ListRecords(ctx context.Context, workspaceID string, limit int) ([]*broker.MediaRecord, error) {
	lim := int64(limit)
	if lim <= 0 {
		lim = -1 // SQLite treats a negative LIMIT as unbounded
	}
	rows, err := s.q.ListMediaFiles(ctx, sqlc.ListMediaFilesParams{
		WorkspaceID: workspaceID,
		Limit:       lim,
	})
	if err != nil {
		return nil, fmt.Errorf("listing records: %w", err)
	}

	result := make([]*broker.MediaRecord, len(rows))
	for i := range rows {
		result[i] = toRecord(rows[i])
	}
	return result, nil
}

// WithTx runs fn inside one IMMEDIATE transaction. A concurrent reader
// sees either none or all of fn's writes.
func (s *SQLiteRegistry) WithTx(ctx context.Context, fn func(tx broker.RegistryTx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(queries{q: s.q.WithTx(tx), clock: s.clock}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Path returns the database file path (or ":memory:").
func (s *SQLiteRegistry) Path() string {
	return s.path
}

// Migrate applies pending schema migrations.
func (s *SQLiteRegistry) Migrate() error {
	return migrations.MigrateUp(s.db)
}

// CheckMigrations verifies the database schema is up-to-date.
func (s *SQLiteRegistry) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(s.db)
}

// Close closes every pooled connection.
func (s *SQLiteRegistry) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func toRecord(row sqlc.MediaFile) *broker.MediaRecord {
	return &broker.MediaRecord{
		ID:              row.ID,
		WorkspaceID:     row.WorkspaceID,
		Fingerprint:     row.Fingerprint,
		TinyFingerprint: row.TinyFingerprint,
		ObjectKey:       row.ObjectKey,
		FileName:        row.FileName,
		FilePath:        row.FilePath,
		CreatedAt:       row.CreatedAt,
		UpdatedAt:       row.UpdatedAt,
	}
}

// Compile-time checks against the broker interfaces
var (
	_ broker.Registry   = (*SQLiteRegistry)(nil)
	_ broker.RegistryTx = queries{}
)
