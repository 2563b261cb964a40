package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS versions (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	repository   TEXT    NOT NULL,
	version      TEXT    NOT NULL,
	last_updated INTEGER NOT NULL,
	UNIQUE (repository, version)
);
CREATE TABLE IF NOT EXISTS invalid_versions (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	repository   TEXT    NOT NULL,
	version      TEXT    NOT NULL,
	last_updated INTEGER NOT NULL,
	UNIQUE (repository, version)
);
CREATE INDEX IF NOT EXISTS idx_versions_repository ON versions (repository);
CREATE INDEX IF NOT EXISTS idx_invalid_versions_repository ON invalid_versions (repository);
`

type sqliteStore struct {
	db *sql.DB
}

var _ VersionStore = (*sqliteStore)(nil)

// NewSQLiteStore opens (creating if needed) a SQLite database at path and
// ensures the schema exists. Timestamps are stored as Unix nanoseconds; tables
// written by the previous tool are converted on open.
func NewSQLiteStore(ctx context.Context, path string) (VersionStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// SQLite allows a single writer; one connection serializes all writes.
	db.SetMaxOpenConns(1)

	if err := prepareSchema(ctx, db); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("Failed to close sqlite database after schema failure", "error", closeErr)
		}
		return nil, err
	}

	slog.Debug("SQLite version store opened", "path", path)
	return &sqliteStore{db: db}, nil
}

// legacyTimestampLayout matches timestamps written as "2024-05-01 10:00:00.123456 UTC".
// Fractional seconds are optional when parsing.
const legacyTimestampLayout = "2006-01-02 15:04:05"

// legacyTables lists tables in copy order; published rows win over rejected ones.
var legacyTables = []string{"versions", "invalid_versions"}

// prepareSchema creates the schema, first converting tables left by the
// previous version of the tool (text timestamps, no uniqueness) in place.
func prepareSchema(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin schema transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	var legacy []string
	for _, table := range legacyTables {
		isLegacy, err := isLegacyTable(ctx, tx, table)
		if err != nil {
			return err
		}
		if !isLegacy {
			continue
		}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %s RENAME TO legacy_%s", table, table)); err != nil {
			return fmt.Errorf("failed to rename legacy table %s: %w", table, err)
		}
		legacy = append(legacy, table)
	}

	if _, err := tx.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("failed to create sqlite schema: %w", err)
	}

	for _, table := range legacy {
		copied, err := copyLegacyTable(ctx, tx, table)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("DROP TABLE legacy_%s", table)); err != nil {
			return fmt.Errorf("failed to drop legacy table %s: %w", table, err)
		}
		slog.Info("Migrated legacy version table", "table", table, "rows", copied)
	}
	return tx.Commit()
}

// isLegacyTable reports whether table exists with a non-integer last_updated column.
func isLegacyTable(ctx context.Context, tx *sql.Tx, table string) (bool, error) {
	var columnType string
	err := tx.QueryRowContext(ctx,
		"SELECT type FROM pragma_table_info(?) WHERE name = 'last_updated'", table,
	).Scan(&columnType)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("failed to inspect table %s: %w", table, err)
	}
	return !strings.EqualFold(columnType, "INTEGER"), nil
}

func copyLegacyTable(ctx context.Context, tx *sql.Tx, table string) (int, error) {
	rows, err := tx.QueryContext(ctx, fmt.Sprintf(
		"SELECT repository, version, CAST(last_updated AS TEXT) FROM legacy_%s ORDER BY id", table))
	if err != nil {
		return 0, fmt.Errorf("failed to read legacy table %s: %w", table, err)
	}
	type legacyRow struct {
		repository, version string
		at                  time.Time
	}
	var pending []legacyRow
	for rows.Next() {
		var r legacyRow
		var raw string
		if err := rows.Scan(&r.repository, &r.version, &raw); err != nil {
			rows.Close()
			return 0, fmt.Errorf("failed to scan legacy row: %w", err)
		}
		r.at = parseLegacyTimestamp(raw)
		pending = append(pending, r)
	}
	if err := rows.Close(); err != nil {
		return 0, err
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}

	insert := fmt.Sprintf("INSERT INTO %s (repository, version, last_updated) VALUES (?, ?, ?) "+
		"ON CONFLICT (repository, version) DO UPDATE SET last_updated = MAX(last_updated, excluded.last_updated)", table)
	if table == "invalid_versions" {
		insert = `INSERT INTO invalid_versions (repository, version, last_updated)
SELECT ?1, ?2, ?3
WHERE NOT EXISTS (SELECT 1 FROM versions WHERE repository = ?1 AND version = ?2)
ON CONFLICT (repository, version) DO UPDATE SET last_updated = MAX(last_updated, excluded.last_updated)`
	}
	for _, r := range pending {
		if _, err := tx.ExecContext(ctx, insert, r.repository, r.version, r.at.UnixNano()); err != nil {
			return 0, fmt.Errorf("failed to copy legacy row into %s: %w", table, err)
		}
	}
	return len(pending), nil
}

// parseLegacyTimestamp falls back to the zero Unix time for unparseable
// values, which leaves the repository eligible for the next sync.
func parseLegacyTimestamp(raw string) time.Time {
	raw = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(raw), "UTC"))
	if at, err := time.ParseInLocation(legacyTimestampLayout, raw, time.UTC); err == nil {
		return at
	}
	if at, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return at
	}
	slog.Warn("Unparseable legacy timestamp", "value", raw)
	return time.Unix(0, 0)
}

func (s *sqliteStore) GetPublished(ctx context.Context, repository string) (VersionSet, error) {
	return s.versions(ctx, "SELECT version FROM versions WHERE repository = ?", repository)
}

func (s *sqliteStore) GetRejected(ctx context.Context, repository string) (VersionSet, error) {
	return s.versions(ctx, "SELECT version FROM invalid_versions WHERE repository = ?", repository)
}

func (s *sqliteStore) versions(ctx context.Context, query, repository string) (VersionSet, error) {
	rows, err := s.db.QueryContext(ctx, query, repository)
	if err != nil {
		return nil, fmt.Errorf("failed to query versions: %w", err)
	}
	defer rows.Close()

	set := VersionSet{}
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("failed to scan version: %w", err)
		}
		set.Add(version)
	}
	return set, rows.Err()
}

func (s *sqliteStore) PutPublished(ctx context.Context, repository, version string, at time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	var exists int
	err = tx.QueryRowContext(ctx,
		"SELECT 1 FROM invalid_versions WHERE repository = ? AND version = ?", repository, version,
	).Scan(&exists)
	switch {
	case err == nil:
		return ErrVersionRejected
	case !errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("failed to check rejected versions: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT OR IGNORE INTO versions (repository, version, last_updated) VALUES (?, ?, ?)",
		repository, version, at.UnixNano(),
	); err != nil {
		return fmt.Errorf("failed to insert published version: %w", err)
	}
	return tx.Commit()
}

func (s *sqliteStore) PutRejected(ctx context.Context, repository, version string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
INSERT OR IGNORE INTO invalid_versions (repository, version, last_updated)
SELECT ?, ?, ?
WHERE NOT EXISTS (SELECT 1 FROM versions WHERE repository = ? AND version = ?)`,
		repository, version, at.UnixNano(), repository, version,
	)
	if err != nil {
		return fmt.Errorf("failed to insert rejected version: %w", err)
	}
	return nil
}

func (s *sqliteStore) LastActivity(ctx context.Context, repository string) (*time.Time, error) {
	var newest sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
SELECT MAX(last_updated) FROM (
	SELECT last_updated FROM versions WHERE repository = ?
	UNION ALL
	SELECT last_updated FROM invalid_versions WHERE repository = ?
)`, repository, repository).Scan(&newest)
	if err != nil {
		return nil, fmt.Errorf("failed to query last activity: %w", err)
	}
	if !newest.Valid {
		return nil, nil
	}
	t := time.Unix(0, newest.Int64)
	return &t, nil
}

func (s *sqliteStore) ListRepositories(ctx context.Context) ([]RepositorySummary, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT repository, version, last_updated, 0 FROM versions
UNION ALL
SELECT repository, version, last_updated, 1 FROM invalid_versions
ORDER BY 1, 2`)
	if err != nil {
		return nil, fmt.Errorf("failed to list repositories: %w", err)
	}
	defer rows.Close()

	byRepo := map[string]*RepositorySummary{}
	for rows.Next() {
		var (
			repository, version string
			updated             int64
			rejected            int
		)
		if err := rows.Scan(&repository, &version, &updated, &rejected); err != nil {
			return nil, fmt.Errorf("failed to scan repository row: %w", err)
		}
		summary, ok := byRepo[repository]
		if !ok {
			summary = &RepositorySummary{Repository: repository, Published: []string{}, Rejected: []string{}}
			byRepo[repository] = summary
		}
		if rejected == 1 {
			summary.Rejected = append(summary.Rejected, version)
		} else {
			summary.Published = append(summary.Published, version)
		}
		at := time.Unix(0, updated)
		if summary.LastActivity == nil || at.After(*summary.LastActivity) {
			summary.LastActivity = &at
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	summaries := make([]RepositorySummary, 0, len(byRepo))
	for _, summary := range byRepo {
		summaries = append(summaries, *summary)
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].Repository < summaries[j].Repository
	})
	return summaries, nil
}

func (s *sqliteStore) Close() error {
	return s.db.Close()
}
