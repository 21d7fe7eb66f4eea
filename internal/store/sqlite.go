package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/theyagu56/pathways-agent/internal/model"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS intakes (
	id         TEXT PRIMARY KEY,
	source     TEXT NOT NULL,
	raw_text   TEXT NOT NULL,
	status     TEXT NOT NULL,
	result     TEXT,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_intakes_status ON intakes(status);
CREATE INDEX IF NOT EXISTS idx_intakes_created ON intakes(created_at);

CREATE TABLE IF NOT EXISTS specialty_cache (
	cache_key   TEXT PRIMARY KEY,
	specialties TEXT NOT NULL,
	cached_at   TIMESTAMP NOT NULL,
	expires_at  TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_specialty_cache_expires ON specialty_cache(expires_at);
`

// SQLiteStore persists intakes and the recommendation cache in a local
// SQLite file. Safe for concurrent use; writes are serialized by the driver.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the database at path.
// Use ":memory:" for an ephemeral store.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrapf(err, "store: open sqlite database %s", path)
	}

	// WAL keeps readers unblocked during pipeline writes.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "store: apply %s", pragma)
		}
	}

	return &SQLiteStore{db: db}, nil
}

// Migrate creates the schema if it does not exist.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteSchema); err != nil {
		return eris.Wrap(err, "store: migrate sqlite schema")
	}
	return nil
}

// Close closes the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateIntake(ctx context.Context, source model.IntakeSource, rawText string) (*model.Intake, error) {
	now := time.Now().UTC()
	intake := &model.Intake{
		ID:        uuid.NewString(),
		Source:    source,
		RawText:   rawText,
		Status:    model.IntakeStatusReceived,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO intakes (id, source, raw_text, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		intake.ID, string(intake.Source), intake.RawText, string(intake.Status),
		intake.CreatedAt, intake.UpdatedAt)
	if err != nil {
		return nil, eris.Wrap(err, "store: insert intake")
	}
	return intake, nil
}

func (s *SQLiteStore) UpdateIntakeStatus(ctx context.Context, intakeID string, status model.IntakeStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE intakes SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), intakeID)
	if err != nil {
		return eris.Wrapf(err, "store: update intake %s status", intakeID)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return eris.Errorf("store: intake %s not found", intakeID)
	}
	return nil
}

func (s *SQLiteStore) UpdateIntakeResult(ctx context.Context, intakeID string, result *model.IntakeResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "store: marshal intake result")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE intakes SET result = ?, status = ?, updated_at = ? WHERE id = ?`,
		string(payload), string(model.IntakeStatusComplete), time.Now().UTC(), intakeID)
	if err != nil {
		return eris.Wrapf(err, "store: update intake %s result", intakeID)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return eris.Errorf("store: intake %s not found", intakeID)
	}
	return nil
}

func (s *SQLiteStore) GetIntake(ctx context.Context, intakeID string) (*model.Intake, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, source, raw_text, status, result, created_at, updated_at
		 FROM intakes WHERE id = ?`, intakeID)
	intake, err := scanIntake(row)
	if err == sql.ErrNoRows {
		return nil, eris.Errorf("store: intake %s not found", intakeID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "store: get intake %s", intakeID)
	}
	return intake, nil
}

func (s *SQLiteStore) ListIntakes(ctx context.Context, filter IntakeFilter) ([]model.Intake, error) {
	query := `SELECT id, source, raw_text, status, result, created_at, updated_at FROM intakes`
	var (
		clauses []string
		args    []any
	)
	if filter.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.Source != "" {
		clauses = append(clauses, "source = ?")
		args = append(args, string(filter.Source))
	}
	for i, clause := range clauses {
		if i == 0 {
			query += " WHERE " + clause
		} else {
			query += " AND " + clause
		}
	}
	query += " ORDER BY created_at DESC"
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += " LIMIT ?"
	args = append(args, limit)
	if filter.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "store: list intakes")
	}
	defer rows.Close()

	intakes := []model.Intake{}
	for rows.Next() {
		intake, err := scanIntake(rows)
		if err != nil {
			return nil, eris.Wrap(err, "store: scan intake row")
		}
		intakes = append(intakes, *intake)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "store: iterate intake rows")
	}
	return intakes, nil
}

func (s *SQLiteStore) GetCachedRecommendation(ctx context.Context, key string) ([]string, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT specialties FROM specialty_cache WHERE cache_key = ? AND expires_at > ?`,
		key, time.Now().UTC()).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "store: get cached recommendation")
	}

	var specialties []string
	if err := json.Unmarshal([]byte(payload), &specialties); err != nil {
		return nil, eris.Wrap(err, "store: decode cached specialties")
	}
	return specialties, nil
}

func (s *SQLiteStore) SetCachedRecommendation(ctx context.Context, key string, specialties []string, ttl time.Duration) error {
	payload, err := json.Marshal(specialties)
	if err != nil {
		return eris.Wrap(err, "store: encode specialties")
	}
	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO specialty_cache (cache_key, specialties, cached_at, expires_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(cache_key) DO UPDATE SET
		   specialties = excluded.specialties,
		   cached_at = excluded.cached_at,
		   expires_at = excluded.expires_at`,
		key, string(payload), now, now.Add(ttl))
	if err != nil {
		return eris.Wrap(err, "store: upsert cached recommendation")
	}
	return nil
}

func (s *SQLiteStore) DeleteExpiredRecommendations(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM specialty_cache WHERE expires_at <= ?`, time.Now().UTC())
	if err != nil {
		return 0, eris.Wrap(err, "store: delete expired recommendations")
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		zap.L().Debug("pruned expired recommendation cache entries", zap.Int64("count", n))
	}
	return int(n), nil
}

func (s *SQLiteStore) ClearRecommendationCache(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM specialty_cache`)
	if err != nil {
		return 0, eris.Wrap(err, "store: clear recommendation cache")
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIntake(row rowScanner) (*model.Intake, error) {
	var (
		intake  model.Intake
		source  string
		status  string
		payload sql.NullString
	)
	err := row.Scan(&intake.ID, &source, &intake.RawText, &status, &payload,
		&intake.CreatedAt, &intake.UpdatedAt)
	if err != nil {
		return nil, err
	}
	intake.Source = model.IntakeSource(source)
	intake.Status = model.IntakeStatus(status)
	if payload.Valid && payload.String != "" {
		var result model.IntakeResult
		if err := json.Unmarshal([]byte(payload.String), &result); err != nil {
			return nil, eris.Wrap(err, "store: decode intake result")
		}
		intake.Result = &result
	}
	return &intake, nil
}
