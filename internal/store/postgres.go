package store

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/theyagu56/pathways-agent/internal/model"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS intakes (
	id         TEXT PRIMARY KEY,
	source     TEXT NOT NULL,
	raw_text   TEXT NOT NULL,
	status     TEXT NOT NULL,
	result     JSONB,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_intakes_status ON intakes(status);
CREATE INDEX IF NOT EXISTS idx_intakes_created ON intakes(created_at);

CREATE TABLE IF NOT EXISTS specialty_cache (
	cache_key   TEXT PRIMARY KEY,
	specialties JSONB NOT NULL,
	cached_at   TIMESTAMPTZ NOT NULL,
	expires_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_specialty_cache_expires ON specialty_cache(expires_at);
`

// Pool is the subset of pgxpool.Pool the store needs. Tests substitute a
// pgxmock pool.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresStore persists intakes and the recommendation cache in Postgres.
type PostgresStore struct {
	pool Pool
}

// NewPostgresStore connects to the database at databaseURL.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, eris.Wrap(err, "store: connect to postgres")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "store: ping postgres")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresStoreWithPool wraps an existing pool. Used by tests.
func NewPostgresStoreWithPool(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresSchema); err != nil {
		return eris.Wrap(err, "store: migrate postgres schema")
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) CreateIntake(ctx context.Context, source model.IntakeSource, rawText string) (*model.Intake, error) {
	now := time.Now().UTC()
	intake := &model.Intake{
		ID:        uuid.NewString(),
		Source:    source,
		RawText:   rawText,
		Status:    model.IntakeStatusReceived,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO intakes (id, source, raw_text, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		intake.ID, string(intake.Source), intake.RawText, string(intake.Status),
		intake.CreatedAt, intake.UpdatedAt)
	if err != nil {
		return nil, eris.Wrap(err, "store: insert intake")
	}
	return intake, nil
}

func (s *PostgresStore) UpdateIntakeStatus(ctx context.Context, intakeID string, status model.IntakeStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE intakes SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), time.Now().UTC(), intakeID)
	if err != nil {
		return eris.Wrapf(err, "store: update intake %s status", intakeID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("store: intake %s not found", intakeID)
	}
	return nil
}

func (s *PostgresStore) UpdateIntakeResult(ctx context.Context, intakeID string, result *model.IntakeResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "store: marshal intake result")
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE intakes SET result = $1, status = $2, updated_at = $3 WHERE id = $4`,
		payload, string(model.IntakeStatusComplete), time.Now().UTC(), intakeID)
	if err != nil {
		return eris.Wrapf(err, "store: update intake %s result", intakeID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("store: intake %s not found", intakeID)
	}
	return nil
}

func (s *PostgresStore) GetIntake(ctx context.Context, intakeID string) (*model.Intake, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, source, raw_text, status, result, created_at, updated_at
		 FROM intakes WHERE id = $1`, intakeID)
	intake, err := scanPgIntake(row)
	if err == pgx.ErrNoRows {
		return nil, eris.Errorf("store: intake %s not found", intakeID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "store: get intake %s", intakeID)
	}
	return intake, nil
}

func (s *PostgresStore) ListIntakes(ctx context.Context, filter IntakeFilter) ([]model.Intake, error) {
	query := `SELECT id, source, raw_text, status, result, created_at, updated_at FROM intakes`
	var (
		clauses []string
		args    []any
	)
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		clauses = append(clauses, "status = $"+strconv.Itoa(len(args)))
	}
	if filter.Source != "" {
		args = append(args, string(filter.Source))
		clauses = append(clauses, "source = $"+strconv.Itoa(len(args)))
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
	args = append(args, limit)
	query += " LIMIT $" + strconv.Itoa(len(args))
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += " OFFSET $" + strconv.Itoa(len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "store: list intakes")
	}
	defer rows.Close()

	intakes := []model.Intake{}
	for rows.Next() {
		intake, err := scanPgIntake(rows)
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

func (s *PostgresStore) GetCachedRecommendation(ctx context.Context, key string) ([]string, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx,
		`SELECT specialties FROM specialty_cache WHERE cache_key = $1 AND expires_at > $2`,
		key, time.Now().UTC()).Scan(&payload)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "store: get cached recommendation")
	}

	var specialties []string
	if err := json.Unmarshal(payload, &specialties); err != nil {
		return nil, eris.Wrap(err, "store: decode cached specialties")
	}
	return specialties, nil
}

func (s *PostgresStore) SetCachedRecommendation(ctx context.Context, key string, specialties []string, ttl time.Duration) error {
	payload, err := json.Marshal(specialties)
	if err != nil {
		return eris.Wrap(err, "store: encode specialties")
	}
	now := time.Now().UTC()
	_, err = s.pool.Exec(ctx,
		`INSERT INTO specialty_cache (cache_key, specialties, cached_at, expires_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (cache_key) DO UPDATE SET
		   specialties = EXCLUDED.specialties,
		   cached_at = EXCLUDED.cached_at,
		   expires_at = EXCLUDED.expires_at`,
		key, payload, now, now.Add(ttl))
	if err != nil {
		return eris.Wrap(err, "store: upsert cached recommendation")
	}
	return nil
}

func (s *PostgresStore) DeleteExpiredRecommendations(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM specialty_cache WHERE expires_at <= $1`, time.Now().UTC())
	if err != nil {
		return 0, eris.Wrap(err, "store: delete expired recommendations")
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) ClearRecommendationCache(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM specialty_cache`)
	if err != nil {
		return 0, eris.Wrap(err, "store: clear recommendation cache")
	}
	return int(tag.RowsAffected()), nil
}

func scanPgIntake(row rowScanner) (*model.Intake, error) {
	var (
		intake  model.Intake
		source  string
		status  string
		payload []byte
	)
	err := row.Scan(&intake.ID, &source, &intake.RawText, &status, &payload,
		&intake.CreatedAt, &intake.UpdatedAt)
	if err != nil {
		return nil, err
	}
	intake.Source = model.IntakeSource(source)
	intake.Status = model.IntakeStatus(status)
	if len(payload) > 0 {
		var result model.IntakeResult
		if err := json.Unmarshal(payload, &result); err != nil {
			return nil, eris.Wrap(err, "store: decode intake result")
		}
		intake.Result = &result
	}
	return &intake, nil
}

