package jobstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"listingpilot/internal/domain"
)

// Postgres persists jobs in a jobs table so the API and the standalone worker
// can share state. Stage outputs are stored as a single JSONB document.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a job store backed by the given pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

const schema = `
CREATE TABLE IF NOT EXISTS jobs (
    id              TEXT PRIMARY KEY,
    stage           TEXT NOT NULL DEFAULT 'pending',
    progress        INT NOT NULL DEFAULT 0,
    message         TEXT NOT NULL DEFAULT '',
    error_kind      TEXT,
    error_message   TEXT,
    result          JSONB NOT NULL DEFAULT '{}'::jsonb,
    image_key       TEXT NOT NULL DEFAULT '',
    source_filename TEXT NOT NULL DEFAULT '',
    locale          TEXT NOT NULL DEFAULT 'en',
    claimed_at      TIMESTAMPTZ,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS jobs_stage_idx ON jobs (stage, created_at);
`

// EnsureSchema creates the jobs table when it does not exist yet.
func (s *Postgres) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schema)
	return err
}

func (s *Postgres) Create(ctx context.Context, job *domain.Job) error {
	if job.Stage == "" {
		job.Stage = domain.StagePending
	}
	query := `
INSERT INTO jobs (id, stage, progress, message, image_key, source_filename, locale)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING created_at, updated_at;
`
	row := s.pool.QueryRow(ctx, query,
		job.ID,
		job.Stage,
		job.Progress,
		job.Message,
		job.ImageKey,
		job.SourceFilename,
		job.Locale,
	)
	return row.Scan(&job.CreatedAt, &job.UpdatedAt)
}

func (s *Postgres) Get(ctx context.Context, id string) (*domain.Job, error) {
	query := `
SELECT id, stage, progress, message, error_kind, error_message, result,
       image_key, source_filename, locale, created_at, updated_at
FROM jobs
WHERE id = $1;
`
	return scanJob(s.pool.QueryRow(ctx, query, id))
}

// Update applies the mutation inside a transaction holding a row lock, so
// state-machine validation and the write are atomic per job.
func (s *Postgres) Update(ctx context.Context, id string, update domain.JobUpdate) (*domain.Job, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	query := `
SELECT id, stage, progress, message, error_kind, error_message, result,
       image_key, source_filename, locale, created_at, updated_at
FROM jobs
WHERE id = $1
FOR UPDATE;
`
	job, err := scanJob(tx.QueryRow(ctx, query, id))
	if err != nil {
		return nil, err
	}
	if err := job.Apply(update, time.Now().UTC()); err != nil {
		return nil, err
	}

	resultJSON, err := json.Marshal(job.Result)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	var errKind, errMsg *string
	if job.Error != nil {
		kind := string(job.Error.Kind)
		errKind = &kind
		errMsg = &job.Error.Message
	}
	write := `
UPDATE jobs
SET stage = $2,
    progress = $3,
    message = $4,
    error_kind = $5,
    error_message = $6,
    result = $7,
    updated_at = $8
WHERE id = $1;
`
	if _, err := tx.Exec(ctx, write,
		job.ID, job.Stage, job.Progress, job.Message, errKind, errMsg, resultJSON, job.UpdatedAt,
	); err != nil {
		return nil, fmt.Errorf("update job: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return job, nil
}

func (s *Postgres) PurgeTerminal(ctx context.Context, olderThan time.Duration) (int, error) {
	query := `
DELETE FROM jobs
WHERE stage IN ('ready', 'error', 'cancelled')
  AND updated_at < NOW() - make_interval(secs => $1);
`
	tag, err := s.pool.Exec(ctx, query, olderThan.Seconds())
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// ClaimPending marks the oldest claimable job and returns its id. SKIP LOCKED
// lets concurrent workers claim without contending. A row claimed longer than
// staleAfter ago belongs to a crashed worker, whatever stage it reached; such
// rows are reset to pending so the claiming worker re-runs the pipeline from
// the start (stage caches make the re-run cheap). The reset bypasses the
// state-machine validation on purpose, it is the one sanctioned backwards
// transition.
func (s *Postgres) ClaimPending(ctx context.Context, staleAfter time.Duration) (string, error) {
	query := `
UPDATE jobs
SET stage = 'pending', progress = 0, message = '', claimed_at = NOW(), updated_at = NOW()
WHERE id = (
    SELECT id FROM jobs
    WHERE (stage = 'pending' AND claimed_at IS NULL)
       OR (stage IN ('pending', 'analyzing', 'researching', 'generating')
           AND claimed_at < NOW() - make_interval(secs => $1))
    ORDER BY created_at
    LIMIT 1
    FOR UPDATE SKIP LOCKED
)
RETURNING id;
`
	var id string
	if err := s.pool.QueryRow(ctx, query, staleAfter.Seconds()).Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", domain.ErrNotFound
		}
		return "", err
	}
	return id, nil
}

func scanJob(row pgx.Row) (*domain.Job, error) {
	var (
		job        domain.Job
		errKind    *string
		errMessage *string
		resultJSON []byte
	)
	if err := row.Scan(
		&job.ID,
		&job.Stage,
		&job.Progress,
		&job.Message,
		&errKind,
		&errMessage,
		&resultJSON,
		&job.ImageKey,
		&job.SourceFilename,
		&job.Locale,
		&job.CreatedAt,
		&job.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	if errKind != nil {
		job.Error = &domain.JobError{Kind: domain.ErrorKind(*errKind)}
		if errMessage != nil {
			job.Error.Message = *errMessage
		}
	}
	if len(resultJSON) > 0 {
		if err := json.Unmarshal(resultJSON, &job.Result); err != nil {
			return nil, fmt.Errorf("decode result: %w", err)
		}
	}
	return &job, nil
}

var _ domain.JobStore = (*Postgres)(nil)
