// Package queue implements queue.Queue backed by a PostgreSQL table,
// claiming rows with SELECT ... FOR UPDATE SKIP LOCKED so concurrent
// workers never block each other on a contended poll.
package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	coreq "github.com/flowforge/flowforge/internal/queue"
	"github.com/flowforge/flowforge/pkg/api"
)

// PostgresQueue is a coreq.Queue backed by PostgreSQL.
//
// It expects an *sql.DB opened against a PostgreSQL driver (for example
// "github.com/jackc/pgx/v5/stdlib").
type PostgresQueue struct {
	db                *sql.DB
	pollInterval      time.Duration
	visibilityTimeout time.Duration
	maxAttempts       int
}

var _ coreq.Queue = (*PostgresQueue)(nil)
var _ coreq.DeadLetterReader = (*PostgresQueue)(nil)

// Options configures a PostgresQueue. Zero values use defaults.
type Options struct {
	PollInterval      time.Duration
	VisibilityTimeout time.Duration
	MaxAttempts       int
}

// NewPostgresQueue initializes the required schema and returns a new
// PostgresQueue.
func NewPostgresQueue(db *sql.DB, opts Options) (*PostgresQueue, error) {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 20 * time.Millisecond
	}
	if opts.VisibilityTimeout <= 0 {
		opts.VisibilityTimeout = 30 * time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = coreq.MaxAttempts
	}
	q := &PostgresQueue{
		db:                db,
		pollInterval:      opts.PollInterval,
		visibilityTimeout: opts.VisibilityTimeout,
		maxAttempts:       opts.MaxAttempts,
	}
	if err := q.initSchema(); err != nil {
		return nil, err
	}
	return q, nil
}

func (q *PostgresQueue) initSchema() error {
	_, err := q.db.Exec(`
		CREATE TABLE IF NOT EXISTS jobs (
			message_id TEXT PRIMARY KEY,
			instance_id TEXT NOT NULL,
			activity_id TEXT,
			type INTEGER NOT NULL,
			queued_at BIGINT NOT NULL,
			priority INTEGER NOT NULL,
			attempt INTEGER NOT NULL,
			invisible_until BIGINT NOT NULL DEFAULT 0
		);
		CREATE TABLE IF NOT EXISTS dead_jobs (
			message_id TEXT PRIMARY KEY,
			payload BYTEA NOT NULL
		);`,
	)
	return err
}

func (q *PostgresQueue) Publish(ctx context.Context, job api.Job) (api.Job, error) {
	if job.MessageID == "" {
		job.MessageID = uuid.NewString()
	}
	if job.QueuedAt.IsZero() {
		job.QueuedAt = time.Now()
	}

	_, err := q.db.ExecContext(ctx, `
		INSERT INTO jobs (message_id, instance_id, activity_id, type, queued_at, priority, attempt, invisible_until)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 0)`,
		job.MessageID, job.InstanceID, job.ActivityID, int(job.Type), job.QueuedAt.UnixNano(), job.Priority, job.Attempt,
	)
	if err != nil {
		return api.Job{}, err
	}
	return job, nil
}

func (q *PostgresQueue) Pop(ctx context.Context) (*api.Job, error) {
	for {
		job, err := q.tryClaim(ctx)
		if err != nil {
			return nil, err
		}
		if job != nil {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(q.pollInterval):
		}
	}
}

func (q *PostgresQueue) tryClaim(ctx context.Context) (*api.Job, error) {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	now := time.Now()

	var (
		messageID  string
		instanceID string
		activityID sql.NullString
		jobType    int
		queuedAt   int64
		priority   int
		attempt    int
	)
	row := tx.QueryRowContext(ctx, `
		SELECT message_id, instance_id, activity_id, type, queued_at, priority, attempt
		FROM jobs
		WHERE invisible_until <= $1
		ORDER BY priority ASC, queued_at ASC
		FOR UPDATE SKIP LOCKED
		LIMIT 1`, now.UnixNano())
	err = row.Scan(&messageID, &instanceID, &activityID, &jobType, &queuedAt, &priority, &attempt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	invisibleUntil := now.Add(q.visibilityTimeout).UnixNano()
	if _, err := tx.ExecContext(ctx, `UPDATE jobs SET invisible_until = $1 WHERE message_id = $2`, invisibleUntil, messageID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	job := &api.Job{
		MessageID:  messageID,
		InstanceID: instanceID,
		Type:       api.JobType(jobType),
		QueuedAt:   time.Unix(0, queuedAt),
		Priority:   priority,
		Attempt:    attempt,
	}
	if activityID.Valid {
		job.ActivityID = activityID.String
	}
	return job, nil
}

func (q *PostgresQueue) Ack(ctx context.Context, messageID string) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM jobs WHERE message_id = $1`, messageID)
	return err
}

func (q *PostgresQueue) Nack(ctx context.Context, messageID string, requeue bool) error {
	if !requeue {
		_, err := q.db.ExecContext(ctx, `DELETE FROM jobs WHERE message_id = $1`, messageID)
		return err
	}

	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var attempt int
	row := tx.QueryRowContext(ctx, `SELECT attempt FROM jobs WHERE message_id = $1 FOR UPDATE`, messageID)
	if err := row.Scan(&attempt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return err
	}
	attempt++

	if attempt >= q.maxAttempts {
		row := tx.QueryRowContext(ctx, `SELECT message_id, instance_id, activity_id, type, queued_at, priority FROM jobs WHERE message_id = $1`, messageID)
		var job api.Job
		var activityID sql.NullString
		var jobType int
		var queuedAt int64
		if err := row.Scan(&job.MessageID, &job.InstanceID, &activityID, &jobType, &queuedAt, &job.Priority); err != nil {
			return err
		}
		job.Type = api.JobType(jobType)
		job.QueuedAt = time.Unix(0, queuedAt)
		job.Attempt = attempt
		if activityID.Valid {
			job.ActivityID = activityID.String
		}
		payload, err := json.Marshal(job)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO dead_jobs (message_id, payload) VALUES ($1, $2) ON CONFLICT (message_id) DO UPDATE SET payload = EXCLUDED.payload`, messageID, payload); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM jobs WHERE message_id = $1`, messageID); err != nil {
			return err
		}
		return tx.Commit()
	}

	if _, err := tx.ExecContext(ctx, `UPDATE jobs SET attempt = $1, invisible_until = 0 WHERE message_id = $2`, attempt, messageID); err != nil {
		return err
	}
	return tx.Commit()
}

func (q *PostgresQueue) DeadLetters(ctx context.Context) ([]api.Job, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT payload FROM dead_jobs`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []api.Job
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var job api.Job
		if err := json.Unmarshal(payload, &job); err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, rows.Err()
}
