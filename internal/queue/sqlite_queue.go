package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/flowforge/flowforge/pkg/api"
)

// SQLiteQueue is a Queue backed by two tables: "jobs" (pending and
// in-flight) and "dead_jobs" (exhausted attempts). Pop claims the eligible
// row with the lowest Priority value, earliest-queued first, inside a
// transaction whose conditional UPDATE lets only one caller claim a row,
// with a visibility timeout so an in-flight job becomes
// re-poppable if its worker crashes before Ack/Nack.
//
// It expects an *sql.DB that uses a SQLite driver (for example,
// "modernc.org/sqlite"). The caller is responsible for importing the
// driver, e.g.:
//
//	import _ "modernc.org/sqlite"
type SQLiteQueue struct {
	db                *sql.DB
	pollInterval      time.Duration
	visibilityTimeout time.Duration
	maxAttempts       int
}

var _ Queue = (*SQLiteQueue)(nil)
var _ DeadLetterReader = (*SQLiteQueue)(nil)

// SQLiteQueueOptions configures a SQLiteQueue. Zero values use defaults.
type SQLiteQueueOptions struct {
	PollInterval      time.Duration
	VisibilityTimeout time.Duration
	MaxAttempts       int
}

// NewSQLiteQueue initializes the required schema in db and returns a new
// SQLiteQueue.
func NewSQLiteQueue(db *sql.DB, opts SQLiteQueueOptions) (*SQLiteQueue, error) {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 20 * time.Millisecond
	}
	if opts.VisibilityTimeout <= 0 {
		opts.VisibilityTimeout = 30 * time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = MaxAttempts
	}
	q := &SQLiteQueue{
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

func (q *SQLiteQueue) initSchema() error {
	_, err := q.db.Exec(`
		CREATE TABLE IF NOT EXISTS jobs (
			message_id TEXT PRIMARY KEY,
			instance_id TEXT NOT NULL,
			activity_id TEXT,
			type INTEGER NOT NULL,
			queued_at INTEGER NOT NULL,
			priority INTEGER NOT NULL,
			attempt INTEGER NOT NULL,
			invisible_until INTEGER NOT NULL DEFAULT 0
		);
		CREATE TABLE IF NOT EXISTS dead_jobs (
			message_id TEXT PRIMARY KEY,
			payload BLOB NOT NULL
		);`,
	)
	return err
}

func (q *SQLiteQueue) Publish(ctx context.Context, job api.Job) (api.Job, error) {
	job = prepare(job, uuid.NewString, time.Now)

	_, err := q.db.ExecContext(ctx, `
		INSERT INTO jobs (message_id, instance_id, activity_id, type, queued_at, priority, attempt, invisible_until)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0)`,
		job.MessageID, job.InstanceID, job.ActivityID, int(job.Type), job.QueuedAt.UnixNano(), job.Priority, job.Attempt,
	)
	if err != nil {
		return api.Job{}, err
	}
	return job, nil
}

func (q *SQLiteQueue) Pop(ctx context.Context) (*api.Job, error) {
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

func (q *SQLiteQueue) tryClaim(ctx context.Context) (*api.Job, error) {
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
		WHERE invisible_until <= ?
		ORDER BY priority ASC, queued_at ASC
		LIMIT 1`, now.UnixNano())
	err = row.Scan(&messageID, &instanceID, &activityID, &jobType, &queuedAt, &priority, &attempt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	invisibleUntil := now.Add(q.visibilityTimeout).UnixNano()
	res, err := tx.ExecContext(ctx, `
		UPDATE jobs SET invisible_until = ?
		WHERE message_id = ? AND invisible_until <= ?`,
		invisibleUntil, messageID, now.UnixNano())
	if err != nil {
		return nil, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		// Another Pop() claimed this row between our SELECT and UPDATE; the
		// row is no longer ours to hand out.
		return nil, nil
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

func (q *SQLiteQueue) Ack(ctx context.Context, messageID string) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM jobs WHERE message_id = ?`, messageID)
	return err
}

func (q *SQLiteQueue) Nack(ctx context.Context, messageID string, requeue bool) error {
	if !requeue {
		_, err := q.db.ExecContext(ctx, `DELETE FROM jobs WHERE message_id = ?`, messageID)
		return err
	}

	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var attempt int
	row := tx.QueryRowContext(ctx, `SELECT attempt FROM jobs WHERE message_id = ?`, messageID)
	if err := row.Scan(&attempt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return err
	}
	attempt++

	if attempt >= q.maxAttempts {
		row := tx.QueryRowContext(ctx, `SELECT message_id, instance_id, activity_id, type, queued_at, priority, attempt FROM jobs WHERE message_id = ?`, messageID)
		var job api.Job
		var activityID sql.NullString
		var jobType int
		var queuedAt int64
		if err := row.Scan(&job.MessageID, &job.InstanceID, &activityID, &jobType, &queuedAt, &job.Priority, &job.Attempt); err != nil {
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
		if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO dead_jobs (message_id, payload) VALUES (?, ?)`, messageID, payload); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM jobs WHERE message_id = ?`, messageID); err != nil {
			return err
		}
		return tx.Commit()
	}

	if _, err := tx.ExecContext(ctx, `UPDATE jobs SET attempt = ?, invisible_until = 0 WHERE message_id = ?`, attempt, messageID); err != nil {
		return err
	}
	return tx.Commit()
}

func (q *SQLiteQueue) DeadLetters(ctx context.Context) ([]api.Job, error) {
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
