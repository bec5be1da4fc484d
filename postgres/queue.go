package postgres

import (
	"database/sql"

	coreq "github.com/flowforge/flowforge/internal/queue"

	pqueue "github.com/flowforge/flowforge/postgres/internal/queue"
)

// NewQueue returns a coreq.Queue backed by a PostgreSQL table, claiming jobs
// with SELECT ... FOR UPDATE SKIP LOCKED.
func NewQueue(db *sql.DB, opts pqueue.Options) (coreq.Queue, error) {
	return pqueue.NewPostgresQueue(db, opts)
}
