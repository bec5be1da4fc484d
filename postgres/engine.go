package postgres

import (
	"database/sql"

	coreengine "github.com/flowforge/flowforge/internal/engine"
	corelock "github.com/flowforge/flowforge/internal/lock"
	"github.com/flowforge/flowforge/internal/registry"
	"github.com/flowforge/flowforge/pkg/api"

	plock "github.com/flowforge/flowforge/postgres/internal/lock"
	ppersistence "github.com/flowforge/flowforge/postgres/internal/persistence"
)

// Stores bundles the three PostgreSQL-backed persistence repositories,
// mirroring internal/persistence.MemoryStore.
type Stores struct {
	Definitions *ppersistence.PostgresDefinitionStore
	Instances   *ppersistence.PostgresInstanceStore
	Executions  *ppersistence.PostgresExecutionStore
}

// NewStores initializes schema for, and returns, a Stores backed by db.
func NewStores(db *sql.DB) (*Stores, error) {
	defs, err := ppersistence.NewPostgresDefinitionStore(db)
	if err != nil {
		return nil, err
	}
	insts, err := ppersistence.NewPostgresInstanceStore(db)
	if err != nil {
		return nil, err
	}
	execs, err := ppersistence.NewPostgresExecutionStore(db)
	if err != nil {
		return nil, err
	}
	return &Stores{Definitions: defs, Instances: insts, Executions: execs}, nil
}

// NewLocker returns a corelock.Locker backed by a PostgreSQL table.
func NewLocker(db *sql.DB) (corelock.Locker, error) {
	return plock.NewPostgresLocker(db)
}

// NewEngine returns an api.Engine whose definitions, instances, and
// execution history live in PostgreSQL, and whose per-instance locking is a
// PostgreSQL-backed distributed lock rather than an in-process mutex.
func NewEngine(db *sql.DB, reg *registry.Registry, obs api.Observer) (api.Engine, error) {
	stores, err := NewStores(db)
	if err != nil {
		return nil, err
	}
	locker, err := NewLocker(db)
	if err != nil {
		return nil, err
	}
	return coreengine.New(coreengine.Deps{
		Definitions: stores.Definitions,
		Instances:   stores.Instances,
		Executions:  stores.Executions,
		Locker:      locker,
		Registry:    reg,
		Observer:    obs,
		Config:      api.DefaultConfig(),
	}), nil
}
