// Package persistence defines the storage port: three repositories
// (DefinitionStore, InstanceStore, ExecutionStore) that the execution
// engine depends on through interfaces. Concrete backends live alongside
// (MemoryStore, SQLiteStore); postgres/redis/mongo get their own submodules
// so a SQLite-only consumer never pulls in a driver it doesn't need.
package persistence

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/flowforge/flowforge/pkg/api"
)

var (
	// ErrDefinitionNotFound is returned when no matching workflow definition exists.
	ErrDefinitionNotFound = errors.New("persistence: definition not found")

	// ErrInstanceNotFound is returned when no matching workflow instance exists.
	ErrInstanceNotFound = errors.New("persistence: instance not found")

	// ErrAmbiguousVersion is returned by GetActive when a name has no active version.
	ErrAmbiguousVersion = errors.New("persistence: no active version")

	// ErrExecutionNotFound is returned when no matching activity execution exists.
	ErrExecutionNotFound = errors.New("persistence: execution not found")
)

// DefinitionStore handles storage of versioned WorkflowDefinitions.
//
// Save assigns Version = max(existing versions for Name) + 1, writes the
// new row as active, and atomically deactivates every prior version of the
// same Name.
type DefinitionStore interface {
	Save(ctx context.Context, def api.WorkflowDefinition) (api.WorkflowDefinition, error)
	Get(ctx context.Context, name string, version int) (api.WorkflowDefinition, error)
	GetActive(ctx context.Context, name string) (api.WorkflowDefinition, error)
	ListVersions(ctx context.Context, name string) ([]api.WorkflowDefinition, error)
	Deactivate(ctx context.Context, name string, version int) error

	// ListActive returns the single active definition for every distinct
	// name, used by the cron scheduler to rebuild its schedule table.
	ListActive(ctx context.Context) ([]api.WorkflowDefinition, error)

	// List returns every stored version of every definition when
	// includeInactive is true, or the same set ListActive would return
	// otherwise. Used by admin/inspection tooling that needs the full
	// version history, not just what the engine runs.
	List(ctx context.Context, includeInactive bool) ([]api.WorkflowDefinition, error)

	// SetActive flips the IsActive flag on one specific version directly.
	// Unlike Deactivate, it can also reactivate a version; it does not
	// touch any other version's flag, so callers that want "exactly one
	// active version per name" must deactivate the rest themselves (Save
	// already does this for the normal publish path).
	SetActive(ctx context.Context, name string, version int, active bool) error

	// Delete removes one specific version outright.
	Delete(ctx context.Context, name string, version int) error

	// Exists reports whether name has at least one stored version, active
	// or not.
	Exists(ctx context.Context, name string) (bool, error)
}

// InstanceSort orders the results of InstanceStore.Query.
type InstanceSort int

const (
	SortCreatedAtDesc InstanceSort = iota
	SortCreatedAtAsc
	SortUpdatedAtDesc
	SortUpdatedAtAsc
)

// Page bounds the results of InstanceStore.Query. A zero-valued Page
// (Limit == 0) means "no limit."
type Page struct {
	Offset int
	Limit  int
}

// InstanceStats summarizes the instance population for a dashboard or
// health check: a total and a per-status breakdown.
type InstanceStats struct {
	Total    int
	ByStatus map[api.Status]int
}

// InstanceFilter selects instances from an InstanceStore. Zero-valued
// fields mean "no filter" for that field.
type InstanceFilter struct {
	WorkflowName string
	Status       api.Status
	HasStatus    bool // distinguishes StatusPending (0) from "unset"
}

// InstanceStore handles storage of mutable WorkflowInstances. Instance-level
// mutual exclusion is the caller's responsibility (internal/lock), not this
// store's.
type InstanceStore interface {
	Save(ctx context.Context, inst *api.WorkflowInstance) error
	Update(ctx context.Context, inst *api.WorkflowInstance) error
	Get(ctx context.Context, id string) (*api.WorkflowInstance, error)
	List(ctx context.Context, filter InstanceFilter) ([]*api.WorkflowInstance, error)
	// ListStale returns Running instances whose UpdatedAt is older than
	// olderThan, for RecoverStuckInstances.
	ListStale(ctx context.Context, olderThan time.Duration) ([]*api.WorkflowInstance, error)

	// GetByCorrelationID looks up the instance carrying the given
	// CorrelationID. Returns ErrInstanceNotFound if none matches; the
	// caller is responsible for correlation IDs being unique if it relies
	// on that (the store does not enforce it).
	GetByCorrelationID(ctx context.Context, correlationID string) (*api.WorkflowInstance, error)

	// GetByStatus returns up to limit instances in status, in no particular
	// order. limit <= 0 means unbounded.
	GetByStatus(ctx context.Context, status api.Status, limit int) ([]*api.WorkflowInstance, error)

	// Query is List with sorting and pagination, for admin/dashboard
	// listings that page through a potentially large instance population.
	Query(ctx context.Context, filter InstanceFilter, sort InstanceSort, page Page) ([]*api.WorkflowInstance, error)

	// Delete removes an instance and its association with any indexes.
	// It does not cascade to the instance's ActivityExecution history.
	Delete(ctx context.Context, id string) error

	// Stats reports a total instance count and a breakdown by status.
	Stats(ctx context.Context) (InstanceStats, error)
}

// ExecutionStore is an append-only history store for ActivityExecution
// attempts.
type ExecutionStore interface {
	Append(ctx context.Context, exec api.ActivityExecution) error
	ListByInstance(ctx context.Context, instanceID string) ([]api.ActivityExecution, error)

	// Get fetches a single execution attempt by its ID.
	Get(ctx context.Context, id string) (api.ActivityExecution, error)

	// GetLatest returns the most recent attempt recorded for activityID
	// within instanceID.
	GetLatest(ctx context.Context, instanceID, activityID string) (api.ActivityExecution, error)
}

// SortInstances orders in place by the given InstanceSort. Backends that
// can push sorting into a query (SQL ORDER BY, a Mongo sort option) do so
// instead of calling this; it exists for backends with no native sort
// (MemoryInstanceStore, RedisInstanceStore) and as the one place the sort
// semantics are defined.
func SortInstances(instances []*api.WorkflowInstance, order InstanceSort) {
	sort.Slice(instances, func(i, j int) bool {
		switch order {
		case SortCreatedAtAsc:
			return instances[i].CreatedAt.Before(instances[j].CreatedAt)
		case SortUpdatedAtDesc:
			return instances[i].UpdatedAt.After(instances[j].UpdatedAt)
		case SortUpdatedAtAsc:
			return instances[i].UpdatedAt.Before(instances[j].UpdatedAt)
		default: // SortCreatedAtDesc
			return instances[i].CreatedAt.After(instances[j].CreatedAt)
		}
	})
}

// Paginate slices instances to page's offset/limit. Limit <= 0 means no cap.
func Paginate(instances []*api.WorkflowInstance, page Page) []*api.WorkflowInstance {
	if page.Offset >= len(instances) {
		return nil
	}
	instances = instances[page.Offset:]
	if page.Limit > 0 && page.Limit < len(instances) {
		instances = instances[:page.Limit]
	}
	return instances
}
