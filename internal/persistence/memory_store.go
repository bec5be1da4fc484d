package persistence

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/flowforge/flowforge/pkg/api"
)

// MemoryStore bundles an in-memory DefinitionStore, InstanceStore, and
// ExecutionStore. Each field satisfies its interface independently; Go's
// single method-namespace-per-type rule rules out a single type
// implementing all three (DefinitionStore.Get and InstanceStore.Get would
// collide).
type MemoryStore struct {
	Definitions *MemoryDefinitionStore
	Instances   *MemoryInstanceStore
	Executions  *MemoryExecutionStore
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		Definitions: NewMemoryDefinitionStore(),
		Instances:   NewMemoryInstanceStore(),
		Executions:  NewMemoryExecutionStore(),
	}
}

// MemoryDefinitionStore is a goroutine-safe, map-backed DefinitionStore.
type MemoryDefinitionStore struct {
	mu       sync.RWMutex
	versions map[string][]api.WorkflowDefinition // keyed by Name
}

func NewMemoryDefinitionStore() *MemoryDefinitionStore {
	return &MemoryDefinitionStore{versions: make(map[string][]api.WorkflowDefinition)}
}

var _ DefinitionStore = (*MemoryDefinitionStore)(nil)

func (s *MemoryDefinitionStore) Save(ctx context.Context, def api.WorkflowDefinition) (api.WorkflowDefinition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	versions := s.versions[def.Name]
	maxVersion := 0
	for i := range versions {
		versions[i].IsActive = false
		if versions[i].Version > maxVersion {
			maxVersion = versions[i].Version
		}
	}
	def.Version = maxVersion + 1
	def.IsActive = true
	if def.CreatedAt.IsZero() {
		def.CreatedAt = time.Now()
	}
	versions = append(versions, def)
	s.versions[def.Name] = versions
	return def, nil
}

func (s *MemoryDefinitionStore) Get(ctx context.Context, name string, version int) (api.WorkflowDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, d := range s.versions[name] {
		if d.Version == version {
			return d, nil
		}
	}
	return api.WorkflowDefinition{}, ErrDefinitionNotFound
}

func (s *MemoryDefinitionStore) GetActive(ctx context.Context, name string) (api.WorkflowDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, d := range s.versions[name] {
		if d.IsActive {
			return d, nil
		}
	}
	return api.WorkflowDefinition{}, ErrAmbiguousVersion
}

func (s *MemoryDefinitionStore) ListVersions(ctx context.Context, name string) ([]api.WorkflowDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]api.WorkflowDefinition, len(s.versions[name]))
	copy(out, s.versions[name])
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

func (s *MemoryDefinitionStore) ListActive(ctx context.Context) ([]api.WorkflowDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []api.WorkflowDefinition
	for _, versions := range s.versions {
		for _, d := range versions {
			if d.IsActive {
				out = append(out, d)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *MemoryDefinitionStore) Deactivate(ctx context.Context, name string, version int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	versions := s.versions[name]
	for i := range versions {
		if versions[i].Version == version {
			versions[i].IsActive = false
			return nil
		}
	}
	return ErrDefinitionNotFound
}

func (s *MemoryDefinitionStore) List(ctx context.Context, includeInactive bool) ([]api.WorkflowDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []api.WorkflowDefinition
	for _, versions := range s.versions {
		for _, d := range versions {
			if d.IsActive || includeInactive {
				out = append(out, d)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Version < out[j].Version
	})
	return out, nil
}

func (s *MemoryDefinitionStore) SetActive(ctx context.Context, name string, version int, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	versions := s.versions[name]
	for i := range versions {
		if versions[i].Version == version {
			versions[i].IsActive = active
			return nil
		}
	}
	return ErrDefinitionNotFound
}

func (s *MemoryDefinitionStore) Delete(ctx context.Context, name string, version int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	versions := s.versions[name]
	for i := range versions {
		if versions[i].Version == version {
			s.versions[name] = append(versions[:i], versions[i+1:]...)
			return nil
		}
	}
	return ErrDefinitionNotFound
}

func (s *MemoryDefinitionStore) Exists(ctx context.Context, name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.versions[name]) > 0, nil
}

// MemoryInstanceStore is a goroutine-safe, map-backed InstanceStore.
type MemoryInstanceStore struct {
	mu        sync.RWMutex
	instances map[string]*api.WorkflowInstance
}

func NewMemoryInstanceStore() *MemoryInstanceStore {
	return &MemoryInstanceStore{instances: make(map[string]*api.WorkflowInstance)}
}

var _ InstanceStore = (*MemoryInstanceStore)(nil)

func (s *MemoryInstanceStore) Save(ctx context.Context, inst *api.WorkflowInstance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.instances[inst.ID] = inst
	return nil
}

func (s *MemoryInstanceStore) Update(ctx context.Context, inst *api.WorkflowInstance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.instances[inst.ID]; !ok {
		return ErrInstanceNotFound
	}
	s.instances[inst.ID] = inst
	return nil
}

func (s *MemoryInstanceStore) Get(ctx context.Context, id string) (*api.WorkflowInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inst, ok := s.instances[id]
	if !ok {
		return nil, ErrInstanceNotFound
	}
	return inst, nil
}

func (s *MemoryInstanceStore) List(ctx context.Context, filter InstanceFilter) ([]*api.WorkflowInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*api.WorkflowInstance
	for _, inst := range s.instances {
		if filter.WorkflowName != "" && inst.WorkflowName != filter.WorkflowName {
			continue
		}
		if filter.HasStatus && inst.Status != filter.Status {
			continue
		}
		out = append(out, inst)
	}
	return out, nil
}

func (s *MemoryInstanceStore) ListStale(ctx context.Context, olderThan time.Duration) ([]*api.WorkflowInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cutoff := time.Now().Add(-olderThan)
	var out []*api.WorkflowInstance
	for _, inst := range s.instances {
		if inst.Status == api.StatusRunning && inst.UpdatedAt.Before(cutoff) {
			out = append(out, inst)
		}
	}
	return out, nil
}

func (s *MemoryInstanceStore) GetByCorrelationID(ctx context.Context, correlationID string) (*api.WorkflowInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, inst := range s.instances {
		if inst.CorrelationID == correlationID {
			return inst, nil
		}
	}
	return nil, ErrInstanceNotFound
}

func (s *MemoryInstanceStore) GetByStatus(ctx context.Context, status api.Status, limit int) ([]*api.WorkflowInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*api.WorkflowInstance
	for _, inst := range s.instances {
		if inst.Status == status {
			out = append(out, inst)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (s *MemoryInstanceStore) Query(ctx context.Context, filter InstanceFilter, order InstanceSort, page Page) ([]*api.WorkflowInstance, error) {
	out, err := s.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	SortInstances(out, order)
	return Paginate(out, page), nil
}

func (s *MemoryInstanceStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.instances[id]; !ok {
		return ErrInstanceNotFound
	}
	delete(s.instances, id)
	return nil
}

func (s *MemoryInstanceStore) Stats(ctx context.Context) (InstanceStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := InstanceStats{ByStatus: make(map[api.Status]int)}
	for _, inst := range s.instances {
		stats.Total++
		stats.ByStatus[inst.Status]++
	}
	return stats, nil
}

// MemoryExecutionStore is a goroutine-safe, map-backed ExecutionStore.
type MemoryExecutionStore struct {
	mu         sync.RWMutex
	executions map[string][]api.ActivityExecution // keyed by WorkflowInstanceID
}

func NewMemoryExecutionStore() *MemoryExecutionStore {
	return &MemoryExecutionStore{executions: make(map[string][]api.ActivityExecution)}
}

var _ ExecutionStore = (*MemoryExecutionStore)(nil)

func (s *MemoryExecutionStore) Append(ctx context.Context, exec api.ActivityExecution) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.executions[exec.WorkflowInstanceID] = append(s.executions[exec.WorkflowInstanceID], exec)
	return nil
}

func (s *MemoryExecutionStore) ListByInstance(ctx context.Context, instanceID string) ([]api.ActivityExecution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]api.ActivityExecution, len(s.executions[instanceID]))
	copy(out, s.executions[instanceID])
	return out, nil
}

func (s *MemoryExecutionStore) Get(ctx context.Context, id string) (api.ActivityExecution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, execs := range s.executions {
		for _, e := range execs {
			if e.ID == id {
				return e, nil
			}
		}
	}
	return api.ActivityExecution{}, ErrExecutionNotFound
}

func (s *MemoryExecutionStore) GetLatest(ctx context.Context, instanceID, activityID string) (api.ActivityExecution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	execs := s.executions[instanceID]
	for i := len(execs) - 1; i >= 0; i-- {
		if execs[i].ActivityID == activityID {
			return execs[i], nil
		}
	}
	return api.ActivityExecution{}, ErrExecutionNotFound
}
