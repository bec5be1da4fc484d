// Package persistence implements the DefinitionStore, InstanceStore, and
// ExecutionStore ports against Redis: one JSON blob per row plus a small
// set of index sets/sorted-sets for the lookups the engine and scheduler
// need (active version per name, instances by workflow/status, stale
// running instances).
package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	corep "github.com/flowforge/flowforge/internal/persistence"
	"github.com/flowforge/flowforge/pkg/api"
)

// RedisDefinitionStore is a corep.DefinitionStore backed by Redis.
//
// Keys:
//
//	<prefix>def:<name>:<version>  => JSON WorkflowDefinition
//	<prefix>def:versions:<name>   => SET of version numbers
//	<prefix>def:active:<name>     => STRING holding the active version number
//	<prefix>def:activenames       => SET of names with an active version
type RedisDefinitionStore struct {
	client *redis.Client
	prefix string
}

var _ corep.DefinitionStore = (*RedisDefinitionStore)(nil)

// NewRedisDefinitionStore constructs a RedisDefinitionStore namespaced
// under prefix (default "flowforge:").
func NewRedisDefinitionStore(client *redis.Client, prefix string) *RedisDefinitionStore {
	if prefix == "" {
		prefix = "flowforge:"
	}
	return &RedisDefinitionStore{client: client, prefix: prefix}
}

func (r *RedisDefinitionStore) keyDef(name string, version int) string {
	return r.prefix + "def:" + name + ":" + strconv.Itoa(version)
}
func (r *RedisDefinitionStore) keyVersions(name string) string { return r.prefix + "def:versions:" + name }
func (r *RedisDefinitionStore) keyActive(name string) string   { return r.prefix + "def:active:" + name }
func (r *RedisDefinitionStore) keyActiveNames() string          { return r.prefix + "def:activenames" }

func (r *RedisDefinitionStore) Save(ctx context.Context, def api.WorkflowDefinition) (api.WorkflowDefinition, error) {
	versionStrs, err := r.client.SMembers(ctx, r.keyVersions(def.Name)).Result()
	if err != nil {
		return api.WorkflowDefinition{}, err
	}
	maxVersion := 0
	for _, v := range versionStrs {
		n, err := strconv.Atoi(v)
		if err != nil {
			continue
		}
		if n > maxVersion {
			maxVersion = n
		}
	}

	if prevActive, err := r.client.Get(ctx, r.keyActive(def.Name)).Result(); err == nil {
		if prevVersion, convErr := strconv.Atoi(prevActive); convErr == nil {
			if err := r.deactivate(ctx, def.Name, prevVersion); err != nil {
				return api.WorkflowDefinition{}, err
			}
		}
	} else if !errors.Is(err, redis.Nil) {
		return api.WorkflowDefinition{}, err
	}

	def.Version = maxVersion + 1
	def.IsActive = true
	if def.CreatedAt.IsZero() {
		def.CreatedAt = time.Now()
	}

	data, err := json.Marshal(def)
	if err != nil {
		return api.WorkflowDefinition{}, err
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.keyDef(def.Name, def.Version), data, 0)
	pipe.SAdd(ctx, r.keyVersions(def.Name), def.Version)
	pipe.Set(ctx, r.keyActive(def.Name), def.Version, 0)
	pipe.SAdd(ctx, r.keyActiveNames(), def.Name)
	if _, err := pipe.Exec(ctx); err != nil {
		return api.WorkflowDefinition{}, err
	}
	return def, nil
}

func (r *RedisDefinitionStore) Get(ctx context.Context, name string, version int) (api.WorkflowDefinition, error) {
	data, err := r.client.Get(ctx, r.keyDef(name, version)).Bytes()
	if errors.Is(err, redis.Nil) {
		return api.WorkflowDefinition{}, corep.ErrDefinitionNotFound
	}
	if err != nil {
		return api.WorkflowDefinition{}, err
	}
	var def api.WorkflowDefinition
	if err := json.Unmarshal(data, &def); err != nil {
		return api.WorkflowDefinition{}, err
	}
	return def, nil
}

func (r *RedisDefinitionStore) GetActive(ctx context.Context, name string) (api.WorkflowDefinition, error) {
	activeStr, err := r.client.Get(ctx, r.keyActive(name)).Result()
	if errors.Is(err, redis.Nil) {
		return api.WorkflowDefinition{}, corep.ErrAmbiguousVersion
	}
	if err != nil {
		return api.WorkflowDefinition{}, err
	}
	version, err := strconv.Atoi(activeStr)
	if err != nil {
		return api.WorkflowDefinition{}, err
	}
	return r.Get(ctx, name, version)
}

func (r *RedisDefinitionStore) ListVersions(ctx context.Context, name string) ([]api.WorkflowDefinition, error) {
	versionStrs, err := r.client.SMembers(ctx, r.keyVersions(name)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]api.WorkflowDefinition, 0, len(versionStrs))
	for _, v := range versionStrs {
		version, err := strconv.Atoi(v)
		if err != nil {
			continue
		}
		def, err := r.Get(ctx, name, version)
		if err != nil {
			return nil, err
		}
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

func (r *RedisDefinitionStore) ListActive(ctx context.Context) ([]api.WorkflowDefinition, error) {
	names, err := r.client.SMembers(ctx, r.keyActiveNames()).Result()
	if err != nil {
		return nil, err
	}
	out := make([]api.WorkflowDefinition, 0, len(names))
	for _, name := range names {
		def, err := r.GetActive(ctx, name)
		if errors.Is(err, corep.ErrAmbiguousVersion) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *RedisDefinitionStore) Deactivate(ctx context.Context, name string, version int) error {
	if err := r.deactivate(ctx, name, version); err != nil {
		return err
	}
	activeStr, err := r.client.Get(ctx, r.keyActive(name)).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return err
	}
	if activeStr == strconv.Itoa(version) {
		pipe := r.client.TxPipeline()
		pipe.Del(ctx, r.keyActive(name))
		pipe.SRem(ctx, r.keyActiveNames(), name)
		_, err = pipe.Exec(ctx)
		return err
	}
	return nil
}

// deactivate rewrites the stored definition with IsActive=false, without
// touching the active pointer.
func (r *RedisDefinitionStore) deactivate(ctx context.Context, name string, version int) error {
	def, err := r.Get(ctx, name, version)
	if errors.Is(err, corep.ErrDefinitionNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	def.IsActive = false
	data, err := json.Marshal(def)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.keyDef(name, version), data, 0).Err()
}

func (r *RedisDefinitionStore) List(ctx context.Context, includeInactive bool) ([]api.WorkflowDefinition, error) {
	if !includeInactive {
		return r.ListActive(ctx)
	}

	names, err := r.allNames(ctx)
	if err != nil {
		return nil, err
	}
	var out []api.WorkflowDefinition
	for _, name := range names {
		versions, err := r.ListVersions(ctx, name)
		if err != nil {
			return nil, err
		}
		out = append(out, versions...)
	}
	return out, nil
}

// allNames scans for every distinct workflow name with at least one stored
// version, by pattern-matching def:versions:<name> keys rather than
// maintaining a dedicated "all names" set (only keyActiveNames tracks
// currently-active names).
func (r *RedisDefinitionStore) allNames(ctx context.Context) ([]string, error) {
	pattern := r.prefix + "def:versions:*"
	keys, err := r.client.Keys(ctx, pattern).Result()
	if err != nil {
		return nil, err
	}
	prefixLen := len(r.prefix + "def:versions:")
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k[prefixLen:])
	}
	sort.Strings(out)
	return out, nil
}

func (r *RedisDefinitionStore) SetActive(ctx context.Context, name string, version int, active bool) error {
	def, err := r.Get(ctx, name, version)
	if err != nil {
		return err
	}
	def.IsActive = active
	data, err := json.Marshal(def)
	if err != nil {
		return err
	}
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.keyDef(name, version), data, 0)
	if active {
		pipe.Set(ctx, r.keyActive(name), version, 0)
		pipe.SAdd(ctx, r.keyActiveNames(), name)
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (r *RedisDefinitionStore) Delete(ctx context.Context, name string, version int) error {
	if _, err := r.Get(ctx, name, version); err != nil {
		return err
	}
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, r.keyDef(name, version))
	pipe.SRem(ctx, r.keyVersions(name), version)
	_, err := pipe.Exec(ctx)
	return err
}

func (r *RedisDefinitionStore) Exists(ctx context.Context, name string) (bool, error) {
	n, err := r.client.SCard(ctx, r.keyVersions(name)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// RedisInstanceStore is a corep.InstanceStore backed by Redis.
//
// Keys:
//
//	<prefix>inst:<id>            => JSON WorkflowInstance
//	<prefix>idx:all              => SET of all instance ids
//	<prefix>idx:wf:<workflow>    => SET of instance ids for a workflow
//	<prefix>idx:status:<status>  => SET of instance ids in a status
//	<prefix>idx:running          => ZSET of running instance ids scored by UpdatedAt, for ListStale
type RedisInstanceStore struct {
	client *redis.Client
	prefix string
}

var _ corep.InstanceStore = (*RedisInstanceStore)(nil)

// NewRedisInstanceStore constructs a RedisInstanceStore namespaced under
// prefix (default "flowforge:").
func NewRedisInstanceStore(client *redis.Client, prefix string) *RedisInstanceStore {
	if prefix == "" {
		prefix = "flowforge:"
	}
	return &RedisInstanceStore{client: client, prefix: prefix}
}

func (r *RedisInstanceStore) keyInstance(id string) string { return r.prefix + "inst:" + id }
func (r *RedisInstanceStore) keyAll() string                { return r.prefix + "idx:all" }
func (r *RedisInstanceStore) keyWorkflow(name string) string {
	return r.prefix + "idx:wf:" + name
}
func (r *RedisInstanceStore) keyStatus(status api.Status) string {
	return r.prefix + "idx:status:" + string(status)
}
func (r *RedisInstanceStore) keyRunning() string { return r.prefix + "idx:running" }
func (r *RedisInstanceStore) keyCorrelation(id string) string {
	return r.prefix + "idx:corr:" + id
}

func (r *RedisInstanceStore) index(ctx context.Context, inst *api.WorkflowInstance, prevStatus api.Status, hadPrev bool) error {
	pipe := r.client.TxPipeline()
	pipe.SAdd(ctx, r.keyAll(), inst.ID)
	pipe.SAdd(ctx, r.keyWorkflow(inst.WorkflowName), inst.ID)
	if hadPrev && prevStatus != inst.Status {
		pipe.SRem(ctx, r.keyStatus(prevStatus), inst.ID)
	}
	pipe.SAdd(ctx, r.keyStatus(inst.Status), inst.ID)
	if inst.Status == api.StatusRunning {
		pipe.ZAdd(ctx, r.keyRunning(), redis.Z{Score: float64(inst.UpdatedAt.UnixNano()), Member: inst.ID})
	} else {
		pipe.ZRem(ctx, r.keyRunning(), inst.ID)
	}
	if inst.CorrelationID != "" {
		pipe.Set(ctx, r.keyCorrelation(inst.CorrelationID), inst.ID, 0)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (r *RedisInstanceStore) Save(ctx context.Context, inst *api.WorkflowInstance) error {
	data, err := json.Marshal(inst)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.keyInstance(inst.ID), data, 0).Err(); err != nil {
		return err
	}
	return r.index(ctx, inst, "", false)
}

func (r *RedisInstanceStore) Update(ctx context.Context, inst *api.WorkflowInstance) error {
	prev, err := r.Get(ctx, inst.ID)
	if err != nil {
		return err
	}
	data, err := json.Marshal(inst)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.keyInstance(inst.ID), data, 0).Err(); err != nil {
		return err
	}
	return r.index(ctx, inst, prev.Status, true)
}

func (r *RedisInstanceStore) Get(ctx context.Context, id string) (*api.WorkflowInstance, error) {
	data, err := r.client.Get(ctx, r.keyInstance(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, corep.ErrInstanceNotFound
	}
	if err != nil {
		return nil, err
	}
	var inst api.WorkflowInstance
	if err := json.Unmarshal(data, &inst); err != nil {
		return nil, err
	}
	return &inst, nil
}

func (r *RedisInstanceStore) List(ctx context.Context, filter corep.InstanceFilter) ([]*api.WorkflowInstance, error) {
	var ids []string
	var err error

	switch {
	case filter.WorkflowName != "" && filter.HasStatus:
		ids, err = r.client.SInter(ctx, r.keyWorkflow(filter.WorkflowName), r.keyStatus(filter.Status)).Result()
	case filter.WorkflowName != "":
		ids, err = r.client.SMembers(ctx, r.keyWorkflow(filter.WorkflowName)).Result()
	case filter.HasStatus:
		ids, err = r.client.SMembers(ctx, r.keyStatus(filter.Status)).Result()
	default:
		ids, err = r.client.SMembers(ctx, r.keyAll()).Result()
	}
	if err != nil {
		return nil, err
	}
	return r.fetchAll(ctx, ids)
}

func (r *RedisInstanceStore) ListStale(ctx context.Context, olderThan time.Duration) ([]*api.WorkflowInstance, error) {
	cutoff := time.Now().Add(-olderThan).UnixNano()
	ids, err := r.client.ZRangeByScore(ctx, r.keyRunning(), &redis.ZRangeBy{Min: "-inf", Max: strconv.FormatInt(cutoff, 10)}).Result()
	if err != nil {
		return nil, err
	}
	return r.fetchAll(ctx, ids)
}

func (r *RedisInstanceStore) GetByCorrelationID(ctx context.Context, correlationID string) (*api.WorkflowInstance, error) {
	id, err := r.client.Get(ctx, r.keyCorrelation(correlationID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, corep.ErrInstanceNotFound
	}
	if err != nil {
		return nil, err
	}
	return r.Get(ctx, id)
}

func (r *RedisInstanceStore) GetByStatus(ctx context.Context, status api.Status, limit int) ([]*api.WorkflowInstance, error) {
	ids, err := r.client.SMembers(ctx, r.keyStatus(status)).Result()
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return r.fetchAll(ctx, ids)
}

func (r *RedisInstanceStore) Query(ctx context.Context, filter corep.InstanceFilter, order corep.InstanceSort, page corep.Page) ([]*api.WorkflowInstance, error) {
	out, err := r.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	corep.SortInstances(out, order)
	return corep.Paginate(out, page), nil
}

func (r *RedisInstanceStore) Delete(ctx context.Context, id string) error {
	inst, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, r.keyInstance(id))
	pipe.SRem(ctx, r.keyAll(), id)
	pipe.SRem(ctx, r.keyWorkflow(inst.WorkflowName), id)
	pipe.SRem(ctx, r.keyStatus(inst.Status), id)
	pipe.ZRem(ctx, r.keyRunning(), id)
	if inst.CorrelationID != "" {
		pipe.Del(ctx, r.keyCorrelation(inst.CorrelationID))
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (r *RedisInstanceStore) Stats(ctx context.Context) (corep.InstanceStats, error) {
	ids, err := r.client.SMembers(ctx, r.keyAll()).Result()
	if err != nil {
		return corep.InstanceStats{}, err
	}
	insts, err := r.fetchAll(ctx, ids)
	if err != nil {
		return corep.InstanceStats{}, err
	}
	stats := corep.InstanceStats{ByStatus: make(map[api.Status]int)}
	for _, inst := range insts {
		stats.Total++
		stats.ByStatus[inst.Status]++
	}
	return stats, nil
}

func (r *RedisInstanceStore) fetchAll(ctx context.Context, ids []string) ([]*api.WorkflowInstance, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	pipe := r.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.Get(ctx, r.keyInstance(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}

	out := make([]*api.WorkflowInstance, 0, len(ids))
	for _, cmd := range cmds {
		data, err := cmd.Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, err
		}
		var inst api.WorkflowInstance
		if err := json.Unmarshal(data, &inst); err != nil {
			return nil, err
		}
		out = append(out, &inst)
	}
	return out, nil
}

// RedisExecutionStore is a corep.ExecutionStore backed by a Redis list per
// instance, holding JSON-encoded api.ActivityExecution values in append
// order.
type RedisExecutionStore struct {
	client *redis.Client
	prefix string
}

var _ corep.ExecutionStore = (*RedisExecutionStore)(nil)

// NewRedisExecutionStore constructs a RedisExecutionStore namespaced under
// prefix (default "flowforge:").
func NewRedisExecutionStore(client *redis.Client, prefix string) *RedisExecutionStore {
	if prefix == "" {
		prefix = "flowforge:"
	}
	return &RedisExecutionStore{client: client, prefix: prefix}
}

func (r *RedisExecutionStore) key(instanceID string) string { return r.prefix + "exec:" + instanceID }

func (r *RedisExecutionStore) Append(ctx context.Context, exec api.ActivityExecution) error {
	data, err := json.Marshal(exec)
	if err != nil {
		return err
	}
	return r.client.RPush(ctx, r.key(exec.WorkflowInstanceID), data).Err()
}

func (r *RedisExecutionStore) ListByInstance(ctx context.Context, instanceID string) ([]api.ActivityExecution, error) {
	raw, err := r.client.LRange(ctx, r.key(instanceID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]api.ActivityExecution, 0, len(raw))
	for _, r := range raw {
		var exec api.ActivityExecution
		if err := json.Unmarshal([]byte(r), &exec); err != nil {
			return nil, err
		}
		out = append(out, exec)
	}
	return out, nil
}

func (r *RedisExecutionStore) Get(ctx context.Context, id string) (api.ActivityExecution, error) {
	// Executions have no per-ID key, so Get scans every instance's
	// execution list until it finds id. ListByInstance reads a single
	// instance's list.
	ids, err := r.client.Keys(ctx, r.prefix+"exec:*").Result()
	if err != nil {
		return api.ActivityExecution{}, err
	}
	for _, key := range ids {
		raw, err := r.client.LRange(ctx, key, 0, -1).Result()
		if err != nil {
			return api.ActivityExecution{}, err
		}
		for _, item := range raw {
			var exec api.ActivityExecution
			if err := json.Unmarshal([]byte(item), &exec); err != nil {
				return api.ActivityExecution{}, err
			}
			if exec.ID == id {
				return exec, nil
			}
		}
	}
	return api.ActivityExecution{}, corep.ErrExecutionNotFound
}

func (r *RedisExecutionStore) GetLatest(ctx context.Context, instanceID, activityID string) (api.ActivityExecution, error) {
	raw, err := r.client.LRange(ctx, r.key(instanceID), 0, -1).Result()
	if err != nil {
		return api.ActivityExecution{}, err
	}
	for i := len(raw) - 1; i >= 0; i-- {
		var exec api.ActivityExecution
		if err := json.Unmarshal([]byte(raw[i]), &exec); err != nil {
			return api.ActivityExecution{}, err
		}
		if exec.ActivityID == activityID {
			return exec, nil
		}
	}
	return api.ActivityExecution{}, corep.ErrExecutionNotFound
}
