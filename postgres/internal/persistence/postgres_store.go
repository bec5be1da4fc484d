// Package persistence implements the DefinitionStore, InstanceStore, and
// ExecutionStore ports against PostgreSQL.
//
// Each store expects an *sql.DB opened against a PostgreSQL driver (for
// example "github.com/jackc/pgx/v5/stdlib"). The caller is responsible for
// importing the driver for its side effects:
//
//	import _ "github.com/jackc/pgx/v5/stdlib"
package persistence

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	corep "github.com/flowforge/flowforge/internal/persistence"
	"github.com/flowforge/flowforge/pkg/api"
)

// PostgresDefinitionStore is a corep.DefinitionStore backed by PostgreSQL.
type PostgresDefinitionStore struct {
	db *sql.DB
}

var _ corep.DefinitionStore = (*PostgresDefinitionStore)(nil)

// NewPostgresDefinitionStore initializes the required schema and returns a
// new PostgresDefinitionStore.
func NewPostgresDefinitionStore(db *sql.DB) (*PostgresDefinitionStore, error) {
	s := &PostgresDefinitionStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresDefinitionStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS definitions (
			name TEXT NOT NULL,
			version INTEGER NOT NULL,
			is_active BOOLEAN NOT NULL,
			start_activity_id TEXT NOT NULL,
			activities BYTEA NOT NULL,
			transitions BYTEA,
			input_schema BYTEA,
			output_schema BYTEA,
			trigger BYTEA,
			default_retry_policy BYTEA,
			timeout_ns BIGINT NOT NULL,
			tags BYTEA,
			created_at BIGINT NOT NULL,
			PRIMARY KEY (name, version)
		);`,
	)
	return err
}

const definitionColumns = `name, version, is_active, start_activity_id, activities, transitions, input_schema, output_schema, trigger, default_retry_policy, timeout_ns, tags, created_at`

func (s *PostgresDefinitionStore) Save(ctx context.Context, def api.WorkflowDefinition) (api.WorkflowDefinition, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return api.WorkflowDefinition{}, err
	}
	defer tx.Rollback()

	var maxVersion sql.NullInt64
	row := tx.QueryRowContext(ctx, `SELECT MAX(version) FROM definitions WHERE name = $1`, def.Name)
	if err := row.Scan(&maxVersion); err != nil {
		return api.WorkflowDefinition{}, err
	}
	def.Version = int(maxVersion.Int64) + 1
	def.IsActive = true
	if def.CreatedAt.IsZero() {
		def.CreatedAt = time.Now()
	}

	if _, err := tx.ExecContext(ctx, `UPDATE definitions SET is_active = false WHERE name = $1`, def.Name); err != nil {
		return api.WorkflowDefinition{}, err
	}

	activities, err := corep.EncodeValue(def.Activities)
	if err != nil {
		return api.WorkflowDefinition{}, err
	}
	transitions, err := corep.EncodeValue(def.Transitions)
	if err != nil {
		return api.WorkflowDefinition{}, err
	}
	inputSchema, err := corep.EncodeValue(def.InputSchema)
	if err != nil {
		return api.WorkflowDefinition{}, err
	}
	outputSchema, err := corep.EncodeValue(def.OutputSchema)
	if err != nil {
		return api.WorkflowDefinition{}, err
	}
	trigger, err := corep.EncodeValue(def.Trigger)
	if err != nil {
		return api.WorkflowDefinition{}, err
	}
	retryPolicy, err := corep.EncodeValue(def.DefaultRetryPolicy)
	if err != nil {
		return api.WorkflowDefinition{}, err
	}
	tags, err := corep.EncodeValue(def.Tags)
	if err != nil {
		return api.WorkflowDefinition{}, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO definitions (`+definitionColumns+`)
		VALUES ($1, $2, true, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		def.Name, def.Version, def.StartActivityID, activities, transitions, inputSchema, outputSchema, trigger, retryPolicy, int64(def.Timeout), tags, def.CreatedAt.UnixNano(),
	)
	if err != nil {
		return api.WorkflowDefinition{}, err
	}
	if err := tx.Commit(); err != nil {
		return api.WorkflowDefinition{}, err
	}
	return def, nil
}

func scanDefinition(scan func(dest ...any) error) (api.WorkflowDefinition, error) {
	var (
		def                                                                   api.WorkflowDefinition
		activities, transitions, inputSchema, outputSchema, trigger, retryPolicy, tags []byte
		timeoutNS, createdAt                                                 int64
	)
	if err := scan(&def.Name, &def.Version, &def.IsActive, &def.StartActivityID, &activities, &transitions, &inputSchema, &outputSchema, &trigger, &retryPolicy, &timeoutNS, &tags, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return api.WorkflowDefinition{}, corep.ErrDefinitionNotFound
		}
		return api.WorkflowDefinition{}, err
	}
	def.Timeout = time.Duration(timeoutNS)
	def.CreatedAt = time.Unix(0, createdAt)

	var err error
	if def.Activities, err = corep.DecodeValue[[]api.ActivityDefinition](activities); err != nil {
		return api.WorkflowDefinition{}, err
	}
	if def.Transitions, err = corep.DecodeValue[[]api.TransitionDefinition](transitions); err != nil {
		return api.WorkflowDefinition{}, err
	}
	if def.InputSchema, err = corep.DecodeValue[*api.JSONSchema](inputSchema); err != nil {
		return api.WorkflowDefinition{}, err
	}
	if def.OutputSchema, err = corep.DecodeValue[*api.JSONSchema](outputSchema); err != nil {
		return api.WorkflowDefinition{}, err
	}
	if def.Trigger, err = corep.DecodeValue[*api.Trigger](trigger); err != nil {
		return api.WorkflowDefinition{}, err
	}
	if def.DefaultRetryPolicy, err = corep.DecodeValue[*api.RetryPolicy](retryPolicy); err != nil {
		return api.WorkflowDefinition{}, err
	}
	if def.Tags, err = corep.DecodeValue[[]string](tags); err != nil {
		return api.WorkflowDefinition{}, err
	}
	return def, nil
}

func (s *PostgresDefinitionStore) Get(ctx context.Context, name string, version int) (api.WorkflowDefinition, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+definitionColumns+` FROM definitions WHERE name = $1 AND version = $2`, name, version)
	return scanDefinition(row.Scan)
}

func (s *PostgresDefinitionStore) GetActive(ctx context.Context, name string) (api.WorkflowDefinition, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+definitionColumns+` FROM definitions WHERE name = $1 AND is_active = true`, name)
	def, err := scanDefinition(row.Scan)
	if errors.Is(err, corep.ErrDefinitionNotFound) {
		return api.WorkflowDefinition{}, corep.ErrAmbiguousVersion
	}
	return def, err
}

func (s *PostgresDefinitionStore) ListVersions(ctx context.Context, name string) ([]api.WorkflowDefinition, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+definitionColumns+` FROM definitions WHERE name = $1 ORDER BY version ASC`, name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDefinitions(rows)
}

func (s *PostgresDefinitionStore) ListActive(ctx context.Context) ([]api.WorkflowDefinition, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+definitionColumns+` FROM definitions WHERE is_active = true ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDefinitions(rows)
}

func scanDefinitions(rows *sql.Rows) ([]api.WorkflowDefinition, error) {
	var out []api.WorkflowDefinition
	for rows.Next() {
		def, err := scanDefinition(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, def)
	}
	return out, rows.Err()
}

func (s *PostgresDefinitionStore) Deactivate(ctx context.Context, name string, version int) error {
	res, err := s.db.ExecContext(ctx, `UPDATE definitions SET is_active = false WHERE name = $1 AND version = $2`, name, version)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return corep.ErrDefinitionNotFound
	}
	return nil
}

func (s *PostgresDefinitionStore) List(ctx context.Context, includeInactive bool) ([]api.WorkflowDefinition, error) {
	query := `SELECT ` + definitionColumns + ` FROM definitions`
	if !includeInactive {
		query += ` WHERE is_active = true`
	}
	query += ` ORDER BY name ASC, version ASC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDefinitions(rows)
}

func (s *PostgresDefinitionStore) SetActive(ctx context.Context, name string, version int, active bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE definitions SET is_active = $1 WHERE name = $2 AND version = $3`, active, name, version)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return corep.ErrDefinitionNotFound
	}
	return nil
}

func (s *PostgresDefinitionStore) Delete(ctx context.Context, name string, version int) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM definitions WHERE name = $1 AND version = $2`, name, version)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return corep.ErrDefinitionNotFound
	}
	return nil
}

func (s *PostgresDefinitionStore) Exists(ctx context.Context, name string) (bool, error) {
	var count int
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM definitions WHERE name = $1`, name)
	if err := row.Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

// PostgresInstanceStore is a corep.InstanceStore backed by PostgreSQL.
type PostgresInstanceStore struct {
	db *sql.DB
}

var _ corep.InstanceStore = (*PostgresInstanceStore)(nil)

// NewPostgresInstanceStore initializes the required schema and returns a
// new PostgresInstanceStore.
func NewPostgresInstanceStore(db *sql.DB) (*PostgresInstanceStore, error) {
	s := &PostgresInstanceStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresInstanceStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS instances (
			id TEXT PRIMARY KEY,
			workflow_name TEXT NOT NULL,
			workflow_version INTEGER NOT NULL,
			status INTEGER NOT NULL,
			input BYTEA,
			output BYTEA,
			state BYTEA,
			current_activity_id TEXT,
			error BYTEA,
			retry_count INTEGER NOT NULL,
			parent_instance_id TEXT,
			correlation_id TEXT,
			worker_id TEXT,
			tags BYTEA,
			metadata BYTEA,
			created_at BIGINT NOT NULL,
			started_at BIGINT,
			completed_at BIGINT,
			updated_at BIGINT NOT NULL
		);`,
	)
	return err
}

const instanceColumns = `id, workflow_name, workflow_version, status, input, output, state, current_activity_id, error, retry_count, parent_instance_id, correlation_id, worker_id, tags, metadata, created_at, started_at, completed_at, updated_at`

func (s *PostgresInstanceStore) exec(ctx context.Context, insert bool, inst *api.WorkflowInstance) (sql.Result, error) {
	input, err := corep.EncodeValue(inst.Input)
	if err != nil {
		return nil, err
	}
	output, err := corep.EncodeValue(inst.Output)
	if err != nil {
		return nil, err
	}
	state, err := corep.EncodeValue(inst.State)
	if err != nil {
		return nil, err
	}
	instErr, err := corep.EncodeValue(inst.Error)
	if err != nil {
		return nil, err
	}
	tags, err := corep.EncodeValue(inst.Tags)
	if err != nil {
		return nil, err
	}
	metadata, err := corep.EncodeValue(inst.Metadata)
	if err != nil {
		return nil, err
	}

	var startedAt, completedAt sql.NullInt64
	if inst.StartedAt != nil {
		startedAt = sql.NullInt64{Int64: inst.StartedAt.UnixNano(), Valid: true}
	}
	if inst.CompletedAt != nil {
		completedAt = sql.NullInt64{Int64: inst.CompletedAt.UnixNano(), Valid: true}
	}
	if inst.UpdatedAt.IsZero() {
		inst.UpdatedAt = time.Now()
	}

	if insert {
		if inst.CreatedAt.IsZero() {
			inst.CreatedAt = time.Now()
		}
		return s.db.ExecContext(ctx, `
			INSERT INTO instances (`+instanceColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`,
			inst.ID, inst.WorkflowName, inst.WorkflowVersion, int(inst.Status), input, output, state, inst.CurrentActivityID, instErr, inst.RetryCount,
			inst.ParentInstanceID, inst.CorrelationID, inst.WorkerID, tags, metadata, inst.CreatedAt.UnixNano(), startedAt, completedAt, inst.UpdatedAt.UnixNano(),
		)
	}
	return s.db.ExecContext(ctx, `
		UPDATE instances SET workflow_name = $1, workflow_version = $2, status = $3, input = $4, output = $5, state = $6, current_activity_id = $7, error = $8, retry_count = $9, parent_instance_id = $10, correlation_id = $11, worker_id = $12, tags = $13, metadata = $14, started_at = $15, completed_at = $16, updated_at = $17
		WHERE id = $18`,
		inst.WorkflowName, inst.WorkflowVersion, int(inst.Status), input, output, state, inst.CurrentActivityID, instErr, inst.RetryCount,
		inst.ParentInstanceID, inst.CorrelationID, inst.WorkerID, tags, metadata, startedAt, completedAt, inst.UpdatedAt.UnixNano(), inst.ID,
	)
}

func (s *PostgresInstanceStore) Save(ctx context.Context, inst *api.WorkflowInstance) error {
	_, err := s.exec(ctx, true, inst)
	return err
}

func (s *PostgresInstanceStore) Update(ctx context.Context, inst *api.WorkflowInstance) error {
	res, err := s.exec(ctx, false, inst)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return corep.ErrInstanceNotFound
	}
	return nil
}

func scanInstance(scan func(dest ...any) error) (*api.WorkflowInstance, error) {
	var (
		inst                                       api.WorkflowInstance
		status                                     int
		input, output, state, instErr, tags, meta  []byte
		currentActivityID                          sql.NullString
		parentInstanceID, correlationID, workerID  sql.NullString
		createdAt, updatedAt                       int64
		startedAt, completedAt                     sql.NullInt64
	)
	if err := scan(&inst.ID, &inst.WorkflowName, &inst.WorkflowVersion, &status, &input, &output, &state, &currentActivityID, &instErr, &inst.RetryCount,
		&parentInstanceID, &correlationID, &workerID, &tags, &meta, &createdAt, &startedAt, &completedAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, corep.ErrInstanceNotFound
		}
		return nil, err
	}

	inst.Status = api.Status(status)
	inst.CurrentActivityID = currentActivityID.String
	inst.ParentInstanceID = parentInstanceID.String
	inst.CorrelationID = correlationID.String
	inst.WorkerID = workerID.String
	inst.CreatedAt = time.Unix(0, createdAt)
	inst.UpdatedAt = time.Unix(0, updatedAt)
	if startedAt.Valid {
		t := time.Unix(0, startedAt.Int64)
		inst.StartedAt = &t
	}
	if completedAt.Valid {
		t := time.Unix(0, completedAt.Int64)
		inst.CompletedAt = &t
	}

	var err error
	if inst.Input, err = corep.DecodeValue[map[string]any](input); err != nil {
		return nil, err
	}
	if inst.Output, err = corep.DecodeValue[map[string]any](output); err != nil {
		return nil, err
	}
	if inst.State, err = corep.DecodeValue[map[string]any](state); err != nil {
		return nil, err
	}
	if inst.Error, err = corep.DecodeValue[*api.InstanceError](instErr); err != nil {
		return nil, err
	}
	if inst.Tags, err = corep.DecodeValue[[]string](tags); err != nil {
		return nil, err
	}
	if inst.Metadata, err = corep.DecodeValue[map[string]any](meta); err != nil {
		return nil, err
	}
	return &inst, nil
}

func (s *PostgresInstanceStore) Get(ctx context.Context, id string) (*api.WorkflowInstance, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+instanceColumns+` FROM instances WHERE id = $1`, id)
	return scanInstance(row.Scan)
}

func (s *PostgresInstanceStore) List(ctx context.Context, filter corep.InstanceFilter) ([]*api.WorkflowInstance, error) {
	query := `SELECT ` + instanceColumns + ` FROM instances`
	var args []any
	var clauses []string

	if filter.WorkflowName != "" {
		args = append(args, filter.WorkflowName)
		clauses = append(clauses, "workflow_name = $"+strconv.Itoa(len(args)))
	}
	if filter.HasStatus {
		args = append(args, int(filter.Status))
		clauses = append(clauses, "status = $"+strconv.Itoa(len(args)))
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*api.WorkflowInstance
	for rows.Next() {
		inst, err := scanInstance(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	return out, rows.Err()
}

func (s *PostgresInstanceStore) ListStale(ctx context.Context, olderThan time.Duration) ([]*api.WorkflowInstance, error) {
	cutoff := time.Now().Add(-olderThan).UnixNano()
	rows, err := s.db.QueryContext(ctx, `SELECT `+instanceColumns+` FROM instances WHERE status = $1 AND updated_at < $2`, int(api.StatusRunning), cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*api.WorkflowInstance
	for rows.Next() {
		inst, err := scanInstance(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	return out, rows.Err()
}

func (s *PostgresInstanceStore) GetByCorrelationID(ctx context.Context, correlationID string) (*api.WorkflowInstance, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+instanceColumns+` FROM instances WHERE correlation_id = $1`, correlationID)
	return scanInstance(row.Scan)
}

func (s *PostgresInstanceStore) GetByStatus(ctx context.Context, status api.Status, limit int) ([]*api.WorkflowInstance, error) {
	query := `SELECT ` + instanceColumns + ` FROM instances WHERE status = $1`
	args := []any{int(status)}
	if limit > 0 {
		args = append(args, limit)
		query += ` LIMIT $2`
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*api.WorkflowInstance
	for rows.Next() {
		inst, err := scanInstance(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	return out, rows.Err()
}

func (s *PostgresInstanceStore) Query(ctx context.Context, filter corep.InstanceFilter, order corep.InstanceSort, page corep.Page) ([]*api.WorkflowInstance, error) {
	query := `SELECT ` + instanceColumns + ` FROM instances`
	var args []any
	var clauses []string

	if filter.WorkflowName != "" {
		args = append(args, filter.WorkflowName)
		clauses = append(clauses, "workflow_name = $"+strconv.Itoa(len(args)))
	}
	if filter.HasStatus {
		args = append(args, int(filter.Status))
		clauses = append(clauses, "status = $"+strconv.Itoa(len(args)))
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}

	switch order {
	case corep.SortCreatedAtAsc:
		query += " ORDER BY created_at ASC"
	case corep.SortUpdatedAtDesc:
		query += " ORDER BY updated_at DESC"
	case corep.SortUpdatedAtAsc:
		query += " ORDER BY updated_at ASC"
	default:
		query += " ORDER BY created_at DESC"
	}
	if page.Limit > 0 {
		args = append(args, page.Limit)
		query += " LIMIT $" + strconv.Itoa(len(args))
	}
	if page.Offset > 0 {
		args = append(args, page.Offset)
		query += " OFFSET $" + strconv.Itoa(len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*api.WorkflowInstance
	for rows.Next() {
		inst, err := scanInstance(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	return out, rows.Err()
}

func (s *PostgresInstanceStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM instances WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return corep.ErrInstanceNotFound
	}
	return nil
}

func (s *PostgresInstanceStore) Stats(ctx context.Context) (corep.InstanceStats, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM instances GROUP BY status`)
	if err != nil {
		return corep.InstanceStats{}, err
	}
	defer rows.Close()

	stats := corep.InstanceStats{ByStatus: make(map[api.Status]int)}
	for rows.Next() {
		var status, count int
		if err := rows.Scan(&status, &count); err != nil {
			return corep.InstanceStats{}, err
		}
		stats.ByStatus[api.Status(status)] = count
		stats.Total += count
	}
	return stats, rows.Err()
}

// PostgresExecutionStore is a corep.ExecutionStore backed by PostgreSQL.
type PostgresExecutionStore struct {
	db *sql.DB
}

var _ corep.ExecutionStore = (*PostgresExecutionStore)(nil)

// NewPostgresExecutionStore initializes the required schema and returns a
// new PostgresExecutionStore.
func NewPostgresExecutionStore(db *sql.DB) (*PostgresExecutionStore, error) {
	s := &PostgresExecutionStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresExecutionStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS executions (
			id TEXT PRIMARY KEY,
			workflow_instance_id TEXT NOT NULL,
			activity_id TEXT NOT NULL,
			activity_type TEXT NOT NULL,
			status INTEGER NOT NULL,
			input BYTEA,
			output BYTEA,
			error BYTEA,
			attempt INTEGER NOT NULL,
			started_at BIGINT NOT NULL,
			completed_at BIGINT,
			duration_ms BIGINT
		);
		CREATE INDEX IF NOT EXISTS idx_executions_instance ON executions (workflow_instance_id);`,
	)
	return err
}

func (s *PostgresExecutionStore) Append(ctx context.Context, exec api.ActivityExecution) error {
	input, err := corep.EncodeValue(exec.Input)
	if err != nil {
		return err
	}
	output, err := corep.EncodeValue(exec.Output)
	if err != nil {
		return err
	}
	execErr, err := corep.EncodeValue(exec.Error)
	if err != nil {
		return err
	}

	var completedAt sql.NullInt64
	if exec.CompletedAt != nil {
		completedAt = sql.NullInt64{Int64: exec.CompletedAt.UnixNano(), Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO executions (id, workflow_instance_id, activity_id, activity_type, status, input, output, error, attempt, started_at, completed_at, duration_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		exec.ID, exec.WorkflowInstanceID, exec.ActivityID, exec.ActivityType, int(exec.Status), input, output, execErr, exec.Attempt,
		exec.StartedAt.UnixNano(), completedAt, exec.DurationMS,
	)
	return err
}

const executionColumns = `id, workflow_instance_id, activity_id, activity_type, status, input, output, error, attempt, started_at, completed_at, duration_ms`

func scanExecution(scan func(dest ...any) error) (api.ActivityExecution, error) {
	var (
		exec                   api.ActivityExecution
		status                 int
		input, output, execErr []byte
		startedAt              int64
		completedAt            sql.NullInt64
	)
	if err := scan(&exec.ID, &exec.WorkflowInstanceID, &exec.ActivityID, &exec.ActivityType, &status, &input, &output, &execErr, &exec.Attempt, &startedAt, &completedAt, &exec.DurationMS); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return api.ActivityExecution{}, corep.ErrExecutionNotFound
		}
		return api.ActivityExecution{}, err
	}
	exec.Status = api.ActivityStatus(status)
	exec.StartedAt = time.Unix(0, startedAt)
	if completedAt.Valid {
		t := time.Unix(0, completedAt.Int64)
		exec.CompletedAt = &t
	}

	var err error
	if exec.Input, err = corep.DecodeValue[map[string]any](input); err != nil {
		return api.ActivityExecution{}, err
	}
	if exec.Output, err = corep.DecodeValue[map[string]any](output); err != nil {
		return api.ActivityExecution{}, err
	}
	if exec.Error, err = corep.DecodeValue[*api.InstanceError](execErr); err != nil {
		return api.ActivityExecution{}, err
	}
	return exec, nil
}

func (s *PostgresExecutionStore) ListByInstance(ctx context.Context, instanceID string) ([]api.ActivityExecution, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+executionColumns+` FROM executions WHERE workflow_instance_id = $1 ORDER BY started_at ASC`, instanceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []api.ActivityExecution
	for rows.Next() {
		exec, err := scanExecution(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, exec)
	}
	return out, rows.Err()
}

func (s *PostgresExecutionStore) Get(ctx context.Context, id string) (api.ActivityExecution, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+executionColumns+` FROM executions WHERE id = $1`, id)
	return scanExecution(row.Scan)
}

func (s *PostgresExecutionStore) GetLatest(ctx context.Context, instanceID, activityID string) (api.ActivityExecution, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+executionColumns+` FROM executions WHERE workflow_instance_id = $1 AND activity_id = $2 ORDER BY started_at DESC LIMIT 1`, instanceID, activityID)
	return scanExecution(row.Scan)
}
