package persistence

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/flowforge/flowforge/pkg/api"
)

// SQLiteDefinitionStore is a DefinitionStore backed by SQLite, with its
// schema created eagerly in NewSQLiteDefinitionStore.
//
// It expects an *sql.DB that uses a SQLite driver (for example,
// "modernc.org/sqlite"). The caller is responsible for importing the
// driver, e.g.:
//
//	import _ "modernc.org/sqlite"
type SQLiteDefinitionStore struct {
	db *sql.DB
}

var _ DefinitionStore = (*SQLiteDefinitionStore)(nil)

func NewSQLiteDefinitionStore(db *sql.DB) (*SQLiteDefinitionStore, error) {
	s := &SQLiteDefinitionStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteDefinitionStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS definitions (
			name TEXT NOT NULL,
			version INTEGER NOT NULL,
			is_active INTEGER NOT NULL,
			start_activity_id TEXT NOT NULL,
			activities BLOB NOT NULL,
			transitions BLOB,
			input_schema BLOB,
			output_schema BLOB,
			trigger BLOB,
			default_retry_policy BLOB,
			timeout_ns INTEGER NOT NULL,
			tags BLOB,
			created_at INTEGER NOT NULL,
			PRIMARY KEY (name, version)
		);`,
	)
	return err
}

func (s *SQLiteDefinitionStore) Save(ctx context.Context, def api.WorkflowDefinition) (api.WorkflowDefinition, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return api.WorkflowDefinition{}, err
	}
	defer tx.Rollback()

	var maxVersion sql.NullInt64
	row := tx.QueryRowContext(ctx, `SELECT MAX(version) FROM definitions WHERE name = ?`, def.Name)
	if err := row.Scan(&maxVersion); err != nil {
		return api.WorkflowDefinition{}, err
	}
	def.Version = int(maxVersion.Int64) + 1
	def.IsActive = true
	if def.CreatedAt.IsZero() {
		def.CreatedAt = time.Now()
	}

	if _, err := tx.ExecContext(ctx, `UPDATE definitions SET is_active = 0 WHERE name = ?`, def.Name); err != nil {
		return api.WorkflowDefinition{}, err
	}

	activities, err := EncodeValue(def.Activities)
	if err != nil {
		return api.WorkflowDefinition{}, err
	}
	transitions, err := EncodeValue(def.Transitions)
	if err != nil {
		return api.WorkflowDefinition{}, err
	}
	inputSchema, err := EncodeValue(def.InputSchema)
	if err != nil {
		return api.WorkflowDefinition{}, err
	}
	outputSchema, err := EncodeValue(def.OutputSchema)
	if err != nil {
		return api.WorkflowDefinition{}, err
	}
	trigger, err := EncodeValue(def.Trigger)
	if err != nil {
		return api.WorkflowDefinition{}, err
	}
	retryPolicy, err := EncodeValue(def.DefaultRetryPolicy)
	if err != nil {
		return api.WorkflowDefinition{}, err
	}
	tags, err := EncodeValue(def.Tags)
	if err != nil {
		return api.WorkflowDefinition{}, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO definitions (name, version, is_active, start_activity_id, activities, transitions, input_schema, output_schema, trigger, default_retry_policy, timeout_ns, tags, created_at)
		VALUES (?, ?, 1, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
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

func (s *SQLiteDefinitionStore) scanDefinition(row *sql.Row) (api.WorkflowDefinition, error) {
	var (
		def                                                                                   api.WorkflowDefinition
		isActive                                                                               int
		activities, transitions, inputSchema, outputSchema, trigger, retryPolicy, tags         []byte
		timeoutNS, createdAt                                                                   int64
	)
	if err := row.Scan(&def.Name, &def.Version, &isActive, &def.StartActivityID, &activities, &transitions, &inputSchema, &outputSchema, &trigger, &retryPolicy, &timeoutNS, &tags, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return api.WorkflowDefinition{}, ErrDefinitionNotFound
		}
		return api.WorkflowDefinition{}, err
	}
	def.IsActive = isActive != 0
	def.Timeout = time.Duration(timeoutNS)
	def.CreatedAt = time.Unix(0, createdAt)

	var err error
	if def.Activities, err = DecodeValue[[]api.ActivityDefinition](activities); err != nil {
		return api.WorkflowDefinition{}, err
	}
	if def.Transitions, err = DecodeValue[[]api.TransitionDefinition](transitions); err != nil {
		return api.WorkflowDefinition{}, err
	}
	if def.InputSchema, err = DecodeValue[*api.JSONSchema](inputSchema); err != nil {
		return api.WorkflowDefinition{}, err
	}
	if def.OutputSchema, err = DecodeValue[*api.JSONSchema](outputSchema); err != nil {
		return api.WorkflowDefinition{}, err
	}
	if def.Trigger, err = DecodeValue[*api.Trigger](trigger); err != nil {
		return api.WorkflowDefinition{}, err
	}
	if def.DefaultRetryPolicy, err = DecodeValue[*api.RetryPolicy](retryPolicy); err != nil {
		return api.WorkflowDefinition{}, err
	}
	if def.Tags, err = DecodeValue[[]string](tags); err != nil {
		return api.WorkflowDefinition{}, err
	}
	return def, nil
}

const definitionColumns = `name, version, is_active, start_activity_id, activities, transitions, input_schema, output_schema, trigger, default_retry_policy, timeout_ns, tags, created_at`

func (s *SQLiteDefinitionStore) Get(ctx context.Context, name string, version int) (api.WorkflowDefinition, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+definitionColumns+` FROM definitions WHERE name = ? AND version = ?`, name, version)
	return s.scanDefinition(row)
}

func (s *SQLiteDefinitionStore) GetActive(ctx context.Context, name string) (api.WorkflowDefinition, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+definitionColumns+` FROM definitions WHERE name = ? AND is_active = 1`, name)
	def, err := s.scanDefinition(row)
	if errors.Is(err, ErrDefinitionNotFound) {
		return api.WorkflowDefinition{}, ErrAmbiguousVersion
	}
	return def, err
}

func (s *SQLiteDefinitionStore) ListVersions(ctx context.Context, name string) ([]api.WorkflowDefinition, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+definitionColumns+` FROM definitions WHERE name = ? ORDER BY version ASC`, name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []api.WorkflowDefinition
	for rows.Next() {
		def, err := s.scanDefinitionRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, def)
	}
	return out, rows.Err()
}

func (s *SQLiteDefinitionStore) scanDefinitionRows(rows *sql.Rows) (api.WorkflowDefinition, error) {
	var (
		def                                                                           api.WorkflowDefinition
		isActive                                                                      int
		activities, transitions, inputSchema, outputSchema, trigger, retryPolicy, tags []byte
		timeoutNS, createdAt                                                          int64
	)
	if err := rows.Scan(&def.Name, &def.Version, &isActive, &def.StartActivityID, &activities, &transitions, &inputSchema, &outputSchema, &trigger, &retryPolicy, &timeoutNS, &tags, &createdAt); err != nil {
		return api.WorkflowDefinition{}, err
	}
	def.IsActive = isActive != 0
	def.Timeout = time.Duration(timeoutNS)
	def.CreatedAt = time.Unix(0, createdAt)

	var err error
	if def.Activities, err = DecodeValue[[]api.ActivityDefinition](activities); err != nil {
		return api.WorkflowDefinition{}, err
	}
	if def.Transitions, err = DecodeValue[[]api.TransitionDefinition](transitions); err != nil {
		return api.WorkflowDefinition{}, err
	}
	if def.InputSchema, err = DecodeValue[*api.JSONSchema](inputSchema); err != nil {
		return api.WorkflowDefinition{}, err
	}
	if def.OutputSchema, err = DecodeValue[*api.JSONSchema](outputSchema); err != nil {
		return api.WorkflowDefinition{}, err
	}
	if def.Trigger, err = DecodeValue[*api.Trigger](trigger); err != nil {
		return api.WorkflowDefinition{}, err
	}
	if def.DefaultRetryPolicy, err = DecodeValue[*api.RetryPolicy](retryPolicy); err != nil {
		return api.WorkflowDefinition{}, err
	}
	if def.Tags, err = DecodeValue[[]string](tags); err != nil {
		return api.WorkflowDefinition{}, err
	}
	return def, nil
}

func (s *SQLiteDefinitionStore) ListActive(ctx context.Context) ([]api.WorkflowDefinition, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+definitionColumns+` FROM definitions WHERE is_active = 1 ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []api.WorkflowDefinition
	for rows.Next() {
		def, err := s.scanDefinitionRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, def)
	}
	return out, rows.Err()
}

func (s *SQLiteDefinitionStore) Deactivate(ctx context.Context, name string, version int) error {
	res, err := s.db.ExecContext(ctx, `UPDATE definitions SET is_active = 0 WHERE name = ? AND version = ?`, name, version)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrDefinitionNotFound
	}
	return nil
}

func (s *SQLiteDefinitionStore) List(ctx context.Context, includeInactive bool) ([]api.WorkflowDefinition, error) {
	query := `SELECT ` + definitionColumns + ` FROM definitions`
	if !includeInactive {
		query += ` WHERE is_active = 1`
	}
	query += ` ORDER BY name ASC, version ASC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []api.WorkflowDefinition
	for rows.Next() {
		def, err := s.scanDefinitionRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, def)
	}
	return out, rows.Err()
}

func (s *SQLiteDefinitionStore) SetActive(ctx context.Context, name string, version int, active bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE definitions SET is_active = ? WHERE name = ? AND version = ?`, active, name, version)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrDefinitionNotFound
	}
	return nil
}

func (s *SQLiteDefinitionStore) Delete(ctx context.Context, name string, version int) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM definitions WHERE name = ? AND version = ?`, name, version)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrDefinitionNotFound
	}
	return nil
}

func (s *SQLiteDefinitionStore) Exists(ctx context.Context, name string) (bool, error) {
	var count int
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM definitions WHERE name = ?`, name)
	if err := row.Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

// SQLiteInstanceStore is an InstanceStore backed by SQLite.
type SQLiteInstanceStore struct {
	db *sql.DB
}

var _ InstanceStore = (*SQLiteInstanceStore)(nil)

func NewSQLiteInstanceStore(db *sql.DB) (*SQLiteInstanceStore, error) {
	s := &SQLiteInstanceStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteInstanceStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS instances (
			id TEXT PRIMARY KEY,
			workflow_name TEXT NOT NULL,
			workflow_version INTEGER NOT NULL,
			status INTEGER NOT NULL,
			input BLOB,
			output BLOB,
			state BLOB,
			current_activity_id TEXT,
			error BLOB,
			retry_count INTEGER NOT NULL,
			parent_instance_id TEXT,
			correlation_id TEXT,
			worker_id TEXT,
			tags BLOB,
			metadata BLOB,
			created_at INTEGER NOT NULL,
			started_at INTEGER,
			completed_at INTEGER,
			updated_at INTEGER NOT NULL
		);`,
	)
	return err
}

func (s *SQLiteInstanceStore) exec(ctx context.Context, insert bool, inst *api.WorkflowInstance) (sql.Result, error) {
	input, err := EncodeValue(inst.Input)
	if err != nil {
		return nil, err
	}
	output, err := EncodeValue(inst.Output)
	if err != nil {
		return nil, err
	}
	state, err := EncodeValue(inst.State)
	if err != nil {
		return nil, err
	}
	instErr, err := EncodeValue(inst.Error)
	if err != nil {
		return nil, err
	}
	tags, err := EncodeValue(inst.Tags)
	if err != nil {
		return nil, err
	}
	metadata, err := EncodeValue(inst.Metadata)
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
			INSERT INTO instances (id, workflow_name, workflow_version, status, input, output, state, current_activity_id, error, retry_count, parent_instance_id, correlation_id, worker_id, tags, metadata, created_at, started_at, completed_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			inst.ID, inst.WorkflowName, inst.WorkflowVersion, int(inst.Status), input, output, state, inst.CurrentActivityID, instErr, inst.RetryCount,
			inst.ParentInstanceID, inst.CorrelationID, inst.WorkerID, tags, metadata, inst.CreatedAt.UnixNano(), startedAt, completedAt, inst.UpdatedAt.UnixNano(),
		)
	}
	return s.db.ExecContext(ctx, `
		UPDATE instances SET workflow_name = ?, workflow_version = ?, status = ?, input = ?, output = ?, state = ?, current_activity_id = ?, error = ?, retry_count = ?, parent_instance_id = ?, correlation_id = ?, worker_id = ?, tags = ?, metadata = ?, started_at = ?, completed_at = ?, updated_at = ?
		WHERE id = ?`,
		inst.WorkflowName, inst.WorkflowVersion, int(inst.Status), input, output, state, inst.CurrentActivityID, instErr, inst.RetryCount,
		inst.ParentInstanceID, inst.CorrelationID, inst.WorkerID, tags, metadata, startedAt, completedAt, inst.UpdatedAt.UnixNano(), inst.ID,
	)
}

func (s *SQLiteInstanceStore) Save(ctx context.Context, inst *api.WorkflowInstance) error {
	_, err := s.exec(ctx, true, inst)
	return err
}

func (s *SQLiteInstanceStore) Update(ctx context.Context, inst *api.WorkflowInstance) error {
	res, err := s.exec(ctx, false, inst)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrInstanceNotFound
	}
	return nil
}

const instanceColumns = `id, workflow_name, workflow_version, status, input, output, state, current_activity_id, error, retry_count, parent_instance_id, correlation_id, worker_id, tags, metadata, created_at, started_at, completed_at, updated_at`

func scanInstance(scan func(dest ...any) error) (*api.WorkflowInstance, error) {
	var (
		inst                                           api.WorkflowInstance
		status                                         int
		input, output, state, instErr, tags, metadata  []byte
		currentActivityID                              sql.NullString
		parentInstanceID, correlationID, workerID       sql.NullString
		createdAt, updatedAt                           int64
		startedAt, completedAt                         sql.NullInt64
	)
	if err := scan(&inst.ID, &inst.WorkflowName, &inst.WorkflowVersion, &status, &input, &output, &state, &currentActivityID, &instErr, &inst.RetryCount,
		&parentInstanceID, &correlationID, &workerID, &tags, &metadata, &createdAt, &startedAt, &completedAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInstanceNotFound
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
	if inst.Input, err = DecodeValue[map[string]any](input); err != nil {
		return nil, err
	}
	if inst.Output, err = DecodeValue[map[string]any](output); err != nil {
		return nil, err
	}
	if inst.State, err = DecodeValue[map[string]any](state); err != nil {
		return nil, err
	}
	if inst.Error, err = DecodeValue[*api.InstanceError](instErr); err != nil {
		return nil, err
	}
	if inst.Tags, err = DecodeValue[[]string](tags); err != nil {
		return nil, err
	}
	if inst.Metadata, err = DecodeValue[map[string]any](metadata); err != nil {
		return nil, err
	}
	return &inst, nil
}

func (s *SQLiteInstanceStore) Get(ctx context.Context, id string) (*api.WorkflowInstance, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+instanceColumns+` FROM instances WHERE id = ?`, id)
	return scanInstance(row.Scan)
}

func (s *SQLiteInstanceStore) List(ctx context.Context, filter InstanceFilter) ([]*api.WorkflowInstance, error) {
	query := `SELECT ` + instanceColumns + ` FROM instances`
	var args []any
	var clauses []string

	if filter.WorkflowName != "" {
		clauses = append(clauses, "workflow_name = ?")
		args = append(args, filter.WorkflowName)
	}
	if filter.HasStatus {
		clauses = append(clauses, "status = ?")
		args = append(args, int(filter.Status))
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

func (s *SQLiteInstanceStore) ListStale(ctx context.Context, olderThan time.Duration) ([]*api.WorkflowInstance, error) {
	cutoff := time.Now().Add(-olderThan).UnixNano()
	rows, err := s.db.QueryContext(ctx, `SELECT `+instanceColumns+` FROM instances WHERE status = ? AND updated_at < ?`, int(api.StatusRunning), cutoff)
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

func (s *SQLiteInstanceStore) GetByCorrelationID(ctx context.Context, correlationID string) (*api.WorkflowInstance, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+instanceColumns+` FROM instances WHERE correlation_id = ?`, correlationID)
	return scanInstance(row.Scan)
}

func (s *SQLiteInstanceStore) GetByStatus(ctx context.Context, status api.Status, limit int) ([]*api.WorkflowInstance, error) {
	query := `SELECT ` + instanceColumns + ` FROM instances WHERE status = ?`
	args := []any{int(status)}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
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

func (s *SQLiteInstanceStore) Query(ctx context.Context, filter InstanceFilter, order InstanceSort, page Page) ([]*api.WorkflowInstance, error) {
	query := `SELECT ` + instanceColumns + ` FROM instances`
	var args []any
	var clauses []string

	if filter.WorkflowName != "" {
		clauses = append(clauses, "workflow_name = ?")
		args = append(args, filter.WorkflowName)
	}
	if filter.HasStatus {
		clauses = append(clauses, "status = ?")
		args = append(args, int(filter.Status))
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}

	switch order {
	case SortCreatedAtAsc:
		query += " ORDER BY created_at ASC"
	case SortUpdatedAtDesc:
		query += " ORDER BY updated_at DESC"
	case SortUpdatedAtAsc:
		query += " ORDER BY updated_at ASC"
	default:
		query += " ORDER BY created_at DESC"
	}
	if page.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, page.Limit)
		query += " OFFSET ?"
		args = append(args, page.Offset)
	} else if page.Offset > 0 {
		query += " LIMIT -1 OFFSET ?"
		args = append(args, page.Offset)
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

func (s *SQLiteInstanceStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM instances WHERE id = ?`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrInstanceNotFound
	}
	return nil
}

func (s *SQLiteInstanceStore) Stats(ctx context.Context) (InstanceStats, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM instances GROUP BY status`)
	if err != nil {
		return InstanceStats{}, err
	}
	defer rows.Close()

	stats := InstanceStats{ByStatus: make(map[api.Status]int)}
	for rows.Next() {
		var status, count int
		if err := rows.Scan(&status, &count); err != nil {
			return InstanceStats{}, err
		}
		stats.ByStatus[api.Status(status)] = count
		stats.Total += count
	}
	return stats, rows.Err()
}

// SQLiteExecutionStore is an ExecutionStore backed by SQLite.
type SQLiteExecutionStore struct {
	db *sql.DB
}

var _ ExecutionStore = (*SQLiteExecutionStore)(nil)

func NewSQLiteExecutionStore(db *sql.DB) (*SQLiteExecutionStore, error) {
	s := &SQLiteExecutionStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteExecutionStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS executions (
			id TEXT PRIMARY KEY,
			workflow_instance_id TEXT NOT NULL,
			activity_id TEXT NOT NULL,
			activity_type TEXT NOT NULL,
			status INTEGER NOT NULL,
			input BLOB,
			output BLOB,
			error BLOB,
			attempt INTEGER NOT NULL,
			started_at INTEGER NOT NULL,
			completed_at INTEGER,
			duration_ms INTEGER
		);
		CREATE INDEX IF NOT EXISTS idx_executions_instance ON executions (workflow_instance_id);`,
	)
	return err
}

func (s *SQLiteExecutionStore) Append(ctx context.Context, exec api.ActivityExecution) error {
	input, err := EncodeValue(exec.Input)
	if err != nil {
		return err
	}
	output, err := EncodeValue(exec.Output)
	if err != nil {
		return err
	}
	execErr, err := EncodeValue(exec.Error)
	if err != nil {
		return err
	}

	var completedAt sql.NullInt64
	if exec.CompletedAt != nil {
		completedAt = sql.NullInt64{Int64: exec.CompletedAt.UnixNano(), Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO executions (id, workflow_instance_id, activity_id, activity_type, status, input, output, error, attempt, started_at, completed_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
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
			return api.ActivityExecution{}, ErrExecutionNotFound
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
	if exec.Input, err = DecodeValue[map[string]any](input); err != nil {
		return api.ActivityExecution{}, err
	}
	if exec.Output, err = DecodeValue[map[string]any](output); err != nil {
		return api.ActivityExecution{}, err
	}
	if exec.Error, err = DecodeValue[*api.InstanceError](execErr); err != nil {
		return api.ActivityExecution{}, err
	}
	return exec, nil
}

func (s *SQLiteExecutionStore) ListByInstance(ctx context.Context, instanceID string) ([]api.ActivityExecution, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+executionColumns+` FROM executions WHERE workflow_instance_id = ? ORDER BY started_at ASC`, instanceID)
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

func (s *SQLiteExecutionStore) Get(ctx context.Context, id string) (api.ActivityExecution, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+executionColumns+` FROM executions WHERE id = ?`, id)
	return scanExecution(row.Scan)
}

func (s *SQLiteExecutionStore) GetLatest(ctx context.Context, instanceID, activityID string) (api.ActivityExecution, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+executionColumns+` FROM executions WHERE workflow_instance_id = ? AND activity_id = ? ORDER BY started_at DESC LIMIT 1`, instanceID, activityID)
	return scanExecution(row.Scan)
}
