// Package persistence implements the DefinitionStore, InstanceStore, and
// ExecutionStore ports against MongoDB.
package persistence

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	corep "github.com/flowforge/flowforge/internal/persistence"
	"github.com/flowforge/flowforge/pkg/api"
)

// MongoDefinitionStore is a corep.DefinitionStore backed by MongoDB.
type MongoDefinitionStore struct {
	coll *mongo.Collection
}

var _ corep.DefinitionStore = (*MongoDefinitionStore)(nil)

type mongoDefinitionDoc struct {
	Name             string `bson:"name"`
	Version          int    `bson:"version"`
	IsActive         bool   `bson:"is_active"`
	StartActivityID  string `bson:"start_activity_id"`
	Activities       []byte `bson:"activities"`
	Transitions      []byte `bson:"transitions,omitempty"`
	InputSchema      []byte `bson:"input_schema,omitempty"`
	OutputSchema     []byte `bson:"output_schema,omitempty"`
	Trigger          []byte `bson:"trigger,omitempty"`
	DefaultRetry     []byte `bson:"default_retry_policy,omitempty"`
	TimeoutNS        int64  `bson:"timeout_ns"`
	Tags             []byte `bson:"tags,omitempty"`
	CreatedAt        int64  `bson:"created_at"`
}

// NewMongoDefinitionStore creates a Mongo-backed definition store. dbName
// defaults to "flowforge", collName to "definitions".
func NewMongoDefinitionStore(client *mongo.Client, dbName, collName string) *MongoDefinitionStore {
	if dbName == "" {
		dbName = "flowforge"
	}
	if collName == "" {
		collName = "definitions"
	}
	return &MongoDefinitionStore{coll: client.Database(dbName).Collection(collName)}
}

func encodeDefinition(def api.WorkflowDefinition) (mongoDefinitionDoc, error) {
	activities, err := corep.EncodeValue(def.Activities)
	if err != nil {
		return mongoDefinitionDoc{}, err
	}
	transitions, err := corep.EncodeValue(def.Transitions)
	if err != nil {
		return mongoDefinitionDoc{}, err
	}
	inputSchema, err := corep.EncodeValue(def.InputSchema)
	if err != nil {
		return mongoDefinitionDoc{}, err
	}
	outputSchema, err := corep.EncodeValue(def.OutputSchema)
	if err != nil {
		return mongoDefinitionDoc{}, err
	}
	trigger, err := corep.EncodeValue(def.Trigger)
	if err != nil {
		return mongoDefinitionDoc{}, err
	}
	retryPolicy, err := corep.EncodeValue(def.DefaultRetryPolicy)
	if err != nil {
		return mongoDefinitionDoc{}, err
	}
	tags, err := corep.EncodeValue(def.Tags)
	if err != nil {
		return mongoDefinitionDoc{}, err
	}
	return mongoDefinitionDoc{
		Name:            def.Name,
		Version:         def.Version,
		IsActive:        def.IsActive,
		StartActivityID: def.StartActivityID,
		Activities:      activities,
		Transitions:     transitions,
		InputSchema:     inputSchema,
		OutputSchema:    outputSchema,
		Trigger:         trigger,
		DefaultRetry:    retryPolicy,
		TimeoutNS:       int64(def.Timeout),
		Tags:            tags,
		CreatedAt:       def.CreatedAt.UnixNano(),
	}, nil
}

func decodeDefinition(doc mongoDefinitionDoc) (api.WorkflowDefinition, error) {
	def := api.WorkflowDefinition{
		Name:            doc.Name,
		Version:         doc.Version,
		IsActive:        doc.IsActive,
		StartActivityID: doc.StartActivityID,
		Timeout:         time.Duration(doc.TimeoutNS),
		CreatedAt:       time.Unix(0, doc.CreatedAt),
	}
	var err error
	if def.Activities, err = corep.DecodeValue[[]api.ActivityDefinition](doc.Activities); err != nil {
		return api.WorkflowDefinition{}, err
	}
	if def.Transitions, err = corep.DecodeValue[[]api.TransitionDefinition](doc.Transitions); err != nil {
		return api.WorkflowDefinition{}, err
	}
	if def.InputSchema, err = corep.DecodeValue[*api.JSONSchema](doc.InputSchema); err != nil {
		return api.WorkflowDefinition{}, err
	}
	if def.OutputSchema, err = corep.DecodeValue[*api.JSONSchema](doc.OutputSchema); err != nil {
		return api.WorkflowDefinition{}, err
	}
	if def.Trigger, err = corep.DecodeValue[*api.Trigger](doc.Trigger); err != nil {
		return api.WorkflowDefinition{}, err
	}
	if def.DefaultRetryPolicy, err = corep.DecodeValue[*api.RetryPolicy](doc.DefaultRetry); err != nil {
		return api.WorkflowDefinition{}, err
	}
	if def.Tags, err = corep.DecodeValue[[]string](doc.Tags); err != nil {
		return api.WorkflowDefinition{}, err
	}
	return def, nil
}

func (s *MongoDefinitionStore) Save(ctx context.Context, def api.WorkflowDefinition) (api.WorkflowDefinition, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "version", Value: -1}})
	var latest mongoDefinitionDoc
	err := s.coll.FindOne(ctx, bson.M{"name": def.Name}, opts).Decode(&latest)
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		def.Version = 1
	case err != nil:
		return api.WorkflowDefinition{}, err
	default:
		def.Version = latest.Version + 1
	}
	def.IsActive = true
	if def.CreatedAt.IsZero() {
		def.CreatedAt = time.Now()
	}

	if _, err := s.coll.UpdateMany(ctx, bson.M{"name": def.Name}, bson.M{"$set": bson.M{"is_active": false}}); err != nil {
		return api.WorkflowDefinition{}, err
	}

	doc, err := encodeDefinition(def)
	if err != nil {
		return api.WorkflowDefinition{}, err
	}
	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		return api.WorkflowDefinition{}, err
	}
	return def, nil
}

func (s *MongoDefinitionStore) Get(ctx context.Context, name string, version int) (api.WorkflowDefinition, error) {
	var doc mongoDefinitionDoc
	err := s.coll.FindOne(ctx, bson.M{"name": name, "version": version}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return api.WorkflowDefinition{}, corep.ErrDefinitionNotFound
	}
	if err != nil {
		return api.WorkflowDefinition{}, err
	}
	return decodeDefinition(doc)
}

func (s *MongoDefinitionStore) GetActive(ctx context.Context, name string) (api.WorkflowDefinition, error) {
	var doc mongoDefinitionDoc
	err := s.coll.FindOne(ctx, bson.M{"name": name, "is_active": true}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return api.WorkflowDefinition{}, corep.ErrAmbiguousVersion
	}
	if err != nil {
		return api.WorkflowDefinition{}, err
	}
	return decodeDefinition(doc)
}

func (s *MongoDefinitionStore) ListVersions(ctx context.Context, name string) ([]api.WorkflowDefinition, error) {
	opts := options.Find().SetSort(bson.D{{Key: "version", Value: 1}})
	cur, err := s.coll.Find(ctx, bson.M{"name": name}, opts)
	if err != nil {
		return nil, err
	}
	return decodeDefinitions(ctx, cur)
}

func (s *MongoDefinitionStore) ListActive(ctx context.Context) ([]api.WorkflowDefinition, error) {
	opts := options.Find().SetSort(bson.D{{Key: "name", Value: 1}})
	cur, err := s.coll.Find(ctx, bson.M{"is_active": true}, opts)
	if err != nil {
		return nil, err
	}
	return decodeDefinitions(ctx, cur)
}

func decodeDefinitions(ctx context.Context, cur *mongo.Cursor) ([]api.WorkflowDefinition, error) {
	defer cur.Close(ctx)
	var out []api.WorkflowDefinition
	for cur.Next(ctx) {
		var doc mongoDefinitionDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		def, err := decodeDefinition(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, def)
	}
	return out, cur.Err()
}

func (s *MongoDefinitionStore) Deactivate(ctx context.Context, name string, version int) error {
	res, err := s.coll.UpdateOne(ctx, bson.M{"name": name, "version": version}, bson.M{"$set": bson.M{"is_active": false}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return corep.ErrDefinitionNotFound
	}
	return nil
}

func (s *MongoDefinitionStore) List(ctx context.Context, includeInactive bool) ([]api.WorkflowDefinition, error) {
	filter := bson.M{}
	if !includeInactive {
		filter["is_active"] = true
	}
	opts := options.Find().SetSort(bson.D{{Key: "name", Value: 1}, {Key: "version", Value: 1}})
	cur, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	return decodeDefinitions(ctx, cur)
}

func (s *MongoDefinitionStore) SetActive(ctx context.Context, name string, version int, active bool) error {
	res, err := s.coll.UpdateOne(ctx, bson.M{"name": name, "version": version}, bson.M{"$set": bson.M{"is_active": active}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return corep.ErrDefinitionNotFound
	}
	return nil
}

func (s *MongoDefinitionStore) Delete(ctx context.Context, name string, version int) error {
	res, err := s.coll.DeleteOne(ctx, bson.M{"name": name, "version": version})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return corep.ErrDefinitionNotFound
	}
	return nil
}

func (s *MongoDefinitionStore) Exists(ctx context.Context, name string) (bool, error) {
	count, err := s.coll.CountDocuments(ctx, bson.M{"name": name})
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// MongoInstanceStore is a corep.InstanceStore backed by MongoDB.
type MongoInstanceStore struct {
	coll *mongo.Collection
}

var _ corep.InstanceStore = (*MongoInstanceStore)(nil)

type mongoInstanceDoc struct {
	ID                 string `bson:"_id"`
	WorkflowName       string `bson:"workflow_name"`
	WorkflowVersion    int    `bson:"workflow_version"`
	Status             int    `bson:"status"`
	Input              []byte `bson:"input,omitempty"`
	Output             []byte `bson:"output,omitempty"`
	State              []byte `bson:"state,omitempty"`
	CurrentActivityID  string `bson:"current_activity_id,omitempty"`
	Error              []byte `bson:"error,omitempty"`
	RetryCount         int    `bson:"retry_count"`
	ParentInstanceID   string `bson:"parent_instance_id,omitempty"`
	CorrelationID      string `bson:"correlation_id,omitempty"`
	WorkerID           string `bson:"worker_id,omitempty"`
	Tags               []byte `bson:"tags,omitempty"`
	Metadata           []byte `bson:"metadata,omitempty"`
	CreatedAt          int64  `bson:"created_at"`
	StartedAt          *int64 `bson:"started_at,omitempty"`
	CompletedAt        *int64 `bson:"completed_at,omitempty"`
	UpdatedAt          int64  `bson:"updated_at"`
}

// NewMongoInstanceStore creates a Mongo-backed instance store. dbName
// defaults to "flowforge", collName to "instances".
func NewMongoInstanceStore(client *mongo.Client, dbName, collName string) *MongoInstanceStore {
	if dbName == "" {
		dbName = "flowforge"
	}
	if collName == "" {
		collName = "instances"
	}
	return &MongoInstanceStore{coll: client.Database(dbName).Collection(collName)}
}

func encodeInstance(inst *api.WorkflowInstance) (mongoInstanceDoc, error) {
	input, err := corep.EncodeValue(inst.Input)
	if err != nil {
		return mongoInstanceDoc{}, err
	}
	output, err := corep.EncodeValue(inst.Output)
	if err != nil {
		return mongoInstanceDoc{}, err
	}
	state, err := corep.EncodeValue(inst.State)
	if err != nil {
		return mongoInstanceDoc{}, err
	}
	instErr, err := corep.EncodeValue(inst.Error)
	if err != nil {
		return mongoInstanceDoc{}, err
	}
	tags, err := corep.EncodeValue(inst.Tags)
	if err != nil {
		return mongoInstanceDoc{}, err
	}
	metadata, err := corep.EncodeValue(inst.Metadata)
	if err != nil {
		return mongoInstanceDoc{}, err
	}

	if inst.UpdatedAt.IsZero() {
		inst.UpdatedAt = time.Now()
	}
	if inst.CreatedAt.IsZero() {
		inst.CreatedAt = time.Now()
	}

	doc := mongoInstanceDoc{
		ID:                inst.ID,
		WorkflowName:      inst.WorkflowName,
		WorkflowVersion:   inst.WorkflowVersion,
		Status:            int(inst.Status),
		Input:             input,
		Output:            output,
		State:             state,
		CurrentActivityID: inst.CurrentActivityID,
		Error:             instErr,
		RetryCount:        inst.RetryCount,
		ParentInstanceID:  inst.ParentInstanceID,
		CorrelationID:     inst.CorrelationID,
		WorkerID:          inst.WorkerID,
		Tags:              tags,
		Metadata:          metadata,
		CreatedAt:         inst.CreatedAt.UnixNano(),
		UpdatedAt:         inst.UpdatedAt.UnixNano(),
	}
	if inst.StartedAt != nil {
		ns := inst.StartedAt.UnixNano()
		doc.StartedAt = &ns
	}
	if inst.CompletedAt != nil {
		ns := inst.CompletedAt.UnixNano()
		doc.CompletedAt = &ns
	}
	return doc, nil
}

func decodeInstance(doc mongoInstanceDoc) (*api.WorkflowInstance, error) {
	inst := &api.WorkflowInstance{
		ID:                doc.ID,
		WorkflowName:      doc.WorkflowName,
		WorkflowVersion:   doc.WorkflowVersion,
		Status:            api.Status(doc.Status),
		CurrentActivityID: doc.CurrentActivityID,
		RetryCount:        doc.RetryCount,
		ParentInstanceID:  doc.ParentInstanceID,
		CorrelationID:     doc.CorrelationID,
		WorkerID:          doc.WorkerID,
		CreatedAt:         time.Unix(0, doc.CreatedAt),
		UpdatedAt:         time.Unix(0, doc.UpdatedAt),
	}
	if doc.StartedAt != nil {
		t := time.Unix(0, *doc.StartedAt)
		inst.StartedAt = &t
	}
	if doc.CompletedAt != nil {
		t := time.Unix(0, *doc.CompletedAt)
		inst.CompletedAt = &t
	}

	var err error
	if inst.Input, err = corep.DecodeValue[map[string]any](doc.Input); err != nil {
		return nil, err
	}
	if inst.Output, err = corep.DecodeValue[map[string]any](doc.Output); err != nil {
		return nil, err
	}
	if inst.State, err = corep.DecodeValue[map[string]any](doc.State); err != nil {
		return nil, err
	}
	if inst.Error, err = corep.DecodeValue[*api.InstanceError](doc.Error); err != nil {
		return nil, err
	}
	if inst.Tags, err = corep.DecodeValue[[]string](doc.Tags); err != nil {
		return nil, err
	}
	if inst.Metadata, err = corep.DecodeValue[map[string]any](doc.Metadata); err != nil {
		return nil, err
	}
	return inst, nil
}

func (s *MongoInstanceStore) Save(ctx context.Context, inst *api.WorkflowInstance) error {
	doc, err := encodeInstance(inst)
	if err != nil {
		return err
	}
	_, err = s.coll.InsertOne(ctx, doc)
	return err
}

func (s *MongoInstanceStore) Update(ctx context.Context, inst *api.WorkflowInstance) error {
	doc, err := encodeInstance(inst)
	if err != nil {
		return err
	}
	res, err := s.coll.ReplaceOne(ctx, bson.M{"_id": inst.ID}, doc)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return corep.ErrInstanceNotFound
	}
	return nil
}

func (s *MongoInstanceStore) Get(ctx context.Context, id string) (*api.WorkflowInstance, error) {
	var doc mongoInstanceDoc
	err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, corep.ErrInstanceNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodeInstance(doc)
}

func (s *MongoInstanceStore) List(ctx context.Context, filter corep.InstanceFilter) ([]*api.WorkflowInstance, error) {
	bfilter := bson.M{}
	if filter.WorkflowName != "" {
		bfilter["workflow_name"] = filter.WorkflowName
	}
	if filter.HasStatus {
		bfilter["status"] = int(filter.Status)
	}

	cur, err := s.coll.Find(ctx, bfilter)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []*api.WorkflowInstance
	for cur.Next(ctx) {
		var doc mongoInstanceDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		inst, err := decodeInstance(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	return out, cur.Err()
}

func (s *MongoInstanceStore) ListStale(ctx context.Context, olderThan time.Duration) ([]*api.WorkflowInstance, error) {
	cutoff := time.Now().Add(-olderThan).UnixNano()
	cur, err := s.coll.Find(ctx, bson.M{"status": int(api.StatusRunning), "updated_at": bson.M{"$lt": cutoff}})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []*api.WorkflowInstance
	for cur.Next(ctx) {
		var doc mongoInstanceDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		inst, err := decodeInstance(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	return out, cur.Err()
}

func decodeInstanceCursor(ctx context.Context, cur *mongo.Cursor) ([]*api.WorkflowInstance, error) {
	defer cur.Close(ctx)
	var out []*api.WorkflowInstance
	for cur.Next(ctx) {
		var doc mongoInstanceDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		inst, err := decodeInstance(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	return out, cur.Err()
}

func (s *MongoInstanceStore) GetByCorrelationID(ctx context.Context, correlationID string) (*api.WorkflowInstance, error) {
	var doc mongoInstanceDoc
	err := s.coll.FindOne(ctx, bson.M{"correlation_id": correlationID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, corep.ErrInstanceNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodeInstance(doc)
}

func (s *MongoInstanceStore) GetByStatus(ctx context.Context, status api.Status, limit int) ([]*api.WorkflowInstance, error) {
	opts := options.Find()
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cur, err := s.coll.Find(ctx, bson.M{"status": int(status)}, opts)
	if err != nil {
		return nil, err
	}
	return decodeInstanceCursor(ctx, cur)
}

func (s *MongoInstanceStore) Query(ctx context.Context, filter corep.InstanceFilter, order corep.InstanceSort, page corep.Page) ([]*api.WorkflowInstance, error) {
	bfilter := bson.M{}
	if filter.WorkflowName != "" {
		bfilter["workflow_name"] = filter.WorkflowName
	}
	if filter.HasStatus {
		bfilter["status"] = int(filter.Status)
	}

	sortField, sortDir := "created_at", -1
	switch order {
	case corep.SortCreatedAtAsc:
		sortField, sortDir = "created_at", 1
	case corep.SortUpdatedAtDesc:
		sortField, sortDir = "updated_at", -1
	case corep.SortUpdatedAtAsc:
		sortField, sortDir = "updated_at", 1
	}
	opts := options.Find().SetSort(bson.D{{Key: sortField, Value: sortDir}})
	if page.Offset > 0 {
		opts.SetSkip(int64(page.Offset))
	}
	if page.Limit > 0 {
		opts.SetLimit(int64(page.Limit))
	}

	cur, err := s.coll.Find(ctx, bfilter, opts)
	if err != nil {
		return nil, err
	}
	return decodeInstanceCursor(ctx, cur)
}

func (s *MongoInstanceStore) Delete(ctx context.Context, id string) error {
	res, err := s.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return corep.ErrInstanceNotFound
	}
	return nil
}

func (s *MongoInstanceStore) Stats(ctx context.Context) (corep.InstanceStats, error) {
	cur, err := s.coll.Aggregate(ctx, bson.A{
		bson.M{"$group": bson.M{"_id": "$status", "count": bson.M{"$sum": 1}}},
	})
	if err != nil {
		return corep.InstanceStats{}, err
	}
	defer cur.Close(ctx)

	stats := corep.InstanceStats{ByStatus: make(map[api.Status]int)}
	for cur.Next(ctx) {
		var row struct {
			ID    int `bson:"_id"`
			Count int `bson:"count"`
		}
		if err := cur.Decode(&row); err != nil {
			return corep.InstanceStats{}, err
		}
		stats.ByStatus[api.Status(row.ID)] = row.Count
		stats.Total += row.Count
	}
	return stats, cur.Err()
}

// MongoExecutionStore is a corep.ExecutionStore backed by MongoDB.
type MongoExecutionStore struct {
	coll *mongo.Collection
}

var _ corep.ExecutionStore = (*MongoExecutionStore)(nil)

type mongoExecutionDoc struct {
	ID                 string `bson:"_id"`
	WorkflowInstanceID string `bson:"workflow_instance_id"`
	ActivityID         string `bson:"activity_id"`
	ActivityType       string `bson:"activity_type"`
	Status             int    `bson:"status"`
	Input              []byte `bson:"input,omitempty"`
	Output             []byte `bson:"output,omitempty"`
	Error              []byte `bson:"error,omitempty"`
	Attempt            int    `bson:"attempt"`
	StartedAt          int64  `bson:"started_at"`
	CompletedAt        *int64 `bson:"completed_at,omitempty"`
	DurationMS         int64  `bson:"duration_ms"`
}

// NewMongoExecutionStore creates a Mongo-backed execution store. dbName
// defaults to "flowforge", collName to "executions".
func NewMongoExecutionStore(client *mongo.Client, dbName, collName string) *MongoExecutionStore {
	if dbName == "" {
		dbName = "flowforge"
	}
	if collName == "" {
		collName = "executions"
	}
	return &MongoExecutionStore{coll: client.Database(dbName).Collection(collName)}
}

func (s *MongoExecutionStore) Append(ctx context.Context, exec api.ActivityExecution) error {
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

	doc := mongoExecutionDoc{
		ID:                 exec.ID,
		WorkflowInstanceID: exec.WorkflowInstanceID,
		ActivityID:         exec.ActivityID,
		ActivityType:       exec.ActivityType,
		Status:             int(exec.Status),
		Input:              input,
		Output:             output,
		Error:              execErr,
		Attempt:            exec.Attempt,
		StartedAt:          exec.StartedAt.UnixNano(),
		DurationMS:         exec.DurationMS,
	}
	if exec.CompletedAt != nil {
		ns := exec.CompletedAt.UnixNano()
		doc.CompletedAt = &ns
	}

	_, err = s.coll.InsertOne(ctx, doc)
	return err
}

func decodeExecution(doc mongoExecutionDoc) (api.ActivityExecution, error) {
	exec := api.ActivityExecution{
		ID:                 doc.ID,
		WorkflowInstanceID: doc.WorkflowInstanceID,
		ActivityID:         doc.ActivityID,
		ActivityType:       doc.ActivityType,
		Status:             api.ActivityStatus(doc.Status),
		Attempt:            doc.Attempt,
		StartedAt:          time.Unix(0, doc.StartedAt),
		DurationMS:         doc.DurationMS,
	}
	if doc.CompletedAt != nil {
		t := time.Unix(0, *doc.CompletedAt)
		exec.CompletedAt = &t
	}
	var err error
	if exec.Input, err = corep.DecodeValue[map[string]any](doc.Input); err != nil {
		return api.ActivityExecution{}, err
	}
	if exec.Output, err = corep.DecodeValue[map[string]any](doc.Output); err != nil {
		return api.ActivityExecution{}, err
	}
	if exec.Error, err = corep.DecodeValue[*api.InstanceError](doc.Error); err != nil {
		return api.ActivityExecution{}, err
	}
	return exec, nil
}

func (s *MongoExecutionStore) ListByInstance(ctx context.Context, instanceID string) ([]api.ActivityExecution, error) {
	opts := options.Find().SetSort(bson.D{{Key: "started_at", Value: 1}})
	cur, err := s.coll.Find(ctx, bson.M{"workflow_instance_id": instanceID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []api.ActivityExecution
	for cur.Next(ctx) {
		var doc mongoExecutionDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		exec, err := decodeExecution(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, exec)
	}
	return out, cur.Err()
}

func (s *MongoExecutionStore) Get(ctx context.Context, id string) (api.ActivityExecution, error) {
	var doc mongoExecutionDoc
	err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return api.ActivityExecution{}, corep.ErrExecutionNotFound
	}
	if err != nil {
		return api.ActivityExecution{}, err
	}
	return decodeExecution(doc)
}

func (s *MongoExecutionStore) GetLatest(ctx context.Context, instanceID, activityID string) (api.ActivityExecution, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "started_at", Value: -1}})
	var doc mongoExecutionDoc
	err := s.coll.FindOne(ctx, bson.M{"workflow_instance_id": instanceID, "activity_id": activityID}, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return api.ActivityExecution{}, corep.ErrExecutionNotFound
	}
	if err != nil {
		return api.ActivityExecution{}, err
	}
	return decodeExecution(doc)
}
