package deploydao

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/savaki/ddb/v2"
	"github.com/savaki/gox/slicex"
)

const latest = "latest"

// TableName returns the deploy table name for an environment
func TableName(env string) string {
	return fmt.Sprintf("%s-appsync-deploys", env)
}

// PK represents a DynamoDB partition key in format {api}/{env}
// Example: orders-api/dev
type PK string

// NewPK creates a new partition key from api name and env
func NewPK(api, env string) PK {
	return PK(fmt.Sprintf("%s/%s", api, env))
}

// ParsePK parses a partition key into its api and env components
func ParsePK(pk PK) (api, env string, err error) {
	s := string(pk)
	parts := strings.Split(s, "/")
	if len(parts) != 2 {
		return "", "", fmt.Errorf("invalid PK format: %s, expected {api}/{env}", s)
	}
	return parts[0], parts[1], nil
}

// String returns the string representation of the partition key
func (pk PK) String() string {
	return string(pk)
}

// ID represents a deploy ID in format {api}/{env}:{ksuid}
// Example: orders-api/dev:2HFj3kLmNoPqRsTuVwXy
type ID string

func (id ID) String() string {
	return string(id)
}

// ParseID parses a deploy ID into its partition key (pk) and sort key (sk) components
func ParseID(id ID) (pk PK, sk string, err error) {
	s := string(id)
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return "", "", fmt.Errorf("invalid deploy ID format: %s, expected {api}/{env}:{ksuid}", s)
	}
	return PK(parts[0]), parts[1], nil
}

// NewID constructs an ID from partition key and sort key
func NewID(pk PK, sk string) ID {
	return ID(fmt.Sprintf("%s:%s", pk, sk))
}

// Operation identifies what a deploy record did to the stack
type Operation string

const (
	OperationApply   Operation = "APPLY"
	OperationDestroy Operation = "DESTROY"
)

// DeployStatus represents the current status of a deploy
type DeployStatus string

const (
	DeployStatusPending    DeployStatus = "PENDING"
	DeployStatusInProgress DeployStatus = "IN_PROGRESS"
	DeployStatusSuccess    DeployStatus = "SUCCESS"
	DeployStatusFailed     DeployStatus = "FAILED"
)

// Record represents a deploy record in DynamoDB
type Record struct {
	PK         PK           `ddb:"hash" dynamodbav:"pk"`  // {api}/{env} - DynamoDB partition key
	SK         string       `ddb:"range" dynamodbav:"sk"` // KSUID - DynamoDB sort key
	ID         ID           `dynamodbav:"id,omitempty"`   // ID is only used for latest entries
	API        string       `dynamodbav:"api,omitempty"`  // API name only
	Env        string       `dynamodbav:"env,omitempty"`  // Environment name (dev, staging, prod)
	Operation  Operation    `dynamodbav:"operation,omitempty"`
	Status     DeployStatus `dynamodbav:"status,omitempty"`
	APIID      string       `dynamodbav:"api_id,omitempty"`   // AppSync API identifier
	Manifest   string       `dynamodbav:"manifest,omitempty"` // YAML source of the applied manifest
	Outputs    string       `dynamodbav:"outputs,omitempty"`  // JSON stack state after apply
	ErrorMsg   *string      `dynamodbav:"error_msg,omitempty"`
	CreatedAt  int64        `dynamodbav:"created_at,omitempty"`  // Unix epoch timestamp of creation
	FinishedAt *int64       `dynamodbav:"finished_at,omitempty"` // Unix epoch timestamp of completion
	UpdatedAt  int64        `dynamodbav:"updated_at,omitempty"`  // Unix epoch timestamp of last update
}

// GetID returns the full deploy ID in format: {api}/{env}:{ksuid}
func (r *Record) GetID() ID {
	if r.ID != "" {
		return r.ID
	}
	return NewID(r.PK, r.SK)
}

// GetID is the package-level accessor used with slicex.Map
func GetID(r Record) ID {
	return r.GetID()
}

// CreateInput contains the fields needed to create a new deploy record
type CreateInput struct {
	API       string    // AppSync API name
	Env       string    // Environment (dev, staging, prod)
	SK        string    // KSUID sort key
	Operation Operation // APPLY or DESTROY
	Manifest  string    // YAML source of the manifest being applied
}

// UpdateInput contains the fields that can be updated on a deploy record
type UpdateInput struct {
	PK       PK            // Partition key (api/env)
	SK       string        // Sort key (KSUID)
	Status   *DeployStatus // New status
	APIID    string        // AppSync API identifier (optional)
	Outputs  string        // JSON stack state (optional)
	ErrorMsg *string       // Error message (optional)
}

// DAO provides data access operations for deploy records
type DAO struct {
	db    *ddb.DDB
	table *ddb.Table
}

// New creates a new DAO instance
func New(client *dynamodb.Client, tableName string) *DAO {
	db := ddb.New(client)
	table := db.MustTable(tableName, &Record{})
	return &DAO{
		db:    db,
		table: table,
	}
}

// Create creates a new deploy record with initial status PENDING
func (d *DAO) Create(ctx context.Context, input CreateInput) (Record, error) {
	pk := NewPK(input.API, input.Env)
	now := time.Now().Unix()

	record := Record{
		PK:        pk,
		SK:        input.SK,
		API:       input.API,
		Env:       input.Env,
		Operation: input.Operation,
		Status:    DeployStatusPending,
		Manifest:  input.Manifest,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := d.table.Put(&record).RunWithContext(ctx)
	if err != nil {
		return Record{}, fmt.Errorf("failed to create deploy record: %w", err)
	}

	return record, nil
}

// Find retrieves a deploy record by ID
// Returns an error if not found or if there's a database error
func (d *DAO) Find(ctx context.Context, id ID) (Record, error) {
	pk, sk, err := ParseID(id)
	if err != nil {
		return Record{}, err
	}

	var record Record

	err = d.table.Get(pk.String()).
		Range(sk).
		ConsistentRead(true).
		ScanWithContext(ctx, &record)
	if err != nil {
		errStr := err.Error()
		if strings.Contains(errStr, "item not found") || strings.Contains(errStr, "ItemNotFound") {
			return Record{}, fmt.Errorf("deploy record not found: %s", id)
		}
		return Record{}, fmt.Errorf("failed to find deploy record: %w", err)
	}

	// If all fields are empty, item doesn't exist
	if record.PK == "" && record.SK == "" {
		return Record{}, fmt.Errorf("deploy record not found: %s", id)
	}

	return record, nil
}

// Delete removes a deploy record by ID
func (d *DAO) Delete(ctx context.Context, id ID) error {
	pk, sk, err := ParseID(id)
	if err != nil {
		return err
	}

	err = d.table.Delete(pk).
		Range(sk).
		RunWithContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete deploy record: %w", err)
	}

	return nil
}

// UpdateStatus updates the status of a deploy record and creates/updates a "latest" magic record
// The latest record has pk=latest/{env} and sk={original pk} to enable efficient queries for latest deploys
func (d *DAO) UpdateStatus(ctx context.Context, input UpdateInput) error {
	if input.Status == nil {
		return fmt.Errorf("status is required")
	}

	now := time.Now().Unix()

	update := d.table.Update(input.PK).
		Range(input.SK).
		Set("#Status = ?", string(*input.Status)).
		Set("#UpdatedAt = ?", now)

	// Set finishedAt for terminal states (SUCCESS or FAILED)
	if *input.Status == DeployStatusSuccess || *input.Status == DeployStatusFailed {
		update = update.Set("#FinishedAt = ?", now)
	}

	if input.APIID != "" {
		update = update.Set("#APIID = ?", input.APIID)
	}

	if input.Outputs != "" {
		update = update.Set("#Outputs = ?", input.Outputs)
	}

	if input.ErrorMsg != nil {
		update = update.Set("#ErrorMsg = ?", *input.ErrorMsg)
	}

	// Parse env from PK (format: {api}/{env})
	api, env, err := ParsePK(input.PK)
	if err != nil {
		return fmt.Errorf("failed to parse PK: %w", err)
	}

	latestRecord := &Record{
		PK:        NewPK(latest, env),
		SK:        input.PK.String(), // SK in latest record = PK from original (api/env identifier)
		ID:        NewID(input.PK, input.SK),
		API:       api,
		Env:       env,
		Status:    *input.Status,
		UpdatedAt: now,
	}

	// Write both the update and the latest record in a transaction
	put := d.table.Put(latestRecord)

	if _, err := d.db.TransactWriteItemsWithContext(ctx, update, put); err != nil {
		return err
	}

	return nil
}

// Query returns all deploys for a given api/env partition key
func (d *DAO) Query(ctx context.Context, pk PK) ([]Record, error) {
	var records []Record

	err := d.table.Query("#PK = ?", pk.String()).
		FindAllWithContext(ctx, &records)
	if err != nil {
		return nil, fmt.Errorf("failed to query deploys: %w", err)
	}

	return records, nil
}

// QueryByAPIEnv returns all deploys for a given api and environment
func (d *DAO) QueryByAPIEnv(ctx context.Context, api, env string) ([]Record, error) {
	pk := NewPK(api, env)
	return d.Query(ctx, pk)
}

// QueryLatestDeploys returns the latest deploy for each api in the given environment
// It queries the "latest" magic records where pk=latest/{env} and sk={api}/{env}
func (d *DAO) QueryLatestDeploys(ctx context.Context, env string) ([]Record, error) {
	pk := NewPK(latest, env)
	var records []Record

	err := d.table.Query("#PK = ?", pk).
		FindAllWithContext(ctx, &records)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest deploys: %w", err)
	}

	// Sort by UpdatedAt descending (most recent first)
	// The records are already sorted by SK (api/env), but we want to sort by time
	for i := 0; i < len(records)-1; i++ {
		for j := i + 1; j < len(records); j++ {
			if records[j].UpdatedAt > records[i].UpdatedAt {
				records[i], records[j] = records[j], records[i]
			}
		}
	}

	ids := slicex.Map(records, GetID)

	// Load full deploy records for each ID
	deploys := make([]Record, 0, len(ids))
	for _, id := range ids {
		record, err := d.Find(ctx, id)
		if err != nil {
			// Skip records that are not found (may have been deleted)
			continue
		}
		deploys = append(deploys, record)
	}

	return deploys, nil
}
