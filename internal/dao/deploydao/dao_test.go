package deploydao

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/savaki/ddb/v2"
	"github.com/savaki/ddb/v2/ddbtest"
	"github.com/segmentio/ksuid"
	"github.com/stretchr/testify/assert"
)

type Data struct {
	DAO *DAO
}

// setup creates a DAO backed by local DynamoDB.
// Set DYNAMODB_ENDPOINT to override the endpoint (default http://localhost:8000).
func setup(t *testing.T) (ctx context.Context, data Data, cleanup func()) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	endpoint := os.Getenv("DYNAMODB_ENDPOINT")
	if endpoint == "" {
		endpoint = "http://localhost:8000"
	}

	ctx = context.Background()

	cfg, err := config.LoadDefaultConfig(
		ctx,
		config.WithRegion("us-west-2"),
		config.WithBaseEndpoint(endpoint),
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider("blah", "blah", ""),
		),
	)
	assert.NoError(t, err)

	var (
		client    = dynamodb.NewFromConfig(cfg)
		db        = ddb.New(client)
		tableName = fmt.Sprintf("deploys-test-%v", ksuid.New().String())
		table     = db.MustTable(tableName, Record{})
		dao       = New(client, tableName)
	)

	err = table.CreateTableIfNotExists(ctx)
	assert.NoError(t, err)

	return ctx, Data{DAO: dao}, func() {
		_ = table.DeleteTableIfExists(ctx)
	}
}

func TestParseID(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		sk := ksuid.New().String()
		id := NewID(NewPK("orders-api", "dev"), sk)

		pk, gotSK, err := ParseID(id)
		assert.NoError(t, err)
		assert.Equal(t, PK("orders-api/dev"), pk)
		assert.Equal(t, sk, gotSK)
	})

	t.Run("invalid format", func(t *testing.T) {
		_, _, err := ParseID("no-separator")
		assert.Error(t, err)
	})
}

func TestParsePK(t *testing.T) {
	api, env, err := ParsePK(NewPK("orders-api", "prod"))
	assert.NoError(t, err)
	assert.Equal(t, "orders-api", api)
	assert.Equal(t, "prod", env)

	_, _, err = ParsePK("too/many/parts")
	assert.Error(t, err)
}

func TestDAO(t *testing.T) {
	ddbtest.WithTable[Data](t, setup, func(t *testing.T, ctx context.Context, data Data) {
		dao := data.DAO

		t.Run("Create", func(t *testing.T) {
			sk := ksuid.New().String()

			created, err := dao.Create(ctx, CreateInput{
				API:       "orders-api",
				Env:       "dev",
				SK:        sk,
				Operation: OperationApply,
				Manifest:  "name: orders-api",
			})
			assert.NoError(t, err)

			record, err := dao.Find(ctx, created.GetID())
			assert.NoError(t, err)
			assert.Equal(t, "orders-api/dev", record.PK.String())
			assert.Equal(t, sk, record.SK)
			assert.Equal(t, OperationApply, record.Operation)
			assert.Equal(t, DeployStatusPending, record.Status)
			assert.Equal(t, "name: orders-api", record.Manifest)
			assert.NotZero(t, record.CreatedAt)
			assert.NotZero(t, record.UpdatedAt)
		})

		t.Run("Find_NotFound", func(t *testing.T) {
			id := NewID(NewPK("ghost-api", "dev"), ksuid.New().String())
			_, err := dao.Find(ctx, id)
			assert.Error(t, err, "should return error for non-existent record")
		})

		t.Run("UpdateStatus_InProgress", func(t *testing.T) {
			sk := ksuid.New().String()
			pk := NewPK("progress-api", "dev")

			created, err := dao.Create(ctx, CreateInput{
				API:       "progress-api",
				Env:       "dev",
				SK:        sk,
				Operation: OperationApply,
			})
			assert.NoError(t, err)

			status := DeployStatusInProgress
			err = dao.UpdateStatus(ctx, UpdateInput{
				PK:     pk,
				SK:     sk,
				Status: &status,
				APIID:  "api-123",
			})
			assert.NoError(t, err)

			record, err := dao.Find(ctx, created.GetID())
			assert.NoError(t, err)
			assert.Equal(t, DeployStatusInProgress, record.Status)
			assert.Equal(t, "api-123", record.APIID)
			assert.Nil(t, record.FinishedAt)
		})

		t.Run("UpdateStatus_Success", func(t *testing.T) {
			sk := ksuid.New().String()
			pk := NewPK("success-api", "dev")

			created, err := dao.Create(ctx, CreateInput{
				API:       "success-api",
				Env:       "dev",
				SK:        sk,
				Operation: OperationApply,
			})
			assert.NoError(t, err)

			status := DeployStatusSuccess
			err = dao.UpdateStatus(ctx, UpdateInput{
				PK:      pk,
				SK:      sk,
				Status:  &status,
				APIID:   "api-456",
				Outputs: `{"api_id":"api-456"}`,
			})
			assert.NoError(t, err)

			record, err := dao.Find(ctx, created.GetID())
			assert.NoError(t, err)
			assert.Equal(t, DeployStatusSuccess, record.Status)
			assert.Equal(t, `{"api_id":"api-456"}`, record.Outputs)
			assert.NotNil(t, record.FinishedAt)
		})

		t.Run("UpdateStatus_Failed", func(t *testing.T) {
			sk := ksuid.New().String()
			pk := NewPK("failed-api", "dev")

			_, err := dao.Create(ctx, CreateInput{
				API:       "failed-api",
				Env:       "dev",
				SK:        sk,
				Operation: OperationApply,
			})
			assert.NoError(t, err)

			status := DeployStatusFailed
			errorMsg := "schema creation failed: syntax error"
			err = dao.UpdateStatus(ctx, UpdateInput{
				PK:       pk,
				SK:       sk,
				Status:   &status,
				ErrorMsg: &errorMsg,
			})
			assert.NoError(t, err)

			record, err := dao.Find(ctx, NewID(pk, sk))
			assert.NoError(t, err)
			assert.Equal(t, DeployStatusFailed, record.Status)
			assert.NotNil(t, record.ErrorMsg)
			assert.Equal(t, errorMsg, *record.ErrorMsg)
			assert.NotNil(t, record.FinishedAt)
		})

		t.Run("QueryByAPIEnv", func(t *testing.T) {
			api := "query-api"
			env := "staging"

			for i := 0; i < 3; i++ {
				_, err := dao.Create(ctx, CreateInput{
					API:       api,
					Env:       env,
					SK:        ksuid.New().String(),
					Operation: OperationApply,
				})
				assert.NoError(t, err)
			}

			records, err := dao.QueryByAPIEnv(ctx, api, env)
			assert.NoError(t, err)
			assert.Len(t, records, 3)
		})

		t.Run("QueryLatestDeploys", func(t *testing.T) {
			env := "latest-env"

			for _, api := range []string{"api-a", "api-b"} {
				sk := ksuid.New().String()
				_, err := dao.Create(ctx, CreateInput{
					API:       api,
					Env:       env,
					SK:        sk,
					Operation: OperationApply,
				})
				assert.NoError(t, err)

				status := DeployStatusSuccess
				err = dao.UpdateStatus(ctx, UpdateInput{
					PK:     NewPK(api, env),
					SK:     sk,
					Status: &status,
				})
				assert.NoError(t, err)
			}

			records, err := dao.QueryLatestDeploys(ctx, env)
			assert.NoError(t, err)
			assert.Len(t, records, 2)
			for _, record := range records {
				assert.Equal(t, DeployStatusSuccess, record.Status)
			}
		})

		t.Run("Delete", func(t *testing.T) {
			sk := ksuid.New().String()

			created, err := dao.Create(ctx, CreateInput{
				API:       "delete-api",
				Env:       "dev",
				SK:        sk,
				Operation: OperationDestroy,
			})
			assert.NoError(t, err)

			id := created.GetID()

			_, err = dao.Find(ctx, id)
			assert.NoError(t, err)

			err = dao.Delete(ctx, id)
			assert.NoError(t, err)

			_, err = dao.Find(ctx, id)
			assert.Error(t, err, "should return error after delete")
		})
	})
}
