package schema

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/savaki/appsync-deployer/internal/manifest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validSDL = `
schema {
	query: Query
}

type Query {
	order(id: ID!): Order
}

type Order {
	id: ID!
	total: Int!
}
`

type fakeS3 struct {
	bucket string
	key    string
	body   string
	err    error
}

func (f *fakeS3) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.bucket = aws.ToString(params.Bucket)
	f.key = aws.ToString(params.Key)
	if f.err != nil {
		return nil, f.err
	}
	return &s3.GetObjectOutput{
		Body: io.NopCloser(bytes.NewBufferString(f.body)),
	}, nil
}

func TestLoad(t *testing.T) {
	ctx := context.Background()

	t.Run("inline", func(t *testing.T) {
		loader := NewLoader(nil)
		sdl, err := loader.Load(ctx, manifest.SchemaRef{Inline: validSDL})
		require.NoError(t, err)
		assert.Equal(t, validSDL, sdl)
	})

	t.Run("file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "schema.graphql")
		require.NoError(t, os.WriteFile(path, []byte(validSDL), 0o644))

		loader := NewLoader(nil)
		sdl, err := loader.Load(ctx, manifest.SchemaRef{File: path})
		require.NoError(t, err)
		assert.Equal(t, validSDL, sdl)
	})

	t.Run("file missing", func(t *testing.T) {
		loader := NewLoader(nil)
		_, err := loader.Load(ctx, manifest.SchemaRef{File: filepath.Join(t.TempDir(), "nope.graphql")})
		assert.Error(t, err)
	})

	t.Run("s3", func(t *testing.T) {
		fake := &fakeS3{body: validSDL}
		loader := NewLoader(fake)
		sdl, err := loader.Load(ctx, manifest.SchemaRef{S3: "s3://schemas/orders/schema.graphql"})
		require.NoError(t, err)
		assert.Equal(t, validSDL, sdl)
		assert.Equal(t, "schemas", fake.bucket)
		assert.Equal(t, "orders/schema.graphql", fake.key)
	})

	t.Run("s3 without client", func(t *testing.T) {
		loader := NewLoader(nil)
		_, err := loader.Load(ctx, manifest.SchemaRef{S3: "s3://schemas/schema.graphql"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "requires an s3 client")
	})

	t.Run("invalid sdl rejected", func(t *testing.T) {
		loader := NewLoader(nil)
		_, err := loader.Load(ctx, manifest.SchemaRef{Inline: "type Query {"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid graphql schema")
	})

	t.Run("blank sdl rejected", func(t *testing.T) {
		loader := NewLoader(nil)
		_, err := loader.Load(ctx, manifest.SchemaRef{Inline: "   \n"})
		assert.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	t.Run("appsync directives accepted", func(t *testing.T) {
		sdl := `
schema {
	query: Query
	mutation: Mutation
	subscription: Subscription
}

type Query {
	order(id: ID!): Order @aws_api_key @aws_iam
}

type Mutation {
	putOrder(id: ID!): Order
}

type Subscription {
	onPutOrder(id: ID!): Order @aws_subscribe(mutations: ["putOrder"])
}

type Order @aws_cognito_user_pools(cognito_groups: ["admins"]) {
	id: ID!
	total: Int! @aws_auth(cognito_groups: ["admins"])
}
`
		assert.NoError(t, Validate(sdl))
	})

	t.Run("unknown directive still rejected", func(t *testing.T) {
		err := Validate(`type Query { order: ID @not_a_directive }`)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid graphql schema")
	})
}

func TestParseS3URI(t *testing.T) {
	tests := []struct {
		uri        string
		bucket     string
		key        string
		wantErr    bool
	}{
		{uri: "s3://bucket/key", bucket: "bucket", key: "key"},
		{uri: "s3://bucket/nested/key.graphql", bucket: "bucket", key: "nested/key.graphql"},
		{uri: "http://bucket/key", wantErr: true},
		{uri: "s3://bucket", wantErr: true},
		{uri: "s3:///key", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.uri, func(t *testing.T) {
			bucket, key, err := ParseS3URI(tc.uri)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.bucket, bucket)
			assert.Equal(t, tc.key, key)
		})
	}
}
