// Package schema resolves a manifest's schema reference to GraphQL SDL
// text and validates it locally before any AWS call.
package schema

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	graphql "github.com/graph-gophers/graphql-go"
	"github.com/savaki/appsync-deployer/internal/manifest"
)

// S3API is the subset of the S3 client the loader needs
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Loader fetches SDL from inline text, a local file, or S3
type Loader struct {
	s3Client S3API
}

// NewLoader creates a schema loader. s3Client may be nil when manifests
// never reference s3:// schemas.
func NewLoader(s3Client S3API) *Loader {
	return &Loader{s3Client: s3Client}
}

// Load resolves the schema reference and validates the SDL
func (l *Loader) Load(ctx context.Context, ref manifest.SchemaRef) (string, error) {
	var (
		sdl string
		err error
	)
	switch {
	case ref.Inline != "":
		sdl = ref.Inline
	case ref.File != "":
		sdl, err = loadFile(ref.File)
	case ref.S3 != "":
		sdl, err = l.loadS3(ctx, ref.S3)
	default:
		return "", fmt.Errorf("schema reference is empty")
	}
	if err != nil {
		return "", err
	}

	if err := Validate(sdl); err != nil {
		return "", err
	}
	return sdl, nil
}

func loadFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read schema file %s: %w", path, err)
	}
	return string(data), nil
}

func (l *Loader) loadS3(ctx context.Context, uri string) (string, error) {
	if l.s3Client == nil {
		return "", fmt.Errorf("s3 schema %s requires an s3 client", uri)
	}

	bucket, key, err := ParseS3URI(uri)
	if err != nil {
		return "", err
	}

	result, err := l.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return "", fmt.Errorf("failed to download schema from %s: %w", uri, err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read schema body from %s: %w", uri, err)
	}
	return string(data), nil
}

// ParseS3URI splits s3://bucket/key into its components
func ParseS3URI(uri string) (bucket, key string, err error) {
	trimmed, ok := strings.CutPrefix(uri, "s3://")
	if !ok {
		return "", "", fmt.Errorf("invalid s3 uri %q, expected s3://bucket/key", uri)
	}
	bucket, key, ok = strings.Cut(trimmed, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("invalid s3 uri %q, expected s3://bucket/key", uri)
	}
	return bucket, key, nil
}

// appsyncDirectives declares the directives AppSync injects into every
// schema. They never appear in user SDL, so the parser needs them
// declared up front or it rejects schemas that use them.
const appsyncDirectives = `directive @aws_subscribe(mutations: [String!]!) on FIELD_DEFINITION
directive @aws_api_key on OBJECT | FIELD_DEFINITION
directive @aws_iam on OBJECT | FIELD_DEFINITION
directive @aws_oidc on OBJECT | FIELD_DEFINITION
directive @aws_lambda on OBJECT | FIELD_DEFINITION
directive @aws_cognito_user_pools(cognito_groups: [String!]) on OBJECT | FIELD_DEFINITION
directive @aws_auth(cognito_groups: [String!]) on FIELD_DEFINITION
directive @aws_publish(subscriptions: [String!]) on FIELD_DEFINITION
`

// Validate parses the SDL so malformed schemas fail before upload.
// AppSync would reject them anyway, but only after the API and logging
// resources were already touched. The AppSync built-in directives are
// prepended so schemas that use them parse cleanly.
func Validate(sdl string) error {
	if strings.TrimSpace(sdl) == "" {
		return fmt.Errorf("schema is empty")
	}
	if _, err := graphql.ParseSchema(appsyncDirectives+"\n"+sdl, nil); err != nil {
		return fmt.Errorf("invalid graphql schema: %w", err)
	}
	return nil
}
