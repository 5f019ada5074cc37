// Package deployer reconciles a manifest against AWS: resources are
// created in reference order and destroyed in reverse.
package deployer

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/appsync/types"
	"github.com/rs/zerolog"
	"github.com/savaki/appsync-deployer/internal/manifest"
	"github.com/savaki/appsync-deployer/internal/services"
)

// Function and Resolver are re-exported so state consumers don't reach
// into the services package.
type (
	Function = services.Function
	Resolver = services.Resolver
)

// IAMAPI provisions the CloudWatch logging role
type IAMAPI interface {
	EnsureLoggingRole(ctx context.Context, apiName string) (*services.LoggingRole, error)
	DeleteLoggingRole(ctx context.Context, role *services.LoggingRole) error
}

// AppSyncAPI reconciles the GraphQL API, schema, functions, and resolvers
type AppSyncAPI interface {
	EnsureAPI(ctx context.Context, m *manifest.Manifest, logConfig *types.LogConfig) (*services.GraphQLAPI, error)
	PutSchema(ctx context.Context, apiID string, sdl []byte) error
	VerifyDataSources(ctx context.Context, apiID string, names []string) error
	ListFunctions(ctx context.Context, apiID string) (map[string]services.Function, error)
	EnsureFunction(ctx context.Context, apiID string, spec manifest.FunctionSpec, existing map[string]services.Function) (*services.Function, error)
	DeleteFunction(ctx context.Context, apiID, functionID string) error
	EnsureUnitResolver(ctx context.Context, apiID string, spec manifest.ResolverSpec) (*services.Resolver, error)
	EnsurePipelineResolver(ctx context.Context, apiID string, spec manifest.ResolverSpec, functionIDs []string) (*services.Resolver, error)
	DeleteResolver(ctx context.Context, apiID, typeName, field string) error
	DeleteAPI(ctx context.Context, apiID string) error
}

// LogsAPI manages the API's log group retention
type LogsAPI interface {
	EnsureLogGroup(ctx context.Context, apiID string, retentionDays int32) (string, error)
	DeleteLogGroup(ctx context.Context, name string) error
}

// SchemaLoader resolves a schema reference to validated SDL
type SchemaLoader interface {
	Load(ctx context.Context, ref manifest.SchemaRef) (string, error)
}

// Deployer orchestrates one stack's lifecycle
type Deployer struct {
	iam     IAMAPI
	appsync AppSyncAPI
	logs    LogsAPI
	schemas SchemaLoader
}

// New creates a deployer from its service dependencies
func New(iam IAMAPI, appsyncAPI AppSyncAPI, logs LogsAPI, schemas SchemaLoader) *Deployer {
	return &Deployer{
		iam:     iam,
		appsync: appsyncAPI,
		logs:    logs,
		schemas: schemas,
	}
}

// Apply reconciles the manifest, creating or updating each resource in
// dependency order, and returns the resulting stack state. Failures
// surface unmodified from AWS; nothing is retried or rolled back.
func (d *Deployer) Apply(ctx context.Context, m *manifest.Manifest) (state *StackState, err error) {
	logger := zerolog.Ctx(ctx)

	defer func(begin time.Time) {
		logger.Info().
			Interface("error", err).
			Str("api", m.Name).
			Dur("elapsed", time.Since(begin)).
			Msg("Apply completed")
	}(time.Now())

	if err := m.Validate(); err != nil {
		return nil, err
	}
	if _, err := BuildGraph(m); err != nil {
		return nil, err
	}

	state = &StackState{
		APIName:           m.Name,
		Functions:         make(map[string]Function),
		UnitResolvers:     make(map[string]Resolver),
		PipelineResolvers: make(map[string]Resolver),
	}

	logger.Info().Msg("Step 1: Loading and validating schema")
	sdl, err := d.schemas.Load(ctx, m.Schema)
	if err != nil {
		return nil, fmt.Errorf("schema load failed: %w", err)
	}

	var logConfig *types.LogConfig
	if m.Logging.Enabled {
		logger.Info().Msg("Step 2: Ensuring CloudWatch logging role")
		role, err := d.iam.EnsureLoggingRole(ctx, m.Name)
		if err != nil {
			return nil, fmt.Errorf("logging role setup failed: %w", err)
		}
		state.LoggingRole = role
		logConfig = services.BuildLogConfig(m.Logging, role.RoleArn)
	} else {
		logger.Info().Msg("Step 2: Logging disabled, skipping role")
	}

	logger.Info().Msg("Step 3: Ensuring GraphQL API")
	api, err := d.appsync.EnsureAPI(ctx, m, logConfig)
	if err != nil {
		return nil, fmt.Errorf("graphql api setup failed: %w", err)
	}
	state.APIID = api.ID
	state.APIArn = api.Arn
	state.URIs = api.URIs

	logger.Info().Str("api_id", api.ID).Msg("Step 4: Uploading schema")
	if err := d.appsync.PutSchema(ctx, api.ID, []byte(sdl)); err != nil {
		return nil, fmt.Errorf("schema upload failed: %w", err)
	}

	if m.Logging.Enabled {
		logger.Info().Msg("Step 5: Ensuring log group retention")
		logGroup, err := d.logs.EnsureLogGroup(ctx, api.ID, m.Logging.RetentionDays)
		if err != nil {
			return nil, fmt.Errorf("log group setup failed: %w", err)
		}
		state.LogGroup = logGroup
	}

	logger.Info().Msg("Step 6: Verifying data sources")
	if err := d.appsync.VerifyDataSources(ctx, api.ID, referencedDataSources(m)); err != nil {
		return nil, fmt.Errorf("data source check failed: %w", err)
	}

	functionKeys := m.SortedFunctionKeys()
	logger.Info().Int("count", len(functionKeys)).Msg("Step 7: Ensuring functions")
	existing, err := d.appsync.ListFunctions(ctx, api.ID)
	if err != nil {
		return nil, fmt.Errorf("function listing failed: %w", err)
	}
	for _, key := range functionKeys {
		fn, err := d.appsync.EnsureFunction(ctx, api.ID, m.Functions[key], existing)
		if err != nil {
			return nil, fmt.Errorf("function %q setup failed: %w", key, err)
		}
		state.Functions[key] = *fn
		logger.Info().Str("key", key).Str("function_id", fn.ID).Msg("Function ready")
	}

	unitKeys := m.SortedUnitResolverKeys()
	logger.Info().Int("count", len(unitKeys)).Msg("Step 8: Ensuring unit resolvers")
	for _, key := range unitKeys {
		resolver, err := d.appsync.EnsureUnitResolver(ctx, api.ID, m.UnitResolvers[key])
		if err != nil {
			return nil, fmt.Errorf("unit resolver %q setup failed: %w", key, err)
		}
		state.UnitResolvers[key] = *resolver
	}

	pipelineKeys := m.SortedPipelineResolverKeys()
	logger.Info().Int("count", len(pipelineKeys)).Msg("Step 9: Ensuring pipeline resolvers")
	for _, key := range pipelineKeys {
		spec := m.PipelineResolvers[key]
		functionIDs, err := ResolveFunctionIDs(spec.Functions, state.Functions)
		if err != nil {
			return nil, fmt.Errorf("pipeline resolver %q: %w", key, err)
		}
		resolver, err := d.appsync.EnsurePipelineResolver(ctx, api.ID, spec, functionIDs)
		if err != nil {
			return nil, fmt.Errorf("pipeline resolver %q setup failed: %w", key, err)
		}
		state.PipelineResolvers[key] = *resolver
	}

	state.AppliedAt = time.Now().Unix()
	return state, nil
}

// Destroy tears the stack down in the reverse of creation order:
// pipeline resolvers, unit resolvers, functions, log group, API, then
// the logging role. Missing resources are tolerated so a partially
// destroyed stack can be destroyed again.
func (d *Deployer) Destroy(ctx context.Context, state *StackState) (err error) {
	logger := zerolog.Ctx(ctx)

	defer func(begin time.Time) {
		logger.Info().
			Interface("error", err).
			Str("api", state.APIName).
			Dur("elapsed", time.Since(begin)).
			Msg("Destroy completed")
	}(time.Now())

	for _, key := range sortedStateKeys(state.PipelineResolvers) {
		resolver := state.PipelineResolvers[key]
		if err := d.appsync.DeleteResolver(ctx, state.APIID, resolver.Type, resolver.Field); err != nil {
			return fmt.Errorf("pipeline resolver %q deletion failed: %w", key, err)
		}
	}

	for _, key := range sortedStateKeys(state.UnitResolvers) {
		resolver := state.UnitResolvers[key]
		if err := d.appsync.DeleteResolver(ctx, state.APIID, resolver.Type, resolver.Field); err != nil {
			return fmt.Errorf("unit resolver %q deletion failed: %w", key, err)
		}
	}

	for _, key := range sortedStateKeys(state.Functions) {
		if err := d.appsync.DeleteFunction(ctx, state.APIID, state.Functions[key].ID); err != nil {
			return fmt.Errorf("function %q deletion failed: %w", key, err)
		}
	}

	if state.LogGroup != "" {
		if err := d.logs.DeleteLogGroup(ctx, state.LogGroup); err != nil {
			return fmt.Errorf("log group deletion failed: %w", err)
		}
	}

	if state.APIID != "" {
		if err := d.appsync.DeleteAPI(ctx, state.APIID); err != nil {
			return fmt.Errorf("graphql api deletion failed: %w", err)
		}
	}

	if state.LoggingRole != nil {
		if err := d.iam.DeleteLoggingRole(ctx, state.LoggingRole); err != nil {
			return fmt.Errorf("logging role deletion failed: %w", err)
		}
	}

	return nil
}

// referencedDataSources returns the union of declared data sources and
// those referenced by functions and unit resolvers, deterministically
// ordered.
func referencedDataSources(m *manifest.Manifest) []string {
	seen := make(map[string]struct{})
	var names []string
	add := func(name string) {
		if name == "" {
			return
		}
		if _, ok := seen[name]; ok {
			return
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}

	for _, name := range m.DataSources {
		add(name)
	}
	for _, key := range m.SortedFunctionKeys() {
		add(m.Functions[key].DataSource)
	}
	for _, key := range m.SortedUnitResolverKeys() {
		add(m.UnitResolvers[key].DataSource)
	}
	return names
}

func sortedStateKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
