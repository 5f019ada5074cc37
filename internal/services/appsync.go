package services

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/appsync"
	"github.com/aws/aws-sdk-go-v2/service/appsync/types"
	"github.com/savaki/appsync-deployer/internal/manifest"
)

// functionVersion selects the VTL request/response template contract
const functionVersion = "2018-05-29"

// schemaPollInterval is how often schema creation status is checked
const schemaPollInterval = 2 * time.Second

// AppSyncService wraps the AppSync control plane operations needed to
// reconcile one API stack: the API itself, its schema, and the
// functions and resolvers attached to it.
type AppSyncService struct {
	client *appsync.Client
	region string
}

// NewAppSyncService creates an AppSync service for the given client
func NewAppSyncService(client *appsync.Client, region string) *AppSyncService {
	return &AppSyncService{client: client, region: region}
}

// GraphQLAPI is the subset of API attributes downstream components need
type GraphQLAPI struct {
	ID   string            `json:"id"`
	Arn  string            `json:"arn"`
	Name string            `json:"name"`
	URIs map[string]string `json:"uris,omitempty"`
}

// Function identifies a created AppSync function
type Function struct {
	ID   string `json:"id"`
	Arn  string `json:"arn"`
	Name string `json:"name"`
}

// Resolver identifies a created resolver by its type/field coordinates
type Resolver struct {
	Arn   string `json:"arn"`
	Type  string `json:"type"`
	Field string `json:"field"`
}

// AuthConfig is the projection of an ordered authentication type list
// onto the AppSync API shape: the first entry populates the primary
// block, every later entry becomes one additional provider.
type AuthConfig struct {
	Primary    types.AuthenticationType
	UserPool   *types.UserPoolConfig
	OpenID     *types.OpenIDConnectConfig
	Lambda     *types.LambdaAuthorizerConfig
	Additional []types.AdditionalAuthenticationProvider
}

// BuildAuthConfig projects the manifest authentication block onto the
// SDK types. Only the first list entry may populate the primary
// OpenID/Cognito/Lambda config; each subsequent entry independently
// selects its own sub-configuration from its tag.
func BuildAuthConfig(auth manifest.Authentication, region string) (*AuthConfig, error) {
	if len(auth.Types) == 0 {
		return nil, fmt.Errorf("authentication requires at least one type")
	}

	cfg := &AuthConfig{
		Primary: types.AuthenticationType(auth.Types[0]),
	}

	switch auth.Types[0] {
	case manifest.AuthTypeCognito:
		cfg.UserPool = primaryUserPoolConfig(auth.Cognito, region)
	case manifest.AuthTypeOpenIDConnect:
		cfg.OpenID = openIDConfig(auth.OpenIDConnect)
	case manifest.AuthTypeLambda:
		cfg.Lambda = lambdaAuthorizerConfig(auth.Lambda)
	}

	for _, t := range auth.Types[1:] {
		provider := types.AdditionalAuthenticationProvider{
			AuthenticationType: types.AuthenticationType(t),
		}
		switch t {
		case manifest.AuthTypeCognito:
			provider.UserPoolConfig = additionalUserPoolConfig(auth.Cognito, region)
		case manifest.AuthTypeOpenIDConnect:
			provider.OpenIDConnectConfig = openIDConfig(auth.OpenIDConnect)
		case manifest.AuthTypeLambda:
			provider.LambdaAuthorizerConfig = lambdaAuthorizerConfig(auth.Lambda)
		}
		cfg.Additional = append(cfg.Additional, provider)
	}

	return cfg, nil
}

func primaryUserPoolConfig(c *manifest.CognitoConfig, region string) *types.UserPoolConfig {
	if c == nil {
		return nil
	}
	defaultAction := types.DefaultActionAllow
	if c.DefaultAction == "DENY" {
		defaultAction = types.DefaultActionDeny
	}
	cfg := &types.UserPoolConfig{
		UserPoolId:    aws.String(c.UserPoolID),
		AwsRegion:     aws.String(cognitoRegion(c, region)),
		DefaultAction: defaultAction,
	}
	if c.AppIDClientRegex != "" {
		cfg.AppIdClientRegex = aws.String(c.AppIDClientRegex)
	}
	return cfg
}

func additionalUserPoolConfig(c *manifest.CognitoConfig, region string) *types.CognitoUserPoolConfig {
	if c == nil {
		return nil
	}
	cfg := &types.CognitoUserPoolConfig{
		UserPoolId: aws.String(c.UserPoolID),
		AwsRegion:  aws.String(cognitoRegion(c, region)),
	}
	if c.AppIDClientRegex != "" {
		cfg.AppIdClientRegex = aws.String(c.AppIDClientRegex)
	}
	return cfg
}

func cognitoRegion(c *manifest.CognitoConfig, region string) string {
	if c.AwsRegion != "" {
		return c.AwsRegion
	}
	return region
}

func openIDConfig(c *manifest.OpenIDConnectConfig) *types.OpenIDConnectConfig {
	if c == nil {
		return nil
	}
	cfg := &types.OpenIDConnectConfig{
		Issuer:  aws.String(c.Issuer),
		AuthTTL: c.AuthTTL,
		IatTTL:  c.IatTTL,
	}
	if c.ClientID != "" {
		cfg.ClientId = aws.String(c.ClientID)
	}
	return cfg
}

func lambdaAuthorizerConfig(c *manifest.LambdaAuthorizerConfig) *types.LambdaAuthorizerConfig {
	if c == nil {
		return nil
	}
	cfg := &types.LambdaAuthorizerConfig{
		AuthorizerUri:                aws.String(c.AuthorizerURI),
		AuthorizerResultTtlInSeconds: c.ResultTTLSeconds,
	}
	if c.IdentityValidationExpression != "" {
		cfg.IdentityValidationExpression = aws.String(c.IdentityValidationExpression)
	}
	return cfg
}

// BuildLogConfig maps the manifest logging block onto the API log
// configuration. Returns nil when logging is disabled.
func BuildLogConfig(logging manifest.Logging, roleArn string) *types.LogConfig {
	if !logging.Enabled {
		return nil
	}
	level := types.FieldLogLevelError
	switch logging.FieldLogLevel {
	case manifest.LogLevelNone:
		level = types.FieldLogLevelNone
	case manifest.LogLevelAll:
		level = types.FieldLogLevelAll
	}
	return &types.LogConfig{
		CloudWatchLogsRoleArn: aws.String(roleArn),
		FieldLogLevel:         level,
		ExcludeVerboseContent: logging.ExcludeVerboseContent,
	}
}

// FindAPIByName locates an existing GraphQL API by name. Returns nil
// when no API with that name exists.
func (s *AppSyncService) FindAPIByName(ctx context.Context, name string) (*GraphQLAPI, error) {
	var nextToken *string
	for {
		result, err := s.client.ListGraphqlApis(ctx, &appsync.ListGraphqlApisInput{
			NextToken: nextToken,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list graphql apis: %w", err)
		}
		for _, api := range result.GraphqlApis {
			if aws.ToString(api.Name) == name {
				return &GraphQLAPI{
					ID:   aws.ToString(api.ApiId),
					Arn:  aws.ToString(api.Arn),
					Name: aws.ToString(api.Name),
					URIs: api.Uris,
				}, nil
			}
		}
		if result.NextToken == nil {
			return nil, nil
		}
		nextToken = result.NextToken
	}
}

// EnsureAPI creates the GraphQL API or converges an existing one with
// the same name onto the manifest's auth, tag, and log configuration.
func (s *AppSyncService) EnsureAPI(ctx context.Context, m *manifest.Manifest, logConfig *types.LogConfig) (*GraphQLAPI, error) {
	auth, err := BuildAuthConfig(m.Authentication, s.region)
	if err != nil {
		return nil, err
	}

	existing, err := s.FindAPIByName(ctx, m.Name)
	if err != nil {
		return nil, err
	}

	if existing == nil {
		result, err := s.client.CreateGraphqlApi(ctx, &appsync.CreateGraphqlApiInput{
			Name:                              aws.String(m.Name),
			AuthenticationType:                auth.Primary,
			UserPoolConfig:                    auth.UserPool,
			OpenIDConnectConfig:               auth.OpenID,
			LambdaAuthorizerConfig:            auth.Lambda,
			AdditionalAuthenticationProviders: auth.Additional,
			LogConfig:                         logConfig,
			Tags:                              m.Tags,
			XrayEnabled:                       m.XrayEnabled,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create graphql api: %w", err)
		}
		api := result.GraphqlApi
		return &GraphQLAPI{
			ID:   aws.ToString(api.ApiId),
			Arn:  aws.ToString(api.Arn),
			Name: aws.ToString(api.Name),
			URIs: api.Uris,
		}, nil
	}

	result, err := s.client.UpdateGraphqlApi(ctx, &appsync.UpdateGraphqlApiInput{
		ApiId:                             aws.String(existing.ID),
		Name:                              aws.String(m.Name),
		AuthenticationType:                auth.Primary,
		UserPoolConfig:                    auth.UserPool,
		OpenIDConnectConfig:               auth.OpenID,
		LambdaAuthorizerConfig:            auth.Lambda,
		AdditionalAuthenticationProviders: auth.Additional,
		LogConfig:                         logConfig,
		XrayEnabled:                       m.XrayEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update graphql api: %w", err)
	}
	api := result.GraphqlApi
	return &GraphQLAPI{
		ID:   aws.ToString(api.ApiId),
		Arn:  aws.ToString(api.Arn),
		Name: aws.ToString(api.Name),
		URIs: api.Uris,
	}, nil
}

// PutSchema uploads the SDL and waits for AppSync to finish processing
// it. AppSync applies schemas asynchronously, so this polls
// GetSchemaCreationStatus until a terminal status.
func (s *AppSyncService) PutSchema(ctx context.Context, apiID string, sdl []byte) error {
	_, err := s.client.StartSchemaCreation(ctx, &appsync.StartSchemaCreationInput{
		ApiId:      aws.String(apiID),
		Definition: sdl,
	})
	if err != nil {
		return fmt.Errorf("failed to start schema creation: %w", err)
	}

	for {
		result, err := s.client.GetSchemaCreationStatus(ctx, &appsync.GetSchemaCreationStatusInput{
			ApiId: aws.String(apiID),
		})
		if err != nil {
			return fmt.Errorf("failed to get schema creation status: %w", err)
		}

		switch result.Status {
		case types.SchemaStatusSuccess, types.SchemaStatusActive:
			return nil
		case types.SchemaStatusFailed:
			return fmt.Errorf("schema creation failed: %s", aws.ToString(result.Details))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(schemaPollInterval):
		}
	}
}

// VerifyDataSources confirms every named data source already exists on
// the API. Functions and resolvers bind to data sources by name, so the
// reference is checked up front instead of surfacing as a create error
// halfway through an apply.
func (s *AppSyncService) VerifyDataSources(ctx context.Context, apiID string, names []string) error {
	if len(names) == 0 {
		return nil
	}

	existing := make(map[string]struct{})
	var nextToken *string
	for {
		result, err := s.client.ListDataSources(ctx, &appsync.ListDataSourcesInput{
			ApiId:     aws.String(apiID),
			NextToken: nextToken,
		})
		if err != nil {
			return fmt.Errorf("failed to list data sources: %w", err)
		}
		for _, ds := range result.DataSources {
			existing[aws.ToString(ds.Name)] = struct{}{}
		}
		if result.NextToken == nil {
			break
		}
		nextToken = result.NextToken
	}

	for _, name := range names {
		if _, ok := existing[name]; !ok {
			return fmt.Errorf("data source %q does not exist on api %s", name, apiID)
		}
	}
	return nil
}

// ListFunctions returns the API's existing functions keyed by function
// name.
func (s *AppSyncService) ListFunctions(ctx context.Context, apiID string) (map[string]Function, error) {
	functions := make(map[string]Function)
	var nextToken *string
	for {
		result, err := s.client.ListFunctions(ctx, &appsync.ListFunctionsInput{
			ApiId:     aws.String(apiID),
			NextToken: nextToken,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list functions: %w", err)
		}
		for _, fn := range result.Functions {
			functions[aws.ToString(fn.Name)] = Function{
				ID:   aws.ToString(fn.FunctionId),
				Arn:  aws.ToString(fn.FunctionArn),
				Name: aws.ToString(fn.Name),
			}
		}
		if result.NextToken == nil {
			return functions, nil
		}
		nextToken = result.NextToken
	}
}

// createFunctionInput builds the create call for a function spec.
// Empty mapping templates are normalized to a single space because the
// API rejects empty strings.
func createFunctionInput(apiID string, spec manifest.FunctionSpec) *appsync.CreateFunctionInput {
	input := &appsync.CreateFunctionInput{
		ApiId:                   aws.String(apiID),
		Name:                    aws.String(spec.Name),
		DataSourceName:          aws.String(spec.DataSource),
		FunctionVersion:         aws.String(functionVersion),
		RequestMappingTemplate:  aws.String(manifest.NormalizeTemplate(spec.RequestTemplate)),
		ResponseMappingTemplate: aws.String(manifest.NormalizeTemplate(spec.ResponseTemplate)),
	}
	if spec.Description != "" {
		input.Description = aws.String(spec.Description)
	}
	return input
}

func updateFunctionInput(apiID, functionID string, spec manifest.FunctionSpec) *appsync.UpdateFunctionInput {
	create := createFunctionInput(apiID, spec)
	return &appsync.UpdateFunctionInput{
		ApiId:                   create.ApiId,
		FunctionId:              aws.String(functionID),
		Name:                    create.Name,
		DataSourceName:          create.DataSourceName,
		Description:             create.Description,
		FunctionVersion:         create.FunctionVersion,
		RequestMappingTemplate:  create.RequestMappingTemplate,
		ResponseMappingTemplate: create.ResponseMappingTemplate,
	}
}

// EnsureFunction creates or updates one AppSync function
func (s *AppSyncService) EnsureFunction(ctx context.Context, apiID string, spec manifest.FunctionSpec, existing map[string]Function) (*Function, error) {
	if current, ok := existing[spec.Name]; ok {
		result, err := s.client.UpdateFunction(ctx, updateFunctionInput(apiID, current.ID, spec))
		if err != nil {
			return nil, fmt.Errorf("failed to update function %s: %w", spec.Name, err)
		}
		fn := result.FunctionConfiguration
		return &Function{
			ID:   aws.ToString(fn.FunctionId),
			Arn:  aws.ToString(fn.FunctionArn),
			Name: aws.ToString(fn.Name),
		}, nil
	}

	result, err := s.client.CreateFunction(ctx, createFunctionInput(apiID, spec))
	if err != nil {
		return nil, fmt.Errorf("failed to create function %s: %w", spec.Name, err)
	}
	fn := result.FunctionConfiguration
	return &Function{
		ID:   aws.ToString(fn.FunctionId),
		Arn:  aws.ToString(fn.FunctionArn),
		Name: aws.ToString(fn.Name),
	}, nil
}

// DeleteFunction removes a function by provider-assigned ID
func (s *AppSyncService) DeleteFunction(ctx context.Context, apiID, functionID string) error {
	_, err := s.client.DeleteFunction(ctx, &appsync.DeleteFunctionInput{
		ApiId:      aws.String(apiID),
		FunctionId: aws.String(functionID),
	})
	if err != nil && !isAWSErrorCode(err, "NotFoundException") {
		return fmt.Errorf("failed to delete function %s: %w", functionID, err)
	}
	return nil
}

// EnsureUnitResolver creates or updates a resolver bound directly to a
// data source.
func (s *AppSyncService) EnsureUnitResolver(ctx context.Context, apiID string, spec manifest.ResolverSpec) (*Resolver, error) {
	return s.ensureResolver(ctx, apiID, spec, types.ResolverKindUnit, nil)
}

// EnsurePipelineResolver creates or updates a resolver composed of an
// ordered chain of functions. functionIDs carries provider-assigned
// identifiers, already projected from the manifest's logical keys.
func (s *AppSyncService) EnsurePipelineResolver(ctx context.Context, apiID string, spec manifest.ResolverSpec, functionIDs []string) (*Resolver, error) {
	return s.ensureResolver(ctx, apiID, spec, types.ResolverKindPipeline, functionIDs)
}

// createResolverInput builds the create call for a resolver spec. Unit
// resolvers bind a data source; pipeline resolvers carry the ordered
// provider-assigned function IDs. Templates get the same empty-string
// normalization as functions.
func createResolverInput(apiID string, spec manifest.ResolverSpec, kind types.ResolverKind, functionIDs []string) *appsync.CreateResolverInput {
	input := &appsync.CreateResolverInput{
		ApiId:                   aws.String(apiID),
		TypeName:                aws.String(string(spec.Type)),
		FieldName:               aws.String(spec.Field),
		Kind:                    kind,
		RequestMappingTemplate:  aws.String(manifest.NormalizeTemplate(spec.RequestTemplate)),
		ResponseMappingTemplate: aws.String(manifest.NormalizeTemplate(spec.ResponseTemplate)),
	}
	switch kind {
	case types.ResolverKindUnit:
		input.DataSourceName = aws.String(spec.DataSource)
	case types.ResolverKindPipeline:
		input.PipelineConfig = &types.PipelineConfig{Functions: functionIDs}
	}
	return input
}

func (s *AppSyncService) ensureResolver(ctx context.Context, apiID string, spec manifest.ResolverSpec, kind types.ResolverKind, functionIDs []string) (*Resolver, error) {
	typeName := string(spec.Type)
	create := createResolverInput(apiID, spec, kind, functionIDs)

	existing, err := s.client.GetResolver(ctx, &appsync.GetResolverInput{
		ApiId:     aws.String(apiID),
		TypeName:  aws.String(typeName),
		FieldName: aws.String(spec.Field),
	})
	if err != nil && !isAWSErrorCode(err, "NotFoundException") {
		return nil, fmt.Errorf("failed to get resolver %s.%s: %w", typeName, spec.Field, err)
	}

	if existing != nil && existing.Resolver != nil {
		result, err := s.client.UpdateResolver(ctx, &appsync.UpdateResolverInput{
			ApiId:                   create.ApiId,
			TypeName:                create.TypeName,
			FieldName:               create.FieldName,
			DataSourceName:          create.DataSourceName,
			Kind:                    create.Kind,
			PipelineConfig:          create.PipelineConfig,
			RequestMappingTemplate:  create.RequestMappingTemplate,
			ResponseMappingTemplate: create.ResponseMappingTemplate,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to update resolver %s.%s: %w", typeName, spec.Field, err)
		}
		return &Resolver{
			Arn:   aws.ToString(result.Resolver.ResolverArn),
			Type:  typeName,
			Field: spec.Field,
		}, nil
	}

	result, err := s.client.CreateResolver(ctx, create)
	if err != nil {
		return nil, fmt.Errorf("failed to create resolver %s.%s: %w", typeName, spec.Field, err)
	}
	return &Resolver{
		Arn:   aws.ToString(result.Resolver.ResolverArn),
		Type:  typeName,
		Field: spec.Field,
	}, nil
}

// DeleteResolver removes a resolver; missing resolvers are tolerated
func (s *AppSyncService) DeleteResolver(ctx context.Context, apiID, typeName, field string) error {
	_, err := s.client.DeleteResolver(ctx, &appsync.DeleteResolverInput{
		ApiId:     aws.String(apiID),
		TypeName:  aws.String(typeName),
		FieldName: aws.String(field),
	})
	if err != nil && !isAWSErrorCode(err, "NotFoundException") {
		return fmt.Errorf("failed to delete resolver %s.%s: %w", typeName, field, err)
	}
	return nil
}

// DeleteAPI removes the GraphQL API and everything AppSync cascades
// with it.
func (s *AppSyncService) DeleteAPI(ctx context.Context, apiID string) error {
	_, err := s.client.DeleteGraphqlApi(ctx, &appsync.DeleteGraphqlApiInput{
		ApiId: aws.String(apiID),
	})
	if err != nil && !isAWSErrorCode(err, "NotFoundException") {
		return fmt.Errorf("failed to delete graphql api %s: %w", apiID, err)
	}
	return nil
}
