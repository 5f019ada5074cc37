package manifest

import (
	"fmt"
	"sort"
)

// AuthType identifies an AppSync authentication provider type
type AuthType string

const (
	AuthTypeAPIKey        AuthType = "API_KEY"
	AuthTypeAWSIAM        AuthType = "AWS_IAM"
	AuthTypeCognito       AuthType = "AMAZON_COGNITO_USER_POOLS"
	AuthTypeOpenIDConnect AuthType = "OPENID_CONNECT"
	AuthTypeLambda        AuthType = "AWS_LAMBDA"
)

// OperationType is the GraphQL root type a resolver attaches to
type OperationType string

const (
	OperationQuery        OperationType = "Query"
	OperationMutation     OperationType = "Mutation"
	OperationSubscription OperationType = "Subscription"
)

// Field log levels accepted by AppSync
const (
	LogLevelNone  = "NONE"
	LogLevelError = "ERROR"
	LogLevelAll   = "ALL"
)

// Manifest is the declarative description of one AppSync API stack:
// the GraphQL API itself, its logging configuration, and the functions
// and resolvers wired to pre-existing data sources.
type Manifest struct {
	Name              string                  `yaml:"name"`
	Schema            SchemaRef               `yaml:"schema"`
	Tags              map[string]string       `yaml:"tags,omitempty"`
	Authentication    Authentication          `yaml:"authentication"`
	Logging           Logging                 `yaml:"logging,omitempty"`
	XrayEnabled       bool                    `yaml:"xray_enabled,omitempty"`
	DataSources       []string                `yaml:"datasources,omitempty"`
	Functions         map[string]FunctionSpec `yaml:"functions,omitempty"`
	UnitResolvers     map[string]ResolverSpec `yaml:"unit_resolvers,omitempty"`
	PipelineResolvers map[string]ResolverSpec `yaml:"pipeline_resolvers,omitempty"`
}

// SchemaRef points at the GraphQL SDL: inline text, a local file, or an
// s3://bucket/key object. Exactly one source must be set.
type SchemaRef struct {
	Inline string `yaml:"inline,omitempty"`
	File   string `yaml:"file,omitempty"`
	S3     string `yaml:"s3,omitempty"`
}

// Authentication holds the ordered provider type list plus the settings
// objects the OPENID_CONNECT, AMAZON_COGNITO_USER_POOLS, and AWS_LAMBDA
// tags require. The first list entry becomes the API's primary auth
// mode; the rest become additional providers.
type Authentication struct {
	Types         []AuthType              `yaml:"types"`
	Cognito       *CognitoConfig          `yaml:"cognito,omitempty"`
	OpenIDConnect *OpenIDConnectConfig    `yaml:"openid_connect,omitempty"`
	Lambda        *LambdaAuthorizerConfig `yaml:"lambda,omitempty"`
}

// CognitoConfig configures AMAZON_COGNITO_USER_POOLS auth
type CognitoConfig struct {
	UserPoolID       string `yaml:"user_pool_id"`
	AwsRegion        string `yaml:"aws_region,omitempty"`
	AppIDClientRegex string `yaml:"app_id_client_regex,omitempty"`
	DefaultAction    string `yaml:"default_action,omitempty"` // ALLOW or DENY, primary auth only
}

// OpenIDConnectConfig configures OPENID_CONNECT auth
type OpenIDConnectConfig struct {
	Issuer   string `yaml:"issuer"`
	ClientID string `yaml:"client_id,omitempty"`
	AuthTTL  int64  `yaml:"auth_ttl,omitempty"`
	IatTTL   int64  `yaml:"iat_ttl,omitempty"`
}

// LambdaAuthorizerConfig configures AWS_LAMBDA auth
type LambdaAuthorizerConfig struct {
	AuthorizerURI                string `yaml:"authorizer_uri"`
	ResultTTLSeconds             int32  `yaml:"result_ttl_seconds,omitempty"`
	IdentityValidationExpression string `yaml:"identity_validation_expression,omitempty"`
}

// Logging controls the API's CloudWatch log configuration. When enabled,
// a logging role and policy are provisioned and the auto-created
// /aws/appsync/apis/{apiId} log group gets a retention policy.
type Logging struct {
	Enabled               bool   `yaml:"enabled"`
	FieldLogLevel         string `yaml:"field_log_level,omitempty"`
	ExcludeVerboseContent bool   `yaml:"exclude_verbose_content,omitempty"`
	RetentionDays         int32  `yaml:"retention_days,omitempty"`
}

// FunctionSpec describes one AppSync function bound to a data source
type FunctionSpec struct {
	Name             string `yaml:"name"`
	DataSource       string `yaml:"datasource"`
	Description      string `yaml:"description,omitempty"`
	RequestTemplate  string `yaml:"request_template,omitempty"`
	ResponseTemplate string `yaml:"response_template,omitempty"`
}

// ResolverSpec describes a unit or pipeline resolver. Unit resolvers set
// DataSource; pipeline resolvers set Functions, an ordered list of
// logical function keys declared in Manifest.Functions.
type ResolverSpec struct {
	Type             OperationType `yaml:"type"`
	Field            string        `yaml:"field"`
	DataSource       string        `yaml:"datasource,omitempty"`
	Functions        []string      `yaml:"functions,omitempty"`
	RequestTemplate  string        `yaml:"request_template,omitempty"`
	ResponseTemplate string        `yaml:"response_template,omitempty"`
}

// NormalizeTemplate substitutes a single space for an empty mapping
// template. AppSync rejects empty template strings, so callers that want
// "no template" get the smallest accepted one. Non-empty input passes
// through unchanged.
func NormalizeTemplate(s string) string {
	if s == "" {
		return " "
	}
	return s
}

var validAuthTypes = map[AuthType]struct{}{
	AuthTypeAPIKey:        {},
	AuthTypeAWSIAM:        {},
	AuthTypeCognito:       {},
	AuthTypeOpenIDConnect: {},
	AuthTypeLambda:        {},
}

var validOperations = map[OperationType]struct{}{
	OperationQuery:        {},
	OperationMutation:     {},
	OperationSubscription: {},
}

// Validate checks the manifest against the constraints the AWS APIs will
// enforce later, so callers fail before the first SDK call.
func (m *Manifest) Validate() error {
	if m.Name == "" {
		return fmt.Errorf("manifest name is required")
	}

	sources := 0
	if m.Schema.Inline != "" {
		sources++
	}
	if m.Schema.File != "" {
		sources++
	}
	if m.Schema.S3 != "" {
		sources++
	}
	if sources != 1 {
		return fmt.Errorf("schema requires exactly one of inline, file, or s3 (got %d)", sources)
	}

	if err := m.Authentication.validate(); err != nil {
		return err
	}

	if m.Logging.Enabled {
		switch m.Logging.FieldLogLevel {
		case "", LogLevelNone, LogLevelError, LogLevelAll:
		default:
			return fmt.Errorf("invalid field_log_level %q, expected NONE, ERROR, or ALL", m.Logging.FieldLogLevel)
		}
	}

	declared := make(map[string]struct{}, len(m.DataSources))
	for _, ds := range m.DataSources {
		declared[ds] = struct{}{}
	}

	for _, key := range sortedKeys(m.Functions) {
		fn := m.Functions[key]
		if fn.Name == "" {
			return fmt.Errorf("function %q: name is required", key)
		}
		if fn.DataSource == "" {
			return fmt.Errorf("function %q: datasource is required", key)
		}
		if len(declared) > 0 {
			if _, ok := declared[fn.DataSource]; !ok {
				return fmt.Errorf("function %q: datasource %q is not declared in datasources", key, fn.DataSource)
			}
		}
	}

	for _, key := range sortedKeys(m.UnitResolvers) {
		rs := m.UnitResolvers[key]
		if err := rs.validateCommon(key); err != nil {
			return err
		}
		if rs.DataSource == "" {
			return fmt.Errorf("unit resolver %q: datasource is required", key)
		}
		if len(declared) > 0 {
			if _, ok := declared[rs.DataSource]; !ok {
				return fmt.Errorf("unit resolver %q: datasource %q is not declared in datasources", key, rs.DataSource)
			}
		}
		if len(rs.Functions) > 0 {
			return fmt.Errorf("unit resolver %q: functions is only valid for pipeline resolvers", key)
		}
	}

	for _, key := range sortedKeys(m.PipelineResolvers) {
		rs := m.PipelineResolvers[key]
		if err := rs.validateCommon(key); err != nil {
			return err
		}
		if len(rs.Functions) == 0 {
			return fmt.Errorf("pipeline resolver %q: at least one function is required", key)
		}
		for _, fnKey := range rs.Functions {
			if _, ok := m.Functions[fnKey]; !ok {
				return fmt.Errorf("pipeline resolver %q: references undeclared function %q", key, fnKey)
			}
		}
	}

	return nil
}

func (a *Authentication) validate() error {
	if len(a.Types) == 0 {
		return fmt.Errorf("authentication requires at least one type")
	}
	for i, t := range a.Types {
		if _, ok := validAuthTypes[t]; !ok {
			return fmt.Errorf("authentication type %d: unknown type %q", i, t)
		}
		switch t {
		case AuthTypeCognito:
			if a.Cognito == nil || a.Cognito.UserPoolID == "" {
				return fmt.Errorf("authentication type %s requires cognito.user_pool_id", t)
			}
		case AuthTypeOpenIDConnect:
			if a.OpenIDConnect == nil || a.OpenIDConnect.Issuer == "" {
				return fmt.Errorf("authentication type %s requires openid_connect.issuer", t)
			}
		case AuthTypeLambda:
			if a.Lambda == nil || a.Lambda.AuthorizerURI == "" {
				return fmt.Errorf("authentication type %s requires lambda.authorizer_uri", t)
			}
		}
	}
	return nil
}

func (r ResolverSpec) validateCommon(key string) error {
	if _, ok := validOperations[r.Type]; !ok {
		return fmt.Errorf("resolver %q: invalid type %q, expected Query, Mutation, or Subscription", key, r.Type)
	}
	if r.Field == "" {
		return fmt.Errorf("resolver %q: field is required", key)
	}
	return nil
}

// sortedKeys returns map keys in lexical order so validation errors and
// apply order stay deterministic run to run.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// SortedFunctionKeys returns the logical function identifiers in a
// deterministic order.
func (m *Manifest) SortedFunctionKeys() []string { return sortedKeys(m.Functions) }

// SortedUnitResolverKeys returns the unit resolver identifiers in a
// deterministic order.
func (m *Manifest) SortedUnitResolverKeys() []string { return sortedKeys(m.UnitResolvers) }

// SortedPipelineResolverKeys returns the pipeline resolver identifiers in
// a deterministic order.
func (m *Manifest) SortedPipelineResolverKeys() []string { return sortedKeys(m.PipelineResolvers) }
