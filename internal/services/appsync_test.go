package services

import (
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/appsync/types"
	"github.com/savaki/appsync-deployer/internal/manifest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildAuthConfig(t *testing.T) {
	cognito := &manifest.CognitoConfig{
		UserPoolID:    "us-east-1_abc123",
		DefaultAction: "DENY",
	}
	openid := &manifest.OpenIDConnectConfig{
		Issuer:   "https://issuer.example.com",
		ClientID: "client-1",
		AuthTTL:  3600,
		IatTTL:   7200,
	}
	lambdaAuth := &manifest.LambdaAuthorizerConfig{
		AuthorizerURI:    "arn:aws:lambda:us-east-1:123456789012:function:authorizer",
		ResultTTLSeconds: 300,
	}

	t.Run("empty list rejected", func(t *testing.T) {
		_, err := BuildAuthConfig(manifest.Authentication{}, "us-east-1")
		assert.Error(t, err)
	})

	t.Run("api key primary has no sub config", func(t *testing.T) {
		cfg, err := BuildAuthConfig(manifest.Authentication{
			Types: []manifest.AuthType{manifest.AuthTypeAPIKey},
		}, "us-east-1")
		require.NoError(t, err)
		assert.Equal(t, types.AuthenticationTypeApiKey, cfg.Primary)
		assert.Nil(t, cfg.UserPool)
		assert.Nil(t, cfg.OpenID)
		assert.Nil(t, cfg.Lambda)
		assert.Empty(t, cfg.Additional)
	})

	t.Run("api key then iam", func(t *testing.T) {
		cfg, err := BuildAuthConfig(manifest.Authentication{
			Types: []manifest.AuthType{manifest.AuthTypeAPIKey, manifest.AuthTypeAWSIAM},
		}, "us-east-1")
		require.NoError(t, err)
		assert.Equal(t, types.AuthenticationTypeApiKey, cfg.Primary)
		assert.Nil(t, cfg.UserPool)
		assert.Nil(t, cfg.OpenID)
		require.Len(t, cfg.Additional, 1)
		provider := cfg.Additional[0]
		assert.Equal(t, types.AuthenticationTypeAwsIam, provider.AuthenticationType)
		assert.Nil(t, provider.UserPoolConfig)
		assert.Nil(t, provider.OpenIDConnectConfig)
		assert.Nil(t, provider.LambdaAuthorizerConfig)
	})

	t.Run("cognito primary", func(t *testing.T) {
		cfg, err := BuildAuthConfig(manifest.Authentication{
			Types:   []manifest.AuthType{manifest.AuthTypeCognito},
			Cognito: cognito,
		}, "us-west-2")
		require.NoError(t, err)
		assert.Equal(t, types.AuthenticationTypeAmazonCognitoUserPools, cfg.Primary)
		require.NotNil(t, cfg.UserPool)
		assert.Equal(t, "us-east-1_abc123", aws.ToString(cfg.UserPool.UserPoolId))
		assert.Equal(t, types.DefaultActionDeny, cfg.UserPool.DefaultAction)
		assert.Equal(t, "us-west-2", aws.ToString(cfg.UserPool.AwsRegion))
		assert.Nil(t, cfg.OpenID)
		assert.Empty(t, cfg.Additional)
	})

	t.Run("cognito region override wins", func(t *testing.T) {
		cfg, err := BuildAuthConfig(manifest.Authentication{
			Types: []manifest.AuthType{manifest.AuthTypeCognito},
			Cognito: &manifest.CognitoConfig{
				UserPoolID: "eu-west-1_xyz",
				AwsRegion:  "eu-west-1",
			},
		}, "us-east-1")
		require.NoError(t, err)
		assert.Equal(t, "eu-west-1", aws.ToString(cfg.UserPool.AwsRegion))
		assert.Equal(t, types.DefaultActionAllow, cfg.UserPool.DefaultAction)
	})

	t.Run("openid primary", func(t *testing.T) {
		cfg, err := BuildAuthConfig(manifest.Authentication{
			Types:         []manifest.AuthType{manifest.AuthTypeOpenIDConnect},
			OpenIDConnect: openid,
		}, "us-east-1")
		require.NoError(t, err)
		assert.Equal(t, types.AuthenticationTypeOpenidConnect, cfg.Primary)
		require.NotNil(t, cfg.OpenID)
		assert.Equal(t, "https://issuer.example.com", aws.ToString(cfg.OpenID.Issuer))
		assert.Equal(t, int64(3600), cfg.OpenID.AuthTTL)
		assert.Nil(t, cfg.UserPool)
	})

	t.Run("each additional entry selects its own sub config", func(t *testing.T) {
		cfg, err := BuildAuthConfig(manifest.Authentication{
			Types: []manifest.AuthType{
				manifest.AuthTypeAWSIAM,
				manifest.AuthTypeCognito,
				manifest.AuthTypeOpenIDConnect,
				manifest.AuthTypeLambda,
			},
			Cognito:       cognito,
			OpenIDConnect: openid,
			Lambda:        lambdaAuth,
		}, "us-east-1")
		require.NoError(t, err)
		assert.Equal(t, types.AuthenticationTypeAwsIam, cfg.Primary)
		assert.Nil(t, cfg.UserPool)
		assert.Nil(t, cfg.OpenID)
		assert.Nil(t, cfg.Lambda)

		require.Len(t, cfg.Additional, 3)

		assert.Equal(t, types.AuthenticationTypeAmazonCognitoUserPools, cfg.Additional[0].AuthenticationType)
		require.NotNil(t, cfg.Additional[0].UserPoolConfig)
		assert.Equal(t, "us-east-1_abc123", aws.ToString(cfg.Additional[0].UserPoolConfig.UserPoolId))
		assert.Nil(t, cfg.Additional[0].OpenIDConnectConfig)

		assert.Equal(t, types.AuthenticationTypeOpenidConnect, cfg.Additional[1].AuthenticationType)
		require.NotNil(t, cfg.Additional[1].OpenIDConnectConfig)
		assert.Equal(t, "client-1", aws.ToString(cfg.Additional[1].OpenIDConnectConfig.ClientId))
		assert.Nil(t, cfg.Additional[1].UserPoolConfig)

		assert.Equal(t, types.AuthenticationTypeAwsLambda, cfg.Additional[2].AuthenticationType)
		require.NotNil(t, cfg.Additional[2].LambdaAuthorizerConfig)
		assert.Equal(t, int32(300), cfg.Additional[2].LambdaAuthorizerConfig.AuthorizerResultTtlInSeconds)
	})

	t.Run("additional order follows input order", func(t *testing.T) {
		cfg, err := BuildAuthConfig(manifest.Authentication{
			Types: []manifest.AuthType{
				manifest.AuthTypeAPIKey,
				manifest.AuthTypeOpenIDConnect,
				manifest.AuthTypeAWSIAM,
			},
			OpenIDConnect: openid,
		}, "us-east-1")
		require.NoError(t, err)
		require.Len(t, cfg.Additional, 2)
		assert.Equal(t, types.AuthenticationTypeOpenidConnect, cfg.Additional[0].AuthenticationType)
		assert.Equal(t, types.AuthenticationTypeAwsIam, cfg.Additional[1].AuthenticationType)
	})
}

func TestBuildLogConfig(t *testing.T) {
	t.Run("disabled returns nil", func(t *testing.T) {
		assert.Nil(t, BuildLogConfig(manifest.Logging{}, "arn:aws:iam::123456789012:role/r"))
	})

	t.Run("defaults to error level", func(t *testing.T) {
		cfg := BuildLogConfig(manifest.Logging{Enabled: true}, "arn:aws:iam::123456789012:role/r")
		require.NotNil(t, cfg)
		assert.Equal(t, types.FieldLogLevelError, cfg.FieldLogLevel)
		assert.Equal(t, "arn:aws:iam::123456789012:role/r", aws.ToString(cfg.CloudWatchLogsRoleArn))
	})

	t.Run("maps levels and verbosity", func(t *testing.T) {
		cfg := BuildLogConfig(manifest.Logging{
			Enabled:               true,
			FieldLogLevel:         manifest.LogLevelAll,
			ExcludeVerboseContent: true,
		}, "arn")
		require.NotNil(t, cfg)
		assert.Equal(t, types.FieldLogLevelAll, cfg.FieldLogLevel)
		assert.True(t, cfg.ExcludeVerboseContent)

		cfg = BuildLogConfig(manifest.Logging{Enabled: true, FieldLogLevel: manifest.LogLevelNone}, "arn")
		assert.Equal(t, types.FieldLogLevelNone, cfg.FieldLogLevel)
	})
}

func TestLogGroupName(t *testing.T) {
	assert.Equal(t, "/aws/appsync/apis/abc123", LogGroupName("abc123"))
}

func TestCreateFunctionInput(t *testing.T) {
	t.Run("empty templates become a single space", func(t *testing.T) {
		input := createFunctionInput("api-1", manifest.FunctionSpec{
			Name:             "F1",
			DataSource:       "ds1",
			RequestTemplate:  "",
			ResponseTemplate: "tpl",
		})
		assert.Equal(t, "api-1", aws.ToString(input.ApiId))
		assert.Equal(t, "F1", aws.ToString(input.Name))
		assert.Equal(t, "ds1", aws.ToString(input.DataSourceName))
		assert.Equal(t, " ", aws.ToString(input.RequestMappingTemplate))
		assert.Equal(t, "tpl", aws.ToString(input.ResponseMappingTemplate))
		assert.Equal(t, functionVersion, aws.ToString(input.FunctionVersion))
		assert.Nil(t, input.Description)
	})

	t.Run("non-empty templates pass through", func(t *testing.T) {
		input := createFunctionInput("api-1", manifest.FunctionSpec{
			Name:             "F1",
			DataSource:       "ds1",
			Description:      "fetches one order",
			RequestTemplate:  "$util.toJson($ctx.args)",
			ResponseTemplate: "$util.toJson($ctx.result)",
		})
		assert.Equal(t, "$util.toJson($ctx.args)", aws.ToString(input.RequestMappingTemplate))
		assert.Equal(t, "$util.toJson($ctx.result)", aws.ToString(input.ResponseMappingTemplate))
		assert.Equal(t, "fetches one order", aws.ToString(input.Description))
	})

	t.Run("update mirrors create", func(t *testing.T) {
		input := updateFunctionInput("api-1", "fn-9", manifest.FunctionSpec{
			Name:       "F1",
			DataSource: "ds1",
		})
		assert.Equal(t, "fn-9", aws.ToString(input.FunctionId))
		assert.Equal(t, " ", aws.ToString(input.RequestMappingTemplate))
		assert.Equal(t, " ", aws.ToString(input.ResponseMappingTemplate))
	})
}

func TestCreateResolverInput(t *testing.T) {
	t.Run("unit resolver binds data source", func(t *testing.T) {
		input := createResolverInput("api-1", manifest.ResolverSpec{
			Type:       manifest.OperationQuery,
			Field:      "order",
			DataSource: "ds1",
		}, types.ResolverKindUnit, nil)
		assert.Equal(t, "Query", aws.ToString(input.TypeName))
		assert.Equal(t, "order", aws.ToString(input.FieldName))
		assert.Equal(t, "ds1", aws.ToString(input.DataSourceName))
		assert.Nil(t, input.PipelineConfig)
		assert.Equal(t, " ", aws.ToString(input.RequestMappingTemplate))
		assert.Equal(t, " ", aws.ToString(input.ResponseMappingTemplate))
	})

	t.Run("pipeline resolver carries ordered function ids", func(t *testing.T) {
		input := createResolverInput("api-1", manifest.ResolverSpec{
			Type:             manifest.OperationMutation,
			Field:            "putOrder",
			Functions:        []string{"a", "b"},
			RequestTemplate:  "{}",
			ResponseTemplate: "$util.toJson($ctx.result)",
		}, types.ResolverKindPipeline, []string{"fn-1", "fn-2"})
		assert.Nil(t, input.DataSourceName)
		require.NotNil(t, input.PipelineConfig)
		assert.Equal(t, []string{"fn-1", "fn-2"}, input.PipelineConfig.Functions)
		assert.Equal(t, "{}", aws.ToString(input.RequestMappingTemplate))
	})
}
