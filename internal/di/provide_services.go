package di

import (
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/appsync"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/savaki/appsync-deployer/internal/deployer"
	"github.com/savaki/appsync-deployer/internal/policy"
	"github.com/savaki/appsync-deployer/internal/schema"
	"github.com/savaki/appsync-deployer/internal/services"
)

func ProvideAppSyncService(config aws.Config, client *appsync.Client) *services.AppSyncService {
	return services.NewAppSyncService(client, config.Region)
}

func ProvideIAMService(config aws.Config, client *iam.Client, stsClient *sts.Client) *services.IAMService {
	return services.NewIAMService(client, stsClient, config.Region)
}

func ProvideCloudWatchLogsService(client *cloudwatchlogs.Client) *services.CloudWatchLogsService {
	return services.NewCloudWatchLogsService(client)
}

func ProvideOutputStore(client *ssm.Client, env string) services.OutputStore {
	return services.NewSSMOutputStore(client, env)
}

func ProvideSchemaLoader(s3Client *s3.Client) *schema.Loader {
	return schema.NewLoader(s3Client)
}

func ProvideDeployer(
	iamService *services.IAMService,
	appsyncService *services.AppSyncService,
	logsService *services.CloudWatchLogsService,
	loader *schema.Loader,
) *deployer.Deployer {
	return deployer.New(iamService, appsyncService, logsService, loader)
}

func ProvideValidator() (*policy.Validator, error) {
	return policy.NewValidator()
}
