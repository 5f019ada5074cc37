package di

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/appsync"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

func ProvideAWSConfig(ctx context.Context) (aws.Config, error) {
	return config.LoadDefaultConfig(ctx)
}

func ProvideAppSyncClient(config aws.Config) *appsync.Client {
	return appsync.NewFromConfig(config)
}

func ProvideIAMClient(config aws.Config) *iam.Client {
	return iam.NewFromConfig(config)
}

func ProvideSTSClient(config aws.Config) *sts.Client {
	return sts.NewFromConfig(config)
}

func ProvideCloudWatchLogsClient(config aws.Config) *cloudwatchlogs.Client {
	return cloudwatchlogs.NewFromConfig(config)
}

func ProvideDynamoDB(config aws.Config) *dynamodb.Client {
	return dynamodb.NewFromConfig(config)
}

func ProvideS3Client(config aws.Config) *s3.Client {
	return s3.NewFromConfig(config)
}

func ProvideSSMClient(config aws.Config) *ssm.Client {
	return ssm.NewFromConfig(config)
}
