package services

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
)

// CloudWatchLogsService manages retention for the log group AppSync
// creates for an API. The group itself is created by AppSync on first
// write, keyed by the API's generated identifier.
type CloudWatchLogsService struct {
	client *cloudwatchlogs.Client
}

// NewCloudWatchLogsService creates a CloudWatch Logs service
func NewCloudWatchLogsService(client *cloudwatchlogs.Client) *CloudWatchLogsService {
	return &CloudWatchLogsService{client: client}
}

// LogGroupName returns the log group AppSync writes to for an API
func LogGroupName(apiID string) string {
	return fmt.Sprintf("/aws/appsync/apis/%s", apiID)
}

// EnsureLogGroup creates the API's log group if AppSync has not yet,
// and sets its retention. An already-existing group is fine; retention
// is converged either way.
func (s *CloudWatchLogsService) EnsureLogGroup(ctx context.Context, apiID string, retentionDays int32) (string, error) {
	name := LogGroupName(apiID)

	_, err := s.client.CreateLogGroup(ctx, &cloudwatchlogs.CreateLogGroupInput{
		LogGroupName: aws.String(name),
	})
	if err != nil && !isAWSErrorCode(err, "ResourceAlreadyExistsException") {
		return "", fmt.Errorf("failed to create log group %s: %w", name, err)
	}

	if retentionDays > 0 {
		_, err = s.client.PutRetentionPolicy(ctx, &cloudwatchlogs.PutRetentionPolicyInput{
			LogGroupName:    aws.String(name),
			RetentionInDays: aws.Int32(retentionDays),
		})
		if err != nil {
			return "", fmt.Errorf("failed to set retention on %s: %w", name, err)
		}
	}

	return name, nil
}

// DeleteLogGroup removes the API's log group; a missing group is
// tolerated.
func (s *CloudWatchLogsService) DeleteLogGroup(ctx context.Context, name string) error {
	_, err := s.client.DeleteLogGroup(ctx, &cloudwatchlogs.DeleteLogGroupInput{
		LogGroupName: aws.String(name),
	})
	if err != nil && !isAWSErrorCode(err, "ResourceNotFoundException") {
		return fmt.Errorf("failed to delete log group %s: %w", name, err)
	}
	return nil
}
