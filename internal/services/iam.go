package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/aws/smithy-go"
)

const loggingPolicyName = "appsync-push-to-cloudwatch-logs"

// IAMService manages the CloudWatch logging role AppSync assumes when
// writing request and field logs.
type IAMService struct {
	client    *iam.Client
	stsClient *sts.Client
	region    string
}

// LoggingRole identifies the provisioned role and its inline policy
type LoggingRole struct {
	RoleName   string `json:"role_name"`
	RoleArn    string `json:"role_arn"`
	PolicyName string `json:"policy_name"`
}

// NewIAMService creates an IAM service for the given clients
func NewIAMService(client *iam.Client, stsClient *sts.Client, region string) *IAMService {
	return &IAMService{
		client:    client,
		stsClient: stsClient,
		region:    region,
	}
}

// GetAWSAccountID retrieves the AWS account ID of the caller
func (s *IAMService) GetAWSAccountID(ctx context.Context) (string, error) {
	result, err := s.stsClient.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return "", fmt.Errorf("failed to get caller identity: %w", err)
	}

	if result.Account == nil {
		return "", fmt.Errorf("account ID is nil")
	}

	return *result.Account, nil
}

// AppSyncTrustPolicy returns the trust policy allowing the AppSync
// service principal to assume the logging role.
func AppSyncTrustPolicy() string {
	return `{
  "Version": "2012-10-17",
  "Statement": [
    {
      "Effect": "Allow",
      "Principal": {
        "Service": "appsync.amazonaws.com"
      },
      "Action": "sts:AssumeRole"
    }
  ]
}`
}

// CloudWatchLogsPolicy returns the inline policy granting log writes
// scoped to the caller's account and region.
func CloudWatchLogsPolicy(accountID, region string) string {
	return fmt.Sprintf(`{
  "Version": "2012-10-17",
  "Statement": [
    {
      "Effect": "Allow",
      "Action": [
        "logs:CreateLogGroup",
        "logs:CreateLogStream",
        "logs:PutLogEvents"
      ],
      "Resource": "arn:aws:logs:%s:%s:*"
    }
  ]
}`, region, accountID)
}

// EnsureLoggingRole creates or updates the role named
// {apiName}-logging-role with the AppSync trust policy and an inline
// CloudWatch Logs policy, returning its identifiers. PutRolePolicy is
// idempotent, so re-applies converge without drift.
func (s *IAMService) EnsureLoggingRole(ctx context.Context, apiName string) (*LoggingRole, error) {
	roleName := fmt.Sprintf("%s-logging-role", apiName)
	trustPolicy := AppSyncTrustPolicy()

	getResult, err := s.client.GetRole(ctx, &iam.GetRoleInput{
		RoleName: aws.String(roleName),
	})

	roleExists := err == nil && getResult.Role != nil
	if err != nil && !isAWSErrorCode(err, "NoSuchEntity") {
		return nil, fmt.Errorf("failed to get role: %w", err)
	}

	var roleArn string
	if !roleExists {
		createResult, err := s.client.CreateRole(ctx, &iam.CreateRoleInput{
			RoleName:                 aws.String(roleName),
			AssumeRolePolicyDocument: aws.String(trustPolicy),
			Description:              aws.String(fmt.Sprintf("CloudWatch logging role for AppSync API %s", apiName)),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create role: %w", err)
		}
		roleArn = aws.ToString(createResult.Role.Arn)
	} else {
		// Role exists, converge the trust policy
		_, err = s.client.UpdateAssumeRolePolicy(ctx, &iam.UpdateAssumeRolePolicyInput{
			RoleName:       aws.String(roleName),
			PolicyDocument: aws.String(trustPolicy),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to update trust policy: %w", err)
		}
		roleArn = aws.ToString(getResult.Role.Arn)
	}

	accountID, err := s.GetAWSAccountID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get AWS account ID: %w", err)
	}

	_, err = s.client.PutRolePolicy(ctx, &iam.PutRolePolicyInput{
		RoleName:       aws.String(roleName),
		PolicyName:     aws.String(loggingPolicyName),
		PolicyDocument: aws.String(CloudWatchLogsPolicy(accountID, s.region)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to attach/update policy to role: %w", err)
	}

	return &LoggingRole{
		RoleName:   roleName,
		RoleArn:    roleArn,
		PolicyName: loggingPolicyName,
	}, nil
}

// DeleteLoggingRole removes the inline policy and the role. Missing
// entities are tolerated so destroy stays idempotent.
func (s *IAMService) DeleteLoggingRole(ctx context.Context, role *LoggingRole) error {
	_, err := s.client.DeleteRolePolicy(ctx, &iam.DeleteRolePolicyInput{
		RoleName:   aws.String(role.RoleName),
		PolicyName: aws.String(role.PolicyName),
	})
	if err != nil && !isAWSErrorCode(err, "NoSuchEntity") {
		return fmt.Errorf("failed to delete role policy: %w", err)
	}

	_, err = s.client.DeleteRole(ctx, &iam.DeleteRoleInput{
		RoleName: aws.String(role.RoleName),
	})
	if err != nil && !isAWSErrorCode(err, "NoSuchEntity") {
		return fmt.Errorf("failed to delete role: %w", err)
	}

	return nil
}

// isAWSErrorCode reports whether err is a smithy API error with the
// given code.
func isAWSErrorCode(err error, code string) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode() == code
	}
	return false
}
