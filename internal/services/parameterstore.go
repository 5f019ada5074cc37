package services

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
)

// OutputStore persists apply outputs for downstream composition
type OutputStore interface {
	// PutOutputs stores the serialized stack outputs for an API
	PutOutputs(ctx context.Context, apiName, payload string) (string, error)

	// GetOutputs retrieves previously stored outputs, or "" when absent
	GetOutputs(ctx context.Context, apiName string) (string, error)

	// DeleteOutputs removes stored outputs after a destroy
	DeleteOutputs(ctx context.Context, apiName string) error
}

// SSMOutputStore implements OutputStore on AWS Systems Manager
// Parameter Store under /{env}/appsync-deployer/apis/{name}.
type SSMOutputStore struct {
	client *ssm.Client
	env    string
}

// NewSSMOutputStore creates an SSM-backed output store
func NewSSMOutputStore(client *ssm.Client, env string) *SSMOutputStore {
	return &SSMOutputStore{client: client, env: env}
}

func (s *SSMOutputStore) parameterName(apiName string) string {
	return fmt.Sprintf("/%s/appsync-deployer/apis/%s", s.env, apiName)
}

// PutOutputs writes the payload, overwriting any previous apply's
// outputs, and returns the parameter name.
func (s *SSMOutputStore) PutOutputs(ctx context.Context, apiName, payload string) (string, error) {
	name := s.parameterName(apiName)
	_, err := s.client.PutParameter(ctx, &ssm.PutParameterInput{
		Name:      aws.String(name),
		Value:     aws.String(payload),
		Type:      types.ParameterTypeString,
		Overwrite: aws.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("failed to put parameter %s: %w", name, err)
	}
	return name, nil
}

// GetOutputs reads the stored payload. A missing parameter returns ""
// with no error so callers can treat first applies uniformly.
func (s *SSMOutputStore) GetOutputs(ctx context.Context, apiName string) (string, error) {
	name := s.parameterName(apiName)
	result, err := s.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name: aws.String(name),
	})
	if err != nil {
		if isAWSErrorCode(err, "ParameterNotFound") {
			return "", nil
		}
		return "", fmt.Errorf("failed to get parameter %s: %w", name, err)
	}
	if result.Parameter == nil || result.Parameter.Value == nil {
		return "", nil
	}
	return *result.Parameter.Value, nil
}

// DeleteOutputs removes the parameter; missing parameters are tolerated
func (s *SSMOutputStore) DeleteOutputs(ctx context.Context, apiName string) error {
	name := s.parameterName(apiName)
	_, err := s.client.DeleteParameter(ctx, &ssm.DeleteParameterInput{
		Name: aws.String(name),
	})
	if err != nil && !isAWSErrorCode(err, "ParameterNotFound") {
		return fmt.Errorf("failed to delete parameter %s: %w", name, err)
	}
	return nil
}
