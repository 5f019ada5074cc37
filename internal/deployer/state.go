package deployer

import (
	"encoding/json"
	"fmt"

	"github.com/savaki/appsync-deployer/internal/services"
)

// StackState captures the handles produced by one apply: everything a
// downstream consumer needs to compose against the stack, and
// everything Destroy needs to tear it down in reverse order.
type StackState struct {
	APIName           string                       `json:"api_name"`
	APIID             string                       `json:"api_id"`
	APIArn            string                       `json:"api_arn"`
	URIs              map[string]string            `json:"uris,omitempty"`
	LoggingRole       *services.LoggingRole        `json:"logging_role,omitempty"`
	LogGroup          string                       `json:"log_group,omitempty"`
	Functions         map[string]services.Function `json:"functions,omitempty"`
	UnitResolvers     map[string]services.Resolver `json:"unit_resolvers,omitempty"`
	PipelineResolvers map[string]services.Resolver `json:"pipeline_resolvers,omitempty"`
	AppliedAt         int64                        `json:"applied_at"`
}

// Marshal serializes the state for the output store and history records
func (s *StackState) Marshal() (string, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("failed to marshal stack state: %w", err)
	}
	return string(data), nil
}

// UnmarshalState parses a previously stored state payload
func UnmarshalState(payload string) (*StackState, error) {
	var state StackState
	if err := json.Unmarshal([]byte(payload), &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal stack state: %w", err)
	}
	return &state, nil
}
