package policy

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/open-policy-agent/opa/rego"
	"github.com/open-policy-agent/opa/storage/inmem"
	"github.com/savaki/appsync-deployer/internal/manifest"
)

//go:embed manifest.rego
var policyContent string

type Validator struct {
	prepared rego.PreparedEvalQuery
}

type ValidationResult struct {
	Allowed    bool     `json:"allowed"`
	Violations []string `json:"violations,omitempty"`
}

func NewValidator() (*Validator, error) {
	query, err := rego.New(
		rego.Query("data.appsync_manifest.allow"),
		rego.Module("manifest.rego", policyContent),
	).PrepareForEval(context.Background())
	if err != nil {
		return nil, fmt.Errorf("failed to prepare policy query: %w", err)
	}

	return &Validator{
		prepared: query,
	}, nil
}

// ValidateManifest evaluates the embedded policy against a manifest for the
// given deployment environment.
func (v *Validator) ValidateManifest(m *manifest.Manifest, env string) (*ValidationResult, error) {
	ctx := context.Background()

	input := manifestInput(m)
	data := map[string]interface{}{
		"env": env,
	}

	store := inmem.NewFromObject(data)

	query, err := rego.New(
		rego.Query("data.appsync_manifest.allow"),
		rego.Module("manifest.rego", policyContent),
		rego.Store(store),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare policy query with data: %w", err)
	}

	results, err := query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate policy: %w", err)
	}

	if len(results) == 0 {
		return &ValidationResult{
			Allowed:    false,
			Violations: []string{"policy evaluation returned no results"},
		}, nil
	}

	allowed, ok := results[0].Expressions[0].Value.(bool)
	if !ok {
		return &ValidationResult{
			Allowed:    false,
			Violations: []string{"policy evaluation returned non-boolean result"},
		}, nil
	}

	result := &ValidationResult{
		Allowed: allowed,
	}

	if !allowed {
		violations, err := v.getViolations(ctx, input, data)
		if err != nil {
			return nil, fmt.Errorf("failed to get violations: %w", err)
		}
		result.Violations = violations
	}

	return result, nil
}

// manifestInput projects the manifest fields the policy inspects
func manifestInput(m *manifest.Manifest) map[string]interface{} {
	authTypes := make([]interface{}, 0, len(m.Authentication.Types))
	for _, t := range m.Authentication.Types {
		authTypes = append(authTypes, string(t))
	}

	return map[string]interface{}{
		"name": m.Name,
		"authentication": map[string]interface{}{
			"types": authTypes,
		},
		"logging": map[string]interface{}{
			"enabled":         m.Logging.Enabled,
			"field_log_level": m.Logging.FieldLogLevel,
			"retention_days":  int(m.Logging.RetentionDays),
		},
	}
}

func (v *Validator) getViolations(ctx context.Context, input, data map[string]interface{}) ([]string, error) {
	store := inmem.NewFromObject(data)

	violationQuery, err := rego.New(
		rego.Query("data.appsync_manifest.violations"),
		rego.Module("manifest.rego", policyContent),
		rego.Store(store),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare violations query: %w", err)
	}

	results, err := violationQuery.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate violations: %w", err)
	}

	if len(results) == 0 {
		return []string{"unknown policy violation"}, nil
	}

	violationsInterface := results[0].Expressions[0].Value
	if violationsInterface == nil {
		return []string{"unknown policy violation"}, nil
	}

	var violations []string
	switch v := violationsInterface.(type) {
	case []interface{}:
		for _, violation := range v {
			if str, ok := violation.(string); ok {
				violations = append(violations, str)
			}
		}
	case map[string]interface{}:
		// Handle set type from Rego
		for violation := range v {
			violations = append(violations, violation)
		}
	}

	if len(violations) == 0 {
		return []string{"policy validation failed but no specific violations found"}, nil
	}

	return violations, nil
}
