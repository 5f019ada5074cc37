package deployer

import (
	"fmt"

	"github.com/savaki/appsync-deployer/internal/graph"
	"github.com/savaki/appsync-deployer/internal/manifest"
)

// Resource graph node identifiers. Functions and resolvers are suffixed
// with their logical key, e.g. "function:get_order".
const (
	nodeLoggingRole = "logging_role"
	nodeAPI         = "api"
	nodeLogGroup    = "log_group"
	nodeDataSources = "datasources"
)

// BuildGraph derives the resource dependency graph from the manifest's
// references. Ordering is never declared explicitly: a pipeline resolver
// depends on the functions it names, functions and resolvers depend on
// the data source gate, the gate and log group depend on the API, and
// the API depends on the logging role when logging is enabled.
func BuildGraph(m *manifest.Manifest) (*graph.Graph, error) {
	g := graph.New()
	g.AddNode(nodeAPI)

	if m.Logging.Enabled {
		g.AddNode(nodeLoggingRole)
		g.AddNode(nodeLogGroup)
		if err := g.AddDependency(nodeAPI, nodeLoggingRole); err != nil {
			return nil, err
		}
		if err := g.AddDependency(nodeLogGroup, nodeAPI); err != nil {
			return nil, err
		}
	}

	g.AddNode(nodeDataSources)
	if err := g.AddDependency(nodeDataSources, nodeAPI); err != nil {
		return nil, err
	}

	for _, key := range m.SortedFunctionKeys() {
		node := functionNode(key)
		g.AddNode(node)
		if err := g.AddDependency(node, nodeDataSources); err != nil {
			return nil, err
		}
	}

	for _, key := range m.SortedUnitResolverKeys() {
		node := unitResolverNode(key)
		g.AddNode(node)
		if err := g.AddDependency(node, nodeDataSources); err != nil {
			return nil, err
		}
	}

	for _, key := range m.SortedPipelineResolverKeys() {
		node := pipelineResolverNode(key)
		g.AddNode(node)
		for _, fnKey := range m.PipelineResolvers[key].Functions {
			if err := g.AddDependency(node, functionNode(fnKey)); err != nil {
				return nil, err
			}
		}
	}

	return g, nil
}

// Plan returns the resource identifiers in the order Apply would create
// them.
func Plan(m *manifest.Manifest) ([]string, error) {
	g, err := BuildGraph(m)
	if err != nil {
		return nil, err
	}
	return g.ApplyOrder()
}

func functionNode(key string) string         { return "function:" + key }
func unitResolverNode(key string) string     { return "unit_resolver:" + key }
func pipelineResolverNode(key string) string { return "pipeline_resolver:" + key }

// ResolveFunctionIDs projects an ordered list of logical function keys
// through the created-function map, preserving length and order. The
// manifest validator already guarantees every key is declared; a miss
// here means the function was never created.
func ResolveFunctionIDs(keys []string, created map[string]Function) ([]string, error) {
	ids := make([]string, len(keys))
	for i, key := range keys {
		fn, ok := created[key]
		if !ok {
			return nil, fmt.Errorf("pipeline references function %q that was not created", key)
		}
		ids[i] = fn.ID
	}
	return ids, nil
}
