package engine

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/cumulus-iac/cumulus/internal/ir"
	"github.com/cumulus-iac/cumulus/internal/logging"
	"github.com/cumulus-iac/cumulus/internal/provider"
)

// Engine orchestrates the lifecycle of resources.
type Engine struct {
	registry        *provider.Registry
	Parallelism     int  // worker pool size for independent branches
	ContinueOnError bool // continue past failures in unaffected branches
}

func NewEngine(registry *provider.Registry) *Engine {
	return &Engine{
		registry:    registry,
		Parallelism: DefaultParallelism,
	}
}

// CreatePlan computes the minimal change set between the desired
// configuration and the current stack state. Classification per logical
// name: CREATE when absent from state, UPDATE when resolved properties
// differ structurally, DELETE when present only in state, NOOP otherwise.
// Creates and updates follow creation order; deletes follow destruction
// order. No mutation happens here.
func (e *Engine) CreatePlan(ctx context.Context, cfg *ir.Config, state *ir.State) (*ir.Plan, error) {
	logging.Debug("creating plan", "resources", len(cfg.Resources), "state_resources", len(state.Resources))

	plan := &ir.Plan{
		Metadata: &ir.PlanMetadata{
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Stack:     state.Stack,
		},
		Changes: []*ir.ResourceChange{},
		Summary: &ir.PlanSummary{},
		Outputs: cfg.Outputs,
	}

	for _, res := range cfg.Resources {
		if err := e.registry.LoadProvider(ctx, res.Provider, cfg.Providers[res.Provider]); err != nil {
			return nil, fmt.Errorf("failed to load provider %s: %w", res.Provider, err)
		}
	}

	dag, err := BuildDAG(cfg.Resources)
	if err != nil {
		return nil, err
	}

	stateMap := make(map[string]*ir.ResourceState, len(state.Resources))
	for _, rs := range state.Resources {
		stateMap[rs.Name] = rs
	}
	configByName := make(map[string]*ir.Resource, len(cfg.Resources))
	for _, res := range cfg.Resources {
		configByName[res.Name] = res
	}

	// Creates and updates, in creation order.
	for _, name := range dag.CreationOrder() {
		res := configByName[name]
		desired, _ := normalizeValue(res.Properties).(map[string]any)

		prior, exists := stateMap[name]
		if !exists {
			plan.Changes = append(plan.Changes, &ir.ResourceChange{
				Address: name,
				Action:  ir.ActionCreate,
				Desired: res,
				Diff:    buildCreateDiff(desired),
			})
			plan.Summary.Create++
			continue
		}

		priorProps, _ := normalizeValue(prior.Inputs).(map[string]any)
		diff := buildPropertyDiff(priorProps, desired)
		if len(diff) == 0 || allChangesIgnored(res, diff) {
			plan.Summary.NoOp++
			continue
		}

		plan.Changes = append(plan.Changes, &ir.ResourceChange{
			Address: name,
			Action:  ir.ActionUpdate,
			Desired: res,
			Prior: &ir.Resource{
				Name:       prior.Name,
				Type:       prior.Type,
				Provider:   prior.Provider,
				Properties: prior.Inputs,
			},
			Diff: diff,
		})
		plan.Summary.Update++
	}

	// Deletes: resources in state but absent from the desired set, in
	// destruction order so dependents go before their dependencies.
	sdag, err := BuildDAGFromState(state.Resources)
	if err != nil {
		return nil, err
	}
	for _, name := range sdag.DestructionOrder() {
		rs, inState := stateMap[name]
		if !inState || configByName[name] != nil {
			continue
		}
		if rs.Protected {
			return nil, fmt.Errorf("resource %s has preventDestroy set but the plan requires its destruction", name)
		}
		if err := e.registry.LoadProvider(ctx, rs.Provider, cfg.Providers[rs.Provider]); err != nil {
			return nil, fmt.Errorf("failed to load provider %s: %w", rs.Provider, err)
		}
		plan.Changes = append(plan.Changes, &ir.ResourceChange{
			Address: name,
			Action:  ir.ActionDelete,
			Prior: &ir.Resource{
				Name:       rs.Name,
				Type:       rs.Type,
				Provider:   rs.Provider,
				Properties: rs.Inputs,
			},
			Diff: buildDeleteDiff(rs.Inputs),
		})
		plan.Summary.Delete++
	}

	return plan, nil
}

// allChangesIgnored reports whether every changed key is covered by the
// resource's ignoreChanges list; such updates degrade to NOOP.
func allChangesIgnored(res *ir.Resource, diff map[string]*ir.PropertyDiff) bool {
	if res.Lifecycle == nil || len(res.Lifecycle.IgnoreChanges) == 0 {
		return false
	}
	ignored := make(map[string]bool, len(res.Lifecycle.IgnoreChanges))
	for _, key := range res.Lifecycle.IgnoreChanges {
		ignored[key] = true
	}
	for key := range diff {
		if !ignored[key] {
			return false
		}
	}
	return true
}

// buildPropertyDiff compares prior and desired property trees key by key
// using structural equality over the normalized values.
func buildPropertyDiff(prior, desired map[string]any) map[string]*ir.PropertyDiff {
	diff := make(map[string]*ir.PropertyDiff)

	allKeys := make(map[string]bool, len(prior)+len(desired))
	for k := range prior {
		allKeys[k] = true
	}
	for k := range desired {
		allKeys[k] = true
	}

	for k := range allKeys {
		priorVal, inPrior := prior[k]
		desiredVal, inDesired := desired[k]

		switch {
		case !inPrior:
			diff[k] = &ir.PropertyDiff{After: desiredVal, Action: ir.ActionCreate}
		case !inDesired:
			diff[k] = &ir.PropertyDiff{Before: priorVal, Action: ir.ActionDelete}
		case !reflect.DeepEqual(priorVal, desiredVal):
			diff[k] = &ir.PropertyDiff{Before: priorVal, After: desiredVal, Action: ir.ActionUpdate}
		}
	}

	return diff
}

func buildCreateDiff(props map[string]any) map[string]*ir.PropertyDiff {
	diff := make(map[string]*ir.PropertyDiff, len(props))
	for k, v := range props {
		diff[k] = &ir.PropertyDiff{After: v, Action: ir.ActionCreate}
	}
	return diff
}

func buildDeleteDiff(props map[string]any) map[string]*ir.PropertyDiff {
	diff := make(map[string]*ir.PropertyDiff, len(props))
	for k, v := range props {
		diff[k] = &ir.PropertyDiff{Before: v, Action: ir.ActionDelete}
	}
	return diff
}

// normalizeValue canonicalizes a property tree for comparison: all maps
// become map[string]any and all numbers become float64, so values that
// round-tripped through the JSON state file compare equal to values
// decoded from YAML.
func normalizeValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, v := range val {
			out[k] = normalizeValue(v)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, v := range val {
			out[fmt.Sprintf("%v", k)] = normalizeValue(v)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, v := range val {
			out[i] = normalizeValue(v)
		}
		return out
	case int:
		return float64(val)
	case int32:
		return float64(val)
	case int64:
		return float64(val)
	case uint:
		return float64(val)
	case uint64:
		return float64(val)
	case float32:
		return float64(val)
	default:
		return val
	}
}
