package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cumulus-iac/cumulus/internal/ir"
	"github.com/cumulus-iac/cumulus/internal/logging"
	"github.com/cumulus-iac/cumulus/pkg/provider"
)

// DefaultParallelism bounds concurrent control-plane operations within
// one apply.
const DefaultParallelism = 10

// ApplyEvent represents a progress event during apply.
type ApplyEvent struct {
	Address  string
	Action   ir.Action
	Status   string // "started", "completed", "failed", "skipped"
	Duration time.Duration
	Error    error
}

// ApplyCallback is called for each apply event if set.
type ApplyCallback func(event ApplyEvent)

// Report names the outcome of every resource touched by an apply:
// completed, failed, or skipped because a dependency failed or the
// operation was cancelled before the resource was scheduled.
type Report struct {
	mu        sync.Mutex
	Completed []string
	Failed    []string
	Skipped   []string
	Errors    map[string]error
}

func newReport() *Report {
	return &Report{Errors: make(map[string]error)}
}

func (r *Report) complete(addr string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Completed = append(r.Completed, addr)
}

func (r *Report) fail(addr string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Failed = append(r.Failed, addr)
	r.Errors[addr] = err
}

func (r *Report) skip(addr string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Skipped = append(r.Skipped, addr)
}

// Summary returns a one-line account of the apply outcome.
func (r *Report) Summary() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	sort.Strings(r.Failed)
	sort.Strings(r.Skipped)
	s := fmt.Sprintf("%d completed, %d failed, %d skipped", len(r.Completed), len(r.Failed), len(r.Skipped))
	if len(r.Failed) > 0 {
		s += fmt.Sprintf(" (failed: %s)", strings.Join(r.Failed, ", "))
	}
	if len(r.Skipped) > 0 {
		s += fmt.Sprintf(" (skipped: %s)", strings.Join(r.Skipped, ", "))
	}
	return s
}

// ApplyPlan executes a plan and updates the state in place.
func (e *Engine) ApplyPlan(ctx context.Context, plan *ir.Plan, state *ir.State) (*Report, error) {
	return e.ApplyPlanWithCallback(ctx, plan, state, nil)
}

// ApplyPlanWithCallback executes a plan with progress event callbacks.
// Independent branches of the dependency graph run concurrently on a
// bounded worker pool; a resource starts only after all its dependencies
// reached a terminal success state. When a resource fails its dependents
// are skipped; unaffected branches continue. Cancellation stops
// scheduling of not-yet-started resources but lets in-flight operations
// finish.
func (e *Engine) ApplyPlanWithCallback(ctx context.Context, plan *ir.Plan, state *ir.State, callback ApplyCallback) (*Report, error) {
	report := newReport()
	emit := func(event ApplyEvent) {
		if callback != nil {
			callback(event)
		}
	}

	var mu sync.Mutex
	stateIndex := make(map[string]int, len(state.Resources))
	for i, rs := range state.Resources {
		stateIndex[rs.Name] = i
	}

	// Dependency links recorded in state, captured before deletes mutate it.
	stateDeps := make(map[string][]string, len(state.Resources))
	for _, rs := range state.Resources {
		stateDeps[rs.Name] = rs.Dependencies
	}

	var createUpdates, deletes []*ir.ResourceChange
	for _, change := range plan.Changes {
		if change.Action == ir.ActionDelete {
			deletes = append(deletes, change)
		} else {
			createUpdates = append(createUpdates, change)
		}
	}

	var errs []error

	forwardErr := e.applyGroup(ctx, createUpdates, forwardDeps(createUpdates), state, stateIndex, &mu, report, emit)
	if forwardErr != nil {
		if !e.ContinueOnError {
			for _, change := range deletes {
				report.skip(change.Address)
				emit(ApplyEvent{Address: change.Address, Action: change.Action, Status: "skipped"})
			}
			state.Serial++
			return report, forwardErr
		}
		errs = append(errs, forwardErr)
	}

	if err := e.applyGroup(ctx, deletes, deleteDeps(deletes, stateDeps), state, stateIndex, &mu, report, emit); err != nil {
		if !e.ContinueOnError {
			state.Serial++
			return report, err
		}
		errs = append(errs, err)
	}

	state.Serial++
	mu.Lock()
	state.Outputs, _ = normalizeValue(resolveReferences(plan.Outputs, state)).(map[string]any)
	mu.Unlock()

	if len(errs) > 0 {
		return report, fmt.Errorf("apply finished with failures (%s): %w", report.Summary(), errors.Join(errs...))
	}
	return report, nil
}

// forwardDeps maps each create/update to the changes it must wait for.
func forwardDeps(changes []*ir.ResourceChange) map[string]map[string]bool {
	inSet := make(map[string]bool, len(changes))
	for _, c := range changes {
		inSet[c.Address] = true
	}
	deps := make(map[string]map[string]bool, len(changes))
	for _, c := range changes {
		deps[c.Address] = make(map[string]bool)
		if c.Desired == nil {
			continue
		}
		for _, dep := range ResourceDeps(c.Desired) {
			if inSet[dep] {
				deps[c.Address][dep] = true
			}
		}
	}
	return deps
}

// deleteDeps inverts recorded state dependencies: a resource may only be
// deleted after every resource that depends on it is gone.
func deleteDeps(changes []*ir.ResourceChange, stateDeps map[string][]string) map[string]map[string]bool {
	inSet := make(map[string]bool, len(changes))
	for _, c := range changes {
		inSet[c.Address] = true
	}
	deps := make(map[string]map[string]bool, len(changes))
	for _, c := range changes {
		deps[c.Address] = make(map[string]bool)
	}
	for dependent, dependencies := range stateDeps {
		if !inSet[dependent] {
			continue
		}
		for _, dependency := range dependencies {
			if inSet[dependency] {
				deps[dependency][dependent] = true
			}
		}
	}
	return deps
}

// applyGroup applies changes concurrently, respecting the dependency map
// and the configured parallelism bound.
func (e *Engine) applyGroup(ctx context.Context, changes []*ir.ResourceChange, deps map[string]map[string]bool, state *ir.State, stateIndex map[string]int, mu *sync.Mutex, report *Report, emit func(ApplyEvent)) error {
	if len(changes) == 0 {
		return nil
	}

	parallelism := e.Parallelism
	if parallelism <= 0 {
		parallelism = DefaultParallelism
	}

	completed := make(map[string]bool)
	failed := make(map[string]bool)
	trackMu := sync.Mutex{}
	trackCond := sync.NewCond(&trackMu)
	var firstErr error
	var allErrs []error
	sem := make(chan struct{}, parallelism)

	var wg sync.WaitGroup
	for _, change := range changes {
		wg.Add(1)
		go func(c *ir.ResourceChange) {
			defer wg.Done()

			trackMu.Lock()
			for {
				if firstErr != nil && !e.ContinueOnError {
					trackMu.Unlock()
					report.skip(c.Address)
					emit(ApplyEvent{Address: c.Address, Action: c.Action, Status: "skipped"})
					trackCond.Broadcast()
					return
				}
				depFailed := false
				allReady := true
				for dep := range deps[c.Address] {
					if failed[dep] {
						depFailed = true
						break
					}
					if !completed[dep] {
						allReady = false
						break
					}
				}
				if depFailed {
					failed[c.Address] = true
					trackMu.Unlock()
					report.skip(c.Address)
					emit(ApplyEvent{Address: c.Address, Action: c.Action, Status: "skipped"})
					trackCond.Broadcast()
					return
				}
				if allReady {
					break
				}
				trackCond.Wait()
			}
			trackMu.Unlock()

			// Cancellation stops scheduling; resources already past this
			// point run to completion.
			if err := ctx.Err(); err != nil {
				trackMu.Lock()
				if firstErr == nil {
					firstErr = fmt.Errorf("apply cancelled: %w", err)
				}
				failed[c.Address] = true
				trackMu.Unlock()
				report.skip(c.Address)
				emit(ApplyEvent{Address: c.Address, Action: c.Action, Status: "skipped"})
				trackCond.Broadcast()
				return
			}

			sem <- struct{}{}
			defer func() { <-sem }()

			start := time.Now()
			emit(ApplyEvent{Address: c.Address, Action: c.Action, Status: "started"})

			if err := e.applyChange(ctx, c, state, stateIndex, mu); err != nil {
				report.fail(c.Address, err)
				emit(ApplyEvent{Address: c.Address, Action: c.Action, Status: "failed", Duration: time.Since(start), Error: err})
				trackMu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				allErrs = append(allErrs, err)
				failed[c.Address] = true
				trackMu.Unlock()
				trackCond.Broadcast()
				return
			}

			report.complete(c.Address)
			emit(ApplyEvent{Address: c.Address, Action: c.Action, Status: "completed", Duration: time.Since(start)})

			trackMu.Lock()
			completed[c.Address] = true
			trackMu.Unlock()
			trackCond.Broadcast()
		}(change)
	}
	wg.Wait()

	if e.ContinueOnError && len(allErrs) > 0 {
		return fmt.Errorf("%d resource(s) failed: %w", len(allErrs), errors.Join(allErrs...))
	}
	return firstErr
}

func (e *Engine) applyChange(ctx context.Context, change *ir.ResourceChange, state *ir.State, stateIndex map[string]int, mu *sync.Mutex) error {
	addr := change.Address
	logging.Debug("applying change", "address", addr, "action", change.Action)

	timeout := DefaultTimeout
	if change.Desired != nil && change.Desired.Timeout != "" {
		if d, err := time.ParseDuration(change.Desired.Timeout); err == nil && d > 0 {
			timeout = d
		}
	}
	// Detached from the parent's cancellation so an in-flight operation
	// finishes rather than leaving a half-created resource behind.
	opCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	var name, typ, provName string
	if change.Desired != nil {
		name, typ, provName = change.Desired.Name, change.Desired.Type, change.Desired.Provider
	} else if change.Prior != nil {
		name, typ, provName = change.Prior.Name, change.Prior.Type, change.Prior.Provider
	}

	prov, err := e.registry.Get(provName)
	if err != nil {
		return fmt.Errorf("%s: %w", addr, err)
	}

	var priorJSON []byte
	mu.Lock()
	if idx, ok := stateIndex[addr]; ok {
		if outputs := state.Resources[idx].Outputs; outputs != nil {
			priorJSON, _ = json.Marshal(outputs)
		}
	}
	mu.Unlock()

	policy := DefaultRetryPolicy()

	switch change.Action {
	case ir.ActionCreate, ir.ActionUpdate:
		mu.Lock()
		resolved := resolveReferences(normalizeValue(change.Desired.Properties), state)
		mu.Unlock()
		desiredJSON, err := json.Marshal(resolved)
		if err != nil {
			return fmt.Errorf("failed to marshal properties for %s: %w", addr, err)
		}

		var resp *provider.ApplyResponse
		err = RetryWithBackoff(opCtx, policy, func() error {
			var applyErr error
			resp, applyErr = prov.Apply(opCtx, &provider.ApplyRequest{
				Type:    typ,
				Name:    name,
				Desired: desiredJSON,
				Prior:   priorJSON,
			})
			return applyErr
		}, IsTransientError)
		if err != nil {
			return fmt.Errorf("apply failed for %s: %w", addr, err)
		}

		var outputs map[string]any
		if len(resp.NewState) > 0 {
			if err := json.Unmarshal(resp.NewState, &outputs); err != nil {
				return fmt.Errorf("failed to unmarshal new state for %s: %w", addr, err)
			}
		}

		newState := &ir.ResourceState{
			Name:         name,
			Type:         typ,
			Provider:     provName,
			Inputs:       change.Desired.Properties,
			Outputs:      outputs,
			Dependencies: ResourceDeps(change.Desired),
		}
		if id, ok := outputs["id"].(string); ok {
			newState.ID = id
		}
		if change.Desired.Lifecycle != nil {
			newState.Protected = change.Desired.Lifecycle.PreventDestroy
		}

		mu.Lock()
		if idx, ok := stateIndex[addr]; ok {
			state.Resources[idx] = newState
		} else {
			stateIndex[addr] = len(state.Resources)
			state.Resources = append(state.Resources, newState)
		}
		mu.Unlock()

	case ir.ActionDelete:
		var resourceID string
		mu.Lock()
		if idx, ok := stateIndex[addr]; ok {
			resourceID = state.Resources[idx].ID
		}
		mu.Unlock()

		err := RetryWithBackoff(opCtx, policy, func() error {
			_, deleteErr := prov.Delete(opCtx, &provider.DeleteRequest{
				Type:    typ,
				ID:      resourceID,
				Current: priorJSON,
			})
			return deleteErr
		}, IsTransientError)
		if err != nil {
			return fmt.Errorf("delete failed for %s: %w", addr, err)
		}

		mu.Lock()
		if idx, ok := stateIndex[addr]; ok {
			state.Resources = append(state.Resources[:idx], state.Resources[idx+1:]...)
			for k := range stateIndex {
				delete(stateIndex, k)
			}
			for i, rs := range state.Resources {
				stateIndex[rs.Name] = i
			}
		}
		mu.Unlock()
	}

	return nil
}

// resolveReferences replaces ref://name/attribute tokens with values
// from the (partially updated) state: provider outputs first, recorded
// inputs second. Unresolvable tokens pass through unchanged.
func resolveReferences(val any, state *ir.State) any {
	switch v := val.(type) {
	case string:
		name, attr, ok := ir.ParseRef(v)
		if !ok {
			return v
		}
		rs := state.Resource(name)
		if rs == nil || attr == "" {
			return v
		}
		if out, ok := rs.Outputs[attr]; ok {
			return out
		}
		if in, ok := rs.Inputs[attr]; ok {
			return in
		}
		return v
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, v := range v {
			out[k] = resolveReferences(v, state)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, v := range v {
			out[i] = resolveReferences(v, state)
		}
		return out
	default:
		return v
	}
}
