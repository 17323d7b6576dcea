package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/cumulus-iac/cumulus/internal/ir"
	"github.com/cumulus-iac/cumulus/internal/logging"
	"github.com/cumulus-iac/cumulus/pkg/provider"
)

// RefreshState reconciles recorded state with the target environment:
// every tracked resource is read back through its provider, drifted
// outputs are updated in place, and resources deleted out-of-band are
// dropped from state. The desired configuration supplies provider
// settings only; it is not diffed here.
func (e *Engine) RefreshState(ctx context.Context, cfg *ir.Config, state *ir.State) (updated, removed []string, err error) {
	var kept []*ir.ResourceState

	for _, rs := range state.Resources {
		if err := e.registry.LoadProvider(ctx, rs.Provider, cfg.Providers[rs.Provider]); err != nil {
			return updated, removed, fmt.Errorf("failed to load provider %s: %w", rs.Provider, err)
		}
		prov, err := e.registry.Get(rs.Provider)
		if err != nil {
			return updated, removed, err
		}

		var currentJSON []byte
		if rs.Outputs != nil {
			currentJSON, _ = json.Marshal(rs.Outputs)
		}

		resp, err := prov.Read(ctx, &provider.ReadRequest{
			Type:    rs.Type,
			ID:      rs.ID,
			Current: currentJSON,
		})
		if err != nil {
			return updated, removed, fmt.Errorf("refresh failed for %s: %w", rs.Name, err)
		}

		if !resp.Exists {
			logging.Info("resource no longer exists, removing from state", "name", rs.Name)
			removed = append(removed, rs.Name)
			continue
		}

		var outputs map[string]any
		if len(resp.NewState) > 0 {
			if err := json.Unmarshal(resp.NewState, &outputs); err != nil {
				return updated, removed, fmt.Errorf("failed to unmarshal refreshed state for %s: %w", rs.Name, err)
			}
		}
		if outputs != nil && !reflect.DeepEqual(normalizeValue(rs.Outputs), normalizeValue(outputs)) {
			rs.Outputs = outputs
			if id, ok := outputs["id"].(string); ok {
				rs.ID = id
			}
			updated = append(updated, rs.Name)
		}
		kept = append(kept, rs)
	}

	if len(updated) > 0 || len(removed) > 0 {
		state.Resources = kept
		state.Serial++
	}
	return updated, removed, nil
}
