// Package null implements a no-op provider. Resources exist only in
// state; useful for wiring tests and for ordering-only resources.
package null

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cumulus-iac/cumulus/pkg/provider"
)

type Provider struct{}

func New() *Provider {
	return &Provider{}
}

func (p *Provider) Configure(ctx context.Context, req *provider.ConfigureRequest) (*provider.ConfigureResponse, error) {
	return &provider.ConfigureResponse{}, nil
}

// Apply echoes the desired properties back as state under a synthetic
// physical identifier. A "fail" property forces a permanent failure and
// a "failTransient" property a retryable one, so executor behavior can
// be exercised without a real control plane.
func (p *Provider) Apply(ctx context.Context, req *provider.ApplyRequest) (*provider.ApplyResponse, error) {
	var desired map[string]any
	if len(req.Desired) > 0 {
		if err := json.Unmarshal(req.Desired, &desired); err != nil {
			return nil, provider.Permanent(fmt.Errorf("failed to unmarshal desired properties: %w", err))
		}
	}

	if msg, ok := desired["fail"].(string); ok && msg != "" {
		return nil, provider.Permanent(errors.New(msg))
	}
	if msg, ok := desired["failTransient"].(string); ok && msg != "" {
		return nil, provider.Transient(errors.New(msg))
	}

	state := make(map[string]any, len(desired)+1)
	for k, v := range desired {
		state[k] = v
	}
	state["id"] = fmt.Sprintf("null-%s", req.Name)

	stateJSON, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal state: %w", err)
	}

	return &provider.ApplyResponse{NewState: stateJSON}, nil
}

func (p *Provider) Read(ctx context.Context, req *provider.ReadRequest) (*provider.ReadResponse, error) {
	return &provider.ReadResponse{
		Exists:   true,
		NewState: req.Current,
	}, nil
}

func (p *Provider) Delete(ctx context.Context, req *provider.DeleteRequest) (*provider.DeleteResponse, error) {
	return &provider.DeleteResponse{}, nil
}
