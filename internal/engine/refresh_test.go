package engine

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cumulus-iac/cumulus/internal/ir"
	intprovider "github.com/cumulus-iac/cumulus/internal/provider"
	"github.com/cumulus-iac/cumulus/pkg/provider"
)

// driftProvider simulates out-of-band changes: resources listed in gone
// no longer exist, resources in drifted report replacement outputs.
type driftProvider struct {
	gone    map[string]bool
	drifted map[string]map[string]any
	reads   []string
}

func (p *driftProvider) Configure(ctx context.Context, req *provider.ConfigureRequest) (*provider.ConfigureResponse, error) {
	return &provider.ConfigureResponse{}, nil
}

func (p *driftProvider) Apply(ctx context.Context, req *provider.ApplyRequest) (*provider.ApplyResponse, error) {
	return &provider.ApplyResponse{NewState: req.Desired}, nil
}

func (p *driftProvider) Read(ctx context.Context, req *provider.ReadRequest) (*provider.ReadResponse, error) {
	p.reads = append(p.reads, req.ID)
	if p.gone[req.ID] {
		return &provider.ReadResponse{Exists: false}, nil
	}
	if outputs, ok := p.drifted[req.ID]; ok {
		data, err := json.Marshal(outputs)
		if err != nil {
			return nil, err
		}
		return &provider.ReadResponse{Exists: true, NewState: data}, nil
	}
	return &provider.ReadResponse{Exists: true, NewState: req.Current}, nil
}

func (p *driftProvider) Delete(ctx context.Context, req *provider.DeleteRequest) (*provider.DeleteResponse, error) {
	return &provider.DeleteResponse{}, nil
}

func refreshState() *ir.State {
	return &ir.State{
		Version: 1,
		Serial:  3,
		Resources: []*ir.ResourceState{
			{
				Name: "bucket", Type: "fake:Resource", Provider: "fake", ID: "bucket-1",
				Outputs: map[string]any{"id": "bucket-1", "versioning": true},
			},
			{
				Name: "cdn", Type: "fake:Resource", Provider: "fake", ID: "cdn-1",
				Outputs: map[string]any{"id": "cdn-1", "status": "Deployed"},
			},
			{
				Name: "dnsRecord", Type: "fake:Resource", Provider: "fake", ID: "dns-1",
				Outputs: map[string]any{"id": "dns-1"},
			},
		},
	}
}

func TestRefreshState_NoDrift(t *testing.T) {
	registry := intprovider.NewRegistry()
	registry.Register("fake", &driftProvider{})
	e := NewEngine(registry)

	state := refreshState()
	updated, removed, err := e.RefreshState(context.Background(), &ir.Config{}, state)
	require.NoError(t, err)

	assert.Empty(t, updated)
	assert.Empty(t, removed)
	assert.Equal(t, 3, state.Serial, "serial must not advance without changes")
	assert.Len(t, state.Resources, 3)
}

func TestRefreshState_DriftedOutputs(t *testing.T) {
	registry := intprovider.NewRegistry()
	registry.Register("fake", &driftProvider{
		drifted: map[string]map[string]any{
			"cdn-1": {"id": "cdn-1", "status": "InProgress"},
		},
	})
	e := NewEngine(registry)

	state := refreshState()
	updated, removed, err := e.RefreshState(context.Background(), &ir.Config{}, state)
	require.NoError(t, err)

	assert.Equal(t, []string{"cdn"}, updated)
	assert.Empty(t, removed)
	assert.Equal(t, "InProgress", state.Resource("cdn").Outputs["status"])
	assert.Equal(t, 4, state.Serial)
}

func TestRefreshState_RemovesDeletedResource(t *testing.T) {
	fake := &driftProvider{gone: map[string]bool{"dns-1": true}}
	registry := intprovider.NewRegistry()
	registry.Register("fake", fake)
	e := NewEngine(registry)

	state := refreshState()
	updated, removed, err := e.RefreshState(context.Background(), &ir.Config{}, state)
	require.NoError(t, err)

	assert.Empty(t, updated)
	assert.Equal(t, []string{"dnsRecord"}, removed)
	assert.Nil(t, state.Resource("dnsRecord"))
	assert.Len(t, state.Resources, 2)
	assert.Equal(t, 4, state.Serial)
	assert.ElementsMatch(t, []string{"bucket-1", "cdn-1", "dns-1"}, fake.reads)
}
