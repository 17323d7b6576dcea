package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cumulus-iac/cumulus/internal/ir"
	"github.com/cumulus-iac/cumulus/internal/provider"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	return NewEngine(provider.NewRegistry())
}

func siteConfig() *ir.Config {
	return &ir.Config{
		Resources: []*ir.Resource{
			res("bucket", nil, map[string]any{"bucketName": "example.com"}),
			res("cdn", nil, map[string]any{"originDomain": "ref://bucket/regionalDomain"}),
			res("dnsRecord", []string{"cdn"}, map[string]any{"name": "example.com"}),
		},
	}
}

func TestCreatePlan_EmptyState(t *testing.T) {
	e := newTestEngine(t)
	state := &ir.State{Version: 1}

	plan, err := e.CreatePlan(context.Background(), siteConfig(), state)
	require.NoError(t, err)

	require.Len(t, plan.Changes, 3)
	addrs := []string{plan.Changes[0].Address, plan.Changes[1].Address, plan.Changes[2].Address}
	assert.Equal(t, []string{"bucket", "cdn", "dnsRecord"}, addrs)
	for _, c := range plan.Changes {
		assert.Equal(t, ir.ActionCreate, c.Action)
	}
	assert.Equal(t, 3, plan.Summary.Create)
	assert.False(t, plan.Empty())

	// Every desired property shows up as a CREATE diff entry.
	require.Contains(t, plan.Changes[0].Diff, "bucketName")
	assert.Equal(t, "example.com", plan.Changes[0].Diff["bucketName"].After)
}

func TestCreatePlan_NoChanges(t *testing.T) {
	e := newTestEngine(t)

	// State as it would look after a JSON round trip: numbers are float64.
	state := &ir.State{
		Version: 1,
		Resources: []*ir.ResourceState{
			{
				Name: "bucket", Type: "null:Resource", Provider: "null",
				Inputs: map[string]any{"bucketName": "example.com", "ttl": float64(300)},
			},
		},
	}
	cfg := &ir.Config{
		Resources: []*ir.Resource{
			res("bucket", nil, map[string]any{"bucketName": "example.com", "ttl": 300}),
		},
	}

	plan, err := e.CreatePlan(context.Background(), cfg, state)
	require.NoError(t, err)
	assert.True(t, plan.Empty())
	assert.Equal(t, 1, plan.Summary.NoOp)
}

func TestCreatePlan_Update(t *testing.T) {
	e := newTestEngine(t)

	state := &ir.State{
		Version: 1,
		Resources: []*ir.ResourceState{
			{
				Name: "bucket", Type: "null:Resource", Provider: "null",
				Inputs: map[string]any{"bucketName": "example.com", "indexDocument": "index.html"},
			},
		},
	}
	cfg := &ir.Config{
		Resources: []*ir.Resource{
			res("bucket", nil, map[string]any{"bucketName": "example.com", "indexDocument": "home.html"}),
		},
	}

	plan, err := e.CreatePlan(context.Background(), cfg, state)
	require.NoError(t, err)

	require.Len(t, plan.Changes, 1)
	change := plan.Changes[0]
	assert.Equal(t, ir.ActionUpdate, change.Action)
	require.Len(t, change.Diff, 1)
	require.Contains(t, change.Diff, "indexDocument")
	assert.Equal(t, "index.html", change.Diff["indexDocument"].Before)
	assert.Equal(t, "home.html", change.Diff["indexDocument"].After)
}

func TestCreatePlan_DeleteInDestructionOrder(t *testing.T) {
	e := newTestEngine(t)

	state := &ir.State{
		Version: 1,
		Resources: []*ir.ResourceState{
			{Name: "bucket", Type: "null:Resource", Provider: "null"},
			{Name: "cdn", Type: "null:Resource", Provider: "null", Dependencies: []string{"bucket"}},
		},
	}

	plan, err := e.CreatePlan(context.Background(), &ir.Config{}, state)
	require.NoError(t, err)

	require.Len(t, plan.Changes, 2)
	assert.Equal(t, "cdn", plan.Changes[0].Address)
	assert.Equal(t, "bucket", plan.Changes[1].Address)
	for _, c := range plan.Changes {
		assert.Equal(t, ir.ActionDelete, c.Action)
	}
	assert.Equal(t, 2, plan.Summary.Delete)
}

func TestCreatePlan_RemovedResourceOnly(t *testing.T) {
	e := newTestEngine(t)

	state := &ir.State{
		Version: 1,
		Resources: []*ir.ResourceState{
			{Name: "bucket", Type: "null:Resource", Provider: "null",
				Inputs: map[string]any{"bucketName": "example.com"}},
			{Name: "logBucket", Type: "null:Resource", Provider: "null"},
		},
	}
	cfg := &ir.Config{
		Resources: []*ir.Resource{
			res("bucket", nil, map[string]any{"bucketName": "example.com"}),
		},
	}

	plan, err := e.CreatePlan(context.Background(), cfg, state)
	require.NoError(t, err)

	require.Len(t, plan.Changes, 1)
	assert.Equal(t, "logBucket", plan.Changes[0].Address)
	assert.Equal(t, ir.ActionDelete, plan.Changes[0].Action)
}

func TestCreatePlan_IgnoreChanges(t *testing.T) {
	e := newTestEngine(t)

	state := &ir.State{
		Version: 1,
		Resources: []*ir.ResourceState{
			{
				Name: "bucket", Type: "null:Resource", Provider: "null",
				Inputs: map[string]any{"bucketName": "example.com", "tags": map[string]any{"env": "dev"}},
			},
		},
	}
	r := res("bucket", nil, map[string]any{"bucketName": "example.com", "tags": map[string]any{"env": "prod"}})
	r.Lifecycle = &ir.Lifecycle{IgnoreChanges: []string{"tags"}}

	plan, err := e.CreatePlan(context.Background(), &ir.Config{Resources: []*ir.Resource{r}}, state)
	require.NoError(t, err)
	assert.True(t, plan.Empty())
	assert.Equal(t, 1, plan.Summary.NoOp)

	// A change outside the ignored set still plans an update.
	r.Properties["bucketName"] = "other.com"
	plan, err = e.CreatePlan(context.Background(), &ir.Config{Resources: []*ir.Resource{r}}, state)
	require.NoError(t, err)
	require.Len(t, plan.Changes, 1)
	assert.Equal(t, ir.ActionUpdate, plan.Changes[0].Action)
}

func TestCreatePlan_PreventDestroy(t *testing.T) {
	e := newTestEngine(t)

	state := &ir.State{
		Version: 1,
		Resources: []*ir.ResourceState{
			{Name: "bucket", Type: "null:Resource", Provider: "null", Protected: true},
		},
	}

	_, err := e.CreatePlan(context.Background(), &ir.Config{}, state)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "preventDestroy")
	assert.Contains(t, err.Error(), "bucket")
}

func TestCreatePlan_UnknownProvider(t *testing.T) {
	e := newTestEngine(t)

	cfg := &ir.Config{
		Resources: []*ir.Resource{
			{Name: "vm", Type: "gcp:Compute.Instance", Provider: "gcp"},
		},
	}
	_, err := e.CreatePlan(context.Background(), cfg, &ir.State{Version: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown provider")
}

func TestCreatePlan_Cycle(t *testing.T) {
	e := newTestEngine(t)

	cfg := &ir.Config{
		Resources: []*ir.Resource{
			res("a", []string{"b"}, nil),
			res("b", []string{"a"}, nil),
		},
	}
	_, err := e.CreatePlan(context.Background(), cfg, &ir.State{Version: 1})
	var cycle *CycleError
	require.ErrorAs(t, err, &cycle)
}

func TestNormalizeValue(t *testing.T) {
	in := map[string]any{
		"count": 3,
		"nested": map[any]any{
			"ttl": int64(300),
		},
		"list": []any{1, "two", float32(3)},
	}

	out, ok := normalizeValue(in).(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(3), out["count"])
	nested, ok := out["nested"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(300), nested["ttl"])
	assert.Equal(t, []any{float64(1), "two", float64(3)}, out["list"])
}
