package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cumulus-iac/cumulus/internal/ir"
)

func res(name string, deps []string, props map[string]any) *ir.Resource {
	return &ir.Resource{
		Name:       name,
		Type:       "null:Resource",
		Provider:   "null",
		DependsOn:  deps,
		Properties: props,
	}
}

func TestBuildDAG_CreationOrder(t *testing.T) {
	// dnsRecord -> cdn -> bucket, via implicit refs and explicit dependsOn.
	resources := []*ir.Resource{
		res("dnsRecord", []string{"cdn"}, nil),
		res("cdn", nil, map[string]any{"origin": "ref://bucket/domain"}),
		res("bucket", nil, nil),
	}

	dag, err := BuildDAG(resources)
	require.NoError(t, err)

	assert.Equal(t, []string{"bucket", "cdn", "dnsRecord"}, dag.CreationOrder())
	assert.Equal(t, []string{"dnsRecord", "cdn", "bucket"}, dag.DestructionOrder())
	assert.Equal(t, []string{"bucket"}, dag.Dependencies("cdn"))
	assert.Equal(t, []string{"dnsRecord"}, dag.Dependents("cdn"))
}

func TestBuildDAG_DeterministicTieBreak(t *testing.T) {
	// Independent resources sort by declaration order, every time.
	resources := []*ir.Resource{
		res("zebra", nil, nil),
		res("alpha", nil, nil),
		res("mango", nil, nil),
	}

	for i := 0; i < 20; i++ {
		dag, err := BuildDAG(resources)
		require.NoError(t, err)
		assert.Equal(t, []string{"zebra", "alpha", "mango"}, dag.CreationOrder())
	}
}

func TestBuildDAG_CycleError(t *testing.T) {
	resources := []*ir.Resource{
		res("a", []string{"b"}, nil),
		res("b", []string{"c"}, nil),
		res("c", []string{"a"}, nil),
		res("standalone", nil, nil),
	}

	_, err := BuildDAG(resources)
	require.Error(t, err)

	var cycle *CycleError
	require.ErrorAs(t, err, &cycle)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, cycle.Members)
	assert.NotContains(t, cycle.Members, "standalone")
}

func TestBuildDAG_SelfAndDuplicateDepsIgnored(t *testing.T) {
	resources := []*ir.Resource{
		res("a", nil, nil),
		res("b", []string{"a", "a", "b"}, map[string]any{"x": "ref://a/id"}),
	}

	dag, err := BuildDAG(resources)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, dag.Dependencies("b"))
}

func TestBuildDAGFromState(t *testing.T) {
	states := []*ir.ResourceState{
		{Name: "bucket"},
		{Name: "cdn", Dependencies: []string{"bucket"}},
		{Name: "dnsRecord", Dependencies: []string{"cdn"}},
	}

	dag, err := BuildDAGFromState(states)
	require.NoError(t, err)
	assert.Equal(t, []string{"dnsRecord", "cdn", "bucket"}, dag.DestructionOrder())
}

func TestResourceDeps(t *testing.T) {
	r := res("web", []string{"net"}, map[string]any{
		"origin": "ref://bucket/domain",
		"nested": map[string]any{"zone": "ref://zone/id"},
		"plain":  "no-ref-here",
	})

	deps := ResourceDeps(r)
	assert.ElementsMatch(t, []string{"net", "bucket", "zone"}, deps)
}
