package null

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cumulus-iac/cumulus/pkg/provider"
)

func TestProvider_Apply(t *testing.T) {
	p := New()
	ctx := context.Background()

	desiredJSON, _ := json.Marshal(map[string]any{"triggers": map[string]string{"foo": "bar"}})

	resp, err := p.Apply(ctx, &provider.ApplyRequest{
		Name:    "test",
		Desired: desiredJSON,
	})
	require.NoError(t, err)

	var newState map[string]any
	require.NoError(t, json.Unmarshal(resp.NewState, &newState))
	assert.Equal(t, "null-test", newState["id"])
	triggers, ok := newState["triggers"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "bar", triggers["foo"])
}

func TestProvider_Apply_Fail(t *testing.T) {
	p := New()
	ctx := context.Background()

	desiredJSON, _ := json.Marshal(map[string]any{"fail": "boom"})
	_, err := p.Apply(ctx, &provider.ApplyRequest{Name: "test", Desired: desiredJSON})
	require.Error(t, err)

	var permanent *provider.PermanentError
	assert.True(t, errors.As(err, &permanent))
}

func TestProvider_Apply_FailTransient(t *testing.T) {
	p := New()
	ctx := context.Background()

	desiredJSON, _ := json.Marshal(map[string]any{"failTransient": "throttled"})
	_, err := p.Apply(ctx, &provider.ApplyRequest{Name: "test", Desired: desiredJSON})
	require.Error(t, err)

	var transient *provider.TransientError
	assert.True(t, errors.As(err, &transient))
}

func TestProvider_Delete(t *testing.T) {
	p := New()
	ctx := context.Background()

	resp, err := p.Delete(ctx, &provider.DeleteRequest{Type: "null:Resource", ID: "null-test"})
	require.NoError(t, err)
	assert.NotNil(t, resp)
}
