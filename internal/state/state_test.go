package state

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cumulus-iac/cumulus/internal/ir"
)

func TestManager_ReadWrite(t *testing.T) {
	tmpDir := t.TempDir()
	statePath := filepath.Join(tmpDir, "state.json")

	mgr := NewManager(statePath)
	ctx := context.Background()

	// Read non-existent state
	s, err := mgr.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Version)
	assert.Equal(t, 0, s.Serial)
	assert.NotEmpty(t, s.Lineage)

	s.Serial = 3
	s.Resources = []*ir.ResourceState{
		{
			Name:     "site",
			Type:     "aws:S3.Bucket",
			Provider: "aws",
			ID:       "my-site-bucket",
			Inputs:   map[string]any{"bucketName": "my-site-bucket"},
			Outputs:  map[string]any{"id": "my-site-bucket", "arn": "arn:aws:s3:::my-site-bucket"},
		},
	}

	err = mgr.Write(ctx, s)
	require.NoError(t, err)

	_, err = os.Stat(statePath)
	require.NoError(t, err)

	loaded, err := mgr.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, s.Lineage, loaded.Lineage)
	assert.Equal(t, 3, loaded.Serial)
	require.Len(t, loaded.Resources, 1)
	assert.Equal(t, "site", loaded.Resources[0].Name)
	assert.Equal(t, "my-site-bucket", loaded.Resources[0].ID)
	assert.Equal(t, "my-site-bucket", loaded.Resources[0].Inputs["bucketName"])
}

func TestManager_ReadWrite_Encrypted(t *testing.T) {
	t.Setenv(EncryptionKeyEnvVar, "unit-test-key-for-state-file!!!!")

	statePath := filepath.Join(t.TempDir(), "state.json")
	mgr := NewManager(statePath)
	ctx := context.Background()

	s := NewState()
	s.Resources = []*ir.ResourceState{{Name: "record", Type: "aws:Route53.RecordSet", Provider: "aws"}}
	require.NoError(t, mgr.Write(ctx, s))

	raw, err := os.ReadFile(statePath)
	require.NoError(t, err)
	assert.True(t, IsEncrypted(raw))
	assert.NotContains(t, string(raw), "Route53")

	loaded, err := mgr.Read(ctx)
	require.NoError(t, err)
	require.Len(t, loaded.Resources, 1)
	assert.Equal(t, "record", loaded.Resources[0].Name)
}

func TestParseState_DefaultsLineage(t *testing.T) {
	s, err := ParseState([]byte(`{"serial": 5, "resources": []}`))
	require.NoError(t, err)
	assert.Equal(t, 1, s.Version)
	assert.Equal(t, 5, s.Serial)
	assert.NotEmpty(t, s.Lineage)
}

func TestParseState_Invalid(t *testing.T) {
	_, err := ParseState([]byte("not json"))
	assert.Error(t, err)
}

func TestManager_Lock(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), "state.json")
	mgr := NewManager(statePath)

	require.NoError(t, mgr.Lock())

	other := NewManager(statePath)
	err := other.Lock()
	require.Error(t, err)
	var conflict *ConflictError
	assert.ErrorAs(t, err, &conflict)

	require.NoError(t, mgr.Unlock())
	require.NoError(t, other.Lock())
	require.NoError(t, other.Unlock())
}
