package state

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/cumulus-iac/cumulus/internal/ir"
)

// Manager handles reading and writing of local stack state.
type Manager struct {
	path string
}

func NewManager(path string) *Manager {
	return &Manager{path: path}
}

// Path returns the state file location.
func (m *Manager) Path() string {
	return m.path
}

// Read loads the state from the configured path. A missing file yields
// an empty state with a fresh lineage. Encrypted files are transparently
// decrypted.
func (m *Manager) Read(ctx context.Context) (*ir.State, error) {
	if _, err := os.Stat(m.path); os.IsNotExist(err) {
		return NewState(), nil
	}

	raw, err := os.ReadFile(m.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read state file %s: %w", m.path, err)
	}

	return ParseState(raw)
}

// Write saves the state to the configured path. If
// CUMULUS_STATE_ENCRYPTION_KEY is set, the file is transparently
// encrypted.
func (m *Manager) Write(ctx context.Context, state *ir.State) error {
	if err := os.MkdirAll(filepath.Dir(m.path), 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	content, err := SerializeState(state)
	if err != nil {
		return err
	}

	encrypted, err := EncryptState(content)
	if err != nil {
		return fmt.Errorf("failed to encrypt state: %w", err)
	}

	if err := os.WriteFile(m.path, encrypted, 0644); err != nil {
		return fmt.Errorf("failed to write state file %s: %w", m.path, err)
	}

	return nil
}

// NewState returns an empty state with a fresh lineage.
func NewState() *ir.State {
	return &ir.State{
		Version: 1,
		Serial:  0,
		Lineage: uuid.NewString(),
	}
}

// ParseState decodes state content, decrypting it first if needed.
func ParseState(raw []byte) (*ir.State, error) {
	if IsEncrypted(raw) {
		decrypted, err := DecryptState(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt state: %w", err)
		}
		raw = decrypted
	}

	var state ir.State
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("failed to parse state: %w", err)
	}
	if state.Version == 0 {
		state.Version = 1
	}
	if state.Lineage == "" {
		state.Lineage = uuid.NewString()
	}
	return &state, nil
}

// SerializeState converts a State to its persisted JSON form.
func SerializeState(state *ir.State) ([]byte, error) {
	content, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to serialize state: %w", err)
	}
	return append(content, '\n'), nil
}
