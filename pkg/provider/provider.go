// Package provider defines the control-plane adapter boundary. The core
// engine never embeds cloud-specific logic; it speaks to a per-provider
// adapter through this interface with JSON property bags.
package provider

import (
	"context"
	"encoding/json"
)

// Provider is implemented by every control-plane adapter.
type Provider interface {
	// Configure prepares the adapter (credentials, region). Non-fatal
	// problems are reported as diagnostics.
	Configure(ctx context.Context, req *ConfigureRequest) (*ConfigureResponse, error)

	// Apply creates or updates a resource and returns its new state,
	// including the physical identifier under the "id" key.
	Apply(ctx context.Context, req *ApplyRequest) (*ApplyResponse, error)

	// Read fetches the current remote state of a resource.
	Read(ctx context.Context, req *ReadRequest) (*ReadResponse, error)

	// Delete removes a resource by physical identifier.
	Delete(ctx context.Context, req *DeleteRequest) (*DeleteResponse, error)
}

type ConfigureRequest struct {
	Settings map[string]string
}

type ConfigureResponse struct {
	Diagnostics []*Diagnostic
}

type ApplyRequest struct {
	Type    string
	Name    string
	Desired json.RawMessage
	Prior   json.RawMessage
}

type ApplyResponse struct {
	NewState json.RawMessage
}

type ReadRequest struct {
	Type    string
	ID      string
	Current json.RawMessage
}

type ReadResponse struct {
	Exists   bool
	NewState json.RawMessage
}

type DeleteRequest struct {
	Type    string
	ID      string
	Current json.RawMessage
}

type DeleteResponse struct{}

type Severity int

const (
	SeverityWarning Severity = iota
	SeverityError
)

type Diagnostic struct {
	Severity Severity
	Summary  string
	Detail   string
}
