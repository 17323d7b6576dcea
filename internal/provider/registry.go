package provider

import (
	"context"
	"fmt"
	"sync"

	"github.com/cumulus-iac/cumulus/pkg/provider"
	"github.com/cumulus-iac/cumulus/providers/aws"
	"github.com/cumulus-iac/cumulus/providers/docker"
	"github.com/cumulus-iac/cumulus/providers/null"
)

// Registry manages the lifecycle of providers. Providers are built-in
// and instantiated once per process.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]provider.Provider
}

func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]provider.Provider),
	}
}

// LoadProvider initializes a built-in provider by name and configures
// it with the template's provider settings. Loading an already-loaded
// provider is a no-op; settings are applied on first load only.
func (r *Registry) LoadProvider(ctx context.Context, name string, settings map[string]string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[name]; exists {
		return nil
	}

	var p provider.Provider
	switch name {
	case "null":
		p = null.New()
	case "aws":
		p = aws.New()
	case "docker":
		p = docker.New()
	default:
		return fmt.Errorf("unknown provider: %s", name)
	}

	resp, err := p.Configure(ctx, &provider.ConfigureRequest{Settings: settings})
	if err != nil {
		return fmt.Errorf("failed to configure provider %s: %w", name, err)
	}
	for _, diag := range resp.Diagnostics {
		if diag.Severity == provider.SeverityError {
			return fmt.Errorf("failed to configure provider %s: %s: %s", name, diag.Summary, diag.Detail)
		}
	}

	r.providers[name] = p
	return nil
}

// Register installs a provider instance under a name, replacing any
// existing registration. Used by tests to inject fakes.
func (r *Registry) Register(name string, p provider.Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[name] = p
}

// Get returns a registered provider.
func (r *Registry) Get(name string) (provider.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("provider not loaded: %s", name)
	}
	return p, nil
}
