// Package docker implements a local-preview provider. A
// docker:Container resource serves built site content from a local
// container so a stack can be inspected before any cloud apply.
package docker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	v1 "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/cumulus-iac/cumulus/pkg/provider"
)

type Provider struct {
	client *client.Client
}

func New() *Provider {
	return &Provider{}
}

func (p *Provider) ensureClient() error {
	if p.client != nil {
		return nil
	}
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return err
	}
	p.client = cli
	return nil
}

func (p *Provider) Configure(ctx context.Context, req *provider.ConfigureRequest) (*provider.ConfigureResponse, error) {
	if err := p.ensureClient(); err != nil {
		return &provider.ConfigureResponse{
			Diagnostics: []*provider.Diagnostic{
				{
					Severity: provider.SeverityError,
					Summary:  "Failed to create Docker client",
					Detail:   err.Error(),
				},
			},
		}, nil
	}
	return &provider.ConfigureResponse{}, nil
}

type ContainerConfig struct {
	Image    string            `json:"image"`
	Name     string            `json:"name"`
	Command  []string          `json:"command"`
	Ports    map[string]int    `json:"ports"` // host port -> container port
	Env      map[string]string `json:"env"`
	Volumes  []string          `json:"volumes"` // host:container bind specs
	Labels   map[string]string `json:"labels"`
	Platform string            `json:"platform"` // e.g. "linux/amd64"
}

type ContainerState struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Image string `json:"image"`
}

func (p *Provider) Apply(ctx context.Context, req *provider.ApplyRequest) (*provider.ApplyResponse, error) {
	if err := p.ensureClient(); err != nil {
		return nil, err
	}
	if req.Type != "docker:Container" {
		return nil, fmt.Errorf("unknown resource type: %s", req.Type)
	}

	var desired ContainerConfig
	if err := json.Unmarshal(req.Desired, &desired); err != nil {
		return nil, provider.Permanent(fmt.Errorf("failed to unmarshal desired config: %w", err))
	}
	if desired.Image == "" {
		return nil, provider.Permanent(fmt.Errorf("image is required"))
	}
	name := desired.Name
	if name == "" {
		name = req.Name
	}

	// Re-applying replaces the container; bind mounts make in-place
	// updates pointless for static content.
	if len(req.Prior) > 0 {
		var prior ContainerState
		if err := json.Unmarshal(req.Prior, &prior); err == nil && prior.ID != "" {
			p.removeContainer(ctx, prior.ID)
		}
	}

	reader, err := p.client.ImagePull(ctx, desired.Image, image.PullOptions{Platform: desired.Platform})
	if err != nil {
		return nil, fmt.Errorf("failed to pull image %s: %w", desired.Image, err)
	}
	io.Copy(os.Stdout, reader)
	reader.Close()

	portBindings := nat.PortMap{}
	for hostPort, containerPort := range desired.Ports {
		cp := nat.Port(fmt.Sprintf("%d/tcp", containerPort))
		portBindings[cp] = []nat.PortBinding{
			{HostIP: "0.0.0.0", HostPort: hostPort},
		}
	}

	var binds []string
	for _, v := range desired.Volumes {
		parts := strings.SplitN(v, ":", 2)
		if len(parts) == 2 && (strings.HasPrefix(parts[0], "./") || strings.HasPrefix(parts[0], "../")) {
			if abs, err := filepath.Abs(parts[0]); err == nil {
				parts[0] = abs
			}
		}
		binds = append(binds, strings.Join(parts, ":"))
	}

	var platform *v1.Platform
	if desired.Platform != "" {
		osArch := strings.SplitN(desired.Platform, "/", 2)
		platform = &v1.Platform{OS: osArch[0]}
		if len(osArch) == 2 {
			platform.Architecture = osArch[1]
		}
	}

	resp, err := p.client.ContainerCreate(ctx,
		&container.Config{
			Image:  desired.Image,
			Cmd:    desired.Command,
			Env:    mapToEnvList(desired.Env),
			Labels: desired.Labels,
		},
		&container.HostConfig{
			PortBindings: portBindings,
			Binds:        binds,
		},
		&network.NetworkingConfig{},
		platform,
		name,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create container: %w", err)
	}

	if err := p.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return nil, fmt.Errorf("failed to start container: %w", err)
	}

	newState := ContainerState{
		ID:    resp.ID,
		Name:  name,
		Image: desired.Image,
	}
	stateJSON, _ := json.Marshal(newState)

	return &provider.ApplyResponse{NewState: stateJSON}, nil
}

func (p *Provider) Read(ctx context.Context, req *provider.ReadRequest) (*provider.ReadResponse, error) {
	if err := p.ensureClient(); err != nil {
		return nil, err
	}

	inspect, err := p.client.ContainerInspect(ctx, req.ID)
	if err != nil {
		if client.IsErrNotFound(err) {
			return &provider.ReadResponse{Exists: false}, nil
		}
		return nil, fmt.Errorf("failed to inspect container: %w", err)
	}

	state := ContainerState{
		ID:    inspect.ID,
		Name:  strings.TrimPrefix(inspect.Name, "/"),
		Image: inspect.Config.Image,
	}
	stateJSON, _ := json.Marshal(state)

	return &provider.ReadResponse{Exists: true, NewState: stateJSON}, nil
}

func (p *Provider) Delete(ctx context.Context, req *provider.DeleteRequest) (*provider.DeleteResponse, error) {
	if err := p.ensureClient(); err != nil {
		return nil, err
	}
	if req.ID != "" {
		if err := p.removeContainer(ctx, req.ID); err != nil {
			return nil, err
		}
	}
	return &provider.DeleteResponse{}, nil
}

func (p *Provider) removeContainer(ctx context.Context, id string) error {
	timeout := 10 // seconds
	_ = p.client.ContainerStop(ctx, id, container.StopOptions{Timeout: &timeout})
	if err := p.client.ContainerRemove(ctx, id, container.RemoveOptions{Force: true}); err != nil {
		if !client.IsErrNotFound(err) {
			return fmt.Errorf("failed to remove container: %w", err)
		}
	}
	return nil
}

func mapToEnvList(m map[string]string) []string {
	var env []string
	for k, v := range m {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}
	return env
}
