// Package docker adapts the local Docker daemon as the add-on install
// substrate: each managed add-on runs as one labeled container.
package docker

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"addonsync"

	"github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

const (
	// componentLabel marks containers managed by this orchestrator and
	// carries the add-on name.
	componentLabel = "addonsync.component"
	// versionLabel carries the deployed catalog version.
	versionLabel = "addonsync.version"

	containerPrefix = "addon-"
)

// Host manages add-on containers on one Docker daemon. It satisfies both
// the installed-source and the deployer side of the reconcile loop.
type Host struct {
	docker client.APIClient
}

// New builds a Host over an existing Docker client.
func New(docker client.APIClient) *Host {
	return &Host{docker: docker}
}

// Connect dials the Docker daemon at host (empty means the environment
// default) and verifies it responds.
func Connect(ctx context.Context, host string) (*Host, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if host != "" {
		opts = append(opts, client.WithHost(host))
	}
	docker, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	if _, err := docker.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping docker daemon: %w", err)
	}
	return &Host{docker: docker}, nil
}

func (h *Host) Close() error {
	if closer, ok := h.docker.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// Snapshot lists all managed containers and returns the installed set.
// A stopped container still counts as installed, just not enabled.
func (h *Host) Snapshot(ctx context.Context) (addonsync.Installed, error) {
	list, err := h.docker.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("label", componentLabel)),
	})
	if err != nil {
		return nil, fmt.Errorf("list add-on containers: %w", err)
	}

	installed := make(addonsync.Installed, len(list))
	for _, c := range list {
		name := c.Labels[componentLabel]
		if name == "" {
			continue
		}
		installed[name] = addonsync.InstalledComponent{
			Version: addonsync.ParseVersion(c.Labels[versionLabel]),
			Enabled: c.State == container.StateRunning,
		}
	}
	return installed, nil
}

// Lookup returns one installed add-on by name.
func (h *Host) Lookup(ctx context.Context, name string) (addonsync.InstalledComponent, bool) {
	snap, err := h.Snapshot(ctx)
	if err != nil {
		slog.Debug("Could not inspect installed add-ons.", "err", err)
		return addonsync.InstalledComponent{}, false
	}
	c, ok := snap[name]
	return c, ok
}

// InstalledAndEnabled reports whether the add-on's container exists and
// is running.
func (h *Host) InstalledAndEnabled(ctx context.Context, name string) bool {
	c, ok := h.Lookup(ctx, name)
	return ok && c.Enabled
}

// Deploy installs or replaces the add-on's container: pull the image,
// tear down any previous container, create and start the new one. The
// call blocks until the container is started.
func (h *Host) Deploy(ctx context.Context, comp addonsync.Component) error {
	name := containerPrefix + comp.Name

	exposed, bindings, err := portConfig(comp.Ports)
	if err != nil {
		return fmt.Errorf("deploy %s: %w", comp.Name, err)
	}

	if err := h.stopAndRemove(ctx, name); err != nil {
		return fmt.Errorf("deploy %s: %w", comp.Name, err)
	}

	containerCfg := &container.Config{
		Image:        comp.Image,
		ExposedPorts: exposed,
		Labels: map[string]string{
			componentLabel: comp.Name,
			versionLabel:   comp.Version,
		},
	}
	hostCfg := &container.HostConfig{
		PortBindings:  bindings,
		RestartPolicy: container.RestartPolicy{Name: container.RestartPolicyUnlessStopped},
	}
	if err := h.createAndStart(ctx, name, comp.Image, containerCfg, hostCfg); err != nil {
		return fmt.Errorf("deploy %s: %w", comp.Name, err)
	}
	return nil
}

// Ping verifies the daemon connection. Used by diagnostics.
func (h *Host) Ping(ctx context.Context) error {
	if _, err := h.docker.Ping(ctx); err != nil {
		return fmt.Errorf("ping docker daemon: %w", err)
	}
	return nil
}

// createAndStart creates a container and starts it. If the image is not
// found locally, it pulls the image and retries the create.
func (h *Host) createAndStart(ctx context.Context, name, img string, containerCfg *container.Config, hostCfg *container.HostConfig) error {
	_, err := h.docker.ContainerCreate(ctx, containerCfg, hostCfg, nil, (*ocispec.Platform)(nil), name)
	if err != nil {
		if !errdefs.IsNotFound(err) {
			return fmt.Errorf("create container: %w", err)
		}
		if err := h.pullImage(ctx, img); err != nil {
			return err
		}
		if _, err = h.docker.ContainerCreate(ctx, containerCfg, hostCfg, nil, nil, name); err != nil {
			return fmt.Errorf("create container after pull: %w", err)
		}
	}

	if err := h.docker.ContainerStart(ctx, name, container.StartOptions{}); err != nil {
		return fmt.Errorf("start container: %w", err)
	}
	return nil
}

// pullImage pulls an image and drains the response to completion.
func (h *Host) pullImage(ctx context.Context, img string) error {
	slog.Info("Pulling image.", "image", img)
	resp, err := h.docker.ImagePull(ctx, img, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("pull image %s: %w", img, err)
	}
	defer func() { _ = resp.Close() }()
	if _, err := io.Copy(io.Discard, resp); err != nil {
		return fmt.Errorf("pull image %s: read response: %w", img, err)
	}
	return nil
}

// stopAndRemove stops and removes a container. Both operations are
// idempotent; NotFound errors are silently ignored.
func (h *Host) stopAndRemove(ctx context.Context, name string) error {
	if err := h.docker.ContainerStop(ctx, name, container.StopOptions{}); err != nil {
		if !errdefs.IsNotFound(err) {
			return fmt.Errorf("stop container %s: %w", name, err)
		}
	}
	if err := h.docker.ContainerRemove(ctx, name, container.RemoveOptions{Force: true}); err != nil {
		if !errdefs.IsNotFound(err) {
			return fmt.Errorf("remove container %s: %w", name, err)
		}
	}
	return nil
}

// portConfig turns catalog port specs ("8080:80/tcp", "9000") into the
// exposed-port set and host bindings.
func portConfig(specs []string) (nat.PortSet, nat.PortMap, error) {
	if len(specs) == 0 {
		return nil, nil, nil
	}
	exposed, bindings, err := nat.ParsePortSpecs(specs)
	if err != nil {
		return nil, nil, fmt.Errorf("parse port specs %s: %w", strings.Join(specs, ","), err)
	}
	return exposed, bindings, nil
}
