package docker

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Layer is one entry of an image's layer history, newest first.
type Layer struct {
	CreatedBy string
	Size      string
}

// Instruction returns the Dockerfile instruction that created the layer,
// with the legacy builder's shell prefixes stripped.
func (l Layer) Instruction() string {
	s := strings.TrimPrefix(l.CreatedBy, "/bin/sh -c #(nop) ")
	s = strings.TrimPrefix(s, "/bin/sh -c ")
	return strings.TrimSpace(s)
}

// History returns the image's layer history. Useful after a build to see
// which stages produced fresh layers and which were served from cache.
func (e *Executor) History(ctx context.Context, ref string) ([]Layer, error) {
	cmd := exec.CommandContext(ctx, e.dockerPath,
		"history", "--no-trunc", "--format", "{{.CreatedBy}}\t{{.Size}}", ref)
	cmd.Dir = e.workDir

	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("docker history failed: %w", err)
	}

	return ParseHistory(string(output)), nil
}

// ParseHistory parses `docker history` tab-separated output.
func ParseHistory(output string) []Layer {
	var layers []Layer
	for _, line := range strings.Split(strings.TrimSpace(output), "\n") {
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, "\t", 2)
		layer := Layer{CreatedBy: parts[0]}
		if len(parts) == 2 {
			layer.Size = parts[1]
		}
		layers = append(layers, layer)
	}
	return layers
}

// ImageID returns the image's content-addressable identifier.
func (e *Executor) ImageID(ctx context.Context, ref string) (string, error) {
	cmd := exec.CommandContext(ctx, e.dockerPath,
		"image", "inspect", "--format", "{{.Id}}", ref)
	cmd.Dir = e.workDir

	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("docker inspect failed: %w", err)
	}

	return strings.TrimSpace(string(output)), nil
}

// Label reads one image label.
func (e *Executor) Label(ctx context.Context, ref, key string) (string, error) {
	cmd := exec.CommandContext(ctx, e.dockerPath,
		"image", "inspect", "--format", fmt.Sprintf("{{index .Config.Labels %q}}", key), ref)
	cmd.Dir = e.workDir

	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("docker inspect failed: %w", err)
	}

	return strings.TrimSpace(string(output)), nil
}
