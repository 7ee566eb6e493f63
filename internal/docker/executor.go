// Package docker wraps the docker CLI for image build, run and push.
package docker

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"
)

// Executor handles docker command execution.
type Executor struct {
	workDir    string
	dockerPath string
	verbose    bool
}

// NewExecutor creates a new docker executor rooted at workDir.
func NewExecutor(workDir string, verbose bool) (*Executor, error) {
	dockerPath, err := exec.LookPath("docker")
	if err != nil {
		return nil, fmt.Errorf("docker not found: %w", err)
	}

	return &Executor{
		workDir:    workDir,
		dockerPath: dockerPath,
		verbose:    verbose,
	}, nil
}

// BuildOptions describe one image build.
type BuildOptions struct {
	// Dockerfile is the Dockerfile path, relative to the build context.
	Dockerfile string

	// Tag is the image reference to produce.
	Tag string

	// BuildArgs are --build-arg values.
	BuildArgs map[string]string

	// Labels are attached to the image.
	Labels map[string]string

	// NoCache disables the layer cache.
	NoCache bool

	// Pull always attempts to pull a newer base image.
	Pull bool
}

// BuildArgsList assembles the argument list for a build. Map-backed options
// are emitted in sorted order so the command line is deterministic.
func BuildArgsList(opts BuildOptions) []string {
	args := []string{"build"}

	if opts.Dockerfile != "" {
		args = append(args, "-f", opts.Dockerfile)
	}
	if opts.Tag != "" {
		args = append(args, "-t", opts.Tag)
	}
	for _, k := range sortedKeys(opts.BuildArgs) {
		args = append(args, "--build-arg", fmt.Sprintf("%s=%s", k, opts.BuildArgs[k]))
	}
	for _, k := range sortedKeys(opts.Labels) {
		args = append(args, "--label", fmt.Sprintf("%s=%s", k, opts.Labels[k]))
	}
	if opts.NoCache {
		args = append(args, "--no-cache")
	}
	if opts.Pull {
		args = append(args, "--pull")
	}

	args = append(args, ".")
	return args
}

// Build executes a docker build. Any non-zero exit aborts: there is no
// partial-success state beyond layers docker already cached.
func (e *Executor) Build(ctx context.Context, opts BuildOptions) error {
	return e.execute(ctx, BuildArgsList(opts))
}

// Tag applies an additional tag to an image.
func (e *Executor) Tag(ctx context.Context, src, dst string) error {
	return e.execute(ctx, []string{"tag", src, dst})
}

// Push pushes an image reference to its registry.
func (e *Executor) Push(ctx context.Context, ref string) error {
	return e.execute(ctx, []string{"push", ref})
}

// RunOptions describe a local container run.
type RunOptions struct {
	// Tag is the image reference to run.
	Tag string

	// GPUs is the --gpus device request, e.g. "all".
	GPUs string

	// Env is additional runtime environment.
	Env map[string]string

	// Name names the container.
	Name string
}

// RunArgsList assembles the argument list for a run.
func RunArgsList(opts RunOptions) []string {
	args := []string{"run", "--rm"}

	if opts.Name != "" {
		args = append(args, "--name", opts.Name)
	}
	if opts.GPUs != "" {
		args = append(args, "--gpus", opts.GPUs)
	}
	for _, k := range sortedKeys(opts.Env) {
		args = append(args, "-e", fmt.Sprintf("%s=%s", k, opts.Env[k]))
	}

	args = append(args, opts.Tag)
	return args
}

// Run starts a container from the image and waits for it to exit. The exit
// code propagates through the returned error; it is the only lifecycle signal
// the orchestration layer observes.
func (e *Executor) Run(ctx context.Context, opts RunOptions) error {
	return e.execute(ctx, RunArgsList(opts))
}

// ImageExists reports whether the image reference resolves locally.
func (e *Executor) ImageExists(ctx context.Context, ref string) bool {
	cmd := exec.CommandContext(ctx, e.dockerPath, "image", "inspect", ref)
	cmd.Dir = e.workDir
	return cmd.Run() == nil
}

// execute runs a docker command with output piped through.
func (e *Executor) execute(ctx context.Context, args []string) error {
	cmd := exec.CommandContext(ctx, e.dockerPath, args...)
	cmd.Dir = e.workDir
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if e.verbose {
		fmt.Printf("  → docker %s\n", strings.Join(args, " "))
	}

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("docker %s failed: %w", args[0], err)
	}

	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
