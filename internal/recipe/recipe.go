// Package recipe provides loading, saving and validation of worker build recipes.
package recipe

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/ovenworks/bakery-cli/pkg/xos"
)

const FileName = "bakery.yaml"

// DefaultTimezone is baked into the build environment so time-dependent
// installers behave the same on every machine.
const DefaultTimezone = "Etc/UTC"

// Recipe describes how a worker image is assembled: base image, build
// environment, python dependencies, baked models and the handler entry point.
type Recipe struct {
	Version string      `yaml:"version"`
	Worker  WorkerMeta  `yaml:"worker"`
	Image   ImageSpec   `yaml:"image"`
	Python  PythonSpec  `yaml:"python"`
	Models  []Model     `yaml:"models,omitempty"`

	// Materialize tunes how model artifacts are baked into the image.
	Materialize *MaterializeSpec `yaml:"materialize,omitempty"`

	Handler HandlerSpec `yaml:"handler"`
}

// MaterializeSpec selects the model materialization mode. With a script set,
// the image runs it at build time to fetch artifacts; otherwise bakery
// pre-pulls artifacts into the local cache and copies them in.
type MaterializeSpec struct {
	Script string `yaml:"script,omitempty"`
}

// WorkerMeta contains worker-level metadata.
type WorkerMeta struct {
	Name          string `yaml:"name"`
	BakeryVersion string `yaml:"bakeryVersion"`
}

// ImageSpec describes the image to assemble.
type ImageSpec struct {
	// Repository is the image name without tag, e.g. "myorg/flux-worker".
	Repository string `yaml:"repository"`

	// Base pins an explicit base image tag. Mutually exclusive with Runtime.
	Base string `yaml:"base,omitempty"`

	// Runtime selects a base image by accelerator/interpreter/OS triple.
	Runtime *RuntimeSpec `yaml:"runtime,omitempty"`

	// Timezone fixes TZ during the build. Defaults to DefaultTimezone.
	Timezone string `yaml:"timezone,omitempty"`

	// Env contains additional build-time environment variables. The
	// non-interactive variables are always injected and cannot be unset.
	Env map[string]string `yaml:"env,omitempty"`

	// SystemPackages are OS packages installed before python dependencies.
	SystemPackages []string `yaml:"systemPackages,omitempty"`
}

// RuntimeSpec pins the accelerator runtime, interpreter and OS together so the
// triple resolves to a single reproducible base tag.
type RuntimeSpec struct {
	CUDA    string `yaml:"cuda"`
	Torch   string `yaml:"torch,omitempty"`
	Python  string `yaml:"python"`
	OS      string `yaml:"os"`
	Flavor  string `yaml:"flavor,omitempty"` // runtime or devel
}

// PythonSpec describes the python dependency install step.
type PythonSpec struct {
	// Requirements is the dependency manifest path, relative to the recipe.
	Requirements string `yaml:"requirements"`
}

// Model describes one pretrained artifact set baked into the image.
type Model struct {
	Name      string      `yaml:"name"`
	Source    string      `yaml:"source"`
	Revision  string      `yaml:"revision,omitempty"`
	TargetDir string      `yaml:"targetDir"`
	Files     []ModelFile `yaml:"files"`
}

// ModelFile is a single artifact file within a model.
type ModelFile struct {
	Path   string `yaml:"path"`
	SHA256 string `yaml:"sha256,omitempty"`
}

// HandlerSpec describes the request-serving entry point.
type HandlerSpec struct {
	// Path is the handler file, relative to the recipe.
	Path string `yaml:"path"`

	// Interpreter defaults to "python".
	Interpreter string `yaml:"interpreter,omitempty"`
}

// New creates a recipe with defaults for the given worker name.
func New(name string) *Recipe {
	return &Recipe{
		Version: "1",
		Worker: WorkerMeta{
			Name:          name,
			BakeryVersion: "1.0.0",
		},
		Image: ImageSpec{
			Repository: name,
			Timezone:   DefaultTimezone,
		},
		Python: PythonSpec{
			Requirements: "requirements.txt",
		},
		Handler: HandlerSpec{
			Path:        "handler.py",
			Interpreter: "python",
		},
	}
}

// Load loads the recipe from the given project directory.
func Load(dir string) (*Recipe, error) {
	return LoadFrom(filepath.Join(dir, FileName))
}

// LoadFrom loads the recipe from the specified file.
func LoadFrom(path string) (*Recipe, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read recipe file: %w", err)
	}

	var r Recipe
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to parse recipe file: %w", err)
	}

	return &r, nil
}

// Save writes the recipe to the default location in dir.
func (r *Recipe) Save(dir string) error {
	return r.SaveTo(filepath.Join(dir, FileName))
}

// SaveTo writes the recipe to the specified file atomically.
func (r *Recipe) SaveTo(path string) error {
	data, err := yaml.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal recipe: %w", err)
	}

	if err := xos.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write recipe file: %w", err)
	}

	return nil
}

// Timezone returns the configured build timezone or the default.
func (r *Recipe) Timezone() string {
	if r.Image.Timezone != "" {
		return r.Image.Timezone
	}
	return DefaultTimezone
}

// Interpreter returns the configured handler interpreter or the default.
func (r *Recipe) Interpreter() string {
	if r.Handler.Interpreter != "" {
		return r.Handler.Interpreter
	}
	return "python"
}

// StartCommand returns the container startup command. The interpreter always
// runs unbuffered so log output reaches the collector as it is written.
func (r *Recipe) StartCommand() []string {
	return []string{r.Interpreter(), "-u", filepath.Base(r.Handler.Path)}
}

// BaseImage resolves the base image reference for the recipe. An explicit
// Base tag wins over a Runtime triple.
func (r *Recipe) BaseImage() (string, error) {
	if r.Image.Base != "" {
		return r.Image.Base, nil
	}
	if r.Image.Runtime == nil {
		return "", fmt.Errorf("recipe pins neither image.base nor image.runtime")
	}
	return ResolveBase(r.Image.Runtime)
}

// ModelScript returns the configured download script, or "" for cache mode.
func (r *Recipe) ModelScript() string {
	if r.Materialize == nil {
		return ""
	}
	return r.Materialize.Script
}

// GetModel retrieves a model by name.
func (r *Recipe) GetModel(name string) *Model {
	for i := range r.Models {
		if r.Models[i].Name == name {
			return &r.Models[i]
		}
	}
	return nil
}
