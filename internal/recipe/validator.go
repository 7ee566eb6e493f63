package recipe

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	// namePattern matches valid kebab-case names.
	namePattern = regexp.MustCompile(`^[a-z][a-z0-9]*(-[a-z0-9]+)*$`)

	// envKeyPattern matches valid environment variable names.
	envKeyPattern = regexp.MustCompile(`^[A-Z_][A-Z0-9_]*$`)
)

// Env vars the generator always injects before any install step. User env
// cannot override them.
var reservedEnv = map[string]bool{
	"DEBIAN_FRONTEND": true,
	"TZ":              true,
}

// ValidateName checks that a name is valid kebab-case.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("name cannot be empty")
	}
	if !namePattern.MatchString(name) {
		return fmt.Errorf("name %q must be kebab-case (lowercase letters, digits, hyphens)", name)
	}
	return nil
}

// Validator validates recipes.
type Validator struct{}

// NewValidator creates a new validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate validates the entire recipe.
func (v *Validator) Validate(r *Recipe) error {
	if r.Version != "1" {
		return fmt.Errorf("unsupported recipe version %q", r.Version)
	}

	if err := ValidateName(r.Worker.Name); err != nil {
		return fmt.Errorf("invalid worker name: %w", err)
	}

	if err := v.validateImage(&r.Image); err != nil {
		return fmt.Errorf("image validation failed: %w", err)
	}

	if r.Python.Requirements == "" {
		return fmt.Errorf("python.requirements is required")
	}
	if filepath.IsAbs(r.Python.Requirements) {
		return fmt.Errorf("python.requirements must be relative to the recipe")
	}

	if err := v.validateModels(r.Models); err != nil {
		return fmt.Errorf("models validation failed: %w", err)
	}

	if r.Materialize != nil && r.Materialize.Script != "" {
		if filepath.IsAbs(r.Materialize.Script) || strings.Contains(r.Materialize.Script, "..") {
			return fmt.Errorf("materialize.script %q must be relative without traversal", r.Materialize.Script)
		}
	}

	if err := v.validateHandler(&r.Handler); err != nil {
		return fmt.Errorf("handler validation failed: %w", err)
	}

	return nil
}

func (v *Validator) validateImage(img *ImageSpec) error {
	if img.Repository == "" {
		return fmt.Errorf("repository is required")
	}

	if img.Base == "" && img.Runtime == nil {
		return fmt.Errorf("either base or runtime must be set")
	}
	if img.Base != "" && img.Runtime != nil {
		return fmt.Errorf("base and runtime are mutually exclusive")
	}

	if img.Runtime != nil {
		if _, err := ResolveBase(img.Runtime); err != nil {
			return err
		}
	}

	for key := range img.Env {
		if !envKeyPattern.MatchString(key) {
			return fmt.Errorf("invalid env var name %q", key)
		}
		if reservedEnv[key] {
			return fmt.Errorf("env var %q is managed by the build and cannot be overridden", key)
		}
	}

	return nil
}

func (v *Validator) validateModels(models []Model) error {
	seen := make(map[string]bool, len(models))
	for _, m := range models {
		if err := ValidateName(m.Name); err != nil {
			return fmt.Errorf("model %q: %w", m.Name, err)
		}
		if seen[m.Name] {
			return fmt.Errorf("duplicate model name %q", m.Name)
		}
		seen[m.Name] = true

		if m.Source == "" {
			return fmt.Errorf("model %q: source is required", m.Name)
		}
		if !filepath.IsAbs(m.TargetDir) {
			return fmt.Errorf("model %q: targetDir must be an absolute path inside the image", m.Name)
		}
		if len(m.Files) == 0 {
			return fmt.Errorf("model %q: at least one file is required", m.Name)
		}
		for _, f := range m.Files {
			if f.Path == "" {
				return fmt.Errorf("model %q: file path cannot be empty", m.Name)
			}
			if filepath.IsAbs(f.Path) || strings.Contains(f.Path, "..") {
				return fmt.Errorf("model %q: file path %q must be relative without traversal", m.Name, f.Path)
			}
		}
	}
	return nil
}

func (v *Validator) validateHandler(h *HandlerSpec) error {
	if h.Path == "" {
		return fmt.Errorf("path is required")
	}
	if filepath.IsAbs(h.Path) || strings.Contains(h.Path, "..") {
		return fmt.Errorf("path %q must be relative without traversal", h.Path)
	}
	return nil
}

// CheckManifest verifies the dependency manifest exists and is readable.
// The build runs this before anything model-related so a broken manifest
// never reaches the download stage.
func CheckManifest(dir string, r *Recipe) error {
	path := filepath.Join(dir, r.Python.Requirements)
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("dependency manifest %s: %w", r.Python.Requirements, err)
	}
	if info.IsDir() {
		return fmt.Errorf("dependency manifest %s is a directory", r.Python.Requirements)
	}
	return nil
}

// CheckScript verifies the model download script exists when the recipe
// configures one. Script-mode builds COPY it into the image, so a missing
// script must fail here instead of inside docker build.
func CheckScript(dir string, r *Recipe) error {
	script := r.ModelScript()
	if script == "" {
		return nil
	}
	path := filepath.Join(dir, script)
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("model script %s: %w", script, err)
	}
	if info.IsDir() {
		return fmt.Errorf("model script %s is a directory", script)
	}
	return nil
}

// CheckHandler verifies the handler file exists.
func CheckHandler(dir string, r *Recipe) error {
	path := filepath.Join(dir, r.Handler.Path)
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("handler %s: %w", r.Handler.Path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("handler %s is a directory", r.Handler.Path)
	}
	return nil
}
