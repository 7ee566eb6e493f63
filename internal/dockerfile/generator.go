// Package dockerfile turns a validated recipe into a deterministic Dockerfile.
//
// The generated file follows a fixed stage plan: base image, non-interactive
// environment, system packages, python dependencies, model materialization,
// handler copy, startup command. The order is load-bearing: the expensive
// dependency and model layers come first so an unchanged manifest keeps them
// cached, and the high-churn handler file lands in the final mutable layer.
package dockerfile

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/ovenworks/bakery-cli/internal/recipe"
)

const header = "# Generated by bakery. Edits will be overwritten on the next generate."

// WorkDir is the working directory inside the image.
const WorkDir = "/app"

// LockArg is the build arg carrying the model lock digest. Script-based model
// stages re-run when the pinned content changes, even if the script text does
// not.
const LockArg = "BAKERY_MODEL_LOCK"

// Options control rendering details that live outside the recipe.
type Options struct {
	// LockDigest is the digest of bakery.lock.json, or "unlocked".
	LockDigest string

	// ModelCacheDir is the local cache directory inside the build context
	// that holds pre-pulled model files.
	ModelCacheDir string

	// Script, when set, is a download script run at build time instead of
	// copying pre-pulled files from the cache.
	Script string
}

// Generator renders Dockerfiles from recipes.
type Generator struct{}

// NewGenerator creates a new Dockerfile generator.
func NewGenerator() *Generator {
	return &Generator{}
}

// Plan builds the ordered stage plan for a recipe.
func (g *Generator) Plan(r *recipe.Recipe, opts Options) ([]Stage, error) {
	base, err := r.BaseImage()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve base image: %w", err)
	}

	var stages []Stage

	stages = append(stages, Stage{
		Kind:         StageBase,
		Comment:      "Pinned base: accelerator runtime, interpreter and OS resolve together.",
		Instructions: []string{fmt.Sprintf("FROM %s", base)},
	})

	stages = append(stages, Stage{
		Kind:         StageEnv,
		Comment:      "Installers must never block on a prompt during the build.",
		Instructions: envInstructions(r),
	})

	if len(r.Image.SystemPackages) > 0 {
		stages = append(stages, Stage{
			Kind:         StageSystem,
			Instructions: systemInstructions(r.Image.SystemPackages),
		})
	}

	stages = append(stages, Stage{
		Kind:    StageDeps,
		Comment: "Dependency layer: cached as long as the manifest is unchanged.",
		Instructions: []string{
			fmt.Sprintf("WORKDIR %s", WorkDir),
			fmt.Sprintf("COPY %s %s", r.Python.Requirements, path.Join(WorkDir, r.Python.Requirements)),
			fmt.Sprintf("RUN pip install --prefer-binary --no-cache-dir -r %s", r.Python.Requirements),
		},
	})

	if len(r.Models) > 0 {
		modelStage, err := modelStage(r, opts)
		if err != nil {
			return nil, err
		}
		stages = append(stages, modelStage)
	}

	stages = append(stages, Stage{
		Kind:    StageHandler,
		Comment: "Handler last: iterating on it invalidates only this layer.",
		Instructions: []string{
			fmt.Sprintf("COPY %s %s", r.Handler.Path, path.Join(WorkDir, path.Base(r.Handler.Path))),
		},
	})

	stages = append(stages, Stage{
		Kind:         StageCommand,
		Comment:      "Unbuffered so log output is flushed as it is written.",
		Instructions: []string{fmt.Sprintf("CMD %s", jsonForm(r.StartCommand()))},
	})

	if err := checkOrder(stages); err != nil {
		return nil, err
	}

	return stages, nil
}

// Render renders the stage plan to Dockerfile text. Output is byte-identical
// for identical input.
func (g *Generator) Render(stages []Stage) string {
	var b strings.Builder
	b.WriteString(header)
	b.WriteString("\n")

	for _, s := range stages {
		b.WriteString("\n")
		if s.Comment != "" {
			b.WriteString("# " + s.Comment + "\n")
		}
		for _, inst := range s.Instructions {
			b.WriteString(inst + "\n")
		}
	}

	return b.String()
}

// Generate plans and renders in one step.
func (g *Generator) Generate(r *recipe.Recipe, opts Options) (string, error) {
	stages, err := g.Plan(r, opts)
	if err != nil {
		return "", err
	}
	return g.Render(stages), nil
}

func envInstructions(r *recipe.Recipe) []string {
	inst := []string{
		fmt.Sprintf("ENV DEBIAN_FRONTEND=noninteractive \\\n    TZ=%s", r.Timezone()),
	}

	if len(r.Image.Env) == 0 {
		return inst
	}

	// Sorted so the rendered file is deterministic.
	keys := make([]string, 0, len(r.Image.Env))
	for k := range r.Image.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, fmt.Sprintf("%s=%q", k, r.Image.Env[k]))
	}
	inst = append(inst, "ENV "+strings.Join(pairs, " \\\n    "))

	return inst
}

func systemInstructions(packages []string) []string {
	pkgs := append([]string(nil), packages...)
	sort.Strings(pkgs)
	return []string{
		"RUN apt-get update \\\n" +
			"    && apt-get install -y --no-install-recommends " + strings.Join(pkgs, " ") + " \\\n" +
			"    && rm -rf /var/lib/apt/lists/*",
	}
}

func modelStage(r *recipe.Recipe, opts Options) (Stage, error) {
	digest := opts.LockDigest
	if digest == "" {
		digest = "unlocked"
	}

	if opts.Script != "" {
		// Script mode: the script fetches artifacts at build time. The lock
		// digest rides along as a build arg so the layer cache key follows
		// the pinned content, not just the script text.
		return Stage{
			Kind:    StageModels,
			Comment: "Model materialization: baked at build time, no registry access at request time.",
			Instructions: []string{
				fmt.Sprintf("COPY %s %s", opts.Script, path.Join(WorkDir, path.Base(opts.Script))),
				fmt.Sprintf("ARG %s=%s", LockArg, digest),
				fmt.Sprintf("RUN python -u %s", path.Base(opts.Script)),
			},
		}, nil
	}

	if opts.ModelCacheDir == "" {
		return Stage{}, fmt.Errorf("model cache dir is required when no download script is set")
	}

	var inst []string
	for _, m := range r.Models {
		src := path.Join(opts.ModelCacheDir, m.Name) + "/"
		dst := strings.TrimSuffix(m.TargetDir, "/") + "/"
		inst = append(inst, fmt.Sprintf("COPY %s %s", src, dst))
	}

	return Stage{
		Kind:         StageModels,
		Comment:      "Model materialization: baked at build time, no registry access at request time.",
		Instructions: inst,
	}, nil
}

// checkOrder verifies the plan follows the only legal stage ordering.
func checkOrder(stages []Stage) error {
	pos := -1
	for _, s := range stages {
		next := indexOf(s.Kind)
		if next < 0 {
			return fmt.Errorf("unknown stage kind %d", s.Kind)
		}
		if next <= pos {
			return fmt.Errorf("stage %s out of order", s.Kind)
		}
		pos = next
	}
	return nil
}

func indexOf(k StageKind) int {
	for i, o := range stageOrder {
		if o == k {
			return i
		}
	}
	return -1
}

// jsonForm renders a command in Dockerfile exec form.
func jsonForm(cmd []string) string {
	quoted := make([]string, len(cmd))
	for i, c := range cmd {
		quoted[i] = fmt.Sprintf("%q", c)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}
