package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ovenworks/bakery-cli/internal/models"
	"github.com/ovenworks/bakery-cli/internal/recipe"
	"github.com/ovenworks/bakery-cli/internal/template"
	"github.com/ovenworks/bakery-cli/internal/ui"
	"github.com/ovenworks/bakery-cli/pkg/xos"
)

var (
	initDefaults bool
	initForce    bool
)

// runtimePresets are the base environments offered during init. Each pins
// accelerator runtime, interpreter and OS together.
var runtimePresets = []struct {
	Label   string
	Runtime recipe.RuntimeSpec
}{
	{
		Label:   "torch 2.4.0 / python 3.10 / CUDA 12.4.1 / ubuntu 22.04",
		Runtime: recipe.RuntimeSpec{Torch: "2.4.0", Python: "3.10", CUDA: "12.4.1", OS: "22.04"},
	},
	{
		Label:   "torch 2.1.0 / python 3.10 / CUDA 11.8.0 / ubuntu 22.04",
		Runtime: recipe.RuntimeSpec{Torch: "2.1.0", Python: "3.10", CUDA: "11.8.0", OS: "22.04"},
	},
	{
		Label:   "CUDA 12.1.1 runtime / python 3.10 / ubuntu 22.04",
		Runtime: recipe.RuntimeSpec{Python: "3.10", CUDA: "12.1.1", OS: "22.04"},
	},
}

var initCmd = &cobra.Command{
	Use:   "init [name]",
	Short: "Scaffold a new worker project",
	Long: `Create a new worker project: a recipe, a dependency manifest, a handler
stub, a .dockerignore keeping the build context minimal and a .gitignore for
the generated files.

Examples:
  bakery init flux-worker
  bakery init flux-worker --defaults`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().BoolVarP(&initDefaults, "defaults", "y", false, "Skip prompts and use defaults")
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "Overwrite existing files")
}

func runInit(cmd *cobra.Command, args []string) error {
	name := ""
	if len(args) > 0 {
		name = args[0]
	}

	if name == "" {
		if initDefaults {
			return fmt.Errorf("worker name is required with --defaults")
		}
		var err error
		name, err = ui.AskText("Worker name", "my-worker", recipe.ValidateName)
		if err != nil {
			return err
		}
	}

	if err := recipe.ValidateName(name); err != nil {
		return fmt.Errorf("invalid worker name: %w", err)
	}

	dir := name
	if !initForce {
		if _, err := os.Stat(filepath.Join(dir, recipe.FileName)); err == nil {
			if initDefaults {
				return fmt.Errorf("project %q already exists (use --force to overwrite)", name)
			}
			overwrite, err := ui.AskConfirm(fmt.Sprintf("Project %q already exists. Overwrite", name), false)
			if err != nil {
				return err
			}
			if !overwrite {
				return fmt.Errorf("project %q already exists", name)
			}
		}
	}

	r := recipe.New(name)

	if initDefaults {
		rt := runtimePresets[0].Runtime
		r.Image.Runtime = &rt
	} else {
		repo, err := ui.AskText("Image repository", name, nil)
		if err != nil {
			return err
		}
		r.Image.Repository = repo

		labels := make([]string, len(runtimePresets))
		for i, p := range runtimePresets {
			labels[i] = p.Label
		}
		idx, _, err := ui.AskSelect("Base environment", labels)
		if err != nil {
			return err
		}
		rt := runtimePresets[idx].Runtime
		r.Image.Runtime = &rt

		modelID, err := ui.AskText("Model to bake (hub id, empty to skip)", "", nil)
		if err != nil {
			return err
		}
		if modelID != "" {
			r.Models = append(r.Models, recipe.Model{
				Name:      "primary",
				Source:    modelID,
				TargetDir: "/app/huggingface_cache",
				Files: []recipe.ModelFile{
					{Path: "model_index.json"},
				},
			})
		}
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create project directory: %w", err)
	}

	if err := r.Save(dir); err != nil {
		return err
	}

	engine := template.NewEngine()

	modelDir := "/app/huggingface_cache"
	if len(r.Models) > 0 {
		modelDir = r.Models[0].TargetDir
	}

	files := map[string]struct {
		tmpl string
		data interface{}
	}{
		r.Handler.Path: {
			tmpl: "worker/handler.py.tmpl",
			data: map[string]interface{}{"ModelDir": modelDir},
		},
		r.Python.Requirements: {
			tmpl: "worker/requirements.txt.tmpl",
			data: map[string]interface{}{"WorkerName": name},
		},
		".dockerignore": {
			tmpl: "worker/dockerignore.tmpl",
			data: map[string]interface{}{
				"Requirements":  r.Python.Requirements,
				"Handler":       r.Handler.Path,
				"ModelCacheDir": models.DefaultCacheDir,
			},
		},
	}

	for path, f := range files {
		content, err := engine.RenderTemplate(f.tmpl, f.data)
		if err != nil {
			return fmt.Errorf("failed to render %s: %w", path, err)
		}
		if err := xos.WriteFile(filepath.Join(dir, path), []byte(content), 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
	}

	// The gitignore is static: no per-project substitutions.
	gitignore, err := engine.ReadEmbeddedFile("worker/gitignore.tmpl")
	if err != nil {
		return fmt.Errorf("failed to load gitignore template: %w", err)
	}
	if err := xos.WriteFile(filepath.Join(dir, ".gitignore"), gitignore, 0644); err != nil {
		return fmt.Errorf("failed to write .gitignore: %w", err)
	}

	fmt.Printf("✅ Created worker project %q\n", name)
	fmt.Println("   Next steps:")
	fmt.Printf("     cd %s\n", name)
	fmt.Println("     bakery validate")
	fmt.Println("     bakery build")
	return nil
}
