package cmd

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/xeipuuv/gojsonschema"
	"sigs.k8s.io/yaml"

	"github.com/ovenworks/bakery-cli/internal/recipe"
	"github.com/ovenworks/bakery-cli/internal/requirements"
)

//go:embed schemas/bakery.v1.schema.json
var schemaFS embed.FS

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the worker recipe",
	Long: `Validates bakery.yaml against the recipe schema, then applies semantic
checks: base image resolution, reserved environment variables, model and
handler paths, and the presence of the dependency manifest.`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	root, err := findProjectRoot()
	if err != nil {
		return err
	}

	fmt.Println("🔍 Validating bakery.yaml...")

	recipePath := filepath.Join(root, recipe.FileName)
	recipeBytes, err := os.ReadFile(recipePath)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", recipe.FileName, err)
	}

	// The schema speaks JSON; the recipe is YAML.
	recipeJSON, err := yaml.YAMLToJSON(recipeBytes)
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", recipe.FileName, err)
	}

	schemaBytes, err := schemaFS.ReadFile("schemas/bakery.v1.schema.json")
	if err != nil {
		return fmt.Errorf("failed to load recipe schema: %w", err)
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(schemaBytes),
		gojsonschema.NewBytesLoader(recipeJSON),
	)
	if err != nil {
		return fmt.Errorf("validation error: %w", err)
	}

	if !result.Valid() {
		fmt.Println("\n❌ Validation failed with the following errors:")
		fmt.Println()
		for _, desc := range result.Errors() {
			fmt.Printf("  • %s: %s\n", desc.Field(), desc.Description())
		}
		return fmt.Errorf("%s is not valid", recipe.FileName)
	}

	r, err := recipe.Load(root)
	if err != nil {
		return err
	}

	if err := recipe.NewValidator().Validate(r); err != nil {
		return fmt.Errorf("❌ %w", err)
	}

	// Stage preconditions, in pipeline order: the manifest gates everything
	// after the dependency stage, the handler gates the final copy.
	if err := recipe.CheckManifest(root, r); err != nil {
		return fmt.Errorf("❌ %w", err)
	}
	manifest, err := requirements.Parse(filepath.Join(root, r.Python.Requirements))
	if err != nil {
		return fmt.Errorf("❌ %w", err)
	}
	if err := recipe.CheckScript(root, r); err != nil {
		return fmt.Errorf("❌ %w", err)
	}
	if err := recipe.CheckHandler(root, r); err != nil {
		return fmt.Errorf("❌ %w", err)
	}

	base, err := r.BaseImage()
	if err != nil {
		return fmt.Errorf("❌ %w", err)
	}

	fmt.Println("✅ bakery.yaml is valid!")
	fmt.Printf("   Base image: %s\n", base)
	fmt.Printf("   Dependencies: %d pinned in %s\n", len(manifest.Requirements), r.Python.Requirements)
	fmt.Printf("   Models: %d\n", len(r.Models))
	return nil
}
