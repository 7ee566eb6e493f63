package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ovenworks/bakery-cli/internal/dockerfile"
	"github.com/ovenworks/bakery-cli/internal/models"
	"github.com/ovenworks/bakery-cli/internal/recipe"
	"github.com/ovenworks/bakery-cli/internal/skaffold"
	"github.com/ovenworks/bakery-cli/pkg/xos"
)

var generateSkipSkaffold bool

var generateCmd = &cobra.Command{
	Use:     "generate",
	Aliases: []string{"g"},
	Short:   "Render the Dockerfile and deploy config",
	Long: `Render the Dockerfile from the recipe, plus a Skaffold config for the
worker image.

The Dockerfile is deterministic: the same recipe and lockfile always render
byte-identical output, so unchanged inputs keep every expensive layer cached.`,
	RunE: runGenerate,
}

func init() {
	rootCmd.AddCommand(generateCmd)
	generateCmd.Flags().BoolVar(&generateSkipSkaffold, "skip-skaffold", false, "Do not render skaffold.yaml")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	root, r, err := loadProject()
	if err != nil {
		return err
	}

	if err := recipe.NewValidator().Validate(r); err != nil {
		return fmt.Errorf("invalid recipe: %w", err)
	}

	if err := renderDockerfile(root, r); err != nil {
		return err
	}
	fmt.Println("✅ Rendered Dockerfile")

	if !generateSkipSkaffold {
		config, err := skaffold.GenerateConfig(r, "Dockerfile")
		if err != nil {
			return fmt.Errorf("failed to generate skaffold config: %w", err)
		}
		if err := skaffold.WriteConfig(config, filepath.Join(root, skaffold.FileName)); err != nil {
			return err
		}
		fmt.Println("✅ Rendered skaffold.yaml")
	}

	return nil
}

// renderDockerfile renders the recipe to <root>/Dockerfile, carrying the
// model lock digest when a lockfile exists.
func renderDockerfile(root string, r *recipe.Recipe) error {
	opts := dockerfile.Options{
		ModelCacheDir: models.DefaultCacheDir,
		Script:        r.ModelScript(),
	}

	if len(r.Models) > 0 {
		lock, err := models.LoadLock(root)
		if err == nil {
			digest, err := lock.Digest()
			if err != nil {
				return err
			}
			opts.LockDigest = digest
		} else if !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}

	content, err := dockerfile.NewGenerator().Generate(r, opts)
	if err != nil {
		return fmt.Errorf("failed to generate Dockerfile: %w", err)
	}

	if err := xos.WriteFile(filepath.Join(root, "Dockerfile"), []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write Dockerfile: %w", err)
	}

	return nil
}
