package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ovenworks/bakery-cli/internal/models"
	"github.com/ovenworks/bakery-cli/internal/skaffold"
)

var cleanModels bool

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove generated files",
	Long: `Remove the generated Dockerfile and skaffold.yaml. With --models the
local model cache is removed as well; the lockfile is kept so the cache can
be repopulated deterministically.`,
	RunE: runClean,
}

func init() {
	rootCmd.AddCommand(cleanCmd)
	cleanCmd.Flags().BoolVar(&cleanModels, "models", false, "Also remove the local model cache")
}

func runClean(cmd *cobra.Command, args []string) error {
	root, err := findProjectRoot()
	if err != nil {
		return err
	}

	generated := []string{"Dockerfile", skaffold.FileName}
	for _, name := range generated {
		path := filepath.Join(root, name)
		if err := os.Remove(path); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return fmt.Errorf("failed to remove %s: %w", name, err)
		}
		fmt.Printf("🧹 Removed %s\n", name)
	}

	if cleanModels {
		cacheDir := filepath.Join(root, models.DefaultCacheDir)
		if err := os.RemoveAll(cacheDir); err != nil {
			return fmt.Errorf("failed to remove model cache: %w", err)
		}
		fmt.Printf("🧹 Removed %s\n", models.DefaultCacheDir)
	}

	fmt.Println("✅ Clean completed")
	return nil
}
