package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "bakery",
	Short: "Bakery - build GPU inference worker images",
	Long: `Bakery assembles container images for GPU inference workers.

A worker project is a recipe (bakery.yaml), a python dependency manifest, a
handler script and a set of pretrained models. Bakery validates the recipe,
materializes the models, renders a deterministic Dockerfile and drives the
image build - keeping the expensive layers cacheable and the handler in the
final layer so iteration stays fast.`,
	Version: "1.0.0",
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
