package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ovenworks/bakery-cli/internal/docker"
	"github.com/ovenworks/bakery-cli/internal/models"
)

var (
	runTag  string
	runGPUs string
	runEnv  map[string]string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the built worker image locally",
	Long: `Run the worker image in a local container with GPU access.

The container runs the recipe's startup command: an unbuffered interpreter
invocation of the handler. The command's exit code is the container's exit
code.

Examples:
  bakery run
  bakery run --gpus all
  bakery run --env RUNPOD_DEBUG=1`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVarP(&runTag, "tag", "t", "", "Image tag to run (defaults to the git commit SHA)")
	runCmd.Flags().StringVar(&runGPUs, "gpus", "all", "GPU device request passed to the runtime")
	runCmd.Flags().StringToStringVar(&runEnv, "env", nil, "Additional runtime environment (KEY=VALUE)")
}

func runRun(cmd *cobra.Command, args []string) error {
	root, r, err := loadProject()
	if err != nil {
		return err
	}

	ref := imageTag(r, runTag, root)

	executor, err := docker.NewExecutor(root, false)
	if err != nil {
		return err
	}

	if !executor.ImageExists(cmd.Context(), ref) {
		return fmt.Errorf("image %s not found (run 'bakery build' first)", ref)
	}

	// The image's lock-digest label records which pins it was baked from.
	// A mismatch with the current lockfile means the baked models are stale.
	if len(r.Models) > 0 {
		if lock, err := models.LoadLock(root); err == nil {
			digest, derr := lock.Digest()
			label, lerr := executor.Label(cmd.Context(), ref, labelLockDigest)
			if derr == nil && lerr == nil && label != "" && label != digest {
				fmt.Println("⚠️  Image was baked from a different model lock; run 'bakery build' to refresh it.")
			}
		}
	}

	fmt.Printf("🚀 Running %s...\n", ref)

	return executor.Run(cmd.Context(), docker.RunOptions{
		Tag:  ref,
		GPUs: runGPUs,
		Env:  runEnv,
		Name: r.Worker.Name,
	})
}
