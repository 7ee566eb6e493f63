package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ovenworks/bakery-cli/internal/docker"
	"github.com/ovenworks/bakery-cli/internal/models"
	"github.com/ovenworks/bakery-cli/internal/recipe"
)

var (
	buildTag     string
	buildLatest  bool
	buildPush    bool
	buildNoCache bool
	buildPull    bool
	buildVerbose bool
)

// Labels attached to every built image.
const (
	labelWorker     = "bakery.worker"
	labelLockDigest = "bakery.lock-digest"
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build the worker image",
	Long: `Run the full build pipeline: validate the recipe, check the dependency
manifest, materialize models, render the Dockerfile and build the image.

The pipeline is strictly ordered and fail-fast: the dependency manifest is
checked before any model is fetched, and the first failure aborts the build
with a non-zero exit.

Examples:
  bakery build                   # Build and tag with the git commit SHA
  bakery build --tag v3          # Explicit tag
  bakery build --push            # Build and push
  bakery build --no-cache        # Rebuild every layer`,
	RunE: runBuild,
}

func init() {
	rootCmd.AddCommand(buildCmd)
	buildCmd.Flags().StringVarP(&buildTag, "tag", "t", "", "Image tag (defaults to the git commit SHA)")
	buildCmd.Flags().BoolVar(&buildLatest, "latest", false, "Also tag the image as latest")
	buildCmd.Flags().BoolVar(&buildPush, "push", false, "Push the image after building")
	buildCmd.Flags().BoolVar(&buildNoCache, "no-cache", false, "Disable the layer cache")
	buildCmd.Flags().BoolVar(&buildPull, "pull", false, "Always attempt to pull a newer base image")
	buildCmd.Flags().BoolVarP(&buildVerbose, "verbose", "v", false, "Show docker invocations")
}

func runBuild(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	root, r, err := loadProject()
	if err != nil {
		return err
	}

	if err := recipe.NewValidator().Validate(r); err != nil {
		return fmt.Errorf("❌ invalid recipe: %w", err)
	}

	// Manifest before models: a broken manifest must never reach the
	// download stage.
	if err := recipe.CheckManifest(root, r); err != nil {
		return fmt.Errorf("❌ %w", err)
	}

	// The model stage copies the script into the image; a missing one must
	// fail here, not inside docker build.
	if err := recipe.CheckScript(root, r); err != nil {
		return fmt.Errorf("❌ %w", err)
	}

	lockDigest, err := ensureModels(ctx, root, r)
	if err != nil {
		return err
	}

	if err := recipe.CheckHandler(root, r); err != nil {
		return fmt.Errorf("❌ %w", err)
	}

	if err := renderDockerfile(root, r); err != nil {
		return err
	}

	ref := imageTag(r, buildTag, root)
	fmt.Printf("🔨 Building %s...\n", ref)

	executor, err := docker.NewExecutor(root, buildVerbose)
	if err != nil {
		return err
	}

	labels := map[string]string{
		labelWorker: r.Worker.Name,
	}
	if lockDigest != "" {
		labels[labelLockDigest] = lockDigest
	}

	if err := executor.Build(ctx, docker.BuildOptions{
		Dockerfile: "Dockerfile",
		Tag:        ref,
		Labels:     labels,
		NoCache:    buildNoCache,
		Pull:       buildPull,
	}); err != nil {
		return fmt.Errorf("❌ Build failed: %w", err)
	}

	if id, err := executor.ImageID(ctx, ref); err == nil {
		fmt.Printf("   Image ID: %s\n", shortDigest(strings.TrimPrefix(id, "sha256:")))
	}

	// Layer breakdown, newest first: which instruction produced which layer
	// and how much it weighs. The empty-size entries are metadata-only.
	if layers, err := executor.History(ctx, ref); err == nil {
		fmt.Printf("   Image layers: %d\n", len(layers))
		for _, l := range layers {
			if l.Size == "" || l.Size == "0B" {
				continue
			}
			fmt.Printf("     %-8s %s\n", l.Size, truncate(l.Instruction(), 72))
		}
	}

	refs := []string{ref}
	if buildLatest {
		latestRef := fmt.Sprintf("%s:latest", r.Image.Repository)
		if latestRef != ref {
			if err := executor.Tag(ctx, ref, latestRef); err != nil {
				return fmt.Errorf("❌ Failed to tag %s: %w", latestRef, err)
			}
			fmt.Printf("🏷️  Tagged %s\n", latestRef)
			refs = append(refs, latestRef)
		}
	}

	if buildPush {
		for _, pushRef := range refs {
			fmt.Printf("📤 Pushing %s...\n", pushRef)
			if err := executor.Push(ctx, pushRef); err != nil {
				return fmt.Errorf("❌ Failed to push %s: %w", pushRef, err)
			}
		}
	}

	fmt.Println("✅ Build completed successfully!")
	return nil
}

// ensureModels makes the model stage's inputs ready and returns the lock
// digest. In cache mode a missing lockfile is created by fetching and
// pinning; an existing one is verified, refetching into the cache as needed.
func ensureModels(ctx context.Context, root string, r *recipe.Recipe) (string, error) {
	if len(r.Models) == 0 {
		return "", nil
	}

	fetcher := models.NewFetcher(filepath.Join(root, models.DefaultCacheDir), false)

	lock, err := models.LoadLock(root)
	switch {
	case errors.Is(err, os.ErrNotExist):
		// In script mode this download exists only to hash the artifacts for
		// the lock; the image's script fetches its own copy at build time.
		// The local cache makes later re-locks cheap.
		fmt.Println("📦 No lockfile found, fetching and pinning models...")
		lock = &models.Lock{Version: "1"}
		for _, m := range r.Models {
			locked, err := fetcher.PullModel(ctx, m)
			if err != nil {
				return "", fmt.Errorf("❌ %w", err)
			}
			lock.Models = append(lock.Models, *locked)
		}
		if err := lock.Save(root); err != nil {
			return "", err
		}
	case err != nil:
		return "", err
	default:
		// Script-mode builds fetch inside the image; the local cache only
		// matters when the Dockerfile copies from it.
		if r.ModelScript() == "" {
			if err := fetcher.Verify(lock); err != nil {
				fmt.Println("📦 Model cache incomplete, refetching...")
				for _, m := range r.Models {
					if _, err := fetcher.PullModel(ctx, m); err != nil {
						return "", fmt.Errorf("❌ %w", err)
					}
				}
				if err := fetcher.Verify(lock); err != nil {
					return "", fmt.Errorf("❌ cache does not match lockfile: %w (run 'bakery models lock' to re-pin)", err)
				}
			}
		}
	}

	digest, err := lock.Digest()
	if err != nil {
		return "", err
	}
	return digest, nil
}
