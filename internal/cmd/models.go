package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ovenworks/bakery-cli/internal/models"
)

var modelsQuiet bool

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "Manage baked model artifacts",
	Long: `Manage the pretrained artifacts baked into the worker image.

The lockfile (bakery.lock.json) pins every artifact to a resolved URL and
content hash. Its digest feeds the generated Dockerfile, so re-pinning a
model invalidates the baked layer while unchanged pins keep it cached.`,
}

var modelsLockCmd = &cobra.Command{
	Use:   "lock",
	Short: "Fetch models and pin them in the lockfile",
	RunE:  runModelsLock,
}

var modelsPullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Populate the local model cache",
	RunE:  runModelsPull,
}

var modelsVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify cached artifacts against the lockfile",
	RunE:  runModelsVerify,
}

var modelsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List locked model artifacts",
	RunE:  runModelsList,
}

func init() {
	rootCmd.AddCommand(modelsCmd)
	modelsCmd.PersistentFlags().BoolVarP(&modelsQuiet, "quiet", "q", false, "Suppress download progress")
	modelsCmd.AddCommand(modelsLockCmd)
	modelsCmd.AddCommand(modelsPullCmd)
	modelsCmd.AddCommand(modelsVerifyCmd)
	modelsCmd.AddCommand(modelsListCmd)
}

func runModelsLock(cmd *cobra.Command, args []string) error {
	root, r, err := loadProject()
	if err != nil {
		return err
	}

	if len(r.Models) == 0 {
		fmt.Println("Recipe has no models; nothing to lock.")
		return nil
	}

	fetcher := models.NewFetcher(filepath.Join(root, models.DefaultCacheDir), modelsQuiet)
	lock := &models.Lock{Version: "1"}

	for _, m := range r.Models {
		fmt.Printf("📦 Fetching model %q...\n", m.Name)
		locked, err := fetcher.PullModel(cmd.Context(), m)
		if err != nil {
			return fmt.Errorf("❌ %w", err)
		}
		lock.Models = append(lock.Models, *locked)
	}

	if err := lock.Save(root); err != nil {
		return err
	}

	digest, err := lock.Digest()
	if err != nil {
		return err
	}

	fmt.Printf("✅ Locked %d model(s)\n", len(lock.Models))
	fmt.Printf("   Lock digest: %s\n", digest)
	return nil
}

func runModelsPull(cmd *cobra.Command, args []string) error {
	root, r, err := loadProject()
	if err != nil {
		return err
	}

	if len(r.Models) == 0 {
		fmt.Println("Recipe has no models; nothing to pull.")
		return nil
	}

	fetcher := models.NewFetcher(filepath.Join(root, models.DefaultCacheDir), modelsQuiet)

	for _, m := range r.Models {
		fmt.Printf("📦 Pulling model %q...\n", m.Name)
		if _, err := fetcher.PullModel(cmd.Context(), m); err != nil {
			return fmt.Errorf("❌ %w", err)
		}
	}

	// When a lockfile exists the cache must end up matching it.
	if lock, err := models.LoadLock(root); err == nil {
		if err := fetcher.Verify(lock); err != nil {
			return fmt.Errorf("❌ cache does not match lockfile: %w (run 'bakery models lock' to re-pin)", err)
		}
	}

	fmt.Println("✅ Model cache is ready")
	return nil
}

func runModelsVerify(cmd *cobra.Command, args []string) error {
	root, _, err := loadProject()
	if err != nil {
		return err
	}

	lock, err := models.LoadLock(root)
	if err != nil {
		return fmt.Errorf("no lockfile: %w (run 'bakery models lock' first)", err)
	}

	fetcher := models.NewFetcher(filepath.Join(root, models.DefaultCacheDir), true)
	if err := fetcher.Verify(lock); err != nil {
		return fmt.Errorf("❌ %w", err)
	}

	fmt.Println("✅ All cached artifacts match the lockfile")
	return nil
}

func runModelsList(cmd *cobra.Command, args []string) error {
	root, _, err := loadProject()
	if err != nil {
		return err
	}

	lock, err := models.LoadLock(root)
	if err != nil {
		return fmt.Errorf("no lockfile: %w (run 'bakery models lock' first)", err)
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "MODEL\tREVISION\tFILE\tSIZE\tSHA256")
	for _, m := range lock.Models {
		for _, f := range m.Files {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", m.Name, m.Revision, f.Path, f.Size, shortDigest(f.SHA256))
		}
	}
	return tw.Flush()
}
