package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/ovenworks/bakery-cli/internal/daemon"
	"github.com/ovenworks/bakery-cli/internal/docker"
	"github.com/ovenworks/bakery-cli/internal/recipe"
)

var devTag string

var devCmd = &cobra.Command{
	Use:   "dev",
	Short: "Rebuild the image whenever the handler changes",
	Long: `Watch the worker project and rebuild the image on changes.

Because the handler lives in the final layer, a handler-only change rebuilds
in seconds: every dependency and model layer is served from cache.`,
	RunE: runDev,
}

func init() {
	rootCmd.AddCommand(devCmd)
	devCmd.Flags().StringVarP(&devTag, "tag", "t", "dev", "Image tag for dev builds")
}

func runDev(cmd *cobra.Command, args []string) error {
	root, r, err := loadProject()
	if err != nil {
		return err
	}

	if err := recipe.NewValidator().Validate(r); err != nil {
		return fmt.Errorf("invalid recipe: %w", err)
	}

	executor, err := docker.NewExecutor(root, false)
	if err != nil {
		return err
	}

	ref := fmt.Sprintf("%s:%s", r.Image.Repository, devTag)

	rebuild := func(ctx context.Context, event daemon.FileEvent) error {
		fmt.Printf("🔁 %s %s, rebuilding...\n", filepath.Base(event.Path), event.Type)

		// The recipe itself may have changed.
		fresh, err := recipe.Load(root)
		if err != nil {
			return err
		}
		if err := recipe.NewValidator().Validate(fresh); err != nil {
			return err
		}
		if err := recipe.CheckManifest(root, fresh); err != nil {
			return err
		}
		if err := recipe.CheckScript(root, fresh); err != nil {
			return err
		}
		if err := recipe.CheckHandler(root, fresh); err != nil {
			return err
		}
		if err := renderDockerfile(root, fresh); err != nil {
			return err
		}

		return executor.Build(ctx, docker.BuildOptions{
			Dockerfile: "Dockerfile",
			Tag:        ref,
		})
	}

	config := daemon.DefaultConfig()
	config.ProjectDir = root
	config.SocketPath = filepath.Join(root, ".bakery", "daemon.sock")

	d := daemon.New(config, rebuild)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	if err := d.Start(ctx); err != nil {
		return err
	}
	defer d.Stop()

	id, events := d.Subscribe()
	defer d.Unsubscribe(id)

	fmt.Printf("👀 Watching %s (socket: %s)\n", root, d.SocketPath())

	// Confirm the socket answers before settling into the event loop.
	if conn, err := d.Client(); err == nil {
		resp, herr := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: daemon.HealthService})
		conn.Close()
		if herr != nil || resp.Status != healthpb.HealthCheckResponse_SERVING {
			fmt.Println("⚠️  Daemon socket is not answering health checks.")
		}
	}

	fmt.Println("   Press Ctrl+C to stop.")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-quit:
			fmt.Println("\nStopping...")
			return nil
		case event := <-events:
			if event.Err != nil {
				fmt.Printf("❌ Build %s failed: %v\n", event.BuildID[:8], event.Err)
			} else {
				fmt.Printf("✅ Build %s completed in %s\n", event.BuildID[:8], event.Duration.Round(10*time.Millisecond))
			}
		}
	}
}
