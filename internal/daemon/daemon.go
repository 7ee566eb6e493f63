// Package daemon provides the bakery dev daemon: it watches a worker project
// and rebuilds the image when the handler or its inputs change.
package daemon

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthService is the service name the daemon reports on its socket, so
// external tooling can probe daemon liveness with a standard health check.
const HealthService = "bakery.daemon"

// Config contains daemon configuration.
type Config struct {
	// SocketPath is the Unix socket path for gRPC communication.
	SocketPath string

	// ProjectDir is the worker project directory to serve.
	ProjectDir string

	// Version is the daemon version.
	Version string
}

// DefaultConfig returns default daemon configuration.
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	return &Config{
		SocketPath: filepath.Join(homeDir, ".bakery", "daemon.sock"),
		ProjectDir: ".",
		Version:    "1.0.0",
	}
}

// RebuildFunc runs one rebuild of the worker image in response to an event.
type RebuildFunc func(ctx context.Context, event FileEvent) error

// BuildEvent reports one rebuild triggered by a file change.
type BuildEvent struct {
	BuildID   string
	Trigger   FileEvent
	Err       error
	StartedAt time.Time
	Duration  time.Duration
}

// Daemon is the bakery dev daemon.
type Daemon struct {
	config  *Config
	rebuild RebuildFunc

	server    *grpc.Server
	health    *health.Server
	listener  net.Listener
	watcher   *Watcher
	startTime time.Time

	subscribers   map[string]chan BuildEvent
	subscribersMu sync.RWMutex

	done chan struct{}
	mu   sync.RWMutex
}

// New creates a new daemon instance.
func New(config *Config, rebuild RebuildFunc) *Daemon {
	return &Daemon{
		config:      config,
		rebuild:     rebuild,
		subscribers: make(map[string]chan BuildEvent),
		done:        make(chan struct{}),
	}
}

// Start starts the daemon: the gRPC socket, the file watcher and the rebuild
// loop.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	socketDir := filepath.Dir(d.config.SocketPath)
	if err := os.MkdirAll(socketDir, 0755); err != nil {
		return fmt.Errorf("failed to create socket directory: %w", err)
	}

	// A stale socket from a crashed daemon blocks the listener.
	if _, err := os.Stat(d.config.SocketPath); err == nil {
		if err := os.Remove(d.config.SocketPath); err != nil {
			return fmt.Errorf("failed to remove existing socket: %w", err)
		}
	}

	listener, err := net.Listen("unix", d.config.SocketPath)
	if err != nil {
		return fmt.Errorf("failed to create listener: %w", err)
	}
	d.listener = listener

	d.server = grpc.NewServer()
	d.health = health.NewServer()
	healthpb.RegisterHealthServer(d.server, d.health)
	d.health.SetServingStatus(HealthService, healthpb.HealthCheckResponse_SERVING)
	d.startTime = time.Now()

	go func() {
		if err := d.server.Serve(listener); err != nil {
			// Server may have been stopped intentionally.
			fmt.Fprintf(os.Stderr, "gRPC server error: %v\n", err)
		}
	}()

	if err := d.startWatcher(ctx); err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}

	return nil
}

// Stop stops the daemon.
func (d *Daemon) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	close(d.done)

	if d.watcher != nil {
		d.watcher.Stop()
	}

	if d.health != nil {
		d.health.Shutdown()
	}

	if d.server != nil {
		d.server.GracefulStop()
	}

	if d.listener != nil {
		d.listener.Close()
	}

	os.Remove(d.config.SocketPath)

	return nil
}

// startWatcher starts the file watcher and the rebuild loop.
func (d *Daemon) startWatcher(ctx context.Context) error {
	config := DefaultWatcherConfig(d.config.ProjectDir)
	watcher, err := NewWatcher(config)
	if err != nil {
		return err
	}

	d.watcher = watcher

	if err := watcher.Start(ctx); err != nil {
		return err
	}

	go d.rebuildLoop(ctx)

	return nil
}

// rebuildLoop runs a rebuild for each debounced file event and broadcasts the
// result. Rebuilds are serialized: a change during a build queues behind it.
func (d *Daemon) rebuildLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-d.done:
			return
		case event := <-d.watcher.Events():
			build := BuildEvent{
				BuildID:   uuid.NewString(),
				Trigger:   event,
				StartedAt: time.Now(),
			}

			if d.rebuild != nil {
				build.Err = d.rebuild(ctx, event)
			}
			build.Duration = time.Since(build.StartedAt)

			d.broadcast(build)
		}
	}
}

// broadcast sends a build event to all subscribers.
func (d *Daemon) broadcast(event BuildEvent) {
	d.subscribersMu.RLock()
	defer d.subscribersMu.RUnlock()

	for _, ch := range d.subscribers {
		select {
		case ch <- event:
		default:
			// Subscriber not keeping up, skip.
		}
	}
}

// Subscribe creates a new build event subscription and returns its id.
func (d *Daemon) Subscribe() (string, <-chan BuildEvent) {
	d.subscribersMu.Lock()
	defer d.subscribersMu.Unlock()

	id := uuid.NewString()
	ch := make(chan BuildEvent, 100)
	d.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a build event subscription.
func (d *Daemon) Unsubscribe(id string) {
	d.subscribersMu.Lock()
	defer d.subscribersMu.Unlock()

	if ch, ok := d.subscribers[id]; ok {
		close(ch)
		delete(d.subscribers, id)
	}
}

// StatusInfo contains daemon status information.
type StatusInfo struct {
	Running        bool
	Version        string
	UptimeSeconds  int64
	ProjectDir     string
	ActiveWatchers int
}

// Status returns the daemon status.
func (d *Daemon) Status() *StatusInfo {
	d.mu.RLock()
	defer d.mu.RUnlock()

	activeWatchers := 0
	if d.watcher != nil && d.watcher.IsRunning() {
		activeWatchers = 1
	}

	return &StatusInfo{
		Running:        d.server != nil,
		Version:        d.config.Version,
		UptimeSeconds:  int64(time.Since(d.startTime).Seconds()),
		ProjectDir:     d.config.ProjectDir,
		ActiveWatchers: activeWatchers,
	}
}

// SocketPath returns the socket path for connecting to this daemon.
func (d *Daemon) SocketPath() string {
	return d.config.SocketPath
}

// Client creates a gRPC client connected to this daemon.
func (d *Daemon) Client() (*grpc.ClientConn, error) {
	return grpc.NewClient(
		"unix://"+d.config.SocketPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
}
