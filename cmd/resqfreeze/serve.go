package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"

	"github.com/kalambet/resqfreeze/internal/alerts"
	"github.com/kalambet/resqfreeze/internal/api"
	"github.com/kalambet/resqfreeze/internal/chef"
	"github.com/kalambet/resqfreeze/internal/config"
	"github.com/kalambet/resqfreeze/internal/logging"
	"github.com/kalambet/resqfreeze/internal/profile"
	"github.com/kalambet/resqfreeze/internal/proxy"
	"github.com/kalambet/resqfreeze/internal/storage"
)

const (
	daemonBackend = "backend"
	daemonMonitor = "monitor"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the container backend (sensor ingest, chat history, AI, notifications)",
	RunE: func(cmd *cobra.Command, args []string) error {
		port, _ := cmd.Flags().GetInt("port")
		return runBackend(port)
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop a running backend or monitor daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		monitor, _ := cmd.Flags().GetBool("monitor")
		name := daemonBackend
		if monitor {
			name = daemonMonitor
		}
		return stopDaemon(name)
	},
}

func init() {
	serveCmd.Flags().Int("port", 0, "listen port (default: server.port)")
	stopCmd.Flags().Bool("monitor", false, "stop the monitor daemon instead of the backend")
}

func pidFilePath(dataDir, name string) string {
	return filepath.Join(dataDir, "resqfreeze-"+name+".pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

// checkNotRunning fails when something already answers /health at healthURL.
func checkNotRunning(name, healthURL, pidPath string) error {
	healthClient := &http.Client{Timeout: 2 * time.Second}
	resp, err := healthClient.Get(healthURL)
	if err != nil {
		return nil
	}
	resp.Body.Close()
	if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
		printWarning("%s is already running (PID %d)", name, pid)
		return fmt.Errorf("%s already running (PID %d)", name, pid)
	}
	printWarning("something is already listening at %s", healthURL)
	return fmt.Errorf("%s already running", name)
}

func setupLogging(cfg config.Config) (func(), error) {
	closer, err := logging.Setup(logging.Options{Level: cfg.Log.Level, File: cfg.Log.File})
	if err != nil {
		return nil, fmt.Errorf("initializing logging: %w", err)
	}
	return func() {
		if err := closer.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing log file: %v\n", err)
		}
	}, nil
}

func runBackend(port int) error {
	fmt.Fprintf(os.Stderr, "resqfreeze %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if port > 0 {
		cfg.Server.Port = port
	}

	closeLog, err := setupLogging(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	if cfg.Server.APIToken == "" {
		slog.Warn("server.api_token is empty; backend API is unauthenticated")
	}

	pidPath := pidFilePath(cfg.Storage.DataDir, daemonBackend)
	if err := checkNotRunning(daemonBackend, fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port), pidPath); err != nil {
		return err
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(cfg.Storage.DataDir)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	profileMgr := profile.NewManager(store)

	var llm chef.Completer
	if cfg.Proxy.OpenRouterAPIKey != "" {
		llm = proxy.NewClient(cfg.Proxy.OpenRouterAPIKey)
	} else {
		slog.Warn("proxy.openrouter_api_key not set; AI endpoints will answer 503")
	}
	chefSvc := chef.New(llm, cfg.Proxy.DefaultModel, profileMgr, slog.Default())

	var messenger alerts.Messenger
	if cfg.Alerts.WebhookURL != "" {
		messenger = alerts.NewWebhookMessenger(cfg.Alerts.WebhookURL, cfg.Alerts.WebhookKey)
	} else {
		slog.Info("alerts.webhook_url not set; transitions are stored as notifications only")
	}
	worker := alerts.NewWorker(store, messenger, profileMgr, 500*time.Millisecond)
	go worker.Run(ctx)

	appHandler := api.NewAppHandler(api.AppDeps{
		Store:   store,
		Profile: profileMgr,
		Chef:    chefSvc,
		Token:   cfg.Server.APIToken,
		Logger:  slog.Default(),
	})

	root := chi.NewRouter()
	root.Mount("/api", appHandler)
	root.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	// Sensors post from the local network, so the backend binds every interface.
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: root,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	return serveUntilDone(ctx, srv, daemonBackend)
}

// serveUntilDone runs srv until ctx is cancelled or it fails, then shuts it
// down with a 5s grace period.
// openStore opens the database and logs the applied schema versions.
func openStore(dir string) (*storage.Store, error) {
	store, err := storage.Open(dir)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}
	versions, err := store.AppliedMigrations()
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("reading schema version: %w", err)
	}
	slog.Info("storage ready", "dir", dir, "migrations", versions)
	return store, nil
}

func serveUntilDone(ctx context.Context, srv *http.Server, name string) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info(name+" listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func stopDaemon(name string) error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir, name)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("%s is not running (no PID file)", name)
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop %s (PID %d): %v", name, pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to %s (PID %d)", name, pid)
	return nil
}
