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
	"syscall"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/resqfreeze/internal/config"
	"github.com/kalambet/resqfreeze/internal/freshness"
	"github.com/kalambet/resqfreeze/internal/monitor"
	"github.com/kalambet/resqfreeze/internal/session"
	"github.com/kalambet/resqfreeze/internal/ui"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Run the monitor daemon: polling loops, chat session, dashboard API and websocket feed",
	RunE: func(cmd *cobra.Command, args []string) error {
		withMCP, _ := cmd.Flags().GetBool("mcp")
		return runMonitor(withMCP)
	},
}

func init() {
	monitorCmd.Flags().Bool("mcp", false, "also serve MCP tools over stdio")
}

func runMonitor(withMCP bool) error {
	fmt.Fprintf(os.Stderr, "resqfreeze monitor %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	closeLog, err := setupLogging(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	pidPath := pidFilePath(cfg.Storage.DataDir, daemonMonitor)
	if err := checkNotRunning(daemonMonitor, fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Monitor.Port), pidPath); err != nil {
		return err
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bc, err := newBackendClient()
	if err != nil {
		return err
	}

	d := wireMonitor(cfg, bc)
	defer d.hub.Close()

	handler := ui.NewHandler(ui.Deps{
		Session: d.session,
		Monitor: d.monitor,
		Backend: bc,
		Hub:     d.hub,
		Logger:  slog.Default(),
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Monitor.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return d.monitor.Run(gctx)
	})
	g.Go(func() error {
		return serveUntilDone(gctx, srv, daemonMonitor)
	})
	if withMCP {
		mcpSrv := ui.NewMCPServer(ui.MCPDeps{
			Session:           d.session,
			Monitor:           d.monitor,
			PreferServerLabel: cfg.Monitor.UseServerLabel,
		})
		g.Go(func() error {
			slog.Info("MCP server started (stdio transport)")
			err := server.NewStdioServer(mcpSrv).Listen(gctx, os.Stdin, os.Stdout)
			if err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("MCP stdio server: %w", err)
			}
			return nil
		})
	}
	return g.Wait()
}

// monitorDeps is the wired monitor daemon.
type monitorDeps struct {
	monitor *monitor.Monitor
	session *session.Reconciler
	hub     *ui.Hub
}

// backendAPI is everything the monitor daemon needs from the backend.
type backendAPI interface {
	monitor.SensorSource
	monitor.NotificationSource
	session.Store
	session.Assistant
}

// wireMonitor connects the reconciler, the polling loops and the websocket
// hub. The reconciler reads conditions from the monitor and the monitor
// refreshes the reconciler, so the monitor is captured after construction.
func wireMonitor(cfg config.Config, bc backendAPI) monitorDeps {
	var d monitorDeps

	d.hub = ui.NewHub(func() []monitor.Event {
		return []monitor.Event{
			{Type: monitor.EventVerdict, Payload: d.monitor.Status()},
			{Type: monitor.EventTranscript, Payload: d.session.View()},
		}
	}, slog.Default())

	d.session = session.New(bc, bc, func() (freshness.Verdict, freshness.Snapshot, bool) {
		return d.monitor.Conditions()
	}, session.Options{
		VegetableName: cfg.Session.VegetableName,
		Logger:        slog.Default(),
		OnChange: func(v session.View) {
			d.hub.Publish(monitor.Event{Type: monitor.EventTranscript, Payload: v})
		},
	})

	d.monitor = monitor.New(bc, bc, d.session, monitor.Config{
		SensorInterval:       cfg.Monitor.SensorInterval,
		ClockInterval:        cfg.Monitor.ClockInterval,
		NotificationInterval: cfg.Monitor.NotificationInterval,
		PreferServerLabel:    cfg.Monitor.UseServerLabel,
	}, monitor.WithPublisher(d.hub), monitor.WithLogger(slog.Default()))

	return d
}
