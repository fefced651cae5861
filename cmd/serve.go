package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/board/internal/api"
	"github.com/joescharf/board/internal/daemon"
	"github.com/joescharf/board/internal/output"
	"github.com/joescharf/board/internal/realtime"
)

const (
	shutdownTimeout = 10 * time.Second
	stopTimeout     = 5 * time.Second
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the board API and realtime server",
	Long: `Run the REST API and the websocket event stream in the foreground.
By default it listens on port 8080. Use --port to change it.

Use 'board serve start' to run it in the background.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveRun(cmd.Context())
	},
}

var serveStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the server in the background",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveStartRun()
	},
}

var serveStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the background server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveStopRun()
	},
}

var serveStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the background server is running",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveStatusRun()
	},
}

func init() {
	serveCmd.AddCommand(serveStartCmd)
	serveCmd.AddCommand(serveStopCmd)
	serveCmd.AddCommand(serveStatusCmd)
	rootCmd.AddCommand(serveCmd)

	serveCmd.PersistentFlags().IntP("port", "p", 8080, "port to listen on")
	_ = viper.BindPFlag("serve.port", serveCmd.PersistentFlags().Lookup("port"))
}

func pidFile() *daemon.PIDFile {
	return daemon.NewPIDFile(filepath.Join(viper.GetString("state_dir"), "board-serve.pid"))
}

func serveLogPath() string {
	return filepath.Join(viper.GetString("state_dir"), "board-serve.log")
}

// newHTTPServer wires the store, services, realtime hub and REST routes.
func newHTTPServer(addr string) (*http.Server, error) {
	s, err := getStore()
	if err != nil {
		return nil, err
	}
	svc := newServices(s)
	ws := realtime.NewHandler(svc.hub, realtime.Options{
		AllowedOrigins: viper.GetStringSlice("serve.allowed_origins"),
		SendBuffer:     viper.GetInt("realtime.send_buffer"),
	}, slog.Default())
	router := api.NewServer(s, svc.items, svc.planning, svc.reports, ws).Router()

	return &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}, nil
}

func serveRun(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	pf := pidFile()
	if err := pf.Acquire(); err != nil {
		return err
	}
	defer func() { _ = pf.Release() }()

	addr := fmt.Sprintf(":%d", viper.GetInt("serve.port"))
	srv, err := newHTTPServer(addr)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, shutdownSignals()...)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("board server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down board server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	// Websocket handlers exit when their request contexts end, which
	// Shutdown does not cancel; Close forces them after the grace period.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		_ = srv.Close()
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func serveStartRun() error {
	pf := pidFile()
	if pid, running := pf.IsRunning(); running {
		return fmt.Errorf("server already running (PID %d)", pid)
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locate executable: %w", err)
	}
	if err := os.MkdirAll(viper.GetString("state_dir"), 0o755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}
	logFile, err := os.OpenFile(serveLogPath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer func() { _ = logFile.Close() }()

	args := []string{"serve", "--port", fmt.Sprint(viper.GetInt("serve.port"))}
	if cfg := viper.ConfigFileUsed(); cfg != "" {
		args = append(args, "--config", cfg)
	}
	child := exec.Command(exe, args...)
	child.Stdout = logFile
	child.Stderr = logFile
	detach(child)
	if err := child.Start(); err != nil {
		return fmt.Errorf("start server: %w", err)
	}
	_ = child.Process.Release()

	ui.Success("Server started (PID %d) on port %d", child.Process.Pid, viper.GetInt("serve.port"))
	ui.VerboseLog("Logs: %s", serveLogPath())
	return nil
}

func serveStopRun() error {
	pf := pidFile()
	pid, running := pf.IsRunning()
	if !running {
		return fmt.Errorf("server not running")
	}

	term, kill := stopSignals()
	if err := pf.Signal(term); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	if err := pf.WaitStopped(ctx, 100*time.Millisecond); err != nil {
		ui.Warning("Server did not stop within %s, killing PID %d", stopTimeout, pid)
		if err := pf.Signal(kill); err != nil {
			return err
		}
	}
	_ = pf.Remove()

	ui.Success("Server stopped (PID %d)", pid)
	return nil
}

func serveStatusRun() error {
	pf := pidFile()
	pid, running := pf.IsRunning()
	if !running {
		ui.Info("Server: %s", output.Yellow("not running"))
		return nil
	}
	ui.Info("Server: %s (PID %d, port %d)", output.Green("running"), pid, viper.GetInt("serve.port"))
	return nil
}
