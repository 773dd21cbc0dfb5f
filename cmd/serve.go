package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/ado/internal/api"
	"github.com/joescharf/ado/internal/daemon"
	"github.com/joescharf/ado/internal/llm"
	webui "github.com/joescharf/ado/internal/ui"
)

const stopTimeout = 10 * time.Second

// serveDetached marks the re-executed background child.
var serveDetached bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the REST API server and web UI",
	Long: `Run the REST API server and web UI in the foreground. It listens on
port 8080 by default. Use --port to change it, or "ado serve start" to run it in the
background.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveRun()
	},
}

var serveStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the API server in the background",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveStartRun()
	},
}

var serveStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the background API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveStopRun()
	},
}

var serveStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the background API server is running",
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
	_ = viper.BindPFlag("port", serveCmd.PersistentFlags().Lookup("port"))

	serveCmd.Flags().BoolVar(&serveDetached, "detached", false, "internal: running as the background child")
	_ = serveCmd.Flags().MarkHidden("detached")
}

func pidFile() *daemon.PIDFile {
	return daemon.NewPIDFile(filepath.Join(viper.GetString("state_dir"), "ado-serve.pid"))
}

func serveLogPath() string {
	return filepath.Join(viper.GetString("state_dir"), "ado-serve.log")
}

func serveRun() error {
	log := newLogger(os.Stderr, "ado", serveDetached)

	st, err := getSettings()
	if err != nil {
		return err
	}
	svc, err := getService()
	if err != nil {
		return err
	}

	var suggester *llm.Client
	suggester, err = newLLMClient()
	if err != nil {
		if !errors.Is(err, errLLMNotConfigured) {
			return err
		}
		log.Info("task suggestions disabled", "reason", "no Anthropic API key")
	}

	pf := pidFile()
	if err := pf.Acquire(); err != nil {
		return err
	}
	defer func() { _ = pf.Release() }()

	handler, err := webui.Mount(api.NewServer(st, svc, suggester, buildVersion).Router())
	if err != nil {
		return fmt.Errorf("load web UI: %w", err)
	}
	srv := &http.Server{
		Addr:              net.JoinHostPort("", strconv.Itoa(viper.GetInt("port"))),
		Handler:           requestLogger(log, handler),
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          slog.NewLogLogger(log.Handler(), slog.LevelError),
	}

	ctx, stop := signal.NotifyContext(context.Background(), shutdownSignals()...)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("serving API", "addr", "http://localhost"+srv.Addr, "version", buildVersion)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func serveStartRun() error {
	pf := pidFile()
	if pid, ok := pf.Running(); ok {
		return fmt.Errorf("%w (pid %d)", daemon.ErrRunning, pid)
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("find executable: %w", err)
	}

	args := []string{"serve", "--detached", "--port", strconv.Itoa(viper.GetInt("port"))}
	if cfg := viper.ConfigFileUsed(); cfg != "" {
		args = append(args, "--config", cfg)
	}
	if verbose {
		args = append(args, "--verbose")
	}
	if dryRun {
		ui.DryRunMsg("Would start %s %v", exe, args)
		return nil
	}

	logPath := serveLogPath()
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer func() { _ = logFile.Close() }()

	child := exec.Command(exe, args...)
	child.Stdout = logFile
	child.Stderr = logFile
	setDaemonAttrs(child)

	if err := child.Start(); err != nil {
		return fmt.Errorf("start server: %w", err)
	}
	pid := child.Process.Pid
	_ = child.Process.Release()

	ui.Success("API server started (pid %d) on port %d", pid, viper.GetInt("port"))
	ui.Info("Logs: %s", logPath)
	return nil
}

func serveStopRun() error {
	pf := pidFile()
	if dryRun {
		if pid, ok := pf.Running(); ok {
			ui.DryRunMsg("Would stop API server (pid %d)", pid)
		} else {
			ui.DryRunMsg("API server is not running; nothing to stop")
		}
		return nil
	}
	pid, err := pf.Stop(stopTimeout)
	if err != nil {
		return err
	}
	ui.Success("API server stopped (pid %d)", pid)
	return nil
}

func serveStatusRun() error {
	pid, ok := pidFile().Running()
	if !ok {
		ui.Info("API server is not running")
		return nil
	}
	ui.Success("API server is running (pid %d)", pid)
	ui.Info("Logs: %s", serveLogPath())
	return nil
}
