package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/grovetools/remit/cli"
	"github.com/grovetools/remit/config"
	"github.com/grovetools/remit/internal/api"
	"github.com/grovetools/remit/pkg/paths"
	"github.com/grovetools/remit/pkg/transfer"
	"github.com/grovetools/remit/version"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// demoDelay is how long demo transfers pretend to work.
const demoDelay = 2 * time.Second

// NewServeCmd returns the HTTP API command with its stop and status subcommands.
func NewServeCmd() *cobra.Command {
	var addr, mode string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the transfer HTTP API",
		Long: `Serve the HTTP API used by the web front end.

In demo mode transfers are simulated. In real mode they drive the bank site
through the browser, and a code posted with its session id is submitted to
the suspended transfer. Disabled mode answers transfer requests with an
error. DEMO_MODE=true, REAL_TRANSACTIONS=true and PORT are honoured.

Examples:
  remit serve --mode demo
  remit serve --mode real --addr 0.0.0.0:3001`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := cli.GetLogger(cmd, "serve")
			e, err := loadEnv(cmd)
			if err != nil {
				return err
			}
			if addr != "" {
				e.cfg.Server.Addr = addr
			}
			if mode != "" {
				e.cfg.Server.Mode = mode
			}
			if err := e.cfg.Validate(); err != nil {
				return err
			}

			pidPath := paths.PidFilePath()
			if err := api.AcquirePidFile(pidPath); err != nil {
				return fmt.Errorf("failed to start: %w", err)
			}
			defer func() {
				if err := api.ReleasePidFile(pidPath); err != nil {
					logger.Errorf("Failed to release pidfile: %v", err)
				}
			}()

			var service api.Service
			switch e.cfg.Server.Mode {
			case config.ModeDemo:
				service = transfer.NewDemo(demoDelay)
			case config.ModeReal:
				eng := e.engine()
				defer eng.Shutdown()
				service = eng
			}
			srv := api.New(e.cfg.Server, e.banks, e.store, service, logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			go func() {
				<-ctx.Done()
				logger.Info("Received stop signal")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					logger.Errorf("Server shutdown error: %v", err)
				}
			}()

			logger.WithFields(logrus.Fields{"pid": os.Getpid(), "version": version.GetInfo().Short()}).Info("Starting API server")
			if err := srv.ListenAndServe(e.cfg.Server.Addr); err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from server.addr)")
	cmd.Flags().StringVar(&mode, "mode", "", "demo, real or disabled (default from server.mode)")

	cmd.AddCommand(newServeStopCmd())
	cmd.AddCommand(newServeStatusCmd())
	return cmd
}

func newServeStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the running API server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			running, pid, err := api.ServerRunning(paths.PidFilePath())
			if err != nil {
				return fmt.Errorf("error checking status: %w", err)
			}
			if !running {
				fmt.Fprintln(cmd.OutOrStdout(), "Server is not running")
				return nil
			}

			process, err := os.FindProcess(pid)
			if err != nil {
				return fmt.Errorf("failed to find process %d: %w", pid, err)
			}
			if err := process.Signal(syscall.SIGTERM); err != nil {
				return fmt.Errorf("failed to send stop signal: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Sent SIGTERM to process %d\n", pid)
			return nil
		},
	}
}

func newServeStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check whether the API server runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			running, pid, err := api.ServerRunning(paths.PidFilePath())
			if err != nil {
				return fmt.Errorf("error: %w", err)
			}
			if !running {
				fmt.Fprintln(cmd.OutOrStdout(), "Stopped")
				// Non-zero for scripts.
				return errReported
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Running (PID: %d)\n", pid)
			return nil
		},
	}
}
