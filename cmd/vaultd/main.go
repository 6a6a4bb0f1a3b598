// vaultd watches a note vault and runs feature handlers over approved notes.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/c360studio/vaultd/config"
	"github.com/c360studio/vaultd/daemon"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "vaultd",
		Short:         "Note vault automation daemon",
		Long:          "vaultd watches a note vault for changes and runs feature handlers\n(transcript extraction, screenshot import, link suggestion, archival)\nover notes their owner has approved for processing.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file")

	root.AddCommand(newRunCmd(&configPath))
	root.AddCommand(newStatusCmd(&configPath))
	root.AddCommand(newInitCmd())
	root.AddCommand(newVersionCmd())

	return root
}

// newRunCmd starts the daemon and blocks until SIGINT or SIGTERM.
func newRunCmd(configPath *string) *cobra.Command {
	var vaultPath string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the daemon in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if vaultPath != "" {
				cfg.Vault.Path = vaultPath
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			logger := newLogger(cfg.Log.Level)
			slog.SetDefault(logger)

			d, err := daemon.New(cfg, version, logger)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := d.Start(); err != nil {
				return err
			}

			<-ctx.Done()
			d.Stop()
			return nil
		},
	}

	cmd.Flags().StringVar(&vaultPath, "vault", "", "vault directory (overrides config)")
	return cmd
}

// newStatusCmd queries a running daemon's health endpoint and prints the report.
func newStatusCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the health of a running daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}

			url := fmt.Sprintf("http://%s/health", cfg.Monitor.Addr())
			client := &http.Client{Timeout: 5 * time.Second}
			resp, err := client.Get(url)
			if err != nil {
				return fmt.Errorf("daemon not reachable at %s: %w", cfg.Monitor.Addr(), err)
			}
			defer resp.Body.Close()

			body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
			if err != nil {
				return fmt.Errorf("read health response: %w", err)
			}

			// Re-indent for the terminal; fall back to raw output if the body
			// is not the JSON we expect.
			var pretty map[string]any
			if err := json.Unmarshal(body, &pretty); err == nil {
				out, _ := json.MarshalIndent(pretty, "", "  ")
				fmt.Fprintln(cmd.OutOrStdout(), string(out))
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), string(body))
			}

			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("daemon unhealthy (HTTP %d)", resp.StatusCode)
			}
			return nil
		},
	}
}

// newInitCmd writes a default user config if none exists.
func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create a default config file at ~/.config/vaultd/config.yaml",
		RunE: func(cmd *cobra.Command, args []string) error {
			loader := config.NewLoader(slog.Default())
			return loader.EnsureUserConfig()
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the vaultd version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "vaultd %s\n", version)
		},
	}
}

func loadConfig(path string) (*config.Config, error) {
	loader := config.NewLoader(slog.Default())
	return loader.Load(path)
}

// newLogger builds the process logger at the configured level.
func newLogger(level string) *slog.Logger {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}
