package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/deepsurf-ai/deepsurf/internal/agent"
	"github.com/deepsurf-ai/deepsurf/internal/browser"
	"github.com/deepsurf-ai/deepsurf/internal/config"
	"github.com/deepsurf-ai/deepsurf/internal/llmclient"
	"github.com/deepsurf-ai/deepsurf/internal/observability"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// The browser session must satisfy the agent's driver contract.
var _ agent.Driver = (*browser.Session)(nil)

// newRunCmd creates and configures the `run` command.
func newRunCmd() *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run [objective]",
		Short: "Runs a browsing task against a target URL",
		Long: `Runs a single browsing task. The objective is decomposed into
checkpoints, then the agent navigates the target site step by step until
the objective is met or the step budget runs out. The task result is
printed to stdout as JSON.`,
		Args: cobra.MinimumNArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			// Bind only the flags the user actually set, so unset flag
			// defaults do not shadow values from the config file.
			bindings := map[string]string{
				"max-steps":   "agent.max_steps",
				"headless":    "browser.headless",
				"reports-dir": "output.reports_dir",
			}
			for flagName, key := range bindings {
				if cmd.Flags().Changed(flagName) {
					if err := viper.BindPFlag(key, cmd.Flags().Lookup(flagName)); err != nil {
						return err
					}
				}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			// Use the context passed from root (signal-aware).
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := config.NewConfigFromViper(viper.GetViper())
			if err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			targetURL, err := cmd.Flags().GetString("url")
			if err != nil {
				return err
			}
			if targetURL == "" {
				return fmt.Errorf("the --url flag is required")
			}
			objective := strings.Join(args, " ")

			router, err := llmclient.NewRouter(cfg.LLM, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize LLM clients: %w", err)
			}
			defer func() {
				if err := router.Close(); err != nil {
					logger.Warn("Failed to close LLM clients", zap.Error(err))
				}
			}()

			manager := browser.NewManager(cfg, logger)
			defer func() {
				// Shutdown gets its own deadline; the command context
				// may already be cancelled by a signal.
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
				defer cancel()
				if err := manager.Shutdown(shutdownCtx); err != nil {
					logger.Warn("Browser shutdown reported errors", zap.Error(err))
				}
			}()

			session, err := manager.NewSession(ctx)
			if err != nil {
				return fmt.Errorf("failed to open a browser session: %w", err)
			}

			runner := agent.NewRunner(session, router, cfg, logger)
			result := runner.Run(ctx, objective, targetURL)

			output, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to encode task result: %w", err)
			}
			fmt.Fprintln(os.Stdout, string(output))

			if !result.Success {
				return fmt.Errorf("task did not complete: %s", result.Error)
			}
			return nil
		},
	}

	runCmd.Flags().StringP("url", "u", "", "target URL to start browsing from (required)")
	runCmd.Flags().Int("max-steps", 0, "maximum number of decision steps (0 uses the configured default)")
	runCmd.Flags().Bool("headless", true, "run the browser headless")
	runCmd.Flags().String("reports-dir", "", "directory for task reports")

	return runCmd
}
