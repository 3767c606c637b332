package main

import (
	"fmt"
	"log/slog"

	"github.com/harunnryd/kakunin/cmd/kakunin/runtime"

	"github.com/harunnryd/kakunin/internal/daemon"
	"github.com/harunnryd/kakunin/internal/daemon/components"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the confirmation API over HTTP",
	Long:  `Starts the long-running API daemon. Sessions are persisted in the workspace and restored on restart.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		workspaceID := runtime.ResolveWorkspaceID(cmd)
		forceClean, _ := cmd.Flags().GetBool("force-clean-locks")

		if cfg == nil {
			return fmt.Errorf("config not loaded")
		}

		daemonMgr, err := daemon.NewDaemon(workspaceID, cfg)
		if err != nil {
			return fmt.Errorf("failed to create daemon manager: %w", err)
		}
		daemonMgr.SetForceCleanup(forceClean)

		runtimeComp := runtime.NewDaemonRuntimeComponent(workspaceID, cfg, version)
		httpComp := components.NewHTTPServerComponent(daemonMgr, runtimeComp, &cfg.Server)

		daemonMgr.AddComponent(runtimeComp)
		daemonMgr.AddComponent(httpComp)

		if err := daemonMgr.Start(commandContext(cmd)); err != nil {
			return fmt.Errorf("daemon failed: %w", err)
		}

		slog.Info("Kakunin daemon stopped gracefully", "workspace", workspaceID)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("workspace", "w", "", "Target workspace ID")
	serveCmd.Flags().Bool("force-clean-locks", false, "Force cleanup of stale lock files (default: warn-only)")
}
