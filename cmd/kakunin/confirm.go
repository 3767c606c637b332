package main

import (
	"strings"

	"github.com/harunnryd/kakunin/cmd/kakunin/runtime"

	"github.com/spf13/cobra"
)

var confirmCmd = &cobra.Command{
	Use:   "confirm [requirement...]",
	Short: "Confirm a requirement interactively",
	Long: `Parses the requirement, asks the confirmation questions and lets you modify,
approve or cancel the result. Without arguments the requirement is prompted for.
Sessions are saved in the workspace and can be resumed with --session.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		sessionID, _ := cmd.Flags().GetString("session")
		title, _ := cmd.Flags().GetString("title")
		noSave, _ := cmd.Flags().GetBool("no-save")
		requirement := strings.TrimSpace(strings.Join(args, " "))

		signals := NewSignalHandler(commandContext(cmd), cmd.ErrOrStderr())
		signals.Start()
		defer signals.Stop()

		return executeWithRuntime(signals.Context(), cmd, !noSave, func(r *runtime.RuntimeComponents) error {
			repl := runtime.NewREPL(r, runtime.NewHuhPrompter(), cmd.OutOrStdout())
			if err := repl.Open(signals.Context(), sessionID, title); err != nil {
				return err
			}
			return repl.Run(signals.Context(), requirement)
		})
	},
}

func init() {
	rootCmd.AddCommand(confirmCmd)
	confirmCmd.Flags().StringP("workspace", "w", "", "Target workspace ID")
	confirmCmd.Flags().StringP("session", "s", "", "Resume an existing session")
	confirmCmd.Flags().String("title", "", "Session title (defaults to the parsed summary)")
	confirmCmd.Flags().Bool("no-save", false, "Keep the session in memory only")
}
