package main

import (
	"fmt"

	"github.com/harunnryd/kakunin/internal/dialog"
	"github.com/harunnryd/kakunin/internal/render"
	"github.com/harunnryd/kakunin/internal/store"

	"github.com/spf13/cobra"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage sessions",
	Long:  `List, inspect and delete confirmation sessions stored in the workspace.`,
}

var sessionLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		return executeWithStore(cmd, func(w *store.Worker) error {
			sessions, err := w.ListSessions()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(sessions) == 0 {
				fmt.Fprintln(out, "No sessions found.")
				fmt.Fprintln(out, "\nRun 'kakunin confirm' to create your first session.")
				return nil
			}
			fmt.Fprintln(out, render.NewTableFormatter().FormatSessions(sessions))
			fmt.Fprintf(out, "\nTotal: %d session(s)\n", len(sessions))
			return nil
		})
	},
}

var sessionShowCmd = &cobra.Command{
	Use:   "show [id]",
	Short: "Show a session and its transcript",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		return executeWithStore(cmd, func(w *store.Worker) error {
			meta, err := w.GetSession(args[0])
			if err != nil {
				return err
			}
			entries, err := w.ReadTranscript(args[0], limit)
			if err != nil {
				return err
			}

			f := render.NewTableFormatter()
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, f.FormatSession(*meta))
			fmt.Fprintln(out, f.FormatTurns(transcriptTurns(entries)))
			return nil
		})
	},
}

var sessionRmCmd = &cobra.Command{
	Use:     "rm [id]",
	Aliases: []string{"reset"},
	Short:   "Delete a session",
	Long:    `Delete a session's index entry, snapshot and transcript.`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return executeWithStore(cmd, func(w *store.Worker) error {
			if err := w.DeleteSession(args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), render.Success(fmt.Sprintf("Session '%s' deleted.", args[0])))
			return nil
		})
	},
}

func transcriptTurns(entries []store.TranscriptEntry) []dialog.Turn {
	turns := make([]dialog.Turn, len(entries))
	for i, e := range entries {
		turns[i] = dialog.Turn{
			ID:             e.Turn,
			UserInput:      e.UserInput,
			SystemResponse: e.SystemResponse,
			StateBefore:    dialog.State(e.StateBefore),
			StateAfter:     dialog.State(e.StateAfter),
			Timestamp:      e.Timestamp,
		}
	}
	return turns
}

func init() {
	sessionShowCmd.Flags().Int("limit", 0, "Show only the last N turns (0 for all)")
	sessionCmd.AddCommand(sessionLsCmd)
	sessionCmd.AddCommand(sessionShowCmd)
	sessionCmd.AddCommand(sessionRmCmd)
	sessionCmd.PersistentFlags().StringP("workspace", "w", "", "Target workspace ID")
	rootCmd.AddCommand(sessionCmd)
}
