package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/grovetools/remit/cli"
	"github.com/grovetools/remit/logging"
	"github.com/grovetools/remit/pkg/browser"
	"github.com/grovetools/remit/pkg/process"
	"github.com/grovetools/remit/pkg/sessions"
	"github.com/grovetools/remit/tui/components/table"
	"github.com/grovetools/remit/tui/theme"
	"github.com/spf13/cobra"
)

// NewSessionsCmd returns the session record management commands.
func NewSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "sessions",
		Aliases: []string{"session"},
		Short:   "Inspect and clean up transfer sessions",
	}
	cmd.AddCommand(newSessionsListCmd())
	cmd.AddCommand(newSessionsShowCmd())
	cmd.AddCommand(newSessionsDeleteCmd())
	cmd.AddCommand(newSessionsPruneCmd())
	cmd.AddCommand(newSessionsWatchCmd())
	return cmd
}

func newSessionsListCmd() *cobra.Command {
	var patterns []string
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List session records",
		Long: `List session records.

Examples:
  remit sessions list
  remit sessions list --match 'SES17*' --match '!SES1700*'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(cmd)
			if err != nil {
				return err
			}
			recs, err := matchingRecords(e.store, patterns)
			if err != nil {
				return err
			}

			if cli.GetOptions(cmd).JSONOutput {
				redacted := make([]*sessions.Record, 0, len(recs))
				for _, rec := range recs {
					redacted = append(redacted, rec.Redacted())
				}
				return writeJSON(cmd.OutOrStdout(), redacted)
			}
			if len(recs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No sessions")
				return nil
			}

			rows := make([][]string, 0, len(recs))
			for _, rec := range recs {
				rows = append(rows, []string{
					rec.SessionID,
					renderSessionStatus(rec.Status),
					bankName(rec),
					strconv.Itoa(rec.ControlTargetPID),
					aliveMark(rec),
					rec.UpdatedAt.Local().Format(time.DateTime),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), table.Render(
				[]string{"SESSION", "STATUS", "BANK", "PID", "ALIVE", "UPDATED"}, rows))
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&patterns, "match", nil, "Glob on session ids; prefix with ! to exclude")
	return cmd
}

// matchingRecords loads the records whose ids match patterns (all of them
// when patterns is empty). Records removed meanwhile are skipped.
func matchingRecords(store *sessions.Store, patterns []string) ([]*sessions.Record, error) {
	if len(patterns) == 0 {
		return store.List()
	}
	ids, err := store.ListMatching(patterns)
	if err != nil {
		return nil, err
	}
	recs := make([]*sessions.Record, 0, len(ids))
	for _, id := range ids {
		rec, err := store.Get(id)
		if err != nil {
			continue
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

func renderSessionStatus(status sessions.Status) string {
	switch status {
	case sessions.StatusCompleted:
		return theme.RenderStatus("success", string(status))
	case sessions.StatusFailed:
		return theme.RenderStatus("error", string(status))
	case sessions.StatusWaitingOTP:
		return theme.RenderStatus("warning", string(status))
	default:
		return theme.RenderStatus("info", string(status))
	}
}

func bankName(rec *sessions.Record) string {
	if name, ok := rec.BankConfig["name"].(string); ok {
		return name
	}
	return "-"
}

func aliveMark(rec *sessions.Record) string {
	if rec.Status.Terminal() {
		return "-"
	}
	if process.IsProcessAlive(rec.ControlTargetPID) {
		return "yes"
	}
	return theme.RenderStatus("error", "no")
}

func newSessionsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <session-id>",
		Short: "Show a session record without its credentials",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(cmd)
			if err != nil {
				return err
			}
			rec, err := e.store.Get(args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), rec.Redacted())
		},
	}
}

func newSessionsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "delete <session-id>",
		Aliases: []string{"rm", "cancel"},
		Short:   "Cancel a suspended transfer and close its browser",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(cmd)
			if err != nil {
				return err
			}
			eng := e.engine()
			defer eng.Shutdown()
			if err := eng.Cancel(args[0]); err != nil {
				return err
			}
			logging.NewPrettyLogger().WithWriter(cmd.OutOrStdout()).Success("Deleted session " + args[0])
			return nil
		},
	}
}

// pruneOutput is the --json shape of 'sessions prune'.
type pruneOutput struct {
	Expired  []string `json:"expired"`
	Terminal []string `json:"terminal"`
	Orphaned []string `json:"orphaned"`
}

func newSessionsPruneCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Remove finished, expired and orphaned session records",
		Long: `Remove session records that can no longer be resumed:
finished transfers, transfers whose code was not entered in time and
transfers whose browser has exited.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(cmd)
			if err != nil {
				return err
			}
			eng := e.engine()
			defer eng.Shutdown()

			expired, err := eng.ExpireStale()
			if err != nil {
				return err
			}
			report, err := e.store.Prune(process.IsProcessAlive)
			if err != nil {
				return err
			}
			for _, dir := range report.Profiles {
				if err := browser.RemoveProfile(dir); err != nil {
					cli.GetLogger(cmd, "sessions").WithError(err).Warn("Failed to remove browser profile")
				}
			}

			out := pruneOutput{Expired: expired, Terminal: report.Terminal, Orphaned: report.Orphaned}
			if cli.GetOptions(cmd).JSONOutput {
				return writeJSON(cmd.OutOrStdout(), out)
			}
			pretty := logging.NewPrettyLogger().WithWriter(cmd.OutOrStdout())
			pretty.Success(fmt.Sprintf("Pruned %d session(s)", len(expired)+report.Total()))
			pretty.Field("Expired", len(out.Expired))
			pretty.Field("Finished", len(out.Terminal))
			pretty.Field("Orphaned", len(out.Orphaned))
			return nil
		},
	}
}

func newSessionsWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Follow session record changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			jsonOutput := cli.GetOptions(cmd).JSONOutput
			w := cmd.OutOrStdout()
			fmt.Fprintf(cmd.ErrOrStderr(), "Watching %s (Ctrl+C to stop)\n", e.store.Dir())
			return e.store.Watch(ctx, func(ev sessions.Event) {
				if jsonOutput {
					payload := map[string]interface{}{"kind": ev.Kind, "session_id": ev.SessionID}
					if ev.Record != nil {
						payload["record"] = ev.Record.Redacted()
					}
					_ = writeJSON(w, payload)
					return
				}
				stamp := time.Now().Format(time.TimeOnly)
				if ev.Record == nil {
					fmt.Fprintf(w, "%s %s %s\n", stamp, ev.SessionID, theme.RenderStatus("error", "removed"))
					return
				}
				fmt.Fprintf(w, "%s %s %s\n", stamp, ev.SessionID, renderSessionStatus(ev.Record.Status))
			})
		},
	}
}
