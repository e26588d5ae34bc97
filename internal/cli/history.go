package cli

import (
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"slices"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nikhilbhutani/historyhub/internal/app"
	"github.com/nikhilbhutani/historyhub/internal/audit"
	"github.com/nikhilbhutani/historyhub/internal/history"
)

func newHistoryCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Read, patch or clear the history record",
	}
	cmd.AddCommand(newHistoryGetCommand(opts))
	cmd.AddCommand(newHistorySetCommand(opts))
	cmd.AddCommand(newHistoryClearCommand(opts))
	cmd.AddCommand(newHistoryLogCommand(opts))
	return cmd
}

// withApp opens the configured backends for the duration of fn.
func withApp(cmd *cobra.Command, opts *RootOptions, fn func(a *app.App) error) error {
	a, err := app.New(cmd.Context(), opts.cfg, opts.logger)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func newHistoryGetCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get",
		Short: "Print the current record",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(a *app.App) error {
				snap := a.History.Read(cmd.Context())
				if opts.Format == "json" {
					return printJSON(cmd.OutOrStdout(), snap)
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "state:     %s\n", snap.State)
				fmt.Fprintf(out, "documents: %d\n", len(snap.Record.Documents))
				fmt.Fprintf(out, "clips:     %d\n", len(snap.Record.Clips))
				fmt.Fprintf(out, "events:    %d\n", len(snap.Record.Events))
				for _, k := range slices.Sorted(maps.Keys(snap.Record.Extensions)) {
					fmt.Fprintf(out, "%s: %s\n", k, snap.Record.Extensions[k])
				}
				if snap.Err != nil {
					fmt.Fprintf(out, "error:     %v\n", snap.Err)
				}
				return nil
			})
		},
	}
}

func newHistorySetCommand(opts *RootOptions) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "set [patch-json]",
		Short: "Shallow-merge a JSON object into the record",
		Example: `  historyctl history set '{"documents":[{"id":"d1"}]}'
  historyctl history set --file patch.json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var raw []byte
			switch {
			case file != "" && len(args) > 0:
				return fmt.Errorf("pass the patch as an argument or with --file, not both")
			case file != "":
				data, err := os.ReadFile(file)
				if err != nil {
					return fmt.Errorf("read patch file: %w", err)
				}
				raw = data
			case len(args) == 1:
				raw = []byte(args[0])
			default:
				return fmt.Errorf("a patch is required")
			}

			var body map[string]json.RawMessage
			if err := json.Unmarshal(raw, &body); err != nil || body == nil {
				return fmt.Errorf("patch must be a JSON object")
			}
			patch := make(history.Patch, len(body))
			for k, v := range body {
				patch[k] = v
			}

			return withApp(cmd, opts, func(a *app.App) error {
				rec, err := a.History.Write(cmd.Context(), patch)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), rec)
			})
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "read the patch from a file")
	return cmd
}

func newHistoryClearCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete the record",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(a *app.App) error {
				if err := a.History.Clear(cmd.Context()); err != nil {
					return err
				}
				if opts.Format == "text" {
					fmt.Fprintln(cmd.OutOrStdout(), "history cleared")
				}
				return nil
			})
		},
	}
}

func newHistoryLogCommand(opts *RootOptions) *cobra.Command {
	var event string
	var since time.Duration
	var limit int

	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show recorded history events (requires AUDIT_ENABLED)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(a *app.App) error {
				if a.Audit == nil {
					return fmt.Errorf("audit log not enabled, set AUDIT_ENABLED=true")
				}

				q := audit.Query{Event: event, Limit: limit}
				if since > 0 {
					t := time.Now().Add(-since)
					q.Since = &t
				}
				entries, err := a.Audit.List(cmd.Context(), q)
				if err != nil {
					return err
				}

				if opts.Format == "json" {
					return printJSON(cmd.OutOrStdout(), entries)
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "EMITTED\tEVENT\tID\tBYTES")
				for _, e := range entries {
					fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", e.EmittedAt.Format(time.RFC3339), e.Event, e.ID, len(e.Payload))
				}
				return w.Flush()
			})
		},
	}

	cmd.Flags().StringVar(&event, "event", "", "only this event name")
	cmd.Flags().DurationVar(&since, "since", 0, "only events newer than this (e.g. 24h)")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum entries")
	return cmd
}
