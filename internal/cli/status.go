package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/syzygy-germany/crossmedia-fourallportal/internal/store"
)

// StatusOptions holds flags for the status command.
type StatusOptions struct {
	*RootOptions
	Module string
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StatusOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show per-module watermarks and event log counts",
		Long: `Report each configured module with its received and processed
watermarks and the number of pending, deferred, claimed and failed events.

Examples:
  fourallportal status
  fourallportal status --module products`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Module, "module", "", "restrict to one module (module or connector name)")

	return cmd
}

func runStatus(cmd *cobra.Command, opts *StatusOptions) error {
	ctx := cmd.Context()
	rt, err := openRuntime(ctx, opts.RootOptions, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer rt.Close()

	counts, err := rt.st.CountEventsByStatus(ctx)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to summarise event log", err)
	}

	printStatus(cmd.OutOrStdout(), rt.reg, opts.Module, counts)
	return nil
}

func printStatus(w io.Writer, reg *store.Registry, filter string, counts []store.EventStatusCount) {
	byModule := make(map[int64][]store.EventStatusCount)
	for _, c := range counts {
		byModule[c.ModuleID] = append(byModule[c.ModuleID], c)
	}

	modules := reg.ActiveModules(filter)
	if len(modules) == 0 {
		fmt.Fprintln(w, "No active modules configured.")
		return
	}

	for _, mod := range modules {
		name := mod.ModuleName
		if name == "" {
			name = mod.ConnectorName
		}
		fmt.Fprintf(w, "Module %q (connector %q) on %s\n", name, mod.ConnectorName, mod.Server.Domain)
		fmt.Fprintf(w, "  Last received event:  %d\n", mod.LastReceivedEventID)
		fmt.Fprintf(w, "  Last processed event: %d\n", mod.LastProcessedEventID)
		if rows := byModule[mod.ID]; len(rows) > 0 {
			for _, c := range rows {
				fmt.Fprintf(w, "  %-8s %d\n", c.Status, c.Count)
			}
		} else {
			fmt.Fprintln(w, "  Event log empty.")
		}
		fmt.Fprintln(w)
	}
}
