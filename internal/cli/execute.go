package cli

import (
	"github.com/spf13/cobra"

	"github.com/syzygy-germany/crossmedia-fourallportal/internal/engine"
)

// ExecuteOptions holds flags for the execute command.
type ExecuteOptions struct {
	*RootOptions
	Module    string
	Exclude   []string
	MaxEvents int
}

// NewExecuteCommand creates the execute command.
func NewExecuteCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExecuteOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "execute",
		Short: "Execute queued events without polling the remote",
		Long: `Drain the local event log: deferred events whose retry time has elapsed
first, then pending events in remote-event-id order.

Examples:
  fourallportal execute
  fourallportal execute --module products --max-events 50
  fourallportal execute --exclude assets,categories`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExecute(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Module, "module", "", "restrict to one module (module or connector name)")
	cmd.Flags().StringSliceVar(&opts.Exclude, "exclude", nil, "module names to skip")
	cmd.Flags().IntVar(&opts.MaxEvents, "max-events", 0, "stop after processing this many events (0 = unbounded)")

	return cmd
}

func runExecute(cmd *cobra.Command, opts *ExecuteOptions) error {
	ctx := cmd.Context()
	rt, err := openRuntime(ctx, opts.RootOptions, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer rt.Close()

	params := &engine.Params{
		Execute:   true,
		Module:    opts.Module,
		Exclude:   opts.Exclude,
		MaxEvents: opts.MaxEvents,
	}
	return runExitError(rt.eng.Run(ctx, rt.lk, params))
}
