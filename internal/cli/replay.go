package cli

import (
	"github.com/spf13/cobra"

	"github.com/syzygy-germany/crossmedia-fourallportal/internal/engine"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Events   int
	Module   string
	ObjectID string
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Reset recent events to pending and re-execute them",
		Long: `Reset the most recent events back to pending and run them through the
mapper again, optionally restricted to one module and one object id.

By default only the last event per selected module is replayed. Replaying
a claimed event with identical remote data yields the same local state.

Examples:
  fourallportal replay
  fourallportal replay --events 10 --module products
  fourallportal replay --object-id A-1093 --module products`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(cmd, opts)
		},
	}

	cmd.Flags().IntVar(&opts.Events, "events", 1, "number of recent events to replay per module")
	cmd.Flags().StringVar(&opts.Module, "module", "", "restrict to one module (module or connector name)")
	cmd.Flags().StringVar(&opts.ObjectID, "object-id", "", "restrict to one remote object id")

	return cmd
}

func runReplay(cmd *cobra.Command, opts *ReplayOptions) error {
	ctx := cmd.Context()
	rt, err := openRuntime(ctx, opts.RootOptions, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer rt.Close()

	params := &engine.Params{Module: opts.Module}
	return runExitError(rt.eng.Replay(ctx, rt.lk, params, opts.ObjectID, opts.Events))
}
