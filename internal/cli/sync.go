package cli

import (
	"github.com/spf13/cobra"

	"github.com/syzygy-germany/crossmedia-fourallportal/internal/engine"
)

// SyncOptions holds flags for the sync command.
type SyncOptions struct {
	*RootOptions
	Full      bool
	Module    string
	Exclude   []string
	MaxEvents int
	SyncOnly  bool
}

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SyncOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Pull remote change events and execute them",
		Long: `Poll the remote change-event feed for every active module, queue new
events in the local log and execute the queued events.

Exit codes:
  0 - Run completed
  1 - Fatal error aborted the run
  2 - Command error (bad config, database not found)
  3 - Another run holds the lock

Examples:
  fourallportal sync --config ./fourallportal.yaml
  fourallportal sync --full
  fourallportal sync --module products --max-events 200`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.Full, "full", false, "full resync: reset watermarks and discard queued events first")
	cmd.Flags().StringVar(&opts.Module, "module", "", "restrict to one module (module or connector name)")
	cmd.Flags().StringSliceVar(&opts.Exclude, "exclude", nil, "module names to skip")
	cmd.Flags().IntVar(&opts.MaxEvents, "max-events", 0, "stop after processing this many events (0 = unbounded)")
	cmd.Flags().BoolVar(&opts.SyncOnly, "sync-only", false, "queue events without executing them")

	return cmd
}

func runSync(cmd *cobra.Command, opts *SyncOptions) error {
	ctx := cmd.Context()
	rt, err := openRuntime(ctx, opts.RootOptions, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer rt.Close()

	params := &engine.Params{
		Sync:      true,
		Execute:   !opts.SyncOnly,
		FullSync:  opts.Full,
		Module:    opts.Module,
		Exclude:   opts.Exclude,
		MaxEvents: opts.MaxEvents,
	}
	return runExitError(rt.eng.Run(ctx, rt.lk, params))
}
