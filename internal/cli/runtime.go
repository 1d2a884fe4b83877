package cli

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/syzygy-germany/crossmedia-fourallportal/internal/config"
	"github.com/syzygy-germany/crossmedia-fourallportal/internal/engine"
	"github.com/syzygy-germany/crossmedia-fourallportal/internal/lock"
	"github.com/syzygy-germany/crossmedia-fourallportal/internal/mapping"
	"github.com/syzygy-germany/crossmedia-fourallportal/internal/portal"
	"github.com/syzygy-germany/crossmedia-fourallportal/internal/store"
)

// runtime bundles the collaborators every command needs: configuration,
// store, registry, engine and the run lock.
type runtime struct {
	cfg *config.Config
	st  *store.Store
	reg *store.Registry
	eng *engine.Engine
	lk  *lock.Manager
}

// openRuntime loads the configuration, opens the store, seeds and loads
// the registry and builds the engine. out receives the line-oriented
// status stream.
func openRuntime(ctx context.Context, opts *RootOptions, out io.Writer) (*runtime, error) {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}

	st, err := store.Open(cfg.Database)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	if err := st.SeedRegistry(ctx, cfg); err != nil {
		st.Close()
		return nil, WrapExitError(ExitCommandError, "failed to seed registry", err)
	}
	reg, err := st.LoadRegistry(ctx)
	if err != nil {
		st.Close()
		return nil, WrapExitError(ExitCommandError, "failed to load registry", err)
	}

	pool := portal.NewPool(nil)
	eng, err := engine.New(st, reg, pool,
		mapping.Deps{Store: st, Pool: pool, StorageRoot: cfg.StorageRoot},
		engine.WithTTL(cfg.DeferralTTL()),
		engine.WithOutput(out),
	)
	if err != nil {
		st.Close()
		return nil, WrapExitError(ExitCommandError, "failed to build engine", err)
	}

	return &runtime{
		cfg: cfg,
		st:  st,
		reg: reg,
		eng: eng,
		lk:  lock.New(cfg.LockPath, st),
	}, nil
}

func (r *runtime) Close() {
	if err := r.st.Close(); err != nil {
		slog.Error("error closing database", "error", err)
	}
}

// runExitError converts an engine run error into an exit-coded error.
// Lock contention conveys "already running" without being a fault.
func runExitError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, lock.ErrHeld) {
		return WrapExitError(ExitLockHeld, "cannot acquire lock - another run is active", err)
	}
	return WrapExitError(ExitFailure, "run aborted", err)
}
