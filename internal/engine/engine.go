package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/syzygy-germany/crossmedia-fourallportal/internal/lock"
	"github.com/syzygy-germany/crossmedia-fourallportal/internal/mapping"
	"github.com/syzygy-germany/crossmedia-fourallportal/internal/model"
	"github.com/syzygy-germany/crossmedia-fourallportal/internal/portal"
	"github.com/syzygy-germany/crossmedia-fourallportal/internal/store"
)

// Engine drives the two phases of the pipeline: sync pulls remote change
// events into the local event log, execute replays them through the
// per-module mappers.
//
// All work within a run is strictly sequential; the run lock guarantees a
// single lock-holding run mutates the event log and watermarks at a time.
type Engine struct {
	store *store.Store
	reg   *store.Registry
	pool  *portal.Pool

	mappers map[int64]mapping.Mapper
	configs map[int64]*portal.ConnectorConfig

	ttl    time.Duration
	clock  Clock
	jitter func(spread int) int
	out    io.Writer
}

// Option configures an Engine.
type Option func(*Engine)

// WithTTL overrides the deferral TTL.
func WithTTL(ttl time.Duration) Option {
	return func(e *Engine) { e.ttl = ttl }
}

// WithClock injects a time source. Used in tests.
func WithClock(c Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithJitter injects the retry jitter source. The function receives the
// spread in seconds and returns a value in [-spread, spread]. Used in
// tests to make the backoff deterministic.
func WithJitter(jitter func(spread int) int) Option {
	return func(e *Engine) { e.jitter = jitter }
}

// WithOutput sets the line-oriented status stream.
func WithOutput(w io.Writer) Option {
	return func(e *Engine) { e.out = w }
}

// New creates an engine over the given store, registry and client pool.
// Each module's mapper is resolved once, here.
func New(st *store.Store, reg *store.Registry, pool *portal.Pool, deps mapping.Deps, opts ...Option) (*Engine, error) {
	e := &Engine{
		store:   st,
		reg:     reg,
		pool:    pool,
		mappers: make(map[int64]mapping.Mapper),
		configs: make(map[int64]*portal.ConnectorConfig),
		ttl:     86400 * time.Second,
		clock:   systemClock{},
		jitter: func(spread int) int {
			return rand.Intn(2*spread+1) - spread
		},
		out: io.Discard,
	}
	for _, opt := range opts {
		opt(e)
	}

	for _, mod := range reg.ActiveModules("") {
		mapper, err := mapping.Resolve(mod.MapperName, deps)
		if err != nil {
			return nil, fmt.Errorf("module %q: %w", mod.ConnectorName, err)
		}
		e.mappers[mod.ID] = mapper
	}
	return e, nil
}

// Run acquires the run lock, performs the requested phases and releases
// the lock. Lock contention is returned as lock.ErrHeld; the caller exits
// cleanly with a non-zero status conveying "already running".
func (e *Engine) Run(ctx context.Context, lk *lock.Manager, p *Params) error {
	runToken := uuid.NewString()
	if err := lk.Acquire(runToken); err != nil {
		return err
	}
	defer func() {
		if _, err := lk.Release(ctx, 0); err != nil {
			slog.Error("releasing run lock failed", "error", err)
		}
	}()

	if err := e.store.BeginRun(ctx, runToken, e.clock.Now()); err != nil {
		return err
	}
	slog.Info("run started", "run", runToken, "sync", p.Sync, "execute", p.Execute)

	if p.Sync {
		if err := e.SyncPhase(ctx, p); err != nil {
			return err
		}
	}
	if p.Execute {
		if err := e.ExecutePhase(ctx, p); err != nil {
			return err
		}
	}

	if err := e.store.FinishRun(ctx, runToken, e.clock.Now()); err != nil {
		return err
	}
	slog.Info("run finished", "run", runToken, "executed", p.Executed())
	return nil
}

// Replay resets the most recent events of the selected modules back to
// pending and immediately processes them, under the run lock. Optionally
// restricted to a single object id.
func (e *Engine) Replay(ctx context.Context, lk *lock.Manager, p *Params, objectID string, count int) error {
	runToken := uuid.NewString()
	if err := lk.Acquire(runToken); err != nil {
		return err
	}
	defer func() {
		if _, err := lk.Release(ctx, 0); err != nil {
			slog.Error("releasing run lock failed", "error", err)
		}
	}()

	if count <= 0 {
		count = 1
	}
	for _, mod := range e.reg.ActiveModules(p.Module) {
		events, err := e.store.RecentEvents(ctx, mod.ID, objectID, count)
		if err != nil {
			return err
		}
		for _, ev := range events {
			ev.Status = model.StatusPending
			if err := e.store.UpdateEvent(ctx, ev); err != nil {
				return err
			}
			e.processEvent(ctx, ev, mod, true)
		}
	}
	return nil
}

// verifySchema checks the module's expected config hash against the remote
// fingerprint. The remote connector configuration is fetched at most once
// per run per module; it also carries the lazily resolved module name.
func (e *Engine) verifySchema(ctx context.Context, mod *model.Module, phase string) error {
	cfg, err := e.connectorConfig(ctx, mod)
	if err != nil {
		return err
	}
	// An empty local hash means no expectation has been configured yet.
	if mod.ConfigHash != "" && cfg.ModuleConfig.ConfigHash != mod.ConfigHash {
		return &SchemaMismatchError{
			ModuleName: mod.ModuleName,
			RemoteHash: cfg.ModuleConfig.ConfigHash,
			LocalHash:  mod.ConfigHash,
			Phase:      phase,
		}
	}
	return nil
}

func (e *Engine) connectorConfig(ctx context.Context, mod *model.Module) (*portal.ConnectorConfig, error) {
	if cfg, ok := e.configs[mod.ID]; ok {
		return cfg, nil
	}
	client, err := e.pool.ClientFor(ctx, mod.Server)
	if err != nil {
		return nil, err
	}
	cfg, err := client.GetConnectorConfig(ctx, mod.ConnectorName)
	if err != nil {
		return nil, err
	}
	e.configs[mod.ID] = cfg
	return cfg, nil
}

// resolveModuleName fills in the module name from the remote connector
// configuration on first use and persists it.
func (e *Engine) resolveModuleName(ctx context.Context, mod *model.Module) error {
	if mod.ModuleName != "" {
		return nil
	}
	cfg, err := e.connectorConfig(ctx, mod)
	if err != nil {
		return err
	}
	mod.ModuleName = cfg.ModuleConfig.ModuleName
	return e.store.SaveModule(ctx, mod)
}

// logProblem reports a non-fatal problem: logged and written to the status
// stream, never aborting the run.
func (e *Engine) logProblem(err error) {
	slog.Error("problem", "error", err)
	fmt.Fprintln(e.out, err.Error())
}

func (e *Engine) statusf(format string, args ...any) {
	fmt.Fprintf(e.out, format+"\n", args...)
}
