package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/syzygy-germany/crossmedia-fourallportal/internal/mapping"
	"github.com/syzygy-germany/crossmedia-fourallportal/internal/model"
	"github.com/syzygy-germany/crossmedia-fourallportal/internal/portal"
)

// ExecutePhase drains the event log: first all deferred events whose retry
// time has elapsed, then all pending events in remote-event-id order. The
// budget is checked before each event so a bounded run stops cleanly.
//
// Deferred retries do not advance the processed-watermark; pending events
// do. Either way the watermark is max-merged, never lowered.
func (e *Engine) ExecutePhase(ctx context.Context, p *Params) error {
	deferred, err := e.store.DeferredEvents(ctx)
	if err != nil {
		return err
	}
	now := e.clock.Now().Unix()
	for _, ev := range deferred {
		if !p.ShouldContinue() {
			return nil
		}
		mod, ok := e.eligibleModule(ctx, p, ev, "EXECUTE")
		if !ok {
			continue
		}
		if ev.NextRetry >= now {
			continue
		}
		e.processEvent(ctx, ev, mod, false)
		p.CountExecutedEvent()
	}

	pending, err := e.store.EventsByStatus(ctx, model.StatusPending)
	if err != nil {
		return err
	}
	for _, ev := range pending {
		if !p.ShouldContinue() {
			return nil
		}
		mod, ok := e.eligibleModule(ctx, p, ev, "EXECUTE")
		if !ok {
			continue
		}
		e.processEvent(ctx, ev, mod, true)
		p.CountExecutedEvent()
	}
	return nil
}

// eligibleModule applies the per-event skip rules: module selection and
// exclusion, inactive server, schema mismatch. Skipped events are left
// untouched for a later run; server and schema problems are reported.
func (e *Engine) eligibleModule(ctx context.Context, p *Params, ev *model.Event, phase string) (*model.Module, bool) {
	mod := e.reg.Module(ev.ModuleID)
	if mod == nil {
		e.logProblem(fmt.Errorf("event %d references unknown module %d", ev.EventID, ev.ModuleID))
		return nil, false
	}
	if !mod.Matches(p.Module) || mod.Excluded(p.Exclude) {
		return nil, false
	}
	if !mod.Server.Active {
		e.logProblem(&InactiveServerError{EventID: ev.EventID, Domain: mod.Server.Domain})
		return nil, false
	}
	if err := e.verifySchema(ctx, mod, phase); err != nil {
		e.logProblem(err)
		return nil, false
	}
	return mod, true
}

// processEvent runs one event through the mapper and applies the outcome
// state machine. The event's new state and its last-attempt diagnostics
// are persisted before returning, so a crash between events loses no
// progress. An in-flight event always completes once started.
func (e *Engine) processEvent(ctx context.Context, ev *model.Event, mod *model.Module, updateWatermark bool) {
	e.statusf("Processing %s event %q - %s %s",
		ev.Status, fmt.Sprintf("%s:%d", mod.ModuleName, ev.EventID), ev.EventType, ev.ObjectID)

	client, err := e.pool.ClientFor(ctx, mod.Server)
	if err != nil {
		// Transport setup failure: leave the event untouched for a later
		// run, other events continue.
		e.logProblem(err)
		return
	}

	data, err := e.resolvePayload(ctx, client, ev, mod)
	if err != nil {
		// A fatal error must not cause infinite reprocessing: the
		// watermark still advances when the caller opted in.
		e.logProblem(err)
		ev.Status = model.StatusFailed
		ev.Retries = 0
		ev.Message = err.Error()
		if updateWatermark && ev.EventID > mod.LastProcessedEventID {
			mod.LastProcessedEventID = ev.EventID
		}
		e.finishEvent(ctx, client, ev, mod, updateWatermark)
		return
	}

	// Max-merge the watermark before import so a deferred event being
	// retried later cannot regress it below what newer events already
	// advanced it to.
	if updateWatermark && ev.EventID > mod.LastProcessedEventID {
		mod.LastProcessedEventID = ev.EventID
	}

	mapper := e.mappers[mod.ID]
	outcome := mapper.Import(ctx, data, ev, mod)
	switch outcome.Kind {
	case mapping.OutcomeOK:
		ev.Retries = 0
		ev.Status = model.StatusClaimed
		ev.Message = "Successfully executed - no additional output available"

	case mapping.OutcomePartial:
		// Partial application is not success: defer and retry.
		e.deferEvent(ev, "property mapping problems occurred and have been logged: "+outcome.Reason)

	case mapping.OutcomeRecoverable:
		e.deferEvent(ev, outcome.Reason)

	case mapping.OutcomeFatal:
		e.logProblem(fmt.Errorf("event %d: %s", ev.EventID, outcome.Reason))
		ev.Status = model.StatusFailed
		ev.Retries = 0
		ev.Message = outcome.Reason
	}

	e.finishEvent(ctx, client, ev, mod, updateWatermark)
}

// deferEvent applies the deferral state machine: bump retries, compute the
// jittered linear backoff, assign the TTL on first deferral, abandon the
// event as failed when the TTL has passed and it still cannot resolve.
func (e *Engine) deferEvent(ev *model.Event, reason string) {
	now := e.clock.Now()
	skippedUntil := ev.SkipUntil

	ev.Message = reason
	ev.Status = model.StatusDeferred
	ev.Retries++
	ev.NextRetry = nextRetryAt(now, ev.Retries, e.jitter(jitterSpread)).Unix()

	if skippedUntil == 0 {
		ev.SkipUntil = now.Add(e.ttl).Unix()
	} else if skippedUntil < now.Unix() {
		// Deferred too long and still failing. Reset the TTL so deferral
		// is allowed again should the event be replayed manually.
		ev.SkipUntil = 0
		ev.Retries = 0
		ev.Status = model.StatusFailed
	}
}

// resolvePayload produces the mapper input: nothing for deletes, the
// inline bean payload when the event carries one, otherwise a remote
// fetch by object id.
func (e *Engine) resolvePayload(ctx context.Context, client portal.Client, ev *model.Event, mod *model.Module) (*portal.BeanResponse, error) {
	if ev.EventType == model.EventDelete {
		return nil, nil
	}
	if len(ev.BeanData) > 0 {
		var properties map[string]any
		if err := json.Unmarshal(ev.BeanData, &properties); err != nil {
			return nil, fmt.Errorf("decode inline bean data of event %d: %w", ev.EventID, err)
		}
		return &portal.BeanResponse{
			Result: []portal.Bean{{ObjectID: ev.ObjectID, Properties: properties}},
		}, nil
	}
	return client.GetBeans(ctx, []string{ev.ObjectID}, mod.ConnectorName)
}

// finishEvent persists the last-attempt diagnostics and the event's new
// state, plus the module watermark when it moved.
func (e *Engine) finishEvent(ctx context.Context, client portal.Client, ev *model.Event, mod *model.Module, updateWatermark bool) {
	meta := client.LastResponse()
	ev.Headers = meta.Headers
	ev.URL = meta.URL
	ev.Response = meta.Response
	ev.Payload = meta.Payload

	if err := e.store.UpdateEvent(ctx, ev); err != nil {
		e.logProblem(err)
	}
	if updateWatermark {
		if err := e.store.SaveModule(ctx, mod); err != nil {
			e.logProblem(err)
		}
	}
}
