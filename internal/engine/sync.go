package engine

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/syzygy-germany/crossmedia-fourallportal/internal/model"
	"github.com/syzygy-germany/crossmedia-fourallportal/internal/portal"
)

// SyncPhase polls the remote change-event feed for each selected module
// and appends new pending events to the local log.
//
// Per module: the schema fingerprint is verified, the module name resolved
// if not yet cached, a requested full resync resets the received-watermark
// and discards queued events, then the feed is drained. Within the batch
// only the highest event id per object id survives; stale deferred events
// for a surfaced object id are removed, since the newer remote state
// supersedes them.
//
// API errors abort sync for the affected module only.
func (e *Engine) SyncPhase(ctx context.Context, p *Params) error {
	deferredIndex, err := e.deferredByModuleAndObject(ctx)
	if err != nil {
		return err
	}

	for _, mod := range e.reg.ActiveModules(p.Module) {
		if err := e.syncModule(ctx, p, mod, deferredIndex[mod.ID]); err != nil {
			e.logProblem(err)
		}
	}
	return nil
}

func (e *Engine) syncModule(ctx context.Context, p *Params, mod *model.Module, deferred map[string][]*model.Event) error {
	if err := e.verifySchema(ctx, mod, "SYNC"); err != nil {
		return err
	}
	if err := e.resolveModuleName(ctx, mod); err != nil {
		return err
	}
	if mod.Excluded(p.Exclude) {
		return nil
	}

	if p.FullSync && mod.LastReceivedEventID > 0 {
		mod.LastReceivedEventID = 0
		if err := e.store.RemoveEventsForModule(ctx, mod.ID); err != nil {
			return err
		}
		if err := e.store.SaveModule(ctx, mod); err != nil {
			return err
		}
		e.statusf("Full resync requested for module %q - event log cleared", mod.ModuleName)
	}

	client, err := e.pool.ClientFor(ctx, mod.Server)
	if err != nil {
		return err
	}

	results, err := e.readAllPendingEvents(ctx, client, mod.ConnectorName, mod.LastReceivedEventID)
	if err != nil {
		return err
	}

	// Keep only the highest event id per object id. Results arrive in
	// feed order, so a later entry for the same object supersedes the
	// earlier one.
	queued := make(map[string]portal.RemoteEvent)
	var lastEventID int64
	for _, result := range results {
		e.statusf("Receiving event ID %d from connector %q", result.ID, mod.ConnectorName)
		if prev, ok := queued[result.ObjectID]; ok {
			e.statusf("** Ignoring duplicate older event: %d", prev.ID)
		}
		for _, stale := range deferred[result.ObjectID] {
			if err := e.store.RemoveEvent(ctx, stale.ID); err != nil {
				return err
			}
			e.statusf("** Removing older deferred event: %d", stale.EventID)
		}
		delete(deferred, result.ObjectID)
		if result.ID > lastEventID {
			lastEventID = result.ID
		}
		queued[result.ObjectID] = result
	}

	for _, result := range sortedByEventID(queued) {
		if err := e.queueEvent(ctx, mod, result); err != nil {
			e.logProblem(err)
		}
	}

	if lastEventID > 0 {
		mod.LastReceivedEventID = lastEventID
		if err := e.store.SaveModule(ctx, mod); err != nil {
			return err
		}
	}
	return nil
}

// readAllPendingEvents drains the feed starting at the watermark until an
// empty page or a repeated event id. The repetition guard makes
// termination independent of the remote's paging correctness.
func (e *Engine) readAllPendingEvents(ctx context.Context, client portal.Client, connectorName string, sinceEventID int64) ([]portal.RemoteEvent, error) {
	seen := make(map[int64]bool)
	var all []portal.RemoteEvent

	for {
		page, err := client.GetEvents(ctx, connectorName, sinceEventID)
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			return all, nil
		}
		for _, ev := range page {
			if seen[ev.ID] {
				return all, nil
			}
			seen[ev.ID] = true
			sinceEventID = ev.ID
			all = append(all, ev)
		}
	}
}

func (e *Engine) queueEvent(ctx context.Context, mod *model.Module, result portal.RemoteEvent) error {
	eventType, err := model.ResolveEventType(result.EventType)
	if err != nil {
		return err
	}

	ev := &model.Event{
		ModuleID:  mod.ID,
		EventID:   result.ID,
		ObjectID:  result.ObjectID,
		EventType: eventType,
		Status:    model.StatusPending,
	}
	if len(result.BeanData) > 0 {
		// The triggering payload is already known - store it inline so
		// execution can skip the redundant remote fetch.
		data, err := json.Marshal(result.BeanData)
		if err != nil {
			return err
		}
		ev.BeanData = data
	}
	return e.store.AppendEvent(ctx, ev)
}

func (e *Engine) deferredByModuleAndObject(ctx context.Context) (map[int64]map[string][]*model.Event, error) {
	deferred, err := e.store.DeferredEvents(ctx)
	if err != nil {
		return nil, err
	}
	index := make(map[int64]map[string][]*model.Event)
	for _, ev := range deferred {
		byObject := index[ev.ModuleID]
		if byObject == nil {
			byObject = make(map[string][]*model.Event)
			index[ev.ModuleID] = byObject
		}
		byObject[ev.ObjectID] = append(byObject[ev.ObjectID], ev)
	}
	return index, nil
}

func sortedByEventID(queued map[string]portal.RemoteEvent) []portal.RemoteEvent {
	results := make([]portal.RemoteEvent, 0, len(queued))
	for _, result := range queued {
		results = append(results, result)
	}
	sort.Slice(results, func(i, j int) bool { return results[i].ID < results[j].ID })
	return results
}
