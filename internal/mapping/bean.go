package mapping

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/syzygy-germany/crossmedia-fourallportal/internal/model"
	"github.com/syzygy-germany/crossmedia-fourallportal/internal/portal"
	"github.com/syzygy-germany/crossmedia-fourallportal/internal/store"
)

func init() {
	Register("bean", func(deps Deps) Mapper {
		return &BeanMapper{store: deps.Store}
	})
}

// BeanMapper is the generic importer: it upserts the remote bean payload
// into the entities table, keyed by the module name and the remote object
// id.
//
// Relation discipline: property keys with a "_ref" suffix reference other
// remote objects. A referenced object that does not exist locally yet is
// expected during bulk backfill; the event is deferred until the
// dependency's own event has been processed.
type BeanMapper struct {
	store *store.Store
}

// Import applies one event. The entity type is the module's resolved name
// so each module maps into its own namespace.
func (m *BeanMapper) Import(ctx context.Context, data *portal.BeanResponse, event *model.Event, module *model.Module) Outcome {
	entityType := module.ModuleName
	if entityType == "" {
		entityType = module.ConnectorName
	}

	if event.EventType == model.EventDelete {
		if err := m.store.RemoveEntity(ctx, entityType, event.ObjectID); err != nil {
			return Fatalf("remove entity: %v", err)
		}
		return OK()
	}

	bean := findBean(data, event.ObjectID)
	if bean == nil {
		return Recoverable(fmt.Sprintf("object %q not present in bean response", event.ObjectID))
	}

	// Update of a missing object falls through into create: the upsert
	// below creates the entity either way, keyed by the external id.
	unresolved, err := m.unresolvedRelations(ctx, bean.Properties)
	if err != nil {
		return Fatalf("resolve relations: %v", err)
	}

	properties, err := json.Marshal(bean.Properties)
	if err != nil {
		return Fatalf("encode properties: %v", err)
	}

	if len(unresolved) == len(relationKeys(bean.Properties)) && len(unresolved) > 0 {
		// Nothing resolvable at all - hold the whole event back.
		return Recoverable("unresolved relations: " + strings.Join(unresolved, ", "))
	}

	if err := m.store.UpsertEntity(ctx, entityType, event.ObjectID, properties); err != nil {
		return Fatalf("upsert entity: %v", err)
	}

	if len(unresolved) > 0 {
		return Partial("unresolved relations: " + strings.Join(unresolved, ", "))
	}
	return OK()
}

// unresolvedRelations returns the relation keys whose referenced remote id
// has no local entity yet.
func (m *BeanMapper) unresolvedRelations(ctx context.Context, properties map[string]any) ([]string, error) {
	var unresolved []string
	for _, key := range relationKeys(properties) {
		ref, ok := properties[key].(string)
		if !ok || ref == "" {
			continue
		}
		exists, err := m.store.EntityExists(ctx, ref)
		if err != nil {
			return nil, err
		}
		if !exists {
			unresolved = append(unresolved, key)
		}
	}
	return unresolved, nil
}

func relationKeys(properties map[string]any) []string {
	var keys []string
	for key := range properties {
		if strings.HasSuffix(key, "_ref") {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

func findBean(data *portal.BeanResponse, objectID string) *portal.Bean {
	if data == nil {
		return nil
	}
	for i := range data.Result {
		if data.Result[i].ObjectID == objectID {
			return &data.Result[i]
		}
	}
	// Some connectors omit the object id on single-object responses.
	if len(data.Result) == 1 && data.Result[0].ObjectID == "" {
		return &data.Result[0]
	}
	return nil
}
