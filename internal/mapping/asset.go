package mapping

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/syzygy-germany/crossmedia-fourallportal/internal/model"
	"github.com/syzygy-germany/crossmedia-fourallportal/internal/portal"
	"github.com/syzygy-germany/crossmedia-fourallportal/internal/store"
)

const assetEntityType = "asset"

func init() {
	Register("asset", func(deps Deps) Mapper {
		return &AssetMapper{
			store:   deps.Store,
			pool:    deps.Pool,
			storage: &Storage{Root: deps.StorageRoot},
		}
	})
}

// AssetMapper imports binary file objects. The bean payload names the file
// ("data_name") and its remote folder ("data_shellpath"); the binary
// content is downloaded through the server's client and placed under the
// storage root, creating the file or reusing an identically named one.
// The remote object id is recorded on the asset for the idempotent-upsert
// correlation.
type AssetMapper struct {
	store   *store.Store
	pool    *portal.Pool
	storage *Storage
}

type assetRecord struct {
	Path string `json:"path"`
	Name string `json:"name"`
}

// Import applies one file event.
func (m *AssetMapper) Import(ctx context.Context, data *portal.BeanResponse, event *model.Event, module *model.Module) Outcome {
	existing, err := m.store.FindEntityByRemoteID(ctx, assetEntityType, event.ObjectID)
	if err != nil {
		return Fatalf("find asset: %v", err)
	}

	switch event.EventType {
	case model.EventDelete:
		if existing == nil {
			return OK()
		}
		if err := m.store.RemoveEntity(ctx, assetEntityType, event.ObjectID); err != nil {
			return Fatalf("remove asset: %v", err)
		}
		return OK()

	case model.EventUpdate, model.EventCreate:
		// Update with no local match falls through into create.
		return m.createOrUpdate(ctx, data, event, module, existing)

	default:
		return Fatalf("unknown event type %q", event.EventType)
	}
}

func (m *AssetMapper) createOrUpdate(ctx context.Context, data *portal.BeanResponse, event *model.Event, module *model.Module, existing *store.Entity) Outcome {
	bean := findBean(data, event.ObjectID)
	if bean == nil {
		return Recoverable(fmt.Sprintf("object %q not present in bean response", event.ObjectID))
	}

	name, _ := bean.Properties["data_name"].(string)
	shellPath, _ := bean.Properties["data_shellpath"].(string)
	if name == "" {
		return Fatal(`connector does not provide required "data_name" property`)
	}
	if shellPath == "" {
		return Fatal(`connector does not provide required "data_shellpath" property`)
	}

	if existing == nil {
		path, outcome := m.download(ctx, event, module, name, shellPath)
		if outcome.Kind != OutcomeOK {
			return outcome
		}
		record, err := json.Marshal(assetRecord{Path: path, Name: name})
		if err != nil {
			return Fatalf("encode asset record: %v", err)
		}
		if err := m.store.UpsertEntity(ctx, assetEntityType, event.ObjectID, record); err != nil {
			return Fatalf("record asset: %v", err)
		}
		return OK()
	}

	// Existing asset: refresh the recorded name, keep the stored path.
	var record assetRecord
	if err := json.Unmarshal(existing.Properties, &record); err != nil {
		return Fatalf("decode asset record: %v", err)
	}
	record.Name = name
	updated, err := json.Marshal(record)
	if err != nil {
		return Fatalf("encode asset record: %v", err)
	}
	if err := m.store.UpsertEntity(ctx, assetEntityType, event.ObjectID, updated); err != nil {
		return Fatalf("update asset: %v", err)
	}
	return OK()
}

// download fetches the binary content and creates or reuses the target
// file. The target folder is the remote shell path with the module's
// configured prefix trimmed off.
func (m *AssetMapper) download(ctx context.Context, event *model.Event, module *model.Module, name, shellPath string) (string, Outcome) {
	client, err := m.pool.ClientFor(ctx, module.Server)
	if err != nil {
		return "", Fatalf("client for server %d: %v", module.ServerID, err)
	}

	targetFolder := strings.TrimPrefix(shellPath, module.ShellPath)
	folder, err := m.storage.EnsureFolder(targetFolder)
	if err != nil {
		return "", Fatalf("ensure folder: %v", err)
	}

	contents, err := client.SaveDerivate(ctx, event.ObjectID)
	if err != nil {
		return "", Fatalf("download derivate: %v", err)
	}

	path, _, err := m.storage.WriteFile(folder, name, contents)
	if err != nil {
		return "", Fatalf("unable to create or re-use file %s%s: %v", targetFolder, name, err)
	}
	return path, OK()
}
