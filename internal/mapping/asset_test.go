package mapping

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syzygy-germany/crossmedia-fourallportal/internal/model"
	"github.com/syzygy-germany/crossmedia-fourallportal/internal/portal"
)

// derivateClient serves only the binary download; the remaining operations
// are unused by the asset mapper.
type derivateClient struct {
	contents []byte
}

func (c *derivateClient) Login(ctx context.Context) error { return nil }

func (c *derivateClient) GetEvents(ctx context.Context, connectorName string, sinceEventID int64) ([]portal.RemoteEvent, error) {
	return nil, nil
}

func (c *derivateClient) GetBeans(ctx context.Context, objectIDs []string, connectorName string) (*portal.BeanResponse, error) {
	return &portal.BeanResponse{}, nil
}

func (c *derivateClient) GetConnectorConfig(ctx context.Context, connectorName string) (*portal.ConnectorConfig, error) {
	return &portal.ConnectorConfig{}, nil
}

func (c *derivateClient) SaveDerivate(ctx context.Context, objectID string) ([]byte, error) {
	return c.contents, nil
}

func (c *derivateClient) LastResponse() portal.ResponseMetadata {
	return portal.ResponseMetadata{}
}

func newAssetMapper(t *testing.T, contents []byte) (*AssetMapper, string) {
	t.Helper()
	root := t.TempDir()
	client := &derivateClient{contents: contents}
	pool := portal.NewPool(func(server *model.Server) portal.Client {
		return client
	})
	return &AssetMapper{
		store:   newTestStore(t),
		pool:    pool,
		storage: &Storage{Root: root},
	}, root
}

func assetModule() *model.Module {
	srv := &model.Server{ID: 1, Domain: "https://pim.example.com", Active: true}
	return &model.Module{
		ID:            2,
		ServerID:      1,
		ConnectorName: "files-connector",
		ModuleName:    "files",
		MapperName:    "asset",
		ShellPath:     "/remote/root",
		Server:        srv,
	}
}

func assetBean(name, shellPath string) *portal.BeanResponse {
	return beanResponse("F-1", map[string]any{
		"data_name":      name,
		"data_shellpath": shellPath,
	})
}

func TestAssetMapper_CreateDownloadsFile(t *testing.T) {
	m, root := newAssetMapper(t, []byte("binary-content"))
	ctx := context.Background()

	ev := &model.Event{ObjectID: "F-1", EventType: model.EventCreate}
	outcome := m.Import(ctx, assetBean("img.png", "/remote/root/media"), ev, assetModule())
	require.Equal(t, OutcomeOK, outcome.Kind, outcome.Reason)

	data, err := os.ReadFile(filepath.Join(root, "media", "img.png"))
	require.NoError(t, err)
	assert.Equal(t, []byte("binary-content"), data)

	entity, err := m.store.FindEntityByRemoteID(ctx, assetEntityType, "F-1")
	require.NoError(t, err)
	require.NotNil(t, entity)
	assert.Contains(t, string(entity.Properties), "img.png")
}

func TestAssetMapper_CreateReusesExistingFile(t *testing.T) {
	m, root := newAssetMapper(t, []byte("fresh"))
	ctx := context.Background()

	// An identically named file already exists; it is reused, not
	// overwritten.
	require.NoError(t, os.MkdirAll(filepath.Join(root, "media"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "media", "img.png"), []byte("original"), 0o644))

	ev := &model.Event{ObjectID: "F-1", EventType: model.EventCreate}
	outcome := m.Import(ctx, assetBean("img.png", "/remote/root/media"), ev, assetModule())
	require.Equal(t, OutcomeOK, outcome.Kind, outcome.Reason)

	data, err := os.ReadFile(filepath.Join(root, "media", "img.png"))
	require.NoError(t, err)
	assert.Equal(t, []byte("original"), data)
}

func TestAssetMapper_UpdateRefreshesNameKeepsPath(t *testing.T) {
	m, root := newAssetMapper(t, []byte("binary"))
	ctx := context.Background()
	mod := assetModule()

	ev := &model.Event{ObjectID: "F-1", EventType: model.EventCreate}
	require.Equal(t, OutcomeOK, m.Import(ctx, assetBean("img.png", "/remote/root/media"), ev, mod).Kind)

	// The remote renamed the file; the local path stays where it was.
	update := &model.Event{ObjectID: "F-1", EventType: model.EventUpdate}
	require.Equal(t, OutcomeOK, m.Import(ctx, assetBean("renamed.png", "/remote/root/media"), update, mod).Kind)

	entity, err := m.store.FindEntityByRemoteID(ctx, assetEntityType, "F-1")
	require.NoError(t, err)
	require.NotNil(t, entity)
	assert.Contains(t, string(entity.Properties), "renamed.png")
	assert.Contains(t, string(entity.Properties), filepath.Join(root, "media", "img.png"))
}

func TestAssetMapper_MissingRequiredProperties(t *testing.T) {
	m, _ := newAssetMapper(t, nil)
	ctx := context.Background()

	ev := &model.Event{ObjectID: "F-1", EventType: model.EventCreate}

	noName := m.Import(ctx, assetBean("", "/remote/root/media"), ev, assetModule())
	assert.Equal(t, OutcomeFatal, noName.Kind)
	assert.Equal(t, `connector does not provide required "data_name" property`, noName.Reason)

	noPath := m.Import(ctx, assetBean("img.png", ""), ev, assetModule())
	assert.Equal(t, OutcomeFatal, noPath.Kind)
	assert.Equal(t, `connector does not provide required "data_shellpath" property`, noPath.Reason)
}

func TestAssetMapper_DeleteAbsentIsNoOp(t *testing.T) {
	m, _ := newAssetMapper(t, nil)

	ev := &model.Event{ObjectID: "never-seen", EventType: model.EventDelete}
	outcome := m.Import(context.Background(), nil, ev, assetModule())
	assert.Equal(t, OutcomeOK, outcome.Kind)
}

func TestAssetMapper_MissingBeanIsRecoverable(t *testing.T) {
	m, _ := newAssetMapper(t, nil)

	ev := &model.Event{ObjectID: "F-1", EventType: model.EventCreate}
	outcome := m.Import(context.Background(), &portal.BeanResponse{}, ev, assetModule())
	assert.Equal(t, OutcomeRecoverable, outcome.Kind)
}
