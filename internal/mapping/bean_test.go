package mapping

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syzygy-germany/crossmedia-fourallportal/internal/model"
	"github.com/syzygy-germany/crossmedia-fourallportal/internal/portal"
	"github.com/syzygy-germany/crossmedia-fourallportal/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testModule() *model.Module {
	return &model.Module{
		ID:            1,
		ModuleName:    "products",
		ConnectorName: "products-connector",
	}
}

func beanResponse(objectID string, properties map[string]any) *portal.BeanResponse {
	return &portal.BeanResponse{
		Result: []portal.Bean{{ObjectID: objectID, Properties: properties}},
	}
}

func TestBeanMapper_CreateUpsertsEntity(t *testing.T) {
	s := newTestStore(t)
	m := &BeanMapper{store: s}
	ctx := context.Background()

	ev := &model.Event{ObjectID: "A-1", EventType: model.EventCreate}
	outcome := m.Import(ctx, beanResponse("A-1", map[string]any{"title": "Widget"}), ev, testModule())
	require.Equal(t, OutcomeOK, outcome.Kind)

	entity, err := s.FindEntityByRemoteID(ctx, "products", "A-1")
	require.NoError(t, err)
	require.NotNil(t, entity)
	assert.JSONEq(t, `{"title":"Widget"}`, string(entity.Properties))
}

func TestBeanMapper_ImportIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	m := &BeanMapper{store: s}
	ctx := context.Background()

	data := beanResponse("A-1", map[string]any{"title": "Widget"})
	ev := &model.Event{ObjectID: "A-1", EventType: model.EventCreate}

	require.Equal(t, OutcomeOK, m.Import(ctx, data, ev, testModule()).Kind)
	require.Equal(t, OutcomeOK, m.Import(ctx, data, ev, testModule()).Kind)

	var count int
	require.NoError(t, s.DB().QueryRow(
		`SELECT COUNT(*) FROM entities WHERE remote_id = 'A-1'`).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestBeanMapper_UpdateOfMissingObjectCreates(t *testing.T) {
	s := newTestStore(t)
	m := &BeanMapper{store: s}
	ctx := context.Background()

	ev := &model.Event{ObjectID: "A-1", EventType: model.EventUpdate}
	outcome := m.Import(ctx, beanResponse("A-1", map[string]any{"title": "Widget"}), ev, testModule())
	require.Equal(t, OutcomeOK, outcome.Kind)

	entity, err := s.FindEntityByRemoteID(ctx, "products", "A-1")
	require.NoError(t, err)
	assert.NotNil(t, entity)
}

func TestBeanMapper_DeleteAbsentIsNoOp(t *testing.T) {
	s := newTestStore(t)
	m := &BeanMapper{store: s}

	ev := &model.Event{ObjectID: "never-seen", EventType: model.EventDelete}
	outcome := m.Import(context.Background(), nil, ev, testModule())
	assert.Equal(t, OutcomeOK, outcome.Kind)
}

func TestBeanMapper_DeleteRemovesEntity(t *testing.T) {
	s := newTestStore(t)
	m := &BeanMapper{store: s}
	ctx := context.Background()

	require.NoError(t, s.UpsertEntity(ctx, "products", "A-1", []byte(`{}`)))

	ev := &model.Event{ObjectID: "A-1", EventType: model.EventDelete}
	require.Equal(t, OutcomeOK, m.Import(ctx, nil, ev, testModule()).Kind)

	entity, err := s.FindEntityByRemoteID(ctx, "products", "A-1")
	require.NoError(t, err)
	assert.Nil(t, entity)
}

func TestBeanMapper_MissingBeanIsRecoverable(t *testing.T) {
	s := newTestStore(t)
	m := &BeanMapper{store: s}

	ev := &model.Event{ObjectID: "A-1", EventType: model.EventUpdate}
	outcome := m.Import(context.Background(), &portal.BeanResponse{}, ev, testModule())
	assert.Equal(t, OutcomeRecoverable, outcome.Kind)
	assert.Contains(t, outcome.Reason, `"A-1"`)
}

func TestBeanMapper_AllRelationsUnresolved(t *testing.T) {
	s := newTestStore(t)
	m := &BeanMapper{store: s}
	ctx := context.Background()

	ev := &model.Event{ObjectID: "A-1", EventType: model.EventCreate}
	data := beanResponse("A-1", map[string]any{"parent_ref": "missing"})

	outcome := m.Import(ctx, data, ev, testModule())
	assert.Equal(t, OutcomeRecoverable, outcome.Kind)
	assert.Contains(t, outcome.Reason, "parent_ref")

	// Nothing was written: the whole event is held back.
	entity, err := s.FindEntityByRemoteID(ctx, "products", "A-1")
	require.NoError(t, err)
	assert.Nil(t, entity)
}

func TestBeanMapper_SomeRelationsUnresolvedIsPartial(t *testing.T) {
	s := newTestStore(t)
	m := &BeanMapper{store: s}
	ctx := context.Background()

	require.NoError(t, s.UpsertEntity(ctx, "categories", "C-9", []byte(`{}`)))

	ev := &model.Event{ObjectID: "A-1", EventType: model.EventCreate}
	data := beanResponse("A-1", map[string]any{
		"category_ref": "C-9",
		"parent_ref":   "missing",
	})

	outcome := m.Import(ctx, data, ev, testModule())
	assert.Equal(t, OutcomePartial, outcome.Kind)
	assert.Contains(t, outcome.Reason, "parent_ref")
	assert.NotContains(t, outcome.Reason, "category_ref")

	// The resolvable part was applied regardless.
	entity, err := s.FindEntityByRemoteID(ctx, "products", "A-1")
	require.NoError(t, err)
	assert.NotNil(t, entity)
}

func TestBeanMapper_ConnectorNameFallback(t *testing.T) {
	s := newTestStore(t)
	m := &BeanMapper{store: s}
	ctx := context.Background()

	mod := testModule()
	mod.ModuleName = ""

	ev := &model.Event{ObjectID: "A-1", EventType: model.EventCreate}
	require.Equal(t, OutcomeOK, m.Import(ctx, beanResponse("A-1", map[string]any{}), ev, mod).Kind)

	entity, err := s.FindEntityByRemoteID(ctx, "products-connector", "A-1")
	require.NoError(t, err)
	assert.NotNil(t, entity)
}

func TestBeanMapper_SingleResultWithoutObjectID(t *testing.T) {
	s := newTestStore(t)
	m := &BeanMapper{store: s}
	ctx := context.Background()

	// Some connectors omit the object id on single-object responses.
	ev := &model.Event{ObjectID: "A-1", EventType: model.EventUpdate}
	data := beanResponse("", map[string]any{"title": "Widget"})

	require.Equal(t, OutcomeOK, m.Import(ctx, data, ev, testModule()).Kind)

	entity, err := s.FindEntityByRemoteID(ctx, "products", "A-1")
	require.NoError(t, err)
	assert.NotNil(t, entity)
}

func TestResolve_RegisteredMappers(t *testing.T) {
	deps := Deps{}

	bean, err := Resolve("bean", deps)
	require.NoError(t, err)
	assert.IsType(t, &BeanMapper{}, bean)

	// Names are case-insensitive.
	asset, err := Resolve(" Asset ", deps)
	require.NoError(t, err)
	assert.IsType(t, &AssetMapper{}, asset)

	_, err = Resolve("unknown", deps)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"unknown"`)
}
