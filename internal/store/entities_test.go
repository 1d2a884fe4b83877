package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpsertEntity_CreateThenUpdate(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertEntity(ctx, "products", "A-1", []byte(`{"title":"Widget"}`)))

	got, err := s.FindEntityByRemoteID(ctx, "products", "A-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, []byte(`{"title":"Widget"}`), got.Properties)

	// Second upsert for the same key updates in place, never duplicates.
	require.NoError(t, s.UpsertEntity(ctx, "products", "A-1", []byte(`{"title":"Gadget"}`)))

	updated, err := s.FindEntityByRemoteID(ctx, "products", "A-1")
	require.NoError(t, err)
	require.NotNil(t, updated)
	assert.Equal(t, got.ID, updated.ID)
	assert.Equal(t, []byte(`{"title":"Gadget"}`), updated.Properties)
}

func TestFindEntityByRemoteID_Missing(t *testing.T) {
	s := createTestStore(t)

	got, err := s.FindEntityByRemoteID(context.Background(), "products", "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestEntityExists_AcrossEntityTypes(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertEntity(ctx, "categories", "C-9", []byte(`{}`)))

	// Relation resolution is by remote id alone, the referencing module
	// does not know which entity type the target maps to.
	exists, err := s.EntityExists(ctx, "C-9")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = s.EntityExists(ctx, "C-10")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRemoveEntity_AbsentIsNoOp(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.RemoveEntity(ctx, "products", "never-existed"))

	require.NoError(t, s.UpsertEntity(ctx, "products", "A-1", []byte(`{}`)))
	require.NoError(t, s.RemoveEntity(ctx, "products", "A-1"))

	got, err := s.FindEntityByRemoteID(ctx, "products", "A-1")
	require.NoError(t, err)
	assert.Nil(t, got)
}
