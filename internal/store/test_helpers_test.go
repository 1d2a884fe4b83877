package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/syzygy-germany/crossmedia-fourallportal/internal/config"
	"github.com/syzygy-germany/crossmedia-fourallportal/internal/model"
)

// createTestStore creates a fresh on-disk store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// seedTestModule seeds one server with one module and returns the loaded
// registry plus the module.
func seedTestModule(t *testing.T, s *Store) (*Registry, *model.Module) {
	t.Helper()
	ctx := context.Background()

	cfg := &config.Config{
		Servers: []config.ServerConfig{{
			Domain: "https://pim.example.com",
			Token:  "secret",
			Modules: []config.ModuleConfig{{
				Connector: "products-connector",
				Mapper:    "bean",
			}},
		}},
	}
	require.NoError(t, s.SeedRegistry(ctx, cfg))

	reg, err := s.LoadRegistry(ctx)
	require.NoError(t, err)
	mods := reg.ActiveModules("")
	require.Len(t, mods, 1)
	return reg, mods[0]
}

// createTestEvent builds a minimal pending event for the given module.
func createTestEvent(moduleID, eventID int64, objectID string) *model.Event {
	return &model.Event{
		ModuleID:  moduleID,
		EventID:   eventID,
		ObjectID:  objectID,
		EventType: model.EventUpdate,
		Status:    model.StatusPending,
	}
}
