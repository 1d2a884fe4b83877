package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/syzygy-germany/crossmedia-fourallportal/internal/config"
	"github.com/syzygy-germany/crossmedia-fourallportal/internal/model"
)

// Registry is the server/module configuration as seen by one run. It is
// read-mostly; the engine mutates it only to persist watermarks and lazily
// resolved module names.
//
// Modelled as an explicit object handed to both the sync coordinator and
// the execution engine rather than ambient global state.
type Registry struct {
	Servers []*model.Server
	modules map[int64]*model.Module
}

// Module returns the module with the given local id, or nil.
func (r *Registry) Module(id int64) *model.Module {
	return r.modules[id]
}

// ActiveModules returns the modules of active servers matching the filter
// (module name or connector name), in configuration order.
func (r *Registry) ActiveModules(filter string) []*model.Module {
	var active []*model.Module
	for _, srv := range r.Servers {
		if !srv.Active {
			continue
		}
		for _, mod := range srv.Modules {
			if !mod.Matches(filter) {
				continue
			}
			active = append(active, mod)
		}
	}
	return active
}

// SeedRegistry upserts the configured servers and modules into the store,
// preserving watermarks and resolved module names of rows that already
// exist. Configured connection data (domain, token, active flag, mapper,
// paths, expected config hash) always wins over stored values.
func (s *Store) SeedRegistry(ctx context.Context, cfg *config.Config) error {
	for _, sc := range cfg.Servers {
		var serverID int64
		err := s.db.QueryRowContext(ctx,
			`SELECT id FROM servers WHERE domain = ?`, sc.Domain).Scan(&serverID)
		switch {
		case err == sql.ErrNoRows:
			res, err := s.db.ExecContext(ctx,
				`INSERT INTO servers (domain, token, active) VALUES (?, ?, ?)`,
				sc.Domain, sc.Token, boolToInt(sc.IsActive()))
			if err != nil {
				return fmt.Errorf("insert server %q: %w", sc.Domain, err)
			}
			serverID, err = res.LastInsertId()
			if err != nil {
				return fmt.Errorf("insert server %q: %w", sc.Domain, err)
			}
		case err != nil:
			return fmt.Errorf("find server %q: %w", sc.Domain, err)
		default:
			if _, err := s.db.ExecContext(ctx,
				`UPDATE servers SET token = ?, active = ? WHERE id = ?`,
				sc.Token, boolToInt(sc.IsActive()), serverID); err != nil {
				return fmt.Errorf("update server %q: %w", sc.Domain, err)
			}
		}

		for _, mc := range sc.Modules {
			_, err := s.db.ExecContext(ctx, `
				INSERT INTO modules
				(server_id, connector_name, mapper_name, config_hash, shell_path, storage_path)
				VALUES (?, ?, ?, ?, ?, ?)
				ON CONFLICT(server_id, connector_name) DO UPDATE SET
					mapper_name = excluded.mapper_name,
					config_hash = excluded.config_hash,
					shell_path = excluded.shell_path,
					storage_path = excluded.storage_path
			`, serverID, mc.Connector, mc.Mapper, mc.ConfigHash, mc.ShellPath, mc.StoragePath)
			if err != nil {
				return fmt.Errorf("upsert module %q: %w", mc.Connector, err)
			}
		}
	}
	return nil
}

// LoadRegistry reads all servers and their modules in configuration order.
func (s *Store) LoadRegistry(ctx context.Context) (*Registry, error) {
	reg := &Registry{modules: make(map[int64]*model.Module)}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, domain, token, active FROM servers ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("query servers: %w", err)
	}
	defer rows.Close()

	byID := make(map[int64]*model.Server)
	for rows.Next() {
		var srv model.Server
		var active int
		if err := rows.Scan(&srv.ID, &srv.Domain, &srv.Token, &active); err != nil {
			return nil, fmt.Errorf("scan server: %w", err)
		}
		srv.Active = active != 0
		reg.Servers = append(reg.Servers, &srv)
		byID[srv.ID] = &srv
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate servers: %w", err)
	}

	modRows, err := s.db.QueryContext(ctx, `
		SELECT id, server_id, connector_name, module_name, mapper_name, config_hash,
		       shell_path, storage_path, last_received_event_id, last_processed_event_id
		FROM modules ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query modules: %w", err)
	}
	defer modRows.Close()

	for modRows.Next() {
		var mod model.Module
		if err := modRows.Scan(
			&mod.ID,
			&mod.ServerID,
			&mod.ConnectorName,
			&mod.ModuleName,
			&mod.MapperName,
			&mod.ConfigHash,
			&mod.ShellPath,
			&mod.StoragePath,
			&mod.LastReceivedEventID,
			&mod.LastProcessedEventID,
		); err != nil {
			return nil, fmt.Errorf("scan module: %w", err)
		}
		srv, ok := byID[mod.ServerID]
		if !ok {
			return nil, fmt.Errorf("module %d references unknown server %d", mod.ID, mod.ServerID)
		}
		mod.Server = srv
		srv.Modules = append(srv.Modules, &mod)
		reg.modules[mod.ID] = &mod
	}
	if err := modRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate modules: %w", err)
	}

	return reg, nil
}

// SaveModule persists a module's mutable fields: watermarks and the lazily
// resolved module name.
func (s *Store) SaveModule(ctx context.Context, mod *model.Module) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE modules SET
			module_name = ?, last_received_event_id = ?, last_processed_event_id = ?
		WHERE id = ?
	`, mod.ModuleName, mod.LastReceivedEventID, mod.LastProcessedEventID, mod.ID)
	if err != nil {
		return fmt.Errorf("save module %d: %w", mod.ID, err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
