// Package router manages the split between the shared main database and the
// per-entity SQLite databases, and resolves which one a given resource lives
// in. When config.UseEntityDB is false every lookup falls back to the main
// database, so the system behaves exactly as it did before per-entity
// storage existed.
package router

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"

	"github.com/jmoiron/sqlx"

	"github.com/exef-pl/exef/config"
	"github.com/exef-pl/exef/logging"
	"github.com/exef-pl/exef/model"
	"github.com/exef-pl/exef/store"
)

var log = logging.New(map[string]interface{}{"component": "router"})

// Manager lazily opens and memoizes one *sqlx.DB per entity NIP, guarding
// the map with a mutex the way the teacher's worker pool guards its job
// registry.
type Manager struct {
	cfg config.Config

	mu  sync.Mutex
	dbs map[string]*sqlx.DB
}

// NewManager constructs an empty Manager; databases are opened on first use.
func NewManager(cfg config.Config) *Manager {
	return &Manager{cfg: cfg, dbs: make(map[string]*sqlx.DB)}
}

func (m *Manager) ensureDir() error {
	return os.MkdirAll(m.cfg.EntityDBDir, 0o755)
}

// path renders the on-disk file path for one entity's database.
func (m *Manager) path(nip string) string {
	return m.cfg.EntityDBPath(nip)
}

// Open returns the memoized *sqlx.DB for nip, opening and schema-migrating
// it on first access.
func (m *Manager) Open(nip string) (*sqlx.DB, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if db, ok := m.dbs[nip]; ok {
		return db, nil
	}

	if err := m.ensureDir(); err != nil {
		return nil, fmt.Errorf("create entity db dir: %w", err)
	}

	path := m.path(nip)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create entity db parent dir: %w", err)
	}

	db, err := store.OpenEntity(path)
	if err != nil {
		return nil, err
	}

	m.dbs[nip] = db
	log.WithField("nip", nip).WithField("path", path).Info("opened entity database")
	return db, nil
}

// Exists reports whether an entity's database file has already been created.
func (m *Manager) Exists(nip string) bool {
	_, err := os.Stat(m.path(nip))
	return err == nil
}

// Close closes every memoized entity database, collecting the first error.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var firstErr error
	for nip, db := range m.dbs {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close entity db %s: %w", nip, err)
		}
	}
	return firstErr
}

// ResolveByResource resolves the database that owns resourceID by consulting
// the main database's resource_routing table, falling back to mainDB when
// per-entity storage is disabled or no routing entry exists.
func (m *Manager) ResolveByResource(mainDB *sqlx.DB, resourceID string) (*sqlx.DB, error) {
	if !m.cfg.UseEntityDB {
		return mainDB, nil
	}

	var routing model.ResourceRouting
	err := mainDB.Get(&routing, `SELECT resource_id, entity_nip, entity_id, resource_type
		FROM resource_routing WHERE resource_id = ?`, resourceID)
	if err != nil {
		log.WithField("resource_id", resourceID).Debug("no routing entry, falling back to main db")
		return mainDB, nil
	}

	return m.Open(routing.EntityNip)
}

// ResolveByEntity resolves the database owning entityID by looking the
// entity up in the main database to obtain its NIP.
func (m *Manager) ResolveByEntity(mainDB *sqlx.DB, entityID string) (*sqlx.DB, error) {
	if !m.cfg.UseEntityDB {
		return mainDB, nil
	}

	var entity model.Entity
	err := mainDB.Get(&entity, `SELECT id, nip FROM entities WHERE id = ?`, entityID)
	if err != nil {
		return mainDB, nil
	}

	nip := entity.Nip
	if nip == "" {
		nip = entityID[:min(10, len(entityID))]
	}
	return m.Open(nip)
}

// AddRouting records a resource_id -> entity_nip mapping in the main
// database. It is a no-op when per-entity storage is disabled.
func (m *Manager) AddRouting(mainDB *sqlx.DB, resourceID, entityID, entityNIP, resourceType string) error {
	if !m.cfg.UseEntityDB {
		return nil
	}
	_, err := mainDB.Exec(`INSERT INTO resource_routing (resource_id, entity_nip, entity_id, resource_type)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(resource_id) DO UPDATE SET entity_nip=excluded.entity_nip, entity_id=excluded.entity_id, resource_type=excluded.resource_type`,
		resourceID, entityNIP, entityID, resourceType)
	if err != nil {
		return fmt.Errorf("add routing for %s: %w", resourceID, err)
	}
	return nil
}

// RemoveRouting deletes a resource_id routing entry; a no-op when per-entity
// storage is disabled.
func (m *Manager) RemoveRouting(mainDB *sqlx.DB, resourceID string) error {
	if !m.cfg.UseEntityDB {
		return nil
	}
	_, err := mainDB.Exec(`DELETE FROM resource_routing WHERE resource_id = ?`, resourceID)
	if err != nil {
		return fmt.Errorf("remove routing for %s: %w", resourceID, err)
	}
	return nil
}

// SyncIdentity upserts a stub copy of identity into entityDB so foreign keys
// from per-entity tables (task assignee, document metadata editor, granted
// authorizations) are satisfiable without a cross-database join.
func (m *Manager) SyncIdentity(entityDB *sqlx.DB, identity model.Identity) error {
	if !m.cfg.UseEntityDB {
		return nil
	}
	_, err := entityDB.Exec(`INSERT INTO identities (id, email, password_hash, first_name, last_name, nip, is_active, created_at, updated_at)
		VALUES (?, ?, '<synced>', ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET email=excluded.email, first_name=excluded.first_name,
			last_name=excluded.last_name, is_active=excluded.is_active, updated_at=excluded.updated_at`,
		identity.ID, identity.Email, identity.FirstName, identity.LastName, identity.Nip,
		identity.IsActive, identity.CreatedAt, identity.UpdatedAt)
	if err != nil {
		return fmt.Errorf("sync identity %s: %w", identity.ID, err)
	}
	return nil
}

// SyncEntity upserts a stub copy of entity into entityDB, same purpose as
// SyncIdentity but for the owning/related entity row.
func (m *Manager) SyncEntity(entityDB *sqlx.DB, entity model.Entity) error {
	if !m.cfg.UseEntityDB {
		return nil
	}
	_, err := entityDB.Exec(`INSERT INTO entities (id, type, name, nip, owner_id, is_archived, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name=excluded.name, nip=excluded.nip, type=excluded.type, updated_at=excluded.updated_at`,
		entity.ID, entity.Type, entity.Name, entity.Nip, entity.OwnerID, entity.IsArchived,
		entity.CreatedAt, entity.UpdatedAt)
	if err != nil {
		return fmt.Errorf("sync entity %s: %w", entity.ID, err)
	}
	return nil
}

// MigrateIfNeeded runs MigrateToEntityDB for every non-archived entity, but
// only when per-entity storage has just been turned on: it's a no-op unless
// UseEntityDB is set and resource_routing is still empty, so it is safe to
// call unconditionally on every startup. One entity's migration failure is
// logged and skipped rather than aborting the rest.
func (m *Manager) MigrateIfNeeded(mainDB *sqlx.DB) error {
	if !m.cfg.UseEntityDB {
		return nil
	}

	var routed int
	if err := mainDB.Get(&routed, `SELECT COUNT(*) FROM resource_routing`); err != nil {
		return fmt.Errorf("count resource_routing: %w", err)
	}
	if routed > 0 {
		return nil
	}

	var entities []model.Entity
	if err := mainDB.Select(&entities, `SELECT * FROM entities WHERE is_archived = 0`); err != nil {
		return fmt.Errorf("list entities for migration: %w", err)
	}

	for _, entity := range entities {
		if err := m.MigrateToEntityDB(mainDB, entity); err != nil {
			log.WithField("entity_id", entity.ID).WithField("error", err.Error()).
				Error("migrate entity to per-entity database")
			continue
		}
	}
	return nil
}

// MigrateToEntityDB performs the one-time cutover from shared to per-entity
// storage for one entity: it walks every business row mainDB currently holds
// for entity and copies it into entity's freshly opened per-entity database
// file, in dependency order (projects and their authorizations, then
// sources, then runs, then tasks, then documents, then metadata, then
// relations), syncing a stub for every identity referenced along the way,
// and installs a resource_routing row for every project, source, task and
// document copied. The whole
// walk runs inside one transaction per entity with foreign key checks
// deferred to commit time, so a failure partway through rolls back that
// entity only and never leaves a partially migrated file behind; other
// entities are unaffected.
func (m *Manager) MigrateToEntityDB(mainDB *sqlx.DB, entity model.Entity) error {
	if !m.cfg.UseEntityDB {
		return nil
	}

	nip := NormalizeNIPOrID(entity.Nip, entity.ID)
	entityDB, err := m.Open(nip)
	if err != nil {
		return fmt.Errorf("open entity db for migration: %w", err)
	}

	tx, err := entityDB.Beginx()
	if err != nil {
		return fmt.Errorf("begin migration tx for entity %s: %w", entity.ID, err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if _, err := tx.Exec(`PRAGMA defer_foreign_keys = ON`); err != nil {
		return fmt.Errorf("defer foreign keys for migration: %w", err)
	}
	if _, err := tx.Exec(`INSERT INTO entities (id, type, name, nip, owner_id, is_archived, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name=excluded.name, nip=excluded.nip, type=excluded.type, updated_at=excluded.updated_at`,
		entity.ID, entity.Type, entity.Name, entity.Nip, entity.OwnerID, entity.IsArchived,
		entity.CreatedAt, entity.UpdatedAt); err != nil {
		return fmt.Errorf("sync entity for migration: %w", err)
	}

	identityIDs := map[string]struct{}{entity.OwnerID: {}}
	routed := map[string][]string{}

	projectIDs, err := copyRows(tx, mainDB, "projects", "id",
		`SELECT * FROM projects WHERE entity_id = ?`, entity.ID)
	if err != nil {
		return fmt.Errorf("copy projects for entity %s: %w", entity.ID, err)
	}
	routed["project"] = append(routed["project"], projectIDs...)

	if len(projectIDs) > 0 {
		authIDs, err := copyRows(tx, mainDB, "project_authorizations", "id",
			`SELECT * FROM project_authorizations WHERE project_id IN (?)`, projectIDs)
		if err != nil {
			return fmt.Errorf("copy project_authorizations for entity %s: %w", entity.ID, err)
		}
		collectIdentityRefs(mainDB, identityIDs, "project_authorizations", "id", authIDs,
			"identity_id", "granted_by_id")
	}

	sourceIDs, err := copyRows(tx, mainDB, "data_sources", "id",
		`SELECT * FROM data_sources WHERE project_id IN (?)`, projectIDs)
	if err != nil {
		return fmt.Errorf("copy data_sources for entity %s: %w", entity.ID, err)
	}
	routed["source"] = append(routed["source"], sourceIDs...)

	if _, err := copyRows(tx, mainDB, "import_runs", "id",
		`SELECT * FROM import_runs WHERE source_id IN (?)`, sourceIDs); err != nil {
		return fmt.Errorf("copy import_runs for entity %s: %w", entity.ID, err)
	}
	if _, err := copyRows(tx, mainDB, "export_runs", "id",
		`SELECT * FROM export_runs WHERE source_id IN (?)`, sourceIDs); err != nil {
		return fmt.Errorf("copy export_runs for entity %s: %w", entity.ID, err)
	}

	taskIDs, err := copyRows(tx, mainDB, "tasks", "id",
		`SELECT * FROM tasks WHERE project_id IN (?)`, projectIDs)
	if err != nil {
		return fmt.Errorf("copy tasks for entity %s: %w", entity.ID, err)
	}
	routed["task"] = append(routed["task"], taskIDs...)
	collectIdentityRefs(mainDB, identityIDs, "tasks", "id", taskIDs, "assigned_to_id")

	documentIDs, err := copyRows(tx, mainDB, "documents", "id",
		`SELECT * FROM documents WHERE task_id IN (?)`, taskIDs)
	if err != nil {
		return fmt.Errorf("copy documents for entity %s: %w", entity.ID, err)
	}
	routed["document"] = append(routed["document"], documentIDs...)

	if _, err := copyRows(tx, mainDB, "document_metadata", "id",
		`SELECT * FROM document_metadata WHERE document_id IN (?)`, documentIDs); err != nil {
		return fmt.Errorf("copy document_metadata for entity %s: %w", entity.ID, err)
	}
	collectIdentityRefs(mainDB, identityIDs, "document_metadata", "document_id", documentIDs, "edited_by_id")

	if _, err := copyRows(tx, mainDB, "document_relations", "id",
		`SELECT * FROM document_relations WHERE parent_id IN (?) AND child_id IN (?)`,
		documentIDs, documentIDs); err != nil {
		return fmt.Errorf("copy document_relations for entity %s: %w", entity.ID, err)
	}
	collectIdentityRefs(mainDB, identityIDs, "document_relations", "parent_id", documentIDs, "created_by_id")

	for id := range identityIDs {
		if id == "" {
			continue
		}
		var identity model.Identity
		if err := mainDB.Get(&identity, `SELECT * FROM identities WHERE id = ?`, id); err != nil {
			continue
		}
		if _, err := tx.Exec(`INSERT INTO identities (id, email, password_hash, first_name, last_name, nip, is_active, created_at, updated_at)
			VALUES (?, ?, '<synced>', ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET email=excluded.email, first_name=excluded.first_name,
				last_name=excluded.last_name, is_active=excluded.is_active, updated_at=excluded.updated_at`,
			identity.ID, identity.Email, identity.FirstName, identity.LastName, identity.Nip,
			identity.IsActive, identity.CreatedAt, identity.UpdatedAt); err != nil {
			return fmt.Errorf("sync referenced identity %s for migration: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration tx for entity %s: %w", entity.ID, err)
	}
	committed = true

	for resourceType, ids := range routed {
		for _, id := range ids {
			if err := m.AddRouting(mainDB, id, entity.ID, nip, resourceType); err != nil {
				return err
			}
		}
	}

	log.WithField("entity_id", entity.ID).WithField("nip", nip).
		WithField("projects", len(projectIDs)).WithField("tasks", len(taskIDs)).
		WithField("documents", len(documentIDs)).
		Info("migrated entity to per-entity database")
	return nil
}

// copyRows selects every row matching query/args from mainDB and inserts it
// verbatim into the same table inside tx, returning the copied rows' id
// column values so the caller can scope the next dependent table's query.
// Columns are read generically (rather than hand-listing them per table) so
// the copy stays correct as the schema grows.
func copyRows(tx *sqlx.Tx, mainDB *sqlx.DB, table, idColumn, query string, args ...interface{}) ([]string, error) {
	if hasEmptySlice(args) {
		return nil, nil
	}

	expanded, inArgs, err := sqlx.In(query, args...)
	if err != nil {
		return nil, fmt.Errorf("expand query for %s: %w", table, err)
	}
	rows, err := mainDB.Queryx(mainDB.Rebind(expanded), inArgs...)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", table, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		row := map[string]interface{}{}
		if err := rows.MapScan(row); err != nil {
			return nil, fmt.Errorf("scan %s row: %w", table, err)
		}

		cols := make([]string, 0, len(row))
		placeholders := make([]string, 0, len(row))
		vals := make([]interface{}, 0, len(row))
		for col, val := range row {
			cols = append(cols, col)
			placeholders = append(placeholders, "?")
			vals = append(vals, val)
		}
		stmt := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s)`, table, strings.Join(cols, ", "), strings.Join(placeholders, ", "))
		if _, err := tx.Exec(stmt, vals...); err != nil {
			return nil, fmt.Errorf("insert %s row: %w", table, err)
		}

		if id := stringValue(row[idColumn]); id != "" {
			ids = append(ids, id)
		}
	}
	return ids, rows.Err()
}

// collectIdentityRefs reads identityCol out of every row of table whose
// scopeCol is in scopeIDs and adds each non-empty value to seen, so the
// migration can sync a stub for every identity a copied row points at.
func collectIdentityRefs(mainDB *sqlx.DB, seen map[string]struct{}, table, scopeCol string, scopeIDs []string, identityCols ...string) {
	if len(scopeIDs) == 0 {
		return
	}
	query, args, err := sqlx.In(
		fmt.Sprintf(`SELECT %s FROM %s WHERE %s IN (?)`, strings.Join(identityCols, ", "), table, scopeCol),
		scopeIDs)
	if err != nil {
		return
	}
	rows, err := mainDB.Queryx(mainDB.Rebind(query), args...)
	if err != nil {
		return
	}
	defer rows.Close()
	for rows.Next() {
		row := map[string]interface{}{}
		if err := rows.MapScan(row); err != nil {
			continue
		}
		for _, col := range identityCols {
			if id := stringValue(row[col]); id != "" {
				seen[id] = struct{}{}
			}
		}
	}
}

// hasEmptySlice reports whether any of args is a zero-length slice, which
// sqlx.In rejects outright ("empty slice passed to 'in' query") — the
// migration walk hits this legitimately whenever an earlier step copied
// nothing (an entity with no projects has no sources or tasks either).
func hasEmptySlice(args []interface{}) bool {
	for _, a := range args {
		v := reflect.ValueOf(a)
		if v.Kind() == reflect.Slice && v.Len() == 0 {
			return true
		}
	}
	return false
}

// stringValue normalizes a dynamically-scanned column value (string,
// []byte, or nil) to a string.
func stringValue(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return ""
	}
}

// NormalizeNIPOrID returns nip when non-empty, else the first characters of
// id, matching the fallback the original router used for entities lacking a
// recorded NIP (e.g. foreign branches tracked only by internal id).
func NormalizeNIPOrID(nip, id string) string {
	nip = strings.TrimSpace(nip)
	if nip != "" {
		return nip
	}
	return id[:min(10, len(id))]
}
