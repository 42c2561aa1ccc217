package router

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exef-pl/exef/config"
	"github.com/exef-pl/exef/model"
	"github.com/exef-pl/exef/store"
)

func newTestManager(t *testing.T) (*Manager, *sqlx.DB) {
	t.Helper()
	dir := t.TempDir()

	cfg := config.Defaults()
	cfg.UseEntityDB = true
	cfg.EntityDBDir = filepath.Join(dir, "entities")
	cfg.EntityDBPathTemplate = "{nip}.db"

	mainDB, err := store.OpenMain(filepath.Join(dir, "exef.db"))
	require.NoError(t, err)
	t.Cleanup(func() { mainDB.Close() })

	return NewManager(cfg), mainDB
}

func TestResolveByResourceFallsBackWithoutRouting(t *testing.T) {
	m, mainDB := newTestManager(t)
	t.Cleanup(func() { m.Close() })

	resolved, err := m.ResolveByResource(mainDB, "unrouted-id")
	require.NoError(t, err)
	assert.Same(t, mainDB, resolved)
}

func TestResolveByResourceUsesRouting(t *testing.T) {
	m, mainDB := newTestManager(t)
	t.Cleanup(func() { m.Close() })

	require.NoError(t, m.AddRouting(mainDB, "doc-1", "entity-1", "5213003700", "document"))

	resolved, err := m.ResolveByResource(mainDB, "doc-1")
	require.NoError(t, err)
	assert.NotSame(t, mainDB, resolved)
	assert.True(t, m.Exists("5213003700"))
}

func TestOpenMemoizesPerNIP(t *testing.T) {
	m, _ := newTestManager(t)
	t.Cleanup(func() { m.Close() })

	first, err := m.Open("5213003700")
	require.NoError(t, err)
	second, err := m.Open("5213003700")
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestSyncIdentityUpserts(t *testing.T) {
	m, _ := newTestManager(t)
	t.Cleanup(func() { m.Close() })

	entityDB, err := m.Open("5213003700")
	require.NoError(t, err)

	identity := model.Identity{
		ID:        "id-1",
		Email:     "a@example.com",
		FirstName: "Ania",
		IsActive:  true,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	require.NoError(t, m.SyncIdentity(entityDB, identity))

	identity.FirstName = "Anna"
	identity.UpdatedAt = time.Now()
	require.NoError(t, m.SyncIdentity(entityDB, identity))

	var count int
	require.NoError(t, entityDB.Get(&count, `SELECT count(*) FROM identities WHERE id = ?`, "id-1"))
	assert.Equal(t, 1, count)
}

func TestRemoveRoutingDeletesEntry(t *testing.T) {
	m, mainDB := newTestManager(t)
	t.Cleanup(func() { m.Close() })

	require.NoError(t, m.AddRouting(mainDB, "doc-2", "entity-1", "5213003700", "document"))
	require.NoError(t, m.RemoveRouting(mainDB, "doc-2"))

	resolved, err := m.ResolveByResource(mainDB, "doc-2")
	require.NoError(t, err)
	assert.Same(t, mainDB, resolved)
}

func TestMigrateToEntityDBCopiesBusinessRowsAndInstallsRouting(t *testing.T) {
	m, mainDB := newTestManager(t)
	t.Cleanup(func() { m.Close() })

	now := time.Now().UTC()
	owner := model.Identity{ID: "owner-1", Email: "owner@example.com", IsActive: true, CreatedAt: now, UpdatedAt: now}
	_, err := mainDB.Exec(`INSERT INTO identities (id, email, password_hash, is_active, created_at, updated_at)
		VALUES (?, ?, 'x', ?, ?, ?)`, owner.ID, owner.Email, owner.IsActive, owner.CreatedAt, owner.UpdatedAt)
	require.NoError(t, err)

	entity := model.Entity{
		ID: "entity-1", Type: model.EntitySpolka, Name: "Acme", Nip: "5213003700",
		OwnerID: owner.ID, CreatedAt: now, UpdatedAt: now,
	}
	_, err = mainDB.Exec(`INSERT INTO entities (id, type, name, nip, owner_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`, entity.ID, entity.Type, entity.Name, entity.Nip, entity.OwnerID,
		entity.CreatedAt, entity.UpdatedAt)
	require.NoError(t, err)

	_, err = mainDB.Exec(`INSERT INTO projects (id, entity_id, name, type, created_at, updated_at)
		VALUES ('proj-1', ?, 'VAT 2026', ?, ?, ?)`, entity.ID, model.ProjectKsiegowosc, now, now)
	require.NoError(t, err)

	_, err = mainDB.Exec(`INSERT INTO tasks (id, project_id, name, created_at, updated_at)
		VALUES ('task-1', 'proj-1', 'Styczeń', ?, ?)`, now, now)
	require.NoError(t, err)

	_, err = mainDB.Exec(`INSERT INTO documents (id, task_id, doc_type, created_at, updated_at)
		VALUES ('doc-1', 'task-1', 'invoice', ?, ?)`, now, now)
	require.NoError(t, err)

	require.NoError(t, m.MigrateToEntityDB(mainDB, entity))

	entityDB, err := m.Open(entity.Nip)
	require.NoError(t, err)

	var projectCount, taskCount, docCount int
	require.NoError(t, entityDB.Get(&projectCount, `SELECT count(*) FROM projects WHERE id = 'proj-1'`))
	require.NoError(t, entityDB.Get(&taskCount, `SELECT count(*) FROM tasks WHERE id = 'task-1'`))
	require.NoError(t, entityDB.Get(&docCount, `SELECT count(*) FROM documents WHERE id = 'doc-1'`))
	assert.Equal(t, 1, projectCount)
	assert.Equal(t, 1, taskCount)
	assert.Equal(t, 1, docCount)

	resolved, err := m.ResolveByResource(mainDB, "doc-1")
	require.NoError(t, err)
	assert.Same(t, entityDB, resolved)
}

func TestDisabledEntityDBAlwaysReturnsMain(t *testing.T) {
	m, mainDB := newTestManager(t)
	m.cfg.UseEntityDB = false
	t.Cleanup(func() { m.Close() })

	require.NoError(t, m.AddRouting(mainDB, "doc-3", "entity-1", "5213003700", "document"))
	resolved, err := m.ResolveByResource(mainDB, "doc-3")
	require.NoError(t, err)
	assert.Same(t, mainDB, resolved)
}
