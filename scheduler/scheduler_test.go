package scheduler

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exef-pl/exef/adapters"
	"github.com/exef-pl/exef/config"
	"github.com/exef-pl/exef/flow"
	"github.com/exef-pl/exef/model"
	"github.com/exef-pl/exef/router"
	"github.com/exef-pl/exef/store"
)

type testFixture struct {
	db        *sqlx.DB
	sched     *Scheduler
	projectID string
	taskID    string
}

func newTestFixture(t *testing.T) *testFixture {
	t.Helper()
	dir := t.TempDir()

	db, err := store.OpenMain(filepath.Join(dir, "exef.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	_, err = db.Exec(store.EntitySchema)
	require.NoError(t, err)

	cfg := config.Defaults()
	cfg.UseEntityDB = false
	rt := router.NewManager(cfg)
	registry := adapters.NewRegistry()
	engine := flow.NewEngine(db, rt, registry, "")
	sched := New(db, cfg, rt, engine, nil)

	now := time.Now().UTC()
	identityID := uuid.NewString()
	_, err = db.Exec(`INSERT INTO identities (id, email, password_hash, is_active, created_at, updated_at)
		VALUES (?, ?, 'x', 1, ?, ?)`, identityID, "accountant@example.test", now, now)
	require.NoError(t, err)

	entityID := uuid.NewString()
	_, err = db.Exec(`INSERT INTO entities (id, type, name, nip, owner_id, created_at, updated_at)
		VALUES (?, 'jdg', 'Test JDG', '5213003700', ?, ?, ?)`, entityID, identityID, now, now)
	require.NoError(t, err)

	_, err = db.Exec(`INSERT INTO entity_members
		(id, entity_id, identity_id, role, can_manage_projects, can_invite_members, can_export, joined_at)
		VALUES (?, ?, ?, 'owner', 1, 1, 1, ?)`, uuid.NewString(), entityID, identityID, now)
	require.NoError(t, err)

	projectID := uuid.NewString()
	_, err = db.Exec(`INSERT INTO projects (id, entity_id, name, type, is_active, created_at, updated_at)
		VALUES (?, ?, 'KPiR lipiec', 'kpir', 1, ?, ?)`, projectID, entityID, now, now)
	require.NoError(t, err)

	taskID := uuid.NewString()
	_, err = db.Exec(`INSERT INTO tasks (id, project_id, name, status, created_at, updated_at)
		VALUES (?, ?, 'Import faktur', 'in_progress', ?, ?)`, taskID, projectID, now, now)
	require.NoError(t, err)

	return &testFixture{db: db, sched: sched, projectID: projectID, taskID: taskID}
}

func (f *testFixture) addAutoPullSource(t *testing.T, lastRunAt *time.Time, intervalMinutes int) string {
	t.Helper()
	now := time.Now().UTC()
	sourceID := uuid.NewString()
	content := `{"_content":"numer;kontrahent;nip;kwota_netto;kwota_vat;kwota_brutto;data\n` +
		`FV/1/2026;Acme Sp. z o.o.;5213003700;100.00;23.00;123.00;2026-07-01\n"}`
	_, err := f.db.Exec(`INSERT INTO data_sources
		(id, project_id, direction, source_type, name, config, is_active, auto_pull, pull_interval_minutes,
		 last_run_at, created_at, updated_at)
		VALUES (?, ?, 'import', 'csv', 'auto pull test', ?, 1, 1, ?, ?, ?, ?)`,
		sourceID, f.projectID, content, intervalMinutes, lastRunAt, now, now)
	require.NoError(t, err)
	return sourceID
}

func TestDueImportSourcesSkipsRecentlyRunSources(t *testing.T) {
	f := newTestFixture(t)
	now := time.Now().UTC()
	recent := now.Add(-1 * time.Minute)

	f.addAutoPullSource(t, &recent, 60)

	due, err := dueImportSources(f.db, now)
	require.NoError(t, err)
	assert.Empty(t, due, "a source that ran a minute ago with a 60 minute interval is not due yet")
}

func TestDueImportSourcesIncludesNeverRunSources(t *testing.T) {
	f := newTestFixture(t)
	sourceID := f.addAutoPullSource(t, nil, 60)

	due, err := dueImportSources(f.db, time.Now().UTC())
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, sourceID, due[0].ID)
}

func TestDueImportSourcesIncludesElapsedSources(t *testing.T) {
	f := newTestFixture(t)
	stale := time.Now().UTC().Add(-2 * time.Hour)
	sourceID := f.addAutoPullSource(t, &stale, 60)

	due, err := dueImportSources(f.db, time.Now().UTC())
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, sourceID, due[0].ID)
}

func TestTickRunsDueSourceAndAdvancesLastRunAt(t *testing.T) {
	f := newTestFixture(t)
	f.addAutoPullSource(t, nil, 60)

	f.sched.tick(context.Background())

	var count int
	require.NoError(t, f.db.Get(&count, `SELECT COUNT(*) FROM documents WHERE task_id = ?`, f.taskID))
	assert.Equal(t, 1, count)

	due, err := dueImportSources(f.db, time.Now().UTC())
	require.NoError(t, err)
	assert.Empty(t, due, "last_run_at must have advanced past the tick that just ran")
}

func TestTickSkipsProjectWithNoOpenTask(t *testing.T) {
	f := newTestFixture(t)
	_, err := f.db.Exec(`UPDATE tasks SET status = 'exported' WHERE id = ?`, f.taskID)
	require.NoError(t, err)
	f.addAutoPullSource(t, nil, 60)

	f.sched.tick(context.Background())

	var count int
	require.NoError(t, f.db.Get(&count, `SELECT COUNT(*) FROM import_runs`))
	assert.Zero(t, count, "no open task means nothing should have been imported")
}

func TestCandidateDatabasesReturnsMainDBWhenEntityDBDisabled(t *testing.T) {
	f := newTestFixture(t)
	dbs, err := f.sched.candidateDatabases()
	require.NoError(t, err)
	require.Len(t, dbs, 1)
	assert.Same(t, f.db.DB, dbs[0].DB)
}
