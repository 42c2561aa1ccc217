package flow

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
	"github.com/exef-pl/exef/model"
	"github.com/exef-pl/exef/router"
	"github.com/exef-pl/exef/store"
)

// testFixture wires one sqlite file carrying both schemas (entity routing
// disabled, same shape the router falls back to when config.UseEntityDB is
// false) with a single identity/entity/project/task/data-source tree ready
// for the flow engine to operate on.
type testFixture struct {
	db         *sqlx.DB
	engine     *Engine
	identityID string
	projectID  string
	taskID     string
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
	engine := NewEngine(db, rt, registry, "")

	now := time.Now().UTC()
	identityID := uuid.NewString()
	_, err = db.Exec(`INSERT INTO identities (id, email, password_hash, is_active, created_at, updated_at)
		VALUES (?, ?, 'x', 1, ?, ?)`, identityID, "accountant@example.test", now, now)
	require.NoError(t, err)

	entityID := uuid.NewString()
	_, err = db.Exec(`INSERT INTO entities (id, type, name, owner_id, created_at, updated_at)
		VALUES (?, 'jdg', 'Test JDG', ?, ?, ?)`, entityID, identityID, now, now)
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
	_, err = db.Exec(`INSERT INTO tasks (id, project_id, name, created_at, updated_at)
		VALUES (?, ?, 'Import faktur', ?, ?)`, taskID, projectID, now, now)
	require.NoError(t, err)

	return &testFixture{db: db, engine: engine, identityID: identityID, projectID: projectID, taskID: taskID}
}

func (f *testFixture) addSource(t *testing.T, direction model.SourceDirection, sourceType model.SourceType, content string) string {
	t.Helper()
	now := time.Now().UTC()
	sourceID := uuid.NewString()
	_, err := f.db.Exec(`INSERT INTO data_sources (id, project_id, direction, source_type, name, config, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, 'test source', ?, 1, ?, ?)`,
		sourceID, f.projectID, string(direction), string(sourceType), `{"_content":`+quoteJSON(content)+`}`, now, now)
	require.NoError(t, err)
	return sourceID
}

func quoteJSON(s string) string {
	out := make([]byte, 0, len(s)+2)
	out = append(out, '"')
	for _, r := range s {
		switch r {
		case '"':
			out = append(out, '\\', '"')
		case '\\':
			out = append(out, '\\', '\\')
		case '\n':
			out = append(out, '\\', 'n')
		default:
			out = append(out, string(r)...)
		}
	}
	out = append(out, '"')
	return string(out)
}

const sampleCSV = "numer;kontrahent;nip;kwota_netto;kwota_vat;kwota_brutto;data\n" +
	"FV/1/2026;Acme Sp. z o.o.;5213003700;100.00;23.00;123.00;2026-07-01\n" +
	"FV/2/2026;Other Sp. z o.o.;1234563218;200.00;46.00;246.00;2026-07-05\n"

func TestTriggerImportInsertsDocumentsAndUpdatesTaskCounters(t *testing.T) {
	f := newTestFixture(t)
	sourceID := f.addSource(t, model.DirectionImport, model.SourceCsv, sampleCSV)

	run, err := f.engine.TriggerImport(context.Background(), sourceID, f.taskID, f.identityID)
	require.NoError(t, err)
	assert.Equal(t, model.RunSuccess, run.Status)
	assert.Equal(t, 2, run.DocsFound)
	assert.Equal(t, 2, run.DocsImported)

	var docCount int
	require.NoError(t, f.db.Get(&docCount, `SELECT COUNT(*) FROM documents WHERE task_id = ?`, f.taskID))
	assert.Equal(t, 2, docCount)

	var task model.Task
	require.NoError(t, f.db.Get(&task, `SELECT * FROM tasks WHERE id = ?`, f.taskID))
	assert.Equal(t, 2, task.DocsTotal)
	assert.Equal(t, model.PhaseInProgress, task.ImportStatus)
	assert.Equal(t, model.TaskInProgress, task.Status)

	var source model.DataSource
	require.NoError(t, f.db.Get(&source, `SELECT id, last_run_status, last_run_count FROM data_sources WHERE id = ?`, sourceID))
	assert.Equal(t, "success", source.LastRunStatus)
	assert.Equal(t, 2, source.LastRunCount)

	runs, err := f.engine.ListImportRuns(f.taskID, f.identityID)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, run.ID, runs[0].ID)
}

func TestTriggerImportRejectsExportSource(t *testing.T) {
	f := newTestFixture(t)
	sourceID := f.addSource(t, model.DirectionExport, model.SourceWfirma, "")

	_, err := f.engine.TriggerImport(context.Background(), sourceID, f.taskID, f.identityID)
	require.Error(t, err)
}

func TestTriggerImportWithFailingAdapterRecordsErrorRun(t *testing.T) {
	f := newTestFixture(t)
	malformedCSV := "numer;kontrahent\nfoo\"bar;baz\n"
	sourceID := f.addSource(t, model.DirectionImport, model.SourceCsv, malformedCSV)

	run, err := f.engine.TriggerImport(context.Background(), sourceID, f.taskID, f.identityID)
	require.NoError(t, err)
	assert.Equal(t, model.RunError, run.Status)
	require.NotEmpty(t, run.Errors)

	runs, err := f.engine.ListImportRuns(f.taskID, f.identityID)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, model.RunError, runs[0].Status)

	var source model.DataSource
	require.NoError(t, f.db.Get(&source, `SELECT id, last_run_status, last_run_error FROM data_sources WHERE id = ?`, sourceID))
	assert.Equal(t, "error", source.LastRunStatus)
	assert.NotEmpty(t, source.LastRunError)

	var task model.Task
	require.NoError(t, f.db.Get(&task, `SELECT * FROM tasks WHERE id = ?`, f.taskID))
	assert.Equal(t, 0, task.DocsTotal)
}

func TestUploadCSVImportsRowsDirectlyIntoTask(t *testing.T) {
	f := newTestFixture(t)

	result, err := f.engine.UploadCSV(context.Background(), f.taskID, f.identityID, "lipiec.csv", []byte(sampleCSV))
	require.NoError(t, err)
	assert.Equal(t, 2, result.Imported)
	assert.Empty(t, result.Errors)

	var task model.Task
	require.NoError(t, f.db.Get(&task, `SELECT * FROM tasks WHERE id = ?`, f.taskID))
	assert.Equal(t, 2, task.DocsTotal)
}

func TestTriggerExportRendersDescribedDocuments(t *testing.T) {
	f := newTestFixture(t)
	importSourceID := f.addSource(t, model.DirectionImport, model.SourceCsv, sampleCSV)

	_, err := f.engine.TriggerImport(context.Background(), importSourceID, f.taskID, f.identityID)
	require.NoError(t, err)

	_, err = f.db.Exec(`UPDATE documents SET status = ? WHERE task_id = ?`, model.DocumentDescribed, f.taskID)
	require.NoError(t, err)

	exportSourceID := f.addSource(t, model.DirectionExport, model.SourceWfirma, "")

	outcome, err := f.engine.TriggerExport(context.Background(), exportSourceID, f.taskID, f.identityID, nil)
	require.NoError(t, err)
	require.True(t, outcome.OK)
	assert.Equal(t, 2, outcome.DocsExported)
	assert.Contains(t, outcome.Run.OutputFilename, "wfirma")

	var exportedCount int
	require.NoError(t, f.db.Get(&exportedCount, `SELECT COUNT(*) FROM documents WHERE task_id = ? AND status = ?`,
		f.taskID, model.DocumentExported))
	assert.Equal(t, 2, exportedCount)

	var task model.Task
	require.NoError(t, f.db.Get(&task, `SELECT * FROM tasks WHERE id = ?`, f.taskID))
	assert.Equal(t, model.PhaseCompleted, task.ExportStatus)
	assert.Equal(t, model.TaskExported, task.Status)

	runs, err := f.engine.ListExportRuns(f.taskID, f.identityID)
	require.NoError(t, err)
	require.Len(t, runs, 1)

	downloaded, err := f.engine.DownloadExport(exportSourceID, outcome.Run.ID, f.identityID)
	require.NoError(t, err)
	assert.Equal(t, outcome.Run.ID, downloaded.ID)
	assert.NotEmpty(t, downloaded.OutputContent)
}

func TestTriggerExportWithNothingDescribedReturnsNotOK(t *testing.T) {
	f := newTestFixture(t)
	exportSourceID := f.addSource(t, model.DirectionExport, model.SourceWfirma, "")

	outcome, err := f.engine.TriggerExport(context.Background(), exportSourceID, f.taskID, f.identityID, nil)
	require.NoError(t, err)
	assert.False(t, outcome.OK)
	assert.NotEmpty(t, outcome.Message)
}
