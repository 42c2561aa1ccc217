// Package flow implements the three-phase import/describe/export workflow:
// pulling documents in through an adapter, tracking task phase counters, and
// rendering an export through the matching adapter. It is the transport-
// agnostic core the HTTP API's /flow endpoints call into.
package flow

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/exef-pl/exef/access"
	"github.com/exef-pl/exef/adapters"
	"github.com/exef-pl/exef/docid"
	"github.com/exef-pl/exef/logging"
	"github.com/exef-pl/exef/model"
	"github.com/exef-pl/exef/router"
	"github.com/exef-pl/exef/security"
)

var log = logging.New(map[string]interface{}{"component": "flow"})

// Engine orchestrates import/export runs against a main database, the
// adapter registry, and the entity router.
type Engine struct {
	mainDB    *sqlx.DB
	router    *router.Manager
	registry  *adapters.Registry
	secretKey string
}

// NewEngine builds a flow Engine. secretKey, when non-empty, must match the
// key CreateSource/UpdateSource used to encrypt a source's credential
// fields, so the loaded adapter config can decrypt them again.
func NewEngine(mainDB *sqlx.DB, rt *router.Manager, registry *adapters.Registry, secretKey string) *Engine {
	return &Engine{mainDB: mainDB, router: rt, registry: registry, secretKey: secretKey}
}

// dataSourceRow is the raw scan shape for one data_sources row, since
// model.DataSource.Config is stored as a JSON text column.
type dataSourceRow struct {
	ID              string     `db:"id"`
	ProjectID       string     `db:"project_id"`
	Direction       string     `db:"direction"`
	SourceType      string     `db:"source_type"`
	Name            string     `db:"name"`
	Icon            string     `db:"icon"`
	ConfigText      string     `db:"config"`
	IsActive        bool       `db:"is_active"`
	AutoPull        bool       `db:"auto_pull"`
	PullIntervalMin int        `db:"pull_interval_minutes"`
	LastRunAt       *time.Time `db:"last_run_at"`
	LastRunStatus   string     `db:"last_run_status"`
	LastRunCount    int        `db:"last_run_count"`
	LastRunError    string     `db:"last_run_error"`
	CreatedAt       time.Time  `db:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at"`
}

func (r dataSourceRow) toModel() model.DataSource {
	cfg := map[string]any{}
	if r.ConfigText != "" {
		_ = json.Unmarshal([]byte(r.ConfigText), &cfg)
	}
	return model.DataSource{
		ID:              r.ID,
		ProjectID:       r.ProjectID,
		Direction:       model.SourceDirection(r.Direction),
		SourceType:      model.SourceType(r.SourceType),
		Name:            r.Name,
		Icon:            r.Icon,
		Config:          cfg,
		IsActive:        r.IsActive,
		AutoPull:        r.AutoPull,
		PullIntervalMin: r.PullIntervalMin,
		LastRunAt:       r.LastRunAt,
		LastRunStatus:   r.LastRunStatus,
		LastRunCount:    r.LastRunCount,
		LastRunError:    r.LastRunError,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}

func loadDataSource(entityDB *sqlx.DB, id, secretKey string) (*model.DataSource, error) {
	var row dataSourceRow
	err := entityDB.Get(&row, `SELECT id, project_id, direction, source_type, name, icon, config,
		is_active, auto_pull, pull_interval_minutes, last_run_at, last_run_status, last_run_count,
		last_run_error, created_at, updated_at FROM data_sources WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("%w: data source %s", access.ErrNotFound, id)
	}
	ds := row.toModel()
	ds.Config = security.DecryptSecrets(ds.Config, secretKey)
	return &ds, nil
}

func loadTask(entityDB *sqlx.DB, id string) (*model.Task, error) {
	var task model.Task
	if err := entityDB.Get(&task, `SELECT * FROM tasks WHERE id = ?`, id); err != nil {
		return nil, fmt.Errorf("%w: task %s", access.ErrNotFound, id)
	}
	return &task, nil
}

// TriggerImport runs one import adapter against a task on behalf of
// identityID and records the run.
func (e *Engine) TriggerImport(ctx context.Context, sourceID, taskID, identityID string) (*model.ImportRun, error) {
	return e.triggerImport(ctx, sourceID, taskID, identityID, true)
}

// SystemIdentityID marks an ImportRun/ExportRun as triggered by the
// scheduler rather than a signed-in identity.
const SystemIdentityID = "system:scheduler"

// TriggerImportSystem runs one import adapter the way TriggerImport does,
// without an access check — for the scheduler's auto_pull tick, which acts
// on the server's own behalf rather than a signed-in identity's.
func (e *Engine) TriggerImportSystem(ctx context.Context, sourceID, taskID string) (*model.ImportRun, error) {
	return e.triggerImport(ctx, sourceID, taskID, SystemIdentityID, false)
}

func (e *Engine) triggerImport(ctx context.Context, sourceID, taskID, identityID string, enforceAccess bool) (*model.ImportRun, error) {
	entityDB, err := e.router.ResolveByResource(e.mainDB, sourceID)
	if err != nil {
		return nil, err
	}

	source, err := loadDataSource(entityDB, sourceID, e.secretKey)
	if err != nil {
		return nil, err
	}
	if source.Direction != model.DirectionImport {
		return nil, fmt.Errorf("%w: source %s is not an import source", access.ErrForbidden, sourceID)
	}

	task, err := loadTask(entityDB, taskID)
	if err != nil {
		return nil, err
	}

	if enforceAccess {
		if _, err := access.CheckProjectAccess(e.mainDB, entityDB, source.ProjectID, identityID, true); err != nil {
			return nil, err
		}
	}

	adapter := e.registry.GetImportAdapter(source.SourceType, adapters.Config(source.Config))

	log.WithField("source_id", source.ID).WithField("source_type", source.SourceType).
		WithField("task_id", task.ID).Info("import run starting")

	results, fetchErr := adapter.Fetch(ctx, task.PeriodStart, task.PeriodEnd)
	if fetchErr != nil {
		return e.recordFailedImportRun(entityDB, source, task, identityID, fetchErr)
	}

	now := time.Now().UTC()
	run := &model.ImportRun{
		ID:            uuid.NewString(),
		SourceID:      source.ID,
		TaskID:        task.ID,
		Status:        model.RunSuccess,
		DocsFound:     len(results),
		StartedAt:     now,
		FinishedAt:    &now,
		TriggeredByID: identityID,
	}

	tx, err := entityDB.Beginx()
	if err != nil {
		return nil, fmt.Errorf("begin import transaction: %w", err)
	}
	defer tx.Rollback()

	created := 0
	for _, r := range results {
		docID := uuid.NewString()
		dateText := ""
		if r.DocumentDate != nil {
			dateText = r.DocumentDate.Format("2006-01-02")
		}
		generatedDocID, _ := docid.Generate(r.ContractorNIP, r.Number, dateText, decimalText(r.AmountGross), orDefault(r.DocType, "invoice"))

		filePath := r.OriginalFilename
		if _, err := tx.Exec(`INSERT INTO documents
			(id, task_id, doc_type, number, contractor_name, contractor_nip, amount_net, amount_vat,
			 amount_gross, currency, document_date, doc_id, source, source_id, status, file_path,
			 created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			docID, task.ID, orDefault(r.DocType, "invoice"), r.Number, r.ContractorName, r.ContractorNIP,
			decimalText(r.AmountNet), decimalText(r.AmountVAT), decimalText(r.AmountGross),
			orDefault(r.Currency, "PLN"), r.DocumentDate, generatedDocID, r.Source, r.SourceID,
			model.DocumentNew, filePath, now, now); err != nil {
			return nil, fmt.Errorf("insert document: %w", err)
		}

		if _, err := tx.Exec(`INSERT INTO document_metadata
			(id, document_id, category, description, tags, custom_fields, edited_by_id, edited_at, version)
			VALUES (?, ?, ?, ?, '[]', '{}', ?, ?, 1)`,
			uuid.NewString(), docID, r.Category, r.Description, identityID, now); err != nil {
			return nil, fmt.Errorf("insert document metadata: %w", err)
		}

		created++
	}

	importStatus := task.ImportStatus
	if importStatus == model.PhaseNotStarted {
		importStatus = model.PhaseInProgress
	}
	taskStatus := task.Status
	if taskStatus == model.TaskPending {
		taskStatus = model.TaskInProgress
	}
	if _, err := tx.Exec(`UPDATE tasks SET docs_total = docs_total + ?, import_status = ?, status = ?, updated_at = ?
		WHERE id = ?`, created, importStatus, taskStatus, now, task.ID); err != nil {
		return nil, fmt.Errorf("update task phase counters: %w", err)
	}

	run.DocsImported = created
	if _, err := tx.Exec(`INSERT INTO import_runs
		(id, source_id, task_id, status, docs_found, docs_imported, docs_skipped, errors, started_at, finished_at, triggered_by_id)
		VALUES (?, ?, ?, ?, ?, ?, 0, '[]', ?, ?, ?)`,
		run.ID, run.SourceID, run.TaskID, run.Status, run.DocsFound, run.DocsImported, run.StartedAt, run.FinishedAt, run.TriggeredByID); err != nil {
		return nil, fmt.Errorf("insert import run: %w", err)
	}

	if _, err := tx.Exec(`UPDATE data_sources SET last_run_at = ?, last_run_status = ?, last_run_count = ? WHERE id = ?`,
		now, "success", created, source.ID); err != nil {
		return nil, fmt.Errorf("update data source last run: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit import transaction: %w", err)
	}

	log.WithField("source_id", source.ID).WithField("task_id", task.ID).
		WithField("found", run.DocsFound).WithField("imported", run.DocsImported).Info("import run finished")

	return run, nil
}

// recordFailedImportRun persists an ImportRun with status=error instead of
// letting an adapter fetch failure bubble up as a 500: the client needs the
// run history entry and the error string to display, not a bare HTTP error.
func (e *Engine) recordFailedImportRun(entityDB *sqlx.DB, source *model.DataSource, task *model.Task, identityID string, fetchErr error) (*model.ImportRun, error) {
	now := time.Now().UTC()
	errText := fmt.Sprintf("fetch from %s adapter: %s", source.SourceType, fetchErr.Error())
	errorsJSON, _ := json.Marshal([]string{errText})

	run := &model.ImportRun{
		ID:            uuid.NewString(),
		SourceID:      source.ID,
		TaskID:        task.ID,
		Status:        model.RunError,
		Errors:        []string{errText},
		StartedAt:     now,
		FinishedAt:    &now,
		TriggeredByID: identityID,
	}

	if _, err := entityDB.Exec(`INSERT INTO import_runs
		(id, source_id, task_id, status, docs_found, docs_imported, docs_skipped, errors, started_at, finished_at, triggered_by_id)
		VALUES (?, ?, ?, ?, 0, 0, 0, ?, ?, ?, ?)`,
		run.ID, run.SourceID, run.TaskID, run.Status, string(errorsJSON), run.StartedAt, run.FinishedAt, run.TriggeredByID); err != nil {
		return nil, fmt.Errorf("insert failed import run: %w", err)
	}

	if _, err := entityDB.Exec(`UPDATE data_sources SET last_run_at = ?, last_run_status = ?, last_run_count = 0, last_run_error = ? WHERE id = ?`,
		now, "error", errText, source.ID); err != nil {
		return nil, fmt.Errorf("update data source last run: %w", err)
	}

	log.WithField("source_id", source.ID).WithField("task_id", task.ID).
		WithField("error", errText).Warn("import run failed")

	return run, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// decimalText renders a *decimal.Decimal for TEXT-column storage, empty
// string for nil (NULL).
func decimalText(d *decimal.Decimal) string {
	if d == nil {
		return ""
	}
	return d.StringFixed(2)
}
