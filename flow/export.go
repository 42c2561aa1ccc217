package flow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/exef-pl/exef/access"
	"github.com/exef-pl/exef/adapters"
	"github.com/exef-pl/exef/model"
)

// ExportOutcome reports why TriggerExport did or didn't produce a run: a
// task with nothing described/approved yet returns ok=false rather than an
// error, the way the original endpoint distinguishes "nothing to do" from a
// failure.
type ExportOutcome struct {
	OK           bool
	Message      string
	DocsExported int
	Run          *model.ExportRun
}

func loadDocumentsForExport(entityDB *sqlx.DB, taskID string, documentIDs []string) ([]model.Document, error) {
	var docs []model.Document
	if len(documentIDs) > 0 {
		query, args, err := sqlx.In(`SELECT * FROM documents WHERE task_id = ? AND id IN (?)`, taskID, documentIDs)
		if err != nil {
			return nil, fmt.Errorf("build document selection query: %w", err)
		}
		query = entityDB.Rebind(query)
		if err := entityDB.Select(&docs, query, args...); err != nil {
			return nil, fmt.Errorf("select documents by id: %w", err)
		}
		return docs, nil
	}

	err := entityDB.Select(&docs, `SELECT * FROM documents WHERE task_id = ? AND status IN (?, ?)`,
		taskID, model.DocumentDescribed, model.DocumentApproved)
	if err != nil {
		return nil, fmt.Errorf("select exportable documents: %w", err)
	}
	return docs, nil
}

func loadMetadataByDocumentID(entityDB *sqlx.DB, documentIDs []string) (map[string]model.DocumentMetadata, error) {
	result := make(map[string]model.DocumentMetadata, len(documentIDs))
	if len(documentIDs) == 0 {
		return result, nil
	}

	query, args, err := sqlx.In(`SELECT * FROM document_metadata WHERE document_id IN (?)`, documentIDs)
	if err != nil {
		return nil, fmt.Errorf("build metadata selection query: %w", err)
	}
	query = entityDB.Rebind(query)

	var rows []model.DocumentMetadata
	if err := entityDB.Select(&rows, query, args...); err != nil {
		return nil, fmt.Errorf("select document metadata: %w", err)
	}
	for _, m := range rows {
		result[m.DocumentID] = m
	}
	return result, nil
}

// TriggerExport renders the task's described/approved documents (or an
// explicit id subset) through the source's export adapter and records the
// run.
func (e *Engine) TriggerExport(ctx context.Context, sourceID, taskID, identityID string, documentIDs []string) (*ExportOutcome, error) {
	entityDB, err := e.router.ResolveByResource(e.mainDB, sourceID)
	if err != nil {
		return nil, err
	}

	source, err := loadDataSource(entityDB, sourceID, e.secretKey)
	if err != nil {
		return nil, err
	}
	if source.Direction != model.DirectionExport {
		return nil, fmt.Errorf("%w: source %s is not an export source", access.ErrForbidden, sourceID)
	}

	task, err := loadTask(entityDB, taskID)
	if err != nil {
		return nil, err
	}

	if _, err := access.CheckProjectAccess(e.mainDB, entityDB, source.ProjectID, identityID, true); err != nil {
		return nil, err
	}

	docs, err := loadDocumentsForExport(entityDB, task.ID, documentIDs)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return &ExportOutcome{OK: false, Message: "Brak opisanych dokumentów do eksportu — najpierw opisz dokumenty", DocsExported: 0}, nil
	}

	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}
	metaByDoc, err := loadMetadataByDocumentID(entityDB, ids)
	if err != nil {
		return nil, err
	}

	exportDocs := make([]adapters.ExportDocument, len(docs))
	for i, d := range docs {
		ed := adapters.ExportDocument{Document: d}
		if m, ok := metaByDoc[d.ID]; ok {
			mCopy := m
			ed.Metadata = &mCopy
		}
		exportDocs[i] = ed
	}

	adapter := e.registry.GetExportAdapter(source.SourceType, adapters.Config(source.Config))

	log.WithField("source_id", source.ID).WithField("source_type", source.SourceType).
		WithField("task_id", task.ID).WithField("docs", len(exportDocs)).Info("export run starting")

	result, err := adapter.Export(ctx, exportDocs, task.Name)
	if err != nil {
		return nil, fmt.Errorf("export via %s adapter: %w", source.SourceType, err)
	}

	now := time.Now().UTC()
	tx, err := entityDB.Beginx()
	if err != nil {
		return nil, fmt.Errorf("begin export transaction: %w", err)
	}
	defer tx.Rollback()

	placeholders := make([]string, len(ids))
	args := make([]interface{}, 0, len(ids)+1)
	args = append(args, model.DocumentExported)
	for i, id := range ids {
		placeholders[i] = "?"
		args = append(args, id)
	}
	updateQuery := fmt.Sprintf(`UPDATE documents SET status = ? WHERE id IN (%s)`, strings.Join(placeholders, ","))
	if _, err := tx.Exec(updateQuery, args...); err != nil {
		return nil, fmt.Errorf("mark documents exported: %w", err)
	}

	exportStatus := task.ExportStatus
	if exportStatus == model.PhaseNotStarted {
		exportStatus = model.PhaseInProgress
	}
	taskStatus := task.Status
	newDocsExported := task.DocsExported + len(docs)
	if newDocsExported >= task.DocsTotal && task.DocsTotal > 0 {
		exportStatus = model.PhaseCompleted
		taskStatus = model.TaskExported
	}
	if _, err := tx.Exec(`UPDATE tasks SET docs_exported = docs_exported + ?, export_status = ?, status = ?, updated_at = ?
		WHERE id = ?`, len(docs), exportStatus, taskStatus, now, task.ID); err != nil {
		return nil, fmt.Errorf("update task phase counters: %w", err)
	}

	run := &model.ExportRun{
		ID:             uuid.NewString(),
		SourceID:       source.ID,
		TaskID:         task.ID,
		Status:         model.RunSuccess,
		DocsExported:   len(docs),
		OutputFormat:   result.Format,
		OutputFilename: result.Filename,
		OutputContent:  string(result.Content),
		StartedAt:      now,
		FinishedAt:     &now,
		TriggeredByID:  identityID,
	}
	if _, err := tx.Exec(`INSERT INTO export_runs
		(id, source_id, task_id, status, docs_exported, docs_failed, errors, output_format, output_filename,
		 output_content, started_at, finished_at, triggered_by_id)
		VALUES (?, ?, ?, ?, ?, 0, '[]', ?, ?, ?, ?, ?, ?)`,
		run.ID, run.SourceID, run.TaskID, run.Status, run.DocsExported, run.OutputFormat, run.OutputFilename,
		run.OutputContent, run.StartedAt, run.FinishedAt, run.TriggeredByID); err != nil {
		return nil, fmt.Errorf("insert export run: %w", err)
	}

	if _, err := tx.Exec(`UPDATE data_sources SET last_run_at = ?, last_run_status = ?, last_run_count = ? WHERE id = ?`,
		now, "success", len(docs), source.ID); err != nil {
		return nil, fmt.Errorf("update data source last run: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit export transaction: %w", err)
	}

	log.WithField("source_id", source.ID).WithField("task_id", task.ID).
		WithField("exported", run.DocsExported).WithField("filename", run.OutputFilename).Info("export run finished")

	return &ExportOutcome{OK: true, DocsExported: len(docs), Run: run}, nil
}
