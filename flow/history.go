package flow

import (
	"fmt"

	"github.com/exef-pl/exef/access"
	"github.com/exef-pl/exef/model"
)

// ListImportRuns returns every import run for a task, most recent first.
func (e *Engine) ListImportRuns(taskID, identityID string) ([]model.ImportRun, error) {
	entityDB, err := e.router.ResolveByResource(e.mainDB, taskID)
	if err != nil {
		return nil, err
	}

	task, err := loadTask(entityDB, taskID)
	if err != nil {
		return nil, err
	}
	if _, err := access.CheckProjectAccess(e.mainDB, entityDB, task.ProjectID, identityID, false); err != nil {
		return nil, err
	}

	var runs []model.ImportRun
	if err := entityDB.Select(&runs, `SELECT * FROM import_runs WHERE task_id = ? ORDER BY started_at DESC`, taskID); err != nil {
		return nil, fmt.Errorf("list import runs: %w", err)
	}
	return runs, nil
}

// ListExportRuns returns every export run for a task, most recent first.
func (e *Engine) ListExportRuns(taskID, identityID string) ([]model.ExportRun, error) {
	entityDB, err := e.router.ResolveByResource(e.mainDB, taskID)
	if err != nil {
		return nil, err
	}

	task, err := loadTask(entityDB, taskID)
	if err != nil {
		return nil, err
	}
	if _, err := access.CheckProjectAccess(e.mainDB, entityDB, task.ProjectID, identityID, false); err != nil {
		return nil, err
	}

	var runs []model.ExportRun
	if err := entityDB.Select(&runs, `SELECT * FROM export_runs WHERE task_id = ? ORDER BY started_at DESC`, taskID); err != nil {
		return nil, fmt.Errorf("list export runs: %w", err)
	}
	return runs, nil
}

// DownloadExport resolves an export run's rendered content for download,
// checking the identity's access to the owning project via the run's
// source. sourceID routes to the right entity database: an export run's own
// id never gets a routing entry (only sources and tasks do), so the caller
// supplies the source it was triggered from the same way the run's own
// download link is built.
func (e *Engine) DownloadExport(sourceID, runID, identityID string) (*model.ExportRun, error) {
	entityDB, err := e.router.ResolveByResource(e.mainDB, sourceID)
	if err != nil {
		return nil, err
	}

	var run model.ExportRun
	if err := entityDB.Get(&run, `SELECT * FROM export_runs WHERE id = ? AND source_id = ?`, runID, sourceID); err != nil {
		return nil, fmt.Errorf("%w: export run %s", access.ErrNotFound, runID)
	}

	source, err := loadDataSource(entityDB, run.SourceID, e.secretKey)
	if err != nil {
		return nil, err
	}
	if _, err := access.CheckProjectAccess(e.mainDB, entityDB, source.ProjectID, identityID, false); err != nil {
		return nil, err
	}

	if run.OutputContent == "" {
		return nil, fmt.Errorf("%w: export run %s has no rendered content", access.ErrNotFound, runID)
	}

	return &run, nil
}
