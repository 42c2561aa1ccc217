package flow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/exef-pl/exef/access"
	"github.com/exef-pl/exef/adapters"
	"github.com/exef-pl/exef/docid"
	"github.com/exef-pl/exef/model"
)

// UploadResult is the outcome of one CSV upload import.
type UploadResult struct {
	Imported int
	Errors   []string
	Filename string
}

const maxUploadErrors = 10

// UploadCSV parses an uploaded CSV file's content (raw bytes; the CSV
// adapter decodes them with the best-effort UTF-8/CP1250 detection in
// adapters' csvutil helpers) and imports every row directly into task.
func (e *Engine) UploadCSV(ctx context.Context, taskID, identityID, filename string, content []byte) (*UploadResult, error) {
	entityDB, err := e.router.ResolveByResource(e.mainDB, taskID)
	if err != nil {
		return nil, err
	}

	task, err := loadTask(entityDB, taskID)
	if err != nil {
		return nil, err
	}

	if _, err := access.CheckProjectAccess(e.mainDB, entityDB, task.ProjectID, identityID, true); err != nil {
		return nil, err
	}

	csvAdapter := adapters.NewCSVImportAdapter(adapters.Config{"_content": string(content)})
	results, err := csvAdapter.Fetch(ctx, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("parse uploaded csv: %w", err)
	}

	now := time.Now().UTC()
	tx, err := entityDB.Beginx()
	if err != nil {
		return nil, fmt.Errorf("begin upload transaction: %w", err)
	}
	defer tx.Rollback()

	created := 0
	var rowErrors []string
	for idx, r := range results {
		dateText := ""
		if r.DocumentDate != nil {
			dateText = r.DocumentDate.Format("2006-01-02")
		}
		generatedDocID, _ := docid.Generate(r.ContractorNIP, r.Number, dateText, decimalText(r.AmountGross), orDefault(r.DocType, "invoice"))
		docID := uuid.NewString()

		if _, err := tx.Exec(`INSERT INTO documents
			(id, task_id, doc_type, number, contractor_name, contractor_nip, amount_net, amount_vat,
			 amount_gross, currency, document_date, doc_id, source, source_id, status, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			docID, task.ID, orDefault(r.DocType, "invoice"), r.Number, r.ContractorName, r.ContractorNIP,
			decimalText(r.AmountNet), decimalText(r.AmountVAT), decimalText(r.AmountGross),
			orDefault(r.Currency, "PLN"), r.DocumentDate, generatedDocID, "csv_upload",
			fmt.Sprintf("csv-%s-row%d", filename, idx+1), model.DocumentNew, now, now); err != nil {
			rowErrors = append(rowErrors, fmt.Sprintf("row %d: %s", idx+1, err))
			continue
		}

		if r.Description != "" || r.Category != "" {
			if _, err := tx.Exec(`INSERT INTO document_metadata
				(id, document_id, category, description, tags, custom_fields, edited_by_id, edited_at, version)
				VALUES (?, ?, ?, ?, '[]', '{}', ?, ?, 1)`,
				uuid.NewString(), docID, r.Category, r.Description, identityID, now); err != nil {
				rowErrors = append(rowErrors, fmt.Sprintf("row %d metadata: %s", idx+1, err))
				continue
			}
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

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit upload transaction: %w", err)
	}

	if len(rowErrors) > maxUploadErrors {
		rowErrors = rowErrors[:maxUploadErrors]
	}

	log.WithField("task_id", task.ID).WithField("filename", filename).WithField("imported", created).
		Info("csv upload finished")

	return &UploadResult{Imported: created, Errors: rowErrors, Filename: filename}, nil
}
