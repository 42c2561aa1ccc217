package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/exef-pl/exef/access"
	"github.com/exef-pl/exef/docid"
	"github.com/exef-pl/exef/model"
)

// documentMetadataRow is the raw scan shape for one document_metadata row,
// since Tags/CustomFields are stored as JSON text columns.
type documentMetadataRow struct {
	ID               string     `db:"id"`
	DocumentID       string     `db:"document_id"`
	Category         string     `db:"category"`
	Description      string     `db:"description"`
	TagsText         string     `db:"tags"`
	CustomFieldsText string     `db:"custom_fields"`
	EditedByID       string     `db:"edited_by_id"`
	EditedAt         *time.Time `db:"edited_at"`
	Version          int        `db:"version"`
}

func (r documentMetadataRow) toModel() model.DocumentMetadata {
	var tags []string
	if r.TagsText != "" {
		_ = json.Unmarshal([]byte(r.TagsText), &tags)
	}
	fields := map[string]string{}
	if r.CustomFieldsText != "" {
		_ = json.Unmarshal([]byte(r.CustomFieldsText), &fields)
	}
	return model.DocumentMetadata{
		ID: r.ID, DocumentID: r.DocumentID, Category: r.Category, Description: r.Description,
		Tags: tags, CustomFields: fields, EditedByID: r.EditedByID, EditedAt: r.EditedAt, Version: r.Version,
	}
}

const documentMetadataColumns = `id, document_id, category, description, tags, custom_fields, edited_by_id, edited_at, version`

func loadDocumentMetadata(entityDB interface {
	Get(dest interface{}, query string, args ...interface{}) error
}, documentID string) (*model.DocumentMetadata, error) {
	var row documentMetadataRow
	if err := entityDB.Get(&row, `SELECT `+documentMetadataColumns+` FROM document_metadata WHERE document_id = ?`, documentID); err != nil {
		return nil, err
	}
	m := row.toModel()
	return &m, nil
}

// documentWithMetadata is the wire shape for document listing/detail
// endpoints: the document plus its always-present side-car.
type documentWithMetadata struct {
	model.Document
	Metadata *model.DocumentMetadata `json:"metadata,omitempty"`
}

// ListDocuments lists a task's documents, optionally filtered by status.
func (s *Server) ListDocuments(c echo.Context) error {
	taskID := c.Param("id")
	entityDB, err := s.router.ResolveByResource(s.mainDB, taskID)
	if err != nil {
		return err
	}
	var task model.Task
	if err := entityDB.Get(&task, `SELECT * FROM tasks WHERE id = ?`, taskID); err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "zadanie nie znalezione")
	}
	if _, err := access.CheckProjectAccess(s.mainDB, entityDB, task.ProjectID, identityID(c), false); err != nil {
		return err
	}

	var docs []model.Document
	status := c.QueryParam("status")
	if status != "" {
		err = entityDB.Select(&docs, `SELECT * FROM documents WHERE task_id = ? AND status = ? ORDER BY document_date DESC`, taskID, status)
	} else {
		err = entityDB.Select(&docs, `SELECT * FROM documents WHERE task_id = ? ORDER BY document_date DESC`, taskID)
	}
	if err != nil {
		return err
	}

	result := make([]documentWithMetadata, len(docs))
	for i, d := range docs {
		result[i] = documentWithMetadata{Document: d}
		if meta, err := loadDocumentMetadata(entityDB, d.ID); err == nil {
			result[i].Metadata = meta
		}
	}
	return c.JSON(http.StatusOK, result)
}

type createDocumentRequest struct {
	TaskID         string          `json:"task_id" validate:"required"`
	DocType        string          `json:"doc_type"`
	Number         string          `json:"number"`
	ContractorName string          `json:"contractor_name"`
	ContractorNip  string          `json:"contractor_nip"`
	AmountNet      *decimal.Decimal `json:"amount_net"`
	AmountVat      *decimal.Decimal `json:"amount_vat"`
	AmountGross    *decimal.Decimal `json:"amount_gross"`
	Currency       string          `json:"currency"`
	DocumentDate   *time.Time      `json:"document_date"`
}

// CreateDocument manually creates a document (the "manual entry" source),
// requiring edit access to its owning task's project.
func (s *Server) CreateDocument(c echo.Context) error {
	var req createDocumentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "nieprawidłowe dane")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	entityDB, err := s.router.ResolveByResource(s.mainDB, req.TaskID)
	if err != nil {
		return err
	}
	var task model.Task
	if err := entityDB.Get(&task, `SELECT * FROM tasks WHERE id = ?`, req.TaskID); err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "zadanie nie znalezione")
	}
	if _, err := access.CheckProjectAccess(s.mainDB, entityDB, task.ProjectID, identityID(c), true); err != nil {
		return err
	}

	docType := orDefaultString(req.DocType, "invoice")
	currency := orDefaultString(req.Currency, "PLN")
	dateText := ""
	if req.DocumentDate != nil {
		dateText = req.DocumentDate.Format("2006-01-02")
	}
	generatedDocID, _ := docid.Generate(req.ContractorNip, req.Number, dateText, decimalOrEmpty(req.AmountGross), docType)

	now := time.Now().UTC()
	doc := model.Document{
		ID: uuid.NewString(), TaskID: req.TaskID, DocType: docType, Number: req.Number,
		ContractorName: req.ContractorName, ContractorNip: req.ContractorNip,
		AmountNet: req.AmountNet, AmountVat: req.AmountVat, AmountGross: req.AmountGross,
		Currency: currency, DocumentDate: req.DocumentDate, DocID: generatedDocID,
		Source: "manual", Status: model.DocumentNew, CreatedAt: now, UpdatedAt: now,
	}

	tx, err := entityDB.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`INSERT INTO documents
		(id, task_id, doc_type, number, contractor_name, contractor_nip, amount_net, amount_vat,
		 amount_gross, currency, document_date, doc_id, source, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.TaskID, doc.DocType, doc.Number, doc.ContractorName, doc.ContractorNip,
		decimalTextOrNil(doc.AmountNet), decimalTextOrNil(doc.AmountVat), decimalTextOrNil(doc.AmountGross),
		doc.Currency, doc.DocumentDate, doc.DocID, doc.Source, doc.Status, now, now); err != nil {
		return err
	}
	if _, err := tx.Exec(`INSERT INTO document_metadata
		(id, document_id, tags, custom_fields, edited_by_id, edited_at, version)
		VALUES (?, ?, '[]', '{}', ?, ?, 1)`, uuid.NewString(), doc.ID, identityID(c), now); err != nil {
		return err
	}
	if _, err := tx.Exec(`UPDATE tasks SET docs_total = docs_total + 1, updated_at = ? WHERE id = ?`, now, req.TaskID); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, doc)
}

// GetDocument returns one document with its metadata side-car.
func (s *Server) GetDocument(c echo.Context) error {
	docID := c.Param("id")
	entityDB, err := s.router.ResolveByResource(s.mainDB, docID)
	if err != nil {
		return err
	}
	var doc model.Document
	if err := entityDB.Get(&doc, `SELECT * FROM documents WHERE id = ?`, docID); err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "dokument nie znaleziony")
	}
	var task model.Task
	if err := entityDB.Get(&task, `SELECT * FROM tasks WHERE id = ?`, doc.TaskID); err != nil {
		return err
	}
	if _, err := access.CheckProjectAccess(s.mainDB, entityDB, task.ProjectID, identityID(c), false); err != nil {
		return err
	}

	result := documentWithMetadata{Document: doc}
	if meta, err := loadDocumentMetadata(entityDB, doc.ID); err == nil {
		result.Metadata = meta
	}
	return c.JSON(http.StatusOK, result)
}

// DeleteDocument removes a document and its metadata/relations.
func (s *Server) DeleteDocument(c echo.Context) error {
	docID := c.Param("id")
	entityDB, err := s.router.ResolveByResource(s.mainDB, docID)
	if err != nil {
		return err
	}
	var doc model.Document
	if err := entityDB.Get(&doc, `SELECT * FROM documents WHERE id = ?`, docID); err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "dokument nie znaleziony")
	}
	var task model.Task
	if err := entityDB.Get(&task, `SELECT * FROM tasks WHERE id = ?`, doc.TaskID); err != nil {
		return err
	}
	if _, err := access.CheckProjectAccess(s.mainDB, entityDB, task.ProjectID, identityID(c), true); err != nil {
		return err
	}

	tx, err := entityDB.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.Exec(`DELETE FROM document_relations WHERE parent_id = ? OR child_id = ?`, docID, docID); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM document_metadata WHERE document_id = ?`, docID); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM documents WHERE id = ?`, docID); err != nil {
		return err
	}
	if _, err := tx.Exec(`UPDATE tasks SET docs_total = MAX(docs_total - 1, 0), updated_at = ? WHERE id = ?`, time.Now().UTC(), doc.TaskID); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

type updateMetadataRequest struct {
	Category     *string           `json:"category"`
	Description  *string           `json:"description"`
	Tags         []string          `json:"tags"`
	CustomFields map[string]string `json:"custom_fields"`
}

// UpdateDocumentMetadata patches a document's metadata side-car, advancing
// new → described and bumping the version counter.
func (s *Server) UpdateDocumentMetadata(c echo.Context) error {
	docID := c.Param("id")
	entityDB, err := s.router.ResolveByResource(s.mainDB, docID)
	if err != nil {
		return err
	}
	var doc model.Document
	if err := entityDB.Get(&doc, `SELECT * FROM documents WHERE id = ?`, docID); err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "dokument nie znaleziony")
	}
	var task model.Task
	if err := entityDB.Get(&task, `SELECT * FROM tasks WHERE id = ?`, doc.TaskID); err != nil {
		return err
	}
	if _, err := access.CheckProjectAccess(s.mainDB, entityDB, task.ProjectID, identityID(c), true); err != nil {
		return err
	}

	var req updateMetadataRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "nieprawidłowe dane")
	}

	existing, err := loadDocumentMetadata(entityDB, doc.ID)
	if err != nil {
		return err
	}
	category := existing.Category
	if req.Category != nil {
		category = *req.Category
	}
	description := existing.Description
	if req.Description != nil {
		description = *req.Description
	}
	tags := existing.Tags
	if req.Tags != nil {
		tags = req.Tags
	}
	fields := existing.CustomFields
	if req.CustomFields != nil {
		fields = req.CustomFields
	}
	tagsText, _ := json.Marshal(tags)
	fieldsText, _ := json.Marshal(fields)

	now := time.Now().UTC()
	if _, err := entityDB.Exec(`UPDATE document_metadata SET category = ?, description = ?, tags = ?,
		custom_fields = ?, edited_by_id = ?, edited_at = ?, version = version + 1 WHERE document_id = ?`,
		category, description, string(tagsText), string(fieldsText), identityID(c), now, docID); err != nil {
		return err
	}

	if doc.Status == model.DocumentNew {
		if _, err := entityDB.Exec(`UPDATE documents SET status = ?, updated_at = ? WHERE id = ?`, model.DocumentDescribed, now, docID); err != nil {
			return err
		}
		if _, err := entityDB.Exec(`UPDATE tasks SET docs_described = docs_described + 1, updated_at = ? WHERE id = ?`, now, doc.TaskID); err != nil {
			return err
		}
	}

	return s.GetDocument(c)
}

type bulkMetadataRequest struct {
	DocumentIDs []string `json:"document_ids" validate:"required"`
	Category    *string  `json:"category"`
	Description *string  `json:"description"`
	Tags        []string `json:"tags"`
}

// BulkUpdateDocumentMetadata applies category/description/tags across many
// documents at once, merging tag lists rather than overwriting.
func (s *Server) BulkUpdateDocumentMetadata(c echo.Context) error {
	var req bulkMetadataRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "nieprawidłowe dane")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	if len(req.DocumentIDs) == 0 {
		return c.JSON(http.StatusOK, map[string]interface{}{"updated": 0})
	}

	updated := 0
	for _, docID := range req.DocumentIDs {
		entityDB, err := s.router.ResolveByResource(s.mainDB, docID)
		if err != nil {
			continue
		}
		var doc model.Document
		if err := entityDB.Get(&doc, `SELECT * FROM documents WHERE id = ?`, docID); err != nil {
			continue
		}
		var task model.Task
		if err := entityDB.Get(&task, `SELECT * FROM tasks WHERE id = ?`, doc.TaskID); err != nil {
			continue
		}
		if _, err := access.CheckProjectAccess(s.mainDB, entityDB, task.ProjectID, identityID(c), true); err != nil {
			continue
		}

		row, err := loadDocumentMetadata(entityDB, docID)
		if err != nil {
			continue
		}
		now := time.Now().UTC()
		category := row.Category
		if req.Category != nil {
			category = *req.Category
		}
		description := row.Description
		if req.Description != nil {
			description = *req.Description
		}
		tags := mergeTags(row.Tags, req.Tags)
		tagsText, _ := json.Marshal(tags)

		if _, err := entityDB.Exec(`UPDATE document_metadata SET category = ?, description = ?, tags = ?,
			edited_by_id = ?, edited_at = ?, version = version + 1 WHERE document_id = ?`,
			category, description, string(tagsText), identityID(c), now, docID); err != nil {
			continue
		}

		if doc.Status == model.DocumentNew {
			if _, err := entityDB.Exec(`UPDATE documents SET status = ?, updated_at = ? WHERE id = ?`, model.DocumentDescribed, now, docID); err == nil {
				_, _ = entityDB.Exec(`UPDATE tasks SET docs_described = docs_described + 1, updated_at = ? WHERE id = ?`, now, doc.TaskID)
			}
		}
		updated++
	}

	return c.JSON(http.StatusOK, map[string]interface{}{"updated": updated})
}

func mergeTags(existing, added []string) []string {
	seen := make(map[string]bool, len(existing))
	result := make([]string, 0, len(existing)+len(added))
	for _, t := range existing {
		if !seen[t] {
			seen[t] = true
			result = append(result, t)
		}
	}
	for _, t := range added {
		if !seen[t] {
			seen[t] = true
			result = append(result, t)
		}
	}
	return result
}

// ApproveDocument advances a document described → approved, requiring
// approve permission: edit access to the project and, for a delegated
// authorization, can_approve as well.
func (s *Server) ApproveDocument(c echo.Context) error {
	docID := c.Param("id")
	entityDB, err := s.router.ResolveByResource(s.mainDB, docID)
	if err != nil {
		return err
	}
	var doc model.Document
	if err := entityDB.Get(&doc, `SELECT * FROM documents WHERE id = ?`, docID); err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "dokument nie znaleziony")
	}
	var task model.Task
	if err := entityDB.Get(&task, `SELECT * FROM tasks WHERE id = ?`, doc.TaskID); err != nil {
		return err
	}
	grant, err := access.CheckProjectAccess(s.mainDB, entityDB, task.ProjectID, identityID(c), true)
	if err != nil {
		return err
	}
	if grant.Kind == "authorized" {
		var auth model.ProjectAuthorization
		if err := entityDB.Get(&auth, `SELECT * FROM project_authorizations WHERE project_id = ? AND identity_id = ?`,
			task.ProjectID, identityID(c)); err != nil || !auth.CanApprove {
			return echo.NewHTTPError(http.StatusForbidden, "brak uprawnienia do zatwierdzania dokumentów")
		}
	}
	if doc.Status != model.DocumentDescribed {
		return echo.NewHTTPError(http.StatusConflict, "dokument musi być najpierw opisany")
	}

	now := time.Now().UTC()
	if _, err := entityDB.Exec(`UPDATE documents SET status = ?, updated_at = ? WHERE id = ?`, model.DocumentApproved, now, docID); err != nil {
		return err
	}
	if _, err := entityDB.Exec(`UPDATE tasks SET docs_approved = docs_approved + 1, updated_at = ? WHERE id = ?`, now, doc.TaskID); err != nil {
		return err
	}

	return s.GetDocument(c)
}

// DocumentDuplicates returns other documents across the entity sharing the
// same doc_id.
func (s *Server) DocumentDuplicates(c echo.Context) error {
	docID := c.Param("id")
	entityDB, err := s.router.ResolveByResource(s.mainDB, docID)
	if err != nil {
		return err
	}
	var doc model.Document
	if err := entityDB.Get(&doc, `SELECT * FROM documents WHERE id = ?`, docID); err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "dokument nie znaleziony")
	}
	var task model.Task
	if err := entityDB.Get(&task, `SELECT * FROM tasks WHERE id = ?`, doc.TaskID); err != nil {
		return err
	}
	if _, err := access.CheckProjectAccess(s.mainDB, entityDB, task.ProjectID, identityID(c), false); err != nil {
		return err
	}
	if doc.DocID == "" {
		return c.JSON(http.StatusOK, []model.Document{})
	}

	var dupes []model.Document
	if err := entityDB.Select(&dupes, `SELECT * FROM documents WHERE doc_id = ? AND id != ?`, doc.DocID, docID); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, dupes)
}

// TaskDuplicates groups a task's documents by doc_id, returning only the
// groups containing more than one document.
func (s *Server) TaskDuplicates(c echo.Context) error {
	taskID := c.Param("id")
	entityDB, err := s.router.ResolveByResource(s.mainDB, taskID)
	if err != nil {
		return err
	}
	var task model.Task
	if err := entityDB.Get(&task, `SELECT * FROM tasks WHERE id = ?`, taskID); err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "zadanie nie znalezione")
	}
	if _, err := access.CheckProjectAccess(s.mainDB, entityDB, task.ProjectID, identityID(c), false); err != nil {
		return err
	}

	var docs []model.Document
	if err := entityDB.Select(&docs, `SELECT * FROM documents WHERE task_id = ? AND doc_id != ''`, taskID); err != nil {
		return err
	}

	groups := map[string][]model.Document{}
	for _, d := range docs {
		groups[d.DocID] = append(groups[d.DocID], d)
	}
	result := make([][]model.Document, 0)
	for _, group := range groups {
		if len(group) > 1 {
			result = append(result, group)
		}
	}
	return c.JSON(http.StatusOK, result)
}

func orDefaultString(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func decimalOrEmpty(d *decimal.Decimal) string {
	if d == nil {
		return ""
	}
	return d.StringFixed(2)
}

func decimalTextOrNil(d *decimal.Decimal) interface{} {
	if d == nil {
		return nil
	}
	return d.StringFixed(2)
}
