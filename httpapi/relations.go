package httpapi

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/exef-pl/exef/access"
	"github.com/exef-pl/exef/model"
)

type createRelationRequest struct {
	ParentID     string `json:"parent_id" validate:"required"`
	ChildID      string `json:"child_id" validate:"required"`
	RelationType string `json:"relation_type" validate:"required"`
	Description  string `json:"description"`
}

func validRelationType(t string) bool {
	for _, v := range model.RelationTypes {
		if v == t {
			return true
		}
	}
	return false
}

// CreateRelation links two documents with a typed relation, requiring edit
// access to the parent document's project.
func (s *Server) CreateRelation(c echo.Context) error {
	var req createRelationRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "nieprawidłowe dane")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	if !validRelationType(req.RelationType) {
		return echo.NewHTTPError(http.StatusBadRequest, "nieznany typ powiązania")
	}

	entityDB, err := s.router.ResolveByResource(s.mainDB, req.ParentID)
	if err != nil {
		return err
	}
	var parent model.Document
	if err := entityDB.Get(&parent, `SELECT * FROM documents WHERE id = ?`, req.ParentID); err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "dokument nadrzędny nie znaleziony")
	}
	var child model.Document
	if err := entityDB.Get(&child, `SELECT * FROM documents WHERE id = ?`, req.ChildID); err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "dokument podrzędny nie znaleziony")
	}
	var task model.Task
	if err := entityDB.Get(&task, `SELECT * FROM tasks WHERE id = ?`, parent.TaskID); err != nil {
		return err
	}
	if _, err := access.CheckProjectAccess(s.mainDB, entityDB, task.ProjectID, identityID(c), true); err != nil {
		return err
	}

	now := time.Now().UTC()
	relation := model.DocumentRelation{
		ID: uuid.NewString(), ParentID: req.ParentID, ChildID: req.ChildID,
		RelationType: req.RelationType, Description: req.Description,
		CreatedByID: identityID(c), CreatedAt: now,
	}
	if _, err := entityDB.Exec(`INSERT INTO document_relations
		(id, parent_id, child_id, relation_type, description, created_by_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		relation.ID, relation.ParentID, relation.ChildID, relation.RelationType,
		relation.Description, relation.CreatedByID, now); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, relation)
}

// ListDocumentRelations lists relations where the document is either parent
// or child.
func (s *Server) ListDocumentRelations(c echo.Context) error {
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

	var relations []model.DocumentRelation
	if err := entityDB.Select(&relations, `SELECT * FROM document_relations WHERE parent_id = ? OR child_id = ?`, docID, docID); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, relations)
}

// relationWithDocument pairs one relation with the linked document on the
// other side of it, for the /relations/documents/{id} context view.
type relationWithDocument struct {
	model.DocumentRelation
	LinkedDocument model.Document `json:"linked_document"`
}

// ListDocumentRelationsWithContext is like ListDocumentRelations but embeds
// the document on the other side of each relation.
func (s *Server) ListDocumentRelationsWithContext(c echo.Context) error {
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

	var relations []model.DocumentRelation
	if err := entityDB.Select(&relations, `SELECT * FROM document_relations WHERE parent_id = ? OR child_id = ?`, docID, docID); err != nil {
		return err
	}

	result := make([]relationWithDocument, 0, len(relations))
	for _, r := range relations {
		otherID := r.ChildID
		if r.ParentID == docID {
			otherID = r.ChildID
		} else {
			otherID = r.ParentID
		}
		var other model.Document
		if err := entityDB.Get(&other, `SELECT * FROM documents WHERE id = ?`, otherID); err != nil {
			continue
		}
		result = append(result, relationWithDocument{DocumentRelation: r, LinkedDocument: other})
	}
	return c.JSON(http.StatusOK, result)
}

// DeleteRelation removes a document relation.
func (s *Server) DeleteRelation(c echo.Context) error {
	relationID := c.Param("id")
	entityDB, err := s.router.ResolveByResource(s.mainDB, relationID)
	if err != nil {
		return err
	}
	var relation model.DocumentRelation
	if err := entityDB.Get(&relation, `SELECT * FROM document_relations WHERE id = ?`, relationID); err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "powiązanie nie znalezione")
	}
	var parent model.Document
	if err := entityDB.Get(&parent, `SELECT * FROM documents WHERE id = ?`, relation.ParentID); err != nil {
		return err
	}
	var task model.Task
	if err := entityDB.Get(&task, `SELECT * FROM tasks WHERE id = ?`, parent.TaskID); err != nil {
		return err
	}
	if _, err := access.CheckProjectAccess(s.mainDB, entityDB, task.ProjectID, identityID(c), true); err != nil {
		return err
	}

	if _, err := entityDB.Exec(`DELETE FROM document_relations WHERE id = ?`, relationID); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// RelationTypes lists the registered DocumentRelation.RelationType values.
func (s *Server) RelationTypes(c echo.Context) error {
	return c.JSON(http.StatusOK, model.RelationTypes)
}
