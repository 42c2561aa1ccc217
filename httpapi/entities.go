package httpapi

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/exef-pl/exef/access"
	"github.com/exef-pl/exef/docid"
	"github.com/exef-pl/exef/model"
)

// ListEntities returns every entity the authenticated identity is a member
// of (owner, accountant, assistant, or viewer alike).
func (s *Server) ListEntities(c echo.Context) error {
	var entities []model.Entity
	err := s.mainDB.Select(&entities, `SELECT e.* FROM entities e
		JOIN entity_members m ON m.entity_id = e.id
		WHERE m.identity_id = ? AND e.is_archived = 0
		ORDER BY e.created_at DESC`, identityID(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, entities)
}

type createEntityRequest struct {
	Type model.EntityType `json:"type" validate:"required"`
	Name string           `json:"name" validate:"required"`
	Nip  string           `json:"nip"`
}

// CreateEntity registers a new business the identity owns, along with an
// owner entity_members row, the way a first-time sign-up provisions its own
// JDG in the Python original.
func (s *Server) CreateEntity(c echo.Context) error {
	var req createEntityRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "nieprawidłowe dane")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	if req.Nip != "" && !docid.ValidNIPChecksum(req.Nip) {
		return echo.NewHTTPError(http.StatusBadRequest, "nieprawidłowa suma kontrolna NIP")
	}

	now := time.Now().UTC()
	entity := model.Entity{
		ID:        uuid.NewString(),
		Type:      req.Type,
		Name:      req.Name,
		Nip:       req.Nip,
		OwnerID:   identityID(c),
		CreatedAt: now,
		UpdatedAt: now,
	}

	tx, err := s.mainDB.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`INSERT INTO entities (id, type, name, nip, owner_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`, entity.ID, entity.Type, entity.Name, nullIfEmpty(entity.Nip), entity.OwnerID, now, now); err != nil {
		return err
	}
	if _, err := tx.Exec(`INSERT INTO entity_members
		(id, entity_id, identity_id, role, can_manage_projects, can_invite_members, can_export, joined_at)
		VALUES (?, ?, ?, 'owner', 1, 1, 1, ?)`, uuid.NewString(), entity.ID, entity.OwnerID, now); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, entity)
}

// GetEntity returns one entity, requiring membership.
func (s *Server) GetEntity(c echo.Context) error {
	grant, err := access.CheckEntityAccess(s.mainDB, c.Param("id"), identityID(c), false)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, grant.Entity)
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
