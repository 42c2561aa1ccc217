package httpapi

import (
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/exef-pl/exef/access"
	"github.com/exef-pl/exef/model"
)

var polishMonthNames = []string{
	"styczeń", "luty", "marzec", "kwiecień", "maj", "czerwiec",
	"lipiec", "sierpień", "wrzesień", "październik", "listopad", "grudzień",
}

// GetProject returns one project, requiring at least view access.
func (s *Server) GetProject(c echo.Context) error {
	entityDB, err := s.router.ResolveByResource(s.mainDB, c.Param("id"))
	if err != nil {
		return err
	}
	grant, err := access.CheckProjectAccess(s.mainDB, entityDB, c.Param("id"), identityID(c), false)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, grant.Project)
}

type updateProjectRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	IsActive    *bool   `json:"is_active"`
	IsArchived  *bool   `json:"is_archived"`
}

// UpdateProject patches a project, requiring edit access (member with
// can_manage_projects/owner, or an authorization with can_describe).
func (s *Server) UpdateProject(c echo.Context) error {
	entityDB, err := s.router.ResolveByResource(s.mainDB, c.Param("id"))
	if err != nil {
		return err
	}
	if _, err := access.CheckProjectAccess(s.mainDB, entityDB, c.Param("id"), identityID(c), true); err != nil {
		return err
	}

	var req updateProjectRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "nieprawidłowe dane")
	}

	now := time.Now().UTC()
	if req.Name != nil {
		if _, err := entityDB.Exec(`UPDATE projects SET name = ?, updated_at = ? WHERE id = ?`, *req.Name, now, c.Param("id")); err != nil {
			return err
		}
	}
	if req.Description != nil {
		if _, err := entityDB.Exec(`UPDATE projects SET description = ?, updated_at = ? WHERE id = ?`, *req.Description, now, c.Param("id")); err != nil {
			return err
		}
	}
	if req.IsActive != nil {
		if _, err := entityDB.Exec(`UPDATE projects SET is_active = ?, updated_at = ? WHERE id = ?`, *req.IsActive, now, c.Param("id")); err != nil {
			return err
		}
	}
	if req.IsArchived != nil {
		if _, err := entityDB.Exec(`UPDATE projects SET is_archived = ?, updated_at = ? WHERE id = ?`, *req.IsArchived, now, c.Param("id")); err != nil {
			return err
		}
	}

	var project model.Project
	if err := entityDB.Get(&project, `SELECT * FROM projects WHERE id = ?`, c.Param("id")); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, project)
}

// ListProjects lists every project inside an entity the identity belongs to.
func (s *Server) ListProjects(c echo.Context) error {
	entityID := c.Param("id")
	if _, err := access.CheckEntityAccess(s.mainDB, entityID, identityID(c), false); err != nil {
		return err
	}
	entityDB, err := s.router.ResolveByEntity(s.mainDB, entityID)
	if err != nil {
		return err
	}
	var projects []model.Project
	if err := entityDB.Select(&projects, `SELECT * FROM projects WHERE entity_id = ? ORDER BY created_at DESC`, entityID); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, projects)
}

type createProjectRequest struct {
	TemplateID  string          `json:"template_id"`
	Name        string          `json:"name"`
	Type        model.ProjectType `json:"type"`
	Year        int             `json:"year" validate:"required"`
	PeriodStart *time.Time      `json:"period_start"`
	PeriodEnd   *time.Time      `json:"period_end"`
}

// CreateProject creates a project inside an entity, optionally expanding a
// ProjectTemplate into its recurring tasks (§4.5 "Template-driven project
// creation"). Requires can_manage_projects/owner membership.
func (s *Server) CreateProject(c echo.Context) error {
	entityID := c.Param("id")
	grant, err := access.CheckEntityAccess(s.mainDB, entityID, identityID(c), false)
	if err != nil {
		return err
	}
	if !grant.Membership.CanManageProjects && grant.Membership.Role != model.RoleOwner {
		return echo.NewHTTPError(http.StatusForbidden, "brak uprawnień do tworzenia projektów")
	}

	var req createProjectRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "nieprawidłowe dane")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	entityDB, err := s.router.ResolveByEntity(s.mainDB, entityID)
	if err != nil {
		return err
	}

	var tmpl *model.ProjectTemplate
	if req.TemplateID != "" {
		var t model.ProjectTemplate
		if err := s.mainDB.Get(&t, `SELECT * FROM project_templates WHERE id = ?`, req.TemplateID); err != nil {
			return fmt.Errorf("%w: template %s", access.ErrNotFound, req.TemplateID)
		}
		tmpl = &t
	}

	now := time.Now().UTC()
	project := model.Project{
		ID:          uuid.NewString(),
		EntityID:    entityID,
		TemplateID:  req.TemplateID,
		Name:        req.Name,
		Type:        req.Type,
		Year:        req.Year,
		PeriodStart: req.PeriodStart,
		PeriodEnd:   req.PeriodEnd,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if tmpl != nil {
		if project.Name == "" {
			project.Name = tmpl.Name
		}
		project.Type = tmpl.ProjectType
		project.Icon = tmpl.DefaultIcon
		project.Color = tmpl.DefaultColor
	}

	tx, err := entityDB.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`INSERT INTO projects
		(id, entity_id, template_id, name, type, period_start, period_end, year, icon, color, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)`,
		project.ID, project.EntityID, nullIfEmpty(project.TemplateID), project.Name, project.Type,
		project.PeriodStart, project.PeriodEnd, project.Year, project.Icon, project.Color, now, now); err != nil {
		return err
	}

	if err := s.router.AddRouting(s.mainDB, project.ID, entityID, grant.Entity.Nip, "project"); err != nil {
		return err
	}

	if tmpl != nil {
		tasks := expandTemplateIntoTasks(*tmpl, req.Year, req.PeriodStart, req.PeriodEnd)
		for _, task := range tasks {
			task.ID = uuid.NewString()
			task.ProjectID = project.ID
			task.Status = model.TaskPending
			task.ImportStatus = model.PhaseNotStarted
			task.DescribeStatus = model.PhaseNotStarted
			task.ExportStatus = model.PhaseNotStarted
			if _, err := tx.Exec(`INSERT INTO tasks
				(id, project_id, name, icon, period_start, period_end, deadline, status,
				 import_status, describe_status, export_status, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				task.ID, task.ProjectID, task.Name, tmpl.TaskIcon, task.PeriodStart, task.PeriodEnd,
				task.Deadline, task.Status, task.ImportStatus, task.DescribeStatus, task.ExportStatus, now, now); err != nil {
				return err
			}
			if err := s.router.AddRouting(s.mainDB, task.ID, entityID, grant.Entity.Nip, "task"); err != nil {
				return err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, project)
}

// expandTemplateIntoTasks generates the recurring Task windows a
// ProjectTemplate describes for one year, per §4.5's recurrence rules.
func expandTemplateIntoTasks(tmpl model.ProjectTemplate, year int, periodStart, periodEnd *time.Time) []model.Task {
	switch tmpl.TaskRecurrence {
	case model.RecurrenceMonthly:
		tasks := make([]model.Task, 0, 12)
		for month := 1; month <= 12; month++ {
			start := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
			end := start.AddDate(0, 1, -1)
			deadline := deadlineFor(tmpl.DeadlineDay, year, month+1)
			tasks = append(tasks, model.Task{
				Name:        monthlyTaskName(tmpl.TaskNameTemplate, month, year),
				PeriodStart: &start,
				PeriodEnd:   &end,
				Deadline:    &deadline,
			})
		}
		return tasks
	case model.RecurrenceQuarterly:
		tasks := make([]model.Task, 0, 4)
		for q := 0; q < 4; q++ {
			startMonth := q*3 + 1
			start := time.Date(year, time.Month(startMonth), 1, 0, 0, 0, 0, time.UTC)
			end := start.AddDate(0, 3, -1)
			deadline := deadlineFor(tmpl.DeadlineDay, year, startMonth+3)
			name := fmt.Sprintf("%s Q%d %d", orDefaultTemplate(tmpl.TaskNameTemplate), q+1, year)
			tasks = append(tasks, model.Task{Name: name, PeriodStart: &start, PeriodEnd: &end, Deadline: &deadline})
		}
		return tasks
	case model.RecurrenceYearly:
		start := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
		end := time.Date(year, 12, 31, 0, 0, 0, 0, time.UTC)
		deadline := deadlineFor(tmpl.DeadlineDay, year+1, 1)
		name := fmt.Sprintf("%s %d", orDefaultTemplate(tmpl.TaskNameTemplate), year)
		return []model.Task{{Name: name, PeriodStart: &start, PeriodEnd: &end, Deadline: &deadline}}
	default: // once
		name := orDefaultTemplate(tmpl.TaskNameTemplate)
		return []model.Task{{Name: name, PeriodStart: periodStart, PeriodEnd: periodEnd, Deadline: periodEnd}}
	}
}

func orDefaultTemplate(name string) string {
	if name == "" {
		return "Zadanie"
	}
	return name
}

func monthlyTaskName(tmplName string, month, year int) string {
	name := orDefaultTemplate(tmplName)
	monthName := polishMonthNames[month-1]
	return fmt.Sprintf("%s %s %d", name, monthName, year)
}

// deadlineFor clamps deadlineDay to the target month's length, carrying the
// year rollover when month overflows past December.
func deadlineFor(deadlineDay, year, month int) time.Time {
	for month > 12 {
		month -= 12
		year++
	}
	firstOfNext := time.Date(year, time.Month(month)+1, 1, 0, 0, 0, 0, time.UTC)
	lastDay := firstOfNext.AddDate(0, 0, -1).Day()
	if deadlineDay > lastDay {
		deadlineDay = lastDay
	}
	if deadlineDay < 1 {
		deadlineDay = 1
	}
	return time.Date(year, time.Month(month), deadlineDay, 0, 0, 0, 0, time.UTC)
}
