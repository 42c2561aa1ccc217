package httpapi

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/exef-pl/exef/access"
	"github.com/exef-pl/exef/model"
)

// ListTasks lists every task inside a project, requiring at least view
// access to that project.
func (s *Server) ListTasks(c echo.Context) error {
	projectID := c.Param("id")
	entityDB, err := s.router.ResolveByResource(s.mainDB, projectID)
	if err != nil {
		return err
	}
	if _, err := access.CheckProjectAccess(s.mainDB, entityDB, projectID, identityID(c), false); err != nil {
		return err
	}

	var tasks []model.Task
	if err := entityDB.Select(&tasks, `SELECT * FROM tasks WHERE project_id = ? ORDER BY period_start`, projectID); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, tasks)
}

// GetTask returns one task, requiring view access to its owning project.
func (s *Server) GetTask(c echo.Context) error {
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
	return c.JSON(http.StatusOK, task)
}
