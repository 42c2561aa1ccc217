package httpapi

import (
	"fmt"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
)

type triggerImportRequest struct {
	SourceID string `json:"source_id" validate:"required"`
	TaskID   string `json:"task_id" validate:"required"`
}

// TriggerImport runs a source's import adapter against a task.
func (s *Server) TriggerImport(c echo.Context) error {
	var req triggerImportRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "nieprawidłowe dane")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	run, err := s.engine.TriggerImport(c.Request().Context(), req.SourceID, req.TaskID, identityID(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, run)
}

type triggerExportRequest struct {
	SourceID    string   `json:"source_id" validate:"required"`
	TaskID      string   `json:"task_id" validate:"required"`
	DocumentIDs []string `json:"document_ids"`
}

// TriggerExport renders a task's described/approved documents (or an
// explicit id subset) through an export source's adapter.
func (s *Server) TriggerExport(c echo.Context) error {
	var req triggerExportRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "nieprawidłowe dane")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	outcome, err := s.engine.TriggerExport(c.Request().Context(), req.SourceID, req.TaskID, identityID(c), req.DocumentIDs)
	if err != nil {
		return err
	}
	if !outcome.OK {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"ok":            false,
			"message":       outcome.Message,
			"docs_exported": outcome.DocsExported,
		})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"ok":            true,
		"docs_exported": outcome.DocsExported,
		"run":           outcome.Run,
	})
}

// UploadCSV imports a manually uploaded CSV file's rows directly into a task.
func (s *Server) UploadCSV(c echo.Context) error {
	taskID := c.FormValue("task_id")
	if taskID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "brak task_id")
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "brak pliku")
	}
	file, err := fileHeader.Open()
	if err != nil {
		return err
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return err
	}

	result, err := s.engine.UploadCSV(c.Request().Context(), taskID, identityID(c), fileHeader.Filename, content)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

// ListImportRuns lists a task's import run history, most recent first.
func (s *Server) ListImportRuns(c echo.Context) error {
	runs, err := s.engine.ListImportRuns(c.Param("id"), identityID(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, runs)
}

// ListExportRuns lists a task's export run history, most recent first.
func (s *Server) ListExportRuns(c echo.Context) error {
	runs, err := s.engine.ListExportRuns(c.Param("id"), identityID(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, runs)
}

// DownloadExport streams a rendered export run's content back as an
// attachment. The owning data source is supplied via ?source_id= since an
// export run id alone carries no routing entry of its own.
func (s *Server) DownloadExport(c echo.Context) error {
	sourceID := c.QueryParam("source_id")
	if sourceID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "brak source_id")
	}

	run, err := s.engine.DownloadExport(sourceID, c.Param("id"), identityID(c))
	if err != nil {
		return err
	}

	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s"`, run.OutputFilename))
	return c.Blob(http.StatusOK, run.OutputFormat, []byte(run.OutputContent))
}
