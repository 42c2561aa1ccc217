package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/exef-pl/exef/access"
	"github.com/exef-pl/exef/adapters"
	"github.com/exef-pl/exef/model"
	"github.com/exef-pl/exef/security"
)

// sourceTypeInfo describes one registered source type for the source-picker
// UI: {type, name, icon, config_fields}.
type sourceTypeInfo struct {
	Type         model.SourceType `json:"type"`
	Name         string           `json:"name"`
	Icon         string           `json:"icon"`
	ConfigFields []string         `json:"config_fields"`
}

var importSourceTypes = []sourceTypeInfo{
	{model.SourceEmail, "Skrzynka e-mail (IMAP)", "📧", []string{"host", "port", "username", "password", "folder", "use_tls"}},
	{model.SourceKsef, "Krajowy System e-Faktur", "🧾", []string{"nip", "token", "environment"}},
	{model.SourceCsv, "Plik CSV", "📄", []string{"delimiter", "encoding"}},
	{model.SourceUpload, "Wgrywanie plików", "📤", nil},
	{model.SourceWebhook, "Webhook", "🔗", []string{"secret"}},
	{model.SourceManual, "Wprowadzanie ręczne", "✍️", nil},
	{model.SourceBank, "Wyciąg bankowy (format generyczny)", "🏦", []string{"delimiter"}},
	{model.SourceBankING, "ING Bank Śląski", "🏦", []string{"delimiter"}},
	{model.SourceBankMBank, "mBank", "🏦", []string{"delimiter"}},
	{model.SourceBankPKO, "PKO BP", "🏦", []string{"delimiter"}},
	{model.SourceBankSantander, "Santander Bank Polska", "🏦", []string{"delimiter"}},
	{model.SourceBankPekao, "Bank Pekao", "🏦", []string{"delimiter"}},
}

var exportSourceTypes = []sourceTypeInfo{
	{model.SourceWfirma, "wFirma", "📘", []string{"nip", "company_name"}},
	{model.SourceJpkPkpir, "JPK_PKPIR (XML)", "📊", []string{"nip", "company_name"}},
	{model.SourceComarch, "Comarch ERP Optima", "📙", []string{"nip", "company_name"}},
	{model.SourceSymfonia, "Symfonia", "📗", []string{"nip", "company_name"}},
	{model.SourceEnova, "enova365", "📕", []string{"nip", "company_name"}},
	{model.SourceCsv, "Plik CSV", "📄", []string{"delimiter", "encoding"}},
}

// SourceTypes lists the registered import and export adapter types for the
// source-picker UI.
func (s *Server) SourceTypes(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"import_types": importSourceTypes,
		"export_types": exportSourceTypes,
	})
}

// dataSourceRow mirrors the flow package's scan shape: Config is a JSON text
// column, not something sqlx can scan into a map directly.
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

// toModel unmarshals the stored config and masks credential fields: API
// responses never echo a source's password/secret/token back, encrypted
// or not.
func (r dataSourceRow) toModel() model.DataSource {
	cfg := map[string]any{}
	if r.ConfigText != "" {
		_ = json.Unmarshal([]byte(r.ConfigText), &cfg)
	}
	cfg = security.MaskSecrets(cfg)
	return model.DataSource{
		ID: r.ID, ProjectID: r.ProjectID, Direction: model.SourceDirection(r.Direction),
		SourceType: model.SourceType(r.SourceType), Name: r.Name, Icon: r.Icon, Config: cfg,
		IsActive: r.IsActive, AutoPull: r.AutoPull, PullIntervalMin: r.PullIntervalMin,
		LastRunAt: r.LastRunAt, LastRunStatus: r.LastRunStatus, LastRunCount: r.LastRunCount,
		LastRunError: r.LastRunError, CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
	}
}

const dataSourceColumns = `id, project_id, direction, source_type, name, icon, config,
	is_active, auto_pull, pull_interval_minutes, last_run_at, last_run_status, last_run_count,
	last_run_error, created_at, updated_at`

// ListSources lists a project's data sources, optionally filtered by
// direction (?direction=import|export).
func (s *Server) ListSources(c echo.Context) error {
	projectID := c.Param("id")
	entityDB, err := s.router.ResolveByResource(s.mainDB, projectID)
	if err != nil {
		return err
	}
	if _, err := access.CheckProjectAccess(s.mainDB, entityDB, projectID, identityID(c), false); err != nil {
		return err
	}

	var rows []dataSourceRow
	direction := c.QueryParam("direction")
	if direction != "" {
		err = entityDB.Select(&rows, `SELECT `+dataSourceColumns+` FROM data_sources
			WHERE project_id = ? AND direction = ? ORDER BY created_at`, projectID, direction)
	} else {
		err = entityDB.Select(&rows, `SELECT `+dataSourceColumns+` FROM data_sources
			WHERE project_id = ? ORDER BY created_at`, projectID)
	}
	if err != nil {
		return err
	}

	sources := make([]model.DataSource, len(rows))
	for i, r := range rows {
		sources[i] = r.toModel()
	}
	return c.JSON(http.StatusOK, sources)
}

type createSourceRequest struct {
	Direction  model.SourceDirection `json:"direction" validate:"required"`
	SourceType model.SourceType      `json:"source_type" validate:"required"`
	Name       string                `json:"name" validate:"required"`
	Icon       string                `json:"icon"`
	Config     map[string]any        `json:"config"`
}

// CreateSource adds a data source to a project, requiring edit access.
func (s *Server) CreateSource(c echo.Context) error {
	projectID := c.Param("id")
	entityDB, err := s.router.ResolveByResource(s.mainDB, projectID)
	if err != nil {
		return err
	}
	if _, err := access.CheckProjectAccess(s.mainDB, entityDB, projectID, identityID(c), true); err != nil {
		return err
	}

	var req createSourceRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "nieprawidłowe dane")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	configText, err := json.Marshal(security.EncryptSecrets(req.Config, s.cfg.SourceSecretKey))
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	id := uuid.NewString()
	_, err = entityDB.Exec(`INSERT INTO data_sources
		(id, project_id, direction, source_type, name, icon, config, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 1, ?, ?)`,
		id, projectID, req.Direction, req.SourceType, req.Name, req.Icon, string(configText), now, now)
	if err != nil {
		return err
	}

	if nip, routeErr := routingNipFor(s, entityDB, projectID); routeErr == nil {
		_ = s.router.AddRouting(s.mainDB, id, "", nip, "source")
	}

	var row dataSourceRow
	if err := entityDB.Get(&row, `SELECT `+dataSourceColumns+` FROM data_sources WHERE id = ?`, id); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, row.toModel())
}

// routingNipFor looks up the entity nip that owns projectID's resources, so
// a newly created source under per-entity storage gets a routing row too.
func routingNipFor(s *Server, entityDB interface {
	Get(dest interface{}, query string, args ...interface{}) error
}, projectID string) (string, error) {
	var project model.Project
	if err := entityDB.Get(&project, `SELECT * FROM projects WHERE id = ?`, projectID); err != nil {
		return "", err
	}
	var entity model.Entity
	if err := s.mainDB.Get(&entity, `SELECT * FROM entities WHERE id = ?`, project.EntityID); err != nil {
		return "", err
	}
	return entity.Nip, nil
}

type updateSourceRequest struct {
	Name            *string        `json:"name"`
	IsActive        *bool          `json:"is_active"`
	AutoPull        *bool          `json:"auto_pull"`
	PullIntervalMin *int           `json:"pull_interval_minutes"`
	Config          map[string]any `json:"config"`
}

// UpdateSource patches a data source's mutable fields.
func (s *Server) UpdateSource(c echo.Context) error {
	sourceID := c.Param("id")
	entityDB, err := s.router.ResolveByResource(s.mainDB, sourceID)
	if err != nil {
		return err
	}

	var row dataSourceRow
	if err := entityDB.Get(&row, `SELECT `+dataSourceColumns+` FROM data_sources WHERE id = ?`, sourceID); err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "źródło danych nie znalezione")
	}
	source := row.toModel()
	if _, err := access.CheckProjectAccess(s.mainDB, entityDB, source.ProjectID, identityID(c), true); err != nil {
		return err
	}

	var req updateSourceRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "nieprawidłowe dane")
	}

	now := time.Now().UTC()
	if req.Name != nil {
		if _, err := entityDB.Exec(`UPDATE data_sources SET name = ?, updated_at = ? WHERE id = ?`, *req.Name, now, sourceID); err != nil {
			return err
		}
	}
	if req.IsActive != nil {
		if _, err := entityDB.Exec(`UPDATE data_sources SET is_active = ?, updated_at = ? WHERE id = ?`, *req.IsActive, now, sourceID); err != nil {
			return err
		}
	}
	if req.AutoPull != nil {
		if _, err := entityDB.Exec(`UPDATE data_sources SET auto_pull = ?, updated_at = ? WHERE id = ?`, *req.AutoPull, now, sourceID); err != nil {
			return err
		}
	}
	if req.PullIntervalMin != nil {
		if _, err := entityDB.Exec(`UPDATE data_sources SET pull_interval_minutes = ?, updated_at = ? WHERE id = ?`, *req.PullIntervalMin, now, sourceID); err != nil {
			return err
		}
	}
	if req.Config != nil {
		configText, err := json.Marshal(security.EncryptSecrets(req.Config, s.cfg.SourceSecretKey))
		if err != nil {
			return err
		}
		if _, err := entityDB.Exec(`UPDATE data_sources SET config = ?, updated_at = ? WHERE id = ?`, string(configText), now, sourceID); err != nil {
			return err
		}
	}

	if err := entityDB.Get(&row, `SELECT `+dataSourceColumns+` FROM data_sources WHERE id = ?`, sourceID); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, row.toModel())
}

// DeleteSource removes a data source, requiring edit access.
func (s *Server) DeleteSource(c echo.Context) error {
	sourceID := c.Param("id")
	entityDB, err := s.router.ResolveByResource(s.mainDB, sourceID)
	if err != nil {
		return err
	}

	var row dataSourceRow
	if err := entityDB.Get(&row, `SELECT `+dataSourceColumns+` FROM data_sources WHERE id = ?`, sourceID); err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "źródło danych nie znalezione")
	}
	source := row.toModel()
	if _, err := access.CheckProjectAccess(s.mainDB, entityDB, source.ProjectID, identityID(c), true); err != nil {
		return err
	}

	if _, err := entityDB.Exec(`DELETE FROM data_sources WHERE id = ?`, sourceID); err != nil {
		return err
	}
	_ = s.router.RemoveRouting(s.mainDB, sourceID)
	return c.NoContent(http.StatusNoContent)
}

// TestConnection dry-runs a source's adapter connectivity check.
func (s *Server) TestConnection(c echo.Context) error {
	sourceID := c.Param("id")
	entityDB, err := s.router.ResolveByResource(s.mainDB, sourceID)
	if err != nil {
		return err
	}

	var row dataSourceRow
	if err := entityDB.Get(&row, `SELECT `+dataSourceColumns+` FROM data_sources WHERE id = ?`, sourceID); err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "źródło danych nie znalezione")
	}
	source := row.toModel()
	if _, err := access.CheckProjectAccess(s.mainDB, entityDB, source.ProjectID, identityID(c), false); err != nil {
		return err
	}

	rawConfig := map[string]any{}
	if row.ConfigText != "" {
		_ = json.Unmarshal([]byte(row.ConfigText), &rawConfig)
	}
	adapterConfig := adapters.Config(security.DecryptSecrets(rawConfig, s.cfg.SourceSecretKey))

	var status adapters.ConnectionStatus
	if source.Direction == model.DirectionImport {
		status = s.registry.GetImportAdapter(source.SourceType, adapterConfig).TestConnection(c.Request().Context())
	} else {
		status = s.registry.GetExportAdapter(source.SourceType, adapterConfig).TestConnection(c.Request().Context())
	}
	return c.JSON(http.StatusOK, status)
}
