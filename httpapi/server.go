// Package httpapi exposes the document-flow engine over JSON HTTP, routed
// through Echo with Bearer JWT authentication on every route except
// /auth/login and /auth/register, matching the Python API's own public
// surface minus magic-link delivery (out of scope; auth.go has no magic-link
// endpoints).
package httpapi

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/exef-pl/exef/access"
	"github.com/exef-pl/exef/adapters"
	"github.com/exef-pl/exef/cache"
	"github.com/exef-pl/exef/config"
	"github.com/exef-pl/exef/flow"
	"github.com/exef-pl/exef/logging"
	"github.com/exef-pl/exef/router"
)

var log = logging.New(map[string]interface{}{"component": "httpapi"})

// Server bundles every dependency a handler needs: the main database, the
// entity router, the adapter registry, the flow engine, and an optional
// cache manager for cross-instance entity-handle invalidation.
type Server struct {
	cfg      config.Config
	mainDB   *sqlx.DB
	router   *router.Manager
	registry *adapters.Registry
	engine   *flow.Engine
	locks    *cache.Manager

	validate *validator.Validate
}

// NewServer builds a Server. locks may be nil when no Redis backend is
// configured.
func NewServer(cfg config.Config, mainDB *sqlx.DB, rt *router.Manager, registry *adapters.Registry, engine *flow.Engine, locks *cache.Manager) *Server {
	return &Server{
		cfg:      cfg,
		mainDB:   mainDB,
		router:   rt,
		registry: registry,
		engine:   engine,
		locks:    locks,
		validate: validator.New(),
	}
}

// bodyValidator wraps go-playground/validator for echo.Context.Validate.
type bodyValidator struct{ v *validator.Validate }

func (b *bodyValidator) Validate(i interface{}) error {
	if err := b.v.Struct(i); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}
	return nil
}

// NewEcho builds an Echo instance wired with this server's middleware and
// routes: CORS, request logging, panic recovery, JWT auth, and the full
// route table.
func (s *Server) NewEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Validator = &bodyValidator{v: s.validate}

	e.Use(middleware.Recover())
	e.Use(middleware.Logger())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: s.cfg.CORSOrigins,
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAuthorization},
	}))
	e.HTTPErrorHandler = s.httpErrorHandler

	s.registerRoutes(e)
	return e
}

// httpErrorHandler maps the access package's sentinel errors, and the
// adapters/flow packages' plain errors, onto the HTTP status taxonomy §7 of
// the specification lays out, falling back to Echo's default otherwise.
func (s *Server) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		_ = c.JSON(httpErr.Code, map[string]interface{}{"error": httpErr.Message})
		return
	}

	switch {
	case errors.Is(err, access.ErrNotFound):
		_ = c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, access.ErrForbidden):
		_ = c.JSON(http.StatusForbidden, map[string]string{"error": err.Error()})
	default:
		log.WithField("error", err.Error()).WithField("path", c.Path()).Error("unhandled request error")
		_ = c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func (s *Server) registerRoutes(e *echo.Echo) {
	auth := e.Group("/auth")
	auth.POST("/register", s.Register)
	auth.POST("/login", s.Login)

	api := e.Group("")
	api.Use(s.requireAuth())

	api.GET("/auth/me", s.Me)
	api.PATCH("/auth/me", s.UpdateMe)

	api.GET("/source-types", s.SourceTypes)

	api.GET("/entities", s.ListEntities)
	api.POST("/entities", s.CreateEntity)
	api.GET("/entities/:id", s.GetEntity)

	api.GET("/projects/:id", s.GetProject)
	api.PATCH("/projects/:id", s.UpdateProject)
	api.POST("/entities/:id/projects", s.CreateProject)
	api.GET("/entities/:id/projects", s.ListProjects)

	api.GET("/projects/:id/sources", s.ListSources)
	api.POST("/projects/:id/sources", s.CreateSource)
	api.PATCH("/sources/:id", s.UpdateSource)
	api.DELETE("/sources/:id", s.DeleteSource)
	api.POST("/sources/:id/test-connection", s.TestConnection)

	api.GET("/projects/:id/tasks", s.ListTasks)
	api.GET("/tasks/:id", s.GetTask)

	api.POST("/flow/import", s.TriggerImport)
	api.POST("/flow/export", s.TriggerExport)
	api.POST("/flow/upload-csv", s.UploadCSV)
	api.GET("/tasks/:id/import-runs", s.ListImportRuns)
	api.GET("/tasks/:id/export-runs", s.ListExportRuns)
	api.GET("/export-runs/:id/download", s.DownloadExport)

	api.GET("/tasks/:id/documents", s.ListDocuments)
	api.POST("/documents", s.CreateDocument)
	api.GET("/documents/:id", s.GetDocument)
	api.DELETE("/documents/:id", s.DeleteDocument)
	api.PATCH("/documents/:id/metadata", s.UpdateDocumentMetadata)
	api.PATCH("/documents/bulk-metadata", s.BulkUpdateDocumentMetadata)
	api.POST("/documents/:id/approve", s.ApproveDocument)
	api.GET("/documents/:id/duplicates", s.DocumentDuplicates)
	api.GET("/tasks/:id/duplicates", s.TaskDuplicates)

	api.POST("/documents/relations", s.CreateRelation)
	api.GET("/documents/:id/relations", s.ListDocumentRelations)
	api.GET("/relations/documents/:id", s.ListDocumentRelationsWithContext)
	api.DELETE("/documents/relations/:id", s.DeleteRelation)
	api.GET("/relation-types", s.RelationTypes)

	api.GET("/search/documents", s.SearchDocuments)
	api.GET("/match/documents/:id", s.MatchDocuments)
}
