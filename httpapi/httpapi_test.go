package httpapi

import (
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/exef-pl/exef/adapters"
	"github.com/exef-pl/exef/config"
	"github.com/exef-pl/exef/flow"
	"github.com/exef-pl/exef/router"
	"github.com/exef-pl/exef/store"
)

// testFixture wires one sqlite file with both schemas, entity routing
// disabled (the default/tested mode), a fully-constructed Server, and one
// owner identity/entity/project/task ready for handlers to operate on. Mirrors
// flow.testFixture's shape.
type testFixture struct {
	db         *sqlx.DB
	server     *Server
	echo       *echo.Echo
	identityID string
	email      string
	password   string
	entityID   string
	projectID  string
	taskID     string
}

func newTestFixture(t *testing.T) *testFixture {
	t.Helper()
	dir := t.TempDir()

	db, err := store.OpenMain(filepath.Join(dir, "exef.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	_, err = db.Exec(store.EntitySchema)
	require.NoError(t, err)

	cfg := config.Defaults()
	cfg.UseEntityDB = false
	cfg.JWTSecret = "test-secret"
	rt := router.NewManager(cfg)
	registry := adapters.NewRegistry()
	engine := flow.NewEngine(db, rt, registry, cfg.SourceSecretKey)

	server := NewServer(cfg, db, rt, registry, engine, nil)
	e := server.NewEcho()

	now := time.Now().UTC()
	identityID := uuid.NewString()
	email := "accountant@example.test"
	password := "correct-horse-battery"
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO identities (id, email, password_hash, is_active, created_at, updated_at)
		VALUES (?, ?, ?, 1, ?, ?)`, identityID, email, string(hash), now, now)
	require.NoError(t, err)

	entityID := uuid.NewString()
	_, err = db.Exec(`INSERT INTO entities (id, type, name, nip, owner_id, created_at, updated_at)
		VALUES (?, 'jdg', 'Test JDG', '1234563218', ?, ?, ?)`, entityID, identityID, now, now)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO entity_members
		(id, entity_id, identity_id, role, can_manage_projects, can_invite_members, can_export, joined_at)
		VALUES (?, ?, ?, 'owner', 1, 1, 1, ?)`, uuid.NewString(), entityID, identityID, now)
	require.NoError(t, err)

	projectID := uuid.NewString()
	_, err = db.Exec(`INSERT INTO projects (id, entity_id, name, type, is_active, created_at, updated_at)
		VALUES (?, ?, 'KPiR lipiec', 'kpir', 1, ?, ?)`, projectID, entityID, now, now)
	require.NoError(t, err)

	taskID := uuid.NewString()
	_, err = db.Exec(`INSERT INTO tasks (id, project_id, name, created_at, updated_at)
		VALUES (?, ?, 'Import faktur', ?, ?)`, taskID, projectID, now, now)
	require.NoError(t, err)

	return &testFixture{
		db: db, server: server, echo: e,
		identityID: identityID, email: email, password: password,
		entityID: entityID, projectID: projectID, taskID: taskID,
	}
}

// addTask creates a new project (and one task inside it) under the
// fixture's entity, returning the task id. Used by tests that need a
// second project to exercise same-project exclusion logic.
func (f *testFixture) addTask(t *testing.T, projectName string) string {
	t.Helper()
	now := time.Now().UTC()
	projectID := uuid.NewString()
	_, err := f.db.Exec(`INSERT INTO projects (id, entity_id, name, type, is_active, created_at, updated_at)
		VALUES (?, ?, ?, 'kpir', 1, ?, ?)`, projectID, f.entityID, projectName, now, now)
	require.NoError(t, err)

	taskID := uuid.NewString()
	_, err = f.db.Exec(`INSERT INTO tasks (id, project_id, name, created_at, updated_at)
		VALUES (?, ?, 'Zadanie', ?, ?)`, taskID, projectID, now, now)
	require.NoError(t, err)
	return taskID
}

// addSource inserts a data source directly, embedding raw CSV/file content
// under the "_content" config key the way flow's own test fixture does, so
// handler tests can trigger a real import/export without a network adapter.
func (f *testFixture) addSource(t *testing.T, direction, sourceType, content string) string {
	t.Helper()
	now := time.Now().UTC()
	sourceID := uuid.NewString()
	cfg := `{"_content":` + jsonQuote(content) + `}`
	_, err := f.db.Exec(`INSERT INTO data_sources (id, project_id, direction, source_type, name, config, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, 'test source', ?, 1, ?, ?)`,
		sourceID, f.projectID, direction, sourceType, cfg, now, now)
	require.NoError(t, err)
	return sourceID
}

func jsonQuote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

// token issues a bearer token for the fixture's owner identity.
func (f *testFixture) token(t *testing.T) string {
	t.Helper()
	tok, err := f.server.issueToken(f.identityID)
	require.NoError(t, err)
	return tok
}

// request round-trips a request through the fixture's Echo instance, setting
// a bearer token unless auth is empty.
func (f *testFixture) request(t *testing.T, method, path, body, auth string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if auth != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+auth)
	}
	rec := httptest.NewRecorder()
	f.echo.ServeHTTP(rec, req)
	return rec
}

func (f *testFixture) authedRequest(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	return f.request(t, method, path, body, f.token(t))
}
