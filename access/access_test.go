package access

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exef-pl/exef/store"
)

// newTestDB opens one sqlite file carrying both schemas, the same shape the
// router falls back to when per-entity storage is disabled, so a single
// handle can stand in for both mainDB and entityDB.
func newTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	dir := t.TempDir()
	db, err := store.OpenMain(filepath.Join(dir, "exef.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func seedProject(t *testing.T, db *sqlx.DB) (entityID, projectID string) {
	t.Helper()
	now := time.Now().UTC()
	entityID = uuid.NewString()
	_, err := db.Exec(`INSERT INTO entities (id, type, name, owner_id, created_at, updated_at)
		VALUES (?, 'jdg', 'Test JDG', ?, ?, ?)`, entityID, uuid.NewString(), now, now)
	require.NoError(t, err)

	projectID = uuid.NewString()
	_, err = db.Exec(`INSERT INTO projects (id, entity_id, name, type, is_active, created_at, updated_at)
		VALUES (?, ?, 'KPiR lipiec', 'kpir', 1, ?, ?)`, projectID, entityID, now, now)
	require.NoError(t, err)
	return entityID, projectID
}

func TestCheckProjectAccessGrantsViaEntityMembership(t *testing.T) {
	db := newTestDB(t)
	entityID, projectID := seedProject(t, db)
	identityID := uuid.NewString()

	now := time.Now().UTC()
	_, err := db.Exec(`INSERT INTO entity_members
		(id, entity_id, identity_id, role, can_manage_projects, can_invite_members, can_export, joined_at)
		VALUES (?, ?, ?, 'owner', 1, 1, 1, ?)`, uuid.NewString(), entityID, identityID, now)
	require.NoError(t, err)

	grant, err := CheckProjectAccess(db, db, projectID, identityID, true)
	require.NoError(t, err)
	assert.Equal(t, "member", grant.Kind)
}

func TestCheckProjectAccessGrantsViaActiveAuthorization(t *testing.T) {
	db := newTestDB(t)
	_, projectID := seedProject(t, db)
	identityID := uuid.NewString()

	now := time.Now().UTC()
	_, err := db.Exec(`INSERT INTO project_authorizations
		(id, project_id, identity_id, role, can_view, can_describe, valid_from, valid_until, granted_at)
		VALUES (?, ?, ?, 'biuro', 1, 1, ?, ?, ?)`,
		uuid.NewString(), projectID, identityID, now.Add(-time.Hour), now.Add(time.Hour), now)
	require.NoError(t, err)

	grant, err := CheckProjectAccess(db, db, projectID, identityID, true)
	require.NoError(t, err)
	assert.Equal(t, "authorized", grant.Kind)
}

func TestCheckProjectAccessDeniesExpiredAuthorization(t *testing.T) {
	db := newTestDB(t)
	_, projectID := seedProject(t, db)
	identityID := uuid.NewString()

	now := time.Now().UTC()
	_, err := db.Exec(`INSERT INTO project_authorizations
		(id, project_id, identity_id, role, can_view, can_describe, valid_from, valid_until, granted_at)
		VALUES (?, ?, ?, 'biuro', 1, 1, ?, ?, ?)`,
		uuid.NewString(), projectID, identityID, now.Add(-48*time.Hour), now.Add(-24*time.Hour), now.Add(-48*time.Hour))
	require.NoError(t, err)

	_, err = CheckProjectAccess(db, db, projectID, identityID, false)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestCheckProjectAccessDeniesNotYetValidAuthorization(t *testing.T) {
	db := newTestDB(t)
	_, projectID := seedProject(t, db)
	identityID := uuid.NewString()

	now := time.Now().UTC()
	_, err := db.Exec(`INSERT INTO project_authorizations
		(id, project_id, identity_id, role, can_view, can_describe, valid_from, granted_at)
		VALUES (?, ?, ?, 'biuro', 1, 1, ?, ?)`,
		uuid.NewString(), projectID, identityID, now.Add(24*time.Hour), now)
	require.NoError(t, err)

	_, err = CheckProjectAccess(db, db, projectID, identityID, false)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestCheckProjectAccessDeniesUnrelatedIdentity(t *testing.T) {
	db := newTestDB(t)
	_, projectID := seedProject(t, db)

	_, err := CheckProjectAccess(db, db, projectID, uuid.NewString(), false)
	assert.ErrorIs(t, err, ErrForbidden)
}
