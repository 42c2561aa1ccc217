package httpapi

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAndLogin(t *testing.T) {
	f := newTestFixture(t)

	rec := f.request(t, http.MethodPost, "/auth/register", `{"email":"new@example.test","password":"swordfish1"}`, "")
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.request(t, http.MethodPost, "/auth/register", `{"email":"new@example.test","password":"swordfish1"}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.request(t, http.MethodPost, "/auth/login", `{"email":"new@example.test","password":"swordfish1"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var tok tokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tok))
	assert.NotEmpty(t, tok.AccessToken)
	assert.Equal(t, "bearer", tok.TokenType)

	rec = f.request(t, http.MethodPost, "/auth/login", `{"email":"new@example.test","password":"wrong"}`, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMeRequiresAuth(t *testing.T) {
	f := newTestFixture(t)

	rec := f.request(t, http.MethodGet, "/auth/me", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.authedRequest(t, http.MethodGet, "/auth/me", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, f.email, body["email"])
}

func TestUpdateMePatchesOnlySetFields(t *testing.T) {
	f := newTestFixture(t)

	rec := f.authedRequest(t, http.MethodPatch, "/auth/me", `{"first_name":"Anna"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Anna", body["first_name"])
}
