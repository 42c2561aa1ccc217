package httpapi

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSourceTypesListsImportAndExport(t *testing.T) {
	f := newTestFixture(t)

	rec := f.authedRequest(t, http.MethodGet, "/source-types", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string][]map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body["import_types"])
	assert.NotEmpty(t, body["export_types"])
}

func TestCreateListUpdateDeleteSource(t *testing.T) {
	f := newTestFixture(t)

	rec := f.authedRequest(t, http.MethodPost, "/projects/"+f.projectID+"/sources",
		`{"direction":"import","source_type":"csv","name":"Wyciąg CSV"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var created map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	sourceID := created["id"].(string)
	assert.Equal(t, "csv", created["source_type"])

	rec = f.authedRequest(t, http.MethodGet, "/projects/"+f.projectID+"/sources?direction=import", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var sources []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sources))
	require.Len(t, sources, 1)

	rec = f.authedRequest(t, http.MethodPatch, "/sources/"+sourceID, `{"name":"Wyciąg bankowy CSV"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.authedRequest(t, http.MethodDelete, "/sources/"+sourceID, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.authedRequest(t, http.MethodGet, "/projects/"+f.projectID+"/sources", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var remaining []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &remaining))
	assert.Len(t, remaining, 0)
}

func TestTestConnection(t *testing.T) {
	f := newTestFixture(t)
	rec := f.authedRequest(t, http.MethodPost, "/projects/"+f.projectID+"/sources",
		`{"direction":"import","source_type":"csv","name":"Wyciąg CSV"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var created map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	sourceID := created["id"].(string)

	rec = f.authedRequest(t, http.MethodPost, "/sources/"+sourceID+"/test-connection", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var status map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Contains(t, status, "ok")
}
