package httpapi

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateProjectAndListTasks(t *testing.T) {
	f := newTestFixture(t)

	rec := f.authedRequest(t, http.MethodPost, "/entities/"+f.entityID+"/projects",
		`{"name":"KPiR sierpień","type":"kpir","year":2026}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var project map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &project))
	projectID := project["id"].(string)

	rec = f.authedRequest(t, http.MethodGet, "/entities/"+f.entityID+"/projects", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var projects []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &projects))
	assert.Len(t, projects, 2)

	rec = f.authedRequest(t, http.MethodPatch, "/projects/"+projectID, `{"name":"KPiR sierpień (poprawiona)"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var updated map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	assert.Equal(t, "KPiR sierpień (poprawiona)", updated["name"])
}

func TestListTasksForProject(t *testing.T) {
	f := newTestFixture(t)

	rec := f.authedRequest(t, http.MethodGet, "/projects/"+f.projectID+"/tasks", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var tasks []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tasks))
	require.Len(t, tasks, 1)
	assert.Equal(t, f.taskID, tasks[0]["id"])
}
