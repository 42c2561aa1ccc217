package httpapi

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateListDeleteRelation(t *testing.T) {
	f := newTestFixture(t)
	parent := f.createDocument(t, `{"task_id":"`+f.taskID+`","contractor_name":"Acme","amount_gross":"500.00"}`)
	child := f.createDocument(t, `{"task_id":"`+f.taskID+`","contractor_name":"Acme","amount_gross":"500.00"}`)

	rec := f.authedRequest(t, http.MethodPost, "/documents/relations",
		`{"parent_id":"`+parent+`","child_id":"`+child+`","relation_type":"payment"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var relation map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &relation))
	relationID := relation["id"].(string)

	rec = f.authedRequest(t, http.MethodPost, "/documents/relations",
		`{"parent_id":"`+parent+`","child_id":"`+child+`","relation_type":"not-a-real-type"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.authedRequest(t, http.MethodGet, "/documents/"+parent+"/relations", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var relations []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &relations))
	require.Len(t, relations, 1)

	rec = f.authedRequest(t, http.MethodGet, "/relations/documents/"+parent, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var withContext []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &withContext))
	require.Len(t, withContext, 1)
	linked := withContext[0]["linked_document"].(map[string]interface{})
	assert.Equal(t, child, linked["id"])

	rec = f.authedRequest(t, http.MethodDelete, "/documents/relations/"+relationID, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.authedRequest(t, http.MethodGet, "/documents/"+parent+"/relations", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var afterDelete []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &afterDelete))
	assert.Len(t, afterDelete, 0)
}

func TestRelationTypesListsRegisteredTypes(t *testing.T) {
	f := newTestFixture(t)

	rec := f.authedRequest(t, http.MethodGet, "/relation-types", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var types []string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &types))
	assert.Contains(t, types, "payment")
	assert.Contains(t, types, "duplicate")
}
