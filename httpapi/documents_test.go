package httpapi

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (f *testFixture) createDocument(t *testing.T, body string) string {
	t.Helper()
	rec := f.authedRequest(t, http.MethodPost, "/documents", body)
	require.Equal(t, http.StatusCreated, rec.Code)
	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	return doc["id"].(string)
}

func TestCreateGetListDeleteDocument(t *testing.T) {
	f := newTestFixture(t)

	docID := f.createDocument(t, `{"task_id":"`+f.taskID+`","doc_type":"invoice","number":"FV/1/2026",
		"contractor_name":"Acme Sp. z o.o.","contractor_nip":"5252542255","amount_gross":"123.45",
		"document_date":"2026-07-01T00:00:00Z"}`)

	rec := f.authedRequest(t, http.MethodGet, "/documents/"+docID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	assert.Equal(t, "new", doc["status"])
	assert.NotNil(t, doc["metadata"])

	rec = f.authedRequest(t, http.MethodGet, "/tasks/"+f.taskID+"/documents", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var docs []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &docs))
	assert.Len(t, docs, 1)

	rec = f.authedRequest(t, http.MethodDelete, "/documents/"+docID, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.authedRequest(t, http.MethodGet, "/documents/"+docID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateMetadataAdvancesStatusThenApprove(t *testing.T) {
	f := newTestFixture(t)
	docID := f.createDocument(t, `{"task_id":"`+f.taskID+`","contractor_name":"Acme","amount_gross":"99.00"}`)

	rec := f.authedRequest(t, http.MethodPatch, "/documents/"+docID+"/metadata",
		`{"category":"koszty biurowe","tags":["biuro","internet"]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.authedRequest(t, http.MethodGet, "/documents/"+docID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	assert.Equal(t, "described", doc["status"])

	rec = f.authedRequest(t, http.MethodPost, "/documents/"+docID+"/approve", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.authedRequest(t, http.MethodPost, "/documents/"+docID+"/approve", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestBulkUpdateMetadataMergesTags(t *testing.T) {
	f := newTestFixture(t)
	docA := f.createDocument(t, `{"task_id":"`+f.taskID+`","contractor_name":"Acme"}`)
	docB := f.createDocument(t, `{"task_id":"`+f.taskID+`","contractor_name":"Beta"}`)

	f.authedRequest(t, http.MethodPatch, "/documents/"+docA+"/metadata", `{"tags":["biuro"]}`)

	rec := f.authedRequest(t, http.MethodPatch, "/documents/bulk-metadata",
		`{"document_ids":["`+docA+`","`+docB+`"],"category":"koszty","tags":["paliwo"]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.authedRequest(t, http.MethodGet, "/documents/"+docA, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	meta := doc["metadata"].(map[string]interface{})
	tags := meta["tags"].([]interface{})
	assert.ElementsMatch(t, []interface{}{"biuro", "paliwo"}, tags)
}

func TestDuplicateDetection(t *testing.T) {
	f := newTestFixture(t)
	body := `{"task_id":"` + f.taskID + `","doc_type":"invoice","number":"FV/9/2026",
		"contractor_name":"Acme","contractor_nip":"5252542255","amount_gross":"50.00",
		"document_date":"2026-07-15T00:00:00Z"}`
	docA := f.createDocument(t, body)
	docB := f.createDocument(t, body)

	rec := f.authedRequest(t, http.MethodGet, "/documents/"+docA+"/duplicates", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var dupes []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &dupes))
	require.Len(t, dupes, 1)
	assert.Equal(t, docB, dupes[0]["id"])

	rec = f.authedRequest(t, http.MethodGet, "/tasks/"+f.taskID+"/duplicates", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var groups [][]map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &groups))
	require.Len(t, groups, 1)
	assert.Len(t, groups[0], 2)
}
