package httpapi

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchDocumentsByContractorName(t *testing.T) {
	f := newTestFixture(t)
	f.createDocument(t, `{"task_id":"`+f.taskID+`","contractor_name":"Acme Sp. z o.o.","number":"FV/1/2026"}`)
	f.createDocument(t, `{"task_id":"`+f.taskID+`","contractor_name":"Globex","number":"FV/2/2026"}`)

	rec := f.authedRequest(t, http.MethodGet, "/search/documents?entity_id="+f.entityID+"&q=acme", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var docs []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &docs))
	require.Len(t, docs, 1)
	assert.Equal(t, "Acme Sp. z o.o.", docs[0]["contractor_name"])
}

func TestSearchDocumentsRequiresEntityID(t *testing.T) {
	f := newTestFixture(t)

	rec := f.authedRequest(t, http.MethodGet, "/search/documents", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMatchDocumentsRanksByScoreExcludingSameProject(t *testing.T) {
	f := newTestFixture(t)
	target := f.createDocument(t, `{"task_id":"`+f.taskID+`","contractor_name":"Acme Sp. z o.o.",
		"contractor_nip":"5252542255","amount_gross":"246.00","document_date":"2026-07-10T00:00:00Z"}`)
	// Same project: must never be suggested even though it matches perfectly.
	f.createDocument(t, `{"task_id":"`+f.taskID+`","contractor_name":"Acme Sp. z o.o.",
		"contractor_nip":"5252542255","amount_gross":"246.00","document_date":"2026-07-10T00:00:00Z"}`)

	otherTask := f.addTask(t, "Inny projekt")
	strongMatch := f.createDocument(t, `{"task_id":"`+otherTask+`","contractor_name":"Acme Sp. z o.o.",
		"contractor_nip":"5252542255","amount_gross":"246.00","document_date":"2026-07-11T00:00:00Z"}`)
	f.createDocument(t, `{"task_id":"`+otherTask+`","contractor_name":"Unrelated Corp",
		"amount_gross":"9999.00","document_date":"2020-01-01T00:00:00Z"}`)

	rec := f.authedRequest(t, http.MethodGet, "/match/documents/"+target, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var matches []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &matches))
	require.NotEmpty(t, matches)
	assert.Equal(t, strongMatch, matches[0]["id"])
	assert.Greater(t, matches[0]["score"].(float64), 0.5)
}
