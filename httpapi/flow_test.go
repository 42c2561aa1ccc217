package httpapi

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const flowSampleCSV = "numer;kontrahent;nip;kwota_netto;kwota_vat;kwota_brutto;data\n" +
	"FV/1/2026;Acme Sp. z o.o.;5213003700;100.00;23.00;123.00;2026-07-01\n" +
	"FV/2/2026;Other Sp. z o.o.;1234563218;200.00;46.00;246.00;2026-07-05\n"

func TestTriggerImportViaHTTP(t *testing.T) {
	f := newTestFixture(t)
	sourceID := f.addSource(t, "import", "csv", flowSampleCSV)

	rec := f.authedRequest(t, http.MethodPost, "/flow/import", `{"source_id":"`+sourceID+`","task_id":"`+f.taskID+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var run map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
	assert.Equal(t, float64(2), run["docs_found"])

	rec = f.authedRequest(t, http.MethodGet, "/tasks/"+f.taskID+"/import-runs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var runs []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	assert.Len(t, runs, 1)
}

func TestTriggerExportViaHTTPWithNothingDescribed(t *testing.T) {
	f := newTestFixture(t)
	exportSourceID := f.addSource(t, "export", "wfirma", "")

	rec := f.authedRequest(t, http.MethodPost, "/flow/export", `{"source_id":"`+exportSourceID+`","task_id":"`+f.taskID+`"}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, false, body["ok"])
	assert.Equal(t, float64(0), body["docs_exported"])
	assert.Contains(t, body["message"], "Brak opisanych dokumentów")
}

func TestTriggerExportViaHTTPThenDownload(t *testing.T) {
	f := newTestFixture(t)
	importSourceID := f.addSource(t, "import", "csv", flowSampleCSV)
	rec := f.authedRequest(t, http.MethodPost, "/flow/import", `{"source_id":"`+importSourceID+`","task_id":"`+f.taskID+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	_, err := f.db.Exec(`UPDATE documents SET status = 'described' WHERE task_id = ?`, f.taskID)
	require.NoError(t, err)

	exportSourceID := f.addSource(t, "export", "wfirma", "")
	rec = f.authedRequest(t, http.MethodPost, "/flow/export", `{"source_id":"`+exportSourceID+`","task_id":"`+f.taskID+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var outcome map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &outcome))
	assert.Equal(t, true, outcome["ok"])
	run := outcome["run"].(map[string]interface{})
	runID := run["id"].(string)

	rec = f.authedRequest(t, http.MethodGet, "/export-runs/"+runID+"/download?source_id="+exportSourceID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "attachment")
	assert.NotEmpty(t, rec.Body.String())
}

func TestUploadCSVViaHTTP(t *testing.T) {
	f := newTestFixture(t)

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	require.NoError(t, writer.WriteField("task_id", f.taskID))
	part, err := writer.CreateFormFile("file", "lipiec.csv")
	require.NoError(t, err)
	_, err = part.Write([]byte(flowSampleCSV))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/flow/upload-csv", body)
	req.Header.Set(echo.HeaderContentType, writer.FormDataContentType())
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+f.token(t))
	rec := httptest.NewRecorder()
	f.echo.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var result map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, float64(2), result["Imported"])
}
