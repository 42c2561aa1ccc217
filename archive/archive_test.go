package archive

import (
	"archive/zip"
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range files {
		entry, err := w.Create(name)
		require.NoError(t, err)
		_, err = entry.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestExtractEntriesReturnsRegularFiles(t *testing.T) {
	payload := buildZip(t, map[string]string{
		"FV_1_2026.pdf":   "pdf-bytes",
		"wyciag.csv":      "numer;kwota\nFV/1;100.00\n",
		"subdir/note.txt": "ignored-by-callers-but-still-extracted",
	})

	entries, err := ExtractEntries(payload)
	require.NoError(t, err)
	assert.Equal(t, "pdf-bytes", string(entries["FV_1_2026.pdf"]))
	assert.Contains(t, string(entries["wyciag.csv"]), "FV/1")
	assert.Contains(t, entries, "note.txt")
}

func TestExtractEntriesSkipsPathTraversal(t *testing.T) {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	entry, err := w.Create("../../etc/passwd")
	require.NoError(t, err)
	_, err = entry.Write([]byte("root:x:0:0"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	entries, err := ExtractEntries(buf.Bytes())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestBundleFilesRoundTrips(t *testing.T) {
	bundle, err := BundleFiles(map[string][]byte{
		"jpk_pkpir.xml": []byte("<xml/>"),
	})
	require.NoError(t, err)

	entries, err := ExtractEntries(bundle)
	require.NoError(t, err)
	assert.Equal(t, "<xml/>", string(entries["jpk_pkpir.xml"]))
}
