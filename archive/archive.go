// Package archive extracts ZIP attachments encountered during import: an
// accountant's mailbox often carries a batch of invoice PDFs, or a bank's
// monthly statement export, as a single .zip rather than individual files.
// Extraction happens entirely in memory — nothing here writes to disk — but
// keeps the teacher's zip-slip guard, since archive/zip entry names are
// attacker-controlled input arriving over IMAP or a webhook body.
package archive

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/exef-pl/exef/logging"
)

var log = logging.New(map[string]interface{}{"component": "archive"})

// MaxEntries caps how many files a single archive may expand to, guarding
// against zip-bomb style attachments arriving unattended over IMAP.
const MaxEntries = 500

// MaxEntryBytes caps the decompressed size of any single entry.
const MaxEntryBytes = 64 << 20 // 64MiB

// ExtractEntries reads a ZIP archive from payload and returns its regular
// files keyed by their base name (directory entries are skipped, and any
// entry whose path would escape the archive root via "../" segments is
// dropped rather than causing an error, matching how a malformed attachment
// should be ignored rather than aborting the whole import run).
func ExtractEntries(payload []byte) (map[string][]byte, error) {
	reader, err := zip.NewReader(bytes.NewReader(payload), int64(len(payload)))
	if err != nil {
		return nil, fmt.Errorf("archive: open zip: %w", err)
	}

	if len(reader.File) > MaxEntries {
		return nil, fmt.Errorf("archive: zip has %d entries, exceeds limit of %d", len(reader.File), MaxEntries)
	}

	entries := make(map[string][]byte, len(reader.File))
	for _, f := range reader.File {
		if f.FileInfo().IsDir() {
			continue
		}

		cleanName := filepath.Clean(f.Name)
		if strings.HasPrefix(cleanName, "..") || filepath.IsAbs(cleanName) {
			log.WithField("entry", f.Name).Warn("archive: skipping path-traversal entry")
			continue
		}

		if f.UncompressedSize64 > MaxEntryBytes {
			log.WithField("entry", f.Name).Warn("archive: skipping oversized entry")
			continue
		}

		rc, err := f.Open()
		if err != nil {
			log.WithField("entry", f.Name).WithError(err).Warn("archive: failed to open entry")
			continue
		}
		content, err := io.ReadAll(io.LimitReader(rc, MaxEntryBytes+1))
		rc.Close()
		if err != nil {
			log.WithField("entry", f.Name).WithError(err).Warn("archive: failed to read entry")
			continue
		}
		if int64(len(content)) > MaxEntryBytes {
			continue
		}

		entries[filepath.Base(cleanName)] = content
	}

	return entries, nil
}

// BundleFiles packages named byte blobs into a single ZIP so that several
// output files can be handed over as one attachment. No export adapter or
// download endpoint calls it at present.
func BundleFiles(files map[string][]byte) ([]byte, error) {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)

	for name, content := range files {
		entry, err := w.Create(name)
		if err != nil {
			return nil, fmt.Errorf("archive: create entry %q: %w", name, err)
		}
		if _, err := entry.Write(content); err != nil {
			return nil, fmt.Errorf("archive: write entry %q: %w", name, err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("archive: close zip: %w", err)
	}
	return buf.Bytes(), nil
}
