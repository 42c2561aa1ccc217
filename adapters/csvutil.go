package adapters

import (
	"encoding/csv"
	"io"
	"mime/multipart"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// multipartReader wraps body as a MIME multipart reader for the given
// boundary, or nil when boundary is empty.
func multipartReader(body io.Reader, boundary string) *multipart.Reader {
	if boundary == "" {
		return nil
	}
	return multipart.NewReader(body, boundary)
}

// decodeBestEffort tries utf-8 first, then the two encodings that show up
// in Polish accounting exports (cp1250, iso-8859-2).
func decodeBestEffort(payload []byte) string {
	if utf8.Valid(payload) {
		return strings.TrimPrefix(string(payload), "﻿")
	}
	if decoded, err := charmap.Windows1250.NewDecoder().Bytes(payload); err == nil {
		return string(decoded)
	}
	if decoded, err := charmap.ISO8859_2.NewDecoder().Bytes(payload); err == nil {
		return string(decoded)
	}
	return string(payload)
}

// detectDelimiter picks ';' when the first line has more semicolons than
// commas, else ','.
func detectDelimiter(text string) rune {
	firstLine := text
	if idx := strings.IndexByte(text, '\n'); idx >= 0 {
		firstLine = text[:idx]
	}
	if strings.Count(firstLine, ";") > strings.Count(firstLine, ",") {
		return ';'
	}
	return ','
}

// parseCSVBytes decodes payload with the best-effort charset detection and
// splits it into rows with an auto-detected delimiter. Row 0 is the header.
func parseCSVBytes(payload []byte) ([][]string, error) {
	text := decodeBestEffort(payload)
	reader := csv.NewReader(strings.NewReader(text))
	reader.Comma = detectDelimiter(text)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	return reader.ReadAll()
}

// lowerRow lowercases and trims every header cell for case-insensitive
// column lookup.
func lowerRow(row []string) []string {
	out := make([]string, len(row))
	for i, c := range row {
		out[i] = strings.ToLower(strings.TrimSpace(c))
	}
	return out
}

// columnValue returns the first non-empty cell in row whose header matches
// one of keys (case-insensitive).
func columnValue(header, row []string, keys ...string) string {
	for _, key := range keys {
		for i, h := range header {
			if h == key && i < len(row) {
				if v := strings.TrimSpace(row[i]); v != "" {
					return v
				}
			}
		}
	}
	return ""
}
