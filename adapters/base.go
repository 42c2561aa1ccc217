// Package adapters implements the import/export adapter registry: one
// uniform contract (fetch for imports, export for exports, both alongside a
// connection test) that every concrete source or destination — IMAP, KSeF,
// CSV, bank export, manual upload, webhook, wFirma, JPK_PKPIR, Comarch,
// Symfonia, enova365 — implements identically, so the flow engine never
// needs to know which one it is driving.
package adapters

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/exef-pl/exef/model"
)

// ImportResult is one document an import adapter extracted from its source,
// before it is canonicalised and assigned a docid.
type ImportResult struct {
	DocType          string
	Number           string
	ContractorName   string
	ContractorNIP    string
	AmountNet        *decimal.Decimal
	AmountVAT        *decimal.Decimal
	AmountGross      *decimal.Decimal
	Currency         string
	DocumentDate     *time.Time
	Source           string
	SourceID         string
	Description      string
	Category         string
	OriginalFilename string
}

// ExportResult is the rendered output of one export run.
type ExportResult struct {
	Content      []byte
	Filename     string
	Format       string
	DocsExported int
	Encoding     string
}

// ExportDocument pairs a canonical Document with its editable metadata
// side-car, since every accounting format needs the category/description a
// bare Document doesn't carry.
type ExportDocument struct {
	model.Document
	Metadata *model.DocumentMetadata
}

// Category returns the attached metadata's category, or "" when there is
// none.
func (d ExportDocument) Category() string {
	if d.Metadata == nil {
		return ""
	}
	return d.Metadata.Category
}

// DescriptionText returns the attached metadata's description, or "" when
// there is none.
func (d ExportDocument) DescriptionText() string {
	if d.Metadata == nil {
		return ""
	}
	return d.Metadata.Description
}

// ConnectionStatus is the outcome of a TestConnection call, surfaced
// verbatim to the HTTP API's data-source test endpoint.
type ConnectionStatus struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

// ImportAdapter fetches documents from one external source for a period.
// period start/end are both inclusive and either may be nil, in which case
// each adapter applies its own default window (the email adapter, for
// instance, looks back days_back days and ignores periodEnd).
type ImportAdapter interface {
	Fetch(ctx context.Context, periodStart, periodEnd *time.Time) ([]ImportResult, error)
	TestConnection(ctx context.Context) ConnectionStatus
}

// ExportAdapter renders a set of documents into one destination format.
type ExportAdapter interface {
	Export(ctx context.Context, documents []ExportDocument, taskName string) (*ExportResult, error)
	TestConnection(ctx context.Context) ConnectionStatus
}

// Config is the free-form per-data-source configuration blob stored as JSON
// in DataSource.Config; adapters pull out the keys they understand and
// apply their own defaults for the rest.
type Config map[string]any

func (c Config) str(key, def string) string {
	if v, ok := c[key]; ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return def
}

func (c Config) integer(key string, def int) int {
	if v, ok := c[key]; ok {
		switch n := v.(type) {
		case int:
			return n
		case float64:
			return int(n)
		}
	}
	return def
}

func (c Config) boolean(key string, def bool) bool {
	if v, ok := c[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}
