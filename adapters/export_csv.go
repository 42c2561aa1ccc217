package adapters

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
)

// CSVExportAdapter renders documents as a generic, configurable-delimiter
// CSV — the catch-all format for destinations with no dedicated adapter.
type CSVExportAdapter struct {
	delimiter rune
	encoding  string
}

// NewCSVExportAdapter builds the adapter from a data source config blob.
func NewCSVExportAdapter(cfg Config) *CSVExportAdapter {
	delimiter := ';'
	if d := cfg.str("delimiter", ";"); len(d) > 0 {
		delimiter = rune(d[0])
	}
	return &CSVExportAdapter{
		delimiter: delimiter,
		encoding:  cfg.str("encoding", "utf-8"),
	}
}

func (a *CSVExportAdapter) Export(ctx context.Context, documents []ExportDocument, taskName string) (*ExportResult, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Comma = a.delimiter

	header := []string{
		"Lp", "Typ", "Numer", "Data", "Kontrahent", "NIP",
		"Netto", "VAT", "Brutto", "Waluta", "Kategoria", "Opis",
	}
	if err := w.Write(header); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}

	for idx, doc := range documents {
		docDate := ""
		if doc.DocumentDate != nil {
			docDate = doc.DocumentDate.Format("2006-01-02")
		}
		docType := doc.DocType
		if docType == "" {
			docType = "invoice"
		}
		currency := doc.Currency
		if currency == "" {
			currency = "PLN"
		}

		row := []string{
			fmt.Sprintf("%d", idx+1),
			docType,
			doc.Number,
			docDate,
			doc.ContractorName,
			doc.ContractorNip,
			formattedAmount(doc.AmountNet),
			formattedAmount(doc.AmountVat),
			formattedAmount(doc.AmountGross),
			currency,
			doc.Category(),
			doc.DescriptionText(),
		}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("write csv row %d: %w", idx, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}

	return &ExportResult{
		Content:      buf.Bytes(),
		Filename:     fmt.Sprintf("export_%s.csv", exportTimestamp()),
		Format:       "csv",
		DocsExported: len(documents),
		Encoding:     a.encoding,
	}, nil
}

// TestConnection is always OK: generic CSV export produces a file to
// download, not a live API call.
func (a *CSVExportAdapter) TestConnection(ctx context.Context) ConnectionStatus {
	return ConnectionStatus{OK: true, Message: "CSV export generates a downloadable file — no connection required"}
}
