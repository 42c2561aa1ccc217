package adapters

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
)

// WfirmaExportAdapter renders documents as the semicolon-separated CSV
// wFirma's bulk importer accepts:
// Lp;Typ dokumentu;Numer dokumentu;Data wystawienia;Data sprzedaży;
// Kontrahent;NIP kontrahenta;Netto;Stawka VAT;VAT;Brutto;Waluta;
// Kategoria księgowa;Opis
type WfirmaExportAdapter struct {
	encoding   string
	dateFormat string
}

// NewWfirmaExportAdapter builds the adapter from a data source config blob.
func NewWfirmaExportAdapter(cfg Config) *WfirmaExportAdapter {
	return &WfirmaExportAdapter{
		encoding:   cfg.str("encoding", "utf-8"),
		dateFormat: cfg.str("date_format", "2006-01-02"),
	}
}

func (a *WfirmaExportAdapter) Export(ctx context.Context, documents []ExportDocument, taskName string) (*ExportResult, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Comma = ';'

	header := []string{
		"Lp", "Typ dokumentu", "Numer dokumentu", "Data wystawienia",
		"Data sprzedaży", "Kontrahent", "NIP kontrahenta",
		"Netto", "Stawka VAT", "VAT", "Brutto",
		"Waluta", "Kategoria księgowa", "Opis",
	}
	if err := w.Write(header); err != nil {
		return nil, fmt.Errorf("write wfirma header: %w", err)
	}

	for idx, doc := range documents {
		docDate := ""
		if doc.DocumentDate != nil {
			docDate = doc.DocumentDate.Format(a.dateFormat)
		}
		vatRate := ""
		if doc.AmountNet != nil && doc.AmountVat != nil && !doc.AmountNet.IsZero() {
			vatRate = vatRatePercent(doc.AmountNet, doc.AmountVat, "") + "%"
		}
		currency := doc.Currency
		if currency == "" {
			currency = "PLN"
		}

		row := []string{
			fmt.Sprintf("%d", idx+1),
			wfirmaDocTypeName(doc.DocType),
			doc.Number,
			docDate,
			docDate,
			doc.ContractorName,
			doc.ContractorNip,
			formattedAmount(doc.AmountNet),
			vatRate,
			formattedAmount(doc.AmountVat),
			formattedAmount(doc.AmountGross),
			currency,
			doc.Category(),
			doc.DescriptionText(),
		}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("write wfirma row %d: %w", idx, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush wfirma csv: %w", err)
	}

	return &ExportResult{
		Content:      buf.Bytes(),
		Filename:     fmt.Sprintf("wfirma_import_%s.csv", exportTimestamp()),
		Format:       "csv",
		DocsExported: len(documents),
		Encoding:     a.encoding,
	}, nil
}

// TestConnection is always OK: wFirma export produces a file to download,
// not a live API call.
func (a *WfirmaExportAdapter) TestConnection(ctx context.Context) ConnectionStatus {
	return ConnectionStatus{OK: true, Message: "wFirma export generates a downloadable CSV file — no connection required"}
}
