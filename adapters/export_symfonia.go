package adapters

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strings"

	"golang.org/x/text/encoding/charmap"
)

// SymfoniaExportAdapter renders documents as the semicolon-separated,
// CP1250-encoded CSV Symfonia Handel's importer expects, with Polish
// DD.MM.YYYY dates and comma decimal separators.
type SymfoniaExportAdapter struct{}

// NewSymfoniaExportAdapter builds the adapter from a data source config
// blob; Symfonia export needs no connection settings.
func NewSymfoniaExportAdapter(cfg Config) *SymfoniaExportAdapter { return &SymfoniaExportAdapter{} }

func commaDecimal(amount string) string {
	return strings.ReplaceAll(amount, ".", ",")
}

func (a *SymfoniaExportAdapter) Export(ctx context.Context, documents []ExportDocument, taskName string) (*ExportResult, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Comma = ';'

	header := []string{
		"Lp", "Typ", "Numer", "Data wystawienia", "Data operacji",
		"Kontrahent", "NIP", "Netto", "VAT", "Brutto",
		"Stawka VAT", "Waluta", "Kategoria", "Opis",
	}
	if err := w.Write(header); err != nil {
		return nil, fmt.Errorf("write symfonia header: %w", err)
	}

	for idx, doc := range documents {
		docDate := ""
		if doc.DocumentDate != nil {
			docDate = doc.DocumentDate.Format("02.01.2006")
		}
		docTypeLabel := doc.DocType
		if doc.DocType == "invoice" || doc.DocType == "" {
			docTypeLabel = "FZ"
		}
		vatRate := vatRatePercent(doc.AmountNet, doc.AmountVat, "23") + "%"
		currency := doc.Currency
		if currency == "" {
			currency = "PLN"
		}

		row := []string{
			fmt.Sprintf("%d", idx+1),
			docTypeLabel,
			doc.Number,
			docDate,
			docDate,
			doc.ContractorName,
			doc.ContractorNip,
			commaDecimal(formattedAmount(doc.AmountNet)),
			commaDecimal(formattedAmount(doc.AmountVat)),
			commaDecimal(formattedAmount(doc.AmountGross)),
			vatRate,
			currency,
			doc.Category(),
			doc.DescriptionText(),
		}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("write symfonia row %d: %w", idx, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush symfonia csv: %w", err)
	}

	encoded, err := charmap.Windows1250.NewEncoder().Bytes(buf.Bytes())
	if err != nil {
		encoded = buf.Bytes()
	}

	return &ExportResult{
		Content:      encoded,
		Filename:     fmt.Sprintf("symfonia_import_%s.csv", exportTimestamp()),
		Format:       "csv",
		DocsExported: len(documents),
		Encoding:     "cp1250",
	}, nil
}

// TestConnection is always OK: Symfonia export produces a file to download,
// not a live API call.
func (a *SymfoniaExportAdapter) TestConnection(ctx context.Context) ConnectionStatus {
	return ConnectionStatus{OK: true, Message: "Symfonia export generates a CP1250 CSV import file — no connection required"}
}
