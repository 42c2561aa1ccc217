package adapters

import (
	"context"
	"fmt"
	"time"

	"github.com/exef-pl/exef/docid"
)

// csvColumnAliases maps a canonical field name to the header aliases (Polish
// and English, various source systems) accepted for it.
var csvColumnAliases = map[string][]string{
	"number":          {"number", "numer", "nr", "nr_dokumentu", "numer_faktury"},
	"contractor_name": {"contractor_name", "kontrahent", "nazwa", "dostawca", "odbiorca"},
	"contractor_nip":  {"contractor_nip", "nip", "nip_kontrahenta"},
	"amount_net":      {"amount_net", "netto", "kwota_netto"},
	"amount_vat":      {"amount_vat", "vat", "kwota_vat"},
	"amount_gross":    {"amount_gross", "brutto", "kwota_brutto", "kwota"},
	"document_date":   {"document_date", "data", "date", "data_dokumentu"},
	"doc_type":        {"doc_type", "typ", "type"},
	"description":     {"description", "opis"},
	"category":        {"category", "kategoria"},
}

// CSVImportAdapter parses CSV content supplied directly in its config (the
// HTTP upload endpoint stashes the uploaded file's decoded text under the
// "_content" key before invoking this adapter).
type CSVImportAdapter struct {
	content string
}

// NewCSVImportAdapter builds an adapter from a data source config blob.
func NewCSVImportAdapter(cfg Config) *CSVImportAdapter {
	return &CSVImportAdapter{content: cfg.str("_content", "")}
}

// Fetch parses the configured CSV content into ImportResults, skipping rows
// missing every meaningful column.
func (a *CSVImportAdapter) Fetch(ctx context.Context, periodStart, periodEnd *time.Time) ([]ImportResult, error) {
	if a.content == "" {
		return nil, nil
	}

	rows, err := parseCSVBytes([]byte(a.content))
	if err != nil {
		return nil, fmt.Errorf("parse csv content: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	header := lowerRow(rows[0])
	var results []ImportResult
	for i, row := range rows[1:] {
		field := func(name string) string {
			return columnValue(header, row, csvColumnAliases[name]...)
		}

		number := field("number")
		contractorName := field("contractor_name")
		amountGrossRaw := field("amount_gross")
		if number == "" && amountGrossRaw == "" && contractorName == "" {
			continue
		}

		r := ImportResult{
			DocType:        field("doc_type"),
			Number:         number,
			ContractorName: contractorName,
			Source:         "csv",
			SourceID:       fmt.Sprintf("csv-row%d", i+1),
			Description:    field("description"),
			Category:       field("category"),
		}
		if r.DocType == "" {
			r.DocType = "invoice"
		}
		if nip, ok := docid.CleanNIP(field("contractor_nip")); ok {
			r.ContractorNIP = nip
		}
		if net, ok := docid.ParseAmount(field("amount_net")); ok {
			r.AmountNet = &net
		}
		if vat, ok := docid.ParseAmount(field("amount_vat")); ok {
			r.AmountVAT = &vat
		}
		if gross, ok := docid.ParseAmount(amountGrossRaw); ok {
			r.AmountGross = &gross
		}
		if date, ok := docid.ParseDate(field("document_date")); ok {
			r.DocumentDate = &date
		}
		results = append(results, r)
	}

	return results, nil
}

// TestConnection is always OK: the CSV adapter has no remote endpoint to
// verify, only the content it is handed.
func (a *CSVImportAdapter) TestConnection(ctx context.Context) ConnectionStatus {
	if a.content == "" {
		return ConnectionStatus{OK: true, Message: "no CSV content loaded yet"}
	}
	return ConnectionStatus{OK: true, Message: "CSV content present"}
}
