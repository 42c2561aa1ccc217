package adapters

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// JpkPkpirExportAdapter renders documents as JPK_PKPIR XML — Jednolity
// Plik Kontrolny for the Podatkowa Księga Przychodów i Rozchodów, in the
// JPK_PKPIR(3) schema shape.
type JpkPkpirExportAdapter struct {
	nip         string
	companyName string
}

// NewJpkPkpirExportAdapter builds the adapter from a data source config
// blob.
func NewJpkPkpirExportAdapter(cfg Config) *JpkPkpirExportAdapter {
	return &JpkPkpirExportAdapter{
		nip:         cfg.str("nip", "0000000000"),
		companyName: cfg.str("company_name", "Firma"),
	}
}

func (a *JpkPkpirExportAdapter) Export(ctx context.Context, documents []ExportDocument, taskName string) (*ExportResult, error) {
	now := time.Now().UTC()
	dateFrom, dateTo := now, now
	haveDate := false
	for _, doc := range documents {
		if doc.DocumentDate == nil {
			continue
		}
		if !haveDate {
			dateFrom, dateTo = *doc.DocumentDate, *doc.DocumentDate
			haveDate = true
			continue
		}
		if doc.DocumentDate.Before(dateFrom) {
			dateFrom = *doc.DocumentDate
		}
		if doc.DocumentDate.After(dateTo) {
			dateTo = *doc.DocumentDate
		}
	}
	if !haveDate {
		dateFrom = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		dateTo = now
	}

	var rows strings.Builder
	totalNet, totalVat, totalGross := decimal.Zero, decimal.Zero, decimal.Zero

	for idx, doc := range documents {
		net := decimalOrZero(doc.AmountNet)
		vat := decimalOrZero(doc.AmountVat)
		gross := decimalOrZero(doc.AmountGross)
		totalVat = totalVat.Add(vat)
		totalGross = totalGross.Add(gross)

		kolumna := "13"
		category := doc.Category()
		lowerCategory := strings.ToLower(category)
		if strings.Contains(lowerCategory, "towar") || strings.Contains(lowerCategory, "materiał") ||
			strings.Contains(lowerCategory, "material") || strings.Contains(lowerCategory, "zakup") {
			kolumna = "10"
		}
		if kolumna == "13" {
			totalNet = totalNet.Add(net)
		}

		docDate := ""
		if doc.DocumentDate != nil {
			docDate = doc.DocumentDate.Format("2006-01-02")
		}

		fmt.Fprintf(&rows, `      <PKPIRWiersz>
        <K_1>%d</K_1>
        <K_2>%s</K_2>
        <K_3>%s</K_3>
        <K_4>%s</K_4>
        <K_5>%s</K_5>
        <K_6>%s</K_6>
        <K_%s>%s</K_%s>
        <K_14>%s</K_14>
        <K_15>%s</K_15>
        <K_16>%s</K_16>
      </PKPIRWiersz>`,
			idx+1, xmlEscape(docDate), xmlEscape(doc.Number), xmlEscape(doc.ContractorName),
			xmlEscape(doc.ContractorNip), xmlEscape(category),
			kolumna, net.StringFixed(2), kolumna,
			vat.StringFixed(2), gross.StringFixed(2), xmlEscape(doc.DescriptionText()))
		rows.WriteString("\n")
	}

	xmlContent := fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<JPK xmlns="http://jpk.mf.gov.pl/wzor/2022/02/17/02171/"
     xmlns:etd="http://crd.gov.pl/xml/schematy/dziedzinowe/mf/2022/01/05/eD/DefinicjeTypy/">
  <Naglowek>
    <KodFormularza kodSystemowy="JPK_PKPIR (3)" wersjaSchemy="3-0">JPK_PKPIR</KodFormularza>
    <WariantFormularza>3</WariantFormularza>
    <CelZlozenia>1</CelZlozenia>
    <DataWytworzeniaJPK>%sZ</DataWytworzeniaJPK>
    <DataOd>%s</DataOd>
    <DataDo>%s</DataDo>
    <NazwaSystemu>EXEF</NazwaSystemu>
  </Naglowek>
  <Podmiot1>
    <etd:NIP>%s</etd:NIP>
    <etd:PelnaNazwa>%s</etd:PelnaNazwa>
  </Podmiot1>
  <PKPIRInfo>
    <LiczbaWierszy>%d</LiczbaWierszy>
    <SumaKol13>%s</SumaKol13>
    <SumaKol14>%s</SumaKol14>
    <SumaKol15>%s</SumaKol15>
  </PKPIRInfo>
  <PKPIRWiersze>
%s
  </PKPIRWiersze>
</JPK>`,
		now.Format(time.RFC3339Nano), dateFrom.Format("2006-01-02"), dateTo.Format("2006-01-02"),
		xmlEscape(a.nip), xmlEscape(a.companyName),
		len(documents), totalNet.StringFixed(2), totalVat.StringFixed(2), totalGross.StringFixed(2),
		strings.TrimRight(rows.String(), "\n"))

	filename := fmt.Sprintf("JPK_PKPIR_%s_%s.xml", dateFrom.Format("20060102"), dateTo.Format("20060102"))

	return &ExportResult{
		Content:      []byte(xmlContent),
		Filename:     filename,
		Format:       "xml",
		DocsExported: len(documents),
		Encoding:     "utf-8",
	}, nil
}

// TestConnection checks that the NIP and company name required to stamp the
// JPK header are configured.
func (a *JpkPkpirExportAdapter) TestConnection(ctx context.Context) ConnectionStatus {
	if a.nip == "" || a.nip == "0000000000" {
		return ConnectionStatus{OK: false, Message: "missing company NIP — required to generate JPK"}
	}
	if a.companyName == "" || a.companyName == "Firma" {
		return ConnectionStatus{OK: false, Message: "missing company name — required to generate JPK"}
	}
	return ConnectionStatus{OK: true, Message: fmt.Sprintf("JPK_PKPIR configuration valid: %s (NIP: %s)", a.companyName, a.nip)}
}
