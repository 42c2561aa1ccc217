package adapters

import (
	"context"
	"fmt"
	"strings"
)

// ComarchExportAdapter renders documents as a REJESTR_ZAKUPOW_VAT XML feed
// compatible with Comarch ERP Optima's purchase-register import.
type ComarchExportAdapter struct{}

// NewComarchExportAdapter builds the adapter from a data source config
// blob; Comarch export needs no connection settings.
func NewComarchExportAdapter(cfg Config) *ComarchExportAdapter { return &ComarchExportAdapter{} }

func (a *ComarchExportAdapter) Export(ctx context.Context, documents []ExportDocument, taskName string) (*ExportResult, error) {
	timestamp := exportTimestamp()

	var entries strings.Builder
	for _, doc := range documents {
		docDate := ""
		if doc.DocumentDate != nil {
			docDate = doc.DocumentDate.Format("2006-01-02")
		}
		vatRate := vatRatePercent(doc.AmountNet, doc.AmountVat, "23")
		podmiotKod := doc.ContractorNip
		if podmiotKod == "" {
			podmiotKod = doc.ContractorName
		}

		fmt.Fprintf(&entries, `    <REJESTR_ZAKUPOW_VAT>
      <MODUL>Rejestry VAT</MODUL>
      <TYP>Zakup</TYP>
      <REJESTR>ZAKUP</REJESTR>
      <DATA_WYSTAWIENIA>%s</DATA_WYSTAWIENIA>
      <DATA_ZAKUPU>%s</DATA_ZAKUPU>
      <NUMER_OBCY>%s</NUMER_OBCY>
      <PODMIOT_TYP>Kontrahent</PODMIOT_TYP>
      <PODMIOT_KOD>%s</PODMIOT_KOD>
      <PODMIOT_NAZWA1>%s</PODMIOT_NAZWA1>
      <PODMIOT_NIP>%s</PODMIOT_NIP>
      <KATEGORIA>%s</KATEGORIA>
      <OPIS>%s</OPIS>
      <PLATNOSC_TYP>przelew</PLATNOSC_TYP>
      <PLATNOSC_TERMIN>%s</PLATNOSC_TERMIN>
      <ELEMENTY>
        <ELEMENT>
          <STAWKA_VAT>%s</STAWKA_VAT>
          <NETTO>%s</NETTO>
          <VAT>%s</VAT>
          <BRUTTO>%s</BRUTTO>
          <KOLUMNA_PKPIR>Inne</KOLUMNA_PKPIR>
        </ELEMENT>
      </ELEMENTY>
    </REJESTR_ZAKUPOW_VAT>
`,
			xmlEscape(docDate), xmlEscape(docDate), xmlEscape(doc.Number),
			xmlEscape(podmiotKod), xmlEscape(doc.ContractorName), xmlEscape(doc.ContractorNip),
			xmlEscape(doc.Category()), xmlEscape(doc.DescriptionText()), xmlEscape(docDate),
			vatRate, formattedAmount(doc.AmountNet), formattedAmount(doc.AmountVat), formattedAmount(doc.AmountGross))
	}

	xmlContent := fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<REJESTRY_ZAKUPOW_VAT xmlns="http://www.comarch.pl/cdn/optima/offline"
                       wersja="2.0"
                       generacja="%s"
                       producent="EXEF">
%s</REJESTRY_ZAKUPOW_VAT>`, timestamp, entries.String())

	return &ExportResult{
		Content:      []byte(xmlContent),
		Filename:     fmt.Sprintf("comarch_optima_import_%s.xml", timestamp),
		Format:       "xml",
		DocsExported: len(documents),
		Encoding:     "utf-8",
	}, nil
}

// TestConnection is always OK: Comarch export produces a file to download,
// not a live API call.
func (a *ComarchExportAdapter) TestConnection(ctx context.Context) ConnectionStatus {
	return ConnectionStatus{OK: true, Message: "Comarch Optima export generates an XML import file — no connection required"}
}
