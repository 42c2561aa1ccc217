package adapters

import (
	"context"
	"fmt"
	"strings"
)

// EnovaExportAdapter renders documents as the DokumentZakupu XML
// enova365's purchase-document importer expects.
type EnovaExportAdapter struct{}

// NewEnovaExportAdapter builds the adapter from a data source config blob;
// enova365 export needs no connection settings.
func NewEnovaExportAdapter(cfg Config) *EnovaExportAdapter { return &EnovaExportAdapter{} }

func (a *EnovaExportAdapter) Export(ctx context.Context, documents []ExportDocument, taskName string) (*ExportResult, error) {
	timestamp := exportTimestamp()

	var entries strings.Builder
	for idx, doc := range documents {
		docDate := ""
		if doc.DocumentDate != nil {
			docDate = doc.DocumentDate.Format("2006-01-02")
		}

		fmt.Fprintf(&entries, `    <DokumentZakupu lp="%d">
      <Numer>%s</Numer>
      <DataWystawienia>%s</DataWystawienia>
      <DataWplywu>%s</DataWplywu>
      <Kontrahent>
        <Nazwa>%s</Nazwa>
        <NIP>%s</NIP>
      </Kontrahent>
      <Pozycje>
        <Pozycja>
          <Opis>%s</Opis>
          <Netto>%s</Netto>
          <VAT>%s</VAT>
          <Brutto>%s</Brutto>
          <StawkaVAT>%s%%</StawkaVAT>
        </Pozycja>
      </Pozycje>
      <Uwagi>%s</Uwagi>
    </DokumentZakupu>
`,
			idx+1, xmlEscape(doc.Number), xmlEscape(docDate), xmlEscape(docDate),
			xmlEscape(doc.ContractorName), xmlEscape(doc.ContractorNip),
			xmlEscape(doc.Category()), formattedAmount(doc.AmountNet), formattedAmount(doc.AmountVat),
			formattedAmount(doc.AmountGross), vatRatePercent(doc.AmountNet, doc.AmountVat, "23"),
			xmlEscape(doc.DescriptionText()))
	}

	xmlContent := fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<ImportDokumentow xmlns="http://www.enova.pl/schema/import"
                  wersja="365"
                  data="%s"
                  system="EXEF">
  <DokumentyZakupu>
%s  </DokumentyZakupu>
</ImportDokumentow>`, timestamp, entries.String())

	return &ExportResult{
		Content:      []byte(xmlContent),
		Filename:     fmt.Sprintf("enova365_import_%s.xml", timestamp),
		Format:       "xml",
		DocsExported: len(documents),
		Encoding:     "utf-8",
	}, nil
}

// TestConnection is always OK: enova365 export produces a file to
// download, not a live API call.
func (a *EnovaExportAdapter) TestConnection(ctx context.Context) ConnectionStatus {
	return ConnectionStatus{OK: true, Message: "enova365 export generates an XML import file — no connection required"}
}
