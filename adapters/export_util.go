package adapters

import (
	"encoding/xml"
	"time"

	"github.com/shopspring/decimal"
)

const exportTimestampLayout = "20060102_150405"

func exportTimestamp() string {
	return time.Now().UTC().Format(exportTimestampLayout)
}

func decimalOrZero(d *decimal.Decimal) decimal.Decimal {
	if d == nil {
		return decimal.Zero
	}
	return *d
}

func formattedAmount(d *decimal.Decimal) string {
	return decimalOrZero(d).StringFixed(2)
}

// vatRatePercent derives the VAT rate as a whole-number percentage from
// net/vat amounts, since Polish accounting exports rarely store the rate
// column on the document itself.
func vatRatePercent(net, vat *decimal.Decimal, def string) string {
	n := decimalOrZero(net)
	if n.IsZero() {
		return def
	}
	v := decimalOrZero(vat)
	rate := v.Div(n).Mul(decimal.NewFromInt(100)).Round(0)
	return rate.String()
}

func xmlEscape(v string) string {
	if v == "" {
		return ""
	}
	var buf []byte
	w := xmlWriter{&buf}
	_ = xml.EscapeText(w, []byte(v))
	return string(buf)
}

type xmlWriter struct{ buf *[]byte }

func (w xmlWriter) Write(p []byte) (int, error) {
	*w.buf = append(*w.buf, p...)
	return len(p), nil
}

// wfirmaDocTypeNames maps a canonical doc_type to the label wFirma's CSV
// import expects.
var wfirmaDocTypeNames = map[string]string{
	"invoice":     "Faktura VAT",
	"correction":  "Faktura korygująca",
	"receipt":     "Paragon",
	"contract":    "Umowa",
	"payment_in":  "Wpłata",
	"payment_out": "Wypłata",
}

func wfirmaDocTypeName(docType string) string {
	if name, ok := wfirmaDocTypeNames[docType]; ok {
		return name
	}
	return "Faktura VAT"
}
