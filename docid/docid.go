// Package docid computes the deterministic document identifier used to
// collapse duplicate invoices arriving from different import adapters.
// The algorithm and normalisation rules mirror core/docid.py in the system
// this module replaces: four fields are normalised independently, joined
// with "|", and hashed with SHA-256.
package docid

import (
	"crypto/sha256"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// typeCodes maps a document kind to its three-letter identifier prefix.
var typeCodes = map[string]string{
	"invoice":   "FV",
	"receipt":   "PAR",
	"contract":  "UMO",
	"correction": "KOR",
	"proforma":  "PRO",
	"other":     "DOC",
}

var (
	nipStripRe      = regexp.MustCompile(`[\s\-.]`)
	nipPrefixRe     = regexp.MustCompile(`(?i)^[A-Z]{2}`)
	numberDashRunRe = regexp.MustCompile(`[\s\-_]+`)
	numberSlashRunRe = regexp.MustCompile(`/+`)
	amountStripRe   = regexp.MustCompile(`[^\d,.\-]`)
)

var dateLayouts = []string{
	"2006-01-02",
	"02-01-2006",
	"02.01.2006",
	"02/01/2006",
	"2006/01/02",
	"20060102",
}

// NormalizeNIP strips a leading two-letter country prefix and all
// whitespace, dashes and dots from a tax identifier.
func NormalizeNIP(nip string) string {
	cleaned := nipStripRe.ReplaceAllString(strings.TrimSpace(nip), "")
	cleaned = nipPrefixRe.ReplaceAllString(cleaned, "")
	return strings.ToUpper(cleaned)
}

// NormalizeInvoiceNumber uppercases the number, collapses whitespace/dash/
// underscore runs to a single slash, collapses repeated slashes, and strips
// leading/trailing slashes.
func NormalizeInvoiceNumber(number string) string {
	upper := strings.ToUpper(strings.TrimSpace(number))
	collapsed := numberDashRunRe.ReplaceAllString(upper, "/")
	collapsed = numberSlashRunRe.ReplaceAllString(collapsed, "/")
	return strings.Trim(collapsed, "/")
}

// NormalizeDate parses one of the accepted source formats and re-emits the
// date as YYYY-MM-DD. An unparseable or empty input returns "".
func NormalizeDate(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	for _, layout := range dateLayouts {
		candidate := trimmed
		if len(candidate) > len(layout) {
			candidate = candidate[:len(layout)]
		}
		if t, err := time.Parse(layout, candidate); err == nil {
			return t.Format("2006-01-02")
		}
	}
	return ""
}

// NormalizeAmount strips currency symbols and whitespace, converts a comma
// decimal separator to a dot, removes thousands separators, and rounds
// half-up to two fractional digits. An empty or unparseable input becomes
// "0.00".
func NormalizeAmount(raw string) string {
	cleaned := amountStripRe.ReplaceAllString(strings.TrimSpace(raw), "")
	cleaned = strings.ReplaceAll(cleaned, ",", ".")

	parts := strings.Split(cleaned, ".")
	if len(parts) > 2 {
		cleaned = strings.Join(parts[:len(parts)-1], "") + "." + parts[len(parts)-1]
	}

	value, err := decimal.NewFromString(cleaned)
	if err != nil {
		return "0.00"
	}
	return value.Round(2).StringFixed(2)
}

// TypeCode maps a document kind to its identifier prefix, defaulting to DOC
// for unrecognised kinds.
func TypeCode(docType string) string {
	if code, ok := typeCodes[strings.ToLower(docType)]; ok {
		return code
	}
	return typeCodes["other"]
}

// meaningful reports whether a normalised field carries information, i.e. is
// neither empty nor the zero-amount sentinel "0.00".
func meaningful(value string) bool {
	return value != "" && value != "0.00"
}

// Generate computes the deterministic document identifier from the four
// normalised inputs. It returns "", false when fewer than two of the inputs
// are meaningful, per the insufficiency rule.
func Generate(contractorNip, number, documentDate, amountGross, docType string) (string, bool) {
	nip := NormalizeNIP(contractorNip)
	num := NormalizeInvoiceNumber(number)
	date := NormalizeDate(documentDate)
	amount := NormalizeAmount(amountGross)

	count := 0
	for _, f := range []string{nip, num, date, amount} {
		if meaningful(f) {
			count++
		}
	}
	if count < 2 {
		return "", false
	}

	joined := strings.Join([]string{nip, num, date, amount}, "|")
	sum := sha256.Sum256([]byte(joined))
	hex16 := strings.ToUpper(fmt.Sprintf("%x", sum[:8]))

	return fmt.Sprintf("DOC-%s-%s", TypeCode(docType), hex16), true
}

// ParseAmountFloat is a convenience used by adapters that still carry values
// as loosely-formatted strings (bank CSV columns, KSeF JSON numbers typed as
// strings) before they are converted to decimal.Decimal for storage.
func ParseAmountFloat(raw string) (float64, bool) {
	normalized := NormalizeAmount(raw)
	v, err := strconv.ParseFloat(normalized, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// ParseAmount returns the parsed decimal value for raw, or false when raw is
// empty or unparseable (distinct from NormalizeAmount, which always returns
// a "0.00" string so an identifier can still be computed).
func ParseAmount(raw string) (decimal.Decimal, bool) {
	if strings.TrimSpace(raw) == "" {
		return decimal.Zero, false
	}
	cleaned := amountStripRe.ReplaceAllString(strings.TrimSpace(raw), "")
	cleaned = strings.ReplaceAll(cleaned, ",", ".")
	parts := strings.Split(cleaned, ".")
	if len(parts) > 2 {
		cleaned = strings.Join(parts[:len(parts)-1], "") + "." + parts[len(parts)-1]
	}
	value, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, false
	}
	return value.Round(2), true
}

// ParseDate parses one of the six accepted layouts and returns the resulting
// time, or false when raw is empty or unparseable.
func ParseDate(raw string) (time.Time, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		candidate := trimmed
		if len(candidate) > len(layout) {
			candidate = candidate[:len(layout)]
		}
		if t, err := time.Parse(layout, candidate); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// CleanNIP strips separators and an optional two-letter country prefix, returning ("", false)
// unless the remainder is exactly 10 ASCII digits, matching the validation
// adapters apply before trusting a NIP pulled from unstructured input.
func CleanNIP(raw string) (string, bool) {
	cleaned := NormalizeNIP(raw)
	if len(cleaned) != 10 {
		return "", false
	}
	for _, r := range cleaned {
		if r < '0' || r > '9' {
			return "", false
		}
	}
	return cleaned, true
}

// ValidNIPChecksum validates a 10-digit NIP against the weighted mod-11
// checksum (weights 6 5 7 2 3 4 5 6 7).
func ValidNIPChecksum(nip string) bool {
	if len(nip) != 10 {
		return false
	}
	weights := [9]int{6, 5, 7, 2, 3, 4, 5, 6, 7}
	sum := 0
	for i, w := range weights {
		d := int(nip[i] - '0')
		if d < 0 || d > 9 {
			return false
		}
		sum += d * w
	}
	checkDigit := int(nip[9] - '0')
	if checkDigit < 0 || checkDigit > 9 {
		return false
	}
	return sum%11 == checkDigit
}
