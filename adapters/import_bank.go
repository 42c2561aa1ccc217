package adapters

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/exef-pl/exef/docid"
)

// bankRow is one parsed CSV row with lowercased, trimmed, non-empty header
// cells only, kept in column order so substring header lookups (a bank's
// exact column names vary by export version) behave like the original
// row-scan.
type bankRow struct {
	keys   []string
	values []string
}

func newBankRow(header, row []string) bankRow {
	br := bankRow{}
	for i, h := range header {
		if i >= len(row) {
			break
		}
		v := strings.TrimSpace(row[i])
		if v == "" {
			continue
		}
		br.keys = append(br.keys, strings.ToLower(strings.TrimSpace(h)))
		br.values = append(br.values, v)
	}
	return br
}

// find returns the first value whose header contains one of keys as a
// substring, matching the Python adapter's `if k in rk` scan.
func (r bankRow) find(keys ...string) string {
	for _, key := range keys {
		for i, k := range r.keys {
			if strings.Contains(k, key) {
				return r.values[i]
			}
		}
	}
	return ""
}

var (
	bankFVGenericPattern = regexp.MustCompile(`(?i)(FV|FA|FZ)[/\-\s]?\d+`)
	bankFVLoosePattern   = regexp.MustCompile(`(?i)(FV|FA|FZ)[/\-\s]?\S+`)
	bankNIPPattern       = regexp.MustCompile(`NIP[:\s]*(\d{10})`)
	bankPKOContractor    = regexp.MustCompile(`Nazwa (nadawcy|odbiorcy)[:\s]*(.+?)(\s*Adres|\s*Tytu.|\s*$)`)
)

func docTypeForAmount(amount float64) string {
	if amount > 0 {
		return "payment_in"
	}
	return "payment_out"
}

// bankGenericMap implements the auto-detecting column scan any bank's CSV
// export can fall back to when no dedicated mapper recognises its layout.
func bankGenericMap(row bankRow) *ImportResult {
	amountStr := row.find("kwota", "amount", "wartosc", "wartość", "suma", "brutto")
	title := row.find("tytul", "tytuł", "title", "opis", "description", "tytułem")
	contractor := row.find("kontrahent", "nadawca", "odbiorca", "nazwa", "name", "sender")
	nip := row.find("nip")
	dateStr := row.find("data", "date", "data_operacji", "data operacji", "data_transakcji")

	if amountStr == "" && title == "" {
		return nil
	}

	amount, ok := docid.ParseAmount(amountStr)
	amountF, _ := amount.Float64()
	if !ok {
		amountF = 0
	}

	r := &ImportResult{
		DocType:        docTypeForAmount(amountF),
		ContractorName: contractor,
		Description:    title,
		Category:       "Przelew bankowy",
		Currency:       "PLN",
	}
	if m := bankFVGenericPattern.FindString(title); m != "" {
		r.Number = m
	}
	if nipClean, ok := docid.CleanNIP(nip); ok {
		r.ContractorNIP = nipClean
	}
	if ok {
		abs := amount.Abs()
		r.AmountGross = &abs
	}
	if date, ok := docid.ParseDate(dateStr); ok {
		r.DocumentDate = &date
	}
	return r
}

// bankINGMap implements ING Bank Śląski's statement column layout.
func bankINGMap(row bankRow) *ImportResult {
	amountStr := row.find("kwota")
	title := row.find("tytuł", "tytul", "title")
	contractor := row.find("dane kontrahenta", "kontrahent")
	dateStr := row.find("data transakcji", "data")
	details := row.find("szczegóły", "szczegoly")

	amount, ok := docid.ParseAmount(amountStr)
	if !ok {
		return nil
	}

	haystack := title + " " + details
	r := &ImportResult{
		DocType:        docTypeForAmount(floatOf(amount)),
		ContractorName: contractor,
		Description:    title,
		Category:       "Przelew bankowy – ING",
		Source:         "bank_ing",
		Currency:       orDefault(row.find("waluta"), "PLN"),
	}
	if m := bankFVLoosePattern.FindString(haystack); m != "" {
		r.Number = m
	}
	if m := bankNIPPattern.FindStringSubmatch(haystack); m != nil {
		r.ContractorNIP = m[1]
	}
	abs := amount.Abs()
	r.AmountGross = &abs
	if date, ok := docid.ParseDate(dateStr); ok {
		r.DocumentDate = &date
	}
	return r
}

// bankMBankMap implements mBank's statement column layout, including its
// leading-"#" header variant.
func bankMBankMap(row bankRow) *ImportResult {
	amountStr := row.find("kwota", "#kwota")
	description := row.find("opis operacji", "#opis operacji", "opis")
	category := row.find("kategoria", "#kategoria")
	dateStr := row.find("data operacji", "#data operacji", "data")

	amount, ok := docid.ParseAmount(amountStr)
	if !ok {
		return nil
	}

	var contractor string
	if description != "" {
		if lines := strings.Split(description, ";"); len(lines) > 1 {
			contractor = strings.TrimSpace(lines[0])
		}
	}

	r := &ImportResult{
		DocType:        docTypeForAmount(floatOf(amount)),
		ContractorName: contractor,
		Description:    description,
		Category:       orDefault(category, "Przelew bankowy – mBank"),
		Source:         "bank_mbank",
		Currency:       "PLN",
	}
	if m := bankFVLoosePattern.FindString(description); m != "" {
		r.Number = m
	}
	abs := amount.Abs()
	r.AmountGross = &abs
	if date, ok := docid.ParseDate(dateStr); ok {
		r.DocumentDate = &date
	}
	return r
}

// bankPKOMap implements PKO BP's statement column layout.
func bankPKOMap(row bankRow) *ImportResult {
	amountStr := row.find("kwota")
	description := row.find("opis transakcji", "opis")
	txType := row.find("typ transakcji", "typ")
	dateStr := row.find("data operacji", "data")

	amount, ok := docid.ParseAmount(amountStr)
	if !ok {
		return nil
	}

	r := &ImportResult{
		DocType:     docTypeForAmount(floatOf(amount)),
		Description: description,
		Category:    orDefault(txType, "Przelew bankowy – PKO BP"),
		Source:      "bank_pko",
		Currency:    orDefault(row.find("waluta"), "PLN"),
	}
	if m := bankFVLoosePattern.FindString(description); m != "" {
		r.Number = m
	}
	if m := bankNIPPattern.FindStringSubmatch(description); m != nil {
		r.ContractorNIP = m[1]
	}
	if m := bankPKOContractor.FindStringSubmatch(description); m != nil {
		r.ContractorName = strings.TrimSpace(m[2])
	}
	abs := amount.Abs()
	r.AmountGross = &abs
	if date, ok := docid.ParseDate(dateStr); ok {
		r.DocumentDate = &date
	}
	return r
}

// bankSantanderMap reuses the generic mapper and relabels source/category.
func bankSantanderMap(row bankRow) *ImportResult {
	r := bankGenericMap(row)
	if r == nil {
		return nil
	}
	r.Source = "bank_santander"
	if r.Category == "" || r.Category == "Przelew bankowy" {
		r.Category = "Przelew bankowy – Santander"
	}
	return r
}

// bankPekaoMap reuses the generic mapper and relabels source/category.
func bankPekaoMap(row bankRow) *ImportResult {
	r := bankGenericMap(row)
	if r == nil {
		return nil
	}
	r.Source = "bank_pekao"
	if r.Category == "" || r.Category == "Przelew bankowy" {
		r.Category = "Przelew bankowy – Pekao"
	}
	return r
}

func floatOf(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

func orDefault(value, def string) string {
	if value == "" {
		return def
	}
	return value
}

// BankImportAdapter parses a bank statement CSV uploaded via config
// ("_content") using the mapper registered for the detected bank preset.
type BankImportAdapter struct {
	content      string
	mapper       func(bankRow) *ImportResult
	sourcePrefix string
}

// NewBankImportAdapter builds a bank statement adapter around one of the
// bank*Map mapper functions; each ImportResult keeps the Source its mapper
// stamps, and results the mapper leaves without one get "bank".
func NewBankImportAdapter(cfg Config, mapper func(bankRow) *ImportResult) *BankImportAdapter {
	return &BankImportAdapter{content: cfg.str("_content", ""), mapper: mapper, sourcePrefix: "bank"}
}

// Fetch parses every row of the configured CSV content through the bank's
// mapper function.
func (a *BankImportAdapter) Fetch(ctx context.Context, periodStart, periodEnd *time.Time) ([]ImportResult, error) {
	if a.content == "" {
		return nil, nil
	}

	rows, err := parseCSVBytes([]byte(a.content))
	if err != nil {
		return nil, fmt.Errorf("parse bank statement csv: %w", err)
	}
	if len(rows) < 2 {
		return nil, nil
	}

	header := rows[0]
	var results []ImportResult
	for idx, row := range rows[1:] {
		parsed := a.mapper(newBankRow(header, row))
		if parsed == nil {
			continue
		}
		if parsed.Source == "" {
			parsed.Source = a.sourcePrefix
		}
		parsed.SourceID = fmt.Sprintf("%s-row%d", parsed.Source, idx+1)
		results = append(results, *parsed)
	}

	return results, nil
}

// TestConnection is always OK: bank adapters only consume content already
// provided in config, with no remote endpoint to verify.
func (a *BankImportAdapter) TestConnection(ctx context.Context) ConnectionStatus {
	if a.content == "" {
		return ConnectionStatus{OK: true, Message: "no bank statement content loaded yet"}
	}
	return ConnectionStatus{OK: true, Message: "bank statement content present"}
}
