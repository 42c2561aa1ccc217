package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/exef-pl/exef/docid"
)

// ksefEnvURLs maps a KsefImportAdapter environment name to its API base
// URL; "mock" points at the local mock-ksef container used in test/demo
// deployments before real KSeF credentials are provisioned.
var ksefEnvURLs = map[string]string{
	"test": "https://ksef-test.mf.gov.pl/api",
	"demo": "https://ksef-demo.mf.gov.pl/api",
	"prod": "https://ksef.mf.gov.pl/api",
	"mock": "http://mock-ksef:8080/api",
}

// KsefImportAdapter pulls invoices from the Krajowy System e-Faktur API (or
// its local mock) for a single NIP.
type KsefImportAdapter struct {
	nip         string
	token       string
	environment string
	httpClient  *http.Client
}

// NewKsefImportAdapter builds an adapter from a data source config blob.
func NewKsefImportAdapter(cfg Config) *KsefImportAdapter {
	return &KsefImportAdapter{
		nip:         cfg.str("nip", ""),
		token:       cfg.str("token", ""),
		environment: cfg.str("environment", "mock"),
		httpClient:  &http.Client{Timeout: 15 * time.Second},
	}
}

func (a *KsefImportAdapter) baseURL() string {
	if url, ok := ksefEnvURLs[a.environment]; ok {
		return url
	}
	return ksefEnvURLs["mock"]
}

type ksefInvoice struct {
	Number             string      `json:"number"`
	InvoiceNumber      string      `json:"invoiceNumber"`
	ContractorName     string      `json:"contractor_name"`
	IssuerName         string      `json:"issuerName"`
	ContractorNIP      string      `json:"contractor_nip"`
	IssuerNIP          string      `json:"issuerNip"`
	AmountNet          json.Number `json:"amount_net"`
	NetAmount          json.Number `json:"netAmount"`
	AmountVAT          json.Number `json:"amount_vat"`
	VATAmount          json.Number `json:"vatAmount"`
	AmountGross        json.Number `json:"amount_gross"`
	GrossAmount        json.Number `json:"grossAmount"`
	Currency           string      `json:"currency"`
	DocumentDate       string      `json:"document_date"`
	InvoiceDate        string      `json:"invoiceDate"`
	KsefReferenceNumber string     `json:"ksefReferenceNumber"`
	ID                 string      `json:"id"`
}

type ksefListResponse struct {
	Invoices []ksefInvoice `json:"invoices"`
	Items    []ksefInvoice `json:"items"`
}

func (inv ksefInvoice) number() string {
	if inv.Number != "" {
		return inv.Number
	}
	return inv.InvoiceNumber
}

func (inv ksefInvoice) contractorName() string {
	if inv.ContractorName != "" {
		return inv.ContractorName
	}
	return inv.IssuerName
}

func (inv ksefInvoice) contractorNIP() string {
	if inv.ContractorNIP != "" {
		return inv.ContractorNIP
	}
	return inv.IssuerNIP
}

func (inv ksefInvoice) numberField(primary, fallback json.Number) string {
	if primary != "" {
		return primary.String()
	}
	return fallback.String()
}

func (inv ksefInvoice) documentDate() string {
	if inv.DocumentDate != "" {
		return inv.DocumentDate
	}
	return inv.InvoiceDate
}

func (inv ksefInvoice) reference() string {
	if inv.KsefReferenceNumber != "" {
		return inv.KsefReferenceNumber
	}
	return inv.ID
}

// Fetch requests /invoices?nip=...&dateFrom=...&dateTo=... and maps the
// response into ImportResults.
func (a *KsefImportAdapter) Fetch(ctx context.Context, periodStart, periodEnd *time.Time) ([]ImportResult, error) {
	if a.nip == "" {
		return nil, nil
	}

	url := fmt.Sprintf("%s/invoices?nip=%s", a.baseURL(), a.nip)
	if periodStart != nil {
		url += "&dateFrom=" + periodStart.Format("2006-01-02")
	}
	if periodEnd != nil {
		url += "&dateTo=" + periodEnd.Format("2006-01-02")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ksef request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read ksef response: %w", err)
	}

	var invoices []ksefInvoice
	var list ksefListResponse
	if err := json.Unmarshal(body, &invoices); err != nil {
		if err := json.Unmarshal(body, &list); err != nil {
			return nil, fmt.Errorf("decode ksef response: %w", err)
		}
		invoices = list.Invoices
		if len(invoices) == 0 {
			invoices = list.Items
		}
	}

	results := make([]ImportResult, 0, len(invoices))
	for _, inv := range invoices {
		r := ImportResult{
			DocType:        "invoice",
			Number:         inv.number(),
			ContractorName: inv.contractorName(),
			Currency:       inv.Currency,
			Source:         "ksef",
			SourceID:       fmt.Sprintf("ksef-%s", inv.reference()),
		}
		if r.Currency == "" {
			r.Currency = "PLN"
		}
		if nip, ok := docid.CleanNIP(inv.contractorNIP()); ok {
			r.ContractorNIP = nip
		}
		if net, ok := docid.ParseAmount(inv.numberField(inv.AmountNet, inv.NetAmount)); ok {
			r.AmountNet = &net
		}
		if vat, ok := docid.ParseAmount(inv.numberField(inv.AmountVAT, inv.VATAmount)); ok {
			r.AmountVAT = &vat
		}
		if gross, ok := docid.ParseAmount(inv.numberField(inv.AmountGross, inv.GrossAmount)); ok {
			r.AmountGross = &gross
		}
		if date, ok := docid.ParseDate(inv.documentDate()); ok {
			r.DocumentDate = &date
		}
		results = append(results, r)
	}

	return results, nil
}

// TestConnection validates the configured NIP (format and checksum) and, if
// valid, pings the environment's /health endpoint.
func (a *KsefImportAdapter) TestConnection(ctx context.Context) ConnectionStatus {
	if a.nip == "" {
		return ConnectionStatus{OK: false, Message: "missing NIP"}
	}

	clean, ok := docid.CleanNIP(a.nip)
	if !ok {
		return ConnectionStatus{OK: false, Message: fmt.Sprintf("invalid NIP format: %q", a.nip)}
	}
	if !docid.ValidNIPChecksum(clean) {
		return ConnectionStatus{OK: false, Message: fmt.Sprintf("NIP %s fails checksum validation", clean)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL()+"/health", nil)
	if err != nil {
		return ConnectionStatus{OK: true, Message: fmt.Sprintf("NIP %s valid, could not build health request: %s", clean, err)}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return ConnectionStatus{OK: false, Message: fmt.Sprintf("NIP %s valid, but KSeF server (%s) unreachable: %s", clean, a.environment, err)}
	}
	defer resp.Body.Close()

	return ConnectionStatus{OK: true, Message: fmt.Sprintf("NIP %s valid, KSeF server (%s) responded HTTP %d", clean, a.environment, resp.StatusCode)}
}
