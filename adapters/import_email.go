package adapters

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"

	"github.com/exef-pl/exef/archive"
	"github.com/exef-pl/exef/docid"
)

// EmailImportAdapter scans an IMAP mailbox for invoice emails: a *.csv
// attachment produces one ImportResult per data row and a *.pdf attachment
// one ImportResult, a *.zip is expanded
// and its csv/pdf members are treated the same way, falling back to a
// best-effort scan of the plain-text body when a message carries neither.
type EmailImportAdapter struct {
	host     string
	port     int
	username string
	password string
	folder   string
	daysBack int
}

// NewEmailImportAdapter builds an adapter from a data source config blob.
func NewEmailImportAdapter(cfg Config) *EmailImportAdapter {
	return &EmailImportAdapter{
		host:     cfg.str("host", ""),
		port:     cfg.integer("port", 993),
		username: cfg.str("username", ""),
		password: cfg.str("password", ""),
		folder:   cfg.str("folder", "INBOX"),
		daysBack: cfg.integer("days_back", 30),
	}
}

func (a *EmailImportAdapter) dial() (*client.Client, error) {
	addr := fmt.Sprintf("%s:%d", a.host, a.port)
	if a.port == 993 {
		return client.DialTLS(addr, nil)
	}
	return client.Dial(addr)
}

// Fetch connects over IMAP, selects the configured folder read-only, and
// parses every message received since periodStart (defaulting to daysBack)
// for invoice-shaped attachments or body text.
func (a *EmailImportAdapter) Fetch(ctx context.Context, periodStart, periodEnd *time.Time) ([]ImportResult, error) {
	if a.host == "" || a.username == "" {
		return nil, nil
	}

	c, err := a.dial()
	if err != nil {
		return nil, fmt.Errorf("dial imap %s: %w", a.host, err)
	}
	defer c.Logout()

	if a.password != "" {
		if err := c.Login(a.username, a.password); err != nil {
			return nil, fmt.Errorf("imap login: %w", err)
		}
	}

	mbox, err := c.Select(a.folder, true)
	if err != nil {
		return nil, fmt.Errorf("select folder %s: %w", a.folder, err)
	}
	if mbox.Messages == 0 {
		return nil, nil
	}

	since := time.Now().AddDate(0, 0, -a.daysBack)
	if periodStart != nil {
		since = *periodStart
	}

	criteria := imap.NewSearchCriteria()
	criteria.Since = since
	ids, err := c.Search(criteria)
	if err != nil {
		return nil, fmt.Errorf("imap search: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(ids...)

	section := &imap.BodySectionName{}
	messages := make(chan *imap.Message, len(ids))
	done := make(chan error, 1)
	go func() {
		done <- c.Fetch(seqSet, []imap.FetchItem{section.FetchItem()}, messages)
	}()

	var results []ImportResult
	for msg := range messages {
		body := msg.GetBody(section)
		if body == nil {
			continue
		}
		m, err := mail.ReadMessage(body)
		if err != nil {
			continue
		}
		results = append(results, a.parseMessage(m)...)
	}
	if err := <-done; err != nil {
		return results, fmt.Errorf("imap fetch: %w", err)
	}

	return results, nil
}

var fvFilenamePattern = regexp.MustCompile(`(?i)(FV|FA|FZ|Faktura)[_\-/]?(\d+)[_\-/]?(\d{2,4})?`)
var fvBodyPattern = regexp.MustCompile(`(?i)(FV|FA|FZ|Faktura)\s*[:\-#]?\s*([A-Z0-9/\-]+)`)
var amountBodyPattern = regexp.MustCompile(`(?i)(brutto|do zap.aty|razem)[:\s]*([0-9\s,.]+)\s*(PLN|z.)?`)
var nipBodyPattern = regexp.MustCompile(`NIP[:\s]*(\d[\d\s\-]{8,}\d)`)

func (a *EmailImportAdapter) parseMessage(m *mail.Message) []ImportResult {
	subject := decodeHeader(m.Header.Get("Subject"))
	from := m.Header.Get("From")
	msgDate, _ := m.Header.Date()

	contentType := m.Header.Get("Content-Type")
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil || !strings.HasPrefix(mediaType, "multipart/") {
		return a.parseBody(m, subject, from, msgDate)
	}

	mr := multipartReader(m.Body, params["boundary"])
	if mr == nil {
		return a.parseBody(m, subject, from, msgDate)
	}

	var results []ImportResult
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}
		filename := decodeHeader(part.FileName())
		if filename == "" {
			continue
		}
		payload, err := io.ReadAll(part)
		if err != nil {
			continue
		}
		switch {
		case strings.HasSuffix(strings.ToLower(filename), ".csv"):
			results = append(results, a.parseCSVAttachment(payload, filename, from, msgDate)...)
		case strings.HasSuffix(strings.ToLower(filename), ".pdf"):
			results = append(results, a.parsePDFFilename(filename, from, msgDate))
		case strings.HasSuffix(strings.ToLower(filename), ".zip"):
			results = append(results, a.parseZipAttachment(payload, from, msgDate)...)
		}
	}

	if len(results) == 0 {
		return a.parseBody(m, subject, from, msgDate)
	}
	return results
}

func (a *EmailImportAdapter) parseCSVAttachment(payload []byte, filename, from string, msgDate time.Time) []ImportResult {
	rows, err := parseCSVBytes(payload)
	if err != nil || len(rows) == 0 {
		return nil
	}

	header := lowerRow(rows[0])
	var results []ImportResult
	for i, row := range rows[1:] {
		get := func(keys ...string) string { return columnValue(header, row, keys...) }

		number := get("numer", "number", "nr")
		contractor := get("kontrahent", "contractor_name", "nazwa")
		nipClean, _ := docid.CleanNIP(get("nip", "contractor_nip"))
		gross, hasGross := docid.ParseAmount(get("brutto", "amount_gross", "kwota"))
		net, hasNet := docid.ParseAmount(get("netto", "amount_net"))
		vat, hasVAT := docid.ParseAmount(get("vat", "amount_vat"))
		date, hasDate := docid.ParseDate(get("data", "date", "document_date"))

		if number == "" && !hasGross && contractor == "" {
			continue
		}

		r := ImportResult{
			DocType:          "invoice",
			Number:           number,
			ContractorName:   contractor,
			ContractorNIP:    nipClean,
			Source:           "email",
			SourceID:         fmt.Sprintf("email-csv-%s-row%d", filename, i+1),
			OriginalFilename: filename,
		}
		if hasGross {
			r.AmountGross = &gross
		}
		if hasNet {
			r.AmountNet = &net
		}
		if hasVAT {
			r.AmountVAT = &vat
		}
		if hasDate {
			r.DocumentDate = &date
		} else if !msgDate.IsZero() {
			r.DocumentDate = &msgDate
		}
		results = append(results, r)
	}
	return results
}

// parseZipAttachment expands a batched attachment (common for accountants
// who receive a month's worth of scans in one email) and reuses the same
// per-file dispatch the top-level MIME loop applies.
func (a *EmailImportAdapter) parseZipAttachment(payload []byte, from string, msgDate time.Time) []ImportResult {
	entries, err := archive.ExtractEntries(payload)
	if err != nil {
		return nil
	}

	var results []ImportResult
	for name, content := range entries {
		switch {
		case strings.HasSuffix(strings.ToLower(name), ".csv"):
			results = append(results, a.parseCSVAttachment(content, name, from, msgDate)...)
		case strings.HasSuffix(strings.ToLower(name), ".pdf"):
			results = append(results, a.parsePDFFilename(name, from, msgDate))
		}
	}
	return results
}

func (a *EmailImportAdapter) parsePDFFilename(filename, from string, msgDate time.Time) ImportResult {
	name := strings.TrimSuffix(filename, filepathExt(filename))
	number := name
	if m := fvFilenamePattern.FindString(name); m != "" {
		number = strings.ReplaceAll(m, "_", "/")
	}

	r := ImportResult{
		DocType:          "invoice",
		Number:           number,
		ContractorName:   extractSenderName(from),
		Source:           "email",
		SourceID:         fmt.Sprintf("email-pdf-%s", filename),
		OriginalFilename: filename,
	}
	if !msgDate.IsZero() {
		r.DocumentDate = &msgDate
	}
	return r
}

func (a *EmailImportAdapter) parseBody(m *mail.Message, subject, from string, msgDate time.Time) []ImportResult {
	body, err := io.ReadAll(m.Body)
	if err != nil || len(body) == 0 {
		return nil
	}
	text := string(body)

	fvMatch := fvBodyPattern.FindString(text)
	amountMatch := amountBodyPattern.FindStringSubmatch(text)
	nipMatch := nipBodyPattern.FindStringSubmatch(text)

	if fvMatch == "" && amountMatch == nil {
		return nil
	}

	r := ImportResult{
		DocType:        "invoice",
		Number:         strings.TrimSpace(fvMatch),
		ContractorName: extractSenderName(from),
		Source:         "email",
		SourceID:       fmt.Sprintf("email-body-%d", msgDate.Unix()),
		Description:    subject,
	}
	if nipMatch != nil {
		if nip, ok := docid.CleanNIP(nipMatch[1]); ok {
			r.ContractorNIP = nip
		}
	}
	if amountMatch != nil {
		if gross, ok := docid.ParseAmount(amountMatch[2]); ok {
			r.AmountGross = &gross
		}
	}
	if !msgDate.IsZero() {
		r.DocumentDate = &msgDate
	}
	return []ImportResult{r}
}

// TestConnection dials the server, logs in if a password is configured, and
// reports the message count of the selected folder.
func (a *EmailImportAdapter) TestConnection(ctx context.Context) ConnectionStatus {
	if a.host == "" {
		return ConnectionStatus{OK: false, Message: "missing IMAP host"}
	}
	if a.username == "" {
		return ConnectionStatus{OK: false, Message: "missing IMAP username"}
	}

	c, err := a.dial()
	if err != nil {
		return ConnectionStatus{OK: false, Message: fmt.Sprintf("connection failed: %s", err)}
	}
	defer c.Logout()

	if a.password == "" {
		return ConnectionStatus{OK: true, Message: fmt.Sprintf("connected to %s:%d (no password — not logged in)", a.host, a.port)}
	}

	if err := c.Login(a.username, a.password); err != nil {
		return ConnectionStatus{OK: false, Message: fmt.Sprintf("login failed: %s", err)}
	}

	mbox, err := c.Select(a.folder, true)
	if err != nil {
		return ConnectionStatus{OK: false, Message: fmt.Sprintf("connected, but folder %q does not exist", a.folder)}
	}
	return ConnectionStatus{OK: true, Message: fmt.Sprintf("connection OK, folder %q has %d messages", a.folder, mbox.Messages)}
}

func decodeHeader(v string) string {
	if v == "" {
		return ""
	}
	dec := new(mime.WordDecoder)
	decoded, err := dec.DecodeHeader(v)
	if err != nil {
		return v
	}
	return decoded
}

func extractSenderName(from string) string {
	addr, err := mail.ParseAddress(from)
	if err != nil {
		return from
	}
	if addr.Name != "" {
		return addr.Name
	}
	if at := strings.Index(addr.Address, "@"); at > 0 {
		return addr.Address[:at]
	}
	return addr.Address
}

func filepathExt(filename string) string {
	if i := strings.LastIndex(filename, "."); i >= 0 {
		return filename[i:]
	}
	return ""
}
