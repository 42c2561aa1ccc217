package adapters

import (
	"context"
	"fmt"
	"time"
)

// ManualImportAdapter never fetches: documents created this way arrive
// directly through the API, not a pull cycle.
type ManualImportAdapter struct{}

// NewManualImportAdapter builds a manual-entry adapter; the config blob
// carries no connection details since there is nothing to connect to.
func NewManualImportAdapter(cfg Config) *ManualImportAdapter { return &ManualImportAdapter{} }

func (a *ManualImportAdapter) Fetch(ctx context.Context, periodStart, periodEnd *time.Time) ([]ImportResult, error) {
	return nil, nil
}

func (a *ManualImportAdapter) TestConnection(ctx context.Context) ConnectionStatus {
	return ConnectionStatus{OK: true, Message: "manual entry requires no connection"}
}

// UploadImportAdapter never fetches: files are parsed server-side at upload
// time by the matching import adapter for the uploaded file's shape, not by
// a pull cycle against this adapter.
type UploadImportAdapter struct{}

// NewUploadImportAdapter builds a file-upload adapter.
func NewUploadImportAdapter(cfg Config) *UploadImportAdapter { return &UploadImportAdapter{} }

func (a *UploadImportAdapter) Fetch(ctx context.Context, periodStart, periodEnd *time.Time) ([]ImportResult, error) {
	return nil, nil
}

func (a *UploadImportAdapter) TestConnection(ctx context.Context) ConnectionStatus {
	return ConnectionStatus{OK: true, Message: "file upload is always available"}
}

// WebhookImportAdapter is passive: it never fetches, since documents arrive
// by an external system POSTing to the webhook endpoint.
type WebhookImportAdapter struct {
	url string
}

// NewWebhookImportAdapter builds a webhook-receiver adapter.
func NewWebhookImportAdapter(cfg Config) *WebhookImportAdapter {
	return &WebhookImportAdapter{url: cfg.str("url", "")}
}

func (a *WebhookImportAdapter) Fetch(ctx context.Context, periodStart, periodEnd *time.Time) ([]ImportResult, error) {
	return nil, nil
}

func (a *WebhookImportAdapter) TestConnection(ctx context.Context) ConnectionStatus {
	if a.url == "" {
		return ConnectionStatus{OK: true, Message: "no webhook URL configured — documents accepted on the internal endpoint"}
	}
	return ConnectionStatus{OK: true, Message: fmt.Sprintf("webhook configured: %s", a.url)}
}
