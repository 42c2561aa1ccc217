package adapters

import (
	"context"
	"fmt"
	"time"

	"github.com/exef-pl/exef/logging"
	"github.com/exef-pl/exef/model"
)

var log = logging.New(map[string]interface{}{"component": "adapters"})

// ImportFactory builds an ImportAdapter from a data source's free-form
// config blob.
type ImportFactory func(cfg Config) ImportAdapter

// ExportFactory builds an ExportAdapter from a data source's free-form
// config blob.
type ExportFactory func(cfg Config) ExportAdapter

// Registry looks adapters up by model.SourceType, falling back to a mock
// generator for any source type nobody registered (keeps the adapter
// contract exercisable end-to-end even for sources the deployment hasn't
// wired credentials for yet).
type Registry struct {
	imports map[model.SourceType]ImportFactory
	exports map[model.SourceType]ExportFactory
}

// NewRegistry builds the registry with every built-in adapter wired in.
func NewRegistry() *Registry {
	r := &Registry{
		imports: make(map[model.SourceType]ImportFactory),
		exports: make(map[model.SourceType]ExportFactory),
	}

	r.RegisterImport(model.SourceEmail, func(cfg Config) ImportAdapter { return NewEmailImportAdapter(cfg) })
	r.RegisterImport(model.SourceKsef, func(cfg Config) ImportAdapter { return NewKsefImportAdapter(cfg) })
	r.RegisterImport(model.SourceCsv, func(cfg Config) ImportAdapter { return NewCSVImportAdapter(cfg) })
	r.RegisterImport(model.SourceManual, func(cfg Config) ImportAdapter { return NewManualImportAdapter(cfg) })
	r.RegisterImport(model.SourceUpload, func(cfg Config) ImportAdapter { return NewUploadImportAdapter(cfg) })
	r.RegisterImport(model.SourceWebhook, func(cfg Config) ImportAdapter { return NewWebhookImportAdapter(cfg) })
	r.RegisterImport(model.SourceBank, func(cfg Config) ImportAdapter { return NewBankImportAdapter(cfg, bankGenericMap) })
	r.RegisterImport(model.SourceBankING, func(cfg Config) ImportAdapter { return NewBankImportAdapter(cfg, bankINGMap) })
	r.RegisterImport(model.SourceBankMBank, func(cfg Config) ImportAdapter { return NewBankImportAdapter(cfg, bankMBankMap) })
	r.RegisterImport(model.SourceBankPKO, func(cfg Config) ImportAdapter { return NewBankImportAdapter(cfg, bankPKOMap) })
	r.RegisterImport(model.SourceBankSantander, func(cfg Config) ImportAdapter { return NewBankImportAdapter(cfg, bankSantanderMap) })
	r.RegisterImport(model.SourceBankPekao, func(cfg Config) ImportAdapter { return NewBankImportAdapter(cfg, bankPekaoMap) })

	r.RegisterExport(model.SourceWfirma, func(cfg Config) ExportAdapter { return NewWfirmaExportAdapter(cfg) })
	r.RegisterExport(model.SourceJpkPkpir, func(cfg Config) ExportAdapter { return NewJpkPkpirExportAdapter(cfg) })
	r.RegisterExport(model.SourceComarch, func(cfg Config) ExportAdapter { return NewComarchExportAdapter(cfg) })
	r.RegisterExport(model.SourceSymfonia, func(cfg Config) ExportAdapter { return NewSymfoniaExportAdapter(cfg) })
	r.RegisterExport(model.SourceEnova, func(cfg Config) ExportAdapter { return NewEnovaExportAdapter(cfg) })
	r.RegisterExport(model.SourceCsv, func(cfg Config) ExportAdapter { return NewCSVExportAdapter(cfg) })

	return r
}

// RegisterImport adds or replaces the factory for sourceType.
func (r *Registry) RegisterImport(sourceType model.SourceType, factory ImportFactory) {
	r.imports[sourceType] = factory
}

// RegisterExport adds or replaces the factory for sourceType.
func (r *Registry) RegisterExport(sourceType model.SourceType, factory ExportFactory) {
	r.exports[sourceType] = factory
}

// GetImportAdapter returns the registered adapter for sourceType, or a mock
// adapter that returns no documents and reports a clear "not configured"
// status when nothing is registered.
func (r *Registry) GetImportAdapter(sourceType model.SourceType, cfg Config) ImportAdapter {
	if factory, ok := r.imports[sourceType]; ok {
		return factory(cfg)
	}
	log.WithField("source_type", sourceType).Warn("no import adapter registered, using mock")
	return mockImportAdapter{sourceType: sourceType}
}

// GetExportAdapter returns the registered adapter for sourceType, or a mock
// adapter that renders an empty placeholder document.
func (r *Registry) GetExportAdapter(sourceType model.SourceType, cfg Config) ExportAdapter {
	if factory, ok := r.exports[sourceType]; ok {
		return factory(cfg)
	}
	log.WithField("source_type", sourceType).Warn("no export adapter registered, using mock")
	return mockExportAdapter{sourceType: sourceType}
}

type mockImportAdapter struct {
	sourceType model.SourceType
}

func (m mockImportAdapter) Fetch(ctx context.Context, periodStart, periodEnd *time.Time) ([]ImportResult, error) {
	return nil, nil
}

func (m mockImportAdapter) TestConnection(ctx context.Context) ConnectionStatus {
	return ConnectionStatus{OK: false, Message: fmt.Sprintf("no adapter implementation registered for source type %q", m.sourceType)}
}

type mockExportAdapter struct {
	sourceType model.SourceType
}

func (m mockExportAdapter) Export(ctx context.Context, documents []ExportDocument, taskName string) (*ExportResult, error) {
	content := fmt.Sprintf("# %s export unavailable: no adapter registered for %q\n# task: %s, documents: %d\n",
		m.sourceType, m.sourceType, taskName, len(documents))
	return &ExportResult{
		Content:      []byte(content),
		Filename:     fmt.Sprintf("%s-unavailable.txt", m.sourceType),
		Format:       "text/plain",
		DocsExported: 0,
		Encoding:     "utf-8",
	}, nil
}

func (m mockExportAdapter) TestConnection(ctx context.Context) ConnectionStatus {
	return ConnectionStatus{OK: false, Message: fmt.Sprintf("no adapter implementation registered for source type %q", m.sourceType)}
}
