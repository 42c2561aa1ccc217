// Package model defines the canonical document-flow shapes shared by the
// storage router, the adapter registry, the flow engine and the HTTP surface.
// Every adapter produces and every exporter consumes exactly these types.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// EntityType is the kind of business a podmiot represents.
type EntityType string

const (
	EntityJDG          EntityType = "jdg"
	EntityMalzenstwo   EntityType = "malzenstwo"
	EntitySpolka       EntityType = "spolka"
	EntityOrganizacja  EntityType = "organizacja"
)

// TaskRecurrence drives how a ProjectTemplate expands into Tasks.
type TaskRecurrence string

const (
	RecurrenceMonthly   TaskRecurrence = "monthly"
	RecurrenceQuarterly TaskRecurrence = "quarterly"
	RecurrenceYearly    TaskRecurrence = "yearly"
	RecurrenceOnce      TaskRecurrence = "once"
)

// ProjectType enumerates the workstream kinds a Project can represent.
type ProjectType string

const (
	ProjectKsiegowosc      ProjectType = "ksiegowosc"
	ProjectJPK             ProjectType = "jpk"
	ProjectZUS             ProjectType = "zus"
	ProjectVATUE           ProjectType = "vat_ue"
	ProjectKlienta         ProjectType = "projekt_klienta"
	ProjectRDIPBox         ProjectType = "rd_ipbox"
	ProjectKPiR            ProjectType = "kpir"
	ProjectWplaty          ProjectType = "wplaty"
	ProjectDowodyPlatnosci ProjectType = "dowody_platnosci"
	ProjectDrukiPrzesylki  ProjectType = "druki_przesylki"
	ProjectRekrutacja      ProjectType = "rekrutacja"
	ProjectUmowy           ProjectType = "umowy"
	ProjectKorespondencja  ProjectType = "korespondencja"
	ProjectZamowienia      ProjectType = "zamowienia"
	ProjectProtokoly       ProjectType = "protokoly"
	ProjectPolisy          ProjectType = "polisy"
	ProjectWnioski         ProjectType = "wnioski"
	ProjectNieruchomosci   ProjectType = "nieruchomosci"
)

// TaskStatus is the overall lifecycle state of a Task.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskExported   TaskStatus = "exported"
)

// PhaseStatus tracks one of a Task's three phases (import, describe, export).
type PhaseStatus string

const (
	PhaseNotStarted PhaseStatus = "not_started"
	PhaseInProgress PhaseStatus = "in_progress"
	PhaseCompleted  PhaseStatus = "completed"
)

// DocumentStatus is the monotone status progression of a Document.
type DocumentStatus string

const (
	DocumentNew       DocumentStatus = "new"
	DocumentDescribed DocumentStatus = "described"
	DocumentApproved  DocumentStatus = "approved"
	DocumentExported  DocumentStatus = "exported"
)

// documentStatusRank gives each status its position for monotone-advance checks.
var documentStatusRank = map[DocumentStatus]int{
	DocumentNew:       0,
	DocumentDescribed: 1,
	DocumentApproved:  2,
	DocumentExported:  3,
}

// CanAdvance reports whether a status transition from `from` to `to` is a
// forward (or no-op) move along new -> described -> approved -> exported.
func CanAdvance(from, to DocumentStatus) bool {
	return documentStatusRank[to] >= documentStatusRank[from]
}

// AuthorizationRole is shared by EntityMember and ProjectAuthorization.
type AuthorizationRole string

const (
	RoleOwner      AuthorizationRole = "owner"
	RoleAccountant AuthorizationRole = "accountant"
	RoleAssistant  AuthorizationRole = "assistant"
	RoleViewer     AuthorizationRole = "viewer"
)

// SourceDirection is either import or export for a DataSource.
type SourceDirection string

const (
	DirectionImport SourceDirection = "import"
	DirectionExport SourceDirection = "export"
)

// SourceType is the adapter-registry lookup tag for a DataSource.
type SourceType string

const (
	SourceEmail         SourceType = "email"
	SourceKsef          SourceType = "ksef"
	SourceUpload        SourceType = "upload"
	SourceWebhook       SourceType = "webhook"
	SourceWfirma        SourceType = "wfirma"
	SourceJpkPkpir      SourceType = "jpk_pkpir"
	SourceComarch       SourceType = "comarch"
	SourceSymfonia      SourceType = "symfonia"
	SourceEnova         SourceType = "enova"
	SourceCsv           SourceType = "csv"
	SourceManual        SourceType = "manual"
	SourceBank          SourceType = "bank"
	SourceBankING       SourceType = "bank_ing"
	SourceBankMBank     SourceType = "bank_mbank"
	SourceBankPKO       SourceType = "bank_pko"
	SourceBankSantander SourceType = "bank_santander"
	SourceBankPekao     SourceType = "bank_pekao"
)

// RunStatus is the lifecycle status of an ImportRun or ExportRun.
type RunStatus string

const (
	RunRunning RunStatus = "running"
	RunSuccess RunStatus = "success"
	RunError   RunStatus = "error"
	RunPartial RunStatus = "partial"
)

// Identity is a human principal.
type Identity struct {
	ID                 string     `db:"id" json:"id"`
	Email              string     `db:"email" json:"email"`
	PasswordHash       string     `db:"password_hash" json:"-"`
	FirstName          string     `db:"first_name" json:"first_name,omitempty"`
	LastName           string     `db:"last_name" json:"last_name,omitempty"`
	Pesel              string     `db:"pesel" json:"pesel,omitempty"`
	Nip                string     `db:"nip" json:"nip,omitempty"`
	Avatar             string     `db:"avatar" json:"avatar,omitempty"`
	Color              string     `db:"color" json:"color,omitempty"`
	IsActive           bool       `db:"is_active" json:"is_active"`
	IsVerified         bool       `db:"is_verified" json:"is_verified"`
	VerificationMethod string     `db:"verification_method" json:"verification_method,omitempty"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at" json:"updated_at"`
}

// FullName returns the display name, falling back to the email address.
func (i Identity) FullName() string {
	name := (i.FirstName + " " + i.LastName)
	if trimmed := trimSpace(name); trimmed != "" {
		return trimmed
	}
	return i.Email
}

func trimSpace(s string) string {
	start, end := 0, len(s)
	for start < end && s[start] == ' ' {
		start++
	}
	for end > start && s[end-1] == ' ' {
		end--
	}
	return s[start:end]
}

// Entity is a business whose documents are managed.
type Entity struct {
	ID             string     `db:"id" json:"id"`
	Type           EntityType `db:"type" json:"type"`
	Name           string     `db:"name" json:"name"`
	Nip            string     `db:"nip" json:"nip,omitempty"`
	Regon          string     `db:"regon" json:"regon,omitempty"`
	Krs            string     `db:"krs" json:"krs,omitempty"`
	AddressStreet  string     `db:"address_street" json:"address_street,omitempty"`
	AddressCity    string     `db:"address_city" json:"address_city,omitempty"`
	AddressPostal  string     `db:"address_postal" json:"address_postal,omitempty"`
	Icon           string     `db:"icon" json:"icon,omitempty"`
	Color          string     `db:"color" json:"color,omitempty"`
	OwnerID        string     `db:"owner_id" json:"owner_id"`
	IsArchived     bool       `db:"is_archived" json:"is_archived"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

// EntityDatabase is the per-entity storage configuration row.
type EntityDatabase struct {
	ID                 string     `db:"id" json:"id"`
	EntityID           string     `db:"entity_id" json:"entity_id"`
	LocalDBURL         string     `db:"local_db_url" json:"local_db_url,omitempty"`
	LocalDBPath        string     `db:"local_db_path" json:"local_db_path,omitempty"`
	RemoteDBURL        string     `db:"remote_db_url" json:"remote_db_url,omitempty"`
	RemoteDBDriver     string     `db:"remote_db_driver" json:"remote_db_driver,omitempty"`
	SyncEnabled        bool       `db:"sync_enabled" json:"sync_enabled"`
	SyncDirection      string     `db:"sync_direction" json:"sync_direction,omitempty"`
	SyncIntervalMin    int        `db:"sync_interval_minutes" json:"sync_interval_minutes"`
	LastSyncAt         *time.Time `db:"last_sync_at" json:"last_sync_at,omitempty"`
	LastSyncStatus     string     `db:"last_sync_status" json:"last_sync_status,omitempty"`
	LastSyncError      string     `db:"last_sync_error" json:"last_sync_error,omitempty"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at" json:"updated_at"`
}

// ResourceRouting maps a resource identifier to the entity NIP that owns its
// physical database, when per-entity storage is enabled.
type ResourceRouting struct {
	ResourceID   string `db:"resource_id" json:"resource_id"`
	EntityNip    string `db:"entity_nip" json:"entity_nip"`
	EntityID     string `db:"entity_id" json:"entity_id"`
	ResourceType string `db:"resource_type" json:"resource_type"`
}

// EntityMember links an Identity to an Entity with a role and capabilities.
type EntityMember struct {
	ID                string            `db:"id" json:"id"`
	EntityID          string            `db:"entity_id" json:"entity_id"`
	IdentityID        string            `db:"identity_id" json:"identity_id"`
	Role              AuthorizationRole `db:"role" json:"role"`
	CanManageProjects bool              `db:"can_manage_projects" json:"can_manage_projects"`
	CanInviteMembers  bool              `db:"can_invite_members" json:"can_invite_members"`
	CanExport         bool              `db:"can_export" json:"can_export"`
	JoinedAt          time.Time         `db:"joined_at" json:"joined_at"`
}

// ProjectTemplate is a blueprint for project + task generation.
type ProjectTemplate struct {
	ID                string      `db:"id" json:"id"`
	Code              string      `db:"code" json:"code"`
	Name              string      `db:"name" json:"name"`
	Description       string      `db:"description" json:"description,omitempty"`
	ProjectType       ProjectType `db:"project_type" json:"project_type"`
	TaskRecurrence    TaskRecurrence `db:"task_recurrence" json:"task_recurrence"`
	TaskNameTemplate  string      `db:"task_name_template" json:"task_name_template,omitempty"`
	TaskIcon          string      `db:"task_icon" json:"task_icon,omitempty"`
	DeadlineDay       int         `db:"deadline_day" json:"deadline_day"`
	DefaultIcon       string      `db:"default_icon" json:"default_icon,omitempty"`
	DefaultColor      string      `db:"default_color" json:"default_color,omitempty"`
	DefaultCategories []string    `db:"-" json:"default_categories,omitempty"`
	IsSystem          bool        `db:"is_system" json:"is_system"`
	CreatedByID       string      `db:"created_by_id" json:"created_by_id,omitempty"`
	CreatedAt         time.Time   `db:"created_at" json:"created_at"`
}

// Project is a time-bounded workstream inside an Entity.
type Project struct {
	ID          string      `db:"id" json:"id"`
	EntityID    string      `db:"entity_id" json:"entity_id"`
	TemplateID  string      `db:"template_id" json:"template_id,omitempty"`
	Name        string      `db:"name" json:"name"`
	Description string      `db:"description" json:"description,omitempty"`
	Type        ProjectType `db:"type" json:"type"`
	PeriodStart *time.Time  `db:"period_start" json:"period_start,omitempty"`
	PeriodEnd   *time.Time  `db:"period_end" json:"period_end,omitempty"`
	Year        int         `db:"year" json:"year,omitempty"`
	Icon        string      `db:"icon" json:"icon,omitempty"`
	Color       string      `db:"color" json:"color,omitempty"`
	Categories  []string    `db:"-" json:"categories,omitempty"`
	Tags        []string    `db:"-" json:"tags,omitempty"`
	IsActive    bool        `db:"is_active" json:"is_active"`
	IsArchived  bool        `db:"is_archived" json:"is_archived"`
	CreatedAt   time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time   `db:"updated_at" json:"updated_at"`
}

// ProjectAuthorization delegates access to a project to an identity outside
// the owning entity's membership.
type ProjectAuthorization struct {
	ID           string            `db:"id" json:"id"`
	ProjectID    string            `db:"project_id" json:"project_id"`
	IdentityID   string            `db:"identity_id" json:"identity_id"`
	Role         AuthorizationRole `db:"role" json:"role"`
	CanView      bool              `db:"can_view" json:"can_view"`
	CanDescribe  bool              `db:"can_describe" json:"can_describe"`
	CanApprove   bool              `db:"can_approve" json:"can_approve"`
	CanExport    bool              `db:"can_export" json:"can_export"`
	ValidFrom    time.Time         `db:"valid_from" json:"valid_from"`
	ValidUntil   *time.Time        `db:"valid_until" json:"valid_until,omitempty"`
	GrantedByID  string            `db:"granted_by_id" json:"granted_by_id,omitempty"`
	GrantedAt    time.Time         `db:"granted_at" json:"granted_at"`
}

// Active reports whether the authorization's validity window covers `at`.
func (a ProjectAuthorization) Active(at time.Time) bool {
	if at.Before(a.ValidFrom) {
		return false
	}
	return a.ValidUntil == nil || at.Before(*a.ValidUntil)
}

// Task is a unit of periodic work inside a Project.
type Task struct {
	ID             string      `db:"id" json:"id"`
	ProjectID      string      `db:"project_id" json:"project_id"`
	Name           string      `db:"name" json:"name"`
	Description    string      `db:"description" json:"description,omitempty"`
	Icon           string      `db:"icon" json:"icon,omitempty"`
	PeriodStart    *time.Time  `db:"period_start" json:"period_start,omitempty"`
	PeriodEnd      *time.Time  `db:"period_end" json:"period_end,omitempty"`
	Deadline       *time.Time  `db:"deadline" json:"deadline,omitempty"`
	Status         TaskStatus  `db:"status" json:"status"`
	ImportStatus   PhaseStatus `db:"import_status" json:"import_status"`
	DescribeStatus PhaseStatus `db:"describe_status" json:"describe_status"`
	ExportStatus   PhaseStatus `db:"export_status" json:"export_status"`
	AssignedToID   string      `db:"assigned_to_id" json:"assigned_to_id,omitempty"`
	DocsTotal      int         `db:"docs_total" json:"docs_total"`
	DocsDescribed  int         `db:"docs_described" json:"docs_described"`
	DocsApproved   int         `db:"docs_approved" json:"docs_approved"`
	DocsExported   int         `db:"docs_exported" json:"docs_exported"`
	CreatedAt      time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time   `db:"updated_at" json:"updated_at"`
}

// Document is a canonicalised business record.
type Document struct {
	ID             string         `db:"id" json:"id"`
	TaskID         string         `db:"task_id" json:"task_id"`
	DocType        string         `db:"doc_type" json:"doc_type"`
	Number         string         `db:"number" json:"number,omitempty"`
	ContractorName string         `db:"contractor_name" json:"contractor_name,omitempty"`
	ContractorNip  string         `db:"contractor_nip" json:"contractor_nip,omitempty"`
	AmountNet      *decimal.Decimal `db:"amount_net" json:"amount_net,omitempty"`
	AmountVat      *decimal.Decimal `db:"amount_vat" json:"amount_vat,omitempty"`
	AmountGross    *decimal.Decimal `db:"amount_gross" json:"amount_gross,omitempty"`
	Currency       string         `db:"currency" json:"currency"`
	DocumentDate   *time.Time     `db:"document_date" json:"document_date,omitempty"`
	DocID          string         `db:"doc_id" json:"doc_id,omitempty"`
	Source         string         `db:"source" json:"source,omitempty"`
	SourceID       string         `db:"source_id" json:"source_id,omitempty"`
	Status         DocumentStatus `db:"status" json:"status"`
	FilePath       string         `db:"file_path" json:"file_path,omitempty"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at" json:"updated_at"`
}

// DocumentMetadata is the editable side-car attached to exactly one Document.
type DocumentMetadata struct {
	ID           string            `db:"id" json:"id"`
	DocumentID   string            `db:"document_id" json:"document_id"`
	Category     string            `db:"category" json:"category,omitempty"`
	Description  string            `db:"description" json:"description,omitempty"`
	Tags         []string          `db:"-" json:"tags,omitempty"`
	CustomFields map[string]string `db:"-" json:"custom_fields,omitempty"`
	EditedByID   string            `db:"edited_by_id" json:"edited_by_id,omitempty"`
	EditedAt     *time.Time        `db:"edited_at" json:"edited_at,omitempty"`
	Version      int               `db:"version" json:"version"`
}

// DocumentRelation is a typed link between two documents.
type DocumentRelation struct {
	ID           string    `db:"id" json:"id"`
	ParentID     string    `db:"parent_id" json:"parent_id"`
	ChildID      string    `db:"child_id" json:"child_id"`
	RelationType string    `db:"relation_type" json:"relation_type"`
	Description  string    `db:"description" json:"description,omitempty"`
	CreatedByID  string    `db:"created_by_id" json:"created_by_id,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// RelationTypes lists the registered DocumentRelation.RelationType values.
var RelationTypes = []string{"payment", "correction", "contract_to_invoice", "attachment", "duplicate", "related"}

// DataSource is a per-project adapter configuration, import or export.
type DataSource struct {
	ID                 string          `db:"id" json:"id"`
	ProjectID          string          `db:"project_id" json:"project_id"`
	Direction          SourceDirection `db:"direction" json:"direction"`
	SourceType         SourceType      `db:"source_type" json:"source_type"`
	Name               string          `db:"name" json:"name"`
	Icon               string          `db:"icon" json:"icon,omitempty"`
	Config             map[string]any  `db:"-" json:"config,omitempty"`
	IsActive           bool            `db:"is_active" json:"is_active"`
	AutoPull           bool            `db:"auto_pull" json:"auto_pull"`
	PullIntervalMin    int             `db:"pull_interval_minutes" json:"pull_interval_minutes"`
	LastRunAt          *time.Time      `db:"last_run_at" json:"last_run_at,omitempty"`
	LastRunStatus      string          `db:"last_run_status" json:"last_run_status,omitempty"`
	LastRunCount       int             `db:"last_run_count" json:"last_run_count"`
	LastRunError       string          `db:"last_run_error" json:"last_run_error,omitempty"`
	CreatedAt          time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time       `db:"updated_at" json:"updated_at"`
}

// ImportRun is a history record for one import execution.
type ImportRun struct {
	ID            string     `db:"id" json:"id"`
	SourceID      string     `db:"source_id" json:"source_id"`
	TaskID        string     `db:"task_id" json:"task_id"`
	Status        RunStatus  `db:"status" json:"status"`
	DocsFound     int        `db:"docs_found" json:"docs_found"`
	DocsImported  int        `db:"docs_imported" json:"docs_imported"`
	DocsSkipped   int        `db:"docs_skipped" json:"docs_skipped"`
	Errors        []string   `db:"-" json:"errors,omitempty"`
	StartedAt     time.Time  `db:"started_at" json:"started_at"`
	FinishedAt    *time.Time `db:"finished_at" json:"finished_at,omitempty"`
	TriggeredByID string     `db:"triggered_by_id" json:"triggered_by_id,omitempty"`
}

// ExportRun is a history record for one export execution.
type ExportRun struct {
	ID             string     `db:"id" json:"id"`
	SourceID       string     `db:"source_id" json:"source_id"`
	TaskID         string     `db:"task_id" json:"task_id"`
	Status         RunStatus  `db:"status" json:"status"`
	DocsExported   int        `db:"docs_exported" json:"docs_exported"`
	DocsFailed     int        `db:"docs_failed" json:"docs_failed"`
	Errors         []string   `db:"-" json:"errors,omitempty"`
	OutputFormat   string     `db:"output_format" json:"output_format,omitempty"`
	OutputFilename string     `db:"output_filename" json:"output_filename,omitempty"`
	OutputContent  string     `db:"output_content" json:"-"`
	StartedAt      time.Time  `db:"started_at" json:"started_at"`
	FinishedAt     *time.Time `db:"finished_at" json:"finished_at,omitempty"`
	TriggeredByID  string     `db:"triggered_by_id" json:"triggered_by_id,omitempty"`
}
