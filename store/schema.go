// Package store holds the SQLite schema and sqlx connection helpers shared
// by the main database and every per-entity database. Table layout follows
// the attribute lists in the canonical data model one-for-one.
package store

// MainSchema creates the tables that live only in the shared/main database:
// identities, entities, entity membership, entity storage configuration,
// project templates, and the resource routing index.
const MainSchema = `
CREATE TABLE IF NOT EXISTS identities (
	id TEXT PRIMARY KEY,
	email TEXT UNIQUE NOT NULL,
	password_hash TEXT NOT NULL,
	first_name TEXT,
	last_name TEXT,
	pesel TEXT UNIQUE,
	nip TEXT,
	avatar TEXT,
	color TEXT DEFAULT '#3b82f6',
	is_active BOOLEAN DEFAULT 1,
	is_verified BOOLEAN DEFAULT 0,
	verification_method TEXT,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_identities_nip ON identities(nip);

CREATE TABLE IF NOT EXISTS entities (
	id TEXT PRIMARY KEY,
	type TEXT NOT NULL,
	name TEXT NOT NULL,
	nip TEXT UNIQUE,
	regon TEXT,
	krs TEXT,
	address_street TEXT,
	address_city TEXT,
	address_postal TEXT,
	icon TEXT DEFAULT '🏢',
	color TEXT DEFAULT '#3b82f6',
	owner_id TEXT NOT NULL REFERENCES identities(id),
	is_archived BOOLEAN DEFAULT 0,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS entity_databases (
	id TEXT PRIMARY KEY,
	entity_id TEXT UNIQUE NOT NULL REFERENCES entities(id),
	local_db_url TEXT,
	local_db_path TEXT,
	remote_db_url TEXT,
	remote_db_driver TEXT,
	sync_enabled BOOLEAN DEFAULT 0,
	sync_direction TEXT DEFAULT 'local_to_remote',
	sync_interval_minutes INTEGER DEFAULT 60,
	last_sync_at DATETIME,
	last_sync_status TEXT,
	last_sync_error TEXT,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS entity_members (
	id TEXT PRIMARY KEY,
	entity_id TEXT NOT NULL REFERENCES entities(id),
	identity_id TEXT NOT NULL REFERENCES identities(id),
	role TEXT DEFAULT 'viewer',
	can_manage_projects BOOLEAN DEFAULT 0,
	can_invite_members BOOLEAN DEFAULT 0,
	can_export BOOLEAN DEFAULT 0,
	joined_at DATETIME NOT NULL,
	UNIQUE(entity_id, identity_id)
);

CREATE TABLE IF NOT EXISTS project_templates (
	id TEXT PRIMARY KEY,
	code TEXT UNIQUE NOT NULL,
	name TEXT NOT NULL,
	description TEXT,
	project_type TEXT NOT NULL,
	task_recurrence TEXT DEFAULT 'monthly',
	task_name_template TEXT,
	task_icon TEXT DEFAULT '📅',
	deadline_day INTEGER DEFAULT 20,
	default_icon TEXT DEFAULT '📊',
	default_color TEXT DEFAULT '#3b82f6',
	default_categories TEXT DEFAULT '[]',
	is_system BOOLEAN DEFAULT 1,
	created_by_id TEXT,
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS resource_routing (
	resource_id TEXT PRIMARY KEY,
	entity_nip TEXT NOT NULL,
	entity_id TEXT NOT NULL,
	resource_type TEXT
);
CREATE INDEX IF NOT EXISTS idx_resource_routing_entity_nip ON resource_routing(entity_nip);
`

// EntitySchema creates every business table plus the upserted stub
// identity/entity tables needed for foreign-key satisfaction inside one
// entity's physical database file.
const EntitySchema = `
CREATE TABLE IF NOT EXISTS identities (
	id TEXT PRIMARY KEY,
	email TEXT UNIQUE NOT NULL,
	password_hash TEXT NOT NULL,
	first_name TEXT,
	last_name TEXT,
	nip TEXT,
	is_active BOOLEAN DEFAULT 1,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS entities (
	id TEXT PRIMARY KEY,
	type TEXT NOT NULL,
	name TEXT NOT NULL,
	nip TEXT UNIQUE,
	owner_id TEXT NOT NULL,
	is_archived BOOLEAN DEFAULT 0,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS projects (
	id TEXT PRIMARY KEY,
	entity_id TEXT NOT NULL,
	template_id TEXT,
	name TEXT NOT NULL,
	description TEXT,
	type TEXT NOT NULL,
	period_start DATE,
	period_end DATE,
	year INTEGER,
	icon TEXT DEFAULT '📊',
	color TEXT DEFAULT '#3b82f6',
	settings TEXT DEFAULT '{}',
	categories TEXT DEFAULT '[]',
	tags TEXT DEFAULT '[]',
	is_active BOOLEAN DEFAULT 1,
	is_archived BOOLEAN DEFAULT 0,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS project_authorizations (
	id TEXT PRIMARY KEY,
	project_id TEXT NOT NULL REFERENCES projects(id),
	identity_id TEXT NOT NULL,
	role TEXT DEFAULT 'viewer',
	can_view BOOLEAN DEFAULT 1,
	can_describe BOOLEAN DEFAULT 0,
	can_approve BOOLEAN DEFAULT 0,
	can_export BOOLEAN DEFAULT 0,
	valid_from DATETIME NOT NULL,
	valid_until DATETIME,
	granted_by_id TEXT,
	granted_at DATETIME NOT NULL,
	UNIQUE(project_id, identity_id)
);

CREATE TABLE IF NOT EXISTS tasks (
	id TEXT PRIMARY KEY,
	project_id TEXT NOT NULL REFERENCES projects(id),
	name TEXT NOT NULL,
	description TEXT,
	icon TEXT DEFAULT '📋',
	period_start DATE,
	period_end DATE,
	deadline DATE,
	status TEXT DEFAULT 'pending',
	import_status TEXT DEFAULT 'not_started',
	describe_status TEXT DEFAULT 'not_started',
	export_status TEXT DEFAULT 'not_started',
	assigned_to_id TEXT,
	docs_total INTEGER DEFAULT 0,
	docs_described INTEGER DEFAULT 0,
	docs_approved INTEGER DEFAULT 0,
	docs_exported INTEGER DEFAULT 0,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	task_id TEXT NOT NULL REFERENCES tasks(id),
	doc_type TEXT DEFAULT 'invoice',
	number TEXT,
	contractor_name TEXT,
	contractor_nip TEXT,
	amount_net TEXT,
	amount_vat TEXT,
	amount_gross TEXT,
	currency TEXT DEFAULT 'PLN',
	document_date DATE,
	doc_id TEXT,
	source TEXT,
	source_id TEXT,
	status TEXT DEFAULT 'new',
	file_path TEXT,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_documents_task ON documents(task_id);
CREATE INDEX IF NOT EXISTS idx_documents_doc_id ON documents(doc_id);

CREATE TABLE IF NOT EXISTS document_metadata (
	id TEXT PRIMARY KEY,
	document_id TEXT UNIQUE NOT NULL REFERENCES documents(id),
	category TEXT,
	description TEXT,
	tags TEXT DEFAULT '[]',
	custom_fields TEXT DEFAULT '{}',
	edited_by_id TEXT,
	edited_at DATETIME,
	version INTEGER DEFAULT 1
);

CREATE TABLE IF NOT EXISTS document_relations (
	id TEXT PRIMARY KEY,
	parent_id TEXT NOT NULL REFERENCES documents(id),
	child_id TEXT NOT NULL REFERENCES documents(id),
	relation_type TEXT,
	description TEXT,
	created_by_id TEXT,
	created_at DATETIME NOT NULL,
	UNIQUE(parent_id, child_id, relation_type)
);

CREATE TABLE IF NOT EXISTS data_sources (
	id TEXT PRIMARY KEY,
	project_id TEXT NOT NULL REFERENCES projects(id),
	direction TEXT NOT NULL,
	source_type TEXT NOT NULL,
	name TEXT NOT NULL,
	icon TEXT DEFAULT '📥',
	config TEXT DEFAULT '{}',
	is_active BOOLEAN DEFAULT 1,
	auto_pull BOOLEAN DEFAULT 0,
	pull_interval_minutes INTEGER DEFAULT 60,
	last_run_at DATETIME,
	last_run_status TEXT,
	last_run_count INTEGER DEFAULT 0,
	last_run_error TEXT,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS import_runs (
	id TEXT PRIMARY KEY,
	source_id TEXT NOT NULL REFERENCES data_sources(id),
	task_id TEXT NOT NULL REFERENCES tasks(id),
	status TEXT DEFAULT 'running',
	docs_found INTEGER DEFAULT 0,
	docs_imported INTEGER DEFAULT 0,
	docs_skipped INTEGER DEFAULT 0,
	errors TEXT DEFAULT '[]',
	started_at DATETIME NOT NULL,
	finished_at DATETIME,
	triggered_by_id TEXT
);

CREATE TABLE IF NOT EXISTS export_runs (
	id TEXT PRIMARY KEY,
	source_id TEXT NOT NULL REFERENCES data_sources(id),
	task_id TEXT NOT NULL REFERENCES tasks(id),
	status TEXT DEFAULT 'running',
	docs_exported INTEGER DEFAULT 0,
	docs_failed INTEGER DEFAULT 0,
	errors TEXT DEFAULT '[]',
	output_format TEXT,
	output_filename TEXT,
	output_content TEXT,
	started_at DATETIME NOT NULL,
	finished_at DATETIME,
	triggered_by_id TEXT
);
`
