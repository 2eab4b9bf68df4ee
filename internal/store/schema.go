package store

// SQL schema constants for all mangatl tables.

const schemaTranslationTasks = `
CREATE TABLE IF NOT EXISTS translation_tasks (
    task_id TEXT PRIMARY KEY,
    manga_ref TEXT NOT NULL,
    page_index INTEGER NOT NULL,
    language TEXT NOT NULL,
    engine_id TEXT NOT NULL,
    priority INTEGER NOT NULL,
    status TEXT NOT NULL,
    request_time TEXT NOT NULL,
    start_time TEXT,
    end_time TEXT,
    retry_count INTEGER NOT NULL DEFAULT 0,
    max_retries INTEGER NOT NULL DEFAULT 3,
    last_error TEXT NOT NULL DEFAULT '',
    force_retranslate INTEGER NOT NULL DEFAULT 0,
    metadata BLOB
);
CREATE INDEX IF NOT EXISTS idx_tasks_status ON translation_tasks(status);
CREATE INDEX IF NOT EXISTS idx_tasks_work ON translation_tasks(manga_ref, page_index, language, engine_id);
`

const schemaStructuredResults = `
CREATE TABLE IF NOT EXISTS structured_results (
    translation_key TEXT NOT NULL,
    manga_ref TEXT NOT NULL,
    page_index INTEGER NOT NULL,
    language TEXT NOT NULL,
    engine_id TEXT NOT NULL,
    fingerprint TEXT NOT NULL,
    text_groups BLOB NOT NULL,
    rendered_bytes BLOB,
    created_at TEXT NOT NULL,
    last_accessed TEXT NOT NULL,
    access_count INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (translation_key, fingerprint)
);
CREATE INDEX IF NOT EXISTS idx_results_key ON structured_results(translation_key);
`

const schemaOCRCache = `
CREATE TABLE IF NOT EXISTS ocr_cache (
    fingerprint TEXT NOT NULL,
    options_hash TEXT NOT NULL,
    regions BLOB NOT NULL,
    created_at TEXT NOT NULL,
    PRIMARY KEY (fingerprint, options_hash)
);
`

const schemaMigrations = `
CREATE TABLE IF NOT EXISTS migrations (
    version INTEGER PRIMARY KEY,
    applied_at TEXT NOT NULL
);
`

const schemaTranslationCache = `
CREATE TABLE IF NOT EXISTS translation_cache (
    source_hash TEXT NOT NULL,
    target_lang TEXT NOT NULL,
    engine_id TEXT NOT NULL,
    translated_text TEXT NOT NULL,
    created_at TEXT NOT NULL,
    PRIMARY KEY (source_hash, target_lang, engine_id)
);
`

// allSchemas is the ordered list of schema DDL statements that form
// the initial (version-1) database layout.
var allSchemas = []string{
	schemaTranslationTasks,
	schemaStructuredResults,
	schemaOCRCache,
	schemaTranslationCache,
	schemaMigrations,
}
