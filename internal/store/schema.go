package store

// SQL schema constants for all promptstudio tables. Timestamps are stored as
// INTEGER milliseconds since the Unix epoch.

const schemaConversations = `
CREATE TABLE IF NOT EXISTS conversations (
    id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL,
    system_info_collected INTEGER,
    created_at INTEGER NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_conversations_session ON conversations(session_id);
CREATE INDEX IF NOT EXISTS idx_conversations_created ON conversations(created_at);
`

const schemaPrompts = `
CREATE TABLE IF NOT EXISTS prompts (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    conversation_id TEXT NOT NULL REFERENCES conversations(id),
    text TEXT NOT NULL,
    timestamp INTEGER NOT NULL,
    exchange_id TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_prompts_conversation ON prompts(conversation_id, timestamp);
`

const schemaAIPrompts = `
CREATE TABLE IF NOT EXISTS ai_prompts (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    conversation_id TEXT NOT NULL REFERENCES conversations(id),
    text TEXT NOT NULL,
    timestamp INTEGER NOT NULL,
    exchange_id TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_ai_prompts_conversation ON ai_prompts(conversation_id, timestamp);
`

const schemaUsage = `
CREATE TABLE IF NOT EXISTS usage (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    conversation_id TEXT NOT NULL REFERENCES conversations(id),
    cache_creation_input_tokens INTEGER NOT NULL DEFAULT 0,
    cache_read_input_tokens INTEGER NOT NULL DEFAULT 0,
    output_tokens INTEGER NOT NULL DEFAULT 0,
    ephemeral_1h_input_tokens INTEGER NOT NULL DEFAULT 0,
    cache_creation_ephemeral_5m_input_tokens INTEGER NOT NULL DEFAULT 0,
    cache_creation_ephemeral_1h_input_tokens INTEGER NOT NULL DEFAULT 0,
    updated_at INTEGER NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_usage_conversation ON usage(conversation_id);
`

const schemaSystemInfo = `
CREATE TABLE IF NOT EXISTS system_info (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL,
    system_data TEXT NOT NULL,
    webhook_response TEXT,
    timestamp INTEGER NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_system_info_session ON system_info(session_id);
CREATE INDEX IF NOT EXISTS idx_system_info_timestamp ON system_info(timestamp);
`

const schemaAdviceCache = `
CREATE TABLE IF NOT EXISTS advice_cache (
    key TEXT PRIMARY KEY,
    conversation_id TEXT NOT NULL,
    body BLOB NOT NULL,
    created_at INTEGER NOT NULL,
    expires_at INTEGER NOT NULL,
    hit_count INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_advice_cache_expires ON advice_cache(expires_at);
`

const schemaMigrations = `
CREATE TABLE IF NOT EXISTS migrations (
    version INTEGER PRIMARY KEY,
    applied_at TEXT NOT NULL
);
`

// allSchemas is the ordered list of schema DDL statements that form
// the initial (version-1) database layout.
var allSchemas = []string{
	schemaConversations,
	schemaPrompts,
	schemaAIPrompts,
	schemaUsage,
	schemaSystemInfo,
	schemaAdviceCache,
	schemaMigrations,
}
