package database

import (
	"database/sql"
	"fmt"
)

// Schema evolution is additive only: tables are created if absent and new
// columns are ensured idempotently on startup. Existing data is never
// rewritten. Timestamp columns hold ISO-8601 strings; user-entered dates
// use DD/MM/YYYY, machine-entered values full RFC3339.

var createTables = []string{
	`CREATE TABLE IF NOT EXISTS clients (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		company_name TEXT NOT NULL,
		country TEXT,
		contact_person TEXT,
		email TEXT,
		phone TEXT,
		website TEXT,
		date_added TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'New',
		seriousness_score INTEGER NOT NULL DEFAULT 0,
		classification TEXT NOT NULL DEFAULT 'Not Serious',
		is_focus INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS custom_sync_clients (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		company_name TEXT NOT NULL,
		country TEXT,
		contact_person TEXT,
		email TEXT NOT NULL,
		phone TEXT,
		website TEXT,
		date_added TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		client_id INTEGER NOT NULL REFERENCES clients(id) ON DELETE CASCADE,
		received_at TEXT NOT NULL,
		sent_at TEXT,
		direction TEXT NOT NULL DEFAULT 'inbound',
		channel TEXT NOT NULL DEFAULT 'Other',
		request_type TEXT NOT NULL DEFAULT 'general',
		subject TEXT NOT NULL DEFAULT '',
		body TEXT NOT NULL DEFAULT '',
		attachments TEXT,
		score_effect INTEGER NOT NULL DEFAULT 0,
		external_message_id TEXT,
		status TEXT NOT NULL DEFAULT 'received'
	)`,
	`CREATE TABLE IF NOT EXISTS requests (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		client_id INTEGER NOT NULL REFERENCES clients(id) ON DELETE CASCADE,
		source_message_id INTEGER NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
		request_type TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'open',
		reply_status TEXT NOT NULL DEFAULT 'pending',
		extracted_text TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS score_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		client_id INTEGER NOT NULL REFERENCES clients(id) ON DELETE CASCADE,
		timestamp TEXT NOT NULL,
		score INTEGER NOT NULL,
		classification TEXT NOT NULL,
		change_reason TEXT NOT NULL DEFAULT '',
		message_id INTEGER
	)`,
	`CREATE TABLE IF NOT EXISTS deals (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		client_id INTEGER NOT NULL REFERENCES clients(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		product_name TEXT NOT NULL DEFAULT '',
		stage TEXT NOT NULL DEFAULT 'Lead',
		value REAL NOT NULL DEFAULT 0,
		currency TEXT NOT NULL DEFAULT 'USD',
		probability REAL NOT NULL DEFAULT 0.10,
		expected_close_date TEXT,
		actual_close_date TEXT,
		status TEXT NOT NULL DEFAULT 'active',
		notes TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS stage_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		deal_id INTEGER NOT NULL REFERENCES deals(id) ON DELETE CASCADE,
		from_stage TEXT NOT NULL,
		to_stage TEXT NOT NULL,
		changed_at TEXT NOT NULL,
		notes TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS tasks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		client_id INTEGER NOT NULL REFERENCES clients(id) ON DELETE CASCADE,
		deal_id INTEGER REFERENCES deals(id) ON DELETE SET NULL,
		title TEXT NOT NULL,
		task_type TEXT NOT NULL DEFAULT 'general',
		priority TEXT NOT NULL DEFAULT 'medium',
		status TEXT NOT NULL DEFAULT 'pending',
		due_date TEXT,
		reminder_date TEXT,
		recurrence_pattern TEXT NOT NULL DEFAULT 'none',
		recurrence_interval INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		completed_at TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS quotes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		client_id INTEGER NOT NULL REFERENCES clients(id) ON DELETE CASCADE,
		quote_number TEXT NOT NULL UNIQUE,
		quote_date TEXT NOT NULL,
		valid_until TEXT,
		status TEXT NOT NULL DEFAULT 'draft',
		total_amount REAL NOT NULL DEFAULT 0,
		currency TEXT NOT NULL DEFAULT 'USD',
		discount REAL NOT NULL DEFAULT 0,
		tax_rate REAL NOT NULL DEFAULT 0,
		notes TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS quote_items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		quote_id INTEGER NOT NULL REFERENCES quotes(id) ON DELETE CASCADE,
		product_id INTEGER,
		product_name TEXT NOT NULL,
		quantity REAL NOT NULL DEFAULT 0,
		unit_price REAL NOT NULL DEFAULT 0,
		discount_pct REAL NOT NULL DEFAULT 0,
		total_price REAL NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS product_costs (
		product_id INTEGER PRIMARY KEY,
		product_name TEXT NOT NULL DEFAULT '',
		cost REAL NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS mail_accounts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		account_name TEXT NOT NULL,
		email TEXT NOT NULL,
		provider_type TEXT NOT NULL,
		access_token TEXT,
		host TEXT,
		port INTEGER,
		username TEXT,
		password TEXT,
		use_ssl INTEGER NOT NULL DEFAULT 1,
		is_active INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL
	)`,
}

var createIndexes = []string{
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_clients_email
		ON clients(email) WHERE email IS NOT NULL AND email != ''`,
	`CREATE INDEX IF NOT EXISTS idx_clients_classification ON clients(classification)`,
	`CREATE INDEX IF NOT EXISTS idx_clients_score ON clients(seriousness_score)`,
	`CREATE INDEX IF NOT EXISTS idx_clients_focus ON clients(is_focus)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_client ON messages(client_id)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_received ON messages(received_at)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_channel ON messages(channel)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_messages_external
		ON messages(client_id, external_message_id)
		WHERE external_message_id IS NOT NULL`,
	`CREATE INDEX IF NOT EXISTS idx_requests_client ON requests(client_id)`,
	`CREATE INDEX IF NOT EXISTS idx_requests_status ON requests(status)`,
	`CREATE INDEX IF NOT EXISTS idx_requests_reply ON requests(reply_status)`,
	`CREATE INDEX IF NOT EXISTS idx_score_history_client ON score_history(client_id)`,
	`CREATE INDEX IF NOT EXISTS idx_deals_client ON deals(client_id)`,
	`CREATE INDEX IF NOT EXISTS idx_deals_stage ON deals(stage)`,
	`CREATE INDEX IF NOT EXISTS idx_stage_history_deal ON stage_history(deal_id)`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_client ON tasks(client_id)`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_deal ON tasks(deal_id)`,
	`CREATE INDEX IF NOT EXISTS idx_quotes_client ON quotes(client_id)`,
	`CREATE INDEX IF NOT EXISTS idx_quote_items_quote ON quote_items(quote_id)`,
	`CREATE INDEX IF NOT EXISTS idx_custom_sync_email ON custom_sync_clients(email)`,
}

// ensuredColumns lists post-release column additions applied idempotently.
type ensuredColumn struct {
	table string
	name  string
	decl  string
}

var ensuredColumns = []ensuredColumn{
	{"clients", "is_focus", "INTEGER NOT NULL DEFAULT 0"},
	{"clients", "website", "TEXT"},
	{"messages", "score_effect", "INTEGER NOT NULL DEFAULT 0"},
	{"messages", "external_message_id", "TEXT"},
	{"messages", "attachments", "TEXT"},
	{"requests", "reply_status", "TEXT NOT NULL DEFAULT 'pending'"},
	{"deals", "product_name", "TEXT NOT NULL DEFAULT ''"},
	{"tasks", "recurrence_pattern", "TEXT NOT NULL DEFAULT 'none'"},
	{"tasks", "recurrence_interval", "INTEGER NOT NULL DEFAULT 1"},
	{"quotes", "tax_rate", "REAL NOT NULL DEFAULT 0"},
	{"mail_accounts", "use_ssl", "INTEGER NOT NULL DEFAULT 1"},
}

// Migrate brings the schema up to date. Safe to run on every startup.
func Migrate(db *sql.DB) error {
	for _, stmt := range createTables {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}
	for _, col := range ensuredColumns {
		if err := ensureColumn(db, col); err != nil {
			return err
		}
	}
	for _, stmt := range createIndexes {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	return nil
}

func ensureColumn(db *sql.DB, col ensuredColumn) error {
	exists, err := columnExists(db, col.table, col.name)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", col.table, col.name, col.decl)
	if _, err := db.Exec(stmt); err != nil {
		return fmt.Errorf("failed to add column %s.%s: %w", col.table, col.name, err)
	}
	return nil
}

func columnExists(db *sql.DB, table, column string) (bool, error) {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, fmt.Errorf("failed to inspect table %s: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid     int
			name    string
			ctype   string
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &dflt, &pk); err != nil {
			return false, fmt.Errorf("failed to scan table info: %w", err)
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}

// ValidateSchema checks that a candidate database file carries the expected
// tables. Used before restoring a backup over the live store.
func ValidateSchema(db *sql.DB) error {
	required := []string{
		"clients", "messages", "requests", "score_history",
		"deals", "stage_history", "tasks", "quotes", "quote_items",
	}
	for _, table := range required {
		var count int
		err := db.QueryRow(
			`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`,
			table,
		).Scan(&count)
		if err != nil {
			return fmt.Errorf("failed to inspect schema: %w", err)
		}
		if count == 0 {
			return fmt.Errorf("schema mismatch: missing table %s", table)
		}
	}
	return nil
}
