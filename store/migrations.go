package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/wudi/docketkit/observability"
)

// migrations are applied in order; the index+1 is the schema version.
var migrations = []string{
	// v1: tenants and identities
	`CREATE TABLE companies (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		business_type TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL DEFAULT '',
		phone TEXT NOT NULL DEFAULT '',
		address TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);
	CREATE TABLE users (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		full_name TEXT NOT NULL DEFAULT '',
		password_hash TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	);
	CREATE TABLE memberships (
		company_id TEXT NOT NULL REFERENCES companies(id) ON DELETE CASCADE,
		user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		role TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'active',
		created_at TIMESTAMP NOT NULL,
		PRIMARY KEY (company_id, user_id)
	);
	CREATE INDEX idx_memberships_user ON memberships(user_id);
	CREATE TABLE sessions (
		token TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		expires_at TIMESTAMP NOT NULL,
		created_at TIMESTAMP NOT NULL
	);`,

	// v2: dockets and compliance
	`CREATE TABLE delivery_records (
		id TEXT PRIMARY KEY,
		client_id TEXT NOT NULL REFERENCES companies(id) ON DELETE CASCADE,
		user_id TEXT NOT NULL DEFAULT '',
		supplier_name TEXT NOT NULL DEFAULT '',
		delivery_date TEXT NOT NULL DEFAULT '',
		docket_number TEXT NOT NULL DEFAULT '',
		image_path TEXT NOT NULL,
		item_count INTEGER NOT NULL DEFAULT 0,
		temperatures TEXT NOT NULL DEFAULT '[]',
		product_type TEXT NOT NULL DEFAULT '',
		processing_status TEXT NOT NULL,
		confidence_score REAL NOT NULL DEFAULT 0,
		raw_extracted_text TEXT NOT NULL DEFAULT '',
		error_message TEXT NOT NULL DEFAULT '',
		bulk_upload INTEGER NOT NULL DEFAULT 0,
		priority TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL
	);
	CREATE INDEX idx_delivery_records_client ON delivery_records(client_id, created_at);
	CREATE TABLE compliance_alerts (
		id TEXT PRIMARY KEY,
		client_id TEXT NOT NULL REFERENCES companies(id) ON DELETE CASCADE,
		delivery_record_id TEXT NOT NULL REFERENCES delivery_records(id) ON DELETE CASCADE,
		severity TEXT NOT NULL,
		temperature REAL NOT NULL,
		threshold REAL NOT NULL,
		message TEXT NOT NULL,
		resolved INTEGER NOT NULL DEFAULT 0,
		resolved_by TEXT,
		resolved_at TIMESTAMP,
		created_at TIMESTAMP NOT NULL
	);
	CREATE INDEX idx_compliance_alerts_client ON compliance_alerts(client_id, resolved);
	CREATE TABLE audit_logs (
		id TEXT PRIMARY KEY,
		client_id TEXT NOT NULL,
		user_id TEXT NOT NULL DEFAULT '',
		action TEXT NOT NULL,
		resource_type TEXT NOT NULL,
		resource_id TEXT,
		details TEXT NOT NULL DEFAULT '{}',
		created_at TIMESTAMP NOT NULL
	);
	CREATE INDEX idx_audit_logs_client ON audit_logs(client_id, created_at);`,

	// v3: team and champion hand-off
	`CREATE TABLE invitations (
		id TEXT PRIMARY KEY,
		company_id TEXT NOT NULL REFERENCES companies(id) ON DELETE CASCADE,
		email TEXT NOT NULL,
		role TEXT NOT NULL,
		invited_by TEXT NOT NULL,
		token TEXT NOT NULL UNIQUE,
		status TEXT NOT NULL,
		expires_at TIMESTAMP NOT NULL,
		accepted_at TIMESTAMP,
		created_at TIMESTAMP NOT NULL
	);
	CREATE INDEX idx_invitations_company ON invitations(company_id, status);
	CREATE TABLE owner_invitations (
		id TEXT PRIMARY KEY,
		company_id TEXT NOT NULL REFERENCES companies(id) ON DELETE CASCADE,
		champion_id TEXT NOT NULL,
		owner_name TEXT NOT NULL,
		email TEXT NOT NULL,
		phone TEXT NOT NULL DEFAULT '',
		relationship TEXT NOT NULL DEFAULT '',
		preferred_contact TEXT NOT NULL DEFAULT 'email',
		evaluation_message TEXT NOT NULL DEFAULT '',
		timeline TEXT NOT NULL DEFAULT '',
		evaluation_summary TEXT NOT NULL DEFAULT '{}',
		include_roi_data INTEGER NOT NULL DEFAULT 0,
		token TEXT NOT NULL UNIQUE,
		status TEXT NOT NULL,
		expires_at TIMESTAMP NOT NULL,
		responded_at TIMESTAMP,
		created_at TIMESTAMP NOT NULL
	);
	CREATE TABLE champion_scores (
		champion_id TEXT NOT NULL,
		company_id TEXT NOT NULL REFERENCES companies(id) ON DELETE CASCADE,
		score INTEGER NOT NULL,
		breakdown TEXT NOT NULL DEFAULT '{}',
		calculated_at TIMESTAMP NOT NULL,
		PRIMARY KEY (champion_id, company_id)
	);
	CREATE TABLE incentive_claims (
		id TEXT PRIMARY KEY,
		champion_id TEXT NOT NULL,
		company_id TEXT NOT NULL REFERENCES companies(id) ON DELETE CASCADE,
		reward_id TEXT NOT NULL,
		claimed_at TIMESTAMP NOT NULL,
		UNIQUE (champion_id, company_id, reward_id)
	);`,

	// v4: admin configuration
	`CREATE TABLE configcard_definitions (
		company_id TEXT PRIMARY KEY REFERENCES companies(id) ON DELETE CASCADE,
		definitions TEXT NOT NULL,
		updated_by TEXT NOT NULL DEFAULT '',
		updated_at TIMESTAMP NOT NULL
	);
	CREATE TABLE departments (
		id TEXT PRIMARY KEY,
		company_id TEXT NOT NULL REFERENCES companies(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		active INTEGER NOT NULL DEFAULT 1,
		created_at TIMESTAMP NOT NULL,
		UNIQUE (company_id, name)
	);
	CREATE TABLE job_titles (
		id TEXT PRIMARY KEY,
		company_id TEXT NOT NULL REFERENCES companies(id) ON DELETE CASCADE,
		title TEXT NOT NULL,
		department_id TEXT,
		security_level TEXT NOT NULL DEFAULT 'low',
		active INTEGER NOT NULL DEFAULT 1,
		created_at TIMESTAMP NOT NULL,
		UNIQUE (company_id, title)
	);`,

	// v5: stock
	`CREATE TABLE inventory_items (
		id TEXT PRIMARY KEY,
		company_id TEXT NOT NULL REFERENCES companies(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		unit TEXT NOT NULL DEFAULT '',
		unit_cost REAL NOT NULL DEFAULT 0,
		par_level_low REAL NOT NULL DEFAULT 0,
		active INTEGER NOT NULL DEFAULT 1,
		created_at TIMESTAMP NOT NULL,
		UNIQUE (company_id, name)
	);
	CREATE TABLE inventory_counts (
		id TEXT PRIMARY KEY,
		item_id TEXT NOT NULL REFERENCES inventory_items(id) ON DELETE CASCADE,
		quantity REAL NOT NULL,
		counted_by TEXT NOT NULL DEFAULT '',
		counted_at TIMESTAMP NOT NULL
	);
	CREATE INDEX idx_inventory_counts_item ON inventory_counts(item_id, counted_at);
	CREATE TABLE inventory_batches (
		id TEXT PRIMARY KEY,
		item_id TEXT NOT NULL REFERENCES inventory_items(id) ON DELETE CASCADE,
		batch_number TEXT NOT NULL,
		quantity REAL NOT NULL,
		expiry_date TIMESTAMP NOT NULL,
		status TEXT NOT NULL DEFAULT 'active',
		created_at TIMESTAMP NOT NULL
	);`,
}

// SchemaVersion is the version after all migrations are applied.
var SchemaVersion = len(migrations)

// Migrate brings the schema to SchemaVersion and returns how many
// migrations ran.
func (s *Store) Migrate(ctx context.Context) (int, error) {
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return 0, fmt.Errorf("create schema_version: %w", err)
	}
	current, err := s.Version(ctx)
	if err != nil {
		return 0, err
	}
	ran := 0
	for v := current; v < len(migrations); v++ {
		err := s.withTx(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, migrations[v]); err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM schema_version`); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx, `INSERT INTO schema_version (version) VALUES (?)`, v+1)
			return err
		})
		if err != nil {
			return ran, fmt.Errorf("migration v%d: %w", v+1, err)
		}
		ran++
		s.log.Info("applied schema migration", observability.Int("version", v+1))
	}
	return ran, nil
}

// Version returns the applied schema version.
func (s *Store) Version(ctx context.Context) (int, error) {
	var v int
	err := s.db.QueryRowContext(ctx, `SELECT version FROM schema_version LIMIT 1`).Scan(&v)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return v, nil
}
