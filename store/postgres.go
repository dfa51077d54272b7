package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Web-Star-Studio/daton-esg-insight-sub008/model"
)

// Pool is the subset of pgxpool.Pool the store uses. pgxmock's pool
// interface satisfies it too, which is what the tests rely on.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresStore implements Store on top of a pgx connection pool.
type PostgresStore struct {
	pool    Pool
	closeFn func()
}

// NewPostgres connects a pool to the given DSN and verifies connectivity.
func NewPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse config: %w", err)
	}
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresFromPool wraps an existing pool. Used by tests with pgxmock.
func NewPostgresFromPool(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Close releases the underlying pool.
func (s *PostgresStore) Close() {
	if s.closeFn != nil {
		s.closeFn()
	}
}

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS licenses (
		id TEXT PRIMARY KEY,
		tenant TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		license_type TEXT NOT NULL DEFAULT '',
		issuing_authority TEXT NOT NULL DEFAULT '',
		process_number TEXT NOT NULL DEFAULT '',
		issue_date TEXT NOT NULL DEFAULT '',
		expiration_date TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		confidence_score DOUBLE PRECISION NOT NULL DEFAULT 0,
		compliance_score DOUBLE PRECISION NOT NULL DEFAULT 0,
		extracted_payload JSONB,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_licenses_tenant ON licenses (tenant)`,
	`CREATE TABLE IF NOT EXISTS license_conditions (
		id TEXT PRIMARY KEY,
		license_id TEXT NOT NULL REFERENCES licenses (id) ON DELETE CASCADE,
		tenant TEXT NOT NULL,
		description TEXT NOT NULL,
		category TEXT NOT NULL DEFAULT '',
		priority TEXT NOT NULL,
		status TEXT NOT NULL,
		source TEXT NOT NULL,
		confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_conditions_license ON license_conditions (license_id)`,
	`CREATE TABLE IF NOT EXISTS license_alerts (
		id TEXT PRIMARY KEY,
		license_id TEXT NOT NULL REFERENCES licenses (id) ON DELETE CASCADE,
		tenant TEXT NOT NULL,
		alert_type TEXT NOT NULL DEFAULT '',
		title TEXT NOT NULL DEFAULT '',
		message TEXT NOT NULL DEFAULT '',
		severity TEXT NOT NULL,
		requires_action BOOLEAN NOT NULL DEFAULT FALSE,
		resolved BOOLEAN NOT NULL DEFAULT FALSE,
		metadata JSONB,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_alerts_license ON license_alerts (license_id)`,
	`CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		license_id TEXT NOT NULL,
		related_model TEXT NOT NULL,
		tenant TEXT NOT NULL,
		filename TEXT NOT NULL,
		storage_path TEXT NOT NULL,
		content_type TEXT NOT NULL DEFAULT '',
		size_bytes BIGINT NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_documents_license ON documents (license_id)`,
}

// EnsureSchema creates the tables if they do not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres: ensure schema: %w", err)
		}
	}
	return nil
}

const licenseColumns = `id, tenant, name, license_type, issuing_authority, process_number,
	issue_date, expiration_date, status, confidence_score, compliance_score,
	extracted_payload, created_at, updated_at`

func (s *PostgresStore) CreateLicense(ctx context.Context, lic *model.License) error {
	now := time.Now()
	_, err := s.pool.Exec(ctx, `INSERT INTO licenses (id, tenant, name, license_type,
		issuing_authority, process_number, issue_date, expiration_date, status,
		confidence_score, compliance_score, extracted_payload, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		lic.ID, lic.Tenant, lic.Name, lic.LicenseType, lic.IssuingAuthority,
		lic.ProcessNumber, lic.IssueDate, lic.ExpirationDate, lic.Status,
		lic.ConfidenceScore, lic.ComplianceScore, payloadArg(lic.ExtractedPayload), now, now)
	if err != nil {
		return fmt.Errorf("postgres: create license: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetLicense(ctx context.Context, id string) (*model.License, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+licenseColumns+` FROM licenses WHERE id = $1`, id)
	lic, err := scanLicense(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get license: %w", err)
	}
	return lic, nil
}

func (s *PostgresStore) ListLicenses(ctx context.Context, tenant string) ([]*model.License, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+licenseColumns+` FROM licenses
		WHERE tenant = $1 ORDER BY created_at`, tenant)
	if err != nil {
		return nil, fmt.Errorf("postgres: list licenses: %w", err)
	}
	defer rows.Close()

	var result []*model.License
	for rows.Next() {
		lic, err := scanLicense(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan license: %w", err)
		}
		result = append(result, lic)
	}
	return result, rows.Err()
}

func (s *PostgresStore) UpdateLicense(ctx context.Context, lic *model.License) error {
	tag, err := s.pool.Exec(ctx, `UPDATE licenses SET name = $1, license_type = $2,
		issuing_authority = $3, process_number = $4, issue_date = $5,
		expiration_date = $6, status = $7, confidence_score = $8,
		compliance_score = $9, extracted_payload = $10, updated_at = $11
		WHERE id = $12`,
		lic.Name, lic.LicenseType, lic.IssuingAuthority, lic.ProcessNumber,
		lic.IssueDate, lic.ExpirationDate, lic.Status, lic.ConfidenceScore,
		lic.ComplianceScore, payloadArg(lic.ExtractedPayload), time.Now(), lic.ID)
	if err != nil {
		return fmt.Errorf("postgres: update license: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) UpdateLicenseStatus(ctx context.Context, id, status string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE licenses SET status = $1, updated_at = $2 WHERE id = $3`,
		status, time.Now(), id)
	if err != nil {
		return fmt.Errorf("postgres: update license status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) MarkLicenseFailed(ctx context.Context, id, name string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE licenses SET status = $1, name = $2, updated_at = $3 WHERE id = $4`,
		model.StatusFailed, name, time.Now(), id)
	if err != nil {
		return fmt.Errorf("postgres: mark license failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteLicense(ctx context.Context, id string) error {
	// Conditions and alerts cascade; documents reference the license loosely
	// and are removed explicitly.
	tag, err := s.pool.Exec(ctx, `DELETE FROM licenses WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: delete license: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	if _, err := s.pool.Exec(ctx, `DELETE FROM documents WHERE license_id = $1`, id); err != nil {
		return fmt.Errorf("postgres: delete documents: %w", err)
	}
	return nil
}

func (s *PostgresStore) InsertConditions(ctx context.Context, conds []*model.Condition) error {
	if len(conds) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, c := range conds {
		created := c.CreatedAt
		if created.IsZero() {
			created = time.Now()
		}
		if _, err := tx.Exec(ctx, `INSERT INTO license_conditions (id, license_id,
			tenant, description, category, priority, status, source, confidence, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			c.ID, c.LicenseID, c.Tenant, c.Description, c.Category, c.Priority,
			c.Status, c.Source, c.Confidence, created); err != nil {
			return fmt.Errorf("postgres: insert condition: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit conditions: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListConditions(ctx context.Context, licenseID string) ([]*model.Condition, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, license_id, tenant, description,
		category, priority, status, source, confidence, created_at
		FROM license_conditions WHERE license_id = $1 ORDER BY created_at`, licenseID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list conditions: %w", err)
	}
	defer rows.Close()

	result := []*model.Condition{}
	for rows.Next() {
		var c model.Condition
		if err := rows.Scan(&c.ID, &c.LicenseID, &c.Tenant, &c.Description,
			&c.Category, &c.Priority, &c.Status, &c.Source, &c.Confidence,
			&c.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan condition: %w", err)
		}
		result = append(result, &c)
	}
	return result, rows.Err()
}

func (s *PostgresStore) InsertAlerts(ctx context.Context, alerts []*model.Alert) error {
	if len(alerts) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, a := range alerts {
		created := a.CreatedAt
		if created.IsZero() {
			created = time.Now()
		}
		var metadata []byte
		if len(a.Metadata) > 0 {
			metadata, err = json.Marshal(a.Metadata)
			if err != nil {
				return fmt.Errorf("postgres: marshal alert metadata: %w", err)
			}
		}
		if _, err := tx.Exec(ctx, `INSERT INTO license_alerts (id, license_id, tenant,
			alert_type, title, message, severity, requires_action, resolved, metadata, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			a.ID, a.LicenseID, a.Tenant, a.Type, a.Title, a.Message, a.Severity,
			a.RequiresAction, a.Resolved, metadata, created); err != nil {
			return fmt.Errorf("postgres: insert alert: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit alerts: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAlerts(ctx context.Context, licenseID string) ([]*model.Alert, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, license_id, tenant, alert_type, title,
		message, severity, requires_action, resolved, metadata, created_at
		FROM license_alerts WHERE license_id = $1 ORDER BY created_at`, licenseID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list alerts: %w", err)
	}
	defer rows.Close()

	result := []*model.Alert{}
	for rows.Next() {
		var a model.Alert
		var metadata []byte
		if err := rows.Scan(&a.ID, &a.LicenseID, &a.Tenant, &a.Type, &a.Title,
			&a.Message, &a.Severity, &a.RequiresAction, &a.Resolved, &metadata,
			&a.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan alert: %w", err)
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &a.Metadata); err != nil {
				return nil, fmt.Errorf("postgres: unmarshal alert metadata: %w", err)
			}
		}
		result = append(result, &a)
	}
	return result, rows.Err()
}

func (s *PostgresStore) CreateDocument(ctx context.Context, doc *model.Document) error {
	now := time.Now()
	_, err := s.pool.Exec(ctx, `INSERT INTO documents (id, license_id, related_model,
		tenant, filename, storage_path, content_type, size_bytes, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		doc.ID, doc.LicenseID, doc.RelatedModel, doc.Tenant, doc.Filename,
		doc.StoragePath, doc.ContentType, doc.SizeBytes, doc.Status, now, now)
	if err != nil {
		return fmt.Errorf("postgres: create document: %w", err)
	}
	return nil
}

const documentColumns = `id, license_id, related_model, tenant, filename,
	storage_path, content_type, size_bytes, status, created_at, updated_at`

func (s *PostgresStore) GetDocument(ctx context.Context, id string) (*model.Document, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = $1`, id)
	doc, err := scanDocument(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get document: %w", err)
	}
	return doc, nil
}

func (s *PostgresStore) GetDocumentByLicense(ctx context.Context, licenseID string) (*model.Document, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+documentColumns+` FROM documents
		WHERE license_id = $1 ORDER BY created_at LIMIT 1`, licenseID)
	doc, err := scanDocument(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get document by license: %w", err)
	}
	return doc, nil
}

func (s *PostgresStore) UpdateDocumentStatus(ctx context.Context, id, status string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE documents SET status = $1, updated_at = $2 WHERE id = $3`,
		status, time.Now(), id)
	if err != nil {
		return fmt.Errorf("postgres: update document status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanLicense(row pgx.Row) (*model.License, error) {
	var lic model.License
	var payload []byte
	if err := row.Scan(&lic.ID, &lic.Tenant, &lic.Name, &lic.LicenseType,
		&lic.IssuingAuthority, &lic.ProcessNumber, &lic.IssueDate,
		&lic.ExpirationDate, &lic.Status, &lic.ConfidenceScore,
		&lic.ComplianceScore, &payload, &lic.CreatedAt, &lic.UpdatedAt); err != nil {
		return nil, err
	}
	if len(payload) > 0 {
		lic.ExtractedPayload = payload
	}
	return &lic, nil
}

func scanDocument(row pgx.Row) (*model.Document, error) {
	var doc model.Document
	if err := row.Scan(&doc.ID, &doc.LicenseID, &doc.RelatedModel, &doc.Tenant,
		&doc.Filename, &doc.StoragePath, &doc.ContentType, &doc.SizeBytes,
		&doc.Status, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
		return nil, err
	}
	return &doc, nil
}

// payloadArg converts an optional raw payload into a driver argument,
// mapping empty to NULL.
func payloadArg(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}
