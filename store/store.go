// Package store persists License, Condition, Alert and Document rows. Two
// implementations exist: an in-memory store used by tests and single-node
// deployments, and a PostgreSQL store backed by pgx.
package store

import (
	"context"
	"errors"

	"github.com/Web-Star-Studio/daton-esg-insight-sub008/model"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("store: not found")

// Store is the persistence contract for the extraction pipeline and the API
// handlers. All reads are tenant-scoped by the caller; tenant ids on child
// rows are copied from the parent, never inferred.
type Store interface {
	CreateLicense(ctx context.Context, lic *model.License) error
	GetLicense(ctx context.Context, id string) (*model.License, error)
	ListLicenses(ctx context.Context, tenant string) ([]*model.License, error)
	UpdateLicense(ctx context.Context, lic *model.License) error
	UpdateLicenseStatus(ctx context.Context, id, status string) error
	// MarkLicenseFailed is the minimal last-resort write: status=failed plus
	// a display name, touching nothing else. It must stay simple enough to
	// succeed when a full UpdateLicense cannot.
	MarkLicenseFailed(ctx context.Context, id, name string) error
	DeleteLicense(ctx context.Context, id string) error

	InsertConditions(ctx context.Context, conds []*model.Condition) error
	ListConditions(ctx context.Context, licenseID string) ([]*model.Condition, error)

	InsertAlerts(ctx context.Context, alerts []*model.Alert) error
	ListAlerts(ctx context.Context, licenseID string) ([]*model.Alert, error)

	CreateDocument(ctx context.Context, doc *model.Document) error
	GetDocument(ctx context.Context, id string) (*model.Document, error)
	GetDocumentByLicense(ctx context.Context, licenseID string) (*model.Document, error)
	UpdateDocumentStatus(ctx context.Context, id, status string) error
}
