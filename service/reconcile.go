package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Web-Star-Studio/daton-esg-insight-sub008/model"
	"github.com/Web-Star-Studio/daton-esg-insight-sub008/pkg/logger"
	"github.com/Web-Star-Studio/daton-esg-insight-sub008/store"
)

var (
	// ErrInvalidState means the license is not in a status reconciliation
	// accepts: it must have finished extraction and not be approved yet.
	ErrInvalidState = errors.New("license is not in a reconcilable state")
	// ErrMissingFields means required identification fields were blank.
	ErrMissingFields = errors.New("required reconciliation fields missing")
)

// ReconciliationData is the human-edited identification payload. Values are
// stored verbatim; only required-field presence is checked.
type ReconciliationData struct {
	Name             string `json:"name" binding:"required"`
	LicenseType      string `json:"licenseType"`
	IssuingAuthority string `json:"issuingAuthority"`
	ProcessNumber    string `json:"processNumber"`
	IssueDate        string `json:"issueDate"`
	ExpirationDate   string `json:"expirationDate"`
}

// Reconciler moves a license out of the needs-review state: a human
// confirms or corrects the extracted identification and the record becomes
// approved. This is a one-way transition; it never re-runs extraction.
type Reconciler struct {
	store store.Store
}

func NewReconciler(st store.Store) *Reconciler {
	return &Reconciler{store: st}
}

// Reconcile overwrites the identification fields of a license with the
// human-supplied values and sets its status to approved. Conditions and
// alerts are untouched.
func (r *Reconciler) Reconcile(ctx context.Context, tenant, licenseID string, data ReconciliationData) error {
	if strings.TrimSpace(data.Name) == "" || strings.TrimSpace(data.ExpirationDate) == "" {
		return ErrMissingFields
	}

	lic, err := r.store.GetLicense(ctx, licenseID)
	if err != nil {
		return err
	}
	if lic.Tenant != tenant {
		return store.ErrNotFound
	}
	if !model.TerminalExtractionStatus(lic.Status) {
		return fmt.Errorf("%w: %s", ErrInvalidState, lic.Status)
	}

	lic.Name = data.Name
	lic.LicenseType = data.LicenseType
	lic.IssuingAuthority = data.IssuingAuthority
	lic.ProcessNumber = data.ProcessNumber
	lic.IssueDate = data.IssueDate
	lic.ExpirationDate = data.ExpirationDate
	lic.Status = model.StatusApproved

	if err := r.store.UpdateLicense(ctx, lic); err != nil {
		return fmt.Errorf("apply reconciliation: %w", err)
	}

	logger.Info(ctx, "license reconciled", "license_id", licenseID)
	return nil
}
