package store

import (
	"context"
	"errors"
	"testing"

	"github.com/Web-Star-Studio/daton-esg-insight-sub008/model"
)

func TestMemoryLicenseLifecycle(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	lic := &model.License{
		ID:     "lic-1",
		Tenant: "acme",
		Name:   "LO 123/2024",
		Status: model.StatusProcessing,
	}
	if err := s.CreateLicense(ctx, lic); err != nil {
		t.Fatalf("CreateLicense: %v", err)
	}

	got, err := s.GetLicense(ctx, "lic-1")
	if err != nil {
		t.Fatalf("GetLicense: %v", err)
	}
	if got.Name != "LO 123/2024" || got.Status != model.StatusProcessing {
		t.Errorf("Unexpected license: %+v", got)
	}

	got.Status = model.StatusCompleted
	got.ConfidenceScore = 0.75
	if err := s.UpdateLicense(ctx, got); err != nil {
		t.Fatalf("UpdateLicense: %v", err)
	}

	got, _ = s.GetLicense(ctx, "lic-1")
	if got.Status != model.StatusCompleted || got.ConfidenceScore != 0.75 {
		t.Errorf("Update not applied: %+v", got)
	}

	if err := s.UpdateLicenseStatus(ctx, "lic-1", model.StatusApproved); err != nil {
		t.Fatalf("UpdateLicenseStatus: %v", err)
	}
	got, _ = s.GetLicense(ctx, "lic-1")
	if got.Status != model.StatusApproved {
		t.Errorf("Expected approved, got %s", got.Status)
	}

	if err := s.DeleteLicense(ctx, "lic-1"); err != nil {
		t.Fatalf("DeleteLicense: %v", err)
	}
	if _, err := s.GetLicense(ctx, "lic-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound after delete, got %v", err)
	}
}

func TestMemoryGetLicenseNotFound(t *testing.T) {
	s := NewMemory()
	if _, err := s.GetLicense(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if err := s.UpdateLicenseStatus(context.Background(), "missing", model.StatusFailed); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestMemoryListLicensesTenantScoped(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	s.CreateLicense(ctx, &model.License{ID: "a", Tenant: "t1", Status: model.StatusCompleted})
	s.CreateLicense(ctx, &model.License{ID: "b", Tenant: "t1", Status: model.StatusFailed})
	s.CreateLicense(ctx, &model.License{ID: "c", Tenant: "t2", Status: model.StatusCompleted})

	got, err := s.ListLicenses(ctx, "t1")
	if err != nil {
		t.Fatalf("ListLicenses: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("Expected 2 licenses for t1, got %d", len(got))
	}
}

func TestMemoryMarkLicenseFailed(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	s.CreateLicense(ctx, &model.License{ID: "lic-1", Tenant: "t1", Status: model.StatusProcessing})
	if err := s.MarkLicenseFailed(ctx, "lic-1", "upload.pdf"); err != nil {
		t.Fatalf("MarkLicenseFailed: %v", err)
	}

	got, _ := s.GetLicense(ctx, "lic-1")
	if got.Status != model.StatusFailed {
		t.Errorf("Expected failed, got %s", got.Status)
	}
	if got.Name != "upload.pdf" {
		t.Errorf("Expected fallback name, got %q", got.Name)
	}
}

func TestMemoryConditionsAndAlerts(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	s.CreateLicense(ctx, &model.License{ID: "lic-1", Tenant: "t1", Status: model.StatusProcessing})

	conds := []*model.Condition{
		{ID: "c1", LicenseID: "lic-1", Tenant: "t1", Description: "Monitorar efluentes", Priority: model.PriorityHigh, Status: model.ConditionStatusPending},
		{ID: "c2", LicenseID: "lic-1", Tenant: "t1", Description: "Relatório anual", Priority: model.PriorityMedium, Status: model.ConditionStatusPending},
	}
	if err := s.InsertConditions(ctx, conds); err != nil {
		t.Fatalf("InsertConditions: %v", err)
	}

	alerts := []*model.Alert{
		{ID: "a1", LicenseID: "lic-1", Tenant: "t1", Severity: model.SeverityCritical, RequiresAction: true},
	}
	if err := s.InsertAlerts(ctx, alerts); err != nil {
		t.Fatalf("InsertAlerts: %v", err)
	}

	gotConds, _ := s.ListConditions(ctx, "lic-1")
	if len(gotConds) != 2 {
		t.Errorf("Expected 2 conditions, got %d", len(gotConds))
	}
	gotAlerts, _ := s.ListAlerts(ctx, "lic-1")
	if len(gotAlerts) != 1 {
		t.Errorf("Expected 1 alert, got %d", len(gotAlerts))
	}

	// Children go away with the license.
	s.DeleteLicense(ctx, "lic-1")
	gotConds, _ = s.ListConditions(ctx, "lic-1")
	if len(gotConds) != 0 {
		t.Errorf("Expected conditions removed with license, got %d", len(gotConds))
	}
}

func TestMemoryDocuments(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	doc := &model.Document{
		ID:           "doc-1",
		LicenseID:    "lic-1",
		RelatedModel: model.RelatedModelLicense,
		Tenant:       "t1",
		Filename:     "licenca.pdf",
		StoragePath:  "t1/lic-1/licenca.pdf",
		Status:       model.StatusProcessing,
	}
	if err := s.CreateDocument(ctx, doc); err != nil {
		t.Fatalf("CreateDocument: %v", err)
	}

	got, err := s.GetDocumentByLicense(ctx, "lic-1")
	if err != nil {
		t.Fatalf("GetDocumentByLicense: %v", err)
	}
	if got.Filename != "licenca.pdf" {
		t.Errorf("Unexpected document: %+v", got)
	}

	if err := s.UpdateDocumentStatus(ctx, "doc-1", model.StatusCompleted); err != nil {
		t.Fatalf("UpdateDocumentStatus: %v", err)
	}
	got, _ = s.GetDocument(ctx, "doc-1")
	if got.Status != model.StatusCompleted {
		t.Errorf("Expected completed, got %s", got.Status)
	}
}

func TestMemoryReturnsCopies(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	s.CreateLicense(ctx, &model.License{ID: "lic-1", Tenant: "t1", Name: "original", Status: model.StatusProcessing})

	got, _ := s.GetLicense(ctx, "lic-1")
	got.Name = "mutated"

	again, _ := s.GetLicense(ctx, "lic-1")
	if again.Name != "original" {
		t.Errorf("Store leaked internal pointer: %q", again.Name)
	}
}
