package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/Web-Star-Studio/daton-esg-insight-sub008/model"
	"github.com/Web-Star-Studio/daton-esg-insight-sub008/pkg/logger"
	"github.com/Web-Star-Studio/daton-esg-insight-sub008/store"
)

// DefaultIssuingAuthority fills the issuer when extraction produced none, so
// the record stays queryable.
const DefaultIssuingAuthority = "Órgão não identificado"

// Writer commits a merged extraction result across the License, Condition,
// Alert and Document rows. Whatever happens inside Commit, the license row
// ends in a terminal status: partial write failures are absorbed into the
// processing log, and a failed license update triggers one last minimal
// write marking the record failed.
type Writer struct {
	store store.Store
}

func NewWriter(st store.Store) *Writer {
	return &Writer{store: st}
}

// Commit applies the merged result. The returned error is non-nil only when
// even the fallback write failed, leaving the row stuck in processing; that
// is the single error this pipeline lets escape.
func (w *Writer) Commit(ctx context.Context, lic *model.License, doc *model.Document, result *MergedResult, score float64) (err error) {
	terminal := false

	// The one guarantee that must survive every failure mode below: the
	// license never stays in processing. Runs on every exit path.
	defer func() {
		if terminal {
			return
		}
		fallbackCtx := context.WithoutCancel(ctx)
		if fbErr := w.store.MarkLicenseFailed(fallbackCtx, lic.ID, doc.Filename); fbErr != nil {
			err = fmt.Errorf("license stuck in processing, fallback write failed: %w", fbErr)
			return
		}
		if docErr := w.store.UpdateDocumentStatus(fallbackCtx, doc.ID, model.StatusFailed); docErr != nil {
			logger.Warn(ctx, "failed to mirror fallback status to document",
				"document_id", doc.ID, "error", docErr)
		}
		err = nil
	}()

	update := w.buildLicense(lic, doc, result, score)
	if upErr := w.store.UpdateLicense(ctx, update); upErr != nil {
		logger.Error(ctx, "license update failed, taking fallback path",
			"license_id", lic.ID, "error", upErr)
		return nil // deferred fallback decides the final error
	}
	terminal = true

	if len(result.Conditions) > 0 {
		if insErr := w.insertConditions(ctx, update, result.Conditions); insErr != nil {
			result.Log = append(result.Log,
				fmt.Sprintf("falha ao salvar condicionantes: %v", insErr))
			logger.Error(ctx, "condition insert failed",
				"license_id", lic.ID, "error", insErr)
		}
	}

	if len(result.Alerts) > 0 {
		if insErr := w.insertAlerts(ctx, update, result.Alerts); insErr != nil {
			result.Log = append(result.Log,
				fmt.Sprintf("falha ao salvar alertas: %v", insErr))
			logger.Error(ctx, "alert insert failed",
				"license_id", lic.ID, "error", insErr)
		}
	}

	if docErr := w.store.UpdateDocumentStatus(ctx, doc.ID, update.Status); docErr != nil {
		result.Log = append(result.Log,
			fmt.Sprintf("falha ao atualizar status do documento: %v", docErr))
		logger.Warn(ctx, "failed to mirror status to document",
			"document_id", doc.ID, "error", docErr)
	}

	return nil
}

// buildLicense merges extracted identification data into the placeholder
// row, substituting conservative defaults for required fields extraction did
// not produce.
func (w *Writer) buildLicense(lic *model.License, doc *model.Document, result *MergedResult, score float64) *model.License {
	update := *lic
	update.Status = result.Status
	update.ConfidenceScore = score
	update.ComplianceScore = math.Round(score * 100)

	if id := result.Identification; id != nil {
		update.Name = id.Name
		update.LicenseType = id.LicenseType
		update.IssuingAuthority = id.IssuingAuthority
		update.ProcessNumber = id.ProcessNumber
		update.IssueDate = id.IssueDate
		update.ExpirationDate = id.ExpirationDate
	}

	if update.Name == "" {
		update.Name = doc.Filename
	}
	if update.IssuingAuthority == "" {
		update.IssuingAuthority = DefaultIssuingAuthority
	}
	if update.ExpirationDate == "" {
		// One year out keeps expiry dashboards working until a human fixes it.
		update.ExpirationDate = time.Now().AddDate(1, 0, 0).Format("2006-01-02")
	}

	if payload, err := json.Marshal(result); err == nil {
		update.ExtractedPayload = payload
	}

	return &update
}

func (w *Writer) insertConditions(ctx context.Context, lic *model.License, items []ConditionItem) error {
	conds := make([]*model.Condition, 0, len(items))
	for _, item := range items {
		conds = append(conds, &model.Condition{
			ID:          uuid.New().String(),
			LicenseID:   lic.ID,
			Tenant:      lic.Tenant,
			Description: item.Description,
			Category:    item.Category,
			Priority:    model.NormalizePriority(item.Priority),
			Status:      model.ConditionStatusPending,
			Source:      model.SourceExtraction,
			Confidence:  lic.ConfidenceScore,
			CreatedAt:   time.Now(),
		})
	}
	return w.store.InsertConditions(ctx, conds)
}

func (w *Writer) insertAlerts(ctx context.Context, lic *model.License, items []AlertItem) error {
	alerts := make([]*model.Alert, 0, len(items))
	for _, item := range items {
		severity := model.NormalizeSeverity(item.Severity)
		alerts = append(alerts, &model.Alert{
			ID:             uuid.New().String(),
			LicenseID:      lic.ID,
			Tenant:         lic.Tenant,
			Type:           item.Type,
			Title:          item.Title,
			Message:        item.Message,
			Severity:       severity,
			RequiresAction: model.RequiresAction(severity),
			Resolved:       false,
			Metadata:       item.Extra,
			CreatedAt:      time.Now(),
		})
	}
	return w.store.InsertAlerts(ctx, alerts)
}
