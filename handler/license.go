package handler

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/Web-Star-Studio/daton-esg-insight-sub008/middleware"
	"github.com/Web-Star-Studio/daton-esg-insight-sub008/model"
	"github.com/Web-Star-Studio/daton-esg-insight-sub008/pkg/logger"
	"github.com/Web-Star-Studio/daton-esg-insight-sub008/service"
	"github.com/Web-Star-Studio/daton-esg-insight-sub008/store"
)

type LicenseHandler struct {
	storage    service.ObjectStorage
	pipeline   *service.Pipeline
	writer     *service.Writer
	reconciler *service.Reconciler
	store      store.Store
}

func NewLicenseHandler(storage service.ObjectStorage, pipeline *service.Pipeline, writer *service.Writer, reconciler *service.Reconciler, st store.Store) *LicenseHandler {
	return &LicenseHandler{
		storage:    storage,
		pipeline:   pipeline,
		writer:     writer,
		reconciler: reconciler,
		store:      st,
	}
}

type fileUpload struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Data string `json:"data"` // base64, optionally a data URL
}

type processRequest struct {
	Action             string                      `json:"action" binding:"required"`
	File               *fileUpload                 `json:"file"`
	LicenseID          string                      `json:"licenseId"`
	AnalysisType       string                      `json:"analysisType"`
	ReconciliationData *service.ReconciliationData `json:"reconciliationData"`
}

type extractedCount struct {
	Identification int `json:"identification"`
	Conditions     int `json:"conditions"`
	Alerts         int `json:"alerts"`
}

type processResponse struct {
	Success        bool           `json:"success"`
	LicenseID      string         `json:"licenseId"`
	DocumentID     string         `json:"documentId"`
	Status         string         `json:"status"`
	Confidence     float64        `json:"confidence"`
	ProcessingTime int64          `json:"processingTime"` // milliseconds
	ExtractedCount extractedCount `json:"extractedCount"`
	Message        string         `json:"message"`
}

func statusMessage(status string) string {
	switch status {
	case model.StatusCompleted:
		return "Análise concluída com sucesso"
	case model.StatusNeedsReview:
		return "Análise parcial - requer revisão"
	case model.StatusFailed:
		return "Análise falhou"
	}
	return ""
}

// Process is the single extraction entrypoint, dispatched on the action
// field. Upload runs the pipeline synchronously so the response carries the
// final status; analyze re-runs it in the background for an existing record.
func (h *LicenseHandler) Process(c *gin.Context) {
	var req processRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid request"})
		return
	}

	switch req.Action {
	case "upload":
		h.processUpload(c, &req)
	case "analyze":
		h.processAnalyze(c, &req)
	case "reconcile":
		h.processReconcile(c, &req)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Unknown action: " + req.Action})
	}
}

func (h *LicenseHandler) processUpload(c *gin.Context, req *processRequest) {
	tenant := middleware.GetTenant(c)
	ctx := c.Request.Context()

	if req.File == nil || req.File.Name == "" || req.File.Data == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "No file provided"})
		return
	}

	ext := strings.ToLower(filepath.Ext(req.File.Name))
	if ext != ".pdf" && ext != ".docx" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Only PDF and DOCX files are allowed"})
		return
	}

	content, err := decodeFileData(req.File.Data)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid file encoding"})
		return
	}

	contentType := req.File.Type
	if contentType == "" || contentType == "application/octet-stream" {
		if ext == ".pdf" {
			contentType = "application/pdf"
		} else {
			contentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
		}
	}

	licenseID := uuid.New().String()
	objectName := fmt.Sprintf("%s/%s/%s", tenant, licenseID, req.File.Name)

	if err := h.storage.UploadFile(ctx, objectName, bytes.NewReader(content), int64(len(content)), contentType); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Failed to store file: " + err.Error()})
		return
	}

	fileURL, err := h.storage.PresignedURL(ctx, objectName)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Failed to generate URL: " + err.Error()})
		return
	}

	lic := &model.License{
		ID:     licenseID,
		Tenant: tenant,
		Name:   req.File.Name,
		Status: model.StatusProcessing,
	}
	doc := &model.Document{
		ID:           uuid.New().String(),
		LicenseID:    licenseID,
		RelatedModel: model.RelatedModelLicense,
		Tenant:       tenant,
		Filename:     req.File.Name,
		StoragePath:  objectName,
		ContentType:  contentType,
		SizeBytes:    int64(len(content)),
		Status:       model.StatusProcessing,
	}
	if err := h.store.CreateLicense(ctx, lic); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Failed to create record: " + err.Error()})
		return
	}
	if err := h.store.CreateDocument(ctx, doc); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Failed to create record: " + err.Error()})
		return
	}

	start := time.Now()
	result := h.pipeline.Process(ctx, fileURL, req.File.Name)
	score := service.Score(result)

	if err := h.writer.Commit(ctx, lic, doc, result, score); err != nil {
		// The one failure the pipeline cannot absorb: the row is stuck in
		// processing.
		logger.Error(ctx, "commit failed beyond the fallback path", "license_id", licenseID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Failed to persist extraction result"})
		return
	}

	// Commit may have taken the fallback path, so the stored row is the
	// source of truth for the final status.
	stored, err := h.store.GetLicense(ctx, licenseID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Failed to load result"})
		return
	}

	identCount := 0
	if result.Identification != nil && !result.Identification.Empty() {
		identCount = 1
	}
	c.JSON(http.StatusOK, processResponse{
		Success:        true,
		LicenseID:      licenseID,
		DocumentID:     doc.ID,
		Status:         stored.Status,
		Confidence:     stored.ConfidenceScore,
		ProcessingTime: time.Since(start).Milliseconds(),
		ExtractedCount: extractedCount{
			Identification: identCount,
			Conditions:     len(result.Conditions),
			Alerts:         len(result.Alerts),
		},
		Message: statusMessage(stored.Status),
	})
}

func (h *LicenseHandler) processAnalyze(c *gin.Context, req *processRequest) {
	tenant := middleware.GetTenant(c)
	ctx := c.Request.Context()

	if req.LicenseID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "licenseId is required"})
		return
	}

	lic, err := h.store.GetLicense(ctx, req.LicenseID)
	if err != nil || lic.Tenant != tenant {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "License not found"})
		return
	}
	doc, err := h.store.GetDocumentByLicense(ctx, lic.ID)
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"success": false, "error": "No stored document to analyze"})
		return
	}
	fileURL, err := h.storage.PresignedURL(ctx, doc.StoragePath)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Failed to generate URL: " + err.Error()})
		return
	}

	if err := h.store.UpdateLicenseStatus(ctx, lic.ID, model.StatusProcessing); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Failed to update status"})
		return
	}
	lic.Status = model.StatusProcessing

	// Re-extraction outlives the request. The commit's terminal guarantee
	// holds here too, so the row cannot stay in processing.
	bgCtx := context.WithoutCancel(ctx)
	go func() {
		result := h.pipeline.Process(bgCtx, fileURL, doc.Filename)
		score := service.Score(result)
		if err := h.writer.Commit(bgCtx, lic, doc, result, score); err != nil {
			logger.Error(bgCtx, "background re-analysis commit failed", "license_id", lic.ID, "error", err)
		}
	}()

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"licenseId": lic.ID,
		"status":    model.StatusProcessing,
		"message":   "Análise iniciada",
	})
}

func (h *LicenseHandler) processReconcile(c *gin.Context, req *processRequest) {
	tenant := middleware.GetTenant(c)

	if req.LicenseID == "" || req.ReconciliationData == nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "licenseId and reconciliationData are required"})
		return
	}

	err := h.reconciler.Reconcile(c.Request.Context(), tenant, req.LicenseID, *req.ReconciliationData)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "Licença aprovada"})
	case errors.Is(err, service.ErrMissingFields):
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Required fields missing"})
	case errors.Is(err, service.ErrInvalidState):
		c.JSON(http.StatusConflict, gin.H{"success": false, "error": "License cannot be reconciled in its current status"})
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "License not found"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Failed to reconcile: " + err.Error()})
	}
}

// decodeFileData accepts plain base64 or a data URL.
func decodeFileData(data string) ([]byte, error) {
	if idx := strings.Index(data, ","); idx >= 0 && strings.HasPrefix(data, "data:") {
		data = data[idx+1:]
	}
	return base64.StdEncoding.DecodeString(data)
}

// List returns all licenses for the current tenant, without the raw payload.
func (h *LicenseHandler) List(c *gin.Context) {
	tenant := middleware.GetTenant(c)

	licenses, err := h.store.ListLicenses(c.Request.Context(), tenant)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list licenses"})
		return
	}

	result := make([]gin.H, len(licenses))
	for i, lic := range licenses {
		result[i] = gin.H{
			"id":                lic.ID,
			"name":              lic.Name,
			"license_type":      lic.LicenseType,
			"issuing_authority": lic.IssuingAuthority,
			"status":            lic.Status,
			"confidence_score":  lic.ConfidenceScore,
			"expiration_date":   lic.ExpirationDate,
			"created_at":        lic.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
			"updated_at":        lic.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"),
		}
	}

	c.JSON(http.StatusOK, gin.H{"licenses": result})
}

// Get returns a single license including the raw extracted payload.
func (h *LicenseHandler) Get(c *gin.Context) {
	lic, ok := h.ownedLicense(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, lic)
}

// GetStatus returns the processing status of a license.
func (h *LicenseHandler) GetStatus(c *gin.Context) {
	lic, ok := h.ownedLicense(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":         lic.ID,
		"status":     lic.Status,
		"confidence": lic.ConfidenceScore,
	})
}

// Conditions returns the extracted conditions of a license.
func (h *LicenseHandler) Conditions(c *gin.Context) {
	lic, ok := h.ownedLicense(c)
	if !ok {
		return
	}
	conds, err := h.store.ListConditions(c.Request.Context(), lic.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list conditions"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"conditions": conds})
}

// Alerts returns the extracted alerts of a license.
func (h *LicenseHandler) Alerts(c *gin.Context) {
	lic, ok := h.ownedLicense(c)
	if !ok {
		return
	}
	alerts, err := h.store.ListAlerts(c.Request.Context(), lic.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list alerts"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"alerts": alerts})
}

// Delete removes a license, its children and the stored document.
func (h *LicenseHandler) Delete(c *gin.Context) {
	lic, ok := h.ownedLicense(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	if doc, err := h.store.GetDocumentByLicense(ctx, lic.ID); err == nil {
		if rmErr := h.storage.RemoveFile(ctx, doc.StoragePath); rmErr != nil {
			logger.Warn(ctx, "failed to remove stored object", "path", doc.StoragePath, "error", rmErr)
		}
	}

	if err := h.store.DeleteLicense(ctx, lic.ID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete license"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "License deleted"})
}

// ownedLicense loads the :id license and enforces tenant ownership. On
// failure it writes the error response and returns ok=false.
func (h *LicenseHandler) ownedLicense(c *gin.Context) (*model.License, bool) {
	tenant := middleware.GetTenant(c)
	id := c.Param("id")

	lic, err := h.store.GetLicense(c.Request.Context(), id)
	if err != nil || lic.Tenant != tenant {
		c.JSON(http.StatusNotFound, gin.H{"error": "License not found"})
		return nil, false
	}
	return lic, true
}
