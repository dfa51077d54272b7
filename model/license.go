package model

import (
	"encoding/json"
	"strings"
	"time"
)

// Processing status values for License and Document records. A license is
// created as "processing" and must end in exactly one of completed,
// needs_review or failed before the pipeline returns. "approved" is only
// reachable afterwards, through reconciliation.
const (
	StatusProcessing  = "processing"
	StatusCompleted   = "completed"
	StatusNeedsReview = "needs_review"
	StatusFailed      = "failed"
	StatusApproved    = "approved"
)

// Condition priority and alert severity values.
const (
	PriorityHigh   = "high"
	PriorityMedium = "medium"
	PriorityLow    = "low"

	SeverityCritical = "critical"
	SeverityHigh     = "high"
	SeverityMedium   = "medium"
	SeverityLow      = "low"
)

// ConditionStatusPending is the resolution status every condition starts in.
const ConditionStatusPending = "pending"

// SourceExtraction marks rows produced by the extraction pipeline rather
// than entered by a user.
const SourceExtraction = "ai_extraction"

// License is the structured record assembled from an uploaded environmental
// license document. Dates are kept as extracted strings (YYYY-MM-DD when the
// engine cooperates) because the source documents are free-form.
type License struct {
	ID               string          `json:"id"`
	Tenant           string          `json:"tenant"`
	Name             string          `json:"name"`
	LicenseType      string          `json:"license_type"`
	IssuingAuthority string          `json:"issuing_authority"`
	ProcessNumber    string          `json:"process_number"`
	IssueDate        string          `json:"issue_date,omitempty"`
	ExpirationDate   string          `json:"expiration_date,omitempty"`
	Status           string          `json:"status"`
	ConfidenceScore  float64         `json:"confidence_score"`
	ComplianceScore  float64         `json:"compliance_score"`
	ExtractedPayload json.RawMessage `json:"extracted_payload,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// Condition is a single obligation (condicionante) attached to a license.
type Condition struct {
	ID          string    `json:"id"`
	LicenseID   string    `json:"license_id"`
	Tenant      string    `json:"tenant"`
	Description string    `json:"description"`
	Category    string    `json:"category,omitempty"`
	Priority    string    `json:"priority"`
	Status      string    `json:"status"`
	Source      string    `json:"source"`
	Confidence  float64   `json:"confidence"`
	CreatedAt   time.Time `json:"created_at"`
}

// Alert is a single risk or notice attached to a license.
type Alert struct {
	ID             string         `json:"id"`
	LicenseID      string         `json:"license_id"`
	Tenant         string         `json:"tenant"`
	Type           string         `json:"type"`
	Title          string         `json:"title"`
	Message        string         `json:"message"`
	Severity       string         `json:"severity"`
	RequiresAction bool           `json:"requires_action"`
	Resolved       bool           `json:"resolved"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// Document represents the uploaded artifact. Its status mirrors the owning
// license's status; nothing else is mutated after creation.
type Document struct {
	ID           string    `json:"id"`
	LicenseID    string    `json:"license_id"`
	RelatedModel string    `json:"related_model"`
	Tenant       string    `json:"tenant"`
	Filename     string    `json:"filename"`
	StoragePath  string    `json:"storage_path"`
	ContentType  string    `json:"content_type"`
	SizeBytes    int64     `json:"size_bytes"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// RelatedModelLicense is the documents.related_model discriminator for
// license uploads.
const RelatedModelLicense = "License"

// NormalizePriority maps free-form extracted priority text onto the fixed
// priority set, defaulting to medium.
func NormalizePriority(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "high", "alta", "urgente":
		return PriorityHigh
	case "low", "baixa":
		return PriorityLow
	default:
		return PriorityMedium
	}
}

// NormalizeSeverity maps free-form extracted severity text onto the fixed
// severity set, defaulting to medium.
func NormalizeSeverity(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "critical", "critica", "crítica":
		return SeverityCritical
	case "high", "alta":
		return SeverityHigh
	case "low", "baixa":
		return SeverityLow
	default:
		return SeverityMedium
	}
}

// RequiresAction reports whether an alert of the given severity demands
// action from the user.
func RequiresAction(severity string) bool {
	return severity == SeverityCritical || severity == SeverityHigh
}

// TerminalExtractionStatus reports whether status is one of the three
// terminal outcomes the pipeline may leave a license in.
func TerminalExtractionStatus(status string) bool {
	switch status {
	case StatusCompleted, StatusNeedsReview, StatusFailed:
		return true
	}
	return false
}
