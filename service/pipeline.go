package service

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/Web-Star-Studio/daton-esg-insight-sub008/model"
	"github.com/Web-Star-Studio/daton-esg-insight-sub008/pkg/logger"
)

// MergedResult is the combined output of the three extraction phases plus
// the status decision and the per-phase processing log. The log is kept for
// support and debugging; it is never shown to end users.
type MergedResult struct {
	Identification *Identification `json:"identification,omitempty"`
	Conditions     []ConditionItem `json:"conditions"`
	Alerts         []AlertItem     `json:"alerts"`
	Status         string          `json:"status"`
	Log            []string        `json:"log"`
}

// Pipeline orchestrates the three extraction phases against one uploaded
// document. Phases run sequentially: they share one rate-limited engine and
// one file handle, and sequential execution keeps the worst case at one
// in-flight job per pipeline run.
type Pipeline struct {
	extractor *PhaseExtractor
}

func NewPipeline(extractor *PhaseExtractor) *Pipeline {
	return &Pipeline{extractor: extractor}
}

// Process runs identification, conditions and alerts in that fixed order and
// merges whatever each phase produced. A failed phase contributes nothing
// and never aborts the ones after it.
func (p *Pipeline) Process(ctx context.Context, fileURL, filename string) *MergedResult {
	result := &MergedResult{
		Conditions: []ConditionItem{},
		Alerts:     []AlertItem{},
	}

	phases := []Phase{PhaseIdentification, PhaseConditions, PhaseAlerts}
	for _, phase := range phases {
		start := time.Now()
		phaseResult, err := p.extractor.Extract(ctx, phase, fileURL, filename)
		elapsed := time.Since(start).Round(time.Millisecond)

		switch {
		case err != nil:
			result.Log = append(result.Log,
				fmt.Sprintf("fase %s interrompida após %v: %v", phase, elapsed, err))
		case phaseResult == nil:
			result.Log = append(result.Log,
				fmt.Sprintf("fase %s sem resultado após %v", phase, elapsed))
		default:
			switch phase {
			case PhaseIdentification:
				result.Identification = phaseResult.Identification
			case PhaseConditions:
				result.Conditions = phaseResult.Conditions
			case PhaseAlerts:
				result.Alerts = phaseResult.Alerts
			}
			result.Log = append(result.Log,
				fmt.Sprintf("fase %s concluída em %v", phase, elapsed))
		}

		if ctx.Err() != nil {
			// The caller went away; remaining phases would burn engine quota
			// for a result nobody persists differently. Status still gets
			// decided from what we have.
			result.Log = append(result.Log, "processamento interrompido pelo chamador")
			break
		}
	}

	result.Status = DecideStatus(result)
	logger.Info(ctx, "extraction pipeline finished",
		"status", result.Status,
		"conditions", len(result.Conditions),
		"alerts", len(result.Alerts),
	)
	return result
}

// DecideStatus applies the status policy: identification is the load-bearing
// phase. Without it the record is unusable; with it alone a human should
// confirm before trusting the record.
func DecideStatus(result *MergedResult) string {
	if result.Identification == nil || result.Identification.Empty() {
		return model.StatusFailed
	}
	if len(result.Conditions) > 0 || len(result.Alerts) > 0 {
		return model.StatusCompleted
	}
	return model.StatusNeedsReview
}

// Score computes the completeness heuristic: six basic fields plus one bonus
// each for a non-empty conditions and alerts collection, over a fixed
// denominator of eight, rounded to two decimals. It is persisted and shown
// to users, so it must stay reproducible and explainable.
func Score(result *MergedResult) float64 {
	populated := 0
	if id := result.Identification; id != nil {
		for _, field := range []string{
			id.LicenseType,
			id.IssuingAuthority,
			id.ProcessNumber,
			id.IssueDate,
			id.ExpirationDate,
			id.Name,
		} {
			if strings.TrimSpace(field) != "" {
				populated++
			}
		}
	}
	if len(result.Conditions) > 0 {
		populated++
	}
	if len(result.Alerts) > 0 {
		populated++
	}

	return math.Round(float64(populated)/8*100) / 100
}
