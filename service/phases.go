package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Web-Star-Studio/daton-esg-insight-sub008/pkg/logger"
)

// Phase identifies one of the three independent extraction goals.
type Phase string

const (
	PhaseIdentification Phase = "identification"
	PhaseConditions     Phase = "conditions"
	PhaseAlerts         Phase = "alerts"
)

// Downstream writes are bounded by capping the collections at the source.
const (
	MaxConditions = 10
	MaxAlerts     = 5
)

// Identification is the expected shape of the identification phase: the
// basic fields of the license record. Keys follow the instruction templates.
type Identification struct {
	Name             string `json:"razao_social"`
	LicenseType      string `json:"tipo_licenca"`
	IssuingAuthority string `json:"orgao_emissor"`
	ProcessNumber    string `json:"numero_processo"`
	IssueDate        string `json:"data_emissao"`
	ExpirationDate   string `json:"data_validade"`
}

// Empty reports whether no basic field was populated.
func (id *Identification) Empty() bool {
	if id == nil {
		return true
	}
	return strings.TrimSpace(id.Name) == "" &&
		strings.TrimSpace(id.LicenseType) == "" &&
		strings.TrimSpace(id.IssuingAuthority) == "" &&
		strings.TrimSpace(id.ProcessNumber) == "" &&
		strings.TrimSpace(id.IssueDate) == "" &&
		strings.TrimSpace(id.ExpirationDate) == ""
}

// ConditionItem is one extracted condicionante.
type ConditionItem struct {
	Description string `json:"descricao"`
	Category    string `json:"categoria"`
	Priority    string `json:"prioridade"`
}

// AlertItem is one extracted risk/notice. Keys the template did not ask for
// are preserved in Extra so nothing the engine found is silently dropped.
type AlertItem struct {
	Type     string
	Title    string
	Message  string
	Severity string
	Extra    map[string]any
}

var phaseInstructions = map[Phase]string{
	PhaseIdentification: `Analise o documento de licença ambiental e extraia os dados de identificação.
Responda APENAS com um objeto JSON, sem texto adicional, com as chaves:
"razao_social", "tipo_licenca", "orgao_emissor", "numero_processo", "data_emissao", "data_validade".
Datas no formato AAAA-MM-DD. Use "" para campos não encontrados.`,

	PhaseConditions: `Analise o documento de licença ambiental e liste as condicionantes (obrigações impostas ao empreendedor).
Responda APENAS com um array JSON de no máximo 10 objetos, cada um com as chaves:
"descricao", "categoria", "prioridade" (high, medium ou low).
Responda [] se não houver condicionantes.`,

	PhaseAlerts: `Analise o documento de licença ambiental e liste alertas de risco ou atenção
(vencimento próximo, pendências, não conformidades).
Responda APENAS com um array JSON de no máximo 5 objetos, cada um com as chaves:
"tipo", "titulo", "mensagem", "severidade" (critical, high, medium ou low).
Responda [] se não houver alertas.`,
}

// PhaseResult is the parsed output of a single phase. Exactly one of the
// three members is populated, matching the phase that produced it.
type PhaseResult struct {
	Identification *Identification
	Conditions     []ConditionItem
	Alerts         []AlertItem
}

// PhaseExtractor wraps the job runner with a fixed instruction template per
// phase and a bounded retry policy. Each phase is independent: losing one
// never discards another's result.
type PhaseExtractor struct {
	runner      *JobRunner
	budget      time.Duration // per attempt
	maxAttempts int
	retryDelay  time.Duration
}

func NewPhaseExtractor(runner *JobRunner, budget time.Duration, maxAttempts int, retryDelay time.Duration) *PhaseExtractor {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &PhaseExtractor{
		runner:      runner,
		budget:      budget,
		maxAttempts: maxAttempts,
		retryDelay:  retryDelay,
	}
}

// Extract runs one phase to completion. A nil result with a nil error means
// the phase produced nothing usable after all attempts; that is a normal
// outcome, not a pipeline error.
func (e *PhaseExtractor) Extract(ctx context.Context, phase Phase, fileURL, filename string) (*PhaseResult, error) {
	instructions, ok := phaseInstructions[phase]
	if !ok {
		return nil, fmt.Errorf("unknown phase: %s", phase)
	}

	var lastErr error
	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		if attempt > 1 {
			// Fixed pause between attempts; the engine may be overloaded.
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(e.retryDelay):
			}
		}

		raw, err := e.runner.Run(ctx, instructions, fileURL, filename, e.budget)
		if err != nil {
			lastErr = err
			logger.Warn(ctx, "phase attempt failed",
				"phase", string(phase), "attempt", attempt, "error", err)
			continue
		}

		result, ok := e.parse(phase, raw)
		if !ok {
			lastErr = fmt.Errorf("no structured value recovered")
			logger.Warn(ctx, "phase returned unrecoverable output",
				"phase", string(phase), "attempt", attempt)
			continue
		}
		return result, nil
	}

	logger.Warn(ctx, "phase exhausted attempts", "phase", string(phase), "error", lastErr)
	return nil, nil
}

// parse recovers the phase's expected shape from raw engine text. A
// syntactically valid but semantically empty value is rejected so a retry
// gets a chance at a real result.
func (e *PhaseExtractor) parse(phase Phase, raw string) (*PhaseResult, bool) {
	value, ok := RecoverJSON(raw)
	if !ok {
		return nil, false
	}

	switch phase {
	case PhaseIdentification:
		var id Identification
		if err := json.Unmarshal(value, &id); err != nil {
			return nil, false
		}
		if id.Empty() {
			return nil, false
		}
		return &PhaseResult{Identification: &id}, true

	case PhaseConditions:
		var items []ConditionItem
		if err := json.Unmarshal(value, &items); err != nil {
			return nil, false
		}
		kept := make([]ConditionItem, 0, len(items))
		for _, item := range items {
			if strings.TrimSpace(item.Description) == "" {
				continue
			}
			kept = append(kept, item)
			if len(kept) == MaxConditions {
				break
			}
		}
		if len(kept) == 0 {
			return nil, false
		}
		return &PhaseResult{Conditions: kept}, true

	case PhaseAlerts:
		items, ok := decodeAlerts(value)
		if !ok || len(items) == 0 {
			return nil, false
		}
		return &PhaseResult{Alerts: items}, true
	}

	return nil, false
}

// decodeAlerts maps the known keys of each alert object and keeps everything
// else as metadata.
func decodeAlerts(value json.RawMessage) ([]AlertItem, bool) {
	var raw []map[string]any
	if err := json.Unmarshal(value, &raw); err != nil {
		return nil, false
	}

	items := make([]AlertItem, 0, len(raw))
	for _, entry := range raw {
		item := AlertItem{
			Type:     stringField(entry, "tipo"),
			Title:    stringField(entry, "titulo"),
			Message:  stringField(entry, "mensagem"),
			Severity: stringField(entry, "severidade"),
		}
		if item.Title == "" && item.Message == "" {
			continue
		}
		for key, val := range entry {
			switch key {
			case "tipo", "titulo", "mensagem", "severidade":
			default:
				if item.Extra == nil {
					item.Extra = make(map[string]any)
				}
				item.Extra[key] = val
			}
		}
		items = append(items, item)
		if len(items) == MaxAlerts {
			break
		}
	}
	return items, true
}

func stringField(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}
