package extraction

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ledgerline/workassist/internal/llm"
)

// Extraction call bounds. Low temperature favors determinism over creativity.
const (
	extractionTemperature = 0.3
	emailMaxTokens        = 500
	statusMaxTokens       = 400
)

const emailPromptTemplate = `Extract the following information from this email:

Subject: %s
Content: %s

Please identify and return in JSON format:
1. project_name: The project or initiative being discussed
2. company: The company or organization mentioned
3. people: List of people's names mentioned (not email addresses)
4. keywords: Important keywords and topics (5-10 words)
5. action_items: Any action items or tasks mentioned
6. deliverables: Any deliverables mentioned with due dates if available
7. importance: Rate as 'high', 'medium', or 'low' based on content urgency
8. summary: A brief 1-2 sentence summary

Return ONLY valid JSON, no other text.`

const statusPromptTemplate = `Extract information from this project status update:

Project: %s
Status Update: %s

Please identify and return in JSON format:
1. update_type: Type of update ('progress', 'blocker', 'completion', 'risk', 'general')
2. keywords: Key topics and terms (5-10 words)
3. percentage_complete: If mentioned, the completion percentage (number only)
4. blockers: List any blockers or issues
5. next_steps: List of next steps or upcoming tasks
6. deliverables_mentioned: Any deliverables referenced
7. people_mentioned: Names of people mentioned

Return ONLY valid JSON, no other text.`

// Engine extracts structured facts from work documents using a language
// model, falling back to deterministic frequency-based extraction when the
// model output is unusable. Extraction never fails: all error paths
// terminate in the fallback record.
type Engine struct {
	client llm.Client
	logger *zap.Logger
}

// NewEngine creates an extraction engine.
func NewEngine(client llm.Client, logger *zap.Logger) (*Engine, error) {
	if client == nil {
		return nil, fmt.Errorf("llm client cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{client: client, logger: logger}, nil
}

// ExtractEmail extracts structured information from email content.
func (e *Engine) ExtractEmail(ctx context.Context, content, subject string) *FactRecord {
	subj := subject
	if subj == "" {
		subj = "N/A"
	}
	prompt := fmt.Sprintf(emailPromptTemplate, subj, content)

	response, err := e.client.Generate(ctx, prompt, llm.GenerateOptions{
		Temperature: extractionTemperature,
		MaxTokens:   emailMaxTokens,
	})
	if err != nil {
		e.logger.Warn("email extraction LLM call failed, using fallback", zap.Error(err))
		return fallbackEmailRecord(content, subject)
	}

	var payload emailPayload
	if err := unmarshalJSONSpan(response, &payload); err != nil {
		e.logger.Warn("email extraction returned unusable JSON, using fallback", zap.Error(err))
		return fallbackEmailRecord(content, subject)
	}

	importance := strings.ToLower(strings.TrimSpace(payload.Importance))
	if importance == "" {
		importance = ImportanceMedium
	}

	return &FactRecord{
		ProjectName:  strings.TrimSpace(payload.ProjectName),
		Company:      strings.TrimSpace(payload.Company),
		People:       cleanPeople(payload.People),
		Keywords:     cleanKeywords(payload.Keywords),
		ActionItems:  cleanStrings(payload.ActionItems),
		Deliverables: parseMentions(payload.Deliverables),
		Importance:   importance,
		Summary:      strings.TrimSpace(payload.Summary),
	}
}

// ExtractStatusUpdate extracts structured information from a status update.
func (e *Engine) ExtractStatusUpdate(ctx context.Context, content, projectName string) *FactRecord {
	project := projectName
	if project == "" {
		project = "Unknown"
	}
	prompt := fmt.Sprintf(statusPromptTemplate, project, content)

	response, err := e.client.Generate(ctx, prompt, llm.GenerateOptions{
		Temperature: extractionTemperature,
		MaxTokens:   statusMaxTokens,
	})
	if err != nil {
		e.logger.Warn("status extraction LLM call failed, using fallback", zap.Error(err))
		return fallbackStatusRecord(content)
	}

	var payload statusPayload
	if err := unmarshalJSONSpan(response, &payload); err != nil {
		e.logger.Warn("status extraction returned unusable JSON, using fallback", zap.Error(err))
		return fallbackStatusRecord(content)
	}

	updateType := strings.ToLower(strings.TrimSpace(payload.UpdateType))
	switch updateType {
	case UpdateTypeProgress, UpdateTypeBlocker, UpdateTypeCompletion, UpdateTypeRisk:
	default:
		updateType = UpdateTypeGeneral
	}

	return &FactRecord{
		UpdateType:      updateType,
		Keywords:        cleanKeywords(payload.Keywords),
		PercentComplete: payload.PercentComplete.value,
		Blockers:        cleanStrings(payload.Blockers),
		NextSteps:       cleanStrings(payload.NextSteps),
		Deliverables:    parseMentions(payload.DeliverablesMentioned),
		People:          cleanPeople(payload.PeopleMentioned),
	}
}

// JSONSpan locates the outermost {...} span in a model completion. Models
// often wrap JSON in prose or markdown fences; the span from the first "{" to
// the last "}" is the extraction target. Returns an empty string when no
// span exists.
func JSONSpan(text string) string {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return ""
	}
	return text[start : end+1]
}

// unmarshalJSONSpan extracts the JSON span from a completion and parses it
// strictly into target. Any parse failure is returned so callers can fall
// back; partial or garbage fields never leak into the typed record.
func unmarshalJSONSpan(text string, target any) error {
	span := JSONSpan(text)
	if span == "" {
		return fmt.Errorf("no JSON object found in completion")
	}
	if err := json.Unmarshal([]byte(span), target); err != nil {
		return fmt.Errorf("parsing completion JSON: %w", err)
	}
	return nil
}
