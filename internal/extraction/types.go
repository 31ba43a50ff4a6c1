// Package extraction turns raw email and status-update text into structured
// fact records. It supports LLM-based extraction with a deterministic
// frequency-based fallback that always succeeds for non-empty input.
package extraction

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Importance levels for extracted documents.
const (
	ImportanceLow    = "low"
	ImportanceMedium = "medium"
	ImportanceHigh   = "high"
)

// Update types for status updates.
const (
	UpdateTypeProgress   = "progress"
	UpdateTypeBlocker    = "blocker"
	UpdateTypeCompletion = "completion"
	UpdateTypeRisk       = "risk"
	UpdateTypeGeneral    = "general"
)

// DeliverableMention is a deliverable referenced in a document, with the
// first due date recognized in its text, if any.
type DeliverableMention struct {
	Title   string     `json:"title"`
	DueDate *time.Time `json:"due_date,omitempty"`
}

// FactRecord is the structured output of the extraction engine for one
// document. Email extraction fills the top group; status-update extraction
// fills the bottom group. Both share People, Keywords, and Deliverables.
type FactRecord struct {
	ProjectName  string               `json:"project_name,omitempty"`
	Company      string               `json:"company,omitempty"`
	People       []string             `json:"people,omitempty"`
	Keywords     []string             `json:"keywords,omitempty"`
	ActionItems  []string             `json:"action_items,omitempty"`
	Deliverables []DeliverableMention `json:"deliverables,omitempty"`
	Importance   string               `json:"importance,omitempty"`
	Summary      string               `json:"summary,omitempty"`

	UpdateType      string   `json:"update_type,omitempty"`
	PercentComplete *float64 `json:"percentage_complete,omitempty"`
	Blockers        []string `json:"blockers,omitempty"`
	NextSteps       []string `json:"next_steps,omitempty"`

	// Fallback is true when the record came from the deterministic
	// extractor rather than the language model.
	Fallback bool `json:"fallback,omitempty"`
}

// rawMention accepts the two shapes the model emits for a deliverable:
// a bare string, or an object with title and due_date fields.
type rawMention struct {
	Title   string `json:"title"`
	DueDate string `json:"due_date"`

	// text is set when the mention was a bare string.
	text string
}

func (m *rawMention) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		m.text = s
		return nil
	}
	type alias rawMention
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	m.Title = a.Title
	m.DueDate = a.DueDate
	return nil
}

// flexPercent tolerates a completion percentage given as a number, a
// numeric string, or a "60%" string.
type flexPercent struct {
	value *float64
}

func (p *flexPercent) UnmarshalJSON(data []byte) error {
	// A JSON null is a no-op for numeric targets; keep it absent.
	if string(data) == "null" {
		return nil
	}
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		p.value = &n
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		// Unusable shape; treat as absent rather than failing the record.
		return nil
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "%")
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		p.value = &v
	}
	return nil
}

// emailPayload is the strict target schema for email extraction output.
type emailPayload struct {
	ProjectName  string       `json:"project_name"`
	Company      string       `json:"company"`
	People       []string     `json:"people"`
	Keywords     []string     `json:"keywords"`
	ActionItems  []string     `json:"action_items"`
	Deliverables []rawMention `json:"deliverables"`
	Importance   string       `json:"importance"`
	Summary      string       `json:"summary"`
}

// statusPayload is the strict target schema for status-update extraction output.
type statusPayload struct {
	UpdateType            string       `json:"update_type"`
	Keywords              []string     `json:"keywords"`
	PercentComplete       flexPercent  `json:"percentage_complete"`
	Blockers              []string     `json:"blockers"`
	NextSteps             []string     `json:"next_steps"`
	DeliverablesMentioned []rawMention `json:"deliverables_mentioned"`
	PeopleMentioned       []string     `json:"people_mentioned"`
}
