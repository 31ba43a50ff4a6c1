// Package query answers natural-language questions over ingested work
// data. Each question is classified, routed to relational and semantic
// lookups, and the aggregated results are narrated by the language model.
//
// Retrieval here is best-effort: a failed classification degrades to the
// general route, and a failed narration call degrades to a placeholder
// answer over the raw results.
package query

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/ledgerline/workassist/internal/extraction"
	"github.com/ledgerline/workassist/internal/llm"
	"github.com/ledgerline/workassist/internal/semindex"
	"github.com/ledgerline/workassist/internal/store"
)

var tracer = otel.Tracer("workassist.query")

// ErrEmptyQuestion is returned when the question text is missing.
var ErrEmptyQuestion = errors.New("question is required")

var questionsAnswered = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "workassist",
	Subsystem: "query",
	Name:      "questions_total",
	Help:      "Questions answered by intent type.",
}, []string{"intent"})

const (
	intentPromptTemplate = `Analyze this work-related query and extract:
1. query_type: 'deliverables', 'emails', 'status', 'people', or 'general'
2. project_name: If a specific project is mentioned
3. time_frame: 'upcoming', 'past', 'today', 'this_week', etc.
4. specific_person: If asking about a specific person
5. urgency: If asking about urgent/important items

Query: %s

Return ONLY JSON.`

	answerPromptTemplate = `Based on this work data, answer the user's query in a helpful way:

Query: %s

Data:
%s

Provide a concise, helpful answer that directly addresses the query.`

	// placeholderAnswer is returned when narration fails; the raw results
	// still carry the substance.
	placeholderAnswer = "I found the relevant information above."

	intentTemperature = 0.3
	intentMaxTokens   = 200
	answerTemperature = 0.5
	answerMaxTokens   = 300
	contextBudget     = 3000
)

// Intent is the classified shape of a question.
type Intent struct {
	QueryType      string `json:"query_type"`
	ProjectName    string `json:"project_name,omitempty"`
	TimeFrame      string `json:"time_frame,omitempty"`
	SpecificPerson string `json:"specific_person,omitempty"`
	Urgency        string `json:"urgency,omitempty"`
}

// Answer is the engine's response to one question.
type Answer struct {
	Question string         `json:"query"`
	Intent   Intent         `json:"query_intent"`
	Results  map[string]any `json:"results"`
	Answer   string         `json:"answer"`
}

// Searcher is the slice of the semantic index the engine needs.
type Searcher interface {
	Search(ctx context.Context, kind semindex.Kind, query string, maxResults int, filter *semindex.Filter) ([]semindex.Result, error)
	SearchAll(ctx context.Context, query string, maxResults int, filter *semindex.Filter) (map[semindex.Kind][]semindex.Result, error)
}

// Config tunes the engine.
type Config struct {
	// MaxResults caps each semantic search.
	MaxResults int

	// WarningDays is the upcoming-deliverable window in days.
	WarningDays int
}

// Engine routes questions over the entity store and semantic index.
type Engine struct {
	client llm.Client
	store  *store.Store
	index  Searcher
	cfg    Config
	logger *zap.Logger
}

// NewEngine creates a query engine.
func NewEngine(client llm.Client, entities *store.Store, index Searcher, cfg Config, logger *zap.Logger) (*Engine, error) {
	if client == nil {
		return nil, fmt.Errorf("llm client is required")
	}
	if entities == nil {
		return nil, fmt.Errorf("store is required")
	}
	if index == nil {
		return nil, fmt.Errorf("index is required")
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 5
	}
	if cfg.WarningDays <= 0 {
		cfg.WarningDays = 7
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{client: client, store: entities, index: index, cfg: cfg, logger: logger}, nil
}

// route is one retrieval branch. Branches fire independently on either the
// question text or the classified intent, and their results are unioned.
type route struct {
	name  string
	match func(question string, intent Intent) bool
	run   func(ctx context.Context, question string, intent Intent, results map[string]any) error
}

func (e *Engine) routes() []route {
	return []route{
		{
			name: "deliverables",
			match: func(q string, intent Intent) bool {
				return strings.Contains(q, "deliverable") || intent.QueryType == "deliverables"
			},
			run: e.runDeliverables,
		},
		{
			name: "emails",
			match: func(q string, intent Intent) bool {
				return strings.Contains(q, "email") || intent.QueryType == "emails"
			},
			run: func(ctx context.Context, question string, _ Intent, results map[string]any) error {
				hits, err := e.index.Search(ctx, semindex.KindEmail, question, e.cfg.MaxResults, nil)
				if err != nil {
					return err
				}
				results["emails"] = hits
				return nil
			},
		},
		{
			name: "status_updates",
			match: func(q string, intent Intent) bool {
				return strings.Contains(q, "status") || strings.Contains(q, "update") || intent.QueryType == "status"
			},
			run: func(ctx context.Context, question string, _ Intent, results map[string]any) error {
				hits, err := e.index.Search(ctx, semindex.KindStatusUpdate, question, e.cfg.MaxResults, nil)
				if err != nil {
					return err
				}
				results["status_updates"] = hits
				return nil
			},
		},
	}
}

// AnswerQuestion classifies the question, gathers results, and narrates
// them.
func (e *Engine) AnswerQuestion(ctx context.Context, question string) (*Answer, error) {
	ctx, span := tracer.Start(ctx, "query.AnswerQuestion")
	defer span.End()

	if strings.TrimSpace(question) == "" {
		return nil, ErrEmptyQuestion
	}

	intent := e.classify(ctx, question)
	span.SetAttributes(attribute.String("query.intent", intent.QueryType))
	questionsAnswered.WithLabelValues(intent.QueryType).Inc()

	lowered := strings.ToLower(question)
	results := make(map[string]any)
	for _, r := range e.routes() {
		if !r.match(lowered, intent) {
			continue
		}
		if err := r.run(ctx, question, intent, results); err != nil {
			return nil, fmt.Errorf("route %s: %w", r.name, err)
		}
	}

	// Catch-all: nothing matched, search every collection.
	if len(results) == 0 {
		all, err := e.index.SearchAll(ctx, question, e.cfg.MaxResults, nil)
		if err != nil {
			return nil, fmt.Errorf("search all: %w", err)
		}
		for kind, hits := range all {
			results[string(kind)] = hits
		}
	}

	return &Answer{
		Question: question,
		Intent:   intent,
		Results:  results,
		Answer:   e.narrate(ctx, question, results),
	}, nil
}

// classify asks the model for the question's intent. Any failure degrades
// to the general intent so routing falls through to the catch-all.
func (e *Engine) classify(ctx context.Context, question string) Intent {
	general := Intent{QueryType: "general"}

	response, err := e.client.Generate(ctx, fmt.Sprintf(intentPromptTemplate, question), llm.GenerateOptions{
		Temperature: intentTemperature,
		MaxTokens:   intentMaxTokens,
	})
	if err != nil {
		e.logger.Warn("intent classification failed", zap.Error(err))
		return general
	}

	var intent Intent
	if err := json.Unmarshal([]byte(extraction.JSONSpan(response)), &intent); err != nil {
		e.logger.Warn("intent response was not valid JSON", zap.Error(err))
		return general
	}
	if intent.QueryType == "" {
		intent.QueryType = "general"
	}
	return intent
}

// runDeliverables combines the relational upcoming-deliverable lookup with
// a semantic search, reported under distinct keys.
func (e *Engine) runDeliverables(ctx context.Context, question string, intent Intent, results map[string]any) error {
	lowered := strings.ToLower(question)
	if strings.Contains(lowered, "soon") || strings.Contains(lowered, "upcoming") {
		filter := store.DeliverableFilter{DueWithinDays: e.cfg.WarningDays}
		if intent.ProjectName != "" {
			project, err := e.store.ProjectByName(ctx, intent.ProjectName)
			if err == nil {
				filter.ProjectID = project.ID
			} else if !errors.Is(err, store.ErrNotFound) {
				return err
			}
		}
		deliverables, err := e.store.ListDeliverables(ctx, filter)
		if err != nil {
			return err
		}
		results["deliverables"] = deliverables
	}

	hits, err := e.index.Search(ctx, semindex.KindDeliverable, question, e.cfg.MaxResults, nil)
	if err != nil {
		return err
	}
	results["related_deliverables"] = hits
	return nil
}

// narrate turns the aggregated results into a short natural-language
// answer. Serialization or model failures degrade to a fixed placeholder.
func (e *Engine) narrate(ctx context.Context, question string, results map[string]any) string {
	serialized, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		e.logger.Warn("result serialization failed", zap.Error(err))
		return placeholderAnswer
	}
	block := string(serialized)
	if len(block) > contextBudget {
		block = block[:contextBudget]
	}

	answer, err := e.client.Generate(ctx, fmt.Sprintf(answerPromptTemplate, question, block), llm.GenerateOptions{
		Temperature: answerTemperature,
		MaxTokens:   answerMaxTokens,
	})
	if err != nil || strings.TrimSpace(answer) == "" {
		if err != nil {
			e.logger.Warn("answer narration failed", zap.Error(err))
		}
		return placeholderAnswer
	}
	return answer
}
