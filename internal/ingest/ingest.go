// Package ingest coordinates document ingestion: extraction, entity
// persistence, and semantic indexing.
//
// The entity store is the system of record. Each ingestion stages the
// entity row and everything derived from it in one transaction, then
// upserts the semantic index; an index failure is logged and leaves the
// vector id empty rather than failing the ingestion.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/ledgerline/workassist/internal/extraction"
	"github.com/ledgerline/workassist/internal/semindex"
	"github.com/ledgerline/workassist/internal/store"
)

var tracer = otel.Tracer("workassist.ingest")

// Sentinel errors for ingestion input validation.
var (
	// ErrMissingSender is returned when an email input has no sender.
	ErrMissingSender = errors.New("sender is required")

	// ErrMissingContent is returned when an input has no content.
	ErrMissingContent = errors.New("content is required")

	// ErrMissingProject is returned when a status update names no project.
	ErrMissingProject = errors.New("project is required")
)

var (
	documentsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "workassist",
		Subsystem: "ingest",
		Name:      "documents_total",
		Help:      "Documents ingested by type and outcome.",
	}, []string{"type", "outcome"})

	fallbackExtractions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "workassist",
		Subsystem: "ingest",
		Name:      "extraction_fallback_total",
		Help:      "Extractions that used the deterministic fallback.",
	}, []string{"type"})

	indexFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "workassist",
		Subsystem: "ingest",
		Name:      "index_failures_total",
		Help:      "Semantic index upserts that failed during ingestion.",
	})
)

// Extractor produces fact records from raw document text.
type Extractor interface {
	ExtractEmail(ctx context.Context, content, subject string) *extraction.FactRecord
	ExtractStatusUpdate(ctx context.Context, content, projectName string) *extraction.FactRecord
}

// Indexer is the slice of the semantic index ingestion needs.
type Indexer interface {
	Upsert(ctx context.Context, kind semindex.Kind, entityID, text string, metadata map[string]any) (string, error)
}

// EmailInput is a raw email submitted for processing.
type EmailInput struct {
	Subject      string     `json:"subject"`
	Sender       string     `json:"sender"`
	Recipients   []string   `json:"recipients"`
	CC           []string   `json:"cc"`
	Content      string     `json:"content"`
	ReceivedDate *time.Time `json:"received_date"`
}

// StatusInput is a raw status update submitted for a known project.
type StatusInput struct {
	ProjectID string `json:"project_id"`
	Content   string `json:"content"`
	CreatedBy string `json:"created_by"`
}

// EmailReceipt reports the outcome of processing one email.
type EmailReceipt struct {
	Email        *store.Email           `json:"email"`
	Facts        *extraction.FactRecord `json:"extracted"`
	Deliverables []*store.Deliverable   `json:"deliverables,omitempty"`
	VectorID     string                 `json:"vector_id,omitempty"`
}

// StatusReceipt reports the outcome of processing one status update.
type StatusReceipt struct {
	Update       *store.StatusUpdate    `json:"status_update"`
	Facts        *extraction.FactRecord `json:"extracted"`
	Deliverables []*store.Deliverable   `json:"deliverables,omitempty"`
	VectorID     string                 `json:"vector_id,omitempty"`
}

// Coordinator runs the ingestion paths.
type Coordinator struct {
	store     *store.Store
	index     Indexer
	extractor Extractor
	logger    *zap.Logger
}

// NewCoordinator creates an ingestion coordinator.
func NewCoordinator(entities *store.Store, index Indexer, extractor Extractor, logger *zap.Logger) (*Coordinator, error) {
	if entities == nil {
		return nil, fmt.Errorf("store is required")
	}
	if index == nil {
		return nil, fmt.Errorf("index is required")
	}
	if extractor == nil {
		return nil, fmt.Errorf("extractor is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{store: entities, index: index, extractor: extractor, logger: logger}, nil
}

// ProcessEmail extracts facts from an email, persists the email and any
// derived entities in one transaction, and indexes the email.
func (c *Coordinator) ProcessEmail(ctx context.Context, input EmailInput) (*EmailReceipt, error) {
	ctx, span := tracer.Start(ctx, "ingest.ProcessEmail")
	defer span.End()

	if input.Sender == "" {
		return nil, ErrMissingSender
	}
	if input.Content == "" {
		return nil, ErrMissingContent
	}

	facts := c.extractor.ExtractEmail(ctx, input.Content, input.Subject)
	if facts.Fallback {
		fallbackExtractions.WithLabelValues("email").Inc()
	}

	project, err := c.resolveProject(ctx, facts.ProjectName, facts.Company)
	if err != nil {
		documentsIngested.WithLabelValues("email", "error").Inc()
		return nil, err
	}

	email := &store.Email{
		Subject:         input.Subject,
		Sender:          input.Sender,
		Recipients:      input.Recipients,
		CC:              input.CC,
		Content:         input.Content,
		Summary:         facts.Summary,
		Keywords:        facts.Keywords,
		PeopleMentioned: facts.People,
		Importance:      facts.Importance,
	}
	if project != nil {
		email.ProjectID = project.ID
		email.ProjectName = project.Name
	}
	if input.ReceivedDate != nil {
		email.ReceivedDate = *input.ReceivedDate
	}

	var deliverables []*store.Deliverable
	err = c.store.WithTx(ctx, func(tx *store.Store) error {
		email, err = tx.CreateEmail(ctx, email)
		if err != nil {
			return fmt.Errorf("persist email: %w", err)
		}
		if project != nil {
			deliverables, err = stageDeliverables(ctx, tx, project, facts.Deliverables, store.DeliverablePending)
			if err != nil {
				return err
			}
		}
		return stagePeople(ctx, tx, facts.People, facts.Company)
	})
	if err != nil {
		documentsIngested.WithLabelValues("email", "error").Inc()
		return nil, err
	}
	span.SetAttributes(attribute.String("email.id", email.ID))

	receipt := &EmailReceipt{Email: email, Facts: facts, Deliverables: deliverables}
	for _, deliverable := range deliverables {
		deliverable.VectorID = c.IndexDeliverable(ctx, deliverable)
	}

	text := fmt.Sprintf("Subject: %s\n\n%s", input.Subject, input.Content)
	metadata := map[string]any{
		"email_id":         email.ID,
		"subject":          email.Subject,
		"sender":           email.Sender,
		"project_name":     email.ProjectName,
		"company":          facts.Company,
		"keywords":         email.Keywords,
		"people_mentioned": email.PeopleMentioned,
		"importance":       email.Importance,
		"date":             email.ReceivedDate.Format(time.RFC3339),
	}
	receipt.VectorID = c.indexEntity(ctx, semindex.KindEmail, email.ID, text, metadata, c.store.SetEmailVectorID)
	receipt.Email.VectorID = receipt.VectorID

	documentsIngested.WithLabelValues("email", "ok").Inc()
	c.logger.Info("email processed",
		zap.String("email_id", email.ID),
		zap.String("project_name", email.ProjectName),
		zap.Bool("fallback", facts.Fallback),
		zap.Int("deliverables", len(receipt.Deliverables)))

	return receipt, nil
}

// ProcessStatusUpdate extracts facts from a status update for an existing
// project, persists it and any derived entities in one transaction, and
// indexes it.
func (c *Coordinator) ProcessStatusUpdate(ctx context.Context, input StatusInput) (*StatusReceipt, error) {
	ctx, span := tracer.Start(ctx, "ingest.ProcessStatusUpdate")
	defer span.End()

	if input.ProjectID == "" {
		return nil, ErrMissingProject
	}
	if input.Content == "" {
		return nil, ErrMissingContent
	}

	project, err := c.store.GetProject(ctx, input.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("resolve project: %w", err)
	}

	facts := c.extractor.ExtractStatusUpdate(ctx, input.Content, project.Name)
	if facts.Fallback {
		fallbackExtractions.WithLabelValues("status_update").Inc()
	}

	update := &store.StatusUpdate{
		ProjectID:   project.ID,
		ProjectName: project.Name,
		Content:     input.Content,
		UpdateType:  facts.UpdateType,
		Keywords:    facts.Keywords,
		CreatedBy:   input.CreatedBy,
	}
	var deliverables []*store.Deliverable
	err = c.store.WithTx(ctx, func(tx *store.Store) error {
		update, err = tx.CreateStatusUpdate(ctx, update)
		if err != nil {
			return fmt.Errorf("persist status update: %w", err)
		}
		deliverables, err = stageDeliverables(ctx, tx, project, facts.Deliverables, store.DeliverableInProgress)
		if err != nil {
			return err
		}
		return stagePeople(ctx, tx, facts.People, facts.Company)
	})
	if err != nil {
		documentsIngested.WithLabelValues("status_update", "error").Inc()
		return nil, err
	}
	span.SetAttributes(attribute.String("status_update.id", update.ID))

	receipt := &StatusReceipt{Update: update, Facts: facts, Deliverables: deliverables}
	for _, deliverable := range deliverables {
		deliverable.VectorID = c.IndexDeliverable(ctx, deliverable)
	}

	metadata := map[string]any{
		"status_update_id": update.ID,
		"project_name":     project.Name,
		"update_type":      update.UpdateType,
		"keywords":         update.Keywords,
		"date":             update.CreatedAt.Format(time.RFC3339),
	}
	receipt.VectorID = c.indexEntity(ctx, semindex.KindStatusUpdate, update.ID, input.Content, metadata, c.store.SetStatusUpdateVectorID)
	receipt.Update.VectorID = receipt.VectorID

	documentsIngested.WithLabelValues("status_update", "ok").Inc()
	c.logger.Info("status update processed",
		zap.String("status_update_id", update.ID),
		zap.String("project_name", project.Name),
		zap.String("update_type", update.UpdateType),
		zap.Bool("fallback", facts.Fallback))

	return receipt, nil
}

// IndexDeliverable upserts a deliverable into the semantic index and writes
// the vector id back. Failures are logged, not returned.
func (c *Coordinator) IndexDeliverable(ctx context.Context, deliverable *store.Deliverable) string {
	text := deliverable.Title
	if deliverable.Description != "" {
		text += "\n\n" + deliverable.Description
	}
	metadata := map[string]any{
		"deliverable_id": deliverable.ID,
		"title":          deliverable.Title,
		"project_name":   deliverable.ProjectName,
		"status":         deliverable.Status,
		"priority":       deliverable.Priority,
	}
	if deliverable.DueDate != nil {
		metadata["due_date"] = deliverable.DueDate.Format(time.RFC3339)
	}
	return c.indexEntity(ctx, semindex.KindDeliverable, deliverable.ID, text, metadata, c.store.SetDeliverableVectorID)
}

// resolveProject finds or creates the project named by a fact record. A
// creation losing the uniqueness race falls back to re-reading by name.
func (c *Coordinator) resolveProject(ctx context.Context, name, company string) (*store.Project, error) {
	if name == "" {
		return nil, nil
	}

	project, err := c.store.ProjectByName(ctx, name)
	if err == nil {
		return project, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("lookup project %q: %w", name, err)
	}

	project, err = c.store.CreateProject(ctx, &store.Project{Name: name, Company: company})
	if errors.Is(err, store.ErrDuplicate) {
		return c.store.ProjectByName(ctx, name)
	}
	if err != nil {
		return nil, fmt.Errorf("create project %q: %w", name, err)
	}
	c.logger.Info("project created from document",
		zap.String("project_id", project.ID),
		zap.String("name", project.Name))
	return project, nil
}

// stageDeliverables creates deliverables for mentions that do not already
// exist under the project, keyed by exact title. A persistence failure
// aborts the enclosing transaction.
func stageDeliverables(ctx context.Context, tx *store.Store, project *store.Project, mentions []extraction.DeliverableMention, status string) ([]*store.Deliverable, error) {
	var created []*store.Deliverable
	for _, mention := range mentions {
		if mention.Title == "" {
			continue
		}
		_, err := tx.DeliverableByTitle(ctx, project.ID, mention.Title)
		if err == nil {
			continue
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("lookup deliverable %q: %w", mention.Title, err)
		}

		deliverable, err := tx.CreateDeliverable(ctx, &store.Deliverable{
			ProjectID:   project.ID,
			ProjectName: project.Name,
			Title:       mention.Title,
			DueDate:     mention.DueDate,
			Status:      status,
		})
		if err != nil {
			return nil, fmt.Errorf("persist deliverable %q: %w", mention.Title, err)
		}
		created = append(created, deliverable)
	}
	return created, nil
}

// stagePeople finds or creates person rows for the names in a record. New
// people inherit the record's company.
func stagePeople(ctx context.Context, tx *store.Store, names []string, company string) error {
	for _, name := range names {
		if _, err := tx.FindOrCreatePerson(ctx, name, "", company); err != nil {
			return fmt.Errorf("persist person %q: %w", name, err)
		}
	}
	return nil
}

// indexEntity upserts one entity into the semantic index and writes the
// vector id back onto its row. Both steps are best-effort.
func (c *Coordinator) indexEntity(ctx context.Context, kind semindex.Kind, entityID, text string, metadata map[string]any, setVectorID func(context.Context, string, string) error) string {
	vectorID, err := c.index.Upsert(ctx, kind, entityID, text, metadata)
	if err != nil {
		indexFailures.Inc()
		c.logger.Warn("semantic index upsert failed",
			zap.String("kind", string(kind)),
			zap.String("entity_id", entityID),
			zap.Error(err))
		return ""
	}
	if err := setVectorID(ctx, entityID, vectorID); err != nil {
		c.logger.Warn("vector id write-back failed",
			zap.String("entity_id", entityID),
			zap.Error(err))
	}
	return vectorID
}
