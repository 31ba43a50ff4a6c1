package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const deliverableColumns = `d.id, d.project_id, p.name, d.title,
	d.description, d.due_date, d.status, d.priority, d.assigned_to,
	d.completed_at, d.created_at, d.updated_at, d.vector_id`

// CreateDeliverable inserts a tracked output. Missing Status defaults to
// pending and missing Priority to medium.
func (s *Store) CreateDeliverable(ctx context.Context, deliverable *Deliverable) (*Deliverable, error) {
	if deliverable == nil || deliverable.ProjectID == "" || deliverable.Title == "" {
		return nil, fmt.Errorf("project_id and title are required: %w", ErrInvalidInput)
	}

	now := time.Now().UTC()
	stored := *deliverable
	stored.ID = uuid.New().String()
	if stored.Status == "" {
		stored.Status = DeliverablePending
	}
	if stored.Priority == "" {
		stored.Priority = PriorityMedium
	}
	stored.CreatedAt = now
	stored.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO deliverables (id, project_id, title, description,
			due_date, status, priority, assigned_to, completed_at,
			created_at, updated_at, vector_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		stored.ID, stored.ProjectID, stored.Title,
		nullable(stored.Description), encodeTimePtr(stored.DueDate),
		stored.Status, stored.Priority, nullable(stored.AssignedTo),
		encodeTimePtr(stored.CompletedAt), encodeTime(stored.CreatedAt),
		encodeTime(stored.UpdatedAt), nullable(stored.VectorID))
	if err != nil {
		return nil, wrapConstraint(err, "create deliverable")
	}

	s.logger.Debug("deliverable stored",
		zap.String("id", stored.ID),
		zap.String("project_id", stored.ProjectID),
		zap.String("title", stored.Title))

	return &stored, nil
}

// GetDeliverable fetches a single deliverable by id.
func (s *Store) GetDeliverable(ctx context.Context, id string) (*Deliverable, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+deliverableColumns+`
		FROM deliverables d LEFT JOIN projects p ON p.id = d.project_id
		WHERE d.id = ?`, id)
	return scanDeliverable(row)
}

// DeliverableByTitle fetches a deliverable by exact title within a project.
// Ingestion uses it to avoid creating duplicate deliverables from repeated
// mentions.
func (s *Store) DeliverableByTitle(ctx context.Context, projectID, title string) (*Deliverable, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+deliverableColumns+`
		FROM deliverables d LEFT JOIN projects p ON p.id = d.project_id
		WHERE d.project_id = ? AND d.title = ?`, projectID, title)
	return scanDeliverable(row)
}

// ListDeliverables returns deliverables ordered by due date (undated last),
// optionally filtered by project, status, and an upcoming-due window. The
// window is inclusive on both ends and excludes completed items.
func (s *Store) ListDeliverables(ctx context.Context, filter DeliverableFilter) ([]*Deliverable, error) {
	query := `
		SELECT ` + deliverableColumns + `
		FROM deliverables d LEFT JOIN projects p ON p.id = d.project_id
		WHERE 1=1`
	var args []any
	if filter.ProjectID != "" {
		query += ` AND d.project_id = ?`
		args = append(args, filter.ProjectID)
	}
	if filter.Status != "" {
		query += ` AND d.status = ?`
		args = append(args, filter.Status)
	}
	if filter.DueWithinDays > 0 {
		now := time.Now().UTC()
		query += ` AND d.due_date IS NOT NULL AND d.due_date >= ? AND d.due_date <= ? AND d.status != ?`
		args = append(args,
			encodeTime(now),
			encodeTime(now.AddDate(0, 0, filter.DueWithinDays)),
			DeliverableCompleted)
	}
	query += ` ORDER BY d.due_date IS NULL, d.due_date ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list deliverables: %w", err)
	}
	defer rows.Close()

	var deliverables []*Deliverable
	for rows.Next() {
		deliverable, err := scanDeliverable(rows)
		if err != nil {
			return nil, err
		}
		deliverables = append(deliverables, deliverable)
	}
	return deliverables, rows.Err()
}

// UpdateDeliverable applies non-nil fields and bumps updated_at. Setting
// Status to completed records completed_at; moving it back clears it.
func (s *Store) UpdateDeliverable(ctx context.Context, id string, update DeliverableUpdate) (*Deliverable, error) {
	deliverable, err := s.GetDeliverable(ctx, id)
	if err != nil {
		return nil, err
	}

	if update.Title != nil {
		deliverable.Title = *update.Title
	}
	if update.Description != nil {
		deliverable.Description = *update.Description
	}
	if update.DueDate != nil {
		deliverable.DueDate = update.DueDate
	}
	if update.Status != nil {
		deliverable.Status = *update.Status
		if deliverable.Status == DeliverableCompleted {
			if deliverable.CompletedAt == nil {
				now := time.Now().UTC()
				deliverable.CompletedAt = &now
			}
		} else {
			deliverable.CompletedAt = nil
		}
	}
	if update.Priority != nil {
		deliverable.Priority = *update.Priority
	}
	if update.AssignedTo != nil {
		deliverable.AssignedTo = *update.AssignedTo
	}
	deliverable.UpdatedAt = time.Now().UTC()

	_, err = s.db.ExecContext(ctx, `
		UPDATE deliverables
		SET title = ?, description = ?, due_date = ?, status = ?,
			priority = ?, assigned_to = ?, completed_at = ?, updated_at = ?
		WHERE id = ?`,
		deliverable.Title, nullable(deliverable.Description),
		encodeTimePtr(deliverable.DueDate), deliverable.Status,
		deliverable.Priority, nullable(deliverable.AssignedTo),
		encodeTimePtr(deliverable.CompletedAt),
		encodeTime(deliverable.UpdatedAt), id)
	if err != nil {
		return nil, fmt.Errorf("update deliverable %s: %w", id, err)
	}
	return deliverable, nil
}

// DeleteDeliverable removes a deliverable row. Callers must delete the
// corresponding semantic-index entry in the same logical operation.
func (s *Store) DeleteDeliverable(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM deliverables WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete deliverable %s: %w", id, err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("deliverable %s: %w", id, ErrNotFound)
	}
	return nil
}

// SetDeliverableVectorID records the semantic-index id for a deliverable.
func (s *Store) SetDeliverableVectorID(ctx context.Context, id, vectorID string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE deliverables SET vector_id = ? WHERE id = ?`, vectorID, id)
	if err != nil {
		return fmt.Errorf("set deliverable vector id: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("deliverable %s: %w", id, ErrNotFound)
	}
	return nil
}

func scanDeliverable(row scanner) (*Deliverable, error) {
	var (
		deliverable          Deliverable
		projectName, desc    sql.NullString
		assignedTo, vectorID sql.NullString
		dueDate, completedAt sql.NullString
		createdAt, updatedAt string
	)
	err := row.Scan(&deliverable.ID, &deliverable.ProjectID, &projectName,
		&deliverable.Title, &desc, &dueDate, &deliverable.Status,
		&deliverable.Priority, &assignedTo, &completedAt, &createdAt,
		&updatedAt, &vectorID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("deliverable: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan deliverable: %w", err)
	}
	deliverable.ProjectName = projectName.String
	deliverable.Description = desc.String
	deliverable.AssignedTo = assignedTo.String
	deliverable.VectorID = vectorID.String
	deliverable.DueDate = decodeTimePtr(dueDate)
	deliverable.CompletedAt = decodeTimePtr(completedAt)
	deliverable.CreatedAt = decodeTime(createdAt)
	deliverable.UpdatedAt = decodeTime(updatedAt)
	return &deliverable, nil
}
