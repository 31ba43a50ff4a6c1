package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CreateStatusUpdate inserts a progress note for a project.
func (s *Store) CreateStatusUpdate(ctx context.Context, update *StatusUpdate) (*StatusUpdate, error) {
	if update == nil || update.ProjectID == "" || update.Content == "" {
		return nil, fmt.Errorf("project_id and content are required: %w", ErrInvalidInput)
	}

	stored := *update
	stored.ID = uuid.New().String()
	if stored.UpdateType == "" {
		stored.UpdateType = "general"
	}
	stored.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO status_updates (id, project_id, content, update_type,
			keywords, created_by, created_at, vector_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		stored.ID, stored.ProjectID, stored.Content, stored.UpdateType,
		encodeList(stored.Keywords), nullable(stored.CreatedBy),
		encodeTime(stored.CreatedAt), nullable(stored.VectorID))
	if err != nil {
		return nil, wrapConstraint(err, "create status update")
	}

	s.logger.Debug("status update stored",
		zap.String("id", stored.ID),
		zap.String("project_id", stored.ProjectID),
		zap.String("update_type", stored.UpdateType))

	return &stored, nil
}

// ListStatusUpdates returns updates newest first, optionally scoped to one
// project.
func (s *Store) ListStatusUpdates(ctx context.Context, projectID string) ([]*StatusUpdate, error) {
	query := `
		SELECT u.id, u.project_id, p.name, u.content, u.update_type,
			u.keywords, u.created_by, u.created_at, u.vector_id
		FROM status_updates u LEFT JOIN projects p ON p.id = u.project_id`
	var args []any
	if projectID != "" {
		query += ` WHERE u.project_id = ?`
		args = append(args, projectID)
	}
	query += ` ORDER BY u.created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list status updates: %w", err)
	}
	defer rows.Close()

	var updates []*StatusUpdate
	for rows.Next() {
		update, err := scanStatusUpdate(rows)
		if err != nil {
			return nil, err
		}
		updates = append(updates, update)
	}
	return updates, rows.Err()
}

// SetStatusUpdateVectorID records the semantic-index id for an update.
func (s *Store) SetStatusUpdateVectorID(ctx context.Context, id, vectorID string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE status_updates SET vector_id = ? WHERE id = ?`, vectorID, id)
	if err != nil {
		return fmt.Errorf("set status update vector id: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("status update %s: %w", id, ErrNotFound)
	}
	return nil
}

func scanStatusUpdate(row scanner) (*StatusUpdate, error) {
	var (
		update                        StatusUpdate
		projectName, updateType       sql.NullString
		keywords, createdBy, vectorID sql.NullString
		createdAt                     string
	)
	err := row.Scan(&update.ID, &update.ProjectID, &projectName,
		&update.Content, &updateType, &keywords, &createdBy, &createdAt,
		&vectorID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("status update: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan status update: %w", err)
	}
	update.ProjectName = projectName.String
	update.UpdateType = updateType.String
	update.Keywords = decodeList(keywords)
	update.CreatedBy = createdBy.String
	update.CreatedAt = decodeTime(createdAt)
	update.VectorID = vectorID.String
	return &update, nil
}
