package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const defaultEmailLimit = 20

const emailColumns = `e.id, e.subject, e.sender, e.recipients, e.cc, e.content,
	e.summary, e.keywords, e.people_mentioned, e.project_id, p.name,
	e.importance, e.received_date, e.processed_at, e.vector_id`

// CreateEmail inserts a processed email. Missing ReceivedDate and
// ProcessedAt default to now; missing Importance defaults to normal.
func (s *Store) CreateEmail(ctx context.Context, email *Email) (*Email, error) {
	if email == nil || email.Sender == "" || email.Content == "" {
		return nil, fmt.Errorf("sender and content are required: %w", ErrInvalidInput)
	}

	now := time.Now().UTC()
	stored := *email
	stored.ID = uuid.New().String()
	if stored.Importance == "" {
		stored.Importance = "normal"
	}
	if stored.ReceivedDate.IsZero() {
		stored.ReceivedDate = now
	}
	stored.ProcessedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO emails (id, subject, sender, recipients, cc, content,
			summary, keywords, people_mentioned, project_id, importance,
			received_date, processed_at, vector_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		stored.ID, nullable(stored.Subject), stored.Sender,
		encodeList(stored.Recipients), encodeList(stored.CC), stored.Content,
		nullable(stored.Summary), encodeList(stored.Keywords),
		encodeList(stored.PeopleMentioned), nullable(stored.ProjectID),
		stored.Importance, encodeTime(stored.ReceivedDate),
		encodeTime(stored.ProcessedAt), nullable(stored.VectorID))
	if err != nil {
		return nil, wrapConstraint(err, "create email")
	}

	s.logger.Debug("email stored",
		zap.String("id", stored.ID),
		zap.String("project_id", stored.ProjectID))

	return &stored, nil
}

// GetEmail fetches a single email by id.
func (s *Store) GetEmail(ctx context.Context, id string) (*Email, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+emailColumns+`
		FROM emails e LEFT JOIN projects p ON p.id = e.project_id
		WHERE e.id = ?`, id)
	return scanEmail(row)
}

// ListEmails returns emails newest first, optionally filtered by project
// and importance. A zero Limit applies the default of 20.
func (s *Store) ListEmails(ctx context.Context, filter EmailFilter) ([]*Email, error) {
	query := `
		SELECT ` + emailColumns + `
		FROM emails e LEFT JOIN projects p ON p.id = e.project_id
		WHERE 1=1`
	var args []any
	if filter.ProjectID != "" {
		query += ` AND e.project_id = ?`
		args = append(args, filter.ProjectID)
	}
	if filter.Importance != "" {
		query += ` AND e.importance = ?`
		args = append(args, filter.Importance)
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultEmailLimit
	}
	query += ` ORDER BY e.received_date DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list emails: %w", err)
	}
	defer rows.Close()

	var emails []*Email
	for rows.Next() {
		email, err := scanEmail(rows)
		if err != nil {
			return nil, err
		}
		emails = append(emails, email)
	}
	return emails, rows.Err()
}

// SetEmailVectorID records the semantic-index id for an email after
// indexing succeeds.
func (s *Store) SetEmailVectorID(ctx context.Context, id, vectorID string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE emails SET vector_id = ? WHERE id = ?`, vectorID, id)
	if err != nil {
		return fmt.Errorf("set email vector id: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("email %s: %w", id, ErrNotFound)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEmail(row scanner) (*Email, error) {
	var (
		email                            Email
		subject, summary, projectID      sql.NullString
		projectName, vectorID            sql.NullString
		recipients, cc, keywords, people sql.NullString
		receivedDate, processedAt        string
	)
	err := row.Scan(&email.ID, &subject, &email.Sender, &recipients, &cc,
		&email.Content, &summary, &keywords, &people, &projectID,
		&projectName, &email.Importance, &receivedDate, &processedAt,
		&vectorID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("email: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan email: %w", err)
	}
	email.Subject = subject.String
	email.Summary = summary.String
	email.ProjectID = projectID.String
	email.ProjectName = projectName.String
	email.VectorID = vectorID.String
	email.Recipients = decodeList(recipients)
	email.CC = decodeList(cc)
	email.Keywords = decodeList(keywords)
	email.PeopleMentioned = decodeList(people)
	email.ReceivedDate = decodeTime(receivedDate)
	email.ProcessedAt = decodeTime(processedAt)
	return &email, nil
}
