package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CreateProject inserts a new project. A duplicate name returns
// ErrDuplicate; explicit creation does not silently reuse existing rows.
func (s *Store) CreateProject(ctx context.Context, p *Project) (*Project, error) {
	if p == nil || strings.TrimSpace(p.Name) == "" {
		return nil, fmt.Errorf("project name is required: %w", ErrInvalidInput)
	}

	now := time.Now()
	created := &Project{
		ID:          uuid.New().String(),
		Name:        strings.TrimSpace(p.Name),
		Company:     p.Company,
		Description: p.Description,
		Status:      p.Status,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if created.Status == "" {
		created.Status = ProjectActive
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO projects (id, name, company, description, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		created.ID, created.Name, nullable(created.Company), nullable(created.Description),
		created.Status, encodeTime(now), encodeTime(now),
	)
	if err != nil {
		return nil, wrapConstraint(err, fmt.Sprintf("insert project %q", created.Name))
	}
	return created, nil
}

// GetProject fetches a project by id.
func (s *Store) GetProject(ctx context.Context, id string) (*Project, error) {
	return s.scanProject(s.db.QueryRowContext(ctx,
		`SELECT id, name, company, description, status, created_at, updated_at
		 FROM projects WHERE id = ?`, id))
}

// ProjectByName fetches a project by exact name.
func (s *Store) ProjectByName(ctx context.Context, name string) (*Project, error) {
	return s.scanProject(s.db.QueryRowContext(ctx,
		`SELECT id, name, company, description, status, created_at, updated_at
		 FROM projects WHERE name = ?`, name))
}

// ListProjects returns all projects ordered by name.
func (s *Store) ListProjects(ctx context.Context) ([]Project, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, company, description, status, created_at, updated_at
		 FROM projects ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("query projects: %w", err)
	}
	defer rows.Close()

	var projects []Project
	for rows.Next() {
		var p Project
		var company, description sql.NullString
		var createdAt, updatedAt string
		if err := rows.Scan(&p.ID, &p.Name, &company, &description, &p.Status, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		p.Company = company.String
		p.Description = description.String
		p.CreatedAt = decodeTime(createdAt)
		p.UpdatedAt = decodeTime(updatedAt)
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// UpdateProject mutates the given fields and bumps updated_at.
func (s *Store) UpdateProject(ctx context.Context, id string, update ProjectUpdate) (*Project, error) {
	current, err := s.GetProject(ctx, id)
	if err != nil {
		return nil, err
	}

	if update.Name != nil {
		current.Name = *update.Name
	}
	if update.Company != nil {
		current.Company = *update.Company
	}
	if update.Description != nil {
		current.Description = *update.Description
	}
	if update.Status != nil {
		current.Status = *update.Status
	}
	current.UpdatedAt = time.Now()

	_, err = s.db.ExecContext(ctx,
		`UPDATE projects SET name = ?, company = ?, description = ?, status = ?, updated_at = ?
		 WHERE id = ?`,
		current.Name, nullable(current.Company), nullable(current.Description),
		current.Status, encodeTime(current.UpdatedAt), id,
	)
	if err != nil {
		return nil, wrapConstraint(err, fmt.Sprintf("update project %s", id))
	}
	return current, nil
}

// OwnedRows lists the ids of a project's dependent rows. Callers use it to
// remove semantic-index entries when deleting a project.
type OwnedRows struct {
	EmailIDs        []string
	StatusUpdateIDs []string
	DeliverableIDs  []string
}

// DeleteProject removes a project and its owned rows in one transaction and
// returns the deleted row ids. Callers must delete the corresponding
// semantic-index entries in the same logical operation so no vector entry
// is silently orphaned.
func (s *Store) DeleteProject(ctx context.Context, id string) (*OwnedRows, error) {
	owned := &OwnedRows{}
	err := s.WithTx(ctx, func(tx *Store) error {
		for _, q := range []struct {
			query string
			dest  *[]string
		}{
			{`SELECT id FROM emails WHERE project_id = ?`, &owned.EmailIDs},
			{`SELECT id FROM status_updates WHERE project_id = ?`, &owned.StatusUpdateIDs},
			{`SELECT id FROM deliverables WHERE project_id = ?`, &owned.DeliverableIDs},
		} {
			rows, err := tx.db.QueryContext(ctx, q.query, id)
			if err != nil {
				return fmt.Errorf("query owned rows: %w", err)
			}
			for rows.Next() {
				var rowID string
				if err := rows.Scan(&rowID); err != nil {
					rows.Close()
					return fmt.Errorf("scan owned row: %w", err)
				}
				*q.dest = append(*q.dest, rowID)
			}
			if err := rows.Err(); err != nil {
				rows.Close()
				return err
			}
			rows.Close()
		}

		for _, stmt := range []string{
			`DELETE FROM emails WHERE project_id = ?`,
			`DELETE FROM status_updates WHERE project_id = ?`,
			`DELETE FROM deliverables WHERE project_id = ?`,
		} {
			if _, err := tx.db.ExecContext(ctx, stmt, id); err != nil {
				return fmt.Errorf("delete owned rows: %w", err)
			}
		}

		result, err := tx.db.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("delete project %s: %w", id, err)
		}
		n, _ := result.RowsAffected()
		if n == 0 {
			return fmt.Errorf("project %s: %w", id, ErrNotFound)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return owned, nil
}

// scanProject reads one project row.
func (s *Store) scanProject(row *sql.Row) (*Project, error) {
	var p Project
	var company, description sql.NullString
	var createdAt, updatedAt string
	err := row.Scan(&p.ID, &p.Name, &company, &description, &p.Status, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan project: %w", err)
	}
	p.Company = company.String
	p.Description = description.String
	p.CreatedAt = decodeTime(createdAt)
	p.UpdatedAt = decodeTime(updatedAt)
	return &p, nil
}
