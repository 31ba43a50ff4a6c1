package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// FindOrCreatePerson looks a person up by exact name and creates the row
// when absent. A lost creation race falls back to re-reading.
func (s *Store) FindOrCreatePerson(ctx context.Context, name, email, company string) (*Person, error) {
	if name == "" {
		return nil, fmt.Errorf("name is required: %w", ErrInvalidInput)
	}

	person, err := s.personByName(ctx, name)
	if err == nil {
		return person, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	person = &Person{
		ID:        uuid.New().String(),
		Name:      name,
		Email:     email,
		Company:   company,
		CreatedAt: time.Now().UTC(),
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO people (id, name, email, company, role, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		person.ID, person.Name, nullable(person.Email),
		nullable(person.Company), nil, encodeTime(person.CreatedAt))
	if err != nil {
		wrapped := wrapConstraint(err, "create person")
		if errors.Is(wrapped, ErrDuplicate) {
			return s.personByName(ctx, name)
		}
		return nil, wrapped
	}
	return person, nil
}

// ListPeople returns everyone known, ordered by name.
func (s *Store) ListPeople(ctx context.Context) ([]*Person, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, email, company, role, created_at
		FROM people ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list people: %w", err)
	}
	defer rows.Close()

	var people []*Person
	for rows.Next() {
		person, err := scanPerson(rows)
		if err != nil {
			return nil, err
		}
		people = append(people, person)
	}
	return people, rows.Err()
}

func (s *Store) personByName(ctx context.Context, name string) (*Person, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, email, company, role, created_at
		FROM people WHERE name = ?`, name)
	return scanPerson(row)
}

func scanPerson(row scanner) (*Person, error) {
	var (
		person               Person
		email, company, role sql.NullString
		createdAt            string
	)
	err := row.Scan(&person.ID, &person.Name, &email, &company, &role, &createdAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("person: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan person: %w", err)
	}
	person.Email = email.String
	person.Company = company.String
	person.Role = role.String
	person.CreatedAt = decodeTime(createdAt)
	return &person, nil
}
