package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/personaforge/personaforge/internal/storage"
	"github.com/personaforge/personaforge/pkg/types"
)

// CreatePersona persists a new persona.
func (s *Store) CreatePersona(ctx context.Context, persona *types.Persona) error {
	if persona == nil {
		return storage.ErrInvalidInput
	}
	if persona.ID == "" {
		return fmt.Errorf("%w: persona ID is required", storage.ErrInvalidInput)
	}

	now := time.Now().UTC()
	if persona.CreatedAt.IsZero() {
		persona.CreatedAt = now
	}
	persona.UpdatedAt = now

	lists, err := marshalPersonaLists(persona)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO personas (
			id, name, professional_summary,
			goals, life_experiences, qualifications_and_education,
			skills, strengths, value_proposition, development_plans,
			raw_text, parse_tier, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		persona.ID, persona.Name, persona.ProfessionalSummary,
		lists[0], lists[1], lists[2], lists[3], lists[4], lists[5], lists[6],
		persona.RawText, string(persona.ParseTier), persona.CreatedAt, persona.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert persona: %w", err)
	}
	return nil
}

// GetPersona retrieves a persona by ID.
func (s *Store) GetPersona(ctx context.Context, id string) (*types.Persona, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: persona ID is required", storage.ErrInvalidInput)
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, professional_summary,
			goals, life_experiences, qualifications_and_education,
			skills, strengths, value_proposition, development_plans,
			raw_text, parse_tier, created_at, updated_at
		FROM personas WHERE id = ?
	`, id)

	return scanPersona(row)
}

// UpdatePersona applies a partial update: non-zero fields of update overwrite the
// stored persona, everything else is preserved. Read-merge-write runs on the
// store's single write connection, so concurrent updates serialize.
func (s *Store) UpdatePersona(ctx context.Context, id string, update *types.Persona) (*types.Persona, error) {
	if update == nil {
		return nil, storage.ErrInvalidInput
	}

	current, err := s.GetPersona(ctx, id)
	if err != nil {
		return nil, err
	}

	current.Merge(update)
	current.UpdatedAt = time.Now().UTC()

	lists, err := marshalPersonaLists(current)
	if err != nil {
		return nil, err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE personas SET
			name = ?, professional_summary = ?,
			goals = ?, life_experiences = ?, qualifications_and_education = ?,
			skills = ?, strengths = ?, value_proposition = ?, development_plans = ?,
			raw_text = ?, parse_tier = ?, updated_at = ?
		WHERE id = ?
	`,
		current.Name, current.ProfessionalSummary,
		lists[0], lists[1], lists[2], lists[3], lists[4], lists[5], lists[6],
		current.RawText, string(current.ParseTier), current.UpdatedAt, id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update persona: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return nil, storage.ErrNotFound
	}
	return current, nil
}

// ListPersonas returns persona summaries, most recently created first.
func (s *Store) ListPersonas(ctx context.Context, opts storage.ListOptions) ([]types.PersonaSummary, error) {
	opts.Normalize()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, created_at
		FROM personas
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?
	`, opts.Limit, opts.Offset())
	if err != nil {
		return nil, fmt.Errorf("failed to list personas: %w", err)
	}
	defer rows.Close()

	summaries := []types.PersonaSummary{}
	for rows.Next() {
		var s types.PersonaSummary
		if err := rows.Scan(&s.ID, &s.Name, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan persona summary: %w", err)
		}
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate personas: %w", err)
	}
	return summaries, nil
}

// DeletePersona removes a persona by ID.
func (s *Store) DeletePersona(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("%w: persona ID is required", storage.ErrInvalidInput)
	}

	result, err := s.db.ExecContext(ctx, `DELETE FROM personas WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete persona: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// marshalPersonaLists encodes the persona's list fields as JSON in a fixed
// order: goals, life experiences, qualifications, skills, strengths, value
// proposition, development plans. Nil slices encode as SQL NULL.
func marshalPersonaLists(p *types.Persona) ([7][]byte, error) {
	var out [7][]byte
	fields := [][]string{
		p.Goals, p.LifeExperiences, p.QualificationsAndEducation,
		p.Skills, p.Strengths, p.ValueProposition, p.DevelopmentPlans,
	}
	for i, f := range fields {
		if f == nil {
			continue
		}
		data, err := json.Marshal(f)
		if err != nil {
			return out, fmt.Errorf("failed to marshal persona list field: %w", err)
		}
		out[i] = data
	}
	return out, nil
}

// scanPersona reads one persona row, decoding the JSON list columns.
func scanPersona(row *sql.Row) (*types.Persona, error) {
	var p types.Persona
	var tier string
	var lists [7]sql.NullString

	err := row.Scan(
		&p.ID, &p.Name, &p.ProfessionalSummary,
		&lists[0], &lists[1], &lists[2], &lists[3], &lists[4], &lists[5], &lists[6],
		&p.RawText, &tier, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan persona: %w", err)
	}

	p.ParseTier = types.ParseTier(tier)

	targets := []*[]string{
		&p.Goals, &p.LifeExperiences, &p.QualificationsAndEducation,
		&p.Skills, &p.Strengths, &p.ValueProposition, &p.DevelopmentPlans,
	}
	for i, col := range lists {
		if !col.Valid || col.String == "" {
			continue
		}
		if err := json.Unmarshal([]byte(col.String), targets[i]); err != nil {
			return nil, fmt.Errorf("failed to unmarshal persona list field: %w", err)
		}
	}
	return &p, nil
}
