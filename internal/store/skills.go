package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Skill is one row of the skills table: a named procedure the
// MemoryStore's procedural-memory flavor executes by name.
type Skill struct {
	Name        string
	Code        string
	Description string
	SuccessRate float64
	UsageCount  int
	CreatedAt   time.Time
}

// UpsertSkill writes or overwrites a skill by name using INSERT OR REPLACE.
func (s *Store) UpsertSkill(ctx context.Context, sk Skill) error {
	if sk.CreatedAt.IsZero() {
		sk.CreatedAt = time.Now().UTC()
	}
	return s.withWrite(func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT OR REPLACE INTO skills (name, code, description, success_rate, usage_count, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, sk.Name, sk.Code, sk.Description, sk.SuccessRate, sk.UsageCount, sk.CreatedAt)
		if err != nil {
			return fmt.Errorf("upsert skill %q: %w", sk.Name, err)
		}
		return nil
	})
}

// GetSkill returns the skill registered under name.
func (s *Store) GetSkill(ctx context.Context, name string) (Skill, error) {
	var sk Skill
	err := s.db.QueryRowContext(ctx, `
		SELECT name, code, description, success_rate, usage_count, created_at
		FROM skills WHERE name = ?
	`, name).Scan(&sk.Name, &sk.Code, &sk.Description, &sk.SuccessRate, &sk.UsageCount, &sk.CreatedAt)
	if err == sql.ErrNoRows {
		return Skill{}, ErrNotFound
	}
	if err != nil {
		return Skill{}, fmt.Errorf("get skill %q: %w", name, err)
	}
	return sk, nil
}

// RecordSkillUsage increments usage_count and sets success_rate to the
// supplied running value.
func (s *Store) RecordSkillUsage(ctx context.Context, name string, successRate float64) error {
	return s.withWrite(func() error {
		res, err := s.db.ExecContext(ctx, `
			UPDATE skills SET usage_count = usage_count + 1, success_rate = ?
			WHERE name = ?
		`, successRate, name)
		if err != nil {
			return fmt.Errorf("record skill usage %q: %w", name, err)
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// ListSkills returns every registered skill.
func (s *Store) ListSkills(ctx context.Context) ([]Skill, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, code, description, success_rate, usage_count, created_at FROM skills
	`)
	if err != nil {
		return nil, fmt.Errorf("list skills: %w", err)
	}
	defer rows.Close()

	var out []Skill
	for rows.Next() {
		var sk Skill
		if err := rows.Scan(&sk.Name, &sk.Code, &sk.Description, &sk.SuccessRate, &sk.UsageCount, &sk.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan skill: %w", err)
		}
		out = append(out, sk)
	}
	return out, rows.Err()
}
