package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"clientportal/internal/model"
	"clientportal/pkg/metrics"
)

type ProjectRepository struct {
	db *pgxpool.Pool
}

func NewProjectRepository(db *pgxpool.Pool) *ProjectRepository {
	return &ProjectRepository{db: db}
}

func (r *ProjectRepository) Create(ctx context.Context, p *model.Project) error {
	query := `
		INSERT INTO projects (client_id, name, status, progression_percentage, total_project_amount, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		p.ClientID, p.Name, p.Status, p.ProgressionPercentage, p.TotalProjectAmount,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert project: %w", err)
	}
	return nil
}

func (r *ProjectRepository) GetByID(ctx context.Context, id int64) (*model.Project, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQueryDuration("select", "projects", time.Since(start)) }()

	query := `
		SELECT id, client_id, name, status, progression_percentage, total_project_amount, created_at, updated_at
		FROM projects
		WHERE id = $1
	`
	var p model.Project
	err := r.db.QueryRow(ctx, query, id).Scan(
		&p.ID, &p.ClientID, &p.Name, &p.Status,
		&p.ProgressionPercentage, &p.TotalProjectAmount,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return &p, nil
}

func (r *ProjectRepository) ListByClient(ctx context.Context, clientID int64) ([]*model.Project, error) {
	query := `
		SELECT id, client_id, name, status, progression_percentage, total_project_amount, created_at, updated_at
		FROM projects
		WHERE client_id = $1
		ORDER BY created_at DESC
	`
	rows, err := r.db.Query(ctx, query, clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	var projects []*model.Project
	for rows.Next() {
		var p model.Project
		if err := rows.Scan(
			&p.ID, &p.ClientID, &p.Name, &p.Status,
			&p.ProgressionPercentage, &p.TotalProjectAmount,
			&p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		projects = append(projects, &p)
	}
	return projects, rows.Err()
}

// UpdateProgression persists the new percentage and resolved total with a
// compare-and-swap on the previous percentage. A zero row count means the
// caller's baseline is stale and no write happened.
func (r *ProjectRepository) UpdateProgression(ctx context.Context, id int64, newPct int, total decimal.Decimal, expectedPct int) error {
	start := time.Now()
	defer func() { metrics.RecordDBQueryDuration("update", "projects", time.Since(start)) }()

	query := `
		UPDATE projects
		SET progression_percentage = $1, total_project_amount = $2, updated_at = NOW()
		WHERE id = $3 AND progression_percentage = $4
	`
	tag, err := r.db.Exec(ctx, query, newPct, total, id, expectedPct)
	if err != nil {
		return fmt.Errorf("failed to update progression: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrStaleProgression
	}
	return nil
}

// MarkCompleted flips the project status once progression hits 100.
func (r *ProjectRepository) MarkCompleted(ctx context.Context, id int64) error {
	query := `
		UPDATE projects
		SET status = $1, updated_at = NOW()
		WHERE id = $2
	`
	_, err := r.db.Exec(ctx, query, model.ProjectStatusCompleted, id)
	if err != nil {
		return fmt.Errorf("failed to mark project completed: %w", err)
	}
	return nil
}
