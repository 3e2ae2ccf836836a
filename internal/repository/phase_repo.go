package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"clientportal/internal/model"
)

type PhaseRepository struct {
	db *pgxpool.Pool
}

func NewPhaseRepository(db *pgxpool.Pool) *PhaseRepository {
	return &PhaseRepository{db: db}
}

func (r *PhaseRepository) ListByProject(ctx context.Context, projectID int64) ([]*model.Phase, error) {
	query := `
		SELECT id, project_id, name, admin_proposed_price, final_agreed_price, sort_order
		FROM phases
		WHERE project_id = $1
		ORDER BY sort_order ASC
	`
	rows, err := r.db.Query(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list phases: %w", err)
	}
	defer rows.Close()

	var phases []*model.Phase
	for rows.Next() {
		var p model.Phase
		if err := rows.Scan(
			&p.ID, &p.ProjectID, &p.Name,
			&p.AdminProposedPrice, &p.FinalAgreedPrice, &p.SortOrder,
		); err != nil {
			return nil, fmt.Errorf("failed to scan phase: %w", err)
		}
		phases = append(phases, &p)
	}
	return phases, rows.Err()
}

func (r *PhaseRepository) Create(ctx context.Context, p *model.Phase) error {
	query := `
		INSERT INTO phases (project_id, name, admin_proposed_price, final_agreed_price, sort_order)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`
	err := r.db.QueryRow(ctx, query,
		p.ProjectID, p.Name, p.AdminProposedPrice, p.FinalAgreedPrice, p.SortOrder,
	).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("failed to insert phase: %w", err)
	}
	return nil
}
