package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"clientportal/internal/model"
)

type NegotiationRepository struct {
	db *pgxpool.Pool
}

func NewNegotiationRepository(db *pgxpool.Pool) *NegotiationRepository {
	return &NegotiationRepository{db: db}
}

// LatestAccepted returns the most recent accepted total-price negotiation for
// a project, or ErrNotFound when none exists.
func (r *NegotiationRepository) LatestAccepted(ctx context.Context, projectID int64) (*model.Negotiation, error) {
	query := `
		SELECT id, project_id, proposed_total, status, created_at
		FROM negotiations
		WHERE project_id = $1 AND status = $2
		ORDER BY created_at DESC
		LIMIT 1
	`
	var n model.Negotiation
	err := r.db.QueryRow(ctx, query, projectID, model.NegotiationStatusAccepted).Scan(
		&n.ID, &n.ProjectID, &n.ProposedTotal, &n.Status, &n.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get accepted negotiation: %w", err)
	}
	return &n, nil
}

func (r *NegotiationRepository) Create(ctx context.Context, n *model.Negotiation) error {
	query := `
		INSERT INTO negotiations (project_id, proposed_total, status, created_at)
		VALUES ($1, $2, $3, NOW())
		RETURNING id, created_at
	`
	err := r.db.QueryRow(ctx, query, n.ProjectID, n.ProposedTotal, n.Status).Scan(&n.ID, &n.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert negotiation: %w", err)
	}
	return nil
}
