package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"clientportal/internal/model"
)

type ClientRepository struct {
	db *pgxpool.Pool
}

func NewClientRepository(db *pgxpool.Pool) *ClientRepository {
	return &ClientRepository{db: db}
}

func (r *ClientRepository) Create(ctx context.Context, c *model.Client) error {
	query := `
		INSERT INTO clients (user_id, name, business_name, industry, contact_email, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		RETURNING id, created_at
	`
	err := r.db.QueryRow(ctx, query,
		c.UserID, c.Name, c.BusinessName, c.Industry, c.ContactEmail,
	).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert client: %w", err)
	}
	return nil
}

func (r *ClientRepository) GetByID(ctx context.Context, id int64) (*model.Client, error) {
	query := `
		SELECT id, user_id, name, business_name, industry, contact_email, created_at
		FROM clients
		WHERE id = $1
	`
	var c model.Client
	err := r.db.QueryRow(ctx, query, id).Scan(
		&c.ID, &c.UserID, &c.Name, &c.BusinessName, &c.Industry, &c.ContactEmail, &c.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get client: %w", err)
	}
	return &c, nil
}

func (r *ClientRepository) GetByUserID(ctx context.Context, userID int64) (*model.Client, error) {
	query := `
		SELECT id, user_id, name, business_name, industry, contact_email, created_at
		FROM clients
		WHERE user_id = $1
	`
	var c model.Client
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&c.ID, &c.UserID, &c.Name, &c.BusinessName, &c.Industry, &c.ContactEmail, &c.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get client by user: %w", err)
	}
	return &c, nil
}
