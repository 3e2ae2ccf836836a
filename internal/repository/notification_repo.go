package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"clientportal/internal/model"
)

type NotificationRepository struct {
	db *pgxpool.Pool
}

func NewNotificationRepository(db *pgxpool.Pool) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// InsertInTx 在事务中写入通知记录（与 outbox 事件同一事务）
func (r *NotificationRepository) InsertInTx(ctx context.Context, tx pgx.Tx, n *model.Notification) error {
	query := `
		INSERT INTO notifications (recipients, subject, template_name, template_data, status, dedupe_key, attempts, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, 0, NOW())
		RETURNING id, created_at
	`
	err := tx.QueryRow(ctx, query,
		n.Recipients, n.Subject, n.TemplateName, n.TemplateData, n.Status, n.DedupeKey,
	).Scan(&n.ID, &n.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert notification: %w", err)
	}
	return nil
}

func (r *NotificationRepository) GetByID(ctx context.Context, id int64) (*model.Notification, error) {
	query := `
		SELECT id, recipients, subject, template_name, template_data, status, dedupe_key, attempts, created_at, sent_at
		FROM notifications
		WHERE id = $1
	`
	var n model.Notification
	err := r.db.QueryRow(ctx, query, id).Scan(
		&n.ID, &n.Recipients, &n.Subject, &n.TemplateName, &n.TemplateData,
		&n.Status, &n.DedupeKey, &n.Attempts, &n.CreatedAt, &n.SentAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get notification: %w", err)
	}
	return &n, nil
}

func (r *NotificationRepository) MarkSent(ctx context.Context, id int64, sentAt time.Time) error {
	query := `
		UPDATE notifications
		SET status = $1, sent_at = $2, attempts = attempts + 1
		WHERE id = $3
	`
	_, err := r.db.Exec(ctx, query, model.NotificationStatusSent, sentAt, id)
	if err != nil {
		return fmt.Errorf("failed to mark notification sent: %w", err)
	}
	return nil
}

func (r *NotificationRepository) MarkFailed(ctx context.Context, id int64) error {
	query := `
		UPDATE notifications
		SET status = $1, attempts = attempts + 1
		WHERE id = $2
	`
	_, err := r.db.Exec(ctx, query, model.NotificationStatusFailed, id)
	if err != nil {
		return fmt.Errorf("failed to mark notification failed: %w", err)
	}
	return nil
}
