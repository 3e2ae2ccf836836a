package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"clientportal/internal/model"
	"clientportal/pkg/metrics"
)

const obligationColumns = `
	id, project_id, kind, amount, status, is_automatic, reference_number, due_date,
	transaction_id, payment_channel, bank_name, payment_date, submitted_at,
	paid_at, created_at, updated_at
`

type PaymentRepository struct {
	db *pgxpool.Pool
}

func NewPaymentRepository(db *pgxpool.Pool) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) Create(ctx context.Context, o *model.PaymentObligation) error {
	query := `
		INSERT INTO payment_obligations
			(project_id, kind, amount, status, is_automatic, reference_number, due_date, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		o.ProjectID, o.Kind, o.Amount, o.Status, o.IsAutomatic, o.ReferenceNumber, o.DueDate,
	).Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			// 与并发创建者撞上唯一约束，调用方重新读取赢家的记录
			return model.ErrDuplicateObligation
		}
		return fmt.Errorf("failed to insert payment obligation: %w", err)
	}
	return nil
}

func (r *PaymentRepository) GetByID(ctx context.Context, id int64) (*model.PaymentObligation, error) {
	query := `SELECT ` + obligationColumns + ` FROM payment_obligations WHERE id = $1`

	row := r.db.QueryRow(ctx, query, id)
	o, err := scanObligation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get payment obligation: %w", err)
	}
	return o, nil
}

// GetByProjectAndKind looks up the single obligation of a milestone kind for a
// project, or ErrNotFound.
func (r *PaymentRepository) GetByProjectAndKind(ctx context.Context, projectID int64, kind string) (*model.PaymentObligation, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQueryDuration("select", "payment_obligations", time.Since(start)) }()

	query := `SELECT ` + obligationColumns + ` FROM payment_obligations WHERE project_id = $1 AND kind = $2 LIMIT 1`

	row := r.db.QueryRow(ctx, query, projectID, kind)
	o, err := scanObligation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get payment obligation by kind: %w", err)
	}
	return o, nil
}

func (r *PaymentRepository) ListByProject(ctx context.Context, projectID int64) ([]*model.PaymentObligation, error) {
	query := `SELECT ` + obligationColumns + ` FROM payment_obligations WHERE project_id = $1 ORDER BY created_at ASC`

	rows, err := r.db.Query(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list payment obligations: %w", err)
	}
	defer rows.Close()

	var obligations []*model.PaymentObligation
	for rows.Next() {
		o, err := scanObligation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment obligation: %w", err)
		}
		obligations = append(obligations, o)
	}
	return obligations, rows.Err()
}

// MarkSubmitted records the client's payment details. The status condition in
// the WHERE clause makes the transition safe under concurrent submissions.
func (r *PaymentRepository) MarkSubmitted(ctx context.Context, id int64, sub model.PaymentSubmission, submittedAt time.Time) error {
	query := `
		UPDATE payment_obligations
		SET status = $1, transaction_id = $2, payment_channel = $3, bank_name = $4,
		    payment_date = $5, submitted_at = $6, updated_at = NOW()
		WHERE id = $7 AND status = $8
	`
	tag, err := r.db.Exec(ctx, query,
		model.PaymentStatusSubmitted, sub.TransactionID, sub.PaymentChannel, sub.BankName,
		sub.PaymentDate, submittedAt, id, model.PaymentStatusDue,
	)
	if err != nil {
		return fmt.Errorf("failed to mark obligation submitted: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrInvalidTransition
	}
	return nil
}

// MarkPaid is the staff approval transition.
func (r *PaymentRepository) MarkPaid(ctx context.Context, id int64, paidAt time.Time) error {
	query := `
		UPDATE payment_obligations
		SET status = $1, paid_at = $2, updated_at = NOW()
		WHERE id = $3 AND status = $4
	`
	tag, err := r.db.Exec(ctx, query, model.PaymentStatusPaid, paidAt, id, model.PaymentStatusSubmitted)
	if err != nil {
		return fmt.Errorf("failed to mark obligation paid: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrInvalidTransition
	}
	return nil
}

// ClearSubmission sends the obligation back to due and wipes the client's
// submission fields (resubmission requested).
func (r *PaymentRepository) ClearSubmission(ctx context.Context, id int64) error {
	query := `
		UPDATE payment_obligations
		SET status = $1, transaction_id = NULL, payment_channel = NULL, bank_name = NULL,
		    payment_date = NULL, submitted_at = NULL, updated_at = NOW()
		WHERE id = $2 AND status = $3
	`
	tag, err := r.db.Exec(ctx, query, model.PaymentStatusDue, id, model.PaymentStatusSubmitted)
	if err != nil {
		return fmt.Errorf("failed to clear obligation submission: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrInvalidTransition
	}
	return nil
}

func scanObligation(row pgx.Row) (*model.PaymentObligation, error) {
	var o model.PaymentObligation
	err := row.Scan(
		&o.ID, &o.ProjectID, &o.Kind, &o.Amount, &o.Status, &o.IsAutomatic,
		&o.ReferenceNumber, &o.DueDate,
		&o.TransactionID, &o.PaymentChannel, &o.BankName, &o.PaymentDate, &o.SubmittedAt,
		&o.PaidAt, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &o, nil
}
