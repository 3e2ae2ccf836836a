package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Payment obligation status constants
const (
	PaymentStatusDue       = "due"
	PaymentStatusSubmitted = "submitted"
	PaymentStatusPaid      = "paid"
)

// Payment obligation kinds. The two milestone kinds are unique per project
// (enforced by a partial unique index), manual obligations are not.
const (
	ObligationKindMilestone50    = "milestone_50"
	ObligationKindMilestoneFinal = "milestone_final"
	ObligationKindManual         = "manual"
)

type PaymentObligation struct {
	ID              int64
	ProjectID       int64
	Kind            string
	Amount          decimal.Decimal
	Status          string
	IsAutomatic     bool
	ReferenceNumber string
	DueDate         *time.Time

	// 客户提交付款时填写
	TransactionID  *string
	PaymentChannel *string
	BankName       *string
	PaymentDate    *time.Time
	SubmittedAt    *time.Time

	PaidAt    *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsDue reports whether the obligation still awaits a client submission.
func (p *PaymentObligation) IsDue() bool {
	return p.Status == PaymentStatusDue
}

// IsSubmitted reports whether the obligation awaits staff review.
func (p *PaymentObligation) IsSubmitted() bool {
	return p.Status == PaymentStatusSubmitted
}

// IsPaid reports whether staff approved the payment.
func (p *PaymentObligation) IsPaid() bool {
	return p.Status == PaymentStatusPaid
}

// PaymentSubmission 客户记录付款时提供的字段
type PaymentSubmission struct {
	TransactionID  string
	PaymentChannel string
	BankName       string
	PaymentDate    time.Time
}
