package mq

import "time"

type PaymentSubmittedPayload struct {
	ObligationID    int64     `json:"obligation_id"`
	ProjectID       int64     `json:"project_id"`
	ReferenceNumber string    `json:"reference_number"`
	TransactionID   string    `json:"transaction_id"`
	SubmittedAt     time.Time `json:"submitted_at"`
	TraceID         string    `json:"trace_id,omitempty"`
}

type PaymentApprovedPayload struct {
	ObligationID    int64     `json:"obligation_id"`
	ProjectID       int64     `json:"project_id"`
	ReferenceNumber string    `json:"reference_number"`
	PaidAt          time.Time `json:"paid_at"`
	TraceID         string    `json:"trace_id,omitempty"`
}
