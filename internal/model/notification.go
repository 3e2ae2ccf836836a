package model

import (
	"encoding/json"
	"time"
)

// Notification status constants
const (
	NotificationStatusPending = "pending"
	NotificationStatusSent    = "sent"
	NotificationStatusFailed  = "failed"
)

// Template names understood by the external delivery service.
const (
	TemplatePaymentInvoice        = "payment-invoice"
	TemplateProjectCompletion     = "project-completion"
	TemplateDeliveryNotification  = "delivery-notification"
	TemplatePaymentSubmission     = "payment-submission-notification"
	TemplatePaymentConfirmation   = "payment-confirmation"
	TemplateResubmissionRequested = "resubmission-requested"
)

type Notification struct {
	ID           int64
	Recipients   []string
	Subject      string
	TemplateName string
	TemplateData json.RawMessage
	Status       string
	// DedupeKey 防止同一里程碑重复发信，可为空
	DedupeKey *string
	Attempts  int
	CreatedAt time.Time
	SentAt    *time.Time
}
