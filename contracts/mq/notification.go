package mq

import "time"

type NotificationCreatedPayload struct {
	NotificationID int64     `json:"notification_id"`
	TemplateName   string    `json:"template_name"`
	TraceID        string    `json:"trace_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

type NotificationSentPayload struct {
	NotificationID int64     `json:"notification_id"`
	TemplateName   string    `json:"template_name"`
	SentAt         time.Time `json:"sent_at"`
}

type NotificationFailedPayload struct {
	NotificationID int64  `json:"notification_id"`
	TemplateName   string `json:"template_name"`
	Error          string `json:"error"`
	RetryCount     int    `json:"retry_count"`
}
