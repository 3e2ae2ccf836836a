package mq

// MilestoneCrossedPayload is published when a progression update crosses a
// billing threshold (50 or 100).
type MilestoneCrossedPayload struct {
	ProjectID  int64  `json:"project_id"`
	Threshold  int    `json:"threshold"`
	Percentage int    `json:"percentage"`
	Amount     string `json:"amount"` // decimal string
	TraceID    string `json:"trace_id,omitempty"`
}
