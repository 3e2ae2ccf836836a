package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Project status constants
const (
	ProjectStatusActive    = "active"
	ProjectStatusCompleted = "completed"
	ProjectStatusOnHold    = "on_hold"
)

type Project struct {
	ID                    int64
	ClientID              int64
	Name                  string
	Status                string
	ProgressionPercentage int
	// TotalProjectAmount 为 0 表示合同总价尚未敲定
	TotalProjectAmount decimal.Decimal
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Phase 项目阶段，报价的第二来源
type Phase struct {
	ID                 int64
	ProjectID          int64
	Name               string
	AdminProposedPrice decimal.Decimal
	FinalAgreedPrice   *decimal.Decimal
	SortOrder          int
}

// Negotiation 总价谈判记录
type Negotiation struct {
	ID            int64
	ProjectID     int64
	ProposedTotal decimal.Decimal
	Status        string // pending | accepted | rejected
	CreatedAt     time.Time
}

const (
	NegotiationStatusPending  = "pending"
	NegotiationStatusAccepted = "accepted"
	NegotiationStatusRejected = "rejected"
)
