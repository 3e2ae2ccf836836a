package mqhandler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	mqcontracts "clientportal/contracts/mq"
	"clientportal/pkg/metrics"
	"clientportal/pkg/util"
)

// PaymentEventHandler records payment lifecycle events for the audit trail.
// 支付事件只做审计日志，不触发副作用
type PaymentEventHandler struct {
	deduper *util.Deduper
	logger  *zap.Logger
}

func NewPaymentEventHandler(deduper *util.Deduper, logger *zap.Logger) *PaymentEventHandler {
	return &PaymentEventHandler{deduper: deduper, logger: logger}
}

func (h *PaymentEventHandler) HandlePaymentSubmitted(ctx context.Context, raw json.RawMessage) error {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("Panic in HandlePaymentSubmitted", zap.Any("panic", r))
		}
	}()
	start := time.Now()
	defer func() {
		metrics.RecordMQConsumeLatency("payment.submitted", "portal.payment.audit", time.Since(start))
	}()

	var p mqcontracts.PaymentSubmittedPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		h.logger.Error("Failed to unmarshal payment.submitted payload", zap.Error(err))
		return nil
	}

	if !h.deduper.AcquireOnce(ctx, fmt.Sprintf("audit:payment.submitted:%d:%s", p.ObligationID, p.TransactionID)) {
		return nil
	}

	h.logger.Info("Payment submitted",
		zap.Int64("obligation_id", p.ObligationID),
		zap.Int64("project_id", p.ProjectID),
		zap.String("reference_number", p.ReferenceNumber),
		zap.String("transaction_id", p.TransactionID),
		zap.String("trace_id", p.TraceID),
	)
	return nil
}

func (h *PaymentEventHandler) HandlePaymentApproved(ctx context.Context, raw json.RawMessage) error {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("Panic in HandlePaymentApproved", zap.Any("panic", r))
		}
	}()
	start := time.Now()
	defer func() {
		metrics.RecordMQConsumeLatency("payment.approved", "portal.payment.audit", time.Since(start))
	}()

	var p mqcontracts.PaymentApprovedPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		h.logger.Error("Failed to unmarshal payment.approved payload", zap.Error(err))
		return nil
	}

	if !h.deduper.AcquireOnce(ctx, fmt.Sprintf("audit:payment.approved:%d", p.ObligationID)) {
		return nil
	}

	h.logger.Info("Payment approved",
		zap.Int64("obligation_id", p.ObligationID),
		zap.Int64("project_id", p.ProjectID),
		zap.String("reference_number", p.ReferenceNumber),
		zap.String("trace_id", p.TraceID),
	)
	return nil
}
