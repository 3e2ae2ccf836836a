package mqhandler

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	mqcontracts "clientportal/contracts/mq"
	"clientportal/internal/model"
	"clientportal/internal/repository"
	"clientportal/internal/service/mailer"
	"clientportal/pkg/metrics"
	"clientportal/pkg/mq"
	"clientportal/pkg/util"
)

const maxDeliveryRetries = 5

// NotificationCreatedHandler delivers queued notifications through the
// external email service.
type NotificationCreatedHandler struct {
	repo         *repository.NotificationRepository
	mailerClient *mailer.Client
	retryCounter *util.RetryCounter
	publisher    *mq.Publisher
	logger       *zap.Logger
}

func NewNotificationCreatedHandler(
	repo *repository.NotificationRepository,
	mailerClient *mailer.Client,
	retryCounter *util.RetryCounter,
	publisher *mq.Publisher,
	logger *zap.Logger,
) *NotificationCreatedHandler {
	return &NotificationCreatedHandler{
		repo:         repo,
		mailerClient: mailerClient,
		retryCounter: retryCounter,
		publisher:    publisher,
		logger:       logger,
	}
}

// HandleNotificationCreated -- 投递排队中的通知邮件
func (h *NotificationCreatedHandler) HandleNotificationCreated(ctx context.Context, raw json.RawMessage) error {
	// Panic 恢复：确保 handler 是稳态的
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("Panic in HandleNotificationCreated",
				zap.Any("panic", r),
			)
		}
	}()

	start := time.Now()

	var p mqcontracts.NotificationCreatedPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		// JSON decode 错误 - 不可重试
		h.logger.Error("Failed to unmarshal notification payload (non-retryable)",
			zap.Error(err),
		)
		return nil // 返回 nil，让 consumer ack 掉
	}

	notif, err := h.repo.GetByID(ctx, p.NotificationID)
	if err != nil {
		isRetryable, errType := util.IsRetryableError(err)
		h.logger.Error("Failed to load notification",
			zap.Int64("notification_id", p.NotificationID),
			zap.String("error_type", errType),
			zap.Error(err),
		)
		if !isRetryable {
			return nil
		}
		return err
	}

	// 已经投递过的直接跳过（事件重复投递时的幂等保护）
	if notif.Status == model.NotificationStatusSent {
		h.logger.Info("Notification already sent, skipping",
			zap.Int64("notification_id", notif.ID),
		)
		return nil
	}

	err = h.mailerClient.Send(ctx, notif.Recipients, notif.Subject, notif.TemplateName, notif.TemplateData)
	metrics.RecordMailerCallLatency(notif.TemplateName, deliveryStatus(err), time.Since(start))

	if err != nil {
		isRetryable, errType := util.IsRetryableError(err)
		h.logger.Error("Failed to deliver notification",
			zap.Int64("notification_id", notif.ID),
			zap.String("template", notif.TemplateName),
			zap.String("error_type", errType),
			zap.Bool("retryable", isRetryable),
			zap.Error(err),
		)

		retryCount, counterErr := h.retryCounter.IncrementAndGet(ctx, util.FormatRetryKey("notification", notif.ID))
		if counterErr != nil {
			h.logger.Warn("Retry counter unavailable", zap.Error(counterErr))
		}

		if !util.ShouldRetry(retryCount, maxDeliveryRetries, isRetryable) {
			// 重试耗尽或不可重试，标记失败、进 DLQ 并 ack
			if markErr := h.repo.MarkFailed(ctx, notif.ID); markErr != nil {
				h.logger.Error("Failed to mark notification failed", zap.Error(markErr))
			}
			if h.publisher != nil {
				if dlqErr := h.publisher.PublishToDLQ("notification.created", raw, err.Error()); dlqErr != nil {
					h.logger.Error("Failed to publish to DLQ", zap.Error(dlqErr))
				}
			}
			metrics.IncrementNotificationDelivered(notif.TemplateName, "failed")
			return nil
		}
		return err // 可重试错误，nack 并重试
	}

	if err := h.repo.MarkSent(ctx, notif.ID, time.Now()); err != nil {
		h.logger.Error("Failed to mark notification sent",
			zap.Int64("notification_id", notif.ID),
			zap.Error(err),
		)
	}
	metrics.IncrementNotificationDelivered(notif.TemplateName, "sent")

	h.logger.Info("Notification delivered",
		zap.Int64("notification_id", notif.ID),
		zap.String("template", notif.TemplateName),
	)
	return nil
}

func deliveryStatus(err error) string {
	if err != nil {
		return "failed"
	}
	return "success"
}
