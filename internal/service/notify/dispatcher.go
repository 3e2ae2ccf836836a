package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	mqcontracts "clientportal/contracts/mq"
	"clientportal/internal/model"
	"clientportal/internal/repository"
	"clientportal/pkg/metrics"
	"clientportal/pkg/outbox"
	"clientportal/pkg/trace"
	"clientportal/pkg/util"
)

// Message is one transactional notification: who gets it, which template the
// delivery service should render, and the data the template needs.
type Message struct {
	Recipients   []string
	Subject      string
	TemplateName string
	TemplateData map[string]any
	// DedupeKey suppresses repeat sends for the same logical event; empty
	// means always send.
	DedupeKey string
}

// deduper 是 util.Deduper 的最小接口，便于测试替换
type deduper interface {
	AcquireOnce(ctx context.Context, key string) bool
	Release(ctx context.Context, key string)
}

// Dispatcher queues notifications through the transactional outbox: the
// notification row and the outbox event commit together, the worker delivers
// asynchronously. Send never blocks on the actual delivery.
type Dispatcher struct {
	db         *pgxpool.Pool
	notifRepo  *repository.NotificationRepository
	outboxRepo *outbox.Repository
	deduper    deduper
	logger     *zap.Logger
	timeout    time.Duration
}

func NewDispatcher(
	db *pgxpool.Pool,
	notifRepo *repository.NotificationRepository,
	dedup *util.Deduper,
	logger *zap.Logger,
) *Dispatcher {
	d := &Dispatcher{
		db:         db,
		notifRepo:  notifRepo,
		outboxRepo: outbox.NewRepository(db),
		logger:     logger,
		timeout:    5 * time.Second,
	}
	if dedup != nil {
		d.deduper = dedup
	}
	return d
}

// Send persists the notification and its outbox event in one transaction.
func (d *Dispatcher) Send(ctx context.Context, msg Message) error {
	if len(msg.Recipients) == 0 {
		return fmt.Errorf("notification has no recipients")
	}

	// Redis 去重：同一 dedupe key 只排队一次
	if msg.DedupeKey != "" && d.deduper != nil {
		if !d.deduper.AcquireOnce(ctx, msg.DedupeKey) {
			d.logger.Info("Duplicate notification suppressed",
				zap.String("dedupe_key", msg.DedupeKey),
				zap.String("template", msg.TemplateName),
			)
			metrics.IncrementNotificationDelivered(msg.TemplateName, "deduped")
			return nil
		}
	}

	if err := d.queue(ctx, msg); err != nil {
		// 入队失败必须释放 key，否则重试会被去重层永久吞掉
		if msg.DedupeKey != "" && d.deduper != nil {
			d.deduper.Release(ctx, msg.DedupeKey)
		}
		return err
	}
	return nil
}

// queue 在一个事务里写入通知行和 outbox 事件
func (d *Dispatcher) queue(ctx context.Context, msg Message) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	data, err := json.Marshal(msg.TemplateData)
	if err != nil {
		return fmt.Errorf("failed to marshal template data: %w", err)
	}

	notif := &model.Notification{
		Recipients:   msg.Recipients,
		Subject:      msg.Subject,
		TemplateName: msg.TemplateName,
		TemplateData: data,
		Status:       model.NotificationStatusPending,
	}
	if msg.DedupeKey != "" {
		notif.DedupeKey = &msg.DedupeKey
	}

	tx, err := d.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := d.notifRepo.InsertInTx(ctx, tx, notif); err != nil {
		return err
	}

	payload := mqcontracts.NotificationCreatedPayload{
		NotificationID: notif.ID,
		TemplateName:   notif.TemplateName,
		TraceID:        trace.FromContext(ctx),
		CreatedAt:      notif.CreatedAt,
	}
	if err := outbox.InsertEventInTx(ctx, tx, d.outboxRepo, "notification", &notif.ID, "notification.created", payload); err != nil {
		return fmt.Errorf("failed to insert outbox event: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit notification: %w", err)
	}

	d.logger.Info("Notification queued",
		zap.Int64("notification_id", notif.ID),
		zap.String("template", notif.TemplateName),
		zap.Strings("recipients", notif.Recipients),
	)
	return nil
}
