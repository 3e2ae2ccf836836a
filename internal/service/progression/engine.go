package progression

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	mqcontracts "clientportal/contracts/mq"
	"clientportal/internal/model"
	"clientportal/internal/service/notify"
	"clientportal/pkg/metrics"
	"clientportal/pkg/trace"
)

// Billing thresholds. Each one is checked independently against the baseline
// percentage, so a jump from below 50 straight to 100 fires both.
const (
	ThresholdHalf = 50
	ThresholdFull = 100
)

type ProjectStore interface {
	GetByID(ctx context.Context, id int64) (*model.Project, error)
	UpdateProgression(ctx context.Context, id int64, newPct int, total decimal.Decimal, expectedPct int) error
	MarkCompleted(ctx context.Context, id int64) error
}

type NegotiationStore interface {
	LatestAccepted(ctx context.Context, projectID int64) (*model.Negotiation, error)
}

type PhaseStore interface {
	ListByProject(ctx context.Context, projectID int64) ([]*model.Phase, error)
}

type PaymentStore interface {
	GetByProjectAndKind(ctx context.Context, projectID int64, kind string) (*model.PaymentObligation, error)
	Create(ctx context.Context, o *model.PaymentObligation) error
}

type ClientStore interface {
	GetByID(ctx context.Context, id int64) (*model.Client, error)
}

type Notifier interface {
	Send(ctx context.Context, msg notify.Message) error
}

// Publisher 里程碑事件广播（审计用），由 mq.Publisher 实现
type Publisher interface {
	Publish(routingKey string, payload any) error
}

// Config carries the ambient billing settings the engine needs.
type Config struct {
	AdminRecipients []string
	FinalDueDays    int
	Currency        string
}

// Warning 严重级别低于错误的非致命问题，汇总在 Outcome 里返回给调用方
type Warning struct {
	Kind   string
	Detail string
}

const (
	WarnMissingArtifact    = "missing_invoice_artifact"
	WarnNotificationFailed = "notification_failed"
	WarnZeroAmount         = "zero_total_amount"
)

// Outcome is the consolidated result of one progression update, so the UI can
// show a single success / success-with-warnings / failure message.
type Outcome struct {
	Percentage int
	Total      decimal.Decimal
	Crossed50  bool
	Crossed100 bool
	Warnings   []Warning
}

func (o *Outcome) warn(kind, format string, args ...any) {
	o.Warnings = append(o.Warnings, Warning{Kind: kind, Detail: fmt.Sprintf(format, args...)})
}

type Engine struct {
	projects     ProjectStore
	negotiations NegotiationStore
	phases       PhaseStore
	payments     PaymentStore
	clients      ClientStore
	notifier     Notifier
	publisher    Publisher
	cfg          Config
	logger       *zap.Logger

	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

func NewEngine(
	projects ProjectStore,
	negotiations NegotiationStore,
	phases PhaseStore,
	payments PaymentStore,
	clients ClientStore,
	notifier Notifier,
	publisher Publisher,
	cfg Config,
	logger *zap.Logger,
) *Engine {
	if cfg.FinalDueDays == 0 {
		cfg.FinalDueDays = 30
	}
	return &Engine{
		projects:     projects,
		negotiations: negotiations,
		phases:       phases,
		payments:     payments,
		clients:      clients,
		notifier:     notifier,
		publisher:    publisher,
		cfg:          cfg,
		logger:       logger,
	}
}

// projectLock returns the mutex serializing updates for one project.
func (e *Engine) projectLock(projectID int64) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.locks == nil {
		e.locks = make(map[int64]*sync.Mutex)
	}
	l, ok := e.locks[projectID]
	if !ok {
		l = &sync.Mutex{}
		e.locks[projectID] = l
	}
	return l
}

// UpdateProgression applies a requested percentage change and triggers the
// side effects of any threshold newly crossed. Persistence failures abort the
// call; notification failures are downgraded to warnings on the Outcome.
func (e *Engine) UpdateProgression(ctx context.Context, projectID int64, newPct, currentPct int, knownTotal decimal.Decimal) (*Outcome, error) {
	if newPct < 0 || newPct > 100 {
		return nil, model.ErrPercentOutOfRange
	}

	lock := e.projectLock(projectID)
	lock.Lock()
	defer lock.Unlock()

	log := e.logger.With(
		zap.Int64("project_id", projectID),
		zap.Int("from", currentPct),
		zap.Int("to", newPct),
	)

	project, err := e.projects.GetByID(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to load project: %w", err)
	}

	total, err := e.resolveTotalAmount(ctx, projectID, knownTotal)
	if err != nil {
		return nil, err
	}

	outcome := &Outcome{Percentage: newPct, Total: total}
	outcome.Crossed50 = newPct >= ThresholdHalf && currentPct < ThresholdHalf
	outcome.Crossed100 = newPct >= ThresholdFull && currentPct < ThresholdFull

	// Durable first: percentage and resolved total go in before any side
	// effect runs. A stale baseline means another update won the race.
	if err := e.projects.UpdateProgression(ctx, projectID, newPct, total, currentPct); err != nil {
		return nil, err
	}

	log.Info("Progression persisted",
		zap.String("total", total.String()),
		zap.Bool("crossed_50", outcome.Crossed50),
		zap.Bool("crossed_100", outcome.Crossed100),
	)

	// 没有客户档案就发不了邮件，降级为警告；指标、审计事件和
	// 完成标记等纯持久化副作用照常执行
	client, err := e.clients.GetByID(ctx, project.ClientID)
	if err != nil {
		outcome.warn(WarnNotificationFailed, "client %d not found: %v", project.ClientID, err)
		client = nil
	}

	if outcome.Crossed50 {
		metrics.IncrementMilestoneCrossed("50")
		e.publishMilestone(ctx, projectID, ThresholdHalf, newPct, total)
		if client != nil {
			e.handleHalfCrossing(ctx, project, client, total, outcome)
		}
	}

	if outcome.Crossed100 {
		metrics.IncrementMilestoneCrossed("100")
		e.publishMilestone(ctx, projectID, ThresholdFull, newPct, total)
		if client != nil {
			e.handleFullCrossing(ctx, project, client, total, outcome)
		} else if _, ferr := e.ensureFinalObligation(ctx, projectID, total); ferr != nil {
			outcome.warn(WarnMissingArtifact, "final obligation: %v", ferr)
		}

		if err := e.projects.MarkCompleted(ctx, projectID); err != nil {
			outcome.warn(WarnNotificationFailed, "failed to mark project completed: %v", err)
		}
	}

	return outcome, nil
}

// resolveTotalAmount derives the contract total: a positive cached amount
// wins, then the latest accepted negotiation, then the phase sum. Zero means
// no price is agreed yet.
func (e *Engine) resolveTotalAmount(ctx context.Context, projectID int64, knownTotal decimal.Decimal) (decimal.Decimal, error) {
	if knownTotal.IsPositive() {
		return knownTotal, nil
	}

	negotiation, err := e.negotiations.LatestAccepted(ctx, projectID)
	if err == nil {
		return negotiation.ProposedTotal, nil
	}
	if !errors.Is(err, model.ErrNotFound) {
		return decimal.Zero, fmt.Errorf("failed to resolve negotiation total: %w", err)
	}

	phases, err := e.phases.ListByProject(ctx, projectID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to list phases: %w", err)
	}

	sum := decimal.Zero
	for _, phase := range phases {
		if phase.FinalAgreedPrice != nil {
			sum = sum.Add(*phase.FinalAgreedPrice)
		} else {
			sum = sum.Add(phase.AdminProposedPrice)
		}
	}
	return sum, nil
}

// handleHalfCrossing invoices the automatic 50% obligation. The skeleton row
// is created by a database trigger when progression first persists at or
// above 50; the engine reads it back for the reference number and due date.
func (e *Engine) handleHalfCrossing(ctx context.Context, project *model.Project, client *model.Client, total decimal.Decimal, outcome *Outcome) {
	if !total.IsPositive() {
		outcome.warn(WarnZeroAmount, "project %d has no resolved total, 50%% invoice skipped", project.ID)
		return
	}

	obligation, err := e.payments.GetByProjectAndKind(ctx, project.ID, model.ObligationKindMilestone50)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			outcome.warn(WarnMissingArtifact, "payment initialized but invoice details missing for project %d", project.ID)
			return
		}
		outcome.warn(WarnMissingArtifact, "failed to load 50%% obligation: %v", err)
		return
	}

	half := total.Div(decimal.NewFromInt(2))
	e.sendInvoice(ctx, project, client, obligation, half, outcome)
}

// handleFullCrossing sends the completion notifications and creates the final
// obligation if no one beat us to it.
func (e *Engine) handleFullCrossing(ctx context.Context, project *model.Project, client *model.Client, total decimal.Decimal, outcome *Outcome) {
	completion := notify.Message{
		Recipients:   []string{client.ContactEmail},
		Subject:      fmt.Sprintf("Your project %q is complete", project.Name),
		TemplateName: model.TemplateProjectCompletion,
		TemplateData: map[string]any{
			"client_name":  client.Name,
			"project_name": project.Name,
		},
		DedupeKey: fmt.Sprintf("completion:%d", project.ID),
	}
	if err := e.notifier.Send(ctx, completion); err != nil {
		e.logger.Warn("Completion notification failed", zap.Int64("project_id", project.ID), zap.Error(err))
		outcome.warn(WarnNotificationFailed, "completion email: %v", err)
	}

	delivery := notify.Message{
		Recipients:   e.cfg.AdminRecipients,
		Subject:      fmt.Sprintf("Project %q ready for delivery", project.Name),
		TemplateName: model.TemplateDeliveryNotification,
		TemplateData: map[string]any{
			"project_name": project.Name,
			"client_name":  client.Name,
		},
		DedupeKey: fmt.Sprintf("delivery:%d", project.ID),
	}
	if err := e.notifier.Send(ctx, delivery); err != nil {
		e.logger.Warn("Delivery notification failed", zap.Int64("project_id", project.ID), zap.Error(err))
		outcome.warn(WarnNotificationFailed, "delivery email: %v", err)
	}

	obligation, err := e.ensureFinalObligation(ctx, project.ID, total)
	if err != nil {
		outcome.warn(WarnMissingArtifact, "final obligation: %v", err)
		return
	}

	if !total.IsPositive() {
		outcome.warn(WarnZeroAmount, "project %d has no resolved total, final invoice skipped", project.ID)
		return
	}

	e.sendInvoice(ctx, project, client, obligation, obligation.Amount, outcome)
}

// ensureFinalObligation creates the manual final 50% obligation unless one
// already exists. On a unique-constraint collision with a concurrent creator
// it re-reads the winner's row.
func (e *Engine) ensureFinalObligation(ctx context.Context, projectID int64, total decimal.Decimal) (*model.PaymentObligation, error) {
	existing, err := e.payments.GetByProjectAndKind(ctx, projectID, model.ObligationKindMilestoneFinal)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, model.ErrNotFound) {
		return nil, err
	}

	dueDate := time.Now().AddDate(0, 0, e.cfg.FinalDueDays)
	obligation := &model.PaymentObligation{
		ProjectID:       projectID,
		Kind:            model.ObligationKindMilestoneFinal,
		Amount:          total.Div(decimal.NewFromInt(2)),
		Status:          model.PaymentStatusDue,
		IsAutomatic:     false,
		ReferenceNumber: newReferenceNumber(projectID),
		DueDate:         &dueDate,
	}

	if err := e.payments.Create(ctx, obligation); err != nil {
		if errors.Is(err, model.ErrDuplicateObligation) {
			return e.payments.GetByProjectAndKind(ctx, projectID, model.ObligationKindMilestoneFinal)
		}
		return nil, err
	}

	e.logger.Info("Final payment obligation created",
		zap.Int64("project_id", projectID),
		zap.String("reference", obligation.ReferenceNumber),
		zap.String("amount", obligation.Amount.String()),
	)
	return obligation, nil
}

// sendInvoice 发送 payment-invoice 邮件，失败仅降级为警告
func (e *Engine) sendInvoice(ctx context.Context, project *model.Project, client *model.Client, obligation *model.PaymentObligation, amount decimal.Decimal, outcome *Outcome) {
	dueDate := "Upon receipt"
	if obligation.DueDate != nil {
		dueDate = obligation.DueDate.Format("02 Jan 2006")
	}

	msg := notify.Message{
		Recipients:   []string{client.ContactEmail},
		Subject:      fmt.Sprintf("Invoice %s for %s", obligation.ReferenceNumber, project.Name),
		TemplateName: model.TemplatePaymentInvoice,
		TemplateData: map[string]any{
			"client_name":      client.Name,
			"business_name":    client.BusinessName,
			"industry":         client.Industry,
			"project_name":     project.Name,
			"amount":           amount.StringFixed(2),
			"currency":         e.cfg.Currency,
			"reference_number": obligation.ReferenceNumber,
			"due_date":         dueDate,
		},
		DedupeKey: fmt.Sprintf("invoice:%d:%s", project.ID, obligation.Kind),
	}

	if err := e.notifier.Send(ctx, msg); err != nil {
		e.logger.Warn("Invoice notification failed",
			zap.Int64("project_id", project.ID),
			zap.String("reference", obligation.ReferenceNumber),
			zap.Error(err),
		)
		outcome.warn(WarnNotificationFailed, "invoice email %s: %v", obligation.ReferenceNumber, err)
	}
}

func (e *Engine) publishMilestone(ctx context.Context, projectID int64, threshold, newPct int, total decimal.Decimal) {
	if e.publisher == nil {
		return
	}
	payload := mqcontracts.MilestoneCrossedPayload{
		ProjectID:  projectID,
		Threshold:  threshold,
		Percentage: newPct,
		Amount:     total.String(),
		TraceID:    trace.FromContext(ctx),
	}
	if err := e.publisher.Publish("progression.milestone", payload); err != nil {
		// 审计事件丢失不影响主流程
		e.logger.Warn("Failed to publish milestone event",
			zap.Int64("project_id", projectID),
			zap.Int("threshold", threshold),
			zap.Error(err),
		)
	}
}

func newReferenceNumber(projectID int64) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("INV-%d-%s", projectID, suffix)
}
