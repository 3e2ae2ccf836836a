package payment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	mqcontracts "clientportal/contracts/mq"
	"clientportal/internal/model"
	"clientportal/internal/service/notify"
	"clientportal/pkg/trace"
)

type Store interface {
	GetByID(ctx context.Context, id int64) (*model.PaymentObligation, error)
	ListByProject(ctx context.Context, projectID int64) ([]*model.PaymentObligation, error)
	Create(ctx context.Context, o *model.PaymentObligation) error
	MarkSubmitted(ctx context.Context, id int64, sub model.PaymentSubmission, submittedAt time.Time) error
	MarkPaid(ctx context.Context, id int64, paidAt time.Time) error
	ClearSubmission(ctx context.Context, id int64) error
}

type ProjectStore interface {
	GetByID(ctx context.Context, id int64) (*model.Project, error)
}

type ClientStore interface {
	GetByID(ctx context.Context, id int64) (*model.Client, error)
}

type Notifier interface {
	Send(ctx context.Context, msg notify.Message) error
}

type Publisher interface {
	Publish(routingKey string, payload any) error
}

// Service drives the payment obligation state machine:
// due -> submitted -> paid, with submitted -> due on resubmission request.
type Service struct {
	store     Store
	projects  ProjectStore
	clients   ClientStore
	notifier  Notifier
	publisher Publisher
	adminTo   []string
	logger    *zap.Logger
}

func NewService(
	store Store,
	projects ProjectStore,
	clients ClientStore,
	notifier Notifier,
	publisher Publisher,
	adminRecipients []string,
	logger *zap.Logger,
) *Service {
	return &Service{
		store:     store,
		projects:  projects,
		clients:   clients,
		notifier:  notifier,
		publisher: publisher,
		adminTo:   adminRecipients,
		logger:    logger,
	}
}

// Submit records the client's payment details. Only a due obligation accepts
// a submission; anything else is rejected so a pending review cannot be
// overwritten.
func (s *Service) Submit(ctx context.Context, obligationID int64, sub model.PaymentSubmission) (*model.PaymentObligation, error) {
	if strings.TrimSpace(sub.TransactionID) == "" {
		return nil, model.ErrTransactionIDRequired
	}

	obligation, err := s.store.GetByID(ctx, obligationID)
	if err != nil {
		return nil, err
	}
	if !obligation.IsDue() {
		return nil, model.ErrInvalidTransition
	}

	submittedAt := time.Now()
	if err := s.store.MarkSubmitted(ctx, obligationID, sub, submittedAt); err != nil {
		return nil, err
	}

	s.logger.Info("Payment submitted",
		zap.Int64("obligation_id", obligationID),
		zap.String("reference", obligation.ReferenceNumber),
		zap.String("transaction_id", sub.TransactionID),
	)

	s.publishEvent("payment.submitted", mqcontracts.PaymentSubmittedPayload{
		ObligationID:    obligationID,
		ProjectID:       obligation.ProjectID,
		ReferenceNumber: obligation.ReferenceNumber,
		TransactionID:   sub.TransactionID,
		SubmittedAt:     submittedAt,
		TraceID:         trace.FromContext(ctx),
	})

	// 通知员工有付款待审核，发送失败不影响提交本身
	msg := notify.Message{
		Recipients:   s.adminTo,
		Subject:      fmt.Sprintf("Payment submitted for review: %s", obligation.ReferenceNumber),
		TemplateName: model.TemplatePaymentSubmission,
		TemplateData: map[string]any{
			"reference_number": obligation.ReferenceNumber,
			"amount":           obligation.Amount.StringFixed(2),
			"transaction_id":   sub.TransactionID,
			"payment_channel":  sub.PaymentChannel,
		},
	}
	if err := s.notifier.Send(ctx, msg); err != nil {
		s.logger.Warn("Submission notification failed", zap.Int64("obligation_id", obligationID), zap.Error(err))
	}

	return s.store.GetByID(ctx, obligationID)
}

// Approve is the staff-only transition to paid.
func (s *Service) Approve(ctx context.Context, obligationID int64) (*model.PaymentObligation, error) {
	obligation, err := s.store.GetByID(ctx, obligationID)
	if err != nil {
		return nil, err
	}
	if !obligation.IsSubmitted() {
		return nil, model.ErrInvalidTransition
	}

	paidAt := time.Now()
	if err := s.store.MarkPaid(ctx, obligationID, paidAt); err != nil {
		return nil, err
	}

	s.logger.Info("Payment approved",
		zap.Int64("obligation_id", obligationID),
		zap.String("reference", obligation.ReferenceNumber),
	)

	s.publishEvent("payment.approved", mqcontracts.PaymentApprovedPayload{
		ObligationID:    obligationID,
		ProjectID:       obligation.ProjectID,
		ReferenceNumber: obligation.ReferenceNumber,
		PaidAt:          paidAt,
		TraceID:         trace.FromContext(ctx),
	})

	s.notifyClient(ctx, obligation, model.TemplatePaymentConfirmation,
		fmt.Sprintf("Payment confirmed: %s", obligation.ReferenceNumber))

	return s.store.GetByID(ctx, obligationID)
}

// RequestResubmission is the staff-only reverse edge back to due; it clears
// the transaction id, payment date and submission timestamp.
func (s *Service) RequestResubmission(ctx context.Context, obligationID int64) (*model.PaymentObligation, error) {
	obligation, err := s.store.GetByID(ctx, obligationID)
	if err != nil {
		return nil, err
	}
	if !obligation.IsSubmitted() {
		return nil, model.ErrInvalidTransition
	}

	if err := s.store.ClearSubmission(ctx, obligationID); err != nil {
		return nil, err
	}

	s.logger.Info("Payment resubmission requested",
		zap.Int64("obligation_id", obligationID),
		zap.String("reference", obligation.ReferenceNumber),
	)

	s.notifyClient(ctx, obligation, model.TemplateResubmissionRequested,
		fmt.Sprintf("Please resubmit payment details: %s", obligation.ReferenceNumber))

	return s.store.GetByID(ctx, obligationID)
}

// CreateManual lets staff raise an ad-hoc obligation outside the milestone
// flow.
func (s *Service) CreateManual(ctx context.Context, projectID int64, amount decimal.Decimal, dueDate *time.Time) (*model.PaymentObligation, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("obligation amount must be positive")
	}

	obligation := &model.PaymentObligation{
		ProjectID:       projectID,
		Kind:            model.ObligationKindManual,
		Amount:          amount,
		Status:          model.PaymentStatusDue,
		IsAutomatic:     false,
		ReferenceNumber: newReferenceNumber(projectID),
		DueDate:         dueDate,
	}
	if err := s.store.Create(ctx, obligation); err != nil {
		return nil, err
	}

	s.logger.Info("Manual obligation created",
		zap.Int64("project_id", projectID),
		zap.String("reference", obligation.ReferenceNumber),
	)
	return obligation, nil
}

func (s *Service) ListByProject(ctx context.Context, projectID int64) ([]*model.PaymentObligation, error) {
	return s.store.ListByProject(ctx, projectID)
}

func (s *Service) GetByID(ctx context.Context, id int64) (*model.PaymentObligation, error) {
	return s.store.GetByID(ctx, id)
}

func (s *Service) notifyClient(ctx context.Context, obligation *model.PaymentObligation, template, subject string) {
	project, err := s.projects.GetByID(ctx, obligation.ProjectID)
	if err != nil {
		s.logger.Warn("Failed to load project for notification", zap.Int64("project_id", obligation.ProjectID), zap.Error(err))
		return
	}
	client, err := s.clients.GetByID(ctx, project.ClientID)
	if err != nil {
		s.logger.Warn("Failed to load client for notification", zap.Int64("client_id", project.ClientID), zap.Error(err))
		return
	}

	msg := notify.Message{
		Recipients:   []string{client.ContactEmail},
		Subject:      subject,
		TemplateName: template,
		TemplateData: map[string]any{
			"client_name":      client.Name,
			"project_name":     project.Name,
			"reference_number": obligation.ReferenceNumber,
			"amount":           obligation.Amount.StringFixed(2),
		},
	}
	if err := s.notifier.Send(ctx, msg); err != nil {
		s.logger.Warn("Client notification failed",
			zap.Int64("obligation_id", obligation.ID),
			zap.String("template", template),
			zap.Error(err),
		)
	}
}

func (s *Service) publishEvent(routingKey string, payload any) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(routingKey, payload); err != nil {
		s.logger.Warn("Failed to publish payment event", zap.String("routing_key", routingKey), zap.Error(err))
	}
}

func newReferenceNumber(projectID int64) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("INV-%d-%s", projectID, suffix)
}
