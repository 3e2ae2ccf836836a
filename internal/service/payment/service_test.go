package payment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"clientportal/internal/model"
	"clientportal/internal/service/notify"
)

type fakeStore struct {
	obligations map[int64]*model.PaymentObligation
}

func newFakeStore(obligations ...*model.PaymentObligation) *fakeStore {
	m := map[int64]*model.PaymentObligation{}
	for _, o := range obligations {
		m[o.ID] = o
	}
	return &fakeStore{obligations: m}
}

func (f *fakeStore) GetByID(_ context.Context, id int64) (*model.PaymentObligation, error) {
	o, ok := f.obligations[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (f *fakeStore) ListByProject(_ context.Context, projectID int64) ([]*model.PaymentObligation, error) {
	var out []*model.PaymentObligation
	for _, o := range f.obligations {
		if o.ProjectID == projectID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (f *fakeStore) Create(_ context.Context, o *model.PaymentObligation) error {
	o.ID = int64(len(f.obligations) + 1)
	f.obligations[o.ID] = o
	return nil
}

func (f *fakeStore) MarkSubmitted(_ context.Context, id int64, sub model.PaymentSubmission, submittedAt time.Time) error {
	o, ok := f.obligations[id]
	if !ok || !o.IsDue() {
		return model.ErrInvalidTransition
	}
	o.Status = model.PaymentStatusSubmitted
	o.TransactionID = &sub.TransactionID
	o.PaymentChannel = &sub.PaymentChannel
	o.BankName = &sub.BankName
	paymentDate := sub.PaymentDate
	o.PaymentDate = &paymentDate
	o.SubmittedAt = &submittedAt
	return nil
}

func (f *fakeStore) MarkPaid(_ context.Context, id int64, paidAt time.Time) error {
	o, ok := f.obligations[id]
	if !ok || !o.IsSubmitted() {
		return model.ErrInvalidTransition
	}
	o.Status = model.PaymentStatusPaid
	o.PaidAt = &paidAt
	return nil
}

func (f *fakeStore) ClearSubmission(_ context.Context, id int64) error {
	o, ok := f.obligations[id]
	if !ok || !o.IsSubmitted() {
		return model.ErrInvalidTransition
	}
	o.Status = model.PaymentStatusDue
	o.TransactionID = nil
	o.PaymentChannel = nil
	o.BankName = nil
	o.PaymentDate = nil
	o.SubmittedAt = nil
	return nil
}

type fakeProjects struct{ project *model.Project }

func (f *fakeProjects) GetByID(_ context.Context, _ int64) (*model.Project, error) {
	if f.project == nil {
		return nil, model.ErrNotFound
	}
	return f.project, nil
}

type fakeClients struct{ client *model.Client }

func (f *fakeClients) GetByID(_ context.Context, _ int64) (*model.Client, error) {
	if f.client == nil {
		return nil, model.ErrNotFound
	}
	return f.client, nil
}

type fakeNotifier struct{ sent []notify.Message }

func (f *fakeNotifier) Send(_ context.Context, msg notify.Message) error {
	f.sent = append(f.sent, msg)
	return nil
}

type fakePublisher struct{ keys []string }

func (f *fakePublisher) Publish(routingKey string, _ any) error {
	f.keys = append(f.keys, routingKey)
	return nil
}

func dueObligation(id int64) *model.PaymentObligation {
	return &model.PaymentObligation{
		ID:              id,
		ProjectID:       1,
		Kind:            model.ObligationKindMilestone50,
		Amount:          decimal.NewFromInt(500),
		Status:          model.PaymentStatusDue,
		ReferenceNumber: "INV-1-ref00001",
	}
}

func newService(store *fakeStore, notifier *fakeNotifier, publisher *fakePublisher) *Service {
	return NewService(
		store,
		&fakeProjects{project: &model.Project{ID: 1, ClientID: 7, Name: "Portal Revamp"}},
		&fakeClients{client: &model.Client{ID: 7, Name: "Ada", ContactEmail: "ada@example.com"}},
		notifier,
		publisher,
		[]string{"staff@example.com"},
		zap.NewNop(),
	)
}

func submission() model.PaymentSubmission {
	return model.PaymentSubmission{
		TransactionID:  "TX-123",
		PaymentChannel: "bank_transfer",
		BankName:       "First National",
		PaymentDate:    time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestSubmitRequiresTransactionID(t *testing.T) {
	store := newFakeStore(dueObligation(1))
	svc := newService(store, &fakeNotifier{}, &fakePublisher{})

	for _, txID := range []string{"", "   "} {
		sub := submission()
		sub.TransactionID = txID
		_, err := svc.Submit(context.Background(), 1, sub)
		if !errors.Is(err, model.ErrTransactionIDRequired) {
			t.Errorf("tx %q: err = %v, want ErrTransactionIDRequired", txID, err)
		}
	}
	if store.obligations[1].Status != model.PaymentStatusDue {
		t.Errorf("status = %q, want due (rejected submission must not transition)", store.obligations[1].Status)
	}
}

func TestSubmitTransitionsDueToSubmitted(t *testing.T) {
	store := newFakeStore(dueObligation(1))
	notifier := &fakeNotifier{}
	publisher := &fakePublisher{}
	svc := newService(store, notifier, publisher)

	got, err := svc.Submit(context.Background(), 1, submission())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if got.Status != model.PaymentStatusSubmitted {
		t.Errorf("status = %q, want submitted", got.Status)
	}
	if got.TransactionID == nil || *got.TransactionID != "TX-123" {
		t.Errorf("transaction id = %v, want TX-123", got.TransactionID)
	}
	if got.SubmittedAt == nil {
		t.Error("submitted_at not set")
	}

	if len(publisher.keys) != 1 || publisher.keys[0] != "payment.submitted" {
		t.Errorf("published = %v, want [payment.submitted]", publisher.keys)
	}
	if len(notifier.sent) != 1 || notifier.sent[0].TemplateName != model.TemplatePaymentSubmission {
		t.Errorf("staff notification missing: %+v", notifier.sent)
	}
}

func TestSubmitRejectsNonDueObligation(t *testing.T) {
	submitted := dueObligation(1)
	submitted.Status = model.PaymentStatusSubmitted
	paid := dueObligation(2)
	paid.Status = model.PaymentStatusPaid
	store := newFakeStore(submitted, paid)
	svc := newService(store, &fakeNotifier{}, &fakePublisher{})

	for _, id := range []int64{1, 2} {
		_, err := svc.Submit(context.Background(), id, submission())
		if !errors.Is(err, model.ErrInvalidTransition) {
			t.Errorf("obligation %d: err = %v, want ErrInvalidTransition", id, err)
		}
	}
	// The pending review's details must survive the rejected attempt.
	if store.obligations[1].Status != model.PaymentStatusSubmitted {
		t.Errorf("submitted obligation overwritten: %q", store.obligations[1].Status)
	}
}

func TestApproveTransitionsSubmittedToPaid(t *testing.T) {
	o := dueObligation(1)
	o.Status = model.PaymentStatusSubmitted
	store := newFakeStore(o)
	notifier := &fakeNotifier{}
	publisher := &fakePublisher{}
	svc := newService(store, notifier, publisher)

	got, err := svc.Approve(context.Background(), 1)
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if got.Status != model.PaymentStatusPaid {
		t.Errorf("status = %q, want paid", got.Status)
	}
	if got.PaidAt == nil {
		t.Error("paid_at not set")
	}
	if len(publisher.keys) != 1 || publisher.keys[0] != "payment.approved" {
		t.Errorf("published = %v, want [payment.approved]", publisher.keys)
	}
	if len(notifier.sent) != 1 || notifier.sent[0].TemplateName != model.TemplatePaymentConfirmation {
		t.Errorf("client confirmation missing: %+v", notifier.sent)
	}
}

func TestApproveRejectsNonSubmitted(t *testing.T) {
	store := newFakeStore(dueObligation(1))
	svc := newService(store, &fakeNotifier{}, &fakePublisher{})

	_, err := svc.Approve(context.Background(), 1)
	if !errors.Is(err, model.ErrInvalidTransition) {
		t.Errorf("err = %v, want ErrInvalidTransition", err)
	}
}

func TestRequestResubmissionClearsSubmissionFields(t *testing.T) {
	o := dueObligation(1)
	o.Status = model.PaymentStatusSubmitted
	tx := "TX-999"
	channel := "card"
	now := time.Now()
	o.TransactionID = &tx
	o.PaymentChannel = &channel
	o.PaymentDate = &now
	o.SubmittedAt = &now
	store := newFakeStore(o)
	notifier := &fakeNotifier{}
	svc := newService(store, notifier, &fakePublisher{})

	got, err := svc.RequestResubmission(context.Background(), 1)
	if err != nil {
		t.Fatalf("RequestResubmission: %v", err)
	}
	if got.Status != model.PaymentStatusDue {
		t.Errorf("status = %q, want due", got.Status)
	}
	if got.TransactionID != nil || got.PaymentDate != nil || got.SubmittedAt != nil {
		t.Errorf("submission fields not cleared: tx=%v date=%v submitted=%v",
			got.TransactionID, got.PaymentDate, got.SubmittedAt)
	}
	if len(notifier.sent) != 1 || notifier.sent[0].TemplateName != model.TemplateResubmissionRequested {
		t.Errorf("resubmission notice missing: %+v", notifier.sent)
	}
}

func TestRequestResubmissionRejectsPaid(t *testing.T) {
	o := dueObligation(1)
	o.Status = model.PaymentStatusPaid
	store := newFakeStore(o)
	svc := newService(store, &fakeNotifier{}, &fakePublisher{})

	_, err := svc.RequestResubmission(context.Background(), 1)
	if !errors.Is(err, model.ErrInvalidTransition) {
		t.Errorf("err = %v, want ErrInvalidTransition", err)
	}
}

func TestCreateManual(t *testing.T) {
	store := newFakeStore()
	svc := newService(store, &fakeNotifier{}, &fakePublisher{})

	due := time.Now().AddDate(0, 0, 14)
	got, err := svc.CreateManual(context.Background(), 1, decimal.NewFromInt(250), &due)
	if err != nil {
		t.Fatalf("CreateManual: %v", err)
	}
	if got.Kind != model.ObligationKindManual {
		t.Errorf("kind = %q, want manual", got.Kind)
	}
	if got.Status != model.PaymentStatusDue {
		t.Errorf("status = %q, want due", got.Status)
	}
	if got.ReferenceNumber == "" {
		t.Error("no reference number assigned")
	}

	_, err = svc.CreateManual(context.Background(), 1, decimal.Zero, nil)
	if err == nil {
		t.Error("zero amount accepted, want error")
	}
}
