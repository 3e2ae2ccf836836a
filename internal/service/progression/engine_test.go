package progression

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"clientportal/internal/model"
	"clientportal/internal/service/notify"
)

// ---- fakes ----

type fakeProjectStore struct {
	project       *model.Project
	updateErr     error
	updatedPct    int
	updatedTotal  decimal.Decimal
	markCompleted bool
}

func (f *fakeProjectStore) GetByID(_ context.Context, id int64) (*model.Project, error) {
	if f.project == nil || f.project.ID != id {
		return nil, model.ErrNotFound
	}
	return f.project, nil
}

func (f *fakeProjectStore) UpdateProgression(_ context.Context, _ int64, newPct int, total decimal.Decimal, _ int) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	f.updatedPct = newPct
	f.updatedTotal = total
	return nil
}

func (f *fakeProjectStore) MarkCompleted(_ context.Context, _ int64) error {
	f.markCompleted = true
	return nil
}

type fakeNegotiationStore struct {
	accepted *model.Negotiation
}

func (f *fakeNegotiationStore) LatestAccepted(_ context.Context, _ int64) (*model.Negotiation, error) {
	if f.accepted == nil {
		return nil, model.ErrNotFound
	}
	return f.accepted, nil
}

type fakePhaseStore struct {
	phases []*model.Phase
}

func (f *fakePhaseStore) ListByProject(_ context.Context, _ int64) ([]*model.Phase, error) {
	return f.phases, nil
}

type fakePaymentStore struct {
	byKind    map[string]*model.PaymentObligation
	created   []*model.PaymentObligation
	createErr error
}

func (f *fakePaymentStore) GetByProjectAndKind(_ context.Context, _ int64, kind string) (*model.PaymentObligation, error) {
	if o, ok := f.byKind[kind]; ok {
		return o, nil
	}
	return nil, model.ErrNotFound
}

func (f *fakePaymentStore) Create(_ context.Context, o *model.PaymentObligation) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, o)
	if f.byKind == nil {
		f.byKind = map[string]*model.PaymentObligation{}
	}
	f.byKind[o.Kind] = o
	return nil
}

type fakeClientStore struct {
	client *model.Client
}

func (f *fakeClientStore) GetByID(_ context.Context, _ int64) (*model.Client, error) {
	if f.client == nil {
		return nil, model.ErrNotFound
	}
	return f.client, nil
}

type fakeNotifier struct {
	sent    []notify.Message
	sendErr error
}

func (f *fakeNotifier) Send(_ context.Context, msg notify.Message) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeNotifier) byTemplate(name string) []notify.Message {
	var out []notify.Message
	for _, m := range f.sent {
		if m.TemplateName == name {
			out = append(out, m)
		}
	}
	return out
}

type fakePublisher struct {
	published []string
}

func (f *fakePublisher) Publish(routingKey string, _ any) error {
	f.published = append(f.published, routingKey)
	return nil
}

// ---- fixtures ----

type fixture struct {
	projects     *fakeProjectStore
	negotiations *fakeNegotiationStore
	phases       *fakePhaseStore
	payments     *fakePaymentStore
	clients      *fakeClientStore
	notifier     *fakeNotifier
	publisher    *fakePublisher
	engine       *Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		projects: &fakeProjectStore{
			project: &model.Project{ID: 1, ClientID: 7, Name: "Portal Revamp", Status: model.ProjectStatusActive},
		},
		negotiations: &fakeNegotiationStore{},
		phases:       &fakePhaseStore{},
		payments:     &fakePaymentStore{byKind: map[string]*model.PaymentObligation{}},
		clients: &fakeClientStore{
			client: &model.Client{ID: 7, Name: "Ada", BusinessName: "Ada LLC", ContactEmail: "ada@example.com"},
		},
		notifier:  &fakeNotifier{},
		publisher: &fakePublisher{},
	}
	f.engine = NewEngine(
		f.projects, f.negotiations, f.phases, f.payments, f.clients,
		f.notifier, f.publisher,
		Config{AdminRecipients: []string{"staff@example.com"}, FinalDueDays: 30, Currency: "USD"},
		zap.NewNop(),
	)
	return f
}

func (f *fixture) seedHalfObligation(amount decimal.Decimal) {
	f.payments.byKind[model.ObligationKindMilestone50] = &model.PaymentObligation{
		ID:              10,
		ProjectID:       1,
		Kind:            model.ObligationKindMilestone50,
		Amount:          amount,
		Status:          model.PaymentStatusDue,
		IsAutomatic:     true,
		ReferenceNumber: "INV-1-abc12345",
	}
}

// ---- tests ----

func TestUpdateProgressionRejectsOutOfRange(t *testing.T) {
	f := newFixture(t)

	for _, pct := range []int{-1, 101, 250} {
		_, err := f.engine.UpdateProgression(context.Background(), 1, pct, 10, decimal.Zero)
		if !errors.Is(err, model.ErrPercentOutOfRange) {
			t.Errorf("pct %d: err = %v, want ErrPercentOutOfRange", pct, err)
		}
	}
	if f.projects.updatedPct != 0 {
		t.Errorf("progression persisted despite invalid input: %d", f.projects.updatedPct)
	}
	if len(f.notifier.sent) != 0 {
		t.Errorf("notifications sent despite invalid input: %d", len(f.notifier.sent))
	}
}

func TestUpdateProgressionNoCrossing(t *testing.T) {
	f := newFixture(t)

	outcome, err := f.engine.UpdateProgression(context.Background(), 1, 40, 10, decimal.NewFromInt(1000))
	if err != nil {
		t.Fatalf("UpdateProgression: %v", err)
	}
	if outcome.Crossed50 || outcome.Crossed100 {
		t.Errorf("crossed50=%v crossed100=%v, want neither", outcome.Crossed50, outcome.Crossed100)
	}
	if f.projects.updatedPct != 40 {
		t.Errorf("persisted pct = %d, want 40", f.projects.updatedPct)
	}
	if len(f.notifier.sent) != 0 {
		t.Errorf("unexpected notifications: %d", len(f.notifier.sent))
	}
}

func TestHalfCrossingInvoicesHalfOfNegotiatedTotal(t *testing.T) {
	f := newFixture(t)
	f.negotiations.accepted = &model.Negotiation{
		ProjectID: 1, ProposedTotal: decimal.NewFromInt(1000), Status: model.NegotiationStatusAccepted,
	}
	f.seedHalfObligation(decimal.NewFromInt(500))

	outcome, err := f.engine.UpdateProgression(context.Background(), 1, 50, 0, decimal.Zero)
	if err != nil {
		t.Fatalf("UpdateProgression: %v", err)
	}
	if !outcome.Crossed50 {
		t.Fatal("Crossed50 = false, want true")
	}
	if len(outcome.Warnings) != 0 {
		t.Errorf("warnings = %v, want none", outcome.Warnings)
	}

	invoices := f.notifier.byTemplate(model.TemplatePaymentInvoice)
	if len(invoices) != 1 {
		t.Fatalf("invoice notifications = %d, want 1", len(invoices))
	}
	if got := invoices[0].TemplateData["amount"]; got != "500.00" {
		t.Errorf("invoice amount = %v, want 500.00", got)
	}
	if got := invoices[0].Recipients; len(got) != 1 || got[0] != "ada@example.com" {
		t.Errorf("invoice recipients = %v", got)
	}
}

func TestHalfCrossingMissingObligationWarns(t *testing.T) {
	f := newFixture(t)
	f.negotiations.accepted = &model.Negotiation{
		ProjectID: 1, ProposedTotal: decimal.NewFromInt(1000), Status: model.NegotiationStatusAccepted,
	}
	// no milestone_50 row seeded

	outcome, err := f.engine.UpdateProgression(context.Background(), 1, 60, 30, decimal.Zero)
	if err != nil {
		t.Fatalf("UpdateProgression: %v", err)
	}
	if f.projects.updatedPct != 60 {
		t.Errorf("persisted pct = %d, want 60", f.projects.updatedPct)
	}
	if len(outcome.Warnings) != 1 || outcome.Warnings[0].Kind != WarnMissingArtifact {
		t.Errorf("warnings = %v, want one missing-artifact warning", outcome.Warnings)
	}
	if len(f.notifier.sent) != 0 {
		t.Errorf("notifications sent without invoice details: %d", len(f.notifier.sent))
	}
}

func TestHalfCrossingZeroTotalSkipsInvoice(t *testing.T) {
	f := newFixture(t)
	// no negotiation, no phases, no cached amount: total resolves to 0

	outcome, err := f.engine.UpdateProgression(context.Background(), 1, 55, 20, decimal.Zero)
	if err != nil {
		t.Fatalf("UpdateProgression: %v", err)
	}
	if !outcome.Crossed50 {
		t.Fatal("Crossed50 = false, want true")
	}
	if len(outcome.Warnings) != 1 || outcome.Warnings[0].Kind != WarnZeroAmount {
		t.Errorf("warnings = %v, want one zero-amount warning", outcome.Warnings)
	}
	if len(f.notifier.sent) != 0 {
		t.Errorf("invoice sent with zero total: %d", len(f.notifier.sent))
	}
}

func TestFullCrossingSendsCompletionAndCreatesFinalObligation(t *testing.T) {
	f := newFixture(t)
	f.projects.project.ProgressionPercentage = 60
	f.negotiations.accepted = &model.Negotiation{
		ProjectID: 1, ProposedTotal: decimal.NewFromInt(2000), Status: model.NegotiationStatusAccepted,
	}

	outcome, err := f.engine.UpdateProgression(context.Background(), 1, 100, 60, decimal.Zero)
	if err != nil {
		t.Fatalf("UpdateProgression: %v", err)
	}
	if outcome.Crossed50 {
		t.Error("Crossed50 = true for 60 -> 100, want false")
	}
	if !outcome.Crossed100 {
		t.Fatal("Crossed100 = false, want true")
	}

	if got := f.notifier.byTemplate(model.TemplateProjectCompletion); len(got) != 1 {
		t.Errorf("completion notifications = %d, want 1", len(got))
	}
	delivery := f.notifier.byTemplate(model.TemplateDeliveryNotification)
	if len(delivery) != 1 {
		t.Fatalf("delivery notifications = %d, want 1", len(delivery))
	}
	if got := delivery[0].Recipients; len(got) != 1 || got[0] != "staff@example.com" {
		t.Errorf("delivery recipients = %v, want admin recipients", got)
	}

	if len(f.payments.created) != 1 {
		t.Fatalf("obligations created = %d, want 1", len(f.payments.created))
	}
	final := f.payments.created[0]
	if final.Kind != model.ObligationKindMilestoneFinal {
		t.Errorf("kind = %q, want milestone_final", final.Kind)
	}
	if !final.Amount.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("final amount = %s, want 1000", final.Amount)
	}
	if final.IsAutomatic {
		t.Error("final obligation marked automatic, want manual")
	}
	if final.DueDate == nil {
		t.Error("final obligation has no due date")
	}
	if final.ReferenceNumber == "" {
		t.Error("final obligation has no reference number")
	}

	if !f.projects.markCompleted {
		t.Error("project not marked completed")
	}

	invoices := f.notifier.byTemplate(model.TemplatePaymentInvoice)
	if len(invoices) != 1 {
		t.Fatalf("invoice notifications = %d, want 1", len(invoices))
	}
	if got := invoices[0].TemplateData["amount"]; got != "1000.00" {
		t.Errorf("final invoice amount = %v, want 1000.00", got)
	}
}

func TestFullCrossingIdempotentFinalObligation(t *testing.T) {
	f := newFixture(t)
	f.negotiations.accepted = &model.Negotiation{
		ProjectID: 1, ProposedTotal: decimal.NewFromInt(2000), Status: model.NegotiationStatusAccepted,
	}
	existing := &model.PaymentObligation{
		ID:              20,
		ProjectID:       1,
		Kind:            model.ObligationKindMilestoneFinal,
		Amount:          decimal.NewFromInt(1000),
		Status:          model.PaymentStatusDue,
		ReferenceNumber: "INV-1-existing1",
	}
	f.payments.byKind[model.ObligationKindMilestoneFinal] = existing

	_, err := f.engine.UpdateProgression(context.Background(), 1, 100, 90, decimal.Zero)
	if err != nil {
		t.Fatalf("UpdateProgression: %v", err)
	}
	if len(f.payments.created) != 0 {
		t.Errorf("obligations created = %d, want 0 (existing row reused)", len(f.payments.created))
	}

	invoices := f.notifier.byTemplate(model.TemplatePaymentInvoice)
	if len(invoices) != 1 {
		t.Fatalf("invoice notifications = %d, want 1", len(invoices))
	}
	if got := invoices[0].TemplateData["reference_number"]; got != "INV-1-existing1" {
		t.Errorf("invoice reference = %v, want the existing row's", got)
	}
}

func TestFullCrossingDuplicateCreateReReadsWinner(t *testing.T) {
	f := newFixture(t)
	f.negotiations.accepted = &model.Negotiation{
		ProjectID: 1, ProposedTotal: decimal.NewFromInt(2000), Status: model.NegotiationStatusAccepted,
	}

	// First lookup misses, create collides, re-read finds the winner.
	winner := &model.PaymentObligation{
		ID:              21,
		ProjectID:       1,
		Kind:            model.ObligationKindMilestoneFinal,
		Amount:          decimal.NewFromInt(1000),
		Status:          model.PaymentStatusDue,
		ReferenceNumber: "INV-1-winner01",
	}
	calls := 0
	f.engine.payments = paymentStoreFunc{
		get: func(kind string) (*model.PaymentObligation, error) {
			if kind != model.ObligationKindMilestoneFinal {
				return nil, model.ErrNotFound
			}
			calls++
			if calls == 1 {
				return nil, model.ErrNotFound
			}
			return winner, nil
		},
		create: func(*model.PaymentObligation) error { return model.ErrDuplicateObligation },
	}

	outcome, err := f.engine.UpdateProgression(context.Background(), 1, 100, 90, decimal.Zero)
	if err != nil {
		t.Fatalf("UpdateProgression: %v", err)
	}
	for _, w := range outcome.Warnings {
		if w.Kind == WarnMissingArtifact {
			t.Errorf("unexpected missing-artifact warning: %v", w)
		}
	}

	invoices := f.notifier.byTemplate(model.TemplatePaymentInvoice)
	if len(invoices) != 1 {
		t.Fatalf("invoice notifications = %d, want 1", len(invoices))
	}
	if got := invoices[0].TemplateData["reference_number"]; got != "INV-1-winner01" {
		t.Errorf("invoice reference = %v, want the winner's", got)
	}
}

type paymentStoreFunc struct {
	get    func(kind string) (*model.PaymentObligation, error)
	create func(o *model.PaymentObligation) error
}

func (p paymentStoreFunc) GetByProjectAndKind(_ context.Context, _ int64, kind string) (*model.PaymentObligation, error) {
	return p.get(kind)
}

func (p paymentStoreFunc) Create(_ context.Context, o *model.PaymentObligation) error {
	return p.create(o)
}

func TestZeroToHundredFiresBothCrossings(t *testing.T) {
	f := newFixture(t)
	f.negotiations.accepted = &model.Negotiation{
		ProjectID: 1, ProposedTotal: decimal.NewFromInt(1000), Status: model.NegotiationStatusAccepted,
	}
	f.seedHalfObligation(decimal.NewFromInt(500))

	outcome, err := f.engine.UpdateProgression(context.Background(), 1, 100, 40, decimal.Zero)
	if err != nil {
		t.Fatalf("UpdateProgression: %v", err)
	}
	if !outcome.Crossed50 || !outcome.Crossed100 {
		t.Fatalf("crossed50=%v crossed100=%v, want both", outcome.Crossed50, outcome.Crossed100)
	}

	invoices := f.notifier.byTemplate(model.TemplatePaymentInvoice)
	if len(invoices) != 2 {
		t.Fatalf("invoice notifications = %d, want 2 (50%% and final)", len(invoices))
	}
	if got := invoices[0].TemplateData["amount"]; got != "500.00" {
		t.Errorf("first invoice amount = %v, want 500.00", got)
	}
	if got := invoices[1].TemplateData["amount"]; got != "500.00" {
		t.Errorf("final invoice amount = %v, want 500.00", got)
	}
}

func TestKnownTotalWinsOverNegotiation(t *testing.T) {
	f := newFixture(t)
	f.negotiations.accepted = &model.Negotiation{
		ProjectID: 1, ProposedTotal: decimal.NewFromInt(9999), Status: model.NegotiationStatusAccepted,
	}
	f.seedHalfObligation(decimal.NewFromInt(400))

	outcome, err := f.engine.UpdateProgression(context.Background(), 1, 50, 10, decimal.NewFromInt(800))
	if err != nil {
		t.Fatalf("UpdateProgression: %v", err)
	}
	if !outcome.Total.Equal(decimal.NewFromInt(800)) {
		t.Errorf("resolved total = %s, want 800 (cached amount wins)", outcome.Total)
	}

	invoices := f.notifier.byTemplate(model.TemplatePaymentInvoice)
	if len(invoices) != 1 {
		t.Fatalf("invoice notifications = %d, want 1", len(invoices))
	}
	if got := invoices[0].TemplateData["amount"]; got != "400.00" {
		t.Errorf("invoice amount = %v, want 400.00", got)
	}
}

func TestPhaseSumFallback(t *testing.T) {
	f := newFixture(t)
	agreed := decimal.NewFromInt(300)
	f.phases.phases = []*model.Phase{
		{ProjectID: 1, AdminProposedPrice: decimal.NewFromInt(500), FinalAgreedPrice: &agreed},
		{ProjectID: 1, AdminProposedPrice: decimal.NewFromInt(700)},
	}
	f.seedHalfObligation(decimal.NewFromInt(500))

	outcome, err := f.engine.UpdateProgression(context.Background(), 1, 50, 0, decimal.Zero)
	if err != nil {
		t.Fatalf("UpdateProgression: %v", err)
	}
	// agreed price wins per phase: 300 + 700
	if !outcome.Total.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("resolved total = %s, want 1000", outcome.Total)
	}
}

func TestStaleBaselinePropagates(t *testing.T) {
	f := newFixture(t)
	f.projects.updateErr = model.ErrStaleProgression

	_, err := f.engine.UpdateProgression(context.Background(), 1, 70, 30, decimal.NewFromInt(1000))
	if !errors.Is(err, model.ErrStaleProgression) {
		t.Errorf("err = %v, want ErrStaleProgression", err)
	}
	if len(f.notifier.sent) != 0 {
		t.Errorf("side effects ran despite stale baseline: %d notifications", len(f.notifier.sent))
	}
}

func TestNotificationFailureDowngradedToWarning(t *testing.T) {
	f := newFixture(t)
	f.negotiations.accepted = &model.Negotiation{
		ProjectID: 1, ProposedTotal: decimal.NewFromInt(1000), Status: model.NegotiationStatusAccepted,
	}
	f.seedHalfObligation(decimal.NewFromInt(500))
	f.notifier.sendErr = errors.New("mailer 5xx: 503")

	outcome, err := f.engine.UpdateProgression(context.Background(), 1, 50, 0, decimal.Zero)
	if err != nil {
		t.Fatalf("UpdateProgression: %v, want nil (failure downgraded)", err)
	}
	if f.projects.updatedPct != 50 {
		t.Errorf("persisted pct = %d, want 50", f.projects.updatedPct)
	}
	found := false
	for _, w := range outcome.Warnings {
		if w.Kind == WarnNotificationFailed {
			found = true
		}
	}
	if !found {
		t.Errorf("warnings = %v, want a notification-failed warning", outcome.Warnings)
	}
}

func TestMissingClientStillCompletesProject(t *testing.T) {
	f := newFixture(t)
	f.negotiations.accepted = &model.Negotiation{
		ProjectID: 1, ProposedTotal: decimal.NewFromInt(2000), Status: model.NegotiationStatusAccepted,
	}
	f.clients.client = nil

	outcome, err := f.engine.UpdateProgression(context.Background(), 1, 100, 60, decimal.Zero)
	if err != nil {
		t.Fatalf("UpdateProgression: %v", err)
	}

	// Emails are impossible without a client profile, but everything
	// durable still happens.
	if !f.projects.markCompleted {
		t.Error("project not marked completed")
	}
	if len(f.publisher.published) != 1 {
		t.Errorf("published events = %d, want 1", len(f.publisher.published))
	}
	if len(f.payments.created) != 1 || f.payments.created[0].Kind != model.ObligationKindMilestoneFinal {
		t.Errorf("final obligation not created: %+v", f.payments.created)
	}
	if len(f.notifier.sent) != 0 {
		t.Errorf("notifications sent without a client profile: %d", len(f.notifier.sent))
	}

	found := false
	for _, w := range outcome.Warnings {
		if w.Kind == WarnNotificationFailed {
			found = true
		}
	}
	if !found {
		t.Errorf("warnings = %v, want a notification-failed warning", outcome.Warnings)
	}
}

func TestMilestoneEventsPublished(t *testing.T) {
	f := newFixture(t)
	f.negotiations.accepted = &model.Negotiation{
		ProjectID: 1, ProposedTotal: decimal.NewFromInt(1000), Status: model.NegotiationStatusAccepted,
	}
	f.seedHalfObligation(decimal.NewFromInt(500))

	_, err := f.engine.UpdateProgression(context.Background(), 1, 100, 0, decimal.Zero)
	if err != nil {
		t.Fatalf("UpdateProgression: %v", err)
	}
	if len(f.publisher.published) != 2 {
		t.Fatalf("published events = %d, want 2", len(f.publisher.published))
	}
	for _, key := range f.publisher.published {
		if key != "progression.milestone" {
			t.Errorf("routing key = %q, want progression.milestone", key)
		}
	}
}
