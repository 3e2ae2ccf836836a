package notify

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
)

type fakeDeduper struct {
	acquired bool
	acquires []string
	releases []string
}

func (f *fakeDeduper) AcquireOnce(_ context.Context, key string) bool {
	f.acquires = append(f.acquires, key)
	return f.acquired
}

func (f *fakeDeduper) Release(_ context.Context, key string) {
	f.releases = append(f.releases, key)
}

func newTestDispatcher(dedup deduper) *Dispatcher {
	return &Dispatcher{
		deduper: dedup,
		logger:  zap.NewNop(),
		timeout: time.Second,
	}
}

func TestSendReleasesDedupeKeyOnQueueFailure(t *testing.T) {
	dedup := &fakeDeduper{acquired: true}
	d := newTestDispatcher(dedup)

	msg := Message{
		Recipients:   []string{"ada@example.com"},
		Subject:      "Invoice",
		TemplateName: "payment-invoice",
		// channels are not JSON-serializable, so queueing fails before
		// any persistence is attempted
		TemplateData: map[string]any{"bad": make(chan int)},
		DedupeKey:    "invoice:1:milestone_50",
	}

	if err := d.Send(context.Background(), msg); err == nil {
		t.Fatal("Send succeeded, want marshal error")
	}

	if len(dedup.releases) != 1 || dedup.releases[0] != "invoice:1:milestone_50" {
		t.Errorf("released keys = %v, want the acquired key back", dedup.releases)
	}
}

func TestSendSuppressesDuplicateWithoutRelease(t *testing.T) {
	dedup := &fakeDeduper{acquired: false}
	d := newTestDispatcher(dedup)

	msg := Message{
		Recipients:   []string{"ada@example.com"},
		Subject:      "Invoice",
		TemplateName: "payment-invoice",
		TemplateData: map[string]any{"amount": "500.00"},
		DedupeKey:    "invoice:1:milestone_50",
	}

	if err := d.Send(context.Background(), msg); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if len(dedup.acquires) != 1 {
		t.Errorf("acquires = %v, want one attempt", dedup.acquires)
	}
	if len(dedup.releases) != 0 {
		t.Errorf("releases = %v, want none for a suppressed duplicate", dedup.releases)
	}
}

func TestSendRejectsEmptyRecipients(t *testing.T) {
	dedup := &fakeDeduper{acquired: true}
	d := newTestDispatcher(dedup)

	if err := d.Send(context.Background(), Message{Subject: "s"}); err == nil {
		t.Fatal("Send accepted empty recipients")
	}
	if len(dedup.acquires) != 0 {
		t.Errorf("dedupe consulted before validation: %v", dedup.acquires)
	}
}
