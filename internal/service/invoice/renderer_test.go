package invoice

import (
	"bytes"
	"testing"

	"github.com/shopspring/decimal"
)

func TestRenderProducesPDF(t *testing.T) {
	r := NewRenderer()

	out, err := r.Render(Data{
		CompanyName:     "Acme Consulting",
		ReferenceNumber: "INV-1-ABCD1234",
		ClientName:      "Ada",
		BusinessName:    "Ada LLC",
		ProjectName:     "Portal Revamp",
		Amount:          decimal.NewFromInt(500),
		Currency:        "USD",
		DueDate:         "15 Mar 2026",
		Status:          "due",
	})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if len(out) == 0 {
		t.Fatal("empty PDF output")
	}
	if !bytes.HasPrefix(out, []byte("%PDF")) {
		t.Errorf("output does not start with %%PDF header: %q", out[:8])
	}
}

func TestRenderWithoutBusinessName(t *testing.T) {
	r := NewRenderer()

	out, err := r.Render(Data{
		CompanyName:     "Acme Consulting",
		ReferenceNumber: "INV-2-EFGH5678",
		ClientName:      "Grace",
		ProjectName:     "API Integration",
		Amount:          decimal.RequireFromString("1234.56"),
		Currency:        "EUR",
		DueDate:         "Upon receipt",
		Status:          "due",
	})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if len(out) == 0 {
		t.Fatal("empty PDF output")
	}
}
