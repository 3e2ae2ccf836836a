package invoice

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
	"github.com/shopspring/decimal"
)

// Data is everything one invoice PDF needs.
type Data struct {
	CompanyName     string
	ReferenceNumber string
	ClientName      string
	BusinessName    string
	ProjectName     string
	Amount          decimal.Decimal
	Currency        string
	DueDate         string // already formatted; "Upon receipt" when unset
	Status          string
}

// Renderer produces the downloadable PDF representation of a payment
// obligation.
type Renderer struct{}

func NewRenderer() *Renderer {
	return &Renderer{}
}

// Render lays out the invoice and returns the PDF bytes.
func (r *Renderer) Render(data Data) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(fmt.Sprintf("Invoice %s", data.ReferenceNumber), false)
	pdf.AddPage()

	// Header
	pdf.SetFont("Helvetica", "B", 20)
	pdf.Cell(120, 10, data.CompanyName)
	pdf.SetFont("Helvetica", "", 12)
	pdf.CellFormat(0, 10, "INVOICE", "", 1, "R", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(0, 6, fmt.Sprintf("Reference: %s", data.ReferenceNumber), "", 1, "R", false, 0, "")
	pdf.CellFormat(0, 6, fmt.Sprintf("Due: %s", data.DueDate), "", 1, "R", false, 0, "")
	pdf.Ln(6)

	// Client block
	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(0, 6, "Billed to", "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(0, 6, data.ClientName, "", 1, "L", false, 0, "")
	if data.BusinessName != "" {
		pdf.CellFormat(0, 6, data.BusinessName, "", 1, "L", false, 0, "")
	}
	pdf.Ln(8)

	// Line item table
	pdf.SetFont("Helvetica", "B", 10)
	pdf.SetFillColor(240, 240, 240)
	pdf.CellFormat(130, 8, "Description", "1", 0, "L", true, 0, "")
	pdf.CellFormat(60, 8, "Amount", "1", 1, "R", true, 0, "")

	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(130, 8, fmt.Sprintf("Milestone payment - %s", data.ProjectName), "1", 0, "L", false, 0, "")
	pdf.CellFormat(60, 8, fmt.Sprintf("%s %s", data.Amount.StringFixed(2), data.Currency), "1", 1, "R", false, 0, "")

	pdf.SetFont("Helvetica", "B", 10)
	pdf.CellFormat(130, 8, "Total due", "1", 0, "L", false, 0, "")
	pdf.CellFormat(60, 8, fmt.Sprintf("%s %s", data.Amount.StringFixed(2), data.Currency), "1", 1, "R", false, 0, "")
	pdf.Ln(10)

	pdf.SetFont("Helvetica", "I", 9)
	pdf.CellFormat(0, 6, fmt.Sprintf("Status: %s", data.Status), "", 1, "L", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to render invoice pdf: %w", err)
	}
	return buf.Bytes(), nil
}
