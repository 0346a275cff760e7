package picklist

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

// DocumentPrinter renders printable pick list documents for the shop floor.
type DocumentPrinter struct{}

// NewDocumentPrinter builds DocumentPrinter.
func NewDocumentPrinter() *DocumentPrinter {
	return &DocumentPrinter{}
}

// PickListPDF lays the pick list out on A4: header block, one row per line
// with location and quantities, short lines flagged.
func (p *DocumentPrinter) PickListPDF(pl PickList) (*bytes.Buffer, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(12, 14, 12)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.CellFormat(0, 9, "Pick List "+pl.Number, "", 1, "L", false, 0, "")

	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(0, 6, fmt.Sprintf("Order: %s    Status: %s", orDash(pl.OrderNumber), pl.Status), "", 1, "L", false, 0, "")
	if pl.AssigneeName != "" {
		pdf.CellFormat(0, 6, "Assigned to: "+pl.AssigneeName, "", 1, "L", false, 0, "")
	}
	if pl.Note != "" {
		pdf.CellFormat(0, 6, "Note: "+pl.Note, "", 1, "L", false, 0, "")
	}
	pdf.Ln(3)

	const (
		colSKU      = 30.0
		colName     = 66.0
		colLocation = 24.0
		colQty      = 22.0
		rowH        = 7.0
	)

	pdf.SetFont("Arial", "B", 9)
	pdf.SetFillColor(230, 230, 230)
	pdf.CellFormat(colSKU, rowH, "SKU", "1", 0, "L", true, 0, "")
	pdf.CellFormat(colName, rowH, "Item", "1", 0, "L", true, 0, "")
	pdf.CellFormat(colLocation, rowH, "Location", "1", 0, "C", true, 0, "")
	pdf.CellFormat(colQty, rowH, "Required", "1", 0, "R", true, 0, "")
	pdf.CellFormat(colQty, rowH, "Picked", "1", 0, "R", true, 0, "")
	pdf.CellFormat(colQty, rowH, "Status", "1", 1, "C", true, 0, "")

	pdf.SetFont("Arial", "", 9)
	for _, line := range pl.Items {
		location := "unassigned"
		if line.LocationID != 0 {
			location = fmt.Sprintf("#%d", line.LocationID)
		}
		status := string(line.Status)
		if line.QuantityShort > 0 {
			status = fmt.Sprintf("short %.1f", line.QuantityShort)
		}
		pdf.CellFormat(colSKU, rowH, orDash(line.ItemSKU), "1", 0, "L", false, 0, "")
		pdf.CellFormat(colName, rowH, orDash(line.ItemName), "1", 0, "L", false, 0, "")
		pdf.CellFormat(colLocation, rowH, location, "1", 0, "C", false, 0, "")
		pdf.CellFormat(colQty, rowH, fmt.Sprintf("%.1f", line.QuantityRequired), "1", 0, "R", false, 0, "")
		pdf.CellFormat(colQty, rowH, fmt.Sprintf("%.1f", line.QuantityPicked), "1", 0, "R", false, 0, "")
		pdf.CellFormat(colQty, rowH, status, "1", 1, "C", false, 0, "")
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("picklist: render pdf: %w", err)
	}
	return &buf, nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
