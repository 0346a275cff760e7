package stock

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
	"github.com/skip2/go-qrcode"
)

// LabelPrinter renders scannable labels for serial-tracked units.
type LabelPrinter struct {
	cols       int
	rows       int
	marginLeft float64
	marginTop  float64
}

// NewLabelPrinter returns a printer laid out for standard A4 label sheets,
// three columns by eight rows.
func NewLabelPrinter() *LabelPrinter {
	return &LabelPrinter{cols: 3, rows: 8, marginLeft: 7, marginTop: 15}
}

// BarcodePNG encodes one barcode as a QR PNG.
func (p *LabelPrinter) BarcodePNG(barcode string) ([]byte, error) {
	if barcode == "" {
		return nil, fmt.Errorf("stock: serial has no barcode")
	}
	return qrcode.Encode(barcode, qrcode.Medium, 256)
}

// LabelSheet lays the given serial units out on A4 pages, one QR label per
// unit with the serial number printed underneath.
func (p *LabelPrinter) LabelSheet(serials []SerialItem) (*bytes.Buffer, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetFont("Arial", "B", 10)

	pageWidth, pageHeight := 210.0, 297.0
	availW := pageWidth - p.marginLeft*2
	availH := pageHeight - p.marginTop*2
	labelW := availW / float64(p.cols)
	labelH := availH / float64(p.rows)
	perPage := p.cols * p.rows

	for i, serial := range serials {
		if i%perPage == 0 {
			pdf.AddPage()
		}
		onPage := i % perPage
		x := p.marginLeft + float64(onPage%p.cols)*labelW
		y := p.marginTop + float64(onPage/p.cols)*labelH

		png, err := p.BarcodePNG(serial.Barcode)
		if err != nil {
			return nil, fmt.Errorf("stock: label for serial %d: %w", serial.ID, err)
		}

		imgName := fmt.Sprintf("qr_%d", serial.ID)
		opts := gofpdf.ImageOptions{ImageType: "PNG", ReadDpi: true}
		pdf.RegisterImageOptionsReader(imgName, opts, bytes.NewReader(png))

		qrSize := labelH * 0.7
		if qrSize > labelW {
			qrSize = labelW * 0.9
		}
		pdf.ImageOptions(imgName, x+(labelW-qrSize)/2, y+(labelH-qrSize)/2-2, qrSize, qrSize, false, opts, 0, "")

		pdf.SetXY(x, y+labelH-6)
		pdf.SetFontSize(8)
		pdf.CellFormat(labelW, 5, serial.SerialNumber, "", 0, "C", false, 0, "")
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return &buf, nil
}
