package printer

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/skip2/go-qrcode"

	"github.com/xelth-com/eckprint/internal/apperr"
	"github.com/xelth-com/eckprint/internal/models"
)

// TestPageInfo is printed on the test page
type TestPageInfo struct {
	PrinterName string
	Hostname    string
	Version     string
	Options     PrintOptions
	Time        time.Time
}

// GenerateTestPage renders a one page PDF identifying the printer and
// settings, with a QR code carrying the same data
func GenerateTestPage(info TestPageInfo) ([]byte, error) {
	orientation := "P"
	if info.Options.Orientation == models.OrientationLandscape {
		orientation = "L"
	}
	size := string(info.Options.PaperSize)
	if size == "" {
		size = string(models.PaperSizeA4)
	}

	pdf := gofpdf.New(orientation, "mm", size, "")
	pdf.SetMargins(15, 15, 15)
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPage()
	pageW, _ := pdf.GetPageSize()

	pdf.SetFont("Arial", "B", 20)
	pdf.CellFormat(0, 12, "Printer test page", "", 1, "L", false, 0, "")

	pdf.SetFont("Arial", "", 11)
	rows := [][2]string{
		{"Printer", orDash(info.PrinterName)},
		{"Paper", size},
		{"Orientation", string(info.Options.Orientation)},
		{"Copies", fmt.Sprintf("%d", max(info.Options.Copies, 1))},
		{"Host", orDash(info.Hostname)},
		{"Agent", orDash(info.Version)},
		{"Time", info.Time.Format(time.RFC3339)},
	}
	for _, r := range rows {
		pdf.CellFormat(35, 7, r[0], "", 0, "L", false, 0, "")
		pdf.CellFormat(0, 7, r[1], "", 1, "L", false, 0, "")
	}

	qrContent := fmt.Sprintf("ECKPRINT|%s|%s|%s", info.PrinterName, info.Hostname, info.Time.Format(time.RFC3339))
	qrPng, err := qrcode.Encode(qrContent, qrcode.Medium, 256)
	if err != nil {
		return nil, err
	}
	imgOptions := gofpdf.ImageOptions{ImageType: "PNG", ReadDpi: true}
	pdf.RegisterImageOptionsReader("qr", imgOptions, bytes.NewReader(qrPng))

	qrSize := 50.0
	pdf.ImageOptions("qr", (pageW-qrSize)/2, pdf.GetY()+10, qrSize, qrSize, false, imgOptions, 0, "")

	// alignment frame
	pdf.SetDrawColor(180, 180, 180)
	pdf.Rect(5, 5, pageW-10, 20, "D")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// PrintTestPage renders a test page into dir, prints it and removes it
func PrintTestPage(ctx context.Context, d Dispatcher, dir string, info TestPageInfo) (PrintResult, error) {
	if info.Time.IsZero() {
		info.Time = time.Now()
	}
	if info.Hostname == "" {
		info.Hostname, _ = os.Hostname()
	}
	data, err := GenerateTestPage(info)
	if err != nil {
		return PrintResult{}, apperr.Wrap(apperr.KindInternal, "failed to render test page", err)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return PrintResult{}, apperr.Wrap(apperr.KindIO, "failed to create test page directory", err)
	}
	f, err := os.CreateTemp(dir, "testpage-*.pdf")
	if err != nil {
		return PrintResult{}, apperr.Wrap(apperr.KindIO, "failed to create test page", err)
	}
	path := f.Name()
	defer os.Remove(path)

	if _, err := f.Write(data); err != nil {
		f.Close()
		return PrintResult{}, apperr.Wrap(apperr.KindIO, "failed to write test page", err)
	}
	if err := f.Close(); err != nil {
		return PrintResult{}, apperr.Wrap(apperr.KindIO, "failed to write test page", err)
	}

	return d.Print(ctx, filepath.Clean(path), info.PrinterName, info.Options)
}
