// Package report renders a detection record to a PDF document for offline
// review and record keeping.
package report

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/phpdave11/gofpdf"

	"github.com/JAYASURYA-KK/sandguard-ai/internal/models"
)

// DetectionPDF writes a one-detection report: metadata, severity summary,
// and the before/after/overlay images.
func DetectionPDF(d *models.Detection, w io.Writer) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(14, 14, 14)
	pdf.SetAutoPageBreak(true, 14)
	pdf.SetTitle("SandGuard - Detection Report", false)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(0, 9, "SandGuard Change Detection Report", "", 1, "L", false, 0, "")

	pdf.SetFont("Helvetica", "", 10)
	pdf.SetTextColor(60, 60, 60)
	pdf.CellFormat(0, 6, fmt.Sprintf("Generated at: %s", time.Now().UTC().Format("2006-01-02 15:04:05 MST")), "", 1, "L", false, 0, "")
	pdf.Ln(2)

	sectionTitle(pdf, "1. Detection")
	kv(pdf, "ID", d.ID)
	kv(pdf, "Created At", d.CreatedAt.Format("2006-01-02 15:04:05 MST"))
	kv(pdf, "Status", d.Status)
	kv(pdf, "Model", fmt.Sprintf("%s v%s", d.ModelInfo.Tag, d.ModelInfo.Version))
	if d.Coordinates != nil {
		kv(pdf, "Coordinates", formatCoordinates(d.Coordinates))
	}
	if strings.TrimSpace(d.Notes) != "" {
		kv(pdf, "Notes", d.Notes)
	}
	pdf.Ln(2)

	sectionTitle(pdf, "2. Severity")
	kv(pdf, "Severity", fmt.Sprintf("%d / 100 (%s)", d.Severity, d.SeverityLevel))
	kv(pdf, "Changed Pixels", fmt.Sprintf("%d of %d (%.2f%%)",
		d.ChangedPixels, d.TotalPixels, 100*ratio(d.ChangedPixels, d.TotalPixels)))
	kv(pdf, "Resolution", fmt.Sprintf("%dx%d", d.Width, d.Height))
	kv(pdf, "Diff Threshold", fmt.Sprintf("%d (adaptive: %v)", d.Threshold, d.Adaptive))
	if d.Prediction != nil {
		kv(pdf, "Inference Confidence", fmt.Sprintf("%.2f", d.Prediction.Confidence))
		kv(pdf, "Flagged Regions", fmt.Sprintf("%d (machinery: %d)",
			len(d.Prediction.ChangedAreas), d.Prediction.ObjectCount()))
		if d.Prediction.ErosionRisk != "" {
			kv(pdf, "Erosion Risk", d.Prediction.ErosionRisk)
		}
	}
	pdf.Ln(2)

	sectionTitle(pdf, "3. Imagery")
	embedImage(pdf, "before", "Before", d.BeforeImage)
	embedImage(pdf, "after", "After", d.AfterImage)
	embedImage(pdf, "overlay", "Change Overlay", d.OverlayImage)

	return pdf.Output(w)
}

func embedImage(pdf *gofpdf.Fpdf, name, label string, data []byte) {
	if len(data) == 0 {
		return
	}
	pdf.SetFont("Helvetica", "B", 10)
	pdf.SetTextColor(30, 30, 30)
	pdf.CellFormat(0, 6, label, "", 1, "L", false, 0, "")

	opts := gofpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(data))
	pdf.ImageOptions(name, pdf.GetX(), pdf.GetY(), 120, 0, true, opts, 0, "")
	pdf.Ln(3)
}

func sectionTitle(pdf *gofpdf.Fpdf, title string) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.SetTextColor(0, 0, 0)
	pdf.CellFormat(0, 7, title, "", 1, "L", false, 0, "")
	pdf.SetDrawColor(200, 200, 200)
	pdf.Line(pdf.GetX(), pdf.GetY(), 200, pdf.GetY())
	pdf.Ln(2)
}

func kv(pdf *gofpdf.Fpdf, key, value string) {
	if strings.TrimSpace(value) == "" {
		value = "-"
	}
	pdf.SetFont("Helvetica", "B", 10)
	pdf.SetTextColor(30, 30, 30)
	pdf.CellFormat(40, 5.2, key+":", "", 0, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	pdf.SetTextColor(20, 20, 20)
	pdf.MultiCell(0, 5.2, value, "", "L", false)
}

func formatCoordinates(c *models.Coordinates) string {
	if c.Lat != nil && c.Lng != nil {
		return fmt.Sprintf("%.6f, %.6f", *c.Lat, *c.Lng)
	}
	if len(c.BBox) == 4 {
		return fmt.Sprintf("bbox [%.6f, %.6f, %.6f, %.6f]", c.BBox[0], c.BBox[1], c.BBox[2], c.BBox[3])
	}
	return ""
}

func ratio(changed, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(changed) / float64(total)
}
