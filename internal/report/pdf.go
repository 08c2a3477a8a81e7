package report

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
	qrcode "github.com/skip2/go-qrcode"

	"example.com/ulogsink/internal/common"
)

// SaveCapturePDF renders the capture report into a PDF document with
// the file hash embedded as a QR code.
func SaveCapturePDF(rep CaptureReport, out string) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Flight Log Capture Report", false)
	pdf.SetAuthor("ulogctl", false)
	pdf.SetCreator("ulogctl", false)
	pdf.SetMargins(15, 20, 15)
	pdf.SetAutoPageBreak(true, 20)
	pdf.AddPage()

	addPDFTitle(pdf, "Flight Log Capture Report")
	addSummarySection(pdf, rep)
	addRecordSection(pdf, rep)
	addEventsSection(pdf, rep.Events)
	if err := addHashQR(pdf, rep.Sha256); err != nil {
		return err
	}

	if pdf.Err() {
		return pdf.Error()
	}
	return pdf.OutputFileAndClose(out)
}

func addPDFTitle(pdf *gofpdf.Fpdf, title string) {
	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, title)
	pdf.Ln(12)
}

func addSummarySection(pdf *gofpdf.Fpdf, rep CaptureReport) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "Summary")
	pdf.Ln(8)

	pdf.SetFont("Helvetica", "", 11)
	items := []struct {
		label string
		value string
	}{
		{label: "File", value: rep.File},
		{label: "Size", value: fmt.Sprintf("%d bytes", rep.SizeBytes)},
		{label: "ULog Version", value: strconv.Itoa(int(rep.Version))},
		{label: "Log Start", value: fmt.Sprintf("%d us", rep.TimestampUs)},
		{label: "Records", value: strconv.Itoa(rep.Records)},
		{label: "Record Bytes", value: strconv.FormatInt(rep.DataBytes, 10)},
		{label: "Complete", value: completeLabel(!rep.Truncated)},
		{label: "SHA-256", value: rep.Sha256},
		{label: "Generated", value: rep.GeneratedAt.Format(time.RFC3339)},
	}
	for _, item := range items {
		pdf.CellFormat(40, 6, item.label, "", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 9)
		pdf.CellFormat(0, 6, item.value, "", 1, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 11)
	}
	pdf.Ln(4)
}

func addRecordSection(pdf *gofpdf.Fpdf, rep CaptureReport) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "Record Types")
	pdf.Ln(9)

	headers := []string{"Type", "Count"}
	widths := []float64{40, 40}

	pdf.SetFillColor(240, 240, 240)
	pdf.SetFont("Helvetica", "B", 10)
	for i, h := range headers {
		pdf.CellFormat(widths[i], 7, h, "1", 0, "L", true, 0, "")
	}
	pdf.Ln(-1)

	types := make([]int, 0, len(rep.TypeCounts))
	for t := range rep.TypeCounts {
		types = append(types, int(t))
	}
	sort.Ints(types)

	pdf.SetFont("Helvetica", "", 9)
	for _, t := range types {
		values := []string{typeLabel(uint8(t)), strconv.Itoa(rep.TypeCounts[uint8(t)])}
		renderTableRow(pdf, widths, values, 5.0)
	}
	pdf.Ln(4)
}

func addEventsSection(pdf *gofpdf.Fpdf, events []common.SessionEvent) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "Session Events")
	pdf.Ln(9)

	if len(events) == 0 {
		pdf.SetFont("Helvetica", "", 11)
		pdf.MultiCell(0, 6, "No events recorded for this capture.", "", "L", false)
		pdf.Ln(2)
		return
	}

	pdf.SetFont("Helvetica", "", 9)
	for _, ev := range events {
		line := fmt.Sprintf("%s  %s", ev.Ts.Format(time.RFC3339), ev.Event)
		if ev.Sequence != 0 {
			line += fmt.Sprintf(" (seq %d)", ev.Sequence)
		}
		if msg := strings.TrimSpace(ev.Detail); msg != "" {
			line += ": " + msg
		}
		pdf.MultiCell(0, 4, line, "", "L", false)
	}
	pdf.Ln(2)
}

// addHashQR embeds the capture's SHA-256 as a QR code so the printed
// report can be matched against the file on disk. The hash comes from
// Sha256OfFile and is already plain lowercase hex; uppercasing lets
// scanners use the denser alphanumeric QR mode.
func addHashQR(pdf *gofpdf.Fpdf, hash string) error {
	hash = strings.TrimSpace(hash)
	if hash == "" {
		return fmt.Errorf("capture hash is empty")
	}
	png, err := qrcode.Encode(strings.ToUpper(hash), qrcode.Medium, 256)
	if err != nil {
		return err
	}
	opts := gofpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader("capture-hash", opts, bytes.NewReader(png))
	pdf.ImageOptions("capture-hash", 15, pdf.GetY()+4, 36, 36, false, opts, 0, "")
	return nil
}

func renderTableRow(pdf *gofpdf.Fpdf, widths []float64, values []string, lineHeight float64) {
	xStart := pdf.GetX()
	yStart := pdf.GetY()
	maxLines := 1
	splitCols := make([][]string, len(values))
	for i, val := range values {
		text := strings.TrimSpace(val)
		if text == "" {
			text = "-"
		}
		lines := pdf.SplitText(text, widths[i]-2)
		if len(lines) == 0 {
			lines = []string{""}
		}
		splitCols[i] = lines
		if len(lines) > maxLines {
			maxLines = len(lines)
		}
	}
	rowHeight := float64(maxLines) * lineHeight
	x := xStart
	for i, lines := range splitCols {
		pdf.SetXY(x, yStart)
		cellText := strings.Join(lines, "\n")
		pdf.MultiCell(widths[i], lineHeight, cellText, "1", "L", false)
		x += widths[i]
	}
	pdf.SetXY(xStart, yStart+rowHeight)
}

func completeLabel(ok bool) string {
	if ok {
		return "YES"
	}
	return "TRUNCATED"
}

// typeLabel names the well-known ULog record types; anything else shows
// as the raw character.
func typeLabel(t uint8) string {
	switch t {
	case 'B':
		return "B (flag bits)"
	case 'F':
		return "F (format)"
	case 'I':
		return "I (info)"
	case 'M':
		return "M (multi info)"
	case 'P':
		return "P (parameter)"
	case 'A':
		return "A (add subscription)"
	case 'R':
		return "R (remove subscription)"
	case 'D':
		return "D (data)"
	case 'L':
		return "L (logged string)"
	case 'S':
		return "S (synchronization)"
	case 'O':
		return "O (dropout)"
	}
	return fmt.Sprintf("%q", t)
}
