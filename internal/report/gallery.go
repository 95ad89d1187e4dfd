package report

import (
	"fmt"
	"io"
	"math"

	gofpdf "github.com/go-pdf/fpdf"

	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/evaluate"
)

const (
	cellMM   = 40.0
	marginMM = 15.0
)

// Gallery writes a PDF with one row per example: the clean image, the
// adversarial image and the perturbation magnified to full contrast.
//
// Pixel values are mapped from [lo, hi] to 0..255. Three-channel samples are
// drawn as RGB, anything else as the grayscale of the first channel.
func Gallery(w io.Writer, title string, examples []evaluate.Example, lo, hi float32) error {
	if hi <= lo {
		return fmt.Errorf("gallery: empty value range [%g, %g]", lo, hi)
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(title, true)
	pdf.SetAutoPageBreak(false, marginMM)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 14)
	pdf.CellFormat(0, 10, title, "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 9)
	pdf.SetTextColor(80, 80, 80)
	if len(examples) == 0 {
		pdf.CellFormat(0, 6, "No successful adversarial examples were recorded.", "", 1, "L", false, 0, "")
		return pdf.Output(w)
	}
	pdf.CellFormat(0, 6, fmt.Sprintf("%d examples: clean | adversarial | perturbation", len(examples)), "", 1, "L", false, 0, "")

	_, pageH := pdf.GetPageSize()
	y := pdf.GetY() + 4
	for i, ex := range examples {
		if y+cellMM+10 > pageH-marginMM {
			pdf.AddPage()
			y = marginMM
		}
		if err := drawExample(pdf, ex, y, lo, hi); err != nil {
			return fmt.Errorf("gallery example %d: %w", i, err)
		}
		y += cellMM + 12
	}
	return pdf.Output(w)
}

func drawExample(pdf *gofpdf.Fpdf, ex evaluate.Example, y float64, lo, hi float32) error {
	if len(ex.Shape) != 3 {
		return fmt.Errorf("want [C,H,W] sample shape, got %v", ex.Shape)
	}
	n := ex.Shape.NumElements()
	if len(ex.Clean) != n || len(ex.Adversarial) != n {
		return fmt.Errorf("sample length does not match shape %v", ex.Shape)
	}

	delta := make([]float32, n)
	var peak float32
	for i := range delta {
		delta[i] = ex.Adversarial[i] - ex.Clean[i]
		peak = max(peak, float32(math.Abs(float64(delta[i]))))
	}
	if peak == 0 {
		peak = 1
	}
	for i := range delta {
		delta[i] = 0.5 + 0.5*delta[i]/peak
	}

	x := marginMM
	drawImage(pdf, ex.Shape, ex.Clean, x, y, lo, hi)
	caption(pdf, x, y+cellMM+1, fmt.Sprintf("label %d, pred %d", ex.Label, ex.CleanPred))

	x += cellMM + 8
	drawImage(pdf, ex.Shape, ex.Adversarial, x, y, lo, hi)
	caption(pdf, x, y+cellMM+1, fmt.Sprintf("pred %d", ex.AdvPred))

	x += cellMM + 8
	drawImage(pdf, ex.Shape, delta, x, y, 0, 1)
	caption(pdf, x, y+cellMM+1, fmt.Sprintf("max |delta| %.4f", peak))
	return nil
}

func drawImage(pdf *gofpdf.Fpdf, shape []int, data []float32, x, y float64, lo, hi float32) {
	c, h, w := shape[0], shape[1], shape[2]
	px := cellMM / float64(max(h, w))
	plane := h * w
	for r := 0; r < h; r++ {
		for col := 0; col < w; col++ {
			i := r*w + col
			red := level(data[i], lo, hi)
			green, blue := red, red
			if c == 3 {
				green = level(data[plane+i], lo, hi)
				blue = level(data[2*plane+i], lo, hi)
			}
			pdf.SetFillColor(red, green, blue)
			pdf.Rect(x+float64(col)*px, y+float64(r)*px, px, px, "F")
		}
	}
	pdf.SetDrawColor(180, 180, 180)
	pdf.Rect(x, y, px*float64(w), px*float64(h), "D")
}

func caption(pdf *gofpdf.Fpdf, x, y float64, text string) {
	pdf.SetXY(x, y)
	pdf.SetFont("Helvetica", "", 8)
	pdf.SetTextColor(60, 60, 60)
	pdf.CellFormat(cellMM, 5, text, "", 0, "C", false, 0, "")
}

func level(v, lo, hi float32) int {
	t := (v - lo) / (hi - lo)
	t = min(max(t, 0), 1)
	return int(math.Round(float64(t) * 255))
}
