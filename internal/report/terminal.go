// Package report renders resistance reports for people: a styled terminal
// block per experiment and a PDF gallery of adversarial examples.
package report

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/evaluate"
)

var (
	titleColor  = lipgloss.Color("#7D56F4")
	goodColor   = lipgloss.Color("#00D26A")
	badColor    = lipgloss.Color("#FF3838")
	mutedColor  = lipgloss.Color("#6B7280")
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(titleColor)
	nameStyle   = lipgloss.NewStyle().Foreground(mutedColor)
	goodStyle   = lipgloss.NewStyle().Foreground(goodColor)
	badStyle    = lipgloss.NewStyle().Foreground(badColor)
)

var colorMu sync.Mutex

// SetNoColor switches all terminal output to plain ASCII.
func SetNoColor(noColor bool) {
	colorMu.Lock()
	defer colorMu.Unlock()
	if noColor {
		lipgloss.SetColorProfile(termenv.Ascii)
	}
}

// Scores writes the "TEST SCORES of <name>:" block for one report.
//
// Clean accuracy is good when high; attack success rates are good when low.
func Scores(w io.Writer, name string, rep evaluate.Report) error {
	var b strings.Builder
	b.WriteString(headerStyle.Render(fmt.Sprintf("TEST SCORES of %s:", name)))
	b.WriteByte('\n')

	width := 0
	for _, m := range rep.Metrics() {
		width = max(width, len(m.Name))
	}
	for _, m := range rep.Metrics() {
		b.WriteString("  ")
		b.WriteString(nameStyle.Render(fmt.Sprintf("%-*s", width, m.Name)))
		b.WriteString("  ")
		b.WriteString(valueStyle(m).Render(fmt.Sprintf("%.4f", m.Value)))
		b.WriteByte('\n')
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func valueStyle(m evaluate.Metric) lipgloss.Style {
	good := m.Value >= 0.5
	if strings.HasPrefix(m.Name, "%") {
		good = m.Value < 0.5
	}
	if good {
		return goodStyle
	}
	return badStyle
}

// Row is one experiment in a summary table.
type Row struct {
	Experiment string
	Report     evaluate.Report
	Loaded     bool
}

// Summary writes one line per experiment with every report entry as a
// column. Columns follow the first appearance of each metric name.
func Summary(w io.Writer, rows []Row) error {
	var cols []string
	seen := map[string]bool{}
	for _, r := range rows {
		for _, m := range r.Report.Metrics() {
			if !seen[m.Name] {
				seen[m.Name] = true
				cols = append(cols, m.Name)
			}
		}
	}

	nameW := len("experiment")
	for _, r := range rows {
		nameW = max(nameW, len(r.Experiment))
	}

	var b strings.Builder
	header := fmt.Sprintf("%-*s", nameW, "experiment")
	for _, c := range cols {
		header += fmt.Sprintf("  %10s", c)
	}
	header += "  source"
	b.WriteString(headerStyle.Render(header))
	b.WriteByte('\n')

	for _, r := range rows {
		b.WriteString(fmt.Sprintf("%-*s", nameW, r.Experiment))
		for _, c := range cols {
			v, ok := r.Report.Get(c)
			if !ok {
				b.WriteString(fmt.Sprintf("  %10s", "-"))
				continue
			}
			b.WriteString(fmt.Sprintf("  %10.4f", v))
		}
		source := "trained"
		if r.Loaded {
			source = "checkpoint"
		}
		b.WriteString("  " + nameStyle.Render(source))
		b.WriteByte('\n')
	}
	_, err := io.WriteString(w, b.String())
	return err
}
