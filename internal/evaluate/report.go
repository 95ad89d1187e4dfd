package evaluate

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// KeyTestAccuracy is the clean accuracy entry of every report.
const KeyTestAccuracy = "test_acc"

// AttackKey returns the report entry of an attack's success rate, e.g. "%fgsm".
func AttackKey(attackName string) string { return "%" + attackName }

// Metric is one report entry.
type Metric struct {
	Name  string
	Value float64
}

// Report is an immutable, ordered metric → value mapping.
type Report struct {
	metrics []Metric
}

// NewReport builds a report. Duplicate names are an error.
func NewReport(metrics ...Metric) (Report, error) {
	seen := make(map[string]bool, len(metrics))
	for _, m := range metrics {
		if seen[m.Name] {
			return Report{}, fmt.Errorf("duplicate report metric %q", m.Name)
		}
		seen[m.Name] = true
	}
	return Report{metrics: append([]Metric(nil), metrics...)}, nil
}

// Get returns a metric value.
func (r Report) Get(name string) (float64, bool) {
	for _, m := range r.metrics {
		if m.Name == name {
			return m.Value, true
		}
	}
	return 0, false
}

// Metrics returns a copy of the entries in order.
func (r Report) Metrics() []Metric {
	return append([]Metric(nil), r.metrics...)
}

// Len returns the number of entries.
func (r Report) Len() int { return len(r.metrics) }

func (r Report) String() string {
	parts := make([]string, len(r.metrics))
	for i, m := range r.metrics {
		parts[i] = fmt.Sprintf("%s=%.4f", m.Name, m.Value)
	}
	return strings.Join(parts, " ")
}

// MarshalJSON encodes the report as an object in entry order.
func (r Report) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, m := range r.metrics {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(m.Name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(m.Value)
		if err != nil {
			return nil, fmt.Errorf("metric %s: %w", m.Name, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes an object, keeping key order.
func (r *Report) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("report: expected object, got %v", tok)
	}
	var metrics []Metric
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := tok.(string)
		if !ok {
			return fmt.Errorf("report: expected key, got %v", tok)
		}
		var v float64
		if err := dec.Decode(&v); err != nil {
			return fmt.Errorf("report: metric %s: %w", name, err)
		}
		metrics = append(metrics, Metric{Name: name, Value: v})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	rep, err := NewReport(metrics...)
	if err != nil {
		return err
	}
	*r = rep
	return nil
}
