// Package report collects comparison outcomes for a run and exports them for
// QA sign-off.
package report

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/xuri/excelize/v2"
	"gopkg.in/yaml.v3"

	"github.com/xyzbank/banking-e2e/internal/visual"
)

// Format is an export format.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

const sheetName = "Visual"

var ErrUnknownFormat = errors.New("report: unknown format")

// ParseFormat accepts a format name or a file extension.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(s, ".")) {
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	case "csv":
		return FormatCSV, nil
	case "xlsx":
		return FormatXLSX, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// Entry is one row of the report.
type Entry struct {
	visual.Result `yaml:",inline"`

	DiffRatio float64   `json:"diffRatio" yaml:"diffRatio"`
	Passed    bool      `json:"passed" yaml:"passed"`
	Error     string    `json:"error,omitempty" yaml:"error,omitempty"`
	CheckedAt time.Time `json:"checkedAt" yaml:"checkedAt"`
}

// Summary aggregates a report.
type Summary struct {
	Total            int `json:"total" yaml:"total"`
	Passed           int `json:"passed" yaml:"passed"`
	Failed           int `json:"failed" yaml:"failed"`
	BaselinesCreated int `json:"baselinesCreated" yaml:"baselinesCreated"`
	Errors           int `json:"errors" yaml:"errors"`
}

// Report is safe for concurrent use.
type Report struct {
	mu            sync.Mutex
	maxDiffPixels int
	maxDiffRatio  float64
	startedAt     time.Time
	entries       []Entry
	now           func() time.Time
}

// New creates a report judging results against the given limits. A negative
// limit disables that check.
func New(maxDiffPixels int, maxDiffRatio float64) *Report {
	return &Report{
		maxDiffPixels: maxDiffPixels,
		maxDiffRatio:  maxDiffRatio,
		startedAt:     time.Now(),
		now:           time.Now,
	}
}

// Add records the outcome of comparing name. res may be nil when err is set.
func (r *Report) Add(name string, res *visual.Result, err error) Entry {
	e := Entry{CheckedAt: r.now()}
	if res != nil {
		e.Result = *res
		e.DiffRatio = res.DiffRatio()
	}
	e.Name = name
	if err != nil {
		e.Error = err.Error()
	} else if res != nil {
		e.Passed = res.Passed(r.maxDiffPixels, r.maxDiffRatio)
	}

	r.mu.Lock()
	r.entries = append(r.entries, e)
	r.mu.Unlock()
	return e
}

// Entries returns a copy of the recorded rows in insertion order.
func (r *Report) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Entry(nil), r.entries...)
}

func (r *Report) Summary() Summary {
	r.mu.Lock()
	defer r.mu.Unlock()
	var s Summary
	for _, e := range r.entries {
		s.Total++
		switch {
		case e.Error != "":
			s.Errors++
			s.Failed++
		case e.Passed:
			s.Passed++
		default:
			s.Failed++
		}
		if e.IsBaselineCreated {
			s.BaselinesCreated++
		}
	}
	return s
}

// Failed reports whether any entry failed or errored.
func (r *Report) Failed() bool {
	return r.Summary().Failed > 0
}

type document struct {
	StartedAt time.Time `json:"startedAt" yaml:"startedAt"`
	Summary   Summary   `json:"summary" yaml:"summary"`
	Entries   []Entry   `json:"entries" yaml:"entries"`
}

func (r *Report) document() document {
	return document{
		StartedAt: r.startedAt,
		Summary:   r.Summary(),
		Entries:   r.Entries(),
	}
}

// Write encodes the report to w.
func (r *Report) Write(w io.Writer, format Format) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r.document())
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r.document()); err != nil {
			return err
		}
		return enc.Close()
	case FormatCSV:
		return r.writeCSV(w)
	case FormatXLSX:
		return r.writeXLSX(w)
	}
	return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
}

// WriteFile writes the report in the format implied by the path extension.
func (r *Report) WriteFile(path string) error {
	format, err := ParseFormat(filepath.Ext(path))
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report: %w", err)
	}
	if err := r.Write(f, format); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

var header = []string{"Name", "Status", "Diff Pixels", "Total Pixels", "Diff Ratio", "Width", "Height", "Error", "Checked At"}

func (e Entry) status() string {
	switch {
	case e.Error != "":
		return "error"
	case e.IsBaselineCreated:
		return "baseline created"
	case e.Passed:
		return "passed"
	}
	return "failed"
}

func (r *Report) writeCSV(w io.Writer) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(header); err != nil {
		return err
	}
	for _, e := range r.Entries() {
		err := writer.Write([]string{
			e.Name,
			e.status(),
			strconv.Itoa(e.DiffPixels),
			strconv.Itoa(e.TotalPixels),
			strconv.FormatFloat(e.DiffRatio, 'f', 6, 64),
			strconv.Itoa(e.Width),
			strconv.Itoa(e.Height),
			e.Error,
			e.CheckedAt.Format("2006-01-02 15:04:05"),
		})
		if err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func (r *Report) writeXLSX(w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}

	row := make([]interface{}, len(header))
	for i, h := range header {
		row[i] = h
	}
	if err := f.SetSheetRow(sheetName, "A1", &row); err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(len(header), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheetName, "A1", last, bold); err != nil {
		return err
	}

	for i, e := range r.Entries() {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		values := []interface{}{
			e.Name,
			e.status(),
			e.DiffPixels,
			e.TotalPixels,
			e.DiffRatio,
			e.Width,
			e.Height,
			e.Error,
			e.CheckedAt.Format("2006-01-02 15:04:05"),
		}
		if err := f.SetSheetRow(sheetName, cell, &values); err != nil {
			return err
		}
	}
	if err := f.SetColWidth(sheetName, "A", "A", 32); err != nil {
		return err
	}

	return f.Write(w)
}
