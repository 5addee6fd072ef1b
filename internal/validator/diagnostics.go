package validator

import (
	"fmt"
	"io"
	"strings"
)

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Diagnostic is one finding about a quiz file. Question is -1 for findings
// about the quiz as a whole. Line and Column are 1-based and 0 when unknown.
type Diagnostic struct {
	Severity Severity `json:"severity"`
	Question int      `json:"question"`
	Field    string   `json:"field,omitempty"`
	Message  string   `json:"message"`
	Line     int      `json:"line,omitempty"`
	Column   int      `json:"column,omitempty"`
}

// Report collects the diagnostics of one quiz file.
type Report struct {
	Path        string       `json:"path"`
	Skipped     bool         `json:"skipped,omitempty"`
	Diagnostics []Diagnostic `json:"diagnostics"`

	source []string
}

func newReport(path, contents string) *Report {
	return &Report{
		Path:        path,
		Diagnostics: []Diagnostic{},
		source:      strings.Split(contents, "\n"),
	}
}

func (r *Report) add(d Diagnostic) {
	r.Diagnostics = append(r.Diagnostics, d)
}

func (r *Report) HasErrors() bool {
	for _, d := range r.Diagnostics {
		if d.Severity == SeverityError {
			return true
		}
	}
	return false
}

func (r *Report) Errors() []Diagnostic {
	return r.filter(SeverityError)
}

func (r *Report) Warnings() []Diagnostic {
	return r.filter(SeverityWarning)
}

func (r *Report) filter(severity Severity) []Diagnostic {
	var out []Diagnostic
	for _, d := range r.Diagnostics {
		if d.Severity == severity {
			out = append(out, d)
		}
	}
	return out
}

// Err returns ErrQuizInvalid naming the file when the report has errors.
func (r *Report) Err() error {
	if !r.HasErrors() {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrQuizInvalid, r.Path)
}

// Render writes every diagnostic with an excerpt of the offending line:
//
//	error: Duplicate ID: hello
//	  --> quiz.toml:3:1
//	   |
//	 3 | id = "hello"
//	   | ^
func (r *Report) Render(w io.Writer) error {
	for _, d := range r.Diagnostics {
		if err := r.renderOne(w, d); err != nil {
			return err
		}
	}
	return nil
}

func (r *Report) renderOne(w io.Writer, d Diagnostic) error {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s\n", d.Severity, d.Message)

	if d.Line <= 0 || d.Line > len(r.source) {
		fmt.Fprintf(&b, "  --> %s\n\n", r.Path)
		_, err := io.WriteString(w, b.String())
		return err
	}

	column := max(d.Column, 1)
	gutter := strings.Repeat(" ", len(fmt.Sprint(d.Line)))
	fmt.Fprintf(&b, "%s--> %s:%d:%d\n", gutter, r.Path, d.Line, column)
	fmt.Fprintf(&b, "%s |\n", gutter)
	fmt.Fprintf(&b, "%d | %s\n", d.Line, strings.TrimRight(r.source[d.Line-1], "\r"))
	fmt.Fprintf(&b, "%s | %s^\n\n", gutter, strings.Repeat(" ", column-1))

	_, err := io.WriteString(w, b.String())
	return err
}
