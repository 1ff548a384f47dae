package parser

import (
	"fmt"

	"github.com/agentflare-ai/go-xmldom"
)

// Severity represents the severity level of a diagnostic.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Position contains source position information for a diagnostic.
type Position struct {
	File   string `json:"file"`
	Line   int    `json:"line"`
	Column int    `json:"column"`
	Offset int64  `json:"offset"`
}

// Diagnostic describes a structural problem found while building the
// document model.
type Diagnostic struct {
	Severity  Severity `json:"severity"`
	Code      string   `json:"code"`
	Message   string   `json:"message"`
	Position  Position `json:"position"`
	Tag       string   `json:"tag,omitempty"`
	Attribute string   `json:"attribute,omitempty"`
	Hints     []string `json:"hints,omitempty"`
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s %s at %s:%d:%d: %s",
		d.Severity, d.Code, d.Position.File, d.Position.Line, d.Position.Column, d.Message)
}

// Result is the aggregate parse result.
type Result struct {
	Diagnostics []Diagnostic `json:"diagnostics"`
}

// HasErrors returns true if there is at least one error severity diagnostic.
func (r *Result) HasErrors() bool {
	for _, d := range r.Diagnostics {
		if d.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Add appends diagnostics to the result.
func (r *Result) Add(diags ...Diagnostic) {
	r.Diagnostics = append(r.Diagnostics, diags...)
}

// Diagnostic codes.
const (
	CodeDuplicateID       = "E101"
	CodeUnresolvedTarget  = "E102"
	CodeBadDescriptor     = "E103"
	CodeIllegalNesting    = "E104"
	CodeMissingAttribute  = "E105"
	CodeBadInitial        = "E106"
	CodeDepthExceeded     = "E107"
	CodeUnknownDatamodel  = "E108"
	CodeBadAttributeValue = "E109"
)

func (p *parser) position(el xmldom.Element) Position {
	line, col, off := el.Position()
	return Position{File: p.source, Line: line, Column: col, Offset: off}
}

func (p *parser) errorf(el xmldom.Element, code, attr, format string, args ...any) {
	d := Diagnostic{
		Severity: SeverityError,
		Code:     code,
		Message:  fmt.Sprintf(format, args...),
		Position: p.position(el),
		Tag:      string(el.LocalName()),
	}
	d.Attribute = attr
	p.result.Add(d)
}

func (p *parser) warnf(el xmldom.Element, code, attr, format string, args ...any) {
	d := Diagnostic{
		Severity: SeverityWarning,
		Code:     code,
		Message:  fmt.Sprintf(format, args...),
		Position: p.position(el),
		Tag:      string(el.LocalName()),
	}
	d.Attribute = attr
	p.result.Add(d)
}
