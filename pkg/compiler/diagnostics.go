package compiler

import (
	"regexp"
	"strconv"
	"strings"
)

// Diagnostic is one parsed compiler message.
type Diagnostic struct {
	File     string `json:"file,omitempty"`
	Line     int    `json:"line"`
	Column   int    `json:"column,omitempty"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
}

// gcc/clang emit "file:line:col: severity: message"; older drivers omit
// the column.
var reDiag = regexp.MustCompile(`^([^:]+):(\d+):(?:(\d+):)?\s*(fatal error|error|warning|note):\s*(.*)$`)

// ParseDiagnostics extracts structured diagnostics from compiler stderr.
// Lines that do not parse (context lines, carets) are skipped; a run with
// no parseable lines at all yields one diagnostic carrying the raw text.
func ParseDiagnostics(stderr string) []Diagnostic {
	var diags []Diagnostic
	for _, line := range strings.Split(stderr, "\n") {
		m := reDiag.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		ln, _ := strconv.Atoi(m[2])
		col, _ := strconv.Atoi(m[3])
		sev := m[4]
		if sev == "fatal error" {
			sev = "error"
		}
		diags = append(diags, Diagnostic{
			File:     m[1],
			Line:     ln,
			Column:   col,
			Severity: sev,
			Message:  m[5],
		})
	}
	if diags == nil && strings.TrimSpace(stderr) != "" {
		diags = []Diagnostic{{Severity: "error", Message: strings.TrimSpace(stderr)}}
	}
	return diags
}

// HasErrors reports whether any diagnostic is an error.
func HasErrors(diags []Diagnostic) bool {
	for _, d := range diags {
		if d.Severity == "error" {
			return true
		}
	}
	return false
}
