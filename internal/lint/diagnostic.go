/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package lint

import (
	"fmt"
	"strings"
	"unicode/utf16"
)

// Severity of a diagnostic.
type Severity int

const (
	SeverityError Severity = iota + 1
	SeverityWarning
)

func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	default:
		return fmt.Sprintf("severity(%d)", int(s))
	}
}

func (s Severity) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Severity) UnmarshalText(b []byte) error {
	switch strings.ToLower(string(b)) {
	case "error":
		*s = SeverityError
	case "warning":
		*s = SeverityWarning
	default:
		return fmt.Errorf("unknown severity %q", string(b))
	}
	return nil
}

// Code identifies the rule that produced a diagnostic.
type Code string

const (
	CodeSyntax          Code = "syntax"
	CodeUnknownCommand  Code = "unknown-command"
	CodeMissingParam    Code = "missing-param"
	CodeParamType       Code = "param-type"
	CodeOptionalForm    Code = "optional-form"
	CodeUnknownOptional Code = "unknown-optional"
	CodeUnknownVariable Code = "unknown-variable"
	CodeVariableType    Code = "variable-type"
	CodeRedeclaration   Code = "redeclaration"
	CodeVersion         Code = "version"
	CodeGame            Code = "game"
	CodeDuplicateMarker Code = "duplicate-marker"
	CodeUnknownMarker   Code = "unknown-marker"
)

// Position is a 0-based line and a 0-based character offset counted in UTF-16
// code units, as editors expect.
type Position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

// Range is a half-open source range.
type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// Diagnostic is one validation finding.
type Diagnostic struct {
	Range    Range    `json:"range"`
	Severity Severity `json:"severity"`
	Code     Code     `json:"code"`
	Message  string   `json:"message"`
	Hint     string   `json:"hint,omitempty"`
}

// String renders the diagnostic with 1-based line and column numbers.
func (d Diagnostic) String() string {
	s := fmt.Sprintf("%d:%d: %s: %s", d.Range.Start.Line+1, d.Range.Start.Character+1, d.Severity, d.Message)
	if d.Hint != "" {
		s += " (" + d.Hint + ")"
	}
	return s
}

// Count returns the number of errors and warnings in diags.
func Count(diags []Diagnostic) (errs, warns int) {
	for _, d := range diags {
		switch d.Severity {
		case SeverityError:
			errs++
		case SeverityWarning:
			warns++
		}
	}
	return errs, warns
}

// Failed reports whether diags should fail a lint run.
func Failed(diags []Diagnostic, warningsAsErrors bool) bool {
	errs, warns := Count(diags)
	return errs > 0 || (warningsAsErrors && warns > 0)
}

// span converts byte offsets within a line to a Range.
func span(line int, text string, start, end int) Range {
	return Range{
		Start: Position{Line: line, Character: utf16Len(text, start)},
		End:   Position{Line: line, Character: utf16Len(text, end)},
	}
}

func utf16Len(text string, off int) int {
	if off > len(text) {
		off = len(text)
	}
	if off < 0 {
		off = 0
	}
	n := 0
	for _, r := range text[:off] {
		n += utf16.RuneLen(r)
	}
	return n
}
