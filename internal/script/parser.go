/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package script parses Oyster scripts.
//
// Every line is blank, a comment ("#" or "//"), or a statement:
//
//	Command [param1, param2, name=value]
//
// Parse is lenient and drops lines that are not statements; Scan keeps every
// line with its classification so the validator can report the invalid ones.
package script

import (
	"regexp"
	"strings"
)

// CommentMarkers start a comment line. "//" is the older dialect.
var CommentMarkers = []string{"#", "//"}

var reStatement = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_]*)\s*\[(.*)\]$`)

// IsComment reports whether a trimmed line is a comment.
func IsComment(trimmed string) bool {
	for _, m := range CommentMarkers {
		if strings.HasPrefix(trimmed, m) {
			return true
		}
	}
	return false
}

// MatchLine matches a trimmed line against the statement grammar and returns
// the command name and the text between the outer brackets.
func MatchLine(trimmed string) (cmd, body string, ok bool) {
	m := reStatement.FindStringSubmatch(trimmed)
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}

// SplitLines splits text on LF, dropping a CR before each LF.
func SplitLines(text string) []string {
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}

// ParseLine parses one source line. index is its 0-based line number.
func ParseLine(index int, raw string) Line {
	trimmed := strings.TrimSpace(raw)
	ln := Line{Index: index, Text: raw, Indent: len(raw) - len(strings.TrimLeft(raw, " \t"))}
	switch {
	case trimmed == "":
		ln.Kind = LineBlank
	case IsComment(trimmed):
		ln.Kind = LineComment
	default:
		cmd, body, ok := MatchLine(trimmed)
		if !ok {
			ln.Kind = LineInvalid
			break
		}
		ln.Kind = LineStatement
		ln.Stmt = &Statement{Command: cmd, Params: ParseParams(body), Line: index, Raw: raw}
	}
	return ln
}

// Scan classifies every line of text.
func Scan(text string) []Line {
	src := SplitLines(text)
	out := make([]Line, len(src))
	for i, raw := range src {
		out[i] = ParseLine(i, raw)
	}
	return out
}

// Parse returns the statements of text in source order. Blank, comment and
// malformed lines are skipped.
func Parse(text string) []Statement {
	var stmts []Statement
	for i, raw := range SplitLines(text) {
		if ln := ParseLine(i, raw); ln.Kind == LineStatement {
			stmts = append(stmts, *ln.Stmt)
		}
	}
	return stmts
}

// Statements extracts the statements of scanned lines.
func Statements(lines []Line) []Statement {
	var stmts []Statement
	for _, ln := range lines {
		if ln.Stmt != nil {
			stmts = append(stmts, *ln.Stmt)
		}
	}
	return stmts
}
