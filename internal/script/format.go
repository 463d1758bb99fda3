/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package script

import "strings"

// Format writes a statement back in canonical spacing:
//
//	Command [a, b, name=c]
//
// Values are written as they appeared in the source.
func Format(s Statement) string {
	var b strings.Builder
	b.WriteString(s.Command)
	b.WriteString(" [")
	for i, p := range s.Params {
		if i > 0 {
			b.WriteString(", ")
		}
		if p.Named {
			b.WriteString(p.Name)
			b.WriteByte('=')
		}
		b.WriteString(p.Value.Raw)
	}
	b.WriteByte(']')
	return b.String()
}

// FormatScript normalises statement spacing and strips trailing whitespace.
// Comments and blank lines are kept; lines that are not statements are left
// as written so formatting never loses text.
func FormatScript(text string) string {
	lines := Scan(text)
	out := make([]string, len(lines))
	for i, ln := range lines {
		switch ln.Kind {
		case LineStatement:
			out[i] = Format(*ln.Stmt)
		case LineBlank:
			out[i] = ""
		case LineComment:
			out[i] = strings.TrimSpace(ln.Text)
		default:
			out[i] = strings.TrimRight(ln.Text, " \t")
		}
	}
	return strings.Join(out, "\n")
}
