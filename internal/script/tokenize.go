/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package script

import (
	"strings"
	"unicode"
)

// Token is a trimmed parameter token and its byte span within the bracket body.
type Token struct {
	Text       string
	Start, End int
}

// TokenizeParams splits the text between the brackets of a statement into
// trimmed tokens. Commas inside double quotes do not split; a backslash keeps
// the next character verbatim, so \" never opens or closes a string. An
// unterminated quote runs to the end of the input. Empty trailing input
// produces no token.
func TokenizeParams(body string) []Token {
	var out []Token
	start := 0
	emit := func(end int, last bool) {
		seg := body[start:end]
		text := strings.TrimSpace(seg)
		if last && text == "" {
			return
		}
		s := start + len(seg) - len(strings.TrimLeftFunc(seg, unicode.IsSpace))
		out = append(out, Token{Text: text, Start: s, End: s + len(text)})
	}
	inQuotes, esc := false, false
	for i := 0; i < len(body); i++ {
		ch := body[i]
		switch {
		case esc:
			esc = false
		case ch == '\\':
			esc = true
		case ch == '"':
			inQuotes = !inQuotes
		case ch == ',' && !inQuotes:
			emit(i, false)
			start = i + 1
		}
	}
	emit(len(body), true)
	return out
}

// SplitParams is TokenizeParams without the spans.
func SplitParams(body string) []string {
	toks := TokenizeParams(body)
	if len(toks) == 0 {
		return nil
	}
	out := make([]string, len(toks))
	for i, t := range toks {
		out[i] = t.Text
	}
	return out
}

// SplitNamed splits a token at its first '=' outside double quotes.
// named is false when there is no such '='.
func SplitNamed(token string) (name, value string, named bool) {
	inQuotes, esc := false, false
	for i := 0; i < len(token); i++ {
		ch := token[i]
		switch {
		case esc:
			esc = false
		case ch == '\\':
			esc = true
		case ch == '"':
			inQuotes = !inQuotes
		case ch == '=' && !inQuotes:
			return strings.TrimSpace(token[:i]), strings.TrimSpace(token[i+1:]), true
		}
	}
	return "", strings.TrimSpace(token), false
}

// IsQuoted reports whether s is wrapped in double quotes.
func IsQuoted(s string) bool {
	return len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"'
}

// Unquote strips the outer quotes of a quoted token and resolves \" and \\.
// Other backslash sequences are kept as written. Unquoted input is returned unchanged.
func Unquote(s string) string {
	if !IsQuoted(s) {
		return s
	}
	inner := s[1 : len(s)-1]
	if !strings.Contains(inner, `\`) {
		return inner
	}
	var b strings.Builder
	b.Grow(len(inner))
	for i := 0; i < len(inner); i++ {
		if inner[i] == '\\' && i+1 < len(inner) && (inner[i+1] == '"' || inner[i+1] == '\\') {
			b.WriteByte(inner[i+1])
			i++
			continue
		}
		b.WriteByte(inner[i])
	}
	return b.String()
}

// Quote returns a token that Unquote maps back to s.
func Quote(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return `"` + r.Replace(s) + `"`
}

// ParseParams tokenizes a bracket body into parameters.
func ParseParams(body string) []Param {
	toks := SplitParams(body)
	params := make([]Param, 0, len(toks))
	for _, tok := range toks {
		name, val, named := SplitNamed(tok)
		params = append(params, Param{Named: named, Name: name, Value: ParseValue(val)})
	}
	return params
}
