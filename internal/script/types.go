/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package script

import (
	"regexp"
	"strconv"
	"strings"
)

// Kind tags the literal form of a parameter value.
type Kind int

const (
	KindBare         Kind = iota // anything that matches no other form
	KindString                   // "text"
	KindInterpolated             // $"Hello {Name}"
	KindInt                      // -12
	KindBool                     // true / FALSE
	KindVarRef                   // $Name
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInterpolated:
		return "interpolated string"
	case KindInt:
		return "int"
	case KindBool:
		return "bool"
	case KindVarRef:
		return "variable"
	default:
		return "bare"
	}
}

// Value is one parameter value. Raw keeps the trimmed source text so a
// statement can be written back unchanged.
type Value struct {
	Kind Kind
	Raw  string
	// Str is the unquoted text of a string, the template of an interpolated
	// string, or the variable name of a reference.
	Str  string
	Int  int64
	Bool bool
}

var (
	reInt    = regexp.MustCompile(`^-?[0-9]+$`)
	reVarRef = regexp.MustCompile(`^\$([A-Za-z_][A-Za-z0-9_]*)$`)
	// reTemplateVar matches a {Name} placeholder of an interpolated string.
	reTemplateVar = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)
)

// ParseValue classifies a trimmed token.
func ParseValue(raw string) Value {
	raw = strings.TrimSpace(raw)
	v := Value{Kind: KindBare, Raw: raw, Str: raw}
	switch {
	case IsQuoted(raw):
		v.Kind, v.Str = KindString, Unquote(raw)
	case strings.HasPrefix(raw, "$") && IsQuoted(raw[1:]):
		v.Kind, v.Str = KindInterpolated, Unquote(raw[1:])
	case reInt.MatchString(raw):
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
			v.Kind, v.Int = KindInt, n
		}
	case strings.EqualFold(raw, "true"), strings.EqualFold(raw, "false"):
		v.Kind, v.Bool = KindBool, strings.EqualFold(raw, "true")
	default:
		if m := reVarRef.FindStringSubmatch(raw); m != nil {
			v.Kind, v.Str = KindVarRef, m[1]
		}
	}
	return v
}

// Text is the value as plain text: the unquoted content for strings, the
// source text for everything else.
func (v Value) Text() string {
	switch v.Kind {
	case KindString, KindInterpolated:
		return v.Str
	default:
		return v.Raw
	}
}

// TemplateVars lists the {Name} placeholders of an interpolated string's
// template in order of appearance.
func TemplateVars(template string) []string {
	var out []string
	for _, m := range reTemplateVar.FindAllStringSubmatch(template, -1) {
		out = append(out, m[1])
	}
	return out
}

// ExpandTemplate replaces every {Name} placeholder with lookup(Name).
func ExpandTemplate(template string, lookup func(name string) string) string {
	return reTemplateVar.ReplaceAllStringFunc(template, func(m string) string {
		return lookup(m[1 : len(m)-1])
	})
}

// Param is a positional or named (name=value) parameter.
type Param struct {
	Named bool
	Name  string
	Value Value
}

// Statement is one parsed command line. Statements are not modified after parsing.
type Statement struct {
	Command string
	Params  []Param
	Line    int    // 0-based line number in the source
	Raw     string // the source line, untrimmed
}

// Arg returns the i-th positional parameter.
func (s Statement) Arg(i int) (Value, bool) {
	n := 0
	for _, p := range s.Params {
		if p.Named {
			continue
		}
		if n == i {
			return p.Value, true
		}
		n++
	}
	return Value{}, false
}

// Option returns the first named parameter called name (case-sensitive).
func (s Statement) Option(name string) (Value, bool) {
	for _, p := range s.Params {
		if p.Named && p.Name == name {
			return p.Value, true
		}
	}
	return Value{}, false
}

// Values lists the plain text of every parameter in source order.
func (s Statement) Values() []string {
	out := make([]string, len(s.Params))
	for i, p := range s.Params {
		out[i] = p.Value.Text()
	}
	return out
}

// LineKind classifies a source line.
type LineKind int

const (
	LineBlank LineKind = iota
	LineComment
	LineStatement
	LineInvalid // not blank, not a comment, not COMMAND [params]
)

// Line is one source line together with its classification.
type Line struct {
	Index int // 0-based
	Text  string
	Kind  LineKind
	// Stmt is set for LineStatement.
	Stmt *Statement
	// Indent is the number of leading whitespace bytes, used for diagnostic ranges.
	Indent int
}
