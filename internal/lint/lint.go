/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package lint validates Oyster scripts against the command catalog.
//
// Validation runs in two passes. The first collects variable declarations,
// line markers and the Meta header for the whole document; the second checks
// every line against the catalog. Validate never fails: problems are
// reported as diagnostics.
package lint

import (
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"sort"
	"strings"
	"unicode"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"oyster/internal/catalog"
	applog "oyster/internal/log"
	"oyster/internal/script"
)

var (
	reIdent = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	reInt   = regexp.MustCompile(`^-?[0-9]+$`)
)

// Validator checks scripts against one catalog. It holds no per-document
// state and is safe for concurrent use.
type Validator struct {
	cat *catalog.Catalog
}

// New returns a Validator for cat, or for the built-in catalog when cat is nil.
func New(cat *catalog.Catalog) *Validator {
	if cat == nil {
		cat = catalog.Default()
	}
	return &Validator{cat: cat}
}

// Validate checks text with the built-in catalog.
func Validate(text string) []Diagnostic { return New(nil).Validate(text) }

type declaration struct {
	typ  catalog.Type
	line int
}

type conflict struct {
	name      string
	attempted catalog.Type
	line      int
}

// document is what the declaration pass learns about a script.
type document struct {
	lines     []script.Line
	vars      map[string]*declaration
	conflicts []conflict
	markers   map[string]int // name -> first Line_Marker line
	dupes     []conflict     // duplicate markers; attempted unused
	game      string
	version   string
}

// Validate checks text and returns its diagnostics ordered by line.
func (v *Validator) Validate(text string) []Diagnostic {
	doc := v.scan(script.Scan(text))
	var out []Diagnostic

	for _, c := range doc.conflicts {
		prev := doc.vars[c.name]
		ln := doc.lines[c.line]
		out = append(out, Diagnostic{
			Range:    lineRange(ln),
			Severity: SeverityError,
			Code:     CodeRedeclaration,
			Message: fmt.Sprintf("Variable '%s' is already declared as %s at line %d; cannot redeclare it as %s",
				c.name, prev.typ, prev.line+1, c.attempted),
		})
	}
	for _, d := range doc.dupes {
		out = append(out, Diagnostic{
			Range:    lineRange(doc.lines[d.line]),
			Severity: SeverityWarning,
			Code:     CodeDuplicateMarker,
			Message: fmt.Sprintf("Line marker '%s' is already defined at line %d; the first definition is used",
				d.name, doc.markers[d.name]+1),
		})
	}
	for _, ln := range doc.lines {
		switch ln.Kind {
		case script.LineBlank, script.LineComment:
			continue
		case script.LineInvalid:
			out = append(out, Diagnostic{
				Range:    lineRange(ln),
				Severity: SeverityError,
				Code:     CodeSyntax,
				Message:  "Invalid Oyster command syntax. Expected: COMMAND [params]",
			})
		case script.LineStatement:
			out = append(out, v.checkLine(doc, ln)...)
		}
	}

	slices.SortStableFunc(out, func(a, b Diagnostic) int { return a.Range.Start.Line - b.Range.Start.Line })
	errs, warns := Count(out)
	applog.WithComponent("lint").Debug("validated",
		slog.Int("lines", len(doc.lines)), slog.Int("errors", errs), slog.Int("warnings", warns))
	return out
}

// scan is the declaration pass.
func (v *Validator) scan(lines []script.Line) *document {
	doc := &document{lines: lines, vars: map[string]*declaration{}, markers: map[string]int{}}
	for _, ln := range lines {
		if ln.Stmt == nil {
			continue
		}
		cmd, ok := v.cat.Resolve(ln.Stmt.Command)
		if !ok {
			continue
		}
		toks := script.SplitParams(bodyOf(ln))
		switch {
		case cmd.Declares != "":
			if len(toks) == 0 || !script.IsQuoted(toks[0]) {
				break
			}
			name := script.Unquote(toks[0])
			if !reIdent.MatchString(name) {
				break
			}
			prev, seen := doc.vars[name]
			switch {
			case !seen:
				doc.vars[name] = &declaration{typ: cmd.Declares, line: ln.Index}
			case prev.typ == cmd.Declares:
				prev.line = ln.Index
			default:
				doc.conflicts = append(doc.conflicts, conflict{name: name, attempted: cmd.Declares, line: ln.Index})
			}
		case len(cmd.Required) > 0 && cmd.Required[0].Role == catalog.RoleLabel:
			if len(toks) == 0 || !script.IsQuoted(toks[0]) {
				break
			}
			name := script.Unquote(toks[0])
			if _, dup := doc.markers[name]; dup {
				doc.dupes = append(doc.dupes, conflict{name: name, line: ln.Index})
				break
			}
			doc.markers[name] = ln.Index
		case cmd.Name == "Meta":
			if g, ok := ln.Stmt.Option("game"); ok {
				doc.game = g.Text()
			}
			if ver, ok := ln.Stmt.Option("version"); ok {
				doc.version = ver.Text()
			}
		}
	}
	return doc
}

// checkLine is the per-line pass for one statement.
func (v *Validator) checkLine(doc *document, ln script.Line) []Diagnostic {
	var out []Diagnostic
	lead := leading(ln.Text)
	name := ln.Stmt.Command
	nameRange := span(ln.Index, ln.Text, lead, lead+len(name))

	cmd, ok := v.cat.Resolve(name)
	if !ok {
		d := Diagnostic{
			Range:    nameRange,
			Severity: SeverityError,
			Code:     CodeUnknownCommand,
			Message:  "Unknown Oyster command: " + name,
		}
		if s, ok := v.cat.Suggest(name); ok {
			d.Hint = fmt.Sprintf("did you mean %s?", s)
		}
		return append(out, d)
	}

	if doc.version != "" && cmd.NewerThan(doc.version) {
		out = append(out, Diagnostic{
			Range:    nameRange,
			Severity: SeverityWarning,
			Code:     CodeVersion,
			Message: fmt.Sprintf("%s requires Oyster %s, but the script targets version %s",
				cmd.Name, cmd.Introduced, doc.version),
		})
	}
	if doc.game != "" && !v.cat.Supports(cmd, doc.game) {
		out = append(out, Diagnostic{
			Range:    nameRange,
			Severity: SeverityWarning,
			Code:     CodeGame,
			Message: fmt.Sprintf("%s is not available in %s. Supported games: %s",
				cmd.Name, v.cat.CanonicalGame(doc.game), strings.Join(cmd.Games, ", ")),
		})
	}

	body := bodyOf(ln)
	off := bodyOffset(ln)
	toks := script.TokenizeParams(body)
	tokRange := func(t script.Token) Range { return span(ln.Index, ln.Text, off+t.Start, off+t.End) }

	used := 0
	for i, p := range cmd.Required {
		if p.Omittable && (i >= len(toks) || isNamed(toks[i].Text)) {
			break
		}
		used = i + 1
		if i >= len(toks) || toks[i].Text == "" {
			out = append(out, Diagnostic{
				Range:    lineRange(ln),
				Severity: SeverityError,
				Code:     CodeMissingParam,
				Message:  fmt.Sprintf("Missing required parameter %s for %s", p.Name, cmd.Name),
			})
			continue
		}
		r := tokRange(toks[i])
		if d, bad := v.checkValue(doc, cmd, p, toks[i].Text, false); bad {
			d.Range = r
			out = append(out, d)
			continue
		}
		out = append(out, v.checkRole(doc, cmd, p, toks[i].Text, r)...)
	}

	for _, t := range toks[min(used, len(toks)):] {
		r := tokRange(t)
		pname, val, named := script.SplitNamed(t.Text)
		if !named {
			out = append(out, Diagnostic{
				Range:    r,
				Severity: SeverityError,
				Code:     CodeOptionalForm,
				Message:  "Optional parameters must be in the form name=value",
			})
			continue
		}
		p, ok := cmd.OptionalParam(pname)
		if !ok {
			d := Diagnostic{
				Range:    r,
				Severity: SeverityError,
				Code:     CodeUnknownOptional,
				Message:  fmt.Sprintf("Unknown optional parameter '%s' for %s", pname, cmd.Name),
			}
			if s := closest(pname, optionalNames(cmd)); s != "" {
				d.Hint = fmt.Sprintf("did you mean %s?", s)
			}
			out = append(out, d)
			continue
		}
		if d, bad := v.checkValue(doc, cmd, p, val, true); bad {
			d.Range = r
			out = append(out, d)
			continue
		}
		out = append(out, v.checkRole(doc, cmd, p, val, r)...)
	}
	return out
}

// checkValue validates one value token against a parameter. A variable
// reference must name a declared variable of the parameter's exact type;
// anything else must match the literal grammar of the type.
func (v *Validator) checkValue(doc *document, cmd *catalog.Command, p catalog.Param, tok string, optional bool) (Diagnostic, bool) {
	val := script.ParseValue(tok)
	if val.Kind == script.KindVarRef {
		decl, ok := doc.vars[val.Str]
		if !ok {
			return Diagnostic{
				Severity: SeverityError,
				Code:     CodeUnknownVariable,
				Message:  fmt.Sprintf("Unknown variable '%s'", val.Str),
				Hint:     hintFor(val.Str, varNames(doc)),
			}, true
		}
		if decl.typ != p.Type {
			return Diagnostic{
				Severity: SeverityError,
				Code:     CodeVariableType,
				Message: fmt.Sprintf("Variable '%s' is %s (declared at line %d), but %s of %s expects %s",
					val.Str, decl.typ, decl.line+1, p.Name, cmd.Name, p.Type),
			}, true
		}
		return Diagnostic{}, false
	}
	if matchesType(tok, p.Type) {
		if val.Kind == script.KindInterpolated {
			for _, name := range script.TemplateVars(val.Str) {
				if _, ok := doc.vars[name]; !ok {
					return Diagnostic{
						Severity: SeverityError,
						Code:     CodeUnknownVariable,
						Message:  fmt.Sprintf("Unknown variable '%s' in interpolated string", name),
						Hint:     hintFor(name, varNames(doc)),
					}, true
				}
			}
		}
		return Diagnostic{}, false
	}
	msg := fmt.Sprintf("Parameter %s should be %s", p.Name, p.Type)
	if optional {
		msg = fmt.Sprintf("Optional parameter '%s' should be %s", p.Name, p.Type)
	}
	return Diagnostic{Severity: SeverityError, Code: CodeParamType, Message: msg}, true
}

// checkRole applies the marker and variable rules to a well-typed value.
func (v *Validator) checkRole(doc *document, cmd *catalog.Command, p catalog.Param, tok string, r Range) []Diagnostic {
	if !script.IsQuoted(tok) {
		return nil
	}
	name := script.Unquote(tok)
	switch p.Role {
	case catalog.RoleMarker:
		if name == "" {
			return nil
		}
		if _, ok := doc.markers[name]; ok {
			return nil
		}
		return []Diagnostic{{
			Range:    r,
			Severity: SeverityWarning,
			Code:     CodeUnknownMarker,
			Message:  fmt.Sprintf("Line marker '%s' is not defined", name),
			Hint:     hintFor(name, markerNames(doc)),
		}}
	case catalog.RoleVariable:
		if cmd.Declares != "" {
			return nil
		}
		decl, ok := doc.vars[name]
		if !ok {
			return []Diagnostic{{
				Range:    r,
				Severity: SeverityError,
				Code:     CodeUnknownVariable,
				Message:  fmt.Sprintf("Unknown variable '%s'", name),
				Hint:     hintFor(name, varNames(doc)),
			}}
		}
		if p.VarType != "" && decl.typ != p.VarType {
			return []Diagnostic{{
				Range:    r,
				Severity: SeverityError,
				Code:     CodeVariableType,
				Message: fmt.Sprintf("Variable '%s' is %s (declared at line %d), but %s of %s expects %s",
					name, decl.typ, decl.line+1, p.Name, cmd.Name, p.VarType),
			}}
		}
	}
	return nil
}

func matchesType(tok string, t catalog.Type) bool {
	switch t {
	case catalog.TypeString:
		return script.IsQuoted(tok) || (strings.HasPrefix(tok, "$") && script.IsQuoted(tok[1:]))
	case catalog.TypeInt:
		return reInt.MatchString(tok)
	case catalog.TypeBool:
		return strings.EqualFold(tok, "true") || strings.EqualFold(tok, "false")
	}
	return false
}

func leading(s string) int { return len(s) - len(strings.TrimLeftFunc(s, unicode.IsSpace)) }

func lineRange(ln script.Line) Range {
	lead := leading(ln.Text)
	return span(ln.Index, ln.Text, lead, lead+len(strings.TrimSpace(ln.Text)))
}

// bodyOffset is the byte offset of the bracket body within the raw line.
func bodyOffset(ln script.Line) int {
	lead := leading(ln.Text)
	return lead + strings.IndexByte(ln.Text[lead:], '[') + 1
}

func bodyOf(ln script.Line) string {
	_, body, _ := script.MatchLine(strings.TrimSpace(ln.Text))
	return body
}

func optionalNames(cmd *catalog.Command) []string {
	out := make([]string, len(cmd.Optional))
	for i, p := range cmd.Optional {
		out[i] = p.Name
	}
	return out
}

func varNames(doc *document) []string {
	out := make([]string, 0, len(doc.vars))
	for n := range doc.vars {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func markerNames(doc *document) []string {
	out := make([]string, 0, len(doc.markers))
	for n := range doc.markers {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func hintFor(name string, candidates []string) string {
	if s := closest(name, candidates); s != "" {
		return fmt.Sprintf("did you mean '%s'?", s)
	}
	return ""
}

// closest picks the candidate with the smallest edit distance, if it is near enough.
func closest(name string, candidates []string) string {
	best, bestDist := "", -1
	for _, c := range candidates {
		d := fuzzy.LevenshteinDistance(strings.ToLower(name), strings.ToLower(c))
		if bestDist < 0 || d < bestDist {
			best, bestDist = c, d
		}
	}
	if bestDist < 0 || bestDist > max(2, len(name)/3) {
		return ""
	}
	return best
}

func isNamed(tok string) bool {
	_, _, named := script.SplitNamed(tok)
	return named
}
