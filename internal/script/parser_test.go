/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package script

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestSplitParamsQuotesAndEscapes(t *testing.T) {
	got := SplitParams(`"a, b", c=1, d="x\"y"`)
	want := []string{`"a, b"`, `c=1`, `d="x\"y"`}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("SplitParams = %q, want %q", got, want)
	}

	params := ParseParams(`"a, b", c=1, d="x\"y"`)
	if len(params) != 3 {
		t.Fatalf("expected 3 params, got %d", len(params))
	}
	if params[0].Named || params[0].Value.Kind != KindString || params[0].Value.Str != "a, b" {
		t.Fatalf("param 0 = %+v", params[0])
	}
	if !params[1].Named || params[1].Name != "c" || params[1].Value.Kind != KindInt || params[1].Value.Int != 1 {
		t.Fatalf("param 1 = %+v", params[1])
	}
	if !params[2].Named || params[2].Name != "d" || params[2].Value.Str != `x"y` {
		t.Fatalf("param 2 = %+v", params[2])
	}
}

func TestSplitParamsEdgeCases(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"   ", nil},
		{`  "a"  ,  b  `, []string{`"a"`, "b"}},
		{`"unterminated, still, one`, []string{`"unterminated, still, one`}},
		{`a,`, []string{"a"}},
		{`,a`, []string{"", "a"}},
		{`"a\\", b`, []string{`"a\\"`, "b"}},
	}
	for _, tc := range cases {
		got := SplitParams(tc.in)
		if !reflect.DeepEqual(got, tc.want) {
			t.Errorf("SplitParams(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestSplitNamedIgnoresQuotedEquals(t *testing.T) {
	if _, _, named := SplitNamed(`"a=b"`); named {
		t.Fatalf("= inside quotes must not make a named param")
	}
	if _, _, named := SplitNamed(`$"x={y}"`); named {
		t.Fatalf("= inside interpolated string must not make a named param")
	}
	name, val, named := SplitNamed(` lm1 = "End" `)
	if !named || name != "lm1" || val != `"End"` {
		t.Fatalf("SplitNamed = %q %q %v", name, val, named)
	}
	name, val, named = SplitNamed(`text="a=b"`)
	if !named || name != "text" || val != `"a=b"` {
		t.Fatalf("SplitNamed = %q %q %v", name, val, named)
	}
}

func TestTemplatePlaceholders(t *testing.T) {
	got := TemplateVars("Hi {Name}, {Gold} gold, {not valid} {_x}{Name}")
	if strings.Join(got, ",") != "Name,Gold,_x,Name" {
		t.Fatalf("TemplateVars = %q", got)
	}
	out := ExpandTemplate("Hi {Name}!", func(n string) string { return strings.ToUpper(n) })
	if out != "Hi NAME!" {
		t.Fatalf("ExpandTemplate = %q", out)
	}
}

func TestParseValueKinds(t *testing.T) {
	cases := []struct {
		raw  string
		kind Kind
		text string
	}{
		{`"hello"`, KindString, "hello"},
		{`$"Hi {Name}"`, KindInterpolated, "Hi {Name}"},
		{`-42`, KindInt, "-42"},
		{`TRUE`, KindBool, "TRUE"},
		{`$Gold`, KindVarRef, "$Gold"},
		{`bare words`, KindBare, "bare words"},
		{`99999999999999999999999`, KindBare, "99999999999999999999999"},
		{`$1abc`, KindBare, "$1abc"},
	}
	for _, tc := range cases {
		v := ParseValue(tc.raw)
		if v.Kind != tc.kind || v.Text() != tc.text {
			t.Errorf("ParseValue(%q) = %v %q, want %v %q", tc.raw, v.Kind, v.Text(), tc.kind, tc.text)
		}
	}
	if v := ParseValue("$Gold"); v.Str != "Gold" {
		t.Fatalf("var ref name = %q", v.Str)
	}
	if v := ParseValue("false"); v.Bool {
		t.Fatalf("false parsed as true")
	}
}

func TestUnquote(t *testing.T) {
	cases := map[string]string{
		`"plain"`:       "plain",
		`"say \"hi\""`:  `say "hi"`,
		`"back\\slash"`: `back\slash`,
		`"keep \n"`:     `keep \n`,
		`noquotes`:      "noquotes",
		`"`:             `"`,
	}
	for in, want := range cases {
		if got := Unquote(in); got != want {
			t.Errorf("Unquote(%q) = %q, want %q", in, got, want)
		}
	}
	if got := Unquote(Quote(`a "b" \c`)); got != `a "b" \c` {
		t.Fatalf("Quote/Unquote = %q", got)
	}
}

func TestParseSkipsCommentsBlankAndMalformed(t *testing.T) {
	src := "# header comment\r\n" +
		"// legacy comment\n" +
		"\n" +
		"  Act_Speak [\"Hello, world\", wait=false]  \n" +
		"this is not a statement\n" +
		"Line_Marker [\"End\"]\n" +
		"Jump_To[\"End\"]\n" +
		"Meta []\n"
	stmts := Parse(src)
	if len(stmts) != 4 {
		t.Fatalf("expected 4 statements, got %d: %+v", len(stmts), stmts)
	}
	s0 := stmts[0]
	if s0.Command != "Act_Speak" || s0.Line != 3 {
		t.Fatalf("stmt 0 = %+v", s0)
	}
	if v, _ := s0.Arg(0); v.Text() != "Hello, world" {
		t.Fatalf("arg 0 = %q", v.Text())
	}
	if v, ok := s0.Option("wait"); !ok || v.Kind != KindBool || v.Bool {
		t.Fatalf("wait option = %+v %v", v, ok)
	}
	if _, ok := s0.Option("Wait"); ok {
		t.Fatalf("option lookup must be case-sensitive")
	}
	if stmts[2].Command != "Jump_To" || stmts[2].Line != 6 {
		t.Fatalf("stmt 2 = %+v", stmts[2])
	}
	if len(stmts[3].Params) != 0 {
		t.Fatalf("empty brackets must give zero params")
	}
}

func TestScanClassifiesLines(t *testing.T) {
	lines := Scan("# c\n\nAct_Speak [\"x\"]\nnope\n")
	kinds := []LineKind{LineComment, LineBlank, LineStatement, LineInvalid, LineBlank}
	if len(lines) != len(kinds) {
		t.Fatalf("expected %d lines, got %d", len(kinds), len(lines))
	}
	for i, k := range kinds {
		if lines[i].Kind != k {
			t.Errorf("line %d kind = %v, want %v", i, lines[i].Kind, k)
		}
	}
	if got := Statements(lines); len(got) != 1 || got[0].Line != 2 {
		t.Fatalf("Statements = %+v", got)
	}
}

func TestFormatAndFormatScript(t *testing.T) {
	stmts := Parse(`Act_Speak   [ "a, b" ,c=1,   d="x\"y" ]`)
	if got := Format(stmts[0]); got != `Act_Speak ["a, b", c=1, d="x\"y"]` {
		t.Fatalf("Format = %q", got)
	}
	in := "# keep me   \n  Jump_To[\"A\"]   \nnot valid   \n\nMeta []\n"
	want := "# keep me\nJump_To [\"A\"]\nnot valid\n\nMeta []\n"
	if got := FormatScript(in); got != want {
		t.Fatalf("FormatScript = %q, want %q", got, want)
	}
	if got := FormatScript(want); got != want {
		t.Fatalf("FormatScript must be idempotent: %q", got)
	}
}

func TestDecodeAndReadFile(t *testing.T) {
	dir := t.TempDir()
	plain := filepath.Join(dir, "plain.oys")
	bom := filepath.Join(dir, "bom.oys")
	utf16 := filepath.Join(dir, "utf16.oyster")

	if err := os.WriteFile(plain, []byte("Act_Speak [\"é\"]"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(bom, append([]byte{0xEF, 0xBB, 0xBF}, []byte("Act_Speak [\"é\"]")...), 0o644); err != nil {
		t.Fatal(err)
	}
	// UTF-16LE with BOM: "Meta []"
	le := []byte{0xFF, 0xFE}
	for _, r := range "Meta []" {
		le = append(le, byte(r), 0)
	}
	if err := os.WriteFile(utf16, le, 0o644); err != nil {
		t.Fatal(err)
	}

	for _, p := range []string{plain, bom} {
		text, err := ReadFile(p)
		if err != nil {
			t.Fatalf("ReadFile(%s): %v", p, err)
		}
		if text != "Act_Speak [\"é\"]" {
			t.Fatalf("ReadFile(%s) = %q", p, text)
		}
	}
	text, err := ReadFile(utf16)
	if err != nil {
		t.Fatalf("ReadFile utf16: %v", err)
	}
	if stmts := Parse(text); len(stmts) != 1 || stmts[0].Command != "Meta" {
		t.Fatalf("utf16 parse = %q %+v", text, stmts)
	}
	if !IsScriptFile(utf16) || !IsScriptFile("X.OYS") || IsScriptFile("notes.txt") {
		t.Fatalf("IsScriptFile mismatch")
	}
	if _, err := ReadFile(filepath.Join(dir, "missing.oys")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestTokenizeParamsSpans(t *testing.T) {
	body := ` "a, b" ,  c=1`
	toks := TokenizeParams(body)
	if len(toks) != 2 {
		t.Fatalf("expected 2 tokens, got %+v", toks)
	}
	for _, tok := range toks {
		if body[tok.Start:tok.End] != tok.Text {
			t.Fatalf("span %d:%d = %q, want %q", tok.Start, tok.End, body[tok.Start:tok.End], tok.Text)
		}
	}
	if toks[1].Start != 11 {
		t.Fatalf("second token starts at %d", toks[1].Start)
	}
}
