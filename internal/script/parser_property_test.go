/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package script

import (
	"strconv"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// genQuoted generates a well-formed quoted literal whose content may contain
// commas, equals signs and escaped quotes or backslashes.
func genQuoted() gopter.Gen {
	pieces := gen.OneConstOf("a", "Z", "7", " ", ",", "=", "{", `\"`, `\\`)
	return gen.SliceOf(pieces).Map(func(ps []string) string {
		var b strings.Builder
		b.WriteByte('"')
		for _, p := range ps {
			b.WriteString(p)
		}
		b.WriteByte('"')
		return b.String()
	})
}

// genLiteral generates the source text of one parameter value.
func genLiteral() gopter.Gen {
	return gen.OneGenOf(
		genQuoted(),
		genQuoted().Map(func(s string) string { return "$" + s }),
		gen.Int64().Map(func(n int64) string { return strconv.FormatInt(n, 10) }),
		gen.Bool().Map(func(b bool) string { return strconv.FormatBool(b) }),
		gen.Identifier().Map(func(s string) string { return "$" + s }),
	)
}

// genNamed generates a name=value parameter.
func genNamed() gopter.Gen {
	return gopter.CombineGens(gen.Identifier(), genLiteral()).Map(func(v []interface{}) string {
		return v[0].(string) + "=" + v[1].(string)
	})
}

type genStatement struct {
	line       string
	positional int
	named      int
}

func genStatementLine() gopter.Gen {
	return gopter.CombineGens(
		gen.Identifier(),
		gen.SliceOf(genLiteral()),
		gen.SliceOf(genNamed()),
	).Map(func(v []interface{}) genStatement {
		pos := v[1].([]string)
		named := v[2].([]string)
		toks := append(append([]string{}, pos...), named...)
		return genStatement{
			line:       v[0].(string) + " [" + strings.Join(toks, ", ") + "]",
			positional: len(pos),
			named:      len(named),
		}
	})
}

func TestParserProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("formatting a parsed statement reproduces its canonical source", prop.ForAll(
		func(g genStatement) bool {
			stmts := Parse(g.line)
			if len(stmts) != 1 {
				return false
			}
			return Format(stmts[0]) == g.line
		},
		genStatementLine(),
	))

	properties.Property("quoted commas and escaped quotes never split a token", prop.ForAll(
		func(g genStatement) bool {
			stmts := Parse(g.line)
			if len(stmts) != 1 {
				return false
			}
			pos, named := 0, 0
			for _, p := range stmts[0].Params {
				if p.Named {
					named++
				} else {
					pos++
				}
			}
			return pos == g.positional && named == g.named
		},
		genStatementLine(),
	))

	properties.Property("Unquote inverts Quote", prop.ForAll(
		func(s string) bool { return Unquote(Quote(s)) == s },
		gen.AnyString(),
	))

	properties.Property("Parse never fails on arbitrary text and keeps line numbers in range", prop.ForAll(
		func(lines []string) bool {
			text := strings.Join(lines, "\n")
			n := len(SplitLines(text))
			for _, s := range Parse(text) {
				if s.Line < 0 || s.Line >= n {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.AnyString()),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}
