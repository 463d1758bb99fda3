/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package export renders parsed Oyster scripts as reading scripts for
// writers and voice actors: PDF through gofpdf, or Markdown.
package export

import (
	"fmt"
	"strconv"
	"strings"

	"oyster/internal/catalog"
	"oyster/internal/script"
)

// BlockKind classifies a rendered block.
type BlockKind int

const (
	BlockHeading   BlockKind = iota // Line_Marker
	BlockSpeaker                    // speaker change from Set_Name
	BlockLine                       // spoken dialogue
	BlockOption                     // one Show_Options choice
	BlockDirection                  // anything else worth showing, in parentheses
)

// Block is one element of a reading script.
type Block struct {
	Kind BlockKind
	Text string
	// Append marks dialogue that continues the previous line.
	Append bool
}

// Meta is what a script says about itself through Meta statements.
type Meta struct {
	Game    string
	Version string
}

// Layout turns statements into reading-script blocks. Directions are only
// produced when directions is true. Unknown commands are shown as
// directions with their raw parameters.
func Layout(stmts []script.Statement, cat *catalog.Catalog, directions bool) ([]Block, Meta) {
	if cat == nil {
		cat = catalog.Default()
	}
	var (
		out     []Block
		meta    Meta
		speaker string
	)
	dir := func(format string, args ...any) {
		if directions {
			out = append(out, Block{Kind: BlockDirection, Text: fmt.Sprintf(format, args...)})
		}
	}
	for _, s := range stmts {
		name := s.Command
		if cmd, ok := cat.Resolve(name); ok {
			name = cmd.Name
		}
		arg := func(i int) string {
			v, _ := s.Arg(i)
			return v.Text()
		}
		switch name {
		case "Meta":
			if v, ok := s.Option("game"); ok {
				meta.Game = cat.CanonicalGame(v.Text())
			}
			if v, ok := s.Option("version"); ok {
				meta.Version = v.Text()
			}
		case "Set_Name":
			if n := arg(0); n != speaker {
				speaker = n
				out = append(out, Block{Kind: BlockSpeaker, Text: n})
			}
		case "Act_Speak", "Act_Append":
			out = append(out, Block{Kind: BlockLine, Text: arg(0), Append: name == "Act_Append"})
		case "Line_Marker":
			out = append(out, Block{Kind: BlockHeading, Text: arg(0)})
		case "Show_Options":
			n := 0
			for i := 0; i < 3; i++ {
				text := arg(i)
				if text == "" {
					continue
				}
				n++
				b := Block{Kind: BlockOption, Text: strconv.Itoa(n) + ". " + text}
				if lm, ok := s.Option("lm" + strconv.Itoa(i+1)); ok && lm.Text() != "" {
					b.Text += " -> " + lm.Text()
				}
				out = append(out, b)
			}
		case "Jump_To":
			dir("go to %s", arg(0))
		case "Sys_Wait":
			dir("pause %s ms", arg(0))
		case "Set_IntVar", "Set_BoolVar", "Set_StringVar":
			dir("set %s = %s", arg(0), arg(1))
		case "Check_IntVar":
			dir("if %s = %s go to %s, else %s", arg(0), arg(1), arg(2), arg(3))
		case "Check_BoolVar":
			dir("if %s go to %s, else %s", arg(0), arg(1), arg(2))
		case "Check_Has":
			dir("if %s has %s go to %s, else %s", arg(0), arg(1), arg(2), arg(3))
		default:
			if vals := s.Values(); len(vals) > 0 {
				dir("%s: %s", name, strings.Join(vals, ", "))
			} else {
				dir("%s", name)
			}
		}
	}
	return out, meta
}

// Markdown renders blocks as a Markdown reading script.
func Markdown(title string, blocks []Block, meta Meta) string {
	var b strings.Builder
	if title != "" {
		fmt.Fprintf(&b, "# %s\n\n", title)
	}
	if sub := subtitle(meta); sub != "" {
		fmt.Fprintf(&b, "_%s_\n\n", sub)
	}
	for _, bl := range blocks {
		switch bl.Kind {
		case BlockHeading:
			fmt.Fprintf(&b, "## %s\n\n", bl.Text)
		case BlockSpeaker:
			fmt.Fprintf(&b, "**%s**\n\n", strings.ToUpper(bl.Text))
		case BlockLine:
			if bl.Append {
				b.WriteString("> ... ")
			} else {
				b.WriteString("> ")
			}
			b.WriteString(bl.Text + "\n\n")
		case BlockOption:
			fmt.Fprintf(&b, "- %s\n\n", bl.Text)
		case BlockDirection:
			fmt.Fprintf(&b, "_(%s)_\n\n", bl.Text)
		}
	}
	return b.String()
}

func subtitle(m Meta) string {
	var parts []string
	if m.Game != "" {
		parts = append(parts, m.Game)
	}
	if m.Version != "" {
		parts = append(parts, "Oyster "+m.Version)
	}
	return strings.Join(parts, " / ")
}
