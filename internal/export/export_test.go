/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package export

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"oyster/internal/script"
)

const sample = `Meta [game="GroveGame", version="4.1.0"]
Set_Name ["Alyx"]
Act_Speak ["Hello there, traveller"]
act_append ["and welcome"]
Set_Name ["Alyx"]
Set_IntVar ["Gold", 5]
Show_Options ["Wave", "", "Leave", lm1="waved", lm3="exit"]
Line_Marker ["waved"]
Set_Name ["Bob"]
Act_Speak ["Bye"]
Jump_To ["exit"]
Set_Looker ["door"]
`

func TestLayout(t *testing.T) {
	blocks, meta := Layout(script.Parse(sample), nil, true)
	if meta.Game != "Christmas at Greyling Grove" || meta.Version != "4.1.0" {
		t.Fatalf("meta = %+v", meta)
	}
	want := []Block{
		{Kind: BlockSpeaker, Text: "Alyx"},
		{Kind: BlockLine, Text: "Hello there, traveller"},
		{Kind: BlockLine, Text: "and welcome", Append: true},
		{Kind: BlockDirection, Text: "set Gold = 5"},
		{Kind: BlockOption, Text: "1. Wave -> waved"},
		{Kind: BlockOption, Text: "2. Leave -> exit"},
		{Kind: BlockHeading, Text: "waved"},
		{Kind: BlockSpeaker, Text: "Bob"},
		{Kind: BlockLine, Text: "Bye"},
		{Kind: BlockDirection, Text: "go to exit"},
		{Kind: BlockDirection, Text: "Set_Looker: door"},
	}
	if len(blocks) != len(want) {
		t.Fatalf("got %d blocks: %+v", len(blocks), blocks)
	}
	for i := range want {
		if blocks[i] != want[i] {
			t.Fatalf("block %d = %+v, want %+v", i, blocks[i], want[i])
		}
	}

	plain, _ := Layout(script.Parse(sample), nil, false)
	for _, b := range plain {
		if b.Kind == BlockDirection {
			t.Fatalf("direction without directions: %+v", b)
		}
	}
}

func TestMarkdown(t *testing.T) {
	blocks, meta := Layout(script.Parse(sample), nil, false)
	md := Markdown("Greeting", blocks, meta)
	for _, s := range []string{"# Greeting\n", "_Christmas at Greyling Grove / Oyster 4.1.0_", "**ALYX**", "> Hello there, traveller", "> ... and welcome", "## waved", "- 2. Leave -> exit"} {
		if !strings.Contains(md, s) {
			t.Fatalf("markdown missing %q:\n%s", s, md)
		}
	}
}

func TestExportPDF_CreatesFile(t *testing.T) {
	out := filepath.Join(t.TempDir(), "exports", "greeting.pdf")
	stmts := script.Parse(sample + "Act_Speak [\"Grüße, café\"]\n")
	if err := ExportPDF(stmts, "Greeting", out, PDFOptions{Directions: true}); err != nil {
		t.Fatalf("export: %v", err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		t.Fatalf("not a pdf: %q", data[:min(len(data), 16)])
	}
}

func TestExportPDF_EmptyPath(t *testing.T) {
	if err := ExportPDF(nil, "x", " ", PDFOptions{}); err == nil {
		t.Fatalf("expected error")
	}
}
