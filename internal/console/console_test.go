/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package console

import (
	"bytes"
	"context"
	"errors"
	"io"
	"reflect"
	"strings"
	"testing"

	"oyster/internal/vm"
)

func TestChooseFromPipedInput(t *testing.T) {
	var out bytes.Buffer
	s := New(Options{In: strings.NewReader("x\n9\n2\n"), Out: &out})
	i, err := s.Choose(context.Background(), []string{"Stay", "Leave"})
	if err != nil || i != 1 {
		t.Fatalf("Choose = %d %v", i, err)
	}
	got := out.String()
	for _, want := range []string{"  1) Stay\n", "  2) Leave\n", "choose [1-2]> ", "please enter a number from 1 to 2"} {
		if !strings.Contains(got, want) {
			t.Fatalf("output missing %q:\n%s", want, got)
		}
	}
	if _, err := s.Choose(context.Background(), []string{"a"}); !errors.Is(err, vm.ErrChoiceCancelled) {
		t.Fatalf("EOF must cancel, got %v", err)
	}
}

func TestScriptedPicksRunScript(t *testing.T) {
	var out bytes.Buffer
	s := New(Options{In: strings.NewReader(""), Out: &out, Picks: []int{1}})
	src := "Act_Speak [\"Hello\"]\nShow_Options [\"Stay\", \"Leave\", \"\", lm2=\"Bye\"]\nAct_Speak [\"stayed\"]\nLine_Marker [\"Bye\"]\nAct_Speak [\"bye\"]\n"
	v := vm.Load(src, s, vm.Options{Clock: vm.RealClock{}})
	if err := v.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	want := "Hello\n  1) Stay\n  2) Leave\n> 2\nbye\n"
	if out.String() != want {
		t.Fatalf("output = %q, want %q", out.String(), want)
	}
}

func TestScriptedPickOutOfRange(t *testing.T) {
	s := New(Options{In: strings.NewReader(""), Out: &bytes.Buffer{}, Picks: []int{4}})
	if _, err := s.Choose(context.Background(), []string{"a", "b"}); !errors.Is(err, vm.ErrInvalidChoice) {
		t.Fatalf("err = %v", err)
	}
}

func TestChooseHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r, w := io.Pipe()
	defer w.Close()
	s := New(Options{In: r, Out: &bytes.Buffer{}})
	if _, err := s.Choose(ctx, []string{"a"}); !errors.Is(err, vm.ErrChoiceCancelled) || !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
}

func TestPromptAfterCancelReusesPendingRead(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r, w := io.Pipe()
	defer w.Close()
	s := New(Options{In: r, Out: &bytes.Buffer{}})
	if _, err := s.Choose(ctx, []string{"a"}); !errors.Is(err, vm.ErrChoiceCancelled) {
		t.Fatalf("err = %v", err)
	}
	go func() {
		io.WriteString(w, "2\n")
		io.WriteString(w, "1\n")
	}()
	i, err := s.Choose(context.Background(), []string{"a", "b"})
	if err != nil || i != 1 {
		t.Fatalf("second Choose = %d %v", i, err)
	}
	i, err = s.Choose(context.Background(), []string{"a", "b"})
	if err != nil || i != 0 {
		t.Fatalf("third Choose = %d %v", i, err)
	}
}

func TestWrap(t *testing.T) {
	got := Wrap("the quick brown fox jumps", 10)
	want := []string{"the quick", "brown fox", "jumps"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Wrap = %q", got)
	}
	if got := Wrap("short", 0); !reflect.DeepEqual(got, []string{"short"}) {
		t.Fatalf("Wrap disabled = %q", got)
	}
	if got := Wrap("extraordinarily long", 5); !reflect.DeepEqual(got, []string{"extraordinarily", "long"}) {
		t.Fatalf("Wrap long word = %q", got)
	}
	var out bytes.Buffer
	New(Options{Out: &out, In: strings.NewReader(""), Wrap: 10}).AppendLine("the quick brown fox")
	if out.String() != "the quick\nbrown fox\n" {
		t.Fatalf("AppendLine = %q", out.String())
	}
}

func TestParsePicks(t *testing.T) {
	got, err := ParsePicks(" 2, 1,3 ")
	if err != nil || !reflect.DeepEqual(got, []int{1, 0, 2}) {
		t.Fatalf("ParsePicks = %v %v", got, err)
	}
	if got, err := ParsePicks(""); err != nil || got != nil {
		t.Fatalf("empty = %v %v", got, err)
	}
	for _, bad := range []string{"0", "a", "1,,2"} {
		if _, err := ParsePicks(bad); err == nil {
			t.Errorf("ParsePicks(%q) should fail", bad)
		}
	}
}
