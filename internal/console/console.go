/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package console is the terminal surface for running scripts: dialogue lines
// go to stdout and Show_Options prompts are answered from the keyboard, from
// piped input or from a scripted list of picks.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/chzyer/readline"
	"golang.org/x/term"

	"oyster/internal/vm"
)

// Options configures a Sink. Nil streams default to stdin and stdout.
type Options struct {
	In  io.Reader
	Out io.Writer
	// Picks answers prompts in order (0-based) before any input is read.
	Picks []int
	// Wrap is the column to wrap dialogue at; 0 uses the terminal width when
	// stdout is a terminal and disables wrapping otherwise.
	Wrap int
}

// Sink writes a run to a terminal.
type Sink struct {
	mu          sync.Mutex
	in          io.Reader
	lines       *bufio.Reader
	out         io.Writer
	picks       []int
	wrap        int
	interactive bool
	// pending is the read left running by a cancelled prompt; the next
	// prompt takes its line instead of starting a second reader.
	pending chan readResult
}

type readResult struct {
	line string
	err  error
}

var _ vm.Sink = (*Sink)(nil)

// New returns a Sink for opts.
func New(opts Options) *Sink {
	s := &Sink{in: opts.In, out: opts.Out, picks: opts.Picks, wrap: opts.Wrap}
	if s.in == nil {
		s.in = os.Stdin
	}
	if s.out == nil {
		s.out = os.Stdout
	}
	if f, ok := s.in.(*os.File); ok {
		s.interactive = term.IsTerminal(int(f.Fd()))
	}
	if f, ok := s.out.(*os.File); ok && s.wrap == 0 && term.IsTerminal(int(f.Fd())) {
		if w, _, err := term.GetSize(int(f.Fd())); err == nil && w > 0 {
			s.wrap = w
		}
	}
	s.lines = bufio.NewReader(s.in)
	return s
}

// AppendLine prints one dialogue line.
func (s *Sink) AppendLine(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range Wrap(text, s.wrap) {
		fmt.Fprintln(s.out, l)
	}
}

// Choose lists the options and reads the pick. Scripted picks are used first.
// End of input, an interrupt or a cancelled ctx resolves the prompt as
// cancelled.
func (s *Sink) Choose(ctx context.Context, options []string) (int, error) {
	s.mu.Lock()
	for i, o := range options {
		fmt.Fprintf(s.out, "  %d) %s\n", i+1, o)
	}
	if len(s.picks) > 0 {
		i := s.picks[0]
		s.picks = s.picks[1:]
		fmt.Fprintf(s.out, "> %d\n", i+1)
		s.mu.Unlock()
		if i < 0 || i >= len(options) {
			return 0, fmt.Errorf("%w: scripted pick %d of %d", vm.ErrInvalidChoice, i+1, len(options))
		}
		return i, nil
	}
	s.mu.Unlock()

	prompt := fmt.Sprintf("choose [1-%d]> ", len(options))
	for {
		line, err := s.readLine(ctx, prompt)
		if err != nil {
			return 0, err
		}
		n, err := strconv.Atoi(strings.TrimSpace(line))
		if err == nil && n >= 1 && n <= len(options) {
			return n - 1, nil
		}
		s.mu.Lock()
		fmt.Fprintf(s.out, "please enter a number from 1 to %d\n", len(options))
		s.mu.Unlock()
	}
}

func (s *Sink) readLine(ctx context.Context, prompt string) (string, error) {
	if s.interactive {
		return s.readInteractive(ctx, prompt)
	}
	s.mu.Lock()
	fmt.Fprint(s.out, prompt)
	if s.pending == nil {
		ch := make(chan readResult, 1)
		go func() {
			line, err := s.lines.ReadString('\n')
			if err == io.EOF && line != "" {
				err = nil
			}
			ch <- readResult{line, err}
		}()
		s.pending = ch
	}
	ch := s.pending
	s.mu.Unlock()

	select {
	case <-ctx.Done():
		return "", fmt.Errorf("%w: %w", vm.ErrChoiceCancelled, ctx.Err())
	case r := <-ch:
		s.mu.Lock()
		s.pending = nil
		s.mu.Unlock()
		if r.err != nil {
			return "", fmt.Errorf("%w: %w", vm.ErrChoiceCancelled, r.err)
		}
		return r.line, nil
	}
}

func (s *Sink) readInteractive(ctx context.Context, prompt string) (string, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:                 prompt,
		DisableAutoSaveHistory: true,
		Stdin:                  readline.NewCancelableStdin(s.in),
		Stdout:                 s.out,
	})
	if err != nil {
		return "", err
	}
	defer rl.Close()

	stop := context.AfterFunc(ctx, func() { rl.Close() })
	defer stop()

	line, err := rl.Readline()
	switch {
	case err == nil:
		return line, nil
	case ctx.Err() != nil:
		return "", fmt.Errorf("%w: %w", vm.ErrChoiceCancelled, ctx.Err())
	case errors.Is(err, readline.ErrInterrupt), errors.Is(err, io.EOF):
		return "", vm.ErrChoiceCancelled
	default:
		return "", fmt.Errorf("%w: %w", vm.ErrChoiceCancelled, err)
	}
}

// Wrap breaks text into lines of at most width columns at spaces. Words
// longer than width are kept whole. width <= 0 disables wrapping.
func Wrap(text string, width int) []string {
	if width <= 0 || len([]rune(text)) <= width {
		return []string{text}
	}
	var out []string
	var cur []rune
	for _, word := range strings.Fields(text) {
		w := []rune(word)
		switch {
		case len(cur) == 0:
			cur = w
		case len(cur)+1+len(w) <= width:
			cur = append(append(cur, ' '), w...)
		default:
			out = append(out, string(cur))
			cur = w
		}
	}
	if len(cur) > 0 {
		out = append(out, string(cur))
	}
	return out
}

// ParsePicks parses a 1-based comma separated pick list such as "2,1,3" into
// 0-based indexes.
func ParsePicks(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n < 1 {
			return nil, fmt.Errorf("invalid choice %q: want a number from 1", strings.TrimSpace(p))
		}
		out = append(out, n-1)
	}
	return out, nil
}
