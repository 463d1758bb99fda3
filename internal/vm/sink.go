/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package vm

import (
	"context"
	"strings"
	"sync"
)

// Sink is the output surface of a run: it shows dialogue lines and asks the
// player to pick one of a few options. Choose returns the index of the
// picked option, or an error when the prompt was closed.
type Sink interface {
	AppendLine(text string)
	Choose(ctx context.Context, options []string) (int, error)
}

// Discard drops output and cancels every choice.
type Discard struct{}

func (Discard) AppendLine(string) {}

func (Discard) Choose(context.Context, []string) (int, error) { return 0, ErrChoiceCancelled }

// Choice is one answered prompt.
type Choice struct {
	Options []string `json:"options"`
	Picked  int      `json:"picked"`
}

// Transcript records a run. Choices are answered from Picks in order; once
// Picks is used up the prompt is cancelled.
type Transcript struct {
	mu      sync.Mutex
	Lines   []string
	Choices []Choice
	Picks   []int
}

// NewTranscript returns a Transcript answering prompts with picks.
func NewTranscript(picks ...int) *Transcript {
	return &Transcript{Picks: picks}
}

func (t *Transcript) AppendLine(text string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Lines = append(t.Lines, text)
}

func (t *Transcript) Choose(ctx context.Context, options []string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.Picks) == 0 {
		return 0, ErrChoiceCancelled
	}
	i := t.Picks[0]
	t.Picks = t.Picks[1:]
	t.Choices = append(t.Choices, Choice{Options: append([]string(nil), options...), Picked: i})
	return i, nil
}

// Text joins the recorded lines.
func (t *Transcript) Text() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.Join(t.Lines, "\n")
}

// Tee forwards output to every sink and lets the first answer the prompts.
type Tee []Sink

func (t Tee) AppendLine(text string) {
	for _, s := range t {
		s.AppendLine(text)
	}
}

func (t Tee) Choose(ctx context.Context, options []string) (int, error) {
	if len(t) == 0 {
		return 0, ErrChoiceCancelled
	}
	i, err := t[0].Choose(ctx, options)
	if err != nil {
		return i, err
	}
	for _, s := range t[1:] {
		if r, ok := s.(recorder); ok {
			r.Record(options, i)
		}
	}
	return i, nil
}

type recorder interface {
	Record(options []string, picked int)
}

// Record notes a choice answered elsewhere, so a Transcript can follow a Tee.
func (t *Transcript) Record(options []string, picked int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Choices = append(t.Choices, Choice{Options: append([]string(nil), options...), Picked: picked})
}
