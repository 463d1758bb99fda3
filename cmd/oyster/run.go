/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"oyster/internal/console"
	"oyster/internal/lint"
	applog "oyster/internal/log"
	"oyster/internal/script"
	"oyster/internal/storage"
	"oyster/internal/telemetry"
	"oyster/internal/vm"
)

func runRun(ctx context.Context, a *app, args []string) error {
	fs := a.flags("run")
	choices := fs.StringP("choices", "c", "", "answer prompts in order, 1-based, e.g. 2,1")
	fast := fs.BoolP("fast", "f", a.cfg.Run.Fast, "skip Sys_Wait pauses")
	scale := fs.Float64("wait-scale", a.cfg.Run.WaitScale, "multiply Sys_Wait pauses")
	maxSteps := fs.Int("max-steps", a.cfg.Run.MaxSteps, "stop after this many statements (0 = no limit)")
	wrap := fs.Int("wrap", 0, "wrap dialogue at this column (0 = terminal width)")
	strict := fs.Bool("strict", false, "refuse to run a script with lint errors")
	simulate := fs.Bool("host", false, "simulate game effects (items, gifts, achievements)")
	has := fs.StringSlice("has", nil, "with --host, seed inventory as person=item")
	transcript := fs.BoolP("transcript", "t", false, "store the run in the workspace index")
	rootDir := fs.String("root", "", "workspace root for --transcript (default: working directory)")
	if err := parse(fs, args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return a.usageError(fs, "expected exactly one script")
	}
	path := fs.Arg(0)
	a.info.Script = path
	l := applog.WithScript(applog.WithOperation(a.l, "run"), path)

	picks, err := console.ParsePicks(*choices)
	if err != nil {
		return a.usageError(fs, err.Error())
	}
	text, err := script.ReadFile(path)
	if err != nil {
		return err
	}
	if *strict {
		diags := lint.New(a.cat).Validate(text)
		if errs, _ := lint.Count(diags); errs > 0 {
			for _, d := range diags {
				if d.Severity == lint.SeverityError {
					fmt.Fprintf(a.stderr, "%s:%s\n", path, d)
				}
			}
			return errFailed
		}
	}

	clock := vm.RealClock{Scale: *scale}
	if *fast {
		clock.Scale = 0
	}
	out := console.New(console.Options{In: a.stdin, Out: a.stdout, Picks: picks, Wrap: *wrap})
	var sink vm.Sink = out
	var rec *vm.Transcript
	if *transcript {
		rec = vm.NewTranscript()
		sink = vm.Tee{out, rec}
	}
	opts := vm.Options{Catalog: a.cat, Clock: clock, Logger: l, MaxSteps: *maxSteps}
	if *simulate {
		h, err := newSimHost(a, *has)
		if err != nil {
			return a.usageError(fs, err.Error())
		}
		opts.Host = h
	}

	machine := vm.New(script.Parse(text), sink, opts)
	runErr := machine.Run(ctx)
	a.tel.Run(telemetry.RunStats{Steps: machine.Steps(), Reason: machine.Reason()})

	if rec != nil {
		if err := a.saveTranscript(ctx, *rootDir, path, machine, rec); err != nil {
			l.Warn("transcript not saved", slog.Any("err", err))
			fmt.Fprintf(a.stderr, "oyster run: transcript not saved: %v\n", err)
		}
	}

	switch {
	case runErr == nil:
		return nil
	case errors.Is(runErr, vm.ErrChoiceCancelled), errors.Is(runErr, context.Canceled):
		fmt.Fprintln(a.stderr, "(cancelled)")
		return nil
	default:
		return runErr
	}
}

func (a *app) saveTranscript(ctx context.Context, dir, path string, m *vm.VM, rec *vm.Transcript) error {
	ws, err := root(dir)
	if err != nil {
		return err
	}
	rel := path
	if abs, err := filepath.Abs(path); err == nil {
		if absRoot, err := filepath.Abs(ws); err == nil {
			if r, err := filepath.Rel(absRoot, abs); err == nil && !strings.HasPrefix(r, "..") {
				rel = filepath.ToSlash(r)
			}
		}
	}
	// A cancelled run is still recorded.
	id, err := storage.SaveTranscript(context.WithoutCancel(ctx), ws, storage.RunRecord{
		Path:    rel,
		Reason:  m.Reason(),
		Steps:   m.Steps(),
		Lines:   rec.Lines,
		Choices: rec.Choices,
	})
	if err != nil {
		return err
	}
	a.l.Info("transcript saved", slog.Int64("id", id), slog.String("script", rel))
	return nil
}

// simHost plays the game side of a run: the player's inventory, delivered
// gifts and unlocked achievements, announced on the console.
type simHost struct {
	mu    sync.Mutex
	a     *app
	items map[string]map[string]bool // person -> item
}

// player is the inventory Give_Item fills.
const player = "player"

func newSimHost(a *app, seed []string) (*simHost, error) {
	h := &simHost{a: a, items: make(map[string]map[string]bool)}
	for _, s := range seed {
		person, item, ok := strings.Cut(s, "=")
		if !ok || strings.TrimSpace(person) == "" || strings.TrimSpace(item) == "" {
			return nil, fmt.Errorf("invalid --has %q: want person=item", s)
		}
		h.add(person, item)
	}
	return h, nil
}

func (h *simHost) add(person, item string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	key := strings.ToLower(strings.TrimSpace(person))
	if h.items[key] == nil {
		h.items[key] = make(map[string]bool)
	}
	h.items[key][strings.TrimSpace(item)] = true
}

func (h *simHost) GiveItem(item string) error {
	h.add(player, item)
	fmt.Fprintf(h.a.stderr, "[item] %s\n", item)
	return nil
}

func (h *simHost) DeliverGift(to, gift string) error {
	h.add(to, gift)
	fmt.Fprintf(h.a.stderr, "[gift] %s -> %s\n", gift, to)
	return nil
}

func (h *simHost) UnlockAchievement(id string) error {
	fmt.Fprintf(h.a.stderr, "[achievement] %s\n", id)
	return nil
}

func (h *simHost) HasItem(person, item string) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.items[strings.ToLower(strings.TrimSpace(person))][strings.TrimSpace(item)], nil
}
