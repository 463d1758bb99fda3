/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package vm executes Oyster scripts.
//
// A VM is an explicit state machine over an immutable snapshot of parsed
// statements. Step executes one statement; Sys_Wait and Show_Options suspend
// the machine until ResumeTimer or Choose is called. Run drives the machine
// to completion with an injected Clock and Sink. A VM is owned by a single
// goroutine; separate VMs share nothing.
package vm

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strconv"
	"time"

	"oyster/internal/catalog"
	applog "oyster/internal/log"
	"oyster/internal/script"
)

var (
	// ErrHalted is returned when stepping a machine that has already halted.
	ErrHalted = errors.New("vm: halted")
	// ErrSuspended is returned by Step while the machine waits for a resume.
	ErrSuspended = errors.New("vm: waiting for resume")
	// ErrNotWaiting is returned by ResumeTimer and Choose in the wrong state.
	ErrNotWaiting = errors.New("vm: not waiting")
	// ErrInvalidChoice is returned by Choose for an index out of range.
	ErrInvalidChoice = errors.New("vm: invalid choice")
	// ErrChoiceCancelled ends a run whose choice prompt was closed.
	ErrChoiceCancelled = errors.New("vm: choice cancelled")
	// ErrCancelled ends a run stopped by Cancel.
	ErrCancelled = errors.New("vm: cancelled")
	// ErrStepLimit ends a run that executed MaxSteps statements.
	ErrStepLimit = errors.New("vm: step limit reached")
)

// ExecError is a fatal failure inside a command handler.
type ExecError struct {
	PC      int
	Line    int // 0-based source line
	Command string
	Err     error
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("line %d: %s: %v", e.Line+1, e.Command, e.Err)
}

func (e *ExecError) Unwrap() error { return e.Err }

// State is the machine state.
type State int

const (
	StateRunning State = iota
	StateWaitingTimer
	StateWaitingChoice
	StateHalted
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateWaitingTimer:
		return "waiting-timer"
	case StateWaitingChoice:
		return "waiting-choice"
	case StateHalted:
		return "halted"
	default:
		return "state(" + strconv.Itoa(int(s)) + ")"
	}
}

// Var is a typed variable cell.
type Var struct {
	Type catalog.Type
	Int  int64
	Bool bool
	Str  string
}

// String renders the value the way interpolation inserts it.
func (v Var) String() string {
	switch v.Type {
	case catalog.TypeInt:
		return strconv.FormatInt(v.Int, 10)
	case catalog.TypeBool:
		return strconv.FormatBool(v.Bool)
	default:
		return v.Str
	}
}

// Host performs game side effects. HasItem backs Check_Has.
type Host interface {
	GiveItem(item string) error
	DeliverGift(to, gift string) error
	UnlockAchievement(id string) error
	HasItem(person, item string) (bool, error)
}

// Options configures a VM. Zero values pick the built-in catalog, a real
// clock, the "vm" logger and no step limit.
type Options struct {
	Catalog  *catalog.Catalog
	Host     Host
	Clock    Clock
	Logger   *slog.Logger
	MaxSteps int
}

type pendingChoice struct {
	options []string
	targets []string // label per option, "" for none
}

// VM runs one script.
type VM struct {
	stmts    []script.Statement
	labels   map[string]int
	vars     map[string]Var
	cat      *catalog.Catalog
	sink     Sink
	host     Host
	clock    Clock
	log      *slog.Logger
	maxSteps int

	pc     int
	state  State
	steps  int
	wait   time.Duration
	choice *pendingChoice
	err    error
}

// New builds a VM over a private copy of stmts and indexes its line markers.
func New(stmts []script.Statement, sink Sink, opts Options) *VM {
	v := &VM{
		stmts:    append([]script.Statement(nil), stmts...),
		vars:     make(map[string]Var),
		cat:      opts.Catalog,
		sink:     sink,
		host:     opts.Host,
		clock:    opts.Clock,
		log:      opts.Logger,
		maxSteps: opts.MaxSteps,
	}
	if v.cat == nil {
		v.cat = catalog.Default()
	}
	if v.clock == nil {
		v.clock = RealClock{Scale: 1}
	}
	if v.log == nil {
		v.log = applog.WithComponent("vm")
	}
	if v.sink == nil {
		v.sink = Discard{}
	}
	v.labels = IndexLabels(v.stmts, v.cat)
	return v
}

// Load parses text leniently and builds a VM for it.
func Load(text string, sink Sink, opts Options) *VM {
	return New(script.Parse(text), sink, opts)
}

// IndexLabels maps every Line_Marker name to its statement index. The first
// marker with a given name wins.
func IndexLabels(stmts []script.Statement, cat *catalog.Catalog) map[string]int {
	labels := make(map[string]int)
	for i, s := range stmts {
		cmd, ok := cat.Resolve(s.Command)
		if !ok || cmd.Name != "Line_Marker" {
			continue
		}
		arg, ok := s.Arg(0)
		if !ok {
			continue
		}
		if _, seen := labels[arg.Text()]; !seen {
			labels[arg.Text()] = i
		}
	}
	return labels
}

// State reports the current state.
func (v *VM) State() State { return v.state }

// PC is the index of the next statement to execute.
func (v *VM) PC() int { return v.pc }

// Steps counts executed statements.
func (v *VM) Steps() int { return v.steps }

// Err is the reason the machine halted, nil after a normal end.
func (v *VM) Err() error { return v.err }

// Wait is the pending timer duration while in StateWaitingTimer.
func (v *VM) Wait() time.Duration { return v.wait }

// Options lists the pending choices while in StateWaitingChoice.
func (v *VM) Options() []string {
	if v.choice == nil {
		return nil
	}
	return append([]string(nil), v.choice.options...)
}

// Labels returns a copy of the line marker index.
func (v *VM) Labels() map[string]int { return maps.Clone(v.labels) }

// Var reads a variable.
func (v *VM) Var(name string) (Var, bool) {
	x, ok := v.vars[name]
	return x, ok
}

// Vars returns a copy of the variable store.
func (v *VM) Vars() map[string]Var { return maps.Clone(v.vars) }

// Reason names why the machine halted, for logs and telemetry.
func (v *VM) Reason() string {
	var ee *ExecError
	switch {
	case v.state != StateHalted:
		return v.state.String()
	case v.err == nil:
		return "end"
	case errors.Is(v.err, ErrStepLimit):
		return "step-limit"
	case errors.Is(v.err, ErrInvalidChoice):
		return "invalid-choice"
	case errors.Is(v.err, ErrChoiceCancelled), errors.Is(v.err, ErrCancelled):
		return "cancelled"
	case errors.As(v.err, &ee):
		return "error"
	default:
		return "cancelled"
	}
}

// ResumeTimer ends a Sys_Wait suspension.
func (v *VM) ResumeTimer() error {
	if v.state != StateWaitingTimer {
		return ErrNotWaiting
	}
	v.wait = 0
	v.state = StateRunning
	v.pc++
	return nil
}

// Choose resolves a Show_Options suspension with the option at index i of
// Options. The machine jumps to the option's marker when it exists and falls
// through otherwise.
func (v *VM) Choose(i int) error {
	if v.state != StateWaitingChoice {
		return ErrNotWaiting
	}
	if i < 0 || i >= len(v.choice.options) {
		return fmt.Errorf("%w: %d of %d", ErrInvalidChoice, i, len(v.choice.options))
	}
	target := v.choice.targets[i]
	v.choice = nil
	v.state = StateRunning
	if !v.jump(target) {
		v.pc++
	}
	return nil
}

// Cancel halts the machine. A machine waiting for a choice halts with
// ErrChoiceCancelled, any other with ErrCancelled.
func (v *VM) Cancel() {
	if v.state == StateHalted {
		return
	}
	if v.state == StateWaitingChoice {
		v.halt(ErrChoiceCancelled)
		return
	}
	v.halt(ErrCancelled)
}

func (v *VM) halt(err error) {
	v.state = StateHalted
	v.choice = nil
	v.wait = 0
	if v.err == nil {
		v.err = err
	}
}

// jump moves pc to a known label.
func (v *VM) jump(label string) bool {
	if label == "" {
		return false
	}
	idx, ok := v.labels[label]
	if ok {
		v.pc = idx
	}
	return ok
}
