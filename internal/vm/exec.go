/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package vm

import (
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"oyster/internal/catalog"
	"oyster/internal/script"
)

// Step executes the statement at pc and returns the resulting state. It
// returns ErrHalted once the machine has halted and ErrSuspended while it
// waits. A failing handler halts the machine with an *ExecError.
func (v *VM) Step() (st State, err error) {
	switch v.state {
	case StateHalted:
		return StateHalted, ErrHalted
	case StateWaitingTimer, StateWaitingChoice:
		return v.state, ErrSuspended
	}
	if v.pc < 0 || v.pc >= len(v.stmts) {
		v.halt(nil)
		return StateHalted, nil
	}
	if v.maxSteps > 0 && v.steps >= v.maxSteps {
		v.halt(ErrStepLimit)
		v.log.Warn("step limit reached", slog.Int("steps", v.steps), slog.Int("pc", v.pc))
		return StateHalted, ErrStepLimit
	}

	s := v.stmts[v.pc]
	defer func() {
		if r := recover(); r != nil {
			err = v.fail(s, fmt.Errorf("panic: %v", r))
			st = StateHalted
		}
	}()

	v.steps++
	redirected, err := v.dispatch(s)
	if err != nil {
		return StateHalted, v.fail(s, err)
	}
	if v.state == StateRunning && !redirected {
		v.pc++
	}
	return v.state, nil
}

func (v *VM) fail(s script.Statement, cause error) error {
	ee := &ExecError{PC: v.pc, Line: s.Line, Command: s.Command, Err: cause}
	v.halt(ee)
	v.log.Error("execution error", slog.Int("pc", v.pc), slog.Int("line", s.Line+1),
		slog.String("cmd", s.Command), slog.Any("err", cause))
	return ee
}

// maxWaitMs is the longest Sys_Wait a time.Duration can hold.
const maxWaitMs = math.MaxInt64 / int64(time.Millisecond)

// current returns the statement at pc, or a zero statement past the end.
func (v *VM) current() script.Statement {
	if v.pc >= 0 && v.pc < len(v.stmts) {
		return v.stmts[v.pc]
	}
	return script.Statement{}
}

// dispatch runs one statement. redirected is true when the handler moved pc.
func (v *VM) dispatch(s script.Statement) (redirected bool, err error) {
	cmd, ok := v.cat.Resolve(s.Command)
	if !ok {
		v.unhandled(s)
		return false, nil
	}
	switch cmd.Name {
	case "Act_Speak", "Act_Append":
		v.sink.AppendLine(v.text(v.arg(s, 0)))
	case "Line_Marker", "Meta":
	case "Jump_To":
		return v.jump(v.text(v.arg(s, 0))), nil
	case "Set_IntVar", "Set_BoolVar", "Set_StringVar":
		v.set(cmd.Declares, s)
	case "Sys_Wait":
		ms := v.intValue(v.arg(s, 0))
		if ms < 0 {
			ms = 0
		}
		if ms > maxWaitMs {
			ms = maxWaitMs
		}
		v.wait = time.Duration(ms) * time.Millisecond
		v.state = StateWaitingTimer
	case "Show_Options":
		v.offer(s)
	case "Check_IntVar":
		x := v.vars[v.text(v.arg(s, 0))]
		ok := x.Type == catalog.TypeInt && x.Int == v.intValue(v.arg(s, 1))
		return v.branch(ok, s, 2, 3), nil
	case "Check_BoolVar":
		x := v.vars[v.text(v.arg(s, 0))]
		return v.branch(x.Type == catalog.TypeBool && x.Bool, s, 1, 2), nil
	case "Give_Item", "Deliver_Gift", "Unlock_Achievement", "Check_Has":
		if v.host == nil {
			v.unhandled(s)
			return false, nil
		}
		return v.callHost(cmd.Name, s)
	default:
		v.unhandled(s)
	}
	return false, nil
}

func (v *VM) callHost(name string, s script.Statement) (bool, error) {
	switch name {
	case "Give_Item":
		return false, v.host.GiveItem(v.text(v.arg(s, 0)))
	case "Deliver_Gift":
		return false, v.host.DeliverGift(v.text(v.arg(s, 0)), v.text(v.arg(s, 1)))
	case "Unlock_Achievement":
		return false, v.host.UnlockAchievement(v.text(v.arg(s, 0)))
	default:
		has, err := v.host.HasItem(v.text(v.arg(s, 0)), v.text(v.arg(s, 1)))
		if err != nil {
			return false, err
		}
		return v.branch(has, s, 2, 3), nil
	}
}

// branch jumps to the marker in argument yes or no depending on ok.
func (v *VM) branch(ok bool, s script.Statement, yes, no int) bool {
	if ok {
		return v.jump(v.text(v.arg(s, yes)))
	}
	return v.jump(v.text(v.arg(s, no)))
}

func (v *VM) set(typ catalog.Type, s script.Statement) {
	name := v.text(v.arg(s, 0))
	if name == "" {
		return
	}
	val := v.arg(s, 1)
	switch typ {
	case catalog.TypeInt:
		v.vars[name] = Var{Type: typ, Int: v.intValue(val)}
	case catalog.TypeBool:
		v.vars[name] = Var{Type: typ, Bool: v.boolValue(val)}
	default:
		v.vars[name] = Var{Type: catalog.TypeString, Str: v.text(val)}
	}
}

// offer suspends on a Show_Options statement. Empty options are hidden; each
// shown option keeps the lmN marker of its original position.
func (v *VM) offer(s script.Statement) {
	pc := &pendingChoice{}
	for i := 0; i < 3; i++ {
		arg, ok := s.Arg(i)
		if !ok {
			continue
		}
		text := v.text(arg)
		if text == "" {
			continue
		}
		target := ""
		if lm, ok := s.Option("lm" + strconv.Itoa(i+1)); ok {
			target = v.text(lm)
		}
		pc.options = append(pc.options, text)
		pc.targets = append(pc.targets, target)
	}
	if len(pc.options) == 0 {
		return
	}
	v.choice = pc
	v.state = StateWaitingChoice
}

func (v *VM) unhandled(s script.Statement) {
	line := strings.TrimSpace("(unhandled) " + s.Command + " " + strings.Join(s.Values(), ", "))
	v.sink.AppendLine(line)
	v.log.Debug("unhandled command", slog.String("cmd", s.Command), slog.Int("line", s.Line+1))
}

func (v *VM) arg(s script.Statement, i int) script.Value {
	val, _ := s.Arg(i)
	return val
}

// text renders a value, expanding variable references and {Name}
// placeholders in interpolated strings. Unknown variables read as empty.
func (v *VM) text(val script.Value) string {
	switch val.Kind {
	case script.KindVarRef:
		return v.vars[val.Str].String()
	case script.KindInterpolated:
		return script.ExpandTemplate(val.Str, func(name string) string {
			return v.vars[name].String()
		})
	default:
		return val.Text()
	}
}

// intValue reads a value as an integer; anything unparseable is 0.
func (v *VM) intValue(val script.Value) int64 {
	switch val.Kind {
	case script.KindInt:
		return val.Int
	case script.KindVarRef:
		x := v.vars[val.Str]
		switch x.Type {
		case catalog.TypeInt:
			return x.Int
		case catalog.TypeBool:
			if x.Bool {
				return 1
			}
			return 0
		}
		n, _ := strconv.ParseInt(strings.TrimSpace(x.Str), 10, 64)
		return n
	}
	n, _ := strconv.ParseInt(strings.TrimSpace(v.text(val)), 10, 64)
	return n
}

// boolValue reads a value as a boolean; only "true" in any case is true.
func (v *VM) boolValue(val script.Value) bool {
	switch val.Kind {
	case script.KindBool:
		return val.Bool
	case script.KindVarRef:
		x := v.vars[val.Str]
		switch x.Type {
		case catalog.TypeBool:
			return x.Bool
		case catalog.TypeInt:
			return x.Int != 0
		}
		return strings.EqualFold(strings.TrimSpace(x.Str), "true")
	}
	return strings.EqualFold(strings.TrimSpace(v.text(val)), "true")
}
