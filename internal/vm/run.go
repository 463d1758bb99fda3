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
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"
)

// Clock sleeps for Sys_Wait. Sleep returns early with ctx's error when ctx
// is cancelled.
type Clock interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// RealClock sleeps on the wall clock, multiplying every wait by Scale.
// A Scale of 0 skips waits entirely.
type RealClock struct {
	Scale float64
}

func (c RealClock) Sleep(ctx context.Context, d time.Duration) error {
	if f := float64(d) * c.Scale; f >= math.MaxInt64 {
		d = math.MaxInt64
	} else {
		d = time.Duration(f)
	}
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Run drives the machine until it halts. Timed waits go through the Clock and
// choices through the Sink. It returns nil when the script ends, the
// cancellation cause when ctx ends or a prompt is closed, ErrStepLimit when
// MaxSteps is exceeded and an *ExecError when a handler fails.
func (v *VM) Run(ctx context.Context) error {
	start := time.Now()
	err := v.run(ctx)
	v.log.Info("run finished",
		slog.Int("steps", v.steps),
		slog.String("reason", v.Reason()),
		slog.Duration("took", time.Since(start)))
	return err
}

func (v *VM) run(ctx context.Context) (err error) {
	// Sink and Clock run outside Step; their panics end the run too.
	defer func() {
		if r := recover(); r != nil {
			err = v.fail(v.current(), fmt.Errorf("panic: %v", r))
		}
	}()
	for {
		if err := ctx.Err(); err != nil {
			v.halt(err)
			return err
		}
		st, err := v.Step()
		if err != nil {
			return err
		}
		switch st {
		case StateHalted:
			return nil
		case StateWaitingTimer:
			if err := v.clock.Sleep(ctx, v.wait); err != nil {
				v.halt(err)
				return err
			}
			if err := v.ResumeTimer(); err != nil {
				return err
			}
		case StateWaitingChoice:
			opts := v.Options()
			i, err := v.sink.Choose(ctx, opts)
			if err != nil {
				if !errors.Is(err, ErrChoiceCancelled) && !errors.Is(err, ErrInvalidChoice) {
					err = fmt.Errorf("%w: %w", ErrChoiceCancelled, err)
				}
				v.halt(err)
				return err
			}
			if err := v.Choose(i); err != nil {
				v.halt(err)
				return err
			}
		}
	}
}
