/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package crash turns an unrecovered panic in the CLI into a logged error, a
// crash report on disk, and exit code 2.
package crash

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"strings"
	"time"

	applog "oyster/internal/log"
	"oyster/internal/telemetry"
	"oyster/internal/version"
)

// exitFn is used to allow testing of Recover without terminating the test process.
var exitFn = os.Exit

// stderr receives the user-facing message.
var stderr io.Writer = os.Stderr

// Info describes what the process was doing when it crashed.
type Info struct {
	// Dir receives the report; the temp dir is used when empty or not writable.
	Dir  string
	Args []string
	// Script is the script being linted or run, if any.
	Script string
}

// Recover captures a panic, logs it with the stack, writes a report file and exits with code 2.
//
// Usage: defer crash.Recover(&info)
func Recover(info *Info) {
	r := recover()
	if r == nil {
		return
	}
	l := applog.WithComponent("crash")
	stack := debug.Stack()
	l.Error("panic recovered", slog.Any("panic", r), slog.String("stack", string(stack)))

	if info == nil {
		info = &Info{}
	}
	reportPath, err := writeReport(info, r, stack)
	if err != nil {
		l.Error("crash report not written", slog.Any("err", err))
	}
	_, _ = fmt.Fprintf(stderr, "oyster: fatal error. A crash report was saved to: %s\n", reportPath)
	_, _ = fmt.Fprintf(stderr, "Version: %s\nOS/Arch: %s/%s\n", version.String(), runtime.GOOS, runtime.GOARCH)
	exitFn(2)
}

func writeReport(info *Info, panicVal any, stack []byte) (string, error) {
	dir := info.Dir
	if dir == "" || os.MkdirAll(dir, 0o755) != nil {
		dir = os.TempDir()
	}
	path := filepath.Join(dir, fmt.Sprintf("crash-%s.log", time.Now().Format("20060102-150405")))

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "Oyster Crash Report\n")
	fmt.Fprintf(&buf, "Timestamp: %s\n", time.Now().Format(time.RFC3339))
	fmt.Fprintf(&buf, "Version: %s\n", version.String())
	fmt.Fprintf(&buf, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	if len(info.Args) > 0 {
		fmt.Fprintf(&buf, "Args: %s\n", strings.Join(info.Args, " "))
	}
	if info.Script != "" {
		fmt.Fprintf(&buf, "Script: %s\n", info.Script)
	}
	fmt.Fprintf(&buf, "\nPanic: %v\n\n", panicVal)
	fmt.Fprintf(&buf, "Stack:\n%s\n", stack)

	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return path, err
	}

	telemetry.Default().UploadCrash(buf.Bytes())
	return path, nil
}
