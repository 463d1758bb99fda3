/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Command oyster lints, runs, indexes and exports Oyster dialogue scripts, and
// serves the shared script API.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"oyster/internal/catalog"
	"oyster/internal/config"
	"oyster/internal/crash"
	applog "oyster/internal/log"
	"oyster/internal/storage"
	"oyster/internal/telemetry"
)

// Exit codes.
const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

var (
	// errUsage reports bad arguments; the command's usage has been printed.
	errUsage = errors.New("usage error")
	// errFailed reports a failure whose details were already printed.
	errFailed = errors.New("failed")
)

// command is one subcommand. run receives the arguments after the command
// name and parses them with its own flag set.
type command struct {
	name    string
	usage   string
	summary string
	run     func(ctx context.Context, a *app, args []string) error
}

var commands []*command

func init() {
	commands = []*command{
		{name: "lint", usage: "lint [flags] <file|dir|->...", summary: "Validate scripts and print diagnostics", run: runLint},
		{name: "run", usage: "run [flags] <file>", summary: "Run a script in the terminal", run: runRun},
		{name: "describe", usage: "describe [--json] <command>", summary: "Show the documentation of a command", run: runDescribe},
		{name: "complete", usage: "complete [--json] [prefix]", summary: "List commands matching a prefix", run: runComplete},
		{name: "fmt", usage: "fmt [-w] <file>...", summary: "Normalise command spacing", run: runFmt},
		{name: "index", usage: "index [--rebuild] [--root dir]", summary: "Build the workspace search index", run: runIndex},
		{name: "search", usage: "search [flags] <text>", summary: "Search script text in the index or on the backend", run: runSearch},
		{name: "refs", usage: "refs [--root dir] (--marker name | --variable name)", summary: "Find where a marker or variable is defined", run: runRefs},
		{name: "transcripts", usage: "transcripts [--root dir] [--limit n] <file>", summary: "List stored run transcripts of a script", run: runTranscripts},
		{name: "export", usage: "export [flags] <file>", summary: "Export a reading script as PDF or Markdown", run: runExport},
		{name: "serve", usage: "serve [--addr addr] [--dsn dsn]", summary: "Serve the script API", run: runServe},
		{name: "publish", usage: "publish [--root dir] [--workspace name]", summary: "Publish the workspace index to the backend", run: runPublish},
		{name: "login", usage: "login [--subject name] [--ttl duration]", summary: "Obtain and store a backend token", run: runLogin},
		{name: "version", usage: "version", summary: "Print the version", run: runVersion},
	}
}

// app carries what every command needs. Tests build it directly.
type app struct {
	cfg    config.AppConfig
	token  string
	cat    *catalog.Catalog
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	l      *slog.Logger
	tel    *telemetry.Client
	info   *crash.Info
	// saveToken persists a backend token; config.SaveToken outside tests.
	saveToken func(string) error
}

func newApp(cfg config.AppConfig, token string) *app {
	return &app{
		cfg:       cfg,
		token:     token,
		cat:       catalog.Default(),
		stdin:     os.Stdin,
		stdout:    os.Stdout,
		stderr:    os.Stderr,
		l:         applog.WithComponent("cli"),
		tel:       telemetry.Default(),
		info:      &crash.Info{},
		saveToken: config.SaveToken,
	}
}

func main() {
	os.Exit(realMain())
}

func realMain() int {
	info := &crash.Info{Dir: config.StateDir(), Args: os.Args}
	defer crash.Recover(info)

	cfg, token, cfgErr := config.Load()
	applog.Init(applog.Options{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		AddSource: cfg.Logging.Source,
		File:      cfg.Logging.File,
	})
	l := applog.WithComponent("cli")
	if cfgErr != nil {
		l.Warn("config not loaded, using defaults", slog.Any("err", cfgErr))
	}
	storage.SetIndexDir(cfg.Index.Dir)

	tcfg := telemetry.FromEnv()
	tcfg.OptIn = tcfg.OptIn || cfg.General.TelemetryOptIn
	tel := telemetry.New(tcfg)
	telemetry.SetDefault(tel)
	defer func() {
		fctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		tel.Flush(fctx)
		tel.Close()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := newApp(cfg, token)
	a.tel = tel
	a.info = info
	l.Debug("start", slog.Int("args", len(os.Args)))
	return a.run(ctx, os.Args[1:])
}

// run dispatches args to a command and maps its error to an exit code.
func (a *app) run(ctx context.Context, args []string) int {
	if len(args) == 0 {
		a.usage(a.stderr)
		return exitUsage
	}
	name := args[0]
	switch name {
	case "help", "-h", "--help":
		a.usage(a.stdout)
		return exitOK
	case "-v", "--version":
		name = "version"
	}
	cmd := lookup(name)
	if cmd == nil {
		fmt.Fprintf(a.stderr, "oyster: unknown command %q\n\n", name)
		a.usage(a.stderr)
		return exitUsage
	}
	a.l.Debug("command", slog.String("name", cmd.name))
	err := cmd.run(ctx, a, args[1:])
	switch {
	case err == nil, errors.Is(err, pflag.ErrHelp):
		return exitOK
	case errors.Is(err, errUsage):
		return exitUsage
	case errors.Is(err, errFailed):
		return exitFailure
	default:
		a.l.Error("command failed", slog.String("name", cmd.name), slog.Any("err", err))
		fmt.Fprintf(a.stderr, "oyster %s: %v\n", cmd.name, err)
		return exitFailure
	}
}

func lookup(name string) *command {
	for _, c := range commands {
		if c.name == name {
			return c
		}
	}
	return nil
}

func (a *app) usage(w io.Writer) {
	fmt.Fprintln(w, "Usage: oyster <command> [flags] [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	sorted := append([]*command(nil), commands...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].name < sorted[j].name })
	for _, c := range sorted {
		fmt.Fprintf(w, "  %-12s %s\n", c.name, c.summary)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Run 'oyster <command> --help' for the flags of a command.")
}

// flags returns a flag set for the named command that prints its usage line
// and defaults to stderr on errors.
func (a *app) flags(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(a.stderr)
	fs.Usage = func() {
		if c := lookup(name); c != nil {
			fmt.Fprintf(a.stderr, "Usage: oyster %s\n\n%s\n\n", c.usage, c.summary)
		}
		fs.PrintDefaults()
	}
	return fs
}

// parse parses args into fs, turning flag errors into errUsage. pflag.ErrHelp
// passes through so --help exits cleanly.
func parse(fs *pflag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return err
		}
		return errUsage
	}
	return nil
}

// usageError prints msg and the command usage and returns errUsage.
func (a *app) usageError(fs *pflag.FlagSet, msg string) error {
	fmt.Fprintf(a.stderr, "oyster %s: %s\n", fs.Name(), msg)
	fs.Usage()
	return errUsage
}

// root resolves the workspace root flag; empty means the working directory.
func root(dir string) (string, error) {
	if dir == "" {
		return os.Getwd()
	}
	return dir, nil
}
