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
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"oyster/internal/backend"
	"oyster/internal/catalog"
)

func runDescribe(ctx context.Context, a *app, args []string) error {
	fs := a.flags("describe")
	asJSON := fs.Bool("json", false, "print the record as JSON")
	remote := fs.Bool("remote", false, "ask the backend")
	if err := parse(fs, args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return a.usageError(fs, "expected one command name")
	}
	name := fs.Arg(0)

	var d catalog.Description
	if *remote {
		var err error
		d, err = a.client().Describe(ctx, name)
		var he *backend.HTTPError
		if errors.As(err, &he) && he.Status == http.StatusNotFound {
			fmt.Fprintf(a.stderr, "oyster describe: %s\n", he.Message)
			return errFailed
		}
		if err != nil {
			return err
		}
	} else {
		var ok bool
		d, ok = a.cat.Describe(name)
		if !ok {
			msg := fmt.Sprintf("unknown command %q", name)
			if s, ok := a.cat.Suggest(name); ok {
				msg += fmt.Sprintf(" (did you mean %s?)", s)
			}
			fmt.Fprintf(a.stderr, "oyster describe: %s\n", msg)
			return errFailed
		}
	}
	if *asJSON {
		return encodeJSON(a.stdout, d)
	}
	_, err := io.WriteString(a.stdout, d.Markdown())
	return err
}

func runComplete(ctx context.Context, a *app, args []string) error {
	fs := a.flags("complete")
	asJSON := fs.Bool("json", false, "print records as JSON")
	remote := fs.Bool("remote", false, "ask the backend")
	if err := parse(fs, args); err != nil {
		return err
	}
	if fs.NArg() > 1 {
		return a.usageError(fs, "expected at most one prefix")
	}
	prefix := strings.Join(fs.Args(), "")

	var ds []catalog.Description
	if *remote {
		var err error
		if ds, err = a.client().Complete(ctx, prefix); err != nil {
			return err
		}
	} else {
		ds = a.cat.Complete(prefix)
	}
	if *asJSON {
		if ds == nil {
			ds = []catalog.Description{}
		}
		return encodeJSON(a.stdout, ds)
	}
	for _, d := range ds {
		fmt.Fprintf(a.stdout, "%-20s %s\n", d.Name, d.Signature)
	}
	return nil
}

func encodeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
