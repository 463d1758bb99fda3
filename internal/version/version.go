/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package version exposes the program version set at build time.
package version

import (
	"fmt"
	"runtime/debug"

	"github.com/anttikivi/semver"
)

// Version is overridden at build time with -ldflags "-X oyster/internal/version.Version=1.2.3".
var Version = "0.3.0-dev"

// String returns the version with the VCS revision appended when known.
func String() string {
	v := Version
	if _, err := semver.Parse(v); err != nil {
		v = fmt.Sprintf("%s (unparsed)", v)
	}
	if rev := Revision(); rev != "" {
		return v + "+" + rev
	}
	return v
}

// Revision returns the short VCS revision from build info, or "" when unavailable.
func Revision() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	var rev, dirty string
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			rev = s.Value
		case "vcs.modified":
			if s.Value == "true" {
				dirty = "-dirty"
			}
		}
	}
	if len(rev) > 12 {
		rev = rev[:12]
	}
	if rev == "" {
		return ""
	}
	return rev + dirty
}
