/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package catalog

import (
	"strconv"
	"strings"
)

// VersionNumber turns an Oyster version tag into a comparable integer by
// dropping the dots and reading the leading digits: "4.1.0" is 410 and
// "4.0.0s" is 400. ok is false when the tag has no leading digit.
func VersionNumber(v string) (n int, ok bool) {
	s := strings.ReplaceAll(strings.TrimSpace(v), ".", "")
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0, false
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0, false
	}
	return n, true
}

// NewerThan reports whether the command was introduced after scriptVersion.
// Unparseable versions never compare as newer.
func (c *Command) NewerThan(scriptVersion string) bool {
	have, ok := VersionNumber(scriptVersion)
	if !ok {
		return false
	}
	need, ok := VersionNumber(c.Introduced)
	if !ok {
		return false
	}
	return need > have
}
