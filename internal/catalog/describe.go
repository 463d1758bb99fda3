/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package catalog

import (
	"fmt"
	"sort"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"
)

// Description is the editor-facing record for one command (hover, completion detail).
type Description struct {
	Name              string   `json:"name"`
	Description       string   `json:"description"`
	IntroducedVersion string   `json:"introducedVersion"`
	DocURL            string   `json:"docUrl,omitempty"`
	CompatibleGames   []string `json:"compatibleGames"`
	Required          []Param  `json:"required"`
	Optional          []Param  `json:"optional"`
	Signature         string   `json:"signature"`
}

// Describe returns the descriptive record for a command, ignoring case.
func (c *Catalog) Describe(name string) (Description, bool) {
	cmd, ok := c.Resolve(name)
	if !ok {
		return Description{}, false
	}
	return describe(cmd), true
}

func describe(cmd *Command) Description {
	games := cmd.Games
	if len(games) == 0 {
		games = []string{BaseGame}
	}
	return Description{
		Name:              cmd.Name,
		Description:       cmd.Description,
		IntroducedVersion: cmd.Introduced,
		DocURL:            cmd.DocURL,
		CompatibleGames:   append([]string(nil), games...),
		Required:          append([]Param{}, cmd.Required...),
		Optional:          append([]Param{}, cmd.Optional...),
		Signature:         Signature(cmd),
	}
}

// Signature renders a usage line such as `Sys_Wait [time, canSkip=false]`.
// Omittable positional parameters carry a trailing '?'.
func Signature(cmd *Command) string {
	parts := make([]string, 0, len(cmd.Required)+len(cmd.Optional))
	need := cmd.MinArgs()
	for i, p := range cmd.Required {
		if i >= need {
			parts = append(parts, p.Name+"?")
			continue
		}
		parts = append(parts, p.Name)
	}
	for _, p := range cmd.Optional {
		if p.Default != nil {
			parts = append(parts, fmt.Sprintf("%s=%v", p.Name, p.Default))
		} else {
			parts = append(parts, p.Name+"=")
		}
	}
	return cmd.Name + " [" + strings.Join(parts, ", ") + "]"
}

// Markdown renders a hover text for the command.
func (d Description) Markdown() string {
	var b strings.Builder
	fmt.Fprintf(&b, "**%s** (since %s)\n\n%s\n\n`%s`\n", d.Name, d.IntroducedVersion, d.Description, d.Signature)
	writeParams := func(title string, ps []Param) {
		if len(ps) == 0 {
			return
		}
		fmt.Fprintf(&b, "\n%s:\n", title)
		for _, p := range ps {
			fmt.Fprintf(&b, "- `%s` (%s", p.Name, p.Type)
			if p.Default != nil {
				fmt.Fprintf(&b, ", default %v", p.Default)
			}
			fmt.Fprintf(&b, "): %s\n", p.Description)
		}
	}
	writeParams("Required", d.Required)
	writeParams("Optional", d.Optional)
	fmt.Fprintf(&b, "\nGames: %s\n", strings.Join(d.CompatibleGames, ", "))
	if d.DocURL != "" {
		fmt.Fprintf(&b, "\n[Documentation](%s)\n", d.DocURL)
	}
	return b.String()
}

// Complete lists commands for an editor completion popup: names starting with
// prefix first (sorted), then fuzzy matches ranked by distance.
func (c *Catalog) Complete(prefix string) []Description {
	prefix = strings.TrimSpace(prefix)
	var out []Description
	seen := make(map[string]bool)
	key := fold(prefix)
	for _, cmd := range c.commands {
		if strings.HasPrefix(fold(cmd.Name), key) {
			out = append(out, describe(cmd))
			seen[cmd.Name] = true
		}
	}
	if prefix == "" {
		return out
	}
	ranks := fuzzy.RankFindFold(prefix, c.Names())
	sort.Sort(ranks)
	for _, r := range ranks {
		if seen[r.Target] {
			continue
		}
		if cmd, ok := c.Resolve(r.Target); ok {
			out = append(out, describe(cmd))
			seen[r.Target] = true
		}
	}
	return out
}

// Suggest returns the command name closest to an unknown name, for "did you
// mean" hints. Small edit distances win; otherwise the best fuzzy subsequence
// match is used.
func (c *Catalog) Suggest(name string) (string, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", false
	}
	key := fold(name)
	best, bestDist := "", -1
	for _, cmd := range c.commands {
		d := fuzzy.LevenshteinDistance(key, fold(cmd.Name))
		if bestDist < 0 || d < bestDist {
			best, bestDist = cmd.Name, d
		}
	}
	limit := len(key) / 3
	if limit < 2 {
		limit = 2
	}
	if bestDist >= 0 && bestDist <= limit {
		return best, true
	}
	ranks := fuzzy.RankFindFold(name, c.Names())
	if len(ranks) == 0 {
		return "", false
	}
	sort.Sort(ranks)
	return ranks[0].Target, true
}
