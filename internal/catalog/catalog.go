/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package catalog holds the Oyster command catalog: for every command its
// parameters, their types and defaults, the version it was introduced in and
// the games it works with. A Catalog is immutable once loaded and safe for
// concurrent use.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	gojsonschema "github.com/xeipuuv/gojsonschema"
	"golang.org/x/text/cases"
	"gopkg.in/yaml.v3"

	applog "oyster/internal/log"
)

//go:embed commands.yaml
var builtinCatalog []byte

//go:embed catalog.schema.json
var catalogSchema []byte

// ErrUnknownCommand is returned by Lookup for names not in the catalog.
var ErrUnknownCommand = errors.New("unknown command")

// BaseGame marks a command as compatible with every game.
const BaseGame = "Base"

// Type is a parameter value type.
type Type string

const (
	TypeString Type = "string"
	TypeInt    Type = "int"
	TypeBool   Type = "bool"
)

// Role says what a string parameter names, beyond being text.
type Role string

const (
	RoleNone     Role = ""
	RoleLabel    Role = "label"    // defines a line marker
	RoleMarker   Role = "marker"   // jumps to a line marker
	RoleVariable Role = "variable" // names a variable
)

// Param describes one command parameter.
type Param struct {
	Name        string `yaml:"name" json:"name"`
	Type        Type   `yaml:"type" json:"type"`
	Default     any    `yaml:"default,omitempty" json:"default,omitempty"`
	Role        Role   `yaml:"role,omitempty" json:"role,omitempty"`
	VarType     Type   `yaml:"varType,omitempty" json:"varType,omitempty"` // for RoleVariable parameters
	Description string `yaml:"description" json:"description"`

	// Omittable marks a trailing positional parameter that may be left out.
	// Every positional parameter after an omittable one must be omittable too.
	Omittable bool `yaml:"omittable,omitempty" json:"omittable,omitempty"`
}

// Command is the contract of one command.
type Command struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Introduced  string   `yaml:"introduced"`
	DocURL      string   `yaml:"docs"`
	Games       []string `yaml:"games"`
	// Declares is the variable type a Set_*Var command creates.
	Declares Type    `yaml:"declares"`
	Required []Param `yaml:"required"`
	Optional []Param `yaml:"optional"`
}

// Universal reports whether the command works with every game.
func (c *Command) Universal() bool {
	if len(c.Games) == 0 {
		return true
	}
	for _, g := range c.Games {
		if g == BaseGame {
			return true
		}
	}
	return false
}

// OptionalParam finds an optional parameter by exact name.
func (c *Command) OptionalParam(name string) (Param, bool) {
	for _, p := range c.Optional {
		if p.Name == name {
			return p, true
		}
	}
	return Param{}, false
}

// Game is a canonical game name plus the aliases scripts may use for it.
type Game struct {
	Name    string   `yaml:"name"`
	Aliases []string `yaml:"aliases"`
}

type document struct {
	Version  int       `yaml:"version"`
	Games    []Game    `yaml:"games"`
	Commands []Command `yaml:"commands"`
}

// Catalog is an immutable command table with case-insensitive lookup.
type Catalog struct {
	commands []*Command // sorted by name
	byKey    map[string]*Command
	games    map[string]string // folded alias or name -> canonical name
}

var (
	defaultOnce sync.Once
	defaultCat  *Catalog
)

// Default returns the built-in catalog. It panics if the embedded document is
// invalid, which only a broken build can cause.
func Default() *Catalog {
	defaultOnce.Do(func() {
		c, err := Load(builtinCatalog)
		if err != nil {
			panic(fmt.Sprintf("catalog: embedded catalog invalid: %v", err))
		}
		applog.WithComponent("catalog").Debug("catalog loaded", slog.Int("commands", len(c.commands)))
		defaultCat = c
	})
	return defaultCat
}

// Load parses and validates a catalog document (YAML or JSON).
func Load(data []byte) (*Catalog, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	res, err := gojsonschema.Validate(gojsonschema.NewBytesLoader(catalogSchema), gojsonschema.NewGoLoader(raw))
	if err != nil {
		return nil, fmt.Errorf("validate catalog: %w", err)
	}
	if !res.Valid() {
		msgs := make([]string, 0, len(res.Errors()))
		for _, e := range res.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, fmt.Errorf("catalog does not match schema: %s", strings.Join(msgs, "; "))
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}

	c := &Catalog{
		byKey: make(map[string]*Command, len(doc.Commands)),
		games: make(map[string]string),
	}
	for i := range doc.Commands {
		cmd := &doc.Commands[i]
		key := fold(cmd.Name)
		if _, dup := c.byKey[key]; dup {
			return nil, fmt.Errorf("catalog: duplicate command %q", cmd.Name)
		}
		if err := checkDefaults(cmd); err != nil {
			return nil, err
		}
		if err := checkOmittable(cmd); err != nil {
			return nil, err
		}
		c.byKey[key] = cmd
		c.commands = append(c.commands, cmd)
	}
	sort.Slice(c.commands, func(i, j int) bool { return c.commands[i].Name < c.commands[j].Name })

	for _, g := range doc.Games {
		c.games[fold(g.Name)] = g.Name
		for _, a := range g.Aliases {
			c.games[fold(a)] = g.Name
		}
	}
	return c, nil
}

func checkDefaults(cmd *Command) error {
	for _, p := range cmd.Optional {
		if p.Default == nil {
			continue
		}
		ok := false
		switch p.Type {
		case TypeString:
			_, ok = p.Default.(string)
		case TypeInt:
			_, ok = p.Default.(int)
		case TypeBool:
			_, ok = p.Default.(bool)
		}
		if !ok {
			return fmt.Errorf("catalog: %s.%s default %v is not %s", cmd.Name, p.Name, p.Default, p.Type)
		}
	}
	return nil
}

func checkOmittable(cmd *Command) error {
	for i := 1; i < len(cmd.Required); i++ {
		if cmd.Required[i-1].Omittable && !cmd.Required[i].Omittable {
			return fmt.Errorf("catalog: %s.%s follows an omittable parameter", cmd.Name, cmd.Required[i].Name)
		}
	}
	return nil
}

// MinArgs is the number of positional parameters that must be present.
func (c *Command) MinArgs() int {
	for i, p := range c.Required {
		if p.Omittable {
			return i
		}
	}
	return len(c.Required)
}

// fold returns the case-folded lookup key for a name. Casers are not safe for
// concurrent use, so each call gets its own.
func fold(s string) string { return cases.Fold().String(strings.TrimSpace(s)) }

// Resolve finds a command by name, ignoring case.
func (c *Catalog) Resolve(name string) (*Command, bool) {
	cmd, ok := c.byKey[fold(name)]
	return cmd, ok
}

// Lookup is Resolve with an error for unknown names.
func (c *Catalog) Lookup(name string) (*Command, error) {
	if cmd, ok := c.Resolve(name); ok {
		return cmd, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownCommand, name)
}

// Commands returns every command sorted by name.
func (c *Catalog) Commands() []*Command {
	return append([]*Command(nil), c.commands...)
}

// Names returns every command name sorted.
func (c *Catalog) Names() []string {
	out := make([]string, len(c.commands))
	for i, cmd := range c.commands {
		out[i] = cmd.Name
	}
	return out
}

// CanonicalGame maps a game name or alias to its canonical name. Unknown names
// are returned trimmed and unchanged.
func (c *Catalog) CanonicalGame(name string) string {
	if g, ok := c.games[fold(name)]; ok {
		return g
	}
	return strings.TrimSpace(name)
}

// Supports reports whether cmd can be used in a script targeting game.
func (c *Catalog) Supports(cmd *Command, game string) bool {
	if cmd.Universal() {
		return true
	}
	want := c.CanonicalGame(game)
	for _, g := range cmd.Games {
		if c.CanonicalGame(g) == want {
			return true
		}
	}
	return false
}
