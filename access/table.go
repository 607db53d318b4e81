package access

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Level is a privilege rank. Lower is more privileged.
type Level int

// Built-in level names.
const (
	NameRoot    = "root"
	NameAdmin   = "admin"
	NameDefault = "default"
	NameGuest   = "guest"
)

// RootLevel is the most privileged level.
const RootLevel Level = 0

// Entry is one row of a Table.
type Entry struct {
	Name  string `json:"name" yaml:"name"`
	Level Level  `json:"access_level" yaml:"access_level"`
}

// Table is an immutable name to level lookup.
type Table struct {
	levels  map[string]Level
	entries []Entry
}

// DefaultLevels returns the built-in name to level mapping.
func DefaultLevels() map[string]Level {
	return map[string]Level{
		NameRoot:    0,
		NameAdmin:   1,
		NameDefault: 2,
		NameGuest:   3,
	}
}

// DefaultTable returns the built-in table.
func DefaultTable() *Table {
	t, _ := NewTable(DefaultLevels())
	return t
}

// NewTable builds a table from levels. Names are matched case-insensitively.
func NewTable(levels map[string]Level) (*Table, error) {
	if len(levels) == 0 {
		return nil, errors.New("access table must not be empty")
	}
	t := &Table{levels: make(map[string]Level, len(levels))}
	for name, lvl := range levels {
		key := strings.ToLower(strings.TrimSpace(name))
		if key == "" {
			return nil, errors.New("access level name must not be empty")
		}
		if lvl < RootLevel {
			return nil, fmt.Errorf("access level %q: negative level %d", name, lvl)
		}
		if _, dup := t.levels[key]; dup {
			return nil, fmt.Errorf("access level %q defined twice", key)
		}
		t.levels[key] = lvl
		t.entries = append(t.entries, Entry{Name: key, Level: lvl})
	}
	sort.Slice(t.entries, func(i, j int) bool {
		if t.entries[i].Level != t.entries[j].Level {
			return t.entries[i].Level < t.entries[j].Level
		}
		return t.entries[i].Name < t.entries[j].Name
	})
	return t, nil
}

// Lookup returns the level registered under name.
func (t *Table) Lookup(name string) (Level, bool) {
	lvl, ok := t.levels[strings.ToLower(strings.TrimSpace(name))]
	return lvl, ok
}

// Entries returns every entry ordered from most to least privileged.
func (t *Table) Entries() []Entry {
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Visible returns the entries a caller may list. Root entries are only shown
// to root callers.
func (t *Table) Visible(c Claim) []Entry {
	out := make([]Entry, 0, len(t.entries))
	for _, e := range t.entries {
		if e.Level == RootLevel && c.Level != RootLevel {
			continue
		}
		out = append(out, e)
	}
	return out
}
