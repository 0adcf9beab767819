// Package materials holds the canonical mining-material name table and the
// multi-star suffix whitelist. Both are data files embedded at build time so
// new aliases can ship without code changes.
package materials

import (
	"embed"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode"
)

//go:embed materials.json star_suffixes.json
var resourceFS embed.FS

type materialEntry struct {
	Name    string   `json:"name"`
	Abbrev  string   `json:"abbrev"`
	Aliases []string `json:"aliases"`
}

type materialFile struct {
	Materials []materialEntry `json:"materials"`
}

type suffixFile struct {
	Suffixes []string `json:"suffixes"`
}

// Table resolves material names (including journal-internal and non-English
// spellings) to their canonical English title-case form.
type Table struct {
	canon     map[string]string // lookup key -> canonical name
	abbrev    map[string]string // canonical name -> short label
	canonical []string
	suffixes  map[string]bool
}

// Load parses the embedded resource files into a Table.
func Load() (*Table, error) {
	var mf materialFile
	data, err := resourceFS.ReadFile("materials.json")
	if err != nil {
		return nil, fmt.Errorf("failed to read materials resource: %w", err)
	}
	if err := json.Unmarshal(data, &mf); err != nil {
		return nil, fmt.Errorf("failed to parse materials resource: %w", err)
	}

	var sf suffixFile
	data, err = resourceFS.ReadFile("star_suffixes.json")
	if err != nil {
		return nil, fmt.Errorf("failed to read star suffix resource: %w", err)
	}
	if err := json.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("failed to parse star suffix resource: %w", err)
	}

	t := &Table{
		canon:    make(map[string]string),
		abbrev:   make(map[string]string),
		suffixes: make(map[string]bool),
	}
	for _, m := range mf.Materials {
		t.canonical = append(t.canonical, m.Name)
		t.canon[lookupKey(m.Name)] = m.Name
		t.abbrev[m.Name] = m.Abbrev
		for _, a := range m.Aliases {
			t.canon[lookupKey(a)] = m.Name
		}
	}
	sort.Strings(t.canonical)
	for _, s := range sf.Suffixes {
		t.suffixes[s] = true
	}
	return t, nil
}

var (
	defaultOnce  sync.Once
	defaultTable *Table
)

// Default returns the table built from the embedded resources. The embed is
// compiled in, so a parse failure here is a build defect and panics.
func Default() *Table {
	defaultOnce.Do(func() {
		t, err := Load()
		if err != nil {
			panic("materials: embedded resources invalid: " + err.Error())
		}
		defaultTable = t
	})
	return defaultTable
}

// Canonical maps any known spelling of a material to its canonical English
// title-case name. Unknown names pass through title-cased, preserved as
// distinct values rather than fuzzily merged.
func (t *Table) Canonical(name string) string {
	cleaned := stripJournalWrapper(name)
	if c, ok := t.canon[lookupKey(cleaned)]; ok {
		return c
	}
	return TitleCase(cleaned)
}

// Known reports whether the name resolves through the alias table.
func (t *Table) Known(name string) bool {
	_, ok := t.canon[lookupKey(stripJournalWrapper(name))]
	return ok
}

// Abbrev returns the short label for a canonical name, or the name itself if
// no abbreviation is on file.
func (t *Table) Abbrev(canonical string) string {
	if a, ok := t.abbrev[canonical]; ok && a != "" {
		return a
	}
	return canonical
}

// Names returns all canonical material names, sorted.
func (t *Table) Names() []string {
	out := make([]string, len(t.canonical))
	copy(out, t.canonical)
	return out
}

// IsStarSuffix reports whether s is a recognized multi-star designator
// ("A", "BC", ...) per the embedded whitelist.
func (t *Table) IsStarSuffix(s string) bool {
	return t.suffixes[s]
}

// lookupKey lowercases and strips everything but letters and digits, so
// "Low Temp Diamonds", "LowTempDiamonds" and "low temp diamonds" collide.
func lookupKey(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// stripJournalWrapper removes the game's internal "$name_name;" wrapper.
func stripJournalWrapper(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "$") {
		s = strings.TrimPrefix(s, "$")
		s = strings.TrimSuffix(s, ";")
		s = strings.TrimSuffix(s, "_name")
	}
	return s
}

// TitleCase upper-cases the first letter of each space-separated word and
// lower-cases the rest. Used as the pass-through form for unknown materials.
func TitleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		runes := []rune(strings.ToLower(w))
		if len(runes) > 0 {
			runes[0] = unicode.ToUpper(runes[0])
		}
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}
