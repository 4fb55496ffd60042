package study

import (
	"fmt"
	"sort"
	"strings"

	"sherockets/domain/core"
)

// Level is one value of an attribute, identified by a study-wide unique code
type Level struct {
	Code  string   `json:"code" yaml:"code"`
	Label string   `json:"label" yaml:"label"`
	Match []string `json:"match,omitempty" yaml:"match,omitempty"` // substrings that identify this level in survey cells
}

// Attribute is a categorical factor shown on every alternative
type Attribute struct {
	Name    string  `json:"name" yaml:"name"` // column stem, e.g. "Message_success_"
	Display string  `json:"display,omitempty" yaml:"display,omitempty"`
	Levels  []Level `json:"levels" yaml:"levels"`
}

// Study is the ordered attribute table of a conjoint survey
type Study struct {
	Name       string      `json:"name" yaml:"name"`
	Attributes []Attribute `json:"attributes" yaml:"attributes"`
}

// LevelRef locates a level inside its study
type LevelRef struct {
	Attribute  string `json:"attribute"`
	Level      Level  `json:"level"`
	AttrIndex  int    `json:"-"`
	LevelIndex int    `json:"-"`
}

// String returns "Attribute/code"
func (r LevelRef) String() string {
	return r.Attribute + "/" + r.Level.Code
}

// DisplayName returns the display label, falling back to the column stem
func (a Attribute) DisplayName() string {
	if a.Display != "" {
		return a.Display
	}
	return strings.TrimRight(strings.ReplaceAll(a.Name, "_", " "), " ")
}

// LevelCodes returns the level codes in table order
func (a Attribute) LevelCodes() []string {
	codes := make([]string, len(a.Levels))
	for i, l := range a.Levels {
		codes[i] = l.Code
	}
	return codes
}

// IndexOf returns the position of a level code within the attribute
func (a Attribute) IndexOf(code string) int {
	for i, l := range a.Levels {
		if l.Code == code {
			return i
		}
	}
	return -1
}

// MatchLevel resolves a survey cell to a level. Exact label or code wins; otherwise the
// longest match key contained in the cell decides. Ties between levels are ambiguous.
func (a Attribute) MatchLevel(cell string) (Level, bool) {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return Level{}, false
	}
	for _, l := range a.Levels {
		if cell == l.Label || cell == l.Code {
			return l, true
		}
	}

	best, bestLen, tied := -1, 0, false
	for i, l := range a.Levels {
		for _, key := range l.Match {
			if key == "" || !strings.Contains(cell, key) {
				continue
			}
			switch {
			case len(key) > bestLen:
				best, bestLen, tied = i, len(key), false
			case len(key) == bestLen && best != i:
				tied = true
			}
		}
	}
	if best < 0 || tied {
		return Level{}, false
	}
	return a.Levels[best], true
}

// Validate checks the structural invariants of the study table
func (s *Study) Validate() error {
	if len(s.Attributes) == 0 {
		return core.NewStudyError("no attributes")
	}
	attrs := make(map[string]bool, len(s.Attributes))
	codes := make(map[string]string)
	for _, a := range s.Attributes {
		if strings.TrimSpace(a.Name) == "" {
			return core.NewStudyError("attribute with empty name")
		}
		if attrs[a.Name] {
			return core.NewStudyError(fmt.Sprintf("duplicate attribute %q", a.Name))
		}
		attrs[a.Name] = true
		if len(a.Levels) < 2 {
			return core.NewStudyError(fmt.Sprintf("attribute %q needs at least 2 levels, has %d", a.Name, len(a.Levels)))
		}
		for _, l := range a.Levels {
			if strings.TrimSpace(l.Code) == "" {
				return core.NewStudyError(fmt.Sprintf("attribute %q has a level with empty code", a.Name))
			}
			if owner, dup := codes[l.Code]; dup {
				return core.NewStudyError(fmt.Sprintf("level code %q used by %q and %q", l.Code, owner, a.Name))
			}
			codes[l.Code] = a.Name
		}
	}
	return nil
}

// Attribute looks up an attribute by column stem
func (s *Study) Attribute(name string) (Attribute, bool) {
	for _, a := range s.Attributes {
		if a.Name == name {
			return a, true
		}
	}
	return Attribute{}, false
}

// AttributeNames returns the column stems in table order
func (s *Study) AttributeNames() []string {
	names := make([]string, len(s.Attributes))
	for i, a := range s.Attributes {
		names[i] = a.Name
	}
	return names
}

// LevelByCode finds a level anywhere in the study
func (s *Study) LevelByCode(code string) (LevelRef, bool) {
	for ai, a := range s.Attributes {
		for li, l := range a.Levels {
			if l.Code == code {
				return LevelRef{Attribute: a.Name, Level: l, AttrIndex: ai, LevelIndex: li}, true
			}
		}
	}
	return LevelRef{}, false
}

// Levels returns every level of the study in attribute, then level order
func (s *Study) Levels() []LevelRef {
	var refs []LevelRef
	for ai, a := range s.Attributes {
		for li, l := range a.Levels {
			refs = append(refs, LevelRef{Attribute: a.Name, Level: l, AttrIndex: ai, LevelIndex: li})
		}
	}
	return refs
}

// Subset keeps only the named attributes, preserving study order.
// An empty list returns the study unchanged.
func (s *Study) Subset(names []string) (*Study, error) {
	if len(names) == 0 {
		return s, nil
	}
	want := make(map[string]bool, len(names))
	for _, n := range names {
		if _, ok := s.Attribute(n); !ok {
			known := s.AttributeNames()
			sort.Strings(known)
			return nil, core.NewStudyError(fmt.Sprintf("unknown attribute %q (known: %s)", n, strings.Join(known, ", ")))
		}
		want[n] = true
	}
	out := &Study{Name: s.Name}
	for _, a := range s.Attributes {
		if want[a.Name] {
			out.Attributes = append(out.Attributes, a)
		}
	}
	return out, nil
}
