package coding

import (
	"fmt"
	"strings"

	"sherockets/domain/choice"
	"sherockets/domain/study"
)

// Scheme is the per-alternative coding of attribute levels
type Scheme string

const (
	SchemeDummy   Scheme = "dummy"
	SchemeEffects Scheme = "effects"
	// SchemeDifference is dummy coding collapsed to A−B; every scheme is differenced for
	// the binary model, so it is accepted as the name of the default.
	SchemeDifference Scheme = "difference"
)

// ParseScheme accepts dummy, effects or difference in any case
func ParseScheme(s string) (Scheme, error) {
	switch Scheme(strings.ToLower(strings.TrimSpace(s))) {
	case SchemeDummy, "":
		return SchemeDummy, nil
	case SchemeEffects:
		return SchemeEffects, nil
	case SchemeDifference:
		return SchemeDifference, nil
	}
	return "", fmt.Errorf("unknown coding scheme %q (want dummy, effects or difference)", s)
}

// base resolves the alias to the scheme that codes a single alternative
func (s Scheme) base() Scheme {
	if s == SchemeDifference {
		return SchemeDummy
	}
	return s
}

// Codebook is the one-hot index space over every level in the study
type Codebook struct {
	refs  []study.LevelRef
	index map[string]int
}

// NewCodebook indexes levels in attribute order then level order
func NewCodebook(s *study.Study) *Codebook {
	refs := s.Levels()
	index := make(map[string]int, len(refs))
	for i, r := range refs {
		index[codebookKey(r.Attribute, r.Level.Code)] = i
	}
	return &Codebook{refs: refs, index: index}
}

func codebookKey(attribute, level string) string {
	return attribute + "\x00" + level
}

// Len is the number of indexed levels
func (c *Codebook) Len() int {
	return len(c.refs)
}

// Encode maps (attribute, level code) to its column index
func (c *Codebook) Encode(attribute, level string) (int, bool) {
	i, ok := c.index[codebookKey(attribute, level)]
	return i, ok
}

// Decode maps a column index back to its level
func (c *Codebook) Decode(i int) (study.LevelRef, bool) {
	if i < 0 || i >= len(c.refs) {
		return study.LevelRef{}, false
	}
	return c.refs[i], true
}

// Column is one coded, non-reference level
type Column struct {
	Ref       study.LevelRef
	Reference string // reference level code of the same attribute
}

// Name labels the column as attribute/level
func (c Column) Name() string {
	return c.Ref.String()
}

// Coder maps alternatives to coded vectors for one scheme and reference set.
// It produces n−1 columns per n-level attribute.
type Coder struct {
	scheme     Scheme
	references map[string]string
	columns    []Column
	codebook   *Codebook
}

// NewCoder lays out columns in study order, skipping each attribute's reference level
func NewCoder(s *study.Study, scheme Scheme, references map[string]string) (*Coder, error) {
	if _, err := ParseScheme(string(scheme)); err != nil {
		return nil, err
	}
	c := &Coder{scheme: scheme, references: references, codebook: NewCodebook(s)}
	for ai, attr := range s.Attributes {
		ref, ok := references[attr.Name]
		if !ok || attr.IndexOf(ref) < 0 {
			return nil, fmt.Errorf("no valid reference level for attribute %q", attr.Name)
		}
		for li, l := range attr.Levels {
			if l.Code == ref {
				continue
			}
			c.columns = append(c.columns, Column{
				Ref:       study.LevelRef{Attribute: attr.Name, Level: l, AttrIndex: ai, LevelIndex: li},
				Reference: ref,
			})
		}
	}
	return c, nil
}

// Scheme returns the configured scheme
func (c *Coder) Scheme() Scheme {
	return c.scheme
}

// References returns the reference level per attribute
func (c *Coder) References() map[string]string {
	return c.references
}

// Columns returns the coded columns in order
func (c *Coder) Columns() []Column {
	return c.columns
}

// Codebook returns the full one-hot index behind the coder
func (c *Coder) Codebook() *Codebook {
	return c.codebook
}

// Code returns the coded vector of one alternative
func (c *Coder) Code(alt choice.Alternative) []float64 {
	out := make([]float64, len(c.columns))
	for j, col := range c.columns {
		shown := alt.Levels[col.Ref.Attribute]
		switch {
		case shown == col.Ref.Level.Code:
			out[j] = 1
		case shown == col.Reference && c.scheme.base() == SchemeEffects:
			out[j] = -1
		}
	}
	return out
}

// Difference returns coding(A) − coding(B), the single regression row for a choice set
func (c *Coder) Difference(cs choice.ChoiceSet) []float64 {
	a := c.Code(cs.A)
	b := c.Code(cs.B)
	for j := range a {
		a[j] -= b[j]
	}
	return a
}
