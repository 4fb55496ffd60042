package coding

import (
	"fmt"
	"sort"

	"sherockets/domain/choice"
	"sherockets/domain/core"
	"sherockets/domain/study"
)

// PolicyKind names how reference levels are chosen
type PolicyKind string

const (
	PolicyLowestShare PolicyKind = "lowest-share"
	PolicyExplicit    PolicyKind = "explicit"
)

// ReferencePolicy picks exactly one reference level per attribute, returned as attribute -> level code
type ReferencePolicy interface {
	Kind() PolicyKind
	References(s *study.Study, sets []choice.ChoiceSet) (map[string]string, error)
}

// NewPolicy builds a policy from configuration values
func NewPolicy(kind PolicyKind, explicit map[string]string) (ReferencePolicy, error) {
	switch kind {
	case PolicyLowestShare, "":
		return LowestShare{}, nil
	case PolicyExplicit:
		if len(explicit) == 0 {
			return nil, fmt.Errorf("explicit reference policy needs a reference level map")
		}
		return Explicit(explicit), nil
	default:
		return nil, fmt.Errorf("unknown reference policy %q", kind)
	}
}

// LowestShare picks the level with the lowest raw choice share in the data.
// Ties are broken by level code; levels never shown are only picked if nothing else was.
type LowestShare struct{}

// Kind implements ReferencePolicy
func (LowestShare) Kind() PolicyKind { return PolicyLowestShare }

// References implements ReferencePolicy
func (LowestShare) References(s *study.Study, sets []choice.ChoiceSet) (map[string]string, error) {
	tally := Tally(s, sets)
	refs := make(map[string]string, len(s.Attributes))
	for _, attr := range s.Attributes {
		type candidate struct {
			code  string
			share float64
			seen  bool
		}
		cands := make([]candidate, len(attr.Levels))
		for i, l := range attr.Levels {
			share, seen := tally[l.Code].Share()
			cands[i] = candidate{code: l.Code, share: share, seen: seen}
		}
		sort.Slice(cands, func(i, j int) bool {
			a, b := cands[i], cands[j]
			if a.seen != b.seen {
				return a.seen
			}
			if a.share != b.share {
				return a.share < b.share
			}
			return a.code < b.code
		})
		refs[attr.Name] = cands[0].code
	}
	return refs, nil
}

// Explicit is a caller-supplied attribute -> level code map
type Explicit map[string]string

// Kind implements ReferencePolicy
func (Explicit) Kind() PolicyKind { return PolicyExplicit }

// References implements ReferencePolicy. Every attribute must be named with one of its own levels.
func (e Explicit) References(s *study.Study, _ []choice.ChoiceSet) (map[string]string, error) {
	refs := make(map[string]string, len(s.Attributes))
	for _, attr := range s.Attributes {
		code, ok := e[attr.Name]
		if !ok {
			return nil, core.NewStudyError(fmt.Sprintf("no reference level for attribute %q", attr.Name))
		}
		if attr.IndexOf(code) < 0 {
			return nil, core.NewStudyError(fmt.Sprintf("reference %q is not a level of %q (levels: %v)", code, attr.Name, attr.LevelCodes()))
		}
		refs[attr.Name] = code
	}
	return refs, nil
}
