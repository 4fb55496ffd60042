package analysis

import (
	"fmt"
	"math"
	"strings"

	"sherockets/domain/study"
)

// Profile is a named product configuration with one level code per attribute
type Profile struct {
	Name   string            `json:"name"`
	Levels map[string]string `json:"levels"`
}

// ParseProfile reads "name=code,code,..." and assigns each code to its attribute
func ParseProfile(s *study.Study, spec string) (Profile, error) {
	name, list, ok := strings.Cut(spec, "=")
	if !ok || strings.TrimSpace(name) == "" {
		return Profile{}, fmt.Errorf("profile %q: want name=code,code,...", spec)
	}
	p := Profile{Name: strings.TrimSpace(name), Levels: make(map[string]string)}
	for _, code := range strings.Split(list, ",") {
		code = strings.TrimSpace(code)
		if code == "" {
			continue
		}
		ref, ok := s.LevelByCode(code)
		if !ok {
			return Profile{}, fmt.Errorf("profile %q: unknown level %q", p.Name, code)
		}
		if prev, dup := p.Levels[ref.Attribute]; dup {
			return Profile{}, fmt.Errorf("profile %q: %s set twice (%s, %s)", p.Name, ref.Attribute, prev, code)
		}
		p.Levels[ref.Attribute] = code
	}
	return p, nil
}

// MarketShare is a profile's simulated share of choices
type MarketShare struct {
	Profile string  `json:"profile"`
	Utility float64 `json:"utility"`
	Share   float64 `json:"share"`
}

// Simulate computes total utilities from part-worths and multinomial-logit shares.
// Attributes a profile leaves unset take their reference level's part-worth. For two
// profiles the share of the first equals the model's P(choose A).
func Simulate(s *study.Study, report *Report, profiles []Profile) ([]MarketShare, error) {
	if len(profiles) == 0 {
		return nil, fmt.Errorf("no profiles to simulate")
	}
	worths := PartWorths(s, report)
	utility := make(map[string]float64)
	for _, rows := range worths {
		for _, pw := range rows {
			utility[pw.Level] = pw.Utility
		}
	}

	out := make([]MarketShare, len(profiles))
	peak := math.Inf(-1)
	for i, p := range profiles {
		for attr := range p.Levels {
			if _, ok := s.Attribute(attr); !ok {
				return nil, fmt.Errorf("profile %q: unknown attribute %q", p.Name, attr)
			}
		}
		var u float64
		for _, attr := range s.Attributes {
			code, ok := p.Levels[attr.Name]
			if !ok {
				code = report.References[attr.Name]
			}
			u += utility[code]
		}
		out[i] = MarketShare{Profile: p.Name, Utility: u}
		peak = math.Max(peak, u)
	}
	var total float64
	for i := range out {
		out[i].Share = math.Exp(out[i].Utility - peak)
		total += out[i].Share
	}
	for i := range out {
		out[i].Share /= total
	}
	return out, nil
}
