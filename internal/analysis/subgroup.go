package analysis

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"sherockets/domain/choice"
	"sherockets/domain/core"
	"sherockets/domain/study"
	"sherockets/internal/coding"
)

// DefaultMinSubgroupSets is the smallest subgroup that is fitted
const DefaultMinSubgroupSets = 40

// SubgroupResult is one segment's fit, or the reason it was skipped
type SubgroupResult struct {
	Group      string  `json:"group"`
	ChoiceSets int     `json:"choice_sets"`
	Report     *Report `json:"report,omitempty"`
	Skipped    string  `json:"skipped,omitempty"`
}

// Subgroups refits the model within each value of ChoiceSet.Group, pinning references to
// the full-sample ones so coefficient signs stay comparable across segments.
// A segment that is too small or cannot be estimated is skipped with a reason; a
// segment failing for any other reason aborts the run.
func (p *Pipeline) Subgroups(ctx context.Context, s *study.Study, sets []choice.ChoiceSet, opts Options, minSets int) ([]SubgroupResult, error) {
	if minSets <= 0 {
		minSets = DefaultMinSubgroupSets
	}
	if opts.Policy == nil {
		opts.Policy = coding.LowestShare{}
	}
	refs, err := opts.Policy.References(s, sets)
	if err != nil {
		return nil, err
	}
	pinned := opts
	pinned.Policy = coding.Explicit(refs)

	groups := make(map[string][]choice.ChoiceSet)
	for _, cs := range sets {
		groups[cs.Group] = append(groups[cs.Group], cs)
	}
	names := make([]string, 0, len(groups))
	for g := range groups {
		names = append(names, g)
	}
	sort.Strings(names)

	var out []SubgroupResult
	for _, g := range names {
		members := groups[g]
		res := SubgroupResult{Group: g, ChoiceSets: len(members)}
		switch {
		case g == "":
			res.Skipped = "no group value"
		case len(members) < minSets:
			res.Skipped = fmt.Sprintf("%d choice sets, minimum %d", len(members), minSets)
		default:
			report, err := p.Estimate(ctx, s, members, pinned)
			switch {
			case err == nil:
				res.Report = report
			case core.IsEstimationError(err):
				res.Skipped = err.Error()
			case errors.Is(err, context.Canceled):
				return nil, err
			default:
				return nil, fmt.Errorf("subgroup %s: %w", g, err)
			}
		}
		if res.Skipped != "" {
			p.logger.Warn("skipping subgroup %q: %s", g, res.Skipped)
		}
		out = append(out, res)
	}
	return out, nil
}
