package run

import (
	"time"

	"sherockets/domain/core"
	"sherockets/domain/effects"
)

// Run is a persisted estimation: its manifest, model fit and per-level estimates
type Run struct {
	ID         core.RunID                 `json:"id"`
	CreatedAt  time.Time                  `json:"created_at"`
	Manifest   Manifest                   `json:"manifest"`
	ChoiceSets int                        `json:"choice_sets"`
	Fit        effects.FitSummary         `json:"fit"`
	Resampling *effects.ResamplingSummary `json:"resampling,omitempty"`
	Estimates  []effects.EffectEstimate   `json:"estimates"`
	Warnings   []string                   `json:"warnings,omitempty"`
}

// Summary is the list view of a stored run
type Summary struct {
	ID          core.RunID       `json:"id"`
	CreatedAt   time.Time        `json:"created_at"`
	Study       string           `json:"study"`
	Dataset     core.DatasetHash `json:"dataset_hash"`
	Scheme      string           `json:"coding_scheme"`
	Method      string           `json:"significance_method"`
	ChoiceSets  int              `json:"choice_sets"`
	PseudoR2    float64          `json:"pseudo_r2"`
	Fingerprint core.Hash        `json:"fingerprint"`
}

// Summary returns the list view of r
func (r *Run) Summary() Summary {
	return Summary{
		ID:          r.ID,
		CreatedAt:   r.CreatedAt,
		Study:       r.Manifest.Study,
		Dataset:     r.Manifest.Dataset,
		Scheme:      r.Manifest.Scheme,
		Method:      r.Manifest.Method,
		ChoiceSets:  r.ChoiceSets,
		PseudoR2:    r.Fit.PseudoR2,
		Fingerprint: r.Manifest.Fingerprint,
	}
}

// Filters narrows a run listing
type Filters struct {
	Study  string
	Limit  int
	Offset int
}
