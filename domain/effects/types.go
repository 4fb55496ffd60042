package effects

import (
	"math"
)

// Method identifies how p-values were obtained. One method per run.
type Method string

const (
	MethodWald        Method = "wald"
	MethodBootstrap   Method = "bootstrap"
	MethodPermutation Method = "permutation"
)

// Valid reports whether m is a known method
func (m Method) Valid() bool {
	switch m {
	case MethodWald, MethodBootstrap, MethodPermutation:
		return true
	}
	return false
}

// Tier is the conventional significance marker
type Tier string

const (
	TierP001     Tier = "***"
	TierP01      Tier = "**"
	TierP05      Tier = "*"
	TierMarginal Tier = "(marginal)"
	TierNS       Tier = "n.s."
	TierExcluded Tier = "excluded"
)

// TierFor maps a p-value onto the significance ladder
func TierFor(p float64) Tier {
	switch {
	case math.IsNaN(p):
		return TierExcluded
	case p < 0.001:
		return TierP001
	case p < 0.01:
		return TierP01
	case p < 0.05:
		return TierP05
	case p < 0.1:
		return TierMarginal
	default:
		return TierNS
	}
}

// Status records whether a level was estimated
type Status string

const (
	StatusIncluded  Status = "included"
	StatusReference Status = "reference"
	StatusExcluded  Status = "excluded"
)

// ExclusionReason explains why a level has no estimate
type ExclusionReason string

const (
	ReasonNone       ExclusionReason = ""
	ReasonReference  ExclusionReason = "reference"
	ReasonUnobserved ExclusionReason = "unobserved"
	ReasonConstant   ExclusionReason = "constant"
	ReasonBalanced   ExclusionReason = "balanced"
	ReasonCollinear  ExclusionReason = "collinear"
)

// Interval is a two-sided confidence interval
type Interval struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// EffectEstimate is the per-level result consumed by reporting and plotting layers
type EffectEstimate struct {
	Attribute   string          `json:"attribute"`
	Level       string          `json:"level"`
	LevelLabel  string          `json:"level_label"`
	Coefficient float64         `json:"coefficient"`
	StdError    float64         `json:"std_error"`
	CI          Interval        `json:"ci"`
	PValue      float64         `json:"p_value"`
	AME         float64         `json:"ame_pp"` // average marginal effect, percentage points
	Tier        Tier            `json:"tier"`
	Status      Status          `json:"status"`
	Reason      ExclusionReason `json:"reason,omitempty"`
	Method      Method          `json:"method"`
	Count       int             `json:"count"` // appearances across all alternatives
	Warnings    []string        `json:"warnings,omitempty"`
}

// Placeholder builds the record for a level that was not estimated
func Placeholder(attribute, level, label string, status Status, reason ExclusionReason, method Method, count int) EffectEstimate {
	return EffectEstimate{
		Attribute:  attribute,
		Level:      level,
		LevelLabel: label,
		PValue:     1,
		Tier:       TierExcluded,
		Status:     status,
		Reason:     reason,
		Method:     method,
		Count:      count,
	}
}

// Estimated reports whether the record carries a fitted coefficient
func (e EffectEstimate) Estimated() bool {
	return e.Status == StatusIncluded
}

// FitSummary describes the fitted model as a whole
type FitSummary struct {
	Observations   int     `json:"observations"`
	Parameters     int     `json:"parameters"`
	Iterations     int     `json:"iterations"`
	LogLikelihood  float64 `json:"log_likelihood"`
	NullLogLik     float64 `json:"null_log_likelihood"`
	PseudoR2       float64 `json:"pseudo_r2"`
	GradientNorm   float64 `json:"gradient_norm"`
	QuasiSeparated bool    `json:"quasi_separated"`
}

// ResamplingSummary reports replicate bookkeeping for bootstrap/permutation runs
type ResamplingSummary struct {
	Method    Method `json:"method"`
	Requested int    `json:"requested"`
	Succeeded int    `json:"succeeded"`
	Failed    int    `json:"failed"`
	Seed      int64  `json:"seed"`
}
