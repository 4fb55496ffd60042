package effects

import (
	"encoding/json"
	"math"
)

// finite returns nil for NaN and ±Inf so they encode as JSON null
func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// MarshalJSON writes non-finite bounds as null
func (i Interval) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Lower *float64 `json:"lower"`
		Upper *float64 `json:"upper"`
	}{finite(i.Lower), finite(i.Upper)})
}

// MarshalJSON writes non-finite statistics as null; encoding/json rejects NaN
func (e EffectEstimate) MarshalJSON() ([]byte, error) {
	type plain EffectEstimate
	return json.Marshal(struct {
		plain
		Coefficient *float64 `json:"coefficient"`
		StdError    *float64 `json:"std_error"`
		PValue      *float64 `json:"p_value"`
		AME         *float64 `json:"ame_pp"`
	}{
		plain:       plain(e),
		Coefficient: finite(e.Coefficient),
		StdError:    finite(e.StdError),
		PValue:      finite(e.PValue),
		AME:         finite(e.AME),
	})
}
