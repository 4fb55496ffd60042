package run

import (
	"fmt"

	"sherockets/domain/core"
)

// Manifest pins every input that determines a run's numbers, so a stored run can be
// replayed against the same export and compared field by field.
type Manifest struct {
	Study           string            `json:"study"`
	Dataset         core.DatasetHash  `json:"dataset_hash"`
	TaskCount       int               `json:"task_count"`
	Scheme          string            `json:"coding_scheme"`
	Method          string            `json:"significance_method"`
	Policy          string            `json:"reference_policy"`
	References      map[string]string `json:"reference_levels"`
	Iterations      int               `json:"iterations"`
	Seed            int64             `json:"seed"`
	MaxIterations   int               `json:"max_iterations"`
	Tolerance       float64           `json:"tolerance"`
	MinObservations int               `json:"min_observations_per_level"`
	ExcludeBalanced bool              `json:"exclude_balanced"`
	Fingerprint     core.Hash         `json:"fingerprint"` // hash of all above
}

// Seal computes the fingerprint from the other fields
func (m *Manifest) Seal() {
	m.Fingerprint = m.computeFingerprint()
}

func (m *Manifest) computeFingerprint() core.Hash {
	settings := map[string]interface{}{
		"study":            m.Study,
		"dataset":          m.Dataset,
		"task_count":       m.TaskCount,
		"scheme":           m.Scheme,
		"method":           m.Method,
		"policy":           m.Policy,
		"iterations":       m.Iterations,
		"seed":             m.Seed,
		"max_iterations":   m.MaxIterations,
		"tolerance":        m.Tolerance,
		"min_observations": m.MinObservations,
		"exclude_balanced": m.ExcludeBalanced,
	}
	for attr, level := range m.References {
		settings["ref:"+attr] = level
	}
	return core.ComputeConfigHash(settings)
}

// Validate checks that the manifest is complete and its fingerprint current
func (m *Manifest) Validate() error {
	if m.Study == "" {
		return fmt.Errorf("run manifest: study cannot be empty")
	}
	if m.Scheme == "" || m.Method == "" {
		return fmt.Errorf("run manifest: coding scheme and significance method are required")
	}
	if m.Fingerprint == "" {
		return fmt.Errorf("run manifest: fingerprint not computed")
	}
	if m.Fingerprint != m.computeFingerprint() {
		return fmt.Errorf("run manifest: fingerprint %s does not match contents", m.Fingerprint.Short())
	}
	return nil
}
