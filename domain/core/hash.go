package core

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// Hash represents a cryptographic hash
type Hash string

// NewHash creates a new hash from data
func NewHash(data []byte) Hash {
	sum := sha256.Sum256(data)
	return Hash(hex.EncodeToString(sum[:]))
}

// String returns the string representation
func (h Hash) String() string {
	return string(h)
}

// IsEmpty checks if the hash is empty
func (h Hash) IsEmpty() bool {
	return h == ""
}

// Short returns the first 12 hex characters, enough to tell datasets apart in logs.
func (h Hash) Short() string {
	if len(h) <= 12 {
		return string(h)
	}
	return string(h[:12])
}

// DatasetHash fingerprints a survey table independent of column order.
type DatasetHash Hash

func (h DatasetHash) String() string { return Hash(h).String() }

// ComputeDatasetHash hashes headers (sorted) and every row's cells in header order.
func ComputeDatasetHash(headers []string, rows []map[string]string) DatasetHash {
	sorted := append([]string(nil), headers...)
	sort.Strings(sorted)

	var data strings.Builder
	data.WriteString(strings.Join(sorted, "\x1f"))
	data.WriteByte('\n')
	for _, row := range rows {
		for _, h := range sorted {
			data.WriteString(row[h])
			data.WriteByte('\x1f')
		}
		data.WriteByte('\n')
	}
	return DatasetHash(NewHash([]byte(data.String())))
}

// ComputeConfigHash hashes a flat key/value view of run settings.
func ComputeConfigHash(settings map[string]interface{}) Hash {
	keys := make([]string, 0, len(settings))
	for k := range settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var data strings.Builder
	for _, key := range keys {
		data.WriteString(key)
		data.WriteString(fmt.Sprintf("=%v;", settings[key]))
	}
	return NewHash([]byte(data.String()))
}
