// Package baseline persists the metric values of a run so later runs can diff
// against them.
package baseline

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// FileName is the name of the persisted snapshot, inside and outside the artifact.
const FileName = "perf-metrics.json"

// ArtifactName is the name of the workflow artifact the snapshot is uploaded as.
const ArtifactName = "perf-metrics"

const snapshotSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "additionalProperties": {"type": "number"}
}`

var schema = jsonschema.MustCompileString("perf-metrics.schema.json", snapshotSchema)

// Snapshot maps metric keys to their last observed value.
type Snapshot map[string]float64

// Value returns the recorded value for key, or 0 when absent.
func (s Snapshot) Value(key string) float64 {
	return s[key]
}

// Lookup returns the recorded value for key and whether it exists.
func (s Snapshot) Lookup(key string) (float64, bool) {
	v, ok := s[key]

	return v, ok
}

// Merge copies every finite entry of other into s, overwriting existing keys.
// NaN and infinite values cannot be persisted and are skipped.
func (s Snapshot) Merge(other map[string]float64) {
	for k, v := range other {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}

		s[k] = v
	}
}

// Decode parses and validates a persisted snapshot.
func Decode(data []byte) (Snapshot, error) {
	var raw interface{}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("parsing snapshot: %w", err)
	}

	if raw == nil {
		return Snapshot{}, nil
	}

	if err := schema.Validate(raw); err != nil {
		return nil, fmt.Errorf("validating snapshot: %w", err)
	}

	snapshot := Snapshot{}
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("decoding snapshot: %w", err)
	}

	return snapshot, nil
}

// Encode serialises a snapshot as a flat JSON object.
func Encode(s Snapshot) ([]byte, error) {
	if s == nil {
		s = Snapshot{}
	}

	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encoding snapshot: %w", err)
	}

	return data, nil
}
