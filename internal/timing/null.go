package timing

import (
	"encoding/json"
)

// NullFloat64 is a float64 that may be unset, as used for personal bests that
// have not been recorded yet and deltas that have nothing to compare against.
// It marshals to JSON null when unset.
type NullFloat64 struct {
	Float64 float64
	Valid   bool
}

// Float returns a set NullFloat64.
func Float(v float64) NullFloat64 {
	return NullFloat64{Float64: v, Valid: true}
}

// Or returns the value if set, otherwise def.
func (n NullFloat64) Or(def float64) float64 {
	if !n.Valid {
		return def
	}
	return n.Float64
}

// Improves reports whether v should replace n as a personal best.
func (n NullFloat64) Improves(v float64) bool {
	return !n.Valid || v < n.Float64
}

func (n NullFloat64) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(n.Float64)
}

func (n *NullFloat64) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*n = NullFloat64{}
		return nil
	}
	if err := json.Unmarshal(data, &n.Float64); err != nil {
		return err
	}
	n.Valid = true
	return nil
}
