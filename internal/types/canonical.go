package types

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// CanonicalJSON returns the canonical serialization of a payload. Go's JSON
// encoder emits map keys in sorted order at every nesting level, which is the
// canonical form the content address is defined over.
func CanonicalJSON(p Payload) ([]byte, error) {
	if p == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(p)
}

// HashPayload computes the content address of a payload: the hex sha256 digest
// of its canonical serialization. An unserializable payload yields an error;
// callers on the read path treat that as a zero-drift degenerate case.
func HashPayload(p Payload) (string, error) {
	data, err := CanonicalJSON(p)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// ClonePayload returns a deep copy of a payload so no caller holds a reference
// into a vault-owned shard's interior.
func ClonePayload(p Payload) Payload {
	if p == nil {
		return nil
	}
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, e := range t {
			m[k] = cloneValue(e)
		}
		return m
	case Payload:
		return map[string]any(ClonePayload(t))
	case []any:
		s := make([]any, len(t))
		for i, e := range t {
			s[i] = cloneValue(e)
		}
		return s
	default:
		return v
	}
}

// MoralOf extracts the optional "moral" key from a payload. Only numeric
// encodings are recognized; anything else reports absence.
func MoralOf(p Payload) (float64, bool) {
	if p == nil {
		return 0, false
	}
	switch v := p["moral"].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
