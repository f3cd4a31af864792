package params

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// HashPrefix marks the hash algorithm so stored hashes stay comparable if it ever changes.
const HashPrefix = "sha256:"

// Canonical returns the canonical JSON encoding of params.
// Object keys are sorted at every depth and array order is preserved, so two
// params values that differ only in key order encode identically.
// A nil map encodes as {}.
func Canonical(p map[string]any) ([]byte, error) {
	if p == nil {
		return []byte("{}"), nil
	}
	v, err := Normalize(p)
	if err != nil {
		return nil, err
	}
	// encoding/json sorts map keys; after Normalize every object is a map.
	return json.Marshal(v)
}

// Normalize converts params into plain JSON values: map[string]any, []any,
// string, bool, nil and json.Number. Go structs, typed slices and ints are
// flattened through an encode/decode round trip.
func Normalize(p map[string]any) (map[string]any, error) {
	if p == nil {
		return map[string]any{}, nil
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("Normalize: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var out map[string]any
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("Normalize: %w", err)
	}
	return out, nil
}

// Hash returns a fixed-width content hash of params over their canonical encoding.
// It defines idempotency-key equality for proposals and is the only form of
// params written to the audit log.
func Hash(p map[string]any) string {
	b, err := Canonical(p)
	if err != nil {
		// Not JSON-encodable (funcs, channels). fmt prints maps in key order.
		b = []byte(fmt.Sprintf("%v", p))
	}
	sum := sha256.Sum256(b)
	return HashPrefix + hex.EncodeToString(sum[:])
}
