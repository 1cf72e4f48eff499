package store

import (
	"encoding/json"
	"fmt"
)

// Namespace is an ordered sequence of string segments acting as a
// hierarchical scope, e.g. {"whatsapp", "user", "alice"}. Namespaces are
// never created or destroyed on their own; they exist as the set of
// distinct prefixes present among stored records.
type Namespace []string

// Validate reports whether the namespace can be stored: at least one
// segment, no empty segments.
func (ns Namespace) Validate() error {
	if len(ns) == 0 {
		return fmt.Errorf("%w: empty", ErrInvalidNamespace)
	}
	for i, seg := range ns {
		if seg == "" {
			return fmt.Errorf("%w: empty segment at %d", ErrInvalidNamespace, i)
		}
	}
	return nil
}

// Equal reports element-wise equality.
func (ns Namespace) Equal(other Namespace) bool {
	if len(ns) != len(other) {
		return false
	}
	for i := range ns {
		if ns[i] != other[i] {
			return false
		}
	}
	return true
}

// String renders the namespace for logs and error messages.
func (ns Namespace) String() string {
	s, _ := ns.encode()
	return s
}

// encode serializes the namespace to its stored form, a compact JSON array.
// JSON escaping makes the encoding unambiguous for any segment content, and
// it round-trips via decodeNamespace.
func (ns Namespace) encode() (string, error) {
	b, err := json.Marshal([]string(ns))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidNamespace, err)
	}
	return string(b), nil
}

func decodeNamespace(s string) (Namespace, error) {
	var segs []string
	if err := json.Unmarshal([]byte(s), &segs); err != nil {
		return nil, fmt.Errorf("%w: stored namespace %q: %v", ErrInvalidNamespace, s, err)
	}
	return Namespace(segs), nil
}
