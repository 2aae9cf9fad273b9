package identity

import (
	"errors"
	"fmt"

	"github.com/contentmirror/contentmirror/internal/cryptoutil"
	"github.com/contentmirror/contentmirror/internal/cval"
)

// Prefix names the digest algorithm every content identity carries.
const Prefix = "sha256-"

// ErrMalformedIdentity reports a string that does not have the
// sha256-<64 lowercase hex> shape.
var ErrMalformedIdentity = errors.New("malformed content identity")

// hexLen is the length of a lowercase-hex SHA-256 digest.
const hexLen = 64

// CID is a content identity: "sha256-" followed by 64 lowercase hex
// characters. It is derived from canonicalized content and never
// mutated; content changes mean a freshly computed CID.
type CID string

func (c CID) String() string { return string(c) }

// Hex returns the bare hex digest without the algorithm prefix, or ""
// if the CID is malformed.
func (c CID) Hex() string {
	if !c.Valid() {
		return ""
	}
	return string(c[len(Prefix):])
}

// Valid reports whether the CID has the sha256-<64 lowercase hex> shape.
// Malformed identities are never matched against, only reported.
func (c CID) Valid() bool {
	if len(c) != len(Prefix)+hexLen {
		return false
	}
	if string(c[:len(Prefix)]) != Prefix {
		return false
	}
	for _, r := range c[len(Prefix):] {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return false
		}
	}
	return true
}

// Parse checks that s is a well-formed content identity and returns it
// as a CID, or ErrMalformedIdentity annotated with the offending value.
func Parse(s string) (CID, error) {
	c := CID(s)
	if !c.Valid() {
		return "", fmt.Errorf("%w: %q", ErrMalformedIdentity, s)
	}
	return c, nil
}

// Equal compares two identities in constant time. Identities gate
// write access, so comparison must not leak timing.
func (c CID) Equal(other CID) bool {
	return cryptoutil.HashEqual(string(c), string(other))
}

// Compute derives the content identity of a value: deep-exclude the
// given keys, canonicalize (sorted mapping keys, sequence order kept),
// serialize deterministically, and hash.
//
// Two values that are deep-equal modulo mapping key order and excluded
// fields always produce the same CID.
func Compute(content cval.Value, excludeKeys []string) CID {
	pruned := Exclude(content, excludeKeys)
	return fromBytes(CanonicalBytes(pruned))
}

// ComputeAny is Compute over loosely-typed content (decoded JSON
// shapes). It never fails: content that cannot be modeled as a value
// tree degrades to hashing the string coercion of the whole input,
// trading exclusion support for total availability.
func ComputeAny(content any, excludeKeys []string) CID {
	v, err := cval.FromAny(content)
	if err != nil {
		return fromBytes([]byte(fmt.Sprint(content)))
	}
	return Compute(v, excludeKeys)
}

func fromBytes(canonical []byte) CID {
	return CID(Prefix + cryptoutil.SHA256Hex(canonical))
}

// Exclude returns a copy of v with every mapping entry whose key is in
// excludeKeys removed, at every nesting level. Sequences are never
// dropped wholesale; exclusion applies inside their elements.
func Exclude(v cval.Value, excludeKeys []string) cval.Value {
	if len(excludeKeys) == 0 {
		return v
	}
	drop := make(map[string]bool, len(excludeKeys))
	for _, k := range excludeKeys {
		drop[k] = true
	}
	return exclude(v, drop)
}

func exclude(v cval.Value, drop map[string]bool) cval.Value {
	switch v.Kind() {
	case cval.KindSequence:
		elems := v.Sequence()
		out := make([]cval.Value, len(elems))
		for i, e := range elems {
			out[i] = exclude(e, drop)
		}
		return cval.Seq(out...)
	case cval.KindMapping:
		out := make(map[string]cval.Value, v.Len())
		for _, k := range v.Keys() {
			if drop[k] {
				continue
			}
			e, _ := v.Get(k)
			out[k] = exclude(e, drop)
		}
		return cval.Map(out)
	default:
		return v
	}
}
