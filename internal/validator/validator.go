package validator

import (
	"strings"

	"github.com/contentmirror/contentmirror/internal/cryptoutil"
	"github.com/contentmirror/contentmirror/internal/identity"
)

// Validator is a single entity-tag token parsed from a conditional
// request header: the bare identity string plus whether it carried the
// weak-validator prefix.
type Validator struct {
	Value string
	Weak  bool
}

// Wildcard reports whether this token is the "*" wildcard.
func (v Validator) Wildcard() bool { return v.Value == "*" }

// Set is the ordered list of validators parsed from one header value.
type Set []Validator

// Parse splits a conditional header value into its validator tokens.
// Tokens are comma-separated; each is trimmed, stripped of a leading
// weak prefix (`W/` before a quote), and stripped of surrounding
// quotes. An empty header parses to an empty set.
func Parse(headerValue string) Set {
	var set Set
	for _, tok := range strings.Split(headerValue, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		v := Validator{}
		if strings.HasPrefix(tok, "W/") && strings.HasPrefix(tok[2:], `"`) {
			v.Weak = true
			tok = tok[2:]
		}
		if len(tok) >= 2 && strings.HasPrefix(tok, `"`) && strings.HasSuffix(tok, `"`) {
			tok = tok[1 : len(tok)-1]
		}
		v.Value = tok
		set = append(set, v)
	}
	return set
}

// MatchesAny evaluates an If-None-Match style header against the
// expected identity: true if any token equals it, or if the wildcard
// is present and an identity exists. Weak validators compare the same
// as strong ones once the prefix is stripped. Comparison is constant
// time because identities can gate write access.
func MatchesAny(headerValue string, expected identity.CID) bool {
	if expected == "" {
		return false
	}
	for _, v := range Parse(headerValue) {
		if v.Wildcard() {
			return true
		}
		if cryptoutil.HashEqual(v.Value, string(expected)) {
			return true
		}
	}
	return false
}

// Reason explains why a precondition check did not pass.
type Reason string

const (
	// ReasonNone means the precondition passed.
	ReasonNone Reason = ""
	// ReasonMissingHeader means the required header was absent (428).
	ReasonMissingHeader Reason = "missing_header"
	// ReasonMismatch means no supplied validator matched (412).
	ReasonMismatch Reason = "mismatch"
)

// PreconditionResult is the outcome of an If-Match evaluation. On
// failure CurrentCID carries the live identity so the client can
// refresh and retry.
type PreconditionResult struct {
	OK         bool
	Reason     Reason
	CurrentCID identity.CID
}

// CheckPrecondition evaluates an If-Match style header for the safe
// write protocol. An empty header value is treated as absent: writes
// without a precondition are refused, not allowed through.
func CheckPrecondition(headerValue string, expected identity.CID) PreconditionResult {
	if strings.TrimSpace(headerValue) == "" {
		return PreconditionResult{Reason: ReasonMissingHeader, CurrentCID: expected}
	}
	if MatchesAny(headerValue, expected) {
		return PreconditionResult{OK: true, CurrentCID: expected}
	}
	return PreconditionResult{Reason: ReasonMismatch, CurrentCID: expected}
}
