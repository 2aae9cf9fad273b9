package catalog

import (
	"context"

	"github.com/contentmirror/contentmirror/internal/identity"
	"github.com/contentmirror/contentmirror/internal/provider"
)

// InconsistencyKind classifies a validation finding.
type InconsistencyKind string

const (
	// KindMismatch means the stored identity no longer matches the
	// live content.
	KindMismatch InconsistencyKind = "mismatch"
	// KindUnreachable means the resource could not be fetched for
	// comparison, including resources the provider no longer knows.
	KindUnreachable InconsistencyKind = "unreachable"
	// KindMalformed means the stored identity is not a well-formed CID.
	KindMalformed InconsistencyKind = "malformed_identity"
)

// Inconsistency reports one catalog entry whose stored identity could
// not be confirmed against the live resource.
type Inconsistency struct {
	RID    string            `json:"rid"`
	Kind   InconsistencyKind `json:"kind"`
	Stored identity.CID      `json:"stored_cid,omitempty"`
	Live   identity.CID      `json:"live_cid,omitempty"`
	Detail string            `json:"detail,omitempty"`
}

// Validate re-derives the live identity of each entry through the
// resource provider and reports mismatches. It is advisory: findings
// are returned, nothing is corrected, and a failure on one entry never
// aborts the batch. With no rids given, every entry is checked.
func (s *Store) Validate(ctx context.Context, p provider.Provider, excludeKeys []string, rids ...string) []Inconsistency {
	var targets []Entry
	s.mu.Lock()
	if len(rids) == 0 {
		targets = s.snapshotLocked()
	} else {
		for _, rid := range rids {
			if e, ok := s.entries[rid]; ok {
				targets = append(targets, e)
			}
		}
	}
	s.mu.Unlock()

	var findings []Inconsistency
	for _, e := range targets {
		if _, err := identity.Parse(string(e.ContentID)); err != nil {
			findings = append(findings, Inconsistency{
				RID:    e.RID,
				Kind:   KindMalformed,
				Stored: e.ContentID,
				Detail: err.Error(),
			})
			continue
		}

		content, ok, err := p.Fetch(ctx, e.RID)
		if err != nil {
			findings = append(findings, Inconsistency{
				RID:    e.RID,
				Kind:   KindUnreachable,
				Stored: e.ContentID,
				Detail: err.Error(),
			})
			continue
		}
		if !ok {
			findings = append(findings, Inconsistency{
				RID:    e.RID,
				Kind:   KindUnreachable,
				Stored: e.ContentID,
				Detail: "resource not known to provider",
			})
			continue
		}

		live := identity.Compute(content, excludeKeys)
		if !live.Equal(e.ContentID) {
			findings = append(findings, Inconsistency{
				RID:    e.RID,
				Kind:   KindMismatch,
				Stored: e.ContentID,
				Live:   live,
			})
		}
	}
	return findings
}
