// Package resourceset loads whole resource-set documents (a JSON map
// of rid -> content) from a file or S3, validates them against the
// active profile, and applies them to the resource store and catalog.
// The watcher polls a source and hot-swaps the set when it changes.
package resourceset

import (
	"context"
	"time"

	"github.com/contentmirror/contentmirror/internal/catalog"
	"github.com/contentmirror/contentmirror/internal/cval"
	"github.com/contentmirror/contentmirror/internal/identity"
	"github.com/contentmirror/contentmirror/internal/profiles"
	"github.com/contentmirror/contentmirror/internal/provider"
	"github.com/contentmirror/contentmirror/internal/ridutil"
	"github.com/contentmirror/contentmirror/internal/xerrors"
)

// Validate checks a resource-set document against a profile: the
// document must be a JSON object, every rid must be well formed, and
// every entry must be an object carrying the profile's required
// fields. A single bad entry rejects the whole document so a partial
// set is never applied.
func Validate(doc cval.Value, prf profiles.Profile) error {
	if doc.Kind() != cval.KindMapping {
		return xerrors.New("resource set must be a JSON object of rid -> content")
	}
	for _, rid := range doc.Keys() {
		if !ridutil.Valid(rid) {
			return xerrors.Newf("invalid rid %q", rid)
		}
		entry, _ := doc.Get(rid)
		if entry.Kind() != cval.KindMapping {
			return xerrors.Newf("resource %s: content must be a JSON object", rid)
		}
		for _, field := range prf.RequiredFields {
			if _, ok := entry.Get(field); !ok {
				return xerrors.Newf("resource %s: missing required field %q", rid, field)
			}
		}
	}
	return nil
}

// Set applies resource-set documents to the live resource store and
// the catalog, keeping both in step with the most recent document.
type Set struct {
	Profile   profiles.Profile
	Resources *provider.Static
	Catalog   *catalog.Store

	// Base is the absolute URL prefix for hr/mr catalog links.
	Base string
}

// Apply validates doc and swaps it in: every entry is written through
// to the resource store and catalog, and resources absent from doc are
// removed. Returns how many entries were applied and removed.
func (s *Set) Apply(ctx context.Context, doc cval.Value) (applied, removed int, err error) {
	if err := Validate(doc, s.Profile); err != nil {
		return 0, 0, err
	}

	seen := make(map[string]bool, doc.Len())
	for _, rid := range doc.Keys() {
		content, _ := doc.Get(rid)
		s.Resources.Put(rid, content)
		seen[rid] = true

		cid := identity.Compute(content, s.Profile.ExcludeKeys)
		err := s.Catalog.Upsert(ctx, rid,
			s.Base+"/resources/"+rid,
			s.Base+"/api/mirror/resources/"+rid,
			cid, time.Time{}, nil)
		if err != nil {
			return applied, removed, xerrors.Wrapf(err, "apply %s", rid)
		}
		applied++
	}

	for _, rid := range s.Resources.RIDs() {
		if seen[rid] {
			continue
		}
		s.Resources.Remove(rid)
		if _, err := s.Catalog.Remove(ctx, rid); err != nil {
			return applied, removed, xerrors.Wrapf(err, "remove %s", rid)
		}
		removed++
	}
	return applied, removed, nil
}
