package catalog

import (
	"github.com/contentmirror/contentmirror/internal/cval"
)

// Query selects and pages catalog entries. Filters are equality
// matches; a filter with several accepted values matches any of them.
type Query struct {
	// Since keeps only entries updated strictly after this timestamp.
	// Comparison is plain string ordering, valid because the catalog's
	// timestamp format is fixed-width and zero-padded.
	Since string

	// Filters maps a field or metadata key to accepted values.
	Filters map[string][]string

	// Limit caps the page size; zero or negative means no cap.
	Limit int

	// Offset skips that many filtered entries.
	Offset int
}

// Query builds the catalog view: since filter, equality filters,
// re-index, paginate — in that order. The view's UpdatedAt is the
// newest timestamp of the filtered set before pagination, falling back
// to the current time when nothing matched.
func (s *Store) Query(q Query) Catalog {
	s.mu.Lock()
	all := s.snapshotLocked()
	s.mu.Unlock()

	filtered := make([]Entry, 0, len(all))
	for _, e := range all {
		if q.Since != "" && e.UpdatedAt <= q.Since {
			continue
		}
		if !matchesFilters(e, q.Filters) {
			continue
		}
		filtered = append(filtered, e)
	}

	updatedAt := ""
	for _, e := range filtered {
		if e.UpdatedAt > updatedAt {
			updatedAt = e.UpdatedAt
		}
	}
	if updatedAt == "" {
		updatedAt = Timestamp(s.now())
	}

	total := len(filtered)
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}
	if offset > total {
		offset = total
	}
	page := filtered[offset:]
	if q.Limit > 0 && len(page) > q.Limit {
		page = page[:q.Limit]
	}

	return Catalog{
		Version:   s.version,
		Profile:   s.profile,
		UpdatedAt: updatedAt,
		Items:     page,
		Pagination: Pagination{
			Limit:  q.Limit,
			Offset: offset,
			Total:  total,
		},
	}
}

func matchesFilters(e Entry, filters map[string][]string) bool {
	for key, accepted := range filters {
		if len(accepted) == 0 {
			continue
		}
		v, ok := filterValue(e, key)
		if !ok {
			return false
		}
		if !valueMatchesAny(v, accepted) {
			return false
		}
	}
	return true
}

// filterValue resolves a filter key against the entry's own fields
// first, then its metadata.
func filterValue(e Entry, key string) (cval.Value, bool) {
	switch key {
	case "rid":
		return cval.String(e.RID), true
	case "hr":
		return cval.String(e.HR), true
	case "mr":
		return cval.String(e.MR), true
	case "content_id":
		return cval.String(string(e.ContentID)), true
	case "updatedAt":
		return cval.String(e.UpdatedAt), true
	case "profile":
		return cval.String(e.Profile), true
	}
	v, ok := e.Metadata[key]
	return v, ok
}

// valueMatchesAny compares a value against accepted strings. Scalars
// compare by their string form; a sequence matches if any element
// does, so list-valued metadata (tags, categories) filters naturally.
func valueMatchesAny(v cval.Value, accepted []string) bool {
	if v.Kind() == cval.KindSequence {
		for _, e := range v.Sequence() {
			if scalarMatchesAny(e, accepted) {
				return true
			}
		}
		return false
	}
	return scalarMatchesAny(v, accepted)
}

func scalarMatchesAny(v cval.Value, accepted []string) bool {
	var s string
	switch v.Kind() {
	case cval.KindString:
		s = v.Str()
	case cval.KindNumber:
		s = v.NumberLiteral()
	case cval.KindBool:
		if v.Bool() {
			s = "true"
		} else {
			s = "false"
		}
	case cval.KindNull:
		s = "null"
	default:
		return false
	}
	for _, want := range accepted {
		if s == want {
			return true
		}
	}
	return false
}
