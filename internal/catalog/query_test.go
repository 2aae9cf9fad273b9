package catalog

import (
	"fmt"
	"testing"
	"time"

	"github.com/contentmirror/contentmirror/internal/cval"
)

// seedStore registers n entries r0..r(n-1), one minute apart starting
// at fixedNow.
func seedStore(t *testing.T, n int) *Store {
	t.Helper()
	s := newTestStore(t, Options{})
	for i := 0; i < n; i++ {
		mustUpsert(t, s, fmt.Sprintf("r%d", i), fixedNow.Add(time.Duration(i)*time.Minute), map[string]cval.Value{
			"index": cval.Int(int64(i)),
			"kind":  cval.String(map[bool]string{true: "even", false: "odd"}[i%2 == 0]),
			"tags":  cval.Seq(cval.String("all"), cval.String(fmt.Sprintf("t%d", i))),
		})
	}
	return s
}

func rids(items []Entry) []string {
	out := make([]string, len(items))
	for i, e := range items {
		out[i] = e.RID
	}
	return out
}

func TestQuery_All(t *testing.T) {
	s := seedStore(t, 4)
	cat := s.Query(Query{})
	if len(cat.Items) != 4 {
		t.Fatalf("items = %d", len(cat.Items))
	}
	if cat.Pagination.Total != 4 || cat.Pagination.Offset != 0 || cat.Pagination.Limit != 0 {
		t.Fatalf("pagination = %+v", cat.Pagination)
	}
	if cat.Version != 1 || cat.Profile != "mirror-core/v1" {
		t.Fatalf("catalog header = %+v", cat)
	}
}

func TestQuery_InsertionOrderStable(t *testing.T) {
	s := seedStore(t, 5)
	// re-upserting an existing rid must not move it
	mustUpsert(t, s, "r1", fixedNow.Add(2*time.Hour), nil)
	got := rids(s.Query(Query{}).Items)
	want := []string{"r0", "r1", "r2", "r3", "r4"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}

func TestQuery_Pagination(t *testing.T) {
	s := seedStore(t, 10)
	cat := s.Query(Query{Limit: 3, Offset: 3})
	got := rids(cat.Items)
	want := []string{"r3", "r4", "r5"}
	if len(got) != 3 || got[0] != want[0] || got[1] != want[1] || got[2] != want[2] {
		t.Fatalf("page = %v, want %v", got, want)
	}
	if cat.Pagination.Total != 10 {
		t.Fatalf("total = %d, want 10 (post-filter, pre-pagination)", cat.Pagination.Total)
	}
	if cat.Pagination.Limit != 3 || cat.Pagination.Offset != 3 {
		t.Fatalf("pagination = %+v", cat.Pagination)
	}
}

func TestQuery_OffsetPastEnd(t *testing.T) {
	s := seedStore(t, 3)
	cat := s.Query(Query{Limit: 5, Offset: 10})
	if len(cat.Items) != 0 {
		t.Fatalf("items = %v", rids(cat.Items))
	}
	if cat.Pagination.Total != 3 {
		t.Fatalf("total = %d", cat.Pagination.Total)
	}
}

func TestQuery_ZeroLimitReturnsAllFromOffset(t *testing.T) {
	s := seedStore(t, 5)
	cat := s.Query(Query{Offset: 2})
	got := rids(cat.Items)
	if len(got) != 3 || got[0] != "r2" {
		t.Fatalf("items = %v", got)
	}
}

func TestQuery_SinceStrictlyGreater(t *testing.T) {
	s := seedStore(t, 3) // r0 at 12:00, r1 at 12:01, r2 at 12:02
	cat := s.Query(Query{Since: "2026-08-30T12:01:00Z"})
	got := rids(cat.Items)
	if len(got) != 1 || got[0] != "r2" {
		t.Fatalf("since filter returned %v, want [r2]", got)
	}
}

func TestQuery_MetadataFilter(t *testing.T) {
	s := seedStore(t, 6)
	cat := s.Query(Query{Filters: map[string][]string{"kind": {"even"}}})
	got := rids(cat.Items)
	want := []string{"r0", "r2", "r4"}
	if len(got) != 3 || got[0] != want[0] || got[1] != want[1] || got[2] != want[2] {
		t.Fatalf("filtered = %v, want %v", got, want)
	}
	if cat.Pagination.Total != 3 {
		t.Fatalf("total = %d", cat.Pagination.Total)
	}
}

func TestQuery_FilterAnyOfValues(t *testing.T) {
	s := seedStore(t, 6)
	cat := s.Query(Query{Filters: map[string][]string{"index": {"1", "4"}}})
	got := rids(cat.Items)
	if len(got) != 2 || got[0] != "r1" || got[1] != "r4" {
		t.Fatalf("filtered = %v", got)
	}
}

func TestQuery_FilterSequenceMetadataMatchesAnyElement(t *testing.T) {
	s := seedStore(t, 4)
	cat := s.Query(Query{Filters: map[string][]string{"tags": {"t2"}}})
	if got := rids(cat.Items); len(got) != 1 || got[0] != "r2" {
		t.Fatalf("filtered = %v", got)
	}
	// every entry carries the "all" tag
	if got := s.Query(Query{Filters: map[string][]string{"tags": {"all"}}}); len(got.Items) != 4 {
		t.Fatalf("shared tag matched %d entries", len(got.Items))
	}
}

func TestQuery_FilterMissingKeyDropsEntry(t *testing.T) {
	s := seedStore(t, 2)
	mustUpsert(t, s, "bare", fixedNow, nil) // no metadata at all
	cat := s.Query(Query{Filters: map[string][]string{"kind": {"even", "odd"}}})
	for _, rid := range rids(cat.Items) {
		if rid == "bare" {
			t.Fatal("entry without the filter key must be dropped")
		}
	}
	if len(cat.Items) != 2 {
		t.Fatalf("filtered = %v", rids(cat.Items))
	}
}

func TestQuery_FilterOnEntryField(t *testing.T) {
	s := seedStore(t, 3)
	cat := s.Query(Query{Filters: map[string][]string{"rid": {"r1"}}})
	if got := rids(cat.Items); len(got) != 1 || got[0] != "r1" {
		t.Fatalf("filtered = %v", got)
	}
}

func TestQuery_UpdatedAtIsFilteredViewMax(t *testing.T) {
	s := seedStore(t, 10) // newest is r9 at 12:09
	cat := s.Query(Query{Filters: map[string][]string{"kind": {"even"}}, Limit: 2})
	// newest even entry is r8 at 12:08, even though r9 is newer globally
	// and the page only shows r0, r2
	if cat.UpdatedAt != "2026-08-30T12:08:00Z" {
		t.Fatalf("updatedAt = %q, want filtered-view max 2026-08-30T12:08:00Z", cat.UpdatedAt)
	}
}

func TestQuery_EmptyFilteredViewFallsBackToNow(t *testing.T) {
	s := seedStore(t, 3)
	cat := s.Query(Query{Filters: map[string][]string{"kind": {"nonexistent"}}})
	if len(cat.Items) != 0 || cat.Pagination.Total != 0 {
		t.Fatalf("expected empty view: %+v", cat.Pagination)
	}
	if cat.UpdatedAt != Timestamp(fixedNow) {
		t.Fatalf("updatedAt = %q, want current time %q", cat.UpdatedAt, Timestamp(fixedNow))
	}
}
