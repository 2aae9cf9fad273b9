package catalog

import (
	"context"
	"fmt"
	"testing"

	"github.com/contentmirror/contentmirror/internal/cval"
	"github.com/contentmirror/contentmirror/internal/identity"
	"github.com/contentmirror/contentmirror/internal/provider"
)

func TestValidate_CleanCatalog(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, Options{})
	prov := provider.NewStatic()

	content, _ := cval.FromJSON([]byte(`{"title":"post","id":7}`))
	exclude := []string{"id"}
	prov.Put("r1", content)
	cid := identity.Compute(content, exclude)
	if err := s.Upsert(ctx, "r1", "h", "m", cid, fixedNow, nil); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	if findings := s.Validate(ctx, prov, exclude); len(findings) != 0 {
		t.Fatalf("expected clean catalog, got %+v", findings)
	}
}

func TestValidate_Mismatch(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, Options{})
	prov := provider.NewStatic()

	content, _ := cval.FromJSON([]byte(`{"title":"original"}`))
	prov.Put("r1", content)
	cid := identity.Compute(content, nil)
	if err := s.Upsert(ctx, "r1", "h", "m", cid, fixedNow, nil); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	// the live resource drifts without a catalog write
	drifted, _ := cval.FromJSON([]byte(`{"title":"edited"}`))
	prov.Put("r1", drifted)

	findings := s.Validate(ctx, prov, nil)
	if len(findings) != 1 {
		t.Fatalf("findings = %+v", findings)
	}
	f := findings[0]
	if f.Kind != KindMismatch || f.RID != "r1" {
		t.Fatalf("finding = %+v", f)
	}
	if f.Stored != cid {
		t.Fatalf("stored = %q, want %q", f.Stored, cid)
	}
	if f.Live != identity.Compute(drifted, nil) {
		t.Fatalf("live = %q", f.Live)
	}
}

func TestValidate_UnreachableResource(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, Options{})
	mustUpsert(t, s, "gone", fixedNow, nil)

	prov := provider.NewStatic() // knows nothing
	findings := s.Validate(ctx, prov, nil)
	if len(findings) != 1 || findings[0].Kind != KindUnreachable {
		t.Fatalf("findings = %+v", findings)
	}
}

func TestValidate_FetchErrorDoesNotAbortBatch(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, Options{})
	mustUpsert(t, s, "a", fixedNow, nil)
	mustUpsert(t, s, "b", fixedNow, nil)

	prov := provider.Func(func(_ context.Context, rid string) (cval.Value, bool, error) {
		if rid == "a" {
			return cval.Value{}, false, fmt.Errorf("backend timeout")
		}
		return cval.Value{}, false, nil
	})

	findings := s.Validate(ctx, prov, nil)
	if len(findings) != 2 {
		t.Fatalf("one failing entry aborted the batch: %+v", findings)
	}
	for _, f := range findings {
		if f.Kind != KindUnreachable {
			t.Fatalf("finding = %+v", f)
		}
	}
}

func TestValidate_MalformedStoredIdentity(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, Options{})
	if err := s.Upsert(ctx, "r1", "h", "m", identity.CID("not-a-cid"), fixedNow, nil); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	prov := provider.NewStatic()
	findings := s.Validate(ctx, prov, nil)
	if len(findings) != 1 || findings[0].Kind != KindMalformed {
		t.Fatalf("findings = %+v", findings)
	}
}

func TestValidate_TargetedRIDs(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, Options{})
	mustUpsert(t, s, "a", fixedNow, nil)
	mustUpsert(t, s, "b", fixedNow, nil)

	prov := provider.NewStatic()
	findings := s.Validate(ctx, prov, nil, "a")
	if len(findings) != 1 || findings[0].RID != "a" {
		t.Fatalf("targeted validate touched more than requested: %+v", findings)
	}
}
