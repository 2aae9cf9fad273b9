package event

import "testing"

type recordingSink struct {
	notified []string
	adjust   func(any) any
}

func (r *recordingSink) Notify(name string, _ ...any) {
	r.notified = append(r.notified, name)
}

func (r *recordingSink) Filter(_ string, value any, _ ...any) any {
	if r.adjust == nil {
		return value
	}
	return r.adjust(value)
}

func TestNop_FilterPassesThrough(t *testing.T) {
	var s Nop
	s.Notify(CatalogUpserted, "rid")
	if got := s.Filter(FilterExcludeKeys, 42); got != 42 {
		t.Fatalf("Nop.Filter = %v, want 42", got)
	}
}

func TestMulti_NotifiesAll(t *testing.T) {
	a := &recordingSink{}
	b := &recordingSink{}
	m := Multi{a, nil, b}
	m.Notify(CatalogRemoved, "rid")
	if len(a.notified) != 1 || len(b.notified) != 1 {
		t.Fatalf("notify counts = %d, %d", len(a.notified), len(b.notified))
	}
}

func TestMulti_FilterChains(t *testing.T) {
	double := &recordingSink{adjust: func(v any) any { return v.(int) * 2 }}
	addOne := &recordingSink{adjust: func(v any) any { return v.(int) + 1 }}
	m := Multi{double, addOne}
	if got := m.Filter("f", 3); got != 7 {
		t.Fatalf("chained filter = %v, want 7", got)
	}
}
