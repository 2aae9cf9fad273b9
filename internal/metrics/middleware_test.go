package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
)

func TestMiddleware_CountsRequestsByRoute(t *testing.T) {
	m := New()

	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/api/mirror/resources/{rid}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"ok":true}`))
	})

	for _, rid := range []string{"post-1", "post-2", "post-3"} {
		req := httptest.NewRequest(http.MethodGet, "/api/mirror/resources/"+rid, nil)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
	}

	f := gather(t, m, "http_requests_total")
	if f == nil {
		t.Fatal("http_requests_total not registered")
	}
	// one series: route pattern collapses the three rids
	if len(f.GetMetric()) != 1 {
		t.Fatalf("want one series, got %d", len(f.GetMetric()))
	}
	mm := f.GetMetric()[0]
	if mm.GetCounter().GetValue() != 3 {
		t.Errorf("count = %v, want 3", mm.GetCounter().GetValue())
	}
	labels := map[string]string{}
	for _, l := range mm.GetLabel() {
		labels[l.GetName()] = l.GetValue()
	}
	if labels["route"] != "/api/mirror/resources/{rid}" {
		t.Errorf("route label = %q", labels["route"])
	}
	if labels["status"] != "200" {
		t.Errorf("status label = %q", labels["status"])
	}
}

func TestMiddleware_CountsServerErrors(t *testing.T) {
	m := New()

	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/broken", nil))

	if got := counterValue(t, m, "http_errors_total"); got != 1 {
		t.Errorf("http_errors_total = %v, want 1", got)
	}
}

func TestMiddleware_DefaultStatusIs200(t *testing.T) {
	m := New()

	// handler that never writes
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/silent", nil))

	f := gather(t, m, "http_requests_total")
	if f == nil {
		t.Fatal("http_requests_total not registered")
	}
	for _, mm := range f.GetMetric() {
		for _, l := range mm.GetLabel() {
			if l.GetName() == "status" && l.GetValue() != "200" {
				t.Errorf("status label = %q, want 200", l.GetValue())
			}
		}
	}
}
