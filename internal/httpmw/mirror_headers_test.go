package httpmw

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

type fakeMirrorInfo struct {
	profile string
	version string
}

func (f fakeMirrorInfo) ProfileName() string    { return f.profile }
func (f fakeMirrorInfo) CatalogVersion() string { return f.version }

func TestMirrorHeaders_SetsBoth(t *testing.T) {
	h := MirrorHeaders(fakeMirrorInfo{profile: "mirror-core/v1", version: "v1"})(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", http.NoBody))

	if got := rec.Header().Get("X-Mirror-Profile"); got != "mirror-core/v1" {
		t.Errorf("X-Mirror-Profile = %q", got)
	}
	if got := rec.Header().Get("X-Catalog-Version"); got != "v1" {
		t.Errorf("X-Catalog-Version = %q", got)
	}
}

func TestMirrorHeaders_EmptyValuesOmitted(t *testing.T) {
	h := MirrorHeaders(fakeMirrorInfo{})(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", http.NoBody))

	if _, present := rec.Header()["X-Mirror-Profile"]; present {
		t.Error("empty profile should not set a header")
	}
	if _, present := rec.Header()["X-Catalog-Version"]; present {
		t.Error("empty version should not set a header")
	}
}

func TestMirrorHeaders_NilInfo(t *testing.T) {
	h := MirrorHeaders(nil)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", http.NoBody))

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d", rec.Code)
	}
}
