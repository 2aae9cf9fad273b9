package httpmw

import (
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// MirrorInfo provides deployment information for response headers
type MirrorInfo interface {
	ProfileName() string
	CatalogVersion() string
}

// MirrorHeaders middleware adds X-Mirror-Profile and X-Catalog-Version
// headers to all responses when deployment information is available
func MirrorHeaders(info MirrorInfo) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if info != nil {
				p := info.ProfileName()
				v := info.CatalogVersion()
				if p != "" {
					w.Header().Set("X-Mirror-Profile", p)
				}
				if v != "" {
					w.Header().Set("X-Catalog-Version", v)
				}
				// Enrich the current trace span with deployment info
				if span := trace.SpanFromContext(r.Context()); span != nil && span.IsRecording() {
					if p != "" {
						span.SetAttributes(attribute.String("mirror.profile", p))
					}
					if v != "" {
						span.SetAttributes(attribute.String("mirror.catalog_version", v))
					}
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
