package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/contentmirror/contentmirror/internal/health"
	"github.com/contentmirror/contentmirror/internal/httpmw"
	"github.com/contentmirror/contentmirror/internal/log"
)

type Options struct {
	Logger       log.Logger
	Port         int
	UseRecoverMW bool
	OnPanic      func()
	MetricsMW    func(http.Handler) http.Handler
	RateLimitMW  func(http.Handler) http.Handler
	Health       health.Probe
	Readiness    health.Probe
	MirrorInfo   httpmw.MirrorInfo // For X-Mirror-Profile and X-Catalog-Version headers
	ClientIPOpts httpmw.ClientIPOptions
	MaxBodyBytes int64

	// APIRoutes registers the application's routes on the router.
	APIRoutes func(chi.Router)
}
