// Package mirrorhttp serves the mirror protocol over HTTP: machine
// representations with content identities, conditional reads and
// precondition-gated writes, the catalog, and the conformance report.
package mirrorhttp

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/contentmirror/contentmirror/internal/catalog"
	"github.com/contentmirror/contentmirror/internal/conformance"
	"github.com/contentmirror/contentmirror/internal/cryptoutil"
	"github.com/contentmirror/contentmirror/internal/cval"
	"github.com/contentmirror/contentmirror/internal/event"
	"github.com/contentmirror/contentmirror/internal/httpmw"
	"github.com/contentmirror/contentmirror/internal/identity"
	"github.com/contentmirror/contentmirror/internal/log"
	"github.com/contentmirror/contentmirror/internal/metrics"
	"github.com/contentmirror/contentmirror/internal/profiles"
	"github.com/contentmirror/contentmirror/internal/provider"
	"github.com/contentmirror/contentmirror/internal/ridutil"
	"github.com/contentmirror/contentmirror/internal/validator"
)

type Options struct {
	Logger  log.Logger
	Metrics *metrics.ServerMetrics
	Events  event.Sink

	Profile profiles.Profile
	Catalog *catalog.Store

	// Resources backs both reads and writes of machine representations.
	Resources *provider.Static

	// ExternalBase is the absolute URL prefix used when writing hr/mr
	// links into catalog entries, e.g. "https://mirror.example.com".
	ExternalBase string

	// Flags overrides the capability record reported by the
	// conformance endpoint. Nil means the full protocol (the reference
	// adapter implements everything).
	Flags *conformance.Flags
}

type Handler struct {
	logger    log.Logger
	metrics   *metrics.ServerMetrics
	events    event.Sink
	profile   profiles.Profile
	catalog   *catalog.Store
	resources *provider.Static
	base      string
	flags     conformance.Flags
}

func New(opts Options) *Handler {
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	if opts.Events == nil {
		opts.Events = event.Nop{}
	}
	flags := conformance.Flags{
		HasHR:                    true,
		HasMR:                    true,
		HRLinksToMR:              true,
		MRLinksToHR:              true,
		HasContentIdentity:       true,
		SupportsConditionalReads: true,
		HasCatalog:               true,
		SupportsSafeWrites:       true,
	}
	if opts.Flags != nil {
		flags = *opts.Flags
	}
	return &Handler{
		logger:    opts.Logger,
		metrics:   opts.Metrics,
		events:    opts.Events,
		profile:   opts.Profile,
		catalog:   opts.Catalog,
		resources: opts.Resources,
		base:      strings.TrimRight(opts.ExternalBase, "/"),
		flags:     flags,
	}
}

// Routes registers the mirror API. Method/path mismatches inside the
// subtree get JSON errors; chi fills the Allow header on 405s.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/api/mirror", func(r chi.Router) {
		r.Use(httpmw.Scope("mirror"))
		r.NotFound(h.notFound)

		// Resource identifiers may contain slashes ("posts/41"), so the
		// tail of the path is the rid.
		r.Get("/resources/*", h.getResource)
		r.Put("/resources/*", h.putResource)
		r.Delete("/resources/*", h.deleteResource)
		r.Get("/catalog", h.getCatalog)
		r.Get("/conformance", h.getConformance)
	})
}

// excludeKeys runs the profile's exclude list through the event sink
// so integrations can adjust it per resource.
func (h *Handler) excludeKeys(rid string) []string {
	keys := h.profile.ExcludeKeys
	adjusted := h.events.Filter(event.FilterExcludeKeys, keys, rid)
	if ks, ok := adjusted.([]string); ok {
		return ks
	}
	return keys
}

func (h *Handler) computeCID(rid string, content cval.Value) identity.CID {
	cid := identity.Compute(content, h.excludeKeys(rid))
	h.events.Notify(event.IdentityComputed, rid, cid)
	if h.metrics != nil {
		h.metrics.IncIdentityComputed()
	}
	return cid
}

func (h *Handler) hrLink(rid string) string { return h.base + "/resources/" + rid }
func (h *Handler) mrLink(rid string) string { return h.base + "/api/mirror/resources/" + rid }

func ridFromRequest(r *http.Request) string {
	return strings.Trim(chi.URLParam(r, "*"), "/")
}

// GET /api/mirror/resources/{rid}
func (h *Handler) getResource(w http.ResponseWriter, r *http.Request) {
	rid := ridFromRequest(r)
	if !ridutil.Valid(rid) {
		writeError(w, http.StatusNotFound, "unknown resource")
		return
	}

	content, ok, err := h.resources.Fetch(r.Context(), rid)
	if err != nil {
		h.logger.Error(r.Context(), err, "resource fetch failed", "rid", rid)
		writeError(w, http.StatusInternalServerError, "resource fetch failed")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "unknown resource")
		return
	}

	cid := h.computeCID(rid, content)

	if validator.MatchesAny(r.Header.Get("If-None-Match"), cid) {
		h.conditionalOutcome(http.StatusNotModified)
		h.identityHeaders(w, cid)
		w.WriteHeader(http.StatusNotModified)
		return
	}

	body := identity.CanonicalBytes(content)
	h.identityHeaders(w, cid)
	w.Header().Set(h.digestHeader(), contentDigest(body))
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// PUT /api/mirror/resources/{rid}
func (h *Handler) putResource(w http.ResponseWriter, r *http.Request) {
	rid := ridFromRequest(r)
	if !ridutil.Valid(rid) {
		writeError(w, http.StatusNotFound, "unknown resource")
		return
	}

	current, ok, err := h.resources.Fetch(r.Context(), rid)
	if err != nil {
		h.logger.Error(r.Context(), err, "resource fetch failed", "rid", rid)
		writeError(w, http.StatusInternalServerError, "resource fetch failed")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "unknown resource")
		return
	}

	currentCID := h.computeCID(rid, current)
	if !h.requirePrecondition(w, r, currentCID) {
		return
	}

	raw, err := readBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable request body")
		return
	}
	next, err := cval.FromJSON(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "request body is not valid JSON")
		return
	}

	h.resources.Put(rid, next)
	newCID := h.computeCID(rid, next)

	if err := h.catalog.Upsert(r.Context(), rid, h.hrLink(rid), h.mrLink(rid), newCID, time.Time{}, nil); err != nil {
		h.logger.Error(r.Context(), err, "catalog upsert failed", "rid", rid)
		if h.metrics != nil {
			h.metrics.IncStorageError()
		}
		writeError(w, http.StatusInternalServerError, "catalog persistence failed")
		return
	}
	h.catalogGauge()

	h.identityHeaders(w, newCID)
	writeJSON(w, http.StatusOK, map[string]any{
		"rid":        rid,
		"content_id": newCID,
	})
}

// DELETE /api/mirror/resources/{rid}
func (h *Handler) deleteResource(w http.ResponseWriter, r *http.Request) {
	rid := ridFromRequest(r)
	if !ridutil.Valid(rid) {
		writeError(w, http.StatusNotFound, "unknown resource")
		return
	}

	current, ok, err := h.resources.Fetch(r.Context(), rid)
	if err != nil {
		h.logger.Error(r.Context(), err, "resource fetch failed", "rid", rid)
		writeError(w, http.StatusInternalServerError, "resource fetch failed")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "unknown resource")
		return
	}

	currentCID := h.computeCID(rid, current)
	if !h.requirePrecondition(w, r, currentCID) {
		return
	}

	h.resources.Remove(rid)
	if _, err := h.catalog.Remove(r.Context(), rid); err != nil {
		h.logger.Error(r.Context(), err, "catalog remove failed", "rid", rid)
		if h.metrics != nil {
			h.metrics.IncStorageError()
		}
		writeError(w, http.StatusInternalServerError, "catalog persistence failed")
		return
	}
	h.catalogGauge()

	w.WriteHeader(http.StatusNoContent)
}

// requirePrecondition enforces the If-Match protocol for unsafe
// methods: absent header is 428, stale validator is 412 with the
// current identity in the body.
func (h *Handler) requirePrecondition(w http.ResponseWriter, r *http.Request, current identity.CID) bool {
	res := validator.CheckPrecondition(r.Header.Get("If-Match"), current)
	if res.OK {
		return true
	}
	switch res.Reason {
	case validator.ReasonMissingHeader:
		h.conditionalOutcome(http.StatusPreconditionRequired)
		writeJSON(w, http.StatusPreconditionRequired, map[string]any{
			"error": "precondition required: supply If-Match",
		})
	default:
		h.conditionalOutcome(http.StatusPreconditionFailed)
		writeJSON(w, http.StatusPreconditionFailed, map[string]any{
			"error":       "precondition failed",
			"current_cid": res.CurrentCID,
		})
	}
	return false
}

// GET /api/mirror/catalog
func (h *Handler) getCatalog(w http.ResponseWriter, r *http.Request) {
	q, err := parseCatalogQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	view := h.catalog.Query(q)
	body, err := json.Marshal(view)
	if err != nil {
		h.logger.Error(r.Context(), err, "catalog encode failed")
		writeError(w, http.StatusInternalServerError, "catalog encode failed")
		return
	}

	// The catalog's own validator ignores the top-level updatedAt so an
	// empty-result timestamp refresh does not churn caches.
	cid := h.catalogCID(body)

	if validator.MatchesAny(r.Header.Get("If-None-Match"), cid) {
		h.conditionalOutcome(http.StatusNotModified)
		h.identityHeaders(w, cid)
		w.WriteHeader(http.StatusNotModified)
		return
	}

	h.identityHeaders(w, cid)
	w.Header().Set(h.digestHeader(), contentDigest(body))
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// GET /api/mirror/conformance
func (h *Handler) getConformance(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, conformance.Check(h.flags))
}

func (h *Handler) notFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, "unknown mirror endpoint")
}

// helpers

func (h *Handler) identityHeader() string {
	if h.profile.Headers.Identity != "" {
		return h.profile.Headers.Identity
	}
	return "ETag"
}

func (h *Handler) digestHeader() string {
	if h.profile.Headers.Digest != "" {
		return h.profile.Headers.Digest
	}
	return "Content-Digest"
}

func (h *Handler) identityHeaders(w http.ResponseWriter, cid identity.CID) {
	w.Header().Set(h.identityHeader(), `"`+cid.String()+`"`)
	w.Header().Set("Cache-Control", "no-cache")
}

func (h *Handler) conditionalOutcome(status int) {
	if h.metrics != nil {
		h.metrics.IncConditionalOutcome(status)
	}
}

func (h *Handler) catalogGauge() {
	if h.metrics != nil && h.catalog != nil {
		h.metrics.SetCatalogEntries(h.catalog.Len())
	}
}

// catalogCID computes the catalog document's identity over its
// canonicalized body with the top-level updatedAt removed.
func (h *Handler) catalogCID(body []byte) identity.CID {
	v, err := cval.FromJSON(body)
	if err != nil {
		if h.metrics != nil {
			h.metrics.IncIdentityFallback()
		}
		return identity.ComputeAny(string(body), nil)
	}
	return identity.Compute(v.Without("updatedAt"), nil)
}

// contentDigest renders an RFC 9530 Content-Digest value over the
// exact response bytes.
func contentDigest(body []byte) string {
	return "sha-256=:" + cryptoutil.SHA256Base64(body) + ":"
}

var entryFilterFields = map[string]bool{
	"rid":        true,
	"hr":         true,
	"mr":         true,
	"content_id": true,
	"updatedAt":  true,
	"profile":    true,
}

func parseCatalogQuery(r *http.Request) (catalog.Query, error) {
	q := catalog.Query{}
	for key, vals := range r.URL.Query() {
		switch key {
		case "since":
			q.Since = vals[0]
		case "limit":
			n, err := strconv.Atoi(vals[0])
			if err != nil || n < 0 {
				return q, errBadParam("limit", vals[0])
			}
			q.Limit = n
		case "offset":
			n, err := strconv.Atoi(vals[0])
			if err != nil || n < 0 {
				return q, errBadParam("offset", vals[0])
			}
			q.Offset = n
		default:
			filterKey := key
			if strings.HasPrefix(key, "meta.") {
				filterKey = strings.TrimPrefix(key, "meta.")
			} else if !entryFilterFields[key] {
				return q, errBadParam(key, strings.Join(vals, ","))
			}
			if q.Filters == nil {
				q.Filters = make(map[string][]string)
			}
			q.Filters[filterKey] = append(q.Filters[filterKey], vals...)
		}
	}
	return q, nil
}

type badParamError struct{ key, val string }

func (e badParamError) Error() string {
	return "invalid query parameter " + e.key + "=" + e.val
}

func errBadParam(key, val string) error { return badParamError{key: key, val: val} }

func readBody(r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	return io.ReadAll(r.Body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
