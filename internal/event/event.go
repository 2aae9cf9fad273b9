// Package event defines the observer hook surface of the engine. The
// core announces intermediate values (computed identities, catalog
// writes) and lets observers adjust a small set of values (exclude-key
// lists, catalog entries) without depending on any host notification
// mechanism. The default sink does nothing.
package event

// Names of the events and filters the engine dispatches.
const (
	IdentityComputed = "identity.computed"
	CatalogUpserted  = "catalog.upserted"
	CatalogRemoved   = "catalog.removed"
	CatalogPurged    = "catalog.purged"

	FilterExcludeKeys  = "filter.exclude_keys"
	FilterCatalogEntry = "filter.catalog_entry"
)

// Sink receives engine events. Notify is fire-and-forget; Filter gives
// observers a chance to return an adjusted value (or the input
// unchanged). Implementations must be safe for concurrent use and must
// not block: the engine calls both from request paths.
type Sink interface {
	Notify(name string, args ...any)
	Filter(name string, value any, args ...any) any
}

// Nop is the default sink. It drops notifications and passes filter
// values through unchanged.
type Nop struct{}

func (Nop) Notify(string, ...any) {}

func (Nop) Filter(_ string, value any, _ ...any) any { return value }

// Multi fans out to several sinks. Notifications go to each in order;
// filter values chain through each sink's return value.
type Multi []Sink

func (m Multi) Notify(name string, args ...any) {
	for _, s := range m {
		if s != nil {
			s.Notify(name, args...)
		}
	}
}

func (m Multi) Filter(name string, value any, args ...any) any {
	for _, s := range m {
		if s != nil {
			value = s.Filter(name, value, args...)
		}
	}
	return value
}
