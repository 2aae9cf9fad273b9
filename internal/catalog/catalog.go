package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/contentmirror/contentmirror/internal/cval"
	"github.com/contentmirror/contentmirror/internal/event"
	"github.com/contentmirror/contentmirror/internal/identity"
	"github.com/contentmirror/contentmirror/internal/log"
	"github.com/contentmirror/contentmirror/internal/storage"
	"github.com/contentmirror/contentmirror/internal/xerrors"
)

// storageKey is the single key the catalog persists under. The whole
// entry list is written as one record so the Storage interface stays a
// plain keyed store.
const storageKey = "catalog"

// ErrStorage marks failures talking to the persistence backend. Callers
// that need to distinguish a storage outage from a bad request check it
// with errors.Is.
var ErrStorage = errors.New("catalog storage failure")

// Entry is one catalog record: a resource's two representation URLs,
// its current content identity, and caller metadata. An entry is
// always written whole; there is no partial update.
type Entry struct {
	RID       string                `json:"rid"`
	HR        string                `json:"hr"`
	MR        string                `json:"mr"`
	ContentID identity.CID          `json:"content_id"`
	UpdatedAt string                `json:"updatedAt"`
	Profile   string                `json:"profile"`
	Metadata  map[string]cval.Value `json:"metadata"`
}

// Pagination describes the window a query returned. Total counts the
// filtered set before the window was applied.
type Pagination struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
	Total  int `json:"total"`
}

// Catalog is the queryable view over the store, computed on read.
// UpdatedAt is the newest entry timestamp of the filtered view before
// pagination, so a page deep in the results still reports when the
// view last changed.
type Catalog struct {
	Version    int        `json:"version"`
	Profile    string     `json:"profile"`
	UpdatedAt  string     `json:"updatedAt"`
	Items      []Entry    `json:"items"`
	Pagination Pagination `json:"pagination"`
}

type Options struct {
	// Profile names the deployment contract reported in catalog views.
	Profile string

	// Version is the catalog schema version, default 1.
	Version int

	// Storage, when set, persists the entry list write-through. The
	// in-memory map stays authoritative for reads.
	Storage storage.Store

	// Events receives upsert/remove notifications and may adjust
	// entries before they are written. Defaults to event.Nop.
	Events event.Sink

	Logger log.Logger

	// Now is the clock, overridable in tests.
	Now func() time.Time
}

// Store is the registry of all known resources and their current
// identities. A single mutex serializes upsert/remove/query against
// the backing map and is never held across storage I/O. Snapshots
// carry a sequence number; a separate persist mutex orders writes to
// storage and drops a snapshot that a newer one has already overtaken.
type Store struct {
	mu      sync.Mutex
	entries map[string]Entry
	order   []string // rids in first-registration order
	seq     uint64   // bumped under mu on every mutation

	persistMu    sync.Mutex
	persistedSeq uint64 // highest sequence written through, guarded by persistMu

	profile string
	version int
	store   storage.Store
	events  event.Sink
	logger  log.Logger
	now     func() time.Time
}

func New(ctx context.Context, opts Options) (*Store, error) {
	if opts.Version == 0 {
		opts.Version = 1
	}
	if opts.Events == nil {
		opts.Events = event.Nop{}
	}
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	s := &Store{
		entries: make(map[string]Entry),
		profile: opts.Profile,
		version: opts.Version,
		store:   opts.Storage,
		events:  opts.Events,
		logger:  opts.Logger,
		now:     opts.Now,
	}
	if s.store != nil {
		if err := s.load(ctx); err != nil {
			return nil, xerrors.Wrap(err, "load persisted catalog")
		}
	}
	return s, nil
}

func (s *Store) load(ctx context.Context) error {
	data, ok, err := s.store.Get(ctx, storageKey)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	var persisted []Entry
	if err := json.Unmarshal(data, &persisted); err != nil {
		return xerrors.Wrap(err, "decode catalog record")
	}
	for _, e := range persisted {
		if _, seen := s.entries[e.RID]; !seen {
			s.order = append(s.order, e.RID)
		}
		s.entries[e.RID] = e
	}
	s.logger.Info(ctx, "loaded persisted catalog", "entries", len(persisted))
	return nil
}

// Timestamp renders t in the catalog's fixed-width ISO-8601 form.
// Second precision keeps the format zero-padded and lexicographically
// ordered, which the since filter relies on.
func Timestamp(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format(time.RFC3339)
}

// Upsert registers or wholesale-replaces the entry for rid. A zero
// updatedAt defaults to the current time. The entry passes through the
// event sink's catalog-entry filter before it is written, then the
// write is announced. A storage failure leaves the in-memory entry in
// place and is returned to the caller, never swallowed.
func (s *Store) Upsert(ctx context.Context, rid, hr, mr string, cid identity.CID, updatedAt time.Time, metadata map[string]cval.Value) error {
	if rid == "" {
		return xerrors.New("rid is required")
	}
	if updatedAt.IsZero() {
		updatedAt = s.now()
	}

	entry := Entry{
		RID:       rid,
		HR:        hr,
		MR:        mr,
		ContentID: cid,
		UpdatedAt: Timestamp(updatedAt),
		Profile:   s.profile,
		Metadata:  metadata,
	}
	if adjusted, ok := s.events.Filter(event.FilterCatalogEntry, entry).(Entry); ok {
		entry = adjusted
	}

	s.mu.Lock()
	if _, seen := s.entries[rid]; !seen {
		s.order = append(s.order, rid)
	}
	s.entries[rid] = entry
	snapshot := s.snapshotLocked()
	s.seq++
	seq := s.seq
	s.mu.Unlock()

	s.events.Notify(event.CatalogUpserted, entry)

	if err := s.persist(ctx, snapshot, seq); err != nil {
		return xerrors.Wrapf(err, "persist catalog after upsert %s", rid)
	}
	return nil
}

// Get returns the entry for rid.
func (s *Store) Get(rid string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[rid]
	return e, ok
}

// Remove deletes the entry for rid, reporting whether it existed.
func (s *Store) Remove(ctx context.Context, rid string) (bool, error) {
	s.mu.Lock()
	_, existed := s.entries[rid]
	if existed {
		delete(s.entries, rid)
		for i, r := range s.order {
			if r == rid {
				s.order = append(s.order[:i], s.order[i+1:]...)
				break
			}
		}
	}
	var snapshot []Entry
	var seq uint64
	if existed {
		snapshot = s.snapshotLocked()
		s.seq++
		seq = s.seq
	}
	s.mu.Unlock()

	if !existed {
		return false, nil
	}
	s.events.Notify(event.CatalogRemoved, rid)

	if err := s.persist(ctx, snapshot, seq); err != nil {
		return true, xerrors.Wrapf(err, "persist catalog after remove %s", rid)
	}
	return true, nil
}

// Purge drops every entry.
func (s *Store) Purge(ctx context.Context) error {
	s.mu.Lock()
	s.entries = make(map[string]Entry)
	s.order = nil
	s.seq++
	seq := s.seq
	s.mu.Unlock()

	s.events.Notify(event.CatalogPurged)

	if s.store == nil {
		return nil
	}
	s.persistMu.Lock()
	defer s.persistMu.Unlock()
	if seq <= s.persistedSeq {
		return nil
	}
	if err := s.store.Delete(ctx, storageKey); err != nil {
		return xerrors.Wrap(err, "persist catalog purge")
	}
	s.persistedSeq = seq
	return nil
}

// Len reports the number of registered entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// snapshotLocked copies the entries in insertion order. Callers hold mu.
func (s *Store) snapshotLocked() []Entry {
	out := make([]Entry, 0, len(s.order))
	for _, rid := range s.order {
		out = append(out, s.entries[rid])
	}
	return out
}

// persist writes the snapshot through to storage. Writes are ordered
// by sequence: a snapshot that a newer one has already overtaken is
// dropped, so a slow writer can never clobber durable state with a
// stale view.
func (s *Store) persist(ctx context.Context, snapshot []Entry, seq uint64) error {
	if s.store == nil {
		return nil
	}
	data, err := json.Marshal(snapshot)
	if err != nil {
		return xerrors.Wrap(err, "encode catalog record")
	}
	s.persistMu.Lock()
	defer s.persistMu.Unlock()
	if seq <= s.persistedSeq {
		return nil
	}
	if err := s.store.Set(ctx, storageKey, data); err != nil {
		return xerrors.WithStack(fmt.Errorf("%w: %v", ErrStorage, err))
	}
	s.persistedSeq = seq
	return nil
}
