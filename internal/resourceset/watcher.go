package resourceset

import (
	"context"
	"math"
	"time"

	"github.com/contentmirror/contentmirror/internal/cryptoutil"
	"github.com/contentmirror/contentmirror/internal/log"
	"github.com/contentmirror/contentmirror/internal/xerrors"
)

const (
	// DefaultPollInterval is how often the watcher re-fetches the source.
	DefaultPollInterval = 30 * time.Second

	// maxBackoff caps exponential backoff on consecutive fetch errors.
	maxBackoff = 5 * time.Minute
)

// pollResult describes what happened during a single poll cycle.
type pollResult int

const (
	pollNoChange    pollResult = iota // source hash matches current
	pollSwapped                       // new document fetched and applied
	pollFetchError                    // source fetch failed, back off
	pollRejected                      // document fetched but failed validation or apply
)

// WatcherOptions configures the resource-set watcher.
type WatcherOptions struct {
	Logger       log.Logger
	Source       Source
	Set          *Set
	PollInterval time.Duration

	// InitialHash seeds change detection so the first poll does not
	// re-apply a document already loaded at startup.
	InitialHash string

	// OnSwap is called after a successful apply, synchronously on the
	// poll goroutine.
	OnSwap func(hash string, applied, removed int)
}

// Watcher polls a Source and applies new resource-set documents as
// they appear. A document that fails validation is dropped and the
// current set stays live.
type Watcher struct {
	logger   log.Logger
	source   Source
	set      *Set
	interval time.Duration
	onSwap   func(hash string, applied, removed int)

	currentHash     string
	consecutiveErrs int

	pollCount int64
	swapCount int64
}

func NewWatcher(opts WatcherOptions) *Watcher {
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	interval := opts.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Watcher{
		logger:      opts.Logger,
		source:      opts.Source,
		set:         opts.Set,
		interval:    interval,
		onSwap:      opts.OnSwap,
		currentHash: opts.InitialHash,
	}
}

// Run starts the poll loop and blocks until ctx is cancelled.
// Intended to be launched as: go watcher.Run(ctx)
func (w *Watcher) Run(ctx context.Context) error {
	w.logger.Info(ctx, "resource watcher starting",
		"poll_interval", w.interval.String(),
		"current_hash", truncHash(w.currentHash),
	)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info(ctx, "resource watcher stopping",
				"reason", ctx.Err(),
				"polls", w.pollCount,
				"swaps", w.swapCount,
			)
			return ctx.Err()
		case <-ticker.C:
			result := w.checkOnce(ctx)

			if result == pollFetchError {
				w.consecutiveErrs++
				backoff := w.backoffDuration()
				w.logger.Warn(ctx, "resource watcher: backing off",
					"consecutive_errors", w.consecutiveErrs,
					"next_poll_in", backoff.String(),
				)
				ticker.Reset(backoff)
			} else if w.consecutiveErrs > 0 {
				w.logger.Info(ctx, "resource watcher: recovered, resuming normal interval",
					"had_consecutive_errors", w.consecutiveErrs,
				)
				w.consecutiveErrs = 0
				ticker.Reset(w.interval)
			}
		}
	}
}

// checkOnce performs a single fetch-compare-apply cycle.
func (w *Watcher) checkOnce(ctx context.Context) pollResult {
	w.pollCount++

	doc, hash, err := w.source.Fetch(ctx)
	if err != nil {
		w.logger.Error(ctx, err, "resource watcher: fetch failed")
		return pollFetchError
	}

	if cryptoutil.HashEqual(hash, w.currentHash) {
		return pollNoChange
	}

	w.logger.Info(ctx, "resource watcher: new document detected",
		"old_hash", truncHash(w.currentHash),
		"new_hash", truncHash(hash),
	)

	applied, removed, err := w.set.Apply(ctx, doc)
	if err != nil {
		w.logger.Error(ctx, err, "resource watcher: rejected new document, keeping current set",
			"rejected_hash", truncHash(hash),
			"current_hash", truncHash(w.currentHash),
		)
		return pollRejected
	}

	oldHash := w.currentHash
	w.currentHash = hash
	w.swapCount++

	w.logger.Info(ctx, "resource watcher: document applied",
		"old_hash", truncHash(oldHash),
		"new_hash", truncHash(hash),
		"applied", applied,
		"removed", removed,
		"total_swaps", w.swapCount,
	)

	if w.onSwap != nil {
		func() {
			defer func() {
				if r := recover(); r != nil {
					w.logger.Error(ctx, xerrors.Newf("OnSwap panic: %v", r),
						"resource watcher: OnSwap callback panicked, continuing",
						"hash", truncHash(hash),
					)
				}
			}()
			w.onSwap(hash, applied, removed)
		}()
	}

	return pollSwapped
}

// backoffDuration computes exponential backoff capped at maxBackoff.
// consecutiveErrs=1 doubles the interval, =2 quadruples, and so on.
func (w *Watcher) backoffDuration() time.Duration {
	mult := math.Pow(2, float64(w.consecutiveErrs))
	d := time.Duration(float64(w.interval) * mult)
	if d > maxBackoff {
		d = maxBackoff
	}
	return d
}

func truncHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
