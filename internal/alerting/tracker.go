package alerting

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"outage-agent/internal/observability/metrics"
)

// Publisher delivers alert events to the outside world. A failed publish is
// logged and not retried; the tracker's bookkeeping is committed either way
// and the next natural transition closes the gap.
type Publisher interface {
	PublishAlert(ctx context.Context, alert Alert) error
}

// DisplayNameReader resolves an asset's human-readable name for alert text.
type DisplayNameReader interface {
	DisplayName(asset string) string
}

// Tracker owns the set of assets with an outstanding ACTIVE outage alert.
// Activate and Resolve are idempotent and publish exactly on transitions.
//
// Like the liveness store, the tracker is owned by the agent loop and is not
// safe for concurrent use.
type Tracker struct {
	active    map[string]struct{}
	publisher Publisher
	names     DisplayNameReader
	log       *zap.Logger
	now       func() time.Time
	eventTTL  time.Duration
}

// TrackerOption customizes the tracker.
type TrackerOption func(*Tracker)

// WithNow overrides the clock, for tests.
func WithNow(now func() time.Time) TrackerOption {
	return func(t *Tracker) {
		if now != nil {
			t.now = now
		}
	}
}

// NewTracker constructs an empty tracker.
func NewTracker(publisher Publisher, names DisplayNameReader, logger *zap.Logger, opts ...TrackerOption) *Tracker {
	t := &Tracker{
		active:    make(map[string]struct{}),
		publisher: publisher,
		names:     names,
		log:       logger,
		now:       time.Now,
		eventTTL:  3 * 30 * time.Second,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// SetSweepInterval adjusts the validity of emitted alert events to three
// sweep intervals.
func (t *Tracker) SetSweepInterval(interval time.Duration) {
	if interval > 0 {
		t.eventTTL = 3 * interval
	}
}

// Activate raises the outage alert for an asset. A second activation for the
// same asset is a no-op, so repeated sweeps over a dead asset do not resend.
func (t *Tracker) Activate(ctx context.Context, asset string) {
	if _, ok := t.active[asset]; ok {
		t.log.Debug("alert already active", zap.String("asset", asset))
		return
	}
	t.log.Info("send ACTIVE alert", zap.String("asset", asset))
	t.publish(ctx, asset, StateActive)
	t.active[asset] = struct{}{}
	metrics.SetActiveAlerts(len(t.active))
}

// Resolve clears the outage alert for an asset, if one is tracked.
func (t *Tracker) Resolve(ctx context.Context, asset string) {
	if _, ok := t.active[asset]; !ok {
		return
	}
	t.log.Info("send RESOLVED alert", zap.String("asset", asset))
	t.publish(ctx, asset, StateResolved)
	delete(t.active, asset)
	metrics.SetActiveAlerts(len(t.active))
}

// Contains reports whether an asset has an outstanding ACTIVE alert.
func (t *Tracker) Contains(asset string) bool {
	_, ok := t.active[asset]
	return ok
}

// Size returns the number of outstanding alerts.
func (t *Tracker) Size() int {
	return len(t.active)
}

// Active lists the alerted assets in stable order, for persistence.
func (t *Tracker) Active() []string {
	assets := make([]string, 0, len(t.active))
	for asset := range t.active {
		assets = append(assets, asset)
	}
	sort.Strings(assets)
	return assets
}

// Restore re-adds previously persisted alerts without publishing, so a
// restart does not re-announce alerts that were already ACTIVE.
func (t *Tracker) Restore(assets []string) {
	for _, asset := range assets {
		if asset != "" {
			t.active[asset] = struct{}{}
		}
	}
	metrics.SetActiveAlerts(len(t.active))
}

func (t *Tracker) publish(ctx context.Context, asset, state string) {
	displayName := ""
	if t.names != nil {
		displayName = t.names.DisplayName(asset)
	}
	alert := NewAlert(asset, displayName, state, uint64(t.now().Unix()), uint64(t.eventTTL/time.Second))
	if err := t.publisher.PublishAlert(ctx, alert); err != nil {
		// accepted inconsistency: the set is updated even when the
		// publish fails, see the concurrency notes in DESIGN.md
		t.log.Error("cannot publish alert",
			zap.String("asset", asset),
			zap.String("state", state),
			zap.Error(err))
		return
	}
	metrics.AlertPublished(state)
}
