package ingest

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"outage-agent/internal/alerting"
	"outage-agent/internal/liveness"
	"outage-agent/internal/observability/metrics"
)

// Router classifies inbound events and drives the liveness store and the
// alert tracker. Malformed events are logged and dropped; nothing here ever
// stops ingestion.
type Router struct {
	store  *liveness.Store
	alerts *alerting.Tracker
	log    *zap.Logger
	now    func() time.Time
}

// RouterOption customizes the router.
type RouterOption func(*Router)

// WithNow overrides the clock, for tests.
func WithNow(now func() time.Time) RouterOption {
	return func(r *Router) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRouter constructs a router over the given store and tracker.
func NewRouter(store *liveness.Store, alerts *alerting.Tracker, logger *zap.Logger, opts ...RouterOption) (*Router, error) {
	if store == nil {
		return nil, errors.New("ingest: nil store")
	}
	if alerts == nil {
		return nil, errors.New("ingest: nil tracker")
	}
	r := &Router{store: store, alerts: alerts, log: logger, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Handle routes one event to its handling path.
func (r *Router) Handle(ctx context.Context, event Event) {
	switch ev := event.(type) {
	case Metric:
		metrics.EventIngested("metric")
		r.handleMetric(ctx, ev)
	case AssetEvent:
		metrics.EventIngested("asset")
		r.handleAsset(ctx, ev)
	case MetricUnavailable:
		metrics.EventIngested("unavailable")
		r.handleUnavailable(ctx, ev)
	default:
		metrics.EventDropped("unrecognized")
	}
}

func (r *Router) handleMetric(ctx context.Context, ev Metric) {
	if ev.Aggregated {
		// an aggregator's own cadence must never mask a device outage
		metrics.EventDropped("aggregated")
		return
	}

	source := ev.Asset
	if ev.SensorPort != "" {
		if ev.SensorName == "" {
			r.log.Error("sensor metric malformed: port present but sensor name missing",
				zap.String("asset", ev.Asset),
				zap.String("port", ev.SensorPort))
			metrics.EventDropped("malformed_sensor")
			return
		}
		source = ev.SensorName
		r.log.Debug("sensor is still alive",
			zap.String("sensor", source),
			zap.String("device", ev.Asset),
			zap.String("port", ev.SensorPort))
	}

	// resolve first: a reporting asset is alive even when its timestamp
	// is rejected below
	r.alerts.Resolve(ctx, source)
	nowSec := uint64(r.now().Unix())
	if err := r.store.Touch(source, ev.TimestampSec, ev.TTLSec, nowSec); err != nil {
		r.log.Error("metric is from the future, last-seen not updated",
			zap.String("asset", source),
			zap.Uint64("timestamp", ev.TimestampSec),
			zap.Uint64("now", nowSec))
	}
}

func (r *Router) handleAsset(ctx context.Context, ev AssetEvent) {
	r.log.Debug("inventory event",
		zap.String("asset", ev.Asset),
		zap.String("operation", ev.Operation),
		zap.String("status", ev.Status))

	if ev.Operation == OpDelete || (ev.Status != "" && ev.Status != StatusActive) {
		r.alerts.Resolve(ctx, ev.Asset)
	}

	if ev.Operation == OpDelete || ev.Status == StatusRetired || ev.Status == StatusNonActive {
		r.store.Remove(ev.Asset)
		r.log.Debug("asset deleted", zap.String("asset", ev.Asset))
		return
	}
	if liveness.TrackedDevice(ev.Type, ev.Subtype) {
		r.store.Register(ev.Asset, ev.DisplayName, uint64(r.now().Unix()))
	}
}

func (r *Router) handleUnavailable(ctx context.Context, ev MetricUnavailable) {
	// topic has the form "<prefix>@<assetId>"
	at := strings.Index(ev.Topic, "@")
	if at < 0 || at == len(ev.Topic)-1 {
		r.log.Warn("metric-unavailable topic malformed", zap.String("topic", ev.Topic))
		metrics.EventDropped("malformed_unavailable")
		return
	}
	asset := ev.Topic[at+1:]
	r.alerts.Resolve(ctx, asset)
	r.store.Remove(asset)
}
