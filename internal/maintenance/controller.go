package maintenance

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"outage-agent/internal/alerting"
	"outage-agent/internal/liveness"
)

// DefaultExpirationSec is the maintenance TTL applied when a request names
// none and no other default was configured.
const DefaultExpirationSec uint64 = 3600

// Controller serves MAINTENANCE_MODE requests: operator-driven temporary TTL
// overrides that suppress or restore outage alerting per asset.
type Controller struct {
	store             *liveness.Store
	alerts            *alerting.Tracker
	defaultExpiration uint64
	log               *zap.Logger
	now               func() time.Time
}

// ControllerOption customizes the controller.
type ControllerOption func(*Controller)

// WithNow overrides the clock, for tests.
func WithNow(now func() time.Time) ControllerOption {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

// NewController constructs a maintenance controller.
func NewController(store *liveness.Store, alerts *alerting.Tracker, logger *zap.Logger, opts ...ControllerOption) (*Controller, error) {
	if store == nil {
		return nil, errors.New("maintenance: nil store")
	}
	if alerts == nil {
		return nil, errors.New("maintenance: nil tracker")
	}
	c := &Controller{
		store:             store,
		alerts:            alerts,
		defaultExpiration: DefaultExpirationSec,
		log:               logger,
		now:               time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// SetDefaultExpiration sets the TTL used when an enable request carries no
// trailing TTL token.
func (c *Controller) SetDefaultExpiration(sec uint64) {
	if sec > 0 {
		c.defaultExpiration = sec
	}
}

// Handle processes one request and always produces a correlated reply.
func (c *Controller) Handle(ctx context.Context, req Request) Reply {
	reply := Reply{CorrelationID: req.CorrelationID}

	if req.Type != frameRequest {
		c.log.Warn("invalid message type", zap.String("type", req.Type))
		reply.Reason = "Invalid message type"
		return reply
	}
	if req.Command == "" {
		c.log.Warn("request without command")
		reply.Reason = "Missing command"
		return reply
	}
	if req.Command != CommandMaintenanceMode {
		c.log.Warn("invalid command", zap.String("command", req.Command))
		reply.Reason = "Invalid command"
		return reply
	}
	if len(req.Args) == 0 {
		reply.Reason = "Missing maintenance mode"
		return reply
	}

	mode := req.Args[0]
	if mode != ModeEnable && mode != ModeDisable {
		reply.Reason = "Unsupported maintenance mode"
		return reply
	}

	expirationTTL := c.defaultExpiration
	if ttl, ok := trailingTTL(req.Args); ok {
		expirationTTL = ttl
	}
	if mode == ModeDisable {
		expirationTTL = c.store.DefaultTTL()
	}

	// Assets failing individually do not stop the rest of the command.
	// Success reflects only the last processed asset, a known imprecision
	// kept for protocol compatibility.
	processed := false
	for _, token := range req.Args[1:] {
		if !isAssetToken(token) {
			continue
		}
		c.apply(ctx, token, mode, expirationTTL)
		processed = true
	}
	if !processed {
		reply.Reason = "Command failed"
		return reply
	}
	reply.OK = true
	return reply
}

func (c *Controller) apply(ctx context.Context, asset, mode string, ttlSec uint64) {
	nowSec := uint64(c.now().Unix())
	if c.store.Contains(asset) {
		if mode == ModeEnable {
			c.alerts.Resolve(ctx, asset)
		}
	} else {
		// operator intent overrides the inventory allow-list: track
		// the asset even though no inventory event registered it
		c.log.Debug("maintenance on unknown asset, creating entry", zap.String("asset", asset))
	}
	c.store.Override(asset, ttlSec, nowSec)
	c.log.Info("maintenance mode applied",
		zap.String("asset", asset),
		zap.String("mode", mode),
		zap.Uint64("ttl_sec", ttlSec))
}
