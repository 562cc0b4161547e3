// Package agent runs the event loop that owns all liveness and alert state.
// One goroutine multiplexes inbound domain events, mailbox requests, control
// commands and a poll timer; nothing else mutates the store or the tracker.
package agent

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"outage-agent/internal/alerting"
	"outage-agent/internal/ingest"
	"outage-agent/internal/liveness"
	"outage-agent/internal/maintenance"
	"outage-agent/internal/observability/metrics"
)

// Defaults from configuration when nothing overrides them.
const (
	DefaultPollTimeout  = 30 * time.Second
	DefaultSaveInterval = 45 * time.Minute
)

// Wiring is the slice of the transport the loop drives when it applies
// connection-shaped control commands. main provides the real implementation;
// tests stub it.
type Wiring interface {
	Connect(url, name string) error
	AddConsumer(stream, kind string) error
	SetProducerStream(stream string) error
}

// MailboxRequest is one inbound point-to-point request plus the way to
// answer it. Respond is nil for fire-and-forget senders.
type MailboxRequest struct {
	Frames  []string
	Respond func(frames []string)
}

// Agent is the single-worker event loop.
type Agent struct {
	store      *liveness.Store
	tracker    *alerting.Tracker
	router     *ingest.Router
	controller *maintenance.Controller
	wiring     Wiring
	log        *zap.Logger
	level      *zap.AtomicLevel
	now        func() time.Time

	events   chan ingest.Event
	requests chan MailboxRequest
	control  chan Command

	pollTimeout  time.Duration
	saveInterval time.Duration
	stateFile    string
	lastSweep    time.Time
	lastSave     time.Time
}

// Option customizes the agent.
type Option func(*Agent)

// WithNow overrides the clock, for tests.
func WithNow(now func() time.Time) Option {
	return func(a *Agent) {
		if now != nil {
			a.now = now
		}
	}
}

// WithLevel attaches the log level handle flipped by the verbose command.
func WithLevel(level *zap.AtomicLevel) Option {
	return func(a *Agent) {
		a.level = level
	}
}

// WithWiring attaches the transport wiring driven by control commands.
func WithWiring(w Wiring) Option {
	return func(a *Agent) {
		a.wiring = w
	}
}

// WithSaveInterval changes how often state is persisted.
func WithSaveInterval(d time.Duration) Option {
	return func(a *Agent) {
		if d > 0 {
			a.saveInterval = d
		}
	}
}

// New wires the loop over its owned components.
func New(store *liveness.Store, tracker *alerting.Tracker, router *ingest.Router, controller *maintenance.Controller, logger *zap.Logger, opts ...Option) (*Agent, error) {
	if store == nil || tracker == nil || router == nil || controller == nil {
		return nil, errors.New("agent: nil component")
	}
	a := &Agent{
		store:        store,
		tracker:      tracker,
		router:       router,
		controller:   controller,
		log:          logger,
		now:          time.Now,
		events:       make(chan ingest.Event, 256),
		requests:     make(chan MailboxRequest, 16),
		control:      make(chan Command, 16),
		pollTimeout:  DefaultPollTimeout,
		saveInterval: DefaultSaveInterval,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.tracker.SetSweepInterval(a.pollTimeout)
	return a, nil
}

// Events is where transports and the snapshot poller deliver domain events.
func (a *Agent) Events() chan<- ingest.Event { return a.events }

// Requests is where the transport delivers mailbox requests.
func (a *Agent) Requests() chan<- MailboxRequest { return a.requests }

// Control is where the process feeds control commands.
func (a *Agent) Control() chan<- Command { return a.control }

// Run processes until the context is canceled or a Terminate command
// arrives. The in-flight item always finishes before exit; shutdown persists
// state.
func (a *Agent) Run(ctx context.Context) error {
	start := a.now()
	a.lastSweep = start
	a.lastSave = start

	timer := time.NewTimer(a.pollTimeout)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			a.shutdown()
			return nil
		case ev := <-a.events:
			a.router.Handle(ctx, ev)
		case req := <-a.requests:
			a.handleRequest(ctx, req)
		case cmd := <-a.control:
			if a.apply(ctx, cmd) {
				a.shutdown()
				return nil
			}
		case <-timer.C:
		}
		a.maybeSweep(ctx)
		a.maybeSave()
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(a.pollTimeout)
	}
}

func (a *Agent) handleRequest(ctx context.Context, req MailboxRequest) {
	parsed, err := maintenance.ParseFrames(req.Frames)
	if err != nil {
		// no correlation id means no reply can be addressed
		a.log.Error("dropping unaddressable request", zap.Strings("frames", req.Frames), zap.Error(err))
		return
	}
	reply := a.controller.Handle(ctx, parsed)
	if req.Respond != nil {
		req.Respond(reply.Frames())
	}
}

// apply executes one control command. It reports whether the loop should
// terminate.
func (a *Agent) apply(ctx context.Context, cmd Command) bool {
	switch c := cmd.(type) {
	case Connect:
		a.wire(func(w Wiring) error { return w.Connect(c.URL, c.Name) }, "connect")
	case AddConsumer:
		a.wire(func(w Wiring) error { return w.AddConsumer(c.Stream, c.Kind) }, "add consumer")
	case SetProducerStream:
		a.wire(func(w Wiring) error { return w.SetProducerStream(c.Stream) }, "set producer stream")
	case SetPollTimeout:
		if c.Timeout > 0 {
			a.pollTimeout = c.Timeout
			a.tracker.SetSweepInterval(c.Timeout)
		}
	case SetDefaultExpiry:
		a.store.SetDefaultTTL(c.TTLSec)
	case SetStateFile:
		a.stateFile = c.Path
		a.restore()
	case SetVerbose:
		if a.level != nil {
			if c.Enabled {
				a.level.SetLevel(zapcore.DebugLevel)
			} else {
				a.level.SetLevel(zapcore.InfoLevel)
			}
		}
	case SetMaintenanceExpiration:
		a.controller.SetDefaultExpiration(c.TTLSec)
	case Terminate:
		return true
	default:
		a.log.Error("unknown control command ignored")
	}
	return false
}

func (a *Agent) wire(op func(Wiring) error, what string) {
	if a.wiring == nil {
		a.log.Error("transport wiring not configured", zap.String("command", what))
		return
	}
	if err := op(a.wiring); err != nil {
		a.log.Error("transport command failed", zap.String("command", what), zap.Error(err))
	}
}

func (a *Agent) maybeSweep(ctx context.Context) {
	now := a.now()
	if now.Sub(a.lastSweep) < a.pollTimeout {
		return
	}
	a.lastSweep = now
	dead := a.store.Dead(uint64(now.Unix()))
	for _, asset := range dead {
		a.tracker.Activate(ctx, asset)
	}
	metrics.SweepRun()
	if len(dead) > 0 {
		a.log.Info("sweep found expired assets", zap.Int("count", len(dead)))
	}
}

func (a *Agent) maybeSave() {
	if a.stateFile == "" {
		return
	}
	if a.now().Sub(a.lastSave) < a.saveInterval {
		return
	}
	a.lastSave = a.now()
	a.save()
}

func (a *Agent) save() {
	if err := alerting.SaveState(a.stateFile, a.tracker.Active()); err != nil {
		a.log.Error("saving alert state", zap.String("file", a.stateFile), zap.Error(err))
		metrics.StateSaved(false)
		return
	}
	metrics.StateSaved(true)
}

func (a *Agent) restore() {
	if a.stateFile == "" {
		return
	}
	assets, err := alerting.LoadState(a.stateFile)
	if err != nil {
		a.log.Warn("alert state not restored", zap.String("file", a.stateFile), zap.Error(err))
		return
	}
	a.tracker.Restore(assets)
	a.log.Info("alert state restored", zap.Int("alerts", len(assets)))
}

func (a *Agent) shutdown() {
	if a.stateFile != "" {
		a.save()
	}
	a.log.Info("agent loop stopped", zap.Int("tracked_assets", a.store.Size()), zap.Int("active_alerts", a.tracker.Size()))
}
