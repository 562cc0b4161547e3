// Package snapshot polls a shared metric-snapshot directory. Producers that
// do not publish to the bus drop their latest measurement there as one JSON
// document per metric; the poller turns fresh documents into metric events
// for the agent loop.
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"outage-agent/internal/ingest"
)

// DefaultPollInterval matches the agent's default poll timeout.
const DefaultPollInterval = 30 * time.Second

// document is the on-disk snapshot format: one file per metric, overwritten
// in place by the producer.
type document struct {
	Asset        string `json:"asset"`
	Metric       string `json:"metric"`
	Value        string `json:"value"`
	Unit         string `json:"unit,omitempty"`
	TimestampSec uint64 `json:"timestamp"`
	TTLSec       uint64 `json:"ttl"`
	SensorPort   string `json:"port,omitempty"`
	SensorName   string `json:"sensor_name,omitempty"`
}

// Poller scans a snapshot directory on an interval and forwards every
// still-valid metric to the agent loop over a channel. It owns no shared
// state; the store is touched only by the loop goroutine.
type Poller struct {
	dir      string
	interval time.Duration
	out      chan<- ingest.Event
	log      *zap.Logger
	now      func() time.Time
}

// Option customizes the poller.
type Option func(*Poller)

// WithNow overrides the clock, for tests.
func WithNow(now func() time.Time) Option {
	return func(p *Poller) {
		if now != nil {
			p.now = now
		}
	}
}

// WithInterval sets the poll interval.
func WithInterval(interval time.Duration) Option {
	return func(p *Poller) {
		if interval > 0 {
			p.interval = interval
		}
	}
}

// NewPoller constructs a poller writing into out.
func NewPoller(dir string, out chan<- ingest.Event, logger *zap.Logger, opts ...Option) (*Poller, error) {
	if dir == "" {
		return nil, errors.New("snapshot: empty directory")
	}
	if out == nil {
		return nil, errors.New("snapshot: nil output channel")
	}
	p := &Poller{
		dir:      dir,
		interval: DefaultPollInterval,
		out:      out,
		log:      logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Run polls until the context is canceled. A missing directory is not fatal;
// the producer may not have started yet.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.pollOnce(ctx)
		}
	}
}

func (p *Poller) pollOnce(ctx context.Context) {
	events := p.Scan()
	for _, ev := range events {
		select {
		case p.out <- ev:
		case <-ctx.Done():
			return
		}
	}
}

// Scan reads the directory once and returns the metrics still within their
// declared TTL. Unreadable or malformed files are logged and skipped.
func (p *Poller) Scan() []ingest.Event {
	entries, err := os.ReadDir(p.dir)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			p.log.Warn("snapshot directory unreadable", zap.String("dir", p.dir), zap.Error(err))
		}
		return nil
	}

	nowSec := uint64(p.now().Unix())
	var events []ingest.Event
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(p.dir, entry.Name())
		doc, err := readDocument(path)
		if err != nil {
			p.log.Warn("skipping snapshot file", zap.String("file", entry.Name()), zap.Error(err))
			continue
		}
		if doc.Asset == "" || doc.TTLSec == 0 {
			p.log.Warn("snapshot without asset or ttl", zap.String("file", entry.Name()))
			continue
		}
		// Expired snapshots are the producer going quiet; forwarding
		// them would keep a dead asset alive forever.
		if doc.TimestampSec+doc.TTLSec <= nowSec {
			continue
		}
		events = append(events, ingest.Metric{
			Asset:        doc.Asset,
			TimestampSec: doc.TimestampSec,
			TTLSec:       doc.TTLSec,
			SensorPort:   doc.SensorPort,
			SensorName:   doc.SensorName,
		})
	}
	return events
}

func readDocument(path string) (document, error) {
	var doc document
	raw, err := os.ReadFile(path)
	if err != nil {
		return doc, err
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return doc, err
	}
	return doc, nil
}
