package snapshot

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"outage-agent/internal/ingest"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func newTestPoller(t *testing.T, dir string, nowSec uint64) *Poller {
	t.Helper()
	out := make(chan ingest.Event, 16)
	p, err := NewPoller(dir, out, zap.NewNop(), WithNow(func() time.Time {
		return time.Unix(int64(nowSec), 0)
	}))
	if err != nil {
		t.Fatalf("new poller: %v", err)
	}
	return p
}

func TestScanForwardsFreshMetrics(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "ups-9.json",
		`{"asset":"ups-9","metric":"status.ups","value":"OL","timestamp":9980,"ttl":60}`)

	events := newTestPoller(t, dir, 10_000).Scan()
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}
	m, ok := events[0].(ingest.Metric)
	if !ok {
		t.Fatalf("event = %T, want ingest.Metric", events[0])
	}
	if m.Asset != "ups-9" || m.TimestampSec != 9980 || m.TTLSec != 60 {
		t.Fatalf("unexpected metric: %+v", m)
	}
}

func TestScanSkipsExpiredSnapshots(t *testing.T) {
	dir := t.TempDir()
	// timestamp + ttl == now is already expired
	writeFile(t, dir, "old.json",
		`{"asset":"ups-9","metric":"status.ups","value":"OL","timestamp":9940,"ttl":60}`)

	if events := newTestPoller(t, dir, 10_000).Scan(); len(events) != 0 {
		t.Fatalf("expired snapshot forwarded: %v", events)
	}
}

func TestScanSkipsMalformedAndForeignFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "broken.json", `{`)
	writeFile(t, dir, "no-asset.json", `{"metric":"status.ups","timestamp":9990,"ttl":60}`)
	writeFile(t, dir, "notes.txt", `not a snapshot`)
	writeFile(t, dir, "ok.json",
		`{"asset":"pdu-2","metric":"load.default","value":"12","timestamp":9990,"ttl":60}`)

	events := newTestPoller(t, dir, 10_000).Scan()
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}
	if events[0].(ingest.Metric).Asset != "pdu-2" {
		t.Fatalf("unexpected event: %+v", events[0])
	}
}

func TestScanMissingDirectoryIsQuiet(t *testing.T) {
	p := newTestPoller(t, filepath.Join(t.TempDir(), "absent"), 10_000)
	if events := p.Scan(); events != nil {
		t.Fatalf("events = %v, want nil", events)
	}
}

func TestScanCarriesSensorIdentity(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "sensor.json",
		`{"asset":"epdu-1","metric":"temperature.1","value":"21.5","timestamp":9990,"ttl":60,"port":"1","sensor_name":"sensor-7"}`)

	events := newTestPoller(t, dir, 10_000).Scan()
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}
	m := events[0].(ingest.Metric)
	if m.SensorPort != "1" || m.SensorName != "sensor-7" {
		t.Fatalf("sensor identity lost: %+v", m)
	}
}
