package maintenance

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"outage-agent/internal/alerting"
	"outage-agent/internal/liveness"
)

type capturePublisher struct {
	alerts []alerting.Alert
}

func (c *capturePublisher) PublishAlert(_ context.Context, alert alerting.Alert) error {
	c.alerts = append(c.alerts, alert)
	return nil
}

type fixture struct {
	store      *liveness.Store
	tracker    *alerting.Tracker
	controller *Controller
	pub        *capturePublisher
	nowSec     uint64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:  liveness.NewStore(),
		pub:    &capturePublisher{},
		nowSec: 50_000,
	}
	now := func() time.Time { return time.Unix(int64(f.nowSec), 0) }
	f.tracker = alerting.NewTracker(f.pub, f.store, zap.NewNop(), alerting.WithNow(now))
	controller, err := NewController(f.store, f.tracker, zap.NewNop(), WithNow(now))
	if err != nil {
		t.Fatalf("new controller: %v", err)
	}
	f.controller = controller
	return f
}

func request(args ...string) Request {
	return Request{
		Type:          "REQUEST",
		CorrelationID: "corr-1",
		Command:       CommandMaintenanceMode,
		Args:          args,
	}
}

func TestParseFrames(t *testing.T) {
	req, err := ParseFrames([]string{"REQUEST", "id-1", "MAINTENANCE_MODE", "enable", "ups-9", "3600"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if req.CorrelationID != "id-1" || req.Command != "MAINTENANCE_MODE" || len(req.Args) != 3 {
		t.Fatalf("unexpected request: %+v", req)
	}

	if _, err := ParseFrames([]string{"REQUEST"}); !errors.Is(err, ErrUnaddressable) {
		t.Fatalf("err = %v, want ErrUnaddressable", err)
	}
}

func TestEnableResolvesAndOverrides(t *testing.T) {
	f := newFixture(t)
	f.store.Register("ups-9", "", f.nowSec-10_000)
	f.tracker.Restore([]string{"ups-9"})

	reply := f.controller.Handle(context.Background(), request("enable", "ups-9", "3600"))
	if !reply.OK {
		t.Fatalf("reply = %+v, want OK", reply)
	}
	if f.tracker.Contains("ups-9") {
		t.Fatal("active alert not resolved on enable")
	}
	if len(f.pub.alerts) != 1 || f.pub.alerts[0].State != alerting.StateResolved {
		t.Fatalf("expected one RESOLVED alert, got %v", f.pub.alerts)
	}
	deadline, _ := f.store.Deadline("ups-9")
	if deadline != f.nowSec+2*3600 {
		t.Fatalf("deadline = %d, want %d", deadline, f.nowSec+2*3600)
	}
}

func TestEnableUnknownAssetBypassesAllowList(t *testing.T) {
	f := newFixture(t)
	reply := f.controller.Handle(context.Background(), request("enable", "cooler-3", "60"))
	if !reply.OK {
		t.Fatalf("reply = %+v, want OK", reply)
	}
	if !f.store.Contains("cooler-3") {
		t.Fatal("unknown asset not created by maintenance enable")
	}
}

func TestDisableRestoresDefaultTTL(t *testing.T) {
	f := newFixture(t)
	f.store.SetDefaultTTL(900)
	f.store.Register("ups-9", "", f.nowSec)
	f.controller.Handle(context.Background(), request("enable", "ups-9", "10"))

	reply := f.controller.Handle(context.Background(), request("disable", "ups-9"))
	if !reply.OK {
		t.Fatalf("reply = %+v, want OK", reply)
	}
	deadline, _ := f.store.Deadline("ups-9")
	if deadline != f.nowSec+2*900 {
		t.Fatalf("deadline = %d, want default restored", deadline)
	}
}

func TestDefaultExpirationUsedWithoutTrailingTTL(t *testing.T) {
	f := newFixture(t)
	f.controller.SetDefaultExpiration(120)
	f.controller.Handle(context.Background(), request("enable", "ups-9"))
	deadline, _ := f.store.Deadline("ups-9")
	if deadline != f.nowSec+2*120 {
		t.Fatalf("deadline = %d, want configured default", deadline)
	}
}

func TestHyphenlessTokenIsNotAnAsset(t *testing.T) {
	f := newFixture(t)
	reply := f.controller.Handle(context.Background(), request("enable", "UPS42", "3600"))
	// "UPS42" has no hyphen, so the grammar treats it as a non-asset
	// token and nothing gets processed
	if reply.OK {
		t.Fatal("expected command failure for hyphen-less asset token")
	}
	if f.store.Contains("UPS42") {
		t.Fatal("hyphen-less token must not be processed as an asset")
	}
}

func TestMultipleAssetsOneTTL(t *testing.T) {
	f := newFixture(t)
	reply := f.controller.Handle(context.Background(), request("enable", "ups-1", "pdu-2", "60"))
	if !reply.OK {
		t.Fatalf("reply = %+v, want OK", reply)
	}
	for _, asset := range []string{"ups-1", "pdu-2"} {
		deadline, ok := f.store.Deadline(asset)
		if !ok || deadline != f.nowSec+2*60 {
			t.Fatalf("asset %s deadline = %d, want %d", asset, deadline, f.nowSec+2*60)
		}
	}
}

func TestErrorReplies(t *testing.T) {
	f := newFixture(t)
	cases := []struct {
		name   string
		req    Request
		reason string
	}{
		{"wrong type", Request{Type: "NOTIFY", CorrelationID: "c"}, "Invalid message type"},
		{"missing command", Request{Type: "REQUEST", CorrelationID: "c"}, "Missing command"},
		{"unknown command", Request{Type: "REQUEST", CorrelationID: "c", Command: "REBOOT"}, "Invalid command"},
		{"missing mode", request(), "Missing maintenance mode"},
		{"bad mode", request("pause", "ups-1"), "Unsupported maintenance mode"},
		{"no assets", request("enable", "3600"), "Command failed"},
	}
	for _, tc := range cases {
		reply := f.controller.Handle(context.Background(), tc.req)
		if reply.OK {
			t.Errorf("%s: expected error reply", tc.name)
			continue
		}
		if reply.Reason != tc.reason {
			t.Errorf("%s: reason = %q, want %q", tc.name, reply.Reason, tc.reason)
		}
	}
}

func TestReplyFrames(t *testing.T) {
	ok := Reply{CorrelationID: "id-1", OK: true}
	frames := ok.Frames()
	want := []string{"id-1", "REPLY", "OK"}
	for i := range want {
		if frames[i] != want[i] {
			t.Fatalf("frames = %v, want %v", frames, want)
		}
	}

	bad := Reply{CorrelationID: "id-2", Reason: "Command failed"}
	frames = bad.Frames()
	want = []string{"id-2", "REPLY", "ERROR", "Command failed"}
	for i := range want {
		if frames[i] != want[i] {
			t.Fatalf("frames = %v, want %v", frames, want)
		}
	}
}
