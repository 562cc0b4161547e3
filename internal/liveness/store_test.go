package liveness

import (
	"errors"
	"sort"
	"testing"
)

func TestTouchUnknownAssetIsNoop(t *testing.T) {
	s := NewStore()
	if err := s.Touch("UPS1", 100, 5, 100); err != nil {
		t.Fatalf("touch unknown: %v", err)
	}
	if s.Size() != 0 {
		t.Fatalf("store size = %d, want 0", s.Size())
	}
}

func TestRegisterFirstWins(t *testing.T) {
	s := NewStore()
	s.SetDefaultTTL(10)
	s.Register("UPS1", "Rack UPS", 100)

	// learn a tighter TTL and a newer last-seen
	if err := s.Touch("UPS1", 200, 3, 200); err != nil {
		t.Fatalf("touch: %v", err)
	}

	// duplicate create must not reset learned state
	s.Register("UPS1", "Rack UPS renamed", 500)
	deadline, ok := s.Deadline("UPS1")
	if !ok {
		t.Fatal("asset missing after duplicate register")
	}
	if deadline != 200+2*3 {
		t.Fatalf("deadline = %d, want %d", deadline, 200+2*3)
	}
	if got := s.DisplayName("UPS1"); got != "Rack UPS renamed" {
		t.Fatalf("display name = %q, want refreshed value", got)
	}
}

func TestTouchMonotonicLastSeen(t *testing.T) {
	s := NewStore()
	s.SetDefaultTTL(10)
	s.Register("UPS1", "", 100)

	if err := s.Touch("UPS1", 300, 10, 300); err != nil {
		t.Fatalf("touch: %v", err)
	}
	// stale timestamp must not move last-seen backward
	if err := s.Touch("UPS1", 150, 10, 300); err != nil {
		t.Fatalf("touch stale: %v", err)
	}
	deadline, _ := s.Deadline("UPS1")
	if deadline != 300+2*10 {
		t.Fatalf("deadline = %d, want %d", deadline, 300+2*10)
	}
}

func TestTouchFutureTimestamp(t *testing.T) {
	s := NewStore()
	s.SetDefaultTTL(10)
	s.Register("UPS1", "", 100)

	err := s.Touch("UPS1", 900, 2, 300)
	if !errors.Is(err, ErrFutureTimestamp) {
		t.Fatalf("err = %v, want ErrFutureTimestamp", err)
	}
	// last-seen unchanged, but the tighter TTL was still learned
	deadline, _ := s.Deadline("UPS1")
	if deadline != 100+2*2 {
		t.Fatalf("deadline = %d, want %d", deadline, 100+2*2)
	}
}

func TestTTLNeverRises(t *testing.T) {
	s := NewStore()
	s.SetDefaultTTL(10)
	s.Register("UPS1", "", 100)

	if err := s.Touch("UPS1", 100, 1, 100); err != nil {
		t.Fatalf("touch: %v", err)
	}
	if err := s.Touch("UPS1", 100, 10, 100); err != nil {
		t.Fatalf("touch: %v", err)
	}
	deadline, _ := s.Deadline("UPS1")
	if deadline != 100+2*1 {
		t.Fatalf("deadline = %d, want minimum TTL kept", deadline)
	}
}

func TestDeadBoundary(t *testing.T) {
	s := NewStore()
	s.SetDefaultTTL(5)
	s.Register("DEAD-1", "", 100)  // deadline 110
	s.Register("ALIVE-1", "", 96)  // deadline 106... touched below
	if err := s.Touch("ALIVE-1", 101, 5, 101); err != nil {
		t.Fatalf("touch: %v", err)
	}

	dead := s.Dead(110)
	sort.Strings(dead)
	if len(dead) != 1 || dead[0] != "DEAD-1" {
		t.Fatalf("dead = %v, want [DEAD-1]", dead)
	}

	// one second earlier the same asset is still alive
	if got := s.Dead(109); len(got) != 0 {
		t.Fatalf("dead at 109 = %v, want none", got)
	}
}

func TestOverrideForcesTTL(t *testing.T) {
	s := NewStore()
	s.SetDefaultTTL(10)
	s.Register("UPS-9", "", 100)
	if err := s.Touch("UPS-9", 100, 2, 100); err != nil {
		t.Fatalf("touch: %v", err)
	}

	// a maintenance override must extend past the learned minimum
	s.Override("UPS-9", 3600, 200)
	deadline, _ := s.Deadline("UPS-9")
	if deadline != 200+2*3600 {
		t.Fatalf("deadline = %d, want %d", deadline, 200+2*3600)
	}

	// override on an unknown asset creates it
	s.Override("PDU-7", 60, 200)
	if !s.Contains("PDU-7") {
		t.Fatal("override did not create entry")
	}
}

func TestRemove(t *testing.T) {
	s := NewStore()
	s.Register("UPS1", "name", 100)
	s.Remove("UPS1")
	if s.Contains("UPS1") {
		t.Fatal("asset still tracked after remove")
	}
	// removing twice is fine
	s.Remove("UPS1")
}

func TestTrackedDevice(t *testing.T) {
	cases := []struct {
		typ, subtype string
		want         bool
	}{
		{"device", "ups", true},
		{"device", "epdu", true},
		{"device", "pdu", true},
		{"device", "sensor", true},
		{"device", "sensorgpio", true},
		{"device", "sts", true},
		{"device", "server", false},
		{"group", "ups", false},
		{"", "", false},
	}
	for _, tc := range cases {
		if got := TrackedDevice(tc.typ, tc.subtype); got != tc.want {
			t.Errorf("TrackedDevice(%q, %q) = %v, want %v", tc.typ, tc.subtype, got, tc.want)
		}
	}
}
