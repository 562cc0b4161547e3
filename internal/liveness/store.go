package liveness

import "errors"

// DefaultExpirySec is the TTL applied to newly registered assets until a
// metric advertises a tighter one.
const DefaultExpirySec uint64 = 15 * 60

// ErrFutureTimestamp is returned by Touch when the observed timestamp lies
// ahead of the receipt time. The TTL learning is still applied.
var ErrFutureTimestamp = errors.New("liveness: metric timestamp is from the future")

// entry tracks when a single asset was last heard from and how often it is
// expected to report.
type entry struct {
	// minimum TTL any sender has advertised for this asset; never raised
	// once lowered, so the alert fires on the most conservative window
	ttlSec uint64
	// never moves backward; a late metric carrying an old timestamp must
	// not resurrect an already expired deadline
	lastSeenSec uint64
}

func (e *entry) deadline() uint64 {
	return e.lastSeenSec + 2*e.ttlSec
}

func (e *entry) observeTTL(proposedSec uint64) {
	if proposedSec < e.ttlSec {
		e.ttlSec = proposedSec
	}
}

func (e *entry) observeSeen(seenSec uint64) {
	if seenSec > e.lastSeenSec {
		e.lastSeenSec = seenSec
	}
}

// Store is the asset-liveness cache: one entry per tracked asset plus the
// retained display names used for alert text.
//
// The store is not safe for concurrent use. The agent loop is its single
// owner; all mutation happens on that goroutine.
type Store struct {
	entries       map[string]*entry
	displayNames  map[string]string
	defaultExpiry uint64
}

// NewStore constructs an empty store with the default asset expiry.
func NewStore() *Store {
	return &Store{
		entries:       make(map[string]*entry),
		displayNames:  make(map[string]string),
		defaultExpiry: DefaultExpirySec,
	}
}

// DefaultTTL returns the expiry applied to newly registered assets.
func (s *Store) DefaultTTL() uint64 {
	return s.defaultExpiry
}

// SetDefaultTTL changes the expiry applied to newly registered assets.
func (s *Store) SetDefaultTTL(sec uint64) {
	s.defaultExpiry = sec
}

// Register starts tracking an asset with the default TTL, seen now. The
// first registration wins: a duplicate create event must not reset learned
// state. The display name is refreshed either way.
func (s *Store) Register(asset, displayName string, nowSec uint64) {
	s.displayNames[asset] = displayName
	if _, ok := s.entries[asset]; ok {
		return
	}
	s.entries[asset] = &entry{ttlSec: s.defaultExpiry, lastSeenSec: nowSec}
}

// Touch records a metric observation for a known asset. Unknown assets are
// ignored: the store only tracks assets registered via inventory. The TTL
// learning applies even when the timestamp is rejected as future.
func (s *Store) Touch(asset string, timestampSec, ttlSec, nowSec uint64) error {
	e, ok := s.entries[asset]
	if !ok {
		return nil
	}
	e.observeTTL(ttlSec)
	if timestampSec > nowSec {
		return ErrFutureTimestamp
	}
	e.observeSeen(timestampSec)
	return nil
}

// Override forces an asset's TTL and resets its last-seen time, creating the
// entry when absent. Maintenance mode uses this to pin the deadline at
// now + 2*ttl regardless of anything learned before.
func (s *Store) Override(asset string, ttlSec, nowSec uint64) {
	e, ok := s.entries[asset]
	if !ok {
		e = &entry{}
		s.entries[asset] = e
	}
	e.ttlSec = ttlSec
	e.lastSeenSec = nowSec
}

// Remove stops tracking an asset. Removing an unknown asset is a no-op. The
// retained display name is kept so a late alert can still be labeled.
func (s *Store) Remove(asset string) {
	delete(s.entries, asset)
}

// Contains reports whether the asset is tracked.
func (s *Store) Contains(asset string) bool {
	_, ok := s.entries[asset]
	return ok
}

// Size returns the number of tracked assets.
func (s *Store) Size() int {
	return len(s.entries)
}

// Deadline returns the instant past which the asset is considered dead.
func (s *Store) Deadline(asset string) (uint64, bool) {
	e, ok := s.entries[asset]
	if !ok {
		return 0, false
	}
	return e.deadline(), true
}

// DisplayName returns the retained human-readable name for an asset, or the
// empty string when none was ever delivered.
func (s *Store) DisplayName(asset string) string {
	return s.displayNames[asset]
}

// Dead lists every asset whose deadline has passed. It is a read-only
// sweep and may be called at any frequency.
func (s *Store) Dead(nowSec uint64) []string {
	var dead []string
	for asset, e := range s.entries {
		if e.deadline() <= nowSec {
			dead = append(dead, asset)
		}
	}
	return dead
}
