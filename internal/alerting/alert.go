package alerting

import "fmt"

// Alert states published on the bus.
const (
	StateActive   = "ACTIVE"
	StateResolved = "RESOLVED"
)

// RuleName is the fixed rule this agent evaluates: asset silence.
const RuleName = "outage"

// Severity applied to every outage alert.
const Severity = "CRITICAL"

// Alert is the outbound alert event for one asset.
type Alert struct {
	// Rule is the stable rule identifier, "outage@<asset>".
	Rule        string   `json:"rule"`
	Asset       string   `json:"asset"`
	State       string   `json:"state"`
	Severity    string   `json:"severity"`
	Description string   `json:"description"`
	Actions     []string `json:"actions"`
	// TimeSec is the emission time in epoch seconds.
	TimeSec uint64 `json:"time"`
	// TTLSec bounds how long a downstream display may trust this event.
	// Set to a multiple of the sweep interval so stale alerts expire if
	// the agent dies.
	TTLSec uint64 `json:"ttl"`
}

// Topic returns the publication topic, "<rule>/<severity>@<asset>".
func (a Alert) Topic() string {
	return fmt.Sprintf("%s/%s@%s", RuleName, a.Severity, a.Asset)
}

// NewAlert builds an outage alert for an asset. displayName may be empty, in
// which case the asset id is used in the description.
func NewAlert(asset, displayName, state string, nowSec, ttlSec uint64) Alert {
	name := displayName
	if name == "" {
		name = asset
	}
	return Alert{
		Rule:        fmt.Sprintf("%s@%s", RuleName, asset),
		Asset:       asset,
		State:       state,
		Severity:    Severity,
		Description: fmt.Sprintf("Device %s does not provide expected data. It may be offline or not correctly configured.", name),
		Actions:     []string{"EMAIL", "SMS"},
		TimeSec:     nowSec,
		TTLSec:      ttlSec,
	}
}
