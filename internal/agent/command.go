package agent

import "time"

// Command is the closed set of process-internal control commands the loop
// accepts. They configure the agent at runtime and are never visible on the
// network.
type Command interface {
	isCommand()
}

// Connect dials the transport.
type Connect struct {
	URL  string
	Name string
}

func (Connect) isCommand() {}

// Consumer kinds for AddConsumer.
const (
	ConsumerAssets      = "assets"
	ConsumerMetrics     = "metrics"
	ConsumerUnavailable = "unavailable"
)

// AddConsumer subscribes one inbound stream.
type AddConsumer struct {
	Stream string
	Kind   string
}

func (AddConsumer) isCommand() {}

// SetProducerStream changes the stream alert events are published on.
type SetProducerStream struct {
	Stream string
}

func (SetProducerStream) isCommand() {}

// SetPollTimeout changes the loop wait timeout, which is also the sweep
// interval.
type SetPollTimeout struct {
	Timeout time.Duration
}

func (SetPollTimeout) isCommand() {}

// SetDefaultExpiry changes the TTL assumed for assets that never reported.
type SetDefaultExpiry struct {
	TTLSec uint64
}

func (SetDefaultExpiry) isCommand() {}

// SetStateFile configures persistence and immediately restores any saved
// active-alert set from the file.
type SetStateFile struct {
	Path string
}

func (SetStateFile) isCommand() {}

// SetVerbose toggles debug logging.
type SetVerbose struct {
	Enabled bool
}

func (SetVerbose) isCommand() {}

// SetMaintenanceExpiration changes the TTL applied to maintenance commands
// that carry none.
type SetMaintenanceExpiration struct {
	TTLSec uint64
}

func (SetMaintenanceExpiration) isCommand() {}

// Terminate persists state and stops the loop.
type Terminate struct{}

func (Terminate) isCommand() {}
