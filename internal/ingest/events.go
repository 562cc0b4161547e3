package ingest

// Event is the closed set of inbound domain events the agent reacts to.
// Transports decode wire messages into exactly one of these variants; the
// router never inspects raw attributes.
type Event interface {
	isEvent()
}

// Metric is a liveness-bearing measurement observed for an asset.
type Metric struct {
	// Asset is the reporting asset. For sensor-relayed metrics this is
	// the parent device; the sensor's own identity is in SensorName.
	Asset string
	// TimestampSec is the sender-declared observation time.
	TimestampSec uint64
	// TTLSec is the interval within which the sender promises to report
	// again.
	TTLSec uint64
	// Aggregated marks metrics derived by another aggregation agent
	// rather than observed from the device. They never feed liveness.
	Aggregated bool
	// SensorPort is set when the metric was relayed on behalf of a
	// sensor attached to the reporting device.
	SensorPort string
	// SensorName is the relayed sensor's asset id. Required whenever
	// SensorPort is present.
	SensorName string
}

func (Metric) isEvent() {}

// Inventory operations and statuses the router reacts to.
const (
	OpCreate = "create"
	OpUpdate = "update"
	OpDelete = "delete"

	StatusActive    = "active"
	StatusRetired   = "retired"
	StatusNonActive = "nonactive"
)

// AssetEvent is an inventory lifecycle event.
type AssetEvent struct {
	Asset     string
	Operation string
	Type      string
	Subtype   string
	// Status is empty when the inventory did not declare one.
	Status string
	// DisplayName is the human-readable name extension attribute.
	DisplayName string
}

func (AssetEvent) isEvent() {}

// MetricUnavailable is the explicit "this source stopped" signal, distinct
// from a plain timeout. Topic has the form "<prefix>@<assetId>".
type MetricUnavailable struct {
	Topic string
}

func (MetricUnavailable) isEvent() {}
