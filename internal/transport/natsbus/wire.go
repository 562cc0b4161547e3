package natsbus

import "outage-agent/internal/ingest"

const typeMetricUnavailable = "METRICUNAVAILABLE"

// wireAsset is the inventory message payload.
type wireAsset struct {
	Asset     string `json:"asset"`
	Operation string `json:"operation"`
	Type      string `json:"type"`
	Subtype   string `json:"subtype"`
	Status    string `json:"status,omitempty"`
	Name      string `json:"name,omitempty"`
}

func (w wireAsset) event() ingest.AssetEvent {
	return ingest.AssetEvent{
		Asset:       w.Asset,
		Operation:   w.Operation,
		Type:        w.Type,
		Subtype:     w.Subtype,
		Status:      w.Status,
		DisplayName: w.Name,
	}
}

// wireMetric is the measurement payload. Computed marks values derived by an
// aggregation agent rather than read from the device.
type wireMetric struct {
	Metric       string `json:"metric"`
	Asset        string `json:"asset"`
	Value        string `json:"value"`
	Unit         string `json:"unit,omitempty"`
	TimestampSec uint64 `json:"timestamp"`
	TTLSec       uint64 `json:"ttl"`
	Computed     bool   `json:"computed,omitempty"`
	Port         string `json:"port,omitempty"`
	SensorName   string `json:"sensor_name,omitempty"`
}

func (w wireMetric) event() ingest.Metric {
	return ingest.Metric{
		Asset:        w.Asset,
		TimestampSec: w.TimestampSec,
		TTLSec:       w.TTLSec,
		Aggregated:   w.Computed,
		SensorPort:   w.Port,
		SensorName:   w.SensorName,
	}
}

// wireUnavailable is the source-gone signal: Topic has the form
// "<prefix>@<assetId>".
type wireUnavailable struct {
	Type  string `json:"type"`
	Topic string `json:"topic"`
}
