// Package natsbus adapts the agent to a NATS message bus: it decodes inbound
// stream messages into domain events, publishes alert events, and serves the
// point-to-point maintenance mailbox.
package natsbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"outage-agent/internal/alerting"
	"outage-agent/internal/ingest"
	"outage-agent/internal/observability/metrics"
)

// Default stream names, overridable through configuration.
const (
	StreamAssets             = "ASSETS"
	StreamMetrics            = "METRICS"
	StreamSensorMetrics      = "METRICS_SENSOR"
	StreamMetricsUnavailable = "METRICS_UNAVAILABLE"
	StreamAlerts             = "ALERTS"
)

// DefaultSendTimeout bounds how long an alert publish may block on the bus.
const DefaultSendTimeout = 5 * time.Second

// Bus is a connected NATS client scoped to this agent.
type Bus struct {
	nc          *nats.Conn
	log         *zap.Logger
	alertStream string
	sendTimeout time.Duration
	subs        []*nats.Subscription
}

// Option customizes the bus.
type Option func(*Bus)

// WithSendTimeout bounds outbound publish flushes.
func WithSendTimeout(d time.Duration) Option {
	return func(b *Bus) {
		if d > 0 {
			b.sendTimeout = d
		}
	}
}

// WithAlertStream changes the stream alert events are published on.
func WithAlertStream(stream string) Option {
	return func(b *Bus) {
		if stream != "" {
			b.alertStream = stream
		}
	}
}

// Connect dials the bus. The client name shows up in server monitoring, so
// every agent instance should pass a distinct one.
func Connect(url, name string, logger *zap.Logger, opts ...Option) (*Bus, error) {
	if url == "" {
		return nil, errors.New("natsbus: empty url")
	}
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second))
	if err != nil {
		return nil, fmt.Errorf("natsbus: connect %s: %w", url, err)
	}
	b := &Bus{
		nc:          nc,
		log:         logger,
		alertStream: StreamAlerts,
		sendTimeout: DefaultSendTimeout,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// SetAlertStream changes the stream alert events are published on. Only the
// goroutine that publishes alerts may call this.
func (b *Bus) SetAlertStream(stream string) {
	if stream != "" {
		b.alertStream = stream
	}
}

// Close drains all subscriptions and closes the connection.
func (b *Bus) Close() {
	for _, sub := range b.subs {
		_ = sub.Unsubscribe()
	}
	b.nc.Close()
}

func streamSubject(stream string) string {
	return stream + ".>"
}

func (b *Bus) subscribe(stream string, handler nats.MsgHandler) error {
	sub, err := b.nc.Subscribe(streamSubject(stream), handler)
	if err != nil {
		return fmt.Errorf("natsbus: subscribe %s: %w", stream, err)
	}
	b.subs = append(b.subs, sub)
	return nil
}

// ConsumeAssets decodes inventory lifecycle messages into out.
func (b *Bus) ConsumeAssets(stream string, out chan<- ingest.Event) error {
	return b.subscribe(stream, func(m *nats.Msg) {
		var w wireAsset
		if err := json.Unmarshal(m.Data, &w); err != nil || w.Asset == "" {
			b.log.Warn("dropping undecodable asset message", zap.String("subject", m.Subject), zap.Error(err))
			metrics.EventDropped("undecodable")
			return
		}
		out <- w.event()
	})
}

// ConsumeMetrics decodes device metric messages into out. The same decoder
// serves the sensor-relayed stream; the wire shape only differs by the port
// and sensor name attributes being set.
func (b *Bus) ConsumeMetrics(stream string, out chan<- ingest.Event) error {
	return b.subscribe(stream, func(m *nats.Msg) {
		var w wireMetric
		if err := json.Unmarshal(m.Data, &w); err != nil || w.Asset == "" {
			b.log.Warn("dropping undecodable metric message", zap.String("subject", m.Subject), zap.Error(err))
			metrics.EventDropped("undecodable")
			return
		}
		out <- w.event()
	})
}

// ConsumeUnavailable decodes source-gone signals into out.
func (b *Bus) ConsumeUnavailable(stream string, out chan<- ingest.Event) error {
	return b.subscribe(stream, func(m *nats.Msg) {
		var w wireUnavailable
		if err := json.Unmarshal(m.Data, &w); err != nil || w.Type != typeMetricUnavailable {
			b.log.Warn("dropping undecodable unavailability message", zap.String("subject", m.Subject), zap.Error(err))
			metrics.EventDropped("undecodable")
			return
		}
		out <- ingest.MetricUnavailable{Topic: w.Topic}
	})
}

// PublishAlert sends one alert event and waits, bounded, for the server to
// take it. It satisfies the tracker's publisher contract.
func (b *Bus) PublishAlert(ctx context.Context, alert alerting.Alert) error {
	data, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("natsbus: encode alert: %w", err)
	}
	subject := b.alertStream + "." + alert.Topic()
	if err := b.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("natsbus: publish %s: %w", subject, err)
	}
	timeout := b.sendTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	if err := b.nc.FlushTimeout(timeout); err != nil {
		return fmt.Errorf("natsbus: flush %s: %w", subject, err)
	}
	return nil
}

// ServeMailbox subscribes the agent's request mailbox. Each inbound frame
// list is handed to deliver together with a respond callback that answers on
// the message's reply subject. Fire-and-forget requests get no answer.
func (b *Bus) ServeMailbox(subject string, deliver func(frames []string, respond func(frames []string))) error {
	sub, err := b.nc.Subscribe(subject, func(m *nats.Msg) {
		var frames []string
		if err := json.Unmarshal(m.Data, &frames); err != nil {
			b.log.Warn("dropping undecodable request", zap.String("subject", m.Subject), zap.Error(err))
			metrics.EventDropped("undecodable")
			return
		}
		reply := m.Reply
		deliver(frames, func(out []string) {
			if reply == "" {
				return
			}
			data, err := json.Marshal(out)
			if err != nil {
				b.log.Error("encoding reply", zap.Error(err))
				return
			}
			if err := b.nc.Publish(reply, data); err != nil {
				b.log.Error("sending reply", zap.String("subject", reply), zap.Error(err))
			}
		})
	})
	if err != nil {
		return fmt.Errorf("natsbus: subscribe mailbox %s: %w", subject, err)
	}
	b.subs = append(b.subs, sub)
	return nil
}
