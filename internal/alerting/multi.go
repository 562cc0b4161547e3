package alerting

import "context"

// MultiPublisher fans an alert out to several publishers, typically the bus
// transport plus the local history recorder. The first failure is returned
// after every publisher has been tried.
type MultiPublisher struct {
	publishers []Publisher
}

// NewMultiPublisher constructs a MultiPublisher.
func NewMultiPublisher(publishers ...Publisher) *MultiPublisher {
	return &MultiPublisher{publishers: publishers}
}

// PublishAlert forwards the alert to all publishers.
func (m *MultiPublisher) PublishAlert(ctx context.Context, alert Alert) error {
	var first error
	for _, publisher := range m.publishers {
		if publisher == nil {
			continue
		}
		if err := publisher.PublishAlert(ctx, alert); err != nil && first == nil {
			first = err
		}
	}
	return first
}
