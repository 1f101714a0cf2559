// Package publisher ships domain events to the MQTT broker.
package publisher

import "context"

// Publisher delivers a payload to a topic. MQTTPublisher is the production
// implementation; MockPublisher records messages for tests.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Close() error
}
