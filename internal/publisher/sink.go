package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/asterisk-proxy/internal/events"
	"github.com/sweeney/asterisk-proxy/internal/metrics"
)

// payload is the JSON structure published for every domain event.
type payload struct {
	Event     events.Name  `json:"event"`
	Timestamp string       `json:"timestamp"`
	Data      events.Event `json:"data"`
}

// EventSink publishes domain events to "<prefix>/<event name>". Emit only
// queues; Run does the publishing so a slow broker never stalls the engine.
type EventSink struct {
	pub    Publisher
	prefix string
	queue  chan events.Event
	now    func() time.Time
	logger *zap.Logger
}

// NewEventSink creates a sink holding at most size pending events.
func NewEventSink(pub Publisher, prefix string, size int, logger *zap.Logger) *EventSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	if size < 1 {
		size = 1
	}
	return &EventSink{
		pub:    pub,
		prefix: prefix,
		queue:  make(chan events.Event, size),
		now:    time.Now,
		logger: logger,
	}
}

// Emit queues an event; it is dropped when the queue is full.
func (s *EventSink) Emit(e events.Event) {
	select {
	case s.queue <- e:
	default:
		metrics.SinkEventsTotal.WithLabelValues("dropped").Inc()
		s.logger.Warn("event sink full, dropping event", zap.String("event", string(e.Name())))
	}
}

// Run publishes queued events until ctx is done.
func (s *EventSink) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-s.queue:
			if err := s.publish(ctx, e); err != nil {
				metrics.SinkEventsTotal.WithLabelValues("failed").Inc()
				s.logger.Warn("publish error", zap.String("event", string(e.Name())), zap.Error(err))
				continue
			}
			metrics.SinkEventsTotal.WithLabelValues("published").Inc()
		}
	}
}

// Topic returns the topic an event is published on.
func (s *EventSink) Topic(n events.Name) string {
	return fmt.Sprintf("%s/%s", s.prefix, n)
}

func (s *EventSink) publish(ctx context.Context, e events.Event) error {
	data, err := json.Marshal(payload{
		Event:     e.Name(),
		Timestamp: s.now().UTC().Format(time.RFC3339),
		Data:      e,
	})
	if err != nil {
		return fmt.Errorf("marshaling payload: %w", err)
	}
	topic := s.Topic(e.Name())
	s.logger.Debug("publishing", zap.String("topic", topic))
	return s.pub.Publish(ctx, topic, data)
}
