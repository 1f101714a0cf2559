package publisher

import (
	"context"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// MQTTPublisher wraps a Paho MQTT client.
type MQTTPublisher struct {
	client mqtt.Client
	qos    byte
}

// MQTTOptions configures the MQTT publisher.
type MQTTOptions struct {
	Broker   string
	ClientID string
	QoS      byte
	Logger   *zap.Logger
}

// NewMQTTPublisher creates and connects an MQTT publisher. The connection
// is retried in the background; publishing waits for it within ctx.
func NewMQTTPublisher(ctx context.Context, opts MQTTOptions) (*MQTTPublisher, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clientOpts := mqtt.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetMaxReconnectInterval(60 * time.Second).
		SetOnConnectHandler(func(mqtt.Client) {
			logger.Info("connected to MQTT broker", zap.String("broker", opts.Broker))
		}).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			logger.Warn("MQTT connection lost", zap.String("broker", opts.Broker), zap.Error(err))
		})

	client := mqtt.NewClient(clientOpts)
	if err := wait(ctx, client.Connect()); err != nil {
		return nil, fmt.Errorf("connecting to MQTT broker %s: %w", opts.Broker, err)
	}

	return &MQTTPublisher{
		client: client,
		qos:    opts.QoS,
	}, nil
}

func (p *MQTTPublisher) Publish(ctx context.Context, topic string, payload []byte) error {
	return wait(ctx, p.client.Publish(topic, p.qos, false, payload))
}

func (p *MQTTPublisher) Close() error {
	p.client.Disconnect(1000)
	return nil
}

// wait blocks until the token completes or ctx is done.
func wait(ctx context.Context, token mqtt.Token) error {
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}
