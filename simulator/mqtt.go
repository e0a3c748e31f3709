package simulator

import (
	"context"
	"fmt"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// MQTTTransport publishes and subscribes at QoS 1 with a plain Paho client.
type MQTTTransport struct {
	cli paho.Client
}

// DialMQTT connects to broker.
func DialMQTT(broker, clientID string) (*MQTTTransport, error) {
	opts := paho.NewClientOptions().AddBroker(broker).SetClientID(clientID)
	opts.AutoReconnect = true
	cli := paho.NewClient(opts)
	if token := cli.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", broker, token.Error())
	}
	return &MQTTTransport{cli: cli}, nil
}

// Publish sends payload and waits for the broker acknowledgement.
func (t *MQTTTransport) Publish(ctx context.Context, topic string, payload []byte) error {
	token := t.cli.Publish(topic, 1, false, payload)
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe registers fn on topic.
func (t *MQTTTransport) Subscribe(topic string, fn func([]byte)) error {
	token := t.cli.Subscribe(topic, 1, func(_ paho.Client, m paho.Message) {
		fn(m.Payload())
	})
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("mqtt subscribe %s: %w", topic, token.Error())
	}
	return nil
}

// Close disconnects the client.
func (t *MQTTTransport) Close() error {
	t.cli.Disconnect(250)
	return nil
}
