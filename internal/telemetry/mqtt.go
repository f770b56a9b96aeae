package telemetry

import (
	"bufio"
	"bytes"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/banshee-data/lifeguard/internal/monitoring"
)

// MQTTOptions configures the MQTT telemetry transport, used when the
// microcontroller publishes over Wi-Fi instead of the serial line.
type MQTTOptions struct {
	Broker   string
	ClientID string
	Username string
	Password string
	Topic    string
	QoS      byte
}

// MQTTSource subscribes to a topic and buffers every line of every payload
// for the polling core.
type MQTTSource struct {
	client mqtt.Client
	topic  string
	lines  chan string
	link   *ChannelLink
	logger *zap.Logger
}

// lineBuffer bounds the lines held between polls.
const lineBuffer = 256

func newMQTTSource(topic string, logger *zap.Logger) *MQTTSource {
	lines := make(chan string, lineBuffer)
	return &MQTTSource{
		topic:  topic,
		lines:  lines,
		link:   NewChannelLink(lines),
		logger: monitoring.OrNop(logger),
	}
}

// DialMQTT connects to the broker and subscribes to opts.Topic.
func DialMQTT(opts MQTTOptions, logger *zap.Logger) (*MQTTSource, error) {
	src := newMQTTSource(opts.Topic, logger)

	co := mqtt.NewClientOptions()
	co.AddBroker(opts.Broker)
	co.SetClientID(opts.ClientID)
	if opts.Username != "" {
		co.SetUsername(opts.Username)
	}
	if opts.Password != "" {
		co.SetPassword(opts.Password)
	}
	co.SetAutoReconnect(true)
	co.SetCleanSession(true)
	co.SetConnectTimeout(10 * time.Second)

	client := mqtt.NewClient(co)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}
	token := client.Subscribe(opts.Topic, opts.QoS, func(_ mqtt.Client, msg mqtt.Message) {
		src.deliver(msg.Payload())
	})
	if token.Wait() && token.Error() != nil {
		client.Disconnect(250)
		return nil, fmt.Errorf("failed to subscribe to topic %s: %w", opts.Topic, token.Error())
	}
	src.client = client
	return src, nil
}

// deliver splits a payload into lines and queues them, dropping lines when
// the buffer is full so the MQTT callback never blocks.
func (s *MQTTSource) deliver(payload []byte) {
	scan := bufio.NewScanner(bytes.NewReader(payload))
	for scan.Scan() {
		line := scan.Text()
		if line == "" {
			continue
		}
		select {
		case s.lines <- line:
		default:
			s.logger.Warn("telemetry buffer full, dropping line", zap.String("line", line))
		}
	}
}

// TryReadLine implements Link.
func (s *MQTTSource) TryReadLine() (string, bool) {
	return s.link.TryReadLine()
}

// Close unsubscribes and disconnects from the broker.
func (s *MQTTSource) Close() error {
	if s.client == nil {
		return nil
	}
	if token := s.client.Unsubscribe(s.topic); token.Wait() && token.Error() != nil {
		s.logger.Warn("failed to unsubscribe", zap.Error(token.Error()))
	}
	s.client.Disconnect(250)
	return nil
}
