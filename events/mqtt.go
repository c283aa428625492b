package events

import (
	"errors"
	"log/slog"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// MQTTOptions configures the MQTT publisher.
type MQTTOptions struct {
	BrokerURL string
	ClientID  string
	Username  string
	Password  string
	TopicBase string
	Timeout   time.Duration
}

// MQTTSink mirrors published events to an MQTT broker under
// <TopicBase>/<topic>. Publishing is fire and forget at QoS 0; playlist state
// is retained so late subscribers see the current queue.
type MQTTSink struct {
	client    paho.Client
	topicBase string
}

// NewMQTTSink connects to the broker.
func NewMQTTSink(opts MQTTOptions) (*MQTTSink, error) {
	if opts.BrokerURL == "" {
		return nil, errors.New("mqtt broker url required")
	}
	if opts.TopicBase == "" {
		opts.TopicBase = "chatdeck"
	}
	if opts.ClientID == "" {
		opts.ClientID = "chatdeck"
	}
	if opts.Timeout == 0 {
		opts.Timeout = 5 * time.Second
	}

	clientOpts := paho.NewClientOptions().AddBroker(opts.BrokerURL)
	clientOpts.SetClientID(opts.ClientID)
	clientOpts.SetConnectTimeout(opts.Timeout)
	clientOpts.SetAutoReconnect(true)
	clientOpts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		slog.Warn("mqtt connection lost", slog.String("component", "events"), slog.Any("err", err))
	})
	if opts.Username != "" {
		clientOpts.SetUsername(opts.Username)
		clientOpts.SetPassword(opts.Password)
	}

	client := paho.NewClient(clientOpts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	slog.Info("mqtt connected", slog.String("component", "events"), slog.String("broker", opts.BrokerURL))
	return newMQTTSink(client, opts.TopicBase), nil
}

func newMQTTSink(client paho.Client, topicBase string) *MQTTSink {
	return &MQTTSink{client: client, topicBase: strings.TrimRight(topicBase, "/")}
}

// Topic maps an event topic to its MQTT topic.
func (s *MQTTSink) Topic(topic string) string { return s.topicBase + "/" + topic }

// Publish implements Sink.
func (s *MQTTSink) Publish(topic string, payload any) {
	raw, ok := encode(topic, payload)
	if !ok {
		return
	}
	retained := topic == TopicPlaylistStateUpdated || topic == TopicConnectionState
	token := s.client.Publish(s.Topic(topic), 0, retained, []byte(raw))
	go func() {
		if token.WaitTimeout(5*time.Second) && token.Error() != nil {
			slog.Warn("mqtt publish failed", slog.String("component", "events"), slog.String("topic", topic), slog.Any("err", token.Error()))
		}
	}()
}

// Close disconnects, allowing in-flight publishes a short grace.
func (s *MQTTSink) Close() {
	s.client.Disconnect(250)
}
