package transport

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/allenshie/integration-core/internal/model"
)

// MQTTConfig parameterizes a paho client connection.
type MQTTConfig struct {
	Host     string
	Port     int
	ClientID string
	QoS      byte
	Retain   bool
}

// NewMQTTClient builds and connects a paho client for cfg.
func NewMQTTClient(cfg MQTTConfig) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.Host, cfg.Port))
	if cfg.ClientID != "" {
		opts.SetClientID(cfg.ClientID)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(5 * time.Second)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("transport: mqtt connect: %w", token.Error())
	}
	return client, nil
}

// MQTTIngestionSubscriber subscribes to a topic and forwards decoded
// events to sink. Each message must hold a single event object, as in the
// HTTP handler's single-event form; a JSON array of events is rejected.
type MQTTIngestionSubscriber struct {
	client mqtt.Client
	topic  string
	qos    byte
	sink   Sink
}

// NewMQTTIngestionSubscriber subscribes client to topic at qos, handing
// each decoded event to sink.
func NewMQTTIngestionSubscriber(client mqtt.Client, topic string, qos byte, sink Sink) (*MQTTIngestionSubscriber, error) {
	s := &MQTTIngestionSubscriber{client: client, topic: topic, qos: qos, sink: sink}
	token := client.Subscribe(topic, qos, s.onMessage)
	if token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("transport: mqtt subscribe %q: %w", topic, token.Error())
	}
	return s, nil
}

func (s *MQTTIngestionSubscriber) onMessage(_ mqtt.Client, msg mqtt.Message) {
	var we wireEvent
	if err := json.Unmarshal(msg.Payload(), &we); err != nil {
		opsf("mqtt ingestion: bad payload on %q: %v", msg.Topic(), err)
		return
	}
	ev, err := we.toModel()
	if err != nil {
		opsf("mqtt ingestion: %v", err)
		return
	}
	s.sink.Accept([]model.Event{ev})
}

// Close unsubscribes and disconnects the underlying client.
func (s *MQTTIngestionSubscriber) Close() {
	token := s.client.Unsubscribe(s.topic)
	token.Wait()
	s.client.Disconnect(250)
}

// PhasePublishMQTT implements phasepub.Publisher by publishing
// {phase, timestamp} JSON to a configured topic.
type PhasePublishMQTT struct {
	Client mqtt.Client
	Topic  string
	QoS    byte
	Retain bool
}

// NewPhasePublishMQTT builds a publisher bound to client/topic.
func NewPhasePublishMQTT(client mqtt.Client, topic string, qos byte, retain bool) *PhasePublishMQTT {
	return &PhasePublishMQTT{Client: client, Topic: topic, QoS: qos, Retain: retain}
}

// Publish implements phasepub.Publisher.
func (p *PhasePublishMQTT) Publish(phaseName string, timestamp time.Time) bool {
	body, err := json.Marshal(phasePublishBody{Phase: phaseName, Timestamp: float64(timestamp.Unix())})
	if err != nil {
		opsf("mqtt phase publish: marshal failed: %v", err)
		return false
	}

	token := p.Client.Publish(p.Topic, p.QoS, p.Retain, body)
	if token.Wait() && token.Error() != nil {
		opsf("mqtt phase publish: %v", token.Error())
		return false
	}
	return true
}
