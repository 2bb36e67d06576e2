package events

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type Type string

const (
	Alarm     Type = "alarm"
	Door      Type = "door"
	Telemetry Type = "telemetry"
)

type Event struct {
	ID        string    `json:"id"`
	Type      Type      `json:"type"`
	Value     any       `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher mirrors controller events to an MQTT broker. A nil *Publisher is valid
// and drops everything, so callers never need to check whether MQTT is configured.
type Publisher struct {
	client       mqtt.Client
	prefix       string
	tokenTimeout time.Duration
	now          func() time.Time
}

func Connect(broker, prefix string) (*Publisher, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID("smarthome-" + uuid.NewString()[:8]).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectTimeout(5 * time.Second)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("timed out connecting to mqtt broker %s", broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("failed to connect to mqtt broker %s: %w", broker, err)
	}

	log.Info().Str("broker", broker).Str("prefix", prefix).Msg("MQTT event publisher connected")
	return NewPublisher(client, prefix), nil
}

func NewPublisher(client mqtt.Client, prefix string) *Publisher {
	return &Publisher{
		client:       client,
		prefix:       prefix,
		tokenTimeout: 2 * time.Second,
		now:          time.Now,
	}
}

func (p *Publisher) Topic(t Type) string {
	return p.prefix + "/" + string(t)
}

// Publish sends one event. Failures are logged; a slow broker costs at most the token timeout.
func (p *Publisher) Publish(t Type, value any) {
	if p == nil {
		return
	}

	ev := Event{ID: uuid.NewString(), Type: t, Value: value, Timestamp: p.now().UTC()}
	payload, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Str("type", string(t)).Msg("Failed to marshal event")
		return
	}

	token := p.client.Publish(p.Topic(t), 0, false, payload)
	if !token.WaitTimeout(p.tokenTimeout) {
		log.Warn().Str("topic", p.Topic(t)).Msg("Timed out publishing event")
		return
	}
	if err := token.Error(); err != nil {
		log.Warn().Err(err).Str("topic", p.Topic(t)).Msg("Failed to publish event")
	}
}

func (p *Publisher) Close() {
	if p == nil {
		return
	}
	p.client.Disconnect(250)
	log.Info().Msg("MQTT event publisher disconnected")
}
