package host

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"backend-routerecorder/internal/tracking"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

const qosAtLeastOnce = 1

type mqttClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
	Unsubscribe(topics ...string) mqtt.Token
}

// MQTT hosts the task on a broker. Registering publishes the sampling
// config (retained) for the device and subscribes to the device's fix
// topic; each message is one task invocation.
type MQTT struct {
	client mqttClient
	prefix string
	log    zerolog.Logger

	mu         sync.Mutex
	registered map[string]struct{}
}

func NewMQTT(client mqttClient, prefix string, logger zerolog.Logger) *MQTT {
	return &MQTT{
		client:     client,
		prefix:     prefix,
		log:        logger.With().Str("component", "host").Str("host", "mqtt").Logger(),
		registered: map[string]struct{}{},
	}
}

func (m *MQTT) ConfigTopic(name string) string {
	return m.prefix + "/" + name + "/config"
}

func (m *MQTT) FixesTopic(name string) string {
	return m.prefix + "/" + name + "/fixes"
}

func (m *MQTT) Register(_ context.Context, name string, cfg tracking.SamplingConfig, handler tracking.Handler) error {
	payload, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode sampling config: %w", err)
	}
	if err := wait(m.client.Publish(m.ConfigTopic(name), qosAtLeastOnce, true, payload)); err != nil {
		return fmt.Errorf("publish sampling config: %w", err)
	}
	if err := wait(m.client.Subscribe(m.FixesTopic(name), qosAtLeastOnce, m.onMessage(handler))); err != nil {
		if clearErr := m.clearConfig(name); clearErr != nil {
			m.log.Warn().Err(clearErr).Str("topic", m.ConfigTopic(name)).Msg("failed to clear sampling config")
		}
		return fmt.Errorf("subscribe %s: %w", m.FixesTopic(name), err)
	}

	m.mu.Lock()
	m.registered[name] = struct{}{}
	m.mu.Unlock()
	m.log.Info().Str("topic", m.FixesTopic(name)).Msg("task subscribed")
	return nil
}

func (m *MQTT) Unregister(_ context.Context, name string) error {
	m.mu.Lock()
	_, ok := m.registered[name]
	delete(m.registered, name)
	m.mu.Unlock()
	if !ok {
		return tracking.ErrTaskNotRegistered
	}

	if err := wait(m.client.Unsubscribe(m.FixesTopic(name))); err != nil {
		return fmt.Errorf("unsubscribe %s: %w", m.FixesTopic(name), err)
	}
	if err := m.clearConfig(name); err != nil {
		return fmt.Errorf("clear sampling config: %w", err)
	}
	return nil
}

// clearConfig publishes an empty retained message so late-joining devices
// see no config.
func (m *MQTT) clearConfig(name string) error {
	return wait(m.client.Publish(m.ConfigTopic(name), qosAtLeastOnce, true, []byte{}))
}

func (m *MQTT) onMessage(handler tracking.Handler) mqtt.MessageHandler {
	return func(_ mqtt.Client, msg mqtt.Message) {
		var event tracking.TaskEvent
		if err := json.Unmarshal(msg.Payload(), &event); err != nil {
			m.log.Warn().Err(err).Str("topic", msg.Topic()).Msg("invalid task event")
			return
		}
		handler(context.Background(), event)
	}
}

func wait(token mqtt.Token) error {
	token.Wait()
	return token.Error()
}
