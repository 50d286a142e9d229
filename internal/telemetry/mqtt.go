package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	paho "github.com/eclipse/paho.mqtt.golang"

	"sous_vide/internal/logger"
	"sous_vide/internal/models"
)

const (
	defaultMQTTTopic      = "sousvide/status"
	defaultMQTTRetries    = 5
	mqttPublishTimeout    = 5 * time.Second
	mqttDisconnectQuiesce = 250
)

type MQTTConfig struct {
	Broker     string
	ClientID   string
	Username   string
	Password   string
	Topic      string
	MaxRetries int
}

// publisher is the slice of paho.Client the sink uses.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Disconnect(quiesce uint)
}

// MQTTSink publishes each status as a retained JSON message, so late
// subscribers see the last known state right away.
type MQTTSink struct {
	client publisher
	topic  string
	log    *logger.Logger
}

// DialMQTT connects to the broker, retrying with exponential backoff.
func DialMQTT(cfg MQTTConfig, log *logger.Logger) (*MQTTSink, error) {
	log = logger.OrNop(log)
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMQTTRetries
	}

	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetCleanSession(true).
		SetAutoReconnect(true)

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 10 * time.Second

	var client paho.Client
	err := backoff.Retry(func() error {
		client = paho.NewClient(opts)
		token := client.Connect()
		if token.Wait() && token.Error() != nil {
			log.Warnw("mqtt_connect_failed", "broker", cfg.Broker, "err", token.Error())
			return token.Error()
		}
		return nil
	}, backoff.WithMaxRetries(bo, uint64(cfg.MaxRetries-1)))
	if err != nil {
		return nil, fmt.Errorf("connect mqtt broker %s: %w", cfg.Broker, err)
	}

	log.Infow("mqtt_connected", "broker", cfg.Broker, "topic", cfg.Topic)
	return newMQTTSink(client, cfg.Topic, log), nil
}

func newMQTTSink(client publisher, topic string, log *logger.Logger) *MQTTSink {
	if topic == "" {
		topic = defaultMQTTTopic
	}
	return &MQTTSink{client: client, topic: topic, log: logger.OrNop(log)}
}

func (s *MQTTSink) PublishStatus(ctx context.Context, st models.DeviceStatus) error {
	payload, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode status: %w", err)
	}

	token := s.client.Publish(s.topic, 1, true, payload)
	timeout := mqttPublishTimeout
	if dl, ok := ctx.Deadline(); ok {
		timeout = time.Until(dl)
	}
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("publish status to %s: timeout", s.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish status to %s: %w", s.topic, err)
	}
	s.log.Debugw("mqtt_status_published", "topic", s.topic)
	return nil
}

func (s *MQTTSink) Close() error {
	s.client.Disconnect(mqttDisconnectQuiesce)
	s.log.Infow("mqtt_disconnected", "topic", s.topic)
	return nil
}
