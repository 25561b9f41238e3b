package telemetry

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/ystepanoff/nowhub/protocol"
	"github.com/ystepanoff/nowhub/registry"
)

const qos = 1

var (
	ErrPublishTimeout = errors.New("failed to publish due to timeout reached")
	ErrConnectTimeout = errors.New("failed to connect due to timeout reached")
)

// Sink receives the registry entries changed by inbound telemetry.
type Sink interface {
	PublishSensor(s registry.Sensor) error
	PublishActuator(a registry.Actuator) error
}

// NopSink discards everything.
type NopSink struct{}

func (NopSink) PublishSensor(registry.Sensor) error     { return nil }
func (NopSink) PublishActuator(registry.Actuator) error { return nil }

var _ Sink = (*MQTTSink)(nil)

// MQTTSink publishes updates as JSON to <prefix>/<address>/<variable> for
// sensors and <prefix>/<address>/state for actuators. Messages are retained
// so late subscribers see the last value.
type MQTTSink struct {
	client  mqtt.Client
	prefix  string
	timeout time.Duration
}

type sensorPayload struct {
	Address   string `json:"address"`
	Device    string `json:"device"`
	Variable  string `json:"variable"`
	Unit      string `json:"unit"`
	Connected bool   `json:"connected"`
	Value     any    `json:"value"`
}

type actuatorPayload struct {
	Address   string `json:"address"`
	Device    string `json:"device"`
	Connected bool   `json:"connected"`
	State     bool   `json:"state"`
}

// NewMQTTSink connects to the broker at url.
func NewMQTTSink(url, clientID, prefix string, timeout time.Duration) (*MQTTSink, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(url).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(timeout)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(timeout) {
		return nil, ErrConnectTimeout
	}
	if err := token.Error(); err != nil {
		return nil, err
	}
	return NewMQTTSinkWithClient(client, prefix, timeout), nil
}

// NewMQTTSinkWithClient wraps an already configured client.
func NewMQTTSinkWithClient(client mqtt.Client, prefix string, timeout time.Duration) *MQTTSink {
	return &MQTTSink{
		client:  client,
		prefix:  strings.TrimSuffix(prefix, "/"),
		timeout: timeout,
	}
}

func (s *MQTTSink) PublishSensor(sn registry.Sensor) error {
	return s.publish(s.topic(sn.Address, strings.ToLower(sn.Variable)), sensorPayload{
		Address:   sn.Address.String(),
		Device:    sn.DeviceName,
		Variable:  sn.Variable,
		Unit:      sn.Unit,
		Connected: sn.Connected,
		Value:     sn.Value.Interface(),
	})
}

func (s *MQTTSink) PublishActuator(a registry.Actuator) error {
	return s.publish(s.topic(a.Address, "state"), actuatorPayload{
		Address:   a.Address.String(),
		Device:    a.DeviceName,
		Connected: a.Connected,
		State:     a.State,
	})
}

func (s *MQTTSink) Close() error {
	s.client.Disconnect(uint(s.timeout.Milliseconds()))
	return nil
}

func (s *MQTTSink) topic(addr protocol.Address, leaf string) string {
	node := strings.ToLower(strings.ReplaceAll(addr.String(), ":", ""))
	return fmt.Sprintf("%s/%s/%s", s.prefix, node, leaf)
}

func (s *MQTTSink) publish(topic string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	token := s.client.Publish(topic, qos, true, data)
	if !token.WaitTimeout(s.timeout) {
		return ErrPublishTimeout
	}
	return token.Error()
}
