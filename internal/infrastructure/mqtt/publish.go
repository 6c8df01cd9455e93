package mqtt

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Maximum payload size for MQTT messages (1MB).
const maxPayloadSize = 1 << 20

// Event is the envelope of every message on beadle/events/{kind}.
type Event struct {
	Kind      string    `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// Publish sends payload to topic.
//
// Retained messages are kept by the broker for new subscribers; use them
// for status, not for events.
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if err := validatePublish(topic, qos, payload); err != nil {
		return err
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Publish(topic, qos, retained, payload)
	var err error
	switch {
	case !token.WaitTimeout(defaultPublishTimeout):
		err = fmt.Errorf("%w: timeout after %v", ErrPublishFailed, defaultPublishTimeout)
	case token.Error() != nil:
		err = fmt.Errorf("%w: %w", ErrPublishFailed, token.Error())
	}
	c.count(err)
	return err
}

// PublishEvent wraps data in an Event and publishes it, not retained, on
// the event topic for kind with the configured QoS.
func (c *Client) PublishEvent(kind string, data any) error {
	payload, err := buildEventPayload(kind, data, time.Now().UTC())
	if err != nil {
		return err
	}
	return c.Publish(Topics{}.Event(kind), payload, byte(c.cfg.QoS), false)
}

func buildEventPayload(kind string, data any, at time.Time) ([]byte, error) {
	payload, err := json.Marshal(Event{Kind: kind, Timestamp: at, Data: data})
	if err != nil {
		return nil, fmt.Errorf("%w: encoding %s event: %w", ErrPublishFailed, kind, err)
	}
	return payload, nil
}

func validatePublish(topic string, qos byte, payload []byte) error {
	if topic == "" || strings.ContainsAny(topic, "+#") {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
	}
	return nil
}
