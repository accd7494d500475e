package audit

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
)

// NatsSink publishes each event as JSON on a subject.
type NatsSink struct {
	natsConnection *nats.Conn
	subject        string
}

// NewNatsSink creates a sink publishing on subject.
func NewNatsSink(natsConnection *nats.Conn, subject string) *NatsSink {
	return &NatsSink{
		natsConnection: natsConnection,
		subject:        subject,
	}
}

// Publish marshals and publishes event.
func (s *NatsSink) Publish(event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal audit event: %w", err)
	}

	err = s.natsConnection.Publish(s.subject, data)
	if err != nil {
		return fmt.Errorf("failed to publish audit event to %s: %w", s.subject, err)
	}

	return nil
}
