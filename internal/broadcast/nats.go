package broadcast

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
)

// NATSSink republishes every bus event to a NATS subject so a separate
// process (a logging sidecar, a mirrored pendant instance) can observe
// pose and execution events without holding an in-process Subscriber.
type NATSSink struct {
	conn    *nats.Conn
	subject string
}

// NewNATSSink connects to url and returns a sink publishing to subject.
func NewNATSSink(url, subject string) (*NATSSink, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("broadcast: connect nats %s: %w", url, err)
	}
	return &NATSSink{conn: conn, subject: subject}, nil
}

// Publish implements EventSink.
func (s *NATSSink) Publish(e Event) {
	data, err := json.Marshal(e)
	if err != nil {
		return
	}
	// Best-effort: a NATS publish failure must not stall or fail the
	// motion core's broadcast.
	_ = s.conn.Publish(s.subject, data)
}

// Close drains and closes the NATS connection.
func (s *NATSSink) Close() {
	s.conn.Close()
}
