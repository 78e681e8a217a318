// Package broadcast fans pose and execution events out to connected
// observers: a bounded per-subscriber queue with a stalled subscriber
// dropped rather than allowed to stall the motion core.
package broadcast

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sixdof/pendant/internal/kinematics"
	"github.com/sixdof/pendant/internal/motorlink"
	"github.com/sixdof/pendant/internal/telemetry"
)

// Event types on the wire, matching §6's event surface.
const (
	TypePositionUpdate   = "position_update"
	TypeJogStop          = "jog_stop"
	TypeEmergencyStop    = "emergency_stop"
	TypeMoveDone         = "move_done"
	TypeProgramExecution = "program_execution"
)

// Event is the JSON-shaped object pushed to every observer.
type Event struct {
	Type      string                 `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// PositionUpdate builds the event emitted after every successful pose
// mutation.
func PositionUpdate(joints kinematics.JointVector, pose kinematics.EndEffectorPose, ts time.Time) Event {
	return Event{
		Type:      TypePositionUpdate,
		Timestamp: ts,
		Fields: map[string]interface{}{
			"joint_positions": joints,
			"ee_position":     pose,
		},
	}
}

// JogStop builds the event emitted when a jog is stopped.
func JogStop(ts time.Time) Event {
	return Event{Type: TypeJogStop, Timestamp: ts}
}

// EmergencyStop builds the event emitted on an emergency stop.
func EmergencyStop(ts time.Time) Event {
	return Event{Type: TypeEmergencyStop, Timestamp: ts}
}

// ProgramExecution builds a program-execution lifecycle event.
func ProgramExecution(status string, programID string, extra map[string]interface{}) Event {
	fields := map[string]interface{}{"status": status, "program_id": programID}
	for k, v := range extra {
		fields[k] = v
	}
	return Event{Type: TypeProgramExecution, Timestamp: time.Now(), Fields: fields}
}

// EventSink receives every published event, in addition to the
// channel-subscriber fan-out. Used for out-of-process mirrors like the
// NATS sink.
type EventSink interface {
	Publish(Event)
}

// Bus is a subscription set of observers. Delivery is best-effort and
// per-observer; a subscriber whose queue is full is dropped rather than
// allowed to block the publisher, matching the teacher's WebSocket hub.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]chan Event
	queueSize   int
	log         *logrus.Logger

	sinksMu sync.RWMutex
	sinks   []EventSink

	onDrop func(id string)
}

// New creates a Bus whose subscriber queues hold queueSize pending
// events before the subscriber is dropped.
func New(queueSize int, log *logrus.Logger) *Bus {
	if log == nil {
		log = logrus.New()
	}
	if queueSize <= 0 {
		queueSize = 32
	}
	return &Bus{
		subscribers: make(map[string]chan Event),
		queueSize:   queueSize,
		log:         log,
	}
}

// OnDrop installs a callback invoked whenever a subscriber is dropped for
// stalling, useful for telemetry.
func (b *Bus) OnDrop(fn func(id string)) {
	b.onDrop = fn
}

// Register adds a new subscriber and returns its event channel. The
// caller must eventually call Unregister.
func (b *Bus) Register(id string) <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan Event, b.queueSize)
	b.subscribers[id] = ch
	telemetry.GlobalMetrics().BroadcastQueueDepth.Set(float64(len(b.subscribers)))
	return ch
}

// Unregister removes a subscriber and closes its channel.
func (b *Bus) Unregister(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subscribers[id]; ok {
		close(ch)
		delete(b.subscribers, id)
		telemetry.GlobalMetrics().BroadcastQueueDepth.Set(float64(len(b.subscribers)))
	}
}

// AddSink registers an additional fan-out destination, e.g. a NATS
// mirror, alongside the in-process channel subscribers.
func (b *Bus) AddSink(sink EventSink) {
	b.sinksMu.Lock()
	defer b.sinksMu.Unlock()
	b.sinks = append(b.sinks, sink)
}

// Publish delivers e to every subscriber and sink. Order within a single
// subscriber matches the order Publish is called. A subscriber whose
// queue is already full is dropped rather than allowed to stall this
// call.
func (b *Bus) Publish(e Event) {
	b.mu.Lock()
	for id, ch := range b.subscribers {
		select {
		case ch <- e:
		default:
			close(ch)
			delete(b.subscribers, id)
			telemetry.GlobalMetrics().BroadcastDropped.Inc()
			b.log.WithField("subscriber", id).Warn("broadcast: dropped stalled subscriber")
			if b.onDrop != nil {
				b.onDrop(id)
			}
		}
	}
	telemetry.GlobalMetrics().BroadcastQueueDepth.Set(float64(len(b.subscribers)))
	b.mu.Unlock()

	b.sinksMu.RLock()
	defer b.sinksMu.RUnlock()
	for _, sink := range b.sinks {
		sink.Publish(e)
	}
}

// PublishMoveDone adapts a motorlink.Notification into an Event, so Bus
// satisfies motorlink.Sink and every out-of-band move/home completion is
// also visible on the broadcast bus.
func (b *Bus) PublishMoveDone(n motorlink.Notification) {
	fields := map[string]interface{}{"status": n.Status}
	for k, v := range n.Fields {
		fields[k] = v
	}
	b.Publish(Event{Type: TypeMoveDone, Timestamp: time.Now(), Fields: fields})
}
