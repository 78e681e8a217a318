// Package motorlink implements the line-delimited-JSON request/response
// protocol to the motor-controller microcontroller, with out-of-band
// dispatch of asynchronous move-complete and home-complete notifications.
package motorlink

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sixdof/pendant/internal/telemetry"
)

// Request is a single line written to the motor controller.
type Request struct {
	Cmd       string             `json:"cmd"`
	Positions map[string]float64 `json:"positions,omitempty"`
	Joint     string             `json:"joint,omitempty"`
	Increment float64            `json:"increment,omitempty"`
}

// Response is the synchronous reply to a Request.
type Response struct {
	Status  string
	Message string
}

// Notification is an asynchronous status line (move_done, home_done)
// dispatched out of band from any synchronous request/response.
type Notification struct {
	Status string
	Fields map[string]interface{}
}

// Sink receives every asynchronous notification the link observes,
// regardless of whether a waiter is also registered for it. Satisfied by
// the broadcast bus.
type Sink interface {
	PublishMoveDone(Notification)
}

type lineEvent struct {
	status  string
	message string
	fields  map[string]interface{}
}

// Link serializes access to the serial byte stream and dispatches
// asynchronous notifications to registered waiters and a Sink.
type Link struct {
	mu   sync.Mutex // at-most-one-in-flight request; guarded per spec §4.2/§5
	conn io.ReadWriteCloser
	scn  *bufio.Scanner
	wr   io.Writer

	commandDelay   time.Duration
	simulationMode bool
	log            *logrus.Logger

	sync chan lineEvent

	awaitingHome int32
	homeCh       chan lineEvent

	waitersMu sync.Mutex
	waiters   map[int]chan Notification
	nextID    int

	sink Sink
}

// New wraps an already-open connection (a real serial port, or an
// io.ReadWriteCloser test fixture) in a Link. In simulation mode no
// command ever touches conn; every call succeeds trivially.
func New(conn io.ReadWriteCloser, commandDelay time.Duration, simulationMode bool, log *logrus.Logger, sink Sink) *Link {
	if log == nil {
		log = logrus.New()
	}
	l := &Link{
		conn:           conn,
		commandDelay:   commandDelay,
		simulationMode: simulationMode,
		log:            log,
		sync:           make(chan lineEvent),
		homeCh:         make(chan lineEvent, 1),
		waiters:        make(map[int]chan Notification),
		sink:           sink,
	}
	if conn != nil {
		l.scn = bufio.NewScanner(conn)
		l.wr = conn
		go l.readLoop()
	}
	return l
}

// readLoop continuously scans lines from the serial connection and
// routes them either to the synchronous-response path or to the
// asynchronous notification dispatcher, never holding the request mutex.
func (l *Link) readLoop() {
	for l.scn.Scan() {
		line := l.scn.Bytes()
		var raw map[string]interface{}
		if err := json.Unmarshal(line, &raw); err != nil {
			l.log.WithError(err).Warn("motorlink: malformed line from controller")
			continue
		}
		status, _ := raw["status"].(string)
		message, _ := raw["message"].(string)
		ev := lineEvent{status: status, message: message, fields: raw}

		switch status {
		case "move_done":
			l.dispatchAsync(ev)
		case "home_done":
			if atomic.LoadInt32(&l.awaitingHome) == 1 {
				l.homeCh <- ev
				continue
			}
			l.dispatchAsync(ev)
		case "error":
			if atomic.LoadInt32(&l.awaitingHome) == 1 {
				l.homeCh <- ev
				continue
			}
			l.sync <- ev
		default:
			l.sync <- ev
		}
	}
	if err := l.scn.Err(); err != nil {
		l.log.WithError(err).Warn("motorlink: read loop terminated")
	}
}

func (l *Link) dispatchAsync(ev lineEvent) {
	notif := Notification{Status: ev.status, Fields: ev.fields}
	if l.sink != nil {
		l.sink.PublishMoveDone(notif)
	}
	l.waitersMu.Lock()
	defer l.waitersMu.Unlock()
	for _, ch := range l.waiters {
		select {
		case ch <- notif:
		default:
			l.log.Warn("motorlink: move-complete waiter channel full, dropping notification")
		}
	}
}

// RegisterMoveWaiter returns a channel that receives subsequent move_done
// notifications (and any home_done that SendHome is not awaiting) until
// UnregisterMoveWaiter is called with the returned id. The channel holds
// one pending notification; one arriving while it is full is dropped.
func (l *Link) RegisterMoveWaiter() (id int, ch <-chan Notification) {
	l.waitersMu.Lock()
	defer l.waitersMu.Unlock()
	l.nextID++
	id = l.nextID
	c := make(chan Notification, 1)
	l.waiters[id] = c
	return id, c
}

// UnregisterMoveWaiter removes a previously registered waiter. Always
// call this on exit from the waiting code path, success or failure.
func (l *Link) UnregisterMoveWaiter(id int) {
	l.waitersMu.Lock()
	defer l.waitersMu.Unlock()
	delete(l.waiters, id)
}

// SendCommand acquires the link mutex, writes req as one JSON line,
// waits one command-delay tick, then reads one correlated response line.
// In simulation mode it returns an "ok" response without touching conn.
func (l *Link) SendCommand(req Request) (resp Response, err error) {
	defer func() {
		result := "ok"
		if err != nil {
			result = "error"
		}
		telemetry.GlobalMetrics().MotorLinkCommands.WithLabelValues(req.Cmd, result).Inc()
	}()

	if l.simulationMode {
		return Response{Status: "ok"}, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if werr := l.writeLine(req); werr != nil {
		return Response{}, fmt.Errorf("motorlink: write: %w", werr)
	}

	time.Sleep(l.commandDelay)

	ev, ok := <-l.sync
	if !ok {
		return Response{}, fmt.Errorf("motorlink: link closed while awaiting response")
	}
	resp = Response{Status: ev.status, Message: ev.message}
	if resp.Status == "error" {
		return resp, fmt.Errorf("motorlink: controller reported error: %s", resp.Message)
	}
	if resp.Status != "ok" {
		return resp, fmt.Errorf("motorlink: unrecognized response status %q", resp.Status)
	}
	return resp, nil
}

// SendSetJointPositions issues a setJointPositions command for the six
// joints j1..j6 (base, shoulder, prismatic, elbow, elbow2, end-effector).
func (l *Link) SendSetJointPositions(positions [6]float64) error {
	req := Request{
		Cmd: "setJointPositions",
		Positions: map[string]float64{
			"j1": positions[0],
			"j2": positions[1],
			"j3": positions[2],
			"j4": positions[3],
			"j5": positions[4],
			"j6": positions[5],
		},
	}
	_, err := l.SendCommand(req)
	return err
}

// SendMoveJoint issues a single-joint increment command.
func (l *Link) SendMoveJoint(joint string, increment float64) error {
	_, err := l.SendCommand(Request{Cmd: "moveJoint", Joint: joint, Increment: increment})
	return err
}

// SendEStop issues an estop command. Per spec §9's open-question
// resolution this is best-effort: a disconnected or erroring link is
// logged, not propagated, since emergency stop must appear to succeed
// from the caller's point of view regardless of actuator reachability.
func (l *Link) SendEStop() {
	if l.simulationMode {
		return
	}
	if _, err := l.SendCommand(Request{Cmd: "estop"}); err != nil {
		l.log.WithError(err).Warn("motorlink: estop command did not complete cleanly")
	}
}

// SendHome sends the home command, expects an immediate "ok", then waits
// without a per-line timeout for "home_done" (success) or "error"
// (failure). ctx bounds the overall wait so a caller can still cancel.
func (l *Link) SendHome(ctx context.Context) error {
	if l.simulationMode {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// Set before writing so a home_done that follows the ack at once is
	// routed to homeCh rather than to the move waiters.
	atomic.StoreInt32(&l.awaitingHome, 1)
	defer atomic.StoreInt32(&l.awaitingHome, 0)

	if err := l.writeLine(Request{Cmd: "home"}); err != nil {
		return fmt.Errorf("motorlink: write home: %w", err)
	}

	time.Sleep(l.commandDelay)

	select {
	case ack, ok := <-l.sync:
		if !ok {
			return fmt.Errorf("motorlink: link closed while awaiting home ack")
		}
		if ack.status != "ok" {
			return fmt.Errorf("motorlink: home rejected: %s", ack.status)
		}
	case ev := <-l.homeCh:
		// An error reply to the home command itself is routed here.
		if ev.status == "error" {
			return fmt.Errorf("motorlink: home rejected: %s", ev.message)
		}
		return nil
	}

	for {
		select {
		case ev := <-l.homeCh:
			switch ev.status {
			case "home_done":
				return nil
			case "error":
				return fmt.Errorf("motorlink: home failed: %s", ev.message)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (l *Link) writeLine(req Request) error {
	data, err := json.Marshal(req)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = l.wr.Write(data)
	return err
}

// Close closes the underlying connection.
func (l *Link) Close() error {
	if l.conn == nil {
		return nil
	}
	return l.conn.Close()
}
