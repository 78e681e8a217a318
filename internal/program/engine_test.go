package program

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sixdof/pendant/internal/broadcast"
	"github.com/sixdof/pendant/internal/kinematics"
	"github.com/sixdof/pendant/internal/motorlink"
	"github.com/sixdof/pendant/internal/posestate"
)

type fakeMotion struct {
	failOn map[int]error
	calls  int
}

func (f *fakeMotion) HandleMoveJ(ctx context.Context, target kinematics.JointVector, velocityPct float64) error {
	idx := f.calls
	f.calls++
	if err, ok := f.failOn[idx]; ok {
		return err
	}
	return nil
}

func (f *fakeMotion) HandleMoveL(ctx context.Context, target kinematics.EndEffectorPose, mask [6]bool, velocityPct float64) error {
	idx := f.calls
	f.calls++
	if err, ok := f.failOn[idx]; ok {
		return err
	}
	return nil
}

func testDim() kinematics.Dimensions {
	return kinematics.Dimensions{BaseHeight: 100, Link1: 150, Link2Min: 0, Link2Max: 200, Link3: 150, Link4: 100, EELength: 100}
}

func collectEvents(bus *broadcast.Bus, id string) <-chan broadcast.Event {
	return bus.Register(id)
}

func TestExecuteEmitsEventSequenceForWaitProgram(t *testing.T) {
	dim := testDim()
	state := posestate.New(kinematics.JointVector{}, dim)
	bus := broadcast.New(16, logrus.New())
	ch := collectEvents(bus, "sub")
	defer bus.Unregister("sub")

	eng := New(&fakeMotion{}, state, nil, bus, true, logrus.New())

	prog := Program{ID: "p1", Steps: []Step{
		{Type: StepWait, Seconds: 0.01},
	}}

	if err := eng.Execute(context.Background(), prog); err != nil {
		t.Fatalf("execute: %v", err)
	}

	var statuses []string
	for {
		select {
		case ev := <-ch:
			if ev.Type != broadcast.TypeProgramExecution {
				t.Fatalf("unexpected event type %s", ev.Type)
			}
			statuses = append(statuses, ev.Fields["status"].(string))
		default:
			goto done
		}
	}
done:
	want := []string{"started", "step_started", "step_completed", "completed"}
	if len(statuses) != len(want) {
		t.Fatalf("got %v, want %v", statuses, want)
	}
	for i := range want {
		if statuses[i] != want[i] {
			t.Fatalf("got %v, want %v", statuses, want)
		}
	}
}

func TestExecuteStopsAndReportsFailedStep(t *testing.T) {
	dim := testDim()
	state := posestate.New(kinematics.JointVector{}, dim)
	bus := broadcast.New(16, logrus.New())
	ch := collectEvents(bus, "sub")
	defer bus.Unregister("sub")

	boom := errors.New("boom")
	eng := New(&fakeMotion{failOn: map[int]error{1: boom}}, state, nil, bus, true, logrus.New())

	prog := Program{ID: "p2", Steps: []Step{
		{Type: StepMoveJ, JointPositions: kinematics.JointVector{PrismaticExtension: 50}},
		{Type: StepMoveJ, JointPositions: kinematics.JointVector{PrismaticExtension: 60}},
		{Type: StepWait, Seconds: 0.01},
	}}

	err := eng.Execute(context.Background(), prog)
	if err == nil {
		t.Fatal("expected execute to return an error")
	}

	var statuses []string
	for {
		select {
		case ev := <-ch:
			statuses = append(statuses, ev.Fields["status"].(string))
		default:
			goto done
		}
	}
done:
	want := []string{"started", "step_started", "step_completed", "step_started", "step_failed", "failed"}
	if len(statuses) != len(want) {
		t.Fatalf("got %v, want %v", statuses, want)
	}
	for i := range want {
		if statuses[i] != want[i] {
			t.Fatalf("got %v, want %v", statuses, want)
		}
	}
}

func TestExecuteWaitsOnHardwareCompletionUntilTimeout(t *testing.T) {
	dim := testDim()
	state := posestate.New(kinematics.JointVector{}, dim)
	bus := broadcast.New(16, logrus.New())

	link := motorlink.New(nil, 0, true, logrus.New(), nil)
	eng := &Engine{motion: &fakeMotion{}, state: state, waiter: link, bus: bus, simulationMode: false, log: logrus.New()}

	id, ch := link.RegisterMoveWaiter()
	go func() {
		time.Sleep(5 * time.Millisecond)
		link.UnregisterMoveWaiter(id)
	}()
	_ = ch

	prog := Program{ID: "p3", Steps: []Step{
		{Type: StepMoveJ, JointPositions: kinematics.JointVector{PrismaticExtension: 50}},
	}}

	done := make(chan error, 1)
	go func() { done <- eng.Execute(context.Background(), prog) }()

	select {
	case <-done:
		t.Fatal("execute returned before hardware completion or timeout")
	case <-time.After(50 * time.Millisecond):
	}
}
