package program

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sixdof/pendant/internal/broadcast"
	"github.com/sixdof/pendant/internal/kinematics"
	"github.com/sixdof/pendant/internal/motorlink"
	"github.com/sixdof/pendant/internal/posestate"
	"github.com/sixdof/pendant/internal/telemetry"
)

// completionTimeout bounds how long Execute waits for a move-complete
// notification from real hardware before failing the step.
const completionTimeout = 60 * time.Second

// maxSyntheticDelay caps the simulated duration of a step so a test
// program never stalls a run for longer than this regardless of the
// computed distance.
const maxSyntheticDelay = 5 * time.Second

// MotionHandlers is the subset of the motion controller the engine
// drives steps through.
type MotionHandlers interface {
	HandleMoveJ(ctx context.Context, target kinematics.JointVector, velocityPct float64) error
	HandleMoveL(ctx context.Context, target kinematics.EndEffectorPose, mask [6]bool, velocityPct float64) error
}

// Bus is the narrow publish surface the engine needs from the
// broadcast bus.
type Bus interface {
	Publish(broadcast.Event)
}

// MoveWaiter is the subset of the motor link the engine needs to learn
// when an in-flight move completes.
type MoveWaiter interface {
	RegisterMoveWaiter() (id int, ch <-chan motorlink.Notification)
	UnregisterMoveWaiter(id int)
}

// Engine executes Programs against a motion controller, publishing
// lifecycle events as it goes.
type Engine struct {
	motion         MotionHandlers
	state          *posestate.Serializer
	waiter         MoveWaiter
	bus            Bus
	simulationMode bool
	log            *logrus.Logger
}

// New builds an Engine. waiter may be nil only when simulationMode is
// true, since hardware completion signals are never awaited in
// simulation.
func New(motion MotionHandlers, state *posestate.Serializer, waiter MoveWaiter, bus Bus, simulationMode bool, log *logrus.Logger) *Engine {
	if log == nil {
		log = logrus.New()
	}
	return &Engine{motion: motion, state: state, waiter: waiter, bus: bus, simulationMode: simulationMode, log: log}
}

// Execute runs every step of p in order, publishing step_started before
// each dispatch and step_completed/step_failed after. On the first step
// failure it publishes program_execution{status:failed} and stops; on
// full success it publishes program_execution{status:completed}.
func (e *Engine) Execute(ctx context.Context, p Program) error {
	ec := newExecutionContext(p.ID)
	defer ec.finish()

	e.bus.Publish(broadcast.ProgramExecution("started", p.ID, nil))

	for i, step := range p.Steps {
		ec.StepIndex = i
		e.bus.Publish(broadcast.ProgramExecution("step_started", p.ID, map[string]interface{}{
			"index": i,
			"type":  string(step.Type),
		}))

		err := e.dispatch(ctx, step)

		if err != nil {
			telemetry.GlobalMetrics().ProgramSteps.WithLabelValues(string(step.Type), "failed").Inc()
			e.bus.Publish(broadcast.ProgramExecution("step_failed", p.ID, map[string]interface{}{
				"index": i,
				"type":  string(step.Type),
				"error": err.Error(),
			}))
			e.bus.Publish(broadcast.ProgramExecution("failed", p.ID, map[string]interface{}{
				"failed_step": i,
			}))
			return fmt.Errorf("program: step %d (%s): %w", i, step.Type, err)
		}

		telemetry.GlobalMetrics().ProgramSteps.WithLabelValues(string(step.Type), "completed").Inc()
		e.bus.Publish(broadcast.ProgramExecution("step_completed", p.ID, map[string]interface{}{
			"index": i,
			"type":  string(step.Type),
		}))
	}

	e.bus.Publish(broadcast.ProgramExecution("completed", p.ID, nil))
	return nil
}

func (e *Engine) dispatch(ctx context.Context, step Step) error {
	switch step.Type {
	case StepWait:
		return e.dispatchWait(ctx, step)
	case StepIO:
		// Digital I/O is reserved on the current hardware surface;
		// treated as a no-op success until a pin protocol exists.
		return nil
	case StepMoveJ:
		return e.dispatchMoveJ(ctx, step)
	case StepMoveL:
		return e.dispatchMoveL(ctx, step)
	default:
		return fmt.Errorf("program: unknown step type %q", step.Type)
	}
}

func (e *Engine) dispatchWait(ctx context.Context, step Step) error {
	d := time.Duration(step.Seconds * float64(time.Second))
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) dispatchMoveJ(ctx context.Context, step Step) error {
	before := e.state.Snapshot().Joints

	var waiterID int
	var waitCh <-chan motorlink.Notification
	if !e.simulationMode {
		waiterID, waitCh = e.waiter.RegisterMoveWaiter()
		defer e.waiter.UnregisterMoveWaiter(waiterID)
	}

	if err := e.motion.HandleMoveJ(ctx, step.JointPositions, step.VelocityPct); err != nil {
		return err
	}

	if e.simulationMode {
		return e.sleepSynthetic(ctx, syntheticMoveJDelay(before, step.JointPositions))
	}
	return e.awaitCompletion(ctx, waitCh)
}

func (e *Engine) dispatchMoveL(ctx context.Context, step Step) error {
	before := e.state.Snapshot().Pose

	var waiterID int
	var waitCh <-chan motorlink.Notification
	if !e.simulationMode {
		waiterID, waitCh = e.waiter.RegisterMoveWaiter()
		defer e.waiter.UnregisterMoveWaiter(waiterID)
	}

	if err := e.motion.HandleMoveL(ctx, step.Position, step.PositionMask, step.VelocityPct); err != nil {
		return err
	}

	if e.simulationMode {
		after := e.state.Snapshot().Pose
		return e.sleepSynthetic(ctx, syntheticMoveLDelay(before, after))
	}
	return e.awaitCompletion(ctx, waitCh)
}

func (e *Engine) awaitCompletion(ctx context.Context, waitCh <-chan motorlink.Notification) error {
	timer := time.NewTimer(completionTimeout)
	defer timer.Stop()
	select {
	case <-waitCh:
		return nil
	case <-timer.C:
		return fmt.Errorf("program: move completion timed out after %s", completionTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) sleepSynthetic(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// syntheticMoveJDelay approximates how long a real moveJ would take in
// simulation: 1/30th of a second per degree/mm of the largest single
// joint delta, floored at half a second and capped at maxSyntheticDelay.
func syntheticMoveJDelay(before, after kinematics.JointVector) time.Duration {
	beforeArr := before.Array()
	afterArr := after.Array()
	maxDelta := 0.0
	for i := range beforeArr {
		if d := math.Abs(afterArr[i] - beforeArr[i]); d > maxDelta {
			maxDelta = d
		}
	}
	seconds := math.Max(0.5, maxDelta/30)
	return capSeconds(seconds)
}

// syntheticMoveLDelay approximates how long a real moveL would take:
// the straight-line xyz distance over 100mm/s, floored at half a
// second and capped at maxSyntheticDelay.
func syntheticMoveLDelay(before, after kinematics.EndEffectorPose) time.Duration {
	dx := after.X - before.X
	dy := after.Y - before.Y
	dz := after.Z - before.Z
	dist := math.Sqrt(dx*dx + dy*dy + dz*dz)
	seconds := math.Max(0.5, dist/100)
	return capSeconds(seconds)
}

func capSeconds(seconds float64) time.Duration {
	d := time.Duration(seconds * float64(time.Second))
	if d > maxSyntheticDelay {
		return maxSyntheticDelay
	}
	return d
}
