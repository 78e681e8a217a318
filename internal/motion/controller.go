// Package motion implements the motion controller: jog start/stop/
// velocity/increment, moveJ, moveL, home, emergency-stop, and the jog
// loop task that owns continuous jogging.
package motion

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/sixdof/pendant/internal/broadcast"
	"github.com/sixdof/pendant/internal/config"
	"github.com/sixdof/pendant/internal/kinematics"
	"github.com/sixdof/pendant/internal/motorlink"
	"github.com/sixdof/pendant/internal/posestate"
)

// Controller owns the pose state, the serial link to the motor
// controller, and the jog loop task. All exported methods are safe to
// call concurrently; they serialize through the underlying
// posestate.Serializer and the jog loop's own lifecycle mutex.
type Controller struct {
	cfg    config.Config
	state  *posestate.Serializer
	link   *motorlink.Link
	bus    Bus
	log    *logrus.Logger
	tracer trace.Tracer

	jog *jogLoop
}

// Bus is the narrow publish surface the motion controller needs from the
// broadcast bus.
type Bus interface {
	Publish(broadcast.Event)
}

// New builds a Controller over an already-constructed pose state,
// motor link, and broadcast bus.
func New(cfg config.Config, state *posestate.Serializer, link *motorlink.Link, bus Bus, log *logrus.Logger, tracer trace.Tracer) *Controller {
	if log == nil {
		log = logrus.New()
	}
	c := &Controller{cfg: cfg, state: state, link: link, bus: bus, log: log, tracer: tracer}
	c.jog = newJogLoop(c)
	return c
}

func (c *Controller) dim() kinematics.Dimensions { return c.cfg.Dimensions }

// Close stops the jog loop, if running, and waits for it to exit.
func (c *Controller) Close() {
	c.jog.stop()
}

// jogLoopRunning reports whether the jog loop goroutine is alive, for
// tests asserting idempotent start/stop behavior.
func (c *Controller) jogLoopRunning() bool {
	c.jog.mu.Lock()
	defer c.jog.mu.Unlock()
	return c.jog.running
}

// startSpan starts a trace span for a motion handler, recording the
// given attributes; callers must call the returned end func.
func (c *Controller) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func(err error)) {
	if c.tracer == nil {
		return ctx, func(error) {}
	}
	ctx, span := c.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
		}
		span.End()
	}
}

func maxJointVelocity(cfg config.Config, j kinematics.Joint) float64 {
	return cfg.MaxJointVelocity[j]
}

func maxAxisVelocity(cfg config.Config, a kinematics.Axis) float64 {
	return cfg.MaxCartesianVelocity[a]
}

// HandleJogStart validates mode/target, computes target_velocity from
// the configured max for that axis, marks JogState active, and spawns
// the jog loop if it is not already running. A second call while active
// does not spawn a second loop (idempotent start).
func (c *Controller) HandleJogStart(ctx context.Context, mode posestate.JogMode, target string, direction int, velocityPct float64) error {
	ctx, end := c.startSpan(ctx, "motion.jog_start", attribute.String("mode", mode.String()), attribute.String("target", target))
	defer func() { end(nil) }()
	_ = ctx

	if mode != posestate.JogJoint && mode != posestate.JogCartesian {
		return fmt.Errorf("%w: %v", ErrUnknownMode, mode)
	}
	if velocityPct < 1 || velocityPct > 100 {
		return fmt.Errorf("%w: %v", ErrVelocityRange, velocityPct)
	}

	var joint kinematics.Joint
	var axis kinematics.Axis
	var maxVel float64

	if mode == posestate.JogJoint {
		j, ok := kinematics.JointFromName(target)
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownTarget, target)
		}
		joint = j
		maxVel = maxJointVelocity(c.cfg, j)
	} else {
		a, ok := kinematics.AxisFromName(target)
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownTarget, target)
		}
		axis = a
		maxVel = maxAxisVelocity(c.cfg, a)
	}

	now := time.Now()
	c.state.Do(func(st *posestate.State) {
		st.Jog.Active = true
		st.Jog.Mode = mode
		st.Jog.Joint = joint
		st.Jog.Axis = axis
		st.Jog.Direction = direction
		st.Jog.VelocityPct = velocityPct
		st.Jog.TargetVelocity = float64(direction) * (velocityPct / 100) * maxVel
		st.Jog.LastUpdateTime = now
	})

	c.jog.ensureRunning()
	c.log.WithFields(logrus.Fields{"mode": mode.String(), "target": target, "direction": direction}).Info("jog started")
	return nil
}

// HandleJogVelocity clamps velocityPct to [1,100] and recomputes
// target_velocity in place. No effect if jogging is not active.
func (c *Controller) HandleJogVelocity(velocityPct float64) error {
	if velocityPct < 1 {
		velocityPct = 1
	}
	if velocityPct > 100 {
		velocityPct = 100
	}

	c.state.Do(func(st *posestate.State) {
		if !st.Jog.Active {
			return
		}
		var maxVel float64
		if st.Jog.Mode == posestate.JogJoint {
			maxVel = maxJointVelocity(c.cfg, st.Jog.Joint)
		} else {
			maxVel = maxAxisVelocity(c.cfg, st.Jog.Axis)
		}
		st.Jog.VelocityPct = velocityPct
		st.Jog.TargetVelocity = float64(st.Jog.Direction) * (velocityPct / 100) * maxVel
	})
	return nil
}

// HandleJogStop sets JogState inactive and emits a jog_stop event. The
// jog loop observes the inactive flag within one update_interval and
// exits on its own.
func (c *Controller) HandleJogStop() {
	c.state.Do(func(st *posestate.State) {
		st.Jog.Active = false
		st.Jog.Direction = 0
		st.Jog.TargetVelocity = 0
	})
	c.bus.Publish(broadcast.JogStop(time.Now()))
	c.log.Info("jog stopped")
}

// HandleJogIncrement applies a single discrete step: snaps increment to
// the closest configured standard increment, applies it to the joint or
// axis, issues one setJointPositions (unless in simulation), and
// broadcasts. Per spec §9's open question this does not synchronize
// with move_done; it is fire-and-forget like continuous jog.
func (c *Controller) HandleJogIncrement(mode posestate.JogMode, target string, direction int, increment float64) error {
	if mode != posestate.JogJoint && mode != posestate.JogCartesian {
		return fmt.Errorf("%w: %v", ErrUnknownMode, mode)
	}

	var snapped float64
	if mode == posestate.JogJoint {
		snapped = config.StandardIncrement(c.cfg.JointJogIncrements, increment)
	} else {
		snapped = config.StandardIncrement(c.cfg.CartesianJogIncrements, increment)
	}
	delta := float64(direction) * snapped

	var joints kinematics.JointVector
	var pose kinematics.EndEffectorPose
	var applyErr error
	var dropped bool

	c.state.Do(func(st *posestate.State) {
		if mode == posestate.JogJoint {
			j, ok := kinematics.JointFromName(target)
			if !ok {
				applyErr = fmt.Errorf("%w: %s", ErrUnknownTarget, target)
				return
			}
			v := st.Joints.Get(j) + delta
			st.Joints.Set(j, c.cfg.JointLimits[j].Clamp(v))
			st.Pose = kinematics.FK(st.Joints, c.dim())
		} else {
			a, ok := kinematics.AxisFromName(target)
			if !ok {
				applyErr = fmt.Errorf("%w: %s", ErrUnknownTarget, target)
				return
			}
			candidate := st.Pose
			v := candidate.Get(a) + delta
			candidate.Set(a, c.cfg.WorkspaceLimits[a].Clamp(v))

			solved, err := kinematics.DIK(st.Joints, candidate, c.dim(), c.cfg.JointLimits)
			if err != nil {
				// DIK failure on an increment drops the tick silently,
				// matching continuous-jog's kinematic-infeasibility rule.
				dropped = true
				return
			}
			st.Joints = solved
			st.Pose = kinematics.FK(st.Joints, c.dim())
		}
		joints = st.Joints
		pose = st.Pose
	})
	if applyErr != nil {
		return applyErr
	}
	if dropped {
		return nil
	}

	if !c.cfg.SimulationMode {
		if err := c.link.SendSetJointPositions(joints.Array()); err != nil {
			c.log.WithError(err).Warn("motion: setJointPositions failed after jog increment")
		}
	}
	c.bus.Publish(broadcast.PositionUpdate(joints, pose, time.Now()))
	return nil
}

// HandleMoveJ validates every joint against its limit, replaces the
// JointVector wholesale, recomputes the pose by FK, issues
// setJointPositions, and broadcasts. Fails without side effects if
// validation fails. Field presence is not checked: a JointVector always
// carries all six fields, so a joint the caller left out arrives as zero
// and is moved there.
func (c *Controller) HandleMoveJ(ctx context.Context, target kinematics.JointVector, velocityPct float64) error {
	ctx, end := c.startSpan(ctx, "motion.move_j")
	var retErr error
	defer func() { end(retErr) }()
	_ = ctx

	if j, ok := c.cfg.JointLimits.Validate(target); !ok {
		retErr = fmt.Errorf("%w: %s", kinematics.ErrJointLimitExceeded, j)
		return retErr
	}

	pose := kinematics.FK(target, c.dim())

	c.state.Do(func(st *posestate.State) {
		st.Joints = target
		st.Pose = pose
	})

	if !c.cfg.SimulationMode {
		if err := c.link.SendSetJointPositions(target.Array()); err != nil {
			retErr = fmt.Errorf("motion: setJointPositions: %w", err)
			return retErr
		}
	}

	c.bus.Publish(broadcast.PositionUpdate(target, pose, time.Now()))
	return nil
}

// HandleMoveL merges the provided axes with the current pose, validates
// against the workspace box, runs analytic IK, validates joint limits,
// updates state, issues setJointPositions, and broadcasts. Fails without
// side effects if any validation step fails.
func (c *Controller) HandleMoveL(ctx context.Context, partial kinematics.EndEffectorPose, mask [6]bool, velocityPct float64) error {
	ctx, end := c.startSpan(ctx, "motion.move_l")
	var retErr error
	defer func() { end(retErr) }()
	_ = ctx

	current := c.state.Snapshot().Pose
	target := mergePose(current, partial, mask)

	if a, ok := c.cfg.WorkspaceLimits.Validate(target); !ok {
		retErr = fmt.Errorf("%w: %s", ErrWorkspaceLimit, a)
		return retErr
	}

	joints, err := kinematics.IK(target, c.dim(), c.cfg.JointLimits)
	if err != nil {
		retErr = err
		return retErr
	}

	pose := kinematics.FK(joints, c.dim())

	c.state.Do(func(st *posestate.State) {
		st.Joints = joints
		st.Pose = pose
	})

	if !c.cfg.SimulationMode {
		if err := c.link.SendSetJointPositions(joints.Array()); err != nil {
			retErr = fmt.Errorf("motion: setJointPositions: %w", err)
			return retErr
		}
	}

	c.bus.Publish(broadcast.PositionUpdate(joints, pose, time.Now()))
	return nil
}

func mergePose(current, partial kinematics.EndEffectorPose, mask [6]bool) kinematics.EndEffectorPose {
	out := current
	partialArr := partial.Array()
	for i, set := range mask {
		if set {
			out.Set(kinematics.Axis(i), partialArr[i])
		}
	}
	return out
}

// HandleHome delegates to the motor link's home sequence; on success,
// resets JointVector to the configured home pose, recomputes the pose,
// and broadcasts.
func (c *Controller) HandleHome(ctx context.Context) error {
	ctx, end := c.startSpan(ctx, "motion.home")
	var retErr error
	defer func() { end(retErr) }()

	if err := c.link.SendHome(ctx); err != nil {
		retErr = fmt.Errorf("motion: home: %w", err)
		return retErr
	}

	home := c.cfg.HomePose
	pose := kinematics.FK(home, c.dim())

	c.state.Do(func(st *posestate.State) {
		st.Joints = home
		st.Pose = pose
	})

	c.bus.Publish(broadcast.PositionUpdate(home, pose, time.Now()))
	return nil
}

// HandleEmergencyStop atomically marks jogging inactive, issues a
// best-effort estop to the motor link, and broadcasts an
// emergency_stop event. Takes effect regardless of any in-flight
// operation; does not wait for the controller to acknowledge.
func (c *Controller) HandleEmergencyStop() {
	c.state.Do(func(st *posestate.State) {
		st.Jog.Active = false
		st.Jog.Direction = 0
		st.Jog.TargetVelocity = 0
	})

	c.link.SendEStop()

	c.bus.Publish(broadcast.EmergencyStop(time.Now()))
	c.log.Warn("emergency stop")
}
