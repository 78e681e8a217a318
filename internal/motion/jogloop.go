package motion

import (
	"context"
	"sync"
	"time"

	"github.com/sixdof/pendant/internal/broadcast"
	"github.com/sixdof/pendant/internal/kinematics"
	"github.com/sixdof/pendant/internal/posestate"
	"github.com/sixdof/pendant/internal/telemetry"
)

// jogLoop is the single long-lived continuous-jog task. Starting a jog
// while one is already running does not spawn a second goroutine;
// ensureRunning is idempotent, mirroring the teacher's single polling
// loop rather than one task per request.
type jogLoop struct {
	ctrl *Controller

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func newJogLoop(c *Controller) *jogLoop {
	return &jogLoop{ctrl: c}
}

// ensureRunning starts the loop goroutine if it is not already running.
func (j *jogLoop) ensureRunning() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.running {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	j.cancel = cancel
	j.done = make(chan struct{})
	j.running = true
	go j.run(ctx, j.done)
}

// stop cancels the loop goroutine and waits for it to exit. Used by
// tests and by Controller.Close to tear down cleanly.
func (j *jogLoop) stop() {
	j.mu.Lock()
	cancel := j.cancel
	done := j.done
	j.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// run executes one tick every update_interval until the jog state goes
// inactive or the context is cancelled. Clears JogState.Active on every
// exit path so a crashed or cancelled loop never leaves the state
// claiming an active jog.
func (j *jogLoop) run(ctx context.Context, done chan struct{}) {
	c := j.ctrl
	interval := c.cfg.UpdateInterval
	if interval <= 0 {
		interval = 50 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	defer close(done)
	defer func() {
		j.mu.Lock()
		j.running = false
		j.mu.Unlock()
	}()
	defer func() {
		c.state.Do(func(st *posestate.State) {
			st.Jog.Active = false
		})
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			active := c.tick()
			if !active {
				return
			}
		}
	}
}

// tick runs one jog-loop iteration and reports whether jogging is still
// active. A tick whose delta is below 1e-3 (mm or degrees) is skipped
// entirely, matching the spec's minimum-delta threshold.
func (c *Controller) tick() bool {
	now := time.Now()
	metrics := telemetry.GlobalMetrics()
	defer func() {
		metrics.JogTickLatency.Observe(time.Since(now).Seconds())
		metrics.JogTicksTotal.Inc()
	}()

	var (
		active          bool
		mode            posestate.JogMode
		joint           kinematics.Joint
		axis            kinematics.Axis
		delta           float64
		joints          kinematics.JointVector
		pose            kinematics.EndEffectorPose
		shouldBroadcast bool
	)

	c.state.Do(func(st *posestate.State) {
		if !st.Jog.Active {
			active = false
			return
		}
		active = true
		mode = st.Jog.Mode
		joint = st.Jog.Joint
		axis = st.Jog.Axis

		dt := now.Sub(st.Jog.LastUpdateTime).Seconds()
		st.Jog.LastUpdateTime = now
		delta = st.Jog.TargetVelocity * dt

		if absF(delta) < 1e-3 {
			return
		}

		switch mode {
		case posestate.JogJoint:
			v := st.Joints.Get(joint) + delta
			st.Joints.Set(joint, c.cfg.JointLimits[joint].Clamp(v))
			st.Pose = kinematics.FK(st.Joints, c.dim())
			joints = st.Joints
			pose = st.Pose
			shouldBroadcast = true
		case posestate.JogCartesian:
			candidate := st.Pose
			v := candidate.Get(axis) + delta
			candidate.Set(axis, c.cfg.WorkspaceLimits[axis].Clamp(v))

			solved, err := kinematics.DIK(st.Joints, candidate, c.dim(), c.cfg.JointLimits)
			if err != nil {
				// Kinematic infeasibility drops this tick silently; the
				// prior state is left untouched.
				return
			}
			st.Joints = solved
			st.Pose = kinematics.FK(st.Joints, c.dim())
			joints = st.Joints
			pose = st.Pose
			shouldBroadcast = true
		}
	})

	if !active {
		return false
	}

	if shouldBroadcast {
		if !c.cfg.SimulationMode {
			if err := c.link.SendSetJointPositions(joints.Array()); err != nil {
				c.log.WithError(err).Warn("motion: setJointPositions failed during jog tick")
			}
		}
		c.bus.Publish(broadcast.PositionUpdate(joints, pose, now))
	}

	return true
}

func absF(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
