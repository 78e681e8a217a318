package kinematics

import "math"

// mat4 is a 4x4 homogeneous transform, row-major.
type mat4 [4][4]float64

func identity4() mat4 {
	var m mat4
	for i := 0; i < 4; i++ {
		m[i][i] = 1
	}
	return m
}

func (a mat4) mul(b mat4) mat4 {
	var out mat4
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			var sum float64
			for k := 0; k < 4; k++ {
				sum += a[i][k] * b[k][j]
			}
			out[i][j] = sum
		}
	}
	return out
}

// rotZTranslate builds a transform that rotates by theta about Z and
// translates along the *local* x axis by tx, with a fixed z offset tz.
func rotZTranslate(theta, tx, tz float64) mat4 {
	c, s := math.Cos(theta), math.Sin(theta)
	return mat4{
		{c, -s, 0, tx * c},
		{s, c, 0, tx * s},
		{0, 0, 1, tz},
		{0, 0, 0, 1},
	}
}

// translateX builds a pure translation along local x by d.
func translateX(d float64) mat4 {
	m := identity4()
	m[0][3] = d
	return m
}

func degToRad(d float64) float64 { return d * math.Pi / 180 }
func radToDeg(r float64) float64 { return r * 180 / math.Pi }

// chain returns the six per-joint transforms T01..T56 for the given joints
// and dimensions, in the order described in spec §4.1.
func chain(j JointVector, dim Dimensions) [6]mat4 {
	q1 := degToRad(j.BaseRotation)
	q2 := degToRad(j.ShoulderRotation)
	d3 := j.PrismaticExtension
	q4 := degToRad(j.ElbowRotation)
	q5 := degToRad(j.Elbow2Rotation)
	q6 := degToRad(j.EndEffectorRotation)

	t01 := rotZTranslate(q1, 0, dim.BaseHeight)
	t12 := rotZTranslate(q2, dim.Link1, 0)
	t23 := translateX(d3)
	t34 := rotZTranslate(q4, dim.Link3, 0)
	t45 := rotZTranslate(q5, dim.Link4, 0)
	t56 := rotZTranslate(q6, dim.EELength, 0)

	return [6]mat4{t01, t12, t23, t34, t45, t56}
}

// FK computes the end-effector pose for a joint vector via the chain
// T = T01*T12*T23*T34*T45*T56.
func FK(j JointVector, dim Dimensions) EndEffectorPose {
	links := chain(j, dim)
	t := identity4()
	for _, l := range links {
		t = t.mul(l)
	}

	pose := EndEffectorPose{X: t[0][3], Y: t[1][3], Z: t[2][3]}

	r20 := t[2][0]
	pitch := math.Asin(-r20)
	var roll, yaw float64
	if math.Abs(math.Cos(pitch)) > 1e-10 {
		roll = math.Atan2(t[2][1], t[2][2])
		yaw = math.Atan2(t[1][0], t[0][0])
	} else {
		roll = 0
		yaw = math.Atan2(-t[0][1], t[1][1])
	}

	pose.Roll = radToDeg(roll)
	pose.Pitch = radToDeg(pitch)
	pose.Yaw = radToDeg(yaw)
	return pose
}
