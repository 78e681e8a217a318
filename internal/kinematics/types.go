// Package kinematics implements forward and inverse kinematics for the
// RRPRRR arm: base yaw, shoulder pitch, prismatic reach, elbow, elbow2,
// end-effector rotation.
package kinematics

import "fmt"

// Joint indexes the six joints of the chain in DH order.
type Joint int

const (
	BaseRotation Joint = iota
	ShoulderRotation
	PrismaticExtension
	ElbowRotation
	Elbow2Rotation
	EndEffectorRotation
	jointCount
)

func (j Joint) String() string {
	names := [...]string{
		"base_rotation",
		"shoulder_rotation",
		"prismatic_extension",
		"elbow_rotation",
		"elbow2_rotation",
		"end_effector_rotation",
	}
	if int(j) < len(names) {
		return names[j]
	}
	return "unknown_joint"
}

// JointFromName parses a joint name (as used on the operator command
// surface and in config files) into a Joint, e.g. "shoulder_rotation".
func JointFromName(name string) (Joint, bool) {
	for j := Joint(0); j < jointCount; j++ {
		if j.String() == name {
			return j, true
		}
	}
	return 0, false
}

// Axis indexes the six Cartesian/orientation axes of an EndEffectorPose.
type Axis int

const (
	X Axis = iota
	Y
	Z
	Roll
	Pitch
	Yaw
	axisCount
)

func (a Axis) String() string {
	names := [...]string{"x", "y", "z", "roll", "pitch", "yaw"}
	if int(a) < len(names) {
		return names[a]
	}
	return "unknown_axis"
}

// JointVector is a fixed-shape record of the six joint coordinates.
// Rotary fields are in degrees; PrismaticExtension is in millimeters.
type JointVector struct {
	BaseRotation        float64
	ShoulderRotation    float64
	PrismaticExtension  float64
	ElbowRotation       float64
	Elbow2Rotation      float64
	EndEffectorRotation float64
}

// Get returns the coordinate for joint j.
func (v JointVector) Get(j Joint) float64 {
	switch j {
	case BaseRotation:
		return v.BaseRotation
	case ShoulderRotation:
		return v.ShoulderRotation
	case PrismaticExtension:
		return v.PrismaticExtension
	case ElbowRotation:
		return v.ElbowRotation
	case Elbow2Rotation:
		return v.Elbow2Rotation
	case EndEffectorRotation:
		return v.EndEffectorRotation
	default:
		panic(fmt.Sprintf("kinematics: unknown joint %d", j))
	}
}

// Set assigns the coordinate for joint j.
func (v *JointVector) Set(j Joint, value float64) {
	switch j {
	case BaseRotation:
		v.BaseRotation = value
	case ShoulderRotation:
		v.ShoulderRotation = value
	case PrismaticExtension:
		v.PrismaticExtension = value
	case ElbowRotation:
		v.ElbowRotation = value
	case Elbow2Rotation:
		v.Elbow2Rotation = value
	case EndEffectorRotation:
		v.EndEffectorRotation = value
	default:
		panic(fmt.Sprintf("kinematics: unknown joint %d", j))
	}
}

// Array returns the six coordinates in DH order.
func (v JointVector) Array() [6]float64 {
	return [6]float64{
		v.BaseRotation,
		v.ShoulderRotation,
		v.PrismaticExtension,
		v.ElbowRotation,
		v.Elbow2Rotation,
		v.EndEffectorRotation,
	}
}

// JointVectorFromArray rebuilds a JointVector from six DH-ordered coordinates.
func JointVectorFromArray(a [6]float64) JointVector {
	return JointVector{
		BaseRotation:        a[0],
		ShoulderRotation:    a[1],
		PrismaticExtension:  a[2],
		ElbowRotation:       a[3],
		Elbow2Rotation:      a[4],
		EndEffectorRotation: a[5],
	}
}

// EndEffectorPose is the Cartesian position and ZYX-Euler orientation of
// the tool point. Non-authoritative: always re-derivable from a
// JointVector via FK.
type EndEffectorPose struct {
	X, Y, Z          float64
	Roll, Pitch, Yaw float64
}

// Get returns the coordinate for axis a.
func (p EndEffectorPose) Get(a Axis) float64 {
	switch a {
	case X:
		return p.X
	case Y:
		return p.Y
	case Z:
		return p.Z
	case Roll:
		return p.Roll
	case Pitch:
		return p.Pitch
	case Yaw:
		return p.Yaw
	default:
		panic(fmt.Sprintf("kinematics: unknown axis %d", a))
	}
}

// Set assigns the coordinate for axis a.
func (p *EndEffectorPose) Set(a Axis, value float64) {
	switch a {
	case X:
		p.X = value
	case Y:
		p.Y = value
	case Z:
		p.Z = value
	case Roll:
		p.Roll = value
	case Pitch:
		p.Pitch = value
	case Yaw:
		p.Yaw = value
	default:
		panic(fmt.Sprintf("kinematics: unknown axis %d", a))
	}
}

// Array returns the six pose coordinates in x,y,z,roll,pitch,yaw order.
func (p EndEffectorPose) Array() [6]float64 {
	return [6]float64{p.X, p.Y, p.Z, p.Roll, p.Pitch, p.Yaw}
}

// AxisFromName parses an axis name, e.g. "roll", into an Axis.
func AxisFromName(name string) (Axis, bool) {
	for a := Axis(0); a < axisCount; a++ {
		if a.String() == name {
			return a, true
		}
	}
	return 0, false
}

// Limit is an inclusive [Min, Max] range for a joint coordinate or a
// Cartesian/orientation axis.
type Limit struct {
	Min, Max float64
}

// Contains reports whether value lies within the limit, inclusive.
func (l Limit) Contains(value float64) bool {
	return value >= l.Min && value <= l.Max
}

// Clamp confines value to the limit.
func (l Limit) Clamp(value float64) float64 {
	if value < l.Min {
		return l.Min
	}
	if value > l.Max {
		return l.Max
	}
	return value
}

// JointLimits holds one Limit per joint, indexed by Joint.
type JointLimits [6]Limit

// Validate returns the first joint whose coordinate in v violates its
// limit, or ok=false if every joint is within range.
func (l JointLimits) Validate(v JointVector) (violated Joint, ok bool) {
	arr := v.Array()
	for i, lim := range l {
		if !lim.Contains(arr[i]) {
			return Joint(i), false
		}
	}
	return 0, true
}

// Clamp confines every field of v to its configured limit.
func (l JointLimits) Clamp(v JointVector) JointVector {
	arr := v.Array()
	for i := range arr {
		arr[i] = l[i].Clamp(arr[i])
	}
	return JointVectorFromArray(arr)
}

// WorkspaceLimits holds one Limit per Cartesian/orientation axis, indexed
// by Axis.
type WorkspaceLimits [6]Limit

// Validate returns the first axis whose coordinate in p violates its
// limit, or ok=false if every axis is within range.
func (l WorkspaceLimits) Validate(p EndEffectorPose) (violated Axis, ok bool) {
	arr := p.Array()
	for i, lim := range l {
		if !lim.Contains(arr[i]) {
			return Axis(i), false
		}
	}
	return 0, true
}

// Clamp confines every field of p to its configured workspace limit.
func (l WorkspaceLimits) Clamp(p EndEffectorPose) EndEffectorPose {
	arr := p.Array()
	for i := range arr {
		arr[i] = l[i].Clamp(arr[i])
	}
	return EndEffectorPose{X: arr[0], Y: arr[1], Z: arr[2], Roll: arr[3], Pitch: arr[4], Yaw: arr[5]}
}

// Dimensions holds the physical link lengths used by FK/IK/DIK, in mm.
type Dimensions struct {
	BaseHeight float64
	Link1      float64
	Link2Min   float64
	Link2Max   float64
	Link3      float64
	Link4      float64
	EELength   float64
}
