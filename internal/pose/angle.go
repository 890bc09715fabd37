package pose

import (
	"errors"
	"fmt"
	"math"
)

// Joint is one of the eight joints whose angle is measured.
type Joint int

const (
	LeftElbowAngle Joint = iota
	RightElbowAngle
	LeftShoulderAngle
	RightShoulderAngle
	LeftHipAngle
	RightHipAngle
	LeftKneeAngle
	RightKneeAngle

	// NumJoints is the number of measured joints.
	NumJoints = 8
)

// triple is (endpoint A, vertex B, endpoint C).
type triple [3]Keypoint

var angleTriples = [NumJoints]triple{
	LeftElbowAngle:     {LeftShoulder, LeftElbow, LeftWrist},
	RightElbowAngle:    {RightShoulder, RightElbow, RightWrist},
	LeftShoulderAngle:  {LeftElbow, LeftShoulder, LeftHip},
	RightShoulderAngle: {RightElbow, RightShoulder, RightHip},
	LeftHipAngle:       {LeftShoulder, LeftHip, LeftKnee},
	RightHipAngle:      {RightShoulder, RightHip, RightKnee},
	LeftKneeAngle:      {LeftHip, LeftKnee, LeftAnkle},
	RightKneeAngle:     {RightHip, RightKnee, RightAnkle},
}

// Joints returns the measured joints in report column order.
func Joints() []Joint {
	out := make([]Joint, NumJoints)
	for i := range out {
		out[i] = Joint(i)
	}
	return out
}

// Valid reports whether j is in the angle table.
func (j Joint) Valid() bool {
	return j >= 0 && j < NumJoints
}

// Triple returns the endpoint, vertex and endpoint keypoints of the angle.
func (j Joint) Triple() (a, b, c Keypoint) {
	t := angleTriples[j]
	return t[0], t[1], t[2]
}

// Vertex is the keypoint the joint is named after.
func (j Joint) Vertex() Keypoint {
	return angleTriples[j][1]
}

func (j Joint) String() string {
	if !j.Valid() {
		return fmt.Sprintf("joint(%d)", int(j))
	}
	return j.Vertex().String()
}

// ParseJoint matches name exactly against the measured joints.
func ParseJoint(name string) (Joint, error) {
	for _, j := range Joints() {
		if j.String() == name {
			return j, nil
		}
	}
	return 0, &UnsupportedJointError{Name: name}
}

// Locator resolves a keypoint index to an absolute position.
type Locator interface {
	Lookup(k Keypoint) (Point, bool)
}

// JointAngle returns the interior angle in degrees at joint, in [0, 180].
func JointAngle(kps Locator, joint Joint) (float64, error) {
	if !joint.Valid() {
		return 0, &UnsupportedJointError{Name: joint.String()}
	}

	var pts [3]Point
	for i, k := range angleTriples[joint] {
		p, ok := kps.Lookup(k)
		if !ok {
			return 0, &MissingJointError{Joint: joint, Keypoint: k}
		}
		pts[i] = p
	}

	ba := pts[0].Sub(pts[1])
	bc := pts[2].Sub(pts[1])

	nba := math.Hypot(ba.X, ba.Y)
	if nba == 0 {
		return 0, &DegenerateGeometryError{Joint: joint, Endpoint: angleTriples[joint][0]}
	}
	nbc := math.Hypot(bc.X, bc.Y)
	if nbc == 0 {
		return 0, &DegenerateGeometryError{Joint: joint, Endpoint: angleTriples[joint][2]}
	}

	cos := (ba.X*bc.X + ba.Y*bc.Y) / (nba * nbc)
	// Rounding can push |cos| just past 1.
	cos = math.Max(-1, math.Min(1, cos))

	return math.Acos(cos) * 180 / math.Pi, nil
}

// Measurement is the outcome of one joint angle computation.
type Measurement struct {
	Joint   Joint
	Degrees float64
	Err     error
}

// OK reports whether the angle was measurable.
func (m Measurement) OK() bool {
	return m.Err == nil
}

// Reasons an angle is unavailable, as stored and exported.
const (
	ReasonMissingKeypoint = "missing_keypoint"
	ReasonDegenerate      = "degenerate_geometry"
	ReasonOther           = "error"
)

// Reason classifies why the angle is unavailable. It is empty when OK.
func (m Measurement) Reason() string {
	var missing *MissingJointError
	var degenerate *DegenerateGeometryError
	switch {
	case m.Err == nil:
		return ""
	case errors.As(m.Err, &missing):
		return ReasonMissingKeypoint
	case errors.As(m.Err, &degenerate):
		return ReasonDegenerate
	}
	return ReasonOther
}

// MeasureAll computes every joint angle in table order. Failures are kept
// on the measurement and do not stop the remaining joints.
func MeasureAll(kps Locator) []Measurement {
	out := make([]Measurement, 0, NumJoints)
	for _, j := range Joints() {
		deg, err := JointAngle(kps, j)
		out = append(out, Measurement{Joint: j, Degrees: deg, Err: err})
	}
	return out
}

// Round2 rounds v to two decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
