package pose

import "fmt"

// Keypoint indexes one of the 17 COCO landmarks produced by MoveNet.
type Keypoint int

const (
	Nose Keypoint = iota
	LeftEye
	RightEye
	LeftEar
	RightEar
	LeftShoulder
	RightShoulder
	LeftElbow
	RightElbow
	LeftWrist
	RightWrist
	LeftHip
	RightHip
	LeftKnee
	RightKnee
	LeftAnkle
	RightAnkle

	// NumKeypoints is the number of rows in every keypoint array.
	NumKeypoints = 17
)

var keypointNames = [NumKeypoints]string{
	"nose",
	"left_eye",
	"right_eye",
	"left_ear",
	"right_ear",
	"left_shoulder",
	"right_shoulder",
	"left_elbow",
	"right_elbow",
	"left_wrist",
	"right_wrist",
	"left_hip",
	"right_hip",
	"left_knee",
	"right_knee",
	"left_ankle",
	"right_ankle",
}

// Valid reports whether k is one of the 17 skeleton indices.
func (k Keypoint) Valid() bool {
	return k >= 0 && k < NumKeypoints
}

func (k Keypoint) String() string {
	if !k.Valid() {
		return fmt.Sprintf("keypoint(%d)", int(k))
	}
	return keypointNames[k]
}

// ParseKeypoint returns the index registered for name.
func ParseKeypoint(name string) (Keypoint, error) {
	for i, n := range keypointNames {
		if n == name {
			return Keypoint(i), nil
		}
	}
	return 0, fmt.Errorf("unknown keypoint %q", name)
}

// EdgeColor is the display tag of a bone.
type EdgeColor byte

const (
	Magenta EdgeColor = 'm'
	Cyan    EdgeColor = 'c'
	Yellow  EdgeColor = 'y'
)

func (c EdgeColor) String() string {
	return string(c)
}

// Bone is an unordered pair of adjacent keypoints and its display color.
type Bone struct {
	From, To Keypoint
	Color    EdgeColor
}

// Left side bones are magenta, right side cyan, and the torso crossbars yellow.
var bones = [...]Bone{
	{Nose, LeftEye, Magenta},
	{Nose, RightEye, Cyan},
	{LeftEye, LeftEar, Magenta},
	{RightEye, RightEar, Cyan},
	{Nose, LeftShoulder, Magenta},
	{Nose, RightShoulder, Cyan},
	{LeftShoulder, LeftElbow, Magenta},
	{LeftElbow, LeftWrist, Magenta},
	{RightShoulder, RightElbow, Cyan},
	{RightElbow, RightWrist, Cyan},
	{LeftShoulder, RightShoulder, Yellow},
	{LeftShoulder, LeftHip, Magenta},
	{RightShoulder, RightHip, Cyan},
	{LeftHip, RightHip, Yellow},
	{LeftHip, LeftKnee, Magenta},
	{LeftKnee, LeftAnkle, Magenta},
	{RightHip, RightKnee, Cyan},
	{RightKnee, RightAnkle, Cyan},
}

// Bones returns a copy of the edge table in drawing order.
func Bones() []Bone {
	out := make([]Bone, len(bones))
	copy(out, bones[:])
	return out
}
