package pose

import "fmt"

// MissingJointError means a keypoint needed for an angle did not pass the
// confidence threshold.
type MissingJointError struct {
	Joint    Joint
	Keypoint Keypoint
}

func (e *MissingJointError) Error() string {
	return fmt.Sprintf("%s angle: keypoint %d (%s) not detected", e.Joint, int(e.Keypoint), e.Keypoint)
}

// DegenerateGeometryError means one segment of the angle has zero length.
type DegenerateGeometryError struct {
	Joint    Joint
	Endpoint Keypoint
}

func (e *DegenerateGeometryError) Error() string {
	return fmt.Sprintf("%s angle: %s coincides with %s", e.Joint, e.Endpoint, e.Joint.Vertex())
}

// UnsupportedJointError means the name or value is not in the angle table.
type UnsupportedJointError struct {
	Name string
}

func (e *UnsupportedJointError) Error() string {
	return fmt.Sprintf("unsupported joint %q", e.Name)
}
