package pose

// DefaultThreshold is the minimum score a keypoint needs to be kept.
const DefaultThreshold = 0.11

// RawKeypoint is one model output row, normalized to the model input frame.
type RawKeypoint struct {
	Y     float64 `json:"y"`
	X     float64 `json:"x"`
	Score float64 `json:"score"`
}

// RawKeypoints is a single detection as returned by the model.
type RawKeypoints [NumKeypoints]RawKeypoint

// Point is an absolute pixel position.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Sub returns p - q.
func (p Point) Sub(q Point) Point {
	return Point{X: p.X - q.X, Y: p.Y - q.Y}
}

// Segment is a bone projected into pixel space.
type Segment struct {
	Bone
	Start Point
	End   Point
}

// FilteredKeypoints holds the keypoints of one detection that passed the
// confidence threshold, scaled to an image of known size.
type FilteredKeypoints struct {
	// Points lists the passing keypoints in index order.
	Points []Point
	// Edges lists the bones whose two endpoints both passed.
	Edges []Segment

	abs     [NumKeypoints]Point
	present [NumKeypoints]bool
}

// Lookup returns the absolute position of k if it passed the threshold.
func (f *FilteredKeypoints) Lookup(k Keypoint) (Point, bool) {
	if !k.Valid() || !f.present[k] {
		return Point{}, false
	}
	return f.abs[k], true
}

// Present reports how many keypoints passed the threshold.
func (f *FilteredKeypoints) Present() int {
	return len(f.Points)
}

// FilterKeypoints scales raw to an image of the given height and width and
// drops every keypoint whose score does not strictly exceed threshold.
// It is called once per detected entity.
func FilterKeypoints(raw RawKeypoints, height, width int, threshold float64) *FilteredKeypoints {
	f := &FilteredKeypoints{
		Points: make([]Point, 0, NumKeypoints),
	}

	for i, kp := range raw {
		f.abs[i] = Point{X: kp.X * float64(width), Y: kp.Y * float64(height)}
		if kp.Score > threshold {
			f.present[i] = true
			f.Points = append(f.Points, f.abs[i])
		}
	}

	for _, b := range bones {
		if !f.present[b.From] || !f.present[b.To] {
			continue
		}
		f.Edges = append(f.Edges, Segment{Bone: b, Start: f.abs[b.From], End: f.abs[b.To]})
	}
	return f
}
