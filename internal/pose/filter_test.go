package pose

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func uniform(score float64) RawKeypoints {
	var raw RawKeypoints
	for i := range raw {
		raw[i] = RawKeypoint{Y: 0.5, X: 0.25, Score: score}
	}
	return raw
}

func TestFilterKeypoints_Scaling(t *testing.T) {
	raw := uniform(0.9)
	raw[Nose] = RawKeypoint{Y: 0.125, X: 0.75, Score: 0.9}

	kps := FilterKeypoints(raw, 400, 1000, DefaultThreshold)
	require.Len(t, kps.Points, NumKeypoints)
	assert.Equal(t, Point{X: 750, Y: 50}, kps.Points[0])

	p, ok := kps.Lookup(Nose)
	require.True(t, ok)
	assert.Equal(t, Point{X: 750, Y: 50}, p)
	assert.Len(t, kps.Edges, len(Bones()))
}

func TestFilterKeypoints_ThresholdIsExclusive(t *testing.T) {
	raw := uniform(0.9)
	raw[LeftKnee].Score = DefaultThreshold
	raw[RightKnee].Score = DefaultThreshold + 1e-9

	kps := FilterKeypoints(raw, 100, 100, DefaultThreshold)
	assert.Equal(t, NumKeypoints-1, kps.Present())

	_, ok := kps.Lookup(LeftKnee)
	assert.False(t, ok, "score equal to the threshold must be dropped")
	_, ok = kps.Lookup(RightKnee)
	assert.True(t, ok)

	for _, e := range kps.Edges {
		assert.NotEqual(t, LeftKnee, e.From)
		assert.NotEqual(t, LeftKnee, e.To)
	}
	// Hip-knee and knee-ankle on the left side are gone.
	assert.Len(t, kps.Edges, len(Bones())-2)
}

func TestFilterKeypoints_AllZero(t *testing.T) {
	for _, threshold := range []float64{1e-6, DefaultThreshold, 0.5, 1} {
		kps := FilterKeypoints(uniform(0), 1280, 1280, threshold)
		assert.Empty(t, kps.Points)
		assert.Empty(t, kps.Edges)
		assert.NotNil(t, kps.Points)
	}
}

func TestFilterKeypoints_OrderFollowsIndex(t *testing.T) {
	var raw RawKeypoints
	for i := range raw {
		raw[i] = RawKeypoint{Y: 0, X: float64(i) / 100, Score: 0.5}
	}
	raw[RightEye].Score = 0
	raw[LeftAnkle].Score = 0

	kps := FilterKeypoints(raw, 100, 100, DefaultThreshold)
	require.Len(t, kps.Points, NumKeypoints-2)
	for i := 1; i < len(kps.Points); i++ {
		assert.Less(t, kps.Points[i-1].X, kps.Points[i].X)
	}
}

func TestFilterKeypoints_EdgeOrderAndColor(t *testing.T) {
	kps := FilterKeypoints(uniform(0.8), 10, 10, DefaultThreshold)
	table := Bones()
	require.Len(t, kps.Edges, len(table))
	for i, e := range kps.Edges {
		assert.Equal(t, table[i], e.Bone)
		assert.Equal(t, Point{X: 2.5, Y: 5}, e.Start)
	}
	assert.Equal(t, Yellow, table[10].Color)
	assert.Equal(t, LeftShoulder, table[10].From)
	assert.Equal(t, RightShoulder, table[10].To)
}

func TestFilterKeypoints_OutsideFrame(t *testing.T) {
	raw := uniform(0.9)
	raw[RightAnkle] = RawKeypoint{Y: 1.2, X: -0.1, Score: 0.4}

	kps := FilterKeypoints(raw, 100, 200, DefaultThreshold)
	p, ok := kps.Lookup(RightAnkle)
	require.True(t, ok)
	assert.InDelta(t, -20, p.X, 1e-9)
	assert.InDelta(t, 120, p.Y, 1e-9)
}

func TestBonesIsCopy(t *testing.T) {
	b := Bones()
	b[0].Color = Yellow
	assert.Equal(t, Magenta, Bones()[0].Color)
}

func TestKeypointNames(t *testing.T) {
	k, err := ParseKeypoint("left_wrist")
	require.NoError(t, err)
	assert.Equal(t, LeftWrist, k)
	assert.Equal(t, 9, int(k))

	_, err = ParseKeypoint("left_toe")
	assert.Error(t, err)
	assert.Equal(t, "keypoint(17)", Keypoint(17).String())
}
