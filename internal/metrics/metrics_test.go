package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andresmejia3/goniometer/internal/pose"
)

func TestMetrics(t *testing.T) {
	m := New()
	m.ImageProcessed()
	m.ImageProcessed()
	m.ImageFailed("decode")
	m.ObserveInference(30 * time.Millisecond)
	m.ObserveAngles([]pose.Measurement{
		{Joint: pose.LeftElbowAngle, Degrees: 90},
		{Joint: pose.RightKneeAngle, Err: &pose.MissingJointError{Joint: pose.RightKneeAngle, Keypoint: pose.RightAnkle}},
	})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.imagesProcessed))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.imagesFailed.WithLabelValues("decode")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.anglesMeasured.WithLabelValues("left_elbow")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.anglesMissing.WithLabelValues("right_knee", pose.ReasonMissingKeypoint)))
	assert.Equal(t, 1, testutil.CollectAndCount(m.inference))

	path := filepath.Join(t.TempDir(), "goniometer.prom")
	require.NoError(t, m.WriteTextfile(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "goniometer_images_processed_total 2"))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ImageProcessed()
		m.ImageFailed("infer")
		m.ObserveInference(time.Second)
		m.ObserveAngles([]pose.Measurement{{Joint: pose.LeftHipAngle}})
	})
	assert.Nil(t, m.Registry())
	assert.NoError(t, m.WriteTextfile(filepath.Join(t.TempDir(), "x.prom")))
}
