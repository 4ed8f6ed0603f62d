package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleYAML = `
system:
  coordinate_transform_mode: projective
tracking:
  trackable_classes: [person, car]
  match_threshold: 0.7
  max_traj_loss: 1.0
  distance_threshold_m: 3.0
map:
  image_path: floor.png
  pixel_width: 1000
  pixel_height: 800
  width_meters: 50
  height_meters: 40
cameras:
  cam_a:
    enabled: true
    edge_id: edge_1
    coordinate_matrix_ckpt: cam_a.json
    ignore_polygons:
      - [[0, 0], [10, 0], [10, 10], [0, 10]]
    color_hex: "#ff0000"
  cam_b:
    enabled: false
`

func writeSampleConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "mcmot.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o644))
	return path
}

func TestLoadMCMOTConfig(t *testing.T) {
	path := writeSampleConfig(t)
	cfg, err := LoadMCMOTConfig(path)
	require.NoError(t, err)

	require.Equal(t, "projective", cfg.System.CoordinateTransformMode)
	require.Equal(t, []string{"person", "car"}, cfg.Tracking.TrackableClasses)
	require.Equal(t, 0.7, cfg.Tracking.MatchThreshold)
	require.NotNil(t, cfg.Tracking.DistanceThresholdM)
	require.Equal(t, 3.0, *cfg.Tracking.DistanceThresholdM)

	require.Equal(t, 1000, cfg.Map.PixelWidth)

	camA, ok := cfg.Cameras["cam_a"]
	require.True(t, ok)
	require.True(t, camA.Enabled)
	require.Equal(t, "edge_1", camA.EdgeID)
	require.Len(t, camA.IgnorePolygons, 1)
	require.Len(t, camA.IgnorePolygons[0], 4)
	require.Equal(t, 10.0, camA.IgnorePolygons[0][2].X)
}

func TestCameraConfigsConversion(t *testing.T) {
	path := writeSampleConfig(t)
	cfg, err := LoadMCMOTConfig(path)
	require.NoError(t, err)

	cameras := cfg.CameraConfigs()
	require.Len(t, cameras, 2)
	require.True(t, cameras["cam_a"].Enabled)
	require.Len(t, cameras["cam_a"].IgnorePolygon, 4)
	require.False(t, cameras["cam_b"].Enabled)
}

func TestMapConfigConversion(t *testing.T) {
	path := writeSampleConfig(t)
	cfg, err := LoadMCMOTConfig(path)
	require.NoError(t, err)

	m := cfg.MapConfig()
	require.Equal(t, 1000, m.PixelWidth)
	require.InDelta(t, 0.05, m.MetersPerPixelX(), 1e-9)
}

func TestLoadMCMOTConfigMissingFile(t *testing.T) {
	_, err := LoadMCMOTConfig("/nonexistent/path.yaml")
	require.Error(t, err)
}
