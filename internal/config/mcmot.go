package config

import (
	"fmt"
	"os"

	"github.com/allenshie/integration-core/internal/model"
	"gopkg.in/yaml.v3"
)

// MCMOTSystem selects the coordinate transform mode for every camera.
type MCMOTSystem struct {
	CoordinateTransformMode string `yaml:"coordinate_transform_mode"`
}

// MCMOTTracking parameterizes the cost builder and gallery matching.
type MCMOTTracking struct {
	TrackableClasses   []string `yaml:"trackable_classes"`
	MatchThreshold     float64  `yaml:"match_threshold"`
	MaxTrajLoss        float64  `yaml:"max_traj_loss"`
	DistanceThresholdM *float64 `yaml:"distance_threshold_m"`
}

// MCMOTMap describes the shared floor plan.
type MCMOTMap struct {
	ImagePath    string  `yaml:"image_path"`
	PixelWidth   int     `yaml:"pixel_width"`
	PixelHeight  int     `yaml:"pixel_height"`
	WidthMeters  float64 `yaml:"width_meters"`
	HeightMeters float64 `yaml:"height_meters"`
}

// MCMOTCamera is one entry of the cameras map.
type MCMOTCamera struct {
	Enabled             bool          `yaml:"enabled"`
	EdgeID              string        `yaml:"edge_id"`
	Name                string        `yaml:"name"`
	CoordinateMatrixCkpt string       `yaml:"coordinate_matrix_ckpt"`
	IgnorePolygons      [][]MCMOTPoint `yaml:"ignore_polygons"`
	ColorHex            string        `yaml:"color_hex"`
}

// MCMOTPoint is one YAML-encoded [x, y] pixel coordinate.
type MCMOTPoint struct {
	X, Y float64
}

func (p *MCMOTPoint) UnmarshalYAML(node *yaml.Node) error {
	var pair [2]float64
	if err := node.Decode(&pair); err != nil {
		return err
	}
	p.X, p.Y = pair[0], pair[1]
	return nil
}

// MCMOTConfig is the full MCMOT YAML document (spec §6).
type MCMOTConfig struct {
	System   MCMOTSystem            `yaml:"system"`
	Tracking MCMOTTracking          `yaml:"tracking"`
	Map      MCMOTMap               `yaml:"map"`
	Cameras  map[string]MCMOTCamera `yaml:"cameras"`
}

// LoadMCMOTConfig reads and parses the MCMOT YAML config at path.
func LoadMCMOTConfig(path string) (MCMOTConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return MCMOTConfig{}, fmt.Errorf("config: read mcmot config: %w", err)
	}
	var cfg MCMOTConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return MCMOTConfig{}, fmt.Errorf("config: parse mcmot config: %w", err)
	}
	return cfg, nil
}

// CameraConfigs converts the YAML cameras map into the model's camera
// configs, keyed by camera id. Every camera is converted, enabled or not;
// only the first ignore polygon of each camera is kept.
func (c MCMOTConfig) CameraConfigs() map[string]model.CameraConfig {
	out := make(map[string]model.CameraConfig, len(c.Cameras))
	for id, cam := range c.Cameras {
		polygon := make([]model.Point, 0)
		if len(cam.IgnorePolygons) > 0 {
			for _, p := range cam.IgnorePolygons[0] {
				polygon = append(polygon, model.Point{X: p.X, Y: p.Y})
			}
		}
		out[id] = model.CameraConfig{
			ID:            id,
			EdgeID:        cam.EdgeID,
			Enabled:       cam.Enabled,
			TransformPath: cam.CoordinateMatrixCkpt,
			IgnorePolygon: polygon,
			ColorHex:      cam.ColorHex,
		}
	}
	return out
}

// MapConfig converts the YAML map section into the model's map config.
func (c MCMOTConfig) MapConfig() model.MapConfig {
	return model.MapConfig{
		ImagePath:    c.Map.ImagePath,
		PixelWidth:   c.Map.PixelWidth,
		PixelHeight:  c.Map.PixelHeight,
		WidthMeters:  c.Map.WidthMeters,
		HeightMeters: c.Map.HeightMeters,
	}
}
