package coordmap

import (
	"fmt"
	"os"

	"github.com/allenshie/integration-core/internal/npyfmt"
)

// LoadProjective reads a 3x3 homography matrix from a .npy checkpoint and
// builds a Projective mapper from it.
func LoadProjective(path string) (*Projective, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("coordmap: open %s: %w", path, err)
	}
	defer f.Close()

	arr, err := npyfmt.ReadNPY(f)
	if err != nil {
		return nil, fmt.Errorf("coordmap: decode %s: %w", path, err)
	}
	if len(arr.Data) != 9 {
		return nil, fmt.Errorf("coordmap: %s: expected a 3x3 matrix, got shape %v", path, arr.Shape)
	}
	var h [9]float64
	copy(h[:], arr.Data)
	return NewProjective(h)
}

// LoadDense reads a TPS lookup-table checkpoint (map_x, map_y, width,
// height, sparse_scale arrays) from a .npz archive and builds a Dense
// mapper, resizing the sparse grid to full resolution.
func LoadDense(path string) (*Dense, error) {
	members, err := npyfmt.ReadNPZ(path)
	if err != nil {
		return nil, fmt.Errorf("coordmap: decode %s: %w", path, err)
	}
	mapX, ok := members["map_x"]
	if !ok {
		return nil, fmt.Errorf("coordmap: %s: missing map_x", path)
	}
	mapY, ok := members["map_y"]
	if !ok {
		return nil, fmt.Errorf("coordmap: %s: missing map_y", path)
	}
	widthArr, ok := members["width"]
	if !ok {
		return nil, fmt.Errorf("coordmap: %s: missing width", path)
	}
	heightArr, ok := members["height"]
	if !ok {
		return nil, fmt.Errorf("coordmap: %s: missing height", path)
	}

	gridX, err := mapX.As2D()
	if err != nil {
		return nil, fmt.Errorf("coordmap: %s: map_x: %w", path, err)
	}
	gridY, err := mapY.As2D()
	if err != nil {
		return nil, fmt.Errorf("coordmap: %s: map_y: %w", path, err)
	}

	width := int(widthArr.Scalar())
	height := int(heightArr.Scalar())
	return NewDense(gridX, gridY, width, height)
}

// Load resolves a camera's coordinate_matrix_ckpt file to a Mapper
// according to the deployment-wide transform mode.
func Load(mode Mode, path string) (Mapper, error) {
	switch mode {
	case ModeDense:
		return LoadDense(path)
	default:
		return LoadProjective(path)
	}
}
