// Package boundary reads a polygon boundary from a local file in the
// generic geographic-coordinates JSON shape (coordinates: [[[lon, lat],
// ...]]). It is a thin startup collaborator; the core retrieval logic
// only ever sees the resulting GeoPolygon.
package boundary

import (
	"encoding/json"
	"fmt"
	"os"

	"stopsearch/internal/types"
)

// boundaryFile matches the subset of a GeoJSON-style geometry we need.
// Inner pairs are (lon, lat); extra positions (altitude) are ignored.
type boundaryFile struct {
	Coordinates [][][]float64 `json:"coordinates"`
}

// Load reads the boundary file at path and returns the canonical polygon.
// The first ring is used; vertex order is preserved.
func Load(path string) (types.GeoPolygon, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.GeoPolygon{}, fmt.Errorf("reading boundary file: %w", err)
	}
	return Parse(data)
}

// Parse decodes boundary JSON into the canonical lat-lon polygon.
func Parse(data []byte) (types.GeoPolygon, error) {
	var bf boundaryFile
	if err := json.Unmarshal(data, &bf); err != nil {
		return types.GeoPolygon{}, types.NewAppError(
			types.ErrCodeValidationInvalidPolygon,
			"boundary file is not valid JSON",
			err,
		)
	}
	if len(bf.Coordinates) == 0 {
		return types.GeoPolygon{}, types.NewAppError(
			types.ErrCodeValidationInvalidPolygon,
			"boundary file contains no rings",
			nil,
		)
	}

	ring := bf.Coordinates[0]
	vertices := make([]types.Coordinate, 0, len(ring))
	for i, pair := range ring {
		if len(pair) < 2 {
			return types.GeoPolygon{}, types.NewAppError(
				types.ErrCodeValidationInvalidPolygon,
				fmt.Sprintf("vertex %d has %d positions, need at least 2", i, len(pair)),
				nil,
			)
		}
		// File order is (lon, lat); canonical order is (lat, lon).
		vertices = append(vertices, types.Coordinate{Lat: pair[1], Lon: pair[0]})
	}

	return types.NewGeoPolygon(vertices)
}
