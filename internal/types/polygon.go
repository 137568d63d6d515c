package types

import (
	"fmt"
	"strconv"
	"strings"
)

// Coordinate is a single polygon vertex. The canonical order throughout
// the module is latitude first; display callers derive lon-lat ordering
// from the same polygon rather than keeping a second copy.
type Coordinate struct {
	Lat float64
	Lon float64
}

// GeoPolygon is an ordered boundary ring of at least three vertices.
// Insertion order is significant and the polygon is immutable once
// constructed.
type GeoPolygon struct {
	vertices []Coordinate
}

// NewGeoPolygon constructs a polygon from the given vertices. Fewer than
// three vertices do not describe an area and are rejected.
func NewGeoPolygon(vertices []Coordinate) (GeoPolygon, error) {
	if len(vertices) < 3 {
		return GeoPolygon{}, NewAppError(
			ErrCodeValidationInvalidPolygon,
			fmt.Sprintf("polygon needs at least 3 vertices, got %d", len(vertices)),
			nil,
		)
	}
	copied := make([]Coordinate, len(vertices))
	copy(copied, vertices)
	return GeoPolygon{vertices: copied}, nil
}

// Len returns the number of vertices.
func (p GeoPolygon) Len() int {
	return len(p.vertices)
}

// Vertices returns a copy of the boundary ring in canonical lat-lon order.
func (p GeoPolygon) Vertices() []Coordinate {
	copied := make([]Coordinate, len(p.vertices))
	copy(copied, p.vertices)
	return copied
}

// QueryString serializes the polygon for the area-query endpoint:
// "lat,lon" vertex pairs joined by ":" with no leading separator.
func (p GeoPolygon) QueryString() string {
	return FormatVertices(p.vertices)
}

// DisplayRing returns the ring in (lon, lat) order for map display
// collaborators. Derived from the canonical vertices on every call.
func (p GeoPolygon) DisplayRing() [][2]float64 {
	ring := make([][2]float64, len(p.vertices))
	for i, v := range p.vertices {
		ring[i] = [2]float64{v.Lon, v.Lat}
	}
	return ring
}

// FormatVertices serializes a vertex list in the upstream "poly" wire
// form. Coordinates render with minimal digits, so 52.1 stays "52.1".
func FormatVertices(vertices []Coordinate) string {
	var b strings.Builder
	for i, v := range vertices {
		if i > 0 {
			b.WriteByte(':')
		}
		b.WriteString(strconv.FormatFloat(v.Lat, 'f', -1, 64))
		b.WriteByte(',')
		b.WriteString(strconv.FormatFloat(v.Lon, 'f', -1, 64))
	}
	return b.String()
}
