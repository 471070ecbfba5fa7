package geometry

import (
	"fmt"

	"github.com/twpayne/go-proj/v10"
)

// LocalProjection is a Lambert azimuthal equal-area projection on the WGS84
// ellipsoid, centred on one point, in metres. Areas are exact everywhere and
// distances are true to well under 0.1% within a few kilometres of the centre,
// which covers any single farm.
type LocalProjection struct {
	pj *proj.PJ
}

// NewLocalProjection returns a projection centred on (lon, lat) in degrees.
// Callers must Close it.
func NewLocalProjection(lon, lat float64) (*LocalProjection, error) {
	def := fmt.Sprintf("+proj=laea +lat_0=%.10f +lon_0=%.10f +datum=WGS84 +units=m +no_defs +type=crs", lat, lon)
	pj, err := proj.NewCRSToCRS("EPSG:4326", def, nil)
	if err != nil {
		return nil, fmt.Errorf("projection at (%g, %g): %w", lon, lat, err)
	}
	// EPSG:4326 is lat/lon ordered; GeoJSON is lon/lat.
	normalized, err := pj.NormalizeForVisualization()
	pj.Destroy()
	if err != nil {
		return nil, fmt.Errorf("projection at (%g, %g): %w", lon, lat, err)
	}
	return &LocalProjection{pj: normalized}, nil
}

// Close releases the underlying PROJ object.
func (p *LocalProjection) Close() {
	if p != nil && p.pj != nil {
		p.pj.Destroy()
		p.pj = nil
	}
}

// ForwardRings maps geographic rings to metres east/north of the centre.
func (p *LocalProjection) ForwardRings(rings [][][]float64) ([][][]float64, error) {
	return mapRings(rings, p.pj.Forward)
}

// InverseRings maps planar rings back to geographic degrees.
func (p *LocalProjection) InverseRings(rings [][][]float64) ([][][]float64, error) {
	return mapRings(rings, p.pj.Inverse)
}

func mapRings(rings [][][]float64, fn func(proj.Coord) (proj.Coord, error)) ([][][]float64, error) {
	out := make([][][]float64, len(rings))
	for i, ring := range rings {
		out[i] = make([][]float64, len(ring))
		for j, pos := range ring {
			c, err := fn(proj.NewCoord(pos[0], pos[1], 0, 0))
			if err != nil {
				return nil, fmt.Errorf("ring %d position %d: %w", i, j, err)
			}
			out[i][j] = []float64{c.X(), c.Y()}
		}
	}
	return out, nil
}

// centroid is the mean of the outer ring's distinct vertices. Good enough as a
// projection origin; it is not the area centroid.
func centroid(ring [][]float64) (lon, lat float64) {
	n := len(ring)
	if n > 1 && ring[0][0] == ring[n-1][0] && ring[0][1] == ring[n-1][1] {
		n--
	}
	for _, pos := range ring[:n] {
		lon += pos[0]
		lat += pos[1]
	}
	return lon / float64(n), lat / float64(n)
}
