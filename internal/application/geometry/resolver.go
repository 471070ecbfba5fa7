package geometry

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/twpayne/go-geos"
)

const (
	// DefaultHexAreaHa is the plot size assumed for farms registered by a single point.
	DefaultHexAreaHa = 0.25
	// bufferQuadSegs is the number of segments per quarter circle on buffered corners.
	bufferQuadSegs = 8
	sqmPerHectare  = 10000.0
)

// Error reports a geometry that cannot be turned into an analysis polygon.
type Error struct {
	Type   string
	Reason string
}

func (e *Error) Error() string {
	if e.Type == "" {
		return "invalid geometry: " + e.Reason
	}
	return fmt.Sprintf("invalid %s geometry: %s", e.Type, e.Reason)
}

// Options controls how a farm geometry becomes an analysis polygon.
type Options struct {
	BufferMeters float64 // outward buffer; 0 disables
	HexAreaHa    float64 // hexagon area for Point input; 0 means DefaultHexAreaHa
}

// Resolved is the normalized geometry of one farm.
type Resolved struct {
	// Polygon is the farm outline before buffering, as GeoJSON rings (lon, lat).
	Polygon [][][]float64
	// Analysis is the buffered outline handed to the metrics provider.
	Analysis [][][]float64
	// AreaHa is the planar area of Polygon in hectares.
	AreaHa float64
}

// AnalysisGeoJSON encodes Analysis as a GeoJSON Polygon geometry.
func (r *Resolved) AnalysisGeoJSON() ([]byte, error) {
	return json.Marshal(map[string]interface{}{
		"type":        "Polygon",
		"coordinates": r.Analysis,
	})
}

// Resolver turns stored farm GeoJSON into analysis polygons.
type Resolver struct {
	opts Options
}

// NewResolver returns a Resolver with the given defaults.
func NewResolver(opts Options) *Resolver {
	if opts.HexAreaHa <= 0 {
		opts.HexAreaHa = DefaultHexAreaHa
	}
	return &Resolver{opts: opts}
}

type geoJSON struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
	Geometry    json.RawMessage `json:"geometry"`
}

// Resolve parses a GeoJSON Point, Polygon or a Feature wrapping either one.
func (r *Resolver) Resolve(raw []byte) (*Resolved, error) {
	return r.ResolveWithBuffer(raw, r.opts.BufferMeters)
}

// ResolveWithBuffer is Resolve with a per-farm buffer radius.
func (r *Resolver) ResolveWithBuffer(raw []byte, bufferMeters float64) (*Resolved, error) {
	if len(raw) == 0 {
		return nil, &Error{Reason: "empty geometry"}
	}
	var g geoJSON
	if err := json.Unmarshal(raw, &g); err != nil {
		return nil, &Error{Reason: err.Error()}
	}
	if g.Type == "Feature" {
		if len(g.Geometry) == 0 || string(g.Geometry) == "null" {
			return nil, &Error{Type: "Feature", Reason: "feature has no geometry"}
		}
		return r.ResolveWithBuffer(g.Geometry, bufferMeters)
	}

	var rings [][][]float64
	switch g.Type {
	case "Point":
		var pos []float64
		if err := json.Unmarshal(g.Coordinates, &pos); err != nil || len(pos) < 2 {
			return nil, &Error{Type: g.Type, Reason: "coordinates must be [longitude, latitude]"}
		}
		if err := checkPosition(pos); err != nil {
			return nil, &Error{Type: g.Type, Reason: err.Error()}
		}
		hex, err := Hexagon(pos[0], pos[1], r.opts.HexAreaHa)
		if err != nil {
			return nil, asGeometryError(g.Type, err)
		}
		rings = [][][]float64{hex}
	case "Polygon":
		if err := json.Unmarshal(g.Coordinates, &rings); err != nil {
			return nil, &Error{Type: g.Type, Reason: "coordinates must be an array of linear rings"}
		}
		var err error
		if rings, err = normalizeRings(rings); err != nil {
			return nil, &Error{Type: g.Type, Reason: err.Error()}
		}
	default:
		return nil, &Error{Type: g.Type, Reason: "only Point and Polygon are supported"}
	}

	lon, lat := centroid(rings[0])
	proj, err := NewLocalProjection(lon, lat)
	if err != nil {
		return nil, err
	}
	defer proj.Close()
	planar, err := proj.ForwardRings(rings)
	if err != nil {
		return nil, &Error{Type: g.Type, Reason: err.Error()}
	}

	poly := geos.NewPolygon(planar)
	if !poly.IsValid() {
		return nil, &Error{Type: g.Type, Reason: poly.IsValidReason()}
	}
	out := &Resolved{
		Polygon:  rings,
		Analysis: rings,
		AreaHa:   poly.Area() / sqmPerHectare,
	}
	if bufferMeters > 0 {
		buffered := poly.Buffer(bufferMeters, bufferQuadSegs)
		if buffered.TypeID() != geos.TypeIDPolygon {
			return nil, &Error{Type: g.Type, Reason: "buffer did not produce a single polygon"}
		}
		analysis, err := proj.InverseRings(polygonRings(buffered))
		if err != nil {
			return nil, &Error{Type: g.Type, Reason: err.Error()}
		}
		for _, ring := range analysis {
			if err := checkRing(ring); err != nil {
				return nil, &Error{Type: g.Type, Reason: "buffered outline: " + err.Error()}
			}
		}
		out.Analysis = analysis
	}
	return out, nil
}

// HexRadius is the circumradius in metres of a regular hexagon of areaHa hectares:
// area = 3*sqrt(3)/2 * r^2.
func HexRadius(areaHa float64) float64 {
	return math.Sqrt((2 * areaHa * sqmPerHectare) / (3 * math.Sqrt(3)))
}

// Hexagon returns a closed ring of a regular hexagon of areaHa hectares centred on
// (lon, lat). Vertices sit at 60 degree steps starting due east. A hexagon that
// would cross the antimeridian or enclose a pole is rejected with an *Error.
func Hexagon(lon, lat, areaHa float64) ([][]float64, error) {
	if err := checkPosition([]float64{lon, lat}); err != nil {
		return nil, &Error{Type: "Point", Reason: err.Error()}
	}
	proj, err := NewLocalProjection(lon, lat)
	if err != nil {
		return nil, err
	}
	defer proj.Close()

	radius := HexRadius(areaHa)
	planar := make([][]float64, 0, 7)
	for i := 0; i < 6; i++ {
		angle := float64(60*i) * math.Pi / 180
		planar = append(planar, []float64{radius * math.Cos(angle), radius * math.Sin(angle)})
	}
	planar = append(planar, []float64{planar[0][0], planar[0][1]})

	rings, err := proj.InverseRings([][][]float64{planar})
	if err != nil {
		return nil, &Error{Type: "Point", Reason: err.Error()}
	}
	ring := rings[0]
	// Close exactly; the inverse of the repeated vertex can differ in the last bits.
	ring[6] = []float64{ring[0][0], ring[0][1]}
	if err := checkRing(ring); err != nil {
		return nil, &Error{Type: "Point", Reason: "hexagon " + err.Error()}
	}
	return ring, nil
}

func checkPosition(pos []float64) error {
	if math.IsNaN(pos[0]) || math.IsNaN(pos[1]) || pos[0] < -180 || pos[0] > 180 || pos[1] < -90 || pos[1] > 90 {
		return fmt.Errorf("position %v out of range", pos[:2])
	}
	return nil
}

// maxLonSpan bounds the longitude extent of one ring. Farms are small, so a wider
// ring means it wraps across the antimeridian or around a pole.
const maxLonSpan = 180.0

// checkRing range-checks every position and rejects rings that wrap.
func checkRing(ring [][]float64) error {
	minLon, maxLon := math.Inf(1), math.Inf(-1)
	for _, pos := range ring {
		if err := checkPosition(pos); err != nil {
			return err
		}
		minLon = math.Min(minLon, pos[0])
		maxLon = math.Max(maxLon, pos[0])
	}
	if maxLon-minLon > maxLonSpan {
		return fmt.Errorf("crosses the antimeridian or encloses a pole (longitudes %g to %g)", minLon, maxLon)
	}
	return nil
}

func asGeometryError(typ string, err error) error {
	var gerr *Error
	if errors.As(err, &gerr) {
		gerr.Type = typ
		return gerr
	}
	return err
}

// normalizeRings validates positions, drops altitude and closes open rings.
func normalizeRings(rings [][][]float64) ([][][]float64, error) {
	if len(rings) == 0 {
		return nil, fmt.Errorf("polygon has no rings")
	}
	out := make([][][]float64, 0, len(rings))
	for i, ring := range rings {
		r := make([][]float64, 0, len(ring)+1)
		for _, pos := range ring {
			if len(pos) < 2 {
				return nil, fmt.Errorf("ring %d has a position with fewer than 2 values", i)
			}
			if err := checkPosition(pos); err != nil {
				return nil, err
			}
			r = append(r, []float64{pos[0], pos[1]})
		}
		if n := len(r); n > 0 && (r[0][0] != r[n-1][0] || r[0][1] != r[n-1][1]) {
			r = append(r, []float64{r[0][0], r[0][1]})
		}
		if len(r) < 4 {
			return nil, fmt.Errorf("ring %d needs at least 4 positions", i)
		}
		if err := checkRing(r); err != nil {
			return nil, fmt.Errorf("ring %d %w", i, err)
		}
		out = append(out, r)
	}
	return out, nil
}

func polygonRings(g *geos.Geom) [][][]float64 {
	rings := [][][]float64{g.ExteriorRing().CoordSeq().ToCoords()}
	for i := 0; i < g.NumInteriorRings(); i++ {
		rings = append(rings, g.InteriorRing(i).CoordSeq().ToCoords())
	}
	return rings
}
