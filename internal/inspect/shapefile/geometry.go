package shapefile

import (
	"encoding/json"
	"fmt"

	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/JakeFAU/geo-ingest/internal/ingest"
)

func toFeature(shape shp.Shape) (ingest.Feature, error) {
	geom, err := toGeometry(shape)
	if err != nil {
		return ingest.Feature{}, err
	}
	if geom == nil {
		return ingest.Feature{}, nil
	}
	raw, err := json.Marshal(geojson.NewGeometry(geom))
	if err != nil {
		return ingest.Feature{}, fmt.Errorf("encode geometry: %w", err)
	}
	return ingest.Feature{Geometry: raw}, nil
}

func toGeometry(shape shp.Shape) (orb.Geometry, error) {
	switch s := shape.(type) {
	case *shp.Null:
		return nil, nil
	case *shp.Point:
		return orb.Point{s.X, s.Y}, nil
	case *shp.PointZ:
		return orb.Point{s.X, s.Y}, nil
	case *shp.PointM:
		return orb.Point{s.X, s.Y}, nil
	case *shp.MultiPoint:
		return multiPoint(s.Points), nil
	case *shp.MultiPointZ:
		return multiPoint(s.Points), nil
	case *shp.MultiPointM:
		return multiPoint(s.Points), nil
	case *shp.PolyLine:
		return lines(s.Parts, s.Points), nil
	case *shp.PolyLineZ:
		return lines(s.Parts, s.Points), nil
	case *shp.PolyLineM:
		return lines(s.Parts, s.Points), nil
	case *shp.Polygon:
		return polygon(s.Parts, s.Points), nil
	case *shp.PolygonZ:
		return polygon(s.Parts, s.Points), nil
	case *shp.PolygonM:
		return polygon(s.Parts, s.Points), nil
	default:
		return nil, fmt.Errorf("unsupported shape type %T", shape)
	}
}

func multiPoint(points []shp.Point) orb.MultiPoint {
	out := make(orb.MultiPoint, len(points))
	for i, p := range points {
		out[i] = orb.Point{p.X, p.Y}
	}
	return out
}

func split(parts []int32, points []shp.Point) [][]orb.Point {
	out := make([][]orb.Point, 0, len(parts))
	for i, start := range parts {
		end := int32(len(points))
		if i+1 < len(parts) {
			end = parts[i+1]
		}
		if start < 0 || start > end || int(end) > len(points) {
			continue
		}
		ring := make([]orb.Point, 0, end-start)
		for _, p := range points[start:end] {
			ring = append(ring, orb.Point{p.X, p.Y})
		}
		out = append(out, ring)
	}
	return out
}

func lines(parts []int32, points []shp.Point) orb.Geometry {
	pieces := split(parts, points)
	if len(pieces) == 1 {
		return orb.LineString(pieces[0])
	}
	mls := make(orb.MultiLineString, len(pieces))
	for i, p := range pieces {
		mls[i] = orb.LineString(p)
	}
	return mls
}

// polygon groups rings into polygons. Shapefile outer rings are clockwise
// and holes counter-clockwise; a hole belongs to the preceding outer ring.
func polygon(parts []int32, points []shp.Point) orb.Geometry {
	var polys orb.MultiPolygon
	for _, piece := range split(parts, points) {
		ring := orb.Ring(piece)
		if ring.Orientation() == orb.CW || len(polys) == 0 {
			polys = append(polys, orb.Polygon{ring})
			continue
		}
		polys[len(polys)-1] = append(polys[len(polys)-1], ring)
	}
	if len(polys) == 1 {
		return polys[0]
	}
	return polys
}
