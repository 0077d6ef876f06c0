// Package projection reprojects bounding boxes into EPSG:4326.
package projection

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"

	"github.com/JakeFAU/geo-ingest/internal/ingest"
)

// Projector converts boxes from the reference systems it knows into WGS84.
type Projector struct {
	transforms map[int]orb.Projection
}

// New creates a Projector supporting geographic WGS84 and its equivalents
// as well as spherical (web) Mercator.
func New() *Projector {
	identity := func(p orb.Point) orb.Point { return p }
	return &Projector{
		transforms: map[int]orb.Projection{
			4326:   identity,
			4269:   identity,
			4258:   identity,
			3857:   project.Mercator.ToWGS84,
			900913: project.Mercator.ToWGS84,
			102100: project.Mercator.ToWGS84,
			102113: project.Mercator.ToWGS84,
		},
	}
}

// Supports reports whether epsg can be reprojected.
func (p *Projector) Supports(epsg int) bool {
	_, ok := p.transforms[epsg]
	return ok
}

// Project returns a copy of md's bounding box in EPSG:4326.
func (p *Projector) Project(md *ingest.SpatialMetadata) (*ingest.SpatialMetadata, error) {
	if md == nil {
		return nil, fmt.Errorf("no spatial metadata to project")
	}
	transform, ok := p.transforms[md.EpsgCode]
	if !ok {
		return nil, fmt.Errorf("no transform from EPSG:%d to EPSG:%d", md.EpsgCode, ingest.EPSGWGS84)
	}
	lo := transform(orb.Point{md.MinX, md.MinY})
	hi := transform(orb.Point{md.MaxX, md.MaxY})
	bound := orb.Bound{Min: lo, Max: lo}.Extend(hi)
	out := ingest.NewSpatialMetadata(ingest.Bounds{
		MinX: bound.Min.X(),
		MinY: bound.Min.Y(),
		MaxX: bound.Max.X(),
		MaxY: bound.Max.Y(),
	}, ingest.EPSGWGS84)
	out.CoordinateReferenceSystem = "EPSG:4326"
	out.NumFeatures = md.NumFeatures
	return out, nil
}
