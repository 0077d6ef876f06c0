package ingest

import "fmt"

// EPSG codes the pipeline treats specially.
const (
	// EPSGWGS84 is the canonical frame for projected metadata.
	EPSGWGS84 = 4326
	// DefaultVectorEPSG is assumed for vector inputs that declare no CRS.
	DefaultVectorEPSG = EPSGWGS84
)

// Bounds is an axis-aligned bounding box.
type Bounds struct {
	MinX float64
	MinY float64
	MaxX float64
	MaxY float64
}

// Valid reports whether the box is non-inverted.
func (b Bounds) Valid() bool {
	return b.MinX <= b.MaxX && b.MinY <= b.MaxY
}

// SpatialMetadata describes the extent and reference system of a resource.
type SpatialMetadata struct {
	MinX                      float64          `json:"minX"`
	MinY                      float64          `json:"minY"`
	MaxX                      float64          `json:"maxX"`
	MaxY                      float64          `json:"maxY"`
	CoordinateReferenceSystem string           `json:"coordinateReferenceSystem,omitempty"`
	EpsgCode                  int              `json:"epsgCode,omitempty"`
	NumFeatures               int              `json:"numFeatures,omitempty"`
	EpsgFallback              bool             `json:"epsgFallback,omitempty"`
	Projected                 *SpatialMetadata `json:"projectedSpatialMetadata,omitempty"`
}

// NewSpatialMetadata builds metadata from a bounding box and EPSG code.
func NewSpatialMetadata(b Bounds, epsg int) *SpatialMetadata {
	return &SpatialMetadata{
		MinX:     b.MinX,
		MinY:     b.MinY,
		MaxX:     b.MaxX,
		MaxY:     b.MaxY,
		EpsgCode: epsg,
	}
}

// Bounds returns the bounding box.
func (m *SpatialMetadata) Bounds() Bounds {
	return Bounds{MinX: m.MinX, MinY: m.MinY, MaxX: m.MaxX, MaxY: m.MaxY}
}

// Validate enforces the bounding box ordering and the presence of an EPSG code.
func (m *SpatialMetadata) Validate() error {
	if m == nil {
		return nil
	}
	if !m.Bounds().Valid() {
		return fmt.Errorf("invalid bounding box [%g %g %g %g]", m.MinX, m.MinY, m.MaxX, m.MaxY)
	}
	if m.EpsgCode <= 0 {
		return fmt.Errorf("epsg code must be > 0, got %d", m.EpsgCode)
	}
	if m.NumFeatures < 0 {
		return fmt.Errorf("numFeatures must be >= 0, got %d", m.NumFeatures)
	}
	if m.Projected != nil {
		if err := m.Projected.Validate(); err != nil {
			return fmt.Errorf("projected: %w", err)
		}
	}
	return nil
}
