package inspect

import (
	"go.uber.org/zap"

	"github.com/JakeFAU/geo-ingest/internal/ingest"
	"github.com/JakeFAU/geo-ingest/internal/metrics"
)

// Projector reprojects a bounding box into the canonical reference frame.
type Projector interface {
	Project(md *ingest.SpatialMetadata) (*ingest.SpatialMetadata, error)
}

// AttachProjection sets md.Projected. Failures are logged and swallowed;
// md keeps its base bounding box.
func AttachProjection(
	md *ingest.SpatialMetadata,
	projector Projector,
	logger *zap.Logger,
	res *ingest.DataResource,
) {
	if md == nil || projector == nil {
		return
	}
	projected, err := projector.Project(md)
	if err == nil {
		err = projected.Validate()
	}
	if err != nil {
		md.Projected = nil
		dataType := ""
		if res.DataType != nil {
			dataType = res.DataType.Type()
		}
		metrics.ObserveProjectionFailure(dataType)
		if logger != nil {
			logger.Warn("could not compute projected spatial metadata",
				zap.String("data_id", res.DataID),
				zap.String("data_type", dataType),
				zap.Int("epsg", md.EpsgCode),
				zap.Error(ingest.Projection("project metadata", err)),
			)
		}
		return
	}
	md.Projected = projected
}

// FallbackEPSG returns the EPSG code assumed for vector data with no usable
// reference system, logging the assumption.
func FallbackEPSG(logger *zap.Logger, res *ingest.DataResource, reason string) int {
	if logger != nil {
		logger.Warn("assuming default EPSG for unreferenced vector data",
			zap.String("data_id", res.DataID),
			zap.Int("epsg", ingest.DefaultVectorEPSG),
			zap.String("reason", reason),
		)
	}
	return ingest.DefaultVectorEPSG
}
