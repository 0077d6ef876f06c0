package server

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/geo-ingest/internal/config"
	"github.com/JakeFAU/geo-ingest/internal/ingest"
	"github.com/JakeFAU/geo-ingest/internal/inspect"
	"github.com/JakeFAU/geo-ingest/internal/inspect/geojson"
	"github.com/JakeFAU/geo-ingest/internal/inspect/geotiff"
	"github.com/JakeFAU/geo-ingest/internal/inspect/projection"
	"github.com/JakeFAU/geo-ingest/internal/inspect/shapefile"
)

// Inspectors holds the collaborators shared by the registered inspectors.
type Inspectors struct {
	Config   inspect.Config
	Opener   inspect.Opener
	Hosted   ingest.BlobStore
	Features ingest.FeatureStore
	Logger   *zap.Logger
}

// NewDispatcher registers the GeoJSON, raster and shapefile inspectors.
func NewDispatcher(deps Inspectors) (*inspect.Dispatcher, error) {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	projector := projection.New()
	d := inspect.NewDispatcher()
	registrations := []struct {
		tag       string
		inspector inspect.Inspector
	}{
		{ingest.TypeGeoJSON, geojson.New(deps.Config, deps.Opener, deps.Features, projector, logger.Named("geojson"))},
		{ingest.TypeRaster, geotiff.New(deps.Config, deps.Opener, deps.Hosted, projector, logger.Named("geotiff"))},
		{ingest.TypeShapefile, shapefile.New(deps.Config, deps.Opener, deps.Features, projector, logger.Named("shapefile"))},
	}
	for _, r := range registrations {
		if err := d.Register(r.tag, r.inspector); err != nil {
			return nil, fmt.Errorf("register %s inspector: %w", r.tag, err)
		}
	}
	return d, nil
}

// InspectConfig derives the inspector settings from cfg.
func InspectConfig(cfg config.Config) inspect.Config {
	return inspect.Config{
		TempDir:         cfg.Storage.TempDir,
		MaxExtractBytes: cfg.Storage.MaxExtractBytes,
		HostedPrefix:    cfg.Storage.Prefix,
	}
}
