package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/geo-ingest/internal/config"
	"github.com/JakeFAU/geo-ingest/internal/id/uuid"
	"github.com/JakeFAU/geo-ingest/internal/ingest"
	"github.com/JakeFAU/geo-ingest/internal/inspect/source"
	"github.com/JakeFAU/geo-ingest/internal/server"
	localstorage "github.com/JakeFAU/geo-ingest/internal/storage/local"
	memoryStorage "github.com/JakeFAU/geo-ingest/internal/storage/memory"
)

func newInspectCmd() *cobra.Command {
	var (
		dataType string
		host     bool
	)
	cmd := &cobra.Command{
		Use:   "inspect FILE",
		Short: "Inspects a local file and prints the resulting resource",
		Long: `Runs a single GeoJSON, GeoTIFF or zipped shapefile through the same
inspectors the worker uses. With --host, vector features are loaded into an
in-memory table and rasters are copied to an in-memory store; the table and
object counts are logged.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := resolveEnv(cmd.Context())
			if err != nil {
				return err
			}
			res, err := inspectFile(cmd.Context(), e.cfg, e.logger, args[0], dataType, host)
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(res, "", "  ")
			if err != nil {
				return fmt.Errorf("encode resource: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return err
		},
	}
	cmd.Flags().StringVar(&dataType, "type", "", "data type: geojson, raster or shapefile (default: by extension)")
	cmd.Flags().BoolVar(&host, "host", false, "persist features or raster copies in memory")
	return cmd
}

// typeForPath maps a file extension to a data type tag.
func typeForPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".geojson", ".json":
		return ingest.TypeGeoJSON
	case ".tif", ".tiff":
		return ingest.TypeRaster
	case ".zip":
		return ingest.TypeShapefile
	default:
		return ""
	}
}

func inspectFile(
	ctx context.Context,
	cfg config.Config,
	logger *zap.Logger,
	path, dataType string,
	host bool,
) (*ingest.DataResource, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}
	if dataType == "" {
		dataType = typeForPath(abs)
	}
	loc := &ingest.Location{Type: ingest.LocationFolderShared, FilePath: filepath.Base(abs)}
	var dt ingest.DataType
	switch dataType {
	case ingest.TypeGeoJSON:
		dt = &ingest.GeoJSONDataType{Location: loc}
	case ingest.TypeRaster:
		dt = &ingest.RasterDataType{Location: loc}
	case ingest.TypeShapefile:
		dt = &ingest.ShapefileDataType{Location: loc}
	default:
		return nil, fmt.Errorf("cannot infer data type for %s; pass --type", path)
	}

	folder, err := localstorage.New(localstorage.Config{BaseDir: filepath.Dir(abs)})
	if err != nil {
		return nil, fmt.Errorf("open folder: %w", err)
	}
	features := memoryStorage.NewFeatureStore()
	hosted := memoryStorage.NewBlobStore(ingest.LocationFolderShared, "")
	dispatcher, err := server.NewDispatcher(server.Inspectors{
		Config:   server.InspectConfig(cfg),
		Opener:   source.NewResolver().Register(ingest.LocationFolderShared, folder),
		Hosted:   hosted,
		Features: features,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}

	dataID, err := uuid.New().NewID()
	if err != nil {
		return nil, fmt.Errorf("assign data id: %w", err)
	}
	res, err := dispatcher.Dispatch(ctx, &ingest.DataResource{DataID: dataID, DataType: dt}, ingest.PersistModeFromHost(host))
	if err != nil {
		return nil, err
	}
	if host {
		for _, name := range features.Tables() {
			table, _ := features.Table(name)
			logger.Info("features loaded",
				zap.String("table", name),
				zap.Int("srid", table.SRID),
				zap.Int("features", len(table.Features)),
			)
		}
		if n := hosted.Len(); n > 0 {
			logger.Info("raster hosted", zap.Int("objects", n))
		}
	}
	return res, nil
}
