// Package shapefile inspects zipped ESRI shapefiles and loads their features
// into the feature store.
package shapefile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jonas-p/go-shp"
	"go.uber.org/zap"

	"github.com/JakeFAU/geo-ingest/internal/ingest"
	"github.com/JakeFAU/geo-ingest/internal/inspect"
	"github.com/JakeFAU/geo-ingest/internal/inspect/crs"
	"github.com/JakeFAU/geo-ingest/internal/inspect/scratch"
)

// Inspector handles the shapefile data type.
type Inspector struct {
	cfg       inspect.Config
	opener    inspect.Opener
	store     ingest.FeatureStore
	projector inspect.Projector
	logger    *zap.Logger
}

// New creates a shapefile Inspector.
func New(
	cfg inspect.Config,
	opener inspect.Opener,
	store ingest.FeatureStore,
	projector inspect.Projector,
	logger *zap.Logger,
) *Inspector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Inspector{cfg: cfg, opener: opener, store: store, projector: projector, logger: logger}
}

// Inspect downloads and unpacks the archive, reads the layer extent and
// reference system and, when persisting, loads the features into a table
// named after the layer and the data id.
func (i *Inspector) Inspect(
	ctx context.Context,
	res *ingest.DataResource,
	mode ingest.PersistMode,
) (*ingest.DataResource, error) {
	dt, ok := res.DataType.(*ingest.ShapefileDataType)
	if !ok {
		return nil, ingest.Unsupported(res.DataType.Type())
	}
	if dt.Location == nil {
		return nil, ingest.Extraction("load shapefile", errors.New("shapefile requires a location"))
	}
	if i.opener == nil {
		return nil, ingest.Extraction("load shapefile", errors.New("no source resolver configured"))
	}

	dir, err := scratch.New(i.cfg.TempDir, "shapefile-"+res.DataID)
	if err != nil {
		return nil, ingest.Unclassified("prepare scratch dir", err)
	}
	defer func() {
		if cerr := dir.Close(); cerr != nil {
			i.logger.Warn("scratch cleanup failed", zap.String("data_id", res.DataID), zap.Error(cerr))
		}
	}()

	layerPath, prjPath, err := i.unpack(ctx, dir, dt.Location, res.DataID)
	if err != nil {
		return nil, err
	}

	layer, err := readLayer(layerPath, mode.Persist())
	if err != nil {
		return nil, ingest.Extraction("read shapefile", err)
	}

	md := ingest.NewSpatialMetadata(layer.bounds, 0)
	md.NumFeatures = layer.count
	wkt, code, found := readPRJ(prjPath)
	md.CoordinateReferenceSystem = wkt
	switch {
	case found:
		md.EpsgCode = code
	case wkt == "":
		md.EpsgCode = inspect.FallbackEPSG(i.logger, res, "shapefile has no .prj")
		md.EpsgFallback = true
	default:
		md.EpsgCode = inspect.FallbackEPSG(i.logger, res, "no EPSG code in .prj")
		md.EpsgFallback = true
	}
	if err := md.Validate(); err != nil {
		return nil, ingest.Extraction("shapefile metadata", err)
	}

	if mode.Persist() {
		if i.store == nil {
			return nil, ingest.Persistence("store shapefile features", errors.New("no feature store configured"))
		}
		table := TableName(layer.name, res.DataID)
		if err := ingest.ValidateTableName(table); err != nil {
			return nil, ingest.Persistence("store shapefile features", err)
		}
		if err := i.store.ReplaceFeatures(ctx, table, md.EpsgCode, layer.features); err != nil {
			return nil, ingest.Persistence("store shapefile features", err)
		}
		dt.DatabaseTableName = table
	}

	inspect.AttachProjection(md, i.projector, i.logger, res)
	res.SpatialMetadata = md
	return res, nil
}

func (i *Inspector) unpack(
	ctx context.Context,
	dir *scratch.Dir,
	loc *ingest.Location,
	dataID string,
) (string, string, error) {
	rc, err := i.opener.Open(ctx, loc)
	if err != nil {
		return "", "", err
	}
	archive, err := dir.WriteFile(dataID+".zip", rc)
	_ = rc.Close()
	if err != nil {
		return "", "", ingest.Extraction("download shapefile", err)
	}
	files, err := dir.Unzip(archive, "extract", i.cfg.MaxExtractBytes)
	if err != nil {
		return "", "", ingest.Extraction("unzip shapefile", err)
	}
	layer, prj, err := findLayer(files)
	if err != nil {
		return "", "", ingest.Extraction("unzip shapefile", err)
	}
	return layer, prj, nil
}

// findLayer picks the first .shp in name order and its sibling .prj.
func findLayer(files []string) (string, string, error) {
	var shps []string
	for _, f := range files {
		if strings.EqualFold(filepath.Ext(f), ".shp") {
			shps = append(shps, f)
		}
	}
	if len(shps) == 0 {
		return "", "", errors.New("archive contains no .shp file")
	}
	sort.Strings(shps)
	layer := shps[0]
	stem := strings.TrimSuffix(layer, filepath.Ext(layer))
	prj := ""
	for _, f := range files {
		if strings.EqualFold(filepath.Ext(f), ".prj") && strings.TrimSuffix(f, filepath.Ext(f)) == stem {
			prj = f
			break
		}
	}
	return layer, prj, nil
}

func readPRJ(path string) (string, int, bool) {
	if path == "" {
		return "", 0, false
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", 0, false
	}
	wkt := strings.TrimSpace(string(data))
	code, ok := crs.ParseWKT(wkt)
	return wkt, code, ok
}

// TableName derives the feature table for a layer. The layer part is
// shortened so the full data id fits the identifier limit; a data id too
// long to fit yields a name the feature store rejects.
func TableName(layer, dataID string) string {
	name := strings.ToLower(strings.TrimSuffix(filepath.Base(layer), filepath.Ext(layer)))
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
	if name == "" {
		name = "layer"
	}
	// The data id is what makes the table unique, so the layer gives way.
	if budget := ingest.MaxTableNameLen - len(dataID) - 1; len(name) > budget {
		name = name[:max(budget, 1)]
	}
	return fmt.Sprintf("%s_%s", name, dataID)
}

type layerData struct {
	name     string
	bounds   ingest.Bounds
	count    int
	features []ingest.Feature
}

func readLayer(path string, withFeatures bool) (*layerData, error) {
	r, err := shp.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", filepath.Base(path), err)
	}
	defer func() { _ = r.Close() }()

	box := r.BBox()
	out := &layerData{
		name:   filepath.Base(path),
		bounds: ingest.Bounds{MinX: box.MinX, MinY: box.MinY, MaxX: box.MaxX, MaxY: box.MaxY},
	}
	fields := r.Fields()
	for r.Next() {
		row, shape := r.Shape()
		out.count++
		if !withFeatures {
			continue
		}
		feature, err := toFeature(shape)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", row, err)
		}
		feature.Properties = make(map[string]any, len(fields))
		for idx, f := range fields {
			feature.Properties[f.String()] = strings.Trim(r.ReadAttribute(row, idx), " \x00")
		}
		out.features = append(out.features, feature)
	}
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	if out.count == 0 {
		return nil, errors.New("layer contains no features")
	}
	return out, nil
}
