// Package geojson inspects GeoJSON resources and loads their features into
// the feature store.
package geojson

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	orbjson "github.com/paulmach/orb/geojson"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/JakeFAU/geo-ingest/internal/ingest"
	"github.com/JakeFAU/geo-ingest/internal/inspect"
	"github.com/JakeFAU/geo-ingest/internal/inspect/crs"
)

const defaultMaxBytes = 512 << 20

// Inspector handles the geojson data type.
type Inspector struct {
	cfg       inspect.Config
	opener    inspect.Opener
	store     ingest.FeatureStore
	projector inspect.Projector
	logger    *zap.Logger
}

// New creates a GeoJSON Inspector.
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

// Inspect parses the GeoJSON, writes its features to the store and records
// the spatial metadata. GeoJSON metadata is derived while loading into the
// store, so MetadataOnly leaves the resource untouched.
func (i *Inspector) Inspect(
	ctx context.Context,
	res *ingest.DataResource,
	mode ingest.PersistMode,
) (*ingest.DataResource, error) {
	dt, ok := res.DataType.(*ingest.GeoJSONDataType)
	if !ok {
		return nil, ingest.Unsupported(res.DataType.Type())
	}
	if !mode.Persist() {
		i.logger.Debug("geojson not hosted; skipping feature load",
			zap.String("data_id", res.DataID))
		return res, nil
	}
	if i.store == nil {
		return nil, ingest.Persistence("load geojson", errors.New("no feature store configured"))
	}
	if err := ingest.ValidateTableName(res.DataID); err != nil {
		return nil, ingest.Persistence("store geojson features", err)
	}

	data, err := i.load(ctx, dt)
	if err != nil {
		return nil, err
	}
	features, err := parse(data)
	if err != nil {
		return nil, ingest.Extraction("parse geojson", err)
	}
	bounds, err := extent(features)
	if err != nil {
		return nil, ingest.Extraction("geojson extent", err)
	}

	md := ingest.NewSpatialMetadata(bounds, 0)
	md.NumFeatures = len(features)
	if code, name, ok := declaredCRS(data); ok {
		md.EpsgCode = code
		md.CoordinateReferenceSystem = name
	} else {
		md.EpsgCode = inspect.FallbackEPSG(i.logger, res, "geojson declares no crs")
		md.EpsgFallback = true
		md.CoordinateReferenceSystem = fmt.Sprintf("EPSG:%d", md.EpsgCode)
	}
	if err := md.Validate(); err != nil {
		return nil, ingest.Extraction("geojson metadata", err)
	}

	records, err := toRecords(features)
	if err != nil {
		return nil, ingest.Extraction("encode geojson features", err)
	}
	if err := i.store.ReplaceFeatures(ctx, res.DataID, md.EpsgCode, records); err != nil {
		return nil, ingest.Persistence("store geojson features", err)
	}
	dt.DatabaseTableName = res.DataID

	inspect.AttachProjection(md, i.projector, i.logger, res)
	res.SpatialMetadata = md
	return res, nil
}

func (i *Inspector) load(ctx context.Context, dt *ingest.GeoJSONDataType) ([]byte, error) {
	if dt.GeoJSONContent != "" {
		return []byte(dt.GeoJSONContent), nil
	}
	if dt.Location == nil {
		return nil, ingest.Extraction("load geojson", errors.New("neither geoJsonContent nor location given"))
	}
	if i.opener == nil {
		return nil, ingest.Extraction("load geojson", errors.New("no source resolver configured"))
	}
	rc, err := i.opener.Open(ctx, dt.Location)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()

	limit := i.cfg.MaxExtractBytes
	if limit <= 0 {
		limit = defaultMaxBytes
	}
	data, err := io.ReadAll(io.LimitReader(rc, limit+1))
	if err != nil {
		return nil, ingest.Extraction("read geojson", err)
	}
	if int64(len(data)) > limit {
		return nil, ingest.Extraction("read geojson", fmt.Errorf("document exceeds %d bytes", limit))
	}
	return data, nil
}

func parse(data []byte) ([]*orbjson.Feature, error) {
	if !gjson.ValidBytes(data) {
		return nil, errors.New("invalid JSON")
	}
	switch kind := gjson.GetBytes(data, "type").String(); kind {
	case "FeatureCollection":
		fc, err := orbjson.UnmarshalFeatureCollection(data)
		if err != nil {
			return nil, fmt.Errorf("feature collection: %w", err)
		}
		return fc.Features, nil
	case "Feature":
		f, err := orbjson.UnmarshalFeature(data)
		if err != nil {
			return nil, fmt.Errorf("feature: %w", err)
		}
		return []*orbjson.Feature{f}, nil
	case "Point", "MultiPoint", "LineString", "MultiLineString", "Polygon", "MultiPolygon", "GeometryCollection":
		g, err := orbjson.UnmarshalGeometry(data)
		if err != nil {
			return nil, fmt.Errorf("geometry: %w", err)
		}
		return []*orbjson.Feature{orbjson.NewFeature(g.Geometry())}, nil
	case "":
		return nil, errors.New("missing type member")
	default:
		return nil, fmt.Errorf("unknown GeoJSON type %q", kind)
	}
}

func extent(features []*orbjson.Feature) (ingest.Bounds, error) {
	b := ingest.Bounds{
		MinX: math.Inf(1), MinY: math.Inf(1),
		MaxX: math.Inf(-1), MaxY: math.Inf(-1),
	}
	found := false
	for _, f := range features {
		if f == nil || f.Geometry == nil {
			continue
		}
		fb := f.Geometry.Bound()
		if fb.Min[0] > fb.Max[0] || fb.Min[1] > fb.Max[1] {
			continue
		}
		found = true
		b.MinX = math.Min(b.MinX, fb.Min[0])
		b.MinY = math.Min(b.MinY, fb.Min[1])
		b.MaxX = math.Max(b.MaxX, fb.Max[0])
		b.MaxY = math.Max(b.MaxY, fb.Max[1])
	}
	if !found {
		return ingest.Bounds{}, errors.New("document contains no geometries")
	}
	return b, nil
}

// declaredCRS reads the pre-RFC 7946 "crs" member.
func declaredCRS(data []byte) (int, string, bool) {
	member := gjson.GetBytes(data, "crs")
	if !member.Exists() {
		return 0, "", false
	}
	switch strings.ToLower(member.Get("type").String()) {
	case "name":
		name := member.Get("properties.name").String()
		if code, ok := crs.ParseName(name); ok {
			return code, name, true
		}
	case "epsg":
		if code := int(member.Get("properties.code").Int()); code > 0 {
			return code, fmt.Sprintf("EPSG:%d", code), true
		}
	}
	return 0, "", false
}

func toRecords(features []*orbjson.Feature) ([]ingest.Feature, error) {
	records := make([]ingest.Feature, 0, len(features))
	for _, f := range features {
		if f == nil {
			continue
		}
		rec := ingest.Feature{Properties: map[string]any(f.Properties)}
		if f.Geometry != nil {
			geom, err := json.Marshal(orbjson.NewGeometry(f.Geometry))
			if err != nil {
				return nil, err
			}
			rec.Geometry = geom
		}
		records = append(records, rec)
	}
	return records, nil
}
