// Package geotiff inspects GeoTIFF rasters.
package geotiff

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"

	"go.uber.org/zap"

	"github.com/JakeFAU/geo-ingest/internal/ingest"
	"github.com/JakeFAU/geo-ingest/internal/inspect"
	"github.com/JakeFAU/geo-ingest/internal/inspect/scratch"
)

const contentType = "image/tiff"

// Inspector handles the raster data type.
type Inspector struct {
	cfg       inspect.Config
	opener    inspect.Opener
	hosted    ingest.BlobStore
	projector inspect.Projector
	logger    *zap.Logger
}

// New creates a GeoTIFF Inspector. hosted receives a copy of the raster
// when the job asks for persistence.
func New(
	cfg inspect.Config,
	opener inspect.Opener,
	hosted ingest.BlobStore,
	projector inspect.Projector,
	logger *zap.Logger,
) *Inspector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Inspector{cfg: cfg, opener: opener, hosted: hosted, projector: projector, logger: logger}
}

// Inspect downloads the raster to a scratch directory, reads its
// georeferencing and, when persisting, copies it into the hosted store.
func (i *Inspector) Inspect(
	ctx context.Context,
	res *ingest.DataResource,
	mode ingest.PersistMode,
) (*ingest.DataResource, error) {
	dt, ok := res.DataType.(*ingest.RasterDataType)
	if !ok {
		return nil, ingest.Unsupported(res.DataType.Type())
	}
	if dt.Location == nil {
		return nil, ingest.Extraction("load raster", errors.New("raster requires a location"))
	}
	if i.opener == nil {
		return nil, ingest.Extraction("load raster", errors.New("no source resolver configured"))
	}

	dir, err := scratch.New(i.cfg.TempDir, "geotiff-"+res.DataID)
	if err != nil {
		return nil, ingest.Unclassified("prepare scratch dir", err)
	}
	defer func() {
		if cerr := dir.Close(); cerr != nil {
			i.logger.Warn("scratch cleanup failed", zap.String("data_id", res.DataID), zap.Error(cerr))
		}
	}()

	local, err := i.fetch(ctx, dir, dt.Location, res.DataID+".tif")
	if err != nil {
		return nil, err
	}
	md, err := readMetadata(local)
	if err != nil {
		return nil, ingest.Extraction("read geotiff", err)
	}

	if mode.Persist() {
		loc, err := i.host(ctx, local, res.DataID)
		if err != nil {
			return nil, ingest.Persistence("host geotiff", err)
		}
		dt.Location = &loc
	}

	inspect.AttachProjection(md, i.projector, i.logger, res)
	res.SpatialMetadata = md
	return res, nil
}

func (i *Inspector) fetch(ctx context.Context, dir *scratch.Dir, loc *ingest.Location, name string) (string, error) {
	rc, err := i.opener.Open(ctx, loc)
	if err != nil {
		return "", err
	}
	defer func() { _ = rc.Close() }()
	local, err := dir.WriteFile(name, rc)
	if err != nil {
		return "", ingest.Extraction("download raster", err)
	}
	return local, nil
}

func readMetadata(file string) (*ingest.SpatialMetadata, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	st, err := f.Stat()
	if err != nil {
		return nil, err
	}
	info, err := Read(f, st.Size())
	if err != nil {
		return nil, err
	}
	bounds, err := info.Bounds()
	if err != nil {
		return nil, err
	}
	epsg, err := info.EPSG()
	if err != nil {
		return nil, err
	}
	md := ingest.NewSpatialMetadata(bounds, epsg)
	md.CoordinateReferenceSystem = info.CRSName(epsg)
	if err := md.Validate(); err != nil {
		return nil, err
	}
	return md, nil
}

func (i *Inspector) host(ctx context.Context, file, dataID string) (ingest.Location, error) {
	if i.hosted == nil {
		return ingest.Location{}, errors.New("no hosted blob store configured")
	}
	f, err := os.Open(file)
	if err != nil {
		return ingest.Location{}, fmt.Errorf("open local raster: %w", err)
	}
	defer func() { _ = f.Close() }()
	key := path.Join(i.cfg.HostedPrefix, dataID, dataID+".tif")
	loc, err := i.hosted.PutObject(ctx, key, contentType, io.Reader(f))
	if err != nil {
		return ingest.Location{}, err
	}
	return loc, nil
}
