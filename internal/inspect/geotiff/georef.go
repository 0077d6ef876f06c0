package geotiff

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/google/tiff"

	"github.com/JakeFAU/geo-ingest/internal/ingest"
)

// GeoKey ids.
const (
	keyModelType      = 1024
	keyRasterType     = 1025
	keyCitation       = 1026
	keyGeographicType = 2048
	keyGeogCitation   = 2049
	keyProjectedType  = 3072
	keyPCSCitation    = 3073
)

const (
	userDefined     = 32767
	rasterIsPoint   = 2
	modelProjected  = 1
	modelGeographic = 2
)

// geoKeys decodes the GeoKey directory, resolving keys stored in the
// ASCII and DOUBLE parameter tags.
func geoKeys(info *Info, dir tiff.Field, fields map[uint16]tiff.Field) error {
	if id := dir.Type().ID(); id != typeShort {
		return fmt.Errorf("geokey directory has type %d", id)
	}
	keys := uints(dir)
	if len(keys) < 4 {
		return errors.New("geokey directory truncated")
	}
	n := int(keys[3])
	if len(keys) < 4+4*n {
		return errors.New("geokey directory truncated")
	}

	var params []float64
	if f, ok := fields[tagGeoDoubleParams]; ok {
		var err error
		if params, err = doubles(f); err != nil {
			return fmt.Errorf("geo double params: %w", err)
		}
	}
	ascii := ""
	if f, ok := fields[tagGeoASCIIParams]; ok && f.Type().ID() == typeASCII {
		ascii = string(f.Value().Bytes())
	}

	for i := 0; i < n; i++ {
		entry := keys[4+4*i : 8+4*i]
		id, loc, count, value := uint16(entry[0]), entry[1], int(entry[2]), int(entry[3])
		switch loc {
		case 0:
			info.ShortKeys[id] = uint16(value)
		case tagGeoASCIIParams:
			if value+count <= len(ascii) {
				info.ASCIIKeys[id] = strings.TrimRight(ascii[value:value+count], "|\x00 ")
			}
		case tagGeoDoubleParams:
			if value+count <= len(params) {
				info.DoubleKeys[id] = params[value : value+count]
			}
		}
	}
	return nil
}

// Bounds computes the model-space extent of the raster.
func (i *Info) Bounds() (ingest.Bounds, error) {
	if i.Width == 0 || i.Height == 0 {
		return ingest.Bounds{}, errors.New("raster has no pixels")
	}
	toModel, err := i.transform()
	if err != nil {
		return ingest.Bounds{}, err
	}

	shift := 0.0
	if i.ShortKeys[keyRasterType] == rasterIsPoint {
		shift = 0.5
	}
	w, h := float64(i.Width), float64(i.Height)
	b := ingest.Bounds{
		MinX: math.Inf(1), MinY: math.Inf(1),
		MaxX: math.Inf(-1), MaxY: math.Inf(-1),
	}
	for _, corner := range [][2]float64{{0, 0}, {w, 0}, {0, h}, {w, h}} {
		x, y := toModel(corner[0]-shift, corner[1]-shift)
		b.MinX = math.Min(b.MinX, x)
		b.MinY = math.Min(b.MinY, y)
		b.MaxX = math.Max(b.MaxX, x)
		b.MaxY = math.Max(b.MaxY, y)
	}
	if !finite(b.MinX, b.MinY, b.MaxX, b.MaxY) {
		return ingest.Bounds{}, errors.New("raster transform produced non-finite bounds")
	}
	return b, nil
}

func finite(vals ...float64) bool {
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func (i *Info) transform() (func(col, row float64) (float64, float64), error) {
	if len(i.Transformation) == 16 {
		m := i.Transformation
		return func(col, row float64) (float64, float64) {
			return m[0]*col + m[1]*row + m[3], m[4]*col + m[5]*row + m[7]
		}, nil
	}
	if len(i.Tiepoints) >= 6 && len(i.PixelScale) >= 2 {
		tp, sx, sy := i.Tiepoints, i.PixelScale[0], i.PixelScale[1]
		if sx == 0 || sy == 0 {
			return nil, errors.New("zero pixel scale")
		}
		return func(col, row float64) (float64, float64) {
			return tp[3] + (col-tp[0])*sx, tp[4] - (row-tp[1])*sy
		}, nil
	}
	return nil, ErrNotGeoreferenced
}

// EPSG returns the code of the raster's reference system.
func (i *Info) EPSG() (int, error) {
	if code, ok := i.ShortKeys[keyProjectedType]; ok && code != userDefined && code != 0 {
		return int(code), nil
	}
	if i.ShortKeys[keyModelType] == modelProjected {
		return 0, errors.New("projected raster uses a user-defined coordinate system")
	}
	if code, ok := i.ShortKeys[keyGeographicType]; ok && code != userDefined && code != 0 {
		return int(code), nil
	}
	if len(i.ShortKeys) == 0 {
		return 0, errors.New("raster has no geokeys")
	}
	return 0, errors.New("raster coordinate system has no EPSG code")
}

// CRSName returns the citation describing the reference system, falling
// back to "EPSG:<code>".
func (i *Info) CRSName(epsg int) string {
	for _, key := range []uint16{keyPCSCitation, keyCitation, keyGeogCitation} {
		if s := i.ASCIIKeys[key]; s != "" {
			return s
		}
	}
	return fmt.Sprintf("EPSG:%d", epsg)
}

// Geographic reports whether the model space is latitude/longitude.
func (i *Info) Geographic() bool {
	return i.ShortKeys[keyModelType] == modelGeographic
}
