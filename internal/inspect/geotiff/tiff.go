package geotiff

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/google/tiff"
)

// TIFF tags read from the first IFD.
const (
	tagImageWidth          = 256
	tagImageLength         = 257
	tagModelPixelScale     = 33550
	tagModelTiepoint       = 33922
	tagModelTransformation = 34264
	tagGeoKeyDirectory     = 34735
	tagGeoDoubleParams     = 34736
	tagGeoASCIIParams      = 34737
)

// TIFF field type ids.
const (
	typeByte   = 1
	typeASCII  = 2
	typeShort  = 3
	typeLong   = 4
	typeDouble = 12
)

// ErrNotGeoreferenced is returned for TIFFs without model placement tags.
var ErrNotGeoreferenced = errors.New("tiff is not georeferenced")

// Info is the georeferencing found in a GeoTIFF.
type Info struct {
	Width          uint32
	Height         uint32
	PixelScale     []float64
	Tiepoints      []float64
	Transformation []float64
	ShortKeys      map[uint16]uint16
	ASCIIKeys      map[uint16]string
	DoubleKeys     map[uint16][]float64
}

// Read parses a classic TIFF and returns the georeferencing of its first IFD.
func Read(r io.ReaderAt, size int64) (*Info, error) {
	if err := sniff(r); err != nil {
		return nil, err
	}
	t, err := tiff.Parse(io.NewSectionReader(r, 0, size), tiff.DefaultTagSpace, tiff.DefaultFieldTypeSpace)
	if err != nil {
		return nil, fmt.Errorf("parse tiff: %w", err)
	}
	ifds := t.IFDs()
	if len(ifds) == 0 {
		return nil, errors.New("tiff has no image directory")
	}
	fields := make(map[uint16]tiff.Field, len(ifds[0].Fields()))
	for _, f := range ifds[0].Fields() {
		if f == nil || f.Tag() == nil || f.Value() == nil {
			continue
		}
		fields[f.Tag().ID()] = f
	}
	return info(fields)
}

// sniff checks the byte order mark and magic so callers get a clear reason
// for files that are not classic TIFFs.
func sniff(r io.ReaderAt) error {
	header := make([]byte, 4)
	if _, err := r.ReadAt(header, 0); err != nil {
		return fmt.Errorf("read tiff header: %w", err)
	}
	var order binary.ByteOrder
	switch string(header[:2]) {
	case "II":
		order = binary.LittleEndian
	case "MM":
		order = binary.BigEndian
	default:
		return errors.New("not a tiff file")
	}
	switch magic := order.Uint16(header[2:4]); magic {
	case 42:
		return nil
	case 43:
		return errors.New("bigtiff is not supported")
	default:
		return fmt.Errorf("bad tiff magic %d", magic)
	}
}

func uints(f tiff.Field) []uint32 {
	n, raw, order := int(f.Count()), f.Value().Bytes(), f.Value().Order()
	out := make([]uint32, 0, n)
	for i := 0; i < n; i++ {
		switch f.Type().ID() {
		case typeShort:
			if len(raw) >= (i+1)*2 {
				out = append(out, uint32(order.Uint16(raw[i*2:])))
			}
		case typeLong:
			if len(raw) >= (i+1)*4 {
				out = append(out, order.Uint32(raw[i*4:]))
			}
		case typeByte:
			if len(raw) > i {
				out = append(out, uint32(raw[i]))
			}
		}
	}
	return out
}

func doubles(f tiff.Field) ([]float64, error) {
	if id := f.Type().ID(); id != typeDouble {
		return nil, fmt.Errorf("expected DOUBLE values, got type %d", id)
	}
	n, raw, order := int(f.Count()), f.Value().Bytes(), f.Value().Order()
	if len(raw) < n*8 {
		return nil, fmt.Errorf("field holds %d bytes, want %d", len(raw), n*8)
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = math.Float64frombits(order.Uint64(raw[i*8:]))
	}
	return out, nil
}

func info(fields map[uint16]tiff.Field) (*Info, error) {
	info := &Info{
		ShortKeys:  map[uint16]uint16{},
		ASCIIKeys:  map[uint16]string{},
		DoubleKeys: map[uint16][]float64{},
	}
	for tag, dst := range map[uint16]*uint32{tagImageWidth: &info.Width, tagImageLength: &info.Height} {
		f, ok := fields[tag]
		if !ok {
			return nil, fmt.Errorf("missing tiff tag %d", tag)
		}
		vals := uints(f)
		if len(vals) == 0 {
			return nil, fmt.Errorf("empty tiff tag %d", tag)
		}
		*dst = vals[0]
	}

	var err error
	for tag, dst := range map[uint16]*[]float64{
		tagModelPixelScale:     &info.PixelScale,
		tagModelTiepoint:       &info.Tiepoints,
		tagModelTransformation: &info.Transformation,
	} {
		f, ok := fields[tag]
		if !ok {
			continue
		}
		if *dst, err = doubles(f); err != nil {
			return nil, fmt.Errorf("tag %d: %w", tag, err)
		}
	}

	if f, ok := fields[tagGeoKeyDirectory]; ok {
		if err := geoKeys(info, f, fields); err != nil {
			return nil, err
		}
	}
	return info, nil
}
