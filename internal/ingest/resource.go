package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Data type tags understood by the pipeline.
const (
	TypeGeoJSON   = "geojson"
	TypeRaster    = "raster"
	TypeShapefile = "shapefile"
)

// DataType is the tagged payload descriptor of a DataResource.
type DataType interface {
	Type() string
}

// GeoJSONDataType carries GeoJSON either inline or by location.
type GeoJSONDataType struct {
	GeoJSONContent    string    `json:"geoJsonContent,omitempty"`
	Location          *Location `json:"location,omitempty"`
	DatabaseTableName string    `json:"databaseTableName,omitempty"`
	MimeType          string    `json:"mimeType,omitempty"`
}

// Type implements DataType.
func (*GeoJSONDataType) Type() string { return TypeGeoJSON }

// RasterDataType references a GeoTIFF.
type RasterDataType struct {
	Location *Location `json:"location,omitempty"`
	MimeType string    `json:"mimeType,omitempty"`
}

// Type implements DataType.
func (*RasterDataType) Type() string { return TypeRaster }

// ShapefileDataType references a zipped shapefile.
type ShapefileDataType struct {
	Location          *Location `json:"location,omitempty"`
	DatabaseTableName string    `json:"databaseTableName,omitempty"`
	MimeType          string    `json:"mimeType,omitempty"`
}

// Type implements DataType.
func (*ShapefileDataType) Type() string { return TypeShapefile }

// UnknownDataType preserves a descriptor whose tag has no Go type, so the
// dispatcher can reject it instead of the decoder.
type UnknownDataType struct {
	Tag string
	Raw json.RawMessage
}

// Type implements DataType.
func (u *UnknownDataType) Type() string { return u.Tag }

// MarshalJSON writes the original descriptor back out.
func (u *UnknownDataType) MarshalJSON() ([]byte, error) {
	if len(u.Raw) == 0 {
		return json.Marshal(map[string]string{"type": u.Tag})
	}
	return u.Raw, nil
}

// ResourceMetadata is descriptive, user supplied information.
type ResourceMetadata struct {
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
}

// DataResource is the subject of an ingest job.
type DataResource struct {
	DataID          string            `json:"dataId,omitempty"`
	DataType        DataType          `json:"-"`
	SpatialMetadata *SpatialMetadata  `json:"spatialMetadata,omitempty"`
	Metadata        *ResourceMetadata `json:"metadata,omitempty"`
}

type dataResourceJSON struct {
	DataID          string            `json:"dataId,omitempty"`
	DataType        json.RawMessage   `json:"dataType,omitempty"`
	SpatialMetadata *SpatialMetadata  `json:"spatialMetadata,omitempty"`
	Metadata        *ResourceMetadata `json:"metadata,omitempty"`
}

// ErrMissingDataType is returned when a resource has no descriptor.
var ErrMissingDataType = errors.New("dataType is required")

// MarshalJSON encodes the resource with the descriptor tag inlined.
func (r DataResource) MarshalJSON() ([]byte, error) {
	out := dataResourceJSON{
		DataID:          r.DataID,
		SpatialMetadata: r.SpatialMetadata,
		Metadata:        r.Metadata,
	}
	if r.DataType != nil {
		raw, err := marshalDataType(r.DataType)
		if err != nil {
			return nil, err
		}
		out.DataType = raw
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the descriptor by its "type" tag.
func (r *DataResource) UnmarshalJSON(data []byte) error {
	var in dataResourceJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	r.DataID = in.DataID
	r.SpatialMetadata = in.SpatialMetadata
	r.Metadata = in.Metadata
	r.DataType = nil
	if len(in.DataType) == 0 || string(in.DataType) == "null" {
		return nil
	}
	dt, err := unmarshalDataType(in.DataType)
	if err != nil {
		return err
	}
	r.DataType = dt
	return nil
}

func marshalDataType(dt DataType) (json.RawMessage, error) {
	if u, ok := dt.(*UnknownDataType); ok {
		return u.MarshalJSON()
	}
	body, err := json.Marshal(dt)
	if err != nil {
		return nil, fmt.Errorf("marshal dataType: %w", err)
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("marshal dataType: %w", err)
	}
	tag, err := json.Marshal(dt.Type())
	if err != nil {
		return nil, fmt.Errorf("marshal dataType: %w", err)
	}
	fields["type"] = tag
	return json.Marshal(fields)
}

func unmarshalDataType(raw json.RawMessage) (DataType, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, fmt.Errorf("decode dataType: %w", err)
	}
	if head.Type == "" {
		return nil, errors.New("dataType.type is required")
	}
	var dt DataType
	switch head.Type {
	case TypeGeoJSON:
		dt = &GeoJSONDataType{}
	case TypeRaster:
		dt = &RasterDataType{}
	case TypeShapefile:
		dt = &ShapefileDataType{}
	default:
		return &UnknownDataType{Tag: head.Type, Raw: append(json.RawMessage(nil), raw...)}, nil
	}
	if err := json.Unmarshal(raw, dt); err != nil {
		return nil, fmt.Errorf("decode %s dataType: %w", head.Type, err)
	}
	return dt, nil
}
