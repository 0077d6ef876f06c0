// Package source opens the external locations referenced by data resources.
package source

import (
	"context"
	"fmt"
	"io"

	"github.com/JakeFAU/geo-ingest/internal/ingest"
)

// Resolver dispatches reads to the object reader for a location type.
type Resolver struct {
	readers map[ingest.LocationType]ingest.ObjectReader
}

// NewResolver creates an empty Resolver.
func NewResolver() *Resolver {
	return &Resolver{readers: make(map[ingest.LocationType]ingest.ObjectReader)}
}

// Register binds reader to a location type, replacing any previous binding.
func (r *Resolver) Register(kind ingest.LocationType, reader ingest.ObjectReader) *Resolver {
	if reader != nil {
		r.readers[kind] = reader
	}
	return r
}

// Open returns a reader for loc. Failures are classified as extraction errors.
func (r *Resolver) Open(ctx context.Context, loc *ingest.Location) (io.ReadCloser, error) {
	if loc == nil {
		return nil, ingest.Extraction("open source", fmt.Errorf("no location given"))
	}
	if err := loc.Validate(); err != nil {
		return nil, ingest.Extraction("open source", err)
	}
	reader, ok := r.readers[loc.Type]
	if !ok {
		return nil, ingest.Extraction("open source", fmt.Errorf("no reader configured for %s locations", loc.Type))
	}
	rc, err := reader.GetObject(ctx, loc.BucketName, loc.Key())
	if err != nil {
		return nil, ingest.Extraction("open "+loc.String(), err)
	}
	return rc, nil
}
