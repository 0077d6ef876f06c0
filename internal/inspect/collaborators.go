package inspect

import (
	"context"
	"io"

	"github.com/JakeFAU/geo-ingest/internal/ingest"
)

// Opener opens the object a location refers to.
type Opener interface {
	Open(ctx context.Context, loc *ingest.Location) (io.ReadCloser, error)
}

// Config carries the settings shared by all inspectors.
type Config struct {
	// TempDir is where inspectors create their scratch directories.
	TempDir string
	// MaxExtractBytes caps the size of unpacked archives; 0 disables it.
	MaxExtractBytes int64
	// HostedPrefix is the key prefix for objects copied into the hosted store.
	HostedPrefix string
}
