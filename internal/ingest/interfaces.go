package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

// Publisher emits messages keyed by an ordering/correlation key.
type Publisher interface {
	Publish(ctx context.Context, key string, payload any) (string, error)
}

// Acknowledger settles a delivery with its broker.
type Acknowledger interface {
	Ack() error
}

// AckFunc adapts a function to Acknowledger.
type AckFunc func() error

// Ack implements Acknowledger.
func (f AckFunc) Ack() error { return f() }

// Delivery is one inbound message handed to a worker.
type Delivery struct {
	Key     string
	Body    []byte
	Attempt int
	Acker   Acknowledger
}

// Ack settles the delivery; deliveries without an Acknowledger are no-ops.
func (d Delivery) Ack() error {
	if d.Acker == nil {
		return nil
	}
	return d.Acker.Ack()
}

// Queue yields inbound deliveries.
type Queue interface {
	Dequeue(ctx context.Context) (Delivery, error)
}

// Callback is notified exactly once when a worker finishes a delivery.
type Callback interface {
	OnComplete(key string)
}

// CallbackFunc adapts a function to Callback.
type CallbackFunc func(key string)

// OnComplete implements Callback.
func (f CallbackFunc) OnComplete(key string) { f(key) }

// ObjectReader opens stored objects addressed by bucket and key.
type ObjectReader interface {
	GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error)
}

// BlobStore persists objects into the hosted bucket.
type BlobStore interface {
	PutObject(ctx context.Context, key, contentType string, r io.Reader) (Location, error)
}

// Feature is one vector record written to the feature store.
type Feature struct {
	// Geometry is a GeoJSON geometry object.
	Geometry   json.RawMessage
	Properties map[string]any
}

// FeatureStore replaces the feature set stored under table.
type FeatureStore interface {
	ReplaceFeatures(ctx context.Context, table string, srid int, features []Feature) error
}

// MaxTableNameLen is the Postgres identifier limit (NAMEDATALEN-1). Longer
// names are truncated by the server, so stores reject them instead.
const MaxTableNameLen = 63

// ValidateTableName rejects names a feature store cannot address uniquely.
func ValidateTableName(name string) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("table name is required")
	}
	if len(name) > MaxTableNameLen {
		return fmt.Errorf("table name %q is %d bytes, limit is %d", name, len(name), MaxTableNameLen)
	}
	return nil
}

// IDGenerator creates resource identifiers.
type IDGenerator interface {
	NewID() (string, error)
}

// Clock abstracts time for testing.
type Clock interface {
	Now() time.Time
}
