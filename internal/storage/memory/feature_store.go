package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/JakeFAU/geo-ingest/internal/ingest"
)

// Table is one stored feature set.
type Table struct {
	SRID     int
	Features []ingest.Feature
}

// FeatureStore provides an in-memory feature store for development/testing.
type FeatureStore struct {
	mu     sync.RWMutex
	tables map[string]Table
}

// NewFeatureStore constructs a FeatureStore.
func NewFeatureStore() *FeatureStore {
	return &FeatureStore{tables: make(map[string]Table)}
}

// ReplaceFeatures overwrites table with features.
func (s *FeatureStore) ReplaceFeatures(_ context.Context, table string, srid int, features []ingest.Feature) error {
	if err := ingest.ValidateTableName(table); err != nil {
		return err
	}
	cp := make([]ingest.Feature, len(features))
	copy(cp, features)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables[table] = Table{SRID: srid, Features: cp}
	return nil
}

// Table returns a copy of the named table.
func (s *FeatureStore) Table(name string) (Table, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tables[name]
	if !ok {
		return Table{}, false
	}
	cp := make([]ingest.Feature, len(t.Features))
	copy(cp, t.Features)
	return Table{SRID: t.SRID, Features: cp}, true
}

// Tables lists stored table names in sorted order.
func (s *FeatureStore) Tables() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.tables))
	for name := range s.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
