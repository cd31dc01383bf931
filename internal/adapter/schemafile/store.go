// Package schemafile persists feature schemas as JSON documents.
package schemafile

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/couchcryptid/climate-favorability/internal/domain"
	"github.com/couchcryptid/climate-favorability/internal/observability"
)

// Load reads and validates the schema stored at path. A document whose
// recorded version does not match its entries is rejected.
func Load(path string) (*domain.FeatureSchema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema %s: %w", path, err)
	}
	var s domain.FeatureSchema
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode schema %s: %w", path, err)
	}
	return &s, nil
}

// Save writes schema to path. The file is replaced atomically so a
// concurrent reader sees either the old or the new document.
func Save(path string, schema *domain.FeatureSchema) error {
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return fmt.Errorf("encode schema: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create schema dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".schema-*.json")
	if err != nil {
		return fmt.Errorf("create temp schema: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // gone after a successful rename

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("write schema: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close schema: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace schema %s: %w", path, err)
	}
	return nil
}

// CachedStore serves the schema at a fixed path and re-parses the file only
// when its size or modification time changes. It implements pipeline.SchemaSource.
type CachedStore struct {
	path    string
	cache   *lruCache[*domain.FeatureSchema]
	metrics *observability.Metrics
}

// NewCachedStore creates a store for path that keeps up to maxEntries parsed
// revisions. metrics may be nil.
func NewCachedStore(path string, maxEntries int, metrics *observability.Metrics) *CachedStore {
	return &CachedStore{
		path:    path,
		cache:   newLRUCache[*domain.FeatureSchema](maxEntries),
		metrics: metrics,
	}
}

// Schema returns the schema currently on disk.
func (s *CachedStore) Schema(_ context.Context) (*domain.FeatureSchema, error) {
	info, err := os.Stat(s.path)
	if err != nil {
		s.observe("error")
		return nil, fmt.Errorf("stat schema %s: %w", s.path, err)
	}
	key := fmt.Sprintf("%s|%d|%d", s.path, info.ModTime().UnixNano(), info.Size())
	if schema, ok := s.cache.get(key); ok {
		s.observe("hit")
		return schema, nil
	}

	schema, err := Load(s.path)
	if err != nil {
		s.observe("error")
		return nil, err
	}
	s.cache.put(key, schema)
	s.observe("miss")
	return schema, nil
}

func (s *CachedStore) observe(result string) {
	if s.metrics != nil {
		s.metrics.SchemaLoads.WithLabelValues(result).Inc()
	}
}
