package schema

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// Source provides the raw schema a rebuild starts from (live introspection,
// a schema file, or a test fixture).
type Source interface {
	Fetch(ctx context.Context) (RawSchema, error)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(ctx context.Context) (RawSchema, error)

func (f SourceFunc) Fetch(ctx context.Context) (RawSchema, error) { return f(ctx) }

// Store holds the current cache version and swaps in new versions
// atomically. Readers always get a complete, immutable cache; a rebuild
// never mutates the version an in-flight pipeline run is holding.
type Store struct {
	current atomic.Pointer[Cache]
	version atomic.Int64
	source  Source
	sf      singleflight.Group // collapse concurrent rebuild requests
}

func NewStore(source Source) *Store {
	return &Store{source: source}
}

// Current returns the active cache, or nil when no build has completed yet.
func (s *Store) Current() *Cache {
	return s.current.Load()
}

// Rebuild fetches the raw schema and swaps in a freshly built cache.
// Concurrent callers share a single fetch; each successful rebuild bumps the
// version even if the schema content is unchanged, because build is cheap
// and version identity is what readers key on.
func (s *Store) Rebuild(ctx context.Context) (*Cache, error) {
	v, err, _ := s.sf.Do("rebuild", func() (interface{}, error) {
		raw, err := s.source.Fetch(ctx)
		if err != nil {
			return nil, fmt.Errorf("fetch schema: %w", err)
		}
		version := int(s.version.Add(1))
		cache := Build(raw, version)
		s.current.Store(cache)
		log.Info().
			Int("version", version).
			Int("tables", len(cache.Tables)).
			Int("relationships", len(cache.Relationships)).
			Msg("schema cache rebuilt")
		return cache, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Cache), nil
}
