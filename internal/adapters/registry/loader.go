package registry

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/robotto-health/triage-backend/internal/domain/entities"
	"github.com/robotto-health/triage-backend/internal/domain/providers"
)

// DefaultCacheTTL is the snapshot freshness window when none is configured.
const DefaultCacheTTL = 10 * time.Minute

// Loader owns the cached registry snapshot. It is the only writer; concurrent
// cache-miss refreshes are collapsed into one rebuild via singleflight.
//
// A source failing to fetch or parse degrades that source to empty and is
// logged; it never aborts the rebuild and never surfaces to the caller.
type Loader struct {
	snapshot providers.RegistrySource
	features providers.RegistrySource
	redflags providers.RegistrySource

	ttl time.Duration
	// keepLastKnownGood keeps a previously non-empty snapshot when a rebuild
	// comes back empty. Off by default: snapshot data is authoritative, even
	// when empty.
	keepLastKnownGood bool

	mu      sync.RWMutex
	current *entities.Registry
	builtAt time.Time

	group singleflight.Group
}

// NewLoader creates a loader over the configured sources. Any source may be
// nil; with no sources at all every Get returns the canonical empty registry.
func NewLoader(snapshot, features, redflags providers.RegistrySource, ttl time.Duration, keepLastKnownGood bool) *Loader {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Loader{
		snapshot:          snapshot,
		features:          features,
		redflags:          redflags,
		ttl:               ttl,
		keepLastKnownGood: keepLastKnownGood,
	}
}

// Cached returns the current snapshot without triggering a refresh.
func (l *Loader) Cached() *entities.Registry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.current == nil {
		return entities.EmptyRegistry()
	}
	return l.current
}

// Get returns the cached snapshot when it is fresh and force is false;
// otherwise it rebuilds from the sources. Never returns nil and never fails:
// a fully degraded rebuild yields the empty registry.
func (l *Loader) Get(ctx context.Context, force bool) *entities.Registry {
	if !force {
		l.mu.RLock()
		if l.current != nil && time.Since(l.builtAt) < l.ttl {
			reg := l.current
			l.mu.RUnlock()
			return reg
		}
		l.mu.RUnlock()
	}

	v, _, _ := l.group.Do("registry", func() (any, error) {
		return l.refresh(ctx), nil
	})
	return v.(*entities.Registry)
}

// refresh rebuilds the snapshot and swaps the cache.
func (l *Loader) refresh(ctx context.Context) *entities.Registry {
	rebuilt := l.rebuild(ctx)

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.keepLastKnownGood && !rebuilt.Loaded() && l.current.Loaded() {
		log.Warn().
			Int("previous_features", len(l.current.FeaturesSet)).
			Msg("registry refresh came back empty, keeping last known good snapshot")
		l.builtAt = time.Now()
		return l.current
	}
	l.current = rebuilt
	l.builtAt = time.Now()
	return l.current
}

func (l *Loader) rebuild(ctx context.Context) *entities.Registry {
	var (
		raw json.RawMessage
		doc map[string]any
	)
	if l.snapshot != nil {
		data, err := l.snapshot.Fetch(ctx)
		if err != nil {
			log.Warn().Err(err).Str("source", l.snapshot.Name()).Msg("registry source unavailable")
		} else {
			raw = data
			if err := json.Unmarshal(data, &doc); err != nil {
				log.Warn().Err(err).Str("source", l.snapshot.Name()).Msg("registry source malformed")
				doc = nil
			}
		}
	}

	features := FeaturesFromSnapshot(doc)
	if len(features) == 0 && l.features != nil {
		features = l.fetchFeatureDoc(ctx)
	}

	redflags := RedflagsFromSnapshot(doc)
	if l.redflags != nil {
		if standalone := l.fetchRedflagDoc(ctx); len(standalone) > 0 {
			redflags = standalone
		}
	}

	reg := BuildRegistry(features, redflags, raw)

	// Guard-rail: a snapshot can be valid JSON in a shape the coercion rules
	// do not recognize. Force the secondary source once more before caching
	// an empty set.
	if !reg.Loaded() && l.features != nil {
		if features = l.fetchFeatureDoc(ctx); len(features) > 0 {
			reg = BuildRegistry(features, redflags, raw)
		}
	}

	log.Info().
		Int("features", len(reg.FeaturesSet)).
		Int("aliases", reg.Aliases.Len()).
		Int("redflags", len(reg.Redflags)).
		Msg("registry snapshot rebuilt")
	return reg
}

// fetchFeatureDoc fetches and coerces the standalone features document.
func (l *Loader) fetchFeatureDoc(ctx context.Context) map[string]entities.FeatureMeta {
	data, err := l.features.Fetch(ctx)
	if err != nil {
		log.Warn().Err(err).Str("source", l.features.Name()).Msg("features source unavailable")
		return map[string]entities.FeatureMeta{}
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		log.Warn().Err(err).Str("source", l.features.Name()).Msg("features source malformed")
		return map[string]entities.FeatureMeta{}
	}
	return CoerceFeatureMap(v)
}

// fetchRedflagDoc fetches the standalone redflags document. The document may
// be the redflag value itself or a wrapper carrying it under "redflags".
func (l *Loader) fetchRedflagDoc(ctx context.Context) map[string]any {
	data, err := l.redflags.Fetch(ctx)
	if err != nil {
		log.Warn().Err(err).Str("source", l.redflags.Name()).Msg("redflags source unavailable")
		return map[string]any{}
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		log.Warn().Err(err).Str("source", l.redflags.Name()).Msg("redflags source malformed")
		return map[string]any{}
	}
	if doc, ok := v.(map[string]any); ok {
		if flags := RedflagsFromSnapshot(doc); len(flags) > 0 {
			return flags
		}
	}
	return CoerceRedflags(v)
}
