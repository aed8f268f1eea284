package translator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	gocache_lib "github.com/eko/gocache/lib/v4/cache"
	gocache_store "github.com/eko/gocache/lib/v4/store"
	go_cache_store "github.com/eko/gocache/store/go_cache/v4"
	go_cache "github.com/patrickmn/go-cache"

	"github.com/squall-chua/mongora"
)

// CachedTranslator memoizes Translate by a SHA-256 of the collection, the
// pipeline JSON text exactly as given (not re-compacted), and the
// Settings' BindMode and UnsupportedMode. Translation is pure and deterministic
// (the same inputs always produce byte-identical SQL), so caching never
// changes the result — it only avoids recompiling a pipeline the caller
// has already translated once.
type CachedTranslator struct {
	settings *Settings
	cache    *gocache_lib.Cache[string]
}

// NewCachedTranslator builds a CachedTranslator with an in-process
// go-cache store. Each entry expires ttl after it is stored; reading it
// does not extend its lifetime.
func NewCachedTranslator(ttl time.Duration, opts ...Option) *CachedTranslator {
	client := go_cache.New(ttl, ttl*2)
	store := go_cache_store.NewGoCache(client)
	return &CachedTranslator{
		settings: NewSettings(opts...),
		cache:    gocache_lib.New[string](store),
	}
}

// Translate returns the cached SQL for (collection, pipelineJSON) if
// present, otherwise compiles it with the translator's configured
// Settings and stores the result before returning it.
func (t *CachedTranslator) Translate(collection, pipelineJSON string) (string, error) {
	ctx := context.Background()
	key := cacheKey(collection, pipelineJSON, t.settings)

	if cached, err := t.cache.Get(ctx, key); err == nil {
		return cached, nil
	}

	sql, err := TranslatePipelineWithSettings(collection, pipelineJSON, t.settings)
	if err != nil {
		return "", err
	}
	_ = t.cache.Set(ctx, key, sql, gocache_store.WithExpiration(0))
	return sql, nil
}

func cacheKey(collection, pipelineJSON string, settings *Settings) string {
	h := sha256.New()
	h.Write([]byte(collection))
	h.Write([]byte{0})
	h.Write([]byte(pipelineJSON))
	h.Write([]byte{0})
	h.Write([]byte{byte(settings.BindMode), byte(settings.UnsupportedMode)})
	return hex.EncodeToString(h.Sum(nil))
}

// TranslatePipelineWithSettings runs Translate against an already-built
// Settings value, used internally so CachedTranslator doesn't re-run the
// Option constructors on every call.
func TranslatePipelineWithSettings(collection, pipelineJSON string, settings *Settings) (string, error) {
	pipeline, err := mongora.Parse(pipelineJSON)
	if err != nil {
		return "", err
	}
	b := newBuilder(settings, collection)
	plan, err := b.Compile(pipeline)
	if err != nil {
		return "", err
	}
	return Emit(plan), nil
}
