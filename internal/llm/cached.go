package llm

import (
	"context"

	"github.com/gitmetrics/gitmetrics/internal/cache"
	"go.uber.org/zap"
)

// CachedGenerator memoizes successful responses of next. Failures are not cached.
type CachedGenerator struct {
	next   Generator
	model  string
	store  *cache.Cache
	logger *zap.SugaredLogger
}

// NewCachedGenerator wraps next. model is part of the key so switching models
// never serves stale answers.
func NewCachedGenerator(next Generator, model string, store *cache.Cache, logger *zap.SugaredLogger) *CachedGenerator {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &CachedGenerator{next: next, model: model, store: store, logger: logger}
}

// Generate implements Generator.
func (g *CachedGenerator) Generate(ctx context.Context, p Prompt) (string, error) {
	key := cache.Key(g.model, p.System, p.User)
	if out, ok := g.store.Get(key); ok {
		g.logger.Debugw("collaborator cache hit", "purpose", p.Purpose)
		return out, nil
	}

	out, err := g.next.Generate(ctx, p)
	if err != nil {
		return "", err
	}
	if err := g.store.Put(key, out); err != nil {
		g.logger.Warnw("failed to cache collaborator response", "error", err)
	}
	return out, nil
}
