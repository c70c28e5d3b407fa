package document

import (
	"context"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/rsvp/internal/cache"
	"github.com/dgnsrekt/rsvp/internal/source"
)

// CachingProvider keeps segment text in a disk cache in front of another
// provider. Cache failures are logged and never fail a load.
type CachingProvider struct {
	next   source.Provider
	cache  *cache.DiskCache
	prefix string
	logger *log.Logger
}

// NewCachingProvider wraps next. prefix namespaces keys, and should change
// whenever the underlying document does.
func NewCachingProvider(next source.Provider, dc *cache.DiskCache, prefix string, logger *log.Logger) *CachingProvider {
	if logger == nil {
		logger = log.Default()
	}
	return &CachingProvider{next: next, cache: dc, prefix: prefix, logger: logger}
}

// LoadSegment implements source.Provider.
func (p *CachingProvider) LoadSegment(ctx context.Context, meta source.SegmentMeta) (string, error) {
	key := p.prefix + "/" + meta.ID
	if b, ok := p.cache.Get(key); ok {
		return string(b), nil
	}

	text, err := p.next.LoadSegment(ctx, meta)
	if err != nil {
		return "", err
	}
	if err := p.cache.Put(key, []byte(text)); err != nil {
		p.logger.Debug("segment not cached", "segment", meta.ID, "err", err)
	}
	return text, nil
}
