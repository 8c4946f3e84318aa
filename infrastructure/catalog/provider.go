package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"match-lab/contract"
	"match-lab/domain"
	apperr "match-lab/errors"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/samber/lo"
)

// maxItemsPerLookup bounds FetchItemsByIDs.
const maxItemsPerLookup = 20

type Provider struct {
	log     *slog.Logger
	client  *TMDBClient
	timeout time.Duration
	cache   *ristretto.Cache[string, domain.Item]
}

var _ contract.ICatalog = (*Provider)(nil)

// NewProvider caches up to cacheSize items. A nil client means no remote
// catalog is configured and only the fallback items can be resolved.
func NewProvider(log *slog.Logger, client *TMDBClient, timeout time.Duration, cacheSize int64) (*Provider, error) {
	cache, err := ristretto.NewCache(&ristretto.Config[string, domain.Item]{
		NumCounters:        cacheSize * 10,
		MaxCost:            cacheSize,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, err
	}
	return &Provider{log: log, client: client, timeout: timeout, cache: cache}, nil
}

// FetchCandidateItems returns the trending movies, or nothing when the
// provider can't be reached. It never fails.
func (p *Provider) FetchCandidateItems(ctx context.Context) []domain.Item {
	if p.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	items, err := p.client.Trending(ctx, 1)
	if err != nil {
		p.log.Warn("Catalog unavailable", "error", fmt.Errorf("%w: %v", apperr.ErrProviderUnavailable, err))
		return nil
	}
	for _, item := range items {
		p.cache.Set(string(item.ID), item, 1)
	}
	return items
}

// FetchItemsByIDs resolves ids in order from the cache, the fallback list,
// then the remote catalog. Ids that resolve nowhere are left out.
func (p *Provider) FetchItemsByIDs(ctx context.Context, ids []domain.ItemID) []domain.Item {
	ids = lo.Uniq(ids)
	if len(ids) > maxItemsPerLookup {
		ids = ids[:maxItemsPerLookup]
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	items := make([]domain.Item, 0, len(ids))
	for _, id := range ids {
		if item, ok := p.lookup(ctx, id); ok {
			items = append(items, item)
		}
	}
	return items
}

// FetchTrailer asks the remote catalog for a trailer. Failures degrade to nil.
func (p *Provider) FetchTrailer(ctx context.Context, id domain.ItemID) *domain.Trailer {
	if p.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	trailer, err := p.client.Trailer(ctx, id)
	if err != nil {
		p.log.Debug("Trailer lookup failed", "item_id", id, "error", err)
		return nil
	}
	return trailer
}

func (p *Provider) lookup(ctx context.Context, id domain.ItemID) (domain.Item, bool) {
	if item, ok := p.cache.Get(string(id)); ok {
		return item, true
	}
	if item, ok := domain.FallbackItem(id); ok {
		return item, true
	}
	if p.client == nil || ctx.Err() != nil {
		return domain.Item{}, false
	}

	item, err := p.client.Movie(ctx, id)
	if err != nil {
		p.log.Debug("Item lookup failed", "item_id", id, "error", err)
		return domain.Item{}, false
	}
	p.cache.Set(string(item.ID), item, 1)
	return item, true
}

func (p *Provider) Close() {
	p.cache.Close()
}
