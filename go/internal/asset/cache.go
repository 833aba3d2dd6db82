package asset

import (
	"context"
	"errors"
	"strconv"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/mcdev12/caseroll/go/clients"
	"github.com/mcdev12/caseroll/go/internal/metrics"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// DefaultCacheSize is the number of decoded documents kept in memory.
const DefaultCacheSize = 256

// Fetcher retrieves the raw payload for an asset key.
type Fetcher interface {
	Fetch(ctx context.Context, key int) ([]byte, error)
}

// Cache memoizes decoded documents by key. Concurrent requests for a key that
// is not cached share one fetch+decode. Resolved documents are kept in an LRU
// bounded by count; failures are shared by their concurrent waiters but not
// remembered, so the next request retries.
type Cache struct {
	fetcher Fetcher
	decoder *Decoder
	group   singleflight.Group
	entries *lru.Cache[int, *Document]
}

// NewCache creates a cache holding at most size documents.
func NewCache(fetcher Fetcher, decoder *Decoder, size int) (*Cache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	if decoder == nil {
		decoder = DefaultDecoder()
	}
	entries, err := lru.New[int, *Document](size)
	if err != nil {
		return nil, err
	}
	return &Cache{
		fetcher: fetcher,
		decoder: decoder,
		entries: entries,
	}, nil
}

// Resolve returns the decoded document for key. Cancelling ctx releases this
// caller only; the shared operation keeps running for the other waiters.
func (c *Cache) Resolve(ctx context.Context, key int) (*Document, error) {
	if key <= 0 {
		return nil, &FetchError{Key: key, Err: ErrInvalidKey}
	}

	if doc, ok := c.entries.Get(key); ok {
		metrics.RecordCacheLookup("hit")
		return doc, nil
	}

	loadCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(strconv.Itoa(key), func() (interface{}, error) {
		// A load for this key may have completed between the Get above and
		// joining the group.
		if doc, ok := c.entries.Get(key); ok {
			return doc, nil
		}
		return c.load(loadCtx, key)
	})

	select {
	case res := <-ch:
		if res.Shared {
			metrics.RecordCacheLookup("shared")
		} else {
			metrics.RecordCacheLookup("miss")
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Document), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Cache) load(ctx context.Context, key int) (*Document, error) {
	payload, err := c.fetcher.Fetch(ctx, key)
	if err != nil {
		metrics.RecordAssetFetch(false)
		fetchErr := &FetchError{Key: key, Err: err}
		var statusErr *clients.StatusError
		if errors.As(err, &statusErr) {
			fetchErr.Status = statusErr.StatusCode
		}
		log.Warn().Err(err).Int("asset_key", key).Int("status", fetchErr.Status).Msg("asset fetch failed")
		return nil, fetchErr
	}
	metrics.RecordAssetFetch(true)

	doc, err := c.decoder.Decode(key, payload)
	if err != nil {
		log.Warn().Err(err).Int("asset_key", key).Int("bytes", len(payload)).Msg("asset decode failed")
		return nil, err
	}

	c.entries.Add(key, doc)
	log.Debug().
		Int("asset_key", key).
		Int("bytes", len(payload)).
		Int("decoded_bytes", len(doc.Raw)).
		Msg("asset cached")
	return doc, nil
}

// Peek returns a cached document without touching recency.
func (c *Cache) Peek(key int) (*Document, bool) {
	return c.entries.Peek(key)
}

// Len returns the number of cached documents.
func (c *Cache) Len() int {
	return c.entries.Len()
}

// Purge drops every cached document.
func (c *Cache) Purge() {
	c.entries.Purge()
}
