// Package preparer turns raw photos into normalized assets off the caller's
// goroutine, with bounded parallelism and a cache of recent results.
package preparer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"storefront/internal/pipeline"
)

// RawImage is an unprocessed photo as selected by the user.
type RawImage struct {
	Data []byte
	MIME string
}

// Size returns the byte size of the image.
func (r RawImage) Size() int { return len(r.Data) }

// Result is reported once per Prepare call.
type Result struct {
	Index int
	Name  string
	Asset *pipeline.NormalizedAsset
	Err   error
}

// Observer receives one call per finished preparation.
type Observer interface {
	RecordPrepare(duration time.Duration, cached bool, err error)
}

// NormalizeFunc is the resampling step; pipeline.Normalize in production.
type NormalizeFunc func(data []byte, opts pipeline.Options) (*pipeline.NormalizedAsset, error)

type Config struct {
	Options     pipeline.Options
	Concurrency int
	CacheSize   int
	Logger      logrus.FieldLogger
	Observer    Observer
	Normalize   NormalizeFunc
}

type Preparer struct {
	opts      pipeline.Options
	sem       *semaphore.Weighted
	cache     *lru.Cache[string, *pipeline.NormalizedAsset]
	log       logrus.FieldLogger
	obs       Observer
	normalize NormalizeFunc
	wg        sync.WaitGroup
}

// New builds a Preparer. A CacheSize of 0 disables caching.
func New(cfg Config) (*Preparer, error) {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.WithField("component", "preparer")
	}
	if cfg.Normalize == nil {
		cfg.Normalize = pipeline.Normalize
	}

	p := &Preparer{
		opts:      cfg.Options,
		sem:       semaphore.NewWeighted(int64(cfg.Concurrency)),
		log:       cfg.Logger,
		obs:       cfg.Observer,
		normalize: cfg.Normalize,
	}
	if cfg.CacheSize > 0 {
		cache, err := lru.New[string, *pipeline.NormalizedAsset](cfg.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("create cache: %w", err)
		}
		p.cache = cache
	}
	return p, nil
}

// Prepare normalizes raw asynchronously and calls cont exactly once with
// the outcome. A decode failure is reported for this item only. No timeout
// is applied here; cancel ctx to give up on items still waiting for a
// worker.
func (p *Preparer) Prepare(ctx context.Context, index int, name string, raw RawImage, cont func(Result)) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		res := p.run(ctx, index, name, raw)
		if cont != nil {
			cont(res)
		}
	}()
}

// PrepareAll prepares every image concurrently and returns the results in
// input order once all have reported. One failure never stops the others.
func (p *Preparer) PrepareAll(ctx context.Context, names []string, raws []RawImage) []Result {
	results := make([]Result, len(raws))
	var g errgroup.Group
	for i, raw := range raws {
		name := ""
		if i < len(names) {
			name = names[i]
		}
		g.Go(func() error {
			results[i] = p.run(ctx, i, name, raw)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Wait blocks until every Prepare call has delivered its result.
func (p *Preparer) Wait() {
	p.wg.Wait()
}

func (p *Preparer) run(ctx context.Context, index int, name string, raw RawImage) (res Result) {
	res = Result{Index: index, Name: name}
	start := time.Now()
	cached := false

	defer func() {
		if r := recover(); r != nil {
			res.Asset = nil
			res.Err = fmt.Errorf("prepare %q: panic: %v", name, r)
		}
		if p.obs != nil {
			p.obs.RecordPrepare(time.Since(start), cached, res.Err)
		}
		if res.Err != nil {
			p.log.WithFields(logrus.Fields{"index": index, "name": name}).WithError(res.Err).Warn("Preparer: photo rejected")
		}
	}()

	var key string
	if p.cache != nil {
		key = p.cacheKey(raw.Data)
		if a, ok := p.cache.Get(key); ok {
			cached = true
			res.Asset = a
			return res
		}
	}

	if err := p.sem.Acquire(ctx, 1); err != nil {
		res.Err = fmt.Errorf("prepare %q: %w", name, err)
		return res
	}
	defer p.sem.Release(1)

	asset, err := p.normalize(raw.Data, p.opts)
	if err != nil {
		res.Err = fmt.Errorf("prepare %q: %w", name, err)
		return res
	}
	if p.cache != nil {
		p.cache.Add(key, asset)
	}
	res.Asset = asset
	p.log.WithFields(logrus.Fields{
		"index":  index,
		"name":   name,
		"width":  asset.Width,
		"height": asset.Height,
		"bytes":  len(asset.Data),
	}).Debug("Preparer: photo normalized")
	return res
}

func (p *Preparer) cacheKey(data []byte) string {
	h := sha256.New()
	h.Write(data)
	fmt.Fprintf(h, "|%d|%g|%s", p.opts.MaxWidth, p.opts.Quality, p.opts.Format)
	return hex.EncodeToString(h.Sum(nil))
}
