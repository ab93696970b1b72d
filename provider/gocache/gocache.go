// Package gocache backs the spill tier with patrickmn/go-cache, an in-process map
// with per-entry expiry. It has no size bound; pair it with a short TTL.
package gocache

import (
	"context"
	"time"

	gc "github.com/patrickmn/go-cache"

	pr "github.com/unkn0wn-root/voxcache/provider"
)

type Provider struct {
	c *gc.Cache
}

var _ pr.Provider = (*Provider)(nil)

type Config struct {
	DefaultTTL      time.Duration // used when Set receives ttl <= 0; 0 => no expiry
	CleanupInterval time.Duration // 0 => expired items are only dropped on read
}

func New(cfg Config) *Provider {
	ttl := cfg.DefaultTTL
	if ttl <= 0 {
		ttl = gc.NoExpiration
	}
	return &Provider{c: gc.New(ttl, cfg.CleanupInterval)}
}

func (p *Provider) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := p.c.Get(key)
	if !ok {
		return nil, false, nil
	}
	b, ok := v.([]byte)
	if !ok {
		p.c.Delete(key)
		return nil, false, nil
	}
	return b, true, nil
}

func (p *Provider) Set(_ context.Context, key string, value []byte, _ int64, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = gc.DefaultExpiration
	}
	p.c.Set(key, value, ttl)
	return true, nil
}

func (p *Provider) Del(_ context.Context, key string) error {
	p.c.Delete(key)
	return nil
}

func (p *Provider) Len() int { return p.c.ItemCount() }

func (p *Provider) Close(_ context.Context) error {
	p.c.Flush()
	return nil
}
