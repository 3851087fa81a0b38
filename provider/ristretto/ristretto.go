package ristretto

import (
	"errors"
	"sync"
	"time"

	rc "github.com/dgraph-io/ristretto"

	pr "github.com/unkn0wn-root/depcache/provider"
)

// slot keeps the original key next to the value: ristretto only hands back
// hashed keys in its eviction callback.
type slot struct {
	key   string
	value any
}

type Provider struct {
	c    *rc.Cache
	cost func(value any) int64

	mu      sync.RWMutex
	onEvict func(key string)
}

var (
	_ pr.Provider         = (*Provider)(nil)
	_ pr.EvictionNotifier = (*Provider)(nil)
)

type Config struct {
	NumCounters int64
	MaxCost     int64
	BufferItems int64
	Metrics     bool
	// Cost returns the admission cost of a value. nil => every entry costs 1,
	// which makes MaxCost an item count. See codec.SizeCost for a byte-based cost.
	Cost func(value any) int64
}

func New(cfg Config) (*Provider, error) {
	if cfg.NumCounters <= 0 || cfg.MaxCost <= 0 || cfg.BufferItems <= 0 {
		return nil, errors.New("ristretto: invalid config")
	}
	p := &Provider{cost: cfg.Cost}
	if p.cost == nil {
		p.cost = func(any) int64 { return 1 }
	}
	c, err := rc.NewCache(&rc.Config{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: cfg.BufferItems,
		Metrics:     cfg.Metrics,
		OnEvict:     p.evicted,
	})
	if err != nil {
		return nil, err
	}
	p.c = c
	return p, nil
}

func (p *Provider) Get(key string) (any, bool) {
	v, ok := p.c.Get(key)
	if !ok {
		return nil, false
	}
	s, ok := v.(slot)
	if !ok || s.key != key {
		// self-heal: drop unexpected entry shape
		p.c.Del(key)
		return nil, false
	}
	return s.value, true
}

// Set admits value and waits for the write buffer to drain so a following Get
// observes it. ttl <= 0 stores without expiry.
func (p *Provider) Set(key string, value any, ttl time.Duration) bool {
	if ttl < 0 {
		ttl = 0
	}
	ok := p.c.SetWithTTL(key, slot{key: key, value: value}, p.cost(value), ttl)
	p.c.Wait()
	return ok
}

func (p *Provider) Del(key string) {
	p.c.Del(key)
}

func (p *Provider) NotifyEvict(fn func(key string)) {
	p.mu.Lock()
	p.onEvict = fn
	p.mu.Unlock()
}

func (p *Provider) evicted(item *rc.Item) {
	s, ok := item.Value.(slot)
	if !ok {
		return
	}
	p.mu.RLock()
	fn := p.onEvict
	p.mu.RUnlock()
	if fn != nil {
		fn(s.key)
	}
}

func (p *Provider) Close() error {
	p.c.Wait()
	p.c.Close()
	return nil
}

// Helper to expose metrics if desired by the application (not part of provider.Provider).
func (p *Provider) Metrics() *rc.Metrics { return p.c.Metrics }
