package provider

import (
	"sync"
	"time"
)

// Map is an unbounded Provider backed by sync.Map. It never evicts and ignores
// TTL hints; expiration is enforced by the store. The zero value is ready to use.
type Map struct {
	m sync.Map
}

var _ Provider = (*Map)(nil)

func NewMap() *Map { return &Map{} }

func (p *Map) Get(key string) (any, bool) { return p.m.Load(key) }

func (p *Map) Set(key string, value any, _ time.Duration) bool {
	p.m.Store(key, value)
	return true
}

func (p *Map) Del(key string) { p.m.Delete(key) }

func (p *Map) Close() error {
	p.m.Clear()
	return nil
}
