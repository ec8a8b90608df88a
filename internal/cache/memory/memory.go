// Package memory is an in-process cache backed by go-cache.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/dropDatabas3/userauth/internal/cache"
	gocache "github.com/patrickmn/go-cache"
)

var _ cache.Cache = (*Mem)(nil)

type Mem struct {
	mu sync.Mutex // serializes Take
	c  *gocache.Cache
}

// New returns a cache whose entries expire after defaultTTL unless Set says
// otherwise. Expired entries are swept every minute.
func New(defaultTTL time.Duration) *Mem {
	return &Mem{c: gocache.New(defaultTTL, time.Minute)}
}

func (m *Mem) Get(_ context.Context, k string) (string, error) {
	v, ok := m.c.Get(k)
	if !ok {
		return "", cache.ErrNotFound
	}
	s, _ := v.(string)
	return s, nil
}

func (m *Mem) Set(_ context.Context, k, v string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = gocache.DefaultExpiration
	}
	m.c.Set(k, v, ttl)
	return nil
}

func (m *Mem) Take(_ context.Context, k string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.c.Get(k)
	if !ok {
		return "", cache.ErrNotFound
	}
	m.c.Delete(k)
	s, _ := v.(string)
	return s, nil
}

func (m *Mem) Delete(_ context.Context, k string) error {
	m.c.Delete(k)
	return nil
}

func (m *Mem) Ping(context.Context) error { return nil }

func (m *Mem) Close() error {
	m.c.Flush()
	return nil
}
