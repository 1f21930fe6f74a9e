// Package cache provides the LRU forecast cache used by the HTTP layer.
// Forecasts are cheap to recompute but read far more often than
// expenses are written, so a short TTL plus write-time invalidation
// keeps responses fresh without hammering SQLite.
package cache

import (
	"container/list"
	"strings"
	"sync"
	"time"
)

type LRU[T any] struct {
	mu      sync.Mutex
	maxSize int
	ttl     time.Duration
	now     func() time.Time
	items   map[string]*list.Element
	order   *list.List
}

type entry[T any] struct {
	key       string
	value     T
	expiresAt time.Time
}

// New creates an LRU cache holding at most maxSize entries, each valid
// for ttl. The clock is injectable for tests; nil means time.Now.
func New[T any](maxSize int, ttl time.Duration, now func() time.Time) *LRU[T] {
	if now == nil {
		now = time.Now
	}
	return &LRU[T]{
		maxSize: maxSize,
		ttl:     ttl,
		now:     now,
		items:   make(map[string]*list.Element),
		order:   list.New(),
	}
}

func (c *LRU[T]) Get(key string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero T
	elem, ok := c.items[key]
	if !ok {
		return zero, false
	}

	e := elem.Value.(*entry[T])
	if c.now().After(e.expiresAt) {
		c.remove(elem)
		return zero, false
	}

	c.order.MoveToFront(elem)
	return e.value, true
}

func (c *LRU[T]) Set(key string, value T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := &entry[T]{key: key, value: value, expiresAt: c.now().Add(c.ttl)}
	if elem, ok := c.items[key]; ok {
		elem.Value = e
		c.order.MoveToFront(elem)
		return
	}

	c.items[key] = c.order.PushFront(e)
	if c.order.Len() > c.maxSize {
		if oldest := c.order.Back(); oldest != nil {
			c.remove(oldest)
		}
	}
}

func (c *LRU[T]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.items[key]; ok {
		c.remove(elem)
	}
}

// DeletePrefix drops every entry whose key starts with prefix. Keys are
// built as "<user>/..." so one write invalidates all of a user's cached
// forecasts at once.
func (c *LRU[T]) DeletePrefix(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	var doomed []*list.Element
	for elem := c.order.Front(); elem != nil; elem = elem.Next() {
		if strings.HasPrefix(elem.Value.(*entry[T]).key, prefix) {
			doomed = append(doomed, elem)
		}
	}
	for _, elem := range doomed {
		c.remove(elem)
	}
	return len(doomed)
}

func (c *LRU[T]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *LRU[T]) remove(elem *list.Element) {
	delete(c.items, elem.Value.(*entry[T]).key)
	c.order.Remove(elem)
}
