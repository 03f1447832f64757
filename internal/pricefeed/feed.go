// Package pricefeed is the external market-price collaborator. Quotes are
// best-effort: consumers read the last known value and must tolerate the feed
// being down.
package pricefeed

import (
	"errors"
	"sync"
)

var ErrNoQuote = errors.New("no quote available")

// Source is what the position engine depends on. A quote read never blocks
// on the network; the websocket subscriber keeps the cache warm.
type Source interface {
	GetQuote(symbol string) (bid, ask float64, err error)
}

type quoteSnapshot struct {
	Bid float64
	Ask float64
}

// Cache is the in-memory last-known-quote store.
type Cache struct {
	mu   sync.RWMutex
	data map[string]quoteSnapshot
}

func NewCache() *Cache {
	return &Cache{data: map[string]quoteSnapshot{}}
}

func (c *Cache) Set(symbol string, bid, ask float64) {
	if symbol == "" || bid <= 0 || ask <= 0 {
		return
	}
	c.mu.Lock()
	c.data[symbol] = quoteSnapshot{Bid: bid, Ask: ask}
	c.mu.Unlock()
}

func (c *Cache) GetQuote(symbol string) (float64, float64, error) {
	c.mu.RLock()
	q, ok := c.data[symbol]
	c.mu.RUnlock()
	if !ok {
		return 0, 0, ErrNoQuote
	}
	return q.Bid, q.Ask, nil
}

// Static is a fixed-quote source for tests and local development.
type Static map[string][2]float64

func (s Static) GetQuote(symbol string) (float64, float64, error) {
	q, ok := s[symbol]
	if !ok {
		return 0, 0, ErrNoQuote
	}
	return q[0], q[1], nil
}
