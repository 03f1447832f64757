package pricefeed

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/gorilla/websocket"
)

type wsQuote struct {
	Symbol string  `json:"symbol"`
	Bid    float64 `json:"bid"`
	Ask    float64 `json:"ask"`
}

// Subscriber keeps a Cache warm from an upstream quote stream. It reconnects
// with backoff forever; a dead feed only means quotes go stale.
type Subscriber struct {
	url         string
	cache       *Cache
	dialTimeout time.Duration
	readTimeout time.Duration
}

func NewSubscriber(url string, cache *Cache, timeout time.Duration) *Subscriber {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Subscriber{
		url:         url,
		cache:       cache,
		dialTimeout: timeout,
		readTimeout: 60 * time.Second,
	}
}

func (s *Subscriber) Run(ctx context.Context) {
	backoff := time.Second
	for {
		if err := s.consume(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("pricefeed: stream error: %v (retrying in %s)", err, backoff)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

func (s *Subscriber) consume(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: s.dialTimeout}
	conn, _, err := dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	log.Printf("pricefeed: connected to %s", s.url)

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		_ = conn.SetReadDeadline(time.Now().Add(s.readTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var q wsQuote
		if err := json.Unmarshal(msg, &q); err != nil {
			continue
		}
		s.cache.Set(q.Symbol, q.Bid, q.Ask)
	}
}
