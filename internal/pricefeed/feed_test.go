package pricefeed

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheSetAndGet(t *testing.T) {
	c := NewCache()

	_, _, err := c.GetQuote("EURUSD")
	assert.ErrorIs(t, err, ErrNoQuote)

	c.Set("EURUSD", 1.0841, 1.0843)
	bid, ask, err := c.GetQuote("EURUSD")
	require.NoError(t, err)
	assert.Equal(t, 1.0841, bid)
	assert.Equal(t, 1.0843, ask)
}

func TestCacheIgnoresBadQuotes(t *testing.T) {
	c := NewCache()
	c.Set("EURUSD", 1.0841, 1.0843)

	// A degraded feed pushing zeroes must not clobber the last good quote.
	c.Set("EURUSD", 0, 0)
	c.Set("EURUSD", -1, 1.08)
	c.Set("", 1.0, 1.1)

	bid, ask, err := c.GetQuote("EURUSD")
	require.NoError(t, err)
	assert.Equal(t, 1.0841, bid)
	assert.Equal(t, 1.0843, ask)
}

func TestStaticSource(t *testing.T) {
	s := Static{"XAUUSD": {2411.5, 2412.0}}

	bid, ask, err := s.GetQuote("XAUUSD")
	require.NoError(t, err)
	assert.Equal(t, 2411.5, bid)
	assert.Equal(t, 2412.0, ask)

	_, _, err = s.GetQuote("BTCUSD")
	assert.ErrorIs(t, err, ErrNoQuote)
}
