package positions

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradeflow/internal/ledger"
	"tradeflow/internal/types"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func openPosition(side types.OrderSide, openPrice, qty string) *Position {
	return &Position{
		ID:           "pos-1",
		Side:         side,
		Status:       types.PositionStatusOpen,
		Quantity:     dec(qty),
		OpenPrice:    dec(openPrice),
		CurrentPrice: dec(openPrice),
		Margin:       dec("100"),
	}
}

func TestPnL(t *testing.T) {
	tests := []struct {
		name     string
		side     types.OrderSide
		open     string
		current  string
		quantity string
		want     string
	}{
		{"long in profit", types.OrderSideBuy, "50", "55", "10", "50"},
		{"long in loss", types.OrderSideBuy, "50", "48", "10", "-20"},
		{"short in profit", types.OrderSideSell, "50", "45", "10", "50"},
		{"short in loss", types.OrderSideSell, "50", "55", "10", "-50"},
		{"flat", types.OrderSideBuy, "50", "50", "10", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PnL(tt.side, dec(tt.open), dec(tt.current), dec(tt.quantity))
			assert.True(t, got.Equal(dec(tt.want)), "got %s want %s", got, tt.want)
		})
	}
}

func TestMarginRequirement(t *testing.T) {
	assert.True(t, MarginRequirement(dec("50"), dec("10"), 100).Equal(dec("5")))
	assert.True(t, MarginRequirement(dec("50"), dec("10"), 1).Equal(dec("500")))
	// leverage below the floor is clamped, not an error
	assert.True(t, MarginRequirement(dec("50"), dec("10"), 0).Equal(dec("500")))
}

func TestMarginGate(t *testing.T) {
	// Balance 1000, no unrealized P&L, 200 already held: 800 free.
	m := ledger.ComputeMetrics(dec("1000"), dec("0"), dec("200"))
	require.True(t, m.FreeMargin.Equal(dec("800")))

	assert.NoError(t, checkMargin(dec("800"), m), "exactly the free margin is allowed")
	assert.NoError(t, checkMargin(dec("799.99"), m))
	assert.ErrorIs(t, checkMargin(dec("800.01"), m), ErrInsufficientMargin)

	// Floating losses shrink the gate.
	losing := ledger.ComputeMetrics(dec("1000"), dec("-300"), dec("200"))
	assert.ErrorIs(t, checkMargin(dec("600"), losing), ErrInsufficientMargin)
	assert.NoError(t, checkMargin(dec("500"), losing))
}

func TestMarkToMarket(t *testing.T) {
	long := openPosition(types.OrderSideBuy, "50", "10")
	long.MarkToMarket(55, 55.5)
	assert.True(t, long.CurrentPrice.Equal(dec("55")), "longs mark at the bid")
	assert.True(t, long.UnrealizedPnL.Equal(dec("50")))

	short := openPosition(types.OrderSideSell, "50", "10")
	short.MarkToMarket(44.5, 45)
	assert.True(t, short.CurrentPrice.Equal(dec("45")), "shorts mark at the ask")
	assert.True(t, short.UnrealizedPnL.Equal(dec("50")))
}

func TestMarkToMarketIgnoresBadQuote(t *testing.T) {
	p := openPosition(types.OrderSideBuy, "50", "10")
	p.UnrealizedPnL = dec("7")
	p.MarkToMarket(0, 0)
	assert.True(t, p.CurrentPrice.Equal(dec("50")), "non-positive quote leaves the mark unchanged")
	assert.True(t, p.UnrealizedPnL.Equal(dec("7")))
}

func TestCloseFull(t *testing.T) {
	p := openPosition(types.OrderSideBuy, "50", "10")
	now := time.Now().UTC()

	result, err := p.Close(dec("10"), dec("55"), dec("2"), now)
	require.NoError(t, err)

	assert.True(t, result.FullClose)
	assert.True(t, result.RealizedPnL.Equal(dec("50")))
	assert.True(t, result.NetProceeds.Equal(dec("48")))
	assert.Equal(t, types.PositionStatusClosed, p.Status)
	assert.True(t, p.Quantity.IsZero())
	assert.True(t, p.UnrealizedPnL.IsZero(), "closed position carries no unrealized P&L")
	assert.True(t, p.Margin.IsZero(), "full close releases all margin")
	require.NotNil(t, p.ClosePrice)
	assert.True(t, p.ClosePrice.Equal(dec("55")))
	require.NotNil(t, p.ClosedAt)
	assert.Equal(t, now, *p.ClosedAt)
}

func TestClosePartial(t *testing.T) {
	p := openPosition(types.OrderSideBuy, "50", "10")
	now := time.Now().UTC()

	result, err := p.Close(dec("5"), dec("55"), dec("1"), now)
	require.NoError(t, err)

	assert.False(t, result.FullClose)
	assert.True(t, result.RealizedPnL.Equal(dec("25")))
	assert.True(t, result.NetProceeds.Equal(dec("24")))
	assert.Equal(t, types.PositionStatusOpen, p.Status)
	assert.True(t, p.Quantity.Equal(dec("5")))
	assert.True(t, p.UnrealizedPnL.Equal(dec("25")), "remaining quantity is re-marked at the close price")
	assert.True(t, p.Margin.Equal(dec("50")), "margin releases proportionally")
	assert.Nil(t, p.ClosePrice)
	assert.Nil(t, p.ClosedAt)

	// Closing the remainder realizes the rest.
	result, err = p.Close(dec("5"), dec("55"), dec("1"), now)
	require.NoError(t, err)
	assert.True(t, result.FullClose)
	assert.True(t, p.RealizedPnL.Equal(dec("50")))
	assert.True(t, p.Fees.Equal(dec("2")))
}

func TestCloseValidation(t *testing.T) {
	now := time.Now().UTC()

	p := openPosition(types.OrderSideBuy, "50", "10")
	_, err := p.Close(dec("11"), dec("55"), dec("0"), now)
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = p.Close(dec("0"), dec("55"), dec("0"), now)
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = p.Close(dec("5"), dec("0"), dec("0"), now)
	assert.ErrorIs(t, err, ErrNoMarketPrice)

	p.Status = types.PositionStatusClosed
	_, err = p.Close(dec("5"), dec("55"), dec("0"), now)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestCloseShortLoss(t *testing.T) {
	p := openPosition(types.OrderSideSell, "50", "10")
	result, err := p.Close(dec("10"), dec("53"), dec("1"), time.Now().UTC())
	require.NoError(t, err)
	assert.True(t, result.RealizedPnL.Equal(dec("-30")))
	assert.True(t, result.NetProceeds.Equal(dec("-31")), "the fee still applies on a losing close")
}
