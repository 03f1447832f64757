package transfer

import (
	"testing"

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

func TestNormalizeAmount(t *testing.T) {
	got, err := NormalizeAmount(dec("10.567"))
	require.NoError(t, err)
	assert.True(t, got.Equal(dec("10.57")))

	_, err = NormalizeAmount(dec("0"))
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = NormalizeAmount(dec("-5"))
	assert.ErrorIs(t, err, ErrInvalidAmount)

	// An amount that rounds to zero is not transferable.
	_, err = NormalizeAmount(dec("0.004"))
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestExecutableOnlyWhilePending(t *testing.T) {
	tr := &InternalTransfer{ID: "t-1", Status: types.TransferStatusPending}
	assert.NoError(t, tr.Executable())

	// Terminal statuses refuse a re-run; execution is at most once.
	tr.Status = types.TransferStatusCompleted
	assert.ErrorIs(t, tr.Executable(), ErrAlreadyExecuted)

	tr.Status = types.TransferStatusRejected
	assert.ErrorIs(t, tr.Executable(), ErrAlreadyExecuted)
}

func TestSettleCompleted(t *testing.T) {
	src := &ledger.Subaccount{ID: "sub-a", Balance: dec("150")}
	dst := &ledger.Subaccount{ID: "sub-b", Balance: dec("20")}

	out := Settle(src, dst, dec("60"))
	assert.Equal(t, types.TransferStatusCompleted, out.Status)
	assert.True(t, src.Balance.Equal(dec("90")))
	assert.True(t, dst.Balance.Equal(dec("80")))
	assert.True(t, out.SourceBefore.Equal(dec("150")))
	assert.True(t, out.SourceAfter.Equal(dec("90")))
	assert.True(t, out.DestBefore.Equal(dec("20")))
	assert.True(t, out.DestAfter.Equal(dec("80")))
}

func TestSettleConservesCombinedBalance(t *testing.T) {
	src := &ledger.Subaccount{Balance: dec("150")}
	dst := &ledger.Subaccount{Balance: dec("20")}
	total := src.Balance.Add(dst.Balance)

	Settle(src, dst, dec("60"))
	assert.True(t, src.Balance.Add(dst.Balance).Equal(total))
}

func TestSettleRejected(t *testing.T) {
	src := &ledger.Subaccount{Balance: dec("50")}
	dst := &ledger.Subaccount{Balance: dec("20")}

	out := Settle(src, dst, dec("60"))
	assert.Equal(t, types.TransferStatusRejected, out.Status)
	assert.True(t, src.Balance.Equal(dec("50")), "rejected transfer leaves the source untouched")
	assert.True(t, dst.Balance.Equal(dec("20")), "rejected transfer leaves the destination untouched")
	assert.True(t, out.SourceBefore.Equal(out.SourceAfter))
	assert.True(t, out.DestBefore.Equal(out.DestAfter))
}

func TestSettleExactBalance(t *testing.T) {
	src := &ledger.Subaccount{Balance: dec("60")}
	dst := &ledger.Subaccount{Balance: dec("0")}

	out := Settle(src, dst, dec("60"))
	assert.Equal(t, types.TransferStatusCompleted, out.Status)
	assert.True(t, src.Balance.IsZero())
	assert.True(t, dst.Balance.Equal(dec("60")))
}
