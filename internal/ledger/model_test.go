package ledger

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradeflow/internal/types"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func testAccount() *Account {
	return &Account{
		ID:           "acc-1",
		RealBalance:  dec("100"),
		DemoBalance:  dec("5000"),
		BonusBalance: dec("25"),
		Leverage:     100,
	}
}

func TestAccountBalanceIsDerived(t *testing.T) {
	acc := testAccount()
	assert.True(t, acc.Balance().Equal(dec("5125")))

	_, err := acc.Apply(types.FundTypeBonus, dec("10"), false)
	require.NoError(t, err)
	assert.True(t, acc.Balance().Equal(dec("5135")), "total must track the fund components")
}

func TestAccountApply(t *testing.T) {
	tests := []struct {
		name        string
		fundType    types.FundType
		delta       string
		nonNegative bool
		wantErr     error
		wantFund    string
		wantBalance string
	}{
		{
			name:        "deposit to real",
			fundType:    types.FundTypeReal,
			delta:       "50",
			wantFund:    "150",
			wantBalance: "5175",
		},
		{
			name:        "withdrawal within balance",
			fundType:    types.FundTypeReal,
			delta:       "-100",
			nonNegative: true,
			wantFund:    "0",
			wantBalance: "5025",
		},
		{
			name:        "withdrawal overdraws fund",
			fundType:    types.FundTypeReal,
			delta:       "-100.01",
			nonNegative: true,
			wantErr:     ErrInsufficientFunds,
		},
		{
			name:     "negative bonus allowed when unchecked",
			fundType: types.FundTypeBonus,
			delta:    "-30",
			wantFund: "-5",
		},
		{
			name:     "unknown fund type",
			fundType: types.FundType("credit"),
			delta:    "10",
			wantErr:  ErrInvalidFundType,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			acc := testAccount()
			before := acc.Balance()
			change, err := acc.Apply(tt.fundType, dec(tt.delta), tt.nonNegative)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.True(t, acc.Balance().Equal(before), "failed apply must not mutate the account")
				return
			}
			require.NoError(t, err)
			assert.True(t, change.FundAfter.Equal(dec(tt.wantFund)))
			assert.True(t, change.FundAfter.Sub(change.FundBefore).Equal(dec(tt.delta)))
			if tt.wantBalance != "" {
				assert.True(t, change.BalanceAfter.Equal(dec(tt.wantBalance)))
			}
			assert.True(t, change.BalanceAfter.Sub(change.BalanceBefore).Equal(dec(tt.delta)),
				"total balance moves by exactly the fund delta")
		})
	}
}

func TestComputeMetrics(t *testing.T) {
	m := ComputeMetrics(dec("1000"), dec("-40"), dec("200"))
	assert.True(t, m.Equity.Equal(dec("960")))
	assert.True(t, m.FreeMargin.Equal(dec("760")))
	require.NotNil(t, m.MarginLevel)
	assert.True(t, m.MarginLevel.Equal(dec("480")))
}

func TestComputeMetricsNoMargin(t *testing.T) {
	m := ComputeMetrics(dec("1000"), dec("0"), dec("0"))
	assert.Nil(t, m.MarginLevel, "margin level is undefined without held margin")
	assert.True(t, m.FreeMargin.Equal(dec("1000")))
}

func TestValidLeverage(t *testing.T) {
	assert.True(t, ValidLeverage(1))
	assert.True(t, ValidLeverage(500))
	assert.False(t, ValidLeverage(0))
	assert.False(t, ValidLeverage(501))
}
