package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAccountDefaults(t *testing.T) {
	a, err := NewAccount(AccountSpec{Name: " Main ", MarginMultiplier: dec("4")}, testNow)
	require.NoError(t, err)

	assert.Equal(t, "Main", a.Name)
	assert.Equal(t, "USD", a.Currency)
	assert.Equal(t, AccountCash, a.AccountType)
	assert.True(t, a.MarginMultiplier.Equal(dec("1")), "cash accounts ignore the multiplier")
	assert.True(t, a.CapitalDivisor().Equal(dec("1")))
	assert.False(t, a.IsActive)
}

func TestMarginAccount(t *testing.T) {
	a, err := NewAccount(AccountSpec{Name: "Margin", AccountType: AccountMargin, MarginMultiplier: dec("2.0")}, testNow)
	require.NoError(t, err)
	assert.True(t, a.CapitalDivisor().Equal(dec("2")))

	_, err = NewAccount(AccountSpec{Name: "Bad", AccountType: AccountMargin, MarginMultiplier: dec("0.5")}, testNow)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = NewAccount(AccountSpec{Name: "Bad", AccountType: "futures"}, testNow)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = NewAccount(AccountSpec{}, testNow)
	assert.ErrorIs(t, err, ErrValidation)
}
