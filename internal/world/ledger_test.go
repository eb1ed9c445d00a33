package world

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedger_SimpleTransfer(t *testing.T) {
	l := NewLedger()
	l.Spawn("alice", Balances{Scrip: 100})
	l.Spawn("bob", Balances{Scrip: 0})

	err := l.Transfer("alice", "bob", ResourceScrip, 40)
	require.NoError(t, err)

	assert.Equal(t, int64(60), l.Balance("alice").Scrip)
	assert.Equal(t, int64(40), l.Balance("bob").Scrip)
}

func TestLedger_TransferExactBalanceSucceeds(t *testing.T) {
	l := NewLedger()
	l.Spawn("alice", Balances{Scrip: 100})
	l.Spawn("bob", Balances{Scrip: 0})

	require.NoError(t, l.Transfer("alice", "bob", ResourceScrip, 100))
	assert.Equal(t, int64(0), l.Balance("alice").Scrip)
	assert.Equal(t, int64(100), l.Balance("bob").Scrip)
}

func TestLedger_TransferOneOverBalanceFails(t *testing.T) {
	l := NewLedger()
	l.Spawn("alice", Balances{Scrip: 100})
	l.Spawn("bob", Balances{Scrip: 0})

	err := l.Transfer("alice", "bob", ResourceScrip, 101)
	require.Error(t, err)
	assert.Equal(t, int64(100), l.Balance("alice").Scrip)
	assert.Equal(t, int64(0), l.Balance("bob").Scrip)
}

func TestLedger_ScripConservedAcrossTransfers(t *testing.T) {
	l := NewLedger()
	l.Spawn("a", Balances{Scrip: 50})
	l.Spawn("b", Balances{Scrip: 50})

	total := func() int64 { return l.Balance("a").Scrip + l.Balance("b").Scrip }
	before := total()

	require.NoError(t, l.Transfer("a", "b", ResourceScrip, 20))
	require.NoError(t, l.Transfer("b", "a", ResourceScrip, 5))

	assert.Equal(t, before, total())
}

func TestLedger_ConcurrentTransfersNeverGoNegativeOrLoseConservation(t *testing.T) {
	l := NewLedger()
	l.Spawn("a", Balances{Scrip: 1000})
	l.Spawn("b", Balances{Scrip: 1000})

	before := l.Balance("a").Scrip + l.Balance("b").Scrip

	done := make(chan struct{})
	for i := 0; i < 100; i++ {
		go func() {
			_ = l.Transfer("a", "b", ResourceScrip, 1)
			done <- struct{}{}
		}()
		go func() {
			_ = l.Transfer("b", "a", ResourceScrip, 1)
			done <- struct{}{}
		}()
	}
	for i := 0; i < 200; i++ {
		<-done
	}

	assert.Equal(t, before, l.Balance("a").Scrip+l.Balance("b").Scrip)
	assert.GreaterOrEqual(t, l.Balance("a").Scrip, int64(0))
	assert.GreaterOrEqual(t, l.Balance("b").Scrip, int64(0))
}

func TestLedger_LLMBudgetDebitInsufficient(t *testing.T) {
	l := NewLedger()
	l.Spawn("p1", Balances{LLMDollarBudget: 0.001})

	err := l.Debit("p1", ResourceLLMBudget, 0.0015)
	require.Error(t, err)
	assert.Equal(t, 0.001, l.Balance("p1").LLMDollarBudget)
}
