package world

import (
	"sync"

	"github.com/emergentlabs/agentsim/internal/kernelerr"
)

// Resource names the balances the ledger tracks.
type Resource string

const (
	ResourceScrip        Resource = "scrip"
	ResourceLLMBudget     Resource = "llm_dollar_budget"
	ResourceLLMTokenRate  Resource = "llm_token_rate"
	ResourceLLMCallRate   Resource = "llm_call_rate"
	ResourceCPURate       Resource = "cpu_rate"
	ResourceDiskQuota     Resource = "disk_quota"
)

// Balances holds one principal's full balance sheet.
type Balances struct {
	Scrip           int64
	LLMDollarBudget float64
	DiskQuota       int64
}

// principalLedger pairs a balance sheet with its own lock, adapting a
// gasbank per-user sync.Map-of-locks pattern into a plain map guarded by a
// registry-level RWMutex plus per-entry mutex, so multi-party transfers can
// always acquire locks in ascending principal_id order.
type principalLedger struct {
	mu sync.Mutex
	b  Balances
}

// Ledger maps principal_id to balances.
type Ledger struct {
	mu         sync.RWMutex
	principals map[string]*principalLedger
}

// NewLedger constructs an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{principals: make(map[string]*principalLedger)}
}

func (l *Ledger) entry(principalID string) *principalLedger {
	l.mu.RLock()
	p, ok := l.principals[principalID]
	l.mu.RUnlock()
	if ok {
		return p
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if p, ok := l.principals[principalID]; ok {
		return p
	}
	p = &principalLedger{}
	l.principals[principalID] = p
	return p
}

// Spawn registers a principal with opening balances. It is a no-op if the
// principal already has an entry (registration uniqueness is enforced by
// the IDRegistry, not here).
func (l *Ledger) Spawn(principalID string, opening Balances) {
	p := l.entry(principalID)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.b = opening
}

// Balance returns a snapshot of principalID's balances. Returns the zero
// value if the principal has no ledger entry.
func (l *Ledger) Balance(principalID string) Balances {
	p := l.entry(principalID)
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.b
}

// AllBalances snapshots every known principal's balances, for checkpoint
// serialization.
func (l *Ledger) AllBalances() map[string]Balances {
	l.mu.RLock()
	ids := make([]string, 0, len(l.principals))
	for id := range l.principals {
		ids = append(ids, id)
	}
	l.mu.RUnlock()

	out := make(map[string]Balances, len(ids))
	for _, id := range ids {
		out[id] = l.Balance(id)
	}
	return out
}

// Restore replaces the ledger's contents with balances, for checkpoint
// restore. Existing principals not present in balances are left untouched.
func (l *Ledger) Restore(balances map[string]Balances) {
	for id, b := range balances {
		l.Spawn(id, b)
	}
}

// Debit subtracts amount from a stock resource (scrip, llm_dollar_budget,
// disk_quota), failing with insufficient_funds rather than ever going
// negative.
func (l *Ledger) Debit(principalID string, resource Resource, amount float64) error {
	p := l.entry(principalID)
	p.mu.Lock()
	defer p.mu.Unlock()

	switch resource {
	case ResourceScrip:
		amt := int64(amount)
		if p.b.Scrip < amt {
			return kernelerr.InsufficientFunds(string(resource), amt, p.b.Scrip)
		}
		p.b.Scrip -= amt
	case ResourceLLMBudget:
		if p.b.LLMDollarBudget < amount {
			return kernelerr.InsufficientFunds(string(resource), int64(amount*100), int64(p.b.LLMDollarBudget*100))
		}
		p.b.LLMDollarBudget -= amount
	case ResourceDiskQuota:
		amt := int64(amount)
		if p.b.DiskQuota < amt {
			return kernelerr.InsufficientFunds(string(resource), amt, p.b.DiskQuota)
		}
		p.b.DiskQuota -= amt
	default:
		return kernelerr.InvalidArgument("resource", "not a stock resource")
	}
	return nil
}

// Credit adds amount to a stock resource. Credit never fails.
func (l *Ledger) Credit(principalID string, resource Resource, amount float64) {
	p := l.entry(principalID)
	p.mu.Lock()
	defer p.mu.Unlock()

	switch resource {
	case ResourceScrip:
		p.b.Scrip += int64(amount)
	case ResourceLLMBudget:
		p.b.LLMDollarBudget += amount
	case ResourceDiskQuota:
		p.b.DiskQuota += int64(amount)
	}
}

// ClampDebit debits up to amount, clamping to whatever is available and
// returning the amount actually taken, so an under-reservation never drives
// a balance negative.
func (l *Ledger) ClampDebit(principalID string, resource Resource, amount float64) float64 {
	p := l.entry(principalID)
	p.mu.Lock()
	defer p.mu.Unlock()

	switch resource {
	case ResourceScrip:
		avail := float64(p.b.Scrip)
		taken := amount
		if taken > avail {
			taken = avail
		}
		p.b.Scrip -= int64(taken)
		return taken
	case ResourceLLMBudget:
		taken := amount
		if taken > p.b.LLMDollarBudget {
			taken = p.b.LLMDollarBudget
		}
		p.b.LLMDollarBudget -= taken
		return taken
	default:
		return 0
	}
}

// Transfer moves amount of resource from `from` to `to` atomically: a
// single logical step that never leaves an observer seeing an
// intermediate state. Lock ordering follows the ascending principal_id
// rule to avoid deadlock when two loops transfer in opposite directions.
func (l *Ledger) Transfer(from, to string, resource Resource, amount float64) error {
	if from == to {
		return nil
	}

	first, second := from, to
	if second < first {
		first, second = second, first
	}
	pf := l.entry(first)
	ps := l.entry(second)

	pf.mu.Lock()
	defer pf.mu.Unlock()
	if pf != ps {
		ps.mu.Lock()
		defer ps.mu.Unlock()
	}

	src := l.entry(from)
	dst := l.entry(to)

	switch resource {
	case ResourceScrip:
		amt := int64(amount)
		if src.b.Scrip < amt {
			return kernelerr.InsufficientFunds(string(resource), amt, src.b.Scrip)
		}
		src.b.Scrip -= amt
		dst.b.Scrip += amt
	case ResourceLLMBudget:
		if src.b.LLMDollarBudget < amount {
			return kernelerr.InsufficientFunds(string(resource), int64(amount*100), int64(src.b.LLMDollarBudget*100))
		}
		src.b.LLMDollarBudget -= amount
		dst.b.LLMDollarBudget += amount
	case ResourceDiskQuota:
		amt := int64(amount)
		if src.b.DiskQuota < amt {
			return kernelerr.InsufficientFunds(string(resource), amt, src.b.DiskQuota)
		}
		src.b.DiskQuota -= amt
		dst.b.DiskQuota += amt
	default:
		return kernelerr.InvalidArgument("resource", "not a transferable resource")
	}
	return nil
}
