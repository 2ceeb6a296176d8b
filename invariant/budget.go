package invariant

import (
	"fmt"

	"go.manifold.dev/atlas/metrics"
	pb "go.manifold.dev/atlas/protocol"
)

// TransactionKind enumerates mutations of a BudgetTracker.
type TransactionKind int

const (
	Allocate TransactionKind = iota
	Transfer
	Consume
)

func (k TransactionKind) String() string {
	switch k {
	case Allocate:
		return "Allocate"
	case Transfer:
		return "Transfer"
	case Consume:
		return "Consume"
	default:
		return fmt.Sprintf("TransactionKind(%d)", int(k))
	}
}

// Transaction is an applied BudgetTracker mutation. From is -1 for
// Allocate, and To is -1 for Consume.
type Transaction struct {
	Seq    uint64
	Kind   TransactionKind
	From   int
	To     int
	Amount uint64
	// Total budget and allocated budget after the Transaction applied.
	TotalAfter     uint64
	AllocatedAfter uint64
}

// BudgetTracker is a ledger of conservation budget. Budget is allocated
// from the total into categories, transferred between categories, and
// consumed from categories (which also consumes it from the total).
// Each category holds strictly less than the Modulus. At all times, the
// sum of category budgets is at most the total budget.
//
// Mutations either apply completely and are appended to the transaction
// history, or return an error and leave the tracker unchanged.
type BudgetTracker struct {
	initialTotal uint64
	total        uint64
	categories   []uint64
	history      []Transaction
}

// NewBudgetTracker returns a BudgetTracker of |total| budget over |categories|.
func NewBudgetTracker(total uint64, categories int) (*BudgetTracker, error) {
	if categories <= 0 {
		return nil, pb.NewError(pb.InvalidInput, "expected categories > 0 (have %d)", categories)
	}
	return &BudgetTracker{
		initialTotal: total,
		total:        total,
		categories:   make([]uint64, categories),
	}, nil
}

// Allocate moves |amount| of unallocated total budget into |category|.
func (t *BudgetTracker) Allocate(category int, amount uint64) (err error) {
	defer observe(Allocate, &err)

	if err := t.checkArgs(category, amount); err != nil {
		return err
	} else if t.categories[category]+amount >= pb.Modulus {
		return pb.NewError(pb.LayerIntegrationError,
			"category %d budget would reach modulus (%d + %d)", category, t.categories[category], amount)
	} else if alloc := t.Allocated(); alloc+amount > t.total {
		return pb.NewError(pb.LayerIntegrationError,
			"allocation exceeds total budget (%d + %d > %d)", alloc, amount, t.total)
	}
	t.categories[category] += amount
	t.append(Allocate, -1, category, amount)
	return nil
}

// Transfer moves |amount| of allocated budget from category |from| to |to|.
func (t *BudgetTracker) Transfer(from, to int, amount uint64) (err error) {
	defer observe(Transfer, &err)

	if err := t.checkArgs(from, amount); err != nil {
		return err
	} else if err = t.checkArgs(to, amount); err != nil {
		return err
	} else if from == to {
		return pb.NewError(pb.InvalidInput, "transfer within category %d", from)
	} else if t.categories[from] < amount {
		return pb.NewError(pb.LayerIntegrationError,
			"insufficient budget in category %d (%d < %d)", from, t.categories[from], amount)
	} else if t.categories[to]+amount >= pb.Modulus {
		return pb.NewError(pb.LayerIntegrationError,
			"category %d budget would reach modulus (%d + %d)", to, t.categories[to], amount)
	}
	t.categories[from] -= amount
	t.categories[to] += amount
	t.append(Transfer, from, to, amount)
	return nil
}

// Consume removes |amount| of allocated budget of |category| from both
// the category and the total.
func (t *BudgetTracker) Consume(category int, amount uint64) (err error) {
	defer observe(Consume, &err)

	if err := t.checkArgs(category, amount); err != nil {
		return err
	} else if t.categories[category] < amount {
		return pb.NewError(pb.LayerIntegrationError,
			"insufficient budget in category %d (%d < %d)", category, t.categories[category], amount)
	}
	t.categories[category] -= amount
	t.total -= amount
	t.append(Consume, category, -1, amount)
	return nil
}

// Total returns the current total budget.
func (t *BudgetTracker) Total() uint64 { return t.total }

// Category returns the budget of |category|.
func (t *BudgetTracker) Category(category int) uint64 { return t.categories[category] }

// Categories returns the number of categories.
func (t *BudgetTracker) Categories() int { return len(t.categories) }

// Allocated returns the sum of category budgets.
func (t *BudgetTracker) Allocated() uint64 {
	var sum uint64
	for _, c := range t.categories {
		sum += c
	}
	return sum
}

// Remaining returns the unallocated total budget.
func (t *BudgetTracker) Remaining() uint64 { return t.total - t.Allocated() }

// History returns a copy of the transaction history.
func (t *BudgetTracker) History() []Transaction {
	return append([]Transaction(nil), t.history...)
}

// Validate returns an error unless the tracker is balanced: category
// budgets are each below the Modulus and sum to at most the total, and a
// replay of the transaction history from the initial total reproduces
// the current state.
func (t *BudgetTracker) Validate() error {
	var alloc uint64
	for i, c := range t.categories {
		if c >= pb.Modulus {
			return pb.NewError(pb.LayerIntegrationError, "category %d budget reached modulus (%d)", i, c)
		}
		alloc += c
	}
	if alloc > t.total {
		return pb.NewError(pb.LayerIntegrationError, "budget unbalanced (allocated %d > total %d)", alloc, t.total)
	}

	var total = t.initialTotal
	var replay = make([]uint64, len(t.categories))

	for i, tx := range t.history {
		switch tx.Kind {
		case Allocate:
			replay[tx.To] += tx.Amount
		case Transfer:
			replay[tx.From] -= tx.Amount
			replay[tx.To] += tx.Amount
		case Consume:
			replay[tx.From] -= tx.Amount
			total -= tx.Amount
		}
		if tx.Seq != uint64(i+1) || tx.TotalAfter != total || tx.AllocatedAfter != sumOf(replay) {
			return pb.NewError(pb.LayerIntegrationError, "transaction history diverges at seq %d", tx.Seq)
		}
	}
	if total != t.total {
		return pb.NewError(pb.LayerIntegrationError, "replayed total %d != total %d", total, t.total)
	}
	for i := range replay {
		if replay[i] != t.categories[i] {
			return pb.NewError(pb.LayerIntegrationError,
				"replayed category %d budget %d != %d", i, replay[i], t.categories[i])
		}
	}
	return nil
}

// IsBalanced returns whether Validate passes.
func (t *BudgetTracker) IsBalanced() bool { return t.Validate() == nil }

// Clone returns a deep copy of the BudgetTracker.
func (t *BudgetTracker) Clone() *BudgetTracker {
	var out = *t
	out.categories = append([]uint64(nil), t.categories...)
	out.history = append([]Transaction(nil), t.history...)
	return &out
}

func (t *BudgetTracker) checkArgs(category int, amount uint64) error {
	if category < 0 || category >= len(t.categories) {
		return pb.NewError(pb.InvalidInput, "category out of range (%d; expected < %d)", category, len(t.categories))
	} else if amount == 0 {
		return pb.NewError(pb.InvalidInput, "expected amount > 0")
	}
	return nil
}

func (t *BudgetTracker) append(kind TransactionKind, from, to int, amount uint64) {
	t.history = append(t.history, Transaction{
		Seq:            uint64(len(t.history) + 1),
		Kind:           kind,
		From:           from,
		To:             to,
		Amount:         amount,
		TotalAfter:     t.total,
		AllocatedAfter: t.Allocated(),
	})
}

func observe(kind TransactionKind, err *error) {
	var status = metrics.Ok
	if *err != nil {
		status = metrics.Fail
	}
	metrics.BudgetTransactionsTotal.WithLabelValues(kind.String(), status).Inc()
}

func sumOf(v []uint64) uint64 {
	var sum uint64
	for _, c := range v {
		sum += c
	}
	return sum
}
