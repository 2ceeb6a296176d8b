package invariant

import (
	"math/rand"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.manifold.dev/atlas/metrics"
	pb "go.manifold.dev/atlas/protocol"
)

func TestBudgetLifecycle(t *testing.T) {
	var b, err = NewBudgetTracker(200, 3)
	require.NoError(t, err)

	require.NoError(t, b.Allocate(0, 60))
	require.NoError(t, b.Allocate(1, 40))
	require.NoError(t, b.Transfer(0, 2, 10))
	require.NoError(t, b.Consume(1, 15))

	require.Equal(t, uint64(185), b.Total())
	require.Equal(t, []uint64{50, 25, 10}, []uint64{b.Category(0), b.Category(1), b.Category(2)})
	require.Equal(t, uint64(85), b.Allocated())
	require.Equal(t, uint64(100), b.Remaining())
	require.NoError(t, b.Validate())

	var hist = b.History()
	require.Len(t, hist, 4)
	require.Equal(t, Transaction{
		Seq: 4, Kind: Consume, From: 1, To: -1, Amount: 15, TotalAfter: 185, AllocatedAfter: 85,
	}, hist[3])
}

func TestBudgetViolationsLeaveTrackerUnchanged(t *testing.T) {
	var b, err = NewBudgetTracker(100, 2)
	require.NoError(t, err)
	require.NoError(t, b.Allocate(0, 90))

	var before = b.Clone()

	// Case: category would reach the modulus.
	require.EqualError(t, b.Allocate(0, 6),
		"LayerIntegrationError: category 0 budget would reach modulus (90 + 6)")
	// Case: allocation exceeds the total.
	require.EqualError(t, b.Allocate(1, 11),
		"LayerIntegrationError: allocation exceeds total budget (90 + 11 > 100)")
	// Case: insufficient budget to transfer or consume.
	require.EqualError(t, b.Transfer(1, 0, 1),
		"LayerIntegrationError: insufficient budget in category 1 (0 < 1)")
	require.EqualError(t, b.Consume(0, 91),
		"LayerIntegrationError: insufficient budget in category 0 (90 < 91)")
	// Case: invalid arguments.
	require.True(t, pb.IsKind(b.Allocate(2, 1), pb.InvalidInput))
	require.True(t, pb.IsKind(b.Allocate(0, 0), pb.InvalidInput))
	require.True(t, pb.IsKind(b.Transfer(0, 0, 1), pb.InvalidInput))

	require.Equal(t, before, b)
	require.NoError(t, b.Validate())

	_, err = NewBudgetTracker(10, 0)
	require.True(t, pb.IsKind(err, pb.InvalidInput))
}

func TestBudgetValidateDetectsTampering(t *testing.T) {
	var b, _ = NewBudgetTracker(100, 2)
	require.NoError(t, b.Allocate(0, 30))

	b.categories[1] = 5
	require.EqualError(t, b.Validate(), "LayerIntegrationError: replayed category 1 budget 0 != 5")

	b.categories[1] = pb.Modulus
	require.EqualError(t, b.Validate(), "LayerIntegrationError: category 1 budget reached modulus (96)")

	b.categories[1] = 0
	b.total = 20
	require.EqualError(t, b.Validate(), "LayerIntegrationError: budget unbalanced (allocated 30 > total 20)")
}

func TestBudgetRandomOperationsStayBalanced(t *testing.T) {
	var rnd = rand.New(rand.NewSource(0x5eed))

	for round := 0; round != 20; round++ {
		var b, err = NewBudgetTracker(uint64(rnd.Intn(1000)), 1+rnd.Intn(8))
		require.NoError(t, err)

		for i := 0; i != 500; i++ {
			var before = b.Clone()
			var cat, other = rnd.Intn(b.Categories()+1), rnd.Intn(b.Categories())
			var amount = uint64(rnd.Intn(50))

			switch rnd.Intn(3) {
			case 0:
				err = b.Allocate(cat, amount)
			case 1:
				err = b.Transfer(cat, other, amount)
			case 2:
				err = b.Consume(cat, amount)
			}
			if err != nil {
				require.Equal(t, before, b)
			} else {
				require.Len(t, b.History(), len(before.History())+1)
			}
			for c := 0; c != b.Categories(); c++ {
				require.True(t, b.Category(c) < pb.Modulus)
			}
			require.True(t, b.Allocated() <= b.Total())
		}
		require.NoError(t, b.Validate())
	}
}

func TestBudgetTransactionsAreCounted(t *testing.T) {
	var count = func(kind TransactionKind, status string) float64 {
		return testutil.ToFloat64(metrics.BudgetTransactionsTotal.WithLabelValues(kind.String(), status))
	}
	var okAlloc, failAlloc = count(Allocate, metrics.Ok), count(Allocate, metrics.Fail)
	var okConsume, failTransfer = count(Consume, metrics.Ok), count(Transfer, metrics.Fail)

	var b, err = NewBudgetTracker(50, 2)
	require.NoError(t, err)

	require.NoError(t, b.Allocate(0, 40))
	require.Error(t, b.Allocate(1, 20))
	require.Error(t, b.Transfer(0, 0, 1))
	require.NoError(t, b.Consume(0, 5))

	require.Equal(t, okAlloc+1, count(Allocate, metrics.Ok))
	require.Equal(t, failAlloc+1, count(Allocate, metrics.Fail))
	require.Equal(t, failTransfer+1, count(Transfer, metrics.Fail))
	require.Equal(t, okConsume+1, count(Consume, metrics.Ok))
}
