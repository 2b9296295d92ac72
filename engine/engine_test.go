package engine

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"tickex/domain/book"
	"tickex/events"
	"tickex/infra/kv"
	"tickex/metrics"
)

const (
	tokA = "USDA"
	tokB = "USDB"
)

func newTestExchange(t *testing.T) *Exchange {
	t.Helper()
	store := kv.NewMemStore()
	outbox, err := events.NewOutbox(store)
	require.NoError(t, err)
	e := New(store, outbox, zerolog.Nop(), -1)
	require.NoError(t, e.CreatePair(tokA, tokB))
	return e
}

func fund(t *testing.T, e *Exchange, user string, base, quote int64) {
	t.Helper()
	if base > 0 {
		require.NoError(t, e.Deposit(user, tokA, base))
	}
	if quote > 0 {
		require.NoError(t, e.Deposit(user, tokB, quote))
	}
}

func balance(t *testing.T, e *Exchange, user, token string) int64 {
	t.Helper()
	bal, err := e.BalanceOf(user, token)
	require.NoError(t, err)
	return bal
}

// placeActive places an order and activates it in its own block.
func placeActive(t *testing.T, e *Exchange, maker string, side book.Side, tick int32, amount int64) uint64 {
	t.Helper()
	id, err := e.Place(maker, tokA, tokB, side, tick, amount)
	require.NoError(t, err)
	res, err := e.ExecuteBlock(tokA, tokB, []uint64{id})
	require.NoError(t, err)
	require.Equal(t, 1, res.Activated)
	return id
}

// -------------------- Pairs --------------------

func TestCreatePair(t *testing.T) {
	e := newTestExchange(t)

	require.ErrorIs(t, e.CreatePair(tokA, tokB), book.ErrPairAlreadyExists)
	require.ErrorIs(t, e.CreatePair(tokA, tokA), book.ErrSameToken)

	_, err := e.GetOrderbook(tokB, tokA)
	require.ErrorIs(t, err, book.ErrPairNotFound)
	require.NoError(t, e.CreatePair(tokB, tokA))
}

// -------------------- Placement --------------------

func TestPlaceValidation(t *testing.T) {
	e := newTestExchange(t)
	fund(t, e, "alice", 0, 1_000_000_000)

	_, err := e.Place("alice", tokA, tokB, book.Bid, 5, book.MinOrderSize)
	require.ErrorIs(t, err, book.ErrInvalidTick)

	_, err = e.Place("alice", tokA, tokB, book.Bid, 0, book.MinOrderSize-1)
	require.ErrorIs(t, err, book.ErrBelowMinimumSize)

	_, err = e.Place("alice", tokA, "NOPE", book.Bid, 0, book.MinOrderSize)
	require.ErrorIs(t, err, book.ErrPairNotFound)

	_, err = e.Place("broke", tokA, tokB, book.Bid, 0, book.MinOrderSize)
	require.ErrorIs(t, err, book.ErrInsufficientBalance)
}

func TestPlaceEscrow(t *testing.T) {
	e := newTestExchange(t)
	fund(t, e, "alice", 100_000_000, 100_000_000)

	// Bid at tick -10 escrows quote rounded up: 50M * 0.999 = 49.95M exact.
	bidID, err := e.Place("alice", tokA, tokB, book.Bid, -10, 50_000_000)
	require.NoError(t, err)
	require.Equal(t, int64(100_000_000-49_950_000), balance(t, e, "alice", tokB))
	require.Equal(t, int64(100_000_000), balance(t, e, "alice", tokA))

	// Ask escrows base one-for-one.
	askID, err := e.Place("alice", tokA, tokB, book.Ask, 10, 30_000_000)
	require.NoError(t, err)
	require.Equal(t, int64(70_000_000), balance(t, e, "alice", tokA))

	// Both sit pending, invisible to the book.
	for _, id := range []uint64{bidID, askID} {
		o, err := e.GetPendingOrder(id)
		require.NoError(t, err)
		require.Equal(t, book.Pending, o.State)
	}
	ob, err := e.GetOrderbook(tokA, tokB)
	require.NoError(t, err)
	require.False(t, ob.HasBids())
	require.False(t, ob.HasAsks())
}

// -------------------- Activation --------------------

func TestExecuteBlock(t *testing.T) {
	e := newTestExchange(t)
	fund(t, e, "alice", 100_000_000, 100_000_000)

	bid, err := e.Place("alice", tokA, tokB, book.Bid, -10, 20_000_000)
	require.NoError(t, err)
	ask, err := e.Place("alice", tokA, tokB, book.Ask, 20, 30_000_000)
	require.NoError(t, err)

	// Unknown ids are skipped, known ones activated.
	res, err := e.ExecuteBlock(tokA, tokB, []uint64{999, bid, ask})
	require.NoError(t, err)
	require.Equal(t, 2, res.Activated)

	ob, err := e.GetOrderbook(tokA, tokB)
	require.NoError(t, err)
	require.Equal(t, int32(-10), ob.BestBidTick)
	require.Equal(t, int32(20), ob.BestAskTick)

	level, err := e.GetTickLevel(tokA, tokB, book.Bid, -10)
	require.NoError(t, err)
	require.Equal(t, int64(20_000_000), level.TotalLiquidity)

	// Re-executing the same batch is a no-op.
	res, err = e.ExecuteBlock(tokA, tokB, []uint64{bid, ask})
	require.NoError(t, err)
	require.Equal(t, 0, res.Activated)

	_, err = e.GetPendingOrder(bid)
	require.ErrorIs(t, err, book.ErrOrderNotFound)

	require.NoError(t, e.CheckConsistency(tokA, tokB))
}

func TestFIFOWithinTick(t *testing.T) {
	e := newTestExchange(t)
	fund(t, e, "m1", 50_000_000, 0)
	fund(t, e, "m2", 50_000_000, 0)
	fund(t, e, "taker", 0, 100_000_000)

	first := placeActive(t, e, "m1", book.Ask, 0, 20_000_000)
	second := placeActive(t, e, "m2", book.Ask, 0, 20_000_000)

	// Buy 25M base exact-out at parity: drains m1 fully, m2 partially.
	res, err := e.SwapExactOut("taker", tokA, tokB, true, 25_000_000, 0, 0)
	require.NoError(t, err)
	require.Equal(t, int64(25_000_000), res.AmountOut)
	require.Equal(t, int64(25_000_000), res.AmountIn)

	o1, err := e.GetOrder(first)
	require.NoError(t, err)
	require.Equal(t, book.Filled, o1.State)

	o2, err := e.GetOrder(second)
	require.NoError(t, err)
	require.Equal(t, book.Active, o2.State)
	require.Equal(t, int64(15_000_000), o2.Remaining)

	level, err := e.GetTickLevel(tokA, tokB, book.Ask, 0)
	require.NoError(t, err)
	require.Equal(t, second, level.Head)
	require.Equal(t, int64(15_000_000), level.TotalLiquidity)

	require.NoError(t, e.CheckConsistency(tokA, tokB))
}

func TestBetterTickFillsFirst(t *testing.T) {
	e := newTestExchange(t)
	fund(t, e, "low", 0, 50_000_000)
	fund(t, e, "high", 0, 50_000_000)
	fund(t, e, "taker", 50_000_000, 0)

	lowID := placeActive(t, e, "low", book.Bid, -10, 20_000_000)
	highID := placeActive(t, e, "high", book.Bid, 0, 20_000_000)

	// Selling consumes the tick-0 bid before the tick -10 bid.
	res, err := e.SwapExactIn("taker", tokA, tokB, false, 20_000_000, 0, 0)
	require.NoError(t, err)
	require.Equal(t, int64(20_000_000), res.AmountIn)
	require.Equal(t, int64(20_000_000), res.AmountOut)

	oh, err := e.GetOrder(highID)
	require.NoError(t, err)
	require.Equal(t, book.Filled, oh.State)

	ol, err := e.GetOrder(lowID)
	require.NoError(t, err)
	require.Equal(t, book.Active, ol.State)
	require.Equal(t, int64(20_000_000), ol.Remaining)

	ob, err := e.GetOrderbook(tokA, tokB)
	require.NoError(t, err)
	require.Equal(t, int32(-10), ob.BestBidTick)
}

// -------------------- Swaps --------------------

func TestSellIntoBidPartialFill(t *testing.T) {
	e := newTestExchange(t)
	fund(t, e, "maker", 0, 100_000_000)
	fund(t, e, "taker", 25_000_000, 0)

	id := placeActive(t, e, "maker", book.Bid, -10, 50_000_000)

	res, err := e.SwapExactIn("taker", tokA, tokB, false, 25_000_000, 0, 0)
	require.NoError(t, err)
	require.Equal(t, int64(25_000_000), res.AmountIn)
	// 25M base at price 0.999, rounded down.
	require.Equal(t, int64(24_975_000), res.AmountOut)

	require.Equal(t, int64(0), balance(t, e, "taker", tokA))
	require.Equal(t, int64(24_975_000), balance(t, e, "taker", tokB))
	require.Equal(t, int64(25_000_000), balance(t, e, "maker", tokA))

	o, err := e.GetOrder(id)
	require.NoError(t, err)
	require.Equal(t, book.Active, o.State)
	require.Equal(t, int64(25_000_000), o.Remaining)

	level, err := e.GetTickLevel(tokA, tokB, book.Bid, -10)
	require.NoError(t, err)
	require.Equal(t, int64(25_000_000), level.TotalLiquidity)

	require.NoError(t, e.CheckConsistency(tokA, tokB))
}

func TestBuyFromAskExactIn(t *testing.T) {
	e := newTestExchange(t)
	fund(t, e, "maker", 50_000_000, 0)
	fund(t, e, "taker", 0, 25_000_000)

	placeActive(t, e, "maker", book.Ask, -10, 50_000_000)

	res, err := e.SwapExactIn("taker", tokA, tokB, true, 25_000_000, 0, 0)
	require.NoError(t, err)
	// floor(25M / 0.999) base, charged ceil of its cost.
	require.Equal(t, int64(25_025_025), res.AmountOut)
	require.Equal(t, int64(25_000_000), res.AmountIn)

	require.Equal(t, int64(25_025_025), balance(t, e, "taker", tokA))
	require.Equal(t, int64(0), balance(t, e, "taker", tokB))
	require.Equal(t, int64(25_000_000), balance(t, e, "maker", tokB))

	require.NoError(t, e.CheckConsistency(tokA, tokB))
}

func TestSwapSlippageRollsBack(t *testing.T) {
	e := newTestExchange(t)
	fund(t, e, "maker", 0, 100_000_000)
	fund(t, e, "taker", 25_000_000, 0)

	id := placeActive(t, e, "maker", book.Bid, -10, 50_000_000)

	_, err := e.SwapExactIn("taker", tokA, tokB, false, 25_000_000, 25_000_000, 0)
	require.ErrorIs(t, err, book.ErrSlippageExceeded)

	// Nothing moved.
	require.Equal(t, int64(25_000_000), balance(t, e, "taker", tokA))
	require.Equal(t, int64(0), balance(t, e, "taker", tokB))
	o, err := e.GetOrder(id)
	require.NoError(t, err)
	require.Equal(t, int64(50_000_000), o.Remaining)

	require.NoError(t, e.CheckConsistency(tokA, tokB))
}

func TestSwapExactOutLimit(t *testing.T) {
	e := newTestExchange(t)
	fund(t, e, "maker", 50_000_000, 0)
	fund(t, e, "taker", 0, 50_000_000)

	placeActive(t, e, "maker", book.Ask, 10, 50_000_000)

	// 20M base at 1.001 costs ceil(20M * 1.001) = 20_020_000.
	_, err := e.SwapExactOut("taker", tokA, tokB, true, 20_000_000, 20_000_000, 0)
	require.ErrorIs(t, err, book.ErrSlippageExceeded)

	res, err := e.SwapExactOut("taker", tokA, tokB, true, 20_000_000, 20_020_000, 0)
	require.NoError(t, err)
	require.Equal(t, int64(20_000_000), res.AmountOut)
	require.Equal(t, int64(20_020_000), res.AmountIn)
}

func TestSwapAgainstEmptyBook(t *testing.T) {
	e := newTestExchange(t)
	fund(t, e, "taker", 10_000_000, 10_000_000)

	res, err := e.SwapExactIn("taker", tokA, tokB, true, 10_000_000, 0, 0)
	require.NoError(t, err)
	require.Zero(t, res.AmountIn)
	require.Zero(t, res.AmountOut)
	require.Equal(t, int64(10_000_000), balance(t, e, "taker", tokB))
}

func TestQuoteDoesNotMutate(t *testing.T) {
	e := newTestExchange(t)
	fund(t, e, "maker", 0, 100_000_000)
	fund(t, e, "taker", 25_000_000, 0)

	id := placeActive(t, e, "maker", book.Bid, -10, 50_000_000)

	q, err := e.QuoteSwapIn(tokA, tokB, false, 25_000_000)
	require.NoError(t, err)
	require.Equal(t, int64(25_000_000), q.AmountIn)
	require.Equal(t, int64(24_975_000), q.AmountOut)

	// The book and balances are untouched.
	o, err := e.GetOrder(id)
	require.NoError(t, err)
	require.Equal(t, int64(50_000_000), o.Remaining)
	require.Equal(t, int64(0), balance(t, e, "maker", tokA))

	// A real swap then matches the quote exactly.
	res, err := e.SwapExactIn("taker", tokA, tokB, false, 25_000_000, 0, 0)
	require.NoError(t, err)
	require.Equal(t, q.AmountIn, res.AmountIn)
	require.Equal(t, q.AmountOut, res.AmountOut)
}

// Quotes run the full walk on a discarded transaction; the order
// lifecycle counters must not move until a swap actually commits.
func TestQuoteLeavesOrderMetricsUntouched(t *testing.T) {
	e := newTestExchange(t)
	fund(t, e, "maker", 0, 19_980_000)
	fund(t, e, "taker", 20_000_000, 0)

	parent, err := e.PlaceFlip("maker", tokA, tokB, book.Bid, -10, 20_000_000, 10)
	require.NoError(t, err)
	_, err = e.ExecuteBlock(tokA, tokB, []uint64{parent})
	require.NoError(t, err)

	pair := tokA + "/" + tokB
	filled := func() float64 {
		return testutil.ToFloat64(metrics.OrdersFilledTotal.WithLabelValues(pair, "bid"))
	}
	activated := func() float64 {
		return testutil.ToFloat64(metrics.OrdersActivatedTotal.WithLabelValues(pair, "ask"))
	}
	filledBefore, activatedBefore := filled(), activated()

	// The quote fully fills the bid and walks the flip spawn path.
	q, err := e.QuoteSwapIn(tokA, tokB, false, 20_000_000)
	require.NoError(t, err)
	require.Equal(t, int64(20_000_000), q.AmountIn)
	require.Equal(t, filledBefore, filled())
	require.Equal(t, activatedBefore, activated())

	_, err = e.SwapExactIn("taker", tokA, tokB, false, 20_000_000, 0, 0)
	require.NoError(t, err)
	require.Equal(t, filledBefore+1, filled())
	require.Equal(t, activatedBefore+1, activated())
}

// -------------------- Flip orders --------------------

func TestFlipSpawnsOppositeSide(t *testing.T) {
	e := newTestExchange(t)
	fund(t, e, "maker", 0, 100_000_000)
	fund(t, e, "taker", 20_000_000, 0)

	parent, err := e.PlaceFlip("maker", tokA, tokB, book.Bid, -10, 20_000_000, 10)
	require.NoError(t, err)
	_, err = e.ExecuteBlock(tokA, tokB, []uint64{parent})
	require.NoError(t, err)

	res, err := e.SwapExactIn("taker", tokA, tokB, false, 20_000_000, 0, 0)
	require.NoError(t, err)
	require.Equal(t, int64(20_000_000), res.AmountIn)

	po, err := e.GetOrder(parent)
	require.NoError(t, err)
	require.Equal(t, book.Filled, po.State)

	// Exactly one child, on the opposite side at the flip tick, already
	// active without any ExecuteBlock.
	child, err := e.GetOrder(parent + 1)
	require.NoError(t, err)
	require.Equal(t, "maker", child.Maker)
	require.Equal(t, book.Ask, child.Side)
	require.Equal(t, book.Active, child.State)
	require.Equal(t, int32(10), child.Tick)
	require.Equal(t, int64(20_000_000), child.Amount)
	require.False(t, child.Flip)

	// The child's base escrow came out of the fill proceeds.
	require.Equal(t, int64(0), balance(t, e, "maker", tokA))

	ob, err := e.GetOrderbook(tokA, tokB)
	require.NoError(t, err)
	require.Equal(t, int32(10), ob.BestAskTick)

	level, err := e.GetTickLevel(tokA, tokB, book.Ask, 10)
	require.NoError(t, err)
	require.Equal(t, int64(20_000_000), level.TotalLiquidity)

	require.NoError(t, e.CheckConsistency(tokA, tokB))
}

// A maker can withdraw fill proceeds between partial fills, so the flip
// escrow may no longer cover the parent's full amount. The child is
// capped to what the balance can fund; the taker's swap must not fail.
func TestFlipCapsToAvailableEscrow(t *testing.T) {
	e := newTestExchange(t)
	fund(t, e, "maker", 20_000_000, 0)
	fund(t, e, "takerA", 0, 30_000_000)
	fund(t, e, "takerB", 0, 30_000_000)

	parent, err := e.PlaceFlip("maker", tokA, tokB, book.Ask, 10, 20_000_000, 0)
	require.NoError(t, err)
	_, err = e.ExecuteBlock(tokA, tokB, []uint64{parent})
	require.NoError(t, err)

	// First half fills; the maker withdraws the quote proceeds.
	_, err = e.SwapExactOut("takerA", tokA, tokB, true, 10_000_000, 0, 0)
	require.NoError(t, err)
	require.NoError(t, e.Withdraw("maker", tokB, 10_010_000))

	// The second half still matches; the flip child shrinks to what the
	// remaining in-transaction proceeds can escrow.
	res, err := e.SwapExactOut("takerB", tokA, tokB, true, 10_000_000, 0, 0)
	require.NoError(t, err)
	require.Equal(t, int64(10_000_000), res.AmountOut)

	po, err := e.GetOrder(parent)
	require.NoError(t, err)
	require.Equal(t, book.Filled, po.State)

	child, err := e.GetOrder(parent + 1)
	require.NoError(t, err)
	require.Equal(t, book.Bid, child.Side)
	require.Equal(t, book.Active, child.State)
	require.Equal(t, int32(0), child.Tick)
	require.Equal(t, int64(10_010_000), child.Amount)

	// The whole second-fill credit went into the child's escrow.
	require.Equal(t, int64(0), balance(t, e, "maker", tokB))

	ob, err := e.GetOrderbook(tokA, tokB)
	require.NoError(t, err)
	require.Equal(t, int32(0), ob.BestBidTick)

	require.NoError(t, e.CheckConsistency(tokA, tokB))
}

func TestFlipSkippedWhenEscrowBelowMinimum(t *testing.T) {
	e := newTestExchange(t)
	fund(t, e, "maker", 0, 19_980_000)
	fund(t, e, "taker", 20_000_000, 0)

	parent, err := e.PlaceFlip("maker", tokA, tokB, book.Bid, -10, 20_000_000, 10)
	require.NoError(t, err)
	_, err = e.ExecuteBlock(tokA, tokB, []uint64{parent})
	require.NoError(t, err)

	// Partial fill, then the maker withdraws the base proceeds.
	_, err = e.SwapExactIn("taker", tokA, tokB, false, 15_000_000, 0, 0)
	require.NoError(t, err)
	require.NoError(t, e.Withdraw("maker", tokA, 15_000_000))

	// The final fill leaves only 5M base for the child's escrow, below
	// the minimum order size: the flip is dropped, the swap succeeds.
	res, err := e.SwapExactIn("taker", tokA, tokB, false, 5_000_000, 0, 0)
	require.NoError(t, err)
	require.Equal(t, int64(5_000_000), res.AmountIn)

	po, err := e.GetOrder(parent)
	require.NoError(t, err)
	require.Equal(t, book.Filled, po.State)

	// No child was created.
	_, err = e.GetOrder(parent + 1)
	require.ErrorIs(t, err, book.ErrOrderNotFound)
	require.Equal(t, int64(5_000_000), balance(t, e, "maker", tokA))

	ob, err := e.GetOrderbook(tokA, tokB)
	require.NoError(t, err)
	require.False(t, ob.HasAsks())

	require.NoError(t, e.CheckConsistency(tokA, tokB))
}

func TestFlipValidation(t *testing.T) {
	e := newTestExchange(t)
	fund(t, e, "maker", 100_000_000, 100_000_000)

	_, err := e.PlaceFlip("maker", tokA, tokB, book.Bid, 0, 20_000_000, 0)
	require.ErrorIs(t, err, book.ErrInvalidFlipTick)
	_, err = e.PlaceFlip("maker", tokA, tokB, book.Ask, 0, 20_000_000, 10)
	require.ErrorIs(t, err, book.ErrInvalidFlipTick)
	_, err = e.PlaceFlip("maker", tokA, tokB, book.Bid, 0, 20_000_000, book.MaxTick+book.TickSpacing)
	require.ErrorIs(t, err, book.ErrInvalidTick)
}

// -------------------- Cancellation --------------------

func TestCancelPendingRefundsEscrow(t *testing.T) {
	e := newTestExchange(t)
	fund(t, e, "alice", 0, 49_950_000)

	id, err := e.Place("alice", tokA, tokB, book.Bid, -10, 50_000_000)
	require.NoError(t, err)
	require.Equal(t, int64(0), balance(t, e, "alice", tokB))

	res, err := e.Cancel("alice", id)
	require.NoError(t, err)
	require.Equal(t, tokB, res.Token)
	require.Equal(t, int64(49_950_000), res.Refund)
	require.Equal(t, int64(49_950_000), balance(t, e, "alice", tokB))

	_, err = e.Cancel("alice", id)
	require.ErrorIs(t, err, book.ErrAlreadyTerminal)
}

func TestCancelActiveUnlinks(t *testing.T) {
	e := newTestExchange(t)
	fund(t, e, "m1", 60_000_000, 0)

	a := placeActive(t, e, "m1", book.Ask, 0, 20_000_000)
	b := placeActive(t, e, "m1", book.Ask, 0, 20_000_000)
	c := placeActive(t, e, "m1", book.Ask, 0, 20_000_000)

	// Cancel the middle of the queue.
	res, err := e.Cancel("m1", b)
	require.NoError(t, err)
	require.Equal(t, tokA, res.Token)
	require.Equal(t, int64(20_000_000), res.Refund)

	level, err := e.GetTickLevel(tokA, tokB, book.Ask, 0)
	require.NoError(t, err)
	require.Equal(t, a, level.Head)
	require.Equal(t, c, level.Tail)
	require.Equal(t, int64(40_000_000), level.TotalLiquidity)

	oa, err := e.GetOrder(a)
	require.NoError(t, err)
	require.Equal(t, c, oa.Next)
	oc, err := e.GetOrder(c)
	require.NoError(t, err)
	require.Equal(t, a, oc.Prev)

	require.NoError(t, e.CheckConsistency(tokA, tokB))
}

func TestCancelWrongOwner(t *testing.T) {
	e := newTestExchange(t)
	fund(t, e, "alice", 20_000_000, 0)

	id, err := e.Place("alice", tokA, tokB, book.Ask, 0, 20_000_000)
	require.NoError(t, err)

	_, err = e.Cancel("mallory", id)
	require.ErrorIs(t, err, book.ErrNotOwner)
	_, err = e.Cancel("alice", 999)
	require.ErrorIs(t, err, book.ErrOrderNotFound)
}

func TestCancelLastOrderEmptiesLevel(t *testing.T) {
	e := newTestExchange(t)
	fund(t, e, "alice", 20_000_000, 0)

	id := placeActive(t, e, "alice", book.Ask, 30, 20_000_000)
	_, err := e.Cancel("alice", id)
	require.NoError(t, err)

	level, err := e.GetTickLevel(tokA, tokB, book.Ask, 30)
	require.NoError(t, err)
	require.True(t, level.IsEmpty())

	// A buy after the cancel walks past the stale best-ask cache.
	fund(t, e, "taker", 0, 10_000_000)
	res, err := e.SwapExactIn("taker", tokA, tokB, true, 10_000_000, 0, 0)
	require.NoError(t, err)
	require.Zero(t, res.AmountOut)

	require.NoError(t, e.CheckConsistency(tokA, tokB))
}

// -------------------- Ledger --------------------

func TestDepositWithdraw(t *testing.T) {
	e := newTestExchange(t)

	require.ErrorIs(t, e.Deposit("alice", tokA, 0), book.ErrInvalidAmount)
	require.ErrorIs(t, e.Withdraw("alice", tokA, -1), book.ErrInvalidAmount)

	require.NoError(t, e.Deposit("alice", tokA, 5_000))
	require.ErrorIs(t, e.Withdraw("alice", tokA, 5_001), book.ErrInsufficientBalance)
	require.NoError(t, e.Withdraw("alice", tokA, 5_000))
	require.Equal(t, int64(0), balance(t, e, "alice", tokA))
}

// Quote conservation: maker escrow covers every payout plus the refund.
func TestBidEscrowConservation(t *testing.T) {
	e := newTestExchange(t)
	const deposit = int64(49_950_000) // escrow for 50M base at tick -10
	fund(t, e, "maker", 0, deposit)
	fund(t, e, "taker", 30_000_000, 0)

	id := placeActive(t, e, "maker", book.Bid, -10, 50_000_000)

	// Two partial sells, then cancel the rest.
	res1, err := e.SwapExactIn("taker", tokA, tokB, false, 13_000_001, 0, 0)
	require.NoError(t, err)
	res2, err := e.SwapExactIn("taker", tokA, tokB, false, 16_999_999, 0, 0)
	require.NoError(t, err)
	cres, err := e.Cancel("maker", id)
	require.NoError(t, err)

	payouts := res1.AmountOut + res2.AmountOut
	require.LessOrEqual(t, payouts+cres.Refund, deposit)

	// All quote is accounted for: taker payouts + maker refund + dust
	// retained by the ledger equal the original deposit.
	require.Equal(t, payouts, balance(t, e, "taker", tokB))
	require.Equal(t, cres.Refund, balance(t, e, "maker", tokB))
	require.Equal(t, int64(30_000_000), balance(t, e, "maker", tokA))
}

// -------------------- Budget --------------------

func TestBudgetAbortsAndRollsBack(t *testing.T) {
	store := kv.NewMemStore()
	outbox, err := events.NewOutbox(store)
	require.NoError(t, err)

	wide := New(store, outbox, zerolog.Nop(), -1)
	require.NoError(t, wide.CreatePair(tokA, tokB))
	require.NoError(t, wide.Deposit("alice", tokA, 100_000_000))

	var ids []uint64
	for i := 0; i < 4; i++ {
		id, err := wide.Place("alice", tokA, tokB, book.Ask, 0, 20_000_000)
		require.NoError(t, err)
		ids = append(ids, id)
	}

	narrow := New(store, outbox, zerolog.Nop(), 6)
	_, err = narrow.ExecuteBlock(tokA, tokB, ids)
	require.ErrorIs(t, err, kv.ErrBudgetExceeded)

	// The aborted batch left every order pending.
	for _, id := range ids {
		o, err := wide.GetPendingOrder(id)
		require.NoError(t, err)
		require.Equal(t, book.Pending, o.State)
	}

	res, err := wide.ExecuteBlock(tokA, tokB, ids)
	require.NoError(t, err)
	require.Equal(t, 4, res.Activated)
	require.Positive(t, res.Accesses)
}

// -------------------- Depth --------------------

func TestDepthBestFirst(t *testing.T) {
	e := newTestExchange(t)
	fund(t, e, "maker", 100_000_000, 100_000_000)

	placeActive(t, e, "maker", book.Ask, 0, 10_000_000)
	placeActive(t, e, "maker", book.Ask, 20, 10_000_000)
	placeActive(t, e, "maker", book.Bid, -10, 10_000_000)
	placeActive(t, e, "maker", book.Bid, -30, 10_000_000)

	asks, err := e.Depth(tokA, tokB, book.Ask, 10)
	require.NoError(t, err)
	require.Len(t, asks, 2)
	require.Equal(t, int32(0), asks[0].Tick)
	require.Equal(t, int32(20), asks[1].Tick)
	require.Equal(t, int64(100_000), asks[0].Price)

	bids, err := e.Depth(tokA, tokB, book.Bid, 10)
	require.NoError(t, err)
	require.Len(t, bids, 2)
	require.Equal(t, int32(-10), bids[0].Tick)
	require.Equal(t, int32(-30), bids[1].Tick)

	one, err := e.Depth(tokA, tokB, book.Bid, 1)
	require.NoError(t, err)
	require.Len(t, one, 1)
}
