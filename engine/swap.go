package engine

import (
	"tickex/domain/book"
	"tickex/events"
	"tickex/infra/kv"
	"tickex/metrics"
)

// DefaultSwapTicks bounds how many populated ticks one swap may cross
// when the caller does not supply a limit.
const DefaultSwapTicks = 32

// SwapResult reports the executed (or quoted) amounts. AmountIn is what
// the taker pays, AmountOut what the taker receives; a partial fill
// against a shallow book is not an error.
type SwapResult struct {
	AmountIn  int64
	AmountOut int64
	Accesses  int
}

// SwapExactIn spends up to amountIn of the input token against the
// opposite side of the book, best tick first, FIFO within a tick.
// isBuy means quote in, base out. Fails with ErrSlippageExceeded when the
// matched output is below minAmountOut; all effects are rolled back.
func (e *Exchange) SwapExactIn(taker, base, quote string, isBuy bool, amountIn, minAmountOut int64, maxTicks int) (SwapResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	tx := e.begin()
	res, err := e.swap(tx, taker, base, quote, isBuy, false, amountIn, minAmountOut, maxTicks)
	if err == nil {
		err = tx.Commit()
	}
	res.Accesses = tx.Accesses()
	e.finish("swap_exact_in", tx, err)
	return res, err
}

// SwapExactOut buys exactly amountOut of the output token where the book
// allows it, charging whatever input that costs. Fails with
// ErrSlippageExceeded when the cost exceeds maxAmountIn (0 = unbounded).
func (e *Exchange) SwapExactOut(taker, base, quote string, isBuy bool, amountOut, maxAmountIn int64, maxTicks int) (SwapResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	tx := e.begin()
	res, err := e.swap(tx, taker, base, quote, isBuy, true, amountOut, maxAmountIn, maxTicks)
	if err == nil {
		err = tx.Commit()
	}
	res.Accesses = tx.Accesses()
	e.finish("swap_exact_out", tx, err)
	return res, err
}

// QuoteSwapIn runs the exact-in walk on a transaction that is discarded
// instead of committed, so the quote sees precisely what the swap would.
func (e *Exchange) QuoteSwapIn(base, quote string, isBuy bool, amountIn int64) (SwapResult, error) {
	return e.quote("quote_swap_in", base, quote, isBuy, false, amountIn)
}

// QuoteSwapOut mirrors SwapExactOut without committing.
func (e *Exchange) QuoteSwapOut(base, quote string, isBuy bool, amountOut int64) (SwapResult, error) {
	return e.quote("quote_swap_out", base, quote, isBuy, true, amountOut)
}

func (e *Exchange) quote(op, base, quote string, isBuy, exactOut bool, amount int64) (SwapResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	tx := e.begin()
	var res SwapResult
	var err error
	defer func() { e.finish(op, tx, err) }()

	if amount <= 0 {
		err = book.ErrInvalidAmount
		return res, err
	}
	ob, err := getOrderbook(tx, base, quote)
	if err != nil {
		return res, err
	}
	w, err := e.walkBook(tx, ob, isBuy, exactOut, amount, 0, true)
	if err != nil {
		return res, err
	}
	res.AmountIn, res.AmountOut = w.amountIn, w.amountOut
	res.Accesses = tx.Accesses()
	return res, nil
}

// -------------------- Execution --------------------

func (e *Exchange) swap(tx *kv.Tx, taker, base, quote string, isBuy, exactOut bool, amount, limit int64, maxTicks int) (SwapResult, error) {
	var res SwapResult
	if amount <= 0 {
		return res, book.ErrInvalidAmount
	}
	ob, err := getOrderbook(tx, base, quote)
	if err != nil {
		return res, err
	}

	w, err := e.walkBook(tx, ob, isBuy, exactOut, amount, maxTicks, false)
	if err != nil {
		return res, err
	}
	res.AmountIn, res.AmountOut = w.amountIn, w.amountOut

	if exactOut {
		if limit > 0 && res.AmountIn > limit {
			return res, book.ErrSlippageExceeded
		}
	} else if res.AmountOut < limit {
		return res, book.ErrSlippageExceeded
	}

	inToken, outToken := quote, base
	if !isBuy {
		inToken, outToken = base, quote
	}
	if res.AmountIn > 0 {
		if err := subBalance(tx, taker, inToken, res.AmountIn); err != nil {
			return res, err
		}
		if err := addBalance(tx, taker, outToken, res.AmountOut); err != nil {
			return res, err
		}
	}
	if err := putOrderbook(tx, ob); err != nil {
		return res, err
	}

	pair := pairName(base, quote)
	direction := "sell"
	baseVolume := res.AmountIn
	if isBuy {
		direction = "buy"
		baseVolume = res.AmountOut
	}
	metrics.SwapVolumeBase.WithLabelValues(pair, direction).Add(float64(baseVolume))
	metrics.BestBidTick.WithLabelValues(pair).Set(float64(ob.BestBidTick))
	metrics.BestAskTick.WithLabelValues(pair).Set(float64(ob.BestAskTick))

	e.log.Info().
		Str("pair", pair).
		Str("direction", direction).
		Int64("amount_in", res.AmountIn).
		Int64("amount_out", res.AmountOut).
		Msg("swap executed")

	err = e.emit(tx, events.Event{
		Type:      events.TypeTrade,
		Pair:      pair,
		Taker:     taker,
		IsBuy:     isBuy,
		AmountIn:  res.AmountIn,
		AmountOut: res.AmountOut,
	})
	return res, err
}

// -------------------- Traversal --------------------

type walkResult struct {
	amountIn  int64
	amountOut int64
}

// walkBook consumes the book tick by tick. The controlling amount is the
// input for exact-in and the output for exact-out. The cached best tick
// is revalidated through the bitmap on every step, so a stale cursor
// after a cancel or fill only costs an index lookup. dry marks a quote
// walk whose transaction will be discarded; it suppresses metrics and
// logs, which outlive the transaction.
func (e *Exchange) walkBook(tx *kv.Tx, ob *book.Orderbook, isBuy, exactOut bool, amount int64, maxTicks int, dry bool) (walkResult, error) {
	var res walkResult
	if maxTicks <= 0 {
		maxTicks = DefaultSwapTicks
	}

	side := book.Bid
	if isBuy {
		side = book.Ask
	}
	ix := index(tx, ob.Base, ob.Quote, side)

	remaining := amount
	for ticks := 0; remaining > 0 && ticks < maxTicks; ticks++ {
		var tick int32
		var ok bool
		var err error
		if isBuy {
			if !ob.HasAsks() {
				break
			}
			tick, ok, err = ix.nextAtOrAbove(ob.BestAskTick)
		} else {
			if !ob.HasBids() {
				break
			}
			tick, ok, err = ix.nextAtOrBelow(ob.BestBidTick)
		}
		if err != nil {
			return res, err
		}
		if !ok {
			if isBuy {
				ob.BestAskTick = book.NoAskTick
			} else {
				ob.BestBidTick = book.NoBidTick
			}
			break
		}
		if isBuy {
			ob.BestAskTick = tick
		} else {
			ob.BestBidTick = tick
		}

		stuck, err := e.fillLevel(tx, ob, ix, side, tick, isBuy, exactOut, dry, &remaining, &res)
		if err != nil {
			return res, err
		}
		if stuck {
			break
		}
	}
	return res, nil
}

// fillLevel consumes orders at one tick head to tail. A fully consumed
// order is marked filled and unlinked; a partially consumed order stays
// at the head. Returns stuck when the taker's leftover input cannot buy a
// single base unit at this price; no worse tick can help then.
func (e *Exchange) fillLevel(tx *kv.Tx, ob *book.Orderbook, ix tickIndex, side book.Side, tick int32, isBuy, exactOut, dry bool, remaining *int64, res *walkResult) (bool, error) {
	level, err := getLevel(tx, ob.Base, ob.Quote, side, tick)
	if err != nil {
		return false, err
	}
	pair := pairName(ob.Base, ob.Quote)

	id := level.Head
	for *remaining > 0 && id != 0 {
		o, err := getOrder(tx, id)
		if err != nil {
			return false, err
		}

		var fill int64 // base units taken from this order
		if isBuy {
			if exactOut {
				fill = min64(*remaining, o.Remaining)
			} else {
				avail := book.BaseAmountFloor(*remaining, tick)
				if avail == 0 {
					break
				}
				fill = min64(avail, o.Remaining)
			}
		} else {
			if exactOut {
				need := book.BaseAmountCeil(*remaining, tick)
				fill = min64(need, o.Remaining)
			} else {
				fill = min64(*remaining, o.Remaining)
			}
		}

		if err := o.Fill(fill); err != nil {
			return false, err
		}
		level.TotalLiquidity -= fill

		if isBuy {
			// Taker pays quote rounded up; the ask maker receives it.
			cost := book.QuoteAmountCeil(fill, tick)
			if err := addBalance(tx, o.Maker, o.Quote, cost); err != nil {
				return false, err
			}
			res.amountIn += cost
			res.amountOut += fill
			if exactOut {
				*remaining -= fill
			} else {
				*remaining -= cost
			}
		} else {
			// Taker receives quote rounded down; the bid maker receives base.
			payout := book.QuoteAmountFloor(fill, tick)
			if err := addBalance(tx, o.Maker, o.Base, fill); err != nil {
				return false, err
			}
			res.amountIn += fill
			res.amountOut += payout
			if exactOut {
				if payout >= *remaining {
					*remaining = 0
				} else {
					*remaining -= payout
				}
			} else {
				*remaining -= fill
			}
		}

		if err := e.emit(tx, events.Event{
			Type:      events.TypeOrderFilled,
			Pair:      pair,
			OrderID:   o.ID,
			Maker:     o.Maker,
			Side:      o.Side.String(),
			Tick:      tick,
			Amount:    fill,
			Remaining: o.Remaining,
		}); err != nil {
			return false, err
		}

		next := o.Next
		if o.FullyFilled() {
			if err := o.MarkFilled(); err != nil {
				return false, err
			}
			if err := putOrder(tx, o); err != nil {
				return false, err
			}
			level.Head = next
			if next == 0 {
				level.Tail = 0
			} else {
				n, err := getOrder(tx, next)
				if err != nil {
					return false, err
				}
				n.Prev = 0
				if err := putOrder(tx, n); err != nil {
					return false, err
				}
			}
			if !dry {
				metrics.OrdersFilledTotal.WithLabelValues(pair, o.Side.String()).Inc()
			}
			if o.Flip {
				if err := e.flipOrder(tx, ob, o, dry); err != nil {
					return false, err
				}
			}
		} else {
			if err := putOrder(tx, o); err != nil {
				return false, err
			}
			break
		}
		id = next
	}

	if level.IsEmpty() {
		if err := deleteLevel(tx, ob.Base, ob.Quote, side, tick); err != nil {
			return false, err
		}
		if err := ix.clearPopulated(tick); err != nil {
			return false, err
		}
	} else if err := putLevel(tx, ob.Base, ob.Quote, side, tick, level); err != nil {
		return false, err
	}

	stuck := *remaining > 0 && !level.IsEmpty()
	return stuck, nil
}

// flipOrder spawns the opposite-side child of a just-filled flip order,
// funds its escrow from the maker's balance and activates it through the
// normal activation path. Proceeds of earlier partial fills may already
// have been withdrawn, so the child is capped to what the balance can
// escrow; below the minimum order size the flip is skipped rather than
// failing the taker's swap.
func (e *Exchange) flipOrder(tx *kv.Tx, ob *book.Orderbook, parent *book.Order, dry bool) error {
	flipSide := parent.Side.Opposite()
	token := parent.Base
	if flipSide == book.Bid {
		token = parent.Quote
	}
	avail, err := getBalance(tx, parent.Maker, token)
	if err != nil {
		return err
	}

	amount := parent.Amount
	if flipSide == book.Bid {
		if affordable := book.BaseAmountFloor(avail, parent.FlipTick); affordable < amount {
			amount = affordable
		}
	} else if avail < amount {
		amount = avail
	}
	if amount < book.MinOrderSize {
		if !dry {
			e.log.Warn().
				Uint64("parent", parent.ID).
				Int64("affordable", amount).
				Msg("flip skipped, escrow balance below minimum order size")
		}
		return nil
	}

	id, err := nextOrderID(tx)
	if err != nil {
		return err
	}
	child, err := parent.Flipped(id, amount)
	if err != nil {
		return err
	}

	_, deposit := escrow(child)
	if err := subBalance(tx, parent.Maker, token, deposit); err != nil {
		return err
	}
	if err := putOrder(tx, child); err != nil {
		return err
	}

	if !dry {
		e.log.Debug().
			Uint64("parent", parent.ID).
			Uint64("child", id).
			Int32("flip_tick", parent.FlipTick).
			Msg("flip order spawned")
	}

	if err := e.emit(tx, events.Event{
		Type:    events.TypeOrderPlaced,
		Pair:    pairName(ob.Base, ob.Quote),
		OrderID: id,
		Maker:   child.Maker,
		Side:    child.Side.String(),
		Tick:    child.Tick,
		Amount:  child.Amount,
	}); err != nil {
		return err
	}
	return e.activateOrder(tx, ob, child, dry)
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
