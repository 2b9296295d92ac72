package engine

import (
	"tickex/domain/book"
	"tickex/events"
	"tickex/infra/kv"
	"tickex/metrics"
)

// CancelResult reports the refunded amount and its token.
type CancelResult struct {
	Refund   int64
	Token    string
	Accesses int
}

// Cancel detaches an order wherever it lives. A pending order gets its
// full escrow back; an active order is spliced out of its level queue and
// refunds the unfilled remainder. Terminal orders fail with
// ErrAlreadyTerminal.
func (e *Exchange) Cancel(maker string, orderID uint64) (CancelResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	tx := e.begin()
	res, err := e.cancel(tx, maker, orderID)
	if err == nil {
		err = tx.Commit()
	}
	res.Accesses = tx.Accesses()
	e.finish("cancel", tx, err)
	return res, err
}

func (e *Exchange) cancel(tx *kv.Tx, maker string, orderID uint64) (CancelResult, error) {
	var res CancelResult

	o, err := getOrder(tx, orderID)
	if err != nil {
		return res, err
	}
	if o.Maker != maker {
		return res, book.ErrNotOwner
	}
	if o.State.Terminal() {
		return res, book.ErrAlreadyTerminal
	}

	if o.State == book.Active {
		if err := e.unlink(tx, o); err != nil {
			return res, err
		}
	}

	// Refund in the escrow token. A pending bid gets back exactly the
	// rounded-up escrow; a partially filled bid refunds rounded down so
	// payouts plus refund never exceed the escrow.
	if o.Side == book.Bid {
		res.Token = o.Quote
		if o.State == book.Pending {
			res.Refund = book.QuoteAmountCeil(o.Remaining, o.Tick)
		} else {
			res.Refund = book.QuoteAmountFloor(o.Remaining, o.Tick)
		}
	} else {
		res.Token = o.Base
		res.Refund = o.Remaining
	}

	if err := o.MarkCancelled(); err != nil {
		return res, err
	}
	if err := putOrder(tx, o); err != nil {
		return res, err
	}
	if err := addBalance(tx, maker, res.Token, res.Refund); err != nil {
		return res, err
	}

	metrics.OrdersCancelledTotal.WithLabelValues(pairName(o.Base, o.Quote), o.Side.String()).Inc()
	e.log.Debug().
		Uint64("order_id", orderID).
		Int64("refund", res.Refund).
		Str("token", res.Token).
		Msg("order cancelled")

	return res, e.emit(tx, events.Event{
		Type:      events.TypeOrderCancelled,
		Pair:      pairName(o.Base, o.Quote),
		OrderID:   orderID,
		Maker:     maker,
		Side:      o.Side.String(),
		Tick:      o.Tick,
		Amount:    res.Refund,
		Remaining: o.Remaining,
		Token:     res.Token,
	})
}

// unlink splices an active order out of its tick level queue in O(1)
// using its prev/next ids. The best-tick cache is left alone; traversal
// revalidates it against the bitmap.
func (e *Exchange) unlink(tx *kv.Tx, o *book.Order) error {
	level, err := getLevel(tx, o.Base, o.Quote, o.Side, o.Tick)
	if err != nil {
		return err
	}

	if o.Prev != 0 {
		prev, err := getOrder(tx, o.Prev)
		if err != nil {
			return err
		}
		prev.Next = o.Next
		if err := putOrder(tx, prev); err != nil {
			return err
		}
	} else {
		level.Head = o.Next
	}

	if o.Next != 0 {
		next, err := getOrder(tx, o.Next)
		if err != nil {
			return err
		}
		next.Prev = o.Prev
		if err := putOrder(tx, next); err != nil {
			return err
		}
	} else {
		level.Tail = o.Prev
	}

	level.TotalLiquidity -= o.Remaining

	if level.IsEmpty() {
		if err := deleteLevel(tx, o.Base, o.Quote, o.Side, o.Tick); err != nil {
			return err
		}
		return index(tx, o.Base, o.Quote, o.Side).clearPopulated(o.Tick)
	}
	return putLevel(tx, o.Base, o.Quote, o.Side, o.Tick, level)
}
