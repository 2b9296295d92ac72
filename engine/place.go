package engine

import (
	"tickex/domain/book"
	"tickex/events"
	"tickex/infra/kv"
	"tickex/metrics"
)

// Placement is the admission half of the two-phase pipeline: validate,
// escrow the deposit, store the order as Pending. Activation
// (ExecuteBlock) links it into the book later.

// Place escrows the maker's deposit and records a pending order.
// Returns the order id.
func (e *Exchange) Place(maker, base, quote string, side book.Side, tick int32, amount int64) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	tx := e.begin()
	id, err := e.place(tx, maker, base, quote, side, tick, amount, false, 0)
	if err == nil {
		err = tx.Commit()
	}
	e.finish("place", tx, err)
	return id, err
}

// PlaceFlip is Place with a flip target on the opposite side.
func (e *Exchange) PlaceFlip(maker, base, quote string, side book.Side, tick int32, amount int64, flipTick int32) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	tx := e.begin()
	id, err := e.place(tx, maker, base, quote, side, tick, amount, true, flipTick)
	if err == nil {
		err = tx.Commit()
	}
	e.finish("place_flip", tx, err)
	return id, err
}

func (e *Exchange) place(tx *kv.Tx, maker, base, quote string, side book.Side, tick int32, amount int64, flip bool, flipTick int32) (uint64, error) {
	if err := book.ValidateTick(tick); err != nil {
		return 0, err
	}
	if flip {
		if err := book.ValidateTick(flipTick); err != nil {
			return 0, err
		}
	}
	if amount < book.MinOrderSize {
		return 0, book.ErrBelowMinimumSize
	}
	if _, err := getOrderbook(tx, base, quote); err != nil {
		return 0, err
	}

	id, err := nextOrderID(tx)
	if err != nil {
		return 0, err
	}

	var o *book.Order
	if flip {
		if o, err = book.NewFlipOrder(id, maker, base, quote, side, tick, amount, flipTick); err != nil {
			return 0, err
		}
	} else {
		o = book.NewOrder(id, maker, base, quote, side, tick, amount)
	}

	// Escrow: bids deposit quote at the tick price, asks deposit base.
	token, deposit := escrow(o)
	if err := subBalance(tx, maker, token, deposit); err != nil {
		return 0, err
	}

	if err := putOrder(tx, o); err != nil {
		return 0, err
	}

	metrics.OrdersPlacedTotal.WithLabelValues(pairName(base, quote), side.String()).Inc()
	e.log.Debug().
		Uint64("order_id", id).
		Str("pair", pairName(base, quote)).
		Str("side", side.String()).
		Int32("tick", tick).
		Int64("amount", amount).
		Bool("flip", flip).
		Msg("order placed")

	if err := e.emit(tx, events.Event{
		Type:     events.TypeOrderPlaced,
		Pair:     pairName(base, quote),
		OrderID:  id,
		Maker:    maker,
		Side:     side.String(),
		Tick:     tick,
		Amount:   amount,
		Flip:     flip,
		FlipTick: flipTick,
	}); err != nil {
		return 0, err
	}
	return id, nil
}

// escrow returns the deposit token and amount for an order. Bid deposits
// round up so the escrow always covers the resting price.
func escrow(o *book.Order) (token string, amount int64) {
	if o.Side == book.Bid {
		return o.Quote, book.QuoteAmountCeil(o.Amount, o.Tick)
	}
	return o.Base, o.Amount
}
