package engine

import (
	"tickex/domain/book"
	"tickex/events"
	"tickex/infra/kv"
	"tickex/metrics"
)

// ExecuteResult reports what a batch activation actually did.
type ExecuteResult struct {
	Activated int
	Accesses  int
}

// ExecuteBlock activates pending orders in the caller-specified sequence.
// Ids that are unknown, already active or terminal are skipped, so
// overlapping retry batches are harmless. The whole batch commits or
// rolls back as one unit; a budget abort means the caller should retry
// with a smaller batch.
//
// Activation is permissionless. Deployments that need a privileged
// sequencer must gate this at the authorization layer.
func (e *Exchange) ExecuteBlock(base, quote string, orderIDs []uint64) (ExecuteResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	tx := e.begin()
	res, err := e.executeBlock(tx, base, quote, orderIDs)
	if err == nil {
		err = tx.Commit()
	}
	res.Accesses = tx.Accesses()
	e.finish("execute_block", tx, err)
	return res, err
}

func (e *Exchange) executeBlock(tx *kv.Tx, base, quote string, orderIDs []uint64) (ExecuteResult, error) {
	var res ExecuteResult

	ob, err := getOrderbook(tx, base, quote)
	if err != nil {
		return res, err
	}

	for _, id := range orderIDs {
		o, err := getOrder(tx, id)
		if err != nil {
			if err == book.ErrOrderNotFound {
				continue
			}
			return res, err
		}
		if o.State != book.Pending || o.Base != base || o.Quote != quote {
			continue
		}
		if err := e.activateOrder(tx, ob, o, false); err != nil {
			return res, err
		}
		res.Activated++
	}

	if err := putOrderbook(tx, ob); err != nil {
		return res, err
	}
	metrics.BestBidTick.WithLabelValues(pairName(base, quote)).Set(float64(ob.BestBidTick))
	metrics.BestAskTick.WithLabelValues(pairName(base, quote)).Set(float64(ob.BestAskTick))
	return res, nil
}

// activateOrder appends the order to its tick level queue, flips the
// bitmap bit on an empty→non-empty transition and advances the cached
// best tick if the new tick improves on it. dry suppresses metrics and
// logs when the caller's transaction will be discarded.
func (e *Exchange) activateOrder(tx *kv.Tx, ob *book.Orderbook, o *book.Order, dry bool) error {
	level, err := getLevel(tx, ob.Base, ob.Quote, o.Side, o.Tick)
	if err != nil {
		return err
	}

	wasEmpty := level.IsEmpty()
	if wasEmpty {
		level.Head, level.Tail = o.ID, o.ID
	} else {
		tail, err := getOrder(tx, level.Tail)
		if err != nil {
			return err
		}
		tail.Next = o.ID
		if err := putOrder(tx, tail); err != nil {
			return err
		}
		o.Prev = level.Tail
		level.Tail = o.ID
	}
	level.TotalLiquidity += o.Remaining

	if err := o.Activate(); err != nil {
		return err
	}
	if err := putOrder(tx, o); err != nil {
		return err
	}
	if err := putLevel(tx, ob.Base, ob.Quote, o.Side, o.Tick, level); err != nil {
		return err
	}
	if wasEmpty {
		if err := index(tx, ob.Base, ob.Quote, o.Side).setPopulated(o.Tick); err != nil {
			return err
		}
	}

	if o.Side == book.Bid {
		if o.Tick > ob.BestBidTick {
			ob.BestBidTick = o.Tick
		}
	} else {
		if o.Tick < ob.BestAskTick {
			ob.BestAskTick = o.Tick
		}
	}

	if !dry {
		metrics.OrdersActivatedTotal.WithLabelValues(pairName(ob.Base, ob.Quote), o.Side.String()).Inc()
		e.log.Debug().
			Uint64("order_id", o.ID).
			Str("side", o.Side.String()).
			Int32("tick", o.Tick).
			Msg("order activated")
	}

	return e.emit(tx, events.Event{
		Type:      events.TypeOrderActivated,
		Pair:      pairName(ob.Base, ob.Quote),
		OrderID:   o.ID,
		Maker:     o.Maker,
		Side:      o.Side.String(),
		Tick:      o.Tick,
		Amount:    o.Amount,
		Remaining: o.Remaining,
	})
}
