// Package engine is the write entry point for the exchange: order
// placement, batch activation, swap matching, cancellation and the
// balance ledger. Every public operation runs inside a single budgeted
// store transaction and either commits whole or leaves no trace.
package engine

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"tickex/domain/book"
	"tickex/events"
	"tickex/infra/kv"
	"tickex/metrics"
)

// DefaultBudget bounds the distinct store keys one operation may touch.
const DefaultBudget = 1024

type Exchange struct {
	mu     sync.Mutex
	store  kv.Store
	outbox *events.Outbox
	log    zerolog.Logger
	budget int
}

func New(store kv.Store, outbox *events.Outbox, logger zerolog.Logger, budget int) *Exchange {
	if budget == 0 {
		budget = DefaultBudget
	}
	return &Exchange{
		store:  store,
		outbox: outbox,
		log:    logger,
		budget: budget,
	}
}

func (e *Exchange) begin() *kv.Tx {
	return kv.Begin(e.store, e.budget)
}

func (e *Exchange) emit(tx *kv.Tx, ev events.Event) error {
	ev.Time = time.Now().UnixNano()
	return e.outbox.Append(tx, ev)
}

func (e *Exchange) finish(op string, tx *kv.Tx, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.OpsTotal.WithLabelValues(op, outcome).Inc()
	metrics.StoreAccesses.WithLabelValues(op).Observe(float64(tx.Accesses()))
}

func pairName(base, quote string) string {
	return base + "/" + quote
}

// -------------------- Pairs --------------------

// CreatePair registers a trading pair. Admin authorization is the
// caller's concern.
func (e *Exchange) CreatePair(base, quote string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	tx := e.begin()
	err := e.createPair(tx, base, quote)
	if err == nil {
		err = tx.Commit()
	}
	e.finish("create_pair", tx, err)
	return err
}

func (e *Exchange) createPair(tx *kv.Tx, base, quote string) error {
	if base == quote {
		return book.ErrSameToken
	}
	if _, err := getOrderbook(tx, base, quote); err == nil {
		return book.ErrPairAlreadyExists
	} else if err != book.ErrPairNotFound {
		return err
	}
	if err := putOrderbook(tx, book.NewOrderbook(base, quote)); err != nil {
		return err
	}
	e.log.Info().Str("pair", pairName(base, quote)).Msg("pair created")
	return e.emit(tx, events.Event{Type: events.TypePairCreated, Pair: pairName(base, quote)})
}

// -------------------- Queries --------------------

// Read-only getters open their transaction outside the operation mutex.
// That is safe because writers publish only through Store.Apply, which
// commits a whole operation's batch atomically: a read sees either all
// of an operation's writes or none of them.

func (e *Exchange) GetOrderbook(base, quote string) (*book.Orderbook, error) {
	return getOrderbook(e.begin(), base, quote)
}

func (e *Exchange) GetOrder(id uint64) (*book.Order, error) {
	return getOrder(e.begin(), id)
}

// GetPendingOrder returns the order only while it awaits activation.
func (e *Exchange) GetPendingOrder(id uint64) (*book.Order, error) {
	o, err := getOrder(e.begin(), id)
	if err != nil {
		return nil, err
	}
	if o.State != book.Pending {
		return nil, book.ErrOrderNotFound
	}
	return o, nil
}

func (e *Exchange) GetTickLevel(base, quote string, side book.Side, tick int32) (*book.TickLevel, error) {
	if err := book.ValidateTick(tick); err != nil {
		return nil, err
	}
	return getLevel(e.begin(), base, quote, side, tick)
}

// LevelDepth is one populated tick in a depth snapshot.
type LevelDepth struct {
	Tick      int32
	Price     int64
	Liquidity int64
}

// Depth walks the tick index from the best tick outward, best first,
// visiting at most maxLevels populated ticks.
func (e *Exchange) Depth(base, quote string, side book.Side, maxLevels int) ([]LevelDepth, error) {
	tx := e.begin()
	ob, err := getOrderbook(tx, base, quote)
	if err != nil {
		return nil, err
	}
	ix := index(tx, base, quote, side)

	out := make([]LevelDepth, 0, maxLevels)
	tick := ob.BestBidTick
	if side == book.Ask {
		tick = ob.BestAskTick
	}
	for len(out) < maxLevels {
		if side == book.Bid && tick < book.MinTick {
			break
		}
		if side == book.Ask && tick > book.MaxTick {
			break
		}
		var ok bool
		if side == book.Bid {
			tick, ok, err = ix.nextAtOrBelow(tick)
		} else {
			tick, ok, err = ix.nextAtOrAbove(tick)
		}
		if err != nil || !ok {
			return out, err
		}
		level, err := getLevel(tx, base, quote, side, tick)
		if err != nil {
			return nil, err
		}
		out = append(out, LevelDepth{
			Tick:      tick,
			Price:     book.TickToPrice(tick),
			Liquidity: level.TotalLiquidity,
		})
		if side == book.Bid {
			tick -= book.TickSpacing
		} else {
			tick += book.TickSpacing
		}
	}
	return out, nil
}

// -------------------- Ledger --------------------

// Deposit credits a user's exchange balance. Token custody is outside
// this module; this is the ledger's credit entry point.
func (e *Exchange) Deposit(user, token string, amount int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	tx := e.begin()
	err := e.deposit(tx, user, token, amount)
	if err == nil {
		err = tx.Commit()
	}
	e.finish("deposit", tx, err)
	return err
}

func (e *Exchange) deposit(tx *kv.Tx, user, token string, amount int64) error {
	if amount <= 0 {
		return book.ErrInvalidAmount
	}
	if err := addBalance(tx, user, token, amount); err != nil {
		return err
	}
	return e.emit(tx, events.Event{Type: events.TypeDeposit, User: user, Token: token, Amount: amount})
}

func (e *Exchange) Withdraw(user, token string, amount int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	tx := e.begin()
	err := e.withdraw(tx, user, token, amount)
	if err == nil {
		err = tx.Commit()
	}
	e.finish("withdraw", tx, err)
	return err
}

func (e *Exchange) withdraw(tx *kv.Tx, user, token string, amount int64) error {
	if amount <= 0 {
		return book.ErrInvalidAmount
	}
	if err := subBalance(tx, user, token, amount); err != nil {
		return err
	}
	return e.emit(tx, events.Event{Type: events.TypeWithdraw, User: user, Token: token, Amount: amount})
}

func (e *Exchange) BalanceOf(user, token string) (int64, error) {
	return getBalance(e.begin(), user, token)
}
