package engine

import (
	"errors"

	"tickex/domain/book"
	"tickex/infra/kv"
)

// Record accessors. Every read and write goes through the operation's
// transaction so mutations stay atomic and budget-counted.

func getOrderbook(tx *kv.Tx, base, quote string) (*book.Orderbook, error) {
	val, err := tx.Get(bookKey(base, quote))
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return nil, book.ErrPairNotFound
		}
		return nil, err
	}
	return book.DecodeOrderbook(val)
}

func putOrderbook(tx *kv.Tx, ob *book.Orderbook) error {
	return tx.Set(bookKey(ob.Base, ob.Quote), book.EncodeOrderbook(ob))
}

func getOrder(tx *kv.Tx, id uint64) (*book.Order, error) {
	val, err := tx.Get(orderKey(id))
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return nil, book.ErrOrderNotFound
		}
		return nil, err
	}
	return book.DecodeOrder(val)
}

func putOrder(tx *kv.Tx, o *book.Order) error {
	return tx.Set(orderKey(o.ID), book.EncodeOrder(o))
}

// getLevel returns the stored level or an empty one; absent levels and
// empty levels are the same thing.
func getLevel(tx *kv.Tx, base, quote string, side book.Side, tick int32) (*book.TickLevel, error) {
	val, err := tx.Get(levelKey(base, quote, side, tick))
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return &book.TickLevel{}, nil
		}
		return nil, err
	}
	return book.DecodeLevel(val)
}

func putLevel(tx *kv.Tx, base, quote string, side book.Side, tick int32, level *book.TickLevel) error {
	return tx.Set(levelKey(base, quote, side, tick), book.EncodeLevel(level))
}

func deleteLevel(tx *kv.Tx, base, quote string, side book.Side, tick int32) error {
	return tx.Delete(levelKey(base, quote, side, tick))
}

// nextOrderID advances the single monotonic id counter. Ids are never
// reused and survive activation unchanged.
func nextOrderID(tx *kv.Tx) (uint64, error) {
	var last uint64
	val, err := tx.Get(orderSeqKey)
	if err == nil {
		if last, err = book.DecodeU64(val); err != nil {
			return 0, err
		}
	} else if !errors.Is(err, kv.ErrNotFound) {
		return 0, err
	}
	id := last + 1
	if err := tx.Set(orderSeqKey, book.EncodeU64(id)); err != nil {
		return 0, err
	}
	return id, nil
}

// -------------------- Ledger --------------------

func getBalance(tx *kv.Tx, user, token string) (int64, error) {
	val, err := tx.Get(balanceKey(user, token))
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return book.DecodeI64(val)
}

func addBalance(tx *kv.Tx, user, token string, amount int64) error {
	cur, err := getBalance(tx, user, token)
	if err != nil {
		return err
	}
	return tx.Set(balanceKey(user, token), book.EncodeI64(cur+amount))
}

func subBalance(tx *kv.Tx, user, token string, amount int64) error {
	cur, err := getBalance(tx, user, token)
	if err != nil {
		return err
	}
	if cur < amount {
		return book.ErrInsufficientBalance
	}
	return tx.Set(balanceKey(user, token), book.EncodeI64(cur-amount))
}
