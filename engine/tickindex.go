package engine

import (
	"fmt"
	"math/bits"

	"tickex/domain/book"
	"tickex/infra/kv"
)

// tickIndex is the bitmap answering "nearest populated tick at or
// above/below X" without probing every level. One bit per grid position,
// packed into 64-bit words stored as individual records. Bits are flipped
// only by setPopulated/clearPopulated, inside the same transaction that
// mutates the level they describe.

const wordBits = 64

// numWords covers all NumTicks grid positions.
const numWords = (book.NumTicks + wordBits - 1) / wordBits

type tickIndex struct {
	tx    *kv.Tx
	base  string
	quote string
	side  book.Side
}

func index(tx *kv.Tx, base, quote string, side book.Side) tickIndex {
	return tickIndex{tx: tx, base: base, quote: quote, side: side}
}

func (ix tickIndex) word(w int32) (uint64, error) {
	val, err := ix.tx.Get(bitmapKey(ix.base, ix.quote, ix.side, w))
	if err != nil {
		if err == kv.ErrNotFound {
			return 0, nil
		}
		return 0, err
	}
	return book.DecodeU64(val)
}

func (ix tickIndex) putWord(w int32, v uint64) error {
	key := bitmapKey(ix.base, ix.quote, ix.side, w)
	if v == 0 {
		return ix.tx.Delete(key)
	}
	return ix.tx.Set(key, book.EncodeU64(v))
}

// setPopulated marks a tick's level as non-empty.
func (ix tickIndex) setPopulated(tick int32) error {
	pos := tickPos(tick)
	w, bit := pos/wordBits, uint(pos%wordBits)
	v, err := ix.word(w)
	if err != nil {
		return err
	}
	return ix.putWord(w, v|(1<<bit))
}

// clearPopulated marks a tick's level as empty.
func (ix tickIndex) clearPopulated(tick int32) error {
	pos := tickPos(tick)
	w, bit := pos/wordBits, uint(pos%wordBits)
	v, err := ix.word(w)
	if err != nil {
		return err
	}
	return ix.putWord(w, v&^(1<<bit))
}

func (ix tickIndex) isPopulated(tick int32) (bool, error) {
	pos := tickPos(tick)
	v, err := ix.word(pos / wordBits)
	if err != nil {
		return false, err
	}
	return v&(1<<uint(pos%wordBits)) != 0, nil
}

// nextAtOrAbove finds the lowest populated tick >= tick. The first word is
// masked to hide positions below the start; later words only need a
// non-zero test.
func (ix tickIndex) nextAtOrAbove(tick int32) (int32, bool, error) {
	pos := tickPos(tick)
	mask := ^uint64(0) << uint(pos%wordBits)
	for w := pos / wordBits; w < numWords; w++ {
		v, err := ix.word(w)
		if err != nil {
			return 0, false, err
		}
		if v &= mask; v != 0 {
			found := w*wordBits + int32(bits.TrailingZeros64(v))
			return posTick(found), true, nil
		}
		mask = ^uint64(0)
	}
	return 0, false, nil
}

// nextAtOrBelow finds the highest populated tick <= tick.
func (ix tickIndex) nextAtOrBelow(tick int32) (int32, bool, error) {
	pos := tickPos(tick)
	bit := uint(pos % wordBits)
	mask := ^uint64(0) >> (wordBits - 1 - bit)
	for w := pos / wordBits; w >= 0; w-- {
		v, err := ix.word(w)
		if err != nil {
			return 0, false, err
		}
		if v &= mask; v != 0 {
			found := w*wordBits + int32(wordBits-1-bits.LeadingZeros64(v))
			return posTick(found), true, nil
		}
		mask = ^uint64(0)
	}
	return 0, false, nil
}

// CheckConsistency verifies, for every tick of a pair, that the bitmap bit
// matches level occupancy and that each level's TotalLiquidity equals the
// sum of Remaining over its linked orders. Intended for tests and
// recovery; it runs without an access budget.
func (e *Exchange) CheckConsistency(base, quote string) error {
	tx := kv.Begin(e.store, 0)
	if _, err := getOrderbook(tx, base, quote); err != nil {
		return err
	}

	for _, side := range []book.Side{book.Bid, book.Ask} {
		ix := index(tx, base, quote, side)
		for pos := int32(0); pos < book.NumTicks; pos++ {
			tick := posTick(pos)
			level, err := getLevel(tx, base, quote, side, tick)
			if err != nil {
				return err
			}
			populated, err := ix.isPopulated(tick)
			if err != nil {
				return err
			}
			if populated == level.IsEmpty() {
				return fmt.Errorf("tick %d %s: bitmap=%v but level empty=%v",
					tick, side, populated, level.IsEmpty())
			}
			if level.IsEmpty() {
				continue
			}

			var sum int64
			var prev uint64
			id := level.Head
			for id != 0 {
				o, err := getOrder(tx, id)
				if err != nil {
					return fmt.Errorf("tick %d %s: broken queue at order %d: %w", tick, side, id, err)
				}
				if o.Prev != prev {
					return fmt.Errorf("tick %d %s: order %d prev=%d want %d", tick, side, id, o.Prev, prev)
				}
				sum += o.Remaining
				prev = id
				id = o.Next
			}
			if prev != level.Tail {
				return fmt.Errorf("tick %d %s: tail=%d want %d", tick, side, level.Tail, prev)
			}
			if sum != level.TotalLiquidity {
				return fmt.Errorf("tick %d %s: total_liquidity=%d but linked sum=%d",
					tick, side, level.TotalLiquidity, sum)
			}
		}
	}
	return nil
}
