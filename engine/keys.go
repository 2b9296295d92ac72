package engine

import (
	"fmt"

	"tickex/domain/book"
)

// Store key layout. Ticks are shifted to non-negative grid positions so
// lexicographic key order matches tick order.
//
//	book/<base>/<quote>                  orderbook record
//	order/<id>                           order record (any state)
//	level/<base>/<quote>/<side>/<pos>    tick level
//	tickmap/<base>/<quote>/<side>/<word> bitmap word
//	bal/<user>/<token>                   ledger balance
//	seq/order                            order id counter

const orderSeqKey = "seq/order"

func bookKey(base, quote string) string {
	return "book/" + base + "/" + quote
}

func orderKey(id uint64) string {
	return fmt.Sprintf("order/%020d", id)
}

func levelKey(base, quote string, side book.Side, tick int32) string {
	return fmt.Sprintf("level/%s/%s/%s/%04d", base, quote, side, tickPos(tick))
}

func bitmapKey(base, quote string, side book.Side, word int32) string {
	return fmt.Sprintf("tickmap/%s/%s/%s/%02d", base, quote, side, word)
}

func balanceKey(user, token string) string {
	return "bal/" + user + "/" + token
}

// tickPos maps a valid tick to its grid position in [0, NumTicks).
func tickPos(tick int32) int32 {
	return (tick - book.MinTick) / book.TickSpacing
}

func posTick(pos int32) int32 {
	return book.MinTick + pos*book.TickSpacing
}
