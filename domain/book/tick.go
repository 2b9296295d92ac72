package book

import "math/bits"

// Tick grid constants. Prices are scaled by PriceScale; tick 0 is exact
// parity (price 1.00000). Each tick moves the price by 0.0001.
const (
	MinTick     int32 = -2000
	MaxTick     int32 = 2000
	TickSpacing int32 = 10

	PriceScale   int64 = 100_000
	pricePerTick int64 = 10

	// MinOrderSize is $10 with 6-decimal amounts.
	MinOrderSize int64 = 10_000_000
)

// NumTicks is the number of valid positions on the tick grid.
const NumTicks = int32((MaxTick-MinTick)/TickSpacing) + 1

// ValidateTick rejects ticks outside [MinTick, MaxTick] or off the
// TickSpacing grid.
func ValidateTick(tick int32) error {
	if tick < MinTick || tick > MaxTick {
		return ErrInvalidTick
	}
	if tick%TickSpacing != 0 {
		return ErrInvalidTick
	}
	return nil
}

// TickToPrice converts a tick to its scaled price. Exact, no rounding.
func TickToPrice(tick int32) int64 {
	return PriceScale + int64(tick)*pricePerTick
}

// TickFromPriceFloor returns the greatest valid tick whose price does not
// exceed price. Used where the caller wants a bid-side bound: rounding down
// is the direction less favorable to them.
func TickFromPriceFloor(price int64) (int32, error) {
	step := pricePerTick * int64(TickSpacing)
	tick := int32(floorDiv(price-PriceScale, step)) * TickSpacing
	if err := ValidateTick(tick); err != nil {
		return 0, err
	}
	return tick, nil
}

// TickFromPriceCeil returns the least valid tick whose price is at least
// price. Used where the caller wants an ask-side bound.
func TickFromPriceCeil(price int64) (int32, error) {
	step := pricePerTick * int64(TickSpacing)
	tick := int32(ceilDiv(price-PriceScale, step)) * TickSpacing
	if err := ValidateTick(tick); err != nil {
		return 0, err
	}
	return tick, nil
}

// QuoteAmountCeil converts base units to quote units at a tick, rounding up.
// Used when charging a payer (taker cost, bid escrow).
func QuoteAmountCeil(base int64, tick int32) int64 {
	return mulDivCeil(base, TickToPrice(tick), PriceScale)
}

// QuoteAmountFloor converts base units to quote units at a tick, rounding
// down. Used when paying out (taker proceeds, bid cancel refunds).
func QuoteAmountFloor(base int64, tick int32) int64 {
	return mulDivFloor(base, TickToPrice(tick), PriceScale)
}

// BaseAmountFloor converts quote units to base units at a tick, rounding
// down. Used to bound what a taker's quote can buy.
func BaseAmountFloor(quote int64, tick int32) int64 {
	return mulDivFloor(quote, PriceScale, TickToPrice(tick))
}

// BaseAmountCeil converts quote units to base units at a tick, rounding up.
// Used to size the base fill that guarantees a quote target.
func BaseAmountCeil(quote int64, tick int32) int64 {
	return mulDivCeil(quote, PriceScale, TickToPrice(tick))
}

// mulDivFloor computes a*b/d with a 128-bit intermediate product.
// Arguments must be non-negative and d positive.
func mulDivFloor(a, b, d int64) int64 {
	hi, lo := bits.Mul64(uint64(a), uint64(b))
	quo, _ := bits.Div64(hi, lo, uint64(d))
	return int64(quo)
}

func mulDivCeil(a, b, d int64) int64 {
	hi, lo := bits.Mul64(uint64(a), uint64(b))
	quo, rem := bits.Div64(hi, lo, uint64(d))
	if rem != 0 {
		quo++
	}
	return int64(quo)
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}

func ceilDiv(a, b int64) int64 {
	q := a / b
	if a%b != 0 && (a < 0) == (b < 0) {
		q++
	}
	return q
}
