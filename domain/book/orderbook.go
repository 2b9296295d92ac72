package book

// Best-tick sentinels for an empty side.
const (
	NoBidTick = MinTick - TickSpacing
	NoAskTick = MaxTick + TickSpacing
)

// Orderbook is the per-pair aggregate. Best ticks are advisory caches;
// traversal revalidates them against the tick index.
type Orderbook struct {
	Base  string
	Quote string

	BestBidTick int32
	BestAskTick int32
}

func NewOrderbook(base, quote string) *Orderbook {
	return &Orderbook{
		Base:        base,
		Quote:       quote,
		BestBidTick: NoBidTick,
		BestAskTick: NoAskTick,
	}
}

func (b *Orderbook) HasBids() bool {
	return b.BestBidTick >= MinTick
}

func (b *Orderbook) HasAsks() bool {
	return b.BestAskTick <= MaxTick
}
