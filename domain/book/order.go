package book

// Side of the book an order rests on.
type Side uint8

const (
	Bid Side = iota
	Ask
)

func (s Side) String() string {
	if s == Bid {
		return "bid"
	}
	return "ask"
}

func (s Side) Opposite() Side {
	if s == Bid {
		return Ask
	}
	return Bid
}

// State is the order lifecycle tag. Transitions happen only through the
// methods below.
type State uint8

const (
	Pending State = iota
	Active
	Filled
	Cancelled
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Active:
		return "active"
	case Filled:
		return "filled"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

func (s State) Terminal() bool {
	return s == Filled || s == Cancelled
}

// Order is a single maker order. Prev/Next are order ids forming the FIFO
// queue of one (pair, side, tick) level; 0 is the empty sentinel. Amounts
// are base units on both sides.
type Order struct {
	ID    uint64
	Maker string
	Base  string
	Quote string

	Side  Side
	State State
	Tick  int32

	Amount    int64
	Remaining int64

	Prev uint64
	Next uint64

	Flip     bool
	FlipTick int32
}

// NewOrder creates a pending order.
func NewOrder(id uint64, maker, base, quote string, side Side, tick int32, amount int64) *Order {
	return &Order{
		ID:        id,
		Maker:     maker,
		Base:      base,
		Quote:     quote,
		Side:      side,
		State:     Pending,
		Tick:      tick,
		Amount:    amount,
		Remaining: amount,
	}
}

// NewFlipOrder creates a pending flip order. A bid must flip to a strictly
// higher tick (sell above the buy), an ask to a strictly lower one.
func NewFlipOrder(id uint64, maker, base, quote string, side Side, tick int32, amount int64, flipTick int32) (*Order, error) {
	if side == Bid && flipTick <= tick {
		return nil, ErrInvalidFlipTick
	}
	if side == Ask && flipTick >= tick {
		return nil, ErrInvalidFlipTick
	}
	o := NewOrder(id, maker, base, quote, side, tick, amount)
	o.Flip = true
	o.FlipTick = flipTick
	return o, nil
}

// Fill reduces the remaining amount.
func (o *Order) Fill(amount int64) error {
	if amount > o.Remaining {
		return ErrFillExceedsRemaining
	}
	o.Remaining -= amount
	return nil
}

func (o *Order) FullyFilled() bool {
	return o.Remaining == 0
}

// Activate links the order into the matchable book.
func (o *Order) Activate() error {
	if o.State != Pending {
		return ErrBadTransition
	}
	o.State = Active
	return nil
}

// MarkFilled records the terminal filled state. The order must have no
// remaining amount.
func (o *Order) MarkFilled() error {
	if o.State != Active || o.Remaining != 0 {
		return ErrBadTransition
	}
	o.State = Filled
	o.Prev, o.Next = 0, 0
	return nil
}

// MarkCancelled records the terminal cancelled state.
func (o *Order) MarkCancelled() error {
	if o.State.Terminal() {
		return ErrAlreadyTerminal
	}
	o.State = Cancelled
	o.Prev, o.Next = 0, 0
	return nil
}

// Flipped builds the child order a filled flip order spawns: opposite
// side, at the flip tick, sized by the caller (at most the parent's
// amount, less when the escrow balance cannot cover it). Children never
// flip again.
func (o *Order) Flipped(id uint64, amount int64) (*Order, error) {
	if !o.Flip {
		return nil, ErrBadTransition
	}
	if o.Remaining != 0 {
		return nil, ErrBadTransition
	}
	if amount <= 0 || amount > o.Amount {
		return nil, ErrInvalidAmount
	}
	return NewOrder(id, o.Maker, o.Base, o.Quote, o.Side.Opposite(), o.FlipTick, amount), nil
}
