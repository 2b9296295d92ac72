// Package events defines the engine's observable state changes and the
// store-backed outbox they are staged in before broadcast.
package events

// Type tags an event payload.
type Type string

const (
	TypePairCreated    Type = "pair_created"
	TypeOrderPlaced    Type = "order_placed"
	TypeOrderActivated Type = "order_activated"
	TypeOrderFilled    Type = "order_filled"
	TypeOrderCancelled Type = "order_cancelled"
	TypeTrade          Type = "trade"
	TypeDeposit        Type = "deposit"
	TypeWithdraw       Type = "withdraw"
)

// Event is the wire payload published to sinks. Fields are sparse; only
// those relevant to the type are set.
type Event struct {
	Seq  uint64 `json:"seq"`
	Type Type   `json:"type"`
	Time int64  `json:"time"`

	Pair string `json:"pair,omitempty"`

	OrderID uint64 `json:"order_id,omitempty"`
	Maker   string `json:"maker,omitempty"`
	Taker   string `json:"taker,omitempty"`
	User    string `json:"user,omitempty"`
	Side    string `json:"side,omitempty"`
	Tick    int32  `json:"tick,omitempty"`

	Amount    int64 `json:"amount,omitempty"`
	Remaining int64 `json:"remaining,omitempty"`
	AmountIn  int64 `json:"amount_in,omitempty"`
	AmountOut int64 `json:"amount_out,omitempty"`

	Flip     bool   `json:"flip,omitempty"`
	FlipTick int32  `json:"flip_tick,omitempty"`
	Token    string `json:"token,omitempty"`
	IsBuy    bool   `json:"is_buy,omitempty"`
}
