package book

import (
	"bytes"
	"encoding/binary"
	"errors"

	"tickex/infra/memory"
)

// ErrCorruptRecord is returned when a stored record fails to decode.
var ErrCorruptRecord = errors.New("corrupt record")

var encBufs = memory.NewPool(func() *bytes.Buffer { return new(bytes.Buffer) })

// -------------------- Order --------------------

// binary layout:
// [id:8][side:1][state:1][flip:1][tick:4][flipTick:4]
// [amount:8][remaining:8][prev:8][next:8]
// [maker][base][quote] as u16 length-prefixed strings
const orderFixedLen = 8 + 1 + 1 + 1 + 4 + 4 + 8 + 8 + 8 + 8

func EncodeOrder(o *Order) []byte {
	buf := encBufs.Get()
	buf.Reset()
	defer encBufs.Put(buf)

	putU64(buf, o.ID)
	buf.WriteByte(byte(o.Side))
	buf.WriteByte(byte(o.State))
	if o.Flip {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}
	putI32(buf, o.Tick)
	putI32(buf, o.FlipTick)
	putI64(buf, o.Amount)
	putI64(buf, o.Remaining)
	putU64(buf, o.Prev)
	putU64(buf, o.Next)
	putString(buf, o.Maker)
	putString(buf, o.Base)
	putString(buf, o.Quote)

	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out
}

func DecodeOrder(b []byte) (*Order, error) {
	if len(b) < orderFixedLen {
		return nil, ErrCorruptRecord
	}
	o := &Order{
		ID:        binary.BigEndian.Uint64(b[0:8]),
		Side:      Side(b[8]),
		State:     State(b[9]),
		Flip:      b[10] == 1,
		Tick:      int32(binary.BigEndian.Uint32(b[11:15])),
		FlipTick:  int32(binary.BigEndian.Uint32(b[15:19])),
		Amount:    int64(binary.BigEndian.Uint64(b[19:27])),
		Remaining: int64(binary.BigEndian.Uint64(b[27:35])),
		Prev:      binary.BigEndian.Uint64(b[35:43]),
		Next:      binary.BigEndian.Uint64(b[43:51]),
	}
	rest := b[orderFixedLen:]
	var err error
	if o.Maker, rest, err = getString(rest); err != nil {
		return nil, err
	}
	if o.Base, rest, err = getString(rest); err != nil {
		return nil, err
	}
	if o.Quote, _, err = getString(rest); err != nil {
		return nil, err
	}
	return o, nil
}

// -------------------- TickLevel --------------------

// binary layout: [head:8][tail:8][totalLiquidity:8]
func EncodeLevel(l *TickLevel) []byte {
	out := make([]byte, 24)
	binary.BigEndian.PutUint64(out[0:8], l.Head)
	binary.BigEndian.PutUint64(out[8:16], l.Tail)
	binary.BigEndian.PutUint64(out[16:24], uint64(l.TotalLiquidity))
	return out
}

func DecodeLevel(b []byte) (*TickLevel, error) {
	if len(b) != 24 {
		return nil, ErrCorruptRecord
	}
	return &TickLevel{
		Head:           binary.BigEndian.Uint64(b[0:8]),
		Tail:           binary.BigEndian.Uint64(b[8:16]),
		TotalLiquidity: int64(binary.BigEndian.Uint64(b[16:24])),
	}, nil
}

// -------------------- Orderbook --------------------

// binary layout: [bestBid:4][bestAsk:4][base][quote]
func EncodeOrderbook(ob *Orderbook) []byte {
	buf := encBufs.Get()
	buf.Reset()
	defer encBufs.Put(buf)

	putI32(buf, ob.BestBidTick)
	putI32(buf, ob.BestAskTick)
	putString(buf, ob.Base)
	putString(buf, ob.Quote)

	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out
}

func DecodeOrderbook(b []byte) (*Orderbook, error) {
	if len(b) < 8 {
		return nil, ErrCorruptRecord
	}
	ob := &Orderbook{
		BestBidTick: int32(binary.BigEndian.Uint32(b[0:4])),
		BestAskTick: int32(binary.BigEndian.Uint32(b[4:8])),
	}
	rest := b[8:]
	var err error
	if ob.Base, rest, err = getString(rest); err != nil {
		return nil, err
	}
	if ob.Quote, _, err = getString(rest); err != nil {
		return nil, err
	}
	return ob, nil
}

// -------------------- Scalars --------------------

func EncodeU64(v uint64) []byte {
	out := make([]byte, 8)
	binary.BigEndian.PutUint64(out, v)
	return out
}

func DecodeU64(b []byte) (uint64, error) {
	if len(b) != 8 {
		return 0, ErrCorruptRecord
	}
	return binary.BigEndian.Uint64(b), nil
}

func EncodeI64(v int64) []byte {
	return EncodeU64(uint64(v))
}

func DecodeI64(b []byte) (int64, error) {
	v, err := DecodeU64(b)
	return int64(v), err
}

// -------------------- Helpers --------------------

func putU64(buf *bytes.Buffer, v uint64) {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	buf.Write(tmp[:])
}

func putI64(buf *bytes.Buffer, v int64) {
	putU64(buf, uint64(v))
}

func putI32(buf *bytes.Buffer, v int32) {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], uint32(v))
	buf.Write(tmp[:])
}

func putString(buf *bytes.Buffer, s string) {
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], uint16(len(s)))
	buf.Write(tmp[:])
	buf.WriteString(s)
}

func getString(b []byte) (string, []byte, error) {
	if len(b) < 2 {
		return "", nil, ErrCorruptRecord
	}
	n := int(binary.BigEndian.Uint16(b[0:2]))
	if len(b) < 2+n {
		return "", nil, ErrCorruptRecord
	}
	return string(b[2 : 2+n]), b[2+n:], nil
}
