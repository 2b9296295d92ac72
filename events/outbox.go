package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"tickex/domain/book"
	"tickex/infra/kv"
	"tickex/infra/sequence"
)

// Outbox stages events in the store inside the same transaction as the
// state change that produced them. The broadcaster tails pending records
// and deletes them once every sink has accepted the event.

const (
	outboxPrefix = "outbox/"

	// outboxSeqKey persists the last issued sequence number. Acked records
	// are deleted, so the pending scan alone cannot recover the tail after
	// a fully drained restart.
	outboxSeqKey = "seq/outbox"
)

// record state byte; delivered records are deleted rather than marked
const statePending byte = 0

type Outbox struct {
	seq *sequence.Sequencer
}

// NewOutbox seeds the sequencer from the persisted tail and any staged
// records so numbering stays monotonic across restarts, drained or not.
func NewOutbox(store kv.Store) (*Outbox, error) {
	var last uint64
	if val, err := store.Get(outboxSeqKey); err == nil {
		if last, err = book.DecodeU64(val); err != nil {
			return nil, err
		}
	} else if !errors.Is(err, kv.ErrNotFound) {
		return nil, err
	}
	err := store.Scan(outboxPrefix, outboxPrefix+"~", func(key string, _ []byte) error {
		seq, err := parseKey(key)
		if err != nil {
			return err
		}
		if seq > last {
			last = seq
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &Outbox{seq: sequence.New(last)}, nil
}

// Append stages an event in the transaction. It is discarded along with
// the transaction if the operation fails.
func (o *Outbox) Append(tx *kv.Tx, ev Event) error {
	ev.Seq = o.seq.Next()
	if ev.Time == 0 {
		ev.Time = time.Now().UnixNano()
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	val := make([]byte, 1+len(payload))
	val[0] = statePending
	copy(val[1:], payload)
	if err := tx.Set(outboxSeqKey, book.EncodeU64(ev.Seq)); err != nil {
		return err
	}
	return tx.Set(keyFor(ev.Seq), val)
}

// ScanPending visits staged events in sequence order.
func (o *Outbox) ScanPending(store kv.Store, fn func(ev Event) error) error {
	return store.Scan(outboxPrefix, outboxPrefix+"~", func(key string, val []byte) error {
		if len(val) < 1 || val[0] != statePending {
			return nil
		}
		var ev Event
		if err := json.Unmarshal(val[1:], &ev); err != nil {
			return err
		}
		return fn(ev)
	})
}

// Ack removes a delivered event.
func (o *Outbox) Ack(store kv.Store, seq uint64) error {
	return store.Apply(nil, map[string]struct{}{keyFor(seq): {}})
}

func keyFor(seq uint64) string {
	return fmt.Sprintf("%s%020d", outboxPrefix, seq)
}

func parseKey(key string) (uint64, error) {
	var seq uint64
	_, err := fmt.Sscanf(strings.TrimPrefix(key, outboxPrefix), "%d", &seq)
	return seq, err
}
