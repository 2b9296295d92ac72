package events

import (
	"testing"

	"github.com/stretchr/testify/require"

	"tickex/infra/kv"
)

func TestOutboxAppendScanAck(t *testing.T) {
	store := kv.NewMemStore()
	ob, err := NewOutbox(store)
	require.NoError(t, err)

	tx := kv.Begin(store, 0)
	require.NoError(t, ob.Append(tx, Event{Type: TypeOrderPlaced, Pair: "USDA/USDB", OrderID: 1}))
	require.NoError(t, ob.Append(tx, Event{Type: TypeTrade, Pair: "USDA/USDB"}))
	require.NoError(t, tx.Commit())

	var seen []Event
	require.NoError(t, ob.ScanPending(store, func(ev Event) error {
		seen = append(seen, ev)
		return nil
	}))
	require.Len(t, seen, 2)
	require.Equal(t, TypeOrderPlaced, seen[0].Type)
	require.Equal(t, TypeTrade, seen[1].Type)
	require.Less(t, seen[0].Seq, seen[1].Seq)

	require.NoError(t, ob.Ack(store, seen[0].Seq))
	seen = seen[:0]
	require.NoError(t, ob.ScanPending(store, func(ev Event) error {
		seen = append(seen, ev)
		return nil
	}))
	require.Len(t, seen, 1)
	require.Equal(t, TypeTrade, seen[0].Type)
}

func TestOutboxDiscardedWithTransaction(t *testing.T) {
	store := kv.NewMemStore()
	ob, err := NewOutbox(store)
	require.NoError(t, err)

	tx := kv.Begin(store, 0)
	require.NoError(t, ob.Append(tx, Event{Type: TypeOrderPlaced}))
	// tx never committed

	require.NoError(t, ob.ScanPending(store, func(Event) error {
		t.Fatal("event from a discarded transaction must not surface")
		return nil
	}))
}

func TestOutboxSeqSurvivesRestart(t *testing.T) {
	store := kv.NewMemStore()
	ob, err := NewOutbox(store)
	require.NoError(t, err)

	tx := kv.Begin(store, 0)
	require.NoError(t, ob.Append(tx, Event{Type: TypeDeposit}))
	require.NoError(t, ob.Append(tx, Event{Type: TypeDeposit}))
	require.NoError(t, tx.Commit())

	reopened, err := NewOutbox(store)
	require.NoError(t, err)

	tx = kv.Begin(store, 0)
	require.NoError(t, reopened.Append(tx, Event{Type: TypeWithdraw}))
	require.NoError(t, tx.Commit())

	var seqs []uint64
	require.NoError(t, reopened.ScanPending(store, func(ev Event) error {
		seqs = append(seqs, ev.Seq)
		return nil
	}))
	require.Equal(t, []uint64{1, 2, 3}, seqs)
}

// After the broadcaster drains everything, no pending record is left to
// seed from; the persisted tail must carry the numbering instead.
func TestOutboxSeqSurvivesDrainedRestart(t *testing.T) {
	store := kv.NewMemStore()
	ob, err := NewOutbox(store)
	require.NoError(t, err)

	tx := kv.Begin(store, 0)
	require.NoError(t, ob.Append(tx, Event{Type: TypeDeposit}))
	require.NoError(t, ob.Append(tx, Event{Type: TypeDeposit}))
	require.NoError(t, tx.Commit())

	require.NoError(t, ob.ScanPending(store, func(ev Event) error {
		return ob.Ack(store, ev.Seq)
	}))

	reopened, err := NewOutbox(store)
	require.NoError(t, err)

	tx = kv.Begin(store, 0)
	require.NoError(t, reopened.Append(tx, Event{Type: TypeWithdraw}))
	require.NoError(t, tx.Commit())

	var seqs []uint64
	require.NoError(t, reopened.ScanPending(store, func(ev Event) error {
		seqs = append(seqs, ev.Seq)
		return nil
	}))
	require.Equal(t, []uint64{3}, seqs)
}
