// Package broadcaster drains the event outbox into external sinks. It
// runs beside the engine, never inside an engine transaction, so a slow
// or failing sink delays delivery but cannot roll back a trade.
package broadcaster

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"tickex/events"
	"tickex/infra/kafka"
	"tickex/infra/kv"
)

// Sink receives published events. A sink error leaves the outbox record
// pending for the next pass (at-least-once delivery).
type Sink interface {
	Publish(ctx context.Context, ev events.Event) error
}

type Broadcaster struct {
	store    kv.Store
	outbox   *events.Outbox
	sinks    []Sink
	interval time.Duration
	log      zerolog.Logger
}

func New(store kv.Store, outbox *events.Outbox, sinks []Sink, interval time.Duration, logger zerolog.Logger) *Broadcaster {
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	return &Broadcaster{
		store:    store,
		outbox:   outbox,
		sinks:    sinks,
		interval: interval,
		log:      logger,
	}
}

// Run drains pending events on a ticker until the context is cancelled.
func (b *Broadcaster) Run(ctx context.Context) {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.drainOnce(ctx)
		}
	}
}

// errSinkFailed stops a pass so later events are not delivered ahead of
// an earlier one that a sink rejected.
var errSinkFailed = errors.New("sink publish failed")

func (b *Broadcaster) drainOnce(ctx context.Context) {
	err := b.outbox.ScanPending(b.store, func(ev events.Event) error {
		for _, s := range b.sinks {
			if err := s.Publish(ctx, ev); err != nil {
				b.log.Warn().Err(err).Uint64("seq", ev.Seq).Msg("sink publish failed, will retry")
				return errSinkFailed
			}
		}
		return b.outbox.Ack(b.store, ev.Seq)
	})
	if err != nil && !errors.Is(err, errSinkFailed) {
		b.log.Error().Err(err).Msg("outbox drain failed")
	}
}

// -------------------- Sinks --------------------

// KafkaSink publishes events to a Kafka topic.
type KafkaSink struct {
	producer *kafka.Producer
}

func NewKafkaSink(p *kafka.Producer) *KafkaSink {
	return &KafkaSink{producer: p}
}

func (s *KafkaSink) Publish(ctx context.Context, ev events.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return s.producer.Send(ctx, ev.Seq, payload)
}

// LogSink writes events to the structured log; useful in development.
type LogSink struct {
	Log zerolog.Logger
}

func (s LogSink) Publish(_ context.Context, ev events.Event) error {
	s.Log.Info().
		Uint64("seq", ev.Seq).
		Str("type", string(ev.Type)).
		Str("pair", ev.Pair).
		Msg("event")
	return nil
}
