package broadcast

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Sink is an external snapshot destination.
type Sink interface {
	Name() string
	Send(ctx context.Context, s Snapshot) error
}

// Broadcaster hands snapshots to the local hub at once and queues them for
// the external sinks, which are drained by Run.
type Broadcaster struct {
	Hub         *Hub
	Sinks       []Sink
	SendTimeout time.Duration

	queue chan Snapshot
}

func NewBroadcaster(hub *Hub, queueSize int, sinks ...Sink) *Broadcaster {
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Broadcaster{
		Hub:         hub,
		Sinks:       sinks,
		SendTimeout: 2 * time.Second,
		queue:       make(chan Snapshot, queueSize),
	}
}

// Publish never blocks. When the sink queue is full the oldest queued
// snapshot is dropped.
func (b *Broadcaster) Publish(s Snapshot) {
	if b.Hub != nil {
		b.Hub.Deliver(s)
	}
	if len(b.Sinks) == 0 {
		return
	}
	for {
		select {
		case b.queue <- s:
			return
		default:
		}
		select {
		case dropped := <-b.queue:
			log.Warn().Str("auction_id", dropped.AuctionID.String()).Int64("sequence", dropped.Sequence).Msg("broadcast queue full, dropping snapshot")
		default:
		}
	}
}

// Run forwards queued snapshots to every sink until ctx is done. Sink
// errors are logged and otherwise ignored.
func (b *Broadcaster) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case s := <-b.queue:
			b.send(ctx, s)
		}
	}
}

func (b *Broadcaster) send(ctx context.Context, s Snapshot) {
	for _, sink := range b.Sinks {
		sctx, cancel := context.WithTimeout(ctx, b.SendTimeout)
		if err := sink.Send(sctx, s); err != nil {
			log.Error().Err(err).
				Str("sink", sink.Name()).
				Str("auction_id", s.AuctionID.String()).
				Int64("sequence", s.Sequence).
				Msg("snapshot delivery failed")
		}
		cancel()
	}
}
