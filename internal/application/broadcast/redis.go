package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const channelPattern = "auction:*:price"

func Channel(auctionID uuid.UUID) string {
	return fmt.Sprintf("auction:%s:price", auctionID)
}

func LatestKey(auctionID uuid.UUID) string {
	return fmt.Sprintf("auction:%s:latest", auctionID)
}

type envelope struct {
	Origin   string   `json:"origin"`
	Snapshot Snapshot `json:"snapshot"`
}

// RedisPublisher stores the latest snapshot per auction and publishes it on
// the auction's price channel.
type RedisPublisher struct {
	Client *redis.Client
	Origin string
	TTL    time.Duration
}

func (p *RedisPublisher) Name() string { return "redis" }

func (p *RedisPublisher) Send(ctx context.Context, s Snapshot) error {
	raw, err := json.Marshal(envelope{Origin: p.Origin, Snapshot: s})
	if err != nil {
		return err
	}
	ttl := p.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	pipe := p.Client.Pipeline()
	pipe.Set(ctx, LatestKey(s.AuctionID), raw, ttl)
	pipe.Publish(ctx, Channel(s.AuctionID), raw)
	_, err = pipe.Exec(ctx)
	return err
}

// Latest reads the stored snapshot of an auction.
func (p *RedisPublisher) Latest(ctx context.Context, auctionID uuid.UUID) (Snapshot, bool, error) {
	raw, err := p.Client.Get(ctx, LatestKey(auctionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, err
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Snapshot{}, false, err
	}
	return env.Snapshot, true, nil
}

// RedisRelay feeds snapshots published by other instances into the local
// hub. Messages carrying its own origin are skipped.
type RedisRelay struct {
	Client *redis.Client
	Origin string
	Hub    *Hub
}

func (r *RedisRelay) Run(ctx context.Context) error {
	sub, err := r.subscribe(ctx)
	if err != nil {
		return err
	}
	defer sub.Close()
	return r.serve(ctx, sub)
}

func (r *RedisRelay) subscribe(ctx context.Context) (*redis.PubSub, error) {
	sub := r.Client.PSubscribe(ctx, channelPattern)
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, err
	}
	return sub, nil
}

func (r *RedisRelay) serve(ctx context.Context, sub *redis.PubSub) error {
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			r.handle(msg)
		}
	}
}

func (r *RedisRelay) handle(msg *redis.Message) {
	var env envelope
	if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
		log.Warn().Err(err).Str("channel", msg.Channel).Msg("relay: bad snapshot payload")
		return
	}
	if env.Origin == r.Origin {
		return
	}
	if !strings.Contains(msg.Channel, env.Snapshot.AuctionID.String()) {
		log.Warn().Str("channel", msg.Channel).Msg("relay: snapshot does not match channel")
		return
	}
	r.Hub.Deliver(env.Snapshot)
}
