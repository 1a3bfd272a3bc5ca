package settlement

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"atelier-backend/internal/domain"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const (
	triggerBuffer   = 64
	defaultInterval = 5 * time.Second
)

type SweepReport struct {
	Activated int `json:"activated"`
	Settled   int `json:"settled"`
	Failed    int `json:"failed"`
}

// Sweep activates due auctions and settles every ended one. A failed
// settlement is logged and picked up again by the next sweep.
func (s *Service) Sweep(ctx context.Context) (SweepReport, error) {
	var report SweepReport
	if s.Engine != nil {
		n, err := s.Engine.ActivateDue(ctx)
		if err != nil {
			return report, err
		}
		report.Activated = n
	}

	var ids []uuid.UUID
	if err := s.DB.WithContext(ctx).Model(&domain.Auction{}).
		Where("state <> ? AND end_time <= ?", domain.AuctionClosed, s.now()).
		Pluck("auction_id", &ids).Error; err != nil {
		return report, err
	}

	workers := s.Workers
	if workers <= 0 {
		workers = 1
	}
	var settled, failed int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			if _, err := s.Settle(gctx, id, false); err != nil {
				atomic.AddInt64(&failed, 1)
				log.Error().Err(err).Str("auction_id", id.String()).Msg("settlement failed")
				return nil
			}
			atomic.AddInt64(&settled, 1)
			return nil
		})
	}
	err := g.Wait()
	report.Settled = int(settled)
	report.Failed = int(failed)
	return report, err
}

func (s *Service) queue() chan uuid.UUID {
	s.once.Do(func() {
		s.triggers = make(chan uuid.UUID, triggerBuffer)
	})
	return s.triggers
}

// Trigger asks Run to settle the auction soon. It never blocks; when the
// queue is full the next sweep handles the auction anyway.
func (s *Service) Trigger(auctionID uuid.UUID) {
	select {
	case s.queue() <- auctionID:
	default:
		log.Warn().Str("auction_id", auctionID.String()).Msg("settlement trigger queue full")
	}
}

// Run sweeps every interval and serves triggers until ctx is done. Every
// ReconcileEvery sweeps it also reconciles all ledger accounts.
func (s *Service) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = defaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	triggers := s.queue()
	sweeps := 0

	for {
		select {
		case <-ctx.Done():
			return nil
		case id := <-triggers:
			if _, err := s.Settle(ctx, id, false); err != nil && !errors.Is(err, domain.ErrAuctionNotEnded) {
				log.Error().Err(err).Str("auction_id", id.String()).Msg("triggered settlement failed")
			}
		case <-ticker.C:
			report, err := s.Sweep(ctx)
			if err != nil {
				log.Error().Err(err).Msg("settlement sweep failed")
			} else if report.Settled+report.Failed+report.Activated > 0 {
				log.Info().
					Int("activated", report.Activated).
					Int("settled", report.Settled).
					Int("failed", report.Failed).
					Msg("settlement sweep")
			}
			sweeps++
			if s.Ledger != nil && s.ReconcileEvery > 0 && sweeps%s.ReconcileEvery == 0 {
				bad, err := s.Ledger.ReconcileAll(ctx)
				if err != nil {
					log.Error().Err(err).Msg("ledger reconciliation failed")
				} else if len(bad) > 0 {
					log.Error().Int("accounts", len(bad)).Msg("ledger reconciliation found mismatches")
				}
			}
		}
	}
}
