package health

import (
	"context"
	"encoding/json"
	"time"

	"atelier-backend/internal/domain"
	"atelier-backend/internal/middleware"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// GormPinger pings the pool behind a gorm handle.
type GormPinger struct {
	DB *gorm.DB
}

func (g *GormPinger) Ping() error {
	if g == nil || g.DB == nil {
		return nil
	}
	sqlDB, err := g.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// GormEscrowCounter reads escrow figures straight from the tables.
type GormEscrowCounter struct {
	DB *gorm.DB
}

func (g *GormEscrowCounter) EscrowCounts(ctx context.Context) (EscrowInfo, error) {
	var info EscrowInfo
	db := g.DB.WithContext(ctx)
	if err := db.Model(&domain.Auction{}).Where("state = ?", domain.AuctionActive).Count(&info.ActiveAuctions).Error; err != nil {
		return info, err
	}
	if err := db.Model(&domain.Auction{}).Where("state = ?", domain.AuctionScheduled).Count(&info.ScheduledAuctions).Error; err != nil {
		return info, err
	}
	if err := db.Model(&domain.EscrowHold{}).Where("state = ?", domain.HoldHeld).Count(&info.OpenHolds).Error; err != nil {
		return info, err
	}
	var sum struct{ Sum int64 }
	if err := db.Model(&domain.Account{}).Select("COALESCE(SUM(escrowed),0) AS sum").Scan(&sum).Error; err != nil {
		return info, err
	}
	info.EscrowedTotal = sum.Sum
	return info, nil
}

const integrityLogSize = 200

// IntegrityLog keeps the most recent ledger integrity incidents in a Redis
// list so they survive restarts and show up on /health.
type IntegrityLog struct {
	Rdb *redis.Client
}

type IntegrityIncident struct {
	Time      time.Time `json:"time"`
	AccountID string    `json:"account_id"`
	Detail    string    `json:"detail"`
}

func (l *IntegrityLog) ReportIntegrity(ctx context.Context, accountID uuid.UUID, detail string) {
	if l == nil || l.Rdb == nil {
		return
	}
	b, _ := json.Marshal(IntegrityIncident{Time: time.Now().UTC(), AccountID: accountID.String(), Detail: detail})
	pipe := l.Rdb.Pipeline()
	pipe.LPush(ctx, middleware.KeyIntegrityLog, b)
	pipe.LTrim(ctx, middleware.KeyIntegrityLog, 0, integrityLogSize-1)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Error().Err(err).Str("account_id", accountID.String()).Msg("failed to record integrity incident")
	}
}

// Recent returns up to n incidents, newest first.
func (l *IntegrityLog) Recent(ctx context.Context, n int64) ([]IntegrityIncident, error) {
	raw, err := l.Rdb.LRange(ctx, middleware.KeyIntegrityLog, 0, n-1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]IntegrityIncident, 0, len(raw))
	for _, s := range raw {
		var inc IntegrityIncident
		if json.Unmarshal([]byte(s), &inc) == nil {
			out = append(out, inc)
		}
	}
	return out, nil
}
