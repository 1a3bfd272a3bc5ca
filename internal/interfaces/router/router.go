package router

import (
	"context"
	"net/http"
	"os"
	"time"

	"atelier-backend/internal/application/bidding"
	"atelier-backend/internal/application/broadcast"
	"atelier-backend/internal/application/catalog"
	healthsvc "atelier-backend/internal/application/health"
	"atelier-backend/internal/application/ledger"
	"atelier-backend/internal/application/locks"
	"atelier-backend/internal/application/purchases"
	"atelier-backend/internal/application/settlement"
	walletsvc "atelier-backend/internal/application/wallet"
	"atelier-backend/internal/config"
	"atelier-backend/internal/constants"
	"atelier-backend/internal/infrastructure/database"
	artworkhandler "atelier-backend/internal/interfaces/handlers/artworks"
	auctionhandler "atelier-backend/internal/interfaces/handlers/auctions"
	healthhandler "atelier-backend/internal/interfaces/handlers/health"
	wallethandler "atelier-backend/internal/interfaces/handlers/wallet"
	"atelier-backend/internal/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const defaultSQLite = "sqlite:atelier.db"

// Server is the HTTP app plus the background workers that keep auctions
// moving: the settlement sweeper, the snapshot broadcaster and, across
// instances, the Redis relay.
type Server struct {
	App         *fiber.App
	DB          *gorm.DB
	Rdb         *redis.Client
	Broadcaster *broadcast.Broadcaster
	Relay       *broadcast.RedisRelay
	Settlement  *settlement.Service
	Kafka       *broadcast.KafkaPublisher

	sweepInterval time.Duration
	done          chan struct{}
}

func CreateApp(cfg *config.Config) (*Server, error) {
	app := fiber.New(fiber.Config{
		DisableStartupMessage:   true,
		ErrorHandler:            middleware.ErrorHandler,
		EnableTrustedProxyCheck: true,
	})

	app.Use(middleware.CORS(middleware.CORSConfig{
		AllowedSuffix: cfg.FrontendURLEndsWith,
		DevPassword:   cfg.DevPassword,
	}))

	sessionHandler, rdb, err := middleware.Session(middleware.SessionConfig{
		Secret:   cfg.SessionSecret,
		RedisURL: cfg.RedisURL,
	})
	if err != nil {
		return nil, err
	}
	app.Use(middleware.Tracing())
	app.Use(sessionHandler)
	app.Use(middleware.HealthMarker(rdb))
	app.Use(middleware.RouteLogger())

	dsn := cfg.DatabaseURL
	if dsn == "" {
		log.Warn().Str("dsn", defaultSQLite).Msg("DATABASE_URL not set, using local SQLite")
		dsn = defaultSQLite
	}
	db, err := database.Open(dsn)
	if err != nil {
		return nil, err
	}
	if err := database.AutoMigrate(db); err != nil {
		return nil, err
	}

	srv := &Server{App: app, DB: db, Rdb: rdb, sweepInterval: cfg.SweepInterval, done: make(chan struct{})}

	var sinks []broadcast.Sink
	hub := broadcast.NewHub(cfg.BroadcastBuffer)
	if cfg.RedisRelay {
		origin := instanceID()
		sinks = append(sinks, &broadcast.RedisPublisher{Client: rdb, Origin: origin, TTL: time.Hour})
		srv.Relay = &broadcast.RedisRelay{Client: rdb, Origin: origin, Hub: hub}
	}
	if len(cfg.KafkaBrokers) > 0 {
		kp, err := broadcast.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaPriceTopic)
		if err != nil {
			return nil, err
		}
		srv.Kafka = kp
		sinks = append(sinks, kp)
	}
	srv.Broadcaster = broadcast.NewBroadcaster(hub, 0, sinks...)

	ls := locks.New(cfg.LockTimeout)
	integrity := &healthsvc.IntegrityLog{Rdb: rdb}
	led := &ledger.Service{DB: db, Locks: ls, MaxAmount: cfg.MaxTransactionAmount, Reporter: integrity}
	engine := &bidding.Engine{DB: db, Locks: ls, Publisher: srv.Broadcaster, MaxAmount: cfg.MaxTransactionAmount}
	settle := &settlement.Service{
		DB:             db,
		Locks:          ls,
		Engine:         engine,
		Ledger:         led,
		Publisher:      srv.Broadcaster,
		Workers:        cfg.SweepWorkers,
		ReconcileEvery: cfg.ReconcileEvery,
	}
	engine.OnExpired = settle.Trigger
	srv.Settlement = settle
	cat := &catalog.Service{DB: db, Locks: ls, DefaultRule: cfg.DefaultIncrementRule}

	hh := &healthhandler.Handlers{
		Rdb:            rdb,
		DB:             &healthsvc.GormPinger{DB: db},
		Escrow:         &healthsvc.GormEscrowCounter{DB: db},
		IntegrityLog:   integrity,
		Ledger:         led,
		HealthAdminKey: cfg.HealthAdminKey,
	}
	app.Get("/reset", hh.Reset)
	app.Get("/health/json", hh.JSON)
	app.Get("/health/errors", hh.Errors)
	app.Get("/health/integrity", hh.Integrity)

	// Wallet
	wh := &wallethandler.Handlers{Service: &walletsvc.Service{Ledger: led}}
	wg := app.Group("/api/v1/wallet", middleware.RequireAuth(), middleware.AuthorizePermission(constants.ManageWallet))
	wg.Post("/deposit", wh.Deposit)
	wg.Post("/withdraw", wh.Withdraw)
	wg.Get("/balance", wh.Balance)
	wg.Get("/statement", wh.Statement)

	// Artworks
	arth := &artworkhandler.Handlers{
		Catalog:   cat,
		Purchases: &purchases.Service{DB: db, Locks: ls, FeeCapRate: cfg.PurchaseFeeCapRate},
	}
	artg := app.Group("/api/v1/artworks", middleware.RequireAuth())
	artg.Post("/", middleware.AuthorizePermission(constants.ListArtworks), arth.CreateArtwork)
	artg.Get("/:artwork_id", arth.GetArtwork)
	artg.Post("/:artwork_id/purchase", middleware.AuthorizePermission(constants.BuyArtworks), arth.Purchase)

	// Auctions. The price stream is public and registered ahead of the
	// authenticated group.
	ah := &auctionhandler.Handlers{
		Catalog:    cat,
		Engine:     engine,
		Settlement: settle,
		Hub:        hub,
		Done:       srv.done,
	}
	app.Get("/api/v1/auctions/:auction_id/stream", ah.Stream)
	ag := app.Group("/api/v1/auctions", middleware.RequireAuth())
	ag.Post("/", middleware.AuthorizePermission(constants.ManageAuctions), ah.CreateAuction)
	ag.Get("/:auction_id", ah.GetAuction)
	ag.Get("/:auction_id/bids", ah.ListBids)
	ag.Post("/:auction_id/bids", middleware.AuthorizePermission(constants.PlaceBids), ah.PlaceBid)
	ag.Post("/:auction_id/close", middleware.AuthorizePermission(constants.CloseAuctions), ah.CloseAuction)

	return srv, nil
}

// Run serves HTTP on addr and runs the background workers until ctx is
// done, then shuts everything down.
func (s *Server) Run(ctx context.Context, addr string) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.App.Listen(addr)
	})
	g.Go(func() error {
		return s.Broadcaster.Run(gctx)
	})
	g.Go(func() error {
		return s.Settlement.Run(gctx, s.sweepInterval)
	})
	if s.Relay != nil {
		g.Go(func() error {
			return s.Relay.Run(gctx)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		close(s.done)
		err := s.App.ShutdownWithTimeout(10 * time.Second)
		if s.Kafka != nil {
			if kerr := s.Kafka.Close(); kerr != nil {
				log.Error().Err(kerr).Msg("kafka writer close failed")
			}
		}
		return err
	})
	return g.Wait()
}

func instanceID() string {
	host, _ := os.Hostname()
	return host + "-" + uuid.NewString()[:8]
}

func Handler(app *fiber.App) http.Handler {
	return adaptor.FiberApp(app)
}
