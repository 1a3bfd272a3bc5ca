package config

import (
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds application configuration (env + Viper).
type Config struct {
	Env                 string
	Port                string
	LogLevel            string
	SessionSecret       string
	DatabaseURL         string // postgres DSN, or sqlite:<path> for local runs
	RedisURL            string
	FrontendURLEndsWith string
	DevPassword         string
	AllowCrossSiteDev   bool
	HealthAdminKey      string

	// Escrow engine
	MaxTransactionAmount int64           // ceiling for a single deposit, bid or purchase (minor units)
	LockTimeout          time.Duration   // longest wait for an account/auction lock
	SweepInterval        time.Duration   // settlement sweeper tick
	ReconcileEvery       int             // run ledger reconciliation every N sweeps (0 disables)
	SweepWorkers         int             // concurrent settlements per sweep
	PurchaseFeeCapRate   decimal.Decimal // upper bound held on top of a buy-now price
	DefaultIncrementRule string

	// Price broadcasting
	BroadcastBuffer int      // per-subscriber snapshot buffer
	RedisRelay      bool     // fan snapshots across instances through Redis pub/sub
	KafkaBrokers    []string // optional Kafka sink for price snapshots
	KafkaPriceTopic string
}

// Load loads config from env and optional .env file.
func Load() (*Config, error) {
	viper.SetConfigFile(".env")
	_ = viper.ReadInConfig()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("PORT", "8080")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("MAX_TRANSACTION_AMOUNT", int64(10_000_000_000))
	viper.SetDefault("LOCK_TIMEOUT", "2s")
	viper.SetDefault("SWEEP_INTERVAL", "5s")
	viper.SetDefault("RECONCILE_EVERY", 60)
	viper.SetDefault("SWEEP_WORKERS", 4)
	viper.SetDefault("PURCHASE_FEE_CAP_RATE", "0.10")
	viper.SetDefault("DEFAULT_INCREMENT_RULE", "standard")
	viper.SetDefault("BROADCAST_BUFFER", 16)
	viper.SetDefault("KAFKA_PRICE_TOPIC", "auction.price")

	env := viper.GetString("APP_ENV")
	if env == "" {
		env = "development"
	}

	dbURL := viper.GetString("DATABASE_URL_DEV")
	if env == "production" {
		dbURL = viper.GetString("DATABASE_URL_PROD")
	} else if env == "test" {
		dbURL = viper.GetString("DATABASE_URL_TEST")
	}
	if dbURL == "" {
		dbURL = os.Getenv("DATABASE_URL")
	}

	feeCap, err := decimal.NewFromString(viper.GetString("PURCHASE_FEE_CAP_RATE"))
	if err != nil {
		return nil, err
	}

	return &Config{
		Env:                  env,
		Port:                 viper.GetString("PORT"),
		LogLevel:             viper.GetString("LOG_LEVEL"),
		SessionSecret:        viper.GetString("SESSION_SECRET"),
		DatabaseURL:          dbURL,
		RedisURL:             viper.GetString("REDIS_URL"),
		FrontendURLEndsWith:  viper.GetString("FRONTEND_URL_ENDS_WITH"),
		DevPassword:          viper.GetString("DEV_PASSWORD"),
		AllowCrossSiteDev:    strings.EqualFold(viper.GetString("ALLOW_CROSS_SITE_DEV"), "true"),
		HealthAdminKey:       viper.GetString("HEALTH_ADMIN_KEY"),
		MaxTransactionAmount: viper.GetInt64("MAX_TRANSACTION_AMOUNT"),
		LockTimeout:          viper.GetDuration("LOCK_TIMEOUT"),
		SweepInterval:        viper.GetDuration("SWEEP_INTERVAL"),
		ReconcileEvery:       viper.GetInt("RECONCILE_EVERY"),
		SweepWorkers:         viper.GetInt("SWEEP_WORKERS"),
		PurchaseFeeCapRate:   feeCap,
		DefaultIncrementRule: viper.GetString("DEFAULT_INCREMENT_RULE"),
		BroadcastBuffer:      viper.GetInt("BROADCAST_BUFFER"),
		RedisRelay:           strings.EqualFold(viper.GetString("REDIS_RELAY"), "true"),
		KafkaBrokers:         splitList(viper.GetString("KAFKA_BROKERS")),
		KafkaPriceTopic:      viper.GetString("KAFKA_PRICE_TOPIC"),
	}, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
