package database

import (
	"strings"

	"atelier-backend/internal/domain"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

const sqlitePrefix = "sqlite:"

// Open opens a GORM DB from DSN. A "sqlite:" prefix selects the embedded
// SQLite driver (local runs); anything else is treated as a Postgres DSN.
// PreferSimpleProtocol disables prepared statement caching to avoid 42P05
// ("prepared statement already exists") when using connection poolers (e.g. PgBouncer).
func Open(dsn string) (*gorm.DB, error) {
	if strings.HasPrefix(dsn, sqlitePrefix) {
		return OpenSQLite(strings.TrimPrefix(dsn, sqlitePrefix))
	}
	return gorm.Open(postgres.New(postgres.Config{
		DSN:                  dsn,
		PreferSimpleProtocol: true,
	}), &gorm.Config{})
}

// OpenSQLite opens an SQLite database on a single connection. SQLite has one
// writer anyway, and ":memory:" databases are per connection.
func OpenSQLite(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	return db, nil
}

// AutoMigrate runs migrations for the escrow and auction models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.Account{},
		&domain.LedgerEntry{},
		&domain.EscrowHold{},
		&domain.Artwork{},
		&domain.Auction{},
		&domain.AuctionEvent{},
		&domain.Bid{},
		&domain.Purchase{},
	)
}

// ForUpdate row-locks the rows read by tx on Postgres so that several API
// instances stay serialized. SQLite has no row locks and is left alone.
func ForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "postgres" {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}
