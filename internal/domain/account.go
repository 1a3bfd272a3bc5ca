package domain

import (
	"time"

	"github.com/google/uuid"
)

// Account is the cached balance snapshot of one user. It is a projection of
// the account's ledger entries and is only ever written by the ledger.
type Account struct {
	AccountID uuid.UUID `gorm:"column:account_id;type:uuid;primaryKey" json:"account_id"`
	Total     int64     `gorm:"column:total;not null;default:0" json:"total"`
	Escrowed  int64     `gorm:"column:escrowed;not null;default:0" json:"escrowed"`
	Available int64     `gorm:"column:available;not null;default:0" json:"available"`
	Version   int64     `gorm:"column:version;not null;default:0" json:"-"`
	CreatedAt time.Time `gorm:"column:createdAt" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updatedAt" json:"updatedAt"`
}

func (Account) TableName() string {
	return "Accounts"
}

// Balance is the (total, escrowed, available) triple returned to callers.
type Balance struct {
	AccountID uuid.UUID `json:"account_id"`
	Total     int64     `json:"total"`
	Escrowed  int64     `json:"escrowed"`
	Available int64     `json:"available"`
}

func (a *Account) Balance() Balance {
	return Balance{
		AccountID: a.AccountID,
		Total:     a.Total,
		Escrowed:  a.Escrowed,
		Available: a.Available,
	}
}

// Consistent reports whether the balance satisfies every account invariant.
func (b Balance) Consistent() bool {
	return b.Total >= 0 && b.Escrowed >= 0 && b.Available >= 0 && b.Total == b.Escrowed+b.Available
}
