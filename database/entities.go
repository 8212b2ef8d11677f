package database

import (
	"time"
)

// BaseEntity is an abstract entity, auto-increment entities are derived from it
type BaseEntity struct {
	ID uint64 `gorm:"primaryKey"`
}

const (
	TxTypePurchase    = "purchase"
	TxTypeListingSold = "listing_sold"
	TxTypeSwap        = "swap"

	DirectionBuy  = "buy"
	DirectionSell = "sell"

	TxStatusConfirmed = "confirmed"

	PriceSourceEvent = "event"
	PriceSourcePush  = "oracle_push"
)

type Checkpoint struct {
	Key     string `gorm:"primaryKey;type:varchar(50)"`
	Value   string `gorm:"type:varchar(20);not null"`
	Updated time.Time
}

type User struct {
	BaseEntity
	WalletAddress string `gorm:"type:varchar(42);uniqueIndex;not null"`
	IsWhitelisted bool   `gorm:"not null"`
	IsBlacklisted bool   `gorm:"not null"`
	KYCTimestamp  *time.Time
	UpdatedBlock  uint64
}

type Transaction struct {
	ID               string `gorm:"primaryKey;type:varchar(80)"`
	Type             string `gorm:"type:varchar(20);uniqueIndex:idx_transactions_hash_type;not null"`
	Tokens           int64
	Direction        string `gorm:"type:varchar(4)"`
	CounterpartyFrom string `gorm:"type:varchar(42)"`
	CounterpartyTo   string `gorm:"type:varchar(42)"`
	TotalAmountWei   string `gorm:"type:varchar(78)"`
	TxHash           string `gorm:"type:varchar(66);uniqueIndex:idx_transactions_hash_type;not null"`
	BlockNumber      uint64 `gorm:"index"`
	LogIndex         uint64
	Status           string `gorm:"type:varchar(16)"`
}

type Listing struct {
	BaseEntity
	ListingIDOnchain string `gorm:"type:varchar(78);uniqueIndex;not null"`
	Seller           string `gorm:"type:varchar(42)"`
	TokenAddress     string `gorm:"type:varchar(42)"`
	Amount           string `gorm:"type:varchar(78)"`
	PricePerTokenWei string `gorm:"type:varchar(78)"`
	Active           bool   `gorm:"not null"`
	CreatedBlock     uint64
	UpdatedBlock     uint64
}

// OraclePrice rows are only ever inserted.
type OraclePrice struct {
	BaseEntity
	TokenAddress string `gorm:"type:varchar(42);index"`
	PriceWei     string `gorm:"type:varchar(78)"`
	Confidence   uint64
	BlockNumber  uint64
	Source       string `gorm:"type:varchar(16);uniqueIndex:idx_oracle_prices_origin"`
	TxHash       string `gorm:"type:varchar(66);uniqueIndex:idx_oracle_prices_origin"`
	LogIndex     uint64 `gorm:"uniqueIndex:idx_oracle_prices_origin"`
	CreatedAt    time.Time
}
