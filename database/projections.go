package database

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNotFound is returned by the single-row read helpers.
var ErrNotFound = gorm.ErrRecordNotFound

type ComplianceAction int

const (
	ComplianceWhitelisted ComplianceAction = iota + 1
	ComplianceBlacklisted
	ComplianceRemovedFromWhitelist
	ComplianceRemovedFromBlacklist
)

func (a ComplianceAction) String() string {
	switch a {
	case ComplianceWhitelisted:
		return "whitelisted"
	case ComplianceBlacklisted:
		return "blacklisted"
	case ComplianceRemovedFromWhitelist:
		return "removed_from_whitelist"
	case ComplianceRemovedFromBlacklist:
		return "removed_from_blacklist"
	default:
		return "unknown"
	}
}

// Apply sets exactly the flags owned by the action. A blacklisted wallet
// cannot become whitelisted until it is removed from the blacklist.
func (a ComplianceAction) Apply(user *User, at time.Time) {
	switch a {
	case ComplianceWhitelisted:
		user.IsWhitelisted = !user.IsBlacklisted
		user.KYCTimestamp = &at
	case ComplianceBlacklisted:
		user.IsBlacklisted = true
		user.IsWhitelisted = false
	case ComplianceRemovedFromWhitelist:
		user.IsWhitelisted = false
	case ComplianceRemovedFromBlacklist:
		user.IsBlacklisted = false
	}
}

// Store is the projection store; the indexer is its only writer.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) DB() *gorm.DB {
	return s.db
}

func (s *Store) ApplyCompliance(
	ctx context.Context, wallet string, action ComplianceAction, at time.Time, block uint64,
) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user User
		err := tx.Where(&User{WalletAddress: wallet}).FirstOrInit(&user).Error
		if err != nil {
			return err
		}

		action.Apply(&user, at.UTC())
		user.UpdatedBlock = block

		return tx.Save(&user).Error
	})
	if err != nil {
		return errors.Wrapf(err, "ApplyCompliance %s %s", action, wallet)
	}

	return nil
}

// InsertTransaction ignores rows whose id or (tx hash, type) already exist.
func (s *Store) InsertTransaction(ctx context.Context, transaction *Transaction) (bool, error) {
	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(transaction)
	if result.Error != nil {
		return false, errors.Wrapf(result.Error, "InsertTransaction %s", transaction.ID)
	}

	return result.RowsAffected > 0, nil
}

func (s *Store) UpsertListing(ctx context.Context, listing *Listing) error {
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "listing_id_onchain"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"seller", "token_address", "amount", "price_per_token_wei", "active", "updated_block",
			}),
		}).
		Create(listing).Error
	if err != nil {
		return errors.Wrapf(err, "UpsertListing %s", listing.ListingIDOnchain)
	}

	return nil
}

// DeactivateListing does not require the listing row to exist.
func (s *Store) DeactivateListing(ctx context.Context, listingID string, block uint64) error {
	err := s.db.WithContext(ctx).
		Model(&Listing{}).
		Where(&Listing{ListingIDOnchain: listingID}).
		Updates(map[string]interface{}{"active": false, "updated_block": block}).Error
	if err != nil {
		return errors.Wrapf(err, "DeactivateListing %s", listingID)
	}

	return nil
}

// InsertPrice appends to the price series. The same ledger log is never
// recorded twice for one source.
func (s *Store) InsertPrice(ctx context.Context, price *OraclePrice) (bool, error) {
	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(price)
	if result.Error != nil {
		return false, errors.Wrapf(result.Error, "InsertPrice %s", price.TxHash)
	}

	return result.RowsAffected > 0, nil
}

func (s *Store) UserByWallet(ctx context.Context, wallet string) (*User, error) {
	var user User
	err := s.db.WithContext(ctx).Where(&User{WalletAddress: wallet}).First(&user).Error
	if err != nil {
		return nil, err
	}

	return &user, nil
}

func (s *Store) ListingByOnchainID(ctx context.Context, listingID string) (*Listing, error) {
	var listing Listing
	err := s.db.WithContext(ctx).Where(&Listing{ListingIDOnchain: listingID}).First(&listing).Error
	if err != nil {
		return nil, err
	}

	return &listing, nil
}

func (s *Store) Users(ctx context.Context) ([]User, error) {
	var users []User
	err := s.db.WithContext(ctx).Order("wallet_address ASC").Find(&users).Error
	return users, err
}

func (s *Store) Listings(ctx context.Context) ([]Listing, error) {
	var listings []Listing
	err := s.db.WithContext(ctx).Order("listing_id_onchain ASC").Find(&listings).Error
	return listings, err
}

func (s *Store) Transactions(ctx context.Context) ([]Transaction, error) {
	var transactions []Transaction
	err := s.db.WithContext(ctx).Order("block_number ASC, log_index ASC, id ASC").Find(&transactions).Error
	return transactions, err
}

func (s *Store) Prices(ctx context.Context, token string) ([]OraclePrice, error) {
	var prices []OraclePrice
	err := s.db.WithContext(ctx).
		Where(&OraclePrice{TokenAddress: token}).
		Order("id ASC").
		Find(&prices).Error
	return prices, err
}
