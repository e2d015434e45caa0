package portfolios

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"tessera-backend/internal/domain"
	"tessera-backend/internal/pkg/apperr"
)

// Transaction-scoped holding moves shared by the listing lifecycle and
// purchase settlement. Every decrement is a single conditional UPDATE
// guarded on amount, so concurrent buys and edits cannot overdraw an
// entry; a failed guard surfaces as a retryable conflict.

// ReserveForListing moves amount of tokenID from the seller's held entry
// to a listed entry. Fails with a validation error when the seller does
// not hold enough.
func ReserveForListing(tx *gorm.DB, userID uuid.UUID, tokenID string, amount float64) (*domain.PortfolioToken, error) {
	p, err := GetOrCreate(tx, userID)
	if err != nil {
		return nil, err
	}
	var held domain.PortfolioToken
	err = tx.Where("portfolio_id = ? AND token_id = ? AND status = ?",
		p.PortfolioID, tokenID, domain.TokenStatusHeld).First(&held).Error
	if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && held.Amount < amount) {
		return nil, apperr.Validation("Insufficient tokens held to create listing")
	}
	if err != nil {
		return nil, err
	}

	if err := debitEntry(tx, &held, amount, apperr.Validation("Insufficient tokens held to create listing")); err != nil {
		return nil, err
	}
	if err := creditEntry(tx, p, userID, creditInput{
		TokenID:         held.TokenID,
		ProjectID:       held.ProjectID,
		Type:            held.Type,
		Amount:          amount,
		OriginalOwnerID: held.OriginalOwnerID,
		LastApyClaim:    held.LastApyClaim,
		PurchasePrice:   held.PurchasePrice,
		PurchaseDate:    held.PurchaseDate,
		Status:          domain.TokenStatusListed,
	}); err != nil {
		return nil, err
	}
	return &held, nil
}

// ReleaseListed moves amount of tokenID from the seller's listed entry
// back to held (listing cancelled or reduced).
func ReleaseListed(tx *gorm.DB, userID uuid.UUID, tokenID string, amount float64) error {
	p, err := GetOrCreate(tx, userID)
	if err != nil {
		return err
	}
	var listed domain.PortfolioToken
	if err := tx.Where("portfolio_id = ? AND token_id = ? AND status = ?",
		p.PortfolioID, tokenID, domain.TokenStatusListed).First(&listed).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.Conflict("No listed tokens to release")
		}
		return err
	}
	if err := debitEntry(tx, &listed, amount, apperr.Conflict("Listed tokens changed, retry")); err != nil {
		return err
	}
	return creditEntry(tx, p, userID, creditInput{
		TokenID:         listed.TokenID,
		ProjectID:       listed.ProjectID,
		Type:            listed.Type,
		Amount:          amount,
		OriginalOwnerID: listed.OriginalOwnerID,
		LastApyClaim:    listed.LastApyClaim,
		PurchasePrice:   listed.PurchasePrice,
		PurchaseDate:    listed.PurchaseDate,
		Status:          domain.TokenStatusHeld,
	})
}

// DebitListed removes amount of tokenID from the seller's listed entry
// after a fill. A lost race surfaces as a conflict.
func DebitListed(tx *gorm.DB, userID uuid.UUID, tokenID string, amount float64) (*domain.PortfolioToken, error) {
	p, err := GetOrCreate(tx, userID)
	if err != nil {
		return nil, err
	}
	var listed domain.PortfolioToken
	if err := tx.Where("portfolio_id = ? AND token_id = ? AND status = ?",
		p.PortfolioID, tokenID, domain.TokenStatusListed).First(&listed).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.Conflict("Seller holdings changed, retry")
		}
		return nil, err
	}
	if err := debitEntry(tx, &listed, amount, apperr.Conflict("Seller holdings changed, retry")); err != nil {
		return nil, err
	}
	return &listed, nil
}

// CreditPurchase adds the bought amount to the buyer's portfolio as a
// held entry, incrementing an existing held entry for the same token.
func CreditPurchase(tx *gorm.DB, buyerID uuid.UUID, traded *domain.PortfolioToken, amount, purchasePrice float64, sellerID uuid.UUID) error {
	p, err := GetOrCreate(tx, buyerID)
	if err != nil {
		return err
	}
	now := time.Now()
	price := round2(purchasePrice)
	origin := sellerID
	if traded.OriginalOwnerID != nil {
		origin = *traded.OriginalOwnerID
	}
	return creditEntry(tx, p, buyerID, creditInput{
		TokenID:         traded.TokenID,
		ProjectID:       traded.ProjectID,
		Type:            traded.Type,
		Amount:          amount,
		OriginalOwnerID: &origin,
		PurchasePrice:   &price,
		PurchaseDate:    &now,
		Status:          domain.TokenStatusHeld,
	})
}

type creditInput struct {
	TokenID         string
	ProjectID       uuid.UUID
	Type            string
	Amount          float64
	OriginalOwnerID *uuid.UUID
	LastApyClaim    *time.Time
	PurchasePrice   *float64
	PurchaseDate    *time.Time
	Status          string
}

// debitEntry is the conditional decrement; zero rows affected means the
// entry changed under us. Entries that hit exactly zero are deleted.
func debitEntry(tx *gorm.DB, entry *domain.PortfolioToken, amount float64, guardErr error) error {
	res := tx.Model(&domain.PortfolioToken{}).
		Where("entry_id = ? AND amount >= ?", entry.EntryID, amount).
		Update("amount", gorm.Expr("ROUND((amount - ?) * 100) / 100", amount))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return guardErr
	}
	return tx.Where("entry_id = ? AND amount <= 0", entry.EntryID).Delete(&domain.PortfolioToken{}).Error
}

func creditEntry(tx *gorm.DB, p *domain.Portfolio, ownerID uuid.UUID, in creditInput) error {
	status := in.Status
	if status == "" {
		status = domain.TokenStatusHeld
	}
	var existing domain.PortfolioToken
	err := tx.Where("portfolio_id = ? AND token_id = ? AND status = ?",
		p.PortfolioID, in.TokenID, status).First(&existing).Error
	if err == nil {
		return tx.Model(&existing).
			Update("amount", gorm.Expr("ROUND((amount + ?) * 100) / 100", in.Amount)).Error
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	entry := domain.PortfolioToken{
		PortfolioID:     p.PortfolioID,
		TokenID:         in.TokenID,
		ProjectID:       in.ProjectID,
		Type:            in.Type,
		Amount:          round2(in.Amount),
		OriginalOwnerID: in.OriginalOwnerID,
		OwnerID:         ownerID,
		Status:          status,
		LastApyClaim:    in.LastApyClaim,
		PurchasePrice:   in.PurchasePrice,
		PurchaseDate:    in.PurchaseDate,
	}
	return tx.Create(&entry).Error
}
