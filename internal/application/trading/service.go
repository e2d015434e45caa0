package trading

import (
	"context"
	"errors"
	"math"
	"time"

	"gorm.io/gorm"

	"tessera-backend/internal/application/listings"
	"tessera-backend/internal/application/portfolios"
	"tessera-backend/internal/domain"
	"tessera-backend/internal/pkg/apperr"
)

// Service settles purchases against secondary-market listings. The
// listing decrement and both portfolio moves commit in one transaction;
// a partial application (listing filled, portfolios unchanged) cannot
// happen.
type Service struct {
	DB *gorm.DB
}

// BuyResult is returned by a successful purchase.
type BuyResult struct {
	Message         string              `json:"message"`
	Listing         *domain.ListingView `json:"listing"`
	PurchasedAmount float64             `json:"purchasedAmount"`
}

// Sentinel conditions surfaced by Buy.
var (
	ErrListingNotFound = apperr.NotFound("Market listing not found")
	ErrListingInactive = apperr.Conflict("Listing is not active")
	ErrSelfTrade       = apperr.Forbidden("Cannot buy your own listing")
	ErrOversell        = apperr.Conflict("Insufficient tokens available")
	ErrListingChanged  = apperr.Conflict("Listing changed, retry")
)

// Buy purchases amount tokens from the listing. Partial fills keep the
// listing active; a fill that empties it moves it to sold and stamps
// sold_at on that terminal transition only.
func (s *Service) Buy(ctx context.Context, listingID string, buyer *domain.User, amount float64) (*BuyResult, error) {
	if amount <= 0 || math.IsNaN(amount) {
		return nil, apperr.Validation("Amount must be a positive number")
	}

	var settled domain.Listing
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var listing domain.Listing
		if err := tx.Where("listing_id = ?", listingID).First(&listing).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrListingNotFound
			}
			return err
		}
		if listing.Status != domain.ListingStatusActive {
			return ErrListingInactive
		}
		if listing.SellerID == buyer.UserID {
			return ErrSelfTrade
		}
		if amount > listing.Amount {
			return ErrOversell
		}

		// Single conditional decrement; a concurrent buy that got there
		// first makes this affect zero rows, and the caller retries with
		// fresh state instead of settling against stale data. Price drops
		// by the sold fraction so the remaining amount keeps the same unit
		// price and sequential fills sum to the original total.
		res := tx.Model(&domain.Listing{}).
			Where("id = ? AND status = ? AND amount >= ?", listing.ID, domain.ListingStatusActive, amount).
			Updates(map[string]interface{}{
				"amount":   gorm.Expr("ROUND((amount - ?) * 100) / 100", amount),
				"price":    gorm.Expr("ROUND(price * (amount - ?) / amount * 100) / 100", amount),
				"buyer_id": buyer.UserID,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrListingChanged
		}

		if err := tx.Where("id = ?", listing.ID).First(&settled).Error; err != nil {
			return err
		}
		if settled.Amount <= 0 {
			now := time.Now()
			if err := tx.Model(&domain.Listing{}).Where("id = ?", listing.ID).
				Updates(map[string]interface{}{
					"status":  domain.ListingStatusSold,
					"sold_at": now,
				}).Error; err != nil {
				return err
			}
			settled.Status = domain.ListingStatusSold
			settled.SoldAt = &now
		}

		traded, err := portfolios.DebitListed(tx, listing.SellerID, listing.TokenID, amount)
		if err != nil {
			return err
		}
		unitPrice := listing.Price / listing.Amount
		if err := portfolios.CreditPurchase(tx, buyer.UserID, traded, amount, unitPrice*amount, listing.SellerID); err != nil {
			return err
		}

		return listings.RecordEvent(tx, listing.ID, domain.ListingEventFilled, &buyer.UserID, map[string]interface{}{
			"purchased_amount": amount,
			"remaining_amount": settled.Amount,
			"buyer_id":         buyer.UserID.String(),
		})
	})
	if err != nil {
		return nil, err
	}

	view, err := listings.ExpandView(ctx, s.DB, settled)
	if err != nil {
		return nil, err
	}
	return &BuyResult{
		Message:         "Token purchase successful",
		Listing:         view,
		PurchasedAmount: amount,
	}, nil
}

// BuyWithRetry retries Buy when the row guard reports a lost race.
// Retries are cheap and contention is expected to be low.
func (s *Service) BuyWithRetry(ctx context.Context, listingID string, buyer *domain.User, amount float64, attempts int) (*BuyResult, error) {
	var lastErr error
	for i := 0; i < attempts; i++ {
		result, err := s.Buy(ctx, listingID, buyer, amount)
		if err == nil {
			return result, nil
		}
		if !errors.Is(err, ErrListingChanged) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}
