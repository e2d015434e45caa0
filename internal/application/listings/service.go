package listings

import (
	"context"
	"encoding/json"
	"errors"
	"math"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"tessera-backend/internal/application/portfolios"
	"tessera-backend/internal/domain"
	"tessera-backend/internal/pkg/apperr"
)

// Service is the listing lifecycle manager: create, edit, cancel and read
// secondary-market listings, keeping the seller's held/listed holdings in
// step with every change.
type Service struct {
	DB *gorm.DB
}

// CreateInput for a new listing.
type CreateInput struct {
	TokenID   string    `json:"tokenId"`
	ProjectID uuid.UUID `json:"projectId"`
	Amount    float64   `json:"amount"`
	Price     float64   `json:"price"`
}

// Create posts a new active listing. The seller must hold at least the
// listed amount of the token; the held entry is moved to listed in the
// same transaction.
func (s *Service) Create(ctx context.Context, seller *domain.User, in CreateInput) (*domain.ListingView, error) {
	if in.TokenID == "" || in.ProjectID == uuid.Nil {
		return nil, apperr.Validation("All fields are required")
	}
	if in.Amount <= 0 || math.IsNaN(in.Amount) {
		return nil, apperr.Validation("Amount must be a positive number")
	}
	if in.Price < 0 || math.IsNaN(in.Price) {
		return nil, apperr.Validation("Price must not be negative")
	}

	var project domain.Project
	if err := s.DB.WithContext(ctx).Where("project_id = ?", in.ProjectID).First(&project).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("Project not found")
		}
		return nil, err
	}

	listing := &domain.Listing{
		ListingID: domain.NewListingID(),
		TokenID:   in.TokenID,
		SellerID:  seller.UserID,
		ProjectID: in.ProjectID,
		Amount:    in.Amount,
		Price:     in.Price,
		Status:    domain.ListingStatusActive,
	}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		held, err := portfolios.ReserveForListing(tx, seller.UserID, in.TokenID, in.Amount)
		if err != nil {
			return err
		}
		if held.ProjectID != in.ProjectID {
			return apperr.Validation("Token does not belong to this project")
		}
		listing.TokenType = held.Type
		if err := tx.Create(listing).Error; err != nil {
			return err
		}
		return recordEvent(tx, listing.ID, domain.ListingEventCreated, &seller.UserID, map[string]interface{}{
			"amount": listing.Amount,
			"price":  listing.Price,
		})
	})
	if err != nil {
		return nil, err
	}
	return ExpandView(ctx, s.DB, *listing)
}

// UpdateInput is the allow-listed field set for listing edits. Status may
// only move an active listing to cancelled here; sold is reserved for
// settlement.
type UpdateInput struct {
	Amount *float64 `json:"amount"`
	Price  *float64 `json:"price"`
	Status *string  `json:"status"`
}

// Update applies a partial edit. Only the seller or an admin may edit;
// amount changes re-balance the seller's held/listed entries.
func (s *Service) Update(ctx context.Context, listingID string, actorID uuid.UUID, isAdmin bool, in UpdateInput) (*domain.ListingView, error) {
	var listing domain.Listing
	if err := s.DB.WithContext(ctx).Where("listing_id = ?", listingID).First(&listing).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("Market listing not found")
		}
		return nil, err
	}
	if listing.SellerID != actorID && !isAdmin {
		return nil, apperr.Forbidden("Access denied")
	}
	if listing.Status != domain.ListingStatusActive {
		return nil, apperr.Conflict("Listing is not active")
	}

	updates := map[string]interface{}{}
	eventData := map[string]interface{}{}
	var amountDelta float64

	if in.Price != nil {
		price := *in.Price
		if price < 0 || math.IsNaN(price) {
			return nil, apperr.Validation("Price must not be negative")
		}
		updates["price"] = price
		eventData["new_price"] = price
	}
	if in.Amount != nil {
		amount := *in.Amount
		if amount <= 0 || math.IsNaN(amount) {
			return nil, apperr.Validation("Amount must be a positive number")
		}
		amountDelta = amount - listing.Amount
		updates["amount"] = amount
		eventData["new_amount"] = amount
	}
	cancelling := false
	if in.Status != nil {
		if *in.Status != domain.ListingStatusCancelled {
			return nil, apperr.Validation("Status may only be set to cancelled")
		}
		cancelling = true
		updates["status"] = domain.ListingStatusCancelled
		eventData["new_status"] = domain.ListingStatusCancelled
	}
	if len(updates) == 0 {
		return nil, apperr.Validation("No valid changes provided")
	}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if amountDelta > 0 {
			if _, err := portfolios.ReserveForListing(tx, listing.SellerID, listing.TokenID, amountDelta); err != nil {
				return err
			}
		} else if amountDelta < 0 {
			if err := portfolios.ReleaseListed(tx, listing.SellerID, listing.TokenID, -amountDelta); err != nil {
				return err
			}
		}
		if cancelling {
			remaining := listing.Amount
			if amount, ok := updates["amount"].(float64); ok {
				remaining = amount
			}
			if err := portfolios.ReleaseListed(tx, listing.SellerID, listing.TokenID, remaining); err != nil {
				return err
			}
		}
		// Guard on status and the amount this edit was computed from, so
		// a fill that landed after the read cannot be overwritten with
		// stale absolutes.
		res := tx.Model(&domain.Listing{}).
			Where("id = ? AND status = ? AND amount = ?", listing.ID, domain.ListingStatusActive, listing.Amount).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperr.Conflict("Listing changed, retry")
		}
		return recordEvent(tx, listing.ID, domain.ListingEventUpdated, &actorID, eventData)
	})
	if err != nil {
		return nil, err
	}
	if err := s.DB.WithContext(ctx).Where("id = ?", listing.ID).First(&listing).Error; err != nil {
		return nil, err
	}
	return ExpandView(ctx, s.DB, listing)
}

// Cancel moves an active listing to the terminal cancelled status and
// returns the listed tokens to held. The row is kept for audit history.
func (s *Service) Cancel(ctx context.Context, listingID string, actorID uuid.UUID, isAdmin bool) error {
	var listing domain.Listing
	if err := s.DB.WithContext(ctx).Where("listing_id = ?", listingID).First(&listing).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.NotFound("Market listing not found")
		}
		return err
	}
	if listing.SellerID != actorID && !isAdmin {
		return apperr.Forbidden("Access denied")
	}
	if listing.Status != domain.ListingStatusActive {
		return apperr.Conflict("Listing is not active")
	}

	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Amount guard: the release below frees the amount read above, so
		// a fill that landed after the read must fail the guard instead.
		res := tx.Model(&domain.Listing{}).
			Where("id = ? AND status = ? AND amount = ?", listing.ID, domain.ListingStatusActive, listing.Amount).
			Update("status", domain.ListingStatusCancelled)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperr.Conflict("Listing changed, retry")
		}
		if err := portfolios.ReleaseListed(tx, listing.SellerID, listing.TokenID, listing.Amount); err != nil {
			return err
		}
		return recordEvent(tx, listing.ID, domain.ListingEventCancelled, &actorID, map[string]interface{}{
			"remaining_amount": listing.Amount,
		})
	})
}

// GetAll returns all listings, newest first, expanded.
func (s *Service) GetAll(ctx context.Context) ([]domain.ListingView, error) {
	var ls []domain.Listing
	if err := s.DB.WithContext(ctx).Order(`"createdAt" DESC`).Find(&ls).Error; err != nil {
		return nil, err
	}
	return s.expandAll(ctx, ls)
}

// GetByListingID returns one listing by its public id, expanded.
func (s *Service) GetByListingID(ctx context.Context, listingID string) (*domain.ListingView, error) {
	var listing domain.Listing
	if err := s.DB.WithContext(ctx).Where("listing_id = ?", listingID).First(&listing).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("Market listing not found")
		}
		return nil, err
	}
	return ExpandView(ctx, s.DB, listing)
}

// GetBySeller returns the seller's own listings, newest first, expanded.
func (s *Service) GetBySeller(ctx context.Context, sellerID uuid.UUID) ([]domain.ListingView, error) {
	var ls []domain.Listing
	if err := s.DB.WithContext(ctx).Where("seller_id = ?", sellerID).Order(`"createdAt" DESC`).Find(&ls).Error; err != nil {
		return nil, err
	}
	return s.expandAll(ctx, ls)
}

func (s *Service) expandAll(ctx context.Context, ls []domain.Listing) ([]domain.ListingView, error) {
	out := make([]domain.ListingView, 0, len(ls))
	for i := range ls {
		view, err := ExpandView(ctx, s.DB, ls[i])
		if err != nil {
			return nil, err
		}
		out = append(out, *view)
	}
	return out, nil
}

// ExpandView attaches seller, buyer and project summaries to a listing.
// Shared with settlement, which returns the filled listing expanded.
func ExpandView(ctx context.Context, db *gorm.DB, l domain.Listing) (*domain.ListingView, error) {
	view := &domain.ListingView{Listing: l}
	var seller domain.User
	if err := db.WithContext(ctx).Where("user_id = ?", l.SellerID).First(&seller).Error; err == nil {
		summary := seller.Summary()
		view.Seller = &summary
	}
	if l.BuyerID != nil {
		var buyer domain.User
		if err := db.WithContext(ctx).Where("user_id = ?", *l.BuyerID).First(&buyer).Error; err == nil {
			summary := buyer.Summary()
			view.Buyer = &summary
		}
	}
	var project domain.Project
	if err := db.WithContext(ctx).Where("project_id = ?", l.ProjectID).First(&project).Error; err == nil {
		summary := project.Summary()
		view.Project = &summary
	}
	return view, nil
}

// RecordEvent appends a lifecycle event for a listing inside tx.
func RecordEvent(tx *gorm.DB, listingRef uuid.UUID, eventType string, actor *uuid.UUID, data map[string]interface{}) error {
	return recordEvent(tx, listingRef, eventType, actor, data)
}

func recordEvent(tx *gorm.DB, listingRef uuid.UUID, eventType string, actor *uuid.UUID, data map[string]interface{}) error {
	payload, _ := json.Marshal(data)
	return tx.Create(&domain.ListingEvent{
		ListingRef:  listingRef,
		EventType:   eventType,
		ActorUserID: actor,
		EventData:   datatypes.JSON(payload),
	}).Error
}
