package portfolios

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"tessera-backend/internal/domain"
	"tessera-backend/internal/pkg/apperr"
)

// Service is the portfolio store: one portfolio per user, token entries
// mutated by the marketplace and by the portfolio endpoints.
type Service struct {
	DB *gorm.DB
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// GetOrCreate returns the user's portfolio, creating an empty one on
// first access. Safe under concurrent first access: the unique index on
// user_id makes the second insert fail, and the loser re-reads.
func GetOrCreate(tx *gorm.DB, userID uuid.UUID) (*domain.Portfolio, error) {
	var p domain.Portfolio
	err := tx.Where("user_id = ?", userID).First(&p).Error
	if err == nil {
		return &p, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	p = domain.Portfolio{UserID: userID, TotalValue: 0}
	if createErr := tx.Create(&p).Error; createErr != nil {
		// Lost the creation race; the winner's row is the portfolio.
		if readErr := tx.Where("user_id = ?", userID).First(&p).Error; readErr != nil {
			return nil, createErr
		}
	}
	return &p, nil
}

// GetOrCreateView returns the user's portfolio with entries and project
// summaries expanded.
func (s *Service) GetOrCreateView(ctx context.Context, userID uuid.UUID) (*domain.PortfolioView, error) {
	db := s.DB.WithContext(ctx)
	p, err := GetOrCreate(db, userID)
	if err != nil {
		return nil, err
	}
	return s.expand(ctx, p, false)
}

// GetByUser returns an existing portfolio; NotFound if the user has none.
func (s *Service) GetByUser(ctx context.Context, userID uuid.UUID) (*domain.PortfolioView, error) {
	var p domain.Portfolio
	if err := s.DB.WithContext(ctx).Where("user_id = ?", userID).First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("Portfolio not found")
		}
		return nil, err
	}
	return s.expand(ctx, &p, false)
}

// ListAll returns every portfolio with its owner expanded, newest first.
func (s *Service) ListAll(ctx context.Context) ([]domain.PortfolioView, error) {
	var ps []domain.Portfolio
	if err := s.DB.WithContext(ctx).Order(`"createdAt" DESC`).Find(&ps).Error; err != nil {
		return nil, err
	}
	out := make([]domain.PortfolioView, 0, len(ps))
	for i := range ps {
		view, err := s.expand(ctx, &ps[i], true)
		if err != nil {
			return nil, err
		}
		out = append(out, *view)
	}
	return out, nil
}

// UpdateInput is the allow-listed set for PUT /portfolios/me. Tokens, when
// supplied, replace the collection wholesale.
type UpdateInput struct {
	Tokens     *[]TokenInput `json:"tokens"`
	TotalValue *float64      `json:"totalValue"`
}

// TokenInput is an entry supplied by the client.
type TokenInput struct {
	TokenID          string     `json:"tokenId"`
	ProjectID        uuid.UUID  `json:"projectId"`
	Type             string     `json:"type"`
	Amount           float64    `json:"amount"`
	OriginalOwnerID  *uuid.UUID `json:"originalOwnerId"`
	LastApyClaimDate *time.Time `json:"lastApyClaimDate"`
	PurchasePrice    *float64   `json:"purchasePrice"`
	PurchaseDate     *time.Time `json:"purchaseDate"`
}

func (in *TokenInput) validate() error {
	if in.TokenID == "" || in.ProjectID == uuid.Nil {
		return apperr.Validation("tokenId and projectId are required")
	}
	if in.Type != domain.TokenTypeSecurity && in.Type != domain.TokenTypeMarket {
		return apperr.Validation("Invalid token type")
	}
	if in.Amount <= 0 {
		return apperr.Validation("Amount must be a positive number")
	}
	return nil
}

// Update applies an allow-listed partial update to the caller's own
// portfolio, creating it if absent.
func (s *Service) Update(ctx context.Context, userID uuid.UUID, in UpdateInput) (*domain.PortfolioView, error) {
	if in.TotalValue != nil && *in.TotalValue < 0 {
		return nil, apperr.Validation("totalValue must not be negative")
	}
	if in.Tokens != nil {
		for i := range *in.Tokens {
			if err := (*in.Tokens)[i].validate(); err != nil {
				return nil, err
			}
		}
	}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		p, err := GetOrCreate(tx, userID)
		if err != nil {
			return err
		}
		if in.TotalValue != nil {
			if err := tx.Model(p).Update("total_value", round2(*in.TotalValue)).Error; err != nil {
				return err
			}
		}
		if in.Tokens != nil {
			// Listed entries back active listings; replacing them would
			// leave listings without tokens behind them.
			var listed int64
			if err := tx.Model(&domain.PortfolioToken{}).
				Where("portfolio_id = ? AND status = ?", p.PortfolioID, domain.TokenStatusListed).
				Count(&listed).Error; err != nil {
				return err
			}
			if listed > 0 {
				return apperr.Conflict("Portfolio has tokens listed on the market; cancel the listings first")
			}
			if err := tx.Where("portfolio_id = ?", p.PortfolioID).Delete(&domain.PortfolioToken{}).Error; err != nil {
				return err
			}
			for _, t := range *in.Tokens {
				entry := domain.PortfolioToken{
					PortfolioID:     p.PortfolioID,
					TokenID:         t.TokenID,
					ProjectID:       t.ProjectID,
					Type:            t.Type,
					Amount:          round2(t.Amount),
					OriginalOwnerID: t.OriginalOwnerID,
					OwnerID:         userID,
					Status:          domain.TokenStatusHeld,
					LastApyClaim:    t.LastApyClaimDate,
					PurchasePrice:   t.PurchasePrice,
					PurchaseDate:    t.PurchaseDate,
				}
				if err := tx.Create(&entry).Error; err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetOrCreateView(ctx, userID)
}

// AddToken appends a held entry to the caller's portfolio, or increments
// an existing held entry for the same token.
func (s *Service) AddToken(ctx context.Context, userID uuid.UUID, in TokenInput) (*domain.PortfolioView, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		p, err := GetOrCreate(tx, userID)
		if err != nil {
			return err
		}
		return creditEntry(tx, p, userID, creditInput{
			TokenID:         in.TokenID,
			ProjectID:       in.ProjectID,
			Type:            in.Type,
			Amount:          in.Amount,
			OriginalOwnerID: in.OriginalOwnerID,
			LastApyClaim:    in.LastApyClaimDate,
			PurchasePrice:   in.PurchasePrice,
			PurchaseDate:    in.PurchaseDate,
		})
	})
	if err != nil {
		return nil, err
	}
	return s.GetOrCreateView(ctx, userID)
}

// RemoveToken removes tokenId from the caller's portfolio: every entry
// when amount is nil, otherwise a decrement of the held entry. A
// decrement past the held balance is a validation error, never a clamp;
// an entry that reaches exactly zero is deleted. Listed entries back
// active listings and cannot be removed here.
func (s *Service) RemoveToken(ctx context.Context, userID uuid.UUID, tokenID string, amount *float64) (*domain.PortfolioView, error) {
	if amount != nil && (*amount <= 0 || math.IsNaN(*amount)) {
		return nil, apperr.Validation("Amount must be a positive number")
	}
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var p domain.Portfolio
		if err := tx.Where("user_id = ?", userID).First(&p).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("Portfolio not found")
			}
			return err
		}
		var listed int64
		if err := tx.Model(&domain.PortfolioToken{}).
			Where("portfolio_id = ? AND token_id = ? AND status = ?", p.PortfolioID, tokenID, domain.TokenStatusListed).
			Count(&listed).Error; err != nil {
			return err
		}
		if listed > 0 {
			return apperr.Conflict("Token is listed on the market; cancel the listing first")
		}

		if amount == nil {
			res := tx.Where("portfolio_id = ? AND token_id = ?", p.PortfolioID, tokenID).Delete(&domain.PortfolioToken{})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return apperr.NotFound("Token not found in portfolio")
			}
			return nil
		}

		var held domain.PortfolioToken
		if err := tx.Where("portfolio_id = ? AND token_id = ? AND status = ?",
			p.PortfolioID, tokenID, domain.TokenStatusHeld).First(&held).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("Token not found in portfolio")
			}
			return err
		}
		if *amount > held.Amount {
			return apperr.Validation("Cannot remove more tokens than held")
		}
		return debitEntry(tx, &held, *amount, apperr.Validation("Cannot remove more tokens than held"))
	})
	if err != nil {
		return nil, err
	}
	return s.GetOrCreateView(ctx, userID)
}

func (s *Service) expand(ctx context.Context, p *domain.Portfolio, withUser bool) (*domain.PortfolioView, error) {
	var tokens []domain.PortfolioToken
	if err := s.DB.WithContext(ctx).Where("portfolio_id = ?", p.PortfolioID).Order(`"createdAt" ASC`).Find(&tokens).Error; err != nil {
		return nil, err
	}
	p.Tokens = tokens

	view := &domain.PortfolioView{Portfolio: *p}

	seen := map[uuid.UUID]bool{}
	projects := map[string]domain.ProjectSummary{}
	for _, t := range tokens {
		if seen[t.ProjectID] {
			continue
		}
		seen[t.ProjectID] = true
		var project domain.Project
		if err := s.DB.WithContext(ctx).Where("project_id = ?", t.ProjectID).First(&project).Error; err == nil {
			projects[t.ProjectID.String()] = project.Summary()
		}
	}
	if len(projects) > 0 {
		view.Projects = projects
	}

	if withUser {
		var u domain.User
		if err := s.DB.WithContext(ctx).Where("user_id = ?", p.UserID).First(&u).Error; err == nil {
			summary := u.Summary()
			view.User = &summary
		}
	}
	return view, nil
}
