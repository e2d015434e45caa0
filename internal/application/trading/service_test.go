package trading

import (
	"context"
	"sync"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	listsvc "tessera-backend/internal/application/listings"
	portsvc "tessera-backend/internal/application/portfolios"
	"tessera-backend/internal/domain"
	"tessera-backend/internal/pkg/apperr"
)

func setupTradingTest(t *testing.T) (*Service, *listsvc.Service, *gorm.DB) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// A single connection keeps the in-memory database shared and
	// serializes transactions.
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(
		&domain.User{}, &domain.Project{}, &domain.Listing{},
		&domain.ListingEvent{}, &domain.Portfolio{}, &domain.PortfolioToken{},
	))
	return &Service{DB: db}, &listsvc.Service{DB: db}, db
}

func newUser(t *testing.T, db *gorm.DB, name string) *domain.User {
	u := &domain.User{Name: name, Email: name + "@example.com", PasswordHash: "x", UserType: domain.UserTypeInvestor, IsActive: true}
	require.NoError(t, db.Create(u).Error)
	return u
}

func newProject(t *testing.T, db *gorm.DB) *domain.Project {
	dev := newUser(t, db, "dev-"+uuid.NewString()[:8])
	p := &domain.Project{
		Title: "Harbourfront Residences", TokenTicker: "HBR", TokenSupply: 10000,
		DeveloperID: dev.UserID, DeveloperName: dev.Name, Location: "Lagos",
		FundingGoal: 500000, Apy: 12, TermMonths: 24,
		Description: "Waterfront apartments", Status: domain.ProjectStatusActive,
	}
	require.NoError(t, db.Create(p).Error)
	return p
}

func seedHeld(t *testing.T, db *gorm.DB, userID uuid.UUID, tokenID string, projectID uuid.UUID, amount float64) {
	p, err := portsvc.GetOrCreate(db, userID)
	require.NoError(t, err)
	require.NoError(t, db.Create(&domain.PortfolioToken{
		PortfolioID: p.PortfolioID, TokenID: tokenID, ProjectID: projectID,
		Type: domain.TokenTypeSecurity, Amount: amount, OwnerID: userID,
		Status: domain.TokenStatusHeld,
	}).Error)
}

func mustList(t *testing.T, ls *listsvc.Service, seller *domain.User, tokenID string, projectID uuid.UUID, amount, price float64) *domain.ListingView {
	view, err := ls.Create(context.Background(), seller, listsvc.CreateInput{
		TokenID: tokenID, ProjectID: projectID, Amount: amount, Price: price,
	})
	require.NoError(t, err)
	return view
}

func portfolioTokens(t *testing.T, db *gorm.DB, userID uuid.UUID) []domain.PortfolioToken {
	p, err := portsvc.GetOrCreate(db, userID)
	require.NoError(t, err)
	var tokens []domain.PortfolioToken
	require.NoError(t, db.Where("portfolio_id = ?", p.PortfolioID).Find(&tokens).Error)
	return tokens
}

func TestBuy_PartialFill(t *testing.T) {
	svc, ls, db := setupTradingTest(t)
	project := newProject(t, db)
	seller := newUser(t, db, "seller")
	buyer := newUser(t, db, "buyer")
	seedHeld(t, db, seller.UserID, "token-hbr-1", project.ProjectID, 100)
	listing := mustList(t, ls, seller, "token-hbr-1", project.ProjectID, 100, 500)

	result, err := svc.Buy(context.Background(), listing.ListingID, buyer, 40)
	require.NoError(t, err)

	assert.Equal(t, "Token purchase successful", result.Message)
	assert.Equal(t, 40.0, result.PurchasedAmount)
	assert.Equal(t, 60.0, result.Listing.Amount)
	assert.Equal(t, domain.ListingStatusActive, result.Listing.Status)
	assert.Nil(t, result.Listing.SoldAt)
	require.NotNil(t, result.Listing.Buyer)
	assert.Equal(t, buyer.UserID, result.Listing.Buyer.ID)

	// Seller: listed entry reduced to 60.
	sellerTokens := portfolioTokens(t, db, seller.UserID)
	require.Len(t, sellerTokens, 1)
	assert.Equal(t, domain.TokenStatusListed, sellerTokens[0].Status)
	assert.Equal(t, 60.0, sellerTokens[0].Amount)

	// Buyer: new held entry for 40 at the proportional share of the price.
	buyerTokens := portfolioTokens(t, db, buyer.UserID)
	require.Len(t, buyerTokens, 1)
	assert.Equal(t, domain.TokenStatusHeld, buyerTokens[0].Status)
	assert.Equal(t, 40.0, buyerTokens[0].Amount)
	require.NotNil(t, buyerTokens[0].PurchasePrice)
	assert.Equal(t, 200.0, *buyerTokens[0].PurchasePrice)
	require.NotNil(t, buyerTokens[0].PurchaseDate)

	// Listing price drops by the sold fraction, keeping the unit price.
	assert.Equal(t, 300.0, result.Listing.Price)
}

func TestBuy_SequentialFillsSumToListingPrice(t *testing.T) {
	svc, ls, db := setupTradingTest(t)
	project := newProject(t, db)
	seller := newUser(t, db, "seller")
	first := newUser(t, db, "first-buyer")
	second := newUser(t, db, "second-buyer")
	seedHeld(t, db, seller.UserID, "token-hbr-1", project.ProjectID, 100)
	listing := mustList(t, ls, seller, "token-hbr-1", project.ProjectID, 100, 500)

	r1, err := svc.Buy(context.Background(), listing.ListingID, first, 40)
	require.NoError(t, err)
	assert.Equal(t, 300.0, r1.Listing.Price)

	r2, err := svc.Buy(context.Background(), listing.ListingID, second, 60)
	require.NoError(t, err)
	assert.Equal(t, domain.ListingStatusSold, r2.Listing.Status)

	firstTokens := portfolioTokens(t, db, first.UserID)
	require.Len(t, firstTokens, 1)
	require.NotNil(t, firstTokens[0].PurchasePrice)
	secondTokens := portfolioTokens(t, db, second.UserID)
	require.Len(t, secondTokens, 1)
	require.NotNil(t, secondTokens[0].PurchasePrice)

	// 500 split 40/60: no buyer pays for more than they got.
	assert.Equal(t, 200.0, *firstTokens[0].PurchasePrice)
	assert.Equal(t, 300.0, *secondTokens[0].PurchasePrice)
	assert.Equal(t, 500.0, *firstTokens[0].PurchasePrice+*secondTokens[0].PurchasePrice)
}

func TestBuy_FullFillAfterPartial(t *testing.T) {
	svc, ls, db := setupTradingTest(t)
	project := newProject(t, db)
	seller := newUser(t, db, "seller")
	buyer := newUser(t, db, "buyer")
	seedHeld(t, db, seller.UserID, "token-hbr-1", project.ProjectID, 100)
	listing := mustList(t, ls, seller, "token-hbr-1", project.ProjectID, 100, 500)

	first, err := svc.Buy(context.Background(), listing.ListingID, buyer, 40)
	require.NoError(t, err)
	assert.Equal(t, domain.ListingStatusActive, first.Listing.Status)
	assert.Nil(t, first.Listing.SoldAt)

	second, err := svc.Buy(context.Background(), listing.ListingID, buyer, 60)
	require.NoError(t, err)
	assert.Equal(t, domain.ListingStatusSold, second.Listing.Status)
	assert.Equal(t, 0.0, second.Listing.Amount)
	require.NotNil(t, second.Listing.SoldAt)

	// Seller's listed entry is gone, never kept at zero.
	sellerTokens := portfolioTokens(t, db, seller.UserID)
	assert.Empty(t, sellerTokens)

	// Buyer holds the full 100 in one entry.
	buyerTokens := portfolioTokens(t, db, buyer.UserID)
	require.Len(t, buyerTokens, 1)
	assert.Equal(t, 100.0, buyerTokens[0].Amount)
}

func TestBuy_Oversell(t *testing.T) {
	svc, ls, db := setupTradingTest(t)
	project := newProject(t, db)
	seller := newUser(t, db, "seller")
	buyer := newUser(t, db, "buyer")
	seedHeld(t, db, seller.UserID, "token-hbr-1", project.ProjectID, 100)
	listing := mustList(t, ls, seller, "token-hbr-1", project.ProjectID, 100, 500)

	_, err := svc.Buy(context.Background(), listing.ListingID, buyer, 150)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindConflict))

	// Listing unchanged.
	var l domain.Listing
	require.NoError(t, db.Where("listing_id = ?", listing.ListingID).First(&l).Error)
	assert.Equal(t, 100.0, l.Amount)
	assert.Equal(t, domain.ListingStatusActive, l.Status)
	assert.Empty(t, portfolioTokens(t, db, buyer.UserID))
}

func TestBuy_SelfTrade(t *testing.T) {
	svc, ls, db := setupTradingTest(t)
	project := newProject(t, db)
	seller := newUser(t, db, "seller")
	seedHeld(t, db, seller.UserID, "token-hbr-1", project.ProjectID, 100)
	listing := mustList(t, ls, seller, "token-hbr-1", project.ProjectID, 100, 500)

	_, err := svc.Buy(context.Background(), listing.ListingID, seller, 10)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindForbidden))

	var l domain.Listing
	require.NoError(t, db.Where("listing_id = ?", listing.ListingID).First(&l).Error)
	assert.Equal(t, 100.0, l.Amount)
}

func TestBuy_NotFound(t *testing.T) {
	svc, _, db := setupTradingTest(t)
	buyer := newUser(t, db, "buyer")

	_, err := svc.Buy(context.Background(), "listing-0-missing", buyer, 10)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

func TestBuy_InactiveListing(t *testing.T) {
	svc, ls, db := setupTradingTest(t)
	project := newProject(t, db)
	seller := newUser(t, db, "seller")
	buyer := newUser(t, db, "buyer")
	seedHeld(t, db, seller.UserID, "token-hbr-1", project.ProjectID, 100)
	listing := mustList(t, ls, seller, "token-hbr-1", project.ProjectID, 100, 500)
	require.NoError(t, ls.Cancel(context.Background(), listing.ListingID, seller.UserID, false))

	_, err := svc.Buy(context.Background(), listing.ListingID, buyer, 10)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindConflict))
}

func TestBuy_InvalidAmount(t *testing.T) {
	svc, ls, db := setupTradingTest(t)
	project := newProject(t, db)
	seller := newUser(t, db, "seller")
	buyer := newUser(t, db, "buyer")
	seedHeld(t, db, seller.UserID, "token-hbr-1", project.ProjectID, 100)
	listing := mustList(t, ls, seller, "token-hbr-1", project.ProjectID, 100, 500)

	_, err := svc.Buy(context.Background(), listing.ListingID, buyer, 0)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))

	_, err = svc.Buy(context.Background(), listing.ListingID, buyer, -5)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}

func TestBuy_ConcurrentNeverOverdraws(t *testing.T) {
	svc, ls, db := setupTradingTest(t)
	project := newProject(t, db)
	seller := newUser(t, db, "seller")
	seedHeld(t, db, seller.UserID, "token-hbr-1", project.ProjectID, 100)
	listing := mustList(t, ls, seller, "token-hbr-1", project.ProjectID, 100, 500)

	buyers := make([]*domain.User, 10)
	for i := range buyers {
		buyers[i] = newUser(t, db, "buyer-"+uuid.NewString()[:8])
	}

	var mu sync.Mutex
	var settled float64
	var g errgroup.Group
	for i := range buyers {
		buyer := buyers[i]
		g.Go(func() error {
			result, err := svc.Buy(context.Background(), listing.ListingID, buyer, 20)
			if err != nil {
				// Losers must fail with a retryable conflict, never
				// settle against stale state.
				if !apperr.IsKind(err, apperr.KindConflict) {
					return err
				}
				return nil
			}
			mu.Lock()
			settled += result.PurchasedAmount
			mu.Unlock()
			return nil
		})
	}
	require.NoError(t, g.Wait())

	// Exactly enough buys succeed to exhaust the listing.
	assert.Equal(t, 100.0, settled)

	var l domain.Listing
	require.NoError(t, db.Where("listing_id = ?", listing.ListingID).First(&l).Error)
	assert.Equal(t, 0.0, l.Amount)
	assert.Equal(t, domain.ListingStatusSold, l.Status)
	assert.Empty(t, portfolioTokens(t, db, seller.UserID))
}

func TestBuy_RacingEditNeverAppliesStaleAmount(t *testing.T) {
	svc, ls, db := setupTradingTest(t)
	project := newProject(t, db)

	for i := 0; i < 25; i++ {
		seller := newUser(t, db, "seller-"+uuid.NewString()[:8])
		buyer := newUser(t, db, "buyer-"+uuid.NewString()[:8])
		seedHeld(t, db, seller.UserID, "token-hbr-1", project.ProjectID, 100)
		listing := mustList(t, ls, seller, "token-hbr-1", project.ProjectID, 100, 500)

		var g errgroup.Group
		g.Go(func() error {
			_, err := svc.Buy(context.Background(), listing.ListingID, buyer, 40)
			if err != nil && !apperr.IsKind(err, apperr.KindConflict) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			fifty := 50.0
			_, err := ls.Update(context.Background(), listing.ListingID, seller.UserID, false, listsvc.UpdateInput{Amount: &fifty})
			// An edit computed from a snapshot a fill beat must lose with
			// a retryable conflict; reserve shortfalls surface as
			// validation. Either way it must not land.
			if err != nil && !apperr.IsKind(err, apperr.KindConflict) && !apperr.IsKind(err, apperr.KindValidation) {
				return err
			}
			return nil
		})
		require.NoError(t, g.Wait())

		// Whatever interleaving happened, the listing never advertises
		// more than the seller's listed backing.
		var l domain.Listing
		require.NoError(t, db.Where("listing_id = ?", listing.ListingID).First(&l).Error)
		var backing float64
		require.NoError(t, db.Model(&domain.PortfolioToken{}).
			Where("owner_id = ? AND token_id = ? AND status = ?", seller.UserID, "token-hbr-1", domain.TokenStatusListed).
			Select("COALESCE(SUM(amount), 0)").Scan(&backing).Error)
		if l.Status == domain.ListingStatusActive {
			assert.Equal(t, l.Amount, backing, "iteration %d: listing advertises %v but backing is %v", i, l.Amount, backing)
		} else {
			assert.Equal(t, 0.0, l.Amount, "iteration %d", i)
			assert.Equal(t, 0.0, backing, "iteration %d", i)
		}
	}
}

func TestBuyWithRetry_StopsOnTerminalError(t *testing.T) {
	svc, ls, db := setupTradingTest(t)
	project := newProject(t, db)
	seller := newUser(t, db, "seller")
	seedHeld(t, db, seller.UserID, "token-hbr-1", project.ProjectID, 100)
	listing := mustList(t, ls, seller, "token-hbr-1", project.ProjectID, 100, 500)

	_, err := svc.BuyWithRetry(context.Background(), listing.ListingID, seller, 10, 3)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindForbidden))
}
