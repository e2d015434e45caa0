package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Token types: SECURITY tokens come from primary issuance, MARKET tokens
// were acquired on the secondary market.
const (
	TokenTypeSecurity = "SECURITY"
	TokenTypeMarket   = "MARKET"
)

// Portfolio token statuses. A listed entry backs an active listing; the
// listed amount for a token never exceeds what the user has on offer.
const (
	TokenStatusHeld   = "held"
	TokenStatusListed = "listed"
	TokenStatusSold   = "sold"
)

// Portfolio is a user's collection of token holdings. One per user,
// created lazily on first access. TotalValue is denormalized and
// caller-supplied; it is not recomputed on mutation.
type Portfolio struct {
	PortfolioID uuid.UUID `gorm:"column:portfolio_id;type:uuid;primaryKey" json:"id"`
	UserID      uuid.UUID `gorm:"column:user_id;type:uuid;not null;uniqueIndex" json:"userId"`
	TotalValue  float64   `gorm:"column:total_value;type:decimal(18,2);not null;default:0" json:"totalValue"`
	CreatedAt   time.Time `gorm:"column:createdAt" json:"createdAt"`
	UpdatedAt   time.Time `gorm:"column:updatedAt" json:"updatedAt"`

	Tokens []PortfolioToken `gorm:"foreignKey:PortfolioID;references:PortfolioID" json:"tokens"`
}

func (Portfolio) TableName() string {
	return "Portfolios"
}

// BeforeCreate sets portfolio_id for DBs without default uuid.
func (p *Portfolio) BeforeCreate(tx *gorm.DB) error {
	if p.PortfolioID == uuid.Nil {
		p.PortfolioID = uuid.New()
	}
	return nil
}

// PortfolioToken is one holding entry. Entries are decremented on sale and
// deleted when the amount reaches exactly zero; zero-amount rows are never
// retained.
type PortfolioToken struct {
	EntryID         uuid.UUID  `gorm:"column:entry_id;type:uuid;primaryKey" json:"entryId"`
	PortfolioID     uuid.UUID  `gorm:"column:portfolio_id;type:uuid;not null;index" json:"-"`
	TokenID         string     `gorm:"column:token_id;not null;index" json:"tokenId"`
	ProjectID       uuid.UUID  `gorm:"column:project_id;type:uuid;not null" json:"projectId"`
	Type            string     `gorm:"column:type;type:varchar(10);not null" json:"type"`
	Amount          float64    `gorm:"column:amount;type:decimal(18,2);not null" json:"amount"`
	OriginalOwnerID *uuid.UUID `gorm:"column:original_owner_id;type:uuid" json:"originalOwnerId,omitempty"`
	OwnerID         uuid.UUID  `gorm:"column:owner_id;type:uuid;not null" json:"ownerId"`
	Status          string     `gorm:"column:status;type:varchar(10);not null;default:held" json:"status"`
	LastApyClaim    *time.Time `gorm:"column:last_apy_claim" json:"lastApyClaimDate,omitempty"`
	PurchasePrice   *float64   `gorm:"column:purchase_price;type:decimal(18,2)" json:"purchasePrice,omitempty"`
	PurchaseDate    *time.Time `gorm:"column:purchase_date" json:"purchaseDate,omitempty"`
	CreatedAt       time.Time  `gorm:"column:createdAt" json:"createdAt"`
	UpdatedAt       time.Time  `gorm:"column:updatedAt" json:"updatedAt"`
}

func (PortfolioToken) TableName() string {
	return "PortfolioTokens"
}

// BeforeCreate sets entry_id for DBs without default uuid.
func (t *PortfolioToken) BeforeCreate(tx *gorm.DB) error {
	if t.EntryID == uuid.Nil {
		t.EntryID = uuid.New()
	}
	return nil
}

// PortfolioView is a portfolio with project summaries expanded per entry.
type PortfolioView struct {
	Portfolio
	User     *UserSummary              `json:"user,omitempty"`
	Projects map[string]ProjectSummary `json:"projects,omitempty"`
}
