package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Listing statuses. A listing never leaves a terminal status.
const (
	ListingStatusActive    = "active"
	ListingStatusSold      = "sold"
	ListingStatusCancelled = "cancelled"
)

// Listing is a seller's standing offer to sell a quantity of a project's
// tokens at a fixed total price. ListingID is the public identifier and is
// distinct from the storage row id.
type Listing struct {
	ID        uuid.UUID  `gorm:"column:id;type:uuid;primaryKey" json:"-"`
	ListingID string     `gorm:"column:listing_id;not null;uniqueIndex" json:"listingId"`
	TokenID   string     `gorm:"column:token_id;not null" json:"tokenId"`
	SellerID  uuid.UUID  `gorm:"column:seller_id;type:uuid;not null;index" json:"sellerId"`
	ProjectID uuid.UUID  `gorm:"column:project_id;type:uuid;not null" json:"projectId"`
	TokenType string     `gorm:"column:token_type;type:varchar(10);not null;default:SECURITY" json:"tokenType"`
	Amount    float64    `gorm:"column:amount;type:decimal(18,2);not null" json:"amount"`
	Price     float64    `gorm:"column:price;type:decimal(18,2);not null" json:"price"`
	Status    string     `gorm:"column:status;type:varchar(20);not null;default:active" json:"status"`
	BuyerID   *uuid.UUID `gorm:"column:buyer_id;type:uuid" json:"buyerId,omitempty"`
	SoldAt    *time.Time `gorm:"column:sold_at" json:"soldAt,omitempty"`
	CreatedAt time.Time  `gorm:"column:createdAt" json:"createdAt"`
	UpdatedAt time.Time  `gorm:"column:updatedAt" json:"updatedAt"`
}

func (Listing) TableName() string {
	return "MarketListings"
}

// BeforeCreate sets the row id for DBs without default uuid.
func (l *Listing) BeforeCreate(tx *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}

// NewListingID generates the public listing identifier: millisecond
// timestamp plus a random suffix, collision probability negligible.
func NewListingID() string {
	suffix := strings.SplitN(uuid.NewString(), "-", 2)[0]
	return fmt.Sprintf("listing-%d-%s", time.Now().UnixMilli(), suffix)
}

// ListingView is a listing with seller, buyer and project expanded for API
// responses.
type ListingView struct {
	Listing
	Seller  *UserSummary    `json:"seller,omitempty"`
	Buyer   *UserSummary    `json:"buyer,omitempty"`
	Project *ProjectSummary `json:"project,omitempty"`
}
