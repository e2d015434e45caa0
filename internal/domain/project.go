package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Project statuses follow the funding lifecycle; the secondary market only
// reads projects, it never mutates them.
const (
	ProjectStatusPending   = "pending"
	ProjectStatusActive    = "active"
	ProjectStatusFunded    = "funded"
	ProjectStatusCompleted = "completed"
	ProjectStatusCancelled = "cancelled"
)

// Project is a tokenized real-estate development. Tokens referenced by
// listings and portfolio entries are scoped to a project.
type Project struct {
	ProjectID       uuid.UUID      `gorm:"column:project_id;type:uuid;primaryKey" json:"id"`
	Title           string         `gorm:"column:title;not null" json:"title"`
	TokenTicker     string         `gorm:"column:token_ticker;type:varchar(8);not null" json:"tokenTicker"`
	TokenSupply     float64        `gorm:"column:token_supply;type:decimal(18,2);not null" json:"tokenSupply"`
	DeveloperID     uuid.UUID      `gorm:"column:developer_id;type:uuid;not null" json:"developerId"`
	DeveloperName   string         `gorm:"column:developer_name;not null" json:"developerName"`
	Location        string         `gorm:"column:location;not null" json:"location"`
	FundingGoal     float64        `gorm:"column:funding_goal;type:decimal(18,2);not null" json:"fundingGoal"`
	AmountRaised    float64        `gorm:"column:amount_raised;type:decimal(18,2);not null;default:0" json:"amountRaised"`
	Apy             float64        `gorm:"column:apy;type:decimal(5,2);not null" json:"apy"`
	TermMonths      int            `gorm:"column:term_months;not null" json:"term"`
	StartDate       *time.Time     `gorm:"column:start_date" json:"startDate,omitempty"`
	Description     string         `gorm:"column:description;not null" json:"description"`
	ImageURL        *string        `gorm:"column:image_url" json:"imageUrl,omitempty"`
	Images          datatypes.JSON `gorm:"column:images;type:json" json:"images"`
	Status          string         `gorm:"column:status;type:varchar(20);not null;default:pending" json:"status"`
	ContractAddress *string        `gorm:"column:contract_address;uniqueIndex" json:"contractAddress,omitempty"`
	Metadata        datatypes.JSON `gorm:"column:metadata;type:json" json:"metadata"`
	CreatedAt       time.Time      `gorm:"column:createdAt" json:"createdAt"`
	UpdatedAt       time.Time      `gorm:"column:updatedAt" json:"updatedAt"`
}

func (Project) TableName() string {
	return "Projects"
}

// BeforeCreate sets project_id for DBs without default uuid.
func (p *Project) BeforeCreate(tx *gorm.DB) error {
	if p.ProjectID == uuid.Nil {
		p.ProjectID = uuid.New()
	}
	return nil
}

// ProjectSummary is the projection embedded in listings and portfolios.
type ProjectSummary struct {
	ID          uuid.UUID `json:"id"`
	Title       string    `json:"title"`
	TokenTicker string    `json:"tokenTicker"`
	Apy         float64   `json:"apy"`
	Status      string    `json:"status"`
}

// Summary returns the public projection of a project.
func (p *Project) Summary() ProjectSummary {
	return ProjectSummary{
		ID:          p.ProjectID,
		Title:       p.Title,
		TokenTicker: p.TokenTicker,
		Apy:         p.Apy,
		Status:      p.Status,
	}
}
