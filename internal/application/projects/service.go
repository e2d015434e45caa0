package projects

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"tessera-backend/internal/domain"
	"tessera-backend/internal/pkg/apperr"
)

// Service exposes project reads plus developer creation. The secondary
// market treats projects as read-mostly reference data.
type Service struct {
	DB *gorm.DB
}

// ProjectView is a project with its developer summary expanded.
type ProjectView struct {
	domain.Project
	Developer *domain.UserSummary `json:"developer,omitempty"`
}

// GetAll returns all projects, newest first, with developer expanded.
func (s *Service) GetAll(ctx context.Context) ([]ProjectView, error) {
	var projects []domain.Project
	if err := s.DB.WithContext(ctx).Order(`"createdAt" DESC`).Find(&projects).Error; err != nil {
		return nil, err
	}
	out := make([]ProjectView, 0, len(projects))
	for i := range projects {
		out = append(out, s.expand(ctx, projects[i]))
	}
	return out, nil
}

// GetByID returns one project with developer expanded.
func (s *Service) GetByID(ctx context.Context, projectID uuid.UUID) (*ProjectView, error) {
	var project domain.Project
	if err := s.DB.WithContext(ctx).Where("project_id = ?", projectID).First(&project).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("Project not found")
		}
		return nil, err
	}
	view := s.expand(ctx, project)
	return &view, nil
}

// CreateInput holds the developer-supplied project fields.
type CreateInput struct {
	Title       string  `json:"title"`
	TokenTicker string  `json:"tokenTicker"`
	TokenSupply float64 `json:"tokenSupply"`
	Location    string  `json:"location"`
	FundingGoal float64 `json:"fundingGoal"`
	Apy         float64 `json:"apy"`
	Term        int     `json:"term"`
	Description string  `json:"description"`
	ImageURL    *string `json:"imageUrl"`
}

// Create adds a pending project owned by the developer.
func (s *Service) Create(ctx context.Context, developer *domain.User, in CreateInput) (*domain.Project, error) {
	if in.Title == "" || in.TokenTicker == "" || in.Location == "" || in.Description == "" {
		return nil, apperr.Validation("All fields are required")
	}
	if in.TokenSupply <= 0 || in.FundingGoal <= 0 || in.Term <= 0 {
		return nil, apperr.Validation("Token supply, funding goal and term must be positive")
	}
	if in.Apy < 0 || in.Apy > 100 {
		return nil, apperr.Validation("APY must be between 0 and 100")
	}
	project := &domain.Project{
		Title:         in.Title,
		TokenTicker:   in.TokenTicker,
		TokenSupply:   in.TokenSupply,
		DeveloperID:   developer.UserID,
		DeveloperName: developer.Name,
		Location:      in.Location,
		FundingGoal:   in.FundingGoal,
		Apy:           in.Apy,
		TermMonths:    in.Term,
		Description:   in.Description,
		ImageURL:      in.ImageURL,
		Status:        domain.ProjectStatusPending,
	}
	if err := s.DB.WithContext(ctx).Create(project).Error; err != nil {
		return nil, err
	}
	return project, nil
}

func (s *Service) expand(ctx context.Context, p domain.Project) ProjectView {
	view := ProjectView{Project: p}
	var dev domain.User
	if err := s.DB.WithContext(ctx).Where("user_id = ?", p.DeveloperID).First(&dev).Error; err == nil {
		summary := dev.Summary()
		view.Developer = &summary
	}
	return view
}
