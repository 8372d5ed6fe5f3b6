package service

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/bananaslides/deckwizard/internal/client"
	"github.com/bananaslides/deckwizard/internal/model"
)

// SettingsService passes system and brand settings through to the backend
type SettingsService struct {
	api client.SettingsAPI
}

func NewSettingsService(api client.SettingsAPI) *SettingsService {
	return &SettingsService{api: api}
}

func (s *SettingsService) Get(ctx context.Context) (*model.Settings, error) {
	settings, err := s.api.GetSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get settings: %w", err)
	}
	return settings, nil
}

func (s *SettingsService) Update(ctx context.Context, req *model.UpdateSettingsRequest) (*model.Settings, error) {
	if req.APIKey != nil {
		// An all-blank key would wipe the stored one
		trimmed := strings.TrimSpace(*req.APIKey)
		if trimmed == "" {
			req.APIKey = nil
		} else {
			req.APIKey = &trimmed
		}
	}
	settings, err := s.api.UpdateSettings(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to update settings: %w", err)
	}
	log.Printf("[Settings] System settings updated")
	return settings, nil
}

func (s *SettingsService) Reset(ctx context.Context) (*model.Settings, error) {
	settings, err := s.api.ResetSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to reset settings: %w", err)
	}
	log.Printf("[Settings] System settings reset to defaults")
	return settings, nil
}

// Verify checks that the configured AI provider is reachable
func (s *SettingsService) Verify(ctx context.Context) (*client.VerifyResult, error) {
	result, err := s.api.VerifySettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to verify settings: %w", err)
	}
	return result, nil
}

func (s *SettingsService) Brand(ctx context.Context) (*model.BrandSettings, error) {
	brand, err := s.api.GetBrandSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get brand settings: %w", err)
	}
	return brand, nil
}

func (s *SettingsService) VerifyAdmin(ctx context.Context, password string) (bool, error) {
	return s.api.VerifyAdminPassword(ctx, password)
}

func (s *SettingsService) UpdateBrand(ctx context.Context, req *model.UpdateBrandRequest) (*model.BrandSettings, error) {
	if strings.TrimSpace(req.Password) == "" {
		return nil, &client.ValidationError{Field: "password", Message: "admin password is required"}
	}
	brand, err := s.api.UpdateBrandSettings(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to update brand settings: %w", err)
	}
	log.Printf("[Settings] Brand settings updated")
	return brand, nil
}
