package model

// Settings are the backend system settings
type Settings struct {
	AIProviderFormat      string `json:"ai_provider_format"`
	APIBaseURL            string `json:"api_base_url,omitempty"`
	APIKeyLength          int    `json:"api_key_length,omitempty"`
	ImageResolution       string `json:"image_resolution"`
	ImageAspectRatio      string `json:"image_aspect_ratio"`
	MaxDescriptionWorkers int    `json:"max_description_workers"`
	MaxImageWorkers       int    `json:"max_image_workers"`
	TextModel             string `json:"text_model,omitempty"`
	ImageModel            string `json:"image_model,omitempty"`
	OutputLanguage        string `json:"output_language,omitempty"`
}

// UpdateSettingsRequest is a partial settings update
type UpdateSettingsRequest struct {
	AIProviderFormat      *string `json:"ai_provider_format,omitempty" validate:"omitempty,oneof=openai gemini"`
	APIBaseURL            *string `json:"api_base_url,omitempty" validate:"omitempty,url"`
	APIKey                *string `json:"api_key,omitempty"`
	ImageResolution       *string `json:"image_resolution,omitempty" validate:"omitempty,oneof=1K 2K 4K"`
	ImageAspectRatio      *string `json:"image_aspect_ratio,omitempty"`
	MaxDescriptionWorkers *int    `json:"max_description_workers,omitempty" validate:"omitempty,min=1,max=20"`
	MaxImageWorkers       *int    `json:"max_image_workers,omitempty" validate:"omitempty,min=1,max=20"`
	TextModel             *string `json:"text_model,omitempty"`
	ImageModel            *string `json:"image_model,omitempty"`
	OutputLanguage        *string `json:"output_language,omitempty"`
}

// Default brand values
const (
	DefaultBrandSlogan  = "Vibe your PPT like vibing code"
	DefaultBrandLogo    = "/logo.png"
	DefaultBrandFavicon = "/favicon.svg"
)

// BrandSettings customize the UI chrome
type BrandSettings struct {
	BrandName        string `json:"brand_name"`
	BrandSlogan      string `json:"brand_slogan"`
	BrandDescription string `json:"brand_description"`
	LogoURL          string `json:"logo_url"`
	FaviconURL       string `json:"favicon_url"`
}

// WithDefaults fills empty fields with the stock brand
func (b BrandSettings) WithDefaults() BrandSettings {
	if b.BrandSlogan == "" {
		b.BrandSlogan = DefaultBrandSlogan
	}
	if b.LogoURL == "" {
		b.LogoURL = DefaultBrandLogo
	}
	if b.FaviconURL == "" {
		b.FaviconURL = DefaultBrandFavicon
	}
	return b
}

// AdminVerifyRequest checks the brand admin password
type AdminVerifyRequest struct {
	Password string `json:"password"`
}

// UpdateBrandRequest updates brand fields, guarded by the admin password
type UpdateBrandRequest struct {
	Password         string  `json:"password"`
	BrandName        *string `json:"brand_name,omitempty" validate:"omitempty,max=100"`
	BrandSlogan      *string `json:"brand_slogan,omitempty" validate:"omitempty,max=200"`
	BrandDescription *string `json:"brand_description,omitempty" validate:"omitempty,max=1000"`
	LogoURL          *string `json:"logo_url,omitempty"`
	FaviconURL       *string `json:"favicon_url,omitempty"`
	NewPassword      *string `json:"new_password,omitempty" validate:"omitempty,min=4"`
}
