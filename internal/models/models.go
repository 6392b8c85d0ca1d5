// Package models defines the records and API payloads shared across the application.
package models

import (
	"github.com/maruel/listopt/internal/jsondoc"
)

// SubscriptionPlan names a billing tier.
type SubscriptionPlan string

const (
	// PlanFree is assigned to every new account.
	PlanFree SubscriptionPlan = "free"
	// PlanBasic is the entry paid tier.
	PlanBasic SubscriptionPlan = "basic"
	// PlanPro is the professional tier.
	PlanPro SubscriptionPlan = "pro"
	// PlanEnterprise has no usage limits.
	PlanEnterprise SubscriptionPlan = "enterprise"
)

// User is an account as exposed through the API. The password hash lives
// only in the storage layer.
type User struct {
	jsondoc.Meta
	Email            string           `json:"email" validate:"required,email" jsonschema:"description=Login email, unique across users"`
	FirstName        string           `json:"first_name,omitempty"`
	LastName         string           `json:"last_name,omitempty"`
	SubscriptionPlan SubscriptionPlan `json:"subscription_plan" validate:"omitempty,oneof=free basic pro enterprise"`
}

// ProductVariant is one purchasable variation of a product.
type ProductVariant struct {
	ID                string            `json:"id,omitempty"`
	Title             string            `json:"title" validate:"required"`
	Price             float64           `json:"price" validate:"gte=0"`
	Attributes        map[string]string `json:"attributes,omitempty"`
	SKU               string            `json:"sku"`
	InventoryQuantity int               `json:"inventory_quantity" validate:"gte=0"`
}

// ProductFields are the caller-editable fields of a product.
type ProductFields struct {
	Title       string            `json:"title" validate:"required,max=1000" jsonschema:"description=Master listing title"`
	Description string            `json:"description"`
	Price       float64           `json:"price" validate:"gte=0"`
	Category    string            `json:"category"`
	Tags        []string          `json:"tags"`
	Attributes  map[string]string `json:"attributes"`
	Images      []string          `json:"images" validate:"dive,required"`
	Variants    []ProductVariant  `json:"variants" validate:"dive"`
}

// Product is a master product record owned by one user.
type Product struct {
	jsondoc.Meta
	UserID string `json:"user_id" validate:"required" jsonschema:"description=Owning user"`
	ProductFields
}

// OptimizedListing is a product rewritten for one marketplace.
type OptimizedListing struct {
	Platform          string            `json:"platform" validate:"required"`
	Title             string            `json:"title" validate:"required"`
	Description       string            `json:"description"`
	BulletPoints      []string          `json:"bullet_points,omitempty"`
	Tags              []string          `json:"tags"`
	Category          string            `json:"category"`
	RecommendedPrice  *float64          `json:"recommended_price,omitempty"`
	SEOMetadata       map[string]string `json:"seo_metadata,omitempty"`
	Images            []string          `json:"images,omitempty"`
	OriginalProductID string            `json:"original_product_id" validate:"required"`
}

// Optimization is the stored result of optimizing one product for one or
// more marketplaces.
type Optimization struct {
	jsondoc.Meta
	UserID            string             `json:"user_id" validate:"required"`
	MasterProductID   string             `json:"master_product_id" validate:"required"`
	OptimizedListings []OptimizedListing `json:"optimized_listings" validate:"min=1,dive"`
	OptimizationFocus string             `json:"optimization_focus,omitempty"`
	TargetAudience    string             `json:"target_audience,omitempty"`
}

// ImageRequirements limits the images a marketplace accepts.
type ImageRequirements struct {
	MaxImages int      `json:"max_images"`
	Formats   []string `json:"formats"`
	MaxSizeKB int      `json:"max_size_kb"`
}

// PlatformRequirements describes what a marketplace accepts for a listing.
type PlatformRequirements struct {
	Platform             string            `json:"platform"`
	TitleMaxLength       int               `json:"title_max_length"`
	DescriptionMaxLength int               `json:"description_max_length"`
	MaxTags              int               `json:"max_tags"`
	RequiredAttributes   []string          `json:"required_attributes"`
	SupportedCategories  []string          `json:"supported_categories"`
	ImageRequirements    ImageRequirements `json:"image_requirements"`
}

// PlatformCredentials are the seller's credentials for one marketplace.
type PlatformCredentials struct {
	Platform    string            `json:"platform" validate:"required"`
	Credentials map[string]string `json:"credentials"`
}

// PublishRequest asks to publish an optimized listing.
type PublishRequest struct {
	OptimizedListing    OptimizedListing    `json:"optimized_listing"`
	PlatformCredentials PlatformCredentials `json:"platform_credentials"`
}

// PublishResult is the outcome of publishing to one marketplace.
type PublishResult struct {
	Success      bool     `json:"success"`
	ListingID    string   `json:"listing_id,omitempty"`
	ListingURL   string   `json:"listing_url,omitempty"`
	Errors       []string `json:"errors,omitempty"`
	PlatformName string   `json:"platform_name"`
}
