// Package optimizer rewrites master products into marketplace listings and
// publishes them.
package optimizer

import (
	"errors"
	"maps"
	"slices"

	"github.com/maruel/listopt/internal/models"
)

// ErrUnsupportedPlatform is returned for a marketplace without requirements.
var ErrUnsupportedPlatform = errors.New("unsupported platform")

var requirements = map[string]models.PlatformRequirements{
	"shopify": {
		Platform:             "shopify",
		TitleMaxLength:       255,
		DescriptionMaxLength: 5000,
		MaxTags:              250,
		RequiredAttributes:   []string{"title", "price"},
		SupportedCategories:  []string{"Apparel", "Home & Garden", "Electronics", "Beauty", "Toys"},
		ImageRequirements:    models.ImageRequirements{MaxImages: 10, Formats: []string{"jpg", "png", "gif"}, MaxSizeKB: 20000},
	},
	"etsy": {
		Platform:             "etsy",
		TitleMaxLength:       140,
		DescriptionMaxLength: 5000,
		MaxTags:              13,
		RequiredAttributes:   []string{"title", "description", "price", "who_made", "when_made"},
		SupportedCategories:  []string{"Art", "Home & Living", "Jewelry", "Clothing", "Craft Supplies"},
		ImageRequirements:    models.ImageRequirements{MaxImages: 10, Formats: []string{"jpg", "png", "gif"}, MaxSizeKB: 3000},
	},
	"amazon": {
		Platform:             "amazon",
		TitleMaxLength:       200,
		DescriptionMaxLength: 2000,
		MaxTags:              5,
		RequiredAttributes:   []string{"title", "description", "price", "brand", "upc"},
		SupportedCategories:  []string{"Home & Kitchen", "Clothing", "Electronics", "Beauty", "Toys & Games"},
		ImageRequirements:    models.ImageRequirements{MaxImages: 9, Formats: []string{"jpg", "png", "gif"}, MaxSizeKB: 10000},
	},
}

// Platforms returns the supported marketplace names, sorted.
func Platforms() []string {
	return slices.Sorted(maps.Keys(requirements))
}

// Requirements returns a copy of the requirements of platform.
func Requirements(platform string) (models.PlatformRequirements, bool) {
	r, ok := requirements[platform]
	if !ok {
		return r, false
	}
	r.RequiredAttributes = slices.Clone(r.RequiredAttributes)
	r.SupportedCategories = slices.Clone(r.SupportedCategories)
	r.ImageRequirements.Formats = slices.Clone(r.ImageRequirements.Formats)
	return r, true
}

// AllRequirements returns the requirements of every platform, sorted by name.
func AllRequirements() []models.PlatformRequirements {
	out := make([]models.PlatformRequirements, 0, len(requirements))
	for _, p := range Platforms() {
		r, _ := Requirements(p)
		out = append(out, r)
	}
	return out
}

// Check returns the problems that would make a marketplace reject listing.
func Check(listing *models.OptimizedListing, r *models.PlatformRequirements) []string {
	var problems []string
	if listing.Title == "" {
		problems = append(problems, "title is required")
	}
	if n := runeLen(listing.Title); n > r.TitleMaxLength {
		problems = append(problems, "title exceeds "+itoa(r.TitleMaxLength)+" characters")
	}
	if runeLen(listing.Description) > r.DescriptionMaxLength {
		problems = append(problems, "description exceeds "+itoa(r.DescriptionMaxLength)+" characters")
	}
	if len(listing.Tags) > r.MaxTags {
		problems = append(problems, "too many tags, max "+itoa(r.MaxTags))
	}
	if len(listing.Images) > r.ImageRequirements.MaxImages {
		problems = append(problems, "too many images, max "+itoa(r.ImageRequirements.MaxImages))
	}
	return problems
}
