package optimizer

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"

	"github.com/maruel/listopt/internal/models"
	"golang.org/x/sync/errgroup"
)

const (
	seoTitleMax       = 60
	seoDescriptionMax = 160
	maxBulletPoints   = 5
)

// Request selects the marketplaces and the angle of an optimization.
type Request struct {
	Platforms      []string
	Focus          string
	TargetAudience string
}

// Optimizer produces one listing per requested platform.
type Optimizer interface {
	Optimize(ctx context.Context, p *models.Product, req *Request) ([]models.OptimizedListing, error)
}

// Rules is a deterministic Optimizer that fits a product to each platform's
// requirements.
type Rules struct{}

// Optimize implements Optimizer. Listings are returned in the order of
// req.Platforms, duplicates removed.
func (Rules) Optimize(ctx context.Context, p *models.Product, req *Request) ([]models.OptimizedListing, error) {
	platforms := NormalizePlatforms(req.Platforms)
	if len(platforms) == 0 {
		return nil, fmt.Errorf("%w: no platform requested", ErrUnsupportedPlatform)
	}
	reqs := make([]models.PlatformRequirements, len(platforms))
	for i, name := range platforms {
		r, ok := Requirements(name)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnsupportedPlatform, name)
		}
		reqs[i] = r
	}
	out := make([]models.OptimizedListing, len(platforms))
	eg, ctx := errgroup.WithContext(ctx)
	for i := range reqs {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			out[i] = listingFor(p, &reqs[i], req)
			slog.DebugContext(ctx, "optimized listing", "product", p.ID, "platform", reqs[i].Platform)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func listingFor(p *models.Product, r *models.PlatformRequirements, req *Request) models.OptimizedListing {
	l := models.OptimizedListing{
		Platform:          r.Platform,
		Title:             optimizeTitle(p, r, req),
		Description:       optimizeDescription(p, r, req),
		Tags:              optimizeTags(p, r.MaxTags),
		Category:          matchCategory(p.Category, r.SupportedCategories),
		OriginalProductID: p.ID,
	}
	if p.Price > 0 {
		price := p.Price
		l.RecommendedPrice = &price
	}
	if len(p.Images) > 0 {
		n := min(len(p.Images), r.ImageRequirements.MaxImages)
		l.Images = slices.Clone(p.Images[:n])
	}
	if r.Platform == "amazon" {
		l.BulletPoints = bulletPoints(p)
	}
	l.SEOMetadata = map[string]string{
		"meta_title":       truncate(l.Title, seoTitleMax),
		"meta_description": truncate(collapse(l.Description), seoDescriptionMax),
	}
	return l
}

// optimizeTitle extends the title with the focus keyword, or with tags on
// marketplaces searched by tag, then fits it to the maximum length.
func optimizeTitle(p *models.Product, r *models.PlatformRequirements, req *Request) string {
	title := collapse(p.Title)
	var extra []string
	if f := collapse(req.Focus); f != "" && !containsFold(title, f) {
		extra = append(extra, f)
	}
	if r.Platform == "etsy" {
		for _, t := range optimizeTags(p, 2) {
			if !containsFold(title, t) {
				extra = append(extra, t)
			}
		}
	}
	for _, e := range extra {
		candidate := title + " | " + e
		if runeLen(candidate) > r.TitleMaxLength {
			break
		}
		title = candidate
	}
	return truncate(title, r.TitleMaxLength)
}

func optimizeDescription(p *models.Product, r *models.PlatformRequirements, req *Request) string {
	desc := strings.TrimSpace(p.Description)
	if a := collapse(req.TargetAudience); a != "" {
		if desc != "" {
			desc += "\n\n"
		}
		desc += "Perfect for " + a + "."
	}
	if desc == "" {
		desc = collapse(p.Title)
	}
	return truncate(desc, r.DescriptionMaxLength)
}

// optimizeTags lowercases and deduplicates the product tags, then the
// category, keeping at most maxTags.
func optimizeTags(p *models.Product, maxTags int) []string {
	seen := map[string]bool{}
	tags := []string{}
	add := func(t string) {
		t = strings.ToLower(collapse(t))
		if t == "" || seen[t] || len(tags) >= maxTags {
			return
		}
		seen[t] = true
		tags = append(tags, t)
	}
	for _, t := range p.Tags {
		add(t)
	}
	add(p.Category)
	return tags
}

// matchCategory returns the supported category equal to category, else the
// one sharing the most words with it, else the first supported one.
func matchCategory(category string, supported []string) string {
	if len(supported) == 0 {
		return category
	}
	for _, s := range supported {
		if strings.EqualFold(s, category) {
			return s
		}
	}
	want := words(category)
	best, score := supported[0], 0
	for _, s := range supported {
		n := 0
		for _, w := range words(s) {
			if slices.Contains(want, w) {
				n++
			}
		}
		if n > score {
			best, score = s, n
		}
	}
	return best
}

func bulletPoints(p *models.Product) []string {
	var out []string
	for _, k := range slices.Sorted(maps.Keys(p.Attributes)) {
		if v := collapse(p.Attributes[k]); v != "" {
			out = append(out, capitalize(k)+": "+v)
		}
	}
	if len(p.Variants) > 1 {
		out = append(out, fmt.Sprintf("Available in %d variants", len(p.Variants)))
	}
	if len(out) > maxBulletPoints {
		out = out[:maxBulletPoints]
	}
	return out
}

func capitalize(s string) string {
	s = strings.ReplaceAll(s, "_", " ")
	if s == "" {
		return s
	}
	r := []rune(s)
	return strings.ToUpper(string(r[0])) + string(r[1:])
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

// NormalizePlatforms lowercases and trims platform names, dropping blanks and
// duplicates.
func NormalizePlatforms(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" && !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	return out
}
