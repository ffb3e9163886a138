// Package resolver links source products to canonical catalog products by
// scoring weighted match signals.
package resolver

import (
	"context"
	"fmt"
	"strings"

	"github.com/jonesrussell/pricefeed/internal/domain"
	"github.com/jonesrussell/pricefeed/internal/logger"
)

// Signal weights and tier cut-offs. An exact identifier match alone lands
// in LOW; identifier plus title reaches HIGH.
const (
	weightIdentifier = 3
	weightTitle      = 2
	weightAttrsMax   = 2

	scoreHigh   = 5
	scoreMedium = 3
	scoreLow    = 2
)

// CatalogStore is the candidate and link persistence the resolver uses.
type CatalogStore interface {
	CandidatesByUPC(ctx context.Context, upc string) ([]domain.CanonicalProduct, error)
	CandidatesByBrand(ctx context.Context, brand string) ([]domain.CanonicalProduct, error)
	UpsertLink(ctx context.Context, link *domain.ProductLink) error
	ListUnresolved(ctx context.Context, resolverVersion, limit int) ([]domain.SourceProduct, error)
}

// Resolver scores source products against catalog candidates.
type Resolver struct {
	catalog CatalogStore
	log     logger.Logger

	// Version identifies the scoring rules. Stored on every link; a link
	// written by a newer version is never downgraded by an older one.
	Version int

	// MatchThreshold is the lowest tier that auto-links. Tiers below it
	// go to review instead.
	MatchThreshold domain.MatchTier
}

// New creates a resolver.
func New(catalog CatalogStore, log logger.Logger, version int) *Resolver {
	return &Resolver{
		catalog:        catalog,
		log:            log,
		Version:        version,
		MatchThreshold: domain.TierMedium,
	}
}

// Resolve scores one source product, stores the resulting link and returns
// it. Resolution never touches price history; it only maintains the link.
func (r *Resolver) Resolve(ctx context.Context, sp *domain.SourceProduct) (*domain.ProductLink, error) {
	best, tier, err := r.bestCandidate(ctx, sp)
	if err != nil {
		return nil, err
	}

	link := &domain.ProductLink{
		SourceProductID: sp.ID,
		Tier:            tier,
		ResolverVersion: r.Version,
	}

	switch {
	case best == nil:
		link.Status = domain.LinkUnmatched
		link.Tier = domain.TierNone
	case tierAtLeast(tier, r.MatchThreshold):
		link.Status = domain.LinkMatched
		link.CanonicalProductID = &best.ID
	default:
		link.Status = domain.LinkNeedsReview
		link.CanonicalProductID = &best.ID
	}

	if err := r.catalog.UpsertLink(ctx, link); err != nil {
		return nil, err
	}

	r.log.Debug("source product resolved",
		logger.String("source_product_id", sp.ID),
		logger.String("status", string(link.Status)),
		logger.String("tier", string(link.Tier)))
	return link, nil
}

// ResolveBatch re-resolves every source product without a current-version
// link, up to limit. Returns how many were processed.
func (r *Resolver) ResolveBatch(ctx context.Context, limit int) (int, error) {
	products, err := r.catalog.ListUnresolved(ctx, r.Version, limit)
	if err != nil {
		return 0, err
	}

	for i := range products {
		if _, resolveErr := r.Resolve(ctx, &products[i]); resolveErr != nil {
			return i, fmt.Errorf("resolve %s: %w", products[i].ID, resolveErr)
		}
	}
	return len(products), nil
}

// bestCandidate gathers candidates by identifier first, then by brand, and
// returns the highest-scoring one with its tier.
func (r *Resolver) bestCandidate(ctx context.Context, sp *domain.SourceProduct) (*domain.CanonicalProduct, domain.MatchTier, error) {
	var candidates []domain.CanonicalProduct

	if upc := normalizeIdentifier(deref(sp.UPC)); upc != "" {
		byUPC, err := r.catalog.CandidatesByUPC(ctx, upc)
		if err != nil {
			return nil, domain.TierNone, fmt.Errorf("candidates by upc: %w", err)
		}
		candidates = byUPC
	}
	if len(candidates) == 0 && deref(sp.Brand) != "" {
		byBrand, err := r.catalog.CandidatesByBrand(ctx, deref(sp.Brand))
		if err != nil {
			return nil, domain.TierNone, fmt.Errorf("candidates by brand: %w", err)
		}
		candidates = byBrand
	}
	if len(candidates) == 0 {
		return nil, domain.TierNone, nil
	}

	var (
		best      *domain.CanonicalProduct
		bestScore int
	)
	for i := range candidates {
		if s := Score(sp, &candidates[i]); s > bestScore {
			best = &candidates[i]
			bestScore = s
		}
	}
	if best == nil {
		return nil, domain.TierNone, nil
	}
	return best, TierFor(bestScore), nil
}

// Score computes the weighted signal total for one candidate pair:
// identifier 3, title 2, attribute components 1 each capped at 2.
func Score(sp *domain.SourceProduct, c *domain.CanonicalProduct) int {
	score := 0

	if upc := normalizeIdentifier(deref(sp.UPC)); upc != "" && upc == normalizeIdentifier(deref(c.UPC)) {
		score += weightIdentifier
	}
	if normalizeTitle(sp.Title) != "" && normalizeTitle(sp.Title) == normalizeTitle(c.Title) {
		score += weightTitle
	}

	attrs := 0
	if eqFold(deref(sp.Brand), deref(c.Brand)) {
		attrs++
	}
	if eqFold(deref(sp.Caliber), deref(c.Caliber)) {
		attrs++
	}
	if eqFold(deref(sp.PackSize), deref(c.PackSize)) {
		attrs++
	}
	if attrs > weightAttrsMax {
		attrs = weightAttrsMax
	}
	return score + attrs
}

// TierFor maps a signal score to a confidence tier.
func TierFor(score int) domain.MatchTier {
	switch {
	case score >= scoreHigh:
		return domain.TierHigh
	case score >= scoreMedium:
		return domain.TierMedium
	case score >= scoreLow:
		return domain.TierLow
	default:
		return domain.TierNone
	}
}

func tierAtLeast(tier, threshold domain.MatchTier) bool {
	return tierRank(tier) >= tierRank(threshold) && tier != domain.TierNone
}

func tierRank(t domain.MatchTier) int {
	switch t {
	case domain.TierHigh:
		return 3
	case domain.TierMedium:
		return 2
	case domain.TierLow:
		return 1
	default:
		return 0
	}
}

// normalizeIdentifier strips non-digits and leading zeros so UPC-A and
// EAN-13 encodings of the same code compare equal.
func normalizeIdentifier(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteByte(byte(r))
		}
	}
	return strings.TrimLeft(b.String(), "0")
}

func normalizeTitle(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func eqFold(a, b string) bool {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	return a != "" && strings.EqualFold(a, b)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
