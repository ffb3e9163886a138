package domain

import "time"

// MatchTier is the resolver's confidence in a catalog match.
type MatchTier string

const (
	TierHigh   MatchTier = "HIGH"
	TierMedium MatchTier = "MEDIUM"
	TierLow    MatchTier = "LOW"
	TierNone   MatchTier = "NONE"
)

// LinkStatus is the outcome of a resolution attempt.
type LinkStatus string

const (
	LinkMatched     LinkStatus = "MATCHED"
	LinkNeedsReview LinkStatus = "NEEDS_REVIEW"
	LinkUnmatched   LinkStatus = "UNMATCHED"
)

// ProductLink associates a source product with a canonical catalog entry.
// A new resolution attempt replaces the link only when its resolver
// version is at least as new as the stored one.
type ProductLink struct {
	SourceProductID    string     `db:"source_product_id"    json:"source_product_id"`
	CanonicalProductID *string    `db:"canonical_product_id" json:"canonical_product_id,omitempty"`
	Status             LinkStatus `db:"status"               json:"status"`
	Tier               MatchTier  `db:"tier"                 json:"tier"`
	ResolverVersion    int        `db:"resolver_version"     json:"resolver_version"`
	ResolvedAt         time.Time  `db:"resolved_at"          json:"resolved_at"`
}

// CanonicalProduct is the deduplicated catalog entry multiple retailers'
// source products may resolve to.
type CanonicalProduct struct {
	ID       string  `db:"id"        json:"id"`
	Title    string  `db:"title"     json:"title"`
	UPC      *string `db:"upc"       json:"upc,omitempty"`
	Brand    *string `db:"brand"     json:"brand,omitempty"`
	Caliber  *string `db:"caliber"   json:"caliber,omitempty"`
	PackSize *string `db:"pack_size" json:"pack_size,omitempty"`
}
