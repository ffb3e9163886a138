package domain

// RetailerEligibility gates whether a retailer's prices may ever be shown.
type RetailerEligibility string

const (
	RetailerEligible   RetailerEligibility = "ELIGIBLE"
	RetailerIneligible RetailerEligibility = "INELIGIBLE"
)

// RelationshipStatus is the account state between a merchant and a retailer.
type RelationshipStatus string

const (
	RelationshipActive    RelationshipStatus = "active"
	RelationshipSuspended RelationshipStatus = "suspended"
)

// ListingStatus is whether a relationship currently lists the retailer.
type ListingStatus string

const (
	ListingListed   ListingStatus = "listed"
	ListingUnlisted ListingStatus = "unlisted"
)

// MerchantRelationship is the status pair between one merchant account and
// a retailer. Its lifecycle is independent of price observations.
type MerchantRelationship struct {
	MerchantID string             `db:"merchant_id" json:"merchant_id"`
	RetailerID string             `db:"retailer_id" json:"retailer_id"`
	Status     RelationshipStatus `db:"status"      json:"status"`
	Listing    ListingStatus      `db:"listing"     json:"listing"`
}

// Visible is the single shared visibility predicate for price data.
//
// A retailer's prices are publicly visible iff the retailer is ELIGIBLE and
// one of the following holds:
//   - it has no merchant relationship at all
//   - every relationship is suspended
//   - at least one relationship is simultaneously active and listed
//
// An active-but-unlisted-only relationship hides the retailer (the
// delinquency case). Every downstream consumer of price data must go
// through this function rather than re-deriving the rule.
func Visible(eligibility RetailerEligibility, relationships []MerchantRelationship) bool {
	if eligibility != RetailerEligible {
		return false
	}
	if len(relationships) == 0 {
		return true
	}

	allSuspended := true
	for i := range relationships {
		r := &relationships[i]
		if r.Status == RelationshipActive {
			allSuspended = false
			if r.Listing == ListingListed {
				return true
			}
		}
	}
	return allSuspended
}
