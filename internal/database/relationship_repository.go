package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jonesrussell/pricefeed/internal/domain"
)

// RelationshipRepository reads merchant-retailer relationship state and
// subscription state. Both live outside this core; the repository is the
// read side of that boundary.
type RelationshipRepository struct {
	db *sql.DB
}

// NewRelationshipRepository creates a new repository.
func NewRelationshipRepository(db *sql.DB) *RelationshipRepository {
	return &RelationshipRepository{db: db}
}

// ListByRetailer returns all relationships for a retailer.
func (r *RelationshipRepository) ListByRetailer(ctx context.Context, retailerID string) ([]domain.MerchantRelationship, error) {
	query := `
		SELECT merchant_id, retailer_id, status, listing
		FROM merchant_relationships
		WHERE retailer_id = $1`

	rows, err := r.db.QueryContext(ctx, query, retailerID)
	if err != nil {
		return nil, fmt.Errorf("list relationships: %w", err)
	}
	defer rows.Close()

	var relationships []domain.MerchantRelationship
	for rows.Next() {
		var (
			rel     domain.MerchantRelationship
			status  string
			listing string
		)
		if scanErr := rows.Scan(&rel.MerchantID, &rel.RetailerID, &status, &listing); scanErr != nil {
			return nil, fmt.Errorf("scan relationship: %w", scanErr)
		}
		rel.Status = domain.RelationshipStatus(status)
		rel.Listing = domain.ListingStatus(listing)
		relationships = append(relationships, rel)
	}
	return relationships, rows.Err()
}

// GetEligibility returns the retailer's visibility eligibility.
func (r *RelationshipRepository) GetEligibility(ctx context.Context, retailerID string) (domain.RetailerEligibility, error) {
	var eligibility string
	err := r.db.QueryRowContext(ctx,
		`SELECT eligibility FROM retailers WHERE id = $1`, retailerID).Scan(&eligibility)
	if errors.Is(err, sql.ErrNoRows) {
		return "", domain.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get eligibility: %w", err)
	}
	return domain.RetailerEligibility(eligibility), nil
}

// GetSubscription returns the merchant's subscription slice, or nil when
// the merchant has none on file.
func (r *RelationshipRepository) GetSubscription(ctx context.Context, merchantID string) (*domain.Subscription, error) {
	query := `
		SELECT merchant_id, state, expired_at, founding_tier
		FROM merchant_subscriptions
		WHERE merchant_id = $1`

	var (
		sub   domain.Subscription
		state string
	)
	err := r.db.QueryRowContext(ctx, query, merchantID).Scan(
		&sub.MerchantID, &state, &sub.ExpiredAt, &sub.FoundingTier)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get subscription: %w", err)
	}
	sub.State = domain.SubscriptionState(state)
	return &sub, nil
}
