package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jonesrussell/pricefeed/internal/domain"
)

const sourceProductSelectList = `id, retailer_id, identity_key, identity_from, title,
			url, upc, sku, brand, caliber, pack_size, last_seen_at, created_at`

// ProductRepository manages source products, canonical catalog lookups and
// product links.
type ProductRepository struct {
	db *sql.DB
}

// NewProductRepository creates a new repository.
func NewProductRepository(db *sql.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

// UpsertSourceProduct inserts or refreshes a source product keyed by
// (retailer_id, identity_key) and returns the stored row with its id.
func (r *ProductRepository) UpsertSourceProduct(ctx context.Context, sp *domain.SourceProduct) (*domain.SourceProduct, error) {
	query := `
		INSERT INTO source_products (
			id, retailer_id, identity_key, identity_from, title, url,
			upc, sku, brand, caliber, pack_size, last_seen_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW(), NOW())
		ON CONFLICT (retailer_id, identity_key)
		DO UPDATE SET
			title = EXCLUDED.title,
			url = EXCLUDED.url,
			upc = COALESCE(EXCLUDED.upc, source_products.upc),
			sku = COALESCE(EXCLUDED.sku, source_products.sku),
			brand = COALESCE(EXCLUDED.brand, source_products.brand),
			caliber = COALESCE(EXCLUDED.caliber, source_products.caliber),
			pack_size = COALESCE(EXCLUDED.pack_size, source_products.pack_size),
			last_seen_at = NOW()
		RETURNING ` + sourceProductSelectList

	stored, err := scanSourceProduct(r.db.QueryRowContext(ctx, query,
		sp.ID, sp.RetailerID, sp.IdentityKey, string(sp.IdentityFrom), sp.Title,
		sp.URL, sp.UPC, sp.SKU, sp.Brand, sp.Caliber, sp.PackSize))
	if err != nil {
		return nil, fmt.Errorf("upsert source product: %w", err)
	}
	return stored, nil
}

// GetSourceProduct retrieves one source product.
func (r *ProductRepository) GetSourceProduct(ctx context.Context, id string) (*domain.SourceProduct, error) {
	query := `SELECT ` + sourceProductSelectList + ` FROM source_products WHERE id = $1`

	sp, err := scanSourceProduct(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get source product: %w", err)
	}
	return sp, nil
}

// ListUnresolved returns source products without a current-version link,
// oldest sighting first. Used by bulk re-resolution.
func (r *ProductRepository) ListUnresolved(ctx context.Context, resolverVersion, limit int) ([]domain.SourceProduct, error) {
	query := `
		SELECT sp.id, sp.retailer_id, sp.identity_key, sp.identity_from, sp.title,
		       sp.url, sp.upc, sp.sku, sp.brand, sp.caliber, sp.pack_size,
		       sp.last_seen_at, sp.created_at
		FROM source_products sp
		LEFT JOIN product_links pl ON pl.source_product_id = sp.id
		WHERE pl.source_product_id IS NULL
		   OR pl.resolver_version < $1
		ORDER BY sp.last_seen_at ASC
		LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, resolverVersion, limit)
	if err != nil {
		return nil, fmt.Errorf("list unresolved: %w", err)
	}
	defer rows.Close()

	products := make([]domain.SourceProduct, 0, limit)
	for rows.Next() {
		sp, scanErr := scanSourceProduct(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan source product: %w", scanErr)
		}
		products = append(products, *sp)
	}
	return products, rows.Err()
}

// CandidatesByUPC returns canonical products sharing a normalized UPC.
func (r *ProductRepository) CandidatesByUPC(ctx context.Context, upc string) ([]domain.CanonicalProduct, error) {
	query := `
		SELECT id, title, upc, brand, caliber, pack_size
		FROM canonical_products
		WHERE upc = $1`
	return r.queryCandidates(ctx, query, upc)
}

// CandidatesByBrand returns canonical products for a brand, for the
// attribute-signal pass when no identifier candidate exists.
func (r *ProductRepository) CandidatesByBrand(ctx context.Context, brand string) ([]domain.CanonicalProduct, error) {
	query := `
		SELECT id, title, upc, brand, caliber, pack_size
		FROM canonical_products
		WHERE LOWER(brand) = LOWER($1)`
	return r.queryCandidates(ctx, query, brand)
}

func (r *ProductRepository) queryCandidates(ctx context.Context, query string, arg any) ([]domain.CanonicalProduct, error) {
	rows, err := r.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("query candidates: %w", err)
	}
	defer rows.Close()

	var candidates []domain.CanonicalProduct
	for rows.Next() {
		var c domain.CanonicalProduct
		if scanErr := rows.Scan(&c.ID, &c.Title, &c.UPC, &c.Brand, &c.Caliber, &c.PackSize); scanErr != nil {
			return nil, fmt.Errorf("scan candidate: %w", scanErr)
		}
		candidates = append(candidates, c)
	}
	return candidates, rows.Err()
}

// UpsertLink stores a resolution outcome. A link is never silently
// overwritten: the stored row only changes when the incoming resolver
// version is at least the stored one.
func (r *ProductRepository) UpsertLink(ctx context.Context, link *domain.ProductLink) error {
	query := `
		INSERT INTO product_links (
			source_product_id, canonical_product_id, status, tier,
			resolver_version, resolved_at
		) VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (source_product_id)
		DO UPDATE SET
			canonical_product_id = EXCLUDED.canonical_product_id,
			status = EXCLUDED.status,
			tier = EXCLUDED.tier,
			resolver_version = EXCLUDED.resolver_version,
			resolved_at = NOW()
		WHERE product_links.resolver_version <= EXCLUDED.resolver_version`

	if _, err := r.db.ExecContext(ctx, query,
		link.SourceProductID, link.CanonicalProductID, string(link.Status),
		string(link.Tier), link.ResolverVersion); err != nil {
		return fmt.Errorf("upsert link: %w", err)
	}
	return nil
}

// GetLink retrieves the current link for a source product.
func (r *ProductRepository) GetLink(ctx context.Context, sourceProductID string) (*domain.ProductLink, error) {
	query := `
		SELECT source_product_id, canonical_product_id, status, tier,
		       resolver_version, resolved_at
		FROM product_links
		WHERE source_product_id = $1`

	var (
		link   domain.ProductLink
		status string
		tier   string
	)
	err := r.db.QueryRowContext(ctx, query, sourceProductID).Scan(
		&link.SourceProductID, &link.CanonicalProductID, &status, &tier,
		&link.ResolverVersion, &link.ResolvedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get link: %w", err)
	}
	link.Status = domain.LinkStatus(status)
	link.Tier = domain.MatchTier(tier)
	return &link, nil
}

func scanSourceProduct(row rowScanner) (*domain.SourceProduct, error) {
	var (
		sp   domain.SourceProduct
		from string
	)
	err := row.Scan(
		&sp.ID, &sp.RetailerID, &sp.IdentityKey, &from, &sp.Title, &sp.URL,
		&sp.UPC, &sp.SKU, &sp.Brand, &sp.Caliber, &sp.PackSize,
		&sp.LastSeenAt, &sp.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	sp.IdentityFrom = domain.IdentityKind(from)
	return &sp, nil
}
