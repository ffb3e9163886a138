// Package identity derives stable record identities and change-detection
// hashes for the ingest pipeline.
package identity

import (
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"

	"github.com/jonesrussell/pricefeed/internal/domain"
)

// DeriveIdentity returns the stable identity key for a source record using
// strict priority: network-assigned item id, else merchant SKU, else a hash
// of the canonicalized URL. The same raw record always yields the same key.
func DeriveIdentity(rec *domain.SourceRecord) (string, domain.IdentityKind) {
	if id := strings.TrimSpace(rec.ItemID); id != "" {
		return id, domain.IdentityItemID
	}
	if sku := strings.TrimSpace(rec.SKU); sku != "" {
		return sku, domain.IdentitySKU
	}
	return URLHash(rec.URL), domain.IdentityURLHash
}

// Annotate fills the record's identity key and price signature in place.
func Annotate(rec *domain.SourceRecord) {
	rec.IdentityKey, rec.IdentityFrom = DeriveIdentity(rec)
	rec.Signature = PriceSignature(rec.Price, rec.Currency, rec.OriginalPrice)
}

// PriceSignature builds the deterministic change-detection hash over price,
// currency and optional original price, each rounded to cent precision.
// Identical signatures are treated as unchanged. Not a security hash.
func PriceSignature(price float64, currency string, originalPrice *float64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%.2f|%s", price, strings.ToUpper(currency))
	if originalPrice != nil {
		fmt.Fprintf(&b, "|%.2f", *originalPrice)
	}
	sum := sha1.Sum([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// URLHash hashes the canonicalized form of a product URL so the same page
// reached through tracking-decorated links still derives one identity.
func URLHash(raw string) string {
	sum := sha1.Sum([]byte(CanonicalizeURL(raw)))
	return hex.EncodeToString(sum[:])
}

// CanonicalizeURL lowercases scheme and host, strips default ports, the
// fragment, utm_* query parameters and a trailing slash. Unparseable URLs
// canonicalize to their trimmed input.
func CanonicalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""

	switch {
	case u.Scheme == "http" && strings.HasSuffix(u.Host, ":80"):
		u.Host = strings.TrimSuffix(u.Host, ":80")
	case u.Scheme == "https" && strings.HasSuffix(u.Host, ":443"):
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}

	q := u.Query()
	for key := range q {
		if strings.HasPrefix(strings.ToLower(key), "utm_") {
			q.Del(key)
		}
	}
	u.RawQuery = q.Encode()

	u.Path = strings.TrimSuffix(u.Path, "/")
	return u.String()
}

// ContentHash hashes a fetched payload for the unchanged-feed fast path:
// a run whose content hash matches the feed's previous run writes nothing.
func ContentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// UpsertKey is the promotion key used when a corrected quarantined record
// becomes a source product: a hash over title, identifier, SKU and price.
func UpsertKey(title, identifier, sku string, price float64) string {
	payload := fmt.Sprintf("%s|%s|%s|%.2f",
		strings.ToLower(strings.TrimSpace(title)),
		strings.TrimSpace(identifier),
		strings.TrimSpace(sku),
		price,
	)
	sum := sha1.Sum([]byte(payload))
	return hex.EncodeToString(sum[:])
}
