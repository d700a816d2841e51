package shopify

import (
	"fmt"
	"strings"
)

const appSubscriptionGIDPrefix = "gid://shopify/AppSubscription/"

// LegacyID returns the trailing segment of a GID, e.g. "123" for
// gid://shopify/AppSubscription/123. Non-GID input is returned unchanged.
func LegacyID(gid string) string {
	if i := strings.LastIndex(gid, "/"); i >= 0 {
		return gid[i+1:]
	}
	return gid
}

// AppSubscriptionGID accepts a numeric charge id or a full GID.
func AppSubscriptionGID(chargeID string) string {
	if strings.HasPrefix(chargeID, "gid://") {
		return chargeID
	}
	return fmt.Sprintf("%s%s", appSubscriptionGIDPrefix, chargeID)
}

// ShopHandle is the store handle used in admin.shopify.com URLs.
func ShopHandle(domain string) string {
	handle, _, _ := strings.Cut(domain, ".")
	return handle
}

// IsShopDomain accepts *.myshopify.com hosts only.
func IsShopDomain(shop string) bool {
	if !strings.HasSuffix(shop, ".myshopify.com") {
		return false
	}
	if strings.ContainsAny(shop, "/ :@") {
		return false
	}
	return len(shop) >= len("a.myshopify.com")
}
