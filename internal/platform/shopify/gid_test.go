package shopify

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLegacyID(t *testing.T) {
	require.Equal(t, "123", LegacyID("gid://shopify/AppSubscription/123"))
	require.Equal(t, "123", LegacyID("123"))
	require.Equal(t, "gid://shopify/AppSubscription/5", AppSubscriptionGID("5"))
	require.Equal(t, "gid://shopify/AppSubscription/5", AppSubscriptionGID("gid://shopify/AppSubscription/5"))
	require.Equal(t, "demo", ShopHandle("demo.myshopify.com"))
}

func TestIsShopDomain(t *testing.T) {
	tests := map[string]bool{
		"demo.myshopify.com":       true,
		"a.myshopify.com":          true,
		"demo.example.com":         false,
		"evil.com/x.myshopify.com": false,
		"demo.myshopify.com:443":   false,
		"user@demo.myshopify.com":  false,
	}
	for in, want := range tests {
		require.Equal(t, want, IsShopDomain(in), in)
	}
}
