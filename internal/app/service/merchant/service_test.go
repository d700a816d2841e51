package merchant

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fatflowers/pcbuilder/internal/models"
	"github.com/fatflowers/pcbuilder/internal/platform/db/dbtest"
	"github.com/fatflowers/pcbuilder/internal/platform/shopify"
	"github.com/fatflowers/pcbuilder/pkg/apperr"
	"github.com/fatflowers/pcbuilder/pkg/types"
)

type fakeShopAPI struct {
	info  *shopify.ShopInfo
	err   error
	calls []shopify.Shop
}

func (f *fakeShopAPI) ShopInfo(_ context.Context, shop shopify.Shop) (*shopify.ShopInfo, error) {
	f.calls = append(f.calls, shop)
	if f.err != nil {
		return nil, f.err
	}
	return f.info, nil
}

type fakeMailer struct {
	welcome []string
	goodbye []string
}

func (f *fakeMailer) SendWelcome(_ context.Context, to, _ string) error {
	f.welcome = append(f.welcome, to)
	return nil
}

func (f *fakeMailer) SendGoodbye(_ context.Context, to, _ string) error {
	f.goodbye = append(f.goodbye, to)
	return nil
}

func testShopInfo() *shopify.ShopInfo {
	return &shopify.ShopInfo{
		ID:              "gid://shopify/Shop/42",
		Name:            "Rig Shop",
		Email:           "owner@rig.example",
		MyshopifyDomain: "rig.myshopify.com",
		CurrencyCode:    "EUR",
		CreatedAt:       time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestService_RegisterLifecycle(t *testing.T) {
	ctx := context.Background()
	api := &fakeShopAPI{info: testShopInfo()}
	mailer := &fakeMailer{}
	svc := New(dbtest.New(t), api, mailer, zap.NewNop().Sugar())

	res, err := svc.Register(ctx, RegisterRequest{Shop: "Rig.myshopify.com", AccessToken: "tok-1", Scope: "read_products"})
	require.NoError(t, err)
	require.True(t, res.Installed)
	require.Equal(t, "gid://shopify/Shop/42", res.Merchant.StoreID)
	require.Equal(t, "EUR", res.Merchant.Currency)
	require.Equal(t, types.MerchantStatusActive, res.Merchant.Status)
	require.Equal(t, []string{"owner@rig.example"}, mailer.welcome)
	require.Equal(t, "rig.myshopify.com", api.calls[0].Domain)

	creds, err := svc.Credentials(ctx, "gid://shopify/Shop/42")
	require.NoError(t, err)
	require.Equal(t, shopify.Shop{Domain: "rig.myshopify.com", AccessToken: "tok-1"}, creds)

	// a token refresh is not an install
	res, err = svc.Register(ctx, RegisterRequest{Shop: "rig.myshopify.com", AccessToken: "tok-2"})
	require.NoError(t, err)
	require.False(t, res.Installed)
	require.Len(t, mailer.welcome, 1)
	creds, err = svc.ShopCredentials(ctx, "rig.myshopify.com")
	require.NoError(t, err)
	require.Equal(t, "tok-2", creds.AccessToken)

	require.NoError(t, svc.Uninstall(ctx, "rig.myshopify.com"))
	require.Equal(t, []string{"owner@rig.example"}, mailer.goodbye)
	m, err := svc.GetByDomain(ctx, "rig.myshopify.com")
	require.NoError(t, err)
	require.Equal(t, types.MerchantStatusUninstalled, m.Status)
	_, err = svc.Credentials(ctx, m.StoreID)
	require.True(t, apperr.HasCode(err, apperr.CodeNotFound))

	// a repeated uninstall sends nothing
	require.NoError(t, svc.Uninstall(ctx, "rig.myshopify.com"))
	require.Len(t, mailer.goodbye, 1)

	res, err = svc.Register(ctx, RegisterRequest{Shop: "rig.myshopify.com", AccessToken: "tok-3"})
	require.NoError(t, err)
	require.True(t, res.Installed)
	require.Len(t, mailer.welcome, 2)

	var count int64
	require.NoError(t, svc.db.Model(&models.Merchant{}).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestService_RegisterRejects(t *testing.T) {
	ctx := context.Background()
	api := &fakeShopAPI{info: testShopInfo()}
	svc := New(dbtest.New(t), api, &fakeMailer{}, zap.NewNop().Sugar())

	tests := []struct {
		name string
		req  RegisterRequest
		code apperr.Code
	}{
		{"bad domain", RegisterRequest{Shop: "evil.example.com", AccessToken: "x"}, apperr.CodeInvalidInput},
		{"no token", RegisterRequest{Shop: "rig.myshopify.com"}, apperr.CodeInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Register(ctx, tt.req)
			require.True(t, apperr.HasCode(err, tt.code), "got %v", err)
		})
	}
	require.Empty(t, api.calls)

	api.err = apperr.Wrap(apperr.CodeGatewayUnavailable, errors.New("boom"), "shopify shop query failed")
	_, err := svc.Register(ctx, RegisterRequest{Shop: "rig.myshopify.com", AccessToken: "x"})
	require.True(t, apperr.HasCode(err, apperr.CodeGatewayUnavailable))
	_, err = svc.GetByDomain(ctx, "rig.myshopify.com")
	require.True(t, apperr.HasCode(err, apperr.CodeNotFound))
}

func TestService_UninstallUnknownShop(t *testing.T) {
	mailer := &fakeMailer{}
	svc := New(dbtest.New(t), &fakeShopAPI{}, mailer, zap.NewNop().Sugar())
	require.NoError(t, svc.Uninstall(context.Background(), "ghost.myshopify.com"))
	require.NoError(t, svc.Uninstall(context.Background(), ""))
	require.Empty(t, mailer.goodbye)
}
