package shopify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fatflowers/pcbuilder/pkg/apperr"
	"github.com/fatflowers/pcbuilder/pkg/types"
)

type capturedRequest struct {
	Token     string
	Query     string
	Variables map[string]any
}

func newTestServer(t *testing.T, status int, reply string, captured *capturedRequest) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if captured != nil {
			captured.Token = r.Header.Get("X-Shopify-Access-Token")
			raw, _ := io.ReadAll(r.Body)
			var body struct {
				Query     string         `json:"query"`
				Variables map[string]any `json:"variables"`
			}
			_ = json.Unmarshal(raw, &body)
			captured.Query = body.Query
			captured.Variables = body.Variables
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(reply))
	}))
	t.Cleanup(srv.Close)
	return NewWithEndpoint(srv.URL, srv.Client(), zap.NewNop().Sugar())
}

var testShop = Shop{Domain: "demo.myshopify.com", AccessToken: "shpat_test"}

func TestCreateCharge(t *testing.T) {
	req := CreateChargeRequest{
		Name:      "Premium",
		ReturnURL: "https://admin.shopify.com/store/demo/apps/pc-builder/app/pricing",
		Amount:    decimal.RequireFromString("20"),
		Currency:  "USD",
		Interval:  types.PlanIntervalEvery30Days,
		Test:      true,
	}

	tests := []struct {
		name     string
		status   int
		reply    string
		wantCode apperr.Code
		wantID   string
	}{
		{
			name:   "success",
			status: http.StatusOK,
			reply:  `{"data":{"appSubscriptionCreate":{"userErrors":[],"appSubscription":{"id":"gid://shopify/AppSubscription/123","status":"PENDING"},"confirmationUrl":"https://confirm"}}}`,
			wantID: "123",
		},
		{
			name:     "user errors",
			status:   http.StatusOK,
			reply:    `{"data":{"appSubscriptionCreate":{"userErrors":[{"field":["lineItems"],"message":"bad price"}],"appSubscription":null,"confirmationUrl":null}}}`,
			wantCode: apperr.CodeBillingRejected,
		},
		{
			name:     "top level errors",
			status:   http.StatusOK,
			reply:    `{"errors":[{"message":"Throttled"}]}`,
			wantCode: apperr.CodeGatewayUnavailable,
		},
		{
			name:     "non 2xx",
			status:   http.StatusBadGateway,
			reply:    `oops`,
			wantCode: apperr.CodeGatewayUnavailable,
		},
		{
			name:     "not json",
			status:   http.StatusOK,
			reply:    `<html>`,
			wantCode: apperr.CodeGatewayUnavailable,
		},
		{
			name:     "missing payload",
			status:   http.StatusOK,
			reply:    `{"data":{}}`,
			wantCode: apperr.CodeGatewayUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var captured capturedRequest
			c := newTestServer(t, tt.status, tt.reply, &captured)

			charge, err := c.CreateCharge(context.Background(), testShop, req)
			if tt.wantCode != "" {
				require.Error(t, err)
				require.Equal(t, tt.wantCode, apperr.CodeOf(err))
				require.Nil(t, charge)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.wantID, charge.ID)
			require.Equal(t, "https://confirm", charge.ConfirmationURL)
			require.Equal(t, types.BillingStatusPending, charge.Status)
			require.Equal(t, "shpat_test", captured.Token)
			require.Contains(t, captured.Query, "appSubscriptionCreate")
			require.Equal(t, true, captured.Variables["test"])
		})
	}
}

func TestCreateCharge_UserErrorsCarryFields(t *testing.T) {
	c := newTestServer(t, http.StatusOK, `{"data":{"appSubscriptionCreate":{"userErrors":[{"field":["name"],"message":"is blank"}]}}}`, nil)
	_, err := c.CreateCharge(context.Background(), testShop, CreateChargeRequest{Amount: decimal.NewFromInt(5)})
	ae := apperr.As(err)
	require.NotNil(t, ae)
	require.Equal(t, []apperr.FieldError{{Field: []string{"name"}, Message: "is blank"}}, ae.Fields())
}

func TestCancelCharge_SendsGID(t *testing.T) {
	var captured capturedRequest
	c := newTestServer(t, http.StatusOK, `{"data":{"appSubscriptionCancel":{"userErrors":[],"appSubscription":{"id":"gid://shopify/AppSubscription/77","status":"CANCELLED"}}}}`, &captured)

	charge, err := c.CancelCharge(context.Background(), testShop, "77")
	require.NoError(t, err)
	require.Equal(t, types.BillingStatusCancelled, charge.Status)
	require.Equal(t, "gid://shopify/AppSubscription/77", captured.Variables["id"])
	require.Equal(t, true, captured.Variables["prorate"])
}

func TestPostGraphQL_MissingCredentials(t *testing.T) {
	c := newTestServer(t, http.StatusOK, `{}`, nil)
	_, err := c.CancelCharge(context.Background(), Shop{Domain: "demo.myshopify.com"}, "1")
	require.Equal(t, apperr.CodeGatewayUnavailable, apperr.CodeOf(err))
}
