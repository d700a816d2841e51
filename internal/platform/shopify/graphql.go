package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/fatflowers/pcbuilder/pkg/apperr"
	"github.com/fatflowers/pcbuilder/pkg/config"
	"github.com/fatflowers/pcbuilder/pkg/metrics"
)

var Module = fx.Options(
	fx.Provide(New),
)

// Shop identifies the Admin API a call goes to.
type Shop struct {
	Domain      string
	AccessToken string
}

type GraphQLError struct {
	Message    string `json:"message"`
	Path       []any  `json:"path,omitempty"`
	Extensions struct {
		Code string `json:"code,omitempty"`
	} `json:"extensions,omitempty"`
}

type GraphQLResponse[T any] struct {
	Data   T              `json:"data"`
	Errors []GraphQLError `json:"errors"`
}

// UserError is the userErrors item shared by Admin API mutations.
type UserError struct {
	Field   []string `json:"field"`
	Message string   `json:"message"`
}

// Client talks to the Shopify GraphQL Admin API.
type Client struct {
	http       *http.Client
	apiVersion string
	l          *zap.SugaredLogger
	// endpoint builds the GraphQL URL of a shop; replaced in tests.
	endpoint func(shopDomain string) string
}

func New(cfg *config.Config, l *zap.SugaredLogger) *Client {
	timeout := cfg.Shopify.HTTPTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	c := &Client{
		http:       &http.Client{Timeout: timeout},
		apiVersion: cfg.Shopify.APIVersion,
		l:          l,
	}
	c.endpoint = func(shopDomain string) string {
		return fmt.Sprintf("https://%s/admin/api/%s/graphql.json", shopDomain, c.apiVersion)
	}
	return c
}

// NewWithEndpoint points the client at a fixed GraphQL URL.
func NewWithEndpoint(endpoint string, httpClient *http.Client, l *zap.SugaredLogger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		http:     httpClient,
		l:        l,
		endpoint: func(string) string { return endpoint },
	}
}

// PostGraphQL sends one query. Transport failures, non-2xx replies, bodies
// that are not JSON and top-level GraphQL errors all map to
// GATEWAY_UNAVAILABLE.
func PostGraphQL[T any](ctx context.Context, c *Client, shop Shop, operation, query string, variables any) (*T, error) {
	start := time.Now()
	out, err := postGraphQL[T](ctx, c, shop, query, variables)
	metrics.ObserveGateway(operation, start, err)
	if err != nil {
		c.l.Warnw("shopify graphql call failed", "operation", operation, "shop", shop.Domain, "err", err)
		return nil, apperr.Wrap(apperr.CodeGatewayUnavailable, err, fmt.Sprintf("shopify %s failed", operation))
	}
	return out, nil
}

func postGraphQL[T any](ctx context.Context, c *Client, shop Shop, query string, variables any) (*T, error) {
	if shop.Domain == "" || shop.AccessToken == "" {
		return nil, fmt.Errorf("missing shop domain or access token")
	}
	b, err := json.Marshal(map[string]any{
		"query":     query,
		"variables": variables,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal graphql body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(shop.Domain), bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Shopify-Access-Token", shop.AccessToken)

	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call admin api: %w", err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read admin api response: %w", err)
	}
	if res.StatusCode/100 != 2 {
		return nil, fmt.Errorf("admin api returned status %d", res.StatusCode)
	}

	var out GraphQLResponse[T]
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to decode admin api response: %w", err)
	}
	if len(out.Errors) > 0 {
		msgs := make([]string, 0, len(out.Errors))
		for _, e := range out.Errors {
			msgs = append(msgs, e.Message)
		}
		return nil, fmt.Errorf("graphql errors: %s", strings.Join(msgs, "; "))
	}
	return &out.Data, nil
}

func toFieldErrors(in []UserError) []apperr.FieldError {
	out := make([]apperr.FieldError, 0, len(in))
	for _, ue := range in {
		out = append(out, apperr.FieldError{Field: ue.Field, Message: ue.Message})
	}
	return out
}
