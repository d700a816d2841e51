package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/fatflowers/pcbuilder/internal/platform/shopify"
	"github.com/fatflowers/pcbuilder/pkg/apperr"
	"github.com/fatflowers/pcbuilder/pkg/logctx"
	"github.com/fatflowers/pcbuilder/pkg/response"
)

const HeaderAdminToken = "X-Admin-Token"

// SessionTokenMiddleware authenticates embedded admin requests with the
// Shopify session token sent as a bearer token. The shop from the dest claim
// is stored on the gin context and the request context, and added to the
// request logger.
func SessionTokenMiddleware(apiKey, apiSecret string, base *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := bearerToken(c)
		if !ok {
			abort(c, apperr.New(apperr.CodeUnauthorized, "missing session token"))
			return
		}
		shop, err := shopify.VerifySessionToken(raw, apiKey, apiSecret)
		if err != nil {
			logctx.FromGin(c, base).Warnw("session token rejected", "error", err)
			abort(c, apperr.Wrap(apperr.CodeUnauthorized, err, "invalid session token"))
			return
		}

		c.Set(logctx.GinKeyShop, shop)
		c.Request = c.Request.WithContext(logctx.WithShop(c.Request.Context(), shop))
		setLogger(c, logctx.FromGin(c, base).With("shop", shop))
		c.Next()
	}
}

// AdminTokenMiddleware guards operator routes with a static token, sent as
// X-Admin-Token or as a bearer token.
func AdminTokenMiddleware(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		got := c.GetHeader(HeaderAdminToken)
		if got == "" {
			got, _ = bearerToken(c)
		}
		if token == "" || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			abort(c, apperr.New(apperr.CodeUnauthorized, "invalid admin token"))
			return
		}
		c.Next()
	}
}

func bearerToken(c *gin.Context) (string, bool) {
	h := c.GetHeader("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func abort(c *gin.Context, err error) {
	status, body := response.FromError(err)
	c.AbortWithStatusJSON(status, body)
}
