package docserver

import (
	"net/http"
	"strings"

	"github.com/gin-contrib/secure"
	"github.com/gin-gonic/gin"
	"github.com/openmined/notesync/internal/docsdk"
	"github.com/ulule/limiter/v3"
	mgin "github.com/ulule/limiter/v3/drivers/middleware/gin"
	"github.com/ulule/limiter/v3/drivers/store/memory"
)

const (
	bearerPrefix      = "Bearer "
	authHeader        = "Authorization"
	subjectContextKey = "subject"
)

// JWTAuth rejects requests without a valid bearer token
func JWTAuth(cfg *AuthConfig) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		value := ctx.GetHeader(authHeader)
		if !strings.HasPrefix(value, bearerPrefix) {
			abortWithError(ctx, http.StatusUnauthorized, docsdk.CodeUnauthorized, "authorization header must be Bearer {token}")
			return
		}

		claims, err := ParseToken(strings.TrimPrefix(value, bearerPrefix), cfg)
		if err != nil {
			abortWithError(ctx, http.StatusUnauthorized, docsdk.CodeUnauthorized, err.Error())
			return
		}

		ctx.Set(subjectContextKey, claims.Subject)
		ctx.Next()
	}
}

// RateLimiter limits requests per client ip, e.g. "20-S" or "1000-H"
func RateLimiter(formattedRate string) (gin.HandlerFunc, error) {
	rate, err := limiter.NewRateFromFormatted(formattedRate)
	if err != nil {
		return nil, err
	}
	l := limiter.New(memory.NewStore(), rate)
	return mgin.NewMiddleware(
		l,
		mgin.WithLimitReachedHandler(func(c *gin.Context) {
			c.PureJSON(http.StatusTooManyRequests, docsdk.NewAPIError(docsdk.CodeRateLimited, "rate limit exceeded"))
		}),
		mgin.WithErrorHandler(func(c *gin.Context, err error) {
			c.PureJSON(http.StatusInternalServerError, docsdk.NewAPIError(docsdk.CodeInternalError, err.Error()))
		}),
	), nil
}

func abortWithError(ctx *gin.Context, status int, code, message string) {
	ctx.AbortWithStatusJSON(status, docsdk.NewAPIError(code, message))
}

// SecurityHeaders sets the usual hardening headers. HSTS and the https
// redirect are only enabled when the server terminates TLS itself.
func SecurityHeaders(tls bool) gin.HandlerFunc {
	cfg := secure.Config{
		FrameDeny:          true,
		ContentTypeNosniff: true,
		BrowserXssFilter:   true,
		IENoOpen:           true,
		ReferrerPolicy:     "no-referrer",
	}
	if tls {
		cfg.SSLRedirect = true
		cfg.STSSeconds = 315360000
		cfg.STSIncludeSubdomains = true
		cfg.SSLProxyHeaders = map[string]string{"X-Forwarded-Proto": "https"}
	}
	return secure.New(cfg)
}
