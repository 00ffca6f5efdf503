package docserver

import (
	"log/slog"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/openmined/notesync/internal/docsdk"
	"github.com/openmined/notesync/internal/version"
	slogGin "github.com/samber/slog-gin"
)

func SetupRoutes(cfg *Config, store *PageStore) (http.Handler, error) {
	r := gin.New()

	limit, err := RateLimiter(cfg.RateLimit)
	if err != nil {
		return nil, err
	}

	httpLogger := slog.Default().WithGroup("http")
	r.Use(slogGin.NewWithConfig(httpLogger, slogGin.Config{
		DefaultLevel:     slog.LevelInfo,
		ClientErrorLevel: slog.LevelWarn,
		ServerErrorLevel: slog.LevelError,
		WithRequestID:    true,
	}))
	r.Use(gin.Recovery())
	r.Use(SecurityHeaders(cfg.HTTP.CertFile != ""))
	r.Use(gzip.Gzip(gzip.BestSpeed))
	r.Use(cors.Default())

	r.GET("/", IndexHandler)
	r.GET("/healthz", HealthHandler)

	pages := NewPageHandler(store)

	v1 := r.Group("/api/v1")
	v1.Use(limit, JWTAuth(&cfg.Auth))
	{
		v1.POST("/pages", pages.Create)
		v1.GET("/pages/:id", pages.Get)
		v1.PATCH("/pages/:id", pages.Update)
		v1.DELETE("/pages/:id", pages.Archive)
		v1.GET("/pages/:id/children", pages.Children)
		v1.GET("/pages/:id/content", pages.Content)
	}

	r.NoRoute(func(c *gin.Context) {
		c.PureJSON(http.StatusNotFound, docsdk.NewAPIError(docsdk.CodeInvalidRequest, "not found"))
	})

	return r.Handler(), nil
}

func IndexHandler(ctx *gin.Context) {
	ctx.String(http.StatusOK, "docserver "+version.Detailed())
}

func HealthHandler(ctx *gin.Context) {
	ctx.PureJSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

func init() {
	gin.SetMode(gin.ReleaseMode)
}
