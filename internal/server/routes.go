package server

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/openmined/docsync/internal/config"
	"github.com/openmined/docsync/internal/server/handlers/trigger"
	"github.com/openmined/docsync/internal/server/middlewares"
	"github.com/openmined/docsync/internal/version"
)

func SetupRoutes(cfg *config.ServerConfig, svc *Services) (http.Handler, error) {
	r := gin.New()

	rateLimit, err := middlewares.RateLimiter(cfg.RateLimit)
	if err != nil {
		return nil, fmt.Errorf("rate limit %q: %w", cfg.RateLimit, err)
	}

	triggerH := trigger.New(svc.Runner, svc.History, svc.Dispatcher)

	r.Use(middlewares.Logger())
	r.Use(gin.Recovery())
	r.Use(middlewares.GZIP())
	r.Use(middlewares.CORS())

	r.GET("/", IndexHandler)
	r.GET("/healthz", HealthHandler)

	// trigger name used by the deployed scraper
	r.GET("/api/httpTriggerScraping", rateLimit, triggerH.Legacy)

	v1 := r.Group("/api/v1")
	{
		v1.GET("/sync/:target", rateLimit, triggerH.Sync)
		v1.POST("/sync/:target", rateLimit, triggerH.Sync)

		v1.GET("/targets", triggerH.Targets)
		v1.GET("/runs/:target", triggerH.Runs)
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "not found",
		})
	})

	r.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{
			"error": "method not allowed",
		})
	})

	return r.Handler(), nil
}

func IndexHandler(ctx *gin.Context) {
	ctx.String(http.StatusOK, version.DetailedWithApp())
}

func HealthHandler(ctx *gin.Context) {
	ctx.PureJSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

func init() {
	gin.SetMode(gin.ReleaseMode)
}
