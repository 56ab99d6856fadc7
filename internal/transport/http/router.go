package httptransport

import (
	"log/slog"

	"github.com/cardotrejos/babypeek-sub000/internal/ratelimit"
	"github.com/cardotrejos/babypeek-sub000/internal/transport/http/handler"
	"github.com/cardotrejos/babypeek-sub000/internal/transport/http/middleware"
	"github.com/gin-gonic/gin"

	sloggin "github.com/samber/slog-gin"
)

func NewRouter(logger *slog.Logger, jobHandler *handler.JobHandler, limiter ratelimit.Store, limitSalt string, hmacKey []byte) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Security())
	r.Use(sloggin.New(logger))
	r.Use(middleware.Metrics())

	authMW := middleware.Auth(hmacKey)
	limitMW := middleware.RateLimit(limiter, limitSalt, logger)

	jobs := r.Group("/jobs", authMW)
	jobs.POST("", jobHandler.Create)
	jobs.GET("/:id", jobHandler.GetByID)

	// Generation costs real upstream budget, so only these routes sit
	// behind admission control.
	jobs.POST("/:id/generate", limitMW, jobHandler.Generate)
	jobs.POST("/:id/retry", limitMW, jobHandler.Retry)

	return r
}
