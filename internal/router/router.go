package router

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ecgcare/vault-api/internal/handler"
	authhandler "github.com/ecgcare/vault-api/internal/handler/auth"
	recordhandler "github.com/ecgcare/vault-api/internal/handler/record"
	scanhandler "github.com/ecgcare/vault-api/internal/handler/scan"
	"github.com/ecgcare/vault-api/internal/middleware"
	"github.com/ecgcare/vault-api/internal/model"
	"github.com/ecgcare/vault-api/pkg/metrics"
)

type Router struct {
	engine  *gin.Engine
	auth    *middleware.AuthMiddleware
	authH   *authhandler.Handler
	recordH *recordhandler.Handler
	scanH   *scanhandler.Handler
}

func NewRouter(
	auth *middleware.AuthMiddleware,
	authH *authhandler.Handler,
	recordH *recordhandler.Handler,
	scanH *scanhandler.Handler,
) *Router {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterValidation("access_role", func(fl validator.FieldLevel) bool {
			return model.Role(fl.Field().String()).Valid()
		})
	}

	r := &Router{
		engine:  engine,
		auth:    auth,
		authH:   authH,
		recordH: recordH,
		scanH:   scanH,
	}

	engine.Use(
		gin.Recovery(),
		middleware.Logger(),
		metricsMiddleware(),
	)

	r.registerRoutes()
	return r
}

func (r *Router) registerRoutes() {
	r.engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, handler.NewSuccessResponse(gin.H{"status": "healthy"}))
	})
	r.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.engine.Group("/api/v1")

	r.authH.RegisterRoutes(v1, r.auth)

	protected := v1.Group("")
	protected.Use(r.auth.Authenticate())
	r.recordH.RegisterRoutes(protected)
	r.scanH.RegisterRoutes(protected)
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}

func metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		metrics.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			strconv.Itoa(c.Writer.Status()),
		).Observe(time.Since(start).Seconds())
	}
}
