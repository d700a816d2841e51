package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/fatflowers/pcbuilder/docs"
	"github.com/fatflowers/pcbuilder/internal/app/api/handlers"
	mw "github.com/fatflowers/pcbuilder/internal/app/api/middleware"
	"github.com/fatflowers/pcbuilder/internal/app/service/asset"
	"github.com/fatflowers/pcbuilder/internal/app/service/merchant"
	nh "github.com/fatflowers/pcbuilder/internal/app/service/notification_handler"
	"github.com/fatflowers/pcbuilder/internal/app/service/pricing"
	"github.com/fatflowers/pcbuilder/internal/app/service/statistics"
	"github.com/fatflowers/pcbuilder/internal/app/service/subscription"
	"github.com/fatflowers/pcbuilder/internal/app/service/support"
	"github.com/fatflowers/pcbuilder/internal/app/service/widget"
	cfgpkg "github.com/fatflowers/pcbuilder/pkg/config"
	metrics "github.com/fatflowers/pcbuilder/pkg/metrics"
)

const shutdownTimeout = 30 * time.Second

func newEngine(cfg *cfgpkg.Config) *gin.Engine {
	if cfg.Env != cfgpkg.EnvDev {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	// Add request tracing middleware only; request logger & access log are attached per group in registerRoutes
	r.Use(mw.TraceMiddleware())
	return r
}

type routeDeps struct {
	fx.In

	Engine        *gin.Engine
	Log           *zap.SugaredLogger
	Cfg           *cfgpkg.Config
	Notifications *nh.NotificationHandler
	Reconciler    *subscription.Reconciler
	Subscriptions *subscription.Store
	Merchants     *merchant.Service
	Plans         *pricing.Service
	Widgets       *widget.Service
	Support       *support.Service
	Assets        *asset.Service
	Stats         *statistics.Service
	Prometheus    *metrics.Prometheus
}

func newPrometheus(cfg *cfgpkg.Config, log *zap.SugaredLogger) *metrics.Prometheus {
	if cfg.MetricsAddr == "" {
		return nil
	}
	return metrics.NewPrometheus(metrics.NewPrometheusOptions{Subsystem: "http", Logger: log})
}

func registerRoutes(d routeDeps) {
	r, log, cfg := d.Engine, d.Log, d.Cfg
	if d.Prometheus != nil {
		d.Prometheus.Use(r)
	}

	// Public group: request logger + access log
	pub := r.Group("/")
	pub.Use(mw.RequestLoggerMiddleware(log), mw.AccessLogMiddleware())
	handlers.RegisterHealthRoutes(pub)
	// Swagger UI
	docs.SwaggerInfo.BasePath = "/"
	pub.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Webhooks authenticate by HMAC, not by session
	hooks := r.Group("/webhooks")
	hooks.Use(mw.RequestLoggerMiddleware(log), mw.AccessLogMiddleware())
	handlers.RegisterWebhookRoutes(hooks, d.Notifications, cfg.Shopify.APISecret, log)

	apiV1 := r.Group("/api/v1")
	apiV1.Use(mw.RequestLoggerMiddleware(log), mw.AccessLogMiddleware())

	// Embedded admin APIs, authenticated by the App Bridge session token
	session := apiV1.Group("")
	session.Use(mw.SessionTokenMiddleware(cfg.Shopify.APIKey, cfg.Shopify.APISecret, log))
	handlers.RegisterBillingRoutes(session.Group("/billing"), d.Reconciler, d.Plans, d.Merchants, log)
	handlers.RegisterWidgetRoutes(session.Group("/widgets"), d.Widgets, d.Merchants, log)
	handlers.RegisterSupportRoutes(session, d.Support, d.Assets, d.Merchants, log)

	// Operator APIs
	if cfg.AdminToken == "" {
		log.Warnw("admin token not configured; admin and merchant registration routes disabled")
		return
	}
	operator := apiV1.Group("")
	operator.Use(mw.AdminTokenMiddleware(cfg.AdminToken))
	handlers.RegisterMerchantRoutes(operator.Group("/merchants"), d.Merchants, log)
	handlers.RegisterAdminRoutes(operator.Group("/admin"), d.Subscriptions, d.Stats, log)
}

func runServer(lc fx.Lifecycle, log *zap.SugaredLogger, cfg *cfgpkg.Config, r *gin.Engine) {
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 5 * time.Second}
	appendServer(lc, log, "HTTP server", srv)
}

// runMetricsServer serves the scrape endpoint on its own listener.
func runMetricsServer(lc fx.Lifecycle, log *zap.SugaredLogger, cfg *cfgpkg.Config, p *metrics.Prometheus) {
	if p == nil {
		return
	}
	srv := &http.Server{Addr: cfg.MetricsAddr, Handler: p.Handler(), ReadHeaderTimeout: 5 * time.Second}
	appendServer(lc, log, "metrics server", srv)
}

func appendServer(lc fx.Lifecycle, log *zap.SugaredLogger, name string, srv *http.Server) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Infow("starting "+name, "addr", srv.Addr)
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Errorf("%s error: %v", name, err)
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Infow("stopping " + name)
			shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

var Module = fx.Options(
	fx.Provide(newEngine, newPrometheus),
	fx.Invoke(registerRoutes),
	fx.Invoke(runServer),
	fx.Invoke(runMetricsServer),
)
