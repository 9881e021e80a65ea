package server

import (
	"context"
	"net/http"

	"github.com/famlyhq/famly/internal/config"
	"github.com/famlyhq/famly/internal/observability"
	reconciledomain "github.com/famlyhq/famly/internal/reconcile/domain"
	"github.com/famlyhq/famly/internal/reconcile/webhook"
	userdomain "github.com/famlyhq/famly/internal/user/domain"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("server",
	fx.Provide(New),
	fx.Invoke(Start),
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Cfg     config.Config
	Metrics *observability.Metrics

	WebhookSvc *webhook.Service
	Reconciler reconciledomain.Service
	UserRepo   userdomain.Repository
}

type Server struct {
	db      *gorm.DB
	log     *zap.Logger
	cfg     config.Config
	metrics *observability.Metrics

	webhookSvc *webhook.Service
	reconciler reconciledomain.Service
	userRepo   userdomain.Repository

	engine *gin.Engine
}

func New(p Params) *Server {
	s := &Server{
		db:      p.DB,
		log:     p.Log.Named("server"),
		cfg:     p.Cfg,
		metrics: p.Metrics,

		webhookSvc: p.WebhookSvc,
		reconciler: p.Reconciler,
		userRepo:   p.UserRepo,
	}
	s.engine = s.buildRouter()
	return s
}

func (s *Server) buildRouter() *gin.Engine {
	if s.cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", s.Health)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{})))

	v1 := r.Group("/v1")
	{
		v1.POST("/billing/webhook", s.HandleBillingWebhook)
		v1.POST("/purchases/verify", s.BearerRequired(), s.VerifyPurchase)
	}

	return r
}

func Start(lc fx.Lifecycle, s *Server) {
	srv := &http.Server{
		Addr:    s.cfg.Server.Addr,
		Handler: s.engine,
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				s.log.Info("http server listening", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					s.log.Error("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, s.cfg.Server.ShutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

func (s *Server) Health(c *gin.Context) {
	sqlDB, err := s.db.DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request.Context())
	}
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
