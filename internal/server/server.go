package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/loomworks/loomline/internal/authorization"
	"github.com/loomworks/loomline/internal/collection"
	"github.com/loomworks/loomline/internal/config"
	"github.com/loomworks/loomline/internal/events"
	"github.com/loomworks/loomline/internal/order"
	orderdomain "github.com/loomworks/loomline/internal/order/domain"
	"github.com/loomworks/loomline/internal/sample"
	sampledomain "github.com/loomworks/loomline/internal/sample/domain"
	"github.com/loomworks/loomline/internal/tracking"
	trackingdomain "github.com/loomworks/loomline/internal/tracking/domain"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Provide(NewHTTPMetrics),
	authorization.Module,
	events.Module,
	collection.Module,
	tracking.Module,
	order.Module,
	sample.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(log *zap.Logger, httpMetrics *HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(log))
	r.Use(MetricsMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(log *zap.Logger, httpMetrics *HTTPMetrics) *gin.Engine {
	return NewEngine(log, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine       *gin.Engine
	cfg          config.Config
	db           *gorm.DB
	genID        *snowflake.Node
	orderSvc     orderdomain.Service
	sampleSvc    sampledomain.Service
	trackingRepo trackingdomain.Repository
	hub          *events.Hub
	metrics      *HTTPMetrics
}

type ServerParams struct {
	fx.In

	Gin          *gin.Engine
	Cfg          config.Config
	DB           *gorm.DB
	GenID        *snowflake.Node
	OrderSvc     orderdomain.Service
	SampleSvc    sampledomain.Service
	TrackingRepo trackingdomain.Repository
	Hub          *events.Hub  `optional:"true"`
	Metrics      *HTTPMetrics `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:       p.Gin,
		cfg:          p.Cfg,
		db:           p.DB,
		genID:        p.GenID,
		orderSvc:     p.OrderSvc,
		sampleSvc:    p.SampleSvc,
		trackingRepo: p.TrackingRepo,
		hub:          p.Hub,
		metrics:      p.Metrics,
	}

	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	v1 := s.engine.Group("/v1", ActorResolver())

	orders := v1.Group("/orders")
	orders.POST("", s.CreateOrder)
	orders.GET("", s.ListOrders)
	orders.GET("/:id", s.GetOrder)
	orders.GET("/:id/history", s.OrderHistory)
	orders.GET("/:id/tracking", s.OrderTracking)
	orders.GET("/:id/events", s.StreamOrderEvents)
	orders.POST("/:id/transition", s.TransitionOrder)

	samples := v1.Group("/samples")
	samples.POST("", s.CreateSample)
	samples.GET("", s.ListSamples)
	samples.GET("/:id", s.GetSample)
	samples.GET("/:id/history", s.SampleHistory)
	samples.GET("/:id/tracking", s.SampleTracking)
	samples.GET("/:id/events", s.StreamSampleEvents)
	samples.POST("/:id/transition", s.TransitionSample)

	me := v1.Group("/me")
	me.GET("/order-events", s.StreamMyOrderEvents)
	me.GET("/sample-events", s.StreamMySampleEvents)
}
