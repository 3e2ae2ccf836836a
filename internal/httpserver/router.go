package httpserver

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"clientportal/internal/api"
	"clientportal/pkg/mq"
	"clientportal/pkg/rbac"
)

type Router struct {
	Engine *gin.Engine
}

func NewRouter(
	authHandler *api.AuthHandler,
	projectHandler *api.ProjectHandler,
	paymentHandler *api.PaymentHandler,
	invoiceHandler *api.InvoiceHandler,
	outboxHandler *api.OutboxHandler,
	db *pgxpool.Pool,
	publisher *mq.Publisher,
	jwtSecret string,
) *Router {
	r := gin.Default()
	r.Use(TraceMiddleware(), MetricsMiddleware())

	// Health endpoints
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.HEAD("/healthz", func(c *gin.Context) {
		c.Status(200)
	})
	r.GET("/readyz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c, 1*time.Second)
		defer cancel()

		if err := db.Ping(ctx); err != nil {
			c.JSON(500, gin.H{"status": "db_not_ready", "error": err.Error()})
			return
		}
		if publisher != nil && !publisher.IsConnected() {
			c.JSON(500, gin.H{"status": "mq_not_ready"})
			return
		}
		c.JSON(200, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Public
	r.POST("/register", authHandler.Register)
	r.POST("/login", authHandler.Login)

	// Authenticated
	authed := r.Group("/")
	authed.Use(AuthMiddleware(jwtSecret))
	{
		authed.GET("/projects", projectHandler.List)
		authed.GET("/projects/:id", projectHandler.Get)
		authed.GET("/projects/:id/payments", paymentHandler.ListByProject)
		authed.POST("/payments/:id/submit", RequirePermission(rbac.PermissionSubmitPayment), paymentHandler.Submit)
		authed.GET("/payments/:id/invoice", RequirePermission(rbac.PermissionDownloadInvoice), invoiceHandler.Download)

		// Admin back-office
		admin := authed.Group("/")
		{
			admin.PATCH("/projects/:id/progression", RequirePermission(rbac.PermissionUpdateProgression), projectHandler.UpdateProgression)
			admin.POST("/projects/:id/payments", RequirePermission(rbac.PermissionCreateObligation), paymentHandler.CreateManual)
			admin.POST("/payments/:id/approve", RequirePermission(rbac.PermissionApprovePayment), paymentHandler.Approve)
			admin.POST("/payments/:id/resubmission", RequirePermission(rbac.PermissionRequestResubmit), paymentHandler.RequestResubmission)
			admin.GET("/outbox/failed", RequirePermission(rbac.PermissionManageOutbox), outboxHandler.ListFailed)
			admin.POST("/outbox/:id/replay", RequirePermission(rbac.PermissionManageOutbox), outboxHandler.Replay)
		}
	}

	return &Router{Engine: r}
}

func (r *Router) Run(port string) error {
	return r.Engine.Run(port)
}
