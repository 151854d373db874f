package api

import (
	"net/http"
	"strconv"
	"time"

	"backoffice-service/internal/auth"
	"backoffice-service/internal/service"
	"backoffice-service/internal/store"
	"backoffice-service/internal/util"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func init() {
	// prices and totals are JSON numbers on the wire
	decimal.MarshalJSONWithoutQuotes = true
}

// TokenVerifier checks bearer tokens
type TokenVerifier interface {
	Verify(token string) (*auth.Claims, error)
}

// ReadinessProbe reports the database connection state
type ReadinessProbe interface {
	State() store.State
}

// Services groups the business services behind the API
type Services struct {
	Orders   *service.OrderService
	Catalog  *service.CatalogService
	Clients  *service.ClientService
	Accounts *service.AccountService
}

// Handler contains HTTP handlers
type Handler struct {
	orders   *service.OrderService
	catalog  *service.CatalogService
	clients  *service.ClientService
	accounts *service.AccountService
	tokens   TokenVerifier
	ready    ReadinessProbe
	logger   *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(svcs Services, tokens TokenVerifier, ready ReadinessProbe) *Handler {
	return &Handler{
		orders:   svcs.Orders,
		catalog:  svcs.Catalog,
		clients:  svcs.Clients,
		accounts: svcs.Accounts,
		tokens:   tokens,
		ready:    ready,
		logger:   util.GetLogger(),
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine, corsOrigins []string) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(cors.New(corsConfig(corsOrigins)))

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	api.GET("/health", h.healthCheck)
	api.GET("/ready", h.readinessCheck)
	api.POST("/login", h.login)
	api.POST("/register", h.register)
	api.POST("/forgot-password", h.forgotPassword)
	api.POST("/reset-password", h.resetPassword)

	authed := api.Group("", h.authRequired())
	{
		authed.GET("/me", h.me)

		authed.POST("/orders", h.createOrder)
		authed.GET("/orders", h.listOrders)
		authed.GET("/orders/stats/summary", h.orderStats)
		authed.GET("/orders/:id", h.getOrder)
		authed.PUT("/orders/:id", h.updateOrder)
		authed.PUT("/orders/:id/status", h.updateOrderStatus)
		authed.DELETE("/orders/:id", h.deleteOrder)

		authed.GET("/clients", h.listClients)
		authed.GET("/clients/:id", h.getClient)
		authed.POST("/clients", h.createClient)
		authed.PUT("/clients/:id", h.updateClient)
		authed.DELETE("/clients/:id", h.deleteClient)

		authed.GET("/products", h.listProducts)
		authed.GET("/products/:id", h.getProduct)
	}

	admin := authed.Group("", h.adminRequired())
	{
		admin.POST("/products", h.createProduct)
		admin.PUT("/products/:id", h.updateProduct)
		admin.DELETE("/products/:id", h.deleteProduct)

		admin.GET("/account-requests", h.listAccountRequests)
		admin.POST("/account-requests/:id/approve", h.approveAccountRequest)
		admin.POST("/account-requests/:id/reject", h.rejectAccountRequest)
		admin.GET("/users", h.listUsers)
		admin.DELETE("/users/:id", h.deleteUser)
	}
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Authorization", "Content-Type", "Idempotency-Key"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck reports ready only while the database answers
func (h *Handler) readinessCheck(c *gin.Context) {
	state := h.ready.State()
	status := http.StatusOK
	if state != store.StateReady {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{
		"status":   state.String(),
		"database": state.String(),
		"time":     time.Now().Unix(),
	})
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(c.Request.Method, path, status).Observe(duration)
		util.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
	}
}
