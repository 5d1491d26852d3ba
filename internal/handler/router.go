package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/flicky/storefront-api/internal/logger"
	"github.com/flicky/storefront-api/internal/middleware"
)

type RouterConfig struct {
	Log          *zap.Logger
	JWTSecret    string
	AllowOrigins []string
	// Extra middleware installed after logging and recovery, e.g. tracing.
	Middleware []gin.HandlerFunc

	Auth    *AuthHandler
	Product *ProductHandler
	Cart    *CartHandler
	Order   *OrderHandler
	Admin   *AdminHandler
	Health  *HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(logger.GinMiddleware(cfg.Log), logger.Recovery(cfg.Log))
	if len(cfg.AllowOrigins) > 0 {
		router.Use(middleware.CORS(cfg.AllowOrigins))
	}
	router.Use(cfg.Middleware...)

	if cfg.Health != nil {
		router.GET("/healthz", cfg.Health.Healthz)
		router.GET("/readyz", cfg.Health.Readyz)
	}

	authRequired := middleware.AuthMiddleware(cfg.JWTSecret)
	adminOnly := middleware.AdminOnly()

	api := router.Group("/api")
	{
		auth := api.Group("/auth")
		auth.POST("/register", cfg.Auth.Register)
		auth.POST("/login", cfg.Auth.Login)
		auth.GET("/profile", authRequired, cfg.Auth.Profile)
		auth.PUT("/profile", authRequired, cfg.Auth.UpdateProfile)

		products := api.Group("/products")
		products.GET("", cfg.Product.List)
		products.GET("/:id", cfg.Product.GetByID)
		products.POST("", authRequired, adminOnly, cfg.Product.Create)
		products.PUT("/:id", authRequired, adminOnly, cfg.Product.Update)
		products.DELETE("/:id", authRequired, adminOnly, cfg.Product.Delete)

		cart := api.Group("/cart", authRequired)
		cart.GET("", cfg.Cart.GetCart)
		cart.POST("", cfg.Cart.AddItem)
		cart.PUT("/item/:productId", cfg.Cart.UpdateItem)
		cart.DELETE("/item/:productId", cfg.Cart.RemoveItem)
		cart.DELETE("/clear", cfg.Cart.Clear)

		orders := api.Group("/orders", authRequired)
		orders.POST("", cfg.Order.CreateOrder)
		orders.GET("", adminOnly, cfg.Order.ListOrders)
		orders.GET("/my", cfg.Order.ListMyOrders)
		orders.GET("/:id", cfg.Order.GetOrder)
		orders.PUT("/:id", adminOnly, cfg.Order.UpdateStatus)
		orders.PUT("/:id/cancel", cfg.Order.CancelOrder)
		orders.GET("/:id/history", adminOnly, cfg.Order.History)

		users := api.Group("/users", authRequired, adminOnly)
		users.GET("", cfg.Admin.ListUsers)
		users.DELETE("/:id", cfg.Admin.DeleteUser)
		users.PUT("/:id/admin", cfg.Admin.MakeAdmin)

		api.GET("/admin/analytics", authRequired, adminOnly, cfg.Admin.Analytics)
	}

	return router
}
