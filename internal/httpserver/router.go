package httpserver

import (
	"log"
	"time"

	productrepo "shopcart-backend/internal/repository/product"
	authsvc "shopcart-backend/internal/service/auth"
	cartsvc "shopcart-backend/internal/service/cart"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Deps carries the services the router exposes.
type Deps struct {
	CartSvc     *cartsvc.Service
	AuthSvc     *authsvc.Service
	ProductRepo productrepo.Repository
	CORSOrigins []string
}

// buildRouter wires routes for the API.
func buildRouter(logger *log.Logger, db *pgxpool.Pool, deps Deps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.LoggerWithWriter(logger.Writer()), gin.Recovery())

	if len(deps.CORSOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     deps.CORSOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Authorization", "Content-Type", cartTokenHeader},
			ExposeHeaders:    []string{cartTokenHeader},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	router.GET("/healthz", healthHandler)
	router.GET("/readyz", readyHandler(db))

	ah := &authHandlers{auth: deps.AuthSvc, logger: logger}
	router.POST("/auth/signup", ah.signup)
	router.POST("/auth/login", ah.login)

	ph := &productHandlers{products: deps.ProductRepo, logger: logger}
	router.GET("/products", ph.list)

	ch := &cartHandlers{carts: deps.CartSvc, logger: logger}
	cart := router.Group("/cart", ownerContextMiddleware(deps.AuthSvc))
	{
		cart.GET("", ch.display)
		cart.GET("/quantity", ch.totalQuantity)
		cart.POST("/items", ch.addItem)
		cart.PUT("/items/:detailId", ch.updateLine)
		cart.POST("/items/:detailId/save", ch.saveLine)
		cart.POST("/items/:detailId/activate", ch.activateLine)
		cart.PUT("/note", ch.setNote)
		cart.DELETE("", ch.deleteCart)
		cart.POST("/sync", requireUser(), ch.sync)
	}

	return router
}
