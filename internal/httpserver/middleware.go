package httpserver

import (
	"net/http"
	"strings"

	authsvc "shopcart-backend/internal/service/auth"
	cartsvc "shopcart-backend/internal/service/cart"

	"github.com/gin-gonic/gin"
)

// cartTokenHeader carries the anonymous cart token on guest requests.
const cartTokenHeader = "X-Cart-Token"

const ownerCtxKey = "ownerContext"

// ownerContextMiddleware builds the explicit owner context for the cart
// engine: a valid bearer token resolves to a user id, the cart token header
// (or token query param) addresses an anonymous cart. Both may be present
// during the login-transition window; an invalid bearer token is treated as
// anonymous rather than rejected, because guest flows carry no credentials.
func ownerContextMiddleware(auth *authsvc.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var owner cartsvc.OwnerContext

		if header := c.GetHeader("Authorization"); strings.HasPrefix(header, "Bearer ") {
			raw := strings.TrimPrefix(header, "Bearer ")
			if userID, err := auth.Resolve(c.Request.Context(), raw); err == nil {
				owner.UserID = &userID
			}
		}

		token := c.GetHeader(cartTokenHeader)
		if token == "" {
			token = c.Query("token")
		}
		if token != "" {
			owner.AnonymousToken = &token
		}

		c.Set(ownerCtxKey, owner)
		c.Next()
	}
}

// requireUser rejects requests whose owner context has no authenticated user.
func requireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		owner := ownerFrom(c)
		if owner.UserID == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		c.Next()
	}
}

func ownerFrom(c *gin.Context) cartsvc.OwnerContext {
	if v, ok := c.Get(ownerCtxKey); ok {
		if owner, ok := v.(cartsvc.OwnerContext); ok {
			return owner
		}
	}
	return cartsvc.OwnerContext{}
}
