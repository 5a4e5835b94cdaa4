package httpserver

import (
	"log"
	"net/http"

	productrepo "shopcart-backend/internal/repository/product"

	"github.com/gin-gonic/gin"
)

type productHandlers struct {
	products productrepo.Repository
	logger   *log.Logger
}

func (h *productHandlers) list(c *gin.Context) {
	products, err := h.products.List(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": products})
}
