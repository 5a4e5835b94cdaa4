package httpserver

import (
	"log"
	"net/http"

	"shopcart-backend/internal/domain"
	cartsvc "shopcart-backend/internal/service/cart"

	"github.com/gin-gonic/gin"
)

type cartHandlers struct {
	carts  *cartsvc.Service
	logger *log.Logger
}

type addItemRequest struct {
	ProductID string `json:"productId" binding:"required"`
	Quantity  int    `json:"quantity" binding:"required"`
}

type updateLineRequest struct {
	Quantity  int   `json:"quantity" binding:"required"`
	VersionNo int64 `json:"versionNo" binding:"required"`
}

type versionedRequest struct {
	VersionNo int64 `json:"versionNo" binding:"required"`
}

type noteRequest struct {
	UserNote  string `json:"userNote"`
	VersionNo int64  `json:"versionNo" binding:"required"`
}

type deleteCartRequest struct {
	DetailID  string `json:"detailId"`
	ClearCart bool   `json:"clearCart"`
	VersionNo int64  `json:"versionNo" binding:"required"`
}

type syncRequest struct {
	Token string `json:"token" binding:"required"`
}

func (h *cartHandlers) addItem(c *gin.Context) {
	var req addItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := h.carts.AddItem(c.Request.Context(), ownerFrom(c), req.ProductID, req.Quantity)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if res.AnonymousToken != nil {
		c.Header(cartTokenHeader, *res.AnonymousToken)
	}
	c.JSON(http.StatusOK, res)
}

func (h *cartHandlers) display(c *gin.Context) {
	snap, err := h.carts.Display(c.Request.Context(), ownerFrom(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (h *cartHandlers) totalQuantity(c *gin.Context) {
	res, err := h.carts.TotalQuantity(c.Request.Context(), ownerFrom(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *cartHandlers) updateLine(c *gin.Context) {
	var req updateLineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := h.carts.UpdateLine(c.Request.Context(), ownerFrom(c), c.Param("detailId"), req.Quantity, req.VersionNo)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *cartHandlers) saveLine(c *gin.Context) {
	h.setLineStatus(c, domain.StatusSaved)
}

func (h *cartHandlers) activateLine(c *gin.Context) {
	h.setLineStatus(c, domain.StatusActive)
}

func (h *cartHandlers) setLineStatus(c *gin.Context, status domain.Status) {
	var req versionedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	snap, err := h.carts.SetLineStatus(c.Request.Context(), ownerFrom(c), c.Param("detailId"), status, req.VersionNo)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (h *cartHandlers) setNote(c *gin.Context) {
	var req noteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	snap, err := h.carts.SetUserNote(c.Request.Context(), ownerFrom(c), req.UserNote, req.VersionNo)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (h *cartHandlers) deleteCart(c *gin.Context) {
	var req deleteCartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !req.ClearCart && req.DetailID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "detailId required unless clearCart is set"})
		return
	}
	snap, err := h.carts.Delete(c.Request.Context(), ownerFrom(c), req.DetailID, req.ClearCart, req.VersionNo)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if snap == nil {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (h *cartHandlers) sync(c *gin.Context) {
	var req syncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	owner := ownerFrom(c)
	res, err := h.carts.Consolidate(c.Request.Context(), *owner.UserID, req.Token)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
