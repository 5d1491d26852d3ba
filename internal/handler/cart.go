package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/flicky/storefront-api/internal/dto"
	"github.com/flicky/storefront-api/internal/logger"
	"github.com/flicky/storefront-api/internal/middleware"
	"github.com/flicky/storefront-api/internal/model"
	"github.com/flicky/storefront-api/internal/service"
)

type CartHandler struct {
	svc *service.CartService
}

func NewCartHandler(svc *service.CartService) *CartHandler {
	return &CartHandler{svc: svc}
}

func (h *CartHandler) GetCart(c *gin.Context) {
	cart, err := h.svc.GetCart(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.render(c, cart))
}

func (h *CartHandler) AddItem(c *gin.Context) {
	var req dto.AddCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	quantity := 1
	if req.Quantity != nil {
		quantity = *req.Quantity
	}
	cart, err := h.svc.AddItem(c.Request.Context(), middleware.GetUserID(c), req.ProductID, quantity)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.render(c, cart))
}

func (h *CartHandler) UpdateItem(c *gin.Context) {
	productID, ok := productIDParam(c)
	if !ok {
		return
	}
	var req dto.UpdateCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	cart, err := h.svc.UpdateItem(c.Request.Context(), middleware.GetUserID(c), productID, *req.Quantity)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.render(c, cart))
}

func (h *CartHandler) RemoveItem(c *gin.Context) {
	productID, ok := productIDParam(c)
	if !ok {
		return
	}
	cart, err := h.svc.RemoveItem(c.Request.Context(), middleware.GetUserID(c), productID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.render(c, cart))
}

func (h *CartHandler) Clear(c *gin.Context) {
	cart, err := h.svc.Clear(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.ClearCartResponse{Message: "Cart cleared", Cart: h.render(c, cart)})
}

// render attaches current product details to the cart lines. The cart write
// has already happened, so a failed lookup degrades to a bare cart.
func (h *CartHandler) render(c *gin.Context, cart *model.Cart) dto.CartResponse {
	products, err := h.svc.LineProducts(c.Request.Context(), cart)
	if err != nil {
		logger.FromContext(c, nil).Warn("load cart products", zap.Error(err))
	}
	return dto.NewCartResponse(cart, products)
}

func productIDParam(c *gin.Context) (uuid.UUID, bool) {
	return uuidParam(c, "productId", "invalid product ID")
}

// uuidParam parses a path parameter and answers 400 itself when it is malformed.
func uuidParam(c *gin.Context, name, msg string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		badRequest(c, msg)
		return uuid.Nil, false
	}
	return id, true
}
