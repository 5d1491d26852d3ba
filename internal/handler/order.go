package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/flicky/storefront-api/internal/dto"
	"github.com/flicky/storefront-api/internal/middleware"
	"github.com/flicky/storefront-api/internal/model"
	"github.com/flicky/storefront-api/internal/service"
)

type OrderHandler struct {
	svc *service.OrderService
}

func NewOrderHandler(svc *service.OrderService) *OrderHandler {
	return &OrderHandler{svc: svc}
}

func (h *OrderHandler) CreateOrder(c *gin.Context) {
	var req dto.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	in := service.CheckoutInput{
		ShippingAddress: req.ShippingAddress,
		PaymentMethod:   req.PaymentMethod,
		TotalAmount:     req.TotalAmount,
	}
	if req.Items != nil {
		in.Items = make([]model.CartItem, 0, len(req.Items))
		for _, line := range req.Items {
			in.Items = append(in.Items, model.CartItem{ProductID: line.ProductID, Quantity: line.Quantity, UnitPrice: line.Price})
		}
	}

	order, err := h.svc.Checkout(c.Request.Context(), middleware.GetUserID(c), in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, dto.OrderMessageResponse{Message: "Order created", Order: dto.NewOrderResponse(order)})
}

func (h *OrderHandler) ListOrders(c *gin.Context) {
	orders, err := h.svc.List(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewOrderListResponse(orders))
}

func (h *OrderHandler) ListMyOrders(c *gin.Context) {
	orders, err := h.svc.ListByUserID(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewOrderListResponse(orders))
}

func (h *OrderHandler) GetOrder(c *gin.Context) {
	id, ok := uuidParam(c, "id", "invalid order ID")
	if !ok {
		return
	}
	order, err := h.svc.GetByID(c.Request.Context(), id, middleware.GetUserID(c), middleware.IsAdmin(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewOrderResponse(order))
}

func (h *OrderHandler) UpdateStatus(c *gin.Context) {
	id, ok := uuidParam(c, "id", "invalid order ID")
	if !ok {
		return
	}
	var req dto.UpdateOrderStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	order, err := h.svc.UpdateStatus(c.Request.Context(), id, req.Status)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.OrderMessageResponse{Message: "Order status updated", Order: dto.NewOrderResponse(order)})
}

func (h *OrderHandler) CancelOrder(c *gin.Context) {
	id, ok := uuidParam(c, "id", "invalid order ID")
	if !ok {
		return
	}
	order, err := h.svc.Cancel(c.Request.Context(), id, middleware.GetUserID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.OrderMessageResponse{Message: "Order cancelled", Order: dto.NewOrderResponse(order)})
}

func (h *OrderHandler) History(c *gin.Context) {
	id, ok := uuidParam(c, "id", "invalid order ID")
	if !ok {
		return
	}
	history, err := h.svc.History(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]dto.OrderStatusChangeResponse, 0, len(history))
	for _, change := range history {
		out = append(out, dto.OrderStatusChangeResponse{
			EventID: change.EventID, From: change.From, To: change.To, ChangedAt: change.ChangedAt,
		})
	}
	c.JSON(http.StatusOK, out)
}
