package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/flicky/storefront-api/internal/dto"
	"github.com/flicky/storefront-api/internal/service"
)

// AdminHandler serves user management and store analytics. Every route is
// mounted behind AdminOnly.
type AdminHandler struct {
	users     *service.UserService
	analytics *service.AnalyticsService
}

func NewAdminHandler(users *service.UserService, analytics *service.AnalyticsService) *AdminHandler {
	return &AdminHandler{users: users, analytics: analytics}
}

func (h *AdminHandler) ListUsers(c *gin.Context) {
	users, err := h.users.List(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, users)
}

func (h *AdminHandler) DeleteUser(c *gin.Context) {
	id, ok := uuidParam(c, "id", "invalid user ID")
	if !ok {
		return
	}
	if err := h.users.Delete(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *AdminHandler) MakeAdmin(c *gin.Context) {
	id, ok := uuidParam(c, "id", "invalid user ID")
	if !ok {
		return
	}
	user, err := h.users.MakeAdmin(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *AdminHandler) Analytics(c *gin.Context) {
	summary, err := h.analytics.Summary(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.AnalyticsResponse{
		TotalUsers:   summary.TotalUsers,
		TotalOrders:  summary.TotalOrders,
		TotalRevenue: summary.TotalRevenue,
	})
}
