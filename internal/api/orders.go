package api

import (
	"net/http"
	"strconv"

	"backoffice-service/internal/service"

	"github.com/gin-gonic/gin"
)

type statusRequest struct {
	Status string `json:"status"`
}

// createOrder handles order creation. A request repeating an earlier
// Idempotency-Key gets the original order back with 200.
func (h *Handler) createOrder(c *gin.Context) {
	var req service.OrderRequest
	if !bindJSON(c, &req) {
		return
	}

	view, created, err := h.orders.CreateOrder(c.Request.Context(), &req, c.GetHeader("Idempotency-Key"))
	if err != nil {
		respondError(c, err)
		return
	}

	if !created {
		c.JSON(http.StatusOK, gin.H{"message": "Order already created", "order": view})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Order created successfully", "order": view})
}

// listOrders handles paginated order listing
func (h *Handler) listOrders(c *gin.Context) {
	page, err := h.orders.ListOrders(c.Request.Context(), queryInt(c, "page"), queryInt(c, "limit"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// getOrder handles get order by ID
func (h *Handler) getOrder(c *gin.Context) {
	view, err := h.orders.GetOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// updateOrder re-validates and rewrites an order
func (h *Handler) updateOrder(c *gin.Context) {
	var req service.OrderRequest
	if !bindJSON(c, &req) {
		return
	}

	view, err := h.orders.UpdateOrder(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Order updated", "order": view})
}

// updateOrderStatus moves an order through its lifecycle
func (h *Handler) updateOrderStatus(c *gin.Context) {
	var req statusRequest
	if !bindJSON(c, &req) {
		return
	}

	view, err := h.orders.UpdateOrderStatus(c.Request.Context(), c.Param("id"), req.Status)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Order status updated", "order": view})
}

// deleteOrder removes an order and returns its stock
func (h *Handler) deleteOrder(c *gin.Context) {
	if err := h.orders.DeleteOrder(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Order deleted"})
}

// orderStats handles the order summary
func (h *Handler) orderStats(c *gin.Context) {
	stats, err := h.orders.Stats(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// queryInt reads an integer query parameter. Missing or malformed values
// read as 0 so that the service applies its default.
func queryInt(c *gin.Context, key string) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return 0
	}
	return v
}
