package server

import (
	"github.com/gin-gonic/gin"
	orderdomain "github.com/railzwaylabs/bullion/internal/order/domain"
	"github.com/railzwaylabs/bullion/pkg/db/pagination"
)

type orderItemRequest struct {
	ProductID string `json:"product_id" binding:"required"`
	Quantity  int64  `json:"quantity"`
}

type createOrderRequest struct {
	Items []orderItemRequest `json:"items"`
}

type updateOrderStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// @Summary      Create Order
// @Description  Price the requested products and place an order for the caller
// @Tags         orders
// @Accept       json
// @Produce      json
// @Param        X-User-ID  header  string  true  "Caller"
// @Param        request body createOrderRequest true "Create Order Request"
// @Success      201  {object}  DataResponse
// @Failure      400  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse
// @Router       /orders [post]
func (s *Server) CreateOrder(c *gin.Context) {
	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindError(err))
		return
	}

	caller := callerFrom(c)
	if err := s.checkOrderQuota(c, caller.UserID); err != nil {
		AbortWithError(c, err)
		return
	}

	items := make([]orderdomain.ItemRequest, len(req.Items))
	for i, item := range req.Items {
		items[i] = orderdomain.ItemRequest{ProductID: item.ProductID, Quantity: item.Quantity}
	}

	order, err := s.orderSvc.Create(c.Request.Context(), orderdomain.CreateRequest{
		UserID: caller.UserID,
		Items:  items,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respondCreated(c, order)
}

// @Summary      My Orders
// @Description  Orders of the caller, most recent first
// @Tags         orders
// @Produce      json
// @Param        page_token  query  string  false  "Page Token"
// @Param        page_size   query  int     false  "Page Size"
// @Success      200  {object}  ListResponse
// @Router       /orders/my-orders [get]
func (s *Server) ListMyOrders(c *gin.Context) {
	var query pagination.Pagination
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.orderSvc.ListByUser(c.Request.Context(), orderdomain.ListRequest{
		UserID:    callerFrom(c).UserID,
		PageToken: query.PageToken,
		PageSize:  query.PageSize,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respondList(c, resp.Orders, &resp.PageInfo)
}

// @Summary      Get Order
// @Tags         orders
// @Produce      json
// @Param        id   path      string  true  "Order ID"
// @Success      200  {object}  DataResponse
// @Failure      404  {object}  ErrorResponse
// @Router       /orders/{id} [get]
func (s *Server) GetOrder(c *gin.Context) {
	order, err := s.orderSvc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	caller := callerFrom(c)
	if order.UserID != caller.UserID && !caller.IsAdmin() {
		AbortWithError(c, orderdomain.ErrNotFound)
		return
	}

	respondData(c, order)
}

// @Summary      Update Order Status
// @Description  Fulfil or cancel an order
// @Tags         orders
// @Accept       json
// @Produce      json
// @Param        id   path      string  true  "Order ID"
// @Param        request body updateOrderStatusRequest true "New status"
// @Success      200  {object}  DataResponse
// @Failure      400  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse
// @Router       /orders/{id}/status [patch]
func (s *Server) UpdateOrderStatus(c *gin.Context) {
	var req updateOrderStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindError(err))
		return
	}

	order, err := s.orderSvc.UpdateStatus(c.Request.Context(), c.Param("id"), req.Status)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respondData(c, order)
}
