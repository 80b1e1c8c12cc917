package server

import (
	"github.com/gin-gonic/gin"
	paymentdomain "github.com/railzwaylabs/bullion/internal/payment/domain"
)

type initiatePaymentRequest struct {
	OrderID string  `json:"order_id" binding:"required"`
	Amount  float64 `json:"amount" binding:"gt=0"`
	Method  string  `json:"method" binding:"required,payment_method"`
}

// @Summary      Initiate Payment
// @Description  Charge part or all of the remaining balance of an order
// @Tags         payments
// @Accept       json
// @Produce      json
// @Param        X-User-ID        header  string  true   "Caller"
// @Param        Idempotency-Key  header  string  false  "Idempotency Key"
// @Param        request body initiatePaymentRequest true "Initiate Payment Request"
// @Success      201  {object}  DataResponse
// @Failure      400  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse
// @Failure      502  {object}  ErrorResponse
// @Router       /payments/initiate [post]
func (s *Server) InitiatePayment(c *gin.Context) {
	var req initiatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindError(err))
		return
	}
	caller := callerFrom(c)
	if err := s.checkPaymentQuota(c, caller.UserID); err != nil {
		AbortWithError(c, err)
		return
	}
	key, err := idempotencyKeyFromHeader(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	payment, err := s.paymentSvc.Initiate(c.Request.Context(), paymentdomain.InitiateRequest{
		UserID:         caller.UserID,
		OrderID:        req.OrderID,
		Amount:         req.Amount,
		Method:         req.Method,
		IdempotencyKey: key,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respondCreated(c, payment)
}

// @Summary      Get Payment
// @Tags         payments
// @Produce      json
// @Param        id   path      string  true  "Payment ID"
// @Success      200  {object}  DataResponse
// @Failure      404  {object}  ErrorResponse
// @Router       /payments/{id} [get]
func (s *Server) GetPayment(c *gin.Context) {
	payment, err := s.paymentSvc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	caller := callerFrom(c)
	if payment.UserID != caller.UserID && !caller.IsAdmin() {
		AbortWithError(c, paymentdomain.ErrNotFound)
		return
	}

	respondData(c, payment)
}

// @Summary      Verify Payment
// @Description  Ask the provider about a pending payment and settle it
// @Tags         payments
// @Produce      json
// @Param        id   path      string  true  "Payment ID"
// @Success      200  {object}  DataResponse
// @Failure      404  {object}  ErrorResponse
// @Failure      502  {object}  ErrorResponse
// @Router       /payments/{id}/verify [post]
func (s *Server) VerifyPayment(c *gin.Context) {
	payment, err := s.paymentSvc.Verify(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, payment)
}
