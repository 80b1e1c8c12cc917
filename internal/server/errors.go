package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	orderdomain "github.com/railzwaylabs/bullion/internal/order/domain"
	paymentdomain "github.com/railzwaylabs/bullion/internal/payment/domain"
	pricedomain "github.com/railzwaylabs/bullion/internal/price/domain"
	productdomain "github.com/railzwaylabs/bullion/internal/product/domain"
	quotadomain "github.com/railzwaylabs/bullion/internal/quota/domain"
	ratedomain "github.com/railzwaylabs/bullion/internal/rate/domain"
	"github.com/railzwaylabs/bullion/pkg/db/pagination"
	"go.uber.org/zap"
)

const (
	errorTypeInvalidRequest = "invalid_request_error"
	errorTypeNotFound       = "resource_not_found"
	errorTypeConflict       = "conflict_error"
	errorTypeAuthentication = "authentication_error"
	errorTypePermission     = "permission_error"
	errorTypeProvider       = "payment_provider_error"
	errorTypeRateLimit      = "rate_limit_error"
	errorTypeAPI            = "api_error"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
)

// APIError is the JSON body of every failed request.
type APIError struct {
	Status  int    `json:"-"`
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

func (e *APIError) Error() string { return e.Message }

type ErrorResponse struct {
	Error *APIError `json:"error"`
}

func invalidRequestError() *APIError {
	return &APIError{
		Status:  http.StatusBadRequest,
		Type:    errorTypeInvalidRequest,
		Code:    "invalid_request",
		Message: "invalid request",
	}
}

func newValidationError(field, code, message string) *APIError {
	return &APIError{
		Status:  http.StatusBadRequest,
		Type:    errorTypeInvalidRequest,
		Code:    code,
		Message: message,
		Field:   field,
	}
}

func notFoundError(code, message string) *APIError {
	return &APIError{Status: http.StatusNotFound, Type: errorTypeNotFound, Code: code, Message: message}
}

func conflictError(code, message string) *APIError {
	return &APIError{Status: http.StatusConflict, Type: errorTypeConflict, Code: code, Message: message}
}

type validationMapping struct {
	err   error
	field string
}

var validationErrors = []validationMapping{
	{ratedomain.ErrInvalidDate, "date"},
	{ratedomain.ErrInvalidMaterial, ""},
	{ratedomain.ErrInvalidPurity, ""},
	{ratedomain.ErrInvalidRate, ""},
	{ratedomain.ErrEmptyRates, ""},
	{pricedomain.ErrInvalidKind, "price.kind"},
	{pricedomain.ErrInvalidBaseValue, "price.base_value"},
	{pricedomain.ErrMissingFormula, "price.formula"},
	{pricedomain.ErrInvalidFormula, "price.formula"},
	{pricedomain.ErrInvalidCurrency, "price.currency"},
	{productdomain.ErrInvalidID, "id"},
	{productdomain.ErrInvalidName, "name"},
	{productdomain.ErrInvalidItemID, "item_id"},
	{productdomain.ErrInvalidStock, "stock"},
	{productdomain.ErrInvalidMaterial, "attributes.material"},
	{productdomain.ErrInvalidWeight, "attributes.weight"},
	{orderdomain.ErrInvalidUserID, "user_id"},
	{orderdomain.ErrInvalidID, "id"},
	{orderdomain.ErrEmptyItems, "items"},
	{orderdomain.ErrInvalidQuantity, "items.quantity"},
	{orderdomain.ErrInvalidProductID, "items.product_id"},
	{orderdomain.ErrInsufficientStock, "items.quantity"},
	{orderdomain.ErrInvalidUnitPrice, "items"},
	{orderdomain.ErrCurrencyMismatch, "items"},
	{orderdomain.ErrInvalidStatus, "status"},
	{orderdomain.ErrInvalidTransition, "status"},
	{paymentdomain.ErrInvalidID, "id"},
	{paymentdomain.ErrInvalidOrderID, "order_id"},
	{paymentdomain.ErrInvalidUserID, "user_id"},
	{paymentdomain.ErrInvalidAmount, "amount"},
	{paymentdomain.ErrInvalidMethod, "method"},
	{paymentdomain.ErrExceedsRemaining, "amount"},
	{paymentdomain.ErrOrderNotPayable, "order_id"},
	{pagination.ErrInvalidPageToken, "page_token"},
}

var notFoundErrors = []error{
	ratedomain.ErrNotFound,
	productdomain.ErrNotFound,
	orderdomain.ErrNotFound,
	orderdomain.ErrProductNotFound,
	orderdomain.ErrPriceNotFound,
	paymentdomain.ErrNotFound,
	paymentdomain.ErrOrderNotFound,
}

var conflictErrors = []error{
	productdomain.ErrDuplicateItemID,
	orderdomain.ErrConcurrentUpdate,
	paymentdomain.ErrIdempotencyReused,
}

func toAPIError(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	switch {
	case errors.Is(err, ErrUnauthorized):
		return &APIError{Status: http.StatusUnauthorized, Type: errorTypeAuthentication, Code: "unauthorized", Message: "authentication required"}
	case errors.Is(err, quotadomain.ErrOrderQuotaExceeded), errors.Is(err, quotadomain.ErrPaymentQuotaExceeded):
		return &APIError{Status: http.StatusTooManyRequests, Type: errorTypeRateLimit, Code: codeFor(err), Message: "too many requests, retry shortly"}
	case errors.Is(err, ErrForbidden):
		return &APIError{Status: http.StatusForbidden, Type: errorTypePermission, Code: "forbidden", Message: "insufficient permissions"}
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return newValidationError(fe.Field(), "invalid_"+fe.Tag(), fe.Error())
	}

	for _, m := range validationErrors {
		if errors.Is(err, m.err) {
			return newValidationError(m.field, codeFor(m.err), err.Error())
		}
	}
	for _, target := range notFoundErrors {
		if errors.Is(err, target) {
			return notFoundError(codeFor(target), err.Error())
		}
	}
	for _, target := range conflictErrors {
		if errors.Is(err, target) {
			return conflictError(codeFor(target), err.Error())
		}
	}

	switch {
	case errors.Is(err, paymentdomain.ErrProviderFailed), errors.Is(err, paymentdomain.ErrProviderResponse), errors.Is(err, paymentdomain.ErrUnknownProvider):
		return &APIError{Status: http.StatusBadGateway, Type: errorTypeProvider, Code: "provider_error", Message: err.Error()}
	case errors.Is(err, orderdomain.ErrOrderConsistency):
		return &APIError{Status: http.StatusInternalServerError, Type: errorTypeAPI, Code: "consistency_error", Message: "internal error"}
	}
	return &APIError{Status: http.StatusInternalServerError, Type: errorTypeAPI, Code: "internal_error", Message: "internal error"}
}

func codeFor(sentinel error) string {
	return strings.ReplaceAll(sentinel.Error(), " ", "_")
}

// bindError keeps validator failures field-specific and hides decoder
// details behind a generic invalid request.
func bindError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		return err
	}
	return invalidRequestError()
}

// AbortWithError writes the error envelope and stops the handler chain.
func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	apiErr := toAPIError(err)
	if apiErr.Status >= http.StatusInternalServerError {
		if log, ok := c.Get(contextLoggerKey); ok {
			log.(*zap.Logger).Error("request failed", zap.Error(err))
		}
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(apiErr.Status, ErrorResponse{Error: apiErr})
}
