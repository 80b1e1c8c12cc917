package server

import (
	"strings"

	"github.com/gin-gonic/gin"
)

const maxIdempotencyKeyLength = 128

func idempotencyKeyFromHeader(c *gin.Context) (string, error) {
	key := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
	if len(key) > maxIdempotencyKeyLength {
		return "", newValidationError("Idempotency-Key", "invalid_idempotency_key", "idempotency key is too long")
	}
	return key, nil
}
