package http

import (
	"errors"
	"log"
	"net/http"

	"marketplace-orders/internal/domain"

	"github.com/gin-gonic/gin"
)

func statusOf(kind domain.Kind) int {
	switch kind {
	case domain.KindValidation, domain.KindInvalidVoucher, domain.KindMinOrderNotMet, domain.KindInvalidAddress:
		return http.StatusBadRequest
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindInsufficientInventory, domain.KindInvalidOrderState:
		return http.StatusConflict
	case domain.KindUnauthorized:
		return http.StatusForbidden
	case domain.KindExternalService:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// writeError renders err with the status of its kind. Unclassified errors
// are logged and answered with a generic message.
func writeError(c *gin.Context, err error) {
	rid, _ := c.Get(ctxRequestID)

	var de *domain.Error
	if !errors.As(err, &de) {
		log.Printf("[http] rid=%v %s %s: %v", rid, c.Request.Method, c.Request.URL.Path, err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "internal server error"})
		return
	}

	status := statusOf(de.Kind)
	msg := de.Msg
	if msg == "" {
		msg = de.Kind.String()
	}
	if status >= http.StatusInternalServerError {
		log.Printf("[http] rid=%v %s %s: %v", rid, c.Request.Method, c.Request.URL.Path, err)
		if status == http.StatusInternalServerError {
			msg = "internal server error"
		}
	}
	c.JSON(status, gin.H{"success": false, "error": msg})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
}

func ok(c *gin.Context, status int, data any) {
	c.JSON(status, gin.H{"success": true, "data": data})
}
