package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"media-broker/internal/broker"
)

const (
	codeSuccess  = 0
	codeNotFound = 1 // fast-upload: proceed to upload
)

// envelope is the response body of every endpoint. Error responses carry
// the HTTP status as Code and an empty object as Data.
type envelope struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

func writeOK(c *gin.Context, data any, message string, code int) {
	c.JSON(http.StatusOK, envelope{Code: code, Message: message, Data: data})
}

func writeError(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, envelope{Code: status, Message: message, Data: gin.H{}})
}

// classify maps a workflow error onto an HTTP status and client message.
// Causes stay in the server log.
func classify(err error) (int, string) {
	var verr *broker.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, verr.Message
	case errors.Is(err, broker.ErrObjectNotFound):
		return http.StatusNotFound, "object not found"
	case errors.Is(err, broker.ErrObjectCheckFailed):
		return http.StatusBadGateway, "object check failed"
	case errors.Is(err, broker.ErrCredentialIssue), errors.Is(err, broker.ErrCredentialExpired):
		return http.StatusInternalServerError, "sts failed"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}
