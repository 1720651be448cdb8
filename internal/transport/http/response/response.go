package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	MessageSuccess  = "success"
	MessageInternal = "Internal server error"
)

// Envelope is the body of every JSON response. Data is null when absent.
type Envelope struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

func JSON(c *gin.Context, httpStatus int, message string, data any) {
	c.JSON(httpStatus, Envelope{
		Status:  httpStatus,
		Message: message,
		Data:    data,
	})
}

func OK(c *gin.Context, message string, data any) {
	JSON(c, http.StatusOK, message, data)
}

func Error(c *gin.Context, httpStatus int, message string) {
	JSON(c, httpStatus, message, nil)
}

// Abort writes the error envelope and stops the handler chain.
func Abort(c *gin.Context, httpStatus int, message string) {
	c.AbortWithStatusJSON(httpStatus, Envelope{
		Status:  httpStatus,
		Message: message,
	})
}

func Internal(c *gin.Context) {
	Error(c, http.StatusInternalServerError, MessageInternal)
}
