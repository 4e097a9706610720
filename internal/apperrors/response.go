package apperrors

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Respond writes err as {"error": message} with the mapped status code.
// Unclassified errors are logged and reported as a generic 500.
func Respond(c *gin.Context, logger *zap.Logger, err error) {
	status := HTTPStatus(err)
	if status >= 500 && logger != nil {
		logger.Error("Request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
	}
	c.AbortWithStatusJSON(status, gin.H{"error": PublicMessage(err)})
}
