package middleware

import (
	"errors"
	"net/http"

	"contestplane/pkg/errutil"

	"github.com/gin-gonic/gin"
)

// Error renders the last handler error as a structured JSON body.
func Error() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		err := c.Errors.Last()
		if err == nil {
			return
		}

		var be errutil.BaseError
		if errors.As(err.Err, &be) {
			c.JSON(be.Code.HTTPStatus(), be.JSON())
			return
		}

		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{
				"code":    errutil.StatusInternal,
				"message": err.Error(),
			},
		})
	}
}
