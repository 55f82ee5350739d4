package apperror

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const genericMessage = "Something went wrong!"

// Handler is the single place errors recorded with c.Error are turned into
// a response. In development the envelope carries per-field detail; in
// production only operational messages are exposed.
func Handler(development bool, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		err := c.Errors.Last().Err
		appErr, operational := Classify(err)

		fields := []zap.Field{
			zap.Error(err),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
		}
		if operational {
			log.Warn("request failed", append(fields, zap.String("kind", string(appErr.Kind)))...)
		} else {
			log.Error("unhandled error", fields...)
		}

		if c.Writer.Written() {
			return
		}

		if development {
			sendDev(c, appErr, err, operational)
			return
		}
		sendProd(c, appErr, operational)
	}
}

func sendDev(c *gin.Context, appErr *Error, err error, operational bool) {
	if !operational {
		c.JSON(500, gin.H{
			"status":     "error",
			"statusCode": 500,
			"errors":     gin.H{"error": []string{err.Error()}},
		})
		return
	}
	c.JSON(appErr.StatusCode, gin.H{
		"status":     appErr.Status(),
		"statusCode": appErr.StatusCode,
		"errors":     appErr.FieldErrors(),
	})
}

func sendProd(c *gin.Context, appErr *Error, operational bool) {
	if !operational {
		c.JSON(500, gin.H{"status": "error", "message": genericMessage})
		return
	}
	c.JSON(appErr.StatusCode, gin.H{"status": appErr.Status(), "message": appErr.Message})
}

// Abort records err for Handler and stops the handler chain.
func Abort(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}
