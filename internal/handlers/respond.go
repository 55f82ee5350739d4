package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
)

func respondList(c *gin.Context, total int64, docs []bson.M) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "success",
		"total":   total,
		"results": len(docs),
		"data":    docs,
	})
}

func respondDocument(c *gin.Context, status int, message string, doc bson.M) {
	body := gin.H{"status": "success", "data": gin.H{"data": doc}}
	if message != "" {
		body["message"] = message
	}
	c.JSON(status, body)
}

func respondDeleted(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "success", "message": "Deleted successfully", "data": nil})
}
