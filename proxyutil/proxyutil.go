package proxyutil

import (
	"github.com/gin-gonic/gin"

	"github.com/ValentinKolb/filegate/errs"
)

// Fail writes the error body with the status carried by the error.
func Fail(c *gin.Context, err error) {
	FailStatus(c, errs.CodeOf(err), err)
}

// FailStatus writes {"error": <message>} with an explicit status.
func FailStatus(c *gin.Context, status int, err error) {
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

// Success writes the payload as-is.
func Success(c *gin.Context, status int, data interface{}) {
	c.JSON(status, data)
}
