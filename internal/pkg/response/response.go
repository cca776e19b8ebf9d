package response

import "github.com/gin-gonic/gin"

// Uniform envelope: {code, message, data}. HTTP status carries the class,
// code is a stable short machine-readable string.

func OK(c *gin.Context, statusCode int, data interface{}) {
	c.JSON(statusCode, gin.H{
		"code":    "OK",
		"message": "ok",
		"data":    data,
	})
}

func Fail(c *gin.Context, statusCode int, code string, message string) {
	c.JSON(statusCode, gin.H{
		"code":    code,
		"message": message,
		"data":    nil,
	})
}

func FailWithData(c *gin.Context, statusCode int, code string, message string, data any) {
	c.JSON(statusCode, gin.H{
		"code":    code,
		"message": message,
		"data":    data,
	})
}
