package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func HandleSuccess(c *gin.Context, data interface{}, message string) {
	c.JSON(http.StatusOK, &Response{
		Success:   true,
		Data:      data,
		Message:   message,
		Code:      http.StatusOK,
		RequestID: GetRequestID(c),
	})
}

func HandleCreated(c *gin.Context, data interface{}, message string) {
	c.JSON(http.StatusCreated, &Response{
		Success:   true,
		Data:      data,
		Message:   message,
		Code:      http.StatusCreated,
		RequestID: GetRequestID(c),
	})
}

// HandleAccepted 用于已受理但结果待定的请求（可重试失败、批量任务被跳过）。
func HandleAccepted(c *gin.Context, data interface{}, message string) {
	c.JSON(http.StatusAccepted, &Response{
		Success:   true,
		Data:      data,
		Message:   message,
		Code:      http.StatusAccepted,
		RequestID: GetRequestID(c),
	})
}
