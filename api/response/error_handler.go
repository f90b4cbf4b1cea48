package response

import (
	stdErrors "errors"
	"net/http"
	"runtime"

	"paytx/application/batch"
	"paytx/domain/shared"
	"paytx/infrastructure/lock"
	"paytx/pkg/errors"
	"paytx/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var httpStatusMap = map[errors.ErrorCode]int{
	errors.CodeInternal:       http.StatusInternalServerError,
	errors.CodeBadRequest:     http.StatusBadRequest,
	errors.CodeNotFound:       http.StatusNotFound,
	errors.CodeConflict:       http.StatusConflict,
	errors.CodeTooManyRequest: http.StatusTooManyRequests,
	errors.CodeValidation:     http.StatusBadRequest,
	errors.CodeUnavailable:    http.StatusServiceUnavailable,
	errors.CodeTimeout:        http.StatusGatewayTimeout,

	errors.CodeOrderNotFound:     http.StatusNotFound,
	errors.CodeOrderIncomplete:   http.StatusUnprocessableEntity,
	errors.CodeDuplicateOrder:    http.StatusConflict,
	errors.CodeInvalidOrderState: http.StatusUnprocessableEntity,
	errors.CodeConcurrentModify:  http.StatusConflict,
	errors.CodeChannelFailed:     http.StatusBadGateway,
}

func mapErrorCodeToHTTPStatus(code errors.ErrorCode) int {
	if status, ok := httpStatusMap[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

func GetRequestID(c *gin.Context) string {
	if requestID, exists := c.Get(RequestIDKey); exists {
		if id, ok := requestID.(string); ok {
			return id
		}
	}
	return ""
}

func captureStack(skip int) []string {
	var pcs [16]uintptr
	n := runtime.Callers(skip, pcs[:])
	frames := runtime.CallersFrames(pcs[:n])

	stack := make([]string, 0, 5)
	for i := 0; i < 5; i++ {
		frame, more := frames.Next()
		if frame.Function != "" {
			stack = append(stack, frame.Function)
		}
		if !more {
			break
		}
	}
	return stack
}

// HandleError 处理参数绑定等框架层错误。
func HandleError(c *gin.Context, err error, message string, code int) {
	requestID := GetRequestID(c)

	logger.Warn(message,
		zap.String("request_id", requestID),
		zap.String("path", c.Request.URL.Path),
		zap.String("method", c.Request.Method),
		zap.Int("status", code),
		zap.Error(err))

	c.JSON(code, &Response{
		Success:   false,
		Error:     string(errors.CodeBadRequest),
		Message:   message,
		Code:      code,
		RequestID: requestID,
	})
}

// HandleAppError 按应用错误码自动映射 HTTP 状态码。
func HandleAppError(c *gin.Context, err error) {
	requestID := GetRequestID(c)
	appErr := toAppError(err)
	httpStatus := mapErrorCodeToHTTPStatus(appErr.Code)

	fields := []zap.Field{
		zap.String("request_id", requestID),
		zap.String("path", c.Request.URL.Path),
		zap.String("method", c.Request.Method),
		zap.String("error_code", string(appErr.Code)),
		zap.Int("http_status", httpStatus),
	}
	if appErr.Err != nil {
		fields = append(fields, zap.Error(appErr.Err))
	}

	// 4xx 是调用方问题，只有 5xx 才带堆栈记 error
	if httpStatus >= http.StatusInternalServerError {
		fields = append(fields, zap.Strings("stack", extractStack(err)))
		logger.Error(appErr.Message, fields...)
	} else {
		logger.Warn(appErr.Message, fields...)
	}

	userMessage := appErr.Message
	if appErr.Code == errors.CodeInternal {
		userMessage = "internal server error"
	}

	c.JSON(httpStatus, &Response{
		Success:   false,
		Error:     string(appErr.Code),
		Message:   userMessage,
		Code:      httpStatus,
		RequestID: requestID,
	})
}

// toAppError 先处理基础设施层的哨兵错误，其余交给领域映射。
func toAppError(err error) *errors.AppError {
	switch {
	case stdErrors.Is(err, lock.ErrInterrupted):
		return errors.Unavailable(err, "request interrupted while waiting for the order lease")
	case stdErrors.Is(err, lock.ErrAcquisition):
		return errors.Unavailable(err, "order lease unavailable")
	case stdErrors.Is(err, batch.ErrUnknownJob):
		return errors.Wrap(err, errors.CodeNotFound, "unknown batch job")
	}
	return errors.FromDomainError(err)
}

func extractStack(err error) []string {
	var stacker shared.Stacker
	if stdErrors.As(err, &stacker) {
		if stack := stacker.Stack(); len(stack) > 0 {
			return stack
		}
	}
	return captureStack(4)
}
