package web

import (
	"errors"
	"net/http"
	"time"

	"OrderAtlas/src/processor"

	"github.com/gin-gonic/gin"
)

// ErrorResponse 统一的错误响应
type ErrorResponse struct {
	Success   bool        `json:"success"`
	Error     ErrorDetail `json:"error"`
	Timestamp string      `json:"timestamp"`
	Path      string      `json:"path"`
	Method    string      `json:"method"`
}

// ErrorDetail 错误详情
type ErrorDetail struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// SuccessResponse 统一的成功响应
type SuccessResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data"`
	Timestamp string      `json:"timestamp"`
}

// 错误码
const (
	ErrCodeBadRequest          = "BAD_REQUEST"
	ErrCodeNotFound            = "NOT_FOUND"
	ErrCodeValidationError     = "VALIDATION_ERROR"
	ErrCodeInsufficientSample  = "INSUFFICIENT_SAMPLE"
	ErrCodeDataUnavailable     = "DATA_UNAVAILABLE"
	ErrCodeJoinKeyMismatch     = "JOIN_KEY_MISMATCH"
	ErrCodeInternalServer      = "INTERNAL_SERVER_ERROR"
	ErrCodeUnprocessableEntity = "UNPROCESSABLE_ENTITY"
)

func RespondWithError(c *gin.Context, statusCode int, errorCode, message string, details interface{}) {
	c.JSON(statusCode, ErrorResponse{
		Success: false,
		Error: ErrorDetail{
			Code:    errorCode,
			Message: message,
			Details: details,
		},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Path:      c.Request.URL.Path,
		Method:    c.Request.Method,
	})
}

func RespondWithSuccess(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, SuccessResponse{
		Success:   true,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// ValidationError 请求参数错误
func ValidationError(c *gin.Context, field string, err error) {
	RespondWithError(c, http.StatusBadRequest, ErrCodeValidationError, "invalid parameter",
		gin.H{"field": field, "reason": err.Error()})
}

// RespondWithPipelineError 把流水线错误映射为状态码
func RespondWithPipelineError(c *gin.Context, err error) {
	var (
		insufficient *processor.InsufficientSampleSizeError
		source       *processor.DataSourceError
		mismatch     *processor.JoinKeyMismatchError
	)
	switch {
	case errors.As(err, &insufficient):
		RespondWithError(c, http.StatusUnprocessableEntity, ErrCodeInsufficientSample, "not enough data in range",
			gin.H{"requested": insufficient.Requested, "population": insufficient.Population})
	case errors.Is(err, processor.ErrSampleSizeOutOfRange):
		RespondWithError(c, http.StatusBadRequest, ErrCodeValidationError, err.Error(),
			gin.H{"field": "sample"})
	case errors.As(err, &source):
		RespondWithError(c, http.StatusServiceUnavailable, ErrCodeDataUnavailable, "data unavailable",
			gin.H{"source": source.Source, "column": source.Column, "reason": err.Error()})
	case errors.Is(err, processor.ErrDataSource):
		RespondWithError(c, http.StatusServiceUnavailable, ErrCodeDataUnavailable, "data unavailable",
			gin.H{"reason": err.Error()})
	case errors.As(err, &mismatch):
		RespondWithError(c, http.StatusInternalServerError, ErrCodeJoinKeyMismatch, "source schema drifted",
			gin.H{"table": mismatch.Table, "key": mismatch.Key})
	default:
		RespondWithError(c, http.StatusInternalServerError, ErrCodeInternalServer, err.Error(), nil)
	}
}
