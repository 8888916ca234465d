package responses

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/malan-ai/malan-server/internal/infrastructure/logger"
	"github.com/malan-ai/malan-server/internal/utils/platformerrors"
)

// errorLogger receives platform errors answered with a 5xx status.
var errorLogger = logger.GetLogger

// ErrorResponse represents an error response with platform error details
type ErrorResponse struct {
	Code          string `json:"code,omitempty"` // UUID from PlatformError
	Error         string `json:"error"`
	Message       string `json:"message,omitempty"`
	ErrorInstance error  `json:"-"`
	RequestID     string `json:"request_id,omitempty"`
}

// HandleError handles domain errors and returns appropriate HTTP responses
func HandleError(reqCtx *gin.Context, err error, message string) {
	var domainErr *platformerrors.PlatformError
	if errors.As(err, &domainErr) {
		HandleErrorWithStatus(reqCtx, platformerrors.ErrorTypeToHTTPStatus(domainErr.GetErrorType()), err, message)
		return
	}
	// Non-platform errors
	HandleErrorWithStatus(reqCtx, http.StatusInternalServerError, err, message)
}

// HandleErrorWithStatus writes err with a fixed status code. The platform
// error message, when present, wins over message.
func HandleErrorWithStatus(reqCtx *gin.Context, statusCode int, err error, message string) {
	errResp := ErrorResponse{
		Error:         message,
		Message:       message,
		ErrorInstance: err,
		RequestID:     platformerrors.RequestIDFromContext(reqCtx.Request.Context()),
	}

	var domainErr *platformerrors.PlatformError
	if errors.As(err, &domainErr) {
		if domainErr.Message != "" {
			errResp.Error = domainErr.Message
			errResp.Message = domainErr.Message
		}
		errResp.Code = domainErr.GetUUID()
		if id := domainErr.GetRequestID(); id != "" {
			errResp.RequestID = id
		}
		if statusCode >= http.StatusInternalServerError {
			platformerrors.LogError(errorLogger(), domainErr)
		}
	}

	if err != nil {
		_ = reqCtx.Error(err)
	}
	reqCtx.AbortWithStatusJSON(statusCode, errResp)
}

// HandleNewError creates a new typed error at the route layer and handles it
func HandleNewError(reqCtx *gin.Context, errorType platformerrors.ErrorType, message string, uuid string) {
	ctx := reqCtx.Request.Context()
	err := platformerrors.NewError(ctx, platformerrors.LayerRoute, errorType, message, nil, uuid)
	HandleErrorWithStatus(reqCtx, platformerrors.ErrorTypeToHTTPStatus(errorType), err, message)
}
