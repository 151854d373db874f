package api

import (
	"net/http"

	"backoffice-service/internal/service"
	"backoffice-service/internal/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// errorResponse is the body of every failed request
type errorResponse struct {
	Message string                 `json:"message"`
	Code    string                 `json:"code"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func statusFor(k service.Kind) int {
	switch k {
	case service.KindValidation, service.KindBusinessRule:
		return http.StatusBadRequest
	case service.KindNotFound:
		return http.StatusNotFound
	case service.KindConflict:
		return http.StatusConflict
	case service.KindUnauthorized:
		return http.StatusUnauthorized
	case service.KindForbidden:
		return http.StatusForbidden
	}
	return http.StatusInternalServerError
}

func errorBody(c *gin.Context, err error) (int, errorResponse) {
	svcErr := service.AsError(err)
	if svcErr.Kind == service.KindUnexpected {
		util.GetLogger().Error("Request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
	}
	return statusFor(svcErr.Kind), errorResponse{
		Message: svcErr.Message,
		Code:    svcErr.Code,
		Details: svcErr.Details,
	}
}

func respondError(c *gin.Context, err error) {
	status, body := errorBody(c, err)
	c.JSON(status, body)
}

func abortWithError(c *gin.Context, err error) {
	status, body := errorBody(c, err)
	c.AbortWithStatusJSON(status, body)
}

// bindJSON decodes the request body and answers 400 when it is malformed
func bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		respondError(c, service.ValidationError(service.CodeValidation, "Invalid request body").
			With("error", err.Error()))
		return false
	}
	return true
}
