package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Brownie44l1/leaf-api/internal/flagging"
	"github.com/Brownie44l1/leaf-api/internal/inference"
	"github.com/Brownie44l1/leaf-api/internal/model"
)

// ErrorResponse represents a structured error response
type ErrorResponse struct {
	StatusCode int
	Code       string
	Message    string
}

// MapError maps pipeline and store errors to HTTP error responses.
func MapError(err error) ErrorResponse {
	switch {
	case errors.Is(err, inference.ErrInvalidImage):
		return ErrorResponse{
			StatusCode: http.StatusBadRequest,
			Code:       "INVALID_IMAGE",
			Message:    "invalid image format. Supported: JPEG, PNG, GIF",
		}
	case errors.Is(err, inference.ErrInvalidArgument):
		return ErrorResponse{
			StatusCode: http.StatusBadRequest,
			Code:       "INVALID_ARGUMENT",
			Message:    err.Error(),
		}
	case errors.Is(err, flagging.ErrInvalidOption):
		return ErrorResponse{
			StatusCode: http.StatusBadRequest,
			Code:       "INVALID_REQUEST",
			Message:    err.Error(),
		}
	case errors.Is(err, model.ErrModelNotFound):
		return ErrorResponse{
			StatusCode: http.StatusServiceUnavailable,
			Code:       "MODEL_UNAVAILABLE",
			Message:    "model not found",
		}
	case errors.Is(err, model.ErrModelUnavailable):
		return ErrorResponse{
			StatusCode: http.StatusServiceUnavailable,
			Code:       "MODEL_UNAVAILABLE",
			Message:    "model could not produce a prediction",
		}
	default:
		return ErrorResponse{
			StatusCode: http.StatusInternalServerError,
			Code:       "INTERNAL_ERROR",
			Message:    "internal server error",
		}
	}
}

// outcome is the metrics label for err.
func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, inference.ErrInvalidImage):
		return "invalid_image"
	case errors.Is(err, inference.ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, model.ErrModelUnavailable):
		return "model_unavailable"
	default:
		return "error"
	}
}

// HandleError sends the JSON error response for err.
func HandleError(c *gin.Context, err error) {
	errResp := MapError(err)
	respondError(c, errResp.StatusCode, errResp.Code, errResp.Message)
}

// HandleInvalidRequest handles a generic invalid request error.
func HandleInvalidRequest(c *gin.Context, message string) {
	respondError(c, http.StatusBadRequest, "INVALID_REQUEST", message)
}
