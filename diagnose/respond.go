package diagnose

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"agriaid/crop"
	"agriaid/location"
	"agriaid/wizard"
)

// FieldError points at one invalid input field.
type FieldError struct {
	Path string `json:"path"`
	Info string `json:"info"`
}

type errorBody struct {
	Error   string       `json:"error"`
	Details []FieldError `json:"details,omitempty"`
}

func fail(c *gin.Context, status int, msg string) {
	c.JSON(status, errorBody{Error: msg})
}

func badInput(c *gin.Context, msg string, details []FieldError) {
	c.JSON(http.StatusBadRequest, errorBody{Error: msg, Details: details})
}

// validationDetails translates binding errors into field details.
func validationDetails(err error) []FieldError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	out := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, FieldError{Path: jsonName(fe.Field()), Info: validationMessage(fe)})
	}
	return out
}

func jsonName(field string) string {
	switch field {
	case "DaysPlanted":
		return "days_planted"
	default:
		return strings.ToLower(field)
	}
}

func validationMessage(fe validator.FieldError) string {
	name := jsonName(fe.Field())
	switch fe.Tag() {
	case "required":
		return name + " is required"
	case "min":
		return name + " must be at least " + fe.Param()
	case "max":
		return name + " must be at most " + fe.Param()
	default:
		return name + " is invalid"
	}
}

// statusFor maps wizard and gateway errors to HTTP status codes.
func statusFor(err error) int {
	var (
		ve *crop.ValidationError
		pe *crop.PredictionError
		se *crop.SolutionError
	)
	switch {
	case errors.Is(err, ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, wizard.ErrInvalidTransition), errors.Is(err, wizard.ErrNotSelectable):
		return http.StatusConflict
	case errors.As(err, &ve):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &pe), errors.As(err, &se):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func locationStatus(r location.Reason) int {
	switch r {
	case location.PermissionDenied:
		return http.StatusForbidden
	case location.Unsupported:
		return http.StatusNotImplemented
	case location.Unavailable:
		return http.StatusServiceUnavailable
	case location.Timeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
