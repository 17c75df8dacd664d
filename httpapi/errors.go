package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/MrEthical07/sessionauth"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Message   string                   `json:"message"`
	ErrorCode string                   `json:"errorCode,omitempty"`
	Errors    []sessionauth.FieldError `json:"errors,omitempty"`
}

// RespondError renders err and aborts the chain. Internal causes are logged
// and replaced by the generic message.
func RespondError(c *gin.Context, err error) {
	domain := sessionauth.AsError(err)
	resp := ErrorResponse{Message: domain.Message, ErrorCode: domain.Code}

	var verr *sessionauth.ValidationError
	if errors.As(err, &verr) {
		resp.Message = sessionauth.ErrValidation.Message
		resp.ErrorCode = sessionauth.ErrValidation.Code
		resp.Errors = verr.Fields
	}

	if domain.Kind() == sessionauth.ErrInternal {
		loggerFrom(c).Error("request failed",
			zap.String("path", c.FullPath()),
			zap.String("code", domain.Code),
			zap.Error(err),
		)
	}

	_ = c.Error(err)
	c.AbortWithStatusJSON(domain.Status, resp)
}

// bind decodes the JSON body into req and runs its validate tags.
func bind(c *gin.Context, req any) error {
	if err := c.ShouldBindJSON(req); err != nil {
		return bindingError(err)
	}
	return nil
}

func bindingError(err error) error {
	var syntax *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.As(err, &syntax), errors.Is(err, io.ErrUnexpectedEOF):
		return &sessionauth.ValidationError{Fields: []sessionauth.FieldError{{
			Field:   "body",
			Message: "Invalid JSON format, please check your request body",
		}}}
	case errors.Is(err, io.EOF):
		return &sessionauth.ValidationError{Fields: []sessionauth.FieldError{{
			Field:   "body",
			Message: "Request body is required",
		}}}
	case errors.As(err, &typeErr):
		return &sessionauth.ValidationError{Fields: []sessionauth.FieldError{{
			Field:   typeErr.Field,
			Message: "Invalid type",
		}}}
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &sessionauth.ValidationError{Fields: []sessionauth.FieldError{{Field: "body", Message: err.Error()}}}
	}

	fields := make([]sessionauth.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, sessionauth.FieldError{
			Field:   jsonField(fe),
			Message: fieldMessage(fe),
		})
	}
	return &sessionauth.ValidationError{Fields: fields}
}

// jsonField lowercases the first letter of the struct field so it matches
// the json tag convention used by the request types.
func jsonField(fe validator.FieldError) string {
	name := fe.Field()
	if name == "" {
		return name
	}
	return strings.ToLower(name[:1]) + name[1:]
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "Required"
	case "email":
		return "Invalid email"
	case "min":
		return "Must be at least " + fe.Param() + " characters"
	case "max":
		return "Must be at most " + fe.Param() + " characters"
	case "eqfield":
		return "Passwords does not match"
	case "e164":
		return "Invalid phone number"
	case "alphanum":
		return "Must contain only letters and digits"
	case "uuid4":
		return "Invalid id"
	default:
		return "Invalid value"
	}
}
