package httpx

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ProblemDetail is the error body returned by every endpoint.
type ProblemDetail struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// JSON sends a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// Problem sends an error response.
func Problem(w http.ResponseWriter, status int, code, message string) {
	JSON(w, status, ProblemDetail{Error: message, Code: code})
}

// DecodeJSON decodes JSON request body into the target struct. An empty body leaves target untouched.
func DecodeJSON(r *http.Request, target any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return Errorf(ErrValidation, "Invalid JSON body")
	}
	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate runs struct tag validation and converts the first failure into a validation error.
func Validate(target any) error {
	err := validate.Struct(target)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		field := lowerFirst(fe.Field())
		switch fe.Tag() {
		case "required":
			return Errorf(ErrValidation, "%s is required", field)
		case "email":
			return Errorf(ErrValidation, "%s must be a valid email", field)
		case "max":
			return Errorf(ErrValidation, "%s must be at most %s characters", field, fe.Param())
		case "min":
			return Errorf(ErrValidation, "%s must be at least %s", field, fe.Param())
		default:
			return Errorf(ErrValidation, "%s is invalid", field)
		}
	}
	return Errorf(ErrValidation, "invalid request")
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
