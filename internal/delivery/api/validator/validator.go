// Package validator adapts go-playground/validator to echo's Validator interface.
package validator

import (
	"reflect"
	"strconv"
	"strings"

	domainerrors "accounts/internal/domain/errors"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
)

// Custom rules registered on top of the built-in ones.
const (
	// RuleHasUpper requires at least one ASCII uppercase letter (A-Z).
	RuleHasUpper = "has_upper"
	// RuleMaxBytes caps the UTF-8 encoded length of a string, e.g. max_bytes=72.
	// The built-in max rule counts runes.
	RuleMaxBytes = "max_bytes"
)

// RequestValidator validates bound request structs.
type RequestValidator struct {
	validate *validator.Validate
}

// New creates a RequestValidator reporting fields by their JSON names.
func New() *RequestValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}

		return name
	})
	// Registration only fails for an empty tag or nil func.
	_ = v.RegisterValidation(RuleHasUpper, hasUpper)
	_ = v.RegisterValidation(RuleMaxBytes, maxBytes)

	return &RequestValidator{validate: v}
}

// Validate checks i and returns a VALIDATION_FAILED error listing every failed field.
func (v *RequestValidator) Validate(i any) error {
	err := v.validate.Struct(i)
	if err == nil {
		return nil
	}

	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return errors.WithStack(err)
	}

	fields := make([]domainerrors.FieldError, 0, len(validationErrs))
	for _, fe := range validationErrs {
		fields = append(fields, domainerrors.FieldError{
			Field:   fe.Field(),
			Rule:    fe.Tag(),
			Message: message(fe),
		})
	}

	return domainerrors.NewValidationError(fields)
}

func hasUpper(fl validator.FieldLevel) bool {
	for _, r := range fl.Field().String() {
		if 'A' <= r && r <= 'Z' {
			return true
		}
	}

	return false
}

func maxBytes(fl validator.FieldLevel) bool {
	limit, err := strconv.Atoi(fl.Param())
	if err != nil {
		return false
	}

	return len(fl.Field().String()) <= limit
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return "must be at least " + fe.Param() + " characters long"
	case "max":
		return "must be at most " + fe.Param() + " characters long"
	case RuleMaxBytes:
		return "must be at most " + fe.Param() + " bytes long"
	case RuleHasUpper:
		return "must contain at least one uppercase letter"
	default:
		return "failed on the '" + fe.Tag() + "' rule"
	}
}
