package validate

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/onionlab/onion/internal/model"
)

// userIDRx allows letters, digits, underscore and hyphen, 1-64 chars.
var userIDRx = regexp.MustCompile(`^[A-Za-z0-9_\-]{1,64}$`)

var v = newValidator()

func newValidator() *validator.Validate {
	val := validator.New(validator.WithRequiredStructEnabled())
	// report JSON field names
	val.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return val
}

// UserID checks the path user id.
func UserID(id string) error {
	if id == "" {
		return model.NewValidationError("userId", "is required")
	}
	if !userIDRx.MatchString(id) {
		return model.NewValidationError("userId", "must match "+userIDRx.String())
	}
	return nil
}

// Struct validates a request DTO and returns the first violation as a
// model.ValidationError.
func Struct(s any) error {
	err := v.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return model.NewValidationError(fe.Field(), describe(fe))
	}
	return model.NewValidationError("body", err.Error())
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return fmt.Sprintf("exceeds maximum %s", fe.Param())
	case "min":
		return fmt.Sprintf("is below minimum %s", fe.Param())
	case "gte", "lte":
		return fmt.Sprintf("must be %s %s", fe.Tag(), fe.Param())
	case "uuid":
		return "must be a UUID"
	case "url":
		return "must be a URL"
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}
