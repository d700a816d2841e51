// Package validate checks request structs with go-playground/validator and
// reports failures as INVALID_INPUT errors.
package validate

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/fatflowers/pcbuilder/pkg/apperr"
)

var shopDomainPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*\.myshopify\.com$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" || tag == "-" {
			return f.Name
		}
		return tag
	})
	_ = v.RegisterValidation("shopdomain", func(fl validator.FieldLevel) bool {
		return shopDomainPattern.MatchString(fl.Field().String())
	})
	return v
}

// Struct validates s and returns nil or an INVALID_INPUT *apperr.Error with
// one field error per failed rule.
func Struct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		return apperr.Wrap(apperr.CodeInvalidInput, err, "validation failed")
	}
	fields := make([]apperr.FieldError, 0, len(errs))
	for _, fe := range errs {
		fields = append(fields, apperr.FieldError{Field: fieldPath(fe), Message: message(fe)})
	}
	return apperr.WithFields(apperr.CodeInvalidInput, "validation failed", fields)
}

// fieldPath drops the root struct name from the namespace, e.g.
// "steps[0].title" for SaveStepsRequest.steps[0].title.
func fieldPath(fe validator.FieldError) []string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		ns = rest
	}
	return strings.Split(ns, ".")
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "email":
		return "must be a valid email"
	case "oneof":
		return fmt.Sprintf("must be one of %s", fe.Param())
	case "url", "http_url":
		return "must be a valid URL"
	case "shopdomain":
		return "must be a myshopify.com domain"
	}
	return "is invalid"
}
