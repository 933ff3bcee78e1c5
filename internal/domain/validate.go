package domain

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/dunamismax/printflow/internal/raster"
	"github.com/go-playground/validator/v10"
)

var ErrValidation = errors.New("validation failed")

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return field.Name
		}
		return name
	})
	_ = v.RegisterValidation("hexcolor_any", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		if s == "" {
			return true
		}
		_, err := raster.ParseHexColor(s)
		return err == nil
	})
	return v
}

// validateStruct runs the struct tags and flattens the result into a single
// readable error.
func validateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}

	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, describe(fe))
	}
	return fmt.Errorf("%w: %s", ErrValidation, strings.Join(msgs, "; "))
}

func describe(fe validator.FieldError) string {
	field := strings.TrimPrefix(fe.Namespace(), rootNamespace(fe))
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "url", "http_url":
		return field + " must be an http(s) URL"
	case "hexcolor_any":
		return field + " must be a hex color like #FF0000"
	case "min", "gte":
		return fmt.Sprintf("%s must be >= %s", field, fe.Param())
	case "max", "lte":
		return fmt.Sprintf("%s must be <= %s", field, fe.Param())
	case "gt":
		return fmt.Sprintf("%s must be > %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed %s", field, fe.Tag())
	}
}

func rootNamespace(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[:i+1]
	}
	return ""
}
