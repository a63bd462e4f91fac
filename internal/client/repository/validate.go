package repository

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/dmitrijs2005/healthkeeper/internal/common"
	"github.com/go-playground/validator/v10"
)

// Validator checks write payloads: struct tags first, then the payload's own
// Validate method when it has one.
type Validator struct {
	v *validator.Validate
}

// NewValidator returns a Validator that reports fields by their json names.
func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	return &Validator{v: v}
}

// Check returns a *common.ValidationError describing every rule w breaks,
// or nil.
func (val *Validator) Check(w any) error {
	errs := &common.ValidationError{}

	err := val.v.Struct(w)
	var fieldErrs validator.ValidationErrors
	var invalid *validator.InvalidValidationError
	switch {
	case err == nil:
	case errors.As(err, &fieldErrs):
		for _, fe := range fieldErrs {
			errs.Add(fe.Field(), message(fe))
		}
	case errors.As(err, &invalid):
		return fmt.Errorf("validate: %w", err)
	default:
		return err
	}

	if sv, ok := w.(interface{ Validate() error }); ok {
		if err := sv.Validate(); err != nil {
			var more *common.ValidationError
			if !errors.As(err, &more) {
				return err
			}
			for field, msgs := range more.Fields {
				for _, m := range msgs {
					errs.Add(field, m)
				}
			}
		}
	}
	return errs.OrNil()
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min", "gte":
		return "must be at least " + fe.Param()
	case "max", "lte":
		return "must be at most " + fe.Param()
	case "email":
		return "must be a valid email address"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "len":
		return "must have length " + fe.Param()
	}
	return "failed " + fe.Tag() + " rule"
}
