package usecase

import (
	stderrors "errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"pasarbekas/internal/domain/entity"
	"pasarbekas/pkg/errors"
)

// NewValidate returns a validator that knows the marketplace enum tags and reports json field names.
func NewValidate() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	v.RegisterValidation("listing_category", func(fl validator.FieldLevel) bool {
		return entity.Category(fl.Field().String()).Valid()
	})
	v.RegisterValidation("listing_condition", func(fl validator.FieldLevel) bool {
		return entity.Condition(fl.Field().String()).Valid()
	})
	v.RegisterValidation("payment_method", func(fl validator.FieldLevel) bool {
		return entity.PaymentMethod(fl.Field().String()).Valid()
	})
	v.RegisterValidation("dispute_outcome", func(fl validator.FieldLevel) bool {
		return entity.DisputeOutcome(fl.Field().String()).Valid()
	})
	return v
}

func validateInput(v *validator.Validate, input interface{}) error {
	err := v.Struct(input)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !stderrors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return errors.Validation("Invalid input data", err)
	}

	appErr := errors.Validation(DescribeFieldError(fieldErrs[0]), err)
	for _, fe := range fieldErrs {
		appErr.With(fe.Field(), fe.Tag())
	}
	return appErr
}

// DescribeFieldError renders a single validator failure as a user-facing sentence.
func DescribeFieldError(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	case "listing_category", "listing_condition", "payment_method", "dispute_outcome":
		return fmt.Sprintf("%s %q is not a known value", field, fmt.Sprint(fe.Value()))
	}
	return field + " is invalid"
}
