package api

import (
	"errors"

	"github.com/go-playground/validator/v10"

	"pasarbekas/internal/usecase"
	apperrors "pasarbekas/pkg/errors"
)

// CustomValidator plugs the usecase validator into echo's c.Validate.
type CustomValidator struct {
	validator *validator.Validate
}

func NewValidator() *CustomValidator {
	return &CustomValidator{validator: usecase.NewValidate()}
}

func (cv *CustomValidator) Validate(i interface{}) error {
	err := cv.validator.Struct(i)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return apperrors.Validation("Invalid input data", err)
	}
	appErr := apperrors.Validation(usecase.DescribeFieldError(fieldErrs[0]), err)
	for _, fe := range fieldErrs {
		appErr.With(fe.Field(), fe.Tag())
	}
	return appErr
}
