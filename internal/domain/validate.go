package domain

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// RegisterValidators adds the grading_mode and leniency_level struct tags
// to v.
func RegisterValidators(v *validator.Validate) error {
	if err := v.RegisterValidation("grading_mode", validateGradingMode); err != nil {
		return fmt.Errorf("failed to register grading_mode validator: %w", err)
	}
	if err := v.RegisterValidation("leniency_level", validateLeniencyLevel); err != nil {
		return fmt.Errorf("failed to register leniency_level validator: %w", err)
	}
	return nil
}

// NewValidator returns a validator with the domain tags registered.
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := RegisterValidators(v); err != nil {
		panic(err)
	}
	return v
}

// ValidateStruct runs v over s and folds field failures into a
// ValidationError named after entity.
func ValidateStruct(v *validator.Validate, entity string, s any) error {
	err := v.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	verr := NewValidationError(entity)
	for _, fe := range fieldErrs {
		verr.AddError(fmt.Sprintf("%s failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
	}
	return verr
}

func validateGradingMode(fl validator.FieldLevel) bool {
	return GradingMode(fl.Field().String()).Valid()
}

func validateLeniencyLevel(fl validator.FieldLevel) bool {
	return LeniencyLevel(fl.Field().String()).Known()
}
