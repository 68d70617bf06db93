package utils

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

type ValidationService struct {
	validator *validator.Validate
}

type ValidationError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Value   string `json:"value"`
	Message string `json:"message"`
}

func NewValidationService() *ValidationService {
	v := validator.New()

	// Register custom validators
	v.RegisterValidation("fire_time", validateFireTime)
	v.RegisterValidation("delivery_mode", validateDeliveryMode)
	v.RegisterValidation("authorization_status", validateAuthorizationStatus)

	return &ValidationService{
		validator: v,
	}
}

func (vs *ValidationService) ValidateStruct(s interface{}) []ValidationError {
	var validationErrors []ValidationError

	err := vs.validator.Struct(s)
	if err != nil {
		for _, err := range err.(validator.ValidationErrors) {
			validationErrors = append(validationErrors, ValidationError{
				Field:   err.Field(),
				Tag:     err.Tag(),
				Value:   fmt.Sprintf("%v", err.Value()),
				Message: vs.getErrorMessage(err),
			})
		}
	}

	return validationErrors
}

func (vs *ValidationService) getErrorMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "min":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param())
	case "fire_time":
		return fmt.Sprintf("%s must be a wall-clock time in HH:MM format", fe.Field())
	case "delivery_mode":
		return fmt.Sprintf("%s must be 'native' or 'notification'", fe.Field())
	case "authorization_status":
		return fmt.Sprintf("%s must be 'notdetermined', 'authorized' or 'denied'", fe.Field())
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}

func validateFireTime(fl validator.FieldLevel) bool {
	_, err := time.Parse("15:04", fl.Field().String())
	return err == nil
}

func validateDeliveryMode(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "native", "notification":
		return true
	}
	return false
}

func validateAuthorizationStatus(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "notdetermined", "authorized", "denied":
		return true
	}
	return false
}
