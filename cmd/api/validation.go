package main

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/carljohntruya-art/taskflow-auth/app/errors"
	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
	validate.RegisterValidation("password_strength", validatePasswordStrength)
}

// validatePasswordStrength requires at least one uppercase letter, one
// lowercase letter and one digit.
func validatePasswordStrength(fl validator.FieldLevel) bool {
	password := fl.Field().String()

	hasUpper := false
	hasLower := false
	hasNumber := false

	for _, char := range password {
		if unicode.IsUpper(char) {
			hasUpper = true
		}
		if unicode.IsLower(char) {
			hasLower = true
		}
		if unicode.IsNumber(char) {
			hasNumber = true
		}
		if hasUpper && hasLower && hasNumber {
			return true
		}
	}

	return hasUpper && hasLower && hasNumber
}

// validateRequest validates a request DTO and returns a formatted error
func validateRequest(req interface{}) *errors.AppError {
	if err := validate.Struct(req); err != nil {
		return formatValidationErrors(err)
	}
	return nil
}

// formatValidationErrors turns validator errors into user-facing messages
func formatValidationErrors(err error) *errors.AppError {
	var messages []string

	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		for _, fieldError := range validationErrors {
			messages = append(messages, formatFieldError(fieldError))
		}
	} else {
		return errors.NewInvalidInput(err.Error())
	}

	return errors.NewInvalidInput(strings.Join(messages, "; "))
}

func formatFieldError(fe validator.FieldError) string {
	field := fe.Field()

	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "email":
		return fmt.Sprintf("%s must be a valid email address", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "len":
		return fmt.Sprintf("%s must be exactly %s characters", field, fe.Param())
	case "numeric":
		return fmt.Sprintf("%s must contain only digits", field)
	case "password_strength":
		return fmt.Sprintf("%s must contain at least one uppercase letter, one lowercase letter, and one number", field)
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}

// sanitizeInput trims whitespace and strips control characters.
// maxLength limits the result in runes (0 = no limit).
// preserveSpecialChars keeps special characters intact, used for passwords.
func sanitizeInput(input string, maxLength int, preserveSpecialChars bool) string {
	input = strings.TrimSpace(input)
	input = strings.ReplaceAll(input, "\x00", "")

	if preserveSpecialChars {
		if maxLength > 0 && utf8.RuneCountInString(input) > maxLength {
			runes := []rune(input)
			input = string(runes[:maxLength])
		}
		return input
	}

	var builder strings.Builder
	for _, r := range input {
		if unicode.IsPrint(r) || r == '\n' || r == '\t' {
			builder.WriteRune(r)
		}
	}
	input = builder.String()

	if maxLength > 0 && utf8.RuneCountInString(input) > maxLength {
		runes := []rune(input)
		input = string(runes[:maxLength])
	}

	return input
}

// sanitizeEmail trims, strips control characters and lowercases.
func sanitizeEmail(email string, maxLength int) string {
	return strings.ToLower(sanitizeInput(email, maxLength, false))
}

// sanitizeName keeps letters, numbers, spaces and common name punctuation.
func sanitizeName(name string, maxLength int) string {
	name = sanitizeInput(name, maxLength, false)

	var builder strings.Builder
	for _, r := range name {
		if unicode.IsLetter(r) || unicode.IsNumber(r) || r == ' ' || r == '-' || r == '\'' || r == '.' {
			builder.WriteRune(r)
		}
	}
	name = strings.TrimSpace(builder.String())

	if maxLength > 0 && utf8.RuneCountInString(name) > maxLength {
		runes := []rune(name)
		name = string(runes[:maxLength])
	}

	return name
}
