package validator

import (
	"errors"

	apperrors "github.com/SAP-F-2025/quiz-service/internal/errors"
)

// Use shared validation errors from errors package
type ValidationError = apperrors.ValidationError
type ValidationErrors = apperrors.ValidationErrors

var (
	// ErrQuizInvalid is returned by Report.Err when a quiz has errors.
	ErrQuizInvalid = errors.New("quiz failed to validate")

	// ErrToolchainTimeout means a program did not finish within the run timeout.
	ErrToolchainTimeout = errors.New("program timed out")
)

// ToValidationErrors converts validator.ValidationErrors to our custom type
func ToValidationErrors(err error) ValidationErrors {
	return apperrors.ToValidationErrors(err)
}
