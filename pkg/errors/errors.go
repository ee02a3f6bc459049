package errors

import (
	"errors"
	"fmt"
)

// Error kinds for the agent service

var (
	// ErrConfiguration indicates required configuration is missing or invalid
	ErrConfiguration = errors.New("configuration error")

	// ErrValidation indicates invalid input: malformed tool arguments,
	// missing required order fields, and similar caller mistakes
	ErrValidation = errors.New("validation error")

	// ErrExternalService indicates an upstream dependency (LLM or exchange)
	// responded with an error or an unparseable payload
	ErrExternalService = errors.New("external service error")

	// ErrRateLimited is a specialization of ErrExternalService for HTTP 429;
	// errors.Is(err, ErrExternalService) holds for it as well
	ErrRateLimited = fmt.Errorf("rate limit exceeded: %w", ErrExternalService)

	// ErrUnknownTool indicates a tool dispatch for an unregistered name
	ErrUnknownTool = errors.New("unknown tool")
)

// Helper functions

// Is checks if err is or wraps target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target type
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Wrap wraps an error with context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

func New(message string) error {
	return errors.New(message)
}

func Newf(format string, args ...interface{}) error {
	return fmt.Errorf(format, args...)
}
