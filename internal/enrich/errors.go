package enrich

import (
	"errors"
	"fmt"
)

// ErrInvalidResponse means the model answered but the answer does not hold
// a usable business context. Retrying the same prompt is not expected to help.
var ErrInvalidResponse = errors.New("invalid model response")

// ResponseError carries the detail behind an ErrInvalidResponse.
type ResponseError struct {
	Message string
	Cause   error
}

func (e *ResponseError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", ErrInvalidResponse, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", ErrInvalidResponse, e.Message)
}

func (e *ResponseError) Unwrap() []error {
	if e.Cause != nil {
		return []error{ErrInvalidResponse, e.Cause}
	}
	return []error{ErrInvalidResponse}
}
