package llm

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var (
	// ErrContentBlocked means the model refused the prompt or its output was
	// filtered. Resending the same prompt will not help.
	ErrContentBlocked = errors.New("content blocked by safety filters")
	// ErrEmptyResponse means the model returned no usable text.
	ErrEmptyResponse = errors.New("empty model response")
)

// IsTransient reports whether err is a provider or transport failure that a
// retry might fix: throttling, unavailability, deadlines and internal errors.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrContentBlocked) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusTooManyRequests ||
			apiErr.Code == http.StatusRequestTimeout ||
			apiErr.Code >= 500
	}

	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.ResourceExhausted, codes.Unavailable, codes.DeadlineExceeded,
			codes.Internal, codes.Aborted:
			return true
		}
	}
	return false
}

// classifyGenerateError normalizes errors returned by the Gemini SDK.
func classifyGenerateError(err error) error {
	var blocked *genai.BlockedError
	if errors.As(err, &blocked) {
		return errors.Join(ErrContentBlocked, err)
	}
	return err
}
