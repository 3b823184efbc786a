package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstructors(t *testing.T) {
	cause := fmt.Errorf("redis timeout")

	tests := []struct {
		name       string
		err        *Error
		wantType   ErrorType
		wantStatus int
	}{
		{"validation", ValidationError("bad reading", nil), TypeValidation, http.StatusBadRequest},
		{"too large", TooLargeError("body too large"), TypeTooLarge, http.StatusRequestEntityTooLarge},
		{"rate limited", RateLimitedError("slow down"), TypeRateLimited, http.StatusTooManyRequests},
		{"unavailable", UnavailableError("redis unreachable", cause), TypeUnavailable, http.StatusServiceUnavailable},
		{"internal", InternalError("boom", cause), TypeInternal, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantType, tt.err.Type)
			assert.Equal(t, tt.wantStatus, tt.err.HTTPStatus())
			assert.NotNil(t, tt.err.Context)
			assert.Contains(t, tt.err.Error(), string(tt.wantType))
		})
	}
}

func TestErrorMessageIncludesCause(t *testing.T) {
	err := InternalError("failed to publish", fmt.Errorf("connection refused"))
	assert.Equal(t, "internal: failed to publish: connection refused", err.Error())

	err = ValidationError("missing value", nil)
	assert.Equal(t, "validation: missing value", err.Error())
	assert.NotContains(t, err.Error(), "<nil>")
}

func TestWithContext(t *testing.T) {
	err := ValidationError("malformed reading", nil).
		WithContext("reason", "invalid_json").
		WithContext("source", "http")

	assert.Len(t, err.Context, 2)
	assert.Equal(t, "invalid_json", err.Context["reason"])
	assert.Equal(t, "http", err.Context["source"])
}

func TestWithContextNilMap(t *testing.T) {
	err := &Error{Type: TypeValidation, Message: "test"}

	err = err.WithContext("key", "value")

	assert.Equal(t, "value", err.Context["key"])
}

func TestToResponse(t *testing.T) {
	err := ValidationError("malformed reading", nil).WithContext("reason", "missing_value")

	resp := err.ToResponse()

	assert.Equal(t, "malformed reading", resp.Error)
	assert.Equal(t, TypeValidation, resp.Type)
	assert.Equal(t, map[string]any{"reason": "missing_value"}, resp.Context)
}

func TestUnwrapAndIs(t *testing.T) {
	root := errors.New("root")
	err := InternalError("wrapped", root)

	assert.Equal(t, root, errors.Unwrap(err))
	assert.ErrorIs(t, err, root)
	assert.Nil(t, errors.Unwrap(ValidationError("test", nil)))
}

func TestAsStructuredError(t *testing.T) {
	t.Run("structured error passes through", func(t *testing.T) {
		original := RateLimitedError("slow down")
		assert.Same(t, original, AsStructuredError(fmt.Errorf("wrapped: %w", original)))
	})

	t.Run("plain error becomes internal", func(t *testing.T) {
		original := errors.New("standard error")
		result := AsStructuredError(original)

		require.NotNil(t, result)
		assert.Equal(t, TypeInternal, result.Type)
		assert.Equal(t, "internal server error", result.Message)
		assert.Equal(t, original, result.Cause)
	})

	t.Run("nil stays nil", func(t *testing.T) {
		assert.Nil(t, AsStructuredError(nil))
	})
}
