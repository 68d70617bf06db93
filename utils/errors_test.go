package utils

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServiceErrorWrapsCause(t *testing.T) {
	cause := errors.New("fcm: connection refused")
	err := NewSchedulingFailedError("native", cause)

	serviceErr, ok := GetServiceError(err)
	require.True(t, ok)
	assert.Equal(t, ErrCodeSchedulingFailed, serviceErr.Code)
	assert.Equal(t, http.StatusBadGateway, serviceErr.StatusCode)
	assert.True(t, errors.Is(err, cause))
}

func TestHasErrorCode(t *testing.T) {
	assert.True(t, HasErrorCode(NewBackendUnavailableError("native", "denied"), ErrCodeBackendUnavailable))
	assert.True(t, HasErrorCode(NewInvalidRecordError("both handle kinds set"), ErrCodeInvalidRecord))
	assert.False(t, HasErrorCode(NewInvalidRecordError("x"), ErrCodeSchedulingFailed))
	assert.False(t, HasErrorCode(errors.New("plain"), ErrCodeInternal))
	assert.False(t, HasErrorCode(nil, ErrCodeInternal))
}

func TestErrorStringIncludesDetails(t *testing.T) {
	err := NewBackendUnavailableError("native", "authorization denied")
	assert.Contains(t, err.Error(), "BACKEND_UNAVAILABLE")
	assert.Contains(t, err.Error(), "authorization denied")

	err = NewCancelError("notification", "ntf_1", errors.New("timeout"))
	assert.Contains(t, err.Error(), "ntf_1")
}
