package errcode

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromHTTPStatus(t *testing.T) {
	cases := map[int]int{
		http.StatusBadRequest:            ValidationFailed,
		http.StatusUnauthorized:          SessionExpired,
		http.StatusForbidden:             PasswordChangeRequired,
		http.StatusConflict:              SaveConflict,
		http.StatusRequestEntityTooLarge: PayloadTooLarge,
		http.StatusTooManyRequests:       RateLimited,
		http.StatusTeapot:                ValidationFailed,
		http.StatusBadGateway:            SaveFailed,
	}
	for status, want := range cases {
		assert.Equal(t, want, FromHTTPStatus(status), "status %d", status)
	}
}

func TestRecoverable(t *testing.T) {
	assert.True(t, Recoverable(ResourceMissing))
	assert.False(t, Recoverable(OK))
	assert.False(t, Recoverable(SystemError))
}
