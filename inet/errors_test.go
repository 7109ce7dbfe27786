package inet

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorFormatting(t *testing.T) {
	err := newError("bind", "127.0.0.1:80", ErrConfiguration)
	assert.Equal(t, "inet bind 127.0.0.1:80: invalid endpoint configuration", err.Error())

	err = newError("listen", "", ErrInvalidState)
	assert.Equal(t, "inet listen: operation invalid in current state", err.Error())
}

func TestErrorUnwrap(t *testing.T) {
	err := newError("connect", "[::1]:443", ErrPeerClosed)
	assert.True(t, errors.Is(err, ErrPeerClosed))

	var inetErr *Error
	assert.True(t, errors.As(err, &inetErr))
	assert.Equal(t, "connect", inetErr.Op)
}

func TestStateErrorCarriesState(t *testing.T) {
	err := errorWithState(ErrInvalidState, StateListening)
	assert.True(t, errors.Is(err, ErrInvalidState))
	assert.Contains(t, err.Error(), "Listening")
}
