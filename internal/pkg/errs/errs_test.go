package errs

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewError_KnownCode(t *testing.T) {
	req := require.New(t)

	err := NewError(ErrAuthConflict)

	req.Equal(ErrAuthConflict, err.Code)
	req.Equal("Username already exists", err.Message)
	req.Equal(http.StatusConflict, err.Status)
}

func TestNewError_UnknownCodeFallsBack(t *testing.T) {
	req := require.New(t)

	err := NewError(424242)

	req.Equal(ErrUnknown, err.Code)
	req.Equal(http.StatusInternalServerError, err.Status)
}

func TestNewError_ReturnsIndependentCopies(t *testing.T) {
	req := require.New(t)

	first := NewError(ErrAuthRejected)
	first.Message = "mutated"

	req.Equal("Authentication failed", NewError(ErrAuthRejected).Message)
}

func TestWrap_MatchesByCodeAndUnwraps(t *testing.T) {
	req := require.New(t)
	cause := errors.New("connection reset")

	err := fmt.Errorf("session: %w", Wrap(ErrTransportFailure, cause))

	req.ErrorIs(err, NewError(ErrTransportFailure))
	req.NotErrorIs(err, NewError(ErrUnknown))
	req.ErrorIs(err, cause)
	req.Equal(ErrTransportFailure, CodeOf(err))
	req.Equal(ErrUnknown, CodeOf(cause))
}
