package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Format(t *testing.T) {
	err := New(ErrCodeInvalidInput, "width %d out of range", 9)
	assert.Equal(t, "INVALID_INPUT: width 9 out of range", err.Error())

	cause := errors.New("disk full")
	wrapped := Wrap(ErrCodeInternal, cause, "save block %s", "b1")
	assert.Equal(t, "INTERNAL_ERROR: save block b1: disk full", wrapped.Error())
	assert.ErrorIs(t, wrapped, cause)
}

func TestIs_ThroughFmtWrapping(t *testing.T) {
	err := fmt.Errorf("update size: %w", NotFound("block", "42"))
	assert.True(t, Is(err, ErrCodeNotFound))
	assert.False(t, Is(err, ErrCodeConflict))
	assert.Equal(t, ErrCodeNotFound, GetCode(err))
	assert.Equal(t, "block 42 not found", Message(err))
}

func TestGetCode_PlainError(t *testing.T) {
	err := errors.New("boom")
	assert.Equal(t, Code(""), GetCode(err))
	assert.Equal(t, "boom", Message(err))
}
