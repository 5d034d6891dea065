package engine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEngineErrorFormatsCodeAndMessage(t *testing.T) {
	err := &EngineError{Message: "boom", Code: CodeStepInvocationError}
	assert.Equal(t, "STEP_INVOCATION_ERROR: boom", err.Error())
}

func TestEngineErrorFormatsWithoutCode(t *testing.T) {
	err := &EngineError{Message: "boom"}
	assert.Equal(t, "boom", err.Error())
}

func TestEngineErrorUnwrapExposesCause(t *testing.T) {
	cause := errors.New("root cause")
	err := &EngineError{Message: "wrapped", Cause: cause}
	assert.ErrorIs(t, err, cause)
	assert.Same(t, cause, err.Unwrap())
}
