package cli

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/steadycalls/mailforge/internal/errors"
)

func TestIsValidOutputFormat(t *testing.T) {
	assert.True(t, IsValidOutputFormat(OutputText))
	assert.True(t, IsValidOutputFormat(OutputJSON))
	assert.False(t, IsValidOutputFormat("yaml"))
	assert.False(t, IsValidOutputFormat(""))
	assert.False(t, IsValidOutputFormat("JSON"))
}

func TestExitCodeForError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "nil", err: nil, want: ExitSuccess},
		{name: "generic error", err: stderrors.New("boom"), want: ExitError},
		{name: "invalid config", err: errors.Wrap(errors.ErrConfigInvalid, "bad value"), want: ExitInvalidInput},
		{name: "missing credential", err: errors.ErrConfigMissingCredential, want: ExitInvalidInput},
		{name: "empty value", err: errors.Wrap(errors.ErrEmptyValue, "no domains"), want: ExitInvalidInput},
		{name: "unknown flag", err: stderrors.New("unknown flag: --frobnicate"), want: ExitInvalidInput},
		{name: "unknown command", err: stderrors.New(`unknown command "provisionn" for "mailforge"`), want: ExitInvalidInput},
		{name: "mutually exclusive flags", err: stderrors.New("if any flags in the group [verbose quiet] are set none of the others can be"), want: ExitInvalidInput},
		{name: "provider failure", err: errors.ErrProviderResponse, want: ExitError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCodeForError(tt.err))
		})
	}
}
