package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorMessagesCarryContext(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{
			name:     "malformed literal includes byte offset",
			err:      NewMalformedLiteralError(1024, "unterminated quoted string"),
			expected: "malformed literal at byte offset 1024: unterminated quoted string",
		},
		{
			name:     "schema error names the table",
			err:      NewSchemaError("public.users", "no CREATE TABLE seen before data"),
			expected: "schema error for table public.users: no CREATE TABLE seen before data",
		},
		{
			name:     "schema error names the column when known",
			err:      NewColumnSchemaError("public.users", "email", "column not declared"),
			expected: "schema error for column public.users.email: column not declared",
		},
		{
			name:     "config error carries the yaml path",
			err:      NewConfigError("tables.public.users.columns.email", "unknown strategy %q", "emale"),
			expected: `invalid configuration at tables.public.users.columns.email: unknown strategy "emale"`,
		},
		{
			name:     "io error wraps the cause",
			err:      NewIoError("write", "out.sql", errors.New("disk full")),
			expected: "write out.sql: disk full",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, ExitCode(nil))
	assert.Equal(t, ExitCodeDataError, ExitCode(NewMalformedLiteralError(0, "bad")))
	assert.Equal(t, ExitCodeDataError, ExitCode(NewSchemaError("t", "bad")))
	assert.Equal(t, ExitCodeConfigError, ExitCode(NewConfigError("tables", "bad")))
	assert.Equal(t, ExitCodeIoError, ExitCode(NewIoError("read", "in.sql", errors.New("eof"))))
	assert.Equal(t, ExitCodeDataError, ExitCode(errors.New("anything else")))
}

func TestWrappedErrorsStillClassify(t *testing.T) {
	wrapped := fmt.Errorf("transform failed: %w", NewConfigError("tables.t1", "unknown strategy"))
	assert.Equal(t, ExitCodeConfigError, ExitCode(wrapped))

	var configErr *ConfigError
	assert.True(t, errors.As(wrapped, &configErr))
	assert.Equal(t, "tables.t1", configErr.Location())
}

func TestIoErrorUnwrap(t *testing.T) {
	cause := errors.New("permission denied")
	err := NewIoError("open", "/var/dump.sql", cause)
	assert.True(t, errors.Is(err, cause))
}
