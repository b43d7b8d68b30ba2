/*
Copyright (c) YugabyteDB, Inc.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package errs

import (
	"errors"
	"fmt"
)

// Exit codes reported by the CLI. Data errors (lexing/schema) are grouped
// together so that scripts can distinguish "the dump is bad" from "the
// configuration is bad" from "the disk is bad".
const (
	ExitCodeDataError   = 1
	ExitCodeConfigError = 2
	ExitCodeIoError     = 3
)

// MalformedLiteralError reports a value that could not be lexed out of a
// VALUES list or a COPY data line.
type MalformedLiteralError struct {
	offset int64 // byte offset into the input stream
	detail string
}

func NewMalformedLiteralError(offset int64, format string, args ...interface{}) *MalformedLiteralError {
	return &MalformedLiteralError{
		offset: offset,
		detail: fmt.Sprintf(format, args...),
	}
}

func (e *MalformedLiteralError) Error() string {
	return fmt.Sprintf("malformed literal at byte offset %d: %s", e.offset, e.detail)
}

func (e *MalformedLiteralError) Offset() int64 {
	return e.offset
}

// SchemaError reports a row that does not fit the declared schema, or data
// for a table that was never declared. Column is empty when the error is not
// specific to one column.
type SchemaError struct {
	table  string
	column string
	detail string
}

func NewSchemaError(table string, format string, args ...interface{}) *SchemaError {
	return &SchemaError{
		table:  table,
		detail: fmt.Sprintf(format, args...),
	}
}

func NewColumnSchemaError(table string, column string, format string, args ...interface{}) *SchemaError {
	return &SchemaError{
		table:  table,
		column: column,
		detail: fmt.Sprintf(format, args...),
	}
}

func (e *SchemaError) Error() string {
	if e.column != "" {
		return fmt.Sprintf("schema error for column %s.%s: %s", e.table, e.column, e.detail)
	}
	return fmt.Sprintf("schema error for table %s: %s", e.table, e.detail)
}

func (e *SchemaError) Table() string {
	return e.table
}

func (e *SchemaError) Column() string {
	return e.column
}

// ConfigError reports an unusable anonymization configuration, for example an
// unknown strategy tag. Location is a dotted path into the YAML document.
type ConfigError struct {
	location string
	detail   string
}

func NewConfigError(location string, format string, args ...interface{}) *ConfigError {
	return &ConfigError{
		location: location,
		detail:   fmt.Sprintf(format, args...),
	}
}

func (e *ConfigError) Error() string {
	if e.location == "" {
		return fmt.Sprintf("invalid configuration: %s", e.detail)
	}
	return fmt.Sprintf("invalid configuration at %s: %s", e.location, e.detail)
}

func (e *ConfigError) Location() string {
	return e.location
}

// IoError wraps a read/write failure on the input or output stream.
type IoError struct {
	op   string // "read", "write", "open", "flush"
	path string
	err  error
}

func NewIoError(op string, path string, err error) *IoError {
	return &IoError{op: op, path: path, err: err}
}

func (e *IoError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.op, e.path, e.err)
}

func (e *IoError) Unwrap() error {
	return e.err
}

// ExitCode maps an error from a run onto the CLI exit code taxonomy.
func ExitCode(err error) int {
	var configErr *ConfigError
	var ioErr *IoError
	switch {
	case err == nil:
		return 0
	case errors.As(err, &configErr):
		return ExitCodeConfigError
	case errors.As(err, &ioErr):
		return ExitCodeIoError
	default:
		return ExitCodeDataError
	}
}
