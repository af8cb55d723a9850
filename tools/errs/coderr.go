package errs

import (
	"fmt"

	"github.com/pkg/errors"
)

// Error codes used across the pipeline.
const (
	CodeInvalidArgument    = 1001
	CodeChannelNotFound    = 1002
	CodeSequenceGeneration = 1101
	CodeInternal           = 1500
)

var (
	ErrInvalidArgument    = NewCodeError(CodeInvalidArgument, "invalid argument")
	ErrChannelNotFound    = NewCodeError(CodeChannelNotFound, "channel not found")
	ErrSequenceGeneration = NewCodeError(CodeSequenceGeneration, "sequence generation failed")
	ErrInternal           = NewCodeError(CodeInternal, "internal error")
)

type CodeError struct {
	Code   int    `json:"code"`
	Msg    string `json:"msg"`
	Detail string `json:"detail,omitempty"`
}

func NewCodeError(code int, msg string) *CodeError {
	return &CodeError{Code: code, Msg: msg}
}

func (e *CodeError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("[%d] %s", e.Code, e.Msg)
	}
	return fmt.Sprintf("[%d] %s: %s", e.Code, e.Msg, e.Detail)
}

// WithDetail returns a copy carrying extra detail; the receiver is not mutated
// so the package-level sentinels stay clean.
func (e *CodeError) WithDetail(detail string) *CodeError {
	d := detail
	if e.Detail != "" {
		d = e.Detail + ", " + detail
	}
	return &CodeError{Code: e.Code, Msg: e.Msg, Detail: d}
}

func (e *CodeError) Is(target error) bool {
	t, ok := target.(*CodeError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Code extracts the error code, or CodeInternal for foreign errors.
func Code(err error) int {
	var ce *CodeError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return CodeInternal
}

// Wrap annotates err with a message and a stack trace.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return errors.Wrap(err, msg)
}

// WrapCode pairs a code sentinel with an underlying cause.
func WrapCode(code *CodeError, cause error) error {
	if cause == nil {
		return errors.WithStack(code)
	}
	return errors.WithStack(code.WithDetail(cause.Error()))
}

func New(format string, args ...interface{}) error {
	return errors.Errorf(format, args...)
}
