// Package fderrors carries the domain x code error taxonomy every fd*
// package returns instead of bare errors.New/fmt.Errorf values, so callers
// can errors.As into a structured failure the way the teacher's config and
// db packages do with plain sentinels.
package fderrors

import "fmt"

// Domain groups related failure codes, mirroring the original library's
// error domains (arguments, io, runtime, ...).
type Domain string

const (
	Arguments   Domain = "arguments"
	Conversion  Domain = "conversion"
	Compression Domain = "compression"
	IO          Domain = "io"
	Input       Domain = "input"
	Memory      Domain = "memory"
	Output      Domain = "output"
	Runtime     Domain = "runtime"
)

// Code is a domain-scoped failure reason. The same string constants are
// reused in their domain's zero-value context; collisions across domains
// (e.g. Memory.CopyFailed vs Runtime CopyFailed, or Arguments vs Runtime
// ValueOutOfBounds) are intentional and harmless
// since a Code is always read alongside its Domain.
type Code string

const (
	// Arguments
	InvalidValue      Code = "invalid_value"
	ValueLessThanZero Code = "value_less_than_zero"
	ValueZeroOrLess   Code = "value_zero_or_less"
	ValueExceedsMax   Code = "value_exceeds_maximum"
	ValueTooSmall     Code = "value_too_small"
	ValueTooLarge     Code = "value_too_large"
	ValueOutOfBounds  Code = "value_out_of_bounds"
	UnsupportedValue  Code = "unsupported_value"
	ConflictingValue  Code = "conflicting_value"

	// Io
	OpenFailed      Code = "open_failed"
	CloseFailed     Code = "close_failed"
	SeekFailed      Code = "seek_failed"
	ReadFailed      Code = "read_failed"
	WriteFailed     Code = "write_failed"
	AccessDenied    Code = "access_denied"
	InvalidResource Code = "invalid_resource"
	IoctlFailed     Code = "ioctl_failed"
	UnlinkFailed    Code = "unlink_failed"

	// Input
	InvalidData       Code = "invalid_data"
	SignatureMismatch Code = "signature_mismatch"
	ChecksumMismatch  Code = "checksum_mismatch"
	ValueMismatch     Code = "value_mismatch"

	// Memory
	Insufficient Code = "insufficient"
	CopyFailed   Code = "copy_failed"
	SetFailed    Code = "set_failed"

	// Output
	InsufficientSpace Code = "insufficient_space"

	// Runtime
	ValueMissing     Code = "value_missing"
	ValueAlreadySet  Code = "value_already_set"
	InitializeFailed Code = "initialize_failed"
	ResizeFailed     Code = "resize_failed"
	FinalizeFailed   Code = "finalize_failed"
	GetFailed        Code = "get_failed"
	AppendFailed     Code = "append_failed"
	RemoveFailed     Code = "remove_failed"
	PrintFailed      Code = "print_failed"
	AbortRequested   Code = "abort_requested"
	Generic          Code = "generic"
)

// Error is the structured failure every fd* operation returns. It wraps an
// optional underlying cause (e.g. a callback error) the same way the
// teacher wraps sqlite/os errors with fmt.Errorf's %w.
type Error struct {
	Domain  Domain
	Code    Code
	Op      string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s/%s: %v", e.Op, e.Domain, e.Code, e.Cause)
	}
	return fmt.Sprintf("%s: %s/%s", e.Op, e.Domain, e.Code)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds a structured error with no underlying cause.
func New(op string, domain Domain, code Code) error {
	return &Error{Domain: domain, Code: code, Op: op}
}

// Wrap attaches a domain/code to an underlying cause, mirroring the
// spec's "Callback errors are wrapped with a runtime context" rule.
func Wrap(op string, domain Domain, code Code, cause error) error {
	if cause == nil {
		return New(op, domain, code)
	}
	return &Error{Domain: domain, Code: code, Op: op, Cause: cause}
}

// Is reports whether err is an *Error with the given domain and code,
// unwrapping through any wrapping chain.
func Is(err error, domain Domain, code Code) bool {
	var fe *Error
	for err != nil {
		if e, ok := err.(*Error); ok {
			fe = e
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return fe != nil && fe.Domain == domain && fe.Code == code
}
