// Package dbrerr defines the typed error kinds surfaced to the operator by
// every dbranch component, per the error handling design: inner components
// return a typed error, the lifecycle manager may translate it to a kind
// more meaningful at the CLI boundary, but none of them is ever swallowed
// silently outside of the documented best-effort cleanup paths.
package dbrerr

import (
	stderrors "errors"
	"fmt"

	"github.com/go-errors/errors"
)

type Kind string

const (
	KindConfig                 Kind = "Config"
	KindConfigParsing          Kind = "ConfigParsing"
	KindFileSystem             Kind = "FileSystem"
	KindFileNotFound           Kind = "FileNotFound"
	KindBtrfs                  Kind = "Btrfs"
	KindDiskMount              Kind = "DiskMount"
	KindDocker                 Kind = "Docker"
	KindAuth                   Kind = "Auth"
	KindPermission             Kind = "Permission"
	KindProjectAlreadyExists   Kind = "ProjectAlreadyExists"
	KindProjectNotFound        Kind = "ProjectNotFound"
	KindDefaultProjectNotFound Kind = "DefaultProjectNotFound"
	KindBranchAlreadyExists    Kind = "BranchAlreadyExists"
	KindBranchNotFound         Kind = "BranchNotFound"
	KindNoPortAvailable        Kind = "NoPortAvailable"
	KindNetwork                Kind = "Network"
	KindNotImplemented         Kind = "NotImplemented"
	KindInternal               Kind = "Internal"
	KindValidation             Kind = "Validation"
)

// Error wraps an underlying cause with an operator-facing Kind. It satisfies
// errors.Is/As/Unwrap so callers can match on Kind without string-matching
// messages.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		// cause already carries Message: New builds it from Message and
		// Wrap prefixes it with Message.
		return fmt.Sprintf("%s: %v", e.Kind, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return other.Kind == e.Kind
}

// New builds a bare error of the given kind with a stack-traced message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message, cause: errors.Errorf("%s", message)}
}

// Wrap annotates cause with an operator-facing kind, preserving it for
// errors.Unwrap / errors.As.
func Wrap(kind Kind, message string, cause error) *Error {
	if cause == nil {
		return New(kind, message)
	}
	return &Error{Kind: kind, Message: message, cause: errors.WrapPrefix(cause, message, 1)}
}

// NoPortAvailable builds the error kind that carries the exhausted window
// bounds, per spec §7.
func NoPortAvailable(min, max int) *Error {
	return &Error{Kind: KindNoPortAvailable, Message: fmt.Sprintf("no port available in [%d,%d]", min, max)}
}

// NotImplemented builds the reserved-verb error kind, carrying the verb name.
func NotImplemented(verb string) *Error {
	return &Error{Kind: KindNotImplemented, Message: fmt.Sprintf("%q is not implemented", verb)}
}

func Is(err error, kind Kind) bool {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
