// Package errs implements the closed error taxonomy returned across the
// playback core. Every failure path in this module wraps an underlying cause
// (if any) in one of these kinds rather than inventing ad hoc error strings.
package errs

import (
	"errors"
	"fmt"
)

// Kind is a closed set of error classifications. New kinds must not be added
// without updating every caller that switches on Kind.
type Kind int

const (
	// OK is never returned as an error value; it exists for completeness
	// with the reference taxonomy.
	OK Kind = iota
	Range
	InvalidArg
	Syscall
	Memory
	Thread
	Zstd
	AudioInit
	AudioPlay
	Decode
	InvalidFormat
	NoSerialDevice
	SerialInit
)

var names = map[Kind]string{
	OK:             "ok",
	Range:          "range",
	InvalidArg:     "invalid-arg",
	Syscall:        "syscall",
	Memory:         "memory",
	Thread:         "thread",
	Zstd:           "zstd",
	AudioInit:      "audio-init",
	AudioPlay:      "audio-play",
	Decode:         "decode",
	InvalidFormat:  "invalid-format",
	NoSerialDevice: "no-serial-device",
	SerialInit:     "serial-init",
}

func (k Kind) String() string {
	if s, ok := names[k]; ok {
		return s
	}
	return "unknown"
}

// Error pairs a Kind with the operation that produced it and an optional
// wrapped cause.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an *Error with no wrapped cause.
func New(kind Kind, op string) error {
	return &Error{Kind: kind, Op: op}
}

// Wrap builds an *Error around an existing cause. Wrap returns nil if err is
// nil, so it is safe to call unconditionally on a function's error return.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Is reports whether err is an *Error of the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
