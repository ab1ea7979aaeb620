/*
NAME
  crerr.go

DESCRIPTION
  crerr.go defines the error kinds every engine component returns, so the
  worker and main thread can make recovery decisions (remove a stream,
  request a device reset, log and continue) without string-matching errors.

AUTHOR
  Cras Engine Contributors

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package crerr defines the engine-wide error kinds and a small typed error
// that carries one.
package crerr

import "fmt"

// Kind classifies an engine error so callers can decide how to recover.
type Kind int

const (
	// InvalidArg: bad format, out-of-range index, unsupported channel conversion.
	InvalidArg Kind = iota
	// NoMem: allocation failure; caller must roll back partial construction.
	NoMem
	// Busy: stream already attached, device already open.
	Busy
	// IoError: device returned an error code.
	IoError
	// Xrun: severe under/overrun; triggers a per-device reset request.
	Xrun
	// ProtocolError: malformed command from the main thread.
	ProtocolError
)

func (k Kind) String() string {
	switch k {
	case InvalidArg:
		return "invalid argument"
	case NoMem:
		return "no memory"
	case Busy:
		return "busy"
	case IoError:
		return "io error"
	case Xrun:
		return "xrun"
	case ProtocolError:
		return "protocol error"
	default:
		return "unknown error"
	}
}

// Error is an engine error tagged with a Kind.
type Error struct {
	Kind Kind
	Msg  string
	Err  error // optional wrapped cause.
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an *Error of the given kind.
func New(k Kind, msg string) error { return &Error{Kind: k, Msg: msg} }

// Wrap builds an *Error of the given kind, wrapping an underlying cause.
func Wrap(k Kind, msg string, err error) error { return &Error{Kind: k, Msg: msg, Err: err} }

// KindOf returns the Kind of err if it (or something it wraps) is an
// *Error, and ok=false otherwise.
func KindOf(err error) (Kind, bool) {
	for {
		if e, ok := err.(*Error); ok {
			return e.Kind, true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return 0, false
		}
		err = u.Unwrap()
		if err == nil {
			return 0, false
		}
	}
}
