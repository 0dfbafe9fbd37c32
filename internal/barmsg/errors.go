/*
 * Copyright 2024, 2025 Hewlett Packard Enterprise Development LP
 * Other additional copyright holders may be indicated within.
 *
 * The entirety of this work is licensed under the Apache License,
 * Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.
 *
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package barmsg

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failed call.
type ErrorKind int

const (
	// AllocationError means a request or response buffer could not be obtained.
	AllocationError ErrorKind = iota + 1

	// InputError means the caller passed a nil handle, an uninitialized
	// channel or an out-of-range argument. Nothing was allocated or sent.
	InputError

	// ChannelError means the channel primitive reported a transport failure.
	ChannelError

	// ProtocolError means the response failed marker or length validation.
	ProtocolError
)

func (k ErrorKind) String() string {
	switch k {
	case AllocationError:
		return "allocation error"
	case InputError:
		return "input error"
	case ChannelError:
		return "channel error"
	case ProtocolError:
		return "protocol error"
	}
	return fmt.Sprintf("error kind %d", int(k))
}

// Error is returned by every failing operation in this package.
type Error struct {
	Kind ErrorKind
	Op   string

	// Status is the transport code of a ChannelError, StatusOK otherwise.
	Status Status

	Err error
}

func newError(kind ErrorKind, op string, format string, a ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, a...)}
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Kind == ChannelError {
		msg += fmt.Sprintf(" (%s, %d)", e.Status, int(e.Status))
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so callers may write
// errors.Is(err, barmsg.ErrProtocol).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrAllocation = &Error{Kind: AllocationError}
	ErrInput      = &Error{Kind: InputError}
	ErrChannel    = &Error{Kind: ChannelError}
	ErrProtocol   = &Error{Kind: ProtocolError}
)

// IsError reports whether err is an *Error of the given kind.
func IsError(err error, kind ErrorKind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}
