// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package macroq

import (
	"fmt"

	"github.com/grailbio/base/errors"
)

// The following sentinels identify the error taxonomy of the macro-task
// queue. They are wrapped with a github.com/grailbio/base/errors.Kind
// by the helpers below so that callers can use either errors.Is against
// the sentinel or errors.Is against the base/errors kind.
var (
	// ErrUnknownKind is returned when a deserialized task carries a
	// KindTag that has no registered factory.
	ErrUnknownKind = fmt.Errorf("macroq: unknown kind tag")
	// ErrTruncatedStream is returned when decoding a task or shuttle
	// entry runs off the end of the available bytes.
	ErrTruncatedStream = fmt.Errorf("macroq: truncated stream")
	// ErrSideStoreIO is returned when a named-blob read or write to
	// the shuttle's side store fails.
	ErrSideStoreIO = fmt.Errorf("macroq: side store I/O failure")
	// ErrProtocolViolation indicates a status transition from a state
	// that should be impossible -- a caller asserted completion of a
	// task that is not Running (never claimed, or already complete), or
	// named a task index outside the queue.
	ErrProtocolViolation = fmt.Errorf("macroq: protocol violation")
	// ErrDuplicateKind is the error Registry.Register panics with when
	// a KindTag is registered more than once. It is a fatal
	// configuration error.
	ErrDuplicateKind = fmt.Errorf("macroq: duplicate kind tag registration")
)

// errUnknownKind returns ErrUnknownKind tagged with the offending kind
// and classified as errors.NotExist.
func errUnknownKind(tag string) error {
	return errors.E(errors.NotExist, ErrUnknownKind, fmt.Sprintf("kind tag %q", tag))
}

func errTruncated(where string) error {
	return errors.E(errors.Invalid, ErrTruncatedStream, where)
}

