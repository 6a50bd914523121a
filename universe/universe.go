// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package universe gives a flat pool of peer processes (the universe)
// collective operations (barrier, broadcast, reduce) over the whole
// pool, and splits it into disjoint subworlds by round-robin
// assignment, each with the same collective operations restricted to
// its own members.
//
// Two backends are provided. Local simulates a universe with
// goroutines and channels in a single process, for unit tests and for
// boundary cases that are awkward to exercise with a real process
// pool. Bigmachine wires the same abstraction onto
// github.com/grailbio/bigmachine, a process-pool and RPC library.
//
// The wire transport between universe members is not specified here;
// Local and Bigmachine both satisfy the same contract, and callers do
// not need to know which backs a given Universe.
package universe

import (
	"context"
	"fmt"

	"github.com/grailbio/base/errors"
)

// system is the internal transport a Universe is built on. localRank
// and bigmachineSystem both implement it.
type system interface {
	size() int
	rank() int
	barrier(ctx context.Context) error
	agreeK(ctx context.Context, k int) (int, error)
	broadcastInt(ctx context.Context, leader bool, v int) (int, error)
	broadcastBytes(ctx context.Context, leader bool, v []byte) ([]byte, error)
	reduceInt(ctx context.Context, v int, op ReduceOp) (int, error)
	subBarrier(ctx context.Context, subIndex, subSize int) error
	subBroadcastInt(ctx context.Context, subIndex, subSize int, leader bool, v int) (int, error)
	subBroadcastBytes(ctx context.Context, subIndex, subSize int, leader bool, v []byte) ([]byte, error)
}

// ReduceOp names the combining function Reduce applies across every
// rank's contributed value. Functions cannot travel over RPC, so
// Reduce is restricted to this small, closed set of associative,
// commutative operations rather than an arbitrary caller-supplied
// closure.
type ReduceOp int

const (
	// ReduceSum combines values by addition.
	ReduceSum ReduceOp = iota
	// ReduceMin combines values by taking the smallest.
	ReduceMin
	// ReduceMax combines values by taking the largest.
	ReduceMax
)

func (op ReduceOp) apply(a, b int) int {
	switch op {
	case ReduceMin:
		if b < a {
			return b
		}
		return a
	case ReduceMax:
		if b > a {
			return b
		}
		return a
	default:
		return a + b
	}
}

// A Universe is the caller's handle onto the full pool of peer
// processes. Every member of the pool holds its own Universe value,
// bound to its own rank.
type Universe struct {
	sys system
}

// Size returns the number of ranks (processes) in the universe.
func (u *Universe) Size() int { return u.sys.size() }

// Rank returns the caller's own rank, in [0, Size()).
func (u *Universe) Rank() int { return u.sys.rank() }

// Barrier blocks until every rank in the universe has called Barrier.
func (u *Universe) Barrier(ctx context.Context) error {
	return u.sys.barrier(ctx)
}

// Broadcast broadcasts an int value from rank 0 to every rank in the
// universe. v is only meaningful when the caller is rank 0; every
// rank, root included, returns the value rank 0 passed.
func (u *Universe) Broadcast(ctx context.Context, v int) (int, error) {
	return u.sys.broadcastInt(ctx, u.Rank() == 0, v)
}

// BroadcastBytes is Broadcast for a byte slice.
func (u *Universe) BroadcastBytes(ctx context.Context, v []byte) ([]byte, error) {
	return u.sys.broadcastBytes(ctx, u.Rank() == 0, v)
}

// Reduce combines v, the calling rank's own contribution, with every
// other rank's contribution using op, and returns the combined result
// to every rank (an allreduce, not a reduce-to-root).
func (u *Universe) Reduce(ctx context.Context, v int, op ReduceOp) (int, error) {
	return u.sys.reduceInt(ctx, v, op)
}

// invalidArgument reports a caller configuration error: bad
// arguments detected eagerly, without waiting on other ranks.
func invalidArgument(format string, args ...interface{}) error {
	return errors.E(errors.Invalid, fmt.Sprintf(format, args...))
}
