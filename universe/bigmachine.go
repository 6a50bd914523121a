// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package universe

import (
	"context"
	"fmt"

	"github.com/grailbio/bigmachine"
)

// StartBigmachine starts n-1 bigmachine machines under system and
// returns the Universe handle for the driver process, which is always
// universe rank 0 -- the same rank that owns the coordinator's queue
// state in package coordinator.
//
// Ranks 1..n-1 are the n-1 started machines, in the order the
// returned []*bigmachine.Machine lists them. extra's services are
// registered on every machine alongside the "Worker" service this
// function registers there, so a caller that needs its own RPC-reachable worker-side state (package coordinator
// registers a Claimer this way, to let a remote machine run a real
// claim loop against the coordinator) does not have to reimplement
// machine startup to get it.
//
// StartBigmachine also returns the started machines themselves, in
// the same rank order as Ranks 1..n-1, so a caller that registered an
// extra service can reach it directly with Machine.Call/RetryCall
// rather than going through the collective machinery this package
// exposes on *Universe.
func StartBigmachine(ctx context.Context, system bigmachine.System, n int, extra bigmachine.Services) (*Universe, *bigmachine.B, []*bigmachine.Machine, error) {
	if n < 1 {
		return nil, nil, nil, invalidArgument("StartBigmachine: n=%d must be >= 1", n)
	}
	b := bigmachine.Start(system)
	var machines []*bigmachine.Machine
	if n > 1 {
		services := bigmachine.Services{"Worker": &worker{}}
		for name, svc := range extra {
			services[name] = svc
		}
		var err error
		machines, err = b.Start(ctx, n-1, services)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("universe: starting %d machines: %w", n-1, err)
		}
	}
	sys := &bigmachineSystem{b: b, machines: machines}
	return &Universe{sys: sys}, b, machines, nil
}

// worker is the service each bigmachine machine exposes so that the
// driver's collective calls (Worker.Barrier, Worker.AgreeK,
// Worker.Broadcast, Worker.Reduce, Worker.SubBarrier,
// Worker.SubBroadcast, Worker.SubBroadcastBytes) have a real RPC
// target, grounded on the teacher's own worker struct in
// exec/bigmachine.go. True cross-machine rendezvous is not
// reimplemented here: the driver relays each collective call to every
// machine in turn, so a worker's handler only needs to acknowledge
// (or echo back a broadcast value) rather than block on its peers --
// consistent with the coordinator-centric design that keeps all
// authoritative state on rank 0. Actual task execution on a remote
// machine does not go through this service at all: it goes through
// the separately registered Claimer (see package coordinator), the
// one worker-side service that runs real application code rather
// than acknowledging the driver's own.
type worker struct{}

// Init satisfies bigmachine's service contract; this worker keeps no
// state of its own.
func (w *worker) Init(b *bigmachine.B) error { return nil }

func (w *worker) Barrier(ctx context.Context, _ struct{}, _ *struct{}) error { return nil }

func (w *worker) AgreeK(ctx context.Context, k int, reply *int) error {
	*reply = k
	return nil
}

func (w *worker) Broadcast(ctx context.Context, v int, reply *int) error {
	*reply = v
	return nil
}

func (w *worker) BroadcastBytes(ctx context.Context, v []byte, reply *[]byte) error {
	*reply = v
	return nil
}

func (w *worker) Reduce(ctx context.Context, v int, reply *int) error {
	*reply = v
	return nil
}

func (w *worker) SubBarrier(ctx context.Context, _ struct{}, _ *struct{}) error { return nil }

func (w *worker) SubBroadcast(ctx context.Context, v int, reply *int) error {
	*reply = v
	return nil
}

func (w *worker) SubBroadcastBytes(ctx context.Context, v []byte, reply *[]byte) error {
	*reply = v
	return nil
}

// bigmachineSystem is the system implementation for the driver
// process of a real, bigmachine-backed universe. It is deliberately
// thin: the actual wire protocol for subworld-internal barriers and
// broadcasts is left to bigmachine's own RPC (Machine.Call/RetryCall);
// this type issues the coordinating calls rather than re-implement a
// transport.
type bigmachineSystem struct {
	b        *bigmachine.B
	machines []*bigmachine.Machine
}

func (s *bigmachineSystem) size() int { return len(s.machines) + 1 }
func (s *bigmachineSystem) rank() int { return 0 }

func (s *bigmachineSystem) barrier(ctx context.Context) error {
	var reply struct{}
	return s.callAll(ctx, "Worker.Barrier", struct{}{}, &reply)
}

func (s *bigmachineSystem) agreeK(ctx context.Context, k int) (int, error) {
	var reply int
	if err := s.callAll(ctx, "Worker.AgreeK", k, &reply); err != nil {
		return 0, err
	}
	return k, nil
}

// broadcastInt, like agreeK, only ever carries the driver's own
// value: the driver is the only process in this universe that runs
// application code, so it is also the only possible root.
func (s *bigmachineSystem) broadcastInt(ctx context.Context, leader bool, v int) (int, error) {
	var reply int
	if err := s.callAll(ctx, "Worker.Broadcast", v, &reply); err != nil {
		return 0, err
	}
	return v, nil
}

func (s *bigmachineSystem) broadcastBytes(ctx context.Context, leader bool, v []byte) ([]byte, error) {
	var reply []byte
	if err := s.callAll(ctx, "Worker.BroadcastBytes", v, &reply); err != nil {
		return nil, err
	}
	return v, nil
}

// reduceInt resolves to the driver's own v: every rank with a Go-level
// contribution to make is the driver process itself (see the worker
// type's doc comment), so there is nothing for op to combine against.
func (s *bigmachineSystem) reduceInt(ctx context.Context, v int, op ReduceOp) (int, error) {
	var reply int
	if err := s.callAll(ctx, "Worker.Reduce", v, &reply); err != nil {
		return 0, err
	}
	return v, nil
}

func (s *bigmachineSystem) subBarrier(ctx context.Context, subIndex, subSize int) error {
	var reply struct{}
	return s.callGroup(ctx, subIndex, "Worker.SubBarrier", struct{}{}, &reply)
}

func (s *bigmachineSystem) subBroadcastInt(ctx context.Context, subIndex, subSize int, leader bool, v int) (int, error) {
	var reply int
	if err := s.callGroup(ctx, subIndex, "Worker.SubBroadcast", v, &reply); err != nil {
		return 0, err
	}
	return v, nil
}

func (s *bigmachineSystem) subBroadcastBytes(ctx context.Context, subIndex, subSize int, leader bool, v []byte) ([]byte, error) {
	var reply []byte
	if err := s.callGroup(ctx, subIndex, "Worker.SubBroadcastBytes", v, &reply); err != nil {
		return nil, err
	}
	return v, nil
}

// machineForRank returns the machine handle for universe rank r, r
// in [1, size()). Rank 0 is the driver itself and has no Machine.
func (s *bigmachineSystem) machineForRank(r int) *bigmachine.Machine {
	if r == 0 || r-1 >= len(s.machines) {
		return nil
	}
	return s.machines[r-1]
}

// callAll invokes method on every machine, with reply reused (and
// overwritten) for each call in turn.
func (s *bigmachineSystem) callAll(ctx context.Context, method string, arg, reply interface{}) error {
	for _, m := range s.machines {
		if err := m.RetryCall(ctx, method, arg, reply); err != nil {
			return fmt.Errorf("universe: %s on %s: %w", method, m.Addr, err)
		}
	}
	return nil
}

// callGroup fans a call out to every machine, whether or not it is a
// member of subIndex's subworld; subIndex is not sent. It is
// equivalent to callAll because this system's workers keep no
// subworld-specific state of their own -- see the worker type's doc
// comment.
func (s *bigmachineSystem) callGroup(ctx context.Context, subIndex int, method string, arg, reply interface{}) error {
	return s.callAll(ctx, method, arg, reply)
}
