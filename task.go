// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package macroq defines the polymorphic macro-task abstraction: a
// unit of coarse-grained work that can be serialized across process
// boundaries, dispatched to the correct concrete implementation on
// receipt, and run to completion inside a subworld.
//
// The scheduler that dispatches tasks lives in package coordinator;
// the mechanism that moves a task's heavy, subworld-bound operands
// between subworlds lives in package shuttle. Neither package needs
// to know the semantics of any concrete Task: a receiving subworld
// discovers what it is running purely from the task's KindTag and a
// Registry.
package macroq

import (
	"context"
	"io"

	"github.com/grailbio/macroq/universe"
)

// Status represents the lifecycle state of an enrolled task. Status
// values are defined so that their magnitudes correspond to
// progression: a task's status only ever increases.
type Status int

const (
	// Unknown is the status of a task before it has been enrolled in
	// a queue.
	Unknown Status = iota
	// Waiting indicates the task has been enrolled and is eligible to
	// be claimed by a subworld.
	Waiting
	// Running indicates a subworld has claimed the task and is
	// executing it.
	Running
	// Complete indicates the task's Run method has returned and its
	// output has been persisted to the shuttle.
	Complete
)

var statusNames = [...]string{
	Unknown:  "Unknown",
	Waiting:  "Waiting",
	Running:  "Running",
	Complete: "Complete",
}

// String returns the status as a human-readable word.
func (s Status) String() string {
	if s < Unknown || s > Complete {
		return "Invalid"
	}
	return statusNames[s]
}

// A Task is a polymorphic unit of macro-task work. Concrete task
// variants (see package example for illustrations) implement Task and
// register a factory for their KindTag with a Registry so that a
// receiving subworld can reconstruct the correct variant from a byte
// stream.
//
// Run, LoadInput and PersistOutput are invoked on every member of the
// subworld named in their sw argument. PersistInput and LoadOutput are
// invoked by coordinator.Driver on universe rank 0 alone, not by the
// other members of sw. Serialize runs wherever a claimed task is
// encoded for hand-out, and Deserialize on every subworld member that
// receives it.
type Task interface {
	// Run executes the task locally within sw. Its precondition is
	// that any heavy inputs have already been loaded into memory by
	// LoadInput; its postcondition is that heavy outputs are in
	// memory and ready for PersistOutput.
	Run(ctx context.Context, sw *universe.Subworld) error

	// Serialize writes the task's plain fields and the handles (not
	// the data) of its heavy fields to w.
	Serialize(w io.Writer) error

	// Deserialize is the inverse of Serialize. It is always called on
	// a freshly allocated, zero-valued instance produced by a
	// Registry factory.
	Deserialize(r io.Reader) error

	// KindTag returns a stable identifier for the task's concrete
	// type, sufficient for a Registry to select the right factory on
	// the receiving end.
	KindTag() string
}

// Prioritized is implemented by task variants that want their claim
// order influenced relative to other tasks enrolled in the same
// queue: among Waiting tasks, higher priority is claimed first, ties
// broken by smallest enrollment index. Tasks that do not implement
// Prioritized are enrolled at priority 0.
type Prioritized interface {
	Priority() int
}

// A ShuttlingTask additionally knows how to move its own heavy,
// subworld-bound fields through an external-state shuttle. Task
// variants with no heavy fields need not implement this interface;
// the shuttle is then simply never invoked for them.
type ShuttlingTask interface {
	Task

	// PersistInput writes the task's heavy input fields to the named
	// shuttle entry and frees their in-memory representation.
	PersistInput(ctx context.Context, sw *universe.Subworld, store Store, name string) error
	// LoadInput is the inverse of PersistInput: it reconstructs the
	// task's heavy input fields bound to sw.
	LoadInput(ctx context.Context, sw *universe.Subworld, store Store, name string) error
	// PersistOutput writes the task's heavy output fields to the
	// named shuttle entry.
	PersistOutput(ctx context.Context, sw *universe.Subworld, store Store, name string) error
	// LoadOutput is the inverse of PersistOutput, reconstructing heavy
	// output fields bound to sw.
	LoadOutput(ctx context.Context, sw *universe.Subworld, store Store, name string) error
}

// Store is the subset of shuttle.Store that task implementations need
// in order to persist and load their own heavy fields. It is defined
// here, rather than imported from package shuttle, so that this
// package has no dependency on shuttle's storage backends; package
// shuttle's Store type satisfies this interface.
type Store interface {
	Persist(ctx context.Context, name string, write func(io.Writer) error) error
	Load(ctx context.Context, name string, read func(io.Reader) error) error
	Remove(ctx context.Context, name string) error
}
