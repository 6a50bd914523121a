// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package coordinator

import (
	"bytes"
	"context"
	"fmt"

	"github.com/grailbio/macroq"
	"github.com/grailbio/macroq/shuttle"
	"github.com/grailbio/macroq/universe"
)

// A Cloner is a template task that knows how to bind one element of a
// Map input vector to a fresh task instance, ready for enrollment.
type Cloner interface {
	macroq.Task
	// Bind returns a new task built from the template, with input
	// bound as that task's payload.
	Bind(input interface{}) macroq.Task
}

// Dispatcher is the interface a subworld leader uses to claim and
// complete tasks against the coordinator. LocalDispatcher implements
// it for the subworld co-located with the coordinator (universe rank
// 0's own subworld); Client implements it over RPC for every other
// subworld.
type Dispatcher interface {
	// NextWaiting claims the highest-priority waiting task and returns
	// its index and the task itself, reconstructed in the caller's
	// process. It returns index -1 and a nil task once the queue has
	// drained.
	NextWaiting(ctx context.Context) (int, macroq.Task, error)
	// SetComplete reports that the task at index finished running.
	SetComplete(ctx context.Context, index int) error
}

// LocalDispatcher lets a subworld that shares the coordinator's
// process claim and complete tasks directly against its Queue,
// without going through RPC.
type LocalDispatcher struct {
	Queue *Queue
}

func (d *LocalDispatcher) NextWaiting(ctx context.Context) (int, macroq.Task, error) {
	index, err := d.Queue.NextWaiting(ctx)
	if err != nil || index < 0 {
		return index, nil, err
	}
	r, err := d.Queue.Record(index)
	if err != nil {
		return 0, nil, err
	}
	return index, r.Task, nil
}

func (d *LocalDispatcher) SetComplete(ctx context.Context, index int) error {
	return d.Queue.SetComplete(ctx, index)
}

func inputName(index int) string  { return fmt.Sprintf("input_%d", index) }
func resultName(index int) string { return fmt.Sprintf("result_%d", index) }

// RunWorker is the claim loop a subworld runs during a Map call. It
// must be called once by every member of sw; the subworld's leader
// alone talks to disp, and the claimed task is broadcast to the rest
// of the subworld so that every member executes the same Run call.
// RunWorker returns once the queue reports no more waiting tasks.
func RunWorker(ctx context.Context, sw *universe.Subworld, store shuttle.Store, reg *macroq.Registry, disp Dispatcher) error {
	for {
		var (
			index int
			raw   []byte
		)
		if sw.Leader() {
			task, claimErr := claim(ctx, disp, &index)
			if claimErr != nil {
				return claimErr
			}
			if index >= 0 {
				var buf bytes.Buffer
				if err := macroq.Encode(&buf, task); err != nil {
					return err
				}
				raw = buf.Bytes()
			}
		}
		claimedIndex, err := sw.BroadcastInt(ctx, index)
		if err != nil {
			return err
		}
		if claimedIndex < 0 {
			return nil
		}
		taskBytes, err := sw.BroadcastBytes(ctx, raw)
		if err != nil {
			return err
		}
		task, err := macroq.Decode(bytes.NewReader(taskBytes), reg)
		if err != nil {
			return err
		}
		if err := runClaimed(ctx, sw, store, claimedIndex, task); err != nil {
			return err
		}
		if sw.Leader() {
			if err := disp.SetComplete(ctx, claimedIndex); err != nil {
				return err
			}
		}
	}
}

func claim(ctx context.Context, disp Dispatcher, index *int) (macroq.Task, error) {
	i, task, err := disp.NextWaiting(ctx)
	*index = i
	return task, err
}

func runClaimed(ctx context.Context, sw *universe.Subworld, store shuttle.Store, index int, task macroq.Task) error {
	if st, ok := task.(macroq.ShuttlingTask); ok {
		if err := st.LoadInput(ctx, sw, store, inputName(index)); err != nil {
			return err
		}
	}
	if err := task.Run(ctx, sw); err != nil {
		return err
	}
	if st, ok := task.(macroq.ShuttlingTask); ok {
		if err := st.PersistOutput(ctx, sw, store, resultName(index)); err != nil {
			return err
		}
	}
	return nil
}

// Driver runs the coordinator side of a Map call: it builds one task
// per input by cloning template, enrolls them, waits for the batch to
// drain, then collects and returns the results. It must run on
// universe rank 0, the sole owner of queue, and sw must be rank 0's
// own subworld (so its own persist_input/load_output calls have a
// collective scope to run within).
//
// Driver does not itself claim tasks; pair it with a RunWorker loop
// over sw (and every other subworld in the universe) to actually
// drain the queue, exactly as the scheduling policy requires: the
// coordinator role only serves RPCs, but rank 0's own subworld is a
// worker like any other.
func Driver(ctx context.Context, sw *universe.Subworld, store shuttle.Store, queue *Queue, template Cloner, inputs []interface{}) ([]macroq.Task, error) {
	if len(inputs) == 0 {
		return nil, nil
	}
	tasks := make([]macroq.Task, len(inputs))
	for i, in := range inputs {
		tasks[i] = template.Bind(in)
	}
	indices := queue.Enroll(tasks)
	for i, index := range indices {
		st, ok := tasks[i].(macroq.ShuttlingTask)
		if !ok {
			continue
		}
		if err := st.PersistInput(ctx, sw, store, inputName(index)); err != nil {
			queue.Fail(index, err)
			return nil, err
		}
	}

	if err := queue.WaitDrained(ctx); err != nil {
		return nil, err
	}
	if err := queue.Errors(); err != nil {
		return nil, err
	}

	outputs := make([]macroq.Task, len(tasks))
	for i, index := range indices {
		task := tasks[i]
		if st, ok := task.(macroq.ShuttlingTask); ok {
			name := resultName(index)
			if err := st.LoadOutput(ctx, sw, store, name); err != nil {
				return nil, err
			}
			if err := store.Remove(ctx, name); err != nil {
				return nil, err
			}
		}
		outputs[i] = task
	}
	return outputs, nil
}
