// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package coordinator implements the macro-task queue: the
// centralized scheduler that holds the authoritative task list on
// universe rank 0, dispatches waiting tasks to subworlds that ask for
// them, and drives the end-to-end Map fan-out/collect call.
package coordinator

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/btree"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/macroq"
	"github.com/grailbio/macroq/ctxsync"
	"github.com/grailbio/macroq/stats"
)

// Record is a single enrolled task together with the scheduler-visible
// bookkeeping fields the coordinator needs to dispatch and track it.
// It plays the role the Data Model's Task record plays, split from
// macroq.Task itself so that the coordinator's own bookkeeping never
// leaks into the interface task authors implement.
type Record struct {
	// Index is the task's position in the order it was enrolled.
	Index int
	// Priority is the task's claim priority: higher claims first.
	Priority int
	// Task is the enrolled task itself.
	Task macroq.Task

	mu     sync.Mutex
	status macroq.Status
	err    error
}

// Status returns the record's current lifecycle status.
func (r *Record) Status() macroq.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

func (r *Record) setStatus(s macroq.Status) {
	r.mu.Lock()
	r.status = s
	r.mu.Unlock()
}

// Err returns the first error recorded against this task, if any.
func (r *Record) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

func (r *Record) setErr(err error) {
	r.mu.Lock()
	if r.err == nil {
		r.err = err
	}
	r.mu.Unlock()
}

// waitItem orders Records in the waiting set: highest priority first,
// ties broken by smallest index.
type waitItem struct {
	priority int
	index    int
}

func (w waitItem) Less(than btree.Item) bool {
	o := than.(waitItem)
	if w.priority != o.priority {
		return w.priority > o.priority
	}
	return w.index < o.index
}

// Queue holds the authoritative task list. It is constructed once per
// batch and lives only on universe rank 0.
type Queue struct {
	mu        sync.Mutex
	cond      *ctxsync.Cond
	records   []*Record
	waiting   *btree.BTree
	completed int
	firstErr  error

	Stats *stats.Map
}

// NewQueue returns an empty Queue.
func NewQueue() *Queue {
	q := &Queue{
		waiting: btree.New(8),
		Stats:   stats.NewMap(),
	}
	q.cond = ctxsync.NewCond(&q.mu)
	return q
}

// Enroll appends tasks to the list, in order, setting each to Waiting
// and returning their assigned indices. It is the coordinator-side
// half of the collective enroll() call; the caller is responsible for
// persisting each task's heavy input to the shuttle before or after
// Enroll returns, per its own task variant's PersistInput contract.
func (q *Queue) Enroll(tasks []macroq.Task) []int {
	q.mu.Lock()
	defer q.mu.Unlock()
	indices := make([]int, len(tasks))
	for i, t := range tasks {
		index := len(q.records)
		priority := 0
		if p, ok := t.(macroq.Prioritized); ok {
			priority = p.Priority()
		}
		r := &Record{Index: index, Priority: priority, Task: t, status: macroq.Waiting}
		q.records = append(q.records, r)
		q.waiting.ReplaceOrInsert(waitItem{priority: priority, index: index})
		indices[i] = index
	}
	q.Stats.Int("tasks_enrolled").Add(int64(len(tasks)))
	return indices
}

// NextWaiting finds the highest-priority Waiting task, ties broken by
// smallest index, marks it Running, and returns its index. It returns
// -1 if no Waiting task remains.
func (q *Queue) NextWaiting(ctx context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	item := q.waiting.Min()
	if item == nil {
		return -1, nil
	}
	q.waiting.Delete(item)
	w := item.(waitItem)
	r := q.records[w.index]
	r.setStatus(macroq.Running)
	q.Stats.Int("tasks_claimed").Add(1)
	return w.index, nil
}

// SetComplete asserts that the task at index is Running and marks it
// Complete. It returns a ProtocolViolation error if the task is in
// any other status.
func (q *Queue) SetComplete(ctx context.Context, index int) error {
	q.mu.Lock()
	r, err := q.recordLocked(index)
	q.mu.Unlock()
	if err != nil {
		return err
	}
	r.mu.Lock()
	if r.status != macroq.Running {
		status := r.status
		r.mu.Unlock()
		return protocolViolation("SetComplete(%d): task status is %s, want Running", index, status)
	}
	r.status = macroq.Complete
	r.mu.Unlock()
	q.Stats.Int("tasks_completed").Add(1)

	q.mu.Lock()
	q.completed++
	q.cond.Broadcast()
	q.mu.Unlock()
	return nil
}

// WaitDrained blocks until every task enrolled so far has reached
// Complete, or ctx is done.
func (q *Queue) WaitDrained(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.completed < len(q.records) {
		if err := q.cond.Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Fail records err against the task at index and as the batch's first
// error, which Errors then reports.
func (q *Queue) Fail(index int, err error) {
	q.mu.Lock()
	r, getErr := q.recordLocked(index)
	if getErr == nil {
		q.firstErr = firstOf(q.firstErr, err)
	} else {
		q.firstErr = firstOf(q.firstErr, getErr)
	}
	q.mu.Unlock()
	if r != nil {
		r.setErr(err)
	}
}

// Errors returns the first error observed by the coordinator since
// construction, or nil if the batch has run cleanly so far.
func (q *Queue) Errors() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.firstErr
}

// Record returns the record enrolled at index.
func (q *Queue) Record(index int) (*Record, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.recordLocked(index)
}

// Len returns the number of tasks enrolled in the queue.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.records)
}

func (q *Queue) recordLocked(index int) (*Record, error) {
	if index < 0 || index >= len(q.records) {
		return nil, protocolViolation("record index %d out of range [0, %d)", index, len(q.records))
	}
	return q.records[index], nil
}

func firstOf(a, b error) error {
	if a != nil {
		return a
	}
	return b
}

func protocolViolation(format string, args ...interface{}) error {
	return errors.E(errors.Fatal, macroq.ErrProtocolViolation, fmt.Sprintf(format, args...))
}
