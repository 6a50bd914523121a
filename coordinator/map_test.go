// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package coordinator

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"github.com/grailbio/macroq"
	"github.com/grailbio/macroq/example"
	"github.com/grailbio/macroq/shuttle"
	"github.com/grailbio/macroq/universe"
)

func matrixOf(r, c int, data []float64) *mat.Dense {
	return mat.NewDense(r, c, data)
}

// runMap partitions n universe.Local ranks into k subworlds, enrolls
// one task per input against template on rank 0's subworld, and runs
// every subworld's claim loop concurrently until the batch drains. It
// returns the collected outputs (in input order) and the first error
// from the run, or else the coordinator's own Errors() value.
func runMap(t *testing.T, n, k int, reg *macroq.Registry, template Cloner, inputs []interface{}) ([]macroq.Task, error) {
	t.Helper()
	universes := universe.NewLocal(n)
	queue := NewQueue()
	store := shuttle.NewMemory()

	g, ctx := errgroup.WithContext(context.Background())
	subworlds := make([]*universe.Subworld, n)
	for r, u := range universes {
		r, u := r, u
		g.Go(func() error {
			sw, err := universe.Partition(ctx, u, k)
			subworlds[r] = sw
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}

	disp := &LocalDispatcher{Queue: queue}
	var outputs []macroq.Task
	g, ctx = errgroup.WithContext(context.Background())
	for r, sw := range subworlds {
		r, sw := r, sw
		g.Go(func() error { return RunWorker(ctx, sw, store, reg, disp) })
		if r == 0 {
			g.Go(func() error {
				out, err := Driver(ctx, sw, store, queue, template, inputs)
				outputs = out
				return err
			})
		}
	}
	runErr := g.Wait()
	return outputs, firstOf(runErr, queue.Errors())
}

func squareTemplate() (Cloner, *macroq.Registry) {
	reg := macroq.NewRegistry()
	example.Register(reg)
	return &example.SquareTask{}, reg
}

func TestMapFiveTasksThreeRanksThreeSubworlds(t *testing.T) {
	template, reg := squareTemplate()
	inputs := make([]interface{}, 5)
	for i := range inputs {
		inputs[i] = example.SquareInput{I: i, D: float64(i)}
	}
	outputs, err := runMap(t, 3, 3, reg, template, inputs)
	if err != nil {
		t.Fatal(err)
	}
	want := []float64{0, 1, 4, 9, 16}
	for i, task := range outputs {
		got := task.(*example.SquareTask).D
		if got != want[i] {
			t.Errorf("output %d: got %v, want %v", i, got, want[i])
		}
	}
}

func TestMapOneTaskTwoRanksTwoSubworlds(t *testing.T) {
	template, reg := squareTemplate()
	inputs := []interface{}{example.SquareInput{I: 0, D: 3}}
	outputs, err := runMap(t, 2, 2, reg, template, inputs)
	if err != nil {
		t.Fatal(err)
	}
	if len(outputs) != 1 {
		t.Fatalf("got %d outputs, want 1", len(outputs))
	}
	if got := outputs[0].(*example.SquareTask).D; got != 9 {
		t.Errorf("output: got %v, want 9", got)
	}
}

func TestMapThreeTasksSingleRankK1(t *testing.T) {
	template, reg := squareTemplate()
	inputs := []interface{}{
		example.SquareInput{I: 0, D: 1},
		example.SquareInput{I: 1, D: 2},
		example.SquareInput{I: 2, D: 3},
	}
	outputs, err := runMap(t, 1, 1, reg, template, inputs)
	if err != nil {
		t.Fatal(err)
	}
	want := []float64{1, 4, 9}
	for i, task := range outputs {
		if got := task.(*example.SquareTask).D; got != want[i] {
			t.Errorf("output %d: got %v, want %v", i, got, want[i])
		}
	}
}

func TestMapEmptyBatch(t *testing.T) {
	for _, tc := range []struct{ n, k int }{{1, 1}, {4, 2}, {5, 5}} {
		template, reg := squareTemplate()
		outputs, err := runMap(t, tc.n, tc.k, reg, template, nil)
		if err != nil {
			t.Fatalf("n=%d k=%d: %v", tc.n, tc.k, err)
		}
		if len(outputs) != 0 {
			t.Errorf("n=%d k=%d: got %d outputs, want 0", tc.n, tc.k, len(outputs))
		}
	}
}

func TestMapRunTwiceYieldsEqualOutputs(t *testing.T) {
	template, reg := squareTemplate()
	inputs := []interface{}{
		example.SquareInput{I: 0, D: 2},
		example.SquareInput{I: 1, D: 5},
	}
	out1, err := runMap(t, 3, 3, reg, template, inputs)
	if err != nil {
		t.Fatal(err)
	}
	out2, err := runMap(t, 3, 3, reg, template, inputs)
	if err != nil {
		t.Fatal(err)
	}
	for i := range out1 {
		a := out1[i].(*example.SquareTask)
		b := out2[i].(*example.SquareTask)
		if !cmp.Equal(a, b) {
			t.Errorf("index %d: %v != %v", i, a, b)
		}
	}
}

// TestMapPriorityClaimedBeforeLowerPriority enrolls ten tasks whose
// priorities are [0,0,5,0,5,0,0,5,0,0] -- indices 2, 4, and 7 carry
// priority 5 -- and claims them one at a time straight from the queue,
// so that a single loop observes the exact order next_waiting hands
// tasks out in.
// All three priority-5 tasks must be claimed before any priority-0
// task is claimed.
func TestMapPriorityClaimedBeforeLowerPriority(t *testing.T) {
	reg := macroq.NewRegistry()
	example.Register(reg)
	priorities := []int{0, 0, 5, 0, 5, 0, 0, 5, 0, 0}
	tasks := make([]macroq.Task, len(priorities))
	for i, p := range priorities {
		tasks[i] = &example.PrioritizedSquareTask{I: i, D: float64(i), Pri: p}
	}
	queue := NewQueue()
	queue.Enroll(tasks)

	var claimOrder []int
	for {
		index, err := queue.NextWaiting(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if index < 0 {
			break
		}
		claimOrder = append(claimOrder, index)
		if err := queue.SetComplete(context.Background(), index); err != nil {
			t.Fatal(err)
		}
	}

	lastHighPriPos := -1
	firstLowPriPos := len(claimOrder)
	for pos, index := range claimOrder {
		if priorities[index] == 5 {
			if pos > lastHighPriPos {
				lastHighPriPos = pos
			}
		} else if pos < firstLowPriPos {
			firstLowPriPos = pos
		}
	}
	if lastHighPriPos >= firstLowPriPos {
		t.Errorf("claim order %v did not claim every priority-5 task before any priority-0 task", claimOrder)
	}
}

// unknownKindTask has a KindTag with no registered factory anywhere,
// so a worker's decode of it must fail with UnknownKind.
type unknownKindTask struct {
	example.SquareTask
}

func (t *unknownKindTask) KindTag() string { return "example.NotRegistered" }

func (t *unknownKindTask) Bind(input interface{}) macroq.Task {
	in := input.(example.SquareInput)
	return &unknownKindTask{SquareTask: example.SquareTask{I: in.I, D: in.D}}
}

func TestMapUnregisteredKindAbortsBatch(t *testing.T) {
	reg := macroq.NewRegistry() // deliberately missing unknownKindTask's tag
	template := &unknownKindTask{}
	inputs := []interface{}{example.SquareInput{I: 0, D: 2}}
	_, err := runMap(t, 2, 2, reg, template, inputs)
	if err == nil {
		t.Fatal("expected UnknownKind error, got nil")
	}
}

func TestMapMatrixSquareTaskUsesShuttle(t *testing.T) {
	reg := macroq.NewRegistry()
	example.Register(reg)
	m := matrixOf(2, 2, []float64{1, 2, 3, 4})
	inputs := []interface{}{example.MatrixInput{I: 0, D: 1, M: m}}
	outputs, err := runMap(t, 2, 2, reg, &example.MatrixSquareTask{}, inputs)
	if err != nil {
		t.Fatal(err)
	}
	out := outputs[0].(*example.MatrixSquareTask)
	r, c := out.M.Dims()
	if r != 2 || c != 2 {
		t.Fatalf("got %dx%d, want 2x2", r, c)
	}
	want := []float64{7, 10, 15, 22} // [[1,2],[3,4]]^2
	got := []float64{out.M.At(0, 0), out.M.At(0, 1), out.M.At(1, 0), out.M.At(1, 1)}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("element %d: got %v, want %v", i, got[i], want[i])
		}
	}
}
