// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package coordinator

import (
	"context"
	"testing"

	"github.com/grailbio/macroq"
	"github.com/grailbio/macroq/example"
)

func TestRPCClientClaimsAndCompletesAgainstServer(t *testing.T) {
	reg := macroq.NewRegistry()
	example.Register(reg)

	queue := NewQueue()
	queue.Enroll([]macroq.Task{
		&example.SquareTask{I: 0, D: 3},
		&example.SquareTask{I: 1, D: 4},
	})

	server, err := Serve(queue, "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer server.Close()

	client, err := Dial(server.Addr(), reg)
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()

	ctx := context.Background()
	var claimed []*example.SquareTask
	for {
		index, task, err := client.NextWaiting(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if index < 0 {
			break
		}
		sq, ok := task.(*example.SquareTask)
		if !ok {
			t.Fatalf("index %d: decoded %T, want *example.SquareTask", index, task)
		}
		claimed = append(claimed, sq)
		if err := client.SetComplete(ctx, index); err != nil {
			t.Fatal(err)
		}
	}

	if len(claimed) != 2 {
		t.Fatalf("claimed %d tasks, want 2", len(claimed))
	}
	for i, sq := range claimed {
		if sq.I != i || sq.D != float64(i+3) {
			t.Errorf("claimed[%d] = {I:%d D:%v}, want {I:%d D:%v}", i, sq.I, sq.D, i, float64(i+3))
		}
	}

	if err := queue.WaitDrained(ctx); err != nil {
		t.Fatal(err)
	}
}

func TestRPCSetCompleteOnUnclaimedIndexFails(t *testing.T) {
	reg := macroq.NewRegistry()
	example.Register(reg)

	queue := NewQueue()
	queue.Enroll([]macroq.Task{&example.SquareTask{I: 0, D: 1}})

	server, err := Serve(queue, "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer server.Close()

	client, err := Dial(server.Addr(), reg)
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()

	if err := client.SetComplete(context.Background(), 0); err == nil {
		t.Fatal("expected an error completing a task that was never claimed, got nil")
	}
}
