// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Macroworker runs a small demonstration batch of squaring tasks
// across a partitioned universe, using either an in-process universe
// or a bigmachine-backed one.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/grailbio/base/log"
	"github.com/grailbio/base/must"
	"github.com/grailbio/bigmachine"
	"github.com/grailbio/bigmachine/testsystem"

	"github.com/grailbio/macroq"
	"github.com/grailbio/macroq/coordinator"
	"github.com/grailbio/macroq/example"
	"github.com/grailbio/macroq/shuttle"
	"github.com/grailbio/macroq/universe"
)

func main() {
	log.AddFlags()
	log.SetFlags(0)
	log.SetPrefix("macroworker: ")
	must.Func = log.Fatal

	n := flag.Int("n", 4, "universe size")
	k := flag.Int("k", 2, "number of subworlds to partition the universe into")
	count := flag.Int("count", 10, "number of demonstration tasks to enroll")
	storeDir := flag.String("store", "", "local directory for the side store; an in-memory store is used if empty")
	useBigmachine := flag.Bool("bigmachine", false, "start real bigmachine machines instead of an in-process universe")
	flag.Parse()

	if *n < 1 || *k < 1 || *k > *n {
		fmt.Fprintln(os.Stderr, "macroworker: require 1 <= k <= n")
		os.Exit(2)
	}

	reg := macroq.NewRegistry()
	example.Register(reg)

	var store macroq.Store
	if *storeDir != "" {
		store = shuttle.NewFileStore(*storeDir)
	} else {
		store = shuttle.NewMemory()
	}

	ctx := context.Background()
	if *useBigmachine {
		runBigmachine(ctx, *n, *k, *count, reg, store)
		return
	}
	runLocal(ctx, *n, *k, *count, reg, store)
}

// runLocal drives the demonstration batch over an in-process universe
// simulated with goroutines: every universe rank runs its own
// coordinator.RunWorker loop, and rank 0 additionally runs the
// coordinator.Driver side of the call.
func runLocal(ctx context.Context, n, k, count int, reg *macroq.Registry, store macroq.Store) {
	universes := universe.NewLocal(n)
	queue := coordinator.NewQueue()
	disp := &coordinator.LocalDispatcher{Queue: queue}

	subworlds := make([]*universe.Subworld, n)
	for r, u := range universes {
		sw, err := universe.Partition(ctx, u, k)
		must.Nil(err, "partition")
		subworlds[r] = sw
	}

	errc := make(chan error, n)
	for r, sw := range subworlds {
		r, sw := r, sw
		go func() {
			err := coordinator.RunWorker(ctx, sw, store, reg, disp)
			if r != 0 {
				errc <- err
			}
		}()
	}

	inputs := make([]interface{}, count)
	for i := range inputs {
		inputs[i] = example.SquareInput{I: i, D: float64(i)}
	}
	outputs, err := coordinator.Driver(ctx, subworlds[0], store, queue, &example.SquareTask{}, inputs)
	must.Nil(err, "map")

	for i := 0; i < n-1; i++ {
		must.Nil(<-errc, "worker")
	}
	for _, o := range outputs {
		t := o.(*example.SquareTask)
		log.Printf("task %d: %v", t.I, t.D)
	}
}

// runBigmachine starts n-1 real bigmachine machines under a test
// system and runs the demonstration batch across the whole universe:
// rank 0's own subworld is driven in-process exactly as runLocal
// drives every rank, and every remote machine is set claiming and
// running tasks against the coordinator's RPC service through its own
// Claimer, started alongside the universe's own collective Worker
// service. A remote machine's Claimer treats itself as a subworld of
// one rather than joining the real k-way partition rank 0 computed
// (see Claimer's doc comment): demonstration tasks here don't rely on
// cross-machine broadcast within Run, so every rank still gets real
// work, just not real multi-rank collectives on that work.
func runBigmachine(ctx context.Context, n, k, count int, reg *macroq.Registry, store macroq.Store) {
	queue := coordinator.NewQueue()
	server, err := coordinator.Serve(queue, "127.0.0.1:0")
	must.Nil(err, "serve coordinator")
	defer server.Close()

	claimer := &coordinator.Claimer{Store: store, Registry: reg}
	u, b, machines, err := universe.StartBigmachine(ctx, testsystem.New(), n, bigmachine.Services{"Claimer": claimer})
	must.Nil(err, "start bigmachine")
	defer b.Shutdown()

	sw, err := universe.Partition(ctx, u, k)
	must.Nil(err, "partition")

	disp := &coordinator.LocalDispatcher{Queue: queue}
	go func() {
		if err := coordinator.RunWorker(ctx, sw, store, reg, disp); err != nil {
			log.Error.Printf("run worker: %v", err)
		}
	}()

	for _, m := range machines {
		m := m
		go func() {
			req := coordinator.RunClaimLoopRequest{CoordinatorAddr: server.Addr()}
			var reply coordinator.RunClaimLoopResponse
			if err := m.RetryCall(ctx, "Claimer.RunClaimLoop", req, &reply); err != nil {
				log.Error.Printf("claim loop on %s: %v", m.Addr, err)
			}
		}()
	}

	inputs := make([]interface{}, count)
	for i := range inputs {
		inputs[i] = example.SquareInput{I: i, D: float64(i)}
	}
	outputs, err := coordinator.Driver(ctx, sw, store, queue, &example.SquareTask{}, inputs)
	must.Nil(err, "map")
	for _, o := range outputs {
		t := o.(*example.SquareTask)
		log.Printf("task %d: %v", t.I, t.D)
	}
}
