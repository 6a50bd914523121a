// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package coordinator

import (
	"bytes"
	"context"
	"net"
	"net/rpc"

	"github.com/grailbio/macroq"
)

// NextWaitingRequest carries no fields; next_waiting takes no
// argument beyond the implicit identity of the calling connection.
type NextWaitingRequest struct{}

// NextWaitingResponse carries the claimed index and, if Index >= 0,
// the claimed task encoded in the wire format of macroq.Encode so the
// caller's own Registry can reconstruct it.
type NextWaitingResponse struct {
	Index int
	Task  []byte
}

// SetCompleteRequest names the task whose run has finished.
type SetCompleteRequest struct {
	Index int
}

// SetCompleteResponse carries no fields.
type SetCompleteResponse struct{}

// Service exposes a Queue's NextWaiting and SetComplete operations as
// net/rpc methods, named "Coordinator.NextWaiting" and
// "Coordinator.SetComplete".
type Service struct {
	queue *Queue
}

// NewService returns a Service dispatching against queue.
func NewService(queue *Queue) *Service {
	return &Service{queue: queue}
}

func (s *Service) NextWaiting(req *NextWaitingRequest, resp *NextWaitingResponse) error {
	index, err := s.queue.NextWaiting(context.Background())
	if err != nil {
		return err
	}
	resp.Index = index
	if index < 0 {
		return nil
	}
	r, err := s.queue.Record(index)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := macroq.Encode(&buf, r.Task); err != nil {
		return err
	}
	resp.Task = buf.Bytes()
	return nil
}

func (s *Service) SetComplete(req *SetCompleteRequest, resp *SetCompleteResponse) error {
	return s.queue.SetComplete(context.Background(), req.Index)
}

// Server listens for RPCs against a Queue on a TCP address.
type Server struct {
	rpc      *rpc.Server
	listener net.Listener
}

// Serve registers a Service for queue on its own rpc.Server (not
// net/rpc's package-level default, so that multiple Queues in the
// same process -- as in tests -- never collide on method names) and
// starts accepting connections on addr. Serve returns once the
// listener is open; RPCs are served in a background goroutine.
func Serve(queue *Queue, addr string) (*Server, error) {
	server := rpc.NewServer()
	if err := server.RegisterName("Coordinator", NewService(queue)); err != nil {
		return nil, err
	}
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	s := &Server{rpc: server, listener: listener}
	go s.rpc.Accept(listener)
	return s, nil
}

// Addr returns the address the server is listening on.
func (s *Server) Addr() string { return s.listener.Addr().String() }

// Close stops accepting new connections.
func (s *Server) Close() error { return s.listener.Close() }

// Client reaches a coordinator's Queue over RPC, on behalf of a
// subworld leader that is not co-located with the coordinator.
type Client struct {
	rpcClient *rpc.Client
	reg       *macroq.Registry
}

// Dial connects to a coordinator Server listening at addr. Decoded
// tasks are reconstructed using reg, which must register every kind
// tag the coordinator might hand out.
func Dial(addr string, reg *macroq.Registry) (*Client, error) {
	rpcClient, err := rpc.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Client{rpcClient: rpcClient, reg: reg}, nil
}

func (c *Client) NextWaiting(ctx context.Context) (int, macroq.Task, error) {
	var resp NextWaitingResponse
	if err := c.rpcClient.Call("Coordinator.NextWaiting", &NextWaitingRequest{}, &resp); err != nil {
		return 0, nil, err
	}
	if resp.Index < 0 {
		return -1, nil, nil
	}
	task, err := macroq.Decode(bytes.NewReader(resp.Task), c.reg)
	if err != nil {
		return 0, nil, err
	}
	return resp.Index, task, nil
}

func (c *Client) SetComplete(ctx context.Context, index int) error {
	return c.rpcClient.Call("Coordinator.SetComplete", &SetCompleteRequest{Index: index}, &SetCompleteResponse{})
}

// Close closes the underlying connection to the coordinator.
func (c *Client) Close() error { return c.rpcClient.Close() }
