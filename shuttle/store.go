// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package shuttle implements the external-state shuttle: the
// mechanism that moves heavy, subworld-bound objects (a task's heavy
// input or output fields) between subworlds via a named,
// content-addressed side store.
package shuttle

import (
	"bytes"
	"context"
	"io"

	"github.com/grailbio/base/errors"
	"github.com/spaolacci/murmur3"

	"github.com/grailbio/macroq"
)

// Store is the side store interface: a mapping from a string name to
// a persisted object, readable by any subworld after a universe-wide
// barrier.
type Store interface {
	// Persist calls write with a Writer that captures the object under
	// name. The object is not visible to Load until Persist returns.
	Persist(ctx context.Context, name string, write func(io.Writer) error) error
	// Load calls read with a Reader over the bytes previously
	// persisted under name. It returns an error classified as
	// errors.NotExist if name was never persisted (or was already
	// removed).
	Load(ctx context.Context, name string, read func(io.Reader) error) error
	// Remove erases name. Removing a name that does not exist is not
	// an error.
	Remove(ctx context.Context, name string) error
}

// checksumSize is the length of the murmur3 checksum trailer appended
// to every persisted entry so that a corrupted or truncated read is
// detected and reported rather than silently handed to the caller's
// read function.
const checksumSize = 8

func encodeChecksummed(write func(io.Writer) error) ([]byte, error) {
	var body bytes.Buffer
	if err := write(&body); err != nil {
		return nil, err
	}
	sum := murmur3.Sum64(body.Bytes())
	out := make([]byte, body.Len()+checksumSize)
	copy(out, body.Bytes())
	putUint64(out[body.Len():], sum)
	return out, nil
}

func decodeChecksummed(raw []byte, name string, read func(io.Reader) error) error {
	if len(raw) < checksumSize {
		return sideStoreIO(name, io.ErrUnexpectedEOF)
	}
	body := raw[:len(raw)-checksumSize]
	want := getUint64(raw[len(raw)-checksumSize:])
	got := murmur3.Sum64(body)
	if got != want {
		return sideStoreIO(name, errors.E(errors.Integrity, "checksum mismatch"))
	}
	return read(bytes.NewReader(body))
}

func putUint64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * uint(i)))
	}
}

func getUint64(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(b[i]) << (8 * uint(i))
	}
	return v
}

func sideStoreIO(name string, err error) error {
	return errors.E(errors.Unavailable, macroq.ErrSideStoreIO, "shuttle: "+name, err)
}

func notExist(name string) error {
	return errors.E(errors.NotExist, "shuttle: "+name)
}
