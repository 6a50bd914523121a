// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package macroq

import (
	"bytes"
	"encoding/binary"
	"io"
)

// Encode writes t to w in the wire format:
//
//	[presence:1 byte][kind_tag length + bytes][body length + bytes]
//
// A nil t encodes as a single zero presence byte, used by messages
// that may carry no task (for example, an empty NextWaiting reply).
func Encode(w io.Writer, t Task) error {
	if t == nil {
		_, err := w.Write([]byte{0})
		return err
	}
	var body bytes.Buffer
	if err := t.Serialize(&body); err != nil {
		return err
	}
	tag := t.KindTag()

	var hdr bytes.Buffer
	hdr.WriteByte(1)
	writeChunk(&hdr, []byte(tag))
	writeChunk(&hdr, body.Bytes())
	_, err := w.Write(hdr.Bytes())
	return err
}

// Decode is the inverse of Encode. It returns (nil, nil) if the
// stream encoded an absent task. It returns ErrUnknownKind if the
// decoded kind tag has no factory in reg, and ErrTruncatedStream if
// the stream underflows while reading a length-prefixed chunk.
func Decode(r io.Reader, reg *Registry) (Task, error) {
	var presence [1]byte
	if _, err := io.ReadFull(r, presence[:]); err != nil {
		return nil, errTruncated("presence byte")
	}
	if presence[0] == 0 {
		return nil, nil
	}
	tagBytes, err := readChunk(r)
	if err != nil {
		return nil, errTruncated("kind tag")
	}
	body, err := readChunk(r)
	if err != nil {
		return nil, errTruncated("body")
	}
	task, err := reg.New(string(tagBytes))
	if err != nil {
		return nil, err
	}
	if err := task.Deserialize(bytes.NewReader(body)); err != nil {
		return nil, errTruncated("deserialize body: " + err.Error())
	}
	return task, nil
}

func writeChunk(w *bytes.Buffer, p []byte) {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(p)))
	w.Write(lenBuf[:])
	w.Write(p)
}

func readChunk(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.LittleEndian.Uint32(lenBuf[:])
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
