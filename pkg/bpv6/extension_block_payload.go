// SPDX-FileCopyrightText: 2019, 2020, 2022 Alvar Penning
// SPDX-FileCopyrightText: 2024 dtn6-go contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package bpv6

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	log "github.com/sirupsen/logrus"

	"github.com/dtn7/dtn6-go/pkg/blob"
)

// PayloadBlock implements the Bundle Protocol's Payload Block. Its data is
// either held in memory or within a blob.Store.
type PayloadBlock struct {
	data  []byte
	store *blob.Store
}

// bodyStreamer is implemented by blocks whose body might not be held in memory.
// The serializer and deserializer prefer these methods over the
// encoding.BinaryMarshaler and encoding.BinaryUnmarshaler.
type bodyStreamer interface {
	bodyLen() uint64
	writeBody(w io.Writer) error
	readBody(r io.Reader, length uint64, ctx *CodecContext) error
}

// BlockTypeCode must return a constant integer, indicating the block type code.
func (pb *PayloadBlock) BlockTypeCode() uint8 {
	return ExtBlockTypePayloadBlock
}

// BlockTypeName must return a constant string, this block's name.
func (pb *PayloadBlock) BlockTypeName() string {
	return "Payload Block"
}

// NewPayloadBlock creates a new PayloadBlock with the given payload. An empty
// payload is held as nil.
func NewPayloadBlock(data []byte) *PayloadBlock {
	return &PayloadBlock{data: emptyAsNil(data)}
}

func emptyAsNil(data []byte) []byte {
	if len(data) == 0 {
		return nil
	}
	return data
}

// NewPayloadBlockFromStore creates a new PayloadBlock backed by a blob.Store.
func NewPayloadBlockFromStore(store *blob.Store) *PayloadBlock {
	return &PayloadBlock{store: store}
}

// Store returns the backing blob.Store or nil for an in-memory payload.
func (pb *PayloadBlock) Store() *blob.Store {
	return pb.store
}

// Data returns this PayloadBlock's payload. For a blob.Store backed payload,
// the whole content is read into memory; a failure results in nil.
func (pb *PayloadBlock) Data() []byte {
	if pb.store == nil {
		return pb.data
	}

	data, err := pb.store.Bytes()
	if err != nil {
		log.WithError(err).Warn("Reading payload from blob store errored")
		return nil
	}
	return data
}

// SetData replaces the payload.
func (pb *PayloadBlock) SetData(data []byte) error {
	if pb.store == nil {
		pb.data = emptyAsNil(data)
		return nil
	}

	return pb.store.With(context.Background(), func(h *blob.Handle) error {
		return h.Replace(data)
	})
}

// Close releases a backing blob.Store, removing its file. Afterwards, the
// PayloadBlock is empty. An in-memory payload is left untouched.
func (pb *PayloadBlock) Close() error {
	if pb.store == nil {
		return nil
	}

	err := pb.store.Close()
	pb.store = nil
	return err
}

// Len returns the payload's length in bytes.
func (pb *PayloadBlock) Len() uint64 {
	return pb.bodyLen()
}

// MarshalBinary writes the binary representation of a PayloadBlock.
func (pb *PayloadBlock) MarshalBinary() ([]byte, error) {
	if pb.store == nil {
		return pb.data, nil
	}
	return pb.store.Bytes()
}

// UnmarshalBinary reads a binary PayloadBlock.
func (pb *PayloadBlock) UnmarshalBinary(data []byte) error {
	pb.data = emptyAsNil(data)
	pb.store = nil
	return nil
}

// MarshalJSON writes the binary representation of a PayloadBlock.
func (pb *PayloadBlock) MarshalJSON() ([]byte, error) {
	if data, err := pb.MarshalBinary(); err != nil {
		return nil, err
	} else {
		return json.Marshal(data)
	}
}

// CheckValid returns an array of errors for incorrect data.
func (pb *PayloadBlock) CheckValid() error {
	return nil
}

func (pb *PayloadBlock) bodyLen() uint64 {
	if pb.store == nil {
		return uint64(len(pb.data))
	}
	return uint64(pb.store.Len())
}

func (pb *PayloadBlock) writeBody(w io.Writer) error {
	if pb.store == nil {
		_, err := w.Write(pb.data)
		return err
	}

	return pb.store.With(context.Background(), func(h *blob.Handle) error {
		_, err := h.WriteTo(w)
		return err
	})
}

func (pb *PayloadBlock) readBody(r io.Reader, length uint64, ctx *CodecContext) error {
	if ctx.BlobThreshold <= 0 || length <= uint64(ctx.BlobThreshold) {
		data, err := readBytes(r, length)
		if err != nil {
			return err
		}
		return pb.UnmarshalBinary(data)
	}

	store, err := blob.NewFileStore(ctx.BlobDir)
	if err != nil {
		return err
	}
	store.SetLockTimeout(ctx.LockTimeout)

	err = store.With(context.Background(), func(h *blob.Handle) error {
		if n, err := h.ReadFrom(io.LimitReader(r, int64(length))); err != nil {
			return err
		} else if uint64(n) != length {
			return fmt.Errorf("%w: payload ended after %d of %d bytes", ErrIncompleteData, n, length)
		}
		return nil
	})
	if err != nil {
		_ = store.Close()
		return err
	}

	pb.data = nil
	pb.store = store
	return nil
}

// readBytes reads exactly length bytes. The buffer grows with the received
// data instead of trusting the announced length.
func readBytes(r io.Reader, length uint64) ([]byte, error) {
	if length > uint64(1)<<62 {
		return nil, malformed("length %d exceeds limits", length)
	}

	var buf bytes.Buffer
	if n, err := io.CopyN(&buf, r, int64(length)); err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("%w: ended after %d of %d bytes", ErrIncompleteData, n, length)
		}
		return nil, err
	}

	data := buf.Bytes()
	if data == nil {
		data = []byte{}
	}
	return data, nil
}
