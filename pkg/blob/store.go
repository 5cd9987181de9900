// SPDX-FileCopyrightText: 2024 dtn6-go contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package blob provides a backing store for large block bodies, e.g., payloads.
//
// A Store is either held in memory or spilled into a temporary file. All access
// happens within a scoped lock, Store.With, which grants exclusive access to
// the Store's content for the duration of the passed function. If the lock
// cannot be acquired within the Store's lock timeout, ErrResourceContention is
// returned.
package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

// ErrResourceContention is returned if a Store's lock could not be acquired in time.
var ErrResourceContention = errors.New("blob: store is locked")

// DefaultLockTimeout is the lock timeout for new Stores.
const DefaultLockTimeout = 5 * time.Second

// Store holds a byte sequence, either in memory or in a temporary file.
type Store struct {
	sem     *semaphore.Weighted
	timeout time.Duration
	size    atomic.Int64

	mem  []byte
	file *os.File
}

// NewMemoryStore creates an empty in-memory Store.
func NewMemoryStore() *Store {
	return &Store{
		sem:     semaphore.NewWeighted(1),
		timeout: DefaultLockTimeout,
	}
}

// NewFileStore creates an empty Store, backed by a temporary file in dir. An
// empty dir results in the operating system's default temporary directory.
func NewFileStore(dir string) (*Store, error) {
	f, err := os.CreateTemp(dir, "dtn6-blob-*")
	if err != nil {
		return nil, fmt.Errorf("creating blob file failed: %w", err)
	}

	log.WithField("file", f.Name()).Debug("Created file backed blob store")

	s := NewMemoryStore()
	s.file = f
	return s, nil
}

// New creates a Store for an expected size. Sizes above the threshold are
// backed by a file in dir; a threshold of zero or below always results in an
// in-memory Store.
func New(expected, threshold int64, dir string) (*Store, error) {
	if threshold > 0 && expected > threshold {
		return NewFileStore(dir)
	}
	return NewMemoryStore(), nil
}

// FromBytes creates an in-memory Store holding a copy of data.
func FromBytes(data []byte) *Store {
	s := NewMemoryStore()
	s.mem = append([]byte(nil), data...)
	s.size.Store(int64(len(data)))
	return s
}

// SetLockTimeout changes the maximum time With waits for the lock.
func (s *Store) SetLockTimeout(timeout time.Duration) {
	s.timeout = timeout
}

// IsFile reports whether this Store is backed by a file.
func (s *Store) IsFile() bool {
	return s.file != nil
}

// Len returns the current size in bytes.
func (s *Store) Len() int64 {
	return s.size.Load()
}

// With executes f while holding this Store's lock. The lock is released after f
// returns, even if f panics.
func (s *Store) With(ctx context.Context, f func(h *Handle) error) error {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	if err := s.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("%w: %v", ErrResourceContention, err)
	}
	defer s.sem.Release(1)

	return f(&Handle{s: s})
}

// Bytes returns a copy of the whole content.
func (s *Store) Bytes() (data []byte, err error) {
	err = s.With(context.Background(), func(h *Handle) (hErr error) {
		data, hErr = h.Bytes()
		return
	})
	return
}

// Close releases the Store and removes a backing file.
func (s *Store) Close() error {
	return s.With(context.Background(), func(h *Handle) error {
		s.mem = nil
		s.size.Store(0)

		if s.file == nil {
			return nil
		}

		name := s.file.Name()
		closeErr := s.file.Close()
		s.file = nil
		if err := os.Remove(name); err != nil {
			return err
		}
		return closeErr
	})
}

// Handle grants access to a Store's content within Store.With. A Handle must
// not be used after its function has returned.
type Handle struct {
	s *Store
}

// Len returns the current size in bytes.
func (h *Handle) Len() int64 {
	return h.s.size.Load()
}

// Reader returns a reader over the whole content.
func (h *Handle) Reader() io.Reader {
	if h.s.file != nil {
		return io.NewSectionReader(h.s.file, 0, h.Len())
	}
	return bytes.NewReader(h.s.mem)
}

// Bytes returns a copy of the whole content.
func (h *Handle) Bytes() ([]byte, error) {
	if h.s.file == nil {
		return append([]byte(nil), h.s.mem...), nil
	}

	data := make([]byte, h.Len())
	_, err := io.ReadFull(h.Reader(), data)
	return data, err
}

// WriteTo writes the whole content to w.
func (h *Handle) WriteTo(w io.Writer) (int64, error) {
	return io.Copy(w, h.Reader())
}

// Write appends p.
func (h *Handle) Write(p []byte) (n int, err error) {
	if h.s.file != nil {
		n, err = h.s.file.WriteAt(p, h.Len())
	} else {
		h.s.mem = append(h.s.mem, p...)
		n = len(p)
	}

	h.s.size.Add(int64(n))
	return
}

// ReadFrom appends everything from r.
func (h *Handle) ReadFrom(r io.Reader) (int64, error) {
	return io.Copy(writerOnly{h}, r)
}

// Reset truncates the content.
func (h *Handle) Reset() error {
	h.s.size.Store(0)

	if h.s.file != nil {
		return h.s.file.Truncate(0)
	}
	h.s.mem = h.s.mem[:0]
	return nil
}

// Replace the whole content with data.
func (h *Handle) Replace(data []byte) error {
	if err := h.Reset(); err != nil {
		return err
	}
	_, err := h.Write(data)
	return err
}

// writerOnly hides Handle.ReadFrom from io.Copy.
type writerOnly struct {
	io.Writer
}
