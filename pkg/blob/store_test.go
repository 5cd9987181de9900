// SPDX-FileCopyrightText: 2024 dtn6-go contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package blob

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testStores(t *testing.T) map[string]*Store {
	fileStore, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	return map[string]*Store{
		"memory": NewMemoryStore(),
		"file":   fileStore,
	}
}

func TestStoreReadWrite(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			err := s.With(context.Background(), func(h *Handle) error {
				if _, err := h.Write([]byte("hello ")); err != nil {
					return err
				}
				_, err := h.ReadFrom(strings.NewReader("world"))
				return err
			})
			require.NoError(t, err)
			require.Equal(t, int64(11), s.Len())

			data, err := s.Bytes()
			require.NoError(t, err)
			require.Equal(t, []byte("hello world"), data)

			var buf bytes.Buffer
			err = s.With(context.Background(), func(h *Handle) error {
				_, err := h.WriteTo(&buf)
				return err
			})
			require.NoError(t, err)
			require.Equal(t, "hello world", buf.String())

			err = s.With(context.Background(), func(h *Handle) error {
				return h.Replace([]byte("bye"))
			})
			require.NoError(t, err)

			data, err = s.Bytes()
			require.NoError(t, err)
			require.Equal(t, []byte("bye"), data)

			require.NoError(t, s.Close())
			require.Equal(t, int64(0), s.Len())
		})
	}
}

func TestStoreFileRemoved(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	require.True(t, s.IsFile())

	name := s.file.Name()
	require.NoError(t, s.Close())

	_, err = os.Stat(name)
	require.True(t, os.IsNotExist(err))
}

func TestStoreNewThreshold(t *testing.T) {
	dir := t.TempDir()

	s, err := New(10, 100, dir)
	require.NoError(t, err)
	require.False(t, s.IsFile())

	s, err = New(1000, 100, dir)
	require.NoError(t, err)
	require.True(t, s.IsFile())
	require.NoError(t, s.Close())

	s, err = New(1000, 0, dir)
	require.NoError(t, err)
	require.False(t, s.IsFile())
}

func TestStoreContention(t *testing.T) {
	s := FromBytes([]byte("locked"))
	s.SetLockTimeout(10 * time.Millisecond)

	err := s.With(context.Background(), func(*Handle) error {
		return s.With(context.Background(), func(*Handle) error {
			return nil
		})
	})
	require.True(t, errors.Is(err, ErrResourceContention))

	// The lock is released after the failed attempt.
	data, err := s.Bytes()
	require.NoError(t, err)
	require.Equal(t, []byte("locked"), data)
}

func TestStoreReleaseOnError(t *testing.T) {
	s := NewMemoryStore()
	s.SetLockTimeout(10 * time.Millisecond)

	errFoo := errors.New("foo")
	require.Equal(t, errFoo, s.With(context.Background(), func(*Handle) error { return errFoo }))
	require.NoError(t, s.With(context.Background(), func(*Handle) error { return nil }))
}
