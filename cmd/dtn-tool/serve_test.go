// SPDX-FileCopyrightText: 2024 dtn6-go contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"

	"github.com/dtn7/dtn6-go/pkg/bpv6"
)

func newTestInspector() *inspector {
	return newInspector(mux.NewRouter(), bpv6.NewCodecContext())
}

func request(t *testing.T, h http.Handler, method, target string, body []byte) *httptest.ResponseRecorder {
	t.Helper()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, bytes.NewReader(body)))
	return rec
}

func TestInspectorBundle(t *testing.T) {
	insp := newTestInspector()

	b := buildBundle(t, "inspected")
	data, err := b.MarshalBinary()
	require.NoError(t, err)

	rec := request(t, insp, http.MethodPost, "/bundle", data)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	expected, err := json.Marshal(b)
	require.NoError(t, err)
	require.JSONEq(t, string(expected), rec.Body.String())

	rec = request(t, insp, http.MethodPost, "/bundle", data[:len(data)-1])
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp canonicalResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.NotEmpty(t, resp.Error)

	rec = request(t, insp, http.MethodGet, "/bundle", nil)
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestInspectorReleasesBlobs(t *testing.T) {
	ctx := bpv6.NewCodecContext()
	ctx.BlobThreshold = 4
	ctx.BlobDir = t.TempDir()
	insp := newInspector(mux.NewRouter(), ctx)

	b := buildBundle(t, "stored in a blob file")
	data, err := b.MarshalBinary()
	require.NoError(t, err)

	expected, err := json.Marshal(b)
	require.NoError(t, err)

	rec := request(t, insp, http.MethodPost, "/bundle", data)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, string(expected), rec.Body.String())

	rec = request(t, insp, http.MethodPost, "/bundle/canonical/mutable", data)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = request(t, insp, http.MethodPost, "/bundle", data[:len(data)-1])
	require.Equal(t, http.StatusBadRequest, rec.Code)

	files, err := os.ReadDir(ctx.BlobDir)
	require.NoError(t, err)
	require.Empty(t, files)
}

func TestInspectorCanonical(t *testing.T) {
	insp := newTestInspector()

	b := buildBundle(t, "canonical")
	require.NoError(t, bpv6.SignBAB(&b, []byte("key"), 5))
	data, err := b.MarshalBinary()
	require.NoError(t, err)

	ctx := bpv6.NewCodecContext()
	blocks := b.Blocks()
	strict, err := ctx.MarshalStrictCanonical(&b, bpv6.StrictOptions{})
	require.NoError(t, err)
	window, err := ctx.MarshalStrictCanonical(&b, bpv6.StrictOptions{
		Ignore:         blocks[len(blocks)-1],
		Correlator:     5,
		WithCorrelator: true,
		IncludeEnd:     true,
	})
	require.NoError(t, err)
	mutable, err := ctx.MarshalMutableCanonical(&b, nil)
	require.NoError(t, err)

	tests := []struct {
		target   string
		status   int
		expected []byte
	}{
		{"/bundle/canonical/strict", http.StatusOK, strict},
		{"/bundle/canonical/strict?correlator=5", http.StatusOK, window},
		{"/bundle/canonical/mutable", http.StatusOK, mutable},
		{"/bundle/canonical/strict?correlator=6", http.StatusBadRequest, nil},
		{"/bundle/canonical/strict?correlator=x", http.StatusBadRequest, nil},
		{"/bundle/canonical/lenient", http.StatusBadRequest, nil},
	}

	for _, test := range tests {
		t.Run(test.target, func(t *testing.T) {
			rec := request(t, insp, http.MethodPost, test.target, data)
			require.Equal(t, test.status, rec.Code)

			var resp canonicalResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))

			if test.status == http.StatusOK {
				require.Empty(t, resp.Error)
				require.Equal(t, b.ID().String(), resp.Bundle)
				require.Equal(t, hex.EncodeToString(test.expected), resp.Data)
			} else {
				require.NotEmpty(t, resp.Error)
			}
		})
	}
}

func TestInspectorHealth(t *testing.T) {
	rec := request(t, newTestInspector(), http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp healthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Equal(t, "ok", resp.Status)
	require.Equal(t, []int{1, 2, 3, 4, 9, 10, 200, 202, 242}, resp.KnownTypes)
}
