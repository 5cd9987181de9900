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

	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"

	"github.com/dtn7/dtn6-go/pkg/blob"
	"github.com/dtn7/dtn6-go/pkg/sdnv"
)

// CompressionAlgorithm of a CompressedPayloadBlock.
type CompressionAlgorithm uint64

const (
	CompressionZlib CompressionAlgorithm = 1
	CompressionLZMA CompressionAlgorithm = 2
	CompressionZstd CompressionAlgorithm = 3
)

func (ca CompressionAlgorithm) String() string {
	switch ca {
	case CompressionZlib:
		return "zlib"
	case CompressionLZMA:
		return "lzma"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", uint64(ca))
	}
}

// ParseCompressionAlgorithm parses the name of a CompressionAlgorithm.
func ParseCompressionAlgorithm(name string) (CompressionAlgorithm, error) {
	for _, ca := range []CompressionAlgorithm{CompressionZlib, CompressionLZMA, CompressionZstd} {
		if ca.String() == name {
			return ca, nil
		}
	}
	return 0, fmt.Errorf("unknown compression algorithm %q", name)
}

// compress data from r into w.
func (ca CompressionAlgorithm) compress(w io.Writer, r io.Reader) error {
	var cw io.WriteCloser
	var err error

	switch ca {
	case CompressionZlib:
		cw = zlib.NewWriter(w)
	case CompressionLZMA:
		cw, err = xz.NewWriter(w)
	case CompressionZstd:
		cw, err = zstd.NewWriter(w)
	default:
		return fmt.Errorf("unsupported compression algorithm %v", ca)
	}
	if err != nil {
		return err
	}

	if _, err := io.Copy(cw, r); err != nil {
		_ = cw.Close()
		return err
	}
	return cw.Close()
}

// decompress data from r into w.
func (ca CompressionAlgorithm) decompress(w io.Writer, r io.Reader) error {
	var cr io.Reader

	switch ca {
	case CompressionZlib:
		zr, err := zlib.NewReader(r)
		if err != nil {
			return err
		}
		defer zr.Close()
		cr = zr

	case CompressionLZMA:
		xr, err := xz.NewReader(r)
		if err != nil {
			return err
		}
		cr = xr

	case CompressionZstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return err
		}
		defer zr.Close()
		cr = zr

	default:
		return fmt.Errorf("unsupported compression algorithm %v", ca)
	}

	_, err := io.Copy(w, cr)
	return err
}

// CompressedPayloadBlock indicates a compressed payload block. It stores the
// algorithm and the original payload size.
type CompressedPayloadBlock struct {
	Algorithm    CompressionAlgorithm
	OriginalSize uint64
}

// BlockTypeCode must return a constant integer, indicating the block type code.
func (cpb *CompressedPayloadBlock) BlockTypeCode() uint8 {
	return ExtBlockTypeCompressedPayloadBlock
}

// BlockTypeName must return a constant string, this block's name.
func (cpb *CompressedPayloadBlock) BlockTypeName() string {
	return "Compressed Payload Block"
}

// MarshalBinary writes the algorithm and the original size as SDNVs.
func (cpb *CompressedPayloadBlock) MarshalBinary() ([]byte, error) {
	buf := sdnv.Append(nil, uint64(cpb.Algorithm))
	return sdnv.Append(buf, cpb.OriginalSize), nil
}

// UnmarshalBinary reads the algorithm and the original size.
func (cpb *CompressedPayloadBlock) UnmarshalBinary(data []byte) error {
	algo, n, err := sdnv.Decode(data)
	if err != nil {
		return malformed("compressed payload block algorithm: %v", err)
	}

	size, m, err := sdnv.Decode(data[n:])
	if err != nil {
		return malformed("compressed payload block size: %v", err)
	} else if n+m != len(data) {
		return malformed("compressed payload block has %d trailing bytes", len(data)-n-m)
	}

	cpb.Algorithm = CompressionAlgorithm(algo)
	cpb.OriginalSize = size
	return nil
}

// MarshalJSON creates a JSON object for this block.
func (cpb *CompressedPayloadBlock) MarshalJSON() ([]byte, error) {
	return json.Marshal(&struct {
		Algorithm    string `json:"algorithm"`
		OriginalSize uint64 `json:"originalSize"`
	}{cpb.Algorithm.String(), cpb.OriginalSize})
}

// CheckValid returns an array of errors for incorrect data.
func (cpb *CompressedPayloadBlock) CheckValid() error {
	switch cpb.Algorithm {
	case CompressionZlib, CompressionLZMA, CompressionZstd:
		return nil
	default:
		return fmt.Errorf("CompressedPayloadBlock: unsupported algorithm %v", cpb.Algorithm)
	}
}

// transformPayload rewrites a PayloadBlock in place through f, holding the
// blob.Store's lock for a store backed payload.
func transformPayload(pb *PayloadBlock, f func(w io.Writer, r io.Reader) error) error {
	if pb.store == nil {
		var out bytes.Buffer
		if err := f(&out, bytes.NewReader(pb.data)); err != nil {
			return err
		}
		pb.data = out.Bytes()
		return nil
	}

	return pb.store.With(context.Background(), func(h *blob.Handle) error {
		var out bytes.Buffer
		if err := f(&out, h.Reader()); err != nil {
			return err
		}
		return h.Replace(out.Bytes())
	})
}

// Compress the Bundle's payload with the given algorithm. A
// CompressedPayloadBlock is inserted in front of the payload block.
func Compress(b *Bundle, algo CompressionAlgorithm) error {
	if b.HasExtensionBlock(ExtBlockTypeCompressedPayloadBlock) {
		return fmt.Errorf("bundle's payload is already compressed")
	}

	cb, err := b.PayloadBlock()
	if err != nil {
		return err
	}
	pb := cb.Value.(*PayloadBlock)

	cpb := &CompressedPayloadBlock{Algorithm: algo, OriginalSize: pb.Len()}
	if err := cpb.CheckValid(); err != nil {
		return err
	}

	if err := transformPayload(pb, algo.compress); err != nil {
		return fmt.Errorf("compressing payload failed: %w", err)
	}

	return b.InsertBlockBefore(cb, NewCanonicalBlock(ReplicateBlock, cpb))
}

// Extract decompresses the Bundle's payload and removes the CompressedPayloadBlock.
func Extract(b *Bundle) error {
	ccb, err := b.ExtensionBlock(ExtBlockTypeCompressedPayloadBlock)
	if err != nil {
		return err
	}
	cpb := ccb.Value.(*CompressedPayloadBlock)

	cb, err := b.PayloadBlock()
	if err != nil {
		return err
	}
	pb := cb.Value.(*PayloadBlock)

	if err := transformPayload(pb, cpb.Algorithm.decompress); err != nil {
		return fmt.Errorf("decompressing payload failed: %w", err)
	}

	if l := pb.Len(); l != cpb.OriginalSize {
		return fmt.Errorf("decompressed payload has %d bytes instead of %d", l, cpb.OriginalSize)
	}

	b.RemoveBlock(ccb)
	return nil
}
