// SPDX-FileCopyrightText: 2024 dtn6-go contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package bpv6

import (
	"io"
	"sync"
	"time"

	"github.com/dtn7/dtn6-go/pkg/blob"
)

// Validator is consulted while parsing a bundle. Returning an error aborts the
// parse, resulting in an ErrRejected.
type Validator interface {
	// ValidatePrimary is called after the primary block was read.
	ValidatePrimary(pb *PrimaryBlock) error

	// ValidateBlock is called after each canonical block was read. The size is
	// the length of the block's body in bytes.
	ValidateBlock(pb *PrimaryBlock, cb *CanonicalBlock, size uint64) error

	// ValidateBundle is called for the completely parsed bundle.
	ValidateBundle(b *Bundle) error
}

// AcceptValidator is a Validator accepting everything.
type AcceptValidator struct{}

func (AcceptValidator) ValidatePrimary(*PrimaryBlock) error { return nil }

func (AcceptValidator) ValidateBlock(*PrimaryBlock, *CanonicalBlock, uint64) error { return nil }

func (AcceptValidator) ValidateBundle(*Bundle) error { return nil }

// CodecContext configures bundle serialization and parsing. It holds the
// ExtensionBlockManager which maps block type codes to ExtensionBlocks.
//
// A CodecContext might be used concurrently, as long as its fields are not
// changed meanwhile.
type CodecContext struct {
	// Manager knows the ExtensionBlocks to be parsed. Unknown block types are
	// parsed as GenericExtensionBlocks.
	Manager *ExtensionBlockManager

	// Validator is consulted while parsing.
	Validator Validator

	// CBHE enables the Compressed Bundle Header Encoding of RFC 6260 for the
	// default wire form, if all EndpointIDs are compressible.
	CBHE bool

	// BlobThreshold is the payload size in bytes above which received payloads
	// are stored in a file within BlobDir. Zero or below disables files.
	BlobThreshold int64
	BlobDir       string

	// LockTimeout limits waiting for a blob.Store's lock.
	LockTimeout time.Duration
}

// NewCodecContext creates a CodecContext knowing all blocks of this package,
// accepting every bundle and having CBHE enabled.
func NewCodecContext() *CodecContext {
	ebm := NewExtensionBlockManager()
	for _, eb := range []ExtensionBlock{
		NewPayloadBlock(nil),
		&BundleAuthenticationBlock{},
		&PayloadIntegrityBlock{},
		&PayloadConfidentialityBlock{},
		&ExtensionSecurityBlock{},
		NewAgeBlock(0),
		&KeyBlock{},
		&CompressedPayloadBlock{},
		NewStreamBlock(0),
	} {
		// The manager is empty, thus no duplicates exist.
		_ = ebm.Register(eb)
	}

	return &CodecContext{
		Manager:     ebm,
		Validator:   AcceptValidator{},
		CBHE:        true,
		LockTimeout: blob.DefaultLockTimeout,
	}
}

var (
	defaultCodecContext     *CodecContext
	defaultCodecContextOnce sync.Once
)

// DefaultCodecContext returns the process-wide CodecContext, created by
// NewCodecContext on its first usage. It is used by ParseBundle and
// Bundle.WriteBundle.
func DefaultCodecContext() *CodecContext {
	defaultCodecContextOnce.Do(func() {
		defaultCodecContext = NewCodecContext()
	})
	return defaultCodecContext
}

// WriteBundle writes a Bundle in its default wire form.
func (ctx *CodecContext) WriteBundle(w io.Writer, b *Bundle) error {
	return newSerializer(w, ctx, DefaultForm).writeBundle(b)
}

// MarshalBundle returns a Bundle's default wire form.
func (ctx *CodecContext) MarshalBundle(b *Bundle) ([]byte, error) {
	return marshalForm(func(w io.Writer) error { return ctx.WriteBundle(w, b) })
}

// WriteStrictCanonical writes the strict canonical form of a Bundle, used as
// input for a Bundle Authentication Block's MAC.
func (ctx *CodecContext) WriteStrictCanonical(w io.Writer, b *Bundle, opts StrictOptions) error {
	s := newSerializer(w, ctx, StrictForm)
	s.strict = opts
	return s.writeBundle(b)
}

// MarshalStrictCanonical returns the strict canonical form of a Bundle.
func (ctx *CodecContext) MarshalStrictCanonical(b *Bundle, opts StrictOptions) ([]byte, error) {
	return marshalForm(func(w io.Writer) error { return ctx.WriteStrictCanonical(w, b, opts) })
}

// WriteMutableCanonical writes the mutable canonical form of a Bundle, used as
// input for Payload Integrity and Confidentiality Blocks. If ignore is not nil,
// all blocks in front of it are skipped and its security result's content is
// omitted.
func (ctx *CodecContext) WriteMutableCanonical(w io.Writer, b *Bundle, ignore *CanonicalBlock) error {
	s := newSerializer(w, ctx, MutableForm)
	s.ignore = ignore
	return s.writeBundle(b)
}

// MarshalMutableCanonical returns the mutable canonical form of a Bundle.
func (ctx *CodecContext) MarshalMutableCanonical(b *Bundle, ignore *CanonicalBlock) ([]byte, error) {
	return marshalForm(func(w io.Writer) error { return ctx.WriteMutableCanonical(w, b, ignore) })
}

// WriteStrictCanonical writes a Bundle's strict canonical form with the default CodecContext.
func WriteStrictCanonical(w io.Writer, b *Bundle, opts StrictOptions) error {
	return DefaultCodecContext().WriteStrictCanonical(w, b, opts)
}

// WriteMutableCanonical writes a Bundle's mutable canonical form with the default CodecContext.
func WriteMutableCanonical(w io.Writer, b *Bundle, ignore *CanonicalBlock) error {
	return DefaultCodecContext().WriteMutableCanonical(w, b, ignore)
}
