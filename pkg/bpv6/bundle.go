// SPDX-FileCopyrightText: 2018, 2019, 2020, 2022 Alvar Penning
// SPDX-FileCopyrightText: 2022 Markus Sommer
// SPDX-FileCopyrightText: 2024 dtn6-go contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package bpv6

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/hashicorp/go-multierror"
)

// Bundle represents a bundle as defined in RFC 5050, section 4.5. Each Bundle
// contains one primary block and an ordered list of canonical blocks.
//
// The block list is only modified through the Bundle's methods, which keep the
// LastBlock flag set on the tail block and cleared on all others. Blocks are
// identified by their pointers and must not be shared between Bundles; use
// CanonicalBlock.Clone to copy a block into another Bundle.
type Bundle struct {
	PrimaryBlock PrimaryBlock
	blocks       []*CanonicalBlock
}

// NewBundle creates a new Bundle. The values and flags of the blocks will be
// checked and an error might be returned.
func NewBundle(primary PrimaryBlock, canonicals ...*CanonicalBlock) (b Bundle, err error) {
	b = MustNewBundle(primary, canonicals...)
	err = b.CheckValid()

	return
}

// MustNewBundle creates a new Bundle like NewBundle, but skips the validity
// check. No panic will be called!
func MustNewBundle(primary PrimaryBlock, canonicals ...*CanonicalBlock) (b Bundle) {
	b = Bundle{PrimaryBlock: primary}
	for _, cb := range canonicals {
		b.AppendBlock(cb)
	}

	return
}

// ParseBundle reads a new Bundle in its default wire form from a Reader, using
// the default CodecContext.
func ParseBundle(r io.Reader) (Bundle, error) {
	return DefaultCodecContext().ParseBundle(r)
}

// WriteBundle writes this Bundle in its default wire form into a Writer,
// using the default CodecContext.
func (b *Bundle) WriteBundle(w io.Writer) error {
	return DefaultCodecContext().WriteBundle(w, b)
}

// MarshalBinary returns this Bundle's default wire form, using the default
// CodecContext.
func (b *Bundle) MarshalBinary() ([]byte, error) {
	return DefaultCodecContext().MarshalBundle(b)
}

// Blocks returns a copy of the block list. The blocks themselves are shared.
func (b *Bundle) Blocks() []*CanonicalBlock {
	return append([]*CanonicalBlock(nil), b.blocks...)
}

// Len returns the amount of canonical blocks.
func (b *Bundle) Len() int {
	return len(b.blocks)
}

// fixLastBlock sets the LastBlock flag on the tail and clears it elsewhere.
func (b *Bundle) fixLastBlock() {
	for i, cb := range b.blocks {
		if i == len(b.blocks)-1 {
			cb.BlockControlFlags |= LastBlock
		} else {
			cb.BlockControlFlags &^= LastBlock
		}
	}
}

// indexOf returns the position of a block, identified by its pointer, or -1.
func (b *Bundle) indexOf(cb *CanonicalBlock) int {
	for i, other := range b.blocks {
		if other == cb {
			return i
		}
	}
	return -1
}

// AppendBlock adds a block to the end of the block list and returns it.
func (b *Bundle) AppendBlock(cb *CanonicalBlock) *CanonicalBlock {
	if n := len(b.blocks); n > 0 {
		b.blocks[n-1].BlockControlFlags &^= LastBlock
	}

	cb.BlockControlFlags |= LastBlock
	b.blocks = append(b.blocks, cb)
	return cb
}

// InsertBlock adds a block to the front of the block list and returns it.
func (b *Bundle) InsertBlock(cb *CanonicalBlock) *CanonicalBlock {
	b.blocks = append([]*CanonicalBlock{cb}, b.blocks...)
	b.fixLastBlock()
	return cb
}

// InsertBlockBefore adds a block in front of another block of this Bundle.
func (b *Bundle) InsertBlockBefore(ref, cb *CanonicalBlock) error {
	idx := b.indexOf(ref)
	if idx < 0 {
		return fmt.Errorf("reference block is not part of this bundle")
	}

	b.blocks = append(b.blocks[:idx], append([]*CanonicalBlock{cb}, b.blocks[idx:]...)...)
	b.fixLastBlock()
	return nil
}

// RemoveBlock removes a block, identified by its pointer. If the tail block was
// removed, the new tail becomes the last block. False is returned if the block
// is not part of this Bundle.
func (b *Bundle) RemoveBlock(cb *CanonicalBlock) bool {
	idx := b.indexOf(cb)
	if idx < 0 {
		return false
	}

	b.blocks = append(b.blocks[:idx], b.blocks[idx+1:]...)
	cb.BlockControlFlags &^= LastBlock

	if n := len(b.blocks); n > 0 && idx == n {
		b.blocks[n-1].BlockControlFlags |= LastBlock
	}
	return true
}

// ReplaceBlock replaces a block, identified by its pointer, at its position.
func (b *Bundle) ReplaceBlock(old, cb *CanonicalBlock) error {
	idx := b.indexOf(old)
	if idx < 0 {
		return fmt.Errorf("block to replace is not part of this bundle")
	}

	b.blocks[idx] = cb
	old.BlockControlFlags &^= LastBlock
	b.fixLastBlock()
	return nil
}

// ClearBlocks removes all blocks.
func (b *Bundle) ClearBlocks() {
	for _, cb := range b.blocks {
		cb.BlockControlFlags &^= LastBlock
	}
	b.blocks = nil
}

// ExtensionBlocks returns all this Bundle's canonical blocks matching the
// requested block type code. If no such block was found, an error will be
// returned.
func (b *Bundle) ExtensionBlocks(blockType uint8) (cbs []*CanonicalBlock, err error) {
	for _, cb := range b.blocks {
		if cb.TypeCode() == blockType {
			cbs = append(cbs, cb)
		}
	}

	if len(cbs) == 0 {
		err = fmt.Errorf("no CanonicalBlock with block type %d was found in Bundle", blockType)
	}
	return
}

// ExtensionBlock returns a Canonical Block for the requested type code.
//
// If there is no such Block or more than exactly one Block, an error will be returned.
func (b *Bundle) ExtensionBlock(blockType uint8) (*CanonicalBlock, error) {
	cbs, err := b.ExtensionBlocks(blockType)

	if err != nil {
		return nil, err
	} else if l := len(cbs); l != 1 {
		return nil, fmt.Errorf("there are %d Extension Blocks for type code %d", l, blockType)
	} else {
		return cbs[0], nil
	}
}

// HasExtensionBlock checks if a CanonicalBlock for some block type code is present.
func (b *Bundle) HasExtensionBlock(blockType uint8) bool {
	_, err := b.ExtensionBlocks(blockType)
	return err == nil
}

// PayloadBlock returns this Bundle's payload block or an error, if it does not
// exist. Administrative records are not returned.
func (b *Bundle) PayloadBlock() (*CanonicalBlock, error) {
	for _, cb := range b.blocks {
		if _, ok := cb.Value.(*PayloadBlock); ok {
			return cb, nil
		}
	}
	return nil, fmt.Errorf("Bundle has no PayloadBlock")
}

// Close releases the blob.Stores of all PayloadBlocks, removing their files.
// A Bundle parsed with a CodecContext's BlobThreshold should be closed after use.
func (b *Bundle) Close() (errs error) {
	for _, cb := range b.blocks {
		if pb, ok := cb.Value.(*PayloadBlock); ok {
			if err := pb.Close(); err != nil {
				errs = multierror.Append(errs, err)
			}
		}
	}
	return
}

// AdministrativeRecord returns the administrative record of this Bundle.
func (b *Bundle) AdministrativeRecord() (AdministrativeRecord, error) {
	if !b.PrimaryBlock.IsAdministrativeRecord() {
		return nil, fmt.Errorf("Bundle is not flagged as an administrative record")
	}

	for _, cb := range b.blocks {
		if ar, ok := cb.Value.(AdministrativeRecord); ok {
			return ar, nil
		}
	}
	return nil, fmt.Errorf("Bundle has no administrative record")
}

// Relabel assigns a fresh creation timestamp and sequence number.
func (b *Bundle) Relabel() {
	b.PrimaryBlock.Relabel()
}

// ID returns a BundleID representing this Bundle.
func (b *Bundle) ID() BundleID {
	return BundleID{
		SourceNode:     b.PrimaryBlock.SourceNode,
		Timestamp:      b.PrimaryBlock.CreationTimestamp,
		SequenceNumber: b.PrimaryBlock.SequenceNumber,

		IsFragment:     b.PrimaryBlock.HasFragmentation(),
		FragmentOffset: b.PrimaryBlock.FragmentOffset,
	}
}

// CheckValid returns an array of errors for incorrect data.
func (b *Bundle) CheckValid() (errs error) {
	if pbErr := b.PrimaryBlock.CheckValid(); pbErr != nil {
		errs = multierror.Append(errs, pbErr)
	}

	if len(b.blocks) == 0 {
		errs = multierror.Append(errs, fmt.Errorf("Bundle has no canonical blocks"))
	}

	payloads := 0
	for i, cb := range b.blocks {
		if cbErr := cb.CheckValid(); cbErr != nil {
			errs = multierror.Append(errs, cbErr)
		}

		if isLast := i == len(b.blocks)-1; cb.IsLastBlock() != isLast {
			errs = multierror.Append(errs, fmt.Errorf("block %d has a LastBlock flag of %t", i, !isLast))
		}

		if cb.Value != nil && cb.TypeCode() == ExtBlockTypePayloadBlock {
			payloads++
		}

		if _, ok := cb.Value.(AdministrativeRecord); ok && !b.PrimaryBlock.IsAdministrativeRecord() {
			errs = multierror.Append(errs, fmt.Errorf("administrative record in a bundle without the flag"))
		}
	}

	if payloads > 1 {
		errs = multierror.Append(errs, fmt.Errorf("Bundle has %d payload blocks", payloads))
	}

	return
}

// MarshalJSON creates a JSON object for this Bundle.
func (b Bundle) MarshalJSON() ([]byte, error) {
	blocks := b.blocks
	if blocks == nil {
		blocks = []*CanonicalBlock{}
	}

	return json.Marshal(&struct {
		PrimaryBlock    PrimaryBlock      `json:"primaryBlock"`
		CanonicalBlocks []*CanonicalBlock `json:"canonicalBlocks"`
	}{
		PrimaryBlock:    b.PrimaryBlock,
		CanonicalBlocks: blocks,
	})
}

func (b Bundle) String() string {
	return b.ID().String()
}
