// SPDX-FileCopyrightText: 2019, 2020, 2021 Alvar Penning
// SPDX-FileCopyrightText: 2022 Markus Sommer
// SPDX-FileCopyrightText: 2024 dtn6-go contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package bpv6

import (
	"fmt"
	"sort"

	"github.com/dtn7/dtn6-go/pkg/sdnv"
)

// payloadIndex returns the position of the payload block.
func (b *Bundle) payloadIndex() (int, error) {
	for i, cb := range b.blocks {
		if _, ok := cb.Value.(*PayloadBlock); ok {
			return i, nil
		}
	}
	return -1, fmt.Errorf("Bundle has no PayloadBlock")
}

// Fragment a Bundle into multiple Bundles, with each serialized Bundle limited
// to mtu bytes in its default wire form. If the Bundle already fits, a slice
// containing only itself is returned.
//
// Blocks flagged with ReplicateBlock are part of every fragment. Other blocks
// in front of the payload block are only part of the first fragment, those
// behind it only of the last one.
func (b *Bundle) Fragment(mtu int) ([]Bundle, error) {
	return b.fragment(DefaultCodecContext(), mtu)
}

func (b *Bundle) fragment(ctx *CodecContext, mtu int) (bs []Bundle, err error) {
	if b.PrimaryBlock.BundleControlFlags.Has(MustNotFragmented) {
		err = fmt.Errorf("bundle control flags forbids bundle fragmentation")
		return
	}

	if raw, rawErr := ctx.MarshalBundle(b); rawErr != nil {
		err = rawErr
		return
	} else if len(raw) <= mtu {
		bs = []Bundle{*b}
		return
	}

	payloadIdx, err := b.payloadIndex()
	if err != nil {
		return
	}
	data := b.blocks[payloadIdx].Value.(*PayloadBlock).Data()

	// A fragment of a fragment keeps its offsets relative to the original.
	baseOffset, totalLen := uint64(0), uint64(len(data))
	if b.PrimaryBlock.HasFragmentation() {
		baseOffset, totalLen = b.PrimaryBlock.FragmentOffset, b.PrimaryBlock.AppDataLength
	}

	// capacity of a fragment's payload, based on the fragment without payload.
	capacity := func(offset int, first, last bool) (int, error) {
		empty, err := b.fragmentBundle(payloadIdx, baseOffset+uint64(offset), totalLen, nil, first, last)
		if err != nil {
			return 0, err
		}

		raw, err := ctx.MarshalBundle(&empty)
		if err != nil {
			return 0, err
		}
		// The empty payload's length field is a single byte.
		return mtu - (len(raw) - 1) - sdnv.Len(uint64(mtu)), nil
	}

	for offset := 0; offset < len(data); {
		first, remaining := offset == 0, len(data)-offset

		lastCap, capErr := capacity(offset, first, true)
		if capErr != nil {
			err = capErr
			return
		}

		chunk, last := remaining, true
		if remaining > lastCap {
			last = false
			if chunk, err = capacity(offset, first, false); err != nil {
				return
			} else if chunk >= remaining {
				chunk = remaining - 1
			}
		}

		if chunk <= 0 {
			err = fmt.Errorf("bundle overhead of fragment at offset %d exceeds MTU", offset)
			return
		}

		frag, fragErr := b.fragmentBundle(payloadIdx, baseOffset+uint64(offset), totalLen, data[offset:offset+chunk], first, last)
		if fragErr != nil {
			err = fragErr
			return
		}
		bs = append(bs, frag)

		offset += chunk
	}

	return
}

// fragmentBundle creates a fragment carrying the given part of the payload.
func (b *Bundle) fragmentBundle(payloadIdx int, offset, totalLen uint64, data []byte, first, last bool) (frag Bundle, err error) {
	frag.PrimaryBlock = b.PrimaryBlock
	frag.PrimaryBlock.BundleControlFlags |= IsFragment
	frag.PrimaryBlock.FragmentOffset = offset
	frag.PrimaryBlock.AppDataLength = totalLen

	for i, cb := range b.blocks {
		switch {
		case i == payloadIdx:
			frag.AppendBlock(NewCanonicalBlock(cb.BlockControlFlags, NewPayloadBlock(data)))
			continue

		case cb.BlockControlFlags.Has(ReplicateBlock):
		case first && i < payloadIdx:
		case last && i > payloadIdx:

		default:
			continue
		}

		clone, cloneErr := cb.Clone()
		if cloneErr != nil {
			err = cloneErr
			return
		}
		frag.AppendBlock(clone)
	}

	return
}

// sameBundle checks if two fragments belong to the same Bundle.
func sameBundle(a, b *PrimaryBlock) bool {
	return a.SourceNode == b.SourceNode &&
		a.CreationTimestamp == b.CreationTimestamp &&
		a.SequenceNumber == b.SequenceNumber &&
		a.AppDataLength == b.AppDataLength
}

// prepareReassembly sorts the slice of Bundle fragments and checks if their are any gaps left.
func prepareReassembly(bs []Bundle) error {
	if len(bs) == 0 {
		return fmt.Errorf("slice of fragments is empty")
	}

	sort.Slice(bs, func(i, j int) bool {
		return bs[i].PrimaryBlock.FragmentOffset < bs[j].PrimaryBlock.FragmentOffset
	})

	lastIndex := uint64(0)
	for i := range bs {
		b := &bs[i]

		if !b.PrimaryBlock.HasFragmentation() {
			return fmt.Errorf("bundle is not a fragment")
		} else if !sameBundle(&bs[0].PrimaryBlock, &b.PrimaryBlock) {
			return fmt.Errorf("fragment %v belongs to another bundle than %v", b.ID(), bs[0].ID())
		}

		if fragOff := b.PrimaryBlock.FragmentOffset; fragOff > lastIndex {
			return fmt.Errorf("next fragment starts at offset %d, gap from %d to %d", fragOff, lastIndex, fragOff)
		} else if payloadBlock, err := b.PayloadBlock(); err != nil {
			return err
		} else if end := fragOff + payloadBlock.Value.(*PayloadBlock).Len(); end > lastIndex {
			lastIndex = end
		}
	}

	if total := bs[0].PrimaryBlock.AppDataLength; total != lastIndex {
		return fmt.Errorf("last index is %d and does not match total length of %d", lastIndex, total)
	}

	return nil
}

// IsBundleReassemblable checks if a Bundle can be reassembled from the given
// fragments. This method might sort the given slice as a side effect.
func IsBundleReassemblable(bs []Bundle) bool {
	return prepareReassembly(bs) == nil
}

// mergeFragmentPayload merges the fragmented payload. Overlapping parts are
// taken from the earlier fragment.
func mergeFragmentPayload(bs []Bundle) (data []byte, err error) {
	lastIndex := uint64(0)
	for i := range bs {
		fragStartIndex := bs[i].PrimaryBlock.FragmentOffset

		fragPayloadBlock, pbErr := bs[i].PayloadBlock()
		if pbErr != nil {
			err = pbErr
			return
		}
		fragPayloadData := fragPayloadBlock.Value.(*PayloadBlock).Data()

		if fragEnd := fragStartIndex + uint64(len(fragPayloadData)); fragEnd > lastIndex {
			data = append(data, fragPayloadData[lastIndex-fragStartIndex:]...)
			lastIndex = fragEnd
		}
	}

	return
}

// ReassembleFragments merges a slice of Bundle fragments into the reassembled
// Bundle. The blocks in front of the payload are taken from the first fragment,
// those behind it from the last fragment.
func ReassembleFragments(bs []Bundle) (b Bundle, err error) {
	if err = prepareReassembly(bs); err != nil {
		return
	}

	b.PrimaryBlock = bs[0].PrimaryBlock
	b.PrimaryBlock.BundleControlFlags &^= IsFragment
	b.PrimaryBlock.FragmentOffset = 0
	b.PrimaryBlock.AppDataLength = 0

	payload, err := mergeFragmentPayload(bs)
	if err != nil {
		return
	}

	first, last := &bs[0], &bs[len(bs)-1]

	firstIdx, err := first.payloadIndex()
	if err != nil {
		return
	}
	lastIdx, err := last.payloadIndex()
	if err != nil {
		return
	}

	var blocks []*CanonicalBlock
	blocks = append(blocks, first.blocks[:firstIdx]...)
	blocks = append(blocks, NewCanonicalBlock(first.blocks[firstIdx].BlockControlFlags, NewPayloadBlock(payload)))
	blocks = append(blocks, last.blocks[lastIdx+1:]...)

	for _, cb := range blocks {
		if cb.TypeCode() == ExtBlockTypePayloadBlock {
			b.AppendBlock(cb)
			continue
		}

		clone, cloneErr := cb.Clone()
		if cloneErr != nil {
			err = cloneErr
			return
		}
		b.AppendBlock(clone)
	}

	err = b.CheckValid()
	return
}
