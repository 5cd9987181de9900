// SPDX-FileCopyrightText: 2024 dtn6-go contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package bpv6

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	log "github.com/sirupsen/logrus"

	"github.com/dtn7/dtn6-go/pkg/sdnv"
)

// countingReader is an unbuffered io.ByteReader on top of an io.Reader which
// counts the consumed bytes. Bytes behind a bundle are not consumed.
type countingReader struct {
	r   io.Reader
	n   uint64
	one [1]byte
}

func (cr *countingReader) ReadByte() (byte, error) {
	if _, err := io.ReadFull(cr.r, cr.one[:]); err != nil {
		return 0, err
	}
	cr.n++
	return cr.one[0], nil
}

func (cr *countingReader) Read(p []byte) (int, error) {
	n, err := cr.r.Read(p)
	cr.n += uint64(n)
	return n, err
}

// deserializer reads one Bundle in its default wire form.
type deserializer struct {
	r   *countingReader
	ctx *CodecContext

	dict       *Dictionary
	compressed bool
}

// ParseBundle reads a Bundle in its default wire form.
//
// If the Reader ends before the first byte, io.EOF is returned. Ending at any
// later position results in an ErrIncompleteData. On errors, all blob.Stores
// created so far are released.
func (ctx *CodecContext) ParseBundle(r io.Reader) (b Bundle, err error) {
	d := &deserializer{
		r:   &countingReader{r: r},
		ctx: ctx,
	}

	if err = d.readBundle(&b); err != nil {
		if closeErr := b.Close(); closeErr != nil {
			log.WithError(closeErr).Warn("Releasing blob stores of an unparsable bundle errored")
		}
		b = Bundle{}
	}
	return
}

// UnmarshalBundle reads a Bundle from a byte slice in its default wire form.
func (ctx *CodecContext) UnmarshalBundle(data []byte) (Bundle, error) {
	return ctx.ParseBundle(bytes.NewReader(data))
}

func (d *deserializer) readNumber(what string) (uint64, error) {
	v, err := sdnv.Read(d.r)
	return v, wrapReadError(err, what)
}

func (d *deserializer) readEIDRef(what string) (eid EndpointID, err error) {
	first, err := d.readNumber(what)
	if err != nil {
		return
	}
	second, err := d.readNumber(what)
	if err != nil {
		return
	}

	if d.compressed {
		return compressedEndpoint(first, second), nil
	}
	return d.dict.Get(first, second)
}

func (d *deserializer) readBundle(b *Bundle) error {
	if err := d.readPrimary(&b.PrimaryBlock); err != nil {
		return err
	}

	if err := d.ctx.Validator.ValidatePrimary(&b.PrimaryBlock); err != nil {
		return fmt.Errorf("%w: primary block: %v", ErrRejected, err)
	}

	for {
		cb, size, isLast, err := d.readBlock(&b.PrimaryBlock)
		if err != nil {
			return err
		}

		if cb != nil {
			if err := d.ctx.Validator.ValidateBlock(&b.PrimaryBlock, cb, size); err != nil {
				if pb, ok := cb.Value.(*PayloadBlock); ok {
					_ = pb.Close()
				}
				return fmt.Errorf("%w: block of type %d: %v", ErrRejected, cb.TypeCode(), err)
			}
			b.AppendBlock(cb)
		}

		if isLast {
			break
		}
	}

	if err := d.ctx.Validator.ValidateBundle(b); err != nil {
		return fmt.Errorf("%w: %v", ErrRejected, err)
	}
	return nil
}

func (d *deserializer) readPrimary(pb *PrimaryBlock) error {
	version, err := d.r.ReadByte()
	if errors.Is(err, io.EOF) {
		return io.EOF
	} else if err != nil {
		return wrapReadError(err, "version")
	} else if version != dtnVersion {
		return fmt.Errorf("%w: expected %d, got %d", ErrVersionMismatch, dtnVersion, version)
	}

	flags, err := d.readNumber("bundle processing control flags")
	if err != nil {
		return err
	}
	pb.BundleControlFlags = BundleControlFlags(flags)

	blockLen, err := d.readNumber("primary block length")
	if err != nil {
		return err
	}
	start := d.r.n

	var refs [8]uint64
	for i := range refs {
		if refs[i], err = d.readNumber("endpoint reference"); err != nil {
			return err
		}
	}

	var ts uint64
	for _, f := range []struct {
		field *uint64
		name  string
	}{
		{&ts, "creation timestamp"},
		{&pb.SequenceNumber, "sequence number"},
		{&pb.Lifetime, "lifetime"},
	} {
		if *f.field, err = d.readNumber(f.name); err != nil {
			return err
		}
	}
	pb.CreationTimestamp = DtnTime(ts)

	dictLen, err := d.readNumber("dictionary length")
	if err != nil {
		return err
	}

	if dictLen == 0 {
		d.compressed = true
	} else {
		dictBytes, err := readBytes(d.r, dictLen)
		if err != nil {
			return err
		}
		d.dict = NewDictionaryFromBytes(dictBytes)
	}

	for i, eid := range []*EndpointID{&pb.Destination, &pb.SourceNode, &pb.ReportTo, &pb.Custodian} {
		if d.compressed {
			*eid = compressedEndpoint(refs[2*i], refs[2*i+1])
		} else if *eid, err = d.dict.Get(refs[2*i], refs[2*i+1]); err != nil {
			return err
		}
	}

	if pb.HasFragmentation() {
		if pb.FragmentOffset, err = d.readNumber("fragment offset"); err != nil {
			return err
		}
		if pb.AppDataLength, err = d.readNumber("application data length"); err != nil {
			return err
		}
	}

	if read := d.r.n - start; read != blockLen {
		return malformed("primary block announced %d bytes, but has %d", blockLen, read)
	}
	return nil
}

// readBlock reads the next canonical block. A nil block is returned for a
// dropped administrative record. The size is the body's length.
func (d *deserializer) readBlock(pb *PrimaryBlock) (cb *CanonicalBlock, size uint64, isLast bool, err error) {
	typeCode, err := d.r.ReadByte()
	if err != nil {
		err = wrapReadError(err, "block type")
		return
	} else if typeCode == 0 {
		err = malformed("block type code 0 is reserved")
		return
	}

	flags, err := d.readNumber("block processing control flags")
	if err != nil {
		return
	}
	cb = &CanonicalBlock{BlockControlFlags: BlockControlFlags(flags)}
	isLast = cb.IsLastBlock()

	if cb.BlockControlFlags.Has(ContainsEIDs) {
		var count uint64
		if count, err = d.readNumber("EID reference count"); err != nil {
			return
		}

		for i := uint64(0); i < count; i++ {
			var eid EndpointID
			if eid, err = d.readEIDRef("EID reference"); err != nil {
				return
			}
			cb.EIDs = append(cb.EIDs, eid)
		}
	}

	if size, err = d.readNumber("block length"); err != nil {
		return
	}

	if pb.IsAdministrativeRecord() && typeCode == ExtBlockTypePayloadBlock {
		if cb.Value, err = d.readAdministrativeRecord(pb, size); cb.Value == nil {
			cb = nil
		}
		return
	}

	eb := d.ctx.Manager.createBlock(typeCode)

	if bs, ok := eb.(bodyStreamer); ok {
		err = bs.readBody(d.r, size, d.ctx)
	} else {
		var data []byte
		if data, err = readBytes(d.r, size); err == nil {
			err = eb.UnmarshalBinary(data)
		}
	}
	if err != nil {
		err = fmt.Errorf("reading block of type %d failed: %w", typeCode, err)
		return
	}

	if _, unknown := eb.(*GenericExtensionBlock); unknown {
		log.WithField("type", typeCode).Debug("Parsing unknown block type as generic extension block")
	}

	cb.Value = eb
	return
}

// readAdministrativeRecord reads a payload block's body as the administrative
// record indicated by its first byte. Unknown records are logged and dropped,
// resulting in a nil record.
func (d *deserializer) readAdministrativeRecord(pb *PrimaryBlock, size uint64) (AdministrativeRecord, error) {
	data, err := readBytes(d.r, size)
	if err != nil {
		return nil, err
	}

	recordType, _ := adminRecordType(data)
	ar := newAdministrativeRecord(recordType)
	if ar == nil {
		log.WithFields(log.Fields{
			"source":  pb.SourceNode,
			"subtype": recordType,
		}).Warn("Dropping unknown administrative record")
		return nil, nil
	}

	if err := ar.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return ar, nil
}
