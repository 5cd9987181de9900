// SPDX-FileCopyrightText: 2018, 2019, 2020 Alvar Penning
// SPDX-FileCopyrightText: 2024 dtn6-go contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package bpv6

import (
	"encoding/json"
	"io"
	"time"

	"github.com/dtn7/dtn6-go/pkg/sdnv"
)

// DtnTime is an integer representation of seconds since the start of the year 2000 (UTC).
type DtnTime uint64

const (
	seconds1970To2k = 946684800

	// DtnTimeEpoch represents the zero timestamp/epoch.
	DtnTimeEpoch DtnTime = 0
)

// Time returns a UTC-based time.Time for this DtnTime.
func (t DtnTime) Time() time.Time {
	return time.Unix(int64(t)+seconds1970To2k, 0).UTC()
}

// String returns this DtnTime's string representation.
func (t DtnTime) String() string {
	return t.Time().Format("2006-01-02 15:04:05")
}

// MarshalJSON writes this DtnTime's string representation.
func (t DtnTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// DtnTimeFromTime returns the DtnTime for the time.Time. Times before the
// epoch are clamped to DtnTimeEpoch.
func DtnTimeFromTime(t time.Time) DtnTime {
	if sec := t.Unix() - seconds1970To2k; sec > 0 {
		return DtnTime(sec)
	}
	return DtnTimeEpoch
}

// DtnTimeNow returns the current (UTC) time as DtnTime.
func DtnTimeNow() DtnTime {
	return DtnTimeFromTime(time.Now())
}

// RecordTime is the time representation within administrative records, a
// DtnTime and a nanosecond offset, both encoded as SDNVs.
type RecordTime struct {
	Seconds     DtnTime `json:"seconds"`
	Nanoseconds uint32  `json:"nanoseconds"`
}

// NewRecordTime for a time.Time.
func NewRecordTime(t time.Time) RecordTime {
	return RecordTime{
		Seconds:     DtnTimeFromTime(t),
		Nanoseconds: uint32(t.Nanosecond()),
	}
}

// Time returns a UTC-based time.Time for this RecordTime.
func (rt RecordTime) Time() time.Time {
	return rt.Seconds.Time().Add(time.Duration(rt.Nanoseconds))
}

func (rt RecordTime) appendTo(buf []byte) []byte {
	buf = sdnv.Append(buf, uint64(rt.Seconds))
	return sdnv.Append(buf, uint64(rt.Nanoseconds))
}

func (rt *RecordTime) readFrom(r io.ByteReader) error {
	if sec, err := sdnv.Read(r); err != nil {
		return err
	} else {
		rt.Seconds = DtnTime(sec)
	}

	if nsec, err := sdnv.Read(r); err != nil {
		return err
	} else if nsec > 999999999 {
		return malformed("record time nanoseconds %d exceed a second", nsec)
	} else {
		rt.Nanoseconds = uint32(nsec)
	}

	return nil
}
