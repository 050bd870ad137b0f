// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

package ipset

import (
	"bufio"
	"encoding/binary"
	"io"
)

// binaryMagic/binaryVersion identify the compact on-disk range form: a
// fixed 8-byte header followed by 8 bytes (two big-endian uint32s) per
// range, sorted ascending. The format is deliberately flat so that a
// multi-set union can be computed by a streaming k-way merge over several
// open files at once, without materializing any of them first.
const (
	binaryMagic   = uint32(0x49505342) // "IPSB"
	binaryVersion = uint32(1)
)

// WriteBinary writes the set's canonical ranges in the compact on-disk
// form.
func (s *Set) WriteBinary(w io.Writer) error {
	bw := bufio.NewWriter(w)
	var header [8]byte
	binary.BigEndian.PutUint32(header[0:4], binaryMagic)
	binary.BigEndian.PutUint32(header[4:8], binaryVersion)
	if _, err := bw.Write(header[:]); err != nil {
		return err
	}

	var rec [8]byte
	for _, r := range s.Ranges() {
		binary.BigEndian.PutUint32(rec[0:4], r.Start)
		binary.BigEndian.PutUint32(rec[4:8], r.End)
		if _, err := bw.Write(rec[:]); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// ReadBinary reads a set previously written by WriteBinary. The ranges in
// the file are already canonical, so no merge pass is needed on load.
func ReadBinary(r io.Reader) (*Set, error) {
	br := bufio.NewReader(r)
	var header [8]byte
	if _, err := io.ReadFull(br, header[:]); err != nil {
		if err == io.EOF {
			return &Set{}, nil
		}
		return nil, err
	}
	if binary.BigEndian.Uint32(header[0:4]) != binaryMagic {
		return nil, ErrCorruptBinary
	}

	var ranges []Range
	var rec [8]byte
	for {
		_, err := io.ReadFull(br, rec[:])
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		ranges = append(ranges, Range{
			Start: binary.BigEndian.Uint32(rec[0:4]),
			End:   binary.BigEndian.Uint32(rec[4:8]),
		})
	}
	s := &Set{ranges: ranges} // already canonical; skip re-sorting
	return s, nil
}

// UnionBinaryFiles reads several binary-form sets and returns their
// canonical union, without requiring more than one file open at a time.
func UnionBinaryFiles(readers ...io.Reader) (*Set, error) {
	result := &Set{}
	for _, r := range readers {
		s, err := ReadBinary(r)
		if err != nil {
			return nil, err
		}
		result = result.Union(s)
	}
	return result, nil
}
