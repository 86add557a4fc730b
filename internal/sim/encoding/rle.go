// Package encoding packs tile rows for the observer stream.
package encoding

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
)

var ErrTooLong = errors.New("decoded tiles exceed limit")

// EncodeTiles run-length encodes palette indices as base64 of uvarint
// (type, run) pairs.
func EncodeTiles(types []uint16) string {
	var buf bytes.Buffer
	var tmp [binary.MaxVarintLen64]byte
	put := func(v uint64) {
		n := binary.PutUvarint(tmp[:], v)
		buf.Write(tmp[:n])
	}
	for i := 0; i < len(types); {
		t := types[i]
		run := 1
		for i+run < len(types) && types[i+run] == t {
			run++
		}
		put(uint64(t))
		put(uint64(run))
		i += run
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

// DecodeTiles reverses EncodeTiles. It refuses to expand past limit tiles
// when limit is positive.
func DecodeTiles(s string, limit int) ([]uint16, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode tiles: %w", err)
	}
	var out []uint16
	for i := 0; i < len(raw); {
		t, n := binary.Uvarint(raw[i:])
		if n <= 0 {
			return nil, fmt.Errorf("decode tiles: bad type at byte %d", i)
		}
		i += n
		run, n := binary.Uvarint(raw[i:])
		if n <= 0 || run == 0 {
			return nil, fmt.Errorf("decode tiles: bad run at byte %d", i)
		}
		i += n
		if t > 0xFFFF {
			return nil, fmt.Errorf("decode tiles: type %d out of range", t)
		}
		if limit > 0 && uint64(len(out))+run > uint64(limit) {
			return nil, ErrTooLong
		}
		for k := uint64(0); k < run; k++ {
			out = append(out, uint16(t))
		}
	}
	return out, nil
}
