// Package codec builds the canonical byte form that ids and signatures are computed over.
// Field order is fixed by the caller, integers are fixed width big-endian and variable
// length fields carry a two byte length prefix.
package codec

import (
	"encoding/binary"
	"errors"
	"math"
)

var ErrFieldTooLong = errors.New("codec: variable field exceeds 65535 bytes")

type Writer struct {
	buf []byte
	err error
}

func NewWriter(size int) *Writer {
	return &Writer{buf: make([]byte, 0, size)}
}

func (w *Writer) Uint8(v uint8) {
	w.buf = append(w.buf, v)
}

func (w *Writer) Uint32(v uint32) {
	w.buf = binary.BigEndian.AppendUint32(w.buf, v)
}

func (w *Writer) Int32(v int32) {
	w.Uint32(uint32(v))
}

func (w *Writer) Uint64(v uint64) {
	w.buf = binary.BigEndian.AppendUint64(w.buf, v)
}

func (w *Writer) Int64(v int64) {
	w.Uint64(uint64(v))
}

// Fixed appends b as is. Use only for fields whose width is implied by the layout.
func (w *Writer) Fixed(b []byte) {
	w.buf = append(w.buf, b...)
}

// Var appends b with its length prefix.
func (w *Writer) Var(b []byte) {
	if len(b) > math.MaxUint16 {
		w.err = ErrFieldTooLong
		return
	}
	w.buf = binary.BigEndian.AppendUint16(w.buf, uint16(len(b)))
	w.buf = append(w.buf, b...)
}

func (w *Writer) String(s string) {
	w.Var([]byte(s))
}

func (w *Writer) Strings(list []string) {
	w.Uint32(uint32(len(list)))
	for _, s := range list {
		w.String(s)
	}
}

func (w *Writer) Len() int {
	return len(w.buf)
}

// Bytes returns the encoded form or the first error met while writing.
func (w *Writer) Bytes() ([]byte, error) {
	if w.err != nil {
		return nil, w.err
	}
	return w.buf, nil
}
