// Package wire implements the little-endian binary framing used on the
// judger control streams: fixed width u32 / i64 scalars and length
// prefixed byte strings. Reads loop until the requested width arrived,
// so a stream that ends inside a value surfaces as an error rather than
// a silently short field.
package wire

import (
	"encoding/binary"
	"io"
)

// ReadUint32 reads a little-endian u32.
func ReadUint32(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

// WriteUint32 writes a little-endian u32.
func WriteUint32(w io.Writer, v uint32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	_, err := w.Write(b[:])
	return err
}

// ReadInt64 reads a little-endian two's complement i64.
func ReadInt64(r io.Reader) (int64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return int64(binary.LittleEndian.Uint64(b[:])), nil
}

// WriteInt64 writes a little-endian two's complement i64.
func WriteInt64(w io.Writer, v int64) error {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(v))
	_, err := w.Write(b[:])
	return err
}

// ReadBytes reads a u32 length prefix followed by that many payload
// bytes. EOF inside the payload is reported as io.ErrUnexpectedEOF.
func ReadBytes(r io.Reader) ([]byte, error) {
	n, err := ReadUint32(r)
	if err != nil {
		return nil, err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return b, nil
}

// WriteBytes writes a u32 length prefix followed by the payload.
func WriteBytes(w io.Writer, b []byte) error {
	if err := WriteUint32(w, uint32(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

// ReadString reads a length prefixed string.
func ReadString(r io.Reader) (string, error) {
	b, err := ReadBytes(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// WriteString writes a length prefixed string.
func WriteString(w io.Writer, s string) error {
	if err := WriteUint32(w, uint32(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

// ReadStrings reads a u32 count followed by that many length prefixed
// strings.
func ReadStrings(r io.Reader) ([]string, error) {
	n, err := ReadUint32(r)
	if err != nil {
		return nil, err
	}
	list := make([]string, 0, n)
	for i := uint32(0); i < n; i++ {
		s, err := ReadString(r)
		if err != nil {
			return nil, err
		}
		list = append(list, s)
	}
	return list, nil
}

// WriteStrings writes a u32 count followed by the length prefixed
// elements.
func WriteStrings(w io.Writer, list []string) error {
	if err := WriteUint32(w, uint32(len(list))); err != nil {
		return err
	}
	for _, s := range list {
		if err := WriteString(w, s); err != nil {
			return err
		}
	}
	return nil
}
