package types

import (
	"encoding/binary"
	"fmt"
)

// Encoder writes the canonical length-prefixed, little-endian wire format
// shared by knots, thread headers, and weave blocks. Every variable-length
// field is preceded by a uvarint length; fixed-width fields are written
// directly. Decode must reject any encoding with trailing bytes.
type Encoder struct {
	buf []byte
}

func NewEncoder() *Encoder { return &Encoder{} }

func (e *Encoder) Bytes() []byte { return e.buf }

func (e *Encoder) WriteByte(b byte) { e.buf = append(e.buf, b) }

func (e *Encoder) WriteUint64(v uint64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	e.buf = append(e.buf, tmp[:n]...)
}

func (e *Encoder) WriteFixed(b []byte) { e.buf = append(e.buf, b...) }

// WriteBytes writes a length-prefixed variable-length byte slice.
func (e *Encoder) WriteBytes(b []byte) {
	e.WriteUint64(uint64(len(b)))
	e.buf = append(e.buf, b...)
}

// WriteString writes a length-prefixed UTF-8 string.
func (e *Encoder) WriteString(s string) { e.WriteBytes([]byte(s)) }

func (e *Encoder) WriteHash(h Hash) { e.WriteFixed(h[:]) }

func (e *Encoder) WriteAddress(a Address) { e.WriteFixed(a[:]) }

func (e *Encoder) WritePublicKey(p PublicKey) { e.WriteFixed(p[:]) }

func (e *Encoder) WriteSignature(s Signature) { e.WriteFixed(s[:]) }

func (e *Encoder) WriteAmount(a Amount) {
	b := a.Bytes16()
	e.WriteFixed(b[:])
}

// Decoder parses the canonical format produced by Encoder. It rejects
// non-minimal varints (via binary.Uvarint's own minimality) and any
// leftover bytes once the caller declares decoding complete via Done.
type Decoder struct {
	buf []byte
	pos int
}

func NewDecoder(b []byte) *Decoder { return &Decoder{buf: b} }

var errShortBuffer = fmt.Errorf("%w: unexpected end of encoded data", ErrCodec)

// ErrCodec is the sentinel wrapped by all canonical-encoding decode errors.
var ErrCodec = fmt.Errorf("codec error")

func (d *Decoder) ReadByte() (byte, error) {
	if d.pos >= len(d.buf) {
		return 0, errShortBuffer
	}
	b := d.buf[d.pos]
	d.pos++
	return b, nil
}

func (d *Decoder) ReadUint64() (uint64, error) {
	v, n := binary.Uvarint(d.buf[d.pos:])
	if n <= 0 {
		return 0, errShortBuffer
	}
	d.pos += n
	return v, nil
}

func (d *Decoder) readN(n int) ([]byte, error) {
	if n < 0 || d.pos+n > len(d.buf) {
		return nil, errShortBuffer
	}
	b := d.buf[d.pos : d.pos+n]
	d.pos += n
	return b, nil
}

func (d *Decoder) ReadFixed(n int) ([]byte, error) { return d.readN(n) }

func (d *Decoder) ReadBytes() ([]byte, error) {
	n, err := d.ReadUint64()
	if err != nil {
		return nil, err
	}
	if n > uint64(len(d.buf)-d.pos) {
		return nil, fmt.Errorf("%w: declared length %d exceeds remaining buffer", ErrCodec, n)
	}
	b, err := d.readN(int(n))
	if err != nil {
		return nil, err
	}
	cp := make([]byte, len(b))
	copy(cp, b)
	return cp, nil
}

func (d *Decoder) ReadString() (string, error) {
	b, err := d.ReadBytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (d *Decoder) ReadHash() (Hash, error) {
	var h Hash
	b, err := d.readN(len(h))
	if err != nil {
		return h, err
	}
	copy(h[:], b)
	return h, nil
}

func (d *Decoder) ReadAddress() (Address, error) {
	var a Address
	b, err := d.readN(len(a))
	if err != nil {
		return a, err
	}
	copy(a[:], b)
	return a, nil
}

func (d *Decoder) ReadPublicKey() (PublicKey, error) {
	var p PublicKey
	b, err := d.readN(len(p))
	if err != nil {
		return p, err
	}
	copy(p[:], b)
	return p, nil
}

func (d *Decoder) ReadSignature() (Signature, error) {
	var s Signature
	b, err := d.readN(len(s))
	if err != nil {
		return s, err
	}
	copy(s[:], b)
	return s, nil
}

func (d *Decoder) ReadAmount() (Amount, error) {
	var raw [16]byte
	b, err := d.readN(len(raw))
	if err != nil {
		return Amount{}, err
	}
	copy(raw[:], b)
	return AmountFromBytes16(raw), nil
}

// Done returns an error if any bytes remain unconsumed. Canonical decoding
// requires calling this once the caller believes the message is fully
// parsed; a non-nil return means the input carried trailing garbage and
// must be rejected.
func (d *Decoder) Done() error {
	if d.pos != len(d.buf) {
		return fmt.Errorf("%w: %d trailing bytes after decode", ErrCodec, len(d.buf)-d.pos)
	}
	return nil
}
