package diam

import "encoding/binary"

// Packer owns a growable byte buffer and writes big-endian primitives to
// it, padding fixed-opaque fields to the next multiple of 4 bytes. It
// never suspends and never allocates beyond its own buffer growth — the
// codec is a pure function over byte slices (spec §5).
type Packer struct {
	buf []byte
}

// NewPacker returns a Packer with an empty buffer of the given initial
// capacity hint.
func NewPacker(sizeHint int) *Packer {
	return &Packer{buf: make([]byte, 0, sizeHint)}
}

// Bytes returns the accumulated buffer. The caller must not retain it
// past the next write.
func (p *Packer) Bytes() []byte { return p.buf }

// Len returns the number of bytes written so far.
func (p *Packer) Len() int { return len(p.buf) }

// WriteUint32 appends a big-endian uint32.
func (p *Packer) WriteUint32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	p.buf = append(p.buf, b[:]...)
}

// WriteUint64 appends a big-endian uint64.
func (p *Packer) WriteUint64(v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	p.buf = append(p.buf, b[:]...)
}

// WriteByte appends a single byte.
func (p *Packer) WriteByte(b byte) {
	p.buf = append(p.buf, b)
}

// WriteBytes appends raw bytes with no padding.
func (p *Packer) WriteBytes(b []byte) {
	p.buf = append(p.buf, b...)
}

// WriteOpaque appends payload followed by zero-padding to the next
// multiple of 4.
func (p *Packer) WriteOpaque(payload []byte) {
	p.buf = append(p.buf, payload...)
	if pad := padLen(len(payload)); pad > 0 {
		var zero [4]byte
		p.buf = append(p.buf, zero[:pad]...)
	}
}

// padLen returns the number of zero bytes needed to round n up to a
// multiple of 4.
func padLen(n int) int {
	if r := n % 4; r != 0 {
		return 4 - r
	}
	return 0
}

// Unpacker owns an immutable byte slice and a read cursor.
type Unpacker struct {
	buf    []byte
	cursor int
}

// NewUnpacker wraps buf for sequential reads starting at offset 0.
func NewUnpacker(buf []byte) *Unpacker {
	return &Unpacker{buf: buf}
}

// Cursor returns the current read offset.
func (u *Unpacker) Cursor() int { return u.cursor }

// Len returns the total length of the wrapped slice.
func (u *Unpacker) Len() int { return len(u.buf) }

// Remaining returns the number of unread bytes.
func (u *Unpacker) Remaining() int { return len(u.buf) - u.cursor }

// Done reports whether the cursor has reached the end of the slice.
func (u *Unpacker) Done() bool { return u.cursor >= len(u.buf) }

// PeekUint32 reads a big-endian uint32 without advancing the cursor.
func (u *Unpacker) PeekUint32() (uint32, error) {
	if u.Remaining() < 4 {
		return 0, ErrTruncated
	}
	return binary.BigEndian.Uint32(u.buf[u.cursor : u.cursor+4]), nil
}

// ConsumeUint32 reads a big-endian uint32 and advances the cursor by 4.
func (u *Unpacker) ConsumeUint32() (uint32, error) {
	v, err := u.PeekUint32()
	if err != nil {
		return 0, err
	}
	u.cursor += 4
	return v, nil
}

// ConsumeUint64 reads a big-endian uint64 and advances the cursor by 8.
func (u *Unpacker) ConsumeUint64() (uint64, error) {
	if u.Remaining() < 8 {
		return 0, ErrTruncated
	}
	v := binary.BigEndian.Uint64(u.buf[u.cursor : u.cursor+8])
	u.cursor += 8
	return v, nil
}

// ConsumeByte reads a single byte and advances the cursor by 1.
func (u *Unpacker) ConsumeByte() (byte, error) {
	if u.Remaining() < 1 {
		return 0, ErrTruncated
	}
	b := u.buf[u.cursor]
	u.cursor++
	return b, nil
}

// ConsumeBytes reads n raw bytes with no padding and advances by n.
func (u *Unpacker) ConsumeBytes(n int) ([]byte, error) {
	if u.Remaining() < n {
		return nil, ErrTruncated
	}
	b := u.buf[u.cursor : u.cursor+n]
	u.cursor += n
	return b, nil
}

// ConsumeOpaque reads n payload bytes, then advances past the padding
// needed to bring the cursor to the next multiple of 4 relative to
// where the opaque field started.
func (u *Unpacker) ConsumeOpaque(n int) ([]byte, error) {
	b, err := u.ConsumeBytes(n)
	if err != nil {
		return nil, err
	}
	if pad := padLen(n); pad > 0 {
		if u.Remaining() < pad {
			return nil, ErrTruncated
		}
		u.cursor += pad
	}
	return b, nil
}
