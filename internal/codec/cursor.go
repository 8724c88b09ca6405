package codec

// Cursor is a forward-only reader over a byte slice, used throughout the
// component parsers to track position while decoding VInts, fixed-width
// fields, and length-prefixed values without re-slicing at every step.
type Cursor struct {
	data []byte
	pos  int
}

// NewCursor creates a Cursor over data.
func NewCursor(data []byte) *Cursor {
	return &Cursor{data: data}
}

// Pos returns the current byte offset within the underlying data.
func (c *Cursor) Pos() int { return c.pos }

// Remaining returns the number of unread bytes.
func (c *Cursor) Remaining() int { return len(c.data) - c.pos }

// Bytes returns the unread tail of the underlying data.
func (c *Cursor) Bytes() []byte { return c.data[c.pos:] }

// Advance skips n bytes.
func (c *Cursor) Advance(n int) { c.pos += n }

// ReadBytes reads exactly n bytes, returning ErrTruncated if unavailable.
func (c *Cursor) ReadBytes(n int) ([]byte, error) {
	if c.Remaining() < n {
		return nil, ErrTruncated
	}
	b := c.data[c.pos : c.pos+n]
	c.pos += n
	return b, nil
}

// ReadByte reads a single byte.
func (c *Cursor) ReadByte() (byte, error) {
	if c.Remaining() < 1 {
		return 0, ErrTruncated
	}
	b := c.data[c.pos]
	c.pos++
	return b, nil
}

// ReadUint16 reads a big-endian uint16.
func (c *Cursor) ReadUint16() (uint16, error) {
	b, err := c.ReadBytes(2)
	if err != nil {
		return 0, err
	}
	return Uint16(b), nil
}

// ReadUint32 reads a big-endian uint32.
func (c *Cursor) ReadUint32() (uint32, error) {
	b, err := c.ReadBytes(4)
	if err != nil {
		return 0, err
	}
	return Uint32(b), nil
}

// ReadUint64 reads a big-endian uint64.
func (c *Cursor) ReadUint64() (uint64, error) {
	b, err := c.ReadBytes(8)
	if err != nil {
		return 0, err
	}
	return Uint64(b), nil
}

// ReadUnsignedVInt reads an unsigned VInt.
func (c *Cursor) ReadUnsignedVInt() (uint64, error) {
	v, n, err := DecodeUnsignedVInt(c.data[c.pos:])
	if err != nil {
		return 0, err
	}
	c.pos += n
	return v, nil
}

// ReadSignedVInt reads a signed (ZigZag) VInt.
func (c *Cursor) ReadSignedVInt() (int64, error) {
	v, n, err := DecodeSignedVInt(c.data[c.pos:])
	if err != nil {
		return 0, err
	}
	c.pos += n
	return v, nil
}

// ReadShortBytes reads a 2-byte-length-prefixed byte string.
func (c *Cursor) ReadShortBytes() ([]byte, error) {
	v, n, err := DecodeShortBytes(c.data[c.pos:])
	if err != nil {
		return nil, err
	}
	c.pos += n
	return v, nil
}

// ReadVIntLengthPrefixed reads a [signed VInt length][bytes] value, as used
// for CQL value framing. A length of -1 signals null, -2 unset; both are
// returned with a nil value and no error, leaving the caller to distinguish
// via the returned length.
func (c *Cursor) ReadVIntLengthPrefixed() (value []byte, length int64, err error) {
	n, err := c.ReadSignedVInt()
	if err != nil {
		return nil, 0, err
	}
	if n < 0 {
		return nil, n, nil
	}
	b, err := c.ReadBytes(int(n))
	if err != nil {
		return nil, 0, err
	}
	return b, n, nil
}
