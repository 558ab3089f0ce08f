package bitmap

import "strings"

// A Dense is a bitmap where every bit is explicitly represented. Bits are
// packed little-endian within each byte, and bits past Size() are always
// zero.
type Dense struct {
	bits []byte
	len  int
}

// NewDense returns a new dense bitmap whose contents are a copy of data, and
// whose length is bitLen. If bitLen is longer than data, then trailing zeros
// are added. If bitLen is negative, then it is inferred from data.
func NewDense(data []byte, bitLen int) Dense {
	if bitLen < 0 {
		bitLen = len(data) * byteSize
	}
	r := Dense{
		bits: make([]byte, BytesFor(bitLen)),
		len:  bitLen,
	}
	copy(r.bits, data)
	r.clearTail()
	return r
}

// Get returns the i-th bit in this bitmap.
func (d Dense) Get(i int) bool {
	if i < 0 || i >= d.len {
		return false
	}
	return 0 < d.bits[i/byteSize]&(1<<(i%byteSize))
}

// Size returns the number of bits in this bitmap.
func (d Dense) Size() int {
	return d.len
}

// SizeBytes returns the number of bytes needed to hold this bitmap.
func (d Dense) SizeBytes() int {
	return BytesFor(d.len)
}

// Data returns a view of the bytes underlying this bitmap. Modifying the
// returned slice modifies this bitmap.
func (d Dense) Data() []byte {
	return d.bits
}

// String renders d as a string of '0's and '1's, lowest index first. It is the
// inverse of FromString.
func (d Dense) String() string {
	var sb strings.Builder
	sb.Grow(d.len)
	for i := 0; i < d.len; i++ {
		if d.Get(i) {
			sb.WriteByte('1')
		} else {
			sb.WriteByte('0')
		}
	}
	return sb.String()
}

// Set assigns v to the i-th bit.
func (d *Dense) Set(i int, v bool) {
	j, pos := i/byteSize, i%byteSize
	if v {
		d.bits[j] |= 1 << pos
	} else {
		d.bits[j] &^= 1 << pos
	}
}

// Flip inverts the i-th bit.
func (d *Dense) Flip(i int) {
	d.bits[i/byteSize] ^= 1 << (i % byteSize)
}

// AppendBit adds a single bit to the end of d.
func (d *Dense) AppendBit(bit bool) {
	i, pos := d.len/byteSize, d.len%byteSize
	d.len += 1
	if pos == 0 {
		d.bits = append(d.bits, 0)
	}
	if bit {
		d.bits[i] |= 1 << pos
	}
}

// Append adds the contents of d2 to the end of d. The result never shares
// storage with copies of d taken before the call.
func (d *Dense) Append(d2 Dense) {
	n := d.SizeBytes()
	bits := make([]byte, n, BytesFor(d.len+d2.len)+1)
	copy(bits, d.bits[:n])
	d.bits = bits
	off := d.len % byteSize
	if off == 0 {
		d.bits = append(d.bits, d2.bits[:d2.SizeBytes()]...)
		d.len += d2.len
		return
	}
	for _, b := range d2.bits[:d2.SizeBytes()] {
		d.bits[len(d.bits)-1] |= b << off
		d.bits = append(d.bits, b>>(byteSize-off))
	}
	d.len += d2.len
	d.bits = d.bits[:d.SizeBytes()]
}

func (d *Dense) clearTail() {
	if off := d.len % byteSize; off != 0 {
		d.bits[len(d.bits)-1] &= 0xFF >> (byteSize - off)
	}
}
