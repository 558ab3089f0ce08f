package bitmap

// The binary operators below treat the shorter operand as if it were padded
// with trailing zeros to the length of the longer one.

// And returns the bitwise AND of two bitmaps.
func And(a, b Dense) Dense {
	return combine(a, b, func(x, y byte) byte { return x & y })
}

// XOr returns the bitwise XOR of two bitmaps.
func XOr(a, b Dense) Dense {
	return combine(a, b, func(x, y byte) byte { return x ^ y })
}

// XNor returns the bitwise XNOR, i.e. equality, of two bitmaps.
func XNor(a, b Dense) Dense {
	return combine(a, b, func(x, y byte) byte { return ^(x ^ y) })
}

func combine(a, b Dense, op func(x, y byte) byte) Dense {
	short, long := a, b
	if b.len < a.len {
		short, long = b, a
	}
	r := Dense{
		bits: make([]byte, 0, long.SizeBytes()),
		len:  long.len,
	}
	ns := short.SizeBytes()
	for i := 0; i < long.SizeBytes(); i++ {
		var s byte
		if i < ns {
			s = short.bits[i]
		}
		r.bits = append(r.bits, op(s, long.bits[i]))
	}
	r.clearTail()
	return r
}
