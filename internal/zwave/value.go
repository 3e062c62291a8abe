package zwave

// encodeValue writes a signed integer big-endian into size bytes.
// Z-Wave transmits multi-byte values most significant byte first and
// interprets them as two's complement.
func encodeValue(value int64, size byte) ([]byte, error) {
	switch size {
	case 1:
		if value < -128 || value > 255 {
			return nil, ErrInvalidValue
		}
	case 2:
		if value < -32768 || value > 65535 {
			return nil, ErrInvalidValue
		}
	case 4:
		if value < -2147483648 || value > 4294967295 {
			return nil, ErrInvalidValue
		}
	default:
		return nil, ErrInvalidSize
	}
	out := make([]byte, size)
	for i := int(size) - 1; i >= 0; i-- {
		out[i] = byte(value)
		value >>= 8
	}
	return out, nil
}

// decodeValue reads a big-endian two's complement integer.
func decodeValue(data []byte) int64 {
	var v int64
	for _, b := range data {
		v = v<<8 | int64(b)
	}
	// Sign-extend from the wire width.
	bits := uint(len(data) * 8)
	if bits < 64 && v&(1<<(bits-1)) != 0 {
		v -= 1 << bits
	}
	return v
}

// decodeUnsignedValue reads a big-endian unsigned integer.
func decodeUnsignedValue(data []byte) int64 {
	var v int64
	for _, b := range data {
		v = v<<8 | int64(b)
	}
	return v
}
