// Package bits reads and writes bit fields of the header bytes of an APDU.
// Bits are numbered 1 (least significant) to 8, as in ISO/IEC 7816-4 tables.
package bits

// Bit returns a byte with only bit n set. Out of range positions yield 0.
func Bit(n uint) byte {
	if n < 1 || n > 8 {
		return 0
	}
	return 1 << (n - 1)
}

// IsSet reports whether bit n of b is set.
func IsSet(b byte, n uint) bool {
	return b&Bit(n) != 0
}

// Set returns b with bit n set.
func Set(b byte, n uint) byte {
	return b | Bit(n)
}

// Clear returns b with bit n cleared.
func Clear(b byte, n uint) byte {
	return b &^ Bit(n)
}

// mask returns the bits high..low in place, or 0 for an invalid range.
func mask(high, low uint) byte {
	if high < low || high > 8 || low < 1 {
		return 0
	}
	width := high - low + 1
	return byte((1<<width)-1) << (low - 1)
}

// GetRange extracts the field spanning bits high..low.
//
//	GetRange(0b0000_1100, 4, 3) == 0b11
func GetRange(b byte, high, low uint) byte {
	m := mask(high, low)
	if m == 0 {
		return 0
	}
	return (b & m) >> (low - 1)
}

// SetRange stores v in the field spanning bits high..low. Bits of v that do
// not fit the field are dropped.
//
//	SetRange(0b1000_0000, 2, 1, 3) == 0b1000_0011
func SetRange(b byte, high, low uint, v byte) byte {
	m := mask(high, low)
	if m == 0 {
		return b
	}
	return (b &^ m) | ((v << (low - 1)) & m)
}
