package tlv

import (
	"fmt"
	"math"
)

// BER-TLV Header Encoding (ISO/IEC 8825-1, as profiled by ISO 7816-4).
//
// TAG:
//   - First byte, bits 5-1 = '11111': the tag continues on the following bytes.
//   - Subsequent bytes: bit 8 set means another byte follows.
//   - Bit 6 of the first byte marks a constructed object.
//
// LENGTH:
//   - Short form: one byte, bit 8 = 0, value 0..127.
//   - Long form: first byte '8N', followed by N big-endian length bytes.
//   - '80' (indefinite form) is not allowed in card data objects.
//
// The moov-io/bertlv decoder needs the whole object in memory. DecodeHeader
// only needs the tag and length bytes, which lets a caller learn the overall
// size of an object from its first chunk.

const (
	maxTagBytes    = 4
	maxLengthBytes = 4
)

// ParserError reports malformed BER-TLV data. A parse never truncates silently.
type ParserError struct {
	Offset int
	Msg    string
}

func (e *ParserError) Error() string {
	return fmt.Sprintf("tlv parse error at offset %d: %s", e.Offset, e.Msg)
}

func parserErrorf(offset int, format string, args ...any) *ParserError {
	return &ParserError{Offset: offset, Msg: fmt.Sprintf(format, args...)}
}

// Header is the decoded Tag and Length of one object.
type Header struct {
	Tag         uint32
	TagSize     int
	LengthSize  int
	ValueLength int
}

// Size returns the number of bytes used by the tag and length fields.
func (h Header) Size() int {
	return h.TagSize + h.LengthSize
}

// TotalLength returns the size of the complete encoded object.
func (h Header) TotalLength() int {
	return h.Size() + h.ValueLength
}

// IsConstructed reports whether the value holds nested objects.
func (h Header) IsConstructed() bool {
	first := h.Tag >> (8 * uint(h.TagSize-1))
	return first&0x20 != 0
}

// TagString returns the tag in the upper-case hex notation used by bertlv.TLV.
func (h Header) TagString() string {
	return TagName(h.Tag)
}

// BerTlv is one object decoded from a buffer.
type BerTlv struct {
	Header
	Raw         []byte // the buffer the object was decoded from
	Offset      int    // offset of the tag in Raw
	ValueOffset int    // offset of the value in Raw
}

// Value returns the value field of the object.
func (t *BerTlv) Value() []byte {
	return t.Raw[t.ValueOffset : t.ValueOffset+t.ValueLength]
}

// Bytes returns the complete encoded object (tag, length and value).
func (t *BerTlv) Bytes() []byte {
	return t.Raw[t.Offset : t.Offset+t.TotalLength()]
}

// DecodeTag reads a single or multi-byte tag starting at offset.
func DecodeTag(data []byte, offset int) (uint32, int, error) {
	if offset < 0 || offset >= len(data) {
		return 0, 0, parserErrorf(offset, "no tag byte available (buffer length %d)", len(data))
	}

	tag := uint32(data[offset])
	size := 1
	if data[offset]&0x1F != 0x1F {
		return tag, size, nil
	}

	for {
		pos := offset + size
		if pos >= len(data) {
			return 0, 0, parserErrorf(pos, "tag continues past end of buffer")
		}
		if size == maxTagBytes {
			return 0, 0, parserErrorf(offset, "tag longer than %d bytes", maxTagBytes)
		}
		b := data[pos]
		tag = tag<<8 | uint32(b)
		size++
		if b&0x80 == 0 {
			return tag, size, nil
		}
	}
}

// DecodeLength reads a short or long form length starting at offset.
func DecodeLength(data []byte, offset int) (int, int, error) {
	if offset < 0 || offset >= len(data) {
		return 0, 0, parserErrorf(offset, "no length byte available (buffer length %d)", len(data))
	}

	first := data[offset]
	if first&0x80 == 0 {
		return int(first), 1, nil
	}

	count := int(first & 0x7F)
	if count == 0 {
		return 0, 0, parserErrorf(offset, "indefinite length form is not supported")
	}
	if count > maxLengthBytes {
		return 0, 0, parserErrorf(offset, "length field of %d bytes not supported", count)
	}
	if offset+1+count > len(data) {
		return 0, 0, parserErrorf(offset, "length field needs %d bytes, %d available", count, len(data)-offset-1)
	}

	var length uint64
	for _, b := range data[offset+1 : offset+1+count] {
		length = length<<8 | uint64(b)
	}
	if length > math.MaxInt32 {
		return 0, 0, parserErrorf(offset, "length %d too large", length)
	}

	return int(length), 1 + count, nil
}

// DecodeHeader reads the tag and length at offset. The value itself does not
// have to be present in data.
func DecodeHeader(data []byte, offset int) (Header, error) {
	tag, tagSize, err := DecodeTag(data, offset)
	if err != nil {
		return Header{}, err
	}

	length, lengthSize, err := DecodeLength(data, offset+tagSize)
	if err != nil {
		return Header{}, err
	}

	return Header{
		Tag:         tag,
		TagSize:     tagSize,
		LengthSize:  lengthSize,
		ValueLength: length,
	}, nil
}

// Decode reads one complete object at offset.
func Decode(data []byte, offset int) (*BerTlv, error) {
	h, err := DecodeHeader(data, offset)
	if err != nil {
		return nil, err
	}

	valueOffset := offset + h.Size()
	if valueOffset+h.ValueLength > len(data) {
		return nil, parserErrorf(offset, "value of tag %s needs %d bytes, %d available",
			h.TagString(), h.ValueLength, len(data)-valueOffset)
	}

	return &BerTlv{
		Header:      h,
		Raw:         data,
		Offset:      offset,
		ValueOffset: valueOffset,
	}, nil
}

// EncodeTag returns the minimal big-endian encoding of a tag.
func EncodeTag(tag uint32) []byte {
	switch {
	case tag <= 0xFF:
		return []byte{byte(tag)}
	case tag <= 0xFFFF:
		return []byte{byte(tag >> 8), byte(tag)}
	case tag <= 0xFFFFFF:
		return []byte{byte(tag >> 16), byte(tag >> 8), byte(tag)}
	default:
		return []byte{byte(tag >> 24), byte(tag >> 16), byte(tag >> 8), byte(tag)}
	}
}

// EncodeLength returns the shortest definite-form encoding of n.
func EncodeLength(n int) []byte {
	switch {
	case n < 0x80:
		return []byte{byte(n)}
	case n <= 0xFF:
		return []byte{0x81, byte(n)}
	case n <= 0xFFFF:
		return []byte{0x82, byte(n >> 8), byte(n)}
	case n <= 0xFFFFFF:
		return []byte{0x83, byte(n >> 16), byte(n >> 8), byte(n)}
	default:
		return []byte{0x84, byte(n >> 24), byte(n >> 16), byte(n >> 8), byte(n)}
	}
}

// Encode builds a complete object from a tag and a value.
func Encode(tag uint32, value []byte) []byte {
	out := EncodeTag(tag)
	out = append(out, EncodeLength(len(value))...)
	return append(out, value...)
}
