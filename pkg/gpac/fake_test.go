package gpac

import (
	"bytes"
	"errors"

	"github.com/gregLibert/secure-element/pkg/iso7816"
	"github.com/gregLibert/secure-element/pkg/tlv"
)

// fakeARA simulates an ARA-M applet behind a logical channel.
type fakeARA struct {
	refreshTag []byte
	rules      []byte // complete Response-ALL-AR-DO; nil answers 6A88
	ceiling    int    // per-response limit of the applet

	transmitErr error
	failOn      uint16
	failStatus  iso7816.StatusWord

	offset   int
	calls    map[uint16]int
	nextLe   []int
	access   *ChannelAccess
	closed   int
	opened   int
	notFound bool
	openErr  error
}

func newFakeARA(refreshTag, rules []byte) *fakeARA {
	return &fakeARA{
		refreshTag: refreshTag,
		rules:      rules,
		ceiling:    DefaultMaxChunk,
		calls:      make(map[uint16]int),
	}
}

func (f *fakeARA) OpenLogicalChannelWithoutChannelAccess(aid []byte) (Channel, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	if f.notFound || !bytes.Equal(aid, ARAMAID) {
		return nil, nil
	}
	f.opened++
	f.access = nil
	return f, nil
}

func (f *fakeARA) SetChannelAccess(access *ChannelAccess) {
	f.access = access
}

func (f *fakeARA) Close() error {
	f.closed++
	return nil
}

func (f *fakeARA) Transmit(raw []byte) ([]byte, error) {
	if f.transmitErr != nil {
		return nil, f.transmitErr
	}
	if f.access == nil || f.access.Access != AccessAllowed {
		return nil, errors.New("channel access not granted")
	}

	cmd, err := iso7816.ParseCommandAPDU(raw)
	if err != nil {
		return iso7816.NewResponseAPDU(nil, iso7816.SW_ERR_WRONG_LENGTH).Bytes(), nil
	}
	if cmd.Class.Raw != 0x80 || cmd.Instruction.Raw != iso7816.INS_GET_DATA {
		return iso7816.NewResponseAPDU(nil, iso7816.SW_ERR_INS_INVALID).Bytes(), nil
	}

	p1p2 := uint16(cmd.P1)<<8 | uint16(cmd.P2)
	f.calls[p1p2]++
	if f.failOn == p1p2 {
		return iso7816.NewResponseAPDU(nil, f.failStatus).Bytes(), nil
	}

	switch p1p2 {
	case getDataRefreshTag:
		return iso7816.NewResponseAPDU(tlv.Encode(TagResponseRefreshTag, f.refreshTag), iso7816.SW_NO_ERROR).Bytes(), nil
	case getDataAll:
		if f.rules == nil {
			return iso7816.NewResponseAPDU(nil, iso7816.SW_ERR_REF_DATA_NOT_FOUND).Bytes(), nil
		}
		f.offset = 0
		return f.chunk(cmd.Ne), nil
	case getDataNext:
		f.nextLe = append(f.nextLe, cmd.Ne)
		return f.chunk(cmd.Ne), nil
	default:
		return iso7816.NewResponseAPDU(nil, iso7816.SW_ERR_REF_DATA_NOT_FOUND).Bytes(), nil
	}
}

func (f *fakeARA) chunk(le int) []byte {
	n := min(le, f.ceiling, len(f.rules)-f.offset)
	data := f.rules[f.offset : f.offset+n]
	f.offset += n
	return iso7816.NewResponseAPDU(data, iso7816.SW_NO_ERROR).Bytes()
}

// Fixture helpers building data objects from raw values.

func refDo(children ...[]byte) []byte {
	return tlv.Encode(TagRefDO, bytes.Join(children, nil))
}

func arDo(children ...[]byte) []byte {
	return tlv.Encode(TagArDO, bytes.Join(children, nil))
}

func refArDo(ref, ar []byte) []byte {
	return tlv.Encode(TagRefArDO, append(append([]byte(nil), ref...), ar...))
}

func allArDo(rules ...[]byte) []byte {
	return tlv.Encode(TagResponseAllArDO, bytes.Join(rules, nil))
}

func aidRef(aid []byte) []byte   { return tlv.Encode(TagAIDRefDO, aid) }
func hashRef(hash []byte) []byte { return tlv.Encode(TagHashRefDO, hash) }
func apduAlways() []byte         { return tlv.Hex("D0 01 01") }
func apduNever() []byte          { return tlv.Hex("D0 01 00") }
func nfcAlways() []byte          { return tlv.Hex("D1 01 01") }
func nfcNever() []byte           { return tlv.Hex("D1 01 00") }

var (
	testAID   = tlv.Hex("A000000151000000")
	otherAID  = tlv.Hex("A000000003101001")
	testHash  = bytes.Repeat([]byte{0x11}, 20)
	otherHash = bytes.Repeat([]byte{0x22}, 20)
	tagV1     = tlv.Hex("0102030405060708")
	tagV2     = tlv.Hex("0102030405060709")
)
