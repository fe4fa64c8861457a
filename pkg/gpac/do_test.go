package gpac

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gregLibert/secure-element/pkg/tlv"
)

func TestDecodeResponse_RefreshTag(t *testing.T) {
	do, err := DecodeResponse(tlv.Hex("DF 20 08 01 02 03 04 05 06 07 08"))
	require.NoError(t, err)

	rt, ok := do.(*RefreshTagDO)
	require.True(t, ok)
	assert.Equal(t, tagV1, rt.RefreshTag)
	assert.Equal(t, TagResponseRefreshTag, rt.DOTag())
}

func TestDecodeResponse_AllRules(t *testing.T) {
	raw := allArDo(
		refArDo(refDo(aidRef(testAID), hashRef(testHash)), arDo(apduAlways(), nfcNever())),
		refArDo(refDo(tlv.Hex("C0 00"), hashRef(nil)), arDo(tlv.Hex("DB 08 00 00 00 00 00 00 01 02"))),
		refArDo(refDo(hashRef(testHash), tlv.Encode(TagPkgRefDO, []byte("com.example"))), arDo(apduNever())),
	)

	do, err := DecodeResponse(raw)
	require.NoError(t, err)
	all, ok := do.(*AllRefArDO)
	require.True(t, ok)
	require.Len(t, all.Rules, 3)

	r := all.Rules[0]
	assert.Equal(t, testAID, r.Ref.AID)
	assert.Equal(t, testHash, r.Ref.Hash)
	assert.Equal(t, []byte{0x01}, r.Ar.APDU)
	assert.Equal(t, []byte{0x00}, r.Ar.NFC)

	r = all.Rules[1]
	assert.True(t, r.Ref.DefaultApplet)
	assert.False(t, r.Ref.IsAnyApplet())
	assert.True(t, r.Ref.IsAnyApplication())
	assert.Equal(t, uint64(0x0102), r.Ar.Permissions)

	r = all.Rules[2]
	assert.True(t, r.Ref.IsAnyApplet())
	assert.Equal(t, "com.example", string(r.Ref.Package))
}

func TestDecodeResponse_EmptyRuleSet(t *testing.T) {
	do, err := DecodeResponse(tlv.Hex("FF 40 00"))
	require.NoError(t, err)
	assert.Empty(t, do.(*AllRefArDO).Rules)
}

func TestDecodeResponse_SingleRule(t *testing.T) {
	do, err := DecodeResponse(refArDo(refDo(aidRef(testAID)), arDo(apduAlways())))
	require.NoError(t, err)
	rule, ok := do.(*RefArDO)
	require.True(t, ok)
	assert.Equal(t, testAID, rule.Ref.AID)
}

func TestDecodeResponse_Errors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"Empty", nil},
		{"Truncated", tlv.Hex("FF 40 05 E2 03")},
		{"Trailing", tlv.Hex("DF 20 01 01 00")},
		{"UnknownTag", tlv.Hex("DF 21 01 01")},
		{"EmptyRefreshTag", tlv.Hex("DF 20 00")},
		{"ForeignChild", allArDo(tlv.Hex("E1 00"))},
		{"RuleWithoutRef", allArDo(tlv.Encode(TagRefArDO, arDo(apduAlways())))},
		{"DuplicateRef", allArDo(tlv.Encode(TagRefArDO, append(refDo(hashRef(nil)), append(refDo(hashRef(nil)), arDo(apduAlways())...)...)))},
		{"AIDAndDefault", allArDo(refArDo(refDo(aidRef(testAID), tlv.Hex("C0 00")), arDo(apduAlways())))},
		{"ShortAID", allArDo(refArDo(refDo(aidRef([]byte{1, 2, 3})), arDo(apduAlways())))},
		{"OversizedPermissions", allArDo(refArDo(refDo(hashRef(nil)), arDo(tlv.Hex("DB 09 00 00 00 00 00 00 00 00 01"))))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeResponse(tt.data)
			var pe *tlv.ParserError
			assert.ErrorAs(t, err, &pe)
		})
	}
}

func TestRefArDO_EncodeRoundTrip(t *testing.T) {
	all := &AllRefArDO{Rules: []RefArDO{
		{Ref: RefDO{AID: testAID, Hash: testHash}, Ar: ArDO{APDU: []byte{0x01}, NFC: []byte{0x00}}},
		{Ref: RefDO{DefaultApplet: true}, Ar: ArDO{Permissions: 0x8000000000000001}},
		{Ref: RefDO{Package: []byte("com.example")}, Ar: ArDO{APDU: tlv.Hex("00A40400FFFFFFFF")}},
	}}

	raw, err := all.Encode()
	require.NoError(t, err)

	do, err := DecodeResponse(raw)
	require.NoError(t, err)
	decoded := do.(*AllRefArDO)
	require.Len(t, decoded.Rules, 3)

	assert.Equal(t, testAID, decoded.Rules[0].Ref.AID)
	assert.Equal(t, []byte{0x00}, decoded.Rules[0].Ar.NFC)
	assert.True(t, decoded.Rules[1].Ref.DefaultApplet)
	assert.Equal(t, uint64(0x8000000000000001), decoded.Rules[1].Ar.Permissions)
	assert.Equal(t, []byte("com.example"), decoded.Rules[2].Ref.Package)
	assert.Equal(t, tlv.Hex("00A40400FFFFFFFF"), decoded.Rules[2].Ar.APDU)

	single, err := all.Rules[0].Encode()
	require.NoError(t, err)
	assert.Equal(t, refArDo(refDo(aidRef(testAID), hashRef(testHash)), arDo(apduAlways(), nfcNever())), single)
}

func TestAllRefArDO_Describe(t *testing.T) {
	all := &AllRefArDO{Rules: []RefArDO{
		{Ref: RefDO{AID: testAID, DefaultApplet: false, Package: []byte("com.example")}, Ar: ArDO{APDU: []byte{0x01}, Permissions: 0x02}},
	}}

	out := all.Describe()
	assert.True(t, strings.HasPrefix(out, "=== ACCESS RULES (1) ==="))
	assert.Contains(t, out, "Rule[1].Ref")
	assert.Contains(t, out, "A000000151000000")
	assert.Contains(t, out, "com.example")
	assert.Contains(t, out, "Rule[1].Ar")
}

func TestRefDO_String(t *testing.T) {
	assert.Equal(t, "any applet, any application", (&RefDO{}).String())
	assert.Equal(t, "default applet, any application", (&RefDO{DefaultApplet: true}).String())
	assert.Equal(t, "AID A000000151000000, hash 0102", (&RefDO{AID: testAID, Hash: []byte{1, 2}}).String())
}
