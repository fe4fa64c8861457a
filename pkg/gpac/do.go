package gpac

import (
	"fmt"
	"strings"

	"github.com/gregLibert/secure-element/pkg/tlv"
	"github.com/moov-io/bertlv"
)

// ACCESS RULE DATA OBJECTS (GlobalPlatform Secure Element Access Control).
//
// The ARA-M returns its rules as BER-TLV data objects:
//
//	Response-ALL-AR-DO  'FF40' { REF-AR-DO* }
//	Response-RefreshTag 'DF20' 8-byte version token
//	REF-AR-DO           'E2'   { REF-DO, AR-DO }
//	REF-DO              'E1'   { AID-REF-DO '4F' or default applet 'C0' (empty),
//	                             Hash-REF-DO 'C1' (0, 20 or 32 bytes),
//	                             PKG-REF-DO 'CA' }
//	AR-DO               'E3'   { APDU-AR-DO 'D0', NFC-AR-DO 'D1', PERM-AR-DO 'DB' }
//
// An absent AID-REF-DO targets every applet. An absent or empty Hash-REF-DO
// targets every device application.

// Data object tags.
const (
	TagResponseAllArDO     uint32 = 0xFF40
	TagResponseRefreshTag  uint32 = 0xDF20
	TagRefArDO             uint32 = 0xE2
	TagRefDO               uint32 = 0xE1
	TagArDO                uint32 = 0xE3
	TagAIDRefDO            uint32 = 0x4F
	TagDefaultAppletRefDO  uint32 = 0xC0
	TagHashRefDO           uint32 = 0xC1
	TagPkgRefDO            uint32 = 0xCA
	TagAPDUArDO            uint32 = 0xD0
	TagNFCArDO             uint32 = 0xD1
	TagPermArDO            uint32 = 0xDB
	minAIDLength                  = 5
	maxAIDLength                  = 16
	sha1HashLength                = 20
	sha256HashLength              = 32
	apduFilterLength              = 8
	permissionMaskLength          = 8
)

// DO is a data object produced by DecodeResponse.
type DO interface {
	DOTag() uint32
}

// RefreshTagDO carries the version token of the rule set.
type RefreshTagDO struct {
	RefreshTag []byte
}

func (*RefreshTagDO) DOTag() uint32 { return TagResponseRefreshTag }

// RefDO identifies the applet and the device application a rule applies to.
type RefDO struct {
	AID           []byte `tlv:"4F"`
	DefaultApplet bool   `tlv:"C0"`
	Hash          []byte `tlv:"C1"`
	Package       []byte `tlv:"CA" fmt:"ascii"`

	Unknown []bertlv.TLV `tlv:",unknown"`
}

func (*RefDO) DOTag() uint32 { return TagRefDO }

// IsAnyApplet reports whether the reference targets every applet.
func (r *RefDO) IsAnyApplet() bool {
	return len(r.AID) == 0 && !r.DefaultApplet
}

// IsAnyApplication reports whether the reference targets every device application.
func (r *RefDO) IsAnyApplication() bool {
	return len(r.Hash) == 0
}

func (r *RefDO) validate() error {
	if len(r.AID) > 0 && r.DefaultApplet {
		return fmt.Errorf("REF-DO holds both AID-REF-DO and default applet reference")
	}
	if len(r.AID) > 0 && (len(r.AID) < minAIDLength || len(r.AID) > maxAIDLength) {
		return fmt.Errorf("AID-REF-DO of %d bytes, want %d..%d", len(r.AID), minAIDLength, maxAIDLength)
	}
	switch len(r.Hash) {
	case 0, sha1HashLength, sha256HashLength:
	default:
		return fmt.Errorf("Hash-REF-DO of %d bytes, want 0, %d or %d", len(r.Hash), sha1HashLength, sha256HashLength)
	}
	return nil
}

func (r *RefDO) packets() []bertlv.TLV {
	var out []bertlv.TLV
	switch {
	case len(r.AID) > 0:
		out = append(out, bertlv.TLV{Tag: tlv.TagName(TagAIDRefDO), Value: r.AID})
	case r.DefaultApplet:
		out = append(out, bertlv.TLV{Tag: tlv.TagName(TagDefaultAppletRefDO), Value: []byte{}})
	}
	out = append(out, bertlv.TLV{Tag: tlv.TagName(TagHashRefDO), Value: nonNil(r.Hash)})
	if len(r.Package) > 0 {
		out = append(out, bertlv.TLV{Tag: tlv.TagName(TagPkgRefDO), Value: r.Package})
	}
	return out
}

// String describes the reference in a compact form.
func (r *RefDO) String() string {
	applet := "any applet"
	switch {
	case len(r.AID) > 0:
		applet = fmt.Sprintf("AID %X", r.AID)
	case r.DefaultApplet:
		applet = "default applet"
	}
	app := "any application"
	if len(r.Hash) > 0 {
		app = fmt.Sprintf("hash %X", r.Hash)
	}
	return applet + ", " + app
}

// ArDO holds the access rule attached to a REF-DO.
type ArDO struct {
	APDU        []byte `tlv:"D0"`
	NFC         []byte `tlv:"D1"`
	Permissions uint64 `tlv:"DB"`

	Unknown []bertlv.TLV `tlv:",unknown"`
}

func (*ArDO) DOTag() uint32 { return TagArDO }

func (a *ArDO) validate() error {
	if a.APDU != nil && len(a.APDU) != 1 && (len(a.APDU) == 0 || len(a.APDU)%apduFilterLength != 0) {
		return fmt.Errorf("APDU-AR-DO of %d bytes, want 1 or a multiple of %d", len(a.APDU), apduFilterLength)
	}
	if a.NFC != nil && len(a.NFC) != 1 {
		return fmt.Errorf("NFC-AR-DO of %d bytes, want 1", len(a.NFC))
	}
	if a.APDU == nil && a.NFC == nil && a.Permissions == 0 {
		return fmt.Errorf("AR-DO holds no access rule")
	}
	return nil
}

func (a *ArDO) packets() []bertlv.TLV {
	var out []bertlv.TLV
	if a.APDU != nil {
		out = append(out, bertlv.TLV{Tag: tlv.TagName(TagAPDUArDO), Value: a.APDU})
	}
	if a.NFC != nil {
		out = append(out, bertlv.TLV{Tag: tlv.TagName(TagNFCArDO), Value: a.NFC})
	}
	if a.Permissions != 0 {
		mask := make([]byte, permissionMaskLength)
		for i := range mask {
			mask[i] = byte(a.Permissions >> (8 * uint(permissionMaskLength-1-i)))
		}
		out = append(out, bertlv.TLV{Tag: tlv.TagName(TagPermArDO), Value: mask})
	}
	return out
}

// RefArDO is one rule: a reference and the access granted to it.
type RefArDO struct {
	Ref RefDO
	Ar  ArDO
}

func (*RefArDO) DOTag() uint32 { return TagRefArDO }

func (d *RefArDO) packet() bertlv.TLV {
	return bertlv.TLV{
		Tag: tlv.TagName(TagRefArDO),
		TLVs: []bertlv.TLV{
			{Tag: tlv.TagName(TagRefDO), TLVs: d.Ref.packets()},
			{Tag: tlv.TagName(TagArDO), TLVs: d.Ar.packets()},
		},
	}
}

// Encode returns the BER-TLV encoding of the rule.
func (d *RefArDO) Encode() ([]byte, error) {
	return bertlv.Encode([]bertlv.TLV{d.packet()})
}

// AllRefArDO is the complete rule set returned by GET DATA (all).
type AllRefArDO struct {
	Rules []RefArDO
}

func (*AllRefArDO) DOTag() uint32 { return TagResponseAllArDO }

// Encode returns the BER-TLV encoding of the rule set.
func (d *AllRefArDO) Encode() ([]byte, error) {
	rules := make([]bertlv.TLV, 0, len(d.Rules))
	for i := range d.Rules {
		rules = append(rules, d.Rules[i].packet())
	}
	return bertlv.Encode([]bertlv.TLV{{Tag: tlv.TagName(TagResponseAllArDO), TLVs: rules}})
}

// Describe generates a report of every rule in the set.
func (d *AllRefArDO) Describe() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("=== ACCESS RULES (%d) ===", len(d.Rules)))

	for i := range d.Rules {
		prefix := fmt.Sprintf("Rule[%d]", i+1)
		tlv.WriteStructFields(&sb, prefix+".Ref", &d.Rules[i].Ref)
		tlv.WriteStructFields(&sb, prefix+".Ar", &d.Rules[i].Ar)
	}

	return sb.String()
}

// DecodeResponse decodes a response data object and dispatches it on its tag.
// It returns *AllRefArDO, *RefreshTagDO or *RefArDO; any other tag, or any
// malformed encoding, yields a *tlv.ParserError.
func DecodeResponse(data []byte) (DO, error) {
	head, err := tlv.Decode(data, 0)
	if err != nil {
		return nil, err
	}
	if head.TotalLength() != len(data) {
		return nil, &tlv.ParserError{
			Offset: head.TotalLength(),
			Msg:    fmt.Sprintf("%d trailing bytes after tag %s", len(data)-head.TotalLength(), head.TagString()),
		}
	}

	packets, err := bertlv.Decode(data)
	if err != nil {
		return nil, &tlv.ParserError{Offset: 0, Msg: err.Error()}
	}
	if len(packets) != 1 {
		return nil, &tlv.ParserError{Offset: 0, Msg: fmt.Sprintf("expected one data object, got %d", len(packets))}
	}
	packet := packets[0]

	switch head.Tag {
	case TagResponseRefreshTag:
		if len(packet.Value) == 0 {
			return nil, &tlv.ParserError{Offset: head.ValueOffset, Msg: "empty refresh tag"}
		}
		return &RefreshTagDO{RefreshTag: append([]byte(nil), packet.Value...)}, nil

	case TagResponseAllArDO:
		all := &AllRefArDO{}
		for i, child := range packet.TLVs {
			if !isTag(child, TagRefArDO) {
				return nil, &tlv.ParserError{Offset: head.ValueOffset, Msg: fmt.Sprintf("entry %d: unexpected tag %s in Response-ALL-AR-DO", i, child.Tag)}
			}
			rule, err := decodeRefArDO(child)
			if err != nil {
				return nil, &tlv.ParserError{Offset: head.ValueOffset, Msg: fmt.Sprintf("entry %d: %v", i, err)}
			}
			all.Rules = append(all.Rules, *rule)
		}
		return all, nil

	case TagRefArDO:
		rule, err := decodeRefArDO(packet)
		if err != nil {
			return nil, &tlv.ParserError{Offset: head.ValueOffset, Msg: err.Error()}
		}
		return rule, nil

	default:
		return nil, &tlv.ParserError{Offset: head.Offset, Msg: fmt.Sprintf("unsupported data object tag %s", head.TagString())}
	}
}

func decodeRefArDO(packet bertlv.TLV) (*RefArDO, error) {
	var refPacket, arPacket *bertlv.TLV
	for i := range packet.TLVs {
		child := &packet.TLVs[i]
		switch {
		case isTag(*child, TagRefDO) && refPacket == nil:
			refPacket = child
		case isTag(*child, TagArDO) && arPacket == nil:
			arPacket = child
		default:
			return nil, fmt.Errorf("unexpected tag %s in REF-AR-DO", child.Tag)
		}
	}
	if refPacket == nil {
		return nil, fmt.Errorf("REF-AR-DO without REF-DO")
	}
	if arPacket == nil {
		return nil, fmt.Errorf("REF-AR-DO without AR-DO")
	}

	rule := &RefArDO{}
	if err := tlv.UnmarshalFromPackets(refPacket.TLVs, &rule.Ref); err != nil {
		return nil, fmt.Errorf("REF-DO: %w", err)
	}
	if err := rule.Ref.validate(); err != nil {
		return nil, err
	}
	if err := tlv.UnmarshalFromPackets(arPacket.TLVs, &rule.Ar); err != nil {
		return nil, fmt.Errorf("AR-DO: %w", err)
	}
	if err := rule.Ar.validate(); err != nil {
		return nil, err
	}
	return rule, nil
}

func isTag(packet bertlv.TLV, tag uint32) bool {
	return strings.EqualFold(packet.Tag, tlv.TagName(tag))
}

func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}
